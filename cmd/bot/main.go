package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mroshb/shop_economy/internal/clock"
	"github.com/mroshb/shop_economy/internal/config"
	"github.com/mroshb/shop_economy/internal/database"
	"github.com/mroshb/shop_economy/internal/handlers"
	"github.com/mroshb/shop_economy/internal/jobs"
	"github.com/mroshb/shop_economy/internal/middleware"
	"github.com/mroshb/shop_economy/internal/services"
	"github.com/mroshb/shop_economy/internal/settings"
	"github.com/mroshb/shop_economy/pkg/logger"
	"github.com/mroshb/shop_economy/telegram"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger.InitWithLevel(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("Starting shop economy bot...")

	// Validate production security settings
	if cfg.AppEnv == "production" {
		if err := cfg.ValidateProductionSecurity(); err != nil {
			logger.Fatal("Production security validation failed", err)
		}
		logger.Info("Production security validation passed")
	}

	db, err := database.Connect(cfg.GetDSN(), cfg.AppEnv == "development")
	if err != nil {
		logger.Fatal("Failed to connect to database", err)
	}

	// Run GORM auto-migration
	if err := database.AutoMigrate(db); err != nil {
		logger.Fatal("Failed to run migrations", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.SeedCatalog(db); err != nil {
		logger.Warn("Failed to seed catalog", "error", err)
	}
	source := settings.NewDBSource(db)
	if err := source.SeedDefaults(ctx); err != nil {
		logger.Warn("Failed to seed settings", "error", err)
	}
	if _, err := database.PromoteBootstrapAdmins(db, cfg.BootstrapAdminIDs); err != nil {
		logger.Warn("Failed to promote bootstrap admins", "error", err)
	}

	env := services.Env{
		DB:       db,
		Settings: settings.NewResolver(source),
		Clock:    clock.New(cfg.Location()),
		Retry:    cfg.RetryPolicy(),
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerUser, cfg.RateLimitWindow)
	defer limiter.Stop()

	handlerMgr := handlers.NewHandlerManager(cfg, env, source, limiter)

	scheduler := jobs.NewScheduler(cfg.Location(), jobs.Schedule{
		ExpiryCron: cfg.ExpiryCron,
		AuditCron:  cfg.AuditCron,
		Timeout:    10 * time.Minute,
	}, handlerMgr.Memberships, handlerMgr.Audit)
	if err := scheduler.Start(ctx); err != nil {
		logger.Fatal("Failed to start job scheduler", err)
	}

	// Initialize and start Telegram bot
	bot, err := telegram.InitBot(cfg, handlerMgr)
	if err != nil {
		logger.Fatal("Failed to initialize bot", err)
	}

	logger.Info("Bot started successfully", "env", cfg.AppEnv, "timezone", cfg.Timezone)

	// Graceful shutdown
	<-ctx.Done()

	logger.Info("Shutting down gracefully...")
	bot.Stop()
	scheduler.Stop()
	logger.Info("Bot stopped")
}
