// Command ledgerctl runs admin ledger operations outside the bot.
// Every run needs a token issued by /admin_token; the admin flag is
// re-read from the store, so revoking an admin revokes their tokens.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mroshb/shop_economy/internal/clock"
	"github.com/mroshb/shop_economy/internal/config"
	"github.com/mroshb/shop_economy/internal/database"
	"github.com/mroshb/shop_economy/internal/security"
	"github.com/mroshb/shop_economy/internal/services"
	"github.com/mroshb/shop_economy/internal/settings"
	"github.com/mroshb/shop_economy/pkg/errors"
	"github.com/mroshb/shop_economy/pkg/logger"
)

const usageText = `usage: ledgerctl [-token T] <command> [args]

commands:
  adjust <user> <balance> [reason]   set a balance
  extend <user> <days>               extend the active membership
  cancel <user>                      end the active membership today
  audit [user]                       verify ledger chains
  export [-user U] [-type T] [-from D] [-to D] -out FILE
  stats                              print system statistics`

func main() {
	token := flag.String("token", os.Getenv("LEDGERCTL_TOKEN"), "admin token from /admin_token")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usageText) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.InitWithLevel(cfg.LogLevel)
	defer logger.Sync()

	claims, err := security.ValidateAdminToken(*token, cfg.JWTSecret)
	if err != nil {
		log.Fatalf("Invalid admin token: %v", err)
	}

	db, err := database.Connect(cfg.GetDSN(), false)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	env := services.Env{
		DB:       db,
		Settings: settings.NewResolver(settings.NewDBSource(db)),
		Clock:    clock.New(cfg.Location()),
		Retry:    cfg.RetryPolicy(),
	}
	app := newApp(env, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	actor, err := app.users.Actor(ctx, claims.Subject)
	if err != nil {
		log.Fatalf("Failed to resolve admin %s: %v", claims.Subject, err)
	}
	if !actor.IsAdmin {
		log.Fatalf("User %s is no longer an admin", claims.Subject)
	}

	if err := app.run(ctx, actor, flag.Args()); err != nil {
		if errors.IsCode(err, errors.ErrCodeValidation) {
			fmt.Fprintln(os.Stderr, usageText)
		}
		log.Fatal(err)
	}
}
