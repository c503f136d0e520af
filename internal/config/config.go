package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"
	"github.com/mroshb/shop_economy/internal/database"
)

type Config struct {
	// Telegram
	BotToken string `envconfig:"BOT_TOKEN"`

	// Database
	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     string `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"shop"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME" default:"shop_economy"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`

	// Store retry
	RetryAttempts   int           `envconfig:"STORE_RETRY_ATTEMPTS" default:"3"`
	RetryMinBackoff time.Duration `envconfig:"STORE_RETRY_MIN_BACKOFF" default:"50ms"`
	RetryMaxBackoff time.Duration `envconfig:"STORE_RETRY_MAX_BACKOFF" default:"1s"`

	// Security
	JWTSecret         string        `envconfig:"JWT_SECRET_KEY"`
	AdminTokenTTL     time.Duration `envconfig:"ADMIN_TOKEN_TTL" default:"1h"`
	BootstrapAdminIDs []string      `envconfig:"BOOTSTRAP_ADMIN_IDS"`

	// Application
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
	Timezone string `envconfig:"APP_TIMEZONE" default:"UTC"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Rate Limiting
	RateLimitPerUser int           `envconfig:"RATE_LIMIT_PER_USER" default:"20"`
	RateLimitWindow  time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	// Jobs
	AuditCron  string `envconfig:"AUDIT_CRON" default:"0 3 * * *"`
	ExpiryCron string `envconfig:"EXPIRY_CRON" default:"5 0 * * *"`
}

func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	for i, id := range cfg.BootstrapAdminIDs {
		cfg.BootstrapAdminIDs[i] = strings.TrimSpace(id)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.BotToken == "" {
		return fmt.Errorf("BOT_TOKEN is required")
	}
	if c.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET_KEY is required")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET_KEY must be at least 32 characters")
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("STORE_RETRY_ATTEMPTS must be at least 1")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid APP_TIMEZONE: %w", err)
	}
	return nil
}

func (c *Config) ValidateProductionSecurity() error {
	if c.AppEnv != "production" {
		return nil
	}

	if c.DBSSLMode != "require" {
		return fmt.Errorf("DB_SSLMODE must be 'require' in production")
	}
	if c.JWTSecret == "your_jwt_secret_minimum_32_chars_here_change_this" {
		return fmt.Errorf("JWT_SECRET_KEY must be changed from default in production")
	}
	if c.AdminTokenTTL > 24*time.Hour {
		return fmt.Errorf("ADMIN_TOKEN_TTL must not exceed 24h in production")
	}

	return nil
}

func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode,
	)
}

// Location is the zone that defines the day boundary for limits and rewards.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) RetryPolicy() database.RetryPolicy {
	p := database.DefaultRetryPolicy()
	p.Attempts = c.RetryAttempts
	p.MinBackoff = c.RetryMinBackoff
	p.MaxBackoff = c.RetryMaxBackoff
	return p
}
