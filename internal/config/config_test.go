package config

import (
	"os"
	"testing"
	"time"
)

const testSecret = "this_is_a_test_secret_key_with_32_chars_minimum"

func TestLoadConfig(t *testing.T) {
	os.Clearenv()
	os.Setenv("BOT_TOKEN", "test_bot_token")
	os.Setenv("DB_PASSWORD", "test_password")
	os.Setenv("JWT_SECRET_KEY", testSecret)
	os.Setenv("BOOTSTRAP_ADMIN_IDS", "1001, 1002")
	os.Setenv("STORE_RETRY_MIN_BACKOFF", "10ms")
	defer os.Clearenv()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.BotToken != "test_bot_token" {
		t.Errorf("BotToken = %q, want %q", cfg.BotToken, "test_bot_token")
	}
	if cfg.DBHost != "localhost" {
		t.Errorf("DBHost = %q, want default %q", cfg.DBHost, "localhost")
	}
	if cfg.RetryAttempts != 3 {
		t.Errorf("RetryAttempts = %d, want 3", cfg.RetryAttempts)
	}
	if cfg.RetryMinBackoff != 10*time.Millisecond {
		t.Errorf("RetryMinBackoff = %v, want 10ms", cfg.RetryMinBackoff)
	}
	if len(cfg.BootstrapAdminIDs) != 2 || cfg.BootstrapAdminIDs[1] != "1002" {
		t.Errorf("BootstrapAdminIDs = %v, want [1001 1002]", cfg.BootstrapAdminIDs)
	}
	if cfg.AuditCron != "0 3 * * *" {
		t.Errorf("AuditCron = %q, want default", cfg.AuditCron)
	}
}

func TestLoadConfig_MissingRequired(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
	}{
		{
			name: "Missing BOT_TOKEN",
			envVars: map[string]string{
				"DB_PASSWORD":    "password",
				"JWT_SECRET_KEY": testSecret,
			},
		},
		{
			name: "Missing DB_PASSWORD",
			envVars: map[string]string{
				"BOT_TOKEN":      "token",
				"JWT_SECRET_KEY": testSecret,
			},
		},
		{
			name: "Missing JWT_SECRET_KEY",
			envVars: map[string]string{
				"BOT_TOKEN":   "token",
				"DB_PASSWORD": "password",
			},
		},
		{
			name: "Unparsable retry attempts",
			envVars: map[string]string{
				"BOT_TOKEN":            "token",
				"DB_PASSWORD":          "password",
				"JWT_SECRET_KEY":       testSecret,
				"STORE_RETRY_ATTEMPTS": "many",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			defer os.Clearenv()

			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}

			_, err := LoadConfig()
			if err == nil {
				t.Error("LoadConfig() expected error, got nil")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			BotToken:      "token",
			DBPassword:    "password",
			JWTSecret:     testSecret,
			RetryAttempts: 3,
			Timezone:      "UTC",
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "Valid", mutate: func(c *Config) {}, wantErr: false},
		{name: "Short JWT secret", mutate: func(c *Config) { c.JWTSecret = "short" }, wantErr: true},
		{name: "Zero retry attempts", mutate: func(c *Config) { c.RetryAttempts = 0 }, wantErr: true},
		{name: "Unknown timezone", mutate: func(c *Config) { c.Timezone = "Mars/Olympus" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateProductionSecurity(t *testing.T) {
	tests := []struct {
		name      string
		cfg       *Config
		shouldErr bool
	}{
		{
			name: "Valid production config",
			cfg: &Config{
				AppEnv:        "production",
				DBSSLMode:     "require",
				JWTSecret:     "production_secret_key_different_from_default",
				AdminTokenTTL: time.Hour,
			},
			shouldErr: false,
		},
		{
			name: "Development mode - no validation",
			cfg: &Config{
				AppEnv:    "development",
				DBSSLMode: "disable",
			},
			shouldErr: false,
		},
		{
			name: "Production without SSL",
			cfg: &Config{
				AppEnv:    "production",
				DBSSLMode: "disable",
				JWTSecret: "production_secret",
			},
			shouldErr: true,
		},
		{
			name: "Production with default JWT secret",
			cfg: &Config{
				AppEnv:    "production",
				DBSSLMode: "require",
				JWTSecret: "your_jwt_secret_minimum_32_chars_here_change_this",
			},
			shouldErr: true,
		},
		{
			name: "Production with long-lived admin tokens",
			cfg: &Config{
				AppEnv:        "production",
				DBSSLMode:     "require",
				JWTSecret:     "production_secret_key_different_from_default",
				AdminTokenTTL: 48 * time.Hour,
			},
			shouldErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.ValidateProductionSecurity()
			if tt.shouldErr && err == nil {
				t.Error("ValidateProductionSecurity() expected error, got nil")
			}
			if !tt.shouldErr && err != nil {
				t.Errorf("ValidateProductionSecurity() unexpected error = %v", err)
			}
		})
	}
}

func TestGetDSN(t *testing.T) {
	cfg := &Config{
		DBHost:     "localhost",
		DBPort:     "5432",
		DBUser:     "testuser",
		DBPassword: "testpass",
		DBName:     "testdb",
		DBSSLMode:  "disable",
	}

	expected := "host=localhost port=5432 user=testuser password=testpass dbname=testdb sslmode=disable"
	if dsn := cfg.GetDSN(); dsn != expected {
		t.Errorf("GetDSN() = %q, want %q", dsn, expected)
	}
}

func TestLocationAndRetryPolicy(t *testing.T) {
	cfg := &Config{Timezone: "Asia/Tehran", RetryAttempts: 4, RetryMinBackoff: time.Millisecond, RetryMaxBackoff: time.Second}

	if cfg.Location().String() != "Asia/Tehran" {
		t.Errorf("Location() = %v, want Asia/Tehran", cfg.Location())
	}

	p := cfg.RetryPolicy()
	if p.Attempts != 4 || p.MinBackoff != time.Millisecond || p.MaxBackoff != time.Second {
		t.Errorf("RetryPolicy() = %+v", p)
	}

	cfg.Timezone = "bogus"
	if cfg.Location() != time.UTC {
		t.Errorf("Location() with bad zone = %v, want UTC", cfg.Location())
	}
}
