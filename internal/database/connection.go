package database

import (
	"fmt"
	"time"

	"github.com/mroshb/shop_economy/internal/models"
	"github.com/mroshb/shop_economy/pkg/logger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Connect opens the Postgres ledger store.
func Connect(dsn string, debug bool) (*gorm.DB, error) {
	var logLevel gormlogger.LogLevel
	if debug {
		logLevel = gormlogger.Info
	} else {
		logLevel = gormlogger.Error
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
		// Unique violations surface as gorm.ErrDuplicatedKey
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(20)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	logger.Info("Database connected")
	return db, nil
}

// Indexes that gorm tags cannot express. Both Postgres and SQLite accept
// partial indexes with a bare boolean predicate.
var extraIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_memberships_one_active ON memberships (user_id) WHERE is_active`,
}

func AutoMigrate(db *gorm.DB) error {
	logger.Info("Running database migrations...")

	err := db.AutoMigrate(
		&models.User{},
		&models.Item{},
		&models.Holding{},
		&models.LedgerEntry{},
		&models.Membership{},
		&models.DailyRewardClaim{},
		&models.SystemConfig{},
	)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	for _, stmt := range extraIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("index migration failed: %w", err)
		}
	}

	logger.Info("Database migrations completed successfully")
	return nil
}
