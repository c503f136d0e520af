package settings

import (
	"context"
	"fmt"

	"github.com/mroshb/shop_economy/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DBSource reads the system_config table on every lookup, so admin changes
// take effect without a restart.
type DBSource struct {
	db *gorm.DB
}

func NewDBSource(db *gorm.DB) *DBSource {
	return &DBSource{db: db}
}

func (s *DBSource) Lookup(ctx context.Context, key string) (string, bool, error) {
	var rows []models.SystemConfig
	err := s.db.WithContext(ctx).
		Where("config_key = ? AND is_active = ?", key, true).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return "", false, err
	}
	if len(rows) == 0 {
		return "", false, nil
	}
	return rows[0].ConfigValue, true, nil
}

// Set upserts a key; unknown keys are rejected so typos never go live silently.
func (s *DBSource) Set(ctx context.Context, key, value string) error {
	if _, known := Defaults[key]; !known {
		return fmt.Errorf("unknown setting %q", key)
	}
	row := models.SystemConfig{
		ConfigKey:   key,
		ConfigValue: value,
		Description: Description(key),
		IsActive:    true,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "config_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"config_value", "is_active", "updated_at"}),
	}).Create(&row).Error
}

// SeedDefaults inserts every missing key with its default value.
func (s *DBSource) SeedDefaults(ctx context.Context) error {
	rows := make([]models.SystemConfig, 0, len(Defaults))
	for key, value := range Defaults {
		rows = append(rows, models.SystemConfig{
			ConfigKey:   key,
			ConfigValue: value,
			Description: Description(key),
			IsActive:    true,
		})
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

// All returns the active rows, for the admin listing.
func (s *DBSource) All(ctx context.Context) ([]models.SystemConfig, error) {
	var rows []models.SystemConfig
	err := s.db.WithContext(ctx).Where("is_active = ?", true).Order("config_key").Find(&rows).Error
	return rows, err
}
