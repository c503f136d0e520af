package database

import (
	"fmt"

	"github.com/mroshb/shop_economy/internal/models"
	"github.com/mroshb/shop_economy/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultCatalog is inserted on first start; existing rows are left untouched.
func DefaultCatalog() []models.Item {
	return []models.Item{
		{ID: "sword_basic", Name: "Basic Sword", Category: "weapon", Price: 100, CurrentStock: 100,
			MaxQuantity: models.Int64Ptr(5), DailyPurchaseLimit: models.Int64Ptr(3), CanSell: true, IsActive: true, SortOrder: 10},
		{ID: "shield_wood", Name: "Wooden Shield", Category: "armor", Price: 80, CurrentStock: 100,
			MaxQuantity: models.Int64Ptr(5), CanSell: true, IsActive: true, SortOrder: 20},
		{ID: "potion_small", Name: "Small Potion", Category: "consumable", Price: 20, CurrentStock: models.UnlimitedStock,
			MaxQuantity: models.Int64Ptr(20), DailyPurchaseLimit: models.Int64Ptr(50), CanSell: true, IsActive: true, SortOrder: 30},
		{ID: "name_tag", Name: "Name Tag", Category: "cosmetic", Price: 500, CurrentStock: models.UnlimitedStock,
			SellPrice: models.Int64Ptr(100), CanSell: true, IsActive: true, SortOrder: 40},
		{ID: "weekly_membership", Name: "Weekly Membership", Category: models.CategoryMembership, Price: 300,
			CurrentStock: models.UnlimitedStock, IsActive: true, SortOrder: 100},
		{ID: "monthly_membership", Name: "Monthly Membership", Category: models.CategoryMembership, Price: 1000,
			CurrentStock: models.UnlimitedStock, IsActive: true, SortOrder: 110},
		{ID: "quarterly_membership", Name: "Quarterly Membership", Category: models.CategoryMembership, Price: 2700,
			CurrentStock: models.UnlimitedStock, IsActive: true, SortOrder: 120},
		{ID: "premium_membership", Name: "Premium Membership", Category: models.CategoryMembership, Price: 2000,
			CurrentStock: models.UnlimitedStock, IsActive: true, SortOrder: 130},
		{ID: "vip_membership", Name: "VIP Membership", Category: models.CategoryMembership, Price: 3000,
			CurrentStock: models.UnlimitedStock, IsActive: true, SortOrder: 140},
	}
}

func SeedCatalog(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.Item{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count items: %w", err)
	}
	if count > 0 {
		return nil
	}

	logger.Info("Seeding default catalog...")
	items := DefaultCatalog()
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&items).Error
}

// PromoteBootstrapAdmins sets the persisted admin flag for the configured ids.
// It runs once at startup; nothing at request time consults the id list.
func PromoteBootstrapAdmins(db *gorm.DB, userIDs []string) (int64, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	result := db.Model(&models.User{}).
		Where("id IN ? AND is_admin = ?", userIDs, false).
		UpdateColumn("is_admin", true)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to promote admins: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		logger.Info("Promoted bootstrap admins", "count", result.RowsAffected)
	}
	return result.RowsAffected, nil
}
