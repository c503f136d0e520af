package repositories

import (
	"context"
	"time"

	"github.com/mroshb/shop_economy/internal/models"
	"github.com/mroshb/shop_economy/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type HoldingRepository struct {
	db *gorm.DB
}

func NewHoldingRepository(db *gorm.DB) *HoldingRepository {
	return &HoldingRepository{db: db}
}

func (r *HoldingRepository) WithTx(tx *gorm.DB) *HoldingRepository {
	return &HoldingRepository{db: tx}
}

// InventoryLine is a holding joined with its catalog row.
type InventoryLine struct {
	ItemID    string
	Name      string
	Category  string
	Quantity  int64
	Price     int64
	SellPrice *int64
	CanSell   bool
}

// GetQuantity returns the owned quantity, zero when no row exists.
func (r *HoldingRepository) GetQuantity(ctx context.Context, userID, itemID string) (int64, error) {
	var rows []models.Holding
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND item_id = ?", userID, itemID).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternalError, "failed to get holding")
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Quantity, nil
}

// Add creates the holding on first purchase or increments it in place.
func (r *HoldingRepository) Add(ctx context.Context, userID, itemID string, qty int64) error {
	now := time.Now().UTC()
	holding := models.Holding{UserID: userID, ItemID: itemID, Quantity: qty}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "item_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"quantity":   gorm.Expr("holdings.quantity + ?", qty),
			"updated_at": now,
		}),
	}).Create(&holding).Error
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to add holding")
	}
	return nil
}

// Remove decrements only while enough is owned; false means nothing changed.
func (r *HoldingRepository) Remove(ctx context.Context, userID, itemID string, qty int64) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Holding{}).
		Where("user_id = ? AND item_id = ? AND quantity >= ?", userID, itemID, qty).
		UpdateColumns(map[string]interface{}{
			"quantity":   gorm.Expr("quantity - ?", qty),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to remove holding")
	}
	return result.RowsAffected == 1, nil
}

// Inventory lists the user's non-zero holdings.
func (r *HoldingRepository) Inventory(ctx context.Context, userID string) ([]InventoryLine, error) {
	var lines []InventoryLine
	err := r.db.WithContext(ctx).
		Table("holdings").
		Select("holdings.item_id, items.name, items.category, holdings.quantity, items.price, items.sell_price, items.can_sell").
		Joins("JOIN items ON items.id = holdings.item_id").
		Where("holdings.user_id = ? AND holdings.quantity > 0", userID).
		Order("items.sort_order, holdings.item_id").
		Scan(&lines).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to load inventory")
	}
	return lines, nil
}
