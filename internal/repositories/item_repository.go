package repositories

import (
	"context"
	"time"

	"github.com/mroshb/shop_economy/internal/models"
	"github.com/mroshb/shop_economy/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ItemRepository struct {
	db *gorm.DB
}

func NewItemRepository(db *gorm.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

func (r *ItemRepository) WithTx(tx *gorm.DB) *ItemRepository {
	return &ItemRepository{db: tx}
}

func (r *ItemRepository) GetItemByID(ctx context.Context, id string) (*models.Item, error) {
	var item models.Item
	result := r.db.WithContext(ctx).Where("id = ?", id).First(&item)

	if result.Error == gorm.ErrRecordNotFound {
		return nil, errors.New(errors.ErrCodeNotFound, "item not found")
	}
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to get item")
	}

	return &item, nil
}

// ReserveStock decrements finite stock only while enough is left.
// Unlimited items never match, so callers skip them.
func (r *ItemRepository) ReserveStock(ctx context.Context, id string, qty int64) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Item{}).
		Where("id = ? AND current_stock <> ? AND current_stock >= ?", id, models.UnlimitedStock, qty).
		UpdateColumns(map[string]interface{}{
			"current_stock": gorm.Expr("current_stock - ?", qty),
			"updated_at":    time.Now().UTC(),
		})
	if result.Error != nil {
		return false, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to reserve stock")
	}
	return result.RowsAffected == 1, nil
}

// Restock returns sold units to finite stock; unlimited items are untouched.
func (r *ItemRepository) Restock(ctx context.Context, id string, qty int64) error {
	result := r.db.WithContext(ctx).Model(&models.Item{}).
		Where("id = ? AND current_stock <> ?", id, models.UnlimitedStock).
		UpdateColumns(map[string]interface{}{
			"current_stock": gorm.Expr("current_stock + ?", qty),
			"updated_at":    time.Now().UTC(),
		})
	if result.Error != nil {
		return errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to restock item")
	}
	return nil
}

func (r *ItemRepository) SetStock(ctx context.Context, id string, stock int64) error {
	return r.updateColumns(ctx, id, map[string]interface{}{"current_stock": stock})
}

func (r *ItemRepository) SetActive(ctx context.Context, id string, active bool) error {
	return r.updateColumns(ctx, id, map[string]interface{}{"is_active": active})
}

func (r *ItemRepository) updateColumns(ctx context.Context, id string, values map[string]interface{}) error {
	values["updated_at"] = time.Now().UTC()
	result := r.db.WithContext(ctx).Model(&models.Item{}).Where("id = ?", id).UpdateColumns(values)
	if result.Error != nil {
		return errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to update item")
	}
	if result.RowsAffected == 0 {
		return errors.New(errors.ErrCodeNotFound, "item not found")
	}
	return nil
}

// ListActive returns the shop catalog in display order.
func (r *ItemRepository) ListActive(ctx context.Context) ([]models.Item, error) {
	var items []models.Item
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("sort_order, id").
		Find(&items).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to list items")
	}
	return items, nil
}

// Upsert inserts new items and overwrites catalog fields of existing ones.
func (r *ItemRepository) Upsert(ctx context.Context, items []models.Item) error {
	if len(items) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "description", "price", "sell_price", "category", "max_quantity",
			"current_stock", "daily_purchase_limit", "can_sell", "is_active", "sort_order", "updated_at",
		}),
	}).CreateInBatches(&items, 100).Error
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to upsert items")
	}
	return nil
}
