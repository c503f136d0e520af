package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mroshb/shop_economy/internal/clock"
	"github.com/mroshb/shop_economy/internal/models"
	"github.com/mroshb/shop_economy/pkg/errors"
	"gorm.io/gorm"
)

// LedgerRepository appends to and reads the transaction log. It never
// updates or deletes entries.
type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) WithTx(tx *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: tx}
}

// Append writes one entry, assigning an operation id when missing.
func (r *LedgerRepository) Append(ctx context.Context, entry *models.LedgerEntry) error {
	if !entry.Consistent() {
		return errors.Newf(errors.ErrCodeInvariantViolation,
			"entry for user %s does not balance: %d + %d != %d",
			entry.UserID, entry.BalanceBefore, entry.TotalAmount, entry.BalanceAfter)
	}
	if entry.OperationID == "" {
		entry.OperationID = uuid.NewString()
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to append ledger entry")
	}
	return nil
}

// SumBoughtOn totals the quantity of buy entries for one user, item and day.
func (r *LedgerRepository) SumBoughtOn(ctx context.Context, userID, itemID string, day clock.Date) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.LedgerEntry{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("user_id = ? AND item_id = ? AND type = ? AND transaction_date = ?",
			userID, itemID, models.EntryTypeBuy, day).
		Scan(&total).Error
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternalError, "failed to sum daily purchases")
	}
	return total, nil
}

// History returns the user's most recent entries, newest first.
func (r *LedgerRepository) History(ctx context.Context, userID string, limit int) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	result := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Find(&entries)

	if result.Error != nil {
		return nil, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to get transaction history")
	}

	return entries, nil
}

// Chain returns all of a user's entries in append order. Appends for one
// user run under that user's row lock, so id order is commit order.
func (r *LedgerRepository) Chain(ctx context.Context, userID string) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id ASC").Find(&entries).Error; err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to load ledger chain")
	}
	return entries, nil
}

// LedgerFilter narrows exports and listings; zero values mean "any".
type LedgerFilter struct {
	UserID string
	Type   string
	From   clock.Date
	To     clock.Date
	Since  time.Time
	Limit  int
}

func (r *LedgerRepository) Find(ctx context.Context, f LedgerFilter) ([]models.LedgerEntry, error) {
	q := r.db.WithContext(ctx).Model(&models.LedgerEntry{})
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if !f.From.IsZero() {
		q = q.Where("transaction_date >= ?", f.From)
	}
	if !f.To.IsZero() {
		q = q.Where("transaction_date <= ?", f.To)
	}
	if !f.Since.IsZero() {
		q = q.Where("created_at >= ?", f.Since)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var entries []models.LedgerEntry
	if err := q.Order("id DESC").Find(&entries).Error; err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to query ledger")
	}
	return entries, nil
}
