package repositories

import (
	"context"

	"github.com/mroshb/shop_economy/internal/clock"
	"github.com/mroshb/shop_economy/internal/models"
	"github.com/mroshb/shop_economy/pkg/errors"
	"gorm.io/gorm"
)

// ReportRepository holds the read-only aggregate queries behind the reporting views.
type ReportRepository struct {
	db *gorm.DB
}

func NewReportRepository(db *gorm.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

type TypeTotal struct {
	Type     string
	Count    int64
	Quantity int64
	Amount   int64
}

type DailyPrice struct {
	Day      string
	Type     string
	Count    int64
	Quantity int64
	AvgPrice float64
	MinPrice int64
	MaxPrice int64
}

type ItemPopularity struct {
	ItemID   string
	Name     string
	Buyers   int64
	Quantity int64
	Revenue  int64
}

type UserCounts struct {
	Total  int64
	Active int64
	Banned int64
	Admins int64
}

type ItemCounts struct {
	Total      int64
	Active     int64
	OutOfStock int64
}

type MembershipCounts struct {
	Valid   int64
	Expired int64
	Total   int64
}

func (r *ReportRepository) count(ctx context.Context, model interface{}, dest *int64, query string, args ...interface{}) error {
	q := r.db.WithContext(ctx).Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	return q.Count(dest).Error
}

func (r *ReportRepository) UserCounts(ctx context.Context) (UserCounts, error) {
	var c UserCounts
	err := firstErr(
		r.count(ctx, &models.User{}, &c.Total, ""),
		r.count(ctx, &models.User{}, &c.Active, "status = ?", models.UserStatusActive),
		r.count(ctx, &models.User{}, &c.Banned, "status = ?", models.UserStatusBanned),
		r.count(ctx, &models.User{}, &c.Admins, "is_admin = ?", true),
	)
	if err != nil {
		return c, errors.Wrap(err, errors.ErrCodeInternalError, "failed to count users")
	}
	return c, nil
}

func (r *ReportRepository) ItemCounts(ctx context.Context) (ItemCounts, error) {
	var c ItemCounts
	err := firstErr(
		r.count(ctx, &models.Item{}, &c.Total, ""),
		r.count(ctx, &models.Item{}, &c.Active, "is_active = ?", true),
		r.count(ctx, &models.Item{}, &c.OutOfStock, "current_stock = 0"),
	)
	if err != nil {
		return c, errors.Wrap(err, errors.ErrCodeInternalError, "failed to count items")
	}
	return c, nil
}

func (r *ReportRepository) MembershipCounts(ctx context.Context, today clock.Date) (MembershipCounts, error) {
	var c MembershipCounts
	err := firstErr(
		r.count(ctx, &models.Membership{}, &c.Total, ""),
		r.count(ctx, &models.Membership{}, &c.Valid, "is_active = ? AND end_date >= ?", true, today),
		r.count(ctx, &models.Membership{}, &c.Expired, "is_active = ? OR end_date < ?", false, today),
	)
	if err != nil {
		return c, errors.Wrap(err, errors.ErrCodeInternalError, "failed to count memberships")
	}
	return c, nil
}

// TotalsByType groups ledger entries by type; an empty userID means all users
// and a zero day means all days.
func (r *ReportRepository) TotalsByType(ctx context.Context, userID string, day clock.Date) ([]TypeTotal, error) {
	q := r.db.WithContext(ctx).Model(&models.LedgerEntry{}).
		Select("type, COUNT(*) AS count, COALESCE(SUM(quantity), 0) AS quantity, COALESCE(SUM(total_amount), 0) AS amount")
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	if !day.IsZero() {
		q = q.Where("transaction_date = ?", day)
	}

	var totals []TypeTotal
	if err := q.Group("type").Order("type").Scan(&totals).Error; err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to aggregate ledger")
	}
	return totals, nil
}

// PriceTrends returns per-day price statistics of one item since the given day.
func (r *ReportRepository) PriceTrends(ctx context.Context, itemID string, since clock.Date) ([]DailyPrice, error) {
	var rows []DailyPrice
	err := r.db.WithContext(ctx).Model(&models.LedgerEntry{}).
		Select(`transaction_date AS day, type, COUNT(*) AS count, COALESCE(SUM(quantity), 0) AS quantity,
			AVG(unit_price) AS avg_price, MIN(unit_price) AS min_price, MAX(unit_price) AS max_price`).
		Where("item_id = ? AND transaction_date >= ? AND type IN ?", itemID, since,
			[]string{models.EntryTypeBuy, models.EntryTypeSell}).
		Group("transaction_date, type").
		Order("transaction_date DESC, type").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to aggregate price trends")
	}
	return rows, nil
}

// PopularItems ranks items by quantity bought since the given day.
func (r *ReportRepository) PopularItems(ctx context.Context, since clock.Date, limit int) ([]ItemPopularity, error) {
	var rows []ItemPopularity
	err := r.db.WithContext(ctx).Table("ledger_entries").
		Select(`ledger_entries.item_id, items.name, COUNT(DISTINCT ledger_entries.user_id) AS buyers,
			SUM(ledger_entries.quantity) AS quantity, -SUM(ledger_entries.total_amount) AS revenue`).
		Joins("JOIN items ON items.id = ledger_entries.item_id").
		Where("ledger_entries.type = ? AND ledger_entries.transaction_date >= ?", models.EntryTypeBuy, since).
		Group("ledger_entries.item_id, items.name").
		Order("quantity DESC, ledger_entries.item_id").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to rank items")
	}
	return rows, nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
