package services

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/mroshb/shop_economy/internal/models"
	"github.com/mroshb/shop_economy/internal/pricing"
	"github.com/mroshb/shop_economy/internal/repositories"
	"github.com/mroshb/shop_economy/internal/settings"
	"github.com/mroshb/shop_economy/pkg/errors"
	"github.com/xuri/excelize/v2"
)

const (
	DefaultHistoryLimit = 10
	MaxHistoryLimit     = 100
	SheetLedger         = "Ledger"
	SheetSummary        = "Summary"
)

type SystemStats struct {
	Users       repositories.UserCounts
	Items       repositories.ItemCounts
	Memberships repositories.MembershipCounts
	Ledger      []repositories.TypeTotal
	Today       []repositories.TypeTotal
}

// TodayEntries is the number of ledger entries dated today.
func (s *SystemStats) TodayEntries() int64 {
	var n int64
	for _, t := range s.Today {
		n += t.Count
	}
	return n
}

type UserStats struct {
	UserID  string
	Balance int64
	Totals  []repositories.TypeTotal
}

type InventoryValue struct {
	UniqueItems   int
	TotalQuantity int64
	SellValue     int64
	Lines         []repositories.InventoryLine
}

// ReportService serves read-only views. Nothing here feeds a mutation.
type ReportService struct {
	env      Env
	reports  *repositories.ReportRepository
	ledger   *repositories.LedgerRepository
	holdings *repositories.HoldingRepository
	userRepo *repositories.UserRepository
}

func NewReportService(env Env) *ReportService {
	return &ReportService{
		env:      env,
		reports:  repositories.NewReportRepository(env.DB),
		ledger:   repositories.NewLedgerRepository(env.DB),
		holdings: repositories.NewHoldingRepository(env.DB),
		userRepo: repositories.NewUserRepository(env.DB),
	}
}

func (s *ReportService) SystemStats(ctx context.Context) (*SystemStats, error) {
	today := s.env.Clock.Today()
	stats := &SystemStats{}

	err := s.env.read(ctx, "system_stats", func(ctx context.Context) error {
		var err error
		if stats.Users, err = s.reports.UserCounts(ctx); err != nil {
			return err
		}
		if stats.Items, err = s.reports.ItemCounts(ctx); err != nil {
			return err
		}
		if stats.Memberships, err = s.reports.MembershipCounts(ctx, today); err != nil {
			return err
		}
		if stats.Ledger, err = s.reports.TotalsByType(ctx, "", ""); err != nil {
			return err
		}
		stats.Today, err = s.reports.TotalsByType(ctx, "", today)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *ReportService) UserStats(ctx context.Context, userID string) (*UserStats, error) {
	if err := validateID("user", userID); err != nil {
		return nil, err
	}

	stats := &UserStats{UserID: userID}
	err := s.env.read(ctx, "user_stats", func(ctx context.Context) error {
		user, err := s.userRepo.GetUserByID(ctx, userID)
		if err != nil {
			return err
		}
		stats.Balance = user.Coins
		stats.Totals, err = s.reports.TotalsByType(ctx, userID, "")
		return err
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// ItemPriceTrends covers the last days calendar days including today.
func (s *ReportService) ItemPriceTrends(ctx context.Context, itemID string, days int) ([]repositories.DailyPrice, error) {
	if err := validateID("item", itemID); err != nil {
		return nil, err
	}
	if days <= 0 {
		return nil, errors.New(errors.ErrCodeValidation, "days must be positive")
	}
	since := s.env.Clock.Today().AddDays(-(days - 1))

	var rows []repositories.DailyPrice
	err := s.env.read(ctx, "price_trends", func(ctx context.Context) error {
		r, err := s.reports.PriceTrends(ctx, itemID, since)
		rows = r
		return err
	})
	return rows, err
}

func (s *ReportService) PopularItems(ctx context.Context, days, limit int) ([]repositories.ItemPopularity, error) {
	if days <= 0 || limit <= 0 {
		return nil, errors.New(errors.ErrCodeValidation, "days and limit must be positive")
	}
	since := s.env.Clock.Today().AddDays(-(days - 1))

	var rows []repositories.ItemPopularity
	err := s.env.read(ctx, "popular_items", func(ctx context.Context) error {
		r, err := s.reports.PopularItems(ctx, since, limit)
		rows = r
		return err
	})
	return rows, err
}

// InventoryValue prices holdings at what selling them would pay now.
// Items that cannot be sold count toward quantity but not value.
func (s *ReportService) InventoryValue(ctx context.Context, userID string) (*InventoryValue, error) {
	if err := validateID("user", userID); err != nil {
		return nil, err
	}
	sellRate := s.env.Settings.Float(ctx, settings.KeySellRate)

	var lines []repositories.InventoryLine
	err := s.env.read(ctx, "inventory", func(ctx context.Context) error {
		l, err := s.holdings.Inventory(ctx, userID)
		lines = l
		return err
	})
	if err != nil {
		return nil, err
	}

	value := &InventoryValue{UniqueItems: len(lines), Lines: lines}
	for _, line := range lines {
		value.TotalQuantity += line.Quantity
		if !line.CanSell {
			continue
		}
		item := &models.Item{Price: line.Price, SellPrice: line.SellPrice}
		value.SellValue += pricing.UnitSellPrice(item, sellRate) * line.Quantity
	}
	return value, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}

func (s *ReportService) History(ctx context.Context, userID string, limit int) ([]models.LedgerEntry, error) {
	if err := validateID("user", userID); err != nil {
		return nil, err
	}
	var entries []models.LedgerEntry
	err := s.env.read(ctx, "history", func(ctx context.Context) error {
		e, err := s.ledger.History(ctx, userID, clampLimit(limit))
		entries = e
		return err
	})
	return entries, err
}

func (s *ReportService) RecentEntries(ctx context.Context, limit int) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := s.env.read(ctx, "recent_entries", func(ctx context.Context) error {
		e, err := s.ledger.Find(ctx, repositories.LedgerFilter{Limit: clampLimit(limit)})
		entries = e
		return err
	})
	return entries, err
}

var ledgerHeader = []interface{}{
	"ID", "Operation", "User", "Item", "Type", "Quantity", "Unit Price",
	"Amount", "Balance Before", "Balance After", "Date", "Admin", "Related", "Notes", "Created At",
}

// ExportLedger writes matching entries as an xlsx workbook and returns the row count.
func (s *ReportService) ExportLedger(ctx context.Context, w io.Writer, filter repositories.LedgerFilter) (int, error) {
	var entries []models.LedgerEntry
	err := s.env.read(ctx, "export_ledger", func(ctx context.Context) error {
		e, err := s.ledger.Find(ctx, filter)
		entries = e
		return err
	})
	if err != nil {
		return 0, err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := writeLedgerSheet(f, entries); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternalError, "failed to build ledger sheet")
	}
	if err := writeSummarySheet(f, entries); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternalError, "failed to build summary sheet")
	}
	if err := f.Write(w); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternalError, "failed to write workbook")
	}
	return len(entries), nil
}

func writeLedgerSheet(f *excelize.File, entries []models.LedgerEntry) error {
	if err := f.SetSheetName(f.GetSheetName(0), SheetLedger); err != nil {
		return err
	}
	if err := f.SetSheetRow(SheetLedger, "A1", &ledgerHeader); err != nil {
		return err
	}

	for i, e := range entries {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{
			e.ID, e.OperationID, e.UserID, derefString(e.ItemID), e.Type, e.Quantity, e.UnitPrice,
			e.TotalAmount, e.BalanceBefore, e.BalanceAfter, e.TransactionDate.String(),
			derefString(e.AdminUserID), derefUint(e.RelatedID), e.Notes, e.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		}
		if err := f.SetSheetRow(SheetLedger, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

func writeSummarySheet(f *excelize.File, entries []models.LedgerEntry) error {
	if _, err := f.NewSheet(SheetSummary); err != nil {
		return err
	}

	type agg struct {
		count    int
		quantity int64
		amount   int64
	}
	byType := make(map[string]*agg)
	for _, e := range entries {
		a, ok := byType[e.Type]
		if !ok {
			a = &agg{}
			byType[e.Type] = a
		}
		a.count++
		a.quantity += e.Quantity
		a.amount += e.TotalAmount
	}

	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Strings(types)

	header := []interface{}{"Type", "Entries", "Quantity", "Net Amount"}
	if err := f.SetSheetRow(SheetSummary, "A1", &header); err != nil {
		return err
	}
	var total int64
	for i, t := range types {
		a := byType[t]
		total += a.amount
		row := []interface{}{t, a.count, a.quantity, a.amount}
		if err := f.SetSheetRow(SheetSummary, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return err
		}
	}
	footer := []interface{}{"total", len(entries), "", total}
	return f.SetSheetRow(SheetSummary, fmt.Sprintf("A%d", len(types)+2), &footer)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefUint(v *uint) interface{} {
	if v == nil {
		return ""
	}
	return *v
}
