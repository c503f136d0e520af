package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mroshb/shop_economy/internal/models"
	"github.com/mroshb/shop_economy/pkg/utils"
)

// Columns of the catalog sheet, in order. The first row is a header.
var columns = []string{
	"id", "name", "description", "category", "price", "sell_price",
	"max_quantity", "stock", "daily_limit", "can_sell", "active", "sort_order",
}

type rowError struct {
	Row int
	Err error
}

func (e rowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

// parseRows converts sheet rows into items. Bad rows are reported and skipped.
func parseRows(rows [][]string) ([]models.Item, []error) {
	var items []models.Item
	var errs []error

	for i, row := range rows {
		if i == 0 || isBlank(row) {
			continue
		}
		item, err := parseRow(row)
		if err != nil {
			errs = append(errs, rowError{Row: i + 1, Err: err})
			continue
		}
		items = append(items, item)
	}
	return items, errs
}

func parseRow(row []string) (models.Item, error) {
	cell := func(i int) string {
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(utils.NormalizeDigits(row[i]))
	}

	item := models.Item{
		ID:          cell(0),
		Name:        cell(1),
		Description: cell(2),
		Category:    cell(3),
	}
	if item.ID == "" || item.Name == "" {
		return item, fmt.Errorf("id and name are required")
	}

	var err error
	if item.Price, err = requiredInt(cell(4), "price"); err != nil {
		return item, err
	}
	if item.SellPrice, err = optionalInt(cell(5), "sell_price"); err != nil {
		return item, err
	}
	if item.MaxQuantity, err = optionalInt(cell(6), "max_quantity"); err != nil {
		return item, err
	}
	stock, err := optionalInt(cell(7), "stock")
	if err != nil {
		return item, err
	}
	item.CurrentStock = models.UnlimitedStock
	if stock != nil {
		item.CurrentStock = *stock
	}
	if item.DailyPurchaseLimit, err = optionalInt(cell(8), "daily_limit"); err != nil {
		return item, err
	}
	if item.CanSell, err = parseBool(cell(9), false); err != nil {
		return item, fmt.Errorf("can_sell: %w", err)
	}
	if item.IsActive, err = parseBool(cell(10), true); err != nil {
		return item, fmt.Errorf("active: %w", err)
	}
	if sort := cell(11); sort != "" {
		if item.SortOrder, err = strconv.Atoi(sort); err != nil {
			return item, fmt.Errorf("sort_order %q is not a number", sort)
		}
	}
	return item, nil
}

func requiredInt(raw, name string) (int64, error) {
	if raw == "" {
		return 0, fmt.Errorf("%s is required", name)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s %q is not a number", name, raw)
	}
	return n, nil
}

func optionalInt(raw, name string) (*int64, error) {
	if raw == "" {
		return nil, nil
	}
	n, err := requiredInt(raw, name)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func parseBool(raw string, def bool) (bool, error) {
	switch strings.ToLower(raw) {
	case "":
		return def, nil
	case "1", "true", "yes", "y":
		return true, nil
	case "0", "false", "no", "n":
		return false, nil
	}
	return false, fmt.Errorf("%q is not a yes/no value", raw)
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
