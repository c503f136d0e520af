// Package pricing computes buy costs, sell proceeds and per-item caps.
// Everything here is pure; callers pass the item snapshot and the current rates.
//
// Rounding: buy tax is rounded up to the next whole coin, sell proceeds are
// rounded down.
package pricing

import (
	"fmt"
	"math"

	"github.com/mroshb/shop_economy/internal/models"
	"github.com/mroshb/shop_economy/pkg/errors"
	"github.com/shopspring/decimal"
)

// MaxOrderQuantity caps one buy or sell regardless of the item's own caps.
const MaxOrderQuantity int64 = 1_000_000

var maxCoins = decimal.NewFromInt(math.MaxInt64)

type Cost struct {
	Base  int64
	Tax   int64
	Total int64
}

type Proceeds struct {
	Unit  int64
	Total int64
}

// toCoins converts an exact amount to coins, rejecting anything a balance
// cannot hold.
func toCoins(d decimal.Decimal) (int64, error) {
	if d.IsNegative() {
		return 0, errors.Newf(errors.ErrCodeValidation, "amount %s is negative", d)
	}
	if d.GreaterThan(maxCoins) {
		return 0, errors.Newf(errors.ErrCodeQuantityExceedsLimit, "amount %s is more than any balance can hold", d)
	}
	return d.IntPart(), nil
}

// MulCoins returns a*b, or an error when the product leaves the coin range.
func MulCoins(a, b int64) (int64, error) {
	return toCoins(decimal.NewFromInt(a).Mul(decimal.NewFromInt(b)))
}

// AddCoins returns a+b, or an error when the sum leaves the coin range.
func AddCoins(a, b int64) (int64, error) {
	return toCoins(decimal.NewFromInt(a).Add(decimal.NewFromInt(b)))
}

// BuyCost returns price*qty plus ceil(price*qty*taxRate).
func BuyCost(item *models.Item, qty int64, taxRate float64) (Cost, error) {
	if qty <= 0 {
		return Cost{}, errors.New(errors.ErrCodeValidation, "quantity must be positive")
	}
	base := decimal.NewFromInt(item.Price).Mul(decimal.NewFromInt(qty))
	tax := base.Mul(decimal.NewFromFloat(taxRate)).Ceil()

	baseCoins, err := toCoins(base)
	if err != nil {
		return Cost{}, err
	}
	total, err := toCoins(base.Add(tax))
	if err != nil {
		return Cost{}, err
	}
	return Cost{Base: baseCoins, Tax: total - baseCoins, Total: total}, nil
}

// UnitSellPrice is the explicit sell price when set, else floor(price*sellRate).
func UnitSellPrice(item *models.Item, sellRate float64) int64 {
	if item.SellPrice != nil {
		return *item.SellPrice
	}
	return decimal.NewFromInt(item.Price).
		Mul(decimal.NewFromFloat(sellRate)).
		Floor().
		IntPart()
}

func SellProceeds(item *models.Item, qty int64, sellRate float64) (Proceeds, error) {
	if qty <= 0 {
		return Proceeds{}, errors.New(errors.ErrCodeValidation, "quantity must be positive")
	}
	unit := UnitSellPrice(item, sellRate)
	total, err := MulCoins(unit, qty)
	if err != nil {
		return Proceeds{}, err
	}
	return Proceeds{Unit: unit, Total: total}, nil
}

// CheckCaps applies the order caps in a fixed order: max quantity, finite
// stock, then the per-day purchase limit.
func CheckCaps(item *models.Item, qty, alreadyPurchasedToday int64) error {
	if qty > MaxOrderQuantity {
		return errors.Newf(errors.ErrCodeQuantityExceedsLimit,
			"quantity %d exceeds the per-order maximum of %d", qty, MaxOrderQuantity)
	}
	if item.MaxQuantity != nil && qty > *item.MaxQuantity {
		return errors.Newf(errors.ErrCodeQuantityExceedsLimit,
			"quantity %d exceeds the per-order maximum of %d", qty, *item.MaxQuantity)
	}
	if !item.Unlimited() && item.CurrentStock < qty {
		return errors.Newf(errors.ErrCodeInsufficientStock,
			"only %d left in stock, requested %d", item.CurrentStock, qty)
	}
	if item.DailyPurchaseLimit != nil && qty > *item.DailyPurchaseLimit-alreadyPurchasedToday {
		remaining := *item.DailyPurchaseLimit - alreadyPurchasedToday
		if remaining < 0 {
			remaining = 0
		}
		return errors.Newf(errors.ErrCodeDailyLimitExceeded,
			"daily limit is %d, %d remaining today", *item.DailyPurchaseLimit, remaining)
	}
	return nil
}

func ValidateRates(taxRate, sellRate float64) error {
	if taxRate < 0 {
		return fmt.Errorf("tax rate must not be negative, got %v", taxRate)
	}
	if sellRate < 0 || sellRate > 1 {
		return fmt.Errorf("sell rate must be within [0,1], got %v", sellRate)
	}
	return nil
}
