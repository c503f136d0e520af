package services

import (
	"context"
	"fmt"

	"github.com/mroshb/shop_economy/internal/clock"
	"github.com/mroshb/shop_economy/internal/models"
	"github.com/mroshb/shop_economy/internal/pricing"
	"github.com/mroshb/shop_economy/internal/repositories"
	"github.com/mroshb/shop_economy/internal/security"
	"github.com/mroshb/shop_economy/internal/settings"
	"github.com/mroshb/shop_economy/pkg/errors"
	"github.com/mroshb/shop_economy/pkg/logger"
	"gorm.io/gorm"
)

type BuyResult struct {
	NewBalance int64
	BaseCost   int64
	Tax        int64
	TotalCost  int64
	EntryID    uint
}

type SellResult struct {
	NewBalance   int64
	UnitProceeds int64
	Proceeds     int64
	EntryID      uint
}

type AdjustResult struct {
	OldBalance int64
	NewBalance int64
	Difference int64
	Changed    bool
	EntryID    uint
}

// EconomyService moves coins between users and the shop.
type EconomyService struct {
	env      Env
	users    *repositories.UserRepository
	items    *repositories.ItemRepository
	holdings *repositories.HoldingRepository
	ledger   *repositories.LedgerRepository
}

func NewEconomyService(env Env) *EconomyService {
	return &EconomyService{
		env:      env,
		users:    repositories.NewUserRepository(env.DB),
		items:    repositories.NewItemRepository(env.DB),
		holdings: repositories.NewHoldingRepository(env.DB),
		ledger:   repositories.NewLedgerRepository(env.DB),
	}
}

// validateQuantity rejects order sizes before any storage access.
func validateQuantity(qty int64) error {
	if qty <= 0 {
		return errors.New(errors.ErrCodeValidation, "quantity must be positive")
	}
	if qty > pricing.MaxOrderQuantity {
		return errors.Newf(errors.ErrCodeQuantityExceedsLimit,
			"quantity %d exceeds the per-order maximum of %d", qty, pricing.MaxOrderQuantity)
	}
	return nil
}

// lockActiveUser locks the user row and rejects disabled accounts.
func lockActiveUser(ctx context.Context, users *repositories.UserRepository, userID string) (*models.User, error) {
	user, err := users.LockUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive() {
		return nil, errors.Newf(errors.ErrCodeAccountDisabled, "account is %s", user.Status)
	}
	return user, nil
}

// Buy purchases quantity units of a regular catalog item.
func (s *EconomyService) Buy(ctx context.Context, userID, itemID string, quantity int64) (*BuyResult, error) {
	if err := validateID("user", userID); err != nil {
		return nil, err
	}
	if err := validateID("item", itemID); err != nil {
		return nil, err
	}
	if err := validateQuantity(quantity); err != nil {
		return nil, err
	}

	taxRate := s.env.Settings.Float(ctx, settings.KeyTaxRate)
	if err := pricing.ValidateRates(taxRate, 0); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "invalid pricing settings")
	}
	today := s.env.Clock.Today()

	var result *BuyResult
	err := s.env.inTx(ctx, "buy", false, func(ctx context.Context, tx *gorm.DB) error {
		r, err := s.buy(ctx, tx, userID, itemID, quantity, taxRate, today)
		result = r
		return err
	})
	if err != nil {
		logRejected("buy", err, "user_id", userID, "item_id", itemID, "quantity", quantity)
		return nil, err
	}

	logger.Info("Item purchased",
		"user_id", userID,
		"item_id", itemID,
		"quantity", quantity,
		"total_cost", result.TotalCost,
		"balance", result.NewBalance,
		"entry_id", result.EntryID,
	)
	return result, nil
}

func (s *EconomyService) buy(ctx context.Context, tx *gorm.DB, userID, itemID string, qty int64, taxRate float64, today clock.Date) (*BuyResult, error) {
	users := s.users.WithTx(tx)
	items := s.items.WithTx(tx)
	ledger := s.ledger.WithTx(tx)

	user, err := lockActiveUser(ctx, users, userID)
	if err != nil {
		return nil, err
	}

	item, err := items.GetItemByID(ctx, itemID)
	if errors.IsCode(err, errors.ErrCodeNotFound) {
		return nil, errors.Newf(errors.ErrCodeItemUnavailable, "item %s does not exist", itemID)
	}
	if err != nil {
		return nil, err
	}
	if !item.IsActive {
		return nil, errors.Newf(errors.ErrCodeItemUnavailable, "item %s is not for sale", itemID)
	}
	if item.IsMembership() {
		return nil, errors.New(errors.ErrCodeValidation, "memberships are bought with the membership command")
	}

	var boughtToday int64
	if item.DailyPurchaseLimit != nil {
		if boughtToday, err = ledger.SumBoughtOn(ctx, userID, itemID, today); err != nil {
			return nil, err
		}
	}
	if err := pricing.CheckCaps(item, qty, boughtToday); err != nil {
		return nil, err
	}

	cost, err := pricing.BuyCost(item, qty, taxRate)
	if err != nil {
		return nil, err
	}
	if item.Price > 0 && cost.Total <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvariantViolation, "priced item %s computed a cost of %d", itemID, cost.Total)
	}

	ok, err := users.Debit(ctx, userID, cost.Total)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Newf(errors.ErrCodeInsufficientCoins,
			"costs %d coins, balance is %d", cost.Total, user.Coins)
	}

	if !item.Unlimited() {
		ok, err := items.ReserveStock(ctx, itemID, qty)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.Newf(errors.ErrCodeInsufficientStock, "item %s sold out", itemID)
		}
	}

	if err := s.holdings.WithTx(tx).Add(ctx, userID, itemID, qty); err != nil {
		return nil, err
	}

	entry := &models.LedgerEntry{
		UserID:          userID,
		ItemID:          models.StringPtr(itemID),
		Type:            models.EntryTypeBuy,
		Quantity:        qty,
		UnitPrice:       item.Price,
		TotalAmount:     -cost.Total,
		BalanceBefore:   user.Coins,
		BalanceAfter:    user.Coins - cost.Total,
		TransactionDate: today,
		Notes:           fmt.Sprintf("base %d, tax %d", cost.Base, cost.Tax),
	}
	if err := ledger.Append(ctx, entry); err != nil {
		return nil, err
	}

	return &BuyResult{
		NewBalance: entry.BalanceAfter,
		BaseCost:   cost.Base,
		Tax:        cost.Tax,
		TotalCost:  cost.Total,
		EntryID:    entry.ID,
	}, nil
}

// Sell returns owned units to the shop for coins.
func (s *EconomyService) Sell(ctx context.Context, userID, itemID string, quantity int64) (*SellResult, error) {
	if err := validateID("user", userID); err != nil {
		return nil, err
	}
	if err := validateID("item", itemID); err != nil {
		return nil, err
	}
	if err := validateQuantity(quantity); err != nil {
		return nil, err
	}

	sellRate := s.env.Settings.Float(ctx, settings.KeySellRate)
	if err := pricing.ValidateRates(0, sellRate); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "invalid pricing settings")
	}
	today := s.env.Clock.Today()

	var result *SellResult
	err := s.env.inTx(ctx, "sell", false, func(ctx context.Context, tx *gorm.DB) error {
		r, err := s.sell(ctx, tx, userID, itemID, quantity, sellRate, today)
		result = r
		return err
	})
	if err != nil {
		logRejected("sell", err, "user_id", userID, "item_id", itemID, "quantity", quantity)
		return nil, err
	}

	logger.Info("Item sold",
		"user_id", userID,
		"item_id", itemID,
		"quantity", quantity,
		"proceeds", result.Proceeds,
		"balance", result.NewBalance,
		"entry_id", result.EntryID,
	)
	return result, nil
}

func (s *EconomyService) sell(ctx context.Context, tx *gorm.DB, userID, itemID string, qty int64, sellRate float64, today clock.Date) (*SellResult, error) {
	users := s.users.WithTx(tx)
	items := s.items.WithTx(tx)

	user, err := lockActiveUser(ctx, users, userID)
	if err != nil {
		return nil, err
	}

	item, err := items.GetItemByID(ctx, itemID)
	if errors.IsCode(err, errors.ErrCodeNotFound) {
		return nil, errors.Newf(errors.ErrCodeItemNotSellable, "item %s does not exist", itemID)
	}
	if err != nil {
		return nil, err
	}
	if !item.CanSell {
		return nil, errors.Newf(errors.ErrCodeItemNotSellable, "item %s cannot be sold", itemID)
	}

	ok, err := s.holdings.WithTx(tx).Remove(ctx, userID, itemID, qty)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Newf(errors.ErrCodeInsufficientHoldings, "you do not own %d of %s", qty, itemID)
	}

	proceeds, err := pricing.SellProceeds(item, qty, sellRate)
	if err != nil {
		return nil, err
	}
	if _, err := pricing.AddCoins(user.Coins, proceeds.Total); err != nil {
		return nil, err
	}

	if err := items.Restock(ctx, itemID, qty); err != nil {
		return nil, err
	}
	if err := users.Credit(ctx, userID, proceeds.Total); err != nil {
		return nil, err
	}

	entry := &models.LedgerEntry{
		UserID:          userID,
		ItemID:          models.StringPtr(itemID),
		Type:            models.EntryTypeSell,
		Quantity:        qty,
		UnitPrice:       proceeds.Unit,
		TotalAmount:     proceeds.Total,
		BalanceBefore:   user.Coins,
		BalanceAfter:    user.Coins + proceeds.Total,
		TransactionDate: today,
	}
	if err := s.ledger.WithTx(tx).Append(ctx, entry); err != nil {
		return nil, err
	}

	return &SellResult{
		NewBalance:   entry.BalanceAfter,
		UnitProceeds: proceeds.Unit,
		Proceeds:     proceeds.Total,
		EntryID:      entry.ID,
	}, nil
}

// AdminAdjustBalance sets a user's balance to newBalance and records the delta.
// Setting the current balance again changes nothing and writes no entry.
func (s *EconomyService) AdminAdjustBalance(ctx context.Context, actor Actor, userID string, newBalance int64, reason string) (*AdjustResult, error) {
	if err := actor.requireAdmin(); err != nil {
		logRejected("admin_adjust", err, "actor", actor.UserID, "user_id", userID)
		return nil, err
	}
	if err := validateID("user", userID); err != nil {
		return nil, err
	}
	if newBalance < 0 {
		return nil, errors.New(errors.ErrCodeValidation, "balance must not be negative")
	}
	reason = security.SanitizeNote(reason)
	today := s.env.Clock.Today()

	var result *AdjustResult
	err := s.env.inTx(ctx, "admin_adjust", false, func(ctx context.Context, tx *gorm.DB) error {
		users := s.users.WithTx(tx)

		user, err := users.LockUser(ctx, userID)
		if err != nil {
			return err
		}

		delta := newBalance - user.Coins
		result = &AdjustResult{OldBalance: user.Coins, NewBalance: newBalance, Difference: delta}
		if delta == 0 {
			return nil
		}

		if err := users.SetBalance(ctx, userID, newBalance); err != nil {
			return err
		}
		entry := &models.LedgerEntry{
			UserID:          userID,
			Type:            models.EntryTypeAdmin,
			TotalAmount:     delta,
			BalanceBefore:   user.Coins,
			BalanceAfter:    newBalance,
			TransactionDate: today,
			AdminUserID:     models.StringPtr(actor.UserID),
			Notes:           reason,
		}
		if err := s.ledger.WithTx(tx).Append(ctx, entry); err != nil {
			return err
		}
		result.Changed = true
		result.EntryID = entry.ID
		return nil
	})
	if err != nil {
		logRejected("admin_adjust", err, "actor", actor.UserID, "user_id", userID)
		return nil, err
	}

	if result.Changed {
		logger.Info("Balance adjusted by admin",
			"actor", actor.UserID,
			"user_id", userID,
			"old_balance", result.OldBalance,
			"new_balance", result.NewBalance,
			"entry_id", result.EntryID,
		)
	}
	return result, nil
}
