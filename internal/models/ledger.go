package models

import (
	"time"

	"github.com/mroshb/shop_economy/internal/clock"
)

// LedgerEntry is one immutable row of the transaction log.
// BalanceAfter always equals BalanceBefore + TotalAmount.
type LedgerEntry struct {
	ID              uint       `gorm:"primaryKey"`
	OperationID     string     `gorm:"type:varchar(36);not null;uniqueIndex"`
	UserID          string     `gorm:"type:varchar(64);not null;index;index:idx_ledger_daily,priority:1"`
	ItemID          *string    `gorm:"type:varchar(64);index:idx_ledger_daily,priority:2"`
	Type            string     `gorm:"type:varchar(32);not null;index;index:idx_ledger_daily,priority:3"`
	Quantity        int64      `gorm:"not null"`
	UnitPrice       int64      `gorm:"not null"`
	TotalAmount     int64      `gorm:"not null"`
	BalanceBefore   int64      `gorm:"not null"`
	BalanceAfter    int64      `gorm:"not null"`
	TransactionDate clock.Date `gorm:"type:varchar(10);not null;index;index:idx_ledger_daily,priority:4"`
	AdminUserID     *string    `gorm:"type:varchar(64)"`
	RelatedID       *uint
	Notes           string     `gorm:"type:text"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index"`
}

// Ledger entry types
const (
	EntryTypeBuy                = "buy"
	EntryTypeSell               = "sell"
	EntryTypeAdmin              = "admin"
	EntryTypeDailyReward        = "daily_reward"
	EntryTypeMembershipPurchase = "membership_purchase"
)

var EntryTypes = []string{
	EntryTypeBuy,
	EntryTypeSell,
	EntryTypeAdmin,
	EntryTypeDailyReward,
	EntryTypeMembershipPurchase,
}

func ValidEntryType(t string) bool {
	for _, et := range EntryTypes {
		if et == t {
			return true
		}
	}
	return false
}

// Consistent reports whether the row satisfies its own balance equation.
func (e *LedgerEntry) Consistent() bool {
	return e.BalanceAfter == e.BalanceBefore+e.TotalAmount
}

func (LedgerEntry) TableName() string {
	return "ledger_entries"
}

func StringPtr(s string) *string {
	return &s
}
