package models

import "time"

// UnlimitedStock marks an item whose stock is never decremented.
const UnlimitedStock int64 = -1

const CategoryMembership = "membership"

// Item is a catalog entry. Boolean and stock columns carry no gorm defaults:
// gorm skips zero values for defaulted fields on insert, which would turn
// CanSell=false or CurrentStock=0 into the column default.
type Item struct {
	ID                 string    `gorm:"primaryKey;type:varchar(64)"`
	Name               string    `gorm:"type:varchar(255);not null"`
	Description        string    `gorm:"type:text"`
	Price              int64     `gorm:"not null"`
	SellPrice          *int64
	Category           string    `gorm:"type:varchar(50);not null;index"`
	MaxQuantity        *int64
	CurrentStock       int64     `gorm:"not null;check:chk_items_stock,current_stock >= -1"`
	DailyPurchaseLimit *int64
	CanSell            bool      `gorm:"not null"`
	IsActive           bool      `gorm:"not null;index"`
	SortOrder          int       `gorm:"not null"`
	CreatedAt          time.Time `gorm:"autoCreateTime"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime"`
}

func (i *Item) Unlimited() bool {
	return i.CurrentStock == UnlimitedStock
}

func (i *Item) IsMembership() bool {
	return i.Category == CategoryMembership
}

func (Item) TableName() string {
	return "items"
}

// Holding is the quantity of one item owned by one user. Rows are kept at zero.
type Holding struct {
	UserID    string    `gorm:"primaryKey;type:varchar(64)"`
	ItemID    string    `gorm:"primaryKey;type:varchar(64);index"`
	Quantity  int64     `gorm:"not null;check:chk_holdings_quantity_non_negative,quantity >= 0"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (Holding) TableName() string {
	return "holdings"
}

// Int64Ptr is a helper for the nullable item caps.
func Int64Ptr(v int64) *int64 {
	return &v
}
