package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	ID          string     `gorm:"primaryKey;type:varchar(64)"`
	Username    string     `gorm:"type:varchar(100);index"`
	DisplayName string     `gorm:"type:varchar(255)"`
	Coins       int64      `gorm:"not null;check:chk_users_coins_non_negative,coins >= 0"`
	Status      string     `gorm:"type:varchar(20);not null;index"`
	IsAdmin     bool       `gorm:"not null"`
	LastLoginAt *time.Time
	CreatedAt   time.Time  `gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime"`
}

// User status constants
const (
	UserStatusActive   = "active"
	UserStatusInactive = "inactive"
	UserStatusBanned   = "banned"
)

func ValidUserStatus(status string) bool {
	switch status {
	case UserStatusActive, UserStatusInactive, UserStatusBanned:
		return true
	}
	return false
}

// BeforeCreate rejects rows that would break the balance or status domain.
// Balance mutations never go through hooks; they are column updates inside ledger transactions.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		return gorm.ErrInvalidData
	}
	if u.Coins < 0 {
		return gorm.ErrInvalidData
	}
	if !ValidUserStatus(u.Status) {
		return gorm.ErrInvalidData
	}
	return nil
}

func (u *User) IsActive() bool {
	return u.Status == UserStatusActive
}

// TableName specifies the table name
func (User) TableName() string {
	return "users"
}
