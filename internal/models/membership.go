package models

import (
	"time"

	"github.com/mroshb/shop_economy/internal/clock"
)

// Membership is a reward window. History rows are deactivated, never deleted;
// a partial unique index keeps at most one active row per user.
type Membership struct {
	ID               uint       `gorm:"primaryKey"`
	UserID           string     `gorm:"type:varchar(64);not null;index"`
	PlanID           string     `gorm:"type:varchar(64);not null"`
	StartDate        clock.Date `gorm:"type:varchar(10);not null"`
	EndDate          clock.Date `gorm:"type:varchar(10);not null;index"`
	DailyRewardCoins int64      `gorm:"not null"`
	IsActive         bool       `gorm:"not null;index"`
	CreatedAt        time.Time  `gorm:"autoCreateTime"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime"`
}

// ValidOn reports whether the membership pays rewards on day.
func (m *Membership) ValidOn(day clock.Date) bool {
	return m.IsActive && !m.EndDate.Before(day)
}

// DaysRemaining counts calendar days left including day itself; zero when expired.
func (m *Membership) DaysRemaining(day clock.Date) int {
	if !m.ValidOn(day) {
		return 0
	}
	return m.EndDate.DaysSince(day) + 1
}

func (Membership) TableName() string {
	return "memberships"
}

// DailyRewardClaim records one rewarded calendar day. The unique index on
// (user, membership, day) is what makes catch-up claims idempotent.
type DailyRewardClaim struct {
	ID           uint       `gorm:"primaryKey"`
	UserID       string     `gorm:"type:varchar(64);not null;uniqueIndex:idx_claim_unique,priority:1"`
	MembershipID uint       `gorm:"not null;uniqueIndex:idx_claim_unique,priority:2"`
	RewardDate   clock.Date `gorm:"type:varchar(10);not null;uniqueIndex:idx_claim_unique,priority:3"`
	RewardCoins  int64      `gorm:"not null"`
	ClaimedAt    time.Time  `gorm:"autoCreateTime"`
}

func (DailyRewardClaim) TableName() string {
	return "daily_reward_claims"
}

// SystemConfig is the persisted key/value source behind the settings provider.
type SystemConfig struct {
	ConfigKey   string    `gorm:"primaryKey;type:varchar(100)"`
	ConfigValue string    `gorm:"type:varchar(255);not null"`
	Description string    `gorm:"type:varchar(255)"`
	IsActive    bool      `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

func (SystemConfig) TableName() string {
	return "system_config"
}
