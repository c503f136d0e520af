// Package settings resolves named economy parameters (tax rate, sell rate,
// plan durations...) from a key/value source with documented fallbacks.
package settings

import (
	"context"
	"strconv"
	"sync"

	"github.com/mroshb/shop_economy/pkg/logger"
)

const (
	KeyTaxRate         = "shop_tax_rate"
	KeySellRate        = "sell_rate"
	KeyDefaultCoins    = "default_user_coins"
	KeyMaxMissedReward = "membership_max_missed_rewards"

	KeyMonthlyDuration   = "membership_duration_days"
	KeyWeeklyDuration    = "weekly_membership_duration_days"
	KeyQuarterlyDuration = "quarterly_membership_duration_days"
	KeyVIPDuration       = "vip_membership_duration_days"

	KeyMembershipReward = "membership_daily_reward"
	KeyPremiumReward    = "premium_membership_daily_reward"
	KeyVIPReward        = "vip_membership_daily_reward"
)

// Defaults apply whenever a key is absent or unparsable.
var Defaults = map[string]string{
	KeyTaxRate:           "0.05",
	KeySellRate:          "0.8",
	KeyDefaultCoins:      "3000",
	KeyMaxMissedReward:   "7",
	KeyMonthlyDuration:   "30",
	KeyWeeklyDuration:    "7",
	KeyQuarterlyDuration: "90",
	KeyVIPDuration:       "30",
	KeyMembershipReward:  "100",
	KeyPremiumReward:     "200",
	KeyVIPReward:         "300",
}

var descriptions = map[string]string{
	KeyTaxRate:           "Tax applied on top of buy cost",
	KeySellRate:          "Fraction of price paid when selling without an explicit sell price",
	KeyDefaultCoins:      "Starting balance of new users",
	KeyMaxMissedReward:   "Missed reward days still paid on catch-up",
	KeyMonthlyDuration:   "Monthly and premium membership length in days",
	KeyWeeklyDuration:    "Weekly membership length in days",
	KeyQuarterlyDuration: "Quarterly membership length in days",
	KeyVIPDuration:       "VIP membership length in days",
	KeyMembershipReward:  "Daily reward of standard memberships",
	KeyPremiumReward:     "Daily reward of premium membership",
	KeyVIPReward:         "Daily reward of VIP membership",
}

func Description(key string) string {
	return descriptions[key]
}

// Provider is what the engines consume.
type Provider interface {
	String(ctx context.Context, key string) string
	Int(ctx context.Context, key string) int64
	Float(ctx context.Context, key string) float64
}

// Source looks a raw value up; ok is false when the key is not set.
type Source interface {
	Lookup(ctx context.Context, key string) (value string, ok bool, err error)
}

// Resolver layers a Source over Defaults.
type Resolver struct {
	source   Source
	defaults map[string]string
}

func NewResolver(source Source) *Resolver {
	return &Resolver{source: source, defaults: Defaults}
}

func (r *Resolver) String(ctx context.Context, key string) string {
	if r.source != nil {
		value, ok, err := r.source.Lookup(ctx, key)
		if err != nil {
			logger.Warn("Settings lookup failed, using default", "key", key, "error", err)
		} else if ok {
			return value
		}
	}
	return r.defaults[key]
}

func (r *Resolver) Int(ctx context.Context, key string) int64 {
	if v, err := strconv.ParseInt(r.String(ctx, key), 10, 64); err == nil {
		return v
	}
	v, _ := strconv.ParseInt(r.defaults[key], 10, 64)
	logger.Warn("Settings value is not an integer, using default", "key", key, "default", v)
	return v
}

func (r *Resolver) Float(ctx context.Context, key string) float64 {
	if v, err := strconv.ParseFloat(r.String(ctx, key), 64); err == nil {
		return v
	}
	v, _ := strconv.ParseFloat(r.defaults[key], 64)
	logger.Warn("Settings value is not a number, using default", "key", key, "default", v)
	return v
}

// MapSource is an in-memory Source, used by tests and tools.
type MapSource struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMapSource(values map[string]string) *MapSource {
	m := &MapSource{values: make(map[string]string, len(values))}
	for k, v := range values {
		m.values[k] = v
	}
	return m
}

func (m *MapSource) Lookup(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MapSource) Set(key, value string) {
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()
}
