package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/mroshb/shop_economy/internal/clock"
	"github.com/mroshb/shop_economy/internal/models"
	"github.com/mroshb/shop_economy/internal/pricing"
	"github.com/mroshb/shop_economy/internal/repositories"
	"github.com/mroshb/shop_economy/internal/settings"
	"github.com/mroshb/shop_economy/pkg/errors"
	"github.com/mroshb/shop_economy/pkg/logger"
	"gorm.io/gorm"
)

// Plan binds a membership catalog item to its duration and reward settings.
type Plan struct {
	ID          string
	DurationKey string
	RewardKey   string
}

var plans = map[string]Plan{
	"weekly_membership":    {ID: "weekly_membership", DurationKey: settings.KeyWeeklyDuration, RewardKey: settings.KeyMembershipReward},
	"monthly_membership":   {ID: "monthly_membership", DurationKey: settings.KeyMonthlyDuration, RewardKey: settings.KeyMembershipReward},
	"quarterly_membership": {ID: "quarterly_membership", DurationKey: settings.KeyQuarterlyDuration, RewardKey: settings.KeyMembershipReward},
	"premium_membership":   {ID: "premium_membership", DurationKey: settings.KeyMonthlyDuration, RewardKey: settings.KeyPremiumReward},
	"vip_membership":       {ID: "vip_membership", DurationKey: settings.KeyVIPDuration, RewardKey: settings.KeyVIPReward},
}

func LookupPlan(id string) (Plan, bool) {
	p, ok := plans[id]
	return p, ok
}

// PlanIDs lists the known plans in a stable order.
func PlanIDs() []string {
	ids := make([]string, 0, len(plans))
	for id := range plans {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// maxClaimConflicts bounds how often a claim re-reads after losing a race.
const maxClaimConflicts = 3

// MaxMembershipDays is how far past today a membership may end.
const MaxMembershipDays = 3660

type MembershipPurchase struct {
	Membership *models.Membership
	Cost       int64
	NewBalance int64
	EntryID    uint
	// Reward is the claim made right after purchase; nil if it failed.
	Reward *ClaimResult
}

type ClaimResult struct {
	MembershipID   uint
	DaysRewarded   int
	TotalAmount    int64
	AlreadyClaimed bool
	FirstDay       clock.Date
	LastDay        clock.Date
	NewBalance     int64
}

type MembershipStatus struct {
	Membership    *models.Membership
	IsValid       bool
	DaysRemaining int
	LastClaim     clock.Date
	ClaimedToday  bool
}

type MembershipService struct {
	env         Env
	users       *repositories.UserRepository
	items       *repositories.ItemRepository
	memberships *repositories.MembershipRepository
	ledger      *repositories.LedgerRepository
}

func NewMembershipService(env Env) *MembershipService {
	return &MembershipService{
		env:         env,
		users:       repositories.NewUserRepository(env.DB),
		items:       repositories.NewItemRepository(env.DB),
		memberships: repositories.NewMembershipRepository(env.DB),
		ledger:      repositories.NewLedgerRepository(env.DB),
	}
}

// BuyMembership buys units consecutive periods of a plan. A still running
// membership is replaced by one that starts where it ends.
func (s *MembershipService) BuyMembership(ctx context.Context, userID, planID string, units int) (*MembershipPurchase, error) {
	if err := validateID("user", userID); err != nil {
		return nil, err
	}
	plan, ok := LookupPlan(planID)
	if !ok {
		return nil, errors.Newf(errors.ErrCodeValidation, "unknown membership plan %q", planID)
	}
	if units <= 0 {
		return nil, errors.New(errors.ErrCodeValidation, "units must be positive")
	}
	if units > MaxMembershipDays {
		return nil, errors.Newf(errors.ErrCodeValidation, "at most %d periods at once", MaxMembershipDays)
	}

	duration := s.env.Settings.Int(ctx, plan.DurationKey)
	reward := s.env.Settings.Int(ctx, plan.RewardKey)
	if duration <= 0 || duration > MaxMembershipDays {
		return nil, errors.Newf(errors.ErrCodeInternalError, "plan %s has an invalid duration of %d days", planID, duration)
	}
	span := int(duration) * units
	if span > MaxMembershipDays {
		return nil, errors.Newf(errors.ErrCodeValidation,
			"%d periods of %d days is more than %d days", units, duration, MaxMembershipDays)
	}
	today := s.env.Clock.Today()

	var result *MembershipPurchase
	err := s.env.inTx(ctx, "buy_membership", false, func(ctx context.Context, tx *gorm.DB) error {
		users := s.users.WithTx(tx)
		memberships := s.memberships.WithTx(tx)

		user, err := lockActiveUser(ctx, users, userID)
		if err != nil {
			return err
		}

		item, err := s.items.WithTx(tx).GetItemByID(ctx, planID)
		if errors.IsCode(err, errors.ErrCodeNotFound) {
			return errors.Newf(errors.ErrCodeItemUnavailable, "plan %s is not in the catalog", planID)
		}
		if err != nil {
			return err
		}
		if !item.IsActive {
			return errors.Newf(errors.ErrCodeItemUnavailable, "plan %s is not for sale", planID)
		}

		cost, err := pricing.MulCoins(item.Price, int64(units))
		if err != nil {
			return err
		}
		ok, err := users.Debit(ctx, userID, cost)
		if err != nil {
			return err
		}
		if !ok {
			return errors.Newf(errors.ErrCodeInsufficientCoins, "costs %d coins, balance is %d", cost, user.Coins)
		}

		prev, err := memberships.LockActive(ctx, userID)
		if err != nil {
			return err
		}
		start := today
		if prev != nil {
			start = clock.MaxDate(today, prev.EndDate)
		}

		end := start.AddDays(span)
		if end.DaysSince(today) > MaxMembershipDays {
			return errors.Newf(errors.ErrCodeValidation,
				"membership would end on %s, more than %d days ahead", end, MaxMembershipDays)
		}

		if err := memberships.DeactivateAll(ctx, userID); err != nil {
			return err
		}
		m := &models.Membership{
			UserID:           userID,
			PlanID:           planID,
			StartDate:        start,
			EndDate:          end,
			DailyRewardCoins: reward,
			IsActive:         true,
		}
		if err := memberships.Create(ctx, m); err != nil {
			return err
		}

		entry := &models.LedgerEntry{
			UserID:          userID,
			ItemID:          models.StringPtr(planID),
			Type:            models.EntryTypeMembershipPurchase,
			Quantity:        int64(units),
			UnitPrice:       item.Price,
			TotalAmount:     -cost,
			BalanceBefore:   user.Coins,
			BalanceAfter:    user.Coins - cost,
			TransactionDate: today,
			RelatedID:       &m.ID,
			Notes:           fmt.Sprintf("%s to %s", m.StartDate, m.EndDate),
		}
		if err := s.ledger.WithTx(tx).Append(ctx, entry); err != nil {
			return err
		}

		result = &MembershipPurchase{Membership: m, Cost: cost, NewBalance: entry.BalanceAfter, EntryID: entry.ID}
		return nil
	})
	if err != nil {
		logRejected("buy_membership", err, "user_id", userID, "plan", planID, "units", units)
		return nil, err
	}

	logger.Info("Membership purchased",
		"user_id", userID,
		"plan", planID,
		"start", result.Membership.StartDate,
		"end", result.Membership.EndDate,
		"cost", result.Cost,
		"entry_id", result.EntryID,
	)

	claim, err := s.ClaimDailyRewards(ctx, userID)
	if err != nil {
		logger.Warn("Reward claim after purchase failed", "user_id", userID, "error", err)
		return result, nil
	}
	result.Reward = claim
	if claim.DaysRewarded > 0 {
		result.NewBalance = claim.NewBalance
	}
	return result, nil
}

// CancelMembership ends the active membership today.
func (s *MembershipService) CancelMembership(ctx context.Context, userID string) (*models.Membership, error) {
	if err := validateID("user", userID); err != nil {
		return nil, err
	}
	today := s.env.Clock.Today()

	var snapshot *models.Membership
	err := s.env.inTx(ctx, "cancel_membership", false, func(ctx context.Context, tx *gorm.DB) error {
		if _, err := s.users.WithTx(tx).LockUser(ctx, userID); err != nil {
			return err
		}
		memberships := s.memberships.WithTx(tx)
		m, err := memberships.LockActive(ctx, userID)
		if err != nil {
			return err
		}
		if m == nil {
			return errors.ErrNoActiveMembership
		}

		// an expired row keeps its earlier end
		if m.EndDate.After(today) {
			m.EndDate = today
		}
		m.IsActive = false
		if err := memberships.SetWindow(ctx, m.ID, m.EndDate, false); err != nil {
			return err
		}
		snapshot = m
		return nil
	})
	if err != nil {
		logRejected("cancel_membership", err, "user_id", userID)
		return nil, err
	}

	logger.Info("Membership cancelled", "user_id", userID, "membership_id", snapshot.ID, "end", snapshot.EndDate)
	return snapshot, nil
}

// ExtendMembership pushes the active membership's end date by days.
func (s *MembershipService) ExtendMembership(ctx context.Context, userID string, days int) (*models.Membership, error) {
	if err := validateID("user", userID); err != nil {
		return nil, err
	}
	if days <= 0 {
		return nil, errors.New(errors.ErrCodeValidation, "days must be positive")
	}
	if days > MaxMembershipDays {
		return nil, errors.Newf(errors.ErrCodeValidation, "at most %d days at once", MaxMembershipDays)
	}
	today := s.env.Clock.Today()

	var snapshot *models.Membership
	err := s.env.inTx(ctx, "extend_membership", false, func(ctx context.Context, tx *gorm.DB) error {
		if _, err := s.users.WithTx(tx).LockUser(ctx, userID); err != nil {
			return err
		}
		memberships := s.memberships.WithTx(tx)
		m, err := memberships.LockActive(ctx, userID)
		if err != nil {
			return err
		}
		if m == nil {
			return errors.ErrNoActiveMembership
		}

		end := m.EndDate.AddDays(days)
		if end.DaysSince(today) > MaxMembershipDays {
			return errors.Newf(errors.ErrCodeValidation,
				"membership would end on %s, more than %d days ahead", end, MaxMembershipDays)
		}
		m.EndDate = end
		if err := memberships.SetWindow(ctx, m.ID, m.EndDate, true); err != nil {
			return err
		}
		snapshot = m
		return nil
	})
	if err != nil {
		logRejected("extend_membership", err, "user_id", userID, "days", days)
		return nil, err
	}

	logger.Info("Membership extended", "user_id", userID, "membership_id", snapshot.ID, "days", days, "end", snapshot.EndDate)
	return snapshot, nil
}

// ClaimDailyRewards pays every unclaimed day of the valid membership up to
// today, at most membership_max_missed_rewards+1 days back. Older days are
// forfeited. Claim rows, the credit and one aggregated entry commit together.
func (s *MembershipService) ClaimDailyRewards(ctx context.Context, userID string) (*ClaimResult, error) {
	if err := validateID("user", userID); err != nil {
		return nil, err
	}
	maxMissed := s.env.Settings.Int(ctx, settings.KeyMaxMissedReward)
	today := s.env.Clock.Today()

	var result *ClaimResult
	err := s.env.retry(ctx, "claim_rewards", true, func(ctx context.Context) error {
		for conflicts := 0; ; conflicts++ {
			err := s.env.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				r, err := s.claim(ctx, tx, userID, today, maxMissed)
				result = r
				return err
			})
			// a concurrent claim won the unique index; re-read its rows
			if repositories.IsDuplicate(err) && conflicts < maxClaimConflicts {
				logger.Debug("Reward claim raced, retrying", "user_id", userID)
				continue
			}
			return err
		}
	})
	if err != nil {
		logRejected("claim_rewards", err, "user_id", userID)
		return nil, err
	}

	if result.DaysRewarded > 0 {
		logger.Info("Daily rewards claimed",
			"user_id", userID,
			"membership_id", result.MembershipID,
			"days", result.DaysRewarded,
			"amount", result.TotalAmount,
			"from", result.FirstDay,
			"to", result.LastDay,
		)
	}
	return result, nil
}

func (s *MembershipService) claim(ctx context.Context, tx *gorm.DB, userID string, today clock.Date, maxMissed int64) (*ClaimResult, error) {
	users := s.users.WithTx(tx)
	memberships := s.memberships.WithTx(tx)

	user, err := lockActiveUser(ctx, users, userID)
	if err != nil {
		return nil, err
	}

	m, err := memberships.Valid(ctx, userID, today)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, errors.ErrNoValidMembership
	}

	windowStart := m.StartDate
	last, err := memberships.LastClaimDate(ctx, userID, m.ID)
	if err != nil {
		return nil, err
	}
	if !last.IsZero() {
		windowStart = clock.MaxDate(last.AddDays(1), m.StartDate)
	}

	result := &ClaimResult{MembershipID: m.ID, NewBalance: user.Coins}
	if windowStart.After(today) {
		result.AlreadyClaimed = true
		return result, nil
	}

	span := int64(today.DaysSince(windowStart)) + 1
	limit := maxMissed + 1
	if limit < 1 {
		limit = 1
	}
	if span > limit {
		windowStart = today.AddDays(-int(limit - 1))
	}

	claimed, err := memberships.ClaimedDays(ctx, userID, m.ID, windowStart, today)
	if err != nil {
		return nil, err
	}

	var claims []models.DailyRewardClaim
	for day := windowStart; !day.After(today); day = day.AddDays(1) {
		if claimed[day] {
			continue
		}
		claims = append(claims, models.DailyRewardClaim{
			UserID:       userID,
			MembershipID: m.ID,
			RewardDate:   day,
			RewardCoins:  m.DailyRewardCoins,
		})
	}
	if len(claims) == 0 {
		result.AlreadyClaimed = true
		return result, nil
	}

	total, err := pricing.MulCoins(m.DailyRewardCoins, int64(len(claims)))
	if err != nil {
		return nil, err
	}
	if err := memberships.InsertClaims(ctx, claims); err != nil {
		return nil, err
	}
	if err := users.Credit(ctx, userID, total); err != nil {
		return nil, err
	}

	first, lastDay := claims[0].RewardDate, claims[len(claims)-1].RewardDate
	entry := &models.LedgerEntry{
		UserID:          userID,
		Type:            models.EntryTypeDailyReward,
		Quantity:        int64(len(claims)),
		UnitPrice:       m.DailyRewardCoins,
		TotalAmount:     total,
		BalanceBefore:   user.Coins,
		BalanceAfter:    user.Coins + total,
		TransactionDate: today,
		RelatedID:       &m.ID,
		Notes:           fmt.Sprintf("%s to %s", first, lastDay),
	}
	if err := s.ledger.WithTx(tx).Append(ctx, entry); err != nil {
		return nil, err
	}

	result.DaysRewarded = len(claims)
	result.TotalAmount = total
	result.FirstDay = first
	result.LastDay = lastDay
	result.NewBalance = entry.BalanceAfter
	return result, nil
}

// Status reports the user's latest membership; a nil Membership means none ever.
func (s *MembershipService) Status(ctx context.Context, userID string) (*MembershipStatus, error) {
	if err := validateID("user", userID); err != nil {
		return nil, err
	}
	today := s.env.Clock.Today()

	status := &MembershipStatus{}
	err := s.env.read(ctx, "membership_status", func(ctx context.Context) error {
		m, err := s.memberships.Latest(ctx, userID)
		if err != nil || m == nil {
			return err
		}
		last, err := s.memberships.LastClaimDate(ctx, userID, m.ID)
		if err != nil {
			return err
		}
		status.Membership = m
		status.IsValid = m.ValidOn(today)
		status.DaysRemaining = m.DaysRemaining(today)
		status.LastClaim = last
		status.ClaimedToday = last == today
		return nil
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}

// ExpireMemberships deactivates memberships that ended before today.
func (s *MembershipService) ExpireMemberships(ctx context.Context) (int64, error) {
	today := s.env.Clock.Today()

	var expired int64
	err := s.env.retry(ctx, "expire_memberships", true, func(ctx context.Context) error {
		n, err := s.memberships.ExpireBefore(ctx, today)
		expired = n
		return err
	})
	if err != nil {
		return 0, err
	}
	if expired > 0 {
		logger.Info("Memberships expired", "count", expired, "before", today)
	}
	return expired, nil
}
