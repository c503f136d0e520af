package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/mroshb/shop_economy/internal/clock"
	"github.com/mroshb/shop_economy/internal/models"
	"github.com/mroshb/shop_economy/pkg/errors"
	"gorm.io/gorm"
)

type MembershipRepository struct {
	db *gorm.DB
}

func NewMembershipRepository(db *gorm.DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

func (r *MembershipRepository) WithTx(tx *gorm.DB) *MembershipRepository {
	return &MembershipRepository{db: tx}
}

func (r *MembershipRepository) first(q *gorm.DB, what string) (*models.Membership, error) {
	var rows []models.Membership
	if err := q.Limit(1).Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to get "+what)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// LockActive returns the user's active membership FOR UPDATE, or nil.
func (r *MembershipRepository) LockActive(ctx context.Context, userID string) (*models.Membership, error) {
	q := forUpdate(r.db.WithContext(ctx)).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("end_date DESC")
	return r.first(q, "active membership")
}

// Valid returns the membership that pays rewards today, or nil.
func (r *MembershipRepository) Valid(ctx context.Context, userID string, today clock.Date) (*models.Membership, error) {
	q := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ? AND end_date >= ?", userID, true, today).
		Order("end_date DESC")
	return r.first(q, "valid membership")
}

// Latest returns the most recently created membership of any state, or nil.
func (r *MembershipRepository) Latest(ctx context.Context, userID string) (*models.Membership, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id DESC")
	return r.first(q, "membership")
}

func (r *MembershipRepository) DeactivateAll(ctx context.Context, userID string) error {
	err := r.db.WithContext(ctx).Model(&models.Membership{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		UpdateColumns(map[string]interface{}{
			"is_active":  false,
			"updated_at": time.Now().UTC(),
		}).Error
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to deactivate memberships")
	}
	return nil
}

func (r *MembershipRepository) Create(ctx context.Context, m *models.Membership) error {
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to create membership")
	}
	return nil
}

// SetWindow rewrites the end date and active flag of one membership.
func (r *MembershipRepository) SetWindow(ctx context.Context, id uint, end clock.Date, active bool) error {
	err := r.db.WithContext(ctx).Model(&models.Membership{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"end_date":   end,
			"is_active":  active,
			"updated_at": time.Now().UTC(),
		}).Error
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to update membership")
	}
	return nil
}

// ExpireBefore deactivates memberships whose last day is before today.
func (r *MembershipRepository) ExpireBefore(ctx context.Context, today clock.Date) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Membership{}).
		Where("is_active = ? AND end_date < ?", true, today).
		UpdateColumns(map[string]interface{}{
			"is_active":  false,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to expire memberships")
	}
	return result.RowsAffected, nil
}

// LastClaimDate returns the latest rewarded day of a membership, or "" if none.
func (r *MembershipRepository) LastClaimDate(ctx context.Context, userID string, membershipID uint) (clock.Date, error) {
	var last sql.NullString
	err := r.db.WithContext(ctx).Model(&models.DailyRewardClaim{}).
		Select("MAX(reward_date)").
		Where("user_id = ? AND membership_id = ?", userID, membershipID).
		Row().
		Scan(&last)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternalError, "failed to get last claim")
	}
	if !last.Valid {
		return "", nil
	}
	return clock.Date(last.String), nil
}

// ClaimedDays returns the already rewarded days within [from, to].
func (r *MembershipRepository) ClaimedDays(ctx context.Context, userID string, membershipID uint, from, to clock.Date) (map[clock.Date]bool, error) {
	var days []string
	err := r.db.WithContext(ctx).Model(&models.DailyRewardClaim{}).
		Where("user_id = ? AND membership_id = ? AND reward_date >= ? AND reward_date <= ?",
			userID, membershipID, from, to).
		Pluck("reward_date", &days).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to load claims")
	}
	claimed := make(map[clock.Date]bool, len(days))
	for _, d := range days {
		claimed[clock.Date(d)] = true
	}
	return claimed, nil
}

// InsertClaims writes claim rows. A duplicate is returned unwrapped so the
// caller can detect a concurrent claim with IsDuplicate.
func (r *MembershipRepository) InsertClaims(ctx context.Context, claims []models.DailyRewardClaim) error {
	if len(claims) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).CreateInBatches(&claims, 100).Error
	if IsDuplicate(err) {
		return err
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to insert claims")
	}
	return nil
}

// Claims lists a membership's rewarded days, newest first.
func (r *MembershipRepository) Claims(ctx context.Context, userID string, membershipID uint, limit int) ([]models.DailyRewardClaim, error) {
	var claims []models.DailyRewardClaim
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND membership_id = ?", userID, membershipID).
		Order("reward_date DESC").
		Limit(limit).
		Find(&claims).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to list claims")
	}
	return claims, nil
}
