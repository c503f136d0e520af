package services

import (
	"context"
	"fmt"

	"github.com/mroshb/shop_economy/internal/models"
	"github.com/mroshb/shop_economy/internal/repositories"
	"github.com/mroshb/shop_economy/pkg/errors"
	"github.com/mroshb/shop_economy/pkg/logger"
	"gorm.io/gorm"
)

type Violation struct {
	UserID  string
	EntryID uint
	Detail  string
}

type AuditReport struct {
	UserID     string
	Entries    int
	Balance    int64
	Violations []Violation
}

type AuditSummary struct {
	Users      int
	Entries    int
	Violations []Violation
}

// AuditService replays ledger chains against live balances. It reports
// mismatches and never repairs them.
type AuditService struct {
	env      Env
	userRepo *repositories.UserRepository
	ledger   *repositories.LedgerRepository
}

func NewAuditService(env Env) *AuditService {
	return &AuditService{
		env:      env,
		userRepo: repositories.NewUserRepository(env.DB),
		ledger:   repositories.NewLedgerRepository(env.DB),
	}
}

// CheckChain validates one user's entries in append order against the live balance.
func CheckChain(userID string, balance int64, entries []models.LedgerEntry) []Violation {
	var violations []Violation
	add := func(e *models.LedgerEntry, format string, args ...interface{}) {
		var id uint
		if e != nil {
			id = e.ID
		}
		violations = append(violations, Violation{UserID: userID, EntryID: id, Detail: fmt.Sprintf(format, args...)})
	}

	for i := range entries {
		e := &entries[i]
		if !e.Consistent() {
			add(e, "balance_after %d != balance_before %d + total_amount %d", e.BalanceAfter, e.BalanceBefore, e.TotalAmount)
		}
		if i > 0 && e.BalanceBefore != entries[i-1].BalanceAfter {
			add(e, "balance_before %d does not continue previous balance_after %d", e.BalanceBefore, entries[i-1].BalanceAfter)
		}
	}
	if n := len(entries); n > 0 && entries[n-1].BalanceAfter != balance {
		add(&entries[n-1], "live balance %d differs from last balance_after %d", balance, entries[n-1].BalanceAfter)
	}
	return violations
}

func (s *AuditService) VerifyUser(ctx context.Context, userID string) (*AuditReport, error) {
	if err := validateID("user", userID); err != nil {
		return nil, err
	}

	var report *AuditReport
	err := s.env.inTx(ctx, "audit_user", true, func(ctx context.Context, tx *gorm.DB) error {
		// holding the user lock keeps balance and chain from one instant
		user, err := s.userRepo.WithTx(tx).LockUser(ctx, userID)
		if err != nil {
			return err
		}
		entries, err := s.ledger.WithTx(tx).Chain(ctx, userID)
		if err != nil {
			return err
		}
		report = &AuditReport{
			UserID:     userID,
			Entries:    len(entries),
			Balance:    user.Coins,
			Violations: CheckChain(userID, user.Coins, entries),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(report.Violations) > 0 {
		for _, v := range report.Violations {
			logger.Error("Ledger chain violation", "user_id", v.UserID, "entry_id", v.EntryID, "detail", v.Detail)
		}
		return report, errors.Newf(errors.ErrCodeInvariantViolation,
			"%d ledger violations for user %s", len(report.Violations), userID)
	}
	return report, nil
}

// VerifyAll audits every user. It keeps going past violations and returns
// INVARIANT_VIOLATION at the end if any were found.
func (s *AuditService) VerifyAll(ctx context.Context) (*AuditSummary, error) {
	var ids []string
	err := s.env.read(ctx, "audit_list_users", func(ctx context.Context) error {
		list, err := s.userRepo.ListUserIDs(ctx)
		ids = list
		return err
	})
	if err != nil {
		return nil, err
	}

	summary := &AuditSummary{}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return summary, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "audit cancelled")
		}
		report, err := s.VerifyUser(ctx, id)
		if report != nil {
			summary.Users++
			summary.Entries += report.Entries
			summary.Violations = append(summary.Violations, report.Violations...)
		}
		if err != nil && !errors.IsCode(err, errors.ErrCodeInvariantViolation) {
			return summary, err
		}
	}

	logger.Info("Ledger audit finished", "users", summary.Users, "entries", summary.Entries, "violations", len(summary.Violations))
	if len(summary.Violations) > 0 {
		return summary, errors.Newf(errors.ErrCodeInvariantViolation,
			"%d ledger violations across %d users", len(summary.Violations), summary.Users)
	}
	return summary, nil
}
