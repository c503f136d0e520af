// Package jobs runs the periodic ledger maintenance: the membership expiry
// sweep and the nightly chain audit.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/mroshb/shop_economy/internal/services"
	"github.com/mroshb/shop_economy/pkg/logger"
	"github.com/robfig/cron/v3"
)

type MembershipExpirer interface {
	ExpireMemberships(ctx context.Context) (int64, error)
}

type LedgerAuditor interface {
	VerifyAll(ctx context.Context) (*services.AuditSummary, error)
}

type Schedule struct {
	ExpiryCron string
	AuditCron  string
	Timeout    time.Duration
}

// Scheduler owns the cron runner. Job runs never overlap with themselves.
type Scheduler struct {
	cron     *cron.Cron
	schedule Schedule
	expirer  MembershipExpirer
	auditor  LedgerAuditor
}

func NewScheduler(loc *time.Location, schedule Schedule, expirer MembershipExpirer, auditor LedgerAuditor) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if schedule.Timeout <= 0 {
		schedule.Timeout = 10 * time.Minute
	}

	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	return &Scheduler{
		cron:     c,
		schedule: schedule,
		expirer:  expirer,
		auditor:  auditor,
	}
}

// Start registers the jobs and starts the runner. Jobs inherit ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.schedule.ExpiryCron, func() { s.RunExpiry(ctx) }); err != nil {
		return fmt.Errorf("invalid expiry schedule %q: %w", s.schedule.ExpiryCron, err)
	}
	if _, err := s.cron.AddFunc(s.schedule.AuditCron, func() { s.RunAudit(ctx) }); err != nil {
		return fmt.Errorf("invalid audit schedule %q: %w", s.schedule.AuditCron, err)
	}

	s.cron.Start()
	logger.Info("Job scheduler started", "expiry", s.schedule.ExpiryCron, "audit", s.schedule.AuditCron)
	return nil
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("Job scheduler stopped")
}

func (s *Scheduler) RunExpiry(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.schedule.Timeout)
	defer cancel()

	n, err := s.expirer.ExpireMemberships(ctx)
	if err != nil {
		logger.Error("Membership expiry sweep failed", "error", err)
		return
	}
	logger.Debug("Membership expiry sweep done", "expired", n)
}

// RunAudit logs every violation at error level; the ledger is left untouched.
func (s *Scheduler) RunAudit(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.schedule.Timeout)
	defer cancel()

	summary, err := s.auditor.VerifyAll(ctx)
	if err != nil {
		violations := 0
		if summary != nil {
			violations = len(summary.Violations)
		}
		logger.Error("Ledger audit failed", "violations", violations, "error", err)
		return
	}
	logger.Info("Ledger audit clean", "users", summary.Users, "entries", summary.Entries)
}
