package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mroshb/shop_economy/internal/clock"
	"github.com/mroshb/shop_economy/internal/models"
	"github.com/mroshb/shop_economy/internal/repositories"
	"github.com/mroshb/shop_economy/internal/services"
	"github.com/mroshb/shop_economy/pkg/errors"
)

type app struct {
	out         io.Writer
	users       *services.UserService
	economy     *services.EconomyService
	memberships *services.MembershipService
	audit       *services.AuditService
	reports     *services.ReportService
}

func newApp(env services.Env, out io.Writer) *app {
	return &app{
		out:         out,
		users:       services.NewUserService(env),
		economy:     services.NewEconomyService(env),
		memberships: services.NewMembershipService(env),
		audit:       services.NewAuditService(env),
		reports:     services.NewReportService(env),
	}
}

func (a *app) run(ctx context.Context, actor services.Actor, args []string) error {
	cmd, args := args[0], args[1:]
	switch cmd {
	case "adjust":
		return a.adjust(ctx, actor, args)
	case "extend":
		return a.extend(ctx, args)
	case "cancel":
		return a.cancel(ctx, args)
	case "audit":
		return a.runAudit(ctx, args)
	case "export":
		return a.export(ctx, args)
	case "stats":
		return a.stats(ctx)
	}
	return errors.Newf(errors.ErrCodeValidation, "unknown command %q", cmd)
}

func needArgs(args []string, n int, usage string) error {
	if len(args) < n {
		return errors.New(errors.ErrCodeValidation, "usage: ledgerctl "+usage)
	}
	return nil
}

func (a *app) adjust(ctx context.Context, actor services.Actor, args []string) error {
	if err := needArgs(args, 2, "adjust <user> <balance> [reason]"); err != nil {
		return err
	}
	balance, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return errors.Newf(errors.ErrCodeValidation, "balance %q is not a number", args[1])
	}

	result, err := a.economy.AdminAdjustBalance(ctx, actor, args[0], balance, strings.Join(args[2:], " "))
	if err != nil {
		return err
	}
	if !result.Changed {
		fmt.Fprintf(a.out, "%s already has %d coins\n", args[0], result.NewBalance)
		return nil
	}
	fmt.Fprintf(a.out, "%s: %d -> %d (%+d), entry %d\n", args[0], result.OldBalance, result.NewBalance, result.Difference, result.EntryID)
	return nil
}

func (a *app) extend(ctx context.Context, args []string) error {
	if err := needArgs(args, 2, "extend <user> <days>"); err != nil {
		return err
	}
	days, err := strconv.Atoi(args[1])
	if err != nil {
		return errors.Newf(errors.ErrCodeValidation, "days %q is not a number", args[1])
	}
	m, err := a.memberships.ExtendMembership(ctx, args[0], days)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s %s now ends %s\n", args[0], m.PlanID, m.EndDate)
	return nil
}

func (a *app) cancel(ctx context.Context, args []string) error {
	if err := needArgs(args, 1, "cancel <user>"); err != nil {
		return err
	}
	m, err := a.memberships.CancelMembership(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s %s cancelled, ends %s\n", args[0], m.PlanID, m.EndDate)
	return nil
}

func (a *app) runAudit(ctx context.Context, args []string) error {
	var violations []services.Violation
	var err error
	if len(args) > 0 {
		var report *services.AuditReport
		report, err = a.audit.VerifyUser(ctx, args[0])
		if report != nil {
			fmt.Fprintf(a.out, "user %s: %d entries, balance %d\n", report.UserID, report.Entries, report.Balance)
			violations = report.Violations
		}
	} else {
		var summary *services.AuditSummary
		summary, err = a.audit.VerifyAll(ctx)
		if summary != nil {
			fmt.Fprintf(a.out, "%d users, %d entries\n", summary.Users, summary.Entries)
			violations = summary.Violations
		}
	}

	for _, v := range violations {
		fmt.Fprintf(a.out, "VIOLATION user=%s entry=%d %s\n", v.UserID, v.EntryID, v.Detail)
	}
	if err == nil {
		fmt.Fprintln(a.out, "ledger consistent")
	}
	return err
}

// parseExportFlags reads the export filter and output path.
func parseExportFlags(args []string) (repositories.LedgerFilter, string, error) {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	user := fs.String("user", "", "only this user")
	entryType := fs.String("type", "", "only this entry type")
	from := fs.String("from", "", "first day, YYYY-MM-DD")
	to := fs.String("to", "", "last day, YYYY-MM-DD")
	out := fs.String("out", "", "xlsx file to write")

	var filter repositories.LedgerFilter
	if err := fs.Parse(args); err != nil {
		return filter, "", errors.Wrap(err, errors.ErrCodeValidation, "bad export flags")
	}
	if *out == "" {
		return filter, "", errors.New(errors.ErrCodeValidation, "-out is required")
	}
	if *entryType != "" && !models.ValidEntryType(*entryType) {
		return filter, "", errors.Newf(errors.ErrCodeValidation, "unknown entry type %q", *entryType)
	}

	filter.UserID = *user
	filter.Type = *entryType
	for _, d := range []struct {
		raw    string
		target *clock.Date
	}{{*from, &filter.From}, {*to, &filter.To}} {
		if d.raw == "" {
			continue
		}
		date, err := clock.ParseDate(d.raw)
		if err != nil {
			return filter, "", errors.Wrap(err, errors.ErrCodeValidation, "bad date")
		}
		*d.target = date
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return filter, "", errors.New(errors.ErrCodeValidation, "-to is before -from")
	}
	return filter, *out, nil
}

func (a *app) export(ctx context.Context, args []string) error {
	filter, path, err := parseExportFlags(args)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	n, err := a.reports.ExportLedger(ctx, f, filter)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "wrote %d entries to %s\n", n, path)
	return nil
}

func (a *app) stats(ctx context.Context) error {
	s, err := a.reports.SystemStats(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "users: %d total, %d active, %d banned, %d admins\n",
		s.Users.Total, s.Users.Active, s.Users.Banned, s.Users.Admins)
	fmt.Fprintf(a.out, "items: %d total, %d active, %d out of stock\n",
		s.Items.Total, s.Items.Active, s.Items.OutOfStock)
	fmt.Fprintf(a.out, "memberships: %d valid, %d expired\n", s.Memberships.Valid, s.Memberships.Expired)
	fmt.Fprintf(a.out, "entries today: %d\n", s.TodayEntries())
	for _, t := range s.Ledger {
		fmt.Fprintf(a.out, "  %-20s %6d entries %10d coins\n", t.Type, t.Count, t.Amount)
	}
	return nil
}
