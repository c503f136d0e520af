package handlers

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mroshb/shop_economy/internal/models"
	"github.com/mroshb/shop_economy/internal/repositories"
	"github.com/mroshb/shop_economy/internal/security"
	"github.com/mroshb/shop_economy/internal/services"
	"github.com/mroshb/shop_economy/internal/settings"
	"github.com/mroshb/shop_economy/pkg/errors"
	"github.com/mroshb/shop_economy/pkg/logger"
)

const (
	defaultReportDays = 7
	popularLimit      = 10
)

// HandleAdminAdjust sets a user's balance to an absolute value.
func (h *HandlerManager) HandleAdminAdjust(ctx context.Context, req Request, bot BotInterface) error {
	const usageText = "/admin_adjust user balance [reason]"
	userID, err := argAt(req.Args, 0, usageText)
	if err != nil {
		return err
	}
	raw, err := argAt(req.Args, 1, usageText)
	if err != nil {
		return err
	}
	balance, err := parseInt("balance", raw)
	if err != nil {
		return err
	}
	actor, err := h.actor(ctx, req)
	if err != nil {
		return err
	}

	result, err := h.Economy.AdminAdjustBalance(ctx, actor, userID, balance, rest(req.Args, 2))
	if err != nil {
		return err
	}
	if !result.Changed {
		bot.SendMessage(req.ChatID, fmt.Sprintf("ℹ️ User %s already has %d coins, nothing changed.", userID, result.NewBalance), nil)
		return nil
	}

	logger.Info("Admin adjusted balance", "admin_id", actor.UserID, "user_id", userID, "difference", result.Difference)
	bot.SendMessage(req.ChatID, fmt.Sprintf("✅ User %s: %d → %d (%+d), entry #%d",
		userID, result.OldBalance, result.NewBalance, result.Difference, result.EntryID), nil)
	return nil
}

func (h *HandlerManager) HandleAdminExtend(ctx context.Context, req Request, bot BotInterface) error {
	const usageText = "/admin_extend user days"
	userID, err := argAt(req.Args, 0, usageText)
	if err != nil {
		return err
	}
	raw, err := argAt(req.Args, 1, usageText)
	if err != nil {
		return err
	}
	days, err := parseInt("days", raw)
	if err != nil {
		return err
	}

	m, err := h.Memberships.ExtendMembership(ctx, userID, int(days))
	if err != nil {
		return err
	}
	logger.Info("Admin extended membership", "admin_id", req.UserID, "user_id", userID, "days", days)
	bot.SendMessage(req.ChatID, fmt.Sprintf("✅ %s membership of %s now ends on %s.", m.PlanID, userID, m.EndDate), nil)
	return nil
}

func (h *HandlerManager) HandleAdminCancel(ctx context.Context, req Request, bot BotInterface) error {
	userID, err := argAt(req.Args, 0, "/admin_cancel user")
	if err != nil {
		return err
	}

	m, err := h.Memberships.CancelMembership(ctx, userID)
	if err != nil {
		return err
	}
	logger.Info("Admin cancelled membership", "admin_id", req.UserID, "user_id", userID)
	bot.SendMessage(req.ChatID, fmt.Sprintf("✅ %s membership of %s cancelled, ends %s.", m.PlanID, userID, m.EndDate), nil)
	return nil
}

func (h *HandlerManager) HandleAdminStock(ctx context.Context, req Request, bot BotInterface) error {
	const usageText = "/admin_stock item stock"
	itemID, err := argAt(req.Args, 0, usageText)
	if err != nil {
		return err
	}
	raw, err := argAt(req.Args, 1, usageText)
	if err != nil {
		return err
	}
	stock, err := parseInt("stock", raw)
	if err != nil {
		return err
	}
	actor, err := h.actor(ctx, req)
	if err != nil {
		return err
	}

	if err := h.Catalog.UpdateStock(ctx, actor, itemID, stock); err != nil {
		return err
	}
	shown := strconv.FormatInt(stock, 10)
	if stock == models.UnlimitedStock {
		shown = "unlimited"
	}
	bot.SendMessage(req.ChatID, fmt.Sprintf("✅ Stock of <code>%s</code> set to %s.", itemID, shown), nil)
	return nil
}

func (h *HandlerManager) HandleAdminItem(ctx context.Context, req Request, bot BotInterface) error {
	const usageText = "/admin_item item on|off"
	itemID, err := argAt(req.Args, 0, usageText)
	if err != nil {
		return err
	}
	raw, err := argAt(req.Args, 1, usageText)
	if err != nil {
		return err
	}
	active, err := parseSwitch(raw)
	if err != nil {
		return err
	}
	actor, err := h.actor(ctx, req)
	if err != nil {
		return err
	}

	if err := h.Catalog.UpdateStatus(ctx, actor, itemID, active); err != nil {
		return err
	}
	state := "hidden from"
	if active {
		state = "listed in"
	}
	bot.SendMessage(req.ChatID, fmt.Sprintf("✅ <code>%s</code> is now %s the shop.", itemID, state), nil)
	return nil
}

// HandleAdminBan bans a user
func (h *HandlerManager) HandleAdminBan(ctx context.Context, req Request, bot BotInterface) error {
	return h.setUserStatus(ctx, req, bot, models.UserStatusBanned, "/admin_ban user")
}

// HandleAdminUnban unbans a user
func (h *HandlerManager) HandleAdminUnban(ctx context.Context, req Request, bot BotInterface) error {
	return h.setUserStatus(ctx, req, bot, models.UserStatusActive, "/admin_unban user")
}

func (h *HandlerManager) setUserStatus(ctx context.Context, req Request, bot BotInterface, status, usageText string) error {
	userID, err := argAt(req.Args, 0, usageText)
	if err != nil {
		return err
	}
	actor, err := h.actor(ctx, req)
	if err != nil {
		return err
	}

	if err := h.Users.UpdateStatus(ctx, actor, userID, status); err != nil {
		return err
	}

	bot.SendMessage(req.ChatID, fmt.Sprintf("✅ User %s is now %s.", userID, status), nil)

	// Notify user; ids of telegram accounts are their chat ids.
	if chatID, err := strconv.ParseInt(userID, 10, 64); err == nil {
		if status == models.UserStatusBanned {
			bot.SendMessage(chatID, "⛔️ Your shop account was disabled by an admin.", nil)
		} else {
			bot.SendMessage(chatID, "✅ Your shop account was re-enabled.", nil)
		}
	}
	return nil
}

// HandleAdminConfig lists settings, or updates one when given a key and value.
func (h *HandlerManager) HandleAdminConfig(ctx context.Context, req Request, bot BotInterface) error {
	if len(req.Args) == 0 {
		rows, err := h.Settings.All(ctx)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to list settings")
		}
		var sb strings.Builder
		sb.WriteString("⚙️ <b>Settings</b>\n\n")
		for _, row := range rows {
			sb.WriteString(fmt.Sprintf("<code>%s</code> = %s\n", row.ConfigKey, escape(row.ConfigValue)))
		}
		bot.SendMessage(req.ChatID, sb.String(), nil)
		return nil
	}

	const usageText = "/admin_config key value"
	if len(req.Args) != 2 {
		return usage(usageText)
	}
	key, value := req.Args[0], req.Args[1]
	if _, known := settings.Defaults[key]; !known {
		return errors.Newf(errors.ErrCodeValidation, "unknown setting %q", key)
	}
	if n, err := strconv.ParseFloat(value, 64); err != nil || n < 0 {
		return errors.Newf(errors.ErrCodeValidation, "%s must be a non-negative number", key)
	}

	if err := h.Settings.Set(ctx, key, value); err != nil {
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to save setting")
	}
	logger.Info("Admin changed setting", "admin_id", req.UserID, "key", key, "value", value)
	bot.SendMessage(req.ChatID, fmt.Sprintf("✅ <code>%s</code> = %s", key, value), nil)
	return nil
}

// HandleAdminStats shows ledger statistics
func (h *HandlerManager) HandleAdminStats(ctx context.Context, req Request, bot BotInterface) error {
	stats, err := h.Reports.SystemStats(ctx)
	if err != nil {
		return err
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`📊 Shop statistics:

👥 Users:
  • Total: %d
  • Active: %d
  • Banned: %d
  • Admins: %d

📦 Items:
  • Total: %d
  • Active: %d
  • Out of stock: %d

🎫 Memberships:
  • Valid: %d
  • Expired: %d

📒 Ledger (today: %d entries):
`,
		stats.Users.Total, stats.Users.Active, stats.Users.Banned, stats.Users.Admins,
		stats.Items.Total, stats.Items.Active, stats.Items.OutOfStock,
		stats.Memberships.Valid, stats.Memberships.Expired,
		stats.TodayEntries()))
	for _, t := range stats.Ledger {
		sb.WriteString(fmt.Sprintf("  • %s: %d entries, %d coins\n", t.Type, t.Count, t.Amount))
	}

	recent, err := h.Reports.RecentEntries(ctx, 5)
	if err != nil {
		return err
	}
	if len(recent) > 0 {
		sb.WriteString("\n🕑 Latest:\n")
		for _, e := range recent {
			sb.WriteString(formatEntry(e) + "\n")
		}
	}

	bot.SendMessage(req.ChatID, sb.String(), nil)
	logger.Info("Admin viewed stats", "admin_id", req.UserID)
	return nil
}

func (h *HandlerManager) HandleAdminPopular(ctx context.Context, req Request, bot BotInterface) error {
	days, err := optionalInt(req.Args, 0, "days", defaultReportDays)
	if err != nil {
		return err
	}
	rows, err := h.Reports.PopularItems(ctx, int(days), popularLimit)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		bot.SendMessage(req.ChatID, "📈 No purchases in that period.", nil)
		return nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📈 <b>Top items, last %d days</b>\n\n", days))
	for i, row := range rows {
		sb.WriteString(fmt.Sprintf("%d. %s: %d sold to %d buyers, %d coins\n",
			i+1, escape(row.Name), row.Quantity, row.Buyers, row.Revenue))
	}
	bot.SendMessage(req.ChatID, sb.String(), nil)
	return nil
}

func (h *HandlerManager) HandleAdminTrend(ctx context.Context, req Request, bot BotInterface) error {
	itemID, err := argAt(req.Args, 0, "/admin_trend item [days]")
	if err != nil {
		return err
	}
	days, err := optionalInt(req.Args, 1, "days", defaultReportDays)
	if err != nil {
		return err
	}
	rows, err := h.Reports.ItemPriceTrends(ctx, itemID, int(days))
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		bot.SendMessage(req.ChatID, fmt.Sprintf("📉 No trades of <code>%s</code> in that period.", itemID), nil)
		return nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📉 <b>%s</b>, last %d days\n\n", itemID, days))
	for _, row := range rows {
		sb.WriteString(fmt.Sprintf("%s %s ×%d avg %.1f (%d–%d)\n",
			row.Day, row.Type, row.Quantity, row.AvgPrice, row.MinPrice, row.MaxPrice))
	}
	bot.SendMessage(req.ChatID, sb.String(), nil)
	return nil
}

// HandleAdminExport sends the ledger, or one user's part of it, as a workbook.
func (h *HandlerManager) HandleAdminExport(ctx context.Context, req Request, bot BotInterface) error {
	filter := repositories.LedgerFilter{}
	name := "ledger.xlsx"
	if len(req.Args) > 0 {
		filter.UserID = req.Args[0]
		name = "ledger_" + req.Args[0] + ".xlsx"
	}

	var buf bytes.Buffer
	n, err := h.Reports.ExportLedger(ctx, &buf, filter)
	if err != nil {
		return err
	}
	if err := bot.SendDocument(req.ChatID, name, buf.Bytes(), fmt.Sprintf("📒 %d ledger entries", n)); err != nil {
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to upload export")
	}
	logger.Info("Admin exported ledger", "admin_id", req.UserID, "entries", n, "user_id", filter.UserID)
	return nil
}

// HandleAdminAudit replays one user's chain, or every chain when no user is given.
func (h *HandlerManager) HandleAdminAudit(ctx context.Context, req Request, bot BotInterface) error {
	if len(req.Args) > 0 {
		report, err := h.Audit.VerifyUser(ctx, req.Args[0])
		if err != nil && report == nil {
			return err
		}
		msg := fmt.Sprintf("🔎 User %s: %d entries, balance %d", report.UserID, report.Entries, report.Balance)
		bot.SendMessage(req.ChatID, msg+auditVerdict(report.Violations), nil)
		return nil
	}

	summary, err := h.Audit.VerifyAll(ctx)
	if err != nil && (summary == nil || !errors.IsCode(err, errors.ErrCodeInvariantViolation)) {
		return err
	}
	msg := fmt.Sprintf("🔎 %d users, %d entries", summary.Users, summary.Entries)
	bot.SendMessage(req.ChatID, msg+auditVerdict(summary.Violations), nil)
	return nil
}

// auditVerdict lists at most the first ten violations.
func auditVerdict(violations []services.Violation) string {
	n := len(violations)
	if n == 0 {
		return "\n✅ Ledger is consistent."
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("\n🚨 %d violations:\n", n))
	for i, v := range violations {
		if i == 10 {
			sb.WriteString("…\n")
			break
		}
		sb.WriteString(fmt.Sprintf("• user %s entry #%d: %s\n", v.UserID, v.EntryID, escape(v.Detail)))
	}
	return sb.String()
}

// HandleAdminToken issues a short lived token for the ledgerctl tool.
func (h *HandlerManager) HandleAdminToken(ctx context.Context, req Request, bot BotInterface) error {
	token, err := security.GenerateAdminToken(req.UserID, h.Config.JWTSecret, h.Config.AdminTokenTTL)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to issue token")
	}
	logger.Info("Admin token issued", "admin_id", req.UserID, "ttl", h.Config.AdminTokenTTL)
	bot.SendMessage(req.ChatID, fmt.Sprintf("🔑 Valid for %s:\n<code>%s</code>", h.Config.AdminTokenTTL, token), nil)
	return nil
}
