package handlers

import (
	"fmt"
	"strings"

	"github.com/mroshb/shop_economy/internal/models"
	"github.com/mroshb/shop_economy/pkg/errors"
	"github.com/mroshb/shop_economy/pkg/utils"
)

const (
	MsgUnknownCommand = "❓ Unknown command. Send /help for the list."
	MsgNoAccount      = "👋 You don't have an account yet. Send /start first."

	MsgHelp = `🛒 <b>Shop commands</b>

/balance - coins and membership
/shop - items for sale
/buy <code>item [qty]</code> - buy an item
/sell <code>item [qty]</code> - sell back an item
/inventory - what you own
/history <code>[n]</code> - recent transactions
/membership - plans and your status
/subscribe <code>plan [periods]</code> - buy a membership
/claim - collect daily rewards
/cancel_membership - end your membership today`

	MsgAdminHelp = `

🛠 <b>Admin</b>
/admin_adjust <code>user balance [reason]</code>
/admin_extend <code>user days</code>
/admin_cancel <code>user</code>
/admin_stock <code>item stock</code> (-1 = unlimited)
/admin_item <code>item on|off</code>
/admin_ban <code>user</code> /admin_unban <code>user</code>
/admin_config <code>[key value]</code>
/admin_stats /admin_popular <code>[days]</code> /admin_trend <code>item [days]</code>
/admin_export <code>[user]</code> /admin_audit <code>[user]</code>
/admin_token`
)

var errorTexts = map[string]string{
	errors.ErrCodeInsufficientCoins:    "💰 Not enough coins.",
	errors.ErrCodeInsufficientStock:    "📦 Not enough stock left.",
	errors.ErrCodeQuantityExceedsLimit: "🚫 That is more than one purchase allows.",
	errors.ErrCodeDailyLimitExceeded:   "📅 Daily purchase limit reached for this item.",
	errors.ErrCodeItemUnavailable:      "🚫 This item is not for sale.",
	errors.ErrCodeItemNotSellable:      "🚫 This item cannot be sold.",
	errors.ErrCodeInsufficientHoldings: "🎒 You don't own that many.",
	errors.ErrCodeNoActiveMembership:   "🎫 You have no active membership.",
	errors.ErrCodeNoValidMembership:    "🎫 You need a valid membership to claim rewards.",
	errors.ErrCodeAccountDisabled:      "⛔️ Your account is disabled.",
	errors.ErrCodeForbidden:            "❌ Only admins can use this command!",
	errors.ErrCodeUnauthorized:         MsgNoAccount,
	errors.ErrCodeNotFound:             "🔍 Not found.",
	errors.ErrCodeServiceUnavailable:   "⏳ The shop is busy, please try again.",
	errors.ErrCodeInvariantViolation:   "🚨 Ledger check failed, admins have been alerted.",
}

// ErrorText renders an engine error for a chat. Validation and rate limit
// messages are shown as is; internal details never reach the user.
func ErrorText(err error) string {
	code := errors.CodeOf(err)
	var appErr *errors.AppError
	switch code {
	case errors.ErrCodeValidation, errors.ErrCodeRateLimitExceeded:
		if errors.As(err, &appErr) {
			return "⚠️ " + appErr.Message
		}
	case errors.ErrCodeNotFound:
		if errors.As(err, &appErr) && appErr.Message != "" {
			return "🔍 " + appErr.Message
		}
	}
	if text, ok := errorTexts[code]; ok {
		return text
	}
	return "❌ Something went wrong, please try again later."
}

func formatEntry(e models.LedgerEntry) string {
	sign := ""
	if e.BalanceAfter >= e.BalanceBefore {
		sign = "+"
	}
	line := fmt.Sprintf("#%d %s %s%d → %d", e.ID, e.TransactionDate, sign, e.BalanceAfter-e.BalanceBefore, e.BalanceAfter)
	label := e.Type
	if e.ItemID != nil {
		label = fmt.Sprintf("%s %s×%d", e.Type, *e.ItemID, e.Quantity)
	}
	line += " | " + label
	if e.Notes != "" {
		line += " | " + escape(utils.Truncate(e.Notes, 40))
	}
	return line
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// escape makes user supplied text safe for HTML parse mode.
func escape(s string) string {
	return htmlEscaper.Replace(s)
}
