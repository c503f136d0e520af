package handlers

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/mroshb/shop_economy/internal/models"
)

// CallbackPrefix marks inline buttons that replay a command with arguments.
const CallbackPrefix = "cmd:"

const (
	BtnBalance    = "💰 Balance"
	BtnShop       = "🛒 Shop"
	BtnInventory  = "🎒 Inventory"
	BtnHistory    = "📜 History"
	BtnMembership = "🎫 Membership"
	BtnClaim      = "🎁 Claim"
	BtnHelp       = "❓ Help"
)

// ButtonCommands maps reply keyboard labels to the command they run.
var ButtonCommands = map[string]string{
	BtnBalance:    "balance",
	BtnShop:       "shop",
	BtnInventory:  "inventory",
	BtnHistory:    "history",
	BtnMembership: "membership",
	BtnClaim:      "claim",
	BtnHelp:       "help",
}

// CommandCallback encodes a command and its arguments as callback data.
func CommandCallback(command string, args ...string) string {
	return CallbackPrefix + strings.Join(append([]string{command}, args...), " ")
}

// ParseCallback splits callback data back into command and argument text.
func ParseCallback(data string) (command, args string, ok bool) {
	if !strings.HasPrefix(data, CallbackPrefix) {
		return "", "", false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(data, CallbackPrefix))
	if rest == "" {
		return "", "", false
	}
	command, args, _ = strings.Cut(rest, " ")
	return command, args, true
}

// MainMenuKeyboard creates the main menu keyboard
func MainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(BtnShop),
			tgbotapi.NewKeyboardButton(BtnInventory),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(BtnBalance),
			tgbotapi.NewKeyboardButton(BtnHistory),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(BtnMembership),
			tgbotapi.NewKeyboardButton(BtnClaim),
			tgbotapi.NewKeyboardButton(BtnHelp),
		),
	)
}

// ShopKeyboard has one buy button per item, two per row.
func ShopKeyboard(items []models.Item) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var currentRow []tgbotapi.InlineKeyboardButton

	for _, item := range items {
		label := fmt.Sprintf("%s · %d", item.Name, item.Price)
		currentRow = append(currentRow, tgbotapi.NewInlineKeyboardButtonData(label, CommandCallback("buy", item.ID, "1")))
		if len(currentRow) == 2 {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(currentRow...))
			currentRow = []tgbotapi.InlineKeyboardButton{}
		}
	}
	if len(currentRow) > 0 {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(currentRow...))
	}

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// SellKeyboard offers selling one unit of each sellable holding.
func SellKeyboard(itemIDs []string) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, id := range itemIDs {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💸 Sell 1 "+id, CommandCallback("sell", id, "1")),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func PlansKeyboard(plans []models.Item) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, plan := range plans {
		label := fmt.Sprintf("🎫 %s · %d", plan.Name, plan.Price)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, CommandCallback("subscribe", plan.ID, "1")),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(BtnClaim, CommandCallback("claim")),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
