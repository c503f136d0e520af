package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/mroshb/shop_economy/internal/models"
	"github.com/mroshb/shop_economy/internal/services"
	"github.com/mroshb/shop_economy/pkg/logger"
)

// HandleStart creates the account on first contact and greets returning users.
func (h *HandlerManager) HandleStart(ctx context.Context, req Request, bot BotInterface) error {
	user, created, err := h.Users.CreateOrLogin(ctx, req.UserID, req.Username, req.DisplayName)
	if err != nil {
		return err
	}

	if created {
		logger.Info("New user registered", "user_id", user.ID)
		bot.SendMessage(req.ChatID, fmt.Sprintf("🎉 Welcome to the shop, %s!\n\nYou start with 💰 %d coins. Send /help to see what you can do.",
			escape(displayName(user)), user.Coins), MainMenuKeyboard())
		return nil
	}

	bot.SendMessage(req.ChatID, fmt.Sprintf("👋 Welcome back, %s!\n💰 Balance: %d coins", escape(displayName(user)), user.Coins), MainMenuKeyboard())
	return nil
}

func (h *HandlerManager) HandleHelp(ctx context.Context, req Request, bot BotInterface) error {
	text := MsgHelp
	if actor, err := h.actor(ctx, req); err == nil && actor.IsAdmin {
		text += MsgAdminHelp
	}
	bot.SendMessage(req.ChatID, text, nil)
	return nil
}

func (h *HandlerManager) HandleBalance(ctx context.Context, req Request, bot BotInterface) error {
	user, err := h.Users.GetUser(ctx, req.UserID)
	if err != nil {
		return err
	}
	status, err := h.Memberships.Status(ctx, req.UserID)
	if err != nil {
		return err
	}

	msg := fmt.Sprintf("💰 Balance: <b>%d</b> coins", user.Coins)
	if status.IsValid {
		msg += fmt.Sprintf("\n🎫 %s, %d days left", status.Membership.PlanID, status.DaysRemaining)
		if !status.ClaimedToday {
			msg += "\n🎁 Today's reward is waiting: /claim"
		}
	}
	bot.SendMessage(req.ChatID, msg, nil)
	return nil
}

func (h *HandlerManager) HandleShop(ctx context.Context, req Request, bot BotInterface) error {
	items, err := h.Catalog.ListActive(ctx)
	if err != nil {
		return err
	}

	goods, _ := splitCatalog(items)
	if len(goods) == 0 {
		bot.SendMessage(req.ChatID, "🛒 The shop is empty right now.", nil)
		return nil
	}

	var sb strings.Builder
	sb.WriteString("🛒 <b>Shop</b>\n\n")
	for _, item := range goods {
		sb.WriteString(fmt.Sprintf("• <b>%s</b> (<code>%s</code>) %d coins", escape(item.Name), item.ID, item.Price))
		if item.Unlimited() {
			sb.WriteString(" | ∞ in stock")
		} else {
			sb.WriteString(fmt.Sprintf(" | %d in stock", item.CurrentStock))
		}
		if item.DailyPurchaseLimit != nil {
			sb.WriteString(fmt.Sprintf(" | %d/day", *item.DailyPurchaseLimit))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\nBuy with /buy <code>item [qty]</code> or tap a button.")

	bot.SendMessage(req.ChatID, sb.String(), ShopKeyboard(goods))
	return nil
}

func (h *HandlerManager) HandleInventory(ctx context.Context, req Request, bot BotInterface) error {
	value, err := h.Reports.InventoryValue(ctx, req.UserID)
	if err != nil {
		return err
	}
	if value.UniqueItems == 0 {
		bot.SendMessage(req.ChatID, "🎒 Your inventory is empty. Visit the /shop!", nil)
		return nil
	}

	var sb strings.Builder
	var sellable []string
	sb.WriteString("🎒 <b>Inventory</b>\n\n")
	for _, line := range value.Lines {
		sb.WriteString(fmt.Sprintf("• %s ×%d\n", escape(line.Name), line.Quantity))
		if line.CanSell {
			sellable = append(sellable, line.ItemID)
		}
	}
	sb.WriteString(fmt.Sprintf("\n%d items, worth %d coins if sold now.", value.TotalQuantity, value.SellValue))

	var keyboard interface{}
	if len(sellable) > 0 {
		keyboard = SellKeyboard(sellable)
	}
	bot.SendMessage(req.ChatID, sb.String(), keyboard)
	return nil
}

func (h *HandlerManager) HandleHistory(ctx context.Context, req Request, bot BotInterface) error {
	limit, err := optionalInt(req.Args, 0, "count", services.DefaultHistoryLimit)
	if err != nil {
		return err
	}
	entries, err := h.Reports.History(ctx, req.UserID, int(limit))
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		bot.SendMessage(req.ChatID, "📜 No transactions yet.", nil)
		return nil
	}

	var sb strings.Builder
	sb.WriteString("📜 <b>Recent transactions</b>\n\n")
	for _, e := range entries {
		sb.WriteString(formatEntry(e))
		sb.WriteString("\n")
	}
	bot.SendMessage(req.ChatID, sb.String(), nil)
	return nil
}

func (h *HandlerManager) HandleBuy(ctx context.Context, req Request, bot BotInterface) error {
	itemID, err := argAt(req.Args, 0, "/buy item [qty]")
	if err != nil {
		return err
	}
	qty, err := optionalInt(req.Args, 1, "quantity", 1)
	if err != nil {
		return err
	}

	result, err := h.Economy.Buy(ctx, req.UserID, itemID, qty)
	if err != nil {
		return err
	}

	bot.SendMessage(req.ChatID, fmt.Sprintf("✅ Bought %d × <code>%s</code>\n💵 Cost: %d + %d tax = %d\n💰 Balance: %d",
		qty, itemID, result.BaseCost, result.Tax, result.TotalCost, result.NewBalance), nil)
	return nil
}

func (h *HandlerManager) HandleSell(ctx context.Context, req Request, bot BotInterface) error {
	itemID, err := argAt(req.Args, 0, "/sell item [qty]")
	if err != nil {
		return err
	}
	qty, err := optionalInt(req.Args, 1, "quantity", 1)
	if err != nil {
		return err
	}

	result, err := h.Economy.Sell(ctx, req.UserID, itemID, qty)
	if err != nil {
		return err
	}

	bot.SendMessage(req.ChatID, fmt.Sprintf("✅ Sold %d × <code>%s</code> for %d coins (%d each)\n💰 Balance: %d",
		qty, itemID, result.Proceeds, result.UnitProceeds, result.NewBalance), nil)
	return nil
}

func (h *HandlerManager) HandleMembership(ctx context.Context, req Request, bot BotInterface) error {
	status, err := h.Memberships.Status(ctx, req.UserID)
	if err != nil {
		return err
	}
	items, err := h.Catalog.ListActive(ctx)
	if err != nil {
		return err
	}
	_, plans := splitCatalog(items)

	var sb strings.Builder
	sb.WriteString("🎫 <b>Membership</b>\n\n")
	switch {
	case status.IsValid:
		m := status.Membership
		sb.WriteString(fmt.Sprintf("Plan: <b>%s</b>\nValid %s to %s (%d days left)\nDaily reward: %d coins\n",
			m.PlanID, m.StartDate, m.EndDate, status.DaysRemaining, m.DailyRewardCoins))
		if status.ClaimedToday {
			sb.WriteString("🎁 Today's reward is claimed.\n")
		} else {
			sb.WriteString("🎁 Rewards waiting, tap Claim!\n")
		}
	case status.Membership != nil:
		sb.WriteString(fmt.Sprintf("Your %s membership ended on %s.\n", status.Membership.PlanID, status.Membership.EndDate))
	default:
		sb.WriteString("You have no membership yet.\n")
	}

	if len(plans) > 0 {
		sb.WriteString("\n<b>Plans</b>\n")
		for _, plan := range plans {
			sb.WriteString(fmt.Sprintf("• %s (<code>%s</code>) %d coins\n", escape(plan.Name), plan.ID, plan.Price))
		}
		sb.WriteString("\nBuying while a membership runs extends it from its end date.")
	}

	bot.SendMessage(req.ChatID, sb.String(), PlansKeyboard(plans))
	return nil
}

func (h *HandlerManager) HandleSubscribe(ctx context.Context, req Request, bot BotInterface) error {
	planID, err := argAt(req.Args, 0, "/subscribe plan [periods]\nplans: "+strings.Join(services.PlanIDs(), ", "))
	if err != nil {
		return err
	}
	units, err := optionalInt(req.Args, 1, "periods", 1)
	if err != nil {
		return err
	}

	purchase, err := h.Memberships.BuyMembership(ctx, req.UserID, planID, int(units))
	if err != nil {
		return err
	}

	m := purchase.Membership
	msg := fmt.Sprintf("🎫 <b>%s</b> active from %s to %s\n💵 Paid %d coins\n💰 Balance: %d",
		m.PlanID, m.StartDate, m.EndDate, purchase.Cost, purchase.NewBalance)
	if r := purchase.Reward; r != nil && !r.AlreadyClaimed {
		msg += fmt.Sprintf("\n🎁 Reward: +%d coins, balance %d", r.TotalAmount, r.NewBalance)
	}
	bot.SendMessage(req.ChatID, msg, nil)
	return nil
}

func (h *HandlerManager) HandleCancelMembership(ctx context.Context, req Request, bot BotInterface) error {
	m, err := h.Memberships.CancelMembership(ctx, req.UserID)
	if err != nil {
		return err
	}
	bot.SendMessage(req.ChatID, fmt.Sprintf("🛑 Your %s membership now ends on %s.", m.PlanID, m.EndDate), nil)
	return nil
}

func (h *HandlerManager) HandleClaim(ctx context.Context, req Request, bot BotInterface) error {
	result, err := h.Memberships.ClaimDailyRewards(ctx, req.UserID)
	if err != nil {
		return err
	}
	if result.AlreadyClaimed {
		bot.SendMessage(req.ChatID, "✅ You already claimed today's reward. Come back tomorrow!", nil)
		return nil
	}

	msg := fmt.Sprintf("🎁 +%d coins", result.TotalAmount)
	if result.DaysRewarded > 1 {
		msg += fmt.Sprintf(" for %d days (%s to %s)", result.DaysRewarded, result.FirstDay, result.LastDay)
	}
	msg += fmt.Sprintf("\n💰 Balance: %d", result.NewBalance)
	bot.SendMessage(req.ChatID, msg, nil)
	return nil
}

// splitCatalog separates regular goods from membership plans.
func splitCatalog(items []models.Item) (goods, plans []models.Item) {
	for _, item := range items {
		if item.Category == models.CategoryMembership {
			plans = append(plans, item)
		} else {
			goods = append(goods, item)
		}
	}
	return goods, plans
}

func displayName(u *models.User) string {
	switch {
	case u.DisplayName != "":
		return u.DisplayName
	case u.Username != "":
		return "@" + u.Username
	}
	return u.ID
}
