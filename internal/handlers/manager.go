package handlers

import (
	"context"
	"strconv"
	"strings"

	"github.com/mroshb/shop_economy/internal/config"
	"github.com/mroshb/shop_economy/internal/middleware"
	"github.com/mroshb/shop_economy/internal/services"
	"github.com/mroshb/shop_economy/internal/settings"
	"github.com/mroshb/shop_economy/pkg/errors"
	"github.com/mroshb/shop_economy/pkg/logger"
	"github.com/mroshb/shop_economy/pkg/utils"
)

// BotInterface is the part of the transport the handlers talk back through.
type BotInterface interface {
	SendMessage(chatID int64, text string, keyboard interface{}) int
	SendDocument(chatID int64, fileName string, data []byte, caption string) error
}

// Request is one parsed command from a chat.
type Request struct {
	ChatID      int64
	UserID      string
	Username    string
	DisplayName string
	Command     string
	Args        []string
}

// NewRequest builds a request for a telegram user id and raw argument text.
func NewRequest(chatID, telegramID int64, username, displayName, command, args string) Request {
	return Request{
		ChatID:      chatID,
		UserID:      strconv.FormatInt(telegramID, 10),
		Username:    username,
		DisplayName: displayName,
		Command:     strings.ToLower(strings.TrimPrefix(command, "/")),
		Args:        utils.Fields(args),
	}
}

type commandFunc func(h *HandlerManager, ctx context.Context, req Request, bot BotInterface) error

type command struct {
	run   commandFunc
	admin bool
	// open commands work for callers without an account yet
	open bool
}

var commands = map[string]command{
	"start":             {run: (*HandlerManager).HandleStart, open: true},
	"help":              {run: (*HandlerManager).HandleHelp, open: true},
	"balance":           {run: (*HandlerManager).HandleBalance},
	"shop":              {run: (*HandlerManager).HandleShop},
	"inventory":         {run: (*HandlerManager).HandleInventory},
	"history":           {run: (*HandlerManager).HandleHistory},
	"buy":               {run: (*HandlerManager).HandleBuy},
	"sell":              {run: (*HandlerManager).HandleSell},
	"membership":        {run: (*HandlerManager).HandleMembership},
	"subscribe":         {run: (*HandlerManager).HandleSubscribe},
	"cancel_membership": {run: (*HandlerManager).HandleCancelMembership},
	"claim":             {run: (*HandlerManager).HandleClaim},

	"admin_adjust":  {run: (*HandlerManager).HandleAdminAdjust, admin: true},
	"admin_extend":  {run: (*HandlerManager).HandleAdminExtend, admin: true},
	"admin_cancel":  {run: (*HandlerManager).HandleAdminCancel, admin: true},
	"admin_stock":   {run: (*HandlerManager).HandleAdminStock, admin: true},
	"admin_item":    {run: (*HandlerManager).HandleAdminItem, admin: true},
	"admin_ban":     {run: (*HandlerManager).HandleAdminBan, admin: true},
	"admin_unban":   {run: (*HandlerManager).HandleAdminUnban, admin: true},
	"admin_config":  {run: (*HandlerManager).HandleAdminConfig, admin: true},
	"admin_stats":   {run: (*HandlerManager).HandleAdminStats, admin: true},
	"admin_popular": {run: (*HandlerManager).HandleAdminPopular, admin: true},
	"admin_trend":   {run: (*HandlerManager).HandleAdminTrend, admin: true},
	"admin_export":  {run: (*HandlerManager).HandleAdminExport, admin: true},
	"admin_audit":   {run: (*HandlerManager).HandleAdminAudit, admin: true},
	"admin_token":   {run: (*HandlerManager).HandleAdminToken, admin: true},
}

// IsCommand reports whether name is routed by Handle.
func IsCommand(name string) bool {
	_, ok := commands[name]
	return ok
}

type HandlerManager struct {
	Config      *config.Config
	Users       *services.UserService
	Catalog     *services.CatalogService
	Economy     *services.EconomyService
	Memberships *services.MembershipService
	Reports     *services.ReportService
	Audit       *services.AuditService
	Settings    *settings.DBSource
	Limiter     *middleware.RateLimiter
}

func NewHandlerManager(cfg *config.Config, env services.Env, source *settings.DBSource, limiter *middleware.RateLimiter) *HandlerManager {
	return &HandlerManager{
		Config:      cfg,
		Users:       services.NewUserService(env),
		Catalog:     services.NewCatalogService(env),
		Economy:     services.NewEconomyService(env),
		Memberships: services.NewMembershipService(env),
		Reports:     services.NewReportService(env),
		Audit:       services.NewAuditService(env),
		Settings:    source,
		Limiter:     limiter,
	}
}

// Handle rate limits, authorizes and routes one request. Every failure ends
// as a single reply to the chat.
func (h *HandlerManager) Handle(ctx context.Context, req Request, bot BotInterface) {
	cmd, ok := commands[req.Command]
	if !ok {
		bot.SendMessage(req.ChatID, MsgUnknownCommand, nil)
		return
	}

	if h.Limiter != nil {
		if err := h.Limiter.Check(req.UserID); err != nil {
			bot.SendMessage(req.ChatID, ErrorText(err), nil)
			return
		}
	}

	if err := h.authorize(ctx, req, cmd); err != nil {
		bot.SendMessage(req.ChatID, ErrorText(err), nil)
		return
	}

	if err := cmd.run(h, ctx, req, bot); err != nil {
		var appErr *errors.AppError
		switch {
		case errors.CodeOf(err) == errors.ErrCodeInternalError:
			logger.Error("Command failed", "command", req.Command, "user_id", req.UserID, "error", err)
		case errors.As(err, &appErr) && appErr.Retriable():
			logger.Warn("Command hit a busy store", "command", req.Command, "user_id", req.UserID, "error", err)
		}
		bot.SendMessage(req.ChatID, ErrorText(err), nil)
	}
}

func (h *HandlerManager) authorize(ctx context.Context, req Request, cmd command) error {
	if cmd.open {
		return nil
	}
	actor, err := h.Users.Actor(ctx, req.UserID)
	if errors.IsCode(err, errors.ErrCodeNotFound) {
		return errors.New(errors.ErrCodeUnauthorized, "no account yet")
	}
	if err != nil {
		return err
	}
	if cmd.admin && !actor.IsAdmin {
		return errors.New(errors.ErrCodeForbidden, "admin rights required")
	}
	return nil
}

// actor re-reads the caller; admin handlers pass it to the engines.
func (h *HandlerManager) actor(ctx context.Context, req Request) (services.Actor, error) {
	return h.Users.Actor(ctx, req.UserID)
}
