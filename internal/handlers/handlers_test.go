package handlers

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/mroshb/shop_economy/internal/clock"
	"github.com/mroshb/shop_economy/internal/config"
	"github.com/mroshb/shop_economy/internal/database"
	"github.com/mroshb/shop_economy/internal/middleware"
	"github.com/mroshb/shop_economy/internal/models"
	"github.com/mroshb/shop_economy/internal/security"
	"github.com/mroshb/shop_economy/internal/services"
	"github.com/mroshb/shop_economy/internal/settings"
	"github.com/mroshb/shop_economy/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	adminID int64 = 1001
	aliceID int64 = 1002
)

var testSecret = strings.Repeat("k", 32)

type sentMessage struct {
	chatID   int64
	text     string
	keyboard interface{}
}

type sentDocument struct {
	chatID  int64
	name    string
	data    []byte
	caption string
}

type fakeBot struct {
	messages []sentMessage
	docs     []sentDocument
}

func (b *fakeBot) SendMessage(chatID int64, text string, keyboard interface{}) int {
	b.messages = append(b.messages, sentMessage{chatID: chatID, text: text, keyboard: keyboard})
	return len(b.messages)
}

func (b *fakeBot) SendDocument(chatID int64, name string, data []byte, caption string) error {
	b.docs = append(b.docs, sentDocument{chatID: chatID, name: name, data: data, caption: caption})
	return nil
}

func (b *fakeBot) last() sentMessage {
	if len(b.messages) == 0 {
		return sentMessage{}
	}
	return b.messages[len(b.messages)-1]
}

type harness struct {
	ctx context.Context
	db  *gorm.DB
	h   *HandlerManager
	bot *fakeBot
}

func newHarness(t *testing.T, limiter *middleware.RateLimiter) *harness {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.AutoMigrate(db))
	require.NoError(t, database.SeedCatalog(db))

	source := settings.NewDBSource(db)
	require.NoError(t, source.SeedDefaults(context.Background()))

	if limiter == nil {
		limiter = middleware.NewRateLimiter(1000, time.Minute)
	}
	t.Cleanup(limiter.Stop)

	env := services.Env{
		DB:       db,
		Settings: settings.NewResolver(source),
		Clock:    clock.NewFixed(time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)),
		Retry:    database.RetryPolicy{Attempts: 3, MinBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond},
	}
	cfg := &config.Config{JWTSecret: testSecret, AdminTokenTTL: time.Hour}

	return &harness{
		ctx: context.Background(),
		db:  db,
		h:   NewHandlerManager(cfg, env, source, limiter),
		bot: &fakeBot{},
	}
}

// send runs one command as the given telegram user and returns the last reply.
func (hs *harness) send(userID int64, command, args string) string {
	req := NewRequest(userID, userID, fmt.Sprintf("user%d", userID), "", command, args)
	hs.h.Handle(hs.ctx, req, hs.bot)
	return hs.bot.last().text
}

func (hs *harness) makeAdmin(t *testing.T, userID int64) {
	t.Helper()
	hs.send(userID, "start", "")
	require.NoError(t, hs.db.Model(&models.User{}).
		Where("id = ?", fmt.Sprint(userID)).UpdateColumn("is_admin", true).Error)
}

func TestCallbackRoundTrip(t *testing.T) {
	tests := []struct {
		data    string
		command string
		args    string
		ok      bool
	}{
		{data: CommandCallback("buy", "sword_basic", "1"), command: "buy", args: "sword_basic 1", ok: true},
		{data: CommandCallback("claim"), command: "claim", ok: true},
		{data: "cmd:", ok: false},
		{data: "btn:Cancel", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			command, args, ok := ParseCallback(tt.data)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.command, command)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestNewRequest(t *testing.T) {
	req := NewRequest(5, 42, "alice", "Alice", "/BUY", " sword_basic  ۳ ")
	assert.Equal(t, "42", req.UserID)
	assert.Equal(t, "buy", req.Command)
	assert.Equal(t, []string{"sword_basic", "3"}, req.Args)
	assert.True(t, IsCommand("admin_export"))
	assert.False(t, IsCommand("dance"))
}

func TestErrorText(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "Business rejection", err: fmt.Errorf("buy: %w", errors.ErrInsufficientCoins), want: "💰 Not enough coins."},
		{name: "Validation shows message", err: errors.New(errors.ErrCodeValidation, "quantity must be positive"), want: "⚠️ quantity must be positive"},
		{name: "Not found shows message", err: errors.New(errors.ErrCodeNotFound, "item laser not found"), want: "🔍 item laser not found"},
		{name: "Rate limit", err: errors.New(errors.ErrCodeRateLimitExceeded, "slow down"), want: "⚠️ slow down"},
		{name: "Unknown error hides details", err: fmt.Errorf("pq: connection refused"), want: "❌ Something went wrong, please try again later."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorText(tt.err))
		})
	}
}

func TestHandleUnknownAndUnregistered(t *testing.T) {
	hs := newHarness(t, nil)

	assert.Equal(t, MsgUnknownCommand, hs.send(aliceID, "dance", ""))
	assert.Equal(t, MsgNoAccount, hs.send(aliceID, "balance", ""))
	assert.Contains(t, hs.send(aliceID, "help", ""), "/buy")
}

func TestShoppingFlow(t *testing.T) {
	hs := newHarness(t, nil)

	reply := hs.send(aliceID, "start", "")
	assert.Contains(t, reply, "You start with 💰 3000 coins")
	assert.NotNil(t, hs.bot.last().keyboard)

	assert.Contains(t, hs.send(aliceID, "start", ""), "Welcome back")

	reply = hs.send(aliceID, "shop", "")
	assert.Contains(t, reply, "sword_basic")
	assert.NotContains(t, reply, "weekly_membership")

	reply = hs.send(aliceID, "buy", "sword_basic 2")
	assert.Contains(t, reply, "200 + 10 tax = 210")
	assert.Contains(t, reply, "Balance: 2790")

	reply = hs.send(aliceID, "sell", "sword_basic")
	assert.Contains(t, reply, "for 80 coins")
	assert.Contains(t, reply, "Balance: 2870")

	reply = hs.send(aliceID, "inventory", "")
	assert.Contains(t, reply, "Basic Sword ×1")
	assert.Contains(t, reply, "worth 80 coins")

	reply = hs.send(aliceID, "history", "5")
	assert.Contains(t, reply, "buy sword_basic×2")
	assert.Contains(t, reply, "sell sword_basic×1")

	assert.Contains(t, hs.send(aliceID, "balance", ""), "<b>2870</b>")
}

func TestCommandRejections(t *testing.T) {
	hs := newHarness(t, nil)
	hs.send(aliceID, "start", "")

	tests := []struct {
		name    string
		command string
		args    string
		want    string
	}{
		{name: "Missing item", command: "buy", want: "⚠️ usage: /buy item [qty]"},
		{name: "Bad quantity", command: "buy", args: "sword_basic many", want: "quantity must be a whole number"},
		{name: "Over order maximum", command: "buy", args: "sword_basic 6", want: "🚫 That is more than one purchase allows."},
		{name: "Over daily limit", command: "buy", args: "sword_basic 4", want: "📅 Daily purchase limit reached"},
		{name: "Membership through buy", command: "buy", args: "weekly_membership", want: "⚠️"},
		{name: "Sell nothing owned", command: "sell", args: "shield_wood", want: "🎒 You don't own that many."},
		{name: "Claim without membership", command: "claim", want: "🎫 You need a valid membership"},
		{name: "Cancel without membership", command: "cancel_membership", want: "🎫 You have no active membership."},
		{name: "Admin command", command: "admin_stats", want: "❌ Only admins can use this command!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, hs.send(aliceID, tt.command, tt.args), tt.want)
		})
	}
}

func TestMembershipFlow(t *testing.T) {
	hs := newHarness(t, nil)
	hs.send(aliceID, "start", "")

	reply := hs.send(aliceID, "membership", "")
	assert.Contains(t, reply, "You have no membership yet.")
	assert.Contains(t, reply, "weekly_membership")

	reply = hs.send(aliceID, "subscribe", "weekly_membership")
	assert.Contains(t, reply, "2024-03-10 to 2024-03-17")
	assert.Contains(t, reply, "Paid 300 coins")
	assert.Contains(t, reply, "Reward: +100 coins, balance 2800")

	assert.Contains(t, hs.send(aliceID, "claim", ""), "already claimed")
	assert.Contains(t, hs.send(aliceID, "membership", ""), "Today's reward is claimed.")

	reply = hs.send(aliceID, "cancel_membership", "")
	assert.Contains(t, reply, "now ends on 2024-03-10")
}

func TestAdminCommands(t *testing.T) {
	hs := newHarness(t, nil)
	hs.makeAdmin(t, adminID)
	hs.send(aliceID, "start", "")

	assert.Contains(t, hs.send(adminID, "help", ""), "/admin_adjust")

	reply := hs.send(adminID, "admin_adjust", "1002 500 event bonus")
	assert.Contains(t, reply, "3000 → 500 (-2500)")
	assert.Contains(t, hs.send(adminID, "admin_adjust", "1002 500"), "nothing changed")
	assert.Contains(t, hs.send(adminID, "admin_adjust", "1002 -1"), "⚠️")

	assert.Contains(t, hs.send(adminID, "admin_config", "shop_tax_rate 0"), "shop_tax_rate</code> = 0")
	assert.Contains(t, hs.send(adminID, "admin_config", "bogus 1"), "unknown setting")
	assert.Contains(t, hs.send(adminID, "admin_config", "sell_rate lots"), "non-negative number")
	assert.Contains(t, hs.send(adminID, "admin_config", ""), "default_user_coins")
	assert.Contains(t, hs.send(aliceID, "buy", "sword_basic"), "Balance: 400")

	assert.Contains(t, hs.send(adminID, "admin_stock", "sword_basic -1"), "unlimited")
	assert.Contains(t, hs.send(adminID, "admin_item", "shield_wood off"), "hidden from")
	assert.NotContains(t, hs.send(aliceID, "shop", ""), "shield_wood")

	reply = hs.send(adminID, "admin_stats", "")
	assert.Contains(t, reply, "Total: 2")
	assert.Contains(t, reply, "Admins: 1")

	assert.Contains(t, hs.send(adminID, "admin_popular", "7"), "Basic Sword: 1 sold to 1 buyers, 100 coins")
	assert.Contains(t, hs.send(adminID, "admin_trend", "sword_basic"), "2024-03-10 buy ×1")

	hs.send(adminID, "admin_export", "1002")
	require.Len(t, hs.bot.docs, 1)
	doc := hs.bot.docs[0]
	assert.Equal(t, "ledger_1002.xlsx", doc.name)
	assert.Equal(t, "📒 2 ledger entries", doc.caption)
	assert.True(t, len(doc.data) > 2 && string(doc.data[:2]) == "PK", "xlsx is a zip archive")

	assert.Contains(t, hs.send(adminID, "admin_audit", ""), "Ledger is consistent")
	assert.Contains(t, hs.send(adminID, "admin_audit", "1002"), "2 entries, balance 400")

	reply = hs.send(adminID, "admin_token", "")
	start := strings.Index(reply, "<code>") + len("<code>")
	end := strings.Index(reply, "</code>")
	require.True(t, start > 0 && end > start)
	claims, err := security.ValidateAdminToken(reply[start:end], testSecret)
	require.NoError(t, err)
	assert.Equal(t, "1001", claims.Subject)
}

func TestAdminBanAndMemberships(t *testing.T) {
	hs := newHarness(t, nil)
	hs.makeAdmin(t, adminID)
	hs.send(aliceID, "start", "")

	assert.Contains(t, hs.send(adminID, "admin_extend", "1002 5"), "🎫")
	hs.send(aliceID, "subscribe", "weekly_membership")
	assert.Contains(t, hs.send(adminID, "admin_extend", "1002 5"), "now ends on 2024-03-22")
	assert.Contains(t, hs.send(adminID, "admin_cancel", "1002"), "ends 2024-03-10")

	before := len(hs.bot.messages)
	hs.send(adminID, "admin_ban", "1002")
	require.Len(t, hs.bot.messages, before+2)
	assert.Equal(t, adminID, hs.bot.messages[before].chatID)
	assert.Equal(t, aliceID, hs.bot.messages[before+1].chatID)

	assert.Contains(t, hs.send(aliceID, "buy", "potion_small"), "⛔️")
	assert.Contains(t, hs.send(adminID, "admin_ban", "1001"), "cannot disable themselves")

	hs.send(adminID, "admin_unban", "1002")
	assert.Contains(t, hs.send(aliceID, "buy", "potion_small"), "Bought 1")
}

func TestRateLimitedCommands(t *testing.T) {
	hs := newHarness(t, middleware.NewRateLimiter(2, time.Minute))
	hs.send(aliceID, "start", "")
	hs.send(aliceID, "balance", "")

	assert.Contains(t, hs.send(aliceID, "balance", ""), "⚠️ too many requests")
	assert.Contains(t, hs.send(adminID, "help", ""), "/balance", "limits are per user")
}
