package telegram

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/mroshb/shop_economy/internal/config"
	"github.com/mroshb/shop_economy/internal/handlers"
	"github.com/mroshb/shop_economy/pkg/logger"
)

const (
	workerCount     = 10
	workerQueueSize = 100
	// requestTimeout bounds one command, retries included.
	requestTimeout = 30 * time.Second
)

type Bot struct {
	api      *tgbotapi.BotAPI
	config   *config.Config
	handlers *handlers.HandlerManager

	// Worker pool for parallel processing
	workerChans []chan tgbotapi.Update
	workers     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
	stop   chan struct{}
}

// menuCommands are shown in the client's command menu.
var menuCommands = []tgbotapi.BotCommand{
	{Command: "shop", Description: "Items for sale"},
	{Command: "balance", Description: "Coins and membership"},
	{Command: "inventory", Description: "What you own"},
	{Command: "history", Description: "Recent transactions"},
	{Command: "membership", Description: "Plans and status"},
	{Command: "claim", Description: "Collect daily rewards"},
	{Command: "help", Description: "All commands"},
}

func InitBot(cfg *config.Config, handlerMgr *handlers.HandlerManager) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	if cfg.AppEnv == "development" {
		api.Debug = true
	}

	logger.Info("Authorized on account", "username", api.Self.UserName)

	if _, err := api.Request(tgbotapi.NewSetMyCommands(menuCommands...)); err != nil {
		logger.Warn("Failed to register command menu", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	bot := &Bot{
		api:         api,
		config:      cfg,
		handlers:    handlerMgr,
		workerChans: make([]chan tgbotapi.Update, workerCount),
		ctx:         ctx,
		cancel:      cancel,
		stop:        make(chan struct{}),
	}

	// Start workers
	for i := 0; i < workerCount; i++ {
		bot.workerChans[i] = make(chan tgbotapi.Update, workerQueueSize)
		bot.workers.Add(1)
		go bot.startWorker(bot.workerChans[i])
	}

	// Start update listener
	go bot.startUpdateListener()

	return bot, nil
}

func (b *Bot) startUpdateListener() {
	defer func() {
		for _, ch := range b.workerChans {
			close(ch)
		}
	}()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	for {
		logger.Info("Starting update listener...")
		updates := b.api.GetUpdatesChan(u)

		for update := range updates {
			userID := updateUserID(update)
			if userID == 0 {
				continue
			}
			// Hashed dispatch keeps one user's commands in order.
			b.workerChans[workerIndex(userID, len(b.workerChans))] <- update
		}

		if b.stopping() {
			return
		}
		logger.Warn("Update channel closed. Restarting in 5 seconds...")
		select {
		case <-b.stop:
			return
		case <-time.After(5 * time.Second):
		}
	}
}

func (b *Bot) stopping() bool {
	select {
	case <-b.stop:
		return true
	default:
		return false
	}
}

func updateUserID(update tgbotapi.Update) int64 {
	switch {
	case update.Message != nil && update.Message.From != nil:
		return update.Message.From.ID
	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		return update.CallbackQuery.From.ID
	}
	return 0
}

func workerIndex(userID int64, workers int) int {
	idx := userID % int64(workers)
	if idx < 0 {
		idx = -idx
	}
	return int(idx)
}

func (b *Bot) startWorker(ch chan tgbotapi.Update) {
	defer b.workers.Done()
	for update := range ch {
		b.handleUpdate(update)
	}
}

func (b *Bot) handleUpdate(update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in handleUpdate", "error", r)
		}
	}()

	if update.Message != nil {
		b.handleMessage(update.Message)
	} else if update.CallbackQuery != nil {
		b.handleCallbackQuery(update.CallbackQuery)
	}
}

func (b *Bot) handleMessage(message *tgbotapi.Message) {
	logger.Debug("Received message",
		"user_id", message.From.ID,
		"text", message.Text,
	)

	var command, args string
	switch {
	case message.IsCommand():
		command, args = message.Command(), message.CommandArguments()
	default:
		cmd, ok := handlers.ButtonCommands[normalizeButton(message.Text)]
		if !ok {
			b.sendMessage(message.Chat.ID, handlers.MsgUnknownCommand, handlers.MainMenuKeyboard())
			return
		}
		command = cmd
	}

	b.dispatch(message.Chat.ID, message.From, command, args)
}

func (b *Bot) handleCallbackQuery(query *tgbotapi.CallbackQuery) {
	callback := tgbotapi.NewCallback(query.ID, "")
	if _, err := b.api.Request(callback); err != nil {
		logger.Debug("Failed to answer callback", "error", err)
	}

	logger.Debug("Callback query", "data", query.Data, "user_id", query.From.ID)

	if query.Message == nil {
		return
	}
	command, args, ok := handlers.ParseCallback(query.Data)
	if !ok {
		logger.Warn("Unknown callback data", "data", query.Data, "user_id", query.From.ID)
		return
	}

	b.dispatch(query.Message.Chat.ID, query.From, command, args)
}

func (b *Bot) dispatch(chatID int64, from *tgbotapi.User, command, args string) {
	ctx, cancel := context.WithTimeout(b.ctx, requestTimeout)
	defer cancel()

	name := strings.TrimSpace(from.FirstName + " " + from.LastName)
	req := handlers.NewRequest(chatID, from.ID, from.UserName, name, command, args)
	b.handlers.Handle(ctx, req, b)
}

func normalizeButton(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\u200c", ""))
}

func (b *Bot) sendMessage(chatID int64, text string, keyboard interface{}) int {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML

	switch kb := keyboard.(type) {
	case tgbotapi.ReplyKeyboardMarkup:
		msg.ReplyMarkup = kb
	case tgbotapi.InlineKeyboardMarkup:
		msg.ReplyMarkup = kb
	case tgbotapi.ReplyKeyboardRemove:
		msg.ReplyMarkup = kb
	}

	var sentID int
	b.sendWithRetry(chatID, func() error {
		sent, err := b.api.Send(msg)
		sentID = sent.MessageID
		return err
	})
	return sentID
}

// sendWithRetry retries network failures only; API rejections are final.
func (b *Bot) sendWithRetry(chatID int64, send func() error) error {
	const maxRetries = 3
	var err error
	for i := 0; i < maxRetries; i++ {
		if err = send(); err == nil {
			return nil
		}
		logger.Error("Failed to send message", "error", err, "chat_id", chatID, "attempt", i+1)
		if !isNetworkError(err) {
			return err
		}
		time.Sleep(time.Duration(i+1) * time.Second)
	}
	return err
}

func isNetworkError(err error) bool {
	s := err.Error()
	return strings.Contains(s, "connection reset") ||
		strings.Contains(s, "timeout") ||
		strings.Contains(s, "network is unreachable")
}

func (b *Bot) SendMessage(chatID int64, text string, keyboard interface{}) int {
	return b.sendMessage(chatID, text, keyboard)
}

// SendDocument uploads data as a file attachment.
func (b *Bot) SendDocument(chatID int64, fileName string, data []byte, caption string) error {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: fileName, Bytes: data})
	doc.Caption = caption
	return b.sendWithRetry(chatID, func() error {
		_, err := b.api.Send(doc)
		return err
	})
}

// Stop stops polling and waits for in-flight commands to finish.
func (b *Bot) Stop() {
	close(b.stop)
	b.api.StopReceivingUpdates()
	b.workers.Wait()
	b.cancel()
	logger.Info("Bot stopped receiving updates")
}
