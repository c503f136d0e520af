package telegram

import (
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/mroshb/shop_economy/internal/handlers"
)

func TestWorkerIndex(t *testing.T) {
	tests := []struct {
		userID int64
		want   int
	}{
		{userID: 42, want: 2},
		{userID: 10, want: 0},
		{userID: -13, want: 3},
	}
	for _, tt := range tests {
		if got := workerIndex(tt.userID, 10); got != tt.want {
			t.Errorf("workerIndex(%d) = %d, want %d", tt.userID, got, tt.want)
		}
	}
}

func TestUpdateUserID(t *testing.T) {
	from := &tgbotapi.User{ID: 7}
	tests := []struct {
		name   string
		update tgbotapi.Update
		want   int64
	}{
		{name: "Message", update: tgbotapi.Update{Message: &tgbotapi.Message{From: from}}, want: 7},
		{name: "Callback", update: tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{From: from}}, want: 7},
		{name: "Channel post", update: tgbotapi.Update{Message: &tgbotapi.Message{}}, want: 0},
		{name: "Empty", update: tgbotapi.Update{}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := updateUserID(tt.update); got != tt.want {
				t.Errorf("updateUserID() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestNormalizeButton(t *testing.T) {
	if got := normalizeButton(" " + handlers.BtnShop + "\u200c"); got != handlers.BtnShop {
		t.Errorf("normalizeButton() = %q, want %q", got, handlers.BtnShop)
	}
	if _, ok := handlers.ButtonCommands[normalizeButton(handlers.BtnClaim)]; !ok {
		t.Error("claim button not routed")
	}
}

func TestIsNetworkError(t *testing.T) {
	if !isNetworkError(errors.New("read tcp: connection reset by peer")) {
		t.Error("connection reset should be retried")
	}
	if isNetworkError(errors.New("Bad Request: chat not found")) {
		t.Error("API rejection should not be retried")
	}
}
