package dispatch

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/vladimiradmaev/glucose-alerts/internal/bot/keyboards"
)

// MessageSender is the part of tgbotapi.BotAPI the dispatcher uses
type MessageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramDispatcher sends alerts to a Telegram chat with snooze buttons attached.
// The destination is the chat ID.
type TelegramDispatcher struct {
	api MessageSender
}

func NewTelegramDispatcher(api MessageSender) *TelegramDispatcher {
	return &TelegramDispatcher{api: api}
}

func (d *TelegramDispatcher) Send(ctx context.Context, alert Alert, destination string) (bool, error) {
	chatID, err := strconv.ParseInt(destination, 10, 64)
	if err != nil {
		return false, fmt.Errorf("invalid chat id %q: %w", destination, err)
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	msg := tgbotapi.NewMessage(chatID, alert.Message)
	msg.ReplyMarkup = keyboards.SnoozeMenu(alert.Rule)
	sent, err := d.api.Send(msg)
	if err != nil {
		return false, fmt.Errorf("failed to send telegram message: %w", err)
	}
	return sent.MessageID != 0, nil
}
