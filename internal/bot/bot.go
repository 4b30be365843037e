// Package bot runs the Telegram command surface: snoozes, manual checks and status.
package bot

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/vladimiradmaev/glucose-alerts/internal/bot/handlers"
)

type Bot struct {
	api     *tgbotapi.BotAPI
	handler *handlers.UpdateHandler
	logger  *slog.Logger
}

// NewBot wraps an authorized API client. Commands are accepted from chatID only.
func NewBot(api *tgbotapi.BotAPI, chatID int64, deps handlers.Dependencies, logger *slog.Logger) *Bot {
	logger.Info("Bot authorized", "account", api.Self.UserName)
	return &Bot{
		api:     api,
		handler: handlers.NewUpdateHandler(api, chatID, deps, logger),
		logger:  logger,
	}
}

// NewAPI creates the Telegram client shared by the bot and the alert dispatcher
func NewAPI(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return api, nil
}

// Start polls for updates until ctx is done
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.logger.Info("Bot is now listening for updates")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Bot is shutting down")
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if err := b.handler.Handle(ctx, update); err != nil {
				b.logger.Error("Error handling update", "update_id", update.UpdateID, "error", err)
			}
		}
	}
}
