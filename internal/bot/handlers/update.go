package handlers

import (
	"context"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	apperrors "github.com/vladimiradmaev/glucose-alerts/internal/errors"
)

// UpdateHandler handles telegram updates and coordinates other handlers
type UpdateHandler struct {
	api             Sender
	chatID          int64
	logger          *slog.Logger
	callbackHandler *CallbackHandler
	commandHandler  *CommandHandler
}

// NewUpdateHandler creates a new update handler. Only chatID may issue commands.
func NewUpdateHandler(api Sender, chatID int64, deps Dependencies, logger *slog.Logger) *UpdateHandler {
	logger = logger.With("component", "bot")
	return &UpdateHandler{
		api:             api,
		chatID:          chatID,
		logger:          logger,
		callbackHandler: NewCallbackHandler(api, deps, logger),
		commandHandler:  NewCommandHandler(api, deps, logger),
	}
}

// Handle processes a telegram update
func (h *UpdateHandler) Handle(ctx context.Context, update tgbotapi.Update) error {
	if update.CallbackQuery != nil {
		query := update.CallbackQuery
		if query.Message == nil || query.Message.Chat == nil || query.Message.Chat.ID != h.chatID {
			h.reject(ctx, query.From)
			_, err := h.api.Request(tgbotapi.NewCallback(query.ID, "Not authorized"))
			return err
		}
		return h.callbackHandler.Handle(ctx, query)
	}

	if update.Message == nil || !update.Message.IsCommand() {
		return nil
	}
	if update.Message.Chat == nil || update.Message.Chat.ID != h.chatID {
		h.reject(ctx, update.Message.From)
		return nil
	}
	return h.commandHandler.Handle(ctx, update.Message)
}

func (h *UpdateHandler) reject(ctx context.Context, from *tgbotapi.User) {
	err := apperrors.ErrUnauthorized
	fields := err.LogFields()
	if from != nil {
		fields = append(fields, "user_id", from.ID, "username", from.UserName)
	}
	h.logger.WarnContext(ctx, "Ignoring update from unauthorized chat", fields...)
}
