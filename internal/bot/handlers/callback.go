package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/vladimiradmaev/glucose-alerts/internal/bot/keyboards"
)

// CallbackHandler handles the snooze buttons attached to alerts
type CallbackHandler struct {
	api    Sender
	deps   Dependencies
	logger *slog.Logger
}

// NewCallbackHandler creates a new callback handler
func NewCallbackHandler(api Sender, deps Dependencies, logger *slog.Logger) *CallbackHandler {
	return &CallbackHandler{
		api:    api,
		deps:   deps,
		logger: logger,
	}
}

// Handle processes a callback query
func (h *CallbackHandler) Handle(ctx context.Context, query *tgbotapi.CallbackQuery) error {
	answer, reply := h.dispatch(ctx, query.Data)

	if _, err := h.api.Request(tgbotapi.NewCallback(query.ID, answer)); err != nil {
		h.logger.Warn("Failed to answer callback query", "error", err)
	}
	if reply == "" {
		return nil
	}
	_, err := h.api.Send(tgbotapi.NewMessage(query.Message.Chat.ID, reply))
	return err
}

// dispatch runs the button action and returns the toast text and an optional chat reply
func (h *CallbackHandler) dispatch(ctx context.Context, data string) (string, string) {
	if rule, minutes, ok := keyboards.ParseSnoozeData(data); ok {
		snooze, err := h.deps.SnoozeSvc.Snooze(ctx, rule, time.Duration(minutes)*time.Minute, "telegram button")
		if err != nil {
			h.logger.Warn("Snooze from button failed", "data", data, "error", err)
			return "Snooze failed", userMessage(err)
		}
		return "Snoozed", snoozedText(snooze.RuleName, snooze.Until, h.deps.Location)
	}

	if rule, ok := keyboards.ParseUnsnoozeData(data); ok {
		n, err := h.deps.SnoozeSvc.Unsnooze(ctx, rule)
		if err != nil {
			h.logger.Warn("Unsnooze from button failed", "data", data, "error", err)
			return "Unsnooze failed", userMessage(err)
		}
		return "Unsnoozed", fmt.Sprintf("🔔 %s: cleared %d snooze(s).", rule, n)
	}

	h.logger.Warn("Unknown callback data", "data", data)
	return "Unknown action", ""
}
