package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/vladimiradmaev/glucose-alerts/internal/bot/keyboards"
	"github.com/vladimiradmaev/glucose-alerts/internal/engine"
	"github.com/vladimiradmaev/glucose-alerts/internal/rules"
	"github.com/vladimiradmaev/glucose-alerts/internal/services"
)

// DefaultSnoozeMinutes applies when /snooze has no duration
const DefaultSnoozeMinutes = 120

const helpText = `Available commands:
/snooze RULE [MIN] - silence a rule (or ALL), default 120 min
/unsnooze [RULE] - clear one snooze, or all of them
/snoozes - list active snoozes
/workout - check low risk before a workout
/status - current glucose and a dry-run of every rule
/help - show this message`

// CommandHandler handles bot commands
type CommandHandler struct {
	api    Sender
	deps   Dependencies
	logger *slog.Logger
}

// NewCommandHandler creates a new command handler
func NewCommandHandler(api Sender, deps Dependencies, logger *slog.Logger) *CommandHandler {
	return &CommandHandler{
		api:    api,
		deps:   deps,
		logger: logger,
	}
}

// Handle processes a command message
func (h *CommandHandler) Handle(ctx context.Context, message *tgbotapi.Message) error {
	chatID := message.Chat.ID
	args := strings.Fields(message.CommandArguments())
	h.logger.Info("Handling command", "command", message.Command(), "args", args)

	switch message.Command() {
	case "snooze":
		return h.handleSnooze(ctx, chatID, args)
	case "unsnooze":
		return h.handleUnsnooze(ctx, chatID, args)
	case "snoozes":
		return h.handleSnoozes(ctx, chatID)
	case "workout":
		return h.handleWorkout(ctx, chatID)
	case "status":
		return h.handleStatus(ctx, chatID)
	case "start", "help":
		return h.reply(chatID, helpText)
	default:
		return h.reply(chatID, "Unknown command. Use /help to see the available commands.")
	}
}

func (h *CommandHandler) handleSnooze(ctx context.Context, chatID int64, args []string) error {
	if len(args) == 0 {
		return h.reply(chatID, "Usage: /snooze RULE [MIN]")
	}
	minutes := DefaultSnoozeMinutes
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return h.reply(chatID, fmt.Sprintf("⚠️ %q is not a number of minutes", args[1]))
		}
		minutes = n
	}

	snooze, err := h.deps.SnoozeSvc.Snooze(ctx, args[0], time.Duration(minutes)*time.Minute, "telegram")
	if err != nil {
		h.logger.Warn("Snooze failed", "rule", args[0], "error", err)
		return h.reply(chatID, userMessage(err))
	}
	return h.reply(chatID, snoozedText(snooze.RuleName, snooze.Until, h.deps.Location))
}

func (h *CommandHandler) handleUnsnooze(ctx context.Context, chatID int64, args []string) error {
	rule := ""
	if len(args) > 0 {
		rule = args[0]
	}
	n, err := h.deps.SnoozeSvc.Unsnooze(ctx, rule)
	if err != nil {
		h.logger.Warn("Unsnooze failed", "rule", rule, "error", err)
		return h.reply(chatID, userMessage(err))
	}
	return h.reply(chatID, fmt.Sprintf("🔔 Cleared %d snooze(s).", n))
}

func (h *CommandHandler) handleSnoozes(ctx context.Context, chatID int64) error {
	snoozes, err := h.deps.SnoozeSvc.Active(ctx)
	if err != nil {
		h.logger.Error("Failed to list snoozes", "error", err)
		return h.reply(chatID, userMessage(err))
	}

	msg := tgbotapi.NewMessage(chatID, services.FormatSnoozes(snoozes, time.Now(), h.deps.Location))
	if len(snoozes) > 0 {
		names := make([]string, 0, len(snoozes))
		for _, s := range snoozes {
			names = append(names, s.RuleName)
		}
		msg.ReplyMarkup = keyboards.SnoozesMenu(names)
	}
	_, err = h.api.Send(msg)
	return err
}

// handleWorkout runs the manual pre-workout check. A delivered alert needs no reply;
// an undelivered one is shown in the chat instead.
func (h *CommandHandler) handleWorkout(ctx context.Context, chatID int64) error {
	report, err := h.deps.MonitorSvc.Trigger(ctx, rules.NamePreWorkout, false)
	if err != nil {
		h.logger.Error("Pre-workout check failed", "error", err)
		return h.reply(chatID, userMessage(err))
	}

	res := report.Results[0]
	switch res.Status {
	case engine.StatusFired:
		return nil
	case engine.StatusFailed:
		return h.reply(chatID, "⚠️ The alert could not be delivered:\n"+res.Message)
	case engine.StatusQuiet:
		return h.reply(chatID, "✅ No low risk before your workout.")
	default:
		return h.reply(chatID, fmt.Sprintf("Pre-workout check: %s", res.Status))
	}
}

func (h *CommandHandler) handleStatus(ctx context.Context, chatID int64) error {
	st, err := h.deps.MonitorSvc.Status(ctx)
	if err != nil {
		h.logger.Error("Status failed", "error", err)
		return h.reply(chatID, userMessage(err))
	}
	return h.reply(chatID, h.deps.MonitorSvc.Format(st))
}

func (h *CommandHandler) reply(chatID int64, text string) error {
	_, err := h.api.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

func snoozedText(rule string, until time.Time, loc *time.Location) string {
	return fmt.Sprintf("💤 %s snoozed until %s.", rule, until.In(loc).Format("15:04"))
}
