package handlers

import (
	"errors"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	apperrors "github.com/vladimiradmaev/glucose-alerts/internal/errors"
	"github.com/vladimiradmaev/glucose-alerts/internal/interfaces"
)

// Sender is the part of tgbotapi.BotAPI the handlers use
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Dependencies holds all service dependencies for handlers
type Dependencies struct {
	SnoozeSvc  interfaces.SnoozeServiceInterface
	MonitorSvc interfaces.MonitorServiceInterface
	Location   *time.Location
}

// userMessage turns err into a reply; validation errors are shown as is
func userMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Type == apperrors.ErrorTypeValidation {
		return "⚠️ " + appErr.Message
	}
	return "❌ Something went wrong, check the logs."
}
