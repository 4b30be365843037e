// Package dispatch delivers fired alerts to the configured channel.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	apperrors "github.com/vladimiradmaev/glucose-alerts/internal/errors"
)

// Alert is a fired alert ready for delivery
type Alert struct {
	Rule        string    `json:"rule"`
	Message     string    `json:"message"`
	TriggeredAt time.Time `json:"triggered_at"`
	RunID       string    `json:"run_id,omitempty"`
}

// Dispatcher sends an alert to destination and reports whether it was delivered.
// Destination is opaque to the engine: a chat ID, a subject, or nothing.
type Dispatcher interface {
	Send(ctx context.Context, alert Alert, destination string) (bool, error)
}

// Adapter bounds every send with a timeout. Timeouts and errors count as failed sends.
type Adapter struct {
	dispatcher  Dispatcher
	channel     string
	destination string
	timeout     time.Duration
	logger      *slog.Logger
}

func NewAdapter(d Dispatcher, channel, destination string, timeout time.Duration, logger *slog.Logger) *Adapter {
	return &Adapter{
		dispatcher:  d,
		channel:     channel,
		destination: destination,
		timeout:     timeout,
		logger:      logger.With("component", "dispatch", "channel", channel),
	}
}

func (a *Adapter) Channel() string { return a.channel }

// Deliver sends alert and reports whether it was delivered
func (a *Adapter) Deliver(ctx context.Context, alert Alert) bool {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	type result struct {
		sent bool
		err  error
	}
	done := make(chan result, 1)
	go func() {
		sent, err := a.dispatcher.Send(ctx, alert, a.destination)
		done <- result{sent: sent, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			appErr := apperrors.NewDispatchError(r.err, a.channel).WithContext("rule", alert.Rule)
			a.logger.Warn("Alert dispatch failed", appErr.LogFields()...)
			return false
		}
		if !r.sent {
			a.logger.Warn("Alert not delivered", "rule", alert.Rule)
		}
		return r.sent
	case <-ctx.Done():
		a.logger.Warn("Alert dispatch timed out", "rule", alert.Rule, "timeout", a.timeout, "error", ctx.Err())
		return false
	}
}
