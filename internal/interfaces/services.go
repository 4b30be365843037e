package interfaces

import (
	"context"
	"time"

	"github.com/vladimiradmaev/glucose-alerts/internal/domain"
	"github.com/vladimiradmaev/glucose-alerts/internal/engine"
	"github.com/vladimiradmaev/glucose-alerts/internal/services"
)

// SnoozeServiceInterface defines the contract for snooze commands
type SnoozeServiceInterface interface {
	Snooze(ctx context.Context, rule string, d time.Duration, reason string) (domain.Snooze, error)
	Unsnooze(ctx context.Context, rule string) (int, error)
	Active(ctx context.Context) ([]domain.Snooze, error)
}

// MonitorServiceInterface defines the contract for running and inspecting ticks
type MonitorServiceInterface interface {
	Tick(ctx context.Context, dryRun bool) (*engine.Report, error)
	Trigger(ctx context.Context, rule string, dryRun bool) (*engine.Report, error)
	Status(ctx context.Context) (*services.Status, error)
	Format(st *services.Status) string
}

var (
	_ SnoozeServiceInterface  = (*services.SnoozeService)(nil)
	_ MonitorServiceInterface = (*services.MonitorService)(nil)
)
