package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vladimiradmaev/glucose-alerts/internal/domain"
	apperrors "github.com/vladimiradmaev/glucose-alerts/internal/errors"
	"github.com/vladimiradmaev/glucose-alerts/internal/ledger"
	"github.com/vladimiradmaev/glucose-alerts/internal/rules"
)

// MaxSnooze is the longest snooze accepted from a command
const MaxSnooze = 24 * time.Hour

type SnoozeService struct {
	ledger   ledger.Ledger
	registry *rules.Registry
	clock    func() time.Time
}

func NewSnoozeService(l ledger.Ledger, registry *rules.Registry) *SnoozeService {
	return &SnoozeService{
		ledger:   l,
		registry: registry,
		clock:    time.Now,
	}
}

// target normalizes a snooze target and rejects unknown rule names
func (s *SnoozeService) target(rule string) (string, error) {
	name := strings.ToUpper(strings.TrimSpace(rule))
	if name == domain.AllRules {
		return name, nil
	}
	if _, ok := s.registry.Get(name); !ok {
		return "", apperrors.NewUnknownRuleError(rule).
			WithContext("known", strings.Join(s.registry.Names(), ", "))
	}
	return name, nil
}

// Snooze silences rule (or ALL) for d starting now
func (s *SnoozeService) Snooze(ctx context.Context, rule string, d time.Duration, reason string) (domain.Snooze, error) {
	name, err := s.target(rule)
	if err != nil {
		return domain.Snooze{}, err
	}
	if d <= 0 || d > MaxSnooze {
		return domain.Snooze{}, apperrors.NewInvalidDurationError(
			fmt.Sprintf("snooze duration must be positive and at most %s, got %s", MaxSnooze, d))
	}

	snooze, err := s.ledger.Snooze(ctx, name, d, s.clock(), reason)
	if err != nil {
		return domain.Snooze{}, fmt.Errorf("failed to snooze %s: %w", name, err)
	}
	return snooze, nil
}

// Unsnooze clears the snooze of rule; an empty rule or ALL clears every snooze
func (s *SnoozeService) Unsnooze(ctx context.Context, rule string) (int, error) {
	name := domain.AllRules
	if strings.TrimSpace(rule) != "" {
		var err error
		if name, err = s.target(rule); err != nil {
			return 0, err
		}
	}

	n, err := s.ledger.Unsnooze(ctx, name, s.clock())
	if err != nil {
		return 0, fmt.Errorf("failed to unsnooze %s: %w", name, err)
	}
	return n, nil
}

func (s *SnoozeService) Active(ctx context.Context) ([]domain.Snooze, error) {
	snoozes, err := s.ledger.ActiveSnoozes(ctx, s.clock())
	if err != nil {
		return nil, fmt.Errorf("failed to list snoozes: %w", err)
	}
	return snoozes, nil
}

// FormatSnoozes renders active snoozes one per line in loc
func FormatSnoozes(snoozes []domain.Snooze, now time.Time, loc *time.Location) string {
	if len(snoozes) == 0 {
		return "No active snoozes."
	}
	var b strings.Builder
	b.WriteString("Active snoozes:")
	for _, s := range snoozes {
		left := s.Until.Sub(now).Round(time.Minute)
		fmt.Fprintf(&b, "\n  %s until %s (%d min left)", s.RuleName, s.Until.In(loc).Format("15:04"), int(left.Minutes()))
	}
	return b.String()
}
