package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vladimiradmaev/glucose-alerts/internal/domain"
	"github.com/vladimiradmaev/glucose-alerts/internal/engine"
	"github.com/vladimiradmaev/glucose-alerts/internal/ledger"
)

// LatestReader returns the most recent glucose reading
type LatestReader interface {
	Latest(ctx context.Context) (*domain.Reading, error)
}

// Status is a read-only snapshot of the alerting state
type Status struct {
	Now     time.Time
	Latest  *domain.Reading
	Report  *engine.Report // dry-run tick
	Snoozes []domain.Snooze
	History []domain.AlertEvent // last 24 hours
}

type MonitorService struct {
	engine   *engine.Engine
	ledger   ledger.Ledger
	readings LatestReader
	loc      *time.Location
	logger   *slog.Logger
	clock    func() time.Time
}

func NewMonitorService(e *engine.Engine, l ledger.Ledger, readings LatestReader, loc *time.Location, logger *slog.Logger) *MonitorService {
	return &MonitorService{
		engine:   e,
		ledger:   l,
		readings: readings,
		loc:      loc,
		logger:   logger.With("component", "monitor"),
		clock:    time.Now,
	}
}

// Tick runs one periodic evaluation of every automatic rule
func (s *MonitorService) Tick(ctx context.Context, dryRun bool) (*engine.Report, error) {
	return s.engine.Tick(ctx, s.clock(), engine.Options{DryRun: dryRun})
}

// Trigger runs one rule on demand, manual-only rules included
func (s *MonitorService) Trigger(ctx context.Context, rule string, dryRun bool) (*engine.Report, error) {
	return s.engine.Trigger(ctx, rule, s.clock(), engine.Options{DryRun: dryRun})
}

// Status evaluates every rule in dry-run mode and collects snoozes and recent alerts
func (s *MonitorService) Status(ctx context.Context) (*Status, error) {
	now := s.clock()
	st := &Status{Now: now}

	latest, err := s.readings.Latest(ctx)
	if err != nil {
		s.logger.Warn("Failed to read latest glucose", "error", err)
	}
	st.Latest = latest

	if st.Report, err = s.engine.Tick(ctx, now, engine.Options{DryRun: true}); err != nil {
		return nil, fmt.Errorf("failed to evaluate rules: %w", err)
	}
	if st.Snoozes, err = s.ledger.ActiveSnoozes(ctx, now); err != nil {
		return nil, fmt.Errorf("failed to list snoozes: %w", err)
	}
	if st.History, err = s.ledger.History(ctx, "", now.Add(-24*time.Hour)); err != nil {
		return nil, fmt.Errorf("failed to load alert history: %w", err)
	}
	return st, nil
}

// Format renders the status for chat and terminal output
func (s *MonitorService) Format(st *Status) string {
	var b strings.Builder
	if st.Latest != nil {
		age := st.Now.Sub(st.Latest.Timestamp).Round(time.Minute)
		fmt.Fprintf(&b, "Glucose: %d %s at %s (%d min ago)\n",
			st.Latest.Value, st.Latest.Arrow(), st.Latest.Timestamp.In(s.loc).Format("15:04"), int(age.Minutes()))
	} else {
		b.WriteString("Glucose: no readings\n")
	}

	b.WriteString(st.Report.String())
	b.WriteString("\n")
	b.WriteString(FormatSnoozes(st.Snoozes, st.Now, s.loc))

	fmt.Fprintf(&b, "\nAlerts in the last 24h: %d", len(st.History))
	for _, e := range st.History {
		result := "sent"
		switch {
		case e.Pending():
			result = "pending"
		case !e.Sent:
			result = "failed"
		}
		fmt.Fprintf(&b, "\n  %s %s (%s)", e.TriggeredAt.In(s.loc).Format("Jan 2 15:04"), e.RuleName, result)
	}
	return b.String()
}
