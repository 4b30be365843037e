package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/vladimiradmaev/glucose-alerts/internal/dispatch"
	"github.com/vladimiradmaev/glucose-alerts/internal/domain"
	"github.com/vladimiradmaev/glucose-alerts/internal/engine"
	apperrors "github.com/vladimiradmaev/glucose-alerts/internal/errors"
	"github.com/vladimiradmaev/glucose-alerts/internal/ledger"
	"github.com/vladimiradmaev/glucose-alerts/internal/lock"
	"github.com/vladimiradmaev/glucose-alerts/internal/rules"
)

var t0 = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return t0 }

type alwaysHigh struct{ name string }

func (r alwaysHigh) Name() string                     { return r.name }
func (r alwaysHigh) Cooldown() time.Duration          { return time.Hour }
func (r alwaysHigh) ManualOnly() bool                 { return false }
func (r alwaysHigh) Requirements() rules.Requirements { return rules.Requirements{Lookback: time.Hour} }

func (r alwaysHigh) Evaluate(w rules.Window, now time.Time) rules.Decision {
	return rules.Decision{Fires: true, Message: r.name + " is high"}
}

type emptyReader struct{}

func (emptyReader) Read(ctx context.Context, req rules.Requirements, now time.Time) (rules.Window, error) {
	return rules.Window{}, nil
}

type okDeliverer struct{}

func (okDeliverer) Deliver(ctx context.Context, alert dispatch.Alert) bool { return true }

type fixedLatest struct{ r *domain.Reading }

func (f fixedLatest) Latest(ctx context.Context) (*domain.Reading, error) { return f.r, nil }

func testRegistry(t *testing.T) *rules.Registry {
	t.Helper()
	reg, err := rules.NewRegistryFrom(alwaysHigh{name: "SUSTAINED_HIGH"}, alwaysHigh{name: "RAPID_DROP"})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return reg
}

func newSnoozeService(t *testing.T) (*SnoozeService, *ledger.MemoryLedger) {
	l := ledger.NewMemoryLedger(ledger.CooldownDelivered)
	s := NewSnoozeService(l, testRegistry(t))
	s.clock = fixedClock
	return s, l
}

func TestSnoozeValidation(t *testing.T) {
	tests := []struct {
		name     string
		rule     string
		d        time.Duration
		wantCode string
	}{
		{"known rule", "SUSTAINED_HIGH", 2 * time.Hour, ""},
		{"lowercase rule", "rapid_drop", 30 * time.Minute, ""},
		{"all rules", "all", time.Hour, ""},
		{"max duration", "SUSTAINED_HIGH", MaxSnooze, ""},
		{"unknown rule", "NOT_A_RULE", time.Hour, "UNKNOWN_RULE"},
		{"zero duration", "SUSTAINED_HIGH", 0, "INVALID_DURATION"},
		{"negative duration", "SUSTAINED_HIGH", -time.Minute, "INVALID_DURATION"},
		{"too long", "SUSTAINED_HIGH", MaxSnooze + time.Minute, "INVALID_DURATION"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newSnoozeService(t)
			snooze, err := s.Snooze(context.Background(), tt.rule, tt.d, "test")
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if !snooze.Until.Equal(t0.Add(tt.d)) {
					t.Errorf("until: want %s, got %s", t0.Add(tt.d), snooze.Until)
				}
				if snooze.RuleName != strings.ToUpper(tt.rule) {
					t.Errorf("rule: got %s", snooze.RuleName)
				}
				return
			}
			if !apperrors.IsValidation(err) {
				t.Fatalf("want validation error, got %v", err)
			}
			var appErr *apperrors.AppError
			if !errors.As(err, &appErr) || appErr.Code != tt.wantCode {
				t.Errorf("want code %s, got %v", tt.wantCode, err)
			}
		})
	}
}

func TestUnsnooze(t *testing.T) {
	s, l := newSnoozeService(t)
	ctx := context.Background()
	for _, rule := range []string{"SUSTAINED_HIGH", "RAPID_DROP"} {
		if _, err := s.Snooze(ctx, rule, time.Hour, "test"); err != nil {
			t.Fatalf("snooze %s: %v", rule, err)
		}
	}

	if _, err := s.Unsnooze(ctx, "BOGUS"); !apperrors.IsValidation(err) {
		t.Errorf("unknown rule: want validation error, got %v", err)
	}

	n, err := s.Unsnooze(ctx, "sustained_high")
	if err != nil || n != 1 {
		t.Fatalf("unsnooze one: n=%d err=%v", n, err)
	}
	if snoozed, _ := l.IsSnoozed(ctx, "RAPID_DROP", t0); !snoozed {
		t.Error("other snooze cleared")
	}

	n, err = s.Unsnooze(ctx, "")
	if err != nil || n != 1 {
		t.Fatalf("unsnooze all: n=%d err=%v", n, err)
	}
	active, err := s.Active(ctx)
	if err != nil || len(active) != 0 {
		t.Fatalf("active after unsnooze: %v, err %v", active, err)
	}
}

func TestFormatSnoozes(t *testing.T) {
	if got := FormatSnoozes(nil, t0, time.UTC); got != "No active snoozes." {
		t.Errorf("empty: %q", got)
	}
	got := FormatSnoozes([]domain.Snooze{{RuleName: "ALL", Until: t0.Add(90 * time.Minute)}}, t0, time.UTC)
	if !strings.Contains(got, "ALL until 13:30 (90 min left)") {
		t.Errorf("got %q", got)
	}
}

func TestMonitorStatus(t *testing.T) {
	l := ledger.NewMemoryLedger(ledger.CooldownDelivered)
	reg := testRegistry(t)
	e := engine.New(reg, emptyReader{}, l, lock.NewLocalLocker(), okDeliverer{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	latest := &domain.Reading{Timestamp: t0.Add(-4 * time.Minute), Value: 142, Trend: domain.TrendRising}
	m := NewMonitorService(e, l, fixedLatest{latest}, time.UTC, slog.New(slog.NewTextHandler(io.Discard, nil)))
	m.clock = fixedClock
	ctx := context.Background()

	if _, err := l.Snooze(ctx, "RAPID_DROP", time.Hour, t0.Add(-time.Minute), "test"); err != nil {
		t.Fatalf("snooze: %v", err)
	}
	sentAt := t0.Add(-time.Hour)
	if _, err := l.Record(ctx, domain.AlertEvent{RuleName: "SUSTAINED_HIGH", TriggeredAt: sentAt, Message: "old", Sent: true, DispatchedAt: &sentAt}); err != nil {
		t.Fatalf("record: %v", err)
	}

	st, err := m.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !st.Report.DryRun {
		t.Error("status must not run a live tick")
	}
	if len(st.Snoozes) != 1 || len(st.History) != 1 {
		t.Fatalf("snoozes %d, history %d", len(st.Snoozes), len(st.History))
	}

	out := m.Format(st)
	for _, want := range []string{"Glucose: 142 ↑ at 11:56 (4 min ago)", "RAPID_DROP until 12:59", "[DRY RUN]", "SUSTAINED_HIGH (sent)"} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}

	// status is read-only
	if history, _ := l.History(ctx, "", t0.Add(-24*time.Hour)); len(history) != 1 {
		t.Errorf("status appended events: %d", len(history))
	}
}

func TestMonitorTrigger(t *testing.T) {
	l := ledger.NewMemoryLedger(ledger.CooldownDelivered)
	e := engine.New(testRegistry(t), emptyReader{}, l, lock.NewLocalLocker(), okDeliverer{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	m := NewMonitorService(e, l, fixedLatest{}, time.UTC, slog.New(slog.NewTextHandler(io.Discard, nil)))
	m.clock = fixedClock

	report, err := m.Trigger(context.Background(), "RAPID_DROP", false)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if len(report.Results) != 1 || report.Results[0].Status != engine.StatusFired {
		t.Fatalf("report: %+v", report.Results)
	}
	if _, err := m.Trigger(context.Background(), "NOPE", false); !apperrors.IsValidation(err) {
		t.Errorf("want validation error, got %v", err)
	}
}
