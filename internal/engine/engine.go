// Package engine runs one alerting tick: every rule is read, evaluated,
// deduplicated against the ledger and dispatched.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vladimiradmaev/glucose-alerts/internal/dispatch"
	"github.com/vladimiradmaev/glucose-alerts/internal/domain"
	apperrors "github.com/vladimiradmaev/glucose-alerts/internal/errors"
	"github.com/vladimiradmaev/glucose-alerts/internal/ledger"
	"github.com/vladimiradmaev/glucose-alerts/internal/lock"
	"github.com/vladimiradmaev/glucose-alerts/internal/metrics"
	"github.com/vladimiradmaev/glucose-alerts/internal/rules"
)

// WindowReader reads the history a rule needs
type WindowReader interface {
	Read(ctx context.Context, req rules.Requirements, now time.Time) (rules.Window, error)
}

// Deliverer delivers an alert and reports whether it arrived
type Deliverer interface {
	Deliver(ctx context.Context, alert dispatch.Alert) bool
}

type Options struct {
	// DryRun evaluates rules without claiming, dispatching or recording anything
	DryRun bool
}

type Engine struct {
	registry  *rules.Registry
	reader    WindowReader
	ledger    ledger.Ledger
	locker    lock.Locker
	deliverer Deliverer
	logger    *slog.Logger
	clock     func() time.Time
}

func New(registry *rules.Registry, reader WindowReader, l ledger.Ledger, locker lock.Locker, deliverer Deliverer, logger *slog.Logger) *Engine {
	return &Engine{
		registry:  registry,
		reader:    reader,
		ledger:    l,
		locker:    locker,
		deliverer: deliverer,
		logger:    logger.With("component", "engine"),
		clock:     time.Now,
	}
}

// TriggeredAt is the ledger key time of a tick at now. It is derived from now only,
// so re-running a tick with the same now targets the same ledger rows.
func TriggeredAt(now time.Time) time.Time {
	return now.UTC().Truncate(time.Second)
}

// Tick evaluates every automatic rule in parallel.
// A ledger failure aborts the tick and is returned; events claimed before it stand.
func (e *Engine) Tick(ctx context.Context, now time.Time, opts Options) (*Report, error) {
	return e.run(ctx, e.registry.Auto(), now, opts)
}

// Trigger evaluates a single rule by name, manual-only rules included
func (e *Engine) Trigger(ctx context.Context, name string, now time.Time, opts Options) (*Report, error) {
	rule, ok := e.registry.Get(name)
	if !ok {
		return nil, apperrors.NewUnknownRuleError(name)
	}
	return e.run(ctx, []rules.Rule{rule}, now, opts)
}

func (e *Engine) run(ctx context.Context, list []rules.Rule, now time.Time, opts Options) (*Report, error) {
	start := time.Now()
	report := &Report{
		RunID:   uuid.NewString(),
		Now:     TriggeredAt(now),
		DryRun:  opts.DryRun,
		Results: make([]Result, len(list)),
	}
	log := e.logger.With("run_id", report.RunID, "dry_run", opts.DryRun)
	log.Info("Tick started", "now", report.Now, "rules", len(list))

	g, gctx := errgroup.WithContext(ctx)
	for i, rule := range list {
		i, rule := i, rule
		report.Results[i] = Result{Rule: rule.Name()}
		g.Go(func() error {
			res, err := e.evaluate(gctx, rule, report.Now, opts, report.RunID, log)
			report.Results[i] = res
			return err
		})
	}
	err := g.Wait()

	for _, res := range report.Results {
		if res.Status == "" {
			continue
		}
		metrics.RuleEvaluationsTotal.WithLabelValues(res.Rule, string(res.Status)).Inc()
	}
	metrics.TickDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if apperrors.IsLedger(err) {
			metrics.LedgerErrorsTotal.Inc()
		}
		log.Error("Tick failed", "error", err, "fired", report.Count(StatusFired))
		return report, fmt.Errorf("tick %s: %w", report.RunID, err)
	}

	metrics.LastTickTimestamp.SetToCurrentTime()
	log.Info("Tick completed",
		"fired", report.Count(StatusFired),
		"failed", report.Count(StatusFailed),
		"would_fire", report.Count(StatusWouldFire),
		"duration", time.Since(start))
	return report, nil
}

// evaluate runs one rule through snooze, cooldown, window read, predicate, claim and dispatch.
// Only ledger failures and cancellation are returned as errors.
func (e *Engine) evaluate(ctx context.Context, rule rules.Rule, now time.Time, opts Options, runID string, log *slog.Logger) (Result, error) {
	name := rule.Name()
	res := Result{Rule: name}
	log = log.With("rule", name)

	if err := ctx.Err(); err != nil {
		return res, err
	}

	snoozed, err := e.ledger.IsSnoozed(ctx, name, now)
	if err != nil {
		return res, err
	}
	if snoozed {
		res.Status = StatusSnoozed
		log.Info("Rule snoozed")
		return res, nil
	}

	fired, err := e.ledger.RecentlyFired(ctx, name, rule.Cooldown(), now)
	if err != nil {
		return res, err
	}
	if fired {
		res.Status = StatusCooldown
		log.Debug("Rule in cooldown", "cooldown", rule.Cooldown())
		return res, nil
	}

	w, err := e.reader.Read(ctx, rule.Requirements(), now)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		appErr := apperrors.NewDataUnavailableError(err, name)
		res.Status = StatusNoData
		res.Err = appErr
		log.Warn("Window read failed", appErr.LogFields()...)
		return res, nil
	}

	d := rule.Evaluate(w, now)
	res.Fields = d.Fields
	if !d.Fires {
		res.Status = StatusQuiet
		if len(w.Readings) == 0 {
			res.Status = StatusNoData
		}
		log.Debug("Rule quiet", "status", res.Status, "readings", len(w.Readings))
		return res, nil
	}
	res.Message = d.Message

	if opts.DryRun {
		res.Status = StatusWouldFire
		log.Info("Rule would fire", "message", d.Message)
		return res, nil
	}

	event, claimed, err := e.claim(ctx, rule, now, d.Message)
	if err != nil {
		return res, err
	}
	if !claimed {
		res.Status = StatusDuplicate
		log.Info("Rule already claimed by a concurrent tick")
		return res, nil
	}
	res.EventID = event.ID

	// the claim is durable now; finish recording its outcome even if the tick is cancelled
	ctx = context.WithoutCancel(ctx)
	sent := e.deliverer.Deliver(ctx, dispatch.Alert{
		Rule:        name,
		Message:     d.Message,
		TriggeredAt: now,
		RunID:       runID,
	})
	if err := e.ledger.MarkDispatched(ctx, event.ID, sent, e.clock()); err != nil {
		return res, err
	}

	outcome := "sent"
	res.Status = StatusFired
	if !sent {
		outcome = "failed"
		res.Status = StatusFailed
	}
	metrics.DispatchTotal.WithLabelValues(name, outcome).Inc()
	log.Info("Rule fired", "event_id", event.ID, "sent", sent)
	return res, nil
}

// claim serializes the atomic check and insert per rule name
func (e *Engine) claim(ctx context.Context, rule rules.Rule, now time.Time, message string) (*domain.AlertEvent, bool, error) {
	unlock, err := e.locker.Lock(ctx, rule.Name())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, false, ctxErr
		}
		return nil, false, apperrors.NewLedgerError(err, "lock").WithContext("rule", rule.Name())
	}
	defer unlock()
	return e.ledger.Claim(ctx, rule.Name(), rule.Cooldown(), now, message)
}
