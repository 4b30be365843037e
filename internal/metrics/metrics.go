package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	// Engine metrics
	RuleEvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "glucose_alerts_rule_evaluations_total",
			Help: "Total number of rule evaluations by outcome",
		},
		[]string{"rule", "status"}, // status: snoozed, cooldown, no_data, quiet, would_fire, fired, failed, duplicate
	)

	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "glucose_alerts_tick_duration_seconds",
			Help:    "Time taken by one engine tick",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	LastTickTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "glucose_alerts_last_tick_timestamp_seconds",
			Help: "Unix time of the last completed tick",
		},
	)

	// Dispatch metrics
	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "glucose_alerts_dispatch_total",
			Help: "Total number of alert dispatch attempts",
		},
		[]string{"rule", "outcome"}, // outcome: sent, failed
	)

	// Ledger metrics
	LedgerErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "glucose_alerts_ledger_errors_total",
			Help: "Total number of ledger failures that aborted a tick",
		},
	)
)

// Push sends the default registry to a Pushgateway.
// Ticks are too short-lived to be scraped.
func Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(prometheus.DefaultGatherer).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}
