package rules

import (
	"fmt"
	"time"

	"github.com/vladimiradmaev/glucose-alerts/internal/config"
	"github.com/vladimiradmaev/glucose-alerts/internal/utils"
)

// OvernightHigh fires when every reading of a trailing overnight span stayed above the threshold.
// A reading at or below the threshold, a reading outside the local overnight window, or a
// sampling gap longer than maxGap ends the span.
type OvernightHigh struct {
	cooldown    time.Duration
	start, end  int // local minutes since midnight
	lookback    time.Duration
	minDuration time.Duration
	threshold   int
	maxGap      time.Duration
	insulin     insulinModel
	loc         *time.Location
}

func NewOvernightHigh(cfg config.OvernightHighConfig, insulin config.InsulinConfig, loc *time.Location) (*OvernightHigh, error) {
	start, err := config.ParseClock(cfg.Start)
	if err != nil {
		return nil, fmt.Errorf("overnight_high start: %w", err)
	}
	end, err := config.ParseClock(cfg.End)
	if err != nil {
		return nil, fmt.Errorf("overnight_high end: %w", err)
	}
	return &OvernightHigh{
		cooldown:    config.Minutes(cfg.CooldownMinutes),
		start:       start,
		end:         end,
		lookback:    config.Minutes(cfg.LookbackMinutes),
		minDuration: config.Minutes(cfg.MinDurationMinutes),
		threshold:   cfg.Threshold,
		maxGap:      config.Minutes(cfg.MaxGapMinutes),
		insulin:     newInsulinModel(insulin),
		loc:         loc,
	}, nil
}

func (r *OvernightHigh) Name() string            { return NameOvernightHigh }
func (r *OvernightHigh) Cooldown() time.Duration { return r.cooldown }
func (r *OvernightHigh) ManualOnly() bool        { return false }

func (r *OvernightHigh) Requirements() Requirements {
	return Requirements{Lookback: r.lookback, DoseHistory: r.insulin.history()}
}

func (r *OvernightHigh) overnight(t time.Time) bool {
	return utils.InClockWindow(t, r.loc, r.start, r.end)
}

func (r *OvernightHigh) Evaluate(w Window, now time.Time) Decision {
	if !r.overnight(now) {
		return quiet()
	}
	latest := w.Latest()
	if latest == nil || now.Sub(latest.Timestamp) > r.maxGap {
		return quiet()
	}
	if latest.Value <= r.threshold || !r.overnight(latest.Timestamp) {
		return quiet()
	}

	first := len(w.Readings) - 1
	sum := latest.Value
	for i := len(w.Readings) - 2; i >= 0; i-- {
		rd := w.Readings[i]
		if rd.Value <= r.threshold || !r.overnight(rd.Timestamp) {
			break
		}
		if w.Readings[i+1].Timestamp.Sub(rd.Timestamp) > r.maxGap {
			break
		}
		first = i
		sum += rd.Value
	}

	duration := latest.Timestamp.Sub(w.Readings[first].Timestamp)
	if duration < r.minDuration {
		return quiet()
	}

	count := len(w.Readings) - first
	avg := float64(sum) / float64(count)
	iob := r.insulin.IOB(w.Doses, now)
	corr := r.insulin.correction(latest.Value, iob)
	msg := fmt.Sprintf("🌙 Overnight high: above %d for %d min (avg %.0f). Currently %d%s (%s).\n%s",
		r.threshold, minutes(duration), avg, latest.Value, arrow(w.Readings), clock(latest.Timestamp, r.loc),
		r.insulin.contextLine(w.Doses, now, r.loc))
	if corr > 0 {
		msg += fmt.Sprintf(" Small correction of ~%.1fu would target %d.", corr, r.insulin.target)
	}

	return Decision{
		Fires:   true,
		Message: msg,
		Fields: map[string]any{
			"current":              latest.Value,
			"duration_min":         minutes(duration),
			"average":              avg,
			"suggested_correction": corr,
		},
	}
}
