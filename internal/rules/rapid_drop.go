package rules

import (
	"fmt"
	"time"

	"github.com/vladimiradmaev/glucose-alerts/internal/config"
	"github.com/vladimiradmaev/glucose-alerts/internal/domain"
)

// RapidDrop fires when glucose fell sharply since about one lookback ago.
// The reference is the sample closest to now-lookback; exact alignment is not required.
type RapidDrop struct {
	cooldown      time.Duration
	lookback      time.Duration
	dropThreshold int
	minSpan       time.Duration
	insulin       insulinModel
	loc           *time.Location
}

func NewRapidDrop(cfg config.RapidDropConfig, insulin config.InsulinConfig, loc *time.Location) *RapidDrop {
	return &RapidDrop{
		cooldown:      config.Minutes(cfg.CooldownMinutes),
		lookback:      config.Minutes(cfg.LookbackMinutes),
		dropThreshold: cfg.DropThreshold,
		minSpan:       config.Minutes(cfg.MinSpanMinutes),
		insulin:       newInsulinModel(insulin),
		loc:           loc,
	}
}

func (r *RapidDrop) Name() string            { return NameRapidDrop }
func (r *RapidDrop) Cooldown() time.Duration { return r.cooldown }
func (r *RapidDrop) ManualOnly() bool        { return false }

func (r *RapidDrop) Requirements() Requirements {
	return Requirements{Lookback: r.lookback, DoseHistory: r.insulin.active}
}

func (r *RapidDrop) Evaluate(w Window, now time.Time) Decision {
	if len(w.Readings) < 2 {
		return quiet()
	}
	current := w.Readings[len(w.Readings)-1]
	ref := closestTo(w.Readings[:len(w.Readings)-1], now.Add(-r.lookback))

	span := current.Timestamp.Sub(ref.Timestamp)
	if span < r.minSpan || span <= 0 {
		return quiet()
	}

	delta := current.Value - ref.Value
	if delta >= -r.dropThreshold {
		return quiet()
	}

	drop := -delta
	elapsed := minutes(span)
	perHour := float64(drop) / span.Hours()

	iob := r.insulin.IOB(w.Doses, now)
	note := r.insulin.note(iob)
	if iob > 0 {
		note += " Consider fast carbs now."
	}

	msg := fmt.Sprintf("⚠️ Rapid drop: %d→%d (-%d mg/dL) in %d min (%.0f/hr) as of %s.\n%s",
		ref.Value, current.Value, drop, elapsed, perHour, clock(current.Timestamp, r.loc), note)

	return Decision{
		Fires:   true,
		Message: msg,
		Fields: map[string]any{
			"from":        ref.Value,
			"current":     current.Value,
			"drop":        drop,
			"elapsed_min": elapsed,
		},
	}
}

// closestTo returns the reading whose timestamp is nearest target; earlier wins ties
func closestTo(readings []domain.Reading, target time.Time) domain.Reading {
	best := readings[0]
	bestDist := absDuration(best.Timestamp.Sub(target))
	for _, rd := range readings[1:] {
		if d := absDuration(rd.Timestamp.Sub(target)); d < bestDist {
			best, bestDist = rd, d
		}
	}
	return best
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
