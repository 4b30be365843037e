package rules

import (
	"fmt"
	"time"

	"github.com/vladimiradmaev/glucose-alerts/internal/config"
)

// SustainedHigh fires when the trailing average and the current value are both high
type SustainedHigh struct {
	cooldown         time.Duration
	lookback         time.Duration
	averageThreshold float64
	currentThreshold int
	insulin          insulinModel
	loc              *time.Location
}

func NewSustainedHigh(cfg config.SustainedHighConfig, insulin config.InsulinConfig, loc *time.Location) *SustainedHigh {
	return &SustainedHigh{
		cooldown:         config.Minutes(cfg.CooldownMinutes),
		lookback:         config.Minutes(cfg.LookbackMinutes),
		averageThreshold: cfg.AverageThreshold,
		currentThreshold: cfg.CurrentThreshold,
		insulin:          newInsulinModel(insulin),
		loc:              loc,
	}
}

func (r *SustainedHigh) Name() string            { return NameSustainedHigh }
func (r *SustainedHigh) Cooldown() time.Duration { return r.cooldown }
func (r *SustainedHigh) ManualOnly() bool        { return false }

func (r *SustainedHigh) Requirements() Requirements {
	return Requirements{Lookback: r.lookback, DoseHistory: r.insulin.history()}
}

func (r *SustainedHigh) Evaluate(w Window, now time.Time) Decision {
	latest := w.Latest()
	if latest == nil {
		return quiet()
	}

	var sum int
	for _, rd := range w.Readings {
		sum += rd.Value
	}
	avg := float64(sum) / float64(len(w.Readings))

	if avg <= r.averageThreshold || latest.Value <= r.currentThreshold {
		return quiet()
	}

	iob := r.insulin.IOB(w.Doses, now)
	corr := r.insulin.correction(latest.Value, iob)
	msg := fmt.Sprintf("⚠️ Sustained high: avg %.0f over %d min, currently %d%s (%s). Consider correction.\n%s",
		avg, minutes(r.lookback), latest.Value, arrow(w.Readings), clock(latest.Timestamp, r.loc),
		r.insulin.contextLine(w.Doses, now, r.loc))
	if corr > 0 {
		msg += fmt.Sprintf(" Suggested correction: ~%.1fu (BG %d, target %d, ISF %.0f).",
			corr, latest.Value, r.insulin.target, r.insulin.sensitivity)
	}

	return Decision{
		Fires:   true,
		Message: msg,
		Fields: map[string]any{
			"current":              latest.Value,
			"average":              avg,
			"samples":              len(w.Readings),
			"iob":                  iob,
			"suggested_correction": corr,
		},
	}
}
