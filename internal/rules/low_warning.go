package rules

import (
	"fmt"
	"math"
	"time"

	"github.com/vladimiradmaev/glucose-alerts/internal/config"
)

// LowWarning catches gradual lows that RapidDrop misses.
//
// It fires when the value projected 15 minutes ahead is below the low threshold,
// when the value is near low while insulin is active and falling, or when it is
// already low. A value at or above the low threshold that is not falling never fires.
type LowWarning struct {
	cooldown     time.Duration
	lookback     time.Duration
	low          int
	nearLow      int
	iobThreshold float64
	fallingRate  float64
	insulin      insulinModel
	loc          *time.Location
}

func NewLowWarning(cfg config.LowWarningConfig, insulin config.InsulinConfig, loc *time.Location) *LowWarning {
	return &LowWarning{
		cooldown:     config.Minutes(cfg.CooldownMinutes),
		lookback:     config.Minutes(cfg.LookbackMinutes),
		low:          cfg.LowThreshold,
		nearLow:      cfg.NearLowThreshold,
		iobThreshold: cfg.IOBThreshold,
		fallingRate:  cfg.FallingRate,
		insulin:      newInsulinModel(insulin),
		loc:          loc,
	}
}

func (r *LowWarning) Name() string            { return NameLowWarning }
func (r *LowWarning) Cooldown() time.Duration { return r.cooldown }
func (r *LowWarning) ManualOnly() bool        { return false }

func (r *LowWarning) Requirements() Requirements {
	return Requirements{Lookback: r.lookback, DoseHistory: r.insulin.active}
}

func (r *LowWarning) Evaluate(w Window, now time.Time) Decision {
	latest := w.Latest()
	if latest == nil {
		return quiet()
	}
	current := latest.Value
	rate := trendRate(w.Readings)

	if current >= r.low && describeRate(rate) != "falling" {
		return quiet()
	}

	iob := r.insulin.IOB(w.Doses, now)
	projected := float64(current) + rate
	projectedLow := projected < float64(r.low)
	insulinDriven := current < r.nearLow && iob > r.iobThreshold && rate < r.fallingRate
	alreadyLow := current < r.low

	if !projectedLow && !insulinDriven && !alreadyLow {
		return quiet()
	}

	var iobNote string
	if iob > 0 {
		iobNote = fmt.Sprintf(" IOB ~%.1fu (est. further drop ~%.0f mg/dL).", iob, iob*r.insulin.sensitivity)
	}

	var msg string
	if projectedLow || alreadyLow {
		msg = fmt.Sprintf("⚠️ Low warning: BG %d%s (%s), %+.0f/15min, projected %.0f in 15 min.%s\n~15-20g fast carbs recommended.",
			current, arrow(w.Readings), clock(latest.Timestamp, r.loc), rate, math.Round(projected), iobNote)
	} else {
		msg = fmt.Sprintf("⚠️ Low warning: BG %d%s (%s) with active insulin.%s\nConsider fast carbs, IOB may push BG lower.",
			current, arrow(w.Readings), clock(latest.Timestamp, r.loc), iobNote)
	}

	return Decision{
		Fires:   true,
		Message: msg,
		Fields: map[string]any{
			"current":   current,
			"rate_15m":  rate,
			"projected": math.Round(projected),
			"iob":       iob,
		},
	}
}
