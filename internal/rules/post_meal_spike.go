package rules

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/vladimiradmaev/glucose-alerts/internal/config"
	"github.com/vladimiradmaev/glucose-alerts/internal/domain"
)

// PostMealSpike fires when glucose rises sharply in the hours after the latest meal
type PostMealSpike struct {
	cooldown          time.Duration
	mealHorizon       time.Duration
	baselineTolerance time.Duration
	minOffset         time.Duration
	maxOffset         time.Duration
	riseThreshold     int
	similarCarbs      float64
	insulin           insulinModel
	loc               *time.Location
}

func NewPostMealSpike(cfg config.PostMealSpikeConfig, insulin config.InsulinConfig, loc *time.Location) *PostMealSpike {
	return &PostMealSpike{
		cooldown:          config.Minutes(cfg.CooldownMinutes),
		mealHorizon:       config.Minutes(cfg.MealHorizonMinutes),
		baselineTolerance: config.Minutes(cfg.BaselineToleranceMinutes),
		minOffset:         config.Minutes(cfg.MinOffsetMinutes),
		maxOffset:         config.Minutes(cfg.MaxOffsetMinutes),
		riseThreshold:     cfg.RiseThreshold,
		similarCarbs:      cfg.SimilarCarbsTolerance,
		insulin:           newInsulinModel(insulin),
		loc:               loc,
	}
}

func (r *PostMealSpike) Name() string            { return NamePostMealSpike }
func (r *PostMealSpike) Cooldown() time.Duration { return r.cooldown }
func (r *PostMealSpike) ManualOnly() bool        { return false }

func (r *PostMealSpike) Requirements() Requirements {
	return Requirements{
		// the baseline may sit just before a meal at the edge of the horizon
		Lookback:     r.mealHorizon + r.baselineTolerance,
		MealHorizon:  r.mealHorizon,
		DoseHistory:  r.insulin.history(),
		SimilarCarbs: r.similarCarbs,
	}
}

func (r *PostMealSpike) Evaluate(w Window, now time.Time) Decision {
	meal := w.Meal
	if meal == nil || meal.Timestamp.After(now) {
		return quiet()
	}

	baseline, ok := r.baseline(w.Readings, meal.Timestamp)
	if !ok {
		return quiet()
	}

	var peak *domain.Reading
	for i := range w.Readings {
		rd := &w.Readings[i]
		offset := rd.Timestamp.Sub(meal.Timestamp)
		if offset < r.minOffset || offset > r.maxOffset || rd.Timestamp.After(now) {
			continue
		}
		if peak == nil || rd.Value > peak.Value {
			peak = rd
		}
	}
	if peak == nil {
		return quiet()
	}

	rise := peak.Value - baseline.Value
	if rise <= r.riseThreshold {
		return quiet()
	}

	elapsed := minutes(peak.Timestamp.Sub(meal.Timestamp))
	desc := strings.TrimSpace(meal.Description)
	if desc == "" {
		desc = "meal"
	}
	if len([]rune(desc)) > 20 {
		desc = string([]rune(desc)[:20])
	}

	msg := fmt.Sprintf("📈 Post-meal spike: +%d mg/dL after %s (%.0fg carbs). Baseline %d, peak %d at %d min after eating (%s).",
		rise, desc, meal.CarbsG, baseline.Value, peak.Value, elapsed, clock(peak.Timestamp, r.loc))
	if latest := w.Latest(); latest != nil {
		msg += fmt.Sprintf(" Current: %d%s (%s).", latest.Value, arrow(w.Readings), clock(latest.Timestamp, r.loc))
	}
	msg += "\n" + r.insulin.contextLine(w.Doses, now, r.loc)
	if note := similarMealsNote(w.SimilarMeals); note != "" {
		msg += "\n" + note
	}

	return Decision{
		Fires:   true,
		Message: msg,
		Fields: map[string]any{
			"baseline":    baseline.Value,
			"peak":        peak.Value,
			"rise":        rise,
			"elapsed_min": elapsed,
		},
	}
}

// baseline is the latest reading at or just before the meal, within the tolerance
func (r *PostMealSpike) baseline(readings []domain.Reading, mealAt time.Time) (domain.Reading, bool) {
	earliest := mealAt.Add(-r.baselineTolerance)
	for i := len(readings) - 1; i >= 0; i-- {
		rd := readings[i]
		if rd.Timestamp.After(mealAt) {
			continue
		}
		if rd.Timestamp.Before(earliest) {
			break
		}
		return rd, true
	}
	return domain.Reading{}, false
}

// similarMealsNote summarizes past outcomes once at least two meals had a measurable spike
func similarMealsNote(outcomes []domain.MealOutcome) string {
	var spikes, units float64
	var spiked, corrected int
	for _, o := range outcomes {
		if o.HasSpike {
			spikes += o.Spike
			spiked++
		}
		if o.Corrected {
			units += o.CorrectionUnits
			corrected++
		}
	}
	if spiked < 2 {
		return ""
	}
	note := fmt.Sprintf("Similar meals averaged %+.0f mg/dL spike", math.Round(spikes/float64(spiked)))
	if corrected > 0 {
		note += fmt.Sprintf("; correction of %.1fu typically helped", units/float64(corrected))
	}
	return note + fmt.Sprintf(" (%d meals).", spiked)
}
