package config

import (
	"errors"
	"fmt"
	"time"
)

// RulesConfig holds the thresholds and cooldowns of every alert rule.
// Durations are expressed in whole minutes so the rules file stays readable.
type RulesConfig struct {
	PostMealSpike PostMealSpikeConfig `toml:"post_meal_spike"`
	SustainedHigh SustainedHighConfig `toml:"sustained_high"`
	RapidDrop     RapidDropConfig     `toml:"rapid_drop"`
	OvernightHigh OvernightHighConfig `toml:"overnight_high"`
	PreWorkout    PreWorkoutConfig    `toml:"pre_workout_low_risk"`
	LowWarning    LowWarningConfig    `toml:"low_warning"`
	Insulin       InsulinConfig       `toml:"insulin"`
}

type PostMealSpikeConfig struct {
	CooldownMinutes          int `toml:"cooldown_minutes"`
	MealHorizonMinutes       int `toml:"meal_horizon_minutes"`
	BaselineToleranceMinutes int `toml:"baseline_tolerance_minutes"`
	MinOffsetMinutes         int `toml:"min_offset_minutes"`
	MaxOffsetMinutes         int `toml:"max_offset_minutes"`
	RiseThreshold            int `toml:"rise_threshold"`

	// SimilarCarbsTolerance selects past meals within this many grams for the outcome note; 0 disables it
	SimilarCarbsTolerance float64 `toml:"similar_carbs_tolerance"`
}

type SustainedHighConfig struct {
	CooldownMinutes  int     `toml:"cooldown_minutes"`
	LookbackMinutes  int     `toml:"lookback_minutes"`
	AverageThreshold float64 `toml:"average_threshold"`
	CurrentThreshold int     `toml:"current_threshold"`
}

type RapidDropConfig struct {
	CooldownMinutes int `toml:"cooldown_minutes"`
	LookbackMinutes int `toml:"lookback_minutes"`
	DropThreshold   int `toml:"drop_threshold"`
	MinSpanMinutes  int `toml:"min_span_minutes"`
}

type OvernightHighConfig struct {
	CooldownMinutes    int    `toml:"cooldown_minutes"`
	Start              string `toml:"start"` // local clock, HH:MM
	End                string `toml:"end"`
	LookbackMinutes    int    `toml:"lookback_minutes"`
	MinDurationMinutes int    `toml:"min_duration_minutes"`
	Threshold          int    `toml:"threshold"`
	MaxGapMinutes      int    `toml:"max_gap_minutes"`
}

type PreWorkoutConfig struct {
	CooldownMinutes      int `toml:"cooldown_minutes"`
	HistoryDays          int `toml:"history_days"`
	ProximityMinutes     int `toml:"proximity_minutes"`
	LowThreshold         int `toml:"low_threshold"`
	MaxReadingAgeMinutes int `toml:"max_reading_age_minutes"`
}

type LowWarningConfig struct {
	CooldownMinutes  int     `toml:"cooldown_minutes"`
	LookbackMinutes  int     `toml:"lookback_minutes"`
	LowThreshold     int     `toml:"low_threshold"`
	NearLowThreshold int     `toml:"near_low_threshold"`
	IOBThreshold     float64 `toml:"iob_threshold"`
	FallingRate      float64 `toml:"falling_rate"`
}

type InsulinConfig struct {
	ActiveMinutes     int     `toml:"active_minutes"`
	SensitivityFactor float64 `toml:"sensitivity_factor"`
	TargetBG          int     `toml:"target_bg"` // mg/dL that suggested corrections aim for

	// CorrectionLookbackMinutes bounds the "last correction" context line
	CorrectionLookbackMinutes int `toml:"correction_lookback_minutes"`
}

// DefaultRules returns the built-in rule parameters
func DefaultRules() RulesConfig {
	return RulesConfig{
		PostMealSpike: PostMealSpikeConfig{
			CooldownMinutes:          120,
			MealHorizonMinutes:       240,
			BaselineToleranceMinutes: 30,
			MinOffsetMinutes:         30,
			MaxOffsetMinutes:         120,
			RiseThreshold:            60,
			SimilarCarbsTolerance:    15,
		},
		SustainedHigh: SustainedHighConfig{
			CooldownMinutes:  60,
			LookbackMinutes:  90,
			AverageThreshold: 200,
			CurrentThreshold: 180,
		},
		RapidDrop: RapidDropConfig{
			CooldownMinutes: 120,
			LookbackMinutes: 30,
			DropThreshold:   30,
			MinSpanMinutes:  10,
		},
		OvernightHigh: OvernightHighConfig{
			CooldownMinutes:    60,
			Start:              "23:00",
			End:                "07:00",
			LookbackMinutes:    120,
			MinDurationMinutes: 60,
			Threshold:          160,
			MaxGapMinutes:      15,
		},
		PreWorkout: PreWorkoutConfig{
			CooldownMinutes:      120,
			HistoryDays:          30,
			ProximityMinutes:     30,
			LowThreshold:         120,
			MaxReadingAgeMinutes: 30,
		},
		LowWarning: LowWarningConfig{
			CooldownMinutes:  15,
			LookbackMinutes:  20,
			LowThreshold:     80,
			NearLowThreshold: 90,
			IOBThreshold:     0.5,
			FallingRate:      -5,
		},
		Insulin: InsulinConfig{
			ActiveMinutes:             180,
			SensitivityFactor:         35,
			TargetBG:                  110,
			CorrectionLookbackMinutes: 360,
		},
	}
}

// Minutes converts a minute count from the rules file into a duration
func Minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}

// ParseClock parses a local "HH:MM" clock time into minutes since midnight
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q, want HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Validate rejects non-positive windows and inverted offsets
func (r RulesConfig) Validate() error {
	var errs []error
	positive := func(name string, v int) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("rules.%s must be positive, got %d", name, v))
		}
	}

	p := r.PostMealSpike
	positive("post_meal_spike.cooldown_minutes", p.CooldownMinutes)
	positive("post_meal_spike.meal_horizon_minutes", p.MealHorizonMinutes)
	positive("post_meal_spike.max_offset_minutes", p.MaxOffsetMinutes)
	if p.MinOffsetMinutes < 0 || p.MinOffsetMinutes >= p.MaxOffsetMinutes {
		errs = append(errs, fmt.Errorf("rules.post_meal_spike offsets must satisfy 0 <= min < max, got [%d,%d]",
			p.MinOffsetMinutes, p.MaxOffsetMinutes))
	}
	if p.BaselineToleranceMinutes < 0 {
		errs = append(errs, errors.New("rules.post_meal_spike.baseline_tolerance_minutes must not be negative"))
	}
	if p.SimilarCarbsTolerance < 0 {
		errs = append(errs, errors.New("rules.post_meal_spike.similar_carbs_tolerance must not be negative"))
	}

	positive("sustained_high.cooldown_minutes", r.SustainedHigh.CooldownMinutes)
	positive("sustained_high.lookback_minutes", r.SustainedHigh.LookbackMinutes)

	positive("rapid_drop.cooldown_minutes", r.RapidDrop.CooldownMinutes)
	positive("rapid_drop.lookback_minutes", r.RapidDrop.LookbackMinutes)

	o := r.OvernightHigh
	positive("overnight_high.cooldown_minutes", o.CooldownMinutes)
	positive("overnight_high.min_duration_minutes", o.MinDurationMinutes)
	positive("overnight_high.max_gap_minutes", o.MaxGapMinutes)
	if o.LookbackMinutes < o.MinDurationMinutes {
		errs = append(errs, fmt.Errorf("rules.overnight_high.lookback_minutes (%d) must cover min_duration_minutes (%d)",
			o.LookbackMinutes, o.MinDurationMinutes))
	}
	if _, err := ParseClock(o.Start); err != nil {
		errs = append(errs, fmt.Errorf("rules.overnight_high.start: %w", err))
	}
	if _, err := ParseClock(o.End); err != nil {
		errs = append(errs, fmt.Errorf("rules.overnight_high.end: %w", err))
	}

	positive("pre_workout_low_risk.cooldown_minutes", r.PreWorkout.CooldownMinutes)
	positive("pre_workout_low_risk.history_days", r.PreWorkout.HistoryDays)
	positive("pre_workout_low_risk.proximity_minutes", r.PreWorkout.ProximityMinutes)
	positive("pre_workout_low_risk.max_reading_age_minutes", r.PreWorkout.MaxReadingAgeMinutes)

	positive("low_warning.cooldown_minutes", r.LowWarning.CooldownMinutes)
	positive("low_warning.lookback_minutes", r.LowWarning.LookbackMinutes)

	positive("insulin.active_minutes", r.Insulin.ActiveMinutes)
	if r.Insulin.SensitivityFactor <= 0 {
		errs = append(errs, errors.New("rules.insulin.sensitivity_factor must be positive"))
	}
	positive("insulin.target_bg", r.Insulin.TargetBG)
	positive("insulin.correction_lookback_minutes", r.Insulin.CorrectionLookbackMinutes)

	return errors.Join(errs...)
}
