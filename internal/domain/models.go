package domain

import (
	"strings"
	"time"
)

// AllRules is the snooze target that silences every rule at once
const AllRules = "ALL"

// Trend is the sensor-reported direction of a glucose reading
type Trend string

const (
	TrendFlat        Trend = "flat"
	TrendRising      Trend = "rising"
	TrendFalling     Trend = "falling"
	TrendRisingFast  Trend = "rising-fast"
	TrendFallingFast Trend = "falling-fast"
	TrendUnknown     Trend = "unknown"
)

// ParseTrend maps Dexcom, Nightscout and plain-text trend spellings onto Trend
func ParseTrend(s string) Trend {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "flat", "steady", "stable", "→":
		return TrendFlat
	case "rising", "singleup", "fortyfiveup", "rising slightly", "↑", "↗":
		return TrendRising
	case "falling", "singledown", "fortyfivedown", "falling slightly", "↓", "↘":
		return TrendFalling
	case "rising-fast", "rising quickly", "doubleup", "⇈":
		return TrendRisingFast
	case "falling-fast", "falling quickly", "doubledown", "⇊":
		return TrendFallingFast
	default:
		return TrendUnknown
	}
}

// RatePer15 returns the approximate mg/dL change per 15 minutes implied by the trend.
// ok is false for TrendUnknown.
func (t Trend) RatePer15() (rate float64, ok bool) {
	switch t {
	case TrendFlat:
		return 0, true
	case TrendRising:
		return 15, true
	case TrendFalling:
		return -15, true
	case TrendRisingFast:
		return 30, true
	case TrendFallingFast:
		return -30, true
	default:
		return 0, false
	}
}

// sensorRates maps each sensor trend spelling to mg/dL per 15 minutes.
// The slight spellings keep their own rate although ParseTrend folds them into rising and falling.
var sensorRates = map[string]float64{
	"rising quickly": 30, "rising-fast": 30, "doubleup": 30, "⇈": 30,
	"rising": 15, "singleup": 15, "↑": 15,
	"rising slightly": 7, "fortyfiveup": 7, "↗": 7,
	"steady": 0, "flat": 0, "stable": 0, "→": 0,
	"falling slightly": -7, "fortyfivedown": -7, "↘": -7,
	"falling": -15, "singledown": -15, "↓": -15,
	"falling quickly": -30, "falling-fast": -30, "doubledown": -30, "⇊": -30,
}

// SensorRate returns the mg/dL change per 15 minutes of a raw sensor trend spelling
func SensorRate(s string) (float64, bool) {
	rate, ok := sensorRates[strings.ToLower(strings.TrimSpace(s))]
	return rate, ok
}

// Arrow returns the display arrow for the trend
func (t Trend) Arrow() string {
	switch t {
	case TrendRising:
		return "↑"
	case TrendFalling:
		return "↓"
	case TrendRisingFast:
		return "⇈"
	case TrendFallingFast:
		return "⇊"
	case TrendFlat:
		return "→"
	default:
		return "?"
	}
}

// Reading represents a single CGM glucose sample
type Reading struct {
	Timestamp time.Time
	Value     int // mg/dL
	Trend     Trend
	// SensorTrend is the trend as the sensor spelled it, empty when unknown
	SensorTrend string
}

// RatePer15 prefers the sensor spelling, which distinguishes slight changes, over Trend
func (r Reading) RatePer15() (float64, bool) {
	if rate, ok := SensorRate(r.SensorTrend); ok {
		return rate, true
	}
	return r.Trend.RatePer15()
}

// Arrow returns the display arrow, slanted for slight changes
func (r Reading) Arrow() string {
	if rate, ok := SensorRate(r.SensorTrend); ok {
		switch rate {
		case 7:
			return "↗"
		case -7:
			return "↘"
		}
	}
	return r.Trend.Arrow()
}

// MealEvent represents a logged meal
type MealEvent struct {
	Timestamp   time.Time
	Description string
	CarbsG      float64
}

// WorkoutEvent represents an imported workout
type WorkoutEvent struct {
	StartedAt    time.Time
	EndedAt      time.Time
	ActivityType string
}

// Insulin dose types
const (
	DoseBolus      = "bolus"
	DoseBasal      = "basal"
	DoseCorrection = "correction"
)

// MealOutcome is how glucose responded to a past meal
type MealOutcome struct {
	Meal MealEvent

	// Spike is the peak 30 to 120 min after eating less the mean of the 30 min before; valid when HasSpike
	Spike    float64
	HasSpike bool

	// CorrectionUnits sums correction doses in the 2 h after eating; valid when Corrected
	CorrectionUnits float64
	Corrected       bool
}

// InsulinDose represents a logged insulin dose
type InsulinDose struct {
	Timestamp time.Time
	Units     float64
	Type      string // bolus, basal, correction
}

// AlertEvent is one firing decision of a rule.
// DispatchedAt is nil while delivery is still in flight.
type AlertEvent struct {
	ID           uint
	RuleName     string
	TriggeredAt  time.Time
	Message      string
	Sent         bool
	DispatchedAt *time.Time
}

// Pending reports whether the dispatch outcome has not been recorded yet
func (e AlertEvent) Pending() bool {
	return e.DispatchedAt == nil
}

// Snooze suppresses a rule (or AllRules) until Until
type Snooze struct {
	RuleName  string
	SnoozedAt time.Time
	Until     time.Time
	Reason    string
}

// Active reports whether the snooze still suppresses firing at now
func (s Snooze) Active(now time.Time) bool {
	return s.Until.After(now)
}
