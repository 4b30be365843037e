// Package rules holds the fixed set of glucose alert heuristics.
//
// Every rule is a pure function of a Window and the tick time: no I/O, no
// ledger access, identical inputs give identical decisions.
package rules

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/vladimiradmaev/glucose-alerts/internal/config"
	"github.com/vladimiradmaev/glucose-alerts/internal/domain"
)

// Rule names, used as ledger keys and in snooze commands
const (
	NamePostMealSpike = "POST_MEAL_SPIKE"
	NameSustainedHigh = "SUSTAINED_HIGH"
	NameRapidDrop     = "RAPID_DROP"
	NameOvernightHigh = "OVERNIGHT_HIGH"
	NamePreWorkout    = "PRE_WORKOUT_LOW_RISK"
	NameLowWarning    = "LOW_WARNING"
)

// Requirements tells the window reader which history a rule needs.
// Zero durations mean the data is not needed.
type Requirements struct {
	Lookback       time.Duration // readings in [now-Lookback, now]
	MealHorizon    time.Duration // latest meal no older than now-MealHorizon
	WorkoutHistory time.Duration // workouts started since now-WorkoutHistory
	DoseHistory    time.Duration // insulin doses since now-DoseHistory
	SimilarCarbs   float64       // outcomes of past meals within this many grams of Meal
}

// Window is the slice of history a rule evaluates. Readings are sorted by timestamp ascending.
type Window struct {
	Readings []domain.Reading
	Meal     *domain.MealEvent
	Workouts []domain.WorkoutEvent
	Doses    []domain.InsulinDose

	// SimilarMeals holds outcomes of older meals with carbs close to Meal
	SimilarMeals []domain.MealOutcome
}

// Latest returns the most recent reading, or nil for an empty window
func (w Window) Latest() *domain.Reading {
	if len(w.Readings) == 0 {
		return nil
	}
	return &w.Readings[len(w.Readings)-1]
}

// Decision is the outcome of evaluating one rule
type Decision struct {
	Fires   bool
	Message string
	Fields  map[string]any // observed values, for logs and dry-run output
}

func quiet() Decision {
	return Decision{}
}

// Rule is one alert heuristic
type Rule interface {
	Name() string
	Cooldown() time.Duration
	// ManualOnly rules are skipped by the periodic tick and run only when triggered explicitly
	ManualOnly() bool
	Requirements() Requirements
	Evaluate(w Window, now time.Time) Decision
}

// Registry is the closed set of configured rules
type Registry struct {
	rules  []Rule
	byName map[string]Rule
}

// NewRegistry builds every rule from its configuration.
// loc is the display timezone used for local-clock comparisons.
func NewRegistry(cfg config.RulesConfig, loc *time.Location) (*Registry, error) {
	overnight, err := NewOvernightHigh(cfg.OvernightHigh, cfg.Insulin, loc)
	if err != nil {
		return nil, err
	}
	return NewRegistryFrom(
		NewPostMealSpike(cfg.PostMealSpike, cfg.Insulin, loc),
		NewSustainedHigh(cfg.SustainedHigh, cfg.Insulin, loc),
		NewRapidDrop(cfg.RapidDrop, cfg.Insulin, loc),
		overnight,
		NewPreWorkout(cfg.PreWorkout, loc),
		NewLowWarning(cfg.LowWarning, cfg.Insulin, loc),
	)
}

// NewRegistryFrom builds a registry from already constructed rules
func NewRegistryFrom(rules ...Rule) (*Registry, error) {
	r := &Registry{byName: make(map[string]Rule, len(rules))}
	for _, rule := range rules {
		name := strings.ToUpper(rule.Name())
		if name == domain.AllRules {
			return nil, fmt.Errorf("rule name %q is reserved", name)
		}
		if _, dup := r.byName[name]; dup {
			return nil, fmt.Errorf("duplicate rule %q", name)
		}
		r.byName[name] = rule
		r.rules = append(r.rules, rule)
	}
	return r, nil
}

// All returns every rule in registration order
func (r *Registry) All() []Rule {
	return append([]Rule(nil), r.rules...)
}

// Auto returns the rules evaluated on every tick
func (r *Registry) Auto() []Rule {
	var auto []Rule
	for _, rule := range r.rules {
		if !rule.ManualOnly() {
			auto = append(auto, rule)
		}
	}
	return auto
}

// Get looks a rule up by case-insensitive name
func (r *Registry) Get(name string) (Rule, bool) {
	rule, ok := r.byName[strings.ToUpper(strings.TrimSpace(name))]
	return rule, ok
}

// Names returns the sorted rule names
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
