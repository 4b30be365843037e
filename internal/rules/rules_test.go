package rules

import (
	"strings"
	"testing"
	"time"

	_ "time/tzdata"

	"github.com/vladimiradmaev/glucose-alerts/internal/config"
	"github.com/vladimiradmaev/glucose-alerts/internal/domain"
)

var noon = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

// series builds readings ending at now, one per offset (minutes before now)
func series(now time.Time, offsets []int, values []int) []domain.Reading {
	out := make([]domain.Reading, len(offsets))
	for i := range offsets {
		out[i] = domain.Reading{
			Timestamp: now.Add(-time.Duration(offsets[i]) * time.Minute),
			Value:     values[i],
			Trend:     domain.TrendUnknown,
		}
	}
	return out
}

// every5 builds readings every five minutes covering the last span minutes, all at value
func every5(now time.Time, span, value int) []domain.Reading {
	var out []domain.Reading
	for m := span; m >= 0; m -= 5 {
		out = append(out, domain.Reading{Timestamp: now.Add(-time.Duration(m) * time.Minute), Value: value})
	}
	return out
}

func defaults() config.RulesConfig {
	return config.DefaultRules()
}

func TestSustainedHigh(t *testing.T) {
	cfg := defaults()
	rule := NewSustainedHigh(cfg.SustainedHigh, cfg.Insulin, time.UTC)

	tests := []struct {
		name   string
		values []int
		want   bool
	}{
		{"average and current above", []int{210, 205, 215, 190, 185}, true},
		{"average exactly 200", []int{200, 200, 200, 200, 200}, false},
		{"current not above 180", []int{230, 230, 230, 230, 180}, false},
		{"average too low", []int{190, 190, 190, 190, 195}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := Window{Readings: series(noon, []int{80, 60, 40, 20, 0}, tt.values)}
			got := rule.Evaluate(w, noon)
			if got.Fires != tt.want {
				t.Fatalf("fires: want %v, got %v (%v)", tt.want, got.Fires, got.Fields)
			}
		})
	}

	d := rule.Evaluate(Window{Readings: series(noon, []int{80, 60, 40, 20, 0}, []int{210, 205, 215, 190, 185})}, noon)
	if d.Fields["average"] != 201.0 {
		t.Errorf("average: want 201, got %v", d.Fields["average"])
	}
	if !strings.Contains(d.Message, "avg 201") || !strings.Contains(d.Message, "currently 185") {
		t.Errorf("message misses average or current: %q", d.Message)
	}
}

func TestSustainedHighEmptyWindow(t *testing.T) {
	cfg := defaults()
	rule := NewSustainedHigh(cfg.SustainedHigh, cfg.Insulin, time.UTC)
	if rule.Evaluate(Window{}, noon).Fires {
		t.Fatal("empty window must not fire")
	}
}

func TestRapidDrop(t *testing.T) {
	cfg := defaults()
	rule := NewRapidDrop(cfg.RapidDrop, cfg.Insulin, time.UTC)

	tests := []struct {
		name    string
		offsets []int
		values  []int
		want    bool
	}{
		{"drop of 40", []int{30, 0}, []int{150, 110}, true},
		{"drop of 25", []int{30, 0}, []int{150, 125}, false},
		{"drop of exactly 30", []int{30, 0}, []int{150, 120}, false},
		{"reference picked nearest 30 minutes ago", []int{28, 20, 10, 0}, []int{160, 140, 120, 115}, true},
		{"single sample", []int{0}, []int{60}, false},
		{"span too short", []int{5, 0}, []int{150, 100}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rule.Evaluate(Window{Readings: series(noon, tt.offsets, tt.values)}, noon)
			if got.Fires != tt.want {
				t.Fatalf("fires: want %v, got %v (%v)", tt.want, got.Fires, got.Fields)
			}
		})
	}

	d := rule.Evaluate(Window{Readings: series(noon, []int{30, 0}, []int{150, 110})}, noon)
	if d.Fields["drop"] != 40 || d.Fields["elapsed_min"] != 30 {
		t.Errorf("fields: want drop 40 elapsed 30, got %v", d.Fields)
	}
	if !strings.Contains(d.Message, "-40 mg/dL") || !strings.Contains(d.Message, "30 min") {
		t.Errorf("message misses drop or elapsed: %q", d.Message)
	}
}

func TestRapidDropMentionsCarbsWithInsulinOnBoard(t *testing.T) {
	cfg := defaults()
	rule := NewRapidDrop(cfg.RapidDrop, cfg.Insulin, time.UTC)
	w := Window{
		Readings: series(noon, []int{30, 0}, []int{150, 110}),
		Doses:    []domain.InsulinDose{{Timestamp: noon.Add(-time.Hour), Units: 3, Type: domain.DoseBolus}},
	}
	d := rule.Evaluate(w, noon)
	if !d.Fires {
		t.Fatal("expected fire")
	}
	if !strings.Contains(d.Message, "IOB ~2.0u") || !strings.Contains(d.Message, "fast carbs") {
		t.Errorf("message misses IOB note: %q", d.Message)
	}
}

func TestOvernightHigh(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	cfg := defaults()
	rule, err := NewOvernightHigh(cfg.OvernightHigh, cfg.Insulin, ny)
	if err != nil {
		t.Fatalf("new rule: %v", err)
	}

	twoAM := time.Date(2025, 1, 15, 2, 0, 0, 0, ny)

	t.Run("high for 65 minutes", func(t *testing.T) {
		d := rule.Evaluate(Window{Readings: every5(twoAM, 65, 170)}, twoAM)
		if !d.Fires {
			t.Fatalf("expected fire, got %v", d.Fields)
		}
		if d.Fields["duration_min"] != 65 {
			t.Errorf("duration: want 65, got %v", d.Fields["duration_min"])
		}
		if !strings.Contains(d.Message, "for 65 min") || !strings.Contains(d.Message, "Currently 170") {
			t.Errorf("message misses duration or current: %q", d.Message)
		}
	})

	t.Run("one reading at threshold breaks the span", func(t *testing.T) {
		readings := every5(twoAM, 65, 170)
		readings[len(readings)-7].Value = 160 // 30 minutes ago
		if d := rule.Evaluate(Window{Readings: readings}, twoAM); d.Fires {
			t.Fatalf("expected no fire, got %v", d.Fields)
		}
	})

	t.Run("sampling gap breaks the span", func(t *testing.T) {
		readings := every5(twoAM, 65, 170)
		gapped := append(append([]domain.Reading{}, readings[:4]...), readings[9:]...)
		if d := rule.Evaluate(Window{Readings: gapped}, twoAM); d.Fires {
			t.Fatalf("expected no fire across a 30 minute gap, got %v", d.Fields)
		}
	})

	t.Run("outside the overnight window", func(t *testing.T) {
		afternoon := time.Date(2025, 1, 15, 14, 0, 0, 0, ny)
		if rule.Evaluate(Window{Readings: every5(afternoon, 90, 220)}, afternoon).Fires {
			t.Fatal("must not fire during the day")
		}
	})

	t.Run("span clipped at window start", func(t *testing.T) {
		// 23:40 local: only the 40 minutes since 23:00 count
		lateEvening := time.Date(2025, 1, 15, 23, 40, 0, 0, ny)
		if rule.Evaluate(Window{Readings: every5(lateEvening, 90, 220)}, lateEvening).Fires {
			t.Fatal("readings before 23:00 must not extend the span")
		}
	})

	t.Run("stale feed", func(t *testing.T) {
		readings := every5(twoAM.Add(-30*time.Minute), 80, 200)
		if rule.Evaluate(Window{Readings: readings}, twoAM).Fires {
			t.Fatal("must not fire when the latest reading is stale")
		}
	})

	t.Run("utc tick converted to local clock", func(t *testing.T) {
		// 07:00 UTC is 02:00 in New York during standard time
		now := time.Date(2025, 1, 15, 7, 0, 0, 0, time.UTC)
		if !rule.Evaluate(Window{Readings: every5(now, 65, 170)}, now).Fires {
			t.Fatal("expected fire at 02:00 local")
		}
	})
}

func TestNewOvernightHighRejectsBadClock(t *testing.T) {
	cfg := defaults()
	cfg.OvernightHigh.Start = "25:00"
	if _, err := NewOvernightHigh(cfg.OvernightHigh, cfg.Insulin, time.UTC); err == nil {
		t.Fatal("expected error for invalid start")
	}
}

func TestPostMealSpike(t *testing.T) {
	cfg := defaults()
	rule := NewPostMealSpike(cfg.PostMealSpike, cfg.Insulin, time.UTC)

	mealAt := noon.Add(-90 * time.Minute)
	meal := &domain.MealEvent{Timestamp: mealAt, Description: "pasta", CarbsG: 80}
	// baseline 5 minutes before the meal, readings at +30, +75 and +90 (now)
	offsets := []int{95, 60, 15, 0}

	tests := []struct {
		name   string
		values []int
		want   bool
	}{
		{"rise of 65", []int{110, 140, 175, 160}, true},
		{"rise of 55", []int{110, 140, 165, 160}, false},
		{"rise of exactly 60", []int{110, 140, 170, 160}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := Window{Readings: series(noon, offsets, tt.values), Meal: meal}
			got := rule.Evaluate(w, noon)
			if got.Fires != tt.want {
				t.Fatalf("fires: want %v, got %v (%v)", tt.want, got.Fires, got.Fields)
			}
		})
	}

	d := rule.Evaluate(Window{Readings: series(noon, offsets, []int{110, 140, 175, 160}), Meal: meal}, noon)
	if d.Fields["baseline"] != 110 || d.Fields["peak"] != 175 || d.Fields["elapsed_min"] != 75 {
		t.Errorf("fields: got %v", d.Fields)
	}
	for _, want := range []string{"Baseline 110", "peak 175", "75 min"} {
		if !strings.Contains(d.Message, want) {
			t.Errorf("message misses %q: %q", want, d.Message)
		}
	}
}

func TestPostMealSpikeNeedsBaseline(t *testing.T) {
	cfg := defaults()
	rule := NewPostMealSpike(cfg.PostMealSpike, cfg.Insulin, time.UTC)
	meal := &domain.MealEvent{Timestamp: noon.Add(-90 * time.Minute), CarbsG: 60}

	t.Run("no reading before the meal", func(t *testing.T) {
		w := Window{Readings: series(noon, []int{60, 15, 0}, []int{140, 250, 240}), Meal: meal}
		if rule.Evaluate(w, noon).Fires {
			t.Fatal("must not fire without a baseline")
		}
	})

	t.Run("baseline too old", func(t *testing.T) {
		w := Window{Readings: series(noon, []int{135, 60, 15, 0}, []int{100, 140, 250, 240}), Meal: meal}
		if rule.Evaluate(w, noon).Fires {
			t.Fatal("must not fire with a baseline 45 minutes before the meal")
		}
	})

	t.Run("no meal", func(t *testing.T) {
		w := Window{Readings: series(noon, []int{95, 15}, []int{100, 250})}
		if rule.Evaluate(w, noon).Fires {
			t.Fatal("must not fire without a meal")
		}
	})

	t.Run("peak outside offsets", func(t *testing.T) {
		// spike at +20 minutes only
		w := Window{Readings: series(noon, []int{95, 70, 0}, []int{110, 200, 120}), Meal: meal}
		if rule.Evaluate(w, noon).Fires {
			t.Fatal("must not fire for a reading 20 minutes after the meal")
		}
	})
}

func TestPreWorkout(t *testing.T) {
	cfg := defaults()
	rule := NewPreWorkout(cfg.PreWorkout, time.UTC)
	if !rule.ManualOnly() {
		t.Fatal("pre-workout rule must be manual only")
	}

	now := time.Date(2025, 3, 10, 17, 45, 0, 0, time.UTC)
	workouts := []domain.WorkoutEvent{
		{StartedAt: time.Date(2025, 3, 7, 18, 0, 0, 0, time.UTC)},
		{StartedAt: time.Date(2025, 3, 8, 18, 10, 0, 0, time.UTC)},
		{StartedAt: time.Date(2025, 3, 9, 17, 50, 0, 0, time.UTC)},
	}

	tests := []struct {
		name     string
		now      time.Time
		age      int
		value    int
		workouts []domain.WorkoutEvent
		want     bool
	}{
		{"low-ish before usual start", now, 5, 100, workouts, true},
		{"value at threshold", now, 5, 120, workouts, false},
		{"far from usual start", now.Add(-5 * time.Hour), 5, 90, workouts, false},
		{"stale reading", now, 40, 90, workouts, false},
		{"no workout history", now, 5, 90, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := Window{Readings: series(tt.now, []int{tt.age}, []int{tt.value}), Workouts: tt.workouts}
			got := rule.Evaluate(w, tt.now)
			if got.Fires != tt.want {
				t.Fatalf("fires: want %v, got %v (%v)", tt.want, got.Fires, got.Fields)
			}
		})
	}

	d := rule.Evaluate(Window{Readings: series(now, []int{5}, []int{100}), Workouts: workouts}, now)
	if d.Fields["proximity_min"] != -15 {
		t.Errorf("proximity: want -15, got %v", d.Fields["proximity_min"])
	}
	if d.Fields["typical_start"] != "18:00" {
		t.Errorf("typical start: want 18:00, got %v", d.Fields["typical_start"])
	}
	if !strings.Contains(d.Message, "in 15 min") || !strings.Contains(d.Message, "BG at 100") {
		t.Errorf("message misses proximity or current: %q", d.Message)
	}
}

func TestLowWarning(t *testing.T) {
	cfg := defaults()
	rule := NewLowWarning(cfg.LowWarning, cfg.Insulin, time.UTC)
	bolus := []domain.InsulinDose{{Timestamp: noon.Add(-30 * time.Minute), Units: 2, Type: domain.DoseBolus}}

	tests := []struct {
		name   string
		values []int
		doses  []domain.InsulinDose
		want   bool
	}{
		{"projected below 80", []int{95, 90, 85}, nil, true},
		{"stable above 80", []int{82, 82, 82}, nil, false},
		{"rising from a low", []int{70, 72, 75}, nil, true},
		{"near low with insulin and falling", []int{92, 90, 88}, bolus, true},
		{"near low falling without insulin", []int{92, 90, 88}, nil, false},
		{"comfortably high and falling", []int{160, 150, 140}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := Window{Readings: series(noon, []int{10, 5, 0}, tt.values), Doses: tt.doses}
			got := rule.Evaluate(w, noon)
			if got.Fires != tt.want {
				t.Fatalf("fires: want %v, got %v (%v)", tt.want, got.Fires, got.Fields)
			}
		})
	}
}

func TestLowWarningPrefersSensorTrend(t *testing.T) {
	cfg := defaults()
	rule := NewLowWarning(cfg.LowWarning, cfg.Insulin, time.UTC)
	readings := series(noon, []int{10, 5, 0}, []int{84, 84, 84})
	readings[2].Trend = domain.TrendFallingFast

	d := rule.Evaluate(Window{Readings: readings}, noon)
	if !d.Fires {
		t.Fatal("falling-fast trend at 84 should project below 80")
	}
	if d.Fields["rate_15m"] != -30.0 {
		t.Errorf("rate: want -30, got %v", d.Fields["rate_15m"])
	}
}

func TestLowWarningSlightFall(t *testing.T) {
	cfg := defaults()
	rule := NewLowWarning(cfg.LowWarning, cfg.Insulin, time.UTC)

	tests := []struct {
		sensor string
		want   bool
		rate   float64
	}{
		{"FortyFiveDown", false, -7},
		{"falling slightly", false, -7},
		{"SingleDown", true, -15},
		{"DoubleDown", true, -30},
	}
	for _, tt := range tests {
		t.Run(tt.sensor, func(t *testing.T) {
			readings := series(noon, []int{0}, []int{92})
			readings[0].Trend = domain.ParseTrend(tt.sensor)
			readings[0].SensorTrend = tt.sensor
			if got := trendRate(readings); got != tt.rate {
				t.Fatalf("rate: want %v, got %v", tt.rate, got)
			}
			if d := rule.Evaluate(Window{Readings: readings}, noon); d.Fires != tt.want {
				t.Errorf("fires: want %v, got %v (%v)", tt.want, d.Fires, d.Fields)
			}
		})
	}
	slight := domain.Reading{Trend: domain.ParseTrend("FortyFiveDown"), SensorTrend: "FortyFiveDown"}
	if got := slight.Arrow(); got != "↘" {
		t.Errorf("arrow: want ↘, got %s", got)
	}
}

func TestInsulinOnBoard(t *testing.T) {
	m := newInsulinModel(config.InsulinConfig{ActiveMinutes: 180, SensitivityFactor: 35})
	doses := []domain.InsulinDose{
		{Timestamp: noon.Add(-90 * time.Minute), Units: 3, Type: domain.DoseBolus},
		{Timestamp: noon.Add(-60 * time.Minute), Units: 20, Type: domain.DoseBasal},
		{Timestamp: noon.Add(-4 * time.Hour), Units: 5, Type: domain.DoseCorrection},
		{Timestamp: noon.Add(10 * time.Minute), Units: 4, Type: domain.DoseBolus},
	}
	if got := m.IOB(doses, noon); got != 1.5 {
		t.Fatalf("iob: want 1.5, got %v", got)
	}
	if got := m.note(0); got != "IOB: no recent doses." {
		t.Errorf("note without doses: got %q", got)
	}
	if got := m.note(1.5); got != "IOB ~1.5u (est. drop ~52 mg/dL)." {
		t.Errorf("note: got %q", got)
	}
}

func TestInsulinCorrection(t *testing.T) {
	m := newInsulinModel(config.DefaultRules().Insulin)
	tests := []struct {
		bg   int
		iob  float64
		want float64
	}{
		{185, 0, 2.1},
		{185, 0.67, 1.5},
		{110, 0, 0},
		{150, 3, 0},
	}
	for _, tt := range tests {
		if got := m.correction(tt.bg, tt.iob); got != tt.want {
			t.Errorf("correction(%d, %v): want %v, got %v", tt.bg, tt.iob, tt.want, got)
		}
	}

	doses := []domain.InsulinDose{
		{Timestamp: noon.Add(-7 * time.Hour), Units: 4, Type: domain.DoseCorrection},
		{Timestamp: noon.Add(-2 * time.Hour), Units: 2, Type: domain.DoseCorrection},
		{Timestamp: noon.Add(-time.Hour), Units: 5, Type: domain.DoseBolus},
	}
	last := m.lastCorrection(doses, noon)
	if last == nil || last.Units != 2 {
		t.Fatalf("last correction: %+v", last)
	}
	if m.lastCorrection(doses[:1], noon) != nil {
		t.Error("correction older than the lookback was reported")
	}
	if got := m.history(); got != 6*time.Hour {
		t.Errorf("dose history: want 6h, got %s", got)
	}
}

func TestSustainedHighSuggestsCorrection(t *testing.T) {
	cfg := defaults()
	rule := NewSustainedHigh(cfg.SustainedHigh, cfg.Insulin, time.UTC)
	readings := series(noon, []int{80, 60, 40, 20, 0}, []int{210, 205, 215, 190, 185})

	d := rule.Evaluate(Window{Readings: readings}, noon)
	if !strings.Contains(d.Message, "Suggested correction: ~2.1u (BG 185, target 110, ISF 35).") {
		t.Errorf("message misses correction: %q", d.Message)
	}

	doses := []domain.InsulinDose{{Timestamp: noon.Add(-2 * time.Hour), Units: 2, Type: domain.DoseCorrection}}
	d = rule.Evaluate(Window{Readings: readings, Doses: doses}, noon)
	if d.Fields["suggested_correction"] != 1.5 {
		t.Errorf("correction with IOB: want 1.5, got %v", d.Fields["suggested_correction"])
	}
	if !strings.Contains(d.Message, "Last correction: 2.0u at 10:00am.") {
		t.Errorf("message misses last correction: %q", d.Message)
	}
}

func TestOvernightHighSuggestsCorrection(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	cfg := defaults()
	rule, err := NewOvernightHigh(cfg.OvernightHigh, cfg.Insulin, ny)
	if err != nil {
		t.Fatalf("new rule: %v", err)
	}
	twoAM := time.Date(2025, 1, 15, 2, 0, 0, 0, ny)

	d := rule.Evaluate(Window{Readings: every5(twoAM, 65, 170)}, twoAM)
	if !strings.Contains(d.Message, "Small correction of ~1.7u would target 110.") {
		t.Errorf("message misses correction: %q", d.Message)
	}
}

func TestPostMealSpikeSimilarMeals(t *testing.T) {
	cfg := defaults()
	rule := NewPostMealSpike(cfg.PostMealSpike, cfg.Insulin, time.UTC)
	if got := rule.Requirements().SimilarCarbs; got != 15 {
		t.Errorf("similar carbs tolerance: want 15, got %v", got)
	}

	meal := &domain.MealEvent{Timestamp: noon.Add(-90 * time.Minute), Description: "pasta", CarbsG: 80}
	readings := series(noon, []int{95, 60, 15, 0}, []int{110, 140, 175, 160})
	similar := []domain.MealOutcome{
		{Spike: 70, HasSpike: true, CorrectionUnits: 2, Corrected: true},
		{Spike: 80, HasSpike: true, CorrectionUnits: 3, Corrected: true},
		{Corrected: false},
	}

	d := rule.Evaluate(Window{Readings: readings, Meal: meal, SimilarMeals: similar}, noon)
	want := "Similar meals averaged +75 mg/dL spike; correction of 2.5u typically helped (2 meals)."
	if !strings.Contains(d.Message, want) {
		t.Errorf("message misses %q: %q", want, d.Message)
	}

	// a single comparable meal is not a pattern
	d = rule.Evaluate(Window{Readings: readings, Meal: meal, SimilarMeals: similar[:1]}, noon)
	if strings.Contains(d.Message, "Similar meals") {
		t.Errorf("note from one meal: %q", d.Message)
	}
}

func TestTrendRate(t *testing.T) {
	flat := series(noon, []int{10, 5, 0}, []int{100, 100, 100})
	if got := trendRate(flat); got != 0 {
		t.Errorf("flat slope: want 0, got %v", got)
	}
	rising := series(noon, []int{10, 5, 0}, []int{100, 105, 110})
	if got := trendRate(rising); got != 15 {
		t.Errorf("rising slope: want 15, got %v", got)
	}
	rising[2].Trend = domain.TrendFalling
	if got := trendRate(rising); got != -15 {
		t.Errorf("sensor trend should win: want -15, got %v", got)
	}
}

func TestRegistry(t *testing.T) {
	reg, err := NewRegistry(defaults(), time.UTC)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if len(reg.All()) != 6 {
		t.Fatalf("want 6 rules, got %d", len(reg.All()))
	}
	for _, r := range reg.Auto() {
		if r.Name() == NamePreWorkout {
			t.Fatal("manual-only rule returned by Auto")
		}
	}
	if len(reg.Auto()) != 5 {
		t.Errorf("want 5 auto rules, got %d", len(reg.Auto()))
	}
	if r, ok := reg.Get(" rapid_drop "); !ok || r.Name() != NameRapidDrop {
		t.Errorf("case-insensitive lookup failed")
	}
	if _, ok := reg.Get("NOPE"); ok {
		t.Error("unknown rule found")
	}
	names := reg.Names()
	if names[0] != NameLowWarning || names[len(names)-1] != NameSustainedHigh {
		t.Errorf("names not sorted: %v", names)
	}
}

type namedRule struct {
	Rule
	name string
}

func (n namedRule) Name() string { return n.name }

func TestNewRegistryFromRejectsReservedAndDuplicates(t *testing.T) {
	cfg := defaults()
	base := NewSustainedHigh(cfg.SustainedHigh, cfg.Insulin, time.UTC)

	if _, err := NewRegistryFrom(namedRule{base, "all"}); err == nil {
		t.Error("ALL must be reserved")
	}
	if _, err := NewRegistryFrom(base, namedRule{base, "sustained_high"}); err == nil {
		t.Error("duplicate names must be rejected")
	}
}
