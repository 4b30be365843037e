package utils

import (
	"testing"
	"time"
	_ "time/tzdata"
)

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load location %s: %v", name, err)
	}
	return loc
}

func TestMinuteOfDayAcrossDST(t *testing.T) {
	ny := mustLoad(t, "America/New_York")

	// 2024-03-10 07:30 UTC is 03:30 EDT (clocks jumped from 02:00 to 03:00).
	spring := time.Date(2024, 3, 10, 7, 30, 0, 0, time.UTC)
	if got := MinuteOfDay(spring, ny); got != 3*60+30 {
		t.Errorf("spring forward: want %d, got %d", 3*60+30, got)
	}

	// One day earlier the same UTC instant is 02:30 EST.
	before := spring.Add(-24 * time.Hour)
	if got := MinuteOfDay(before, ny); got != 2*60+30 {
		t.Errorf("before DST: want %d, got %d", 2*60+30, got)
	}
}

func TestInClockWindow(t *testing.T) {
	ny := mustLoad(t, "America/New_York")
	tests := []struct {
		name  string
		local string
		want  bool
	}{
		{"late evening", "2024-01-15 23:10", true},
		{"after midnight", "2024-01-16 02:00", true},
		{"just before seven", "2024-01-16 06:59", true},
		{"seven sharp", "2024-01-16 07:00", false},
		{"afternoon", "2024-01-16 15:00", false},
		{"just before eleven", "2024-01-15 22:59", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tm, err := time.ParseInLocation("2006-01-02 15:04", tt.local, ny)
			if err != nil {
				t.Fatal(err)
			}
			if got := InClockWindow(tm.UTC(), ny, 23*60, 7*60); got != tt.want {
				t.Errorf("want %v, got %v", tt.want, got)
			}
		})
	}

	day := time.Date(2024, 1, 16, 15, 0, 0, 0, ny)
	if !InClockWindow(day, ny, 9*60, 17*60) {
		t.Error("expected 15:00 inside [9,17)")
	}
}

func TestMinuteDistance(t *testing.T) {
	tests := []struct{ a, b, want int }{
		{600, 630, 30},
		{630, 600, 30},
		{1430, 10, 20},
		{0, 720, 720},
	}
	for _, tt := range tests {
		if got := MinuteDistance(tt.a, tt.b); got != tt.want {
			t.Errorf("MinuteDistance(%d, %d): want %d, got %d", tt.a, tt.b, tt.want, got)
		}
	}
}

func TestCircularMeanMinute(t *testing.T) {
	if _, ok := CircularMeanMinute(nil); ok {
		t.Error("expected no mean for empty input")
	}

	got, ok := CircularMeanMinute([]int{17 * 60, 17*60 + 30, 18 * 60})
	if !ok || got != 17*60+30 {
		t.Errorf("want %d, got %d (ok=%v)", 17*60+30, got, ok)
	}

	got, ok = CircularMeanMinute([]int{23*60 + 50, 10})
	if !ok || MinuteDistance(got, 0) > 1 {
		t.Errorf("want midnight, got %d (ok=%v)", got, ok)
	}
}
