package domain

import (
	"context"
	"time"
)

// ReadingStore provides time-ordered glucose readings
type ReadingStore interface {
	Query(ctx context.Context, from, to time.Time) ([]Reading, error)
}

// EventStore provides meals, workouts and insulin doses
type EventStore interface {
	LatestMealBefore(ctx context.Context, t time.Time) (*MealEvent, error)
	WorkoutsSince(ctx context.Context, t time.Time) ([]WorkoutEvent, error)
	DosesSince(ctx context.Context, t time.Time) ([]InsulinDose, error)
	// MealOutcomes returns outcomes of meals eaten before t with carbs in [minCarbs, maxCarbs], newest first
	MealOutcomes(ctx context.Context, minCarbs, maxCarbs float64, t time.Time) ([]MealOutcome, error)
}
