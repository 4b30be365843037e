// Package window reconstructs the slices of history each rule evaluates.
package window

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/vladimiradmaev/glucose-alerts/internal/domain"
	apperrors "github.com/vladimiradmaev/glucose-alerts/internal/errors"
	"github.com/vladimiradmaev/glucose-alerts/internal/rules"
)

// similarMealGap keeps the current meal episode out of the similar meal outcomes
const similarMealGap = 6 * time.Hour

// Reader reads rule windows from the reading and event stores.
// Every store call is bounded by timeout.
type Reader struct {
	readings domain.ReadingStore
	events   domain.EventStore
	timeout  time.Duration
}

func NewReader(readings domain.ReadingStore, events domain.EventStore, timeout time.Duration) *Reader {
	return &Reader{readings: readings, events: events, timeout: timeout}
}

// Read returns the window described by req at now.
// An empty range yields an empty window, not an error.
func (r *Reader) Read(ctx context.Context, req rules.Requirements, now time.Time) (rules.Window, error) {
	var w rules.Window

	if req.Lookback > 0 {
		from := now.Add(-req.Lookback)
		readings, err := callWithTimeout(ctx, r.timeout, func(ctx context.Context) ([]domain.Reading, error) {
			return r.readings.Query(ctx, from, now)
		})
		if err != nil {
			return w, fmt.Errorf("query readings: %w", err)
		}
		w.Readings = clip(readings, from, now)
	}

	if req.MealHorizon > 0 {
		meal, err := callWithTimeout(ctx, r.timeout, func(ctx context.Context) (*domain.MealEvent, error) {
			return r.events.LatestMealBefore(ctx, now)
		})
		if err != nil {
			return w, fmt.Errorf("latest meal: %w", err)
		}
		if meal != nil && !meal.Timestamp.Before(now.Add(-req.MealHorizon)) {
			w.Meal = meal
		}
	}

	if req.SimilarCarbs > 0 && w.Meal != nil && w.Meal.CarbsG > 0 {
		carbs := w.Meal.CarbsG
		outcomes, err := callWithTimeout(ctx, r.timeout, func(ctx context.Context) ([]domain.MealOutcome, error) {
			return r.events.MealOutcomes(ctx, carbs-req.SimilarCarbs, carbs+req.SimilarCarbs, now.Add(-similarMealGap))
		})
		if err != nil {
			return w, fmt.Errorf("similar meals: %w", err)
		}
		w.SimilarMeals = outcomes
	}

	if req.WorkoutHistory > 0 {
		workouts, err := callWithTimeout(ctx, r.timeout, func(ctx context.Context) ([]domain.WorkoutEvent, error) {
			return r.events.WorkoutsSince(ctx, now.Add(-req.WorkoutHistory))
		})
		if err != nil {
			return w, fmt.Errorf("workouts: %w", err)
		}
		w.Workouts = workouts
	}

	if req.DoseHistory > 0 {
		doses, err := callWithTimeout(ctx, r.timeout, func(ctx context.Context) ([]domain.InsulinDose, error) {
			return r.events.DosesSince(ctx, now.Add(-req.DoseHistory))
		})
		if err != nil {
			return w, fmt.Errorf("insulin doses: %w", err)
		}
		w.Doses = doses
	}

	return w, nil
}

// clip keeps readings in [from, to] sorted by timestamp
func clip(readings []domain.Reading, from, to time.Time) []domain.Reading {
	out := make([]domain.Reading, 0, len(readings))
	for _, rd := range readings {
		if rd.Timestamp.Before(from) || rd.Timestamp.After(to) {
			continue
		}
		out = append(out, rd)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// callWithTimeout runs fn under timeout. Hitting that timeout, rather than the caller's
// deadline, yields a timeout AppError that still matches context.DeadlineExceeded.
func callWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	v, err := fn(callCtx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return v, apperrors.NewTimeoutError(err, "store read").WithContext("timeout", timeout.String())
	}
	return v, err
}
