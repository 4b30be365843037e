package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/vladimiradmaev/glucose-alerts/internal/database"
	"github.com/vladimiradmaev/glucose-alerts/internal/domain"
	"gorm.io/gorm"
)

// EventRepository reads imported meals, workouts and insulin doses
type EventRepository struct {
	db *gorm.DB
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// LatestMealBefore returns the most recent meal at or before t, or nil
func (r *EventRepository) LatestMealBefore(ctx context.Context, t time.Time) (*domain.MealEvent, error) {
	var meals []database.Meal
	err := r.db.WithContext(ctx).
		Where("timestamp <= ?", t.UTC()).
		Order("timestamp DESC").
		Limit(1).
		Find(&meals).Error
	if err != nil {
		return nil, err
	}
	if len(meals) == 0 {
		return nil, nil
	}
	m := meals[0]
	return &domain.MealEvent{Timestamp: m.Timestamp.UTC(), Description: m.Description, CarbsG: m.CarbsG}, nil
}

// WorkoutsSince returns workouts started at or after t, oldest first
func (r *EventRepository) WorkoutsSince(ctx context.Context, t time.Time) ([]domain.WorkoutEvent, error) {
	var rows []database.Workout
	err := r.db.WithContext(ctx).
		Where("started_at >= ?", t.UTC()).
		Order("started_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	workouts := make([]domain.WorkoutEvent, 0, len(rows))
	for _, row := range rows {
		w := domain.WorkoutEvent{StartedAt: row.StartedAt.UTC(), ActivityType: row.ActivityType}
		if row.EndedAt != nil {
			w.EndedAt = row.EndedAt.UTC()
		}
		workouts = append(workouts, w)
	}
	return workouts, nil
}

// DosesSince returns insulin doses taken at or after t, oldest first
func (r *EventRepository) DosesSince(ctx context.Context, t time.Time) ([]domain.InsulinDose, error) {
	var rows []database.InsulinDose
	err := r.db.WithContext(ctx).
		Where("timestamp >= ?", t.UTC()).
		Order("timestamp ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	doses := make([]domain.InsulinDose, 0, len(rows))
	for _, row := range rows {
		doses = append(doses, domain.InsulinDose{Timestamp: row.Timestamp.UTC(), Units: row.Units, Type: row.Type})
	}
	return doses, nil
}

// similarMealLimit caps how many past meals feed an outcome summary
const similarMealLimit = 20

// MealOutcomes returns how glucose responded to the most recent meals eaten before t
// with carbs in [minCarbs, maxCarbs]. Meals without readings in the 30 min before
// eating have no baseline and are skipped.
func (r *EventRepository) MealOutcomes(ctx context.Context, minCarbs, maxCarbs float64, t time.Time) ([]domain.MealOutcome, error) {
	db := r.db.WithContext(ctx)
	var meals []database.Meal
	err := db.Where("carbs_g BETWEEN ? AND ? AND timestamp < ?", minCarbs, maxCarbs, t.UTC()).
		Order("timestamp DESC").
		Limit(similarMealLimit).
		Find(&meals).Error
	if err != nil {
		return nil, err
	}

	outcomes := make([]domain.MealOutcome, 0, len(meals))
	for _, m := range meals {
		at := m.Timestamp.UTC()

		var baseline sql.NullFloat64
		err := db.Model(&database.GlucoseReading{}).
			Select("AVG(glucose_mg_dl)").
			Where("timestamp >= ? AND timestamp <= ?", at.Add(-30*time.Minute), at).
			Row().Scan(&baseline)
		if err != nil {
			return nil, err
		}
		if !baseline.Valid {
			continue
		}

		var peak sql.NullInt64
		err = db.Model(&database.GlucoseReading{}).
			Select("MAX(glucose_mg_dl)").
			Where("timestamp >= ? AND timestamp <= ?", at.Add(30*time.Minute), at.Add(2*time.Hour)).
			Row().Scan(&peak)
		if err != nil {
			return nil, err
		}

		var units sql.NullFloat64
		err = db.Model(&database.InsulinDose{}).
			Select("SUM(units)").
			Where("type = ? AND timestamp >= ? AND timestamp <= ?", domain.DoseCorrection, at, at.Add(2*time.Hour)).
			Row().Scan(&units)
		if err != nil {
			return nil, err
		}

		o := domain.MealOutcome{
			Meal:            domain.MealEvent{Timestamp: at, Description: m.Description, CarbsG: m.CarbsG},
			HasSpike:        peak.Valid,
			Corrected:       units.Valid,
			CorrectionUnits: units.Float64,
		}
		if peak.Valid {
			o.Spike = float64(peak.Int64) - baseline.Float64
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, nil
}

// SaveMeal stores a meal
func (r *EventRepository) SaveMeal(ctx context.Context, m domain.MealEvent) error {
	return r.db.WithContext(ctx).Create(&database.Meal{
		Timestamp:   m.Timestamp.UTC(),
		Description: m.Description,
		CarbsG:      m.CarbsG,
	}).Error
}

// SaveWorkout stores a workout
func (r *EventRepository) SaveWorkout(ctx context.Context, w domain.WorkoutEvent) error {
	row := database.Workout{StartedAt: w.StartedAt.UTC(), ActivityType: w.ActivityType}
	if !w.EndedAt.IsZero() {
		ended := w.EndedAt.UTC()
		row.EndedAt = &ended
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

// SaveDose stores an insulin dose
func (r *EventRepository) SaveDose(ctx context.Context, d domain.InsulinDose) error {
	return r.db.WithContext(ctx).Create(&database.InsulinDose{
		Timestamp: d.Timestamp.UTC(),
		Units:     d.Units,
		Type:      d.Type,
	}).Error
}
