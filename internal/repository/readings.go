package repository

import (
	"context"
	"time"

	"github.com/vladimiradmaev/glucose-alerts/internal/database"
	"github.com/vladimiradmaev/glucose-alerts/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReadingRepository reads glucose samples written by the upstream poller
type ReadingRepository struct {
	db *gorm.DB
}

// NewReadingRepository creates a new reading repository
func NewReadingRepository(db *gorm.DB) *ReadingRepository {
	return &ReadingRepository{db: db}
}

// Query returns readings with timestamp in [from, to], oldest first
func (r *ReadingRepository) Query(ctx context.Context, from, to time.Time) ([]domain.Reading, error) {
	var rows []database.GlucoseReading
	err := r.db.WithContext(ctx).
		Where("timestamp >= ? AND timestamp <= ?", from.UTC(), to.UTC()).
		Order("timestamp ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	readings := make([]domain.Reading, 0, len(rows))
	for _, row := range rows {
		readings = append(readings, domain.Reading{
			Timestamp:   row.Timestamp.UTC(),
			Value:       row.GlucoseMgDl,
			Trend:       domain.ParseTrend(row.Trend),
			SensorTrend: row.Trend,
		})
	}
	return readings, nil
}

// Latest returns the most recent reading, or nil when the table is empty
func (r *ReadingRepository) Latest(ctx context.Context) (*domain.Reading, error) {
	var row database.GlucoseReading
	err := r.db.WithContext(ctx).Order("timestamp DESC").Limit(1).Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &domain.Reading{
		Timestamp:   row.Timestamp.UTC(),
		Value:       row.GlucoseMgDl,
		Trend:       domain.ParseTrend(row.Trend),
		SensorTrend: row.Trend,
	}, nil
}

// Save inserts readings, skipping timestamps already stored
func (r *ReadingRepository) Save(ctx context.Context, readings []domain.Reading) error {
	if len(readings) == 0 {
		return nil
	}
	rows := make([]database.GlucoseReading, 0, len(readings))
	for _, rd := range readings {
		trend := rd.SensorTrend
		if trend == "" {
			trend = string(rd.Trend)
		}
		rows = append(rows, database.GlucoseReading{
			Timestamp:   rd.Timestamp.UTC(),
			GlucoseMgDl: rd.Value,
			Trend:       trend,
			TrendArrow:  rd.Arrow(),
			Source:      "dexcom",
		})
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "timestamp"}}, DoNothing: true}).
		Create(&rows).Error
}
