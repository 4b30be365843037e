package database

import (
	"time"
)

// GlucoseReading is one CGM sample, written by the upstream poller
type GlucoseReading struct {
	ID          uint      `gorm:"primaryKey"`
	Timestamp   time.Time `gorm:"not null;uniqueIndex:idx_glucose_timestamp"`
	GlucoseMgDl int       `gorm:"column:glucose_mg_dl;not null"`
	Trend       string    // e.g. Flat, FortyFiveUp
	TrendArrow  string
	Source      string `gorm:"default:dexcom"`
	CreatedAt   time.Time
}

func (GlucoseReading) TableName() string { return "glucose_readings" }

// Meal is a logged meal
type Meal struct {
	ID          uint      `gorm:"primaryKey"`
	Timestamp   time.Time `gorm:"not null;index:idx_meals_timestamp"`
	Description string    `gorm:"not null"`
	CarbsG      float64   `gorm:"column:carbs_g"`
	ProteinG    float64   `gorm:"column:protein_g"`
	FatG        float64   `gorm:"column:fat_g"`
	Source      string    `gorm:"default:manual"`
	Notes       string
	CreatedAt   time.Time
}

func (Meal) TableName() string { return "meals" }

// Workout is an imported workout
type Workout struct {
	ID           uint      `gorm:"primaryKey"`
	StartedAt    time.Time `gorm:"not null;index:idx_workouts_started"`
	EndedAt      *time.Time
	ActivityType string
	Intensity    string
	Notes        string
	CreatedAt    time.Time
}

func (Workout) TableName() string { return "workouts" }

// InsulinDose is a logged insulin dose
type InsulinDose struct {
	ID        uint      `gorm:"primaryKey"`
	Timestamp time.Time `gorm:"not null;index:idx_insulin_timestamp"`
	Units     float64   `gorm:"not null"`
	Type      string    // bolus, basal, correction
	Notes     string
	CreatedAt time.Time
}

func (InsulinDose) TableName() string { return "insulin_doses" }

// AlertEvent is one firing decision. (rule_name, triggered_at) is unique.
type AlertEvent struct {
	ID           uint       `gorm:"primaryKey"`
	RuleName     string     `gorm:"size:64;not null;uniqueIndex:idx_alert_rule_time,priority:1"`
	TriggeredAt  time.Time  `gorm:"not null;uniqueIndex:idx_alert_rule_time,priority:2"`
	Message      string     `gorm:"not null"`
	Sent         bool       `gorm:"not null;default:false"`
	DispatchedAt *time.Time // nil while delivery is in flight
	CreatedAt    time.Time
}

func (AlertEvent) TableName() string { return "alert_events" }

// AlertSnooze holds at most one snooze per rule name, ALL included
type AlertSnooze struct {
	RuleName  string    `gorm:"primaryKey;size:64"`
	SnoozedAt time.Time `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null;index"`
	Reason    string
}

func (AlertSnooze) TableName() string { return "alert_snoozes" }

// AlertRuleLock has one row per rule; claimers update it to serialize on the row lock
type AlertRuleLock struct {
	RuleName string `gorm:"primaryKey;size:64"`
	LockedAt time.Time
}

func (AlertRuleLock) TableName() string { return "alert_rule_locks" }
