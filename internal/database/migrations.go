package database

import (
	"github.com/vladimiradmaev/glucose-alerts/internal/database/migrations"
	"gorm.io/gorm"
)

func init() {
	migrations.Register("20250301_source_tables",
		func(db *gorm.DB) error {
			return db.AutoMigrate(&GlucoseReading{}, &Meal{}, &Workout{}, &InsulinDose{})
		},
		func(db *gorm.DB) error {
			return db.Migrator().DropTable(&GlucoseReading{}, &Meal{}, &Workout{}, &InsulinDose{})
		},
	)

	migrations.Register("20250302_alert_ledger",
		func(db *gorm.DB) error {
			return db.AutoMigrate(&AlertEvent{}, &AlertSnooze{}, &AlertRuleLock{})
		},
		func(db *gorm.DB) error {
			return db.Migrator().DropTable(&AlertEvent{}, &AlertSnooze{}, &AlertRuleLock{})
		},
	)
}
