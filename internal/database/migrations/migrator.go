package migrations

import (
	"fmt"
	"sort"

	"github.com/vladimiradmaev/glucose-alerts/internal/logger"
	"gorm.io/gorm"
)

// Migration represents a database migration
type Migration struct {
	ID   string
	Up   func(*gorm.DB) error
	Down func(*gorm.DB) error
}

var migrations = make(map[string]Migration)

// Register adds a new migration to the registry
func Register(id string, up, down func(*gorm.DB) error) {
	migrations[id] = Migration{
		ID:   id,
		Up:   up,
		Down: down,
	}
}

// RunMigrations executes all pending migrations in ID order
func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(&MigrationRecord{}); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var executed []MigrationRecord
	if err := db.Find(&executed).Error; err != nil {
		return fmt.Errorf("failed to get executed migrations: %w", err)
	}
	executedMap := make(map[string]bool, len(executed))
	for _, m := range executed {
		executedMap[m.ID] = true
	}

	for _, id := range Pending(executedMap) {
		migration := migrations[id]
		logger.Info("Running migration", "id", id)
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := migration.Up(tx); err != nil {
				return err
			}
			return tx.Create(&MigrationRecord{ID: id}).Error
		})
		if err != nil {
			return fmt.Errorf("failed to run migration %s: %w", id, err)
		}
		logger.Info("Completed migration", "id", id)
	}

	return nil
}

// Rollback reverts the most recently executed migration
func Rollback(db *gorm.DB) error {
	var last MigrationRecord
	if err := db.Order("id DESC").First(&last).Error; err != nil {
		return fmt.Errorf("failed to find last migration: %w", err)
	}
	migration, ok := migrations[last.ID]
	if !ok || migration.Down == nil {
		return fmt.Errorf("migration %s cannot be rolled back", last.ID)
	}
	return db.Transaction(func(tx *gorm.DB) error {
		if err := migration.Down(tx); err != nil {
			return err
		}
		return tx.Delete(&last).Error
	})
}

// Pending returns the registered migration IDs not in executed, sorted
func Pending(executed map[string]bool) []string {
	var ids []string
	for id := range migrations {
		if !executed[id] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// MigrationRecord represents a record of executed migrations
type MigrationRecord struct {
	ID        string `gorm:"primaryKey"`
	CreatedAt int64  `gorm:"autoCreateTime"`
}
