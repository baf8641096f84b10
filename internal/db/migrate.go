package db

import (
	"fmt"

	"github.com/zulandar/hourglass/internal/models"
	"gorm.io/gorm"
)

// AllModels returns the GORM models Hourglass reads and writes.
func AllModels() []interface{} {
	return []interface{}{
		&models.Branch{},
		&models.Turn{},
	}
}

// AutoMigrate creates or updates the branch and turn tables. Production
// schemas are owned by the story service; this exists for local runs and
// tests.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
