package repository

import (
	"fmt"

	"github.com/amirphl/booster/models"
	"gorm.io/gorm"
)

// AutoMigrate creates the boost tables from the model definitions. Production
// databases are migrated with the SQL files under migrations/; this is used for
// SQLite test databases and for local development.
func AutoMigrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Tariff{},
		&models.RotationState{},
		&models.BoostOrder{},
		&models.DistributionEntry{},
		&models.BoostDemand{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate boost tables: %w", err)
	}

	for _, module := range models.AllBoostModules {
		if err := db.Table(models.ExpenseTableName(module)).AutoMigrate(&models.Expense{}); err != nil {
			return fmt.Errorf("failed to migrate %s expenses: %w", module, err)
		}
	}
	return nil
}
