package repository

import (
	"flowpilot/internal/domain"

	"gorm.io/gorm"
)

// AutoMigrate creates or updates the schema for every persisted entity.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.WorkflowDefinition{},
		&domain.StepDefinition{},
		&domain.WorkflowInstance{},
		&domain.StepExecution{},
		&domain.ClientValidation{},
	)
}
