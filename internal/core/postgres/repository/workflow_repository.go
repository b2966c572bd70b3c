package repository

import (
	"context"
	"errors"

	"flowpilot/internal/core/ports"
	"flowpilot/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type workflowRepository struct {
	db *gorm.DB
}

// NewWorkflowRepository creates a new instance of WorkflowRepository.
func NewWorkflowRepository(db *gorm.DB) ports.WorkflowRepository {
	return &workflowRepository{db: db}
}

func (r *workflowRepository) Create(ctx context.Context, def *domain.WorkflowDefinition, steps []domain.StepDefinition) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(def).Error; err != nil {
			return err
		}
		if len(steps) > 0 {
			if err := tx.Create(&steps).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *workflowRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.WorkflowDefinition, []domain.StepDefinition, error) {
	var def domain.WorkflowDefinition
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&def).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, domain.ErrNotFound
		}
		return nil, nil, err
	}

	var steps []domain.StepDefinition
	err = r.db.WithContext(ctx).
		Where("workflow_id = ?", id).
		Order("order_index ASC").
		Find(&steps).Error
	if err != nil {
		return nil, nil, err
	}

	return &def, steps, nil
}

func (r *workflowRepository) List(ctx context.Context, authorID uuid.UUID) ([]domain.WorkflowDefinition, error) {
	var defs []domain.WorkflowDefinition
	err := r.db.WithContext(ctx).
		Where("author_id = ? OR is_public = ?", authorID, true).
		Order("created_at DESC").
		Find(&defs).Error
	return defs, err
}
