package repository

import (
	"context"
	"errors"
	"time"

	"flowpilot/internal/core/ports"
	"flowpilot/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type executionRepository struct {
	db *gorm.DB
}

// NewExecutionRepository creates a new instance of ExecutionRepository.
func NewExecutionRepository(db *gorm.DB) ports.ExecutionRepository {
	return &executionRepository{db: db}
}

func (r *executionRepository) Create(ctx context.Context, execution *domain.StepExecution) error {
	return r.db.WithContext(ctx).Create(execution).Error
}

// Seal only touches in-progress rows; sealed rows are part of the append-only
// ledger and stay as written.
func (r *executionRepository) Seal(ctx context.Context, id uuid.UUID, status domain.ExecutionStatus, output string, completedAt time.Time, executionTimeMs int64) error {
	result := r.db.WithContext(ctx).
		Model(&domain.StepExecution{}).
		Where("id = ? AND status = ?", id, domain.ExecutionInProgress).
		Updates(map[string]interface{}{
			"status":            status,
			"output":            output,
			"completed_at":      completedAt,
			"execution_time_ms": executionTimeMs,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConcurrentModification
	}
	return nil
}

func (r *executionRepository) FindInProgress(ctx context.Context, instanceID, stepID uuid.UUID) (*domain.StepExecution, error) {
	var execution domain.StepExecution
	err := r.db.WithContext(ctx).
		Where("instance_id = ? AND step_id = ? AND status = ?",
			instanceID, stepID, domain.ExecutionInProgress).
		First(&execution).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &execution, nil
}

func (r *executionRepository) ListByInstance(ctx context.Context, instanceID uuid.UUID) ([]domain.StepExecution, error) {
	var executions []domain.StepExecution
	err := r.db.WithContext(ctx).
		Where("instance_id = ?", instanceID).
		Order("started_at ASC").
		Find(&executions).Error
	return executions, err
}
