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

type instanceRepository struct {
	db *gorm.DB
}

// NewInstanceRepository creates a new instance of InstanceRepository.
func NewInstanceRepository(db *gorm.DB) ports.InstanceRepository {
	return &instanceRepository{db: db}
}

func (r *instanceRepository) Create(ctx context.Context, instance *domain.WorkflowInstance) error {
	return r.db.WithContext(ctx).Create(instance).Error
}

func (r *instanceRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.WorkflowInstance, error) {
	var instance domain.WorkflowInstance
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&instance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &instance, nil
}

func (r *instanceRepository) List(ctx context.Context) ([]domain.WorkflowInstance, error) {
	var instances []domain.WorkflowInstance
	err := r.db.WithContext(ctx).Order("started_at DESC").Find(&instances).Error
	return instances, err
}

// AdvanceStep is the compare-and-swap at the heart of the engine: the index
// bump and the metric deltas land only if no other writer advanced the
// instance since it was read. RowsAffected == 0 means someone else won.
func (r *instanceRepository) AdvanceStep(ctx context.Context, id uuid.UUID, fromIndex int, progress ports.InstanceProgress) error {
	updates := map[string]interface{}{
		"current_step_index":    fromIndex + 1,
		"human_time_spent_ms":   gorm.Expr("human_time_spent_ms + ?", progress.HumanTimeMs),
		"ai_processing_time_ms": gorm.Expr("ai_processing_time_ms + ?", progress.AITimeMs),
		"client_wait_time_ms":   gorm.Expr("client_wait_time_ms + ?", progress.ClientWaitMs),
		"total_cost":            gorm.Expr("total_cost + ?", progress.Cost),
	}
	if progress.Complete {
		updates["status"] = domain.InstanceCompleted
		updates["completed_at"] = progress.CompletedAt
		updates["total_execution_time_ms"] = progress.TotalTimeMs
	}

	result := r.db.WithContext(ctx).
		Model(&domain.WorkflowInstance{}).
		Where("id = ? AND current_step_index = ? AND status = ?",
			id, fromIndex, domain.InstanceInProgress).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConcurrentModification
	}
	return nil
}

// MarkFailed is unconditional on the step index but still rejected once the
// instance is terminal, so a finished instance can never flip to failed.
func (r *instanceRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string, completedAt time.Time, totalTimeMs int64) error {
	result := r.db.WithContext(ctx).
		Model(&domain.WorkflowInstance{}).
		Where("id = ? AND status = ?", id, domain.InstanceInProgress).
		Updates(map[string]interface{}{
			"status":                  domain.InstanceFailed,
			"failure_reason":          reason,
			"completed_at":            completedAt,
			"total_execution_time_ms": totalTimeMs,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrInvalidState
	}
	return nil
}

func (r *instanceRepository) SetQualityScore(ctx context.Context, id uuid.UUID, score float64) error {
	result := r.db.WithContext(ctx).
		Model(&domain.WorkflowInstance{}).
		Where("id = ?", id).
		Update("output_quality_score", score)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
