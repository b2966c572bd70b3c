package repository

import (
	"context"
	"errors"
	"time"

	"flowpilot/internal/core/ports"
	"flowpilot/internal/domain"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type validationRepository struct {
	db *gorm.DB
}

// NewValidationRepository creates a new instance of ValidationRepository.
func NewValidationRepository(db *gorm.DB) ports.ValidationRepository {
	return &validationRepository{db: db}
}

func (r *validationRepository) Create(ctx context.Context, validation *domain.ClientValidation) error {
	return r.db.WithContext(ctx).Create(validation).Error
}

func (r *validationRepository) GetByToken(ctx context.Context, token string) (*domain.ClientValidation, error) {
	var validation domain.ClientValidation
	err := r.db.WithContext(ctx).Where("secure_token = ?", token).First(&validation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &validation, nil
}

func (r *validationRepository) FindPending(ctx context.Context, instanceID, stepID uuid.UUID) (*domain.ClientValidation, error) {
	var validation domain.ClientValidation
	err := r.db.WithContext(ctx).
		Where("instance_id = ? AND step_id = ? AND status = ?",
			instanceID, stepID, domain.ValidationPending).
		First(&validation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &validation, nil
}

// Complete is conditional on the validation still being pending, so a client
// double-submitting (or racing the expiry flip) resolves it exactly once.
func (r *validationRepository) Complete(ctx context.Context, id uuid.UUID, files datatypes.JSON, completedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&domain.ClientValidation{}).
		Where("id = ? AND status = ?", id, domain.ValidationPending).
		Updates(map[string]interface{}{
			"status":         domain.ValidationCompleted,
			"completed_at":   completedAt,
			"uploaded_files": files,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConcurrentModification
	}
	return nil
}

func (r *validationRepository) MarkExpired(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&domain.ClientValidation{}).
		Where("id = ? AND status = ?", id, domain.ValidationPending).
		Update("status", domain.ValidationExpired).Error
}
