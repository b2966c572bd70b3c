package ports

import (
	"context"
	"io"
	"time"

	"flowpilot/internal/domain"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// WorkflowRepository stores workflow definitions and their ordered steps.
type WorkflowRepository interface {
	// Create saves a definition and its steps in one transaction.
	Create(ctx context.Context, def *domain.WorkflowDefinition, steps []domain.StepDefinition) error

	// GetByID returns the definition and its steps sorted by order index.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.WorkflowDefinition, []domain.StepDefinition, error)

	// List returns definitions visible to the given author: their own plus
	// public ones.
	List(ctx context.Context, authorID uuid.UUID) ([]domain.WorkflowDefinition, error)
}

// InstanceProgress carries the deltas of one successful step advance. The
// repository applies it together with the index bump in a single conditional
// write.
type InstanceProgress struct {
	HumanTimeMs  int64
	AITimeMs     int64
	ClientWaitMs int64
	Cost         float64

	// Complete marks the instance finished once the index reaches the end of
	// the snapshot.
	Complete    bool
	CompletedAt time.Time
	TotalTimeMs int64
}

// InstanceRepository stores workflow instances.
type InstanceRepository interface {
	Create(ctx context.Context, instance *domain.WorkflowInstance) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.WorkflowInstance, error)
	List(ctx context.Context) ([]domain.WorkflowInstance, error)

	// AdvanceStep moves the step pointer from fromIndex to fromIndex+1 and
	// folds the progress deltas in, conditioned on the instance still being in
	// progress at fromIndex. Returns domain.ErrConcurrentModification when the
	// condition no longer holds.
	AdvanceStep(ctx context.Context, id uuid.UUID, fromIndex int, progress InstanceProgress) error

	// MarkFailed forces the terminal failed state. Rejected with
	// domain.ErrInvalidState when the instance is already terminal.
	MarkFailed(ctx context.Context, id uuid.UUID, reason string, completedAt time.Time, totalTimeMs int64) error

	SetQualityScore(ctx context.Context, id uuid.UUID, score float64) error
}

// ExecutionRepository stores the append-only step execution ledger.
type ExecutionRepository interface {
	Create(ctx context.Context, execution *domain.StepExecution) error

	// Seal fixes the terminal fields of an in-progress execution.
	Seal(ctx context.Context, id uuid.UUID, status domain.ExecutionStatus, output string, completedAt time.Time, executionTimeMs int64) error

	// FindInProgress returns the open execution for an instance step, or
	// domain.ErrNotFound.
	FindInProgress(ctx context.Context, instanceID, stepID uuid.UUID) (*domain.StepExecution, error)

	ListByInstance(ctx context.Context, instanceID uuid.UUID) ([]domain.StepExecution, error)
}

// ValidationRepository stores client validations.
type ValidationRepository interface {
	Create(ctx context.Context, validation *domain.ClientValidation) error
	GetByToken(ctx context.Context, token string) (*domain.ClientValidation, error)

	// FindPending returns the open validation for an instance step, or
	// domain.ErrNotFound.
	FindPending(ctx context.Context, instanceID, stepID uuid.UUID) (*domain.ClientValidation, error)

	// Complete seals a pending validation, conditioned on it still being
	// pending. Returns domain.ErrConcurrentModification when it is not.
	Complete(ctx context.Context, id uuid.UUID, files datatypes.JSON, completedAt time.Time) error

	// MarkExpired flips a pending validation to expired. A no-op when the
	// validation is no longer pending, so lazy expiry is idempotent.
	MarkExpired(ctx context.Context, id uuid.UUID) error
}

// AIExecutor runs one AI step: given the prompts, it returns the model output
// plus token usage and cost. Any transport or provider failure surfaces as
// *domain.ExecutorError.
type AIExecutor interface {
	Execute(ctx context.Context, systemPrompt, userPrompt string) (*domain.AIResult, error)
}

// EventBus broadcasts instance activity to collaborators.
type EventBus interface {
	PublishActivity(ctx context.Context, event domain.ActivityEvent) error
	SubscribeActivity(ctx context.Context) (<-chan domain.ActivityEvent, error)
}

// NotificationQueue carries validation notices to the notify worker.
type NotificationQueue interface {
	Push(ctx context.Context, notice domain.ValidationNotice) error

	// Pop blocks until a notice is available or ctx is done.
	Pop(ctx context.Context) (domain.ValidationNotice, error)
}

// FileStore accepts raw uploaded bytes and returns a stored-file reference.
// The engine only ever stores references, never bytes.
type FileStore interface {
	Store(ctx context.Context, name string, content io.Reader) (string, error)
}

// Clock abstracts time so expiry and duration logic is testable.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
