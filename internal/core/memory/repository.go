// Package memory provides in-memory implementations of the repository ports.
// They honor the same conditional-write contract as the postgres
// implementations and back the service tests and the -memory dev mode.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"flowpilot/internal/core/ports"
	"flowpilot/internal/domain"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Repositories bundles the full in-memory repository set over one store.
type Repositories struct {
	Workflows   ports.WorkflowRepository
	Instances   ports.InstanceRepository
	Executions  ports.ExecutionRepository
	Validations ports.ValidationRepository
}

type store struct {
	mu          sync.Mutex
	definitions map[uuid.UUID]domain.WorkflowDefinition
	steps       map[uuid.UUID][]domain.StepDefinition
	instances   map[uuid.UUID]domain.WorkflowInstance
	executions  map[uuid.UUID]domain.StepExecution
	validations map[uuid.UUID]domain.ClientValidation
}

func NewRepositories() *Repositories {
	s := &store{
		definitions: make(map[uuid.UUID]domain.WorkflowDefinition),
		steps:       make(map[uuid.UUID][]domain.StepDefinition),
		instances:   make(map[uuid.UUID]domain.WorkflowInstance),
		executions:  make(map[uuid.UUID]domain.StepExecution),
		validations: make(map[uuid.UUID]domain.ClientValidation),
	}
	return &Repositories{
		Workflows:   &workflowRepository{s},
		Instances:   &instanceRepository{s},
		Executions:  &executionRepository{s},
		Validations: &validationRepository{s},
	}
}

type workflowRepository struct{ s *store }

func (r *workflowRepository) Create(_ context.Context, def *domain.WorkflowDefinition, steps []domain.StepDefinition) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.definitions[def.ID] = *def
	r.s.steps[def.ID] = append([]domain.StepDefinition(nil), steps...)
	return nil
}

func (r *workflowRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.WorkflowDefinition, []domain.StepDefinition, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	def, ok := r.s.definitions[id]
	if !ok {
		return nil, nil, domain.ErrNotFound
	}
	steps := append([]domain.StepDefinition(nil), r.s.steps[id]...)
	sort.Slice(steps, func(i, j int) bool { return steps[i].OrderIndex < steps[j].OrderIndex })
	return &def, steps, nil
}

func (r *workflowRepository) List(_ context.Context, authorID uuid.UUID) ([]domain.WorkflowDefinition, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var defs []domain.WorkflowDefinition
	for _, def := range r.s.definitions {
		if def.AuthorID == authorID || def.IsPublic {
			defs = append(defs, def)
		}
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].CreatedAt.After(defs[j].CreatedAt) })
	return defs, nil
}

type instanceRepository struct{ s *store }

func (r *instanceRepository) Create(_ context.Context, instance *domain.WorkflowInstance) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.instances[instance.ID] = *instance
	return nil
}

func (r *instanceRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.WorkflowInstance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	instance, ok := r.s.instances[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &instance, nil
}

func (r *instanceRepository) List(_ context.Context) ([]domain.WorkflowInstance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	instances := make([]domain.WorkflowInstance, 0, len(r.s.instances))
	for _, instance := range r.s.instances {
		instances = append(instances, instance)
	}
	sort.Slice(instances, func(i, j int) bool { return instances[i].StartedAt.After(instances[j].StartedAt) })
	return instances, nil
}

func (r *instanceRepository) AdvanceStep(_ context.Context, id uuid.UUID, fromIndex int, progress ports.InstanceProgress) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	instance, ok := r.s.instances[id]
	if !ok {
		return domain.ErrNotFound
	}
	// Same condition the postgres WHERE clause enforces.
	if instance.CurrentStepIndex != fromIndex || instance.Status != domain.InstanceInProgress {
		return domain.ErrConcurrentModification
	}

	instance.CurrentStepIndex = fromIndex + 1
	instance.HumanTimeSpentMs += progress.HumanTimeMs
	instance.AIProcessingTimeMs += progress.AITimeMs
	instance.ClientWaitTimeMs += progress.ClientWaitMs
	instance.TotalCost += progress.Cost
	if progress.Complete {
		instance.Status = domain.InstanceCompleted
		completedAt := progress.CompletedAt
		instance.CompletedAt = &completedAt
		instance.TotalExecutionTimeMs = progress.TotalTimeMs
	}
	r.s.instances[id] = instance
	return nil
}

func (r *instanceRepository) MarkFailed(_ context.Context, id uuid.UUID, reason string, completedAt time.Time, totalTimeMs int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	instance, ok := r.s.instances[id]
	if !ok {
		return domain.ErrNotFound
	}
	if instance.Status != domain.InstanceInProgress {
		return domain.ErrInvalidState
	}

	instance.Status = domain.InstanceFailed
	instance.FailureReason = &reason
	at := completedAt
	instance.CompletedAt = &at
	instance.TotalExecutionTimeMs = totalTimeMs
	r.s.instances[id] = instance
	return nil
}

func (r *instanceRepository) SetQualityScore(_ context.Context, id uuid.UUID, score float64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	instance, ok := r.s.instances[id]
	if !ok {
		return domain.ErrNotFound
	}
	instance.OutputQualityScore = &score
	r.s.instances[id] = instance
	return nil
}

type executionRepository struct{ s *store }

func (r *executionRepository) Create(_ context.Context, execution *domain.StepExecution) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.executions[execution.ID] = *execution
	return nil
}

func (r *executionRepository) Seal(_ context.Context, id uuid.UUID, status domain.ExecutionStatus, output string, completedAt time.Time, executionTimeMs int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	execution, ok := r.s.executions[id]
	if !ok {
		return domain.ErrNotFound
	}
	if execution.Status != domain.ExecutionInProgress {
		return domain.ErrConcurrentModification
	}

	execution.Status = status
	execution.Output = output
	at := completedAt
	execution.CompletedAt = &at
	execution.ExecutionTimeMs = &executionTimeMs
	r.s.executions[id] = execution
	return nil
}

func (r *executionRepository) FindInProgress(_ context.Context, instanceID, stepID uuid.UUID) (*domain.StepExecution, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, execution := range r.s.executions {
		if execution.InstanceID == instanceID && execution.StepID == stepID &&
			execution.Status == domain.ExecutionInProgress {
			e := execution
			return &e, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *executionRepository) ListByInstance(_ context.Context, instanceID uuid.UUID) ([]domain.StepExecution, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var executions []domain.StepExecution
	for _, execution := range r.s.executions {
		if execution.InstanceID == instanceID {
			executions = append(executions, execution)
		}
	}
	sort.Slice(executions, func(i, j int) bool {
		return executions[i].StartedAt.Before(executions[j].StartedAt)
	})
	return executions, nil
}

type validationRepository struct{ s *store }

func (r *validationRepository) Create(_ context.Context, validation *domain.ClientValidation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.validations[validation.ID] = *validation
	return nil
}

func (r *validationRepository) GetByToken(_ context.Context, token string) (*domain.ClientValidation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, validation := range r.s.validations {
		if validation.SecureToken == token {
			v := validation
			return &v, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *validationRepository) FindPending(_ context.Context, instanceID, stepID uuid.UUID) (*domain.ClientValidation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, validation := range r.s.validations {
		if validation.InstanceID == instanceID && validation.StepID == stepID &&
			validation.Status == domain.ValidationPending {
			v := validation
			return &v, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *validationRepository) Complete(_ context.Context, id uuid.UUID, files datatypes.JSON, completedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	validation, ok := r.s.validations[id]
	if !ok {
		return domain.ErrNotFound
	}
	if validation.Status != domain.ValidationPending {
		return domain.ErrConcurrentModification
	}

	validation.Status = domain.ValidationCompleted
	at := completedAt
	validation.CompletedAt = &at
	validation.UploadedFiles = files
	r.s.validations[id] = validation
	return nil
}

func (r *validationRepository) MarkExpired(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	validation, ok := r.s.validations[id]
	if !ok {
		return domain.ErrNotFound
	}
	if validation.Status != domain.ValidationPending {
		return nil
	}
	validation.Status = domain.ValidationExpired
	r.s.validations[id] = validation
	return nil
}
