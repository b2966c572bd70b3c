package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"flowpilot/internal/core/ports"
	"flowpilot/internal/domain"
	"flowpilot/internal/executor"
	"flowpilot/internal/infrastructure/metrics"
	"flowpilot/internal/logging"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// StartInstanceRequest begins a new run of a workflow definition.
type StartInstanceRequest struct {
	WorkflowID  uuid.UUID
	StartedBy   uuid.UUID
	ClientID    string
	ClientName  string
	ClientEmail string
}

// ExecuteStepRequest carries the caller-supplied inputs for the current step.
// Which fields matter depends on the step kind: human steps require Output
// (plus the time the operator spent), ai steps consume Input for prompt
// interpolation, client_validate steps need a client email unless the
// instance already carries one.
type ExecuteStepRequest struct {
	Input           map[string]any
	Output          string
	ExecutionTimeMs int64
	ClientEmail     string
}

// StepResult is the outcome of one ExecuteCurrentStep call. For human and ai
// steps Execution is the sealed ledger record and the pointer has advanced.
// For client_validate steps Validation holds the pending (possibly reused)
// request, SecureLink is the client-facing URL, and the pointer has not moved.
type StepResult struct {
	Kind              domain.StepKind
	Execution         *domain.StepExecution
	Validation        *domain.ClientValidation
	SecureLink        string
	AIResult          *domain.AIResult
	InstanceCompleted bool
}

// InstanceService is the workflow instance state machine. It owns the
// lifecycle of instances: starting them, advancing them step by step, and
// resolving the asynchronous client-validation steps that may complete days
// later through a different call path.
type InstanceService interface {
	Start(ctx context.Context, req StartInstanceRequest) (*domain.WorkflowInstance, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.WorkflowInstance, []domain.StepExecution, error)
	List(ctx context.Context) ([]domain.WorkflowInstance, error)

	ExecuteCurrentStep(ctx context.Context, instanceID uuid.UUID, req ExecuteStepRequest) (*StepResult, error)

	// GetValidationByToken is the anonymous client's read path. Expiry is
	// evaluated lazily here: a pending validation past its window is flipped
	// to expired and reported as such.
	GetValidationByToken(ctx context.Context, token string) (*domain.ClientValidation, error)

	// ResolveClientValidation completes a pending validation and is the call
	// that advances the instance past a client_validate step. Returns the
	// client wait time in milliseconds.
	ResolveClientValidation(ctx context.Context, token string, fileRefs []string) (int64, error)

	// Fail forces an in-progress instance into the terminal failed state.
	Fail(ctx context.Context, instanceID uuid.UUID, reason string) error

	SetQualityScore(ctx context.Context, instanceID uuid.UUID, score float64) error

	Metrics(ctx context.Context, instanceID uuid.UUID, industry *IndustryAverage) (*MetricsSummary, error)
}

type instanceService struct {
	workflows   ports.WorkflowRepository
	instances   ports.InstanceRepository
	executions  ports.ExecutionRepository
	validations ports.ValidationRepository

	ai    ports.AIExecutor
	clock ports.Clock
	bus   ports.EventBus          // optional
	queue ports.NotificationQueue // optional

	publicBaseURL string
	validationTTL time.Duration
	logger        *slog.Logger
}

// NewInstanceService wires the state machine. bus and queue may be nil; the
// corresponding side effects are then skipped.
func NewInstanceService(
	workflows ports.WorkflowRepository,
	instances ports.InstanceRepository,
	executions ports.ExecutionRepository,
	validations ports.ValidationRepository,
	ai ports.AIExecutor,
	clock ports.Clock,
	bus ports.EventBus,
	queue ports.NotificationQueue,
	publicBaseURL string,
	validationTTL time.Duration,
) InstanceService {
	return &instanceService{
		workflows:     workflows,
		instances:     instances,
		executions:    executions,
		validations:   validations,
		ai:            ai,
		clock:         clock,
		bus:           bus,
		queue:         queue,
		publicBaseURL: publicBaseURL,
		validationTTL: validationTTL,
		logger:        logging.WithComponent("instance-service"),
	}
}

func (s *instanceService) Start(ctx context.Context, req StartInstanceRequest) (*domain.WorkflowInstance, error) {
	_, steps, err := s.workflows.GetByID(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return nil, domain.ErrNotFound
	}

	instance, err := domain.NewWorkflowInstance(req.WorkflowID, req.StartedBy, steps, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if req.ClientID != "" {
		instance.ClientID = &req.ClientID
	}
	if req.ClientName != "" {
		instance.ClientName = &req.ClientName
	}
	if req.ClientEmail != "" {
		instance.ClientEmail = &req.ClientEmail
	}

	if err := s.instances.Create(ctx, instance); err != nil {
		return nil, err
	}

	s.logger.Info("instance started",
		"instance_id", instance.ID, "workflow_id", req.WorkflowID, "steps", len(steps))
	return instance, nil
}

func (s *instanceService) Get(ctx context.Context, id uuid.UUID) (*domain.WorkflowInstance, []domain.StepExecution, error) {
	instance, err := s.instances.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	// Lazy expiry correction: if the current step is waiting on a client
	// validation that has passed its window, flip it before reporting.
	s.correctStaleValidation(ctx, instance)

	executions, err := s.executions.ListByInstance(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return instance, executions, nil
}

func (s *instanceService) List(ctx context.Context) ([]domain.WorkflowInstance, error) {
	return s.instances.List(ctx)
}

func (s *instanceService) ExecuteCurrentStep(ctx context.Context, instanceID uuid.UUID, req ExecuteStepRequest) (*StepResult, error) {
	instance, err := s.instances.GetByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if instance.IsFinished() {
		return nil, fmt.Errorf("instance %s is %s: %w", instanceID, instance.Status, domain.ErrInvalidState)
	}

	steps, err := instance.Steps()
	if err != nil {
		return nil, err
	}
	if instance.CurrentStepIndex >= len(steps) {
		return nil, domain.ErrStepIndexOutOfRange
	}
	step := steps[instance.CurrentStepIndex]

	switch step.Kind {
	case domain.StepHuman:
		return s.executeHumanStep(ctx, instance, step, len(steps), req)
	case domain.StepAI:
		return s.executeAIStep(ctx, instance, step, len(steps), req)
	case domain.StepClientValidate:
		return s.beginClientValidation(ctx, instance, step, req)
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownStepKind, step.Kind)
	}
}

// executeHumanStep records caller-supplied output. The operator did the work
// outside this call; the engine only books it, so the advance happens before
// the ledger insert and a lost race books nothing.
func (s *instanceService) executeHumanStep(ctx context.Context, instance *domain.WorkflowInstance, step domain.StepDefinition, stepCount int, req ExecuteStepRequest) (*StepResult, error) {
	if req.Output == "" {
		return nil, domain.ErrMissingOutput
	}

	now := s.clock.Now()
	progress := ports.InstanceProgress{HumanTimeMs: req.ExecutionTimeMs}
	completed := s.finishProgress(&progress, instance, stepCount, now)

	if err := s.instances.AdvanceStep(ctx, instance.ID, instance.CurrentStepIndex, progress); err != nil {
		return nil, err
	}

	execution := domain.NewStepExecution(instance.ID, step.ID, marshalInput(req.Input), now)
	execution.Seal(domain.ExecutionCompleted, req.Output, now)
	execution.ExecutionTimeMs = &req.ExecutionTimeMs
	if err := s.executions.Create(ctx, execution); err != nil {
		// The advance already landed; a missing ledger row is log-worthy but
		// must not undo the step.
		s.logger.Error("failed to record human step execution",
			"instance_id", instance.ID, "step_id", step.ID, "error", err)
	}

	metrics.ObserveStepExecution(string(domain.StepHuman), string(domain.ExecutionCompleted),
		float64(req.ExecutionTimeMs)/1000)
	s.publishStepEvents(ctx, instance, step, domain.ActivityStepCompleted, completed, now)

	return &StepResult{Kind: domain.StepHuman, Execution: execution, InstanceCompleted: completed}, nil
}

// executeAIStep interpolates the prompt template, invokes the executor, and
// books the result. On executor failure the step stays current: a failed
// ledger record is written for audit and the caller may retry.
func (s *instanceService) executeAIStep(ctx context.Context, instance *domain.WorkflowInstance, step domain.StepDefinition, stepCount int, req ExecuteStepRequest) (*StepResult, error) {
	payload, err := step.AIPayload()
	if err != nil {
		return nil, err
	}
	prompt := executor.Interpolate(payload.UserPromptTemplate, req.Input)

	startedAt := s.clock.Now()
	result, execErr := s.ai.Execute(ctx, payload.SystemPrompt, prompt)
	now := s.clock.Now()
	durationMs := now.Sub(startedAt).Milliseconds()

	execution := domain.NewStepExecution(instance.ID, step.ID, marshalInput(req.Input), startedAt)

	if execErr != nil {
		execution.Seal(domain.ExecutionFailed, execErr.Error(), now)
		if err := s.executions.Create(ctx, execution); err != nil {
			s.logger.Error("failed to record failed ai step execution",
				"instance_id", instance.ID, "step_id", step.ID, "error", err)
		}

		metrics.ObserveStepExecution(string(domain.StepAI), string(domain.ExecutionFailed),
			float64(durationMs)/1000)
		s.publishStepEvents(ctx, instance, step, domain.ActivityStepFailed, false, now)
		s.logger.Warn("ai step failed",
			"instance_id", instance.ID, "step_id", step.ID, "error", execErr)

		return nil, fmt.Errorf("ai step execution failed: %w", execErr)
	}

	execution.Seal(domain.ExecutionCompleted, result.Content, now)
	execution.TokenCount = &result.TotalTokens
	execution.Cost = &result.Cost
	execution.ModelUsed = &result.Model
	if err := s.executions.Create(ctx, execution); err != nil {
		s.logger.Error("failed to record ai step execution",
			"instance_id", instance.ID, "step_id", step.ID, "error", err)
	}

	progress := ports.InstanceProgress{AITimeMs: durationMs, Cost: result.Cost}
	completed := s.finishProgress(&progress, instance, stepCount, now)

	if err := s.instances.AdvanceStep(ctx, instance.ID, instance.CurrentStepIndex, progress); err != nil {
		return nil, err
	}

	metrics.ObserveStepExecution(string(domain.StepAI), string(domain.ExecutionCompleted),
		float64(durationMs)/1000)
	metrics.ObserveAIUsage(result.TotalTokens, result.Cost)
	s.publishStepEvents(ctx, instance, step, domain.ActivityStepCompleted, completed, now)

	return &StepResult{
		Kind:              domain.StepAI,
		Execution:         execution,
		AIResult:          result,
		InstanceCompleted: completed,
	}, nil
}

// beginClientValidation opens (or returns the already-open) time-boxed upload
// request for the current step. The pointer does not move here; only
// ResolveClientValidation advances past a client_validate step.
func (s *instanceService) beginClientValidation(ctx context.Context, instance *domain.WorkflowInstance, step domain.StepDefinition, req ExecuteStepRequest) (*StepResult, error) {
	email := req.ClientEmail
	if email == "" && instance.ClientEmail != nil {
		email = *instance.ClientEmail
	}
	if email == "" {
		return nil, domain.ErrClientEmailRequired
	}

	now := s.clock.Now()

	if existing, err := s.validations.FindPending(ctx, instance.ID, step.ID); err == nil {
		if !existing.IsExpired(now) {
			return &StepResult{
				Kind:       domain.StepClientValidate,
				Validation: existing,
				SecureLink: s.secureLink(existing.SecureToken),
			}, nil
		}
		// The previous request lapsed; flip it and issue a fresh one.
		if err := s.validations.MarkExpired(ctx, existing.ID); err != nil {
			return nil, err
		}
		metrics.ObserveValidation("expired")
	}

	validation := domain.NewClientValidation(instance.ID, step.ID, email, now, s.validationTTL)
	if err := s.validations.Create(ctx, validation); err != nil {
		return nil, err
	}

	execution := domain.NewStepExecution(instance.ID, step.ID, marshalInput(req.Input), now)
	if err := s.executions.Create(ctx, execution); err != nil {
		return nil, err
	}

	payload, err := step.ClientValidatePayload()
	if err != nil {
		return nil, err
	}
	s.enqueueNotice(ctx, validation, payload.Instructions)

	metrics.ObserveValidation("created")
	s.publishActivity(ctx, domain.ActivityEvent{
		InstanceID: instance.ID,
		StepID:     step.ID,
		StepIndex:  instance.CurrentStepIndex,
		Type:       domain.ActivityValidationCreated,
		Detail:     step.Label,
		OccurredAt: now,
	})
	s.logger.Info("client validation created",
		"instance_id", instance.ID, "validation_id", validation.ID, "expires_at", validation.ExpiresAt)

	return &StepResult{
		Kind:       domain.StepClientValidate,
		Validation: validation,
		SecureLink: s.secureLink(validation.SecureToken),
	}, nil
}

func (s *instanceService) GetValidationByToken(ctx context.Context, token string) (*domain.ClientValidation, error) {
	validation, err := s.validations.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if validation.IsExpired(s.clock.Now()) {
		if validation.Status == domain.ValidationPending {
			if err := s.validations.MarkExpired(ctx, validation.ID); err != nil {
				return nil, err
			}
			metrics.ObserveValidation("expired")
		}
		return nil, domain.ErrExpired
	}

	return validation, nil
}

func (s *instanceService) ResolveClientValidation(ctx context.Context, token string, fileRefs []string) (int64, error) {
	validation, err := s.validations.GetByToken(ctx, token)
	if err != nil {
		return 0, err
	}

	now := s.clock.Now()
	if validation.Status == domain.ValidationCompleted {
		return 0, domain.ErrAlreadyCompleted
	}
	if validation.IsExpired(now) {
		if validation.Status == domain.ValidationPending {
			if err := s.validations.MarkExpired(ctx, validation.ID); err != nil {
				return 0, err
			}
			metrics.ObserveValidation("expired")
		}
		return 0, domain.ErrExpired
	}

	instance, err := s.instances.GetByID(ctx, validation.InstanceID)
	if err != nil {
		return 0, err
	}
	if instance.IsFinished() {
		return 0, fmt.Errorf("instance %s is %s: %w", instance.ID, instance.Status, domain.ErrInvalidState)
	}
	steps, err := instance.Steps()
	if err != nil {
		return 0, err
	}
	if instance.CurrentStepIndex >= len(steps) {
		return 0, domain.ErrStepIndexOutOfRange
	}
	if steps[instance.CurrentStepIndex].ID != validation.StepID {
		// The validation belongs to a step that is no longer current.
		return 0, fmt.Errorf("validation %s is not for the current step: %w",
			validation.ID, domain.ErrInvalidState)
	}

	if fileRefs == nil {
		fileRefs = []string{}
	}
	filesJSON, err := json.Marshal(fileRefs)
	if err != nil {
		return 0, err
	}

	// Seal the validation first; its conditional write is the guard against a
	// double submission racing this call.
	if err := s.validations.Complete(ctx, validation.ID, datatypes.JSON(filesJSON), now); err != nil {
		return 0, err
	}

	output, _ := json.Marshal(map[string]any{"files": fileRefs})
	if execution, err := s.executions.FindInProgress(ctx, validation.InstanceID, validation.StepID); err == nil {
		sealErr := s.executions.Seal(ctx, execution.ID, domain.ExecutionCompleted,
			string(output), now, now.Sub(execution.StartedAt).Milliseconds())
		if sealErr != nil {
			s.logger.Error("failed to seal validation step execution",
				"execution_id", execution.ID, "error", sealErr)
		}
	} else {
		s.logger.Error("no open execution for resolved validation",
			"validation_id", validation.ID, "error", err)
	}

	waitTime := now.Sub(validation.CreatedAt).Milliseconds()
	progress := ports.InstanceProgress{ClientWaitMs: waitTime}
	completed := s.finishProgress(&progress, instance, len(steps), now)

	if err := s.instances.AdvanceStep(ctx, instance.ID, instance.CurrentStepIndex, progress); err != nil {
		return 0, err
	}

	metrics.ObserveValidation("resolved")
	metrics.ObserveStepExecution(string(domain.StepClientValidate), string(domain.ExecutionCompleted),
		float64(waitTime)/1000)
	s.publishStepEvents(ctx, instance, steps[instance.CurrentStepIndex], domain.ActivityValidationResolved, completed, now)
	s.logger.Info("client validation resolved",
		"validation_id", validation.ID, "instance_id", instance.ID, "wait_ms", waitTime)

	return waitTime, nil
}

func (s *instanceService) Fail(ctx context.Context, instanceID uuid.UUID, reason string) error {
	instance, err := s.instances.GetByID(ctx, instanceID)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	totalMs := now.Sub(instance.StartedAt).Milliseconds()
	if err := s.instances.MarkFailed(ctx, instanceID, reason, now, totalMs); err != nil {
		return err
	}

	s.publishActivity(ctx, domain.ActivityEvent{
		InstanceID: instance.ID,
		StepIndex:  instance.CurrentStepIndex,
		Type:       domain.ActivityInstanceFailed,
		Detail:     reason,
		OccurredAt: now,
	})
	s.logger.Info("instance failed", "instance_id", instanceID, "reason", reason)
	return nil
}

func (s *instanceService) SetQualityScore(ctx context.Context, instanceID uuid.UUID, score float64) error {
	if score < 0 || score > 5 {
		return fmt.Errorf("quality score %v outside [0, 5]: %w", score, domain.ErrInvalidState)
	}
	return s.instances.SetQualityScore(ctx, instanceID, score)
}

func (s *instanceService) Metrics(ctx context.Context, instanceID uuid.UUID, industry *IndustryAverage) (*MetricsSummary, error) {
	instance, err := s.instances.GetByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	summary := SummarizeInstance(instance, s.clock.Now(), industry)
	return &summary, nil
}

// finishProgress marks the progress terminal when this advance reaches the
// end of the snapshot. Reports whether the instance completes.
func (s *instanceService) finishProgress(progress *ports.InstanceProgress, instance *domain.WorkflowInstance, stepCount int, now time.Time) bool {
	if instance.CurrentStepIndex+1 != stepCount {
		return false
	}
	progress.Complete = true
	progress.CompletedAt = now
	progress.TotalTimeMs = now.Sub(instance.StartedAt).Milliseconds()
	return true
}

func (s *instanceService) correctStaleValidation(ctx context.Context, instance *domain.WorkflowInstance) {
	if instance.IsFinished() {
		return
	}
	steps, err := instance.Steps()
	if err != nil || instance.CurrentStepIndex >= len(steps) {
		return
	}
	step := steps[instance.CurrentStepIndex]
	if step.Kind != domain.StepClientValidate {
		return
	}

	validation, err := s.validations.FindPending(ctx, instance.ID, step.ID)
	if err != nil {
		return
	}
	if validation.IsExpired(s.clock.Now()) {
		if err := s.validations.MarkExpired(ctx, validation.ID); err != nil {
			s.logger.Error("failed to expire stale validation",
				"validation_id", validation.ID, "error", err)
			return
		}
		metrics.ObserveValidation("expired")
	}
}

func (s *instanceService) secureLink(token string) string {
	return s.publicBaseURL + "/client-validation/" + token
}

func (s *instanceService) enqueueNotice(ctx context.Context, validation *domain.ClientValidation, instructions string) {
	if s.queue == nil {
		return
	}
	notice := domain.ValidationNotice{
		ValidationID: validation.ID,
		InstanceID:   validation.InstanceID,
		ClientEmail:  validation.ClientEmail,
		SecureLink:   s.secureLink(validation.SecureToken),
		Instructions: instructions,
		ExpiresAt:    validation.ExpiresAt,
		Channel:      "email",
	}
	if err := s.queue.Push(ctx, notice); err != nil {
		s.logger.Error("failed to enqueue validation notice",
			"validation_id", validation.ID, "error", err)
	}
}

func (s *instanceService) publishStepEvents(ctx context.Context, instance *domain.WorkflowInstance, step domain.StepDefinition, eventType domain.ActivityType, completed bool, now time.Time) {
	s.publishActivity(ctx, domain.ActivityEvent{
		InstanceID: instance.ID,
		StepID:     step.ID,
		StepIndex:  instance.CurrentStepIndex,
		Type:       eventType,
		Detail:     step.Label,
		OccurredAt: now,
	})
	if completed {
		s.publishActivity(ctx, domain.ActivityEvent{
			InstanceID: instance.ID,
			StepIndex:  instance.CurrentStepIndex + 1,
			Type:       domain.ActivityInstanceCompleted,
			OccurredAt: now,
		})
	}
}

func (s *instanceService) publishActivity(ctx context.Context, event domain.ActivityEvent) {
	if s.bus == nil {
		return
	}
	if err := s.bus.PublishActivity(ctx, event); err != nil {
		s.logger.Error("failed to publish activity event",
			"instance_id", event.InstanceID, "type", event.Type, "error", err)
	}
}

func marshalInput(input map[string]any) datatypes.JSON {
	if input == nil {
		input = map[string]any{}
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return datatypes.JSON([]byte(`{}`))
	}
	return datatypes.JSON(raw)
}
