package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"flowpilot/internal/core/memory"
	"flowpilot/internal/core/ports"
	"flowpilot/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTTL = 7 * 24 * time.Hour

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// stubExecutor returns a canned result and can advance the clock to simulate
// model latency.
type stubExecutor struct {
	result *domain.AIResult
	err    error

	clock  *fakeClock
	elapse time.Duration

	systemPrompts []string
	userPrompts   []string
}

func (s *stubExecutor) Execute(_ context.Context, systemPrompt, userPrompt string) (*domain.AIResult, error) {
	s.systemPrompts = append(s.systemPrompts, systemPrompt)
	s.userPrompts = append(s.userPrompts, userPrompt)
	if s.elapse > 0 {
		s.clock.Advance(s.elapse)
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type recordingBus struct {
	mu     sync.Mutex
	events []domain.ActivityEvent
}

func (b *recordingBus) PublishActivity(_ context.Context, event domain.ActivityEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *recordingBus) SubscribeActivity(_ context.Context) (<-chan domain.ActivityEvent, error) {
	return make(chan domain.ActivityEvent), nil
}

func (b *recordingBus) Types() []domain.ActivityType {
	b.mu.Lock()
	defer b.mu.Unlock()
	types := make([]domain.ActivityType, 0, len(b.events))
	for _, e := range b.events {
		types = append(types, e.Type)
	}
	return types
}

type recordingQueue struct {
	mu      sync.Mutex
	notices []domain.ValidationNotice
}

func (q *recordingQueue) Push(_ context.Context, notice domain.ValidationNotice) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.notices = append(q.notices, notice)
	return nil
}

func (q *recordingQueue) Pop(ctx context.Context) (domain.ValidationNotice, error) {
	<-ctx.Done()
	return domain.ValidationNotice{}, ctx.Err()
}

// staleInstanceRepo serves a pinned snapshot from GetByID so a caller acts on
// an outdated step index, exactly like a second tab racing the first.
type staleInstanceRepo struct {
	ports.InstanceRepository

	mu     sync.Mutex
	pinned *domain.WorkflowInstance
}

func (r *staleInstanceRepo) Pin(instance *domain.WorkflowInstance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *instance
	r.pinned = &copied
}

func (r *staleInstanceRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.WorkflowInstance, error) {
	r.mu.Lock()
	pinned := r.pinned
	r.mu.Unlock()
	if pinned != nil && pinned.ID == id {
		copied := *pinned
		return &copied, nil
	}
	return r.InstanceRepository.GetByID(ctx, id)
}

type testEnv struct {
	repos    *memory.Repositories
	clock    *fakeClock
	executor *stubExecutor
	bus      *recordingBus
	queue    *recordingQueue

	workflows WorkflowService
	instances InstanceService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repos := memory.NewRepositories()
	clock := newFakeClock()
	exec := &stubExecutor{
		clock:  clock,
		elapse: 2 * time.Second,
		result: &domain.AIResult{
			Content:          "model output",
			Cost:             0.002,
			TotalTokens:      2000,
			PromptTokens:     1000,
			CompletionTokens: 1000,
			Model:            "gpt-3.5-turbo",
		},
	}
	bus := &recordingBus{}
	queue := &recordingQueue{}

	return &testEnv{
		repos:     repos,
		clock:     clock,
		executor:  exec,
		bus:       bus,
		queue:     queue,
		workflows: NewWorkflowService(repos.Workflows),
		instances: NewInstanceService(
			repos.Workflows, repos.Instances, repos.Executions, repos.Validations,
			exec, clock, bus, queue, "http://app.test", testTTL,
		),
	}
}

func (env *testEnv) createWorkflow(t *testing.T, steps ...StepInput) *domain.WorkflowDefinition {
	t.Helper()
	def, _, err := env.workflows.Create(context.Background(), CreateWorkflowRequest{
		AuthorID: uuid.New(),
		Title:    "Service Catalog - Banking",
		Category: "service_catalog",
		Steps:    steps,
	})
	require.NoError(t, err)
	return def
}

func (env *testEnv) startInstance(t *testing.T, workflowID uuid.UUID, clientEmail string) *domain.WorkflowInstance {
	t.Helper()
	instance, err := env.instances.Start(context.Background(), StartInstanceRequest{
		WorkflowID:  workflowID,
		StartedBy:   uuid.New(),
		ClientEmail: clientEmail,
	})
	require.NoError(t, err)
	return instance
}

func humanStep(label string) StepInput {
	return StepInput{Kind: domain.StepHuman, Label: label, Instructions: "do the thing"}
}

func aiStep(label, template string) StepInput {
	return StepInput{Kind: domain.StepAI, Label: label, SystemPrompt: "You are an analyst.", UserPromptTemplate: template}
}

func clientStep(label string) StepInput {
	return StepInput{Kind: domain.StepClientValidate, Label: label, Instructions: "please upload your documents"}
}

func TestStartInstanceFreezesSnapshot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	def := env.createWorkflow(t, humanStep("Intake"), aiStep("Analyze", "{{data}}"))
	instance := env.startInstance(t, def.ID, "")

	// Publishing a new version must not change what the running instance sees.
	_, _, err := env.workflows.CreateVersion(ctx, def.ID, CreateVersionRequest{
		AuthorID: def.AuthorID,
		Version:  "2.0",
		Steps:    []StepInput{humanStep("Completely Different")},
	})
	require.NoError(t, err)

	steps, err := instance.Steps()
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "Intake", steps[0].Label)
	assert.Equal(t, domain.InstanceInProgress, instance.Status)
	assert.Equal(t, 0, instance.CurrentStepIndex)
}

func TestStartInstanceUnknownWorkflow(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.instances.Start(context.Background(), StartInstanceRequest{
		WorkflowID: uuid.New(),
		StartedBy:  uuid.New(),
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFullRunHumanAIHuman(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	def := env.createWorkflow(t,
		humanStep("Upload Taxonomy"),
		aiStep("Structure", "Extract from: {{taxonomyData}}"),
		humanStep("Review"),
	)
	instance := env.startInstance(t, def.ID, "")

	// Step 0: human.
	result, err := env.instances.ExecuteCurrentStep(ctx, instance.ID, ExecuteStepRequest{
		Output:          "taxonomy uploaded",
		ExecutionTimeMs: 60_000,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StepHuman, result.Kind)
	assert.False(t, result.InstanceCompleted)
	require.NotNil(t, result.Execution)
	assert.Equal(t, domain.ExecutionCompleted, result.Execution.Status)
	assert.Equal(t, "taxonomy uploaded", result.Execution.Output)

	// Step 1: ai.
	result, err = env.instances.ExecuteCurrentStep(ctx, instance.ID, ExecuteStepRequest{
		Input: map[string]any{"taxonomyData": "L1 processes"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StepAI, result.Kind)
	require.NotNil(t, result.AIResult)
	assert.Equal(t, "model output", result.AIResult.Content)
	assert.Equal(t, []string{"Extract from: L1 processes"}, env.executor.userPrompts)
	require.NotNil(t, result.Execution.Cost)
	assert.InDelta(t, 0.002, *result.Execution.Cost, 1e-9)

	// Step 2: human, last step completes the instance.
	result, err = env.instances.ExecuteCurrentStep(ctx, instance.ID, ExecuteStepRequest{
		Output:          "approved",
		ExecutionTimeMs: 30_000,
	})
	require.NoError(t, err)
	assert.True(t, result.InstanceCompleted)

	final, executions, err := env.instances.Get(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InstanceCompleted, final.Status)
	assert.Equal(t, 3, final.CurrentStepIndex)
	require.NotNil(t, final.CompletedAt)
	assert.Equal(t, int64(90_000), final.HumanTimeSpentMs)
	assert.Equal(t, int64(2_000), final.AIProcessingTimeMs)
	assert.InDelta(t, 0.002, final.TotalCost, 1e-9)
	assert.Equal(t, final.CompletedAt.Sub(final.StartedAt).Milliseconds(), final.TotalExecutionTimeMs)
	assert.Len(t, executions, 3)

	assert.Contains(t, env.bus.Types(), domain.ActivityInstanceCompleted)
}

func TestHumanStepRequiresOutput(t *testing.T) {
	env := newTestEnv(t)

	def := env.createWorkflow(t, humanStep("Intake"))
	instance := env.startInstance(t, def.ID, "")

	_, err := env.instances.ExecuteCurrentStep(context.Background(), instance.ID, ExecuteStepRequest{})
	assert.ErrorIs(t, err, domain.ErrMissingOutput)
	assert.True(t, domain.IsValidationError(err))
}

func TestAIStepFailureLeavesStepCurrent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	def := env.createWorkflow(t, aiStep("Structure", "{{data}}"), humanStep("Review"))
	instance := env.startInstance(t, def.ID, "")

	env.executor.err = &domain.ExecutorError{Status: 429, Message: "rate limited"}

	_, err := env.instances.ExecuteCurrentStep(ctx, instance.ID, ExecuteStepRequest{
		Input: map[string]any{"data": "x"},
	})
	require.Error(t, err)
	assert.True(t, domain.IsExecutorError(err))

	// The failed attempt is on the ledger but the pointer did not move.
	current, executions, err := env.instances.Get(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, current.CurrentStepIndex)
	assert.Equal(t, domain.InstanceInProgress, current.Status)
	require.Len(t, executions, 1)
	assert.Equal(t, domain.ExecutionFailed, executions[0].Status)

	// A retry after the provider recovers advances normally.
	env.executor.err = nil
	result, err := env.instances.ExecuteCurrentStep(ctx, instance.ID, ExecuteStepRequest{
		Input: map[string]any{"data": "x"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StepAI, result.Kind)

	current, executions, err = env.instances.Get(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, current.CurrentStepIndex)
	assert.Len(t, executions, 2)
}

func TestClientValidationLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	def := env.createWorkflow(t, clientStep("Client Data Upload"))
	instance := env.startInstance(t, def.ID, "client@example.com")

	result, err := env.instances.ExecuteCurrentStep(ctx, instance.ID, ExecuteStepRequest{})
	require.NoError(t, err)
	assert.Equal(t, domain.StepClientValidate, result.Kind)
	require.NotNil(t, result.Validation)
	assert.Equal(t, domain.ValidationPending, result.Validation.Status)
	assert.Equal(t, "client@example.com", result.Validation.ClientEmail)
	assert.Equal(t, env.clock.Now().Add(testTTL), result.Validation.ExpiresAt)
	assert.Equal(t, "http://app.test/client-validation/"+result.Validation.SecureToken, result.SecureLink)

	// The pointer stays put until the client responds.
	current, _, err := env.instances.Get(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, current.CurrentStepIndex)

	// Notice went out once.
	require.Len(t, env.queue.notices, 1)
	assert.Equal(t, "client@example.com", env.queue.notices[0].ClientEmail)
	assert.Equal(t, "email", env.queue.notices[0].Channel)

	// Re-executing the step reuses the open validation instead of minting a
	// second token.
	again, err := env.instances.ExecuteCurrentStep(ctx, instance.ID, ExecuteStepRequest{})
	require.NoError(t, err)
	assert.Equal(t, result.Validation.ID, again.Validation.ID)
	assert.Len(t, env.queue.notices, 1)

	// The client resolves three days later.
	env.clock.Advance(72 * time.Hour)
	waitMs, err := env.instances.ResolveClientValidation(ctx, result.Validation.SecureToken, []string{"doc-1.pdf"})
	require.NoError(t, err)
	assert.Equal(t, (72 * time.Hour).Milliseconds(), waitMs)

	final, executions, err := env.instances.Get(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InstanceCompleted, final.Status)
	assert.Equal(t, waitMs, final.ClientWaitTimeMs)
	require.Len(t, executions, 1)
	assert.Equal(t, domain.ExecutionCompleted, executions[0].Status)
	assert.Contains(t, executions[0].Output, "doc-1.pdf")

	// A duplicate submission is rejected without touching anything.
	_, err = env.instances.ResolveClientValidation(ctx, result.Validation.SecureToken, nil)
	assert.ErrorIs(t, err, domain.ErrAlreadyCompleted)
}

func TestClientValidationRequiresEmail(t *testing.T) {
	env := newTestEnv(t)

	def := env.createWorkflow(t, clientStep("Client Data Upload"))
	instance := env.startInstance(t, def.ID, "")

	_, err := env.instances.ExecuteCurrentStep(context.Background(), instance.ID, ExecuteStepRequest{})
	assert.ErrorIs(t, err, domain.ErrClientEmailRequired)

	// A request-level email unblocks the step.
	result, err := env.instances.ExecuteCurrentStep(context.Background(), instance.ID, ExecuteStepRequest{
		ClientEmail: "other@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "other@example.com", result.Validation.ClientEmail)
}

func TestClientValidationExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	def := env.createWorkflow(t, clientStep("Client Data Upload"))
	instance := env.startInstance(t, def.ID, "client@example.com")

	result, err := env.instances.ExecuteCurrentStep(ctx, instance.ID, ExecuteStepRequest{})
	require.NoError(t, err)
	token := result.Validation.SecureToken

	env.clock.Advance(testTTL + time.Minute)

	// Both the read and the resolve paths report expiry lazily.
	_, err = env.instances.GetValidationByToken(ctx, token)
	assert.ErrorIs(t, err, domain.ErrExpired)
	_, err = env.instances.ResolveClientValidation(ctx, token, nil)
	assert.ErrorIs(t, err, domain.ErrExpired)

	stored, err := env.repos.Validations.GetByToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, domain.ValidationExpired, stored.Status)

	// Re-executing the step issues a fresh validation with a new token.
	fresh, err := env.instances.ExecuteCurrentStep(ctx, instance.ID, ExecuteStepRequest{})
	require.NoError(t, err)
	assert.NotEqual(t, token, fresh.Validation.SecureToken)
	assert.Equal(t, domain.ValidationPending, fresh.Validation.Status)
}

func TestGetValidationByTokenUnknown(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.instances.GetValidationByToken(context.Background(), "no-such-token")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConcurrentAdvanceLosesCleanly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	def := env.createWorkflow(t, humanStep("One"), humanStep("Two"))

	stale := &staleInstanceRepo{InstanceRepository: env.repos.Instances}
	instances := NewInstanceService(
		env.repos.Workflows, stale, env.repos.Executions, env.repos.Validations,
		env.executor, env.clock, nil, nil, "http://app.test", testTTL,
	)

	instance, err := instances.Start(ctx, StartInstanceRequest{WorkflowID: def.ID, StartedBy: uuid.New()})
	require.NoError(t, err)

	// Pin the at-start snapshot: every read from now on sees index 0.
	stale.Pin(instance)

	_, err = instances.ExecuteCurrentStep(ctx, instance.ID, ExecuteStepRequest{Output: "first tab", ExecutionTimeMs: 1000})
	require.NoError(t, err)

	// The second tab read index 0 too; its conditional advance must lose.
	_, err = instances.ExecuteCurrentStep(ctx, instance.ID, ExecuteStepRequest{Output: "second tab", ExecutionTimeMs: 1000})
	assert.ErrorIs(t, err, domain.ErrConcurrentModification)
	assert.True(t, domain.IsConflictError(err))

	// Exactly one advance landed.
	stored, err := env.repos.Instances.GetByID(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.CurrentStepIndex)
	assert.Equal(t, int64(1000), stored.HumanTimeSpentMs)
}

func TestExecuteOnFinishedInstance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	def := env.createWorkflow(t, humanStep("Only"))
	instance := env.startInstance(t, def.ID, "")

	_, err := env.instances.ExecuteCurrentStep(ctx, instance.ID, ExecuteStepRequest{Output: "done", ExecutionTimeMs: 10})
	require.NoError(t, err)

	_, err = env.instances.ExecuteCurrentStep(ctx, instance.ID, ExecuteStepRequest{Output: "again", ExecutionTimeMs: 10})
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestFailInstance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	def := env.createWorkflow(t, humanStep("One"), humanStep("Two"))
	instance := env.startInstance(t, def.ID, "")

	env.clock.Advance(time.Hour)
	require.NoError(t, env.instances.Fail(ctx, instance.ID, "client cancelled the engagement"))

	stored, _, err := env.instances.Get(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InstanceFailed, stored.Status)
	require.NotNil(t, stored.FailureReason)
	assert.Equal(t, "client cancelled the engagement", *stored.FailureReason)
	assert.Equal(t, time.Hour.Milliseconds(), stored.TotalExecutionTimeMs)

	// Terminal is terminal.
	assert.ErrorIs(t, env.instances.Fail(ctx, instance.ID, "twice"), domain.ErrInvalidState)
	_, err = env.instances.ExecuteCurrentStep(ctx, instance.ID, ExecuteStepRequest{Output: "x", ExecutionTimeMs: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestSetQualityScore(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	def := env.createWorkflow(t, humanStep("Only"))
	instance := env.startInstance(t, def.ID, "")

	require.NoError(t, env.instances.SetQualityScore(ctx, instance.ID, 4.5))
	stored, _, err := env.instances.Get(ctx, instance.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.OutputQualityScore)
	assert.Equal(t, 4.5, *stored.OutputQualityScore)

	assert.Error(t, env.instances.SetQualityScore(ctx, instance.ID, 5.5))
	assert.Error(t, env.instances.SetQualityScore(ctx, instance.ID, -1))
}

func TestMetricsEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	def := env.createWorkflow(t, humanStep("One"), aiStep("Two", "{{x}}"))
	instance := env.startInstance(t, def.ID, "")

	_, err := env.instances.ExecuteCurrentStep(ctx, instance.ID, ExecuteStepRequest{Output: "ok", ExecutionTimeMs: 4000})
	require.NoError(t, err)
	_, err = env.instances.ExecuteCurrentStep(ctx, instance.ID, ExecuteStepRequest{Input: map[string]any{"x": "y"}})
	require.NoError(t, err)

	summary, err := env.instances.Metrics(ctx, instance.ID, &IndustryAverage{
		TotalExecutionTimeMs: 4_000,
		TotalCost:            0.004,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(4000), summary.HumanTimeSpentMs)
	assert.Equal(t, int64(2000), summary.AIProcessingTimeMs)
	assert.InDelta(t, 0.002, summary.TotalCost, 1e-9)
	require.NotNil(t, summary.TimeSavingsPct)
	assert.InDelta(t, 50.0, *summary.CostSavingsPct, 1e-9)
}
