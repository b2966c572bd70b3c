package service

import (
	"context"
	"fmt"

	"flowpilot/internal/core/ports"
	"flowpilot/internal/domain"

	"github.com/google/uuid"
)

// StepInput describes one step of a definition being created. The
// kind-specific fields mirror the payload union: Instructions for human and
// client_validate steps, the prompt pair for ai steps.
type StepInput struct {
	Kind               domain.StepKind
	Label              string
	Instructions       string
	SystemPrompt       string
	UserPromptTemplate string
}

type CreateWorkflowRequest struct {
	AuthorID    uuid.UUID
	Title       string
	Description string
	Category    string
	IsPublic    bool
	Steps       []StepInput
}

type CreateVersionRequest struct {
	AuthorID     uuid.UUID
	Version      string
	VersionNotes string
	Steps        []StepInput
}

type WorkflowService interface {
	Create(ctx context.Context, req CreateWorkflowRequest) (*domain.WorkflowDefinition, []domain.StepDefinition, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.WorkflowDefinition, []domain.StepDefinition, error)
	List(ctx context.Context, authorID uuid.UUID) ([]domain.WorkflowDefinition, error)

	// CreateVersion publishes a new version of an existing definition as a
	// fresh definition row. Running instances keep their snapshot of the old
	// version untouched.
	CreateVersion(ctx context.Context, baseID uuid.UUID, req CreateVersionRequest) (*domain.WorkflowDefinition, []domain.StepDefinition, error)
}

type workflowService struct {
	workflows ports.WorkflowRepository
}

// NewWorkflowService constructs the definition-management service.
func NewWorkflowService(workflows ports.WorkflowRepository) WorkflowService {
	return &workflowService{workflows: workflows}
}

func (s *workflowService) Create(ctx context.Context, req CreateWorkflowRequest) (*domain.WorkflowDefinition, []domain.StepDefinition, error) {
	def := domain.NewWorkflowDefinition(req.AuthorID, req.Title, req.Description, req.Category)
	def.IsPublic = req.IsPublic

	steps, err := buildSteps(def.ID, req.Steps)
	if err != nil {
		return nil, nil, err
	}

	if err := s.workflows.Create(ctx, def, steps); err != nil {
		return nil, nil, err
	}
	return def, steps, nil
}

func (s *workflowService) Get(ctx context.Context, id uuid.UUID) (*domain.WorkflowDefinition, []domain.StepDefinition, error) {
	return s.workflows.GetByID(ctx, id)
}

func (s *workflowService) List(ctx context.Context, authorID uuid.UUID) ([]domain.WorkflowDefinition, error) {
	return s.workflows.List(ctx, authorID)
}

func (s *workflowService) CreateVersion(ctx context.Context, baseID uuid.UUID, req CreateVersionRequest) (*domain.WorkflowDefinition, []domain.StepDefinition, error) {
	base, _, err := s.workflows.GetByID(ctx, baseID)
	if err != nil {
		return nil, nil, err
	}

	def := domain.NewWorkflowDefinition(req.AuthorID, base.Title, base.Description, base.Category)
	def.IsPublic = base.IsPublic
	def.Version = req.Version
	def.VersionNotes = req.VersionNotes

	steps, err := buildSteps(def.ID, req.Steps)
	if err != nil {
		return nil, nil, err
	}

	if err := s.workflows.Create(ctx, def, steps); err != nil {
		return nil, nil, err
	}
	return def, steps, nil
}

// buildSteps assigns contiguous order indexes in submission order and
// validates the kind union.
func buildSteps(workflowID uuid.UUID, inputs []StepInput) ([]domain.StepDefinition, error) {
	if len(inputs) == 0 {
		return nil, domain.ErrStepsRequired
	}

	steps := make([]domain.StepDefinition, 0, len(inputs))
	for i, in := range inputs {
		switch in.Kind {
		case domain.StepHuman:
			steps = append(steps, domain.NewHumanStep(workflowID, i, in.Label, in.Instructions))
		case domain.StepAI:
			steps = append(steps, domain.NewAIStep(workflowID, i, in.Label, in.SystemPrompt, in.UserPromptTemplate))
		case domain.StepClientValidate:
			steps = append(steps, domain.NewClientValidateStep(workflowID, i, in.Label, in.Instructions))
		default:
			return nil, fmt.Errorf("step %d: %w: %q", i, domain.ErrUnknownStepKind, in.Kind)
		}
	}
	return steps, nil
}
