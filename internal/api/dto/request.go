package dto

import "github.com/google/uuid"

type StepInputDTO struct {
	Kind               string `json:"kind" binding:"required,oneof=human ai client_validate"`
	Label              string `json:"label" binding:"required"`
	Instructions       string `json:"instructions"`
	SystemPrompt       string `json:"system_prompt"`
	UserPromptTemplate string `json:"user_prompt_template"`
}

type CreateWorkflowRequest struct {
	AuthorID    uuid.UUID      `json:"author_id" binding:"required"`
	Title       string         `json:"title" binding:"required"`
	Description string         `json:"description"`
	Category    string         `json:"category"`
	IsPublic    bool           `json:"is_public"`
	Steps       []StepInputDTO `json:"steps" binding:"required,min=1,dive"`
}

type CreateVersionRequest struct {
	AuthorID     uuid.UUID      `json:"author_id" binding:"required"`
	Version      string         `json:"version" binding:"required"`
	VersionNotes string         `json:"version_notes"`
	Steps        []StepInputDTO `json:"steps" binding:"required,min=1,dive"`
}

type StartInstanceRequest struct {
	WorkflowID  uuid.UUID `json:"workflow_id" binding:"required"`
	StartedBy   uuid.UUID `json:"started_by" binding:"required"`
	ClientID    string    `json:"client_id"`
	ClientName  string    `json:"client_name"`
	ClientEmail string    `json:"client_email"`
}

type ExecuteStepRequest struct {
	Input           map[string]any `json:"input"`
	Output          string         `json:"output"`
	ExecutionTimeMs int64          `json:"execution_time_ms"`
	ClientEmail     string         `json:"client_email"`
}

type UpdateInstanceRequest struct {
	OutputQualityScore *float64 `json:"output_quality_score" binding:"required"`
}

type FailInstanceRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type ResolveValidationRequest struct {
	Files []string `json:"files"`
}
