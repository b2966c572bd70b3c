package dto

import (
	"flowpilot/internal/domain"
)

type WorkflowResponse struct {
	Workflow *domain.WorkflowDefinition `json:"workflow"`
	Steps    []domain.StepDefinition    `json:"steps"`
}

type InstanceResponse struct {
	Instance   *domain.WorkflowInstance `json:"instance"`
	Executions []domain.StepExecution   `json:"executions"`
}

type StepResultResponse struct {
	Kind              string                   `json:"kind"`
	Execution         *domain.StepExecution    `json:"execution,omitempty"`
	Validation        *domain.ClientValidation `json:"validation,omitempty"`
	SecureLink        string                   `json:"secure_link,omitempty"`
	AIResult          *domain.AIResult         `json:"ai_result,omitempty"`
	InstanceCompleted bool                     `json:"instance_completed"`
}

type ResolveValidationResponse struct {
	Message    string `json:"message"`
	WaitTimeMs int64  `json:"wait_time_ms"`
}

type UploadResponse struct {
	FileRef string `json:"file_ref"`
}
