package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type InstanceStatus string

const (
	InstanceInProgress InstanceStatus = "in_progress"
	InstanceCompleted  InstanceStatus = "completed"
	InstanceFailed     InstanceStatus = "failed"
)

// WorkflowInstance is one running execution of a WorkflowDefinition.
//
// StepsSnapshot is the definition's step list frozen at start time, so a new
// definition version published mid-flight never changes what an in-progress
// instance executes.
//
// Invariants: CurrentStepIndex only moves forward and stays within
// [0, len(steps)]; Status is completed exactly when the index equals the step
// count; CompletedAt is set exactly for terminal statuses. All repository
// writes that advance the index are conditional on the index being unchanged
// since it was read.
type WorkflowInstance struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	WorkflowID uuid.UUID `gorm:"type:uuid;index;not null" json:"workflow_id"`
	StartedBy  uuid.UUID `gorm:"type:uuid;index;not null" json:"started_by"`

	ClientID    *string `gorm:"type:varchar(100)" json:"client_id,omitempty"`
	ClientName  *string `gorm:"type:varchar(200)" json:"client_name,omitempty"`
	ClientEmail *string `gorm:"type:varchar(200)" json:"client_email,omitempty"`

	Status           InstanceStatus `gorm:"type:varchar(20);index;default:'in_progress'" json:"status"`
	CurrentStepIndex int            `gorm:"default:0" json:"current_step_index"`
	StepsSnapshot    datatypes.JSON `gorm:"type:jsonb" json:"steps_snapshot"`
	FailureReason    *string        `gorm:"type:text" json:"failure_reason,omitempty"`

	// Accumulated metrics. Non-negative and monotonically non-decreasing
	// while the instance is in progress.
	TotalExecutionTimeMs int64    `gorm:"default:0" json:"total_execution_time_ms"`
	HumanTimeSpentMs     int64    `gorm:"default:0" json:"human_time_spent_ms"`
	AIProcessingTimeMs   int64    `gorm:"default:0" json:"ai_processing_time_ms"`
	ClientWaitTimeMs     int64    `gorm:"default:0" json:"client_wait_time_ms"`
	TotalCost            float64  `gorm:"default:0" json:"total_cost"`
	OutputQualityScore   *float64 `json:"output_quality_score,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewWorkflowInstance(workflowID, startedBy uuid.UUID, steps []StepDefinition, now time.Time) (*WorkflowInstance, error) {
	snapshot, err := json.Marshal(steps)
	if err != nil {
		return nil, err
	}
	return &WorkflowInstance{
		ID:               uuid.New(),
		WorkflowID:       workflowID,
		StartedBy:        startedBy,
		Status:           InstanceInProgress,
		CurrentStepIndex: 0,
		StepsSnapshot:    datatypes.JSON(snapshot),
		StartedAt:        now,
	}, nil
}

// Steps decodes the frozen step list.
func (i *WorkflowInstance) Steps() ([]StepDefinition, error) {
	var steps []StepDefinition
	if err := json.Unmarshal(i.StepsSnapshot, &steps); err != nil {
		return nil, err
	}
	return steps, nil
}

func (i *WorkflowInstance) IsFinished() bool {
	return i.Status == InstanceCompleted || i.Status == InstanceFailed
}
