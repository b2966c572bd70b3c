package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ExecutionStatus string

const (
	ExecutionInProgress ExecutionStatus = "in_progress"
	ExecutionCompleted  ExecutionStatus = "completed"
	ExecutionFailed     ExecutionStatus = "failed"
)

// StepExecution is one ledger entry per attempted step of an instance. A
// record is created when a step begins and sealed (status and CompletedAt
// fixed) when it ends; sealed records are never mutated again. Executions are
// owned by their instance and removed only by cascading instance deletion.
type StepExecution struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	InstanceID uuid.UUID `gorm:"type:uuid;index;not null" json:"instance_id"`
	StepID     uuid.UUID `gorm:"type:uuid;index;not null" json:"step_id"`

	Status      ExecutionStatus `gorm:"type:varchar(20);index;default:'in_progress'" json:"status"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`

	ExecutionTimeMs *int64         `json:"execution_time_ms,omitempty"`
	TokenCount      *int           `json:"token_count,omitempty"`
	Cost            *float64       `json:"cost,omitempty"`
	ModelUsed       *string        `gorm:"type:varchar(50)" json:"model_used,omitempty"`
	Output          string         `gorm:"type:text" json:"output"`
	InputData       datatypes.JSON `gorm:"type:jsonb" json:"input_data"`

	CreatedAt time.Time `json:"created_at"`
}

func NewStepExecution(instanceID, stepID uuid.UUID, input datatypes.JSON, now time.Time) *StepExecution {
	return &StepExecution{
		ID:         uuid.New(),
		InstanceID: instanceID,
		StepID:     stepID,
		Status:     ExecutionInProgress,
		StartedAt:  now,
		InputData:  input,
	}
}

// Seal fixes the terminal fields. Callers persist the record afterwards; a
// sealed record must never be sealed twice.
func (e *StepExecution) Seal(status ExecutionStatus, output string, completedAt time.Time) {
	e.Status = status
	e.Output = output
	e.CompletedAt = &completedAt
	ms := completedAt.Sub(e.StartedAt).Milliseconds()
	e.ExecutionTimeMs = &ms
}
