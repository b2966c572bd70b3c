package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type StepKind string

const (
	StepHuman          StepKind = "human"
	StepAI             StepKind = "ai"
	StepClientValidate StepKind = "client_validate"
)

// WorkflowDefinition is an ordered recipe of steps. Definitions are immutable
// once an instance references them: edits go through a new version row, never
// through mutation of an existing one.
type WorkflowDefinition struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	Title        string    `gorm:"type:varchar(200);not null" json:"title"`
	Description  string    `gorm:"type:text" json:"description"`
	AuthorID     uuid.UUID `gorm:"type:uuid;index;not null" json:"author_id"`
	Version      string    `gorm:"type:varchar(20);default:'1.0'" json:"version"`
	VersionNotes string    `gorm:"type:text" json:"version_notes"`
	IsPublic     bool      `gorm:"default:false" json:"is_public"`
	Category     string    `gorm:"type:varchar(50);index" json:"category"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StepDefinition is one entry in a definition's ordered step list. The
// kind-specific fields live in Payload as a tagged union: exactly one of the
// payload shapes below is valid for a given Kind.
type StepDefinition struct {
	ID         uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	WorkflowID uuid.UUID      `gorm:"type:uuid;index;not null" json:"workflow_id"`
	OrderIndex int            `gorm:"not null" json:"order_index"`
	Kind       StepKind       `gorm:"type:varchar(20);not null" json:"kind"`
	Label      string         `gorm:"type:varchar(200);not null" json:"label"`
	Payload    datatypes.JSON `gorm:"type:jsonb" json:"payload"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HumanPayload carries instructions shown to the operator performing the step.
type HumanPayload struct {
	Instructions string `json:"instructions"`
}

// AIPayload carries the prompts for an AI step. UserPromptTemplate may contain
// {{variable}} placeholders that are interpolated from the step input.
type AIPayload struct {
	SystemPrompt       string `json:"system_prompt"`
	UserPromptTemplate string `json:"user_prompt_template"`
}

// ClientValidatePayload carries instructions shown to the external client on
// the upload page.
type ClientValidatePayload struct {
	Instructions string `json:"instructions"`
}

func NewWorkflowDefinition(authorID uuid.UUID, title, description, category string) *WorkflowDefinition {
	return &WorkflowDefinition{
		ID:           uuid.New(),
		Title:        title,
		Description:  description,
		AuthorID:     authorID,
		Version:      "1.0",
		VersionNotes: "Initial version",
		Category:     category,
	}
}

func NewHumanStep(workflowID uuid.UUID, orderIndex int, label, instructions string) StepDefinition {
	return newStep(workflowID, orderIndex, StepHuman, label, HumanPayload{Instructions: instructions})
}

func NewAIStep(workflowID uuid.UUID, orderIndex int, label, systemPrompt, userPromptTemplate string) StepDefinition {
	return newStep(workflowID, orderIndex, StepAI, label, AIPayload{
		SystemPrompt:       systemPrompt,
		UserPromptTemplate: userPromptTemplate,
	})
}

func NewClientValidateStep(workflowID uuid.UUID, orderIndex int, label, instructions string) StepDefinition {
	return newStep(workflowID, orderIndex, StepClientValidate, label, ClientValidatePayload{Instructions: instructions})
}

func newStep(workflowID uuid.UUID, orderIndex int, kind StepKind, label string, payload any) StepDefinition {
	raw, _ := json.Marshal(payload)
	return StepDefinition{
		ID:         uuid.New(),
		WorkflowID: workflowID,
		OrderIndex: orderIndex,
		Kind:       kind,
		Label:      label,
		Payload:    datatypes.JSON(raw),
	}
}

func (s StepDefinition) HumanPayload() (HumanPayload, error) {
	var p HumanPayload
	return p, s.decodePayload(StepHuman, &p)
}

func (s StepDefinition) AIPayload() (AIPayload, error) {
	var p AIPayload
	return p, s.decodePayload(StepAI, &p)
}

func (s StepDefinition) ClientValidatePayload() (ClientValidatePayload, error) {
	var p ClientValidatePayload
	return p, s.decodePayload(StepClientValidate, &p)
}

func (s StepDefinition) decodePayload(want StepKind, out any) error {
	if s.Kind != want {
		return fmt.Errorf("step %s is %q, not %q", s.ID, s.Kind, want)
	}
	if len(s.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(s.Payload, out)
}
