package domain

import (
	"time"

	"github.com/google/uuid"
)

type ActivityType string

const (
	ActivityStepCompleted      ActivityType = "step_completed"
	ActivityStepFailed         ActivityType = "step_failed"
	ActivityInstanceCompleted  ActivityType = "instance_completed"
	ActivityInstanceFailed     ActivityType = "instance_failed"
	ActivityValidationCreated  ActivityType = "validation_created"
	ActivityValidationResolved ActivityType = "validation_resolved"
)

// ActivityEvent is published to the event bus after instance state changes, so
// collaborators watching an instance see progress without polling.
type ActivityEvent struct {
	InstanceID uuid.UUID    `json:"instance_id"`
	StepID     uuid.UUID    `json:"step_id,omitempty"`
	StepIndex  int          `json:"step_index"`
	Type       ActivityType `json:"type"`
	Actor      string       `json:"actor,omitempty"`
	Detail     string       `json:"detail,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// ValidationNotice is queued when a client validation is created; the notify
// worker delivers the secure link to the client.
type ValidationNotice struct {
	ValidationID uuid.UUID `json:"validation_id"`
	InstanceID   uuid.UUID `json:"instance_id"`
	ClientEmail  string    `json:"client_email"`
	SecureLink   string    `json:"secure_link"`
	Instructions string    `json:"instructions"`
	ExpiresAt    time.Time `json:"expires_at"`
	Channel      string    `json:"channel"`
}
