package domain

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ValidationStatus string

const (
	ValidationPending   ValidationStatus = "pending"
	ValidationCompleted ValidationStatus = "completed"
	ValidationExpired   ValidationStatus = "expired"
)

// ClientValidation is a time-boxed upload request addressed to an external
// client. SecureToken is the sole credential authorizing the anonymous client
// to submit files, so it is random, not derived from any identifier. ExpiresAt
// is fixed at creation; there is no extension operation. Expiry is evaluated
// lazily on read and resolve, never by a background sweep.
type ClientValidation struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	InstanceID uuid.UUID `gorm:"type:uuid;index;not null" json:"instance_id"`
	StepID     uuid.UUID `gorm:"type:uuid;index;not null" json:"step_id"`

	Status      ValidationStatus `gorm:"type:varchar(20);index;default:'pending'" json:"status"`
	SecureToken string           `gorm:"type:varchar(64);uniqueIndex;not null" json:"-"`
	ClientEmail string           `gorm:"type:varchar(200);not null" json:"client_email"`

	CreatedAt     time.Time      `json:"created_at"`
	ExpiresAt     time.Time      `json:"expires_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	UploadedFiles datatypes.JSON `gorm:"type:jsonb" json:"uploaded_files,omitempty"`
}

func NewClientValidation(instanceID, stepID uuid.UUID, clientEmail string, now time.Time, ttl time.Duration) *ClientValidation {
	return &ClientValidation{
		ID:          uuid.New(),
		InstanceID:  instanceID,
		StepID:      stepID,
		Status:      ValidationPending,
		SecureToken: NewSecureToken(),
		ClientEmail: clientEmail,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
}

// NewSecureToken returns 32 random bytes hex encoded. The token is a bearer
// credential; guessing one must be infeasible.
func NewSecureToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the platform entropy source is broken;
		// there is no sane fallback for credential material.
		panic("secure token generation failed: " + err.Error())
	}
	return hex.EncodeToString(buf)
}

func (v *ClientValidation) IsExpired(now time.Time) bool {
	return v.Status == ValidationExpired || !now.Before(v.ExpiresAt)
}
