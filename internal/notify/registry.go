package notify

import (
	"context"

	"flowpilot/internal/domain"
	"flowpilot/internal/logging"
)

// NoticeHandler delivers one validation notice over one channel.
type NoticeHandler func(ctx context.Context, notice domain.ValidationNotice) error

// Registry maps delivery channels to handlers.
type Registry map[string]NoticeHandler

// InitRegistry wires the available delivery channels. The email handler logs
// the delivery; a real mail provider slots in here without touching the
// worker.
func InitRegistry() Registry {
	registry := make(Registry)
	logger := logging.WithComponent("notify")

	registry["email"] = func(_ context.Context, notice domain.ValidationNotice) error {
		logger.Info("validation notice delivered",
			"channel", "email",
			"to", notice.ClientEmail,
			"validation_id", notice.ValidationID,
			"link", notice.SecureLink,
			"expires_at", notice.ExpiresAt)
		return nil
	}

	return registry
}
