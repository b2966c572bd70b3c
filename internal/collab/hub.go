// Package collab keeps a live activity feed per instance so collaborators
// watching a run see progress without polling the instance row.
package collab

import (
	"context"
	"log/slog"
	"sync"

	"flowpilot/internal/core/ports"
	"flowpilot/internal/domain"
	"flowpilot/internal/logging"

	"github.com/google/uuid"
)

// maxEventsPerInstance caps the per-instance ring so an abandoned feed cannot
// grow without bound.
const maxEventsPerInstance = 50

type Hub struct {
	bus    ports.EventBus
	logger *slog.Logger

	mu     sync.RWMutex
	recent map[uuid.UUID][]domain.ActivityEvent
}

func NewHub(bus ports.EventBus) *Hub {
	return &Hub{
		bus:    bus,
		logger: logging.WithComponent("collab-hub"),
		recent: make(map[uuid.UUID][]domain.ActivityEvent),
	}
}

// Start begins the listening loop. Call as a goroutine; it returns when ctx
// is done or the subscription closes.
func (h *Hub) Start(ctx context.Context) {
	events, err := h.bus.SubscribeActivity(ctx)
	if err != nil {
		h.logger.Error("failed to subscribe to activity events", "error", err)
		return
	}
	h.logger.Info("collab hub started, listening for activity")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("collab hub shutting down")
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			h.record(event)
		}
	}
}

func (h *Hub) record(event domain.ActivityEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	feed := append(h.recent[event.InstanceID], event)
	if len(feed) > maxEventsPerInstance {
		feed = feed[len(feed)-maxEventsPerInstance:]
	}
	h.recent[event.InstanceID] = feed
}

// Activity returns the recent events for an instance, oldest first.
func (h *Hub) Activity(instanceID uuid.UUID) []domain.ActivityEvent {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return append([]domain.ActivityEvent(nil), h.recent[instanceID]...)
}
