package redis

import (
	"context"
	"encoding/json"

	"flowpilot/internal/domain"

	"github.com/redis/go-redis/v9"
)

// EventBus broadcasts instance activity over redis pub/sub. Delivery is
// at-most-once and best-effort; the activity feed is a convenience view, the
// instance row stays the source of truth.
type EventBus struct {
	client  *redis.Client
	channel string
}

func NewEventBus(client *redis.Client) *EventBus {
	return &EventBus{
		client:  client,
		channel: "flowpilot:instance:activity",
	}
}

func (b *EventBus) PublishActivity(ctx context.Context, event domain.ActivityEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

// SubscribeActivity opens a continuous stream of activity events. The
// returned channel closes when ctx is done.
func (b *EventBus) SubscribeActivity(ctx context.Context) (<-chan domain.ActivityEvent, error) {
	pubsub := b.client.Subscribe(ctx, b.channel)

	events := make(chan domain.ActivityEvent)
	go func() {
		defer close(events)
		defer pubsub.Close()
		for {
			msg, err := pubsub.ReceiveMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				continue
			}
			var event domain.ActivityEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue
			}
			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}
