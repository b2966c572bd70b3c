package redis

import (
	"context"
	"encoding/json"

	"flowpilot/internal/domain"

	"github.com/redis/go-redis/v9"
)

// NotificationQueue is a redis list carrying validation notices to the notify
// worker pool.
type NotificationQueue struct {
	client    *redis.Client
	queueName string
}

func NewNotificationQueue(client *redis.Client) *NotificationQueue {
	return &NotificationQueue{
		client:    client,
		queueName: "flowpilot:notifications:pending",
	}
}

func (q *NotificationQueue) Push(ctx context.Context, notice domain.ValidationNotice) error {
	payload, err := json.Marshal(notice)
	if err != nil {
		return err
	}
	return q.client.RPush(ctx, q.queueName, payload).Err()
}

// Pop blocks until a notice is available. 0 means wait forever; cancellation
// comes from ctx.
func (q *NotificationQueue) Pop(ctx context.Context) (domain.ValidationNotice, error) {
	var notice domain.ValidationNotice

	result, err := q.client.BLPop(ctx, 0, q.queueName).Result()
	if err != nil {
		return notice, err
	}
	// BLPop returns [queueName, element].
	if err := json.Unmarshal([]byte(result[1]), &notice); err != nil {
		return notice, err
	}
	return notice, nil
}
