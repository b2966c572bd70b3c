// Package notify drains the validation-notice queue and delivers each notice
// to its client over the configured channel.
package notify

import (
	"context"
	"log/slog"

	"flowpilot/internal/core/ports"
	"flowpilot/internal/logging"
)

type Worker struct {
	queue    ports.NotificationQueue
	registry Registry
	logger   *slog.Logger
}

func NewWorker(queue ports.NotificationQueue, registry Registry) *Worker {
	return &Worker{
		queue:    queue,
		registry: registry,
		logger:   logging.WithComponent("notify-worker"),
	}
}

// ProcessNext handles exactly one notice lifecycle: pop, look up the channel
// handler, deliver. Delivery failures are logged, not retried; the secure
// link stays resolvable from the instance view regardless.
func (w *Worker) ProcessNext(ctx context.Context) {
	notice, err := w.queue.Pop(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("failed to pop notification", "error", err)
		}
		return
	}

	handler, exists := w.registry[notice.Channel]
	if !exists {
		w.logger.Error("unknown notification channel",
			"channel", notice.Channel, "validation_id", notice.ValidationID)
		return
	}

	if err := handler(ctx, notice); err != nil {
		w.logger.Error("notification delivery failed",
			"channel", notice.Channel, "validation_id", notice.ValidationID, "error", err)
		return
	}
}

// StartPool launches concurrent delivery loops that run until ctx is done.
func (w *Worker) StartPool(ctx context.Context, concurrency int) {
	w.logger.Info("starting notification worker pool", "concurrency", concurrency)

	for i := 0; i < concurrency; i++ {
		go func(threadID int) {
			for {
				select {
				case <-ctx.Done():
					w.logger.Info("notification worker shutting down", "thread", threadID)
					return
				default:
					w.ProcessNext(ctx)
				}
			}
		}(i)
	}
}
