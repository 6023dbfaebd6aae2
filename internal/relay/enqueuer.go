package relay

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/tradeguard/backend-quotes/internal/events"
)

// Enqueuer schedules relay deliveries on the asynq queue. It implements
// events.Scheduler.
type Enqueuer struct {
	Client *asynq.Client
}

// Schedule enqueues one delivery for the event. An empty targetURL defers the
// destination choice to the worker's configured default.
func (e *Enqueuer) Schedule(ctx context.Context, ev events.Event, targetURL string) error {
	if e == nil || e.Client == nil {
		return nil
	}
	task, err := NewDeliverTask(DeliverPayload{
		EventID:    ev.ID,
		Topic:      ev.Topic,
		TargetURL:  targetURL,
		Body:       ev.Payload,
		OccurredAt: ev.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("relay: build task: %w", err)
	}
	if _, err := e.Client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("relay: enqueue: %w", err)
	}
	return nil
}
