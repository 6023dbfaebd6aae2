// Package relay delivers domain events to the downstream automation webhook.
// Deliveries are single-attempt: a failed POST is logged and dropped, never
// retried.
package relay

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// TypeDeliver is the asynq task type for relay deliveries.
const TypeDeliver = "relay:deliver"

// DeliverPayload is the task body for one relay delivery.
type DeliverPayload struct {
	EventID    string          `json:"eventId"`
	Topic      string          `json:"topic"`
	TargetURL  string          `json:"targetUrl,omitempty"`
	Body       json.RawMessage `json:"body"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// NewDeliverTask builds the asynq task for a delivery. MaxRetry is zero: the
// downstream contract is fire-and-forget.
func NewDeliverTask(p DeliverPayload) (*asynq.Task, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeDeliver, data, asynq.MaxRetry(0), asynq.Timeout(30*time.Second)), nil
}
