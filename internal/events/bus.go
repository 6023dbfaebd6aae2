// Package events persists domain events and hands them to the relay queue.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Event is a persisted domain event.
type Event struct {
	ID          string          `json:"id"`
	Topic       string          `json:"topic"`
	AggregateID string          `json:"aggregateId"`
	Payload     json.RawMessage `json:"payload"`
	OccurredAt  time.Time       `json:"occurredAt"`
}

// Store defines the persistence operations required by the bus.
type Store interface {
	InsertEvent(ctx context.Context, topic, aggregateID string, payload []byte) (Event, error)
}

// Scheduler hands a persisted event to the outbound relay. TargetURL may be
// empty, in which case the relay uses its configured default.
type Scheduler interface {
	Schedule(ctx context.Context, ev Event, targetURL string) error
}

// Bus persists domain events and schedules their relay delivery.
type Bus struct {
	Store     Store
	Scheduler Scheduler
}

// Emit records the event and schedules its delivery. Scheduling failures do
// not roll back the persisted event; they are joined into the returned error
// for the caller to log.
func (b *Bus) Emit(ctx context.Context, topic, aggregateID string, payload any, targetURL string) (Event, error) {
	if b == nil || b.Store == nil {
		return Event{}, errors.New("events: store not configured")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Event{}, errors.New("events: topic is required")
	}
	if strings.TrimSpace(aggregateID) == "" {
		return Event{}, errors.New("events: aggregate id is required")
	}
	encoded, err := encodePayload(payload)
	if err != nil {
		return Event{}, fmt.Errorf("events: encode payload: %w", err)
	}
	ev, err := b.Store.InsertEvent(ctx, topic, aggregateID, encoded)
	if err != nil {
		return Event{}, fmt.Errorf("events: persist event: %w", err)
	}
	if b.Scheduler != nil {
		if schedErr := b.Scheduler.Schedule(ctx, ev, targetURL); schedErr != nil {
			return ev, fmt.Errorf("events: schedule relay: %w", schedErr)
		}
	}
	return ev, nil
}

func encodePayload(payload any) ([]byte, error) {
	switch v := payload.(type) {
	case nil:
		return []byte("{}"), nil
	case []byte:
		if len(v) == 0 {
			return []byte("{}"), nil
		}
		if !json.Valid(v) {
			return nil, errors.New("payload is not valid json")
		}
		return append([]byte(nil), v...), nil
	case json.RawMessage:
		return encodePayload([]byte(v))
	default:
		return json.Marshal(v)
	}
}
