// Package notify publishes ledger events to Kafka, NATS or the log.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"stockflow/internal/domain/ledger"
	"stockflow/pkg/logger"
)

// Envelope is the wire format of every published event.
type Envelope struct {
	Event      string          `json:"event"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

// Encode wraps payload in an Envelope and marshals it.
func Encode(event string, payload any, at time.Time) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, OccurredAt: at.UTC(), Payload: raw})
}

var _ ledger.Notifier = LogPublisher{}

// LogPublisher writes events to the log.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, event string, payload any) error {
	body, err := Encode(event, payload, time.Now())
	if err != nil {
		return err
	}
	logger.Info(ctx, "event published", "event", event, "body", string(body))
	return nil
}
