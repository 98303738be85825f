package events

import (
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	TypePaymentPaid      = "payment.paid"
	TypePaymentCancelled = "payment.cancelled"
	TypePaymentExpired   = "payment.expired"
	TypePaymentFailed    = "payment.failed"
)

// Event is the envelope published for every settlement outcome.
type Event struct {
	ID            string          `json:"event_id"`
	Type          string          `json:"type"`
	Version       int             `json:"version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	Data          json.RawMessage `json:"data"`
}

func NewEvent(eventType, aggregateType, aggregateID string, occurredAt time.Time, data any) (*Event, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:            ulid.Make().String(),
		Type:          eventType,
		Version:       1,
		OccurredAt:    occurredAt.UTC(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Data:          payload,
	}, nil
}

// Subject is the JetStream subject an event is published on.
func Subject(eventType string) string {
	return "events." + eventType
}
