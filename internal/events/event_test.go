package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewEvent(t *testing.T) {
	at := time.Date(2024, 6, 1, 9, 0, 0, 0, time.FixedZone("ICT", 7*3600))
	event, err := NewEvent(TypePaymentPaid, "payment", "100001", at, map[string]any{"amount": 150000})
	require.NoError(t, err)

	_, err = ulid.Parse(event.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, event.Version)
	assert.Equal(t, time.UTC, event.OccurredAt.Location())
	assert.Equal(t, "events.payment.paid", Subject(event.Type))

	var data map[string]int64
	require.NoError(t, json.Unmarshal(event.Data, &data))
	assert.Equal(t, int64(150000), data["amount"])
}

func TestNewPublisherWithoutURLIsNoop(t *testing.T) {
	publisher, err := NewPublisher(nil, Config{}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, NoopPublisher{}, publisher)
	assert.NoError(t, publisher.Publish(context.Background(), &Event{Type: TypePaymentPaid}))
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("NATS_URL", "nats://127.0.0.1:4222")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.URL)
	assert.Equal(t, "PAYSETTLE_EVENTS", cfg.Stream)
	assert.Equal(t, 2*time.Second, cfg.ReconnectWait)
	assert.Equal(t, 168*time.Hour, cfg.MaxAge)
}
