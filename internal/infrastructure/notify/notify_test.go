package notify_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockflow/internal/infrastructure/notify"
)

func TestEncode(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	body, err := notify.Encode("operation.created", map[string]int{"deltaValue": 5}, at)
	require.NoError(t, err)

	var env notify.Envelope
	require.NoError(t, json.Unmarshal(body, &env))
	assert.Equal(t, "operation.created", env.Event)
	assert.True(t, env.OccurredAt.Equal(at))
	assert.Equal(t, time.UTC, env.OccurredAt.Location())
	assert.JSONEq(t, `{"deltaValue":5}`, string(env.Payload))
}

func TestEncode_UnmarshalablePayload(t *testing.T) {
	_, err := notify.Encode("operation.created", make(chan int), time.Now())
	assert.Error(t, err)
}

func TestLogPublisher(t *testing.T) {
	assert.NoError(t, notify.LogPublisher{}.Publish(context.Background(), "operation.created", struct{}{}))
}

func TestKafkaPublisher_DoesNotWaitForBroker(t *testing.T) {
	p := notify.NewKafkaPublisher([]string{"127.0.0.1:1"}, "stock", 200*time.Millisecond)

	started := time.Now()
	err := p.Publish(context.Background(), "operation.created", struct{}{})
	assert.NoError(t, err)
	assert.Less(t, time.Since(started), 100*time.Millisecond)

	assert.NoError(t, p.Close())
}
