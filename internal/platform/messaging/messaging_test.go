package messaging

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/ports"
)

func TestBusDeliversToSubscribers(t *testing.T) {
	bus := NewBus(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []string
	require.NoError(t, bus.Subscribe(ctx, "review.submitted", "audit", func(_ context.Context, event ports.EventEnvelope) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, event.EventID)
		return nil
	}))

	require.NoError(t, bus.Publish(ctx, "review.submitted", ports.EventEnvelope{EventID: "e1", EventType: "review.submitted"}))
	require.NoError(t, bus.Publish(ctx, "lease.reclaimed", ports.EventEnvelope{EventID: "e2", EventType: "lease.reclaimed"}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1 && got[0] == "e1"
	}, time.Second, 10*time.Millisecond)
}

func TestBusRemovesSubscriberOnCancel(t *testing.T) {
	bus := NewBus(nil)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, bus.Subscribe(ctx, "lease.reclaimed", "audit", func(context.Context, ports.EventEnvelope) error { return nil }))
	assert.Equal(t, 1, bus.subscriberCount("lease.reclaimed"))

	cancel()
	assert.Eventually(t, func() bool { return bus.subscriberCount("lease.reclaimed") == 0 }, time.Second, 10*time.Millisecond)
}

func TestBuildNATSMessage(t *testing.T) {
	event := ports.EventEnvelope{
		EventID:          "evt-1",
		EventType:        "arbitration.decided",
		OccurredAt:       time.Now().UTC(),
		SchemaVersion:    1,
		PartitionKeyPath: "document_id",
		PartitionKey:     "D1",
		Data:             json.RawMessage(`{"document_id":"D1"}`),
	}

	msg, err := buildNATSMessage("review", "", event)
	require.NoError(t, err)
	assert.Equal(t, "review.arbitration.decided", msg.Subject)
	assert.Equal(t, "evt-1", msg.Header.Get(nats.MsgIdHdr))
	assert.Equal(t, "D1", msg.Header.Get("Partition-Key"))

	var decoded ports.EventEnvelope
	require.NoError(t, json.Unmarshal(msg.Data, &decoded))
	assert.Equal(t, "evt-1", decoded.EventID)

	_, err = buildNATSMessage("review", "", ports.EventEnvelope{EventID: "evt-2"})
	assert.Error(t, err)

	event.OccurredAt = time.Time{}
	_, err = buildNATSMessage("review", "arbitration.decided", event)
	assert.Error(t, err)
}

func TestNewNATSPublisherRequiresURL(t *testing.T) {
	_, err := NewNATSPublisher(" ", "", nil)
	assert.Error(t, err)
}
