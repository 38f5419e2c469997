//go:build integration

package broker

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func natsURL(t *testing.T) string {
	t.Helper()
	url := os.Getenv("NATS_URL")
	if url == "" {
		url = "nats://localhost:4222"
	}
	return url
}

func setupBroker(t *testing.T) *Broker {
	t.Helper()
	b, err := Connect(Config{NATSURL: natsURL(t)})
	require.NoError(t, err, "failed to connect to NATS")
	t.Cleanup(b.Close)
	require.NoError(t, b.EnsureStreams(context.Background()))
	return b
}

func TestPingSucceedsAgainstLiveServer(t *testing.T) {
	b := setupBroker(t)
	assert.NoError(t, b.Ping(context.Background()))
}

func TestPublishThenConsumeRoundTrips(t *testing.T) {
	b := setupBroker(t)

	type payload struct {
		JobID string `json:"jobId"`
	}
	sent := payload{JobID: uuid.New().String()}

	received := make(chan payload, 1)
	durable := "test-" + uuid.New().String()
	err := b.Consume(context.Background(), PatternHealthCheck, durable, func(ctx context.Context, raw json.RawMessage) HandleResult {
		var got payload
		if err := json.Unmarshal(raw, &got); err != nil {
			return ResultNackNoRequeue
		}
		received <- got
		return ResultAck
	})
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), PatternHealthCheck, sent))

	select {
	case got := <-received:
		assert.Equal(t, sent.JobID, got.JobID)
	case <-time.After(5 * time.Second):
		t.Fatal("did not receive published message")
	}
}

func TestPublishRejectsUnknownPattern(t *testing.T) {
	b := setupBroker(t)
	err := b.Publish(context.Background(), Pattern("bogus"), struct{}{})
	assert.ErrorIs(t, err, ErrUnknownPattern)
}
