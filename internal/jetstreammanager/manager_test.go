package jetstreammanager

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightloom/sentiment-ingest/internal/jetstreamclient"
	"github.com/brightloom/sentiment-ingest/internal/jobregistry"
)

type noopPersister struct{}

func (noopPersister) SaveCursor(int64) {}

func newTestServer(t *testing.T, msgs chan []byte) (*httptest.Server, string) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for m := range msgs {
			if err := conn.WriteMessage(websocket.TextMessage, m); err != nil {
				return
			}
		}
	}))
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	return server, wsURL
}

func waitConnected(t *testing.T, client *jetstreamclient.Client) {
	deadline := time.After(2 * time.Second)
	for client.GetConnectionStatus() != jetstreamclient.StatusConnected {
		select {
		case <-deadline:
			t.Fatal("client never reached connected status")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestRegisterJobStartsConnectionAndRoutesMatches(t *testing.T) {
	msgs := make(chan []byte, 1)
	server, wsURL := newTestServer(t, msgs)
	defer server.Close()

	client := jetstreamclient.NewClient(jetstreamclient.Config{
		Endpoint:             wsURL,
		ReconnectMaxAttempts: 1,
		InitialBackoff:       10 * time.Millisecond,
		MaxBackoff:           50 * time.Millisecond,
		InactivityTimeout:    2 * time.Second,
	}, noopPersister{})

	mgr := NewManager(Config{Client: client, GraceWindow: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, mgr.Start(ctx, nil))
	waitConnected(t, client)

	matched := make(chan string, 1)
	_, err := mgr.RegisterJob(jobregistry.JobConfig{
		JobID:    "job-iphone",
		Prompt:   "iphone camera",
		Deadline: time.Minute,
		OnData: func(post jobregistry.MatchedPost) {
			matched <- post.JobID
		},
	})
	require.NoError(t, err)

	frame := `{"did":"did:plc:author1","time_us":1737000000000000,"kind":"commit","commit":{"operation":"create","collection":"app.bsky.feed.post","rkey":"r1","cid":"c1","record":{"$type":"app.bsky.feed.post","text":"Love the iPhone camera on this one","createdAt":"2025-01-16T00:00:00Z"}}}`
	msgs <- []byte(frame)

	select {
	case jobID := <-matched:
		assert.Equal(t, "job-iphone", jobID)
	case <-time.After(2 * time.Second):
		t.Fatal("match not delivered")
	}

	status := mgr.GetStatus()
	assert.Equal(t, 1, status.ActiveJobs)
	assert.True(t, status.IsListening)

	close(msgs)
	mgr.Stop()
}

func TestLastJobRemovedStopsAfterGraceWindow(t *testing.T) {
	msgs := make(chan []byte)
	server, wsURL := newTestServer(t, msgs)
	defer server.Close()
	defer close(msgs)

	client := jetstreamclient.NewClient(jetstreamclient.Config{
		Endpoint:             wsURL,
		ReconnectMaxAttempts: 1,
		InitialBackoff:       10 * time.Millisecond,
		MaxBackoff:           50 * time.Millisecond,
		InactivityTimeout:    2 * time.Second,
	}, noopPersister{})

	mgr := NewManager(Config{Client: client, GraceWindow: 30 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, mgr.Start(ctx, nil))
	waitConnected(t, client)

	_, err := mgr.RegisterJob(jobregistry.JobConfig{JobID: "job-1", Prompt: "golang", Deadline: time.Minute})
	require.NoError(t, err)

	require.NoError(t, mgr.CompleteJob("job-1"))

	require.Eventually(t, func() bool {
		return client.GetConnectionStatus() == jetstreamclient.StatusDisconnected
	}, time.Second, 10*time.Millisecond)
}

func TestRegisterAfterCancelWithinGraceWindowDoesNotStop(t *testing.T) {
	msgs := make(chan []byte)
	server, wsURL := newTestServer(t, msgs)
	defer server.Close()
	defer close(msgs)

	client := jetstreamclient.NewClient(jetstreamclient.Config{
		Endpoint:             wsURL,
		ReconnectMaxAttempts: 1,
		InitialBackoff:       10 * time.Millisecond,
		MaxBackoff:           50 * time.Millisecond,
		InactivityTimeout:    2 * time.Second,
	}, noopPersister{})

	mgr := NewManager(Config{Client: client, GraceWindow: 300 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, mgr.Start(ctx, nil))
	waitConnected(t, client)

	_, err := mgr.RegisterJob(jobregistry.JobConfig{JobID: "job-1", Prompt: "golang", Deadline: time.Minute})
	require.NoError(t, err)
	require.NoError(t, mgr.CancelJob("job-1"))

	_, err = mgr.RegisterJob(jobregistry.JobConfig{JobID: "job-2", Prompt: "golang", Deadline: time.Minute})
	require.NoError(t, err)

	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, jetstreamclient.StatusConnected, client.GetConnectionStatus())

	require.NoError(t, mgr.CompleteJob("job-2"))
}

func TestReconnectExhaustionFailsActiveJobs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "refused", http.StatusServiceUnavailable)
	}))
	defer server.Close()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	client := jetstreamclient.NewClient(jetstreamclient.Config{
		Endpoint:             wsURL,
		ReconnectMaxAttempts: 1,
		InitialBackoff:       5 * time.Millisecond,
		MaxBackoff:           10 * time.Millisecond,
	}, noopPersister{})

	mgr := NewManager(Config{Client: client, GraceWindow: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, mgr.Start(ctx, nil))

	var failedErr atomic.Value
	_, err := mgr.RegisterJob(jobregistry.JobConfig{
		JobID:    "job-1",
		Prompt:   "golang",
		Deadline: time.Minute,
		OnComplete: func(jobID string, matchedCount int64, completeErr error) {
			if completeErr != nil {
				failedErr.Store(completeErr.Error())
			}
		},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return failedErr.Load() != nil
	}, 2*time.Second, 10*time.Millisecond)

	assert.False(t, mgr.IsJobRegistered("job-1"))
}
