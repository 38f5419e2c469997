package didresolver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveHandleCachesAfterFirstCall(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"handle": "alice.bsky.social"})
	}))
	defer server.Close()

	r, err := NewResolver(Config{APIBaseURL: server.URL})
	require.NoError(t, err)

	h1, ok1 := r.ResolveHandleOrNull(context.Background(), "did:plc:ABC")
	require.True(t, ok1)
	assert.Equal(t, "alice.bsky.social", h1)

	h2, ok2 := r.ResolveHandleOrNull(context.Background(), "did:plc:ABC")
	require.True(t, ok2)
	assert.Equal(t, "alice.bsky.social", h2)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	m := r.GetMetrics()
	assert.Equal(t, int64(1), m.CacheHits)
	assert.Equal(t, int64(1), m.CacheMisses)
}

func TestResolveHandleConcurrentCallsDeduplicated(t *testing.T) {
	var calls int32
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		<-block
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"handle": "bob.bsky.social"})
	}))
	defer server.Close()

	r, err := NewResolver(Config{APIBaseURL: server.URL, RequestTimeout: 2 * time.Second})
	require.NoError(t, err)

	done := make(chan string, 5)
	for i := 0; i < 5; i++ {
		go func() {
			h, _ := r.ResolveHandleOrNull(context.Background(), "did:plc:concurrent")
			done <- h
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(block)

	for i := 0; i < 5; i++ {
		assert.Equal(t, "bob.bsky.social", <-done)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestResolveHandleOrNullValidationFailureNotCountedAsFailure(t *testing.T) {
	r, err := NewResolver(Config{APIBaseURL: "http://example.invalid"})
	require.NoError(t, err)

	_, ok := r.ResolveHandleOrNull(context.Background(), "")
	assert.False(t, ok)
	_, ok = r.ResolveHandleOrNull(context.Background(), "nocolonhere")
	assert.False(t, ok)

	assert.Equal(t, int64(0), r.GetMetrics().Failures)
}

func TestResolveHandleOrNullNotFoundIncrementsFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	r, err := NewResolver(Config{APIBaseURL: server.URL})
	require.NoError(t, err)

	_, ok := r.ResolveHandleOrNull(context.Background(), "did:plc:missing")
	assert.False(t, ok)
	assert.Equal(t, int64(1), r.GetMetrics().Failures)
}

func TestResolveHandleFallsBackToIDOnFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	r, err := NewResolver(Config{APIBaseURL: server.URL})
	require.NoError(t, err)

	handle := r.ResolveHandle(context.Background(), "did:plc:missing")
	assert.Equal(t, "did:plc:missing", handle)
}

func TestCacheEvictsExpiredEntries(t *testing.T) {
	c, err := newCache(10, 10*time.Millisecond)
	require.NoError(t, err)

	c.set("did:plc:a", "a.bsky.social")
	_, ok := c.get("did:plc:a")
	require.True(t, ok)

	time.Sleep(30 * time.Millisecond)
	_, ok = c.get("did:plc:a")
	assert.False(t, ok)
}

func TestCacheRespectsCapacity(t *testing.T) {
	c, err := newCache(2, 0)
	require.NoError(t, err)

	c.set("did:plc:a", "a")
	c.set("did:plc:b", "b")
	c.set("did:plc:c", "c")

	assert.Equal(t, 2, c.len())
}
