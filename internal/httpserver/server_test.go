package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightloom/sentiment-ingest/internal/jetstreamclient"
	"github.com/brightloom/sentiment-ingest/internal/jetstreammanager"
)

type noopPersister struct{}

func (noopPersister) SaveCursor(int64) {}

func newTestServer(t *testing.T) *Server {
	client := jetstreamclient.NewClient(jetstreamclient.Config{
		Endpoint: "wss://example.invalid/subscribe",
	}, noopPersister{})
	manager := jetstreammanager.NewManager(jetstreammanager.Config{Client: client})

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "dummy_total", Help: "dummy"}))

	return New("127.0.0.1:0", manager, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
}

func TestHealthzReturnsOK(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStatusReturnsManagerSnapshot(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "disconnected", resp.ConnectionStatus)
	assert.False(t, resp.IsListening)
	assert.Equal(t, 0, resp.ActiveJobs)
}

func TestMetricsExposesPrometheusExposition(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dummy_total")
}

func TestListenAndServeShutdownIsClean(t *testing.T) {
	srv := newTestServer(t)
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe() }()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, srv.Shutdown())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("ListenAndServe did not return after Shutdown")
	}
}
