package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightloom/sentiment-ingest/internal/didresolver"
	"github.com/brightloom/sentiment-ingest/internal/jetstreamclient"
	"github.com/brightloom/sentiment-ingest/internal/jetstreammanager"
)

type noopPersister struct{}

func (noopPersister) SaveCursor(int64) {}

func TestNewRegistryRegistersEveryCollectorOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRegistry(reg)

	metrics, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, metrics)
	assert.NotNil(t, m.JobsActive)
}

func TestSamplerPullsClientAndResolverSnapshotsOnTick(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRegistry(reg)

	client := jetstreamclient.NewClient(jetstreamclient.Config{
		Endpoint: "wss://example.invalid/subscribe",
	}, noopPersister{})
	manager := jetstreammanager.NewManager(jetstreammanager.Config{Client: client})

	resolver, err := didresolver.NewResolver(didresolver.Config{APIBaseURL: "https://example.invalid"})
	require.NoError(t, err)

	sampler := NewSampler(m, manager, resolver)
	sampler.sample()

	families, err := reg.Gather()
	require.NoError(t, err)

	found := false
	for _, f := range families {
		if f.GetName() == "sentiment_ingest_jobs_active" {
			found = true
			assert.Equal(t, float64(0), f.Metric[0].GetGauge().GetValue())
		}
	}
	assert.True(t, found, "expected sentiment_ingest_jobs_active to be registered")
}

func TestSamplerStartStopDoesNotPanic(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRegistry(reg)

	client := jetstreamclient.NewClient(jetstreamclient.Config{
		Endpoint: "wss://example.invalid/subscribe",
	}, noopPersister{})
	manager := jetstreammanager.NewManager(jetstreammanager.Config{Client: client})

	sampler := NewSampler(m, manager, nil)
	sampler.Start(5 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	sampler.Stop()
}
