package metrics

import (
	"log"
	"time"

	"github.com/brightloom/sentiment-ingest/internal/didresolver"
	"github.com/brightloom/sentiment-ingest/internal/jetstreammanager"
)

// Sampler periodically pulls point-in-time snapshots from components that
// own their own counters (the jetstream client, DID resolver) and mirrors
// them onto the Prometheus gauges in Registry, the same ticker-driven
// pattern used for cursor auto-save and DID cache sweeps.
type Sampler struct {
	registry *Registry
	manager  *jetstreammanager.Manager
	resolver *didresolver.Resolver

	ticker *time.Ticker
	done   chan struct{}
}

// NewSampler builds a Sampler. Start must be called to begin sampling.
func NewSampler(registry *Registry, manager *jetstreammanager.Manager, resolver *didresolver.Resolver) *Sampler {
	return &Sampler{registry: registry, manager: manager, resolver: resolver}
}

// Start begins periodic sampling at the given interval.
func (s *Sampler) Start(interval time.Duration) {
	s.ticker = time.NewTicker(interval)
	s.done = make(chan struct{})
	ticker := s.ticker
	done := s.done

	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				s.sample()
			}
		}
	}()
	log.Printf("[INFO] metrics: sampler started (interval=%s)", interval)
}

// Stop halts periodic sampling.
func (s *Sampler) Stop() {
	if s.ticker != nil {
		s.ticker.Stop()
		close(s.done)
	}
}

func (s *Sampler) sample() {
	stats := s.manager.GetStats()
	s.registry.JetstreamMessagesReceived.Set(float64(stats.ClientMetrics.TotalMessagesReceived))
	s.registry.JetstreamPostsNormalized.Set(float64(stats.ClientMetrics.TotalPostsNormalized))
	s.registry.JetstreamReconnectAttempts.Set(float64(stats.ClientMetrics.ReconnectAttempts))
	s.registry.JetstreamConnectionStatus.Set(float64(stats.ClientMetrics.Status))
	s.registry.JetstreamLastCursor.Set(float64(stats.ClientMetrics.LastCursor))
	s.registry.JobsActive.Set(float64(stats.ActiveJobs))

	if s.resolver != nil {
		m := s.resolver.GetMetrics()
		s.registry.DIDResolverRequests.Set(float64(m.TotalRequests))
		s.registry.DIDResolverHits.Set(float64(m.CacheHits))
		s.registry.DIDResolverMisses.Set(float64(m.CacheMisses))
		s.registry.DIDResolverFailures.Set(float64(m.Failures))
		s.registry.DIDResolverCacheSize.Set(float64(m.CacheSize))
	}

	log.Printf("[STATS] Messages: %d, Posts: %d, ActiveJobs: %d, Reconnects: %d",
		stats.ClientMetrics.TotalMessagesReceived, stats.ClientMetrics.TotalPostsNormalized,
		stats.ActiveJobs, stats.ClientMetrics.ReconnectAttempts)
}
