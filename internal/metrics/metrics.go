// Package metrics defines the Prometheus collectors shared by the
// jetstream client, DID resolver, job registry, and jetstream manager.
// cmd/ingestor serves them on the internal chi-routed HTTP surface.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every collector this core exposes. The Jetstream*/
// DIDResolver* fields mirror point-in-time totals a component already
// tracks internally (see Sampler) so they are gauges, not counters: Set,
// never Add, keeps them consistent with the owning component's snapshot.
// JobsMatchedTotal/JobsRegisteredTotal/JobsFailedTotal and the broker
// counters are incremented directly at the event site and are true
// monotonic counters.
type Registry struct {
	JetstreamMessagesReceived prometheus.Gauge
	JetstreamPostsNormalized  prometheus.Gauge
	JetstreamReconnectAttempts prometheus.Gauge
	JetstreamConnectionStatus prometheus.Gauge
	JetstreamLastCursor       prometheus.Gauge

	DIDResolverRequests  prometheus.Gauge
	DIDResolverHits      prometheus.Gauge
	DIDResolverMisses    prometheus.Gauge
	DIDResolverFailures  prometheus.Gauge
	DIDResolverCacheSize prometheus.Gauge

	JobsActive          prometheus.Gauge
	JobsMatchedTotal    prometheus.Counter
	JobsRegisteredTotal prometheus.Counter
	JobsFailedTotal     prometheus.Counter

	BrokerPublishTotal  prometheus.CounterVec
	BrokerPublishErrors prometheus.CounterVec
}

// NewRegistry constructs and registers every collector against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	m := &Registry{
		JetstreamMessagesReceived: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sentiment_ingest",
			Subsystem: "jetstream",
			Name:      "messages_received",
			Help:      "Total inbound Jetstream frames received (mirrored snapshot).",
		}),
		JetstreamPostsNormalized: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sentiment_ingest",
			Subsystem: "jetstream",
			Name:      "posts_normalized",
			Help:      "Total post events successfully normalized and published (mirrored snapshot).",
		}),
		JetstreamReconnectAttempts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sentiment_ingest",
			Subsystem: "jetstream",
			Name:      "reconnect_attempts",
			Help:      "Current consecutive reconnect attempt count.",
		}),
		JetstreamConnectionStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sentiment_ingest",
			Subsystem: "jetstream",
			Name:      "connection_status",
			Help:      "Current connection status as an ordinal (0=disconnected..4=error).",
		}),
		JetstreamLastCursor: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sentiment_ingest",
			Subsystem: "jetstream",
			Name:      "last_cursor",
			Help:      "Last observed firehose cursor (time_us).",
		}),
		DIDResolverRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sentiment_ingest",
			Subsystem: "did_resolver",
			Name:      "requests",
			Help:      "Total resolution requests (mirrored snapshot).",
		}),
		DIDResolverHits: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sentiment_ingest",
			Subsystem: "did_resolver",
			Name:      "cache_hits",
			Help:      "Total cache hits (mirrored snapshot).",
		}),
		DIDResolverMisses: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sentiment_ingest",
			Subsystem: "did_resolver",
			Name:      "cache_misses",
			Help:      "Total cache misses (mirrored snapshot).",
		}),
		DIDResolverFailures: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sentiment_ingest",
			Subsystem: "did_resolver",
			Name:      "failures",
			Help:      "Total resolution failures (mirrored snapshot).",
		}),
		DIDResolverCacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sentiment_ingest",
			Subsystem: "did_resolver",
			Name:      "cache_size",
			Help:      "Current cache entry count.",
		}),
		JobsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sentiment_ingest",
			Subsystem: "jobs",
			Name:      "active",
			Help:      "Current number of active jobs.",
		}),
		JobsMatchedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sentiment_ingest",
			Subsystem: "jobs",
			Name:      "matched_total",
			Help:      "Total post-to-job matches routed.",
		}),
		JobsRegisteredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sentiment_ingest",
			Subsystem: "jobs",
			Name:      "registered_total",
			Help:      "Total jobs registered.",
		}),
		JobsFailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sentiment_ingest",
			Subsystem: "jobs",
			Name:      "failed_total",
			Help:      "Total jobs failed (e.g. on reconnect exhaustion).",
		}),
		BrokerPublishTotal: *prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentiment_ingest",
			Subsystem: "broker",
			Name:      "publish_total",
			Help:      "Total broker publishes by pattern.",
		}, []string{"pattern"}),
		BrokerPublishErrors: *prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentiment_ingest",
			Subsystem: "broker",
			Name:      "publish_errors_total",
			Help:      "Total broker publish errors by pattern.",
		}, []string{"pattern"}),
	}

	reg.MustRegister(
		m.JetstreamMessagesReceived, m.JetstreamPostsNormalized, m.JetstreamReconnectAttempts,
		m.JetstreamConnectionStatus, m.JetstreamLastCursor,
		m.DIDResolverRequests, m.DIDResolverHits, m.DIDResolverMisses,
		m.DIDResolverFailures, m.DIDResolverCacheSize,
		m.JobsActive, m.JobsMatchedTotal, m.JobsRegisteredTotal, m.JobsFailedTotal,
		&m.BrokerPublishTotal, &m.BrokerPublishErrors,
	)
	return m
}
