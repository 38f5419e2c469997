package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brightloom/sentiment-ingest/internal/broker"
	"github.com/brightloom/sentiment-ingest/internal/config"
	"github.com/brightloom/sentiment-ingest/internal/cursorstore"
	"github.com/brightloom/sentiment-ingest/internal/didresolver"
	"github.com/brightloom/sentiment-ingest/internal/httpserver"
	"github.com/brightloom/sentiment-ingest/internal/ingestsvc"
	"github.com/brightloom/sentiment-ingest/internal/jetstreamclient"
	"github.com/brightloom/sentiment-ingest/internal/jetstreammanager"
	"github.com/brightloom/sentiment-ingest/internal/metrics"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("[INFO] no .env file found, relying on process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[ERROR] load config: %v", err)
	}

	cursorStore, err := cursorstore.NewStore(cursorstore.Options{
		Backend:  cfg.Cursor.Persistence,
		FilePath: cfg.Cursor.FilePath,
	})
	if err != nil {
		log.Fatalf("[ERROR] init cursor store: %v", err)
	}
	cursorStore.StartAutoSave(time.Duration(cfg.Cursor.AutoSaveMs) * time.Millisecond)
	defer cursorStore.StopAutoSave()

	resolver, err := didresolver.NewResolver(didresolver.Config{
		APIBaseURL:     cfg.DIDResolver.APIBaseURL,
		MaxCacheSize:   cfg.DIDResolver.MaxCacheSize,
		CacheTTL:       time.Duration(cfg.DIDResolver.CacheTTLMs) * time.Millisecond,
		BatchSize:      cfg.DIDResolver.BatchSize,
		RequestTimeout: time.Duration(cfg.DIDResolver.RequestTimeoutMs) * time.Millisecond,
	})
	if err != nil {
		log.Fatalf("[ERROR] init DID resolver: %v", err)
	}
	resolver.StartSweep(time.Duration(cfg.DIDResolver.SweepIntervalMs) * time.Millisecond)
	defer resolver.StopSweep()

	client := jetstreamclient.NewClient(jetstreamclient.Config{
		Endpoint:             cfg.Jetstream.Endpoint,
		FailoverEndpoints:    cfg.Jetstream.FailoverEndpoints,
		Compress:             cfg.Jetstream.Compress,
		ReconnectMaxAttempts: cfg.Jetstream.ReconnectMaxAttempts,
		InitialBackoff:       time.Duration(cfg.Jetstream.ReconnectInitialBackoffMs) * time.Millisecond,
		MaxBackoff:           time.Duration(cfg.Jetstream.ReconnectMaxBackoffMs) * time.Millisecond,
		InactivityTimeout:    time.Duration(cfg.Jetstream.InactivityTimeoutMs) * time.Millisecond,
	}, cursorStore)

	reg := prometheus.NewRegistry()
	metricsRegistry := metrics.NewRegistry(reg)

	b, err := broker.Connect(broker.Config{
		NATSURL: cfg.Broker.NATSURL,
		OnPublish: func(pattern string) {
			metricsRegistry.BrokerPublishTotal.WithLabelValues(pattern).Inc()
		},
		OnPublishError: func(pattern string) {
			metricsRegistry.BrokerPublishErrors.WithLabelValues(pattern).Inc()
		},
	})
	if err != nil {
		log.Fatalf("[ERROR] connect broker: %v", err)
	}
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := b.EnsureStreams(ctx); err != nil {
		log.Fatalf("[ERROR] ensure broker streams: %v", err)
	}

	manager := jetstreammanager.NewManager(jetstreammanager.Config{
		Client: client,
		ResolveAuthor: func(ctx context.Context, authorID string) string {
			return resolver.ResolveHandle(ctx, authorID)
		},
		OnJobRegistered: func() { metricsRegistry.JobsRegisteredTotal.Inc() },
		OnJobFailed:     func() { metricsRegistry.JobsFailedTotal.Inc() },
		OnJobMatched:    func() { metricsRegistry.JobsMatchedTotal.Inc() },
	})

	savedCursor, found, err := cursorStore.LoadCursor()
	if err != nil {
		log.Fatalf("[ERROR] load cursor: %v", err)
	}
	var resumeCursor *int64
	if found {
		resumeCursor = &savedCursor
		log.Printf("[INFO] resuming from cursor %d", savedCursor)
	} else {
		log.Printf("[INFO] starting from current time, no saved cursor")
	}

	if err := manager.Start(ctx, resumeCursor); err != nil {
		log.Fatalf("[ERROR] start jetstream manager: %v", err)
	}
	defer manager.Stop()

	sampler := metrics.NewSampler(metricsRegistry, manager, resolver)
	sampler.Start(15 * time.Second)
	defer sampler.Stop()

	svc := ingestsvc.New(b, manager, time.Duration(cfg.Jetstream.MaxDurationMs)*time.Millisecond)
	go func() {
		if err := svc.Run(ctx); err != nil {
			log.Printf("[ERROR] ingest service stopped: %v", err)
		}
	}()

	addr := cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port)
	srv := httpserver.New(addr, manager, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			log.Printf("[ERROR] http server: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("[INFO] shutdown signal received, flushing state")

	cancel()
	_ = srv.Shutdown()
	if err := cursorStore.Flush(); err != nil {
		log.Printf("[ERROR] final cursor flush: %v", err)
	}
	log.Printf("[INFO] ingestor stopped")
}
