// Package broker bounds this core's external communication to a closed set
// of named patterns, each routed statically to a named NATS JetStream
// stream, with at-least-once delivery semantics. Grounded on
// OmarEhab007-RemedyIQ/backend/internal/streaming/nats.go (stream
// provisioning, durable consumers, explicit ack policy).
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Broker wraps a NATS connection with JetStream enabled.
type Broker struct {
	conn *nats.Conn
	js   jetstream.JetStream

	onPublish      func(pattern string)
	onPublishError func(pattern string)
}

// Config configures a Broker. OnPublish and OnPublishError are optional
// metrics hooks invoked after every publish attempt; pass nil to skip.
type Config struct {
	NATSURL string

	OnPublish      func(pattern string)
	OnPublishError func(pattern string)
}

// Connect dials NATS and enables JetStream: indefinite reconnects with a
// fixed wait, logged via the bracketed-tag convention rather than slog.
func Connect(cfg Config) (*Broker, error) {
	opts := []nats.Option{
		nats.Name("sentiment-ingest"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[WARN] broker: disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[INFO] broker: reconnected to %s", nc.ConnectedUrl())
		}),
	}

	nc, err := nats.Connect(cfg.NATSURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("broker: connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("broker: jetstream init: %w", err)
	}

	return &Broker{conn: nc, js: js, onPublish: cfg.OnPublish, onPublishError: cfg.OnPublishError}, nil
}

// Close drains pending messages and disconnects.
func (b *Broker) Close() {
	if b.conn != nil {
		_ = b.conn.Drain()
	}
}

// EnsureStreams provisions the INGESTION, ANALYSIS, and GATEWAY streams if
// they do not already exist.
func (b *Broker) EnsureStreams(ctx context.Context) error {
	for _, queue := range queues {
		cfg := jetstream.StreamConfig{
			Name:      queue,
			Subjects:  streamSubjects(queue),
			Retention: jetstream.WorkQueuePolicy,
			MaxAge:    24 * time.Hour,
			Storage:   jetstream.FileStorage,
			Replicas:  1,
			Discard:   jetstream.DiscardOld,
		}
		if _, err := b.js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("broker: ensure stream %s: %w", queue, err)
		}
		log.Printf("[INFO] broker: stream %s ready", queue)
	}
	return nil
}

// Publish routes pattern to its queue and publishes payload as JSON.
// Emission is fire-and-forget at the caller level: publish errors are
// surfaced through structured logs, never as a panic at the emit site, but
// the call itself is synchronous and returns the error for callers that
// want to retry.
func (b *Broker) Publish(ctx context.Context, pattern Pattern, payload any) error {
	queue, err := routeQueue(pattern)
	if err != nil {
		log.Printf("[ERROR] broker: publish: %v", err)
		b.recordPublishError(pattern)
		return err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[ERROR] broker: marshal payload for %s: %v", pattern, err)
		b.recordPublishError(pattern)
		return fmt.Errorf("broker: marshal payload for %s: %w", pattern, err)
	}

	subj := subject(queue, pattern)
	if _, err := b.js.Publish(ctx, subj, data); err != nil {
		log.Printf("[ERROR] broker: publish to %s: %v", subj, err)
		b.recordPublishError(pattern)
		return fmt.Errorf("broker: publish to %s: %w", subj, err)
	}

	if b.onPublish != nil {
		b.onPublish(string(pattern))
	}
	log.Printf("[INFO] broker: published %s (%d bytes)", subj, len(data))
	return nil
}

func (b *Broker) recordPublishError(pattern Pattern) {
	if b.onPublishError != nil {
		b.onPublishError(string(pattern))
	}
}

// Ping verifies the connection is alive and JetStream is reachable.
func (b *Broker) Ping(ctx context.Context) error {
	if !b.conn.IsConnected() {
		return fmt.Errorf("broker: not connected")
	}
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := b.js.AccountInfo(reqCtx); err != nil {
		return fmt.Errorf("broker: jetstream ping: %w", err)
	}
	return nil
}
