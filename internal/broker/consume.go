package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// HandleResult is what a consumer handler returns to tell the broker how to
// acknowledge the message.
type HandleResult int

const (
	// ResultAck: successful handling.
	ResultAck HandleResult = iota
	// ResultNackNoRequeue: validation failure (missing required fields,
	// unknown job, malformed payload) or any other failure not covered
	// below — never redelivered, to prevent poison-message loops.
	ResultNackNoRequeue
	// ResultNackRequeue: transient infrastructure failure (timeout,
	// connection refused, temporary error) — redelivered after a delay.
	ResultNackRequeue
)

// requeueDelay is how long a nack-with-requeue message waits before
// redelivery.
const requeueDelay = 5 * time.Second

// Handler processes one decoded message and reports the ack disposition.
type Handler func(ctx context.Context, raw json.RawMessage) HandleResult

// Consume creates a durable consumer for pattern's subject and invokes
// handler for each delivered message, applying the ack/nack mapping:
// ack -> msg.Ack(), nack-without-requeue -> msg.TermWithReason(...),
// nack-with-requeue -> msg.NakWithDelay(...).
func (b *Broker) Consume(ctx context.Context, pattern Pattern, durableName string, handler Handler) error {
	queue, err := routeQueue(pattern)
	if err != nil {
		return err
	}
	subj := subject(queue, pattern)

	cons, err := b.js.CreateOrUpdateConsumer(ctx, queue, jetstream.ConsumerConfig{
		Durable:       durableName,
		FilterSubject: subj,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
		MaxDeliver:    5,
		AckWait:       30 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("broker: create consumer %s: %w", durableName, err)
	}

	_, err = cons.Consume(func(msg jetstream.Msg) {
		result := handler(ctx, json.RawMessage(msg.Data()))
		b.applyAckPolicy(msg, result, subj)
	})
	if err != nil {
		return fmt.Errorf("broker: consume %s: %w", durableName, err)
	}

	log.Printf("[INFO] broker: subscribed to %s (durable=%s)", subj, durableName)
	return nil
}

func (b *Broker) applyAckPolicy(msg jetstream.Msg, result HandleResult, subj string) {
	var err error
	switch result {
	case ResultAck:
		err = msg.Ack()
	case ResultNackRequeue:
		err = msg.NakWithDelay(requeueDelay)
	default:
		err = msg.TermWithReason("nack without requeue")
	}
	if err != nil {
		log.Printf("[ERROR] broker: ack disposition for %s: %v", subj, err)
	}
}

// ErrUnknownPattern is returned by Consume/Publish when the pattern is
// outside the closed enumeration.
var ErrUnknownPattern = errors.New("broker: unknown pattern")
