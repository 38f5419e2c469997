// Package ingestsvc bridges the broker's job.start/job.cancel inbound
// patterns to the jetstream manager's job registry, and emits the
// job.raw_data/job.initial_batch_complete/job.ingestion_complete/job.failed
// lifecycle envelopes back onto the broker.
package ingestsvc

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/brightloom/sentiment-ingest/internal/broker"
	"github.com/brightloom/sentiment-ingest/internal/jetstreammanager"
	"github.com/brightloom/sentiment-ingest/internal/jobregistry"
)

// jobStartPayload is the inbound job.start envelope.
type jobStartPayload struct {
	JobID         string `json:"jobId"`
	Prompt        string `json:"prompt"`
	CorrelationID string `json:"correlationId"`
	DeadlineMs    int64  `json:"deadlineMs"`
}

// jobCancelPayload is the inbound job.cancel envelope.
type jobCancelPayload struct {
	JobID string `json:"jobId"`
}

// rawDataPayload is the per-match post envelope delivered to analysis.
type rawDataPayload struct {
	JobID       string  `json:"jobId"`
	TextContent string  `json:"textContent"`
	Source      string  `json:"source"`
	SourceURL   string  `json:"sourceUrl"`
	AuthorName  *string `json:"authorName"`
	PublishedAt string  `json:"publishedAt"`
	CollectedAt string  `json:"collectedAt"`
}

type initialBatchCompletePayload struct {
	JobID             string `json:"jobId"`
	InitialBatchCount int    `json:"initialBatchCount"`
	CompletedAt       string `json:"completedAt"`
	StreamingActive   bool   `json:"streamingActive"`
}

type ingestionCompletePayload struct {
	JobID       string `json:"jobId"`
	TotalItems  int64  `json:"totalItems"`
	CompletedAt string `json:"completedAt"`
}

type jobFailedPayload struct {
	JobID        string `json:"jobId"`
	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage"`
	FailedAt     string `json:"failedAt"`
}

// Service owns the broker<->manager bridge.
type Service struct {
	broker          *broker.Broker
	manager         *jetstreammanager.Manager
	defaultDeadline time.Duration
}

// New builds a Service over an already-connected Broker and Manager.
// defaultDeadline is used when a job.start envelope omits deadlineMs or
// sends zero.
func New(b *broker.Broker, m *jetstreammanager.Manager, defaultDeadline time.Duration) *Service {
	if defaultDeadline <= 0 {
		defaultDeadline = time.Hour
	}
	return &Service{broker: b, manager: m, defaultDeadline: defaultDeadline}
}

// Run subscribes to job.start and job.cancel and blocks serving both until
// ctx is cancelled or a consumer setup fails.
func (s *Service) Run(ctx context.Context) error {
	if err := s.broker.Consume(ctx, broker.PatternJobStart, "ingestor-job-start", s.handleJobStart); err != nil {
		return err
	}
	if err := s.broker.Consume(ctx, broker.PatternJobCancel, "ingestor-job-cancel", s.handleJobCancel); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func (s *Service) handleJobStart(ctx context.Context, raw json.RawMessage) broker.HandleResult {
	var payload jobStartPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Printf("[WARN] ingestsvc: malformed job.start payload: %v", err)
		return broker.ResultNackNoRequeue
	}
	if payload.JobID == "" || payload.Prompt == "" {
		log.Printf("[WARN] ingestsvc: job.start missing jobId/prompt")
		return broker.ResultNackNoRequeue
	}

	deadline := time.Duration(payload.DeadlineMs) * time.Millisecond
	if deadline <= 0 {
		deadline = s.defaultDeadline
	}

	_, err := s.manager.RegisterJob(jobregistry.JobConfig{
		JobID:         payload.JobID,
		Prompt:        payload.Prompt,
		CorrelationID: payload.CorrelationID,
		Deadline:      deadline,
		OnData:        s.onMatch,
		OnComplete:    s.onTerminal,
	})
	if err != nil {
		if errors.Is(err, jobregistry.ErrDuplicateJob) {
			log.Printf("[WARN] ingestsvc: job.start duplicate jobId %s", payload.JobID)
			return broker.ResultNackNoRequeue
		}
		if errors.Is(err, jobregistry.ErrInvalidJob) {
			return broker.ResultNackNoRequeue
		}
		log.Printf("[ERROR] ingestsvc: register job %s: %v", payload.JobID, err)
		s.publishFailed(payload.JobID, err)
		return broker.ResultNackRequeue
	}

	s.publishInitialBatchComplete(payload.JobID)
	return broker.ResultAck
}

func (s *Service) handleJobCancel(ctx context.Context, raw json.RawMessage) broker.HandleResult {
	var payload jobCancelPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Printf("[WARN] ingestsvc: malformed job.cancel payload: %v", err)
		return broker.ResultNackNoRequeue
	}
	if payload.JobID == "" {
		return broker.ResultNackNoRequeue
	}
	if err := s.manager.CancelJob(payload.JobID); err != nil {
		log.Printf("[WARN] ingestsvc: cancel job %s: %v", payload.JobID, err)
		return broker.ResultNackNoRequeue
	}
	return broker.ResultAck
}

func (s *Service) onMatch(post jobregistry.MatchedPost) {
	payload := rawDataPayload{
		JobID:       post.JobID,
		TextContent: post.TextContent,
		Source:      post.Source,
		SourceURL:   post.SourceURL,
		AuthorName:  post.AuthorName,
		PublishedAt: post.PublishedAt.Format(time.RFC3339),
		CollectedAt: post.CollectedAt.Format(time.RFC3339),
	}
	if err := s.broker.Publish(context.Background(), broker.PatternJobRawData, payload); err != nil {
		log.Printf("[ERROR] ingestsvc: publish job.raw_data for %s: %v", post.JobID, err)
	}
}

func (s *Service) onTerminal(jobID string, matchedCount int64, failErr error) {
	if failErr != nil {
		s.publishFailed(jobID, failErr)
		return
	}
	payload := ingestionCompletePayload{
		JobID:       jobID,
		TotalItems:  matchedCount,
		CompletedAt: time.Now().Format(time.RFC3339),
	}
	if err := s.broker.Publish(context.Background(), broker.PatternJobIngestionComplete, payload); err != nil {
		log.Printf("[ERROR] ingestsvc: publish job.ingestion_complete for %s: %v", jobID, err)
	}
	if err := s.broker.Publish(context.Background(), broker.PatternJobComplete, payload); err != nil {
		log.Printf("[ERROR] ingestsvc: publish job.complete for %s: %v", jobID, err)
	}
}

func (s *Service) publishInitialBatchComplete(jobID string) {
	payload := initialBatchCompletePayload{
		JobID:             jobID,
		InitialBatchCount: 0,
		CompletedAt:       time.Now().Format(time.RFC3339),
		StreamingActive:   true,
	}
	if err := s.broker.Publish(context.Background(), broker.PatternJobInitialBatchComplete, payload); err != nil {
		log.Printf("[ERROR] ingestsvc: publish job.initial_batch_complete for %s: %v", jobID, err)
	}
}

func (s *Service) publishFailed(jobID string, failErr error) {
	payload := jobFailedPayload{
		JobID:        jobID,
		Status:       "failed",
		ErrorMessage: failErr.Error(),
		FailedAt:     time.Now().Format(time.RFC3339),
	}
	if err := s.broker.Publish(context.Background(), broker.PatternJobFailed, payload); err != nil {
		log.Printf("[ERROR] ingestsvc: publish job.failed for %s: %v", jobID, err)
	}
}
