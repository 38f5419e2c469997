// Package jetstreammanager owns the shared firehose connection and job
// registry as a coupled pair: the connection is started on the first active
// job and stopped, after a grace window, once the last job is removed.
package jetstreammanager

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/brightloom/sentiment-ingest/internal/jetstreamclient"
	"github.com/brightloom/sentiment-ingest/internal/jobregistry"
)

// ErrReconnectExhausted is the error every active job is failed with when
// the underlying client gives up reconnecting.
var ErrReconnectExhausted = errors.New("jetstreammanager: reconnect attempts exhausted")

// DefaultGraceWindow is how long the manager waits after the last job is
// removed before actually stopping the shared connection, absorbing a
// register/cancel/register churn within one event loop tick.
const DefaultGraceWindow = 5 * time.Second

// Status is a composed snapshot across the client, registry, and router.
type Status struct {
	ConnectionStatus   jetstreamclient.ConnectionStatus
	IsListening        bool
	ActiveJobs         int
	MaxReconnectExhaus bool
}

// Stats composes client metrics with the active job count. Per-job matched
// counts are not included.
type Stats struct {
	ClientMetrics jetstreamclient.Metrics
	ActiveJobs    int
}

// Manager is the coupled owner of one jetstreamclient.Client and one
// jobregistry.Registry: explicit construction, context-based shutdown,
// mutex-guarded shared counters, no framework underneath.
type Manager struct {
	client   *jetstreamclient.Client
	registry *jobregistry.Registry
	router   *jobregistry.Router

	graceWindow time.Duration

	mu           sync.Mutex
	listening    bool
	stopTimer    *time.Timer
	postsSubID   uint64
	statusSubID  uint64
	subscribed   bool

	resolveAuthor func(ctx context.Context, authorID string) string
}

// Config configures a Manager. Cursor persistence is wired into the client
// itself (jetstreamclient.NewClient's persister argument); the manager only
// orchestrates connection lifecycle and job routing. OnJobRegistered,
// OnJobFailed, and OnJobMatched are optional metrics hooks; pass nil to skip.
type Config struct {
	Client        *jetstreamclient.Client
	GraceWindow   time.Duration
	ResolveAuthor func(ctx context.Context, authorID string) string

	OnJobRegistered func()
	OnJobFailed     func()
	OnJobMatched    func()
}

// NewManager builds a Manager over an existing jetstreamclient.Client.
func NewManager(cfg Config) *Manager {
	grace := cfg.GraceWindow
	if grace <= 0 {
		grace = DefaultGraceWindow
	}

	m := &Manager{
		client:        cfg.Client,
		graceWindow:   grace,
		resolveAuthor: cfg.ResolveAuthor,
	}
	m.registry = jobregistry.NewRegistry(jobregistry.Lifecycle{
		OnFirstJob:   m.ensureConnected,
		OnLastJob:    m.scheduleStop,
		OnRegistered: cfg.OnJobRegistered,
		OnFailed:     cfg.OnJobFailed,
	})
	m.router = jobregistry.NewRouter(m.registry, cfg.OnJobMatched)
	return m
}

// RegisterJob creates a job and guarantees the firehose is active before
// returning success (the lifecycle hook blocks registration's caller only
// long enough to kick off the connect; it does not wait for `connected`).
func (m *Manager) RegisterJob(cfg jobregistry.JobConfig) (*jobregistry.Job, error) {
	return m.registry.Register(cfg)
}

// CompleteJob / CancelJob are the terminal job transitions.
func (m *Manager) CompleteJob(jobID string) error { return m.registry.Complete(jobID) }
func (m *Manager) CancelJob(jobID string) error   { return m.registry.Cancel(jobID) }

// IsJobRegistered reports whether jobID is currently active.
func (m *Manager) IsJobRegistered(jobID string) bool { return m.registry.IsRegistered(jobID) }

// IsCurrentlyListening reports whether the manager currently has a live
// subscription to the client's post stream.
func (m *Manager) IsCurrentlyListening() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listening
}

// GetStatus composes a point-in-time view across client and registry.
func (m *Manager) GetStatus() Status {
	return Status{
		ConnectionStatus:   m.client.GetConnectionStatus(),
		IsListening:        m.IsCurrentlyListening(),
		ActiveJobs:         m.registry.ActiveCount(),
		MaxReconnectExhaus: m.client.IsMaxReconnectExhausted(),
	}
}

// GetStats composes client metrics with the active job count.
func (m *Manager) GetStats() Stats {
	return Stats{
		ClientMetrics: m.client.GetMetrics(),
		ActiveJobs:    m.registry.ActiveCount(),
	}
}

// Reconnect forces a reconnect attempt, useful after IsMaxReconnectExhausted.
func (m *Manager) Reconnect() {
	m.client.ResetReconnectState()
}

// Start connects the underlying client and begins routing posts/status to
// the registry. Call once at process startup; RegisterJob does not itself
// call Start — it calls ensureConnected, which is idempotent against an
// already-running client.
func (m *Manager) Start(ctx context.Context, cursor *int64) error {
	if err := m.client.Connect(ctx, cursor); err != nil {
		if !errors.Is(err, jetstreamclient.ErrAlreadyConnected) && !errors.Is(err, jetstreamclient.ErrAlreadyConnecting) {
			return err
		}
	}
	m.subscribeLocked()
	return nil
}

// Stop disconnects the underlying client and stops routing.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.subscribed {
		m.client.Unsubscribe(m.postsSubID)
		m.client.UnsubscribeStatus(m.statusSubID)
		m.subscribed = false
	}
	m.listening = false
	m.mu.Unlock()
	m.client.Disconnect()
}

func (m *Manager) ensureConnected() {
	m.mu.Lock()
	if m.stopTimer != nil {
		m.stopTimer.Stop()
		m.stopTimer = nil
	}
	m.listening = true
	m.subscribeLocked()
	m.mu.Unlock()

	log.Printf("[INFO] jetstreammanager: first job registered, ensuring connection is active")
	if m.client.GetConnectionStatus() == jetstreamclient.StatusDisconnected {
		if err := m.client.Connect(context.Background(), nil); err != nil &&
			!errors.Is(err, jetstreamclient.ErrAlreadyConnected) && !errors.Is(err, jetstreamclient.ErrAlreadyConnecting) {
			log.Printf("[WARN] jetstreammanager: connect on first job: %v", err)
		}
	}
}

func (m *Manager) subscribeLocked() {
	if m.subscribed {
		return
	}
	postsID, postsCh, _ := m.client.Subscribe()
	statusID, statusCh := m.client.SubscribeStatus()
	m.postsSubID = postsID
	m.statusSubID = statusID
	m.subscribed = true

	go m.consumePosts(postsCh)
	go m.consumeStatus(statusCh)
}

func (m *Manager) consumePosts(ch <-chan *jetstreamclient.PostEvent) {
	for post := range ch {
		authorName := (*string)(nil)
		if m.resolveAuthor != nil {
			resolved := m.resolveAuthor(context.Background(), post.AuthorID)
			authorName = &resolved
		}
		published, err := time.Parse(time.RFC3339, post.CreatedAt)
		if err != nil {
			published = time.Now()
		}
		m.router.Route(jobregistry.RoutedPost{
			Text:        post.Text,
			SourceURL:   post.URI,
			AuthorName:  authorName,
			PublishedAt: published,
			CollectedAt: time.Now(),
		})
	}
}

func (m *Manager) consumeStatus(ch <-chan jetstreamclient.ConnectionStatus) {
	for range ch {
		if m.client.IsMaxReconnectExhausted() {
			m.failAllActiveJobs()
		}
	}
}

func (m *Manager) failAllActiveJobs() {
	ids := m.registry.ActiveJobIDs()
	for _, id := range ids {
		if err := m.registry.Fail(id, ErrReconnectExhausted); err != nil {
			log.Printf("[WARN] jetstreammanager: failing job %s: %v", id, err)
		}
	}
	if len(ids) > 0 {
		log.Printf("[WARN] jetstreammanager: reconnect exhausted, failed %d active jobs", len(ids))
	}
}

// scheduleStop arms the grace-window timer; if a new job registers before it
// fires, ensureConnected cancels it. No firehose connection persists without
// at least one potential consumer over the grace window.
func (m *Manager) scheduleStop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopTimer != nil {
		m.stopTimer.Stop()
	}
	m.stopTimer = time.AfterFunc(m.graceWindow, func() {
		m.mu.Lock()
		stillEmpty := m.registry.ActiveCount() == 0
		m.mu.Unlock()

		if stillEmpty {
			log.Printf("[INFO] jetstreammanager: grace window elapsed with no active jobs, stopping connection")
			m.Stop()
		}
	})
}
