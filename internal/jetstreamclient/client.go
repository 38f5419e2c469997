// Package jetstreamclient maintains one long-lived WebSocket connection to
// the Bluesky Jetstream firehose and fans out normalized post events to many
// subscribers. It owns its own reconnect state machine rather than
// delegating to a library client, so that callers can observe and drive
// every state transition directly: status polling, reconnect exhaustion,
// explicit reset.
package jetstreamclient

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ConnectionStatus is the externally observable state of the client.
type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusError
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

var (
	ErrAlreadyConnected  = errors.New("jetstreamclient: already connected")
	ErrAlreadyConnecting = errors.New("jetstreamclient: already connecting")
)

// CursorPersister is notified of the latest observed cursor on every frame
// that carries one. It is satisfied by internal/cursorstore.Store.
type CursorPersister interface {
	SaveCursor(cursor int64)
}

// Config configures one Client.
type Config struct {
	Endpoint             string
	FailoverEndpoints    []string
	WantedCollections    []string
	Compress             bool
	ReconnectMaxAttempts int
	InitialBackoff       time.Duration
	MaxBackoff           time.Duration
	InactivityTimeout    time.Duration
}

func (c Config) withDefaults() Config {
	if len(c.WantedCollections) == 0 {
		c.WantedCollections = []string{"app.bsky.feed.post"}
	}
	if c.ReconnectMaxAttempts <= 0 {
		c.ReconnectMaxAttempts = 10
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.InactivityTimeout <= 0 {
		c.InactivityTimeout = 5 * time.Minute
	}
	return c
}

// Client maintains the shared firehose connection.
type Client struct {
	cfg       Config
	persister CursorPersister

	mu                sync.Mutex
	conn              *websocket.Conn
	status            ConnectionStatus
	lastCursor        int64
	reconnectAttempts int
	maxExhausted      bool
	shutdownCh        chan struct{}
	resetCh           chan struct{}
	endpointIdx       int

	posts   *postBroadcaster
	statusB *statusBroadcaster
	metrics *metricsState
}

// NewClient creates a Client. The connection is not opened until Connect is
// called.
func NewClient(cfg Config, persister CursorPersister) *Client {
	return &Client{
		cfg:       cfg.withDefaults(),
		persister: persister,
		status:    StatusDisconnected,
		posts:     newPostBroadcaster(),
		statusB:   newStatusBroadcaster(),
		metrics:   newMetricsState(),
		resetCh:   make(chan struct{}, 1),
	}
}

// Connect opens the connection, optionally resuming from cursor. It is
// idempotent while already connected or connecting: a second call returns a
// non-fatal sentinel error instead of opening a duplicate socket.
func (c *Client) Connect(ctx context.Context, cursor *int64) error {
	c.mu.Lock()
	switch c.status {
	case StatusConnected:
		c.mu.Unlock()
		log.Printf("[WARN] jetstreamclient: connect called while already connected")
		return ErrAlreadyConnected
	case StatusConnecting, StatusReconnecting:
		c.mu.Unlock()
		log.Printf("[WARN] jetstreamclient: connect called while already connecting")
		return ErrAlreadyConnecting
	}

	if cursor != nil {
		c.lastCursor = *cursor
	}
	c.shutdownCh = make(chan struct{})
	c.setStatusLocked(StatusConnecting)
	c.mu.Unlock()

	go c.runLoop(ctx)
	return nil
}

// Disconnect closes the socket with a normal-closure code and suppresses
// further reconnection. Idempotent.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.status == StatusDisconnected {
		c.mu.Unlock()
		return
	}
	shutdownCh := c.shutdownCh
	conn := c.conn
	c.setStatusLocked(StatusDisconnected)
	c.mu.Unlock()

	select {
	case <-shutdownCh:
	default:
		close(shutdownCh)
	}

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}

	c.persister.SaveCursor(c.GetLastCursor())
}

// Subscribe registers a new post-stream subscriber. Unsubscribe must be
// called to release it. The returned dropped pointer reports how many
// events have been dropped for this subscriber because it fell behind
// (the slow-consumer back-pressure counter).
func (c *Client) Subscribe() (id uint64, ch <-chan *PostEvent, dropped *uint64) {
	return c.posts.subscribe()
}

func (c *Client) Unsubscribe(id uint64) {
	c.posts.unsubscribe(id)
}

// SubscribeStatus registers a new connection-status subscriber.
func (c *Client) SubscribeStatus() (id uint64, ch <-chan ConnectionStatus) {
	return c.statusB.subscribe()
}

func (c *Client) UnsubscribeStatus(id uint64) {
	c.statusB.unsubscribe(id)
}

// GetLastCursor returns the externally observable cursor.
func (c *Client) GetLastCursor() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastCursor
}

// SetLastCursor overrides the externally observable cursor, e.g. after
// loading a persisted value at startup.
func (c *Client) SetLastCursor(cursor int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastCursor = cursor
}

// GetConnectionStatus returns the current status.
func (c *Client) GetConnectionStatus() ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// GetMetrics returns a point-in-time snapshot of the client's counters.
func (c *Client) GetMetrics() Metrics {
	totalReceived, postsNormalized, rate, lastMessageAt := c.metrics.snapshot()

	c.mu.Lock()
	status := c.status
	cursor := c.lastCursor
	attempts := c.reconnectAttempts
	c.mu.Unlock()

	return Metrics{
		TotalMessagesReceived: totalReceived,
		MessagesPerSecond:     rate,
		TotalPostsNormalized:  postsNormalized,
		Status:                status,
		LastCursor:            cursor,
		ReconnectAttempts:     attempts,
		LastMessageAt:         lastMessageAt,
	}
}

// IsMaxReconnectExhausted reports whether the reconnect budget has been
// spent. Callers should switch to a degraded mode and may call
// ResetReconnectState to try again.
func (c *Client) IsMaxReconnectExhausted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxExhausted
}

// ResetReconnectState clears the exhaustion flag and attempt counter,
// waking a paused run loop to retry immediately.
func (c *Client) ResetReconnectState() {
	c.mu.Lock()
	c.maxExhausted = false
	c.reconnectAttempts = 0
	c.mu.Unlock()

	select {
	case c.resetCh <- struct{}{}:
	default:
	}
}

func (c *Client) setStatusLocked(status ConnectionStatus) {
	c.status = status
	c.statusB.publish(status)
}

func (c *Client) endpoints() []string {
	eps := append([]string{c.cfg.Endpoint}, c.cfg.FailoverEndpoints...)
	return eps
}

func (c *Client) buildURL(base string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	for _, col := range c.cfg.WantedCollections {
		q.Add("wantedCollections", col)
	}
	if c.cfg.Compress {
		q.Set("compress", "true")
	}
	if cursor := c.GetLastCursor(); cursor > 0 {
		q.Set("cursor", fmt.Sprintf("%d", cursor))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// computeBackoff implements delay = min(initial*2^attempt, max) plus jitter
// uniformly distributed in [0, 25%] of that base.
func computeBackoff(attempt int, initial, max time.Duration) time.Duration {
	base := initial * (1 << uint(attempt))
	if base <= 0 || base > max {
		base = max
	}
	jitter := time.Duration(rand.Int63n(int64(base)/4 + 1))
	return base + jitter
}

func (c *Client) runLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.Disconnect()
			return
		default:
		}

		c.mu.Lock()
		shutdownCh := c.shutdownCh
		exhausted := c.maxExhausted
		c.mu.Unlock()

		select {
		case <-shutdownCh:
			return
		default:
		}

		if exhausted {
			select {
			case <-ctx.Done():
				return
			case <-shutdownCh:
				return
			case <-c.resetCh:
				c.mu.Lock()
				c.setStatusLocked(StatusConnecting)
				c.mu.Unlock()
			}
			continue
		}

		c.mu.Lock()
		ep := c.endpoints()[c.endpointIdx%len(c.endpoints())]
		target := c.buildURL(ep)
		c.mu.Unlock()

		err := c.connectAndRead(ctx, target)

		select {
		case <-shutdownCh:
			return
		default:
		}

		if err == nil {
			continue
		}

		log.Printf("[WARN] jetstreamclient: connection lost: %v", err)

		c.mu.Lock()
		c.reconnectAttempts++
		attempt := c.reconnectAttempts
		c.endpointIdx++

		if attempt > c.cfg.ReconnectMaxAttempts {
			c.maxExhausted = true
			c.setStatusLocked(StatusError)
			c.mu.Unlock()
			log.Printf("[ERROR] jetstreamclient: reconnect attempts exhausted (%d)", attempt-1)
			continue
		}

		c.setStatusLocked(StatusReconnecting)
		c.mu.Unlock()

		delay := computeBackoff(attempt-1, c.cfg.InitialBackoff, c.cfg.MaxBackoff)
		select {
		case <-ctx.Done():
			return
		case <-shutdownCh:
			return
		case <-time.After(delay):
		}
	}
}

func (c *Client) connectAndRead(ctx context.Context, target string) error {
	log.Printf("[INFO] jetstreamclient: connecting to %s", redactQuery(target))

	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		c.mu.Lock()
		c.setStatusLocked(StatusError)
		c.mu.Unlock()
		return fmt.Errorf("dial firehose: %w", err)
	}
	defer conn.Close()

	c.mu.Lock()
	c.conn = conn
	c.reconnectAttempts = 0
	c.setStatusLocked(StatusConnected)
	c.mu.Unlock()
	log.Printf("[INFO] jetstreamclient: connected")

	deadline := c.cfg.InactivityTimeout
	conn.SetReadDeadline(time.Now().Add(deadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(deadline))
		return nil
	})

	pingDone := make(chan struct{})
	defer close(pingDone)
	go c.pingLoop(conn, deadline, pingDone)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}

		c.metrics.recordReceived()

		frame, err := parseFrame(message)
		if err != nil {
			log.Printf("[WARN] jetstreamclient: parse error: %v", err)
			continue
		}

		if frame.timeUS > 0 {
			c.mu.Lock()
			c.lastCursor = frame.timeUS
			c.mu.Unlock()
			c.persister.SaveCursor(frame.timeUS)
		}

		if post := frame.toPostEvent(); post != nil {
			c.metrics.recordPostNormalized()
			c.posts.publish(post)
		}
	}
}

func (c *Client) pingLoop(conn *websocket.Conn, deadline time.Duration, done <-chan struct{}) {
	interval := deadline / 2
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
		}
	}
}

func redactQuery(target string) string {
	if idx := strings.Index(target, "?"); idx >= 0 {
		return target[:idx]
	}
	return target
}
