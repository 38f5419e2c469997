package jetstreamclient

import (
	"sync"
	"time"
)

// metricsWindow is the rolling window over which messages-per-second is
// computed.
const metricsWindow = 60 * time.Second

// Metrics is a point-in-time snapshot of the client's counters.
type Metrics struct {
	TotalMessagesReceived   int64
	MessagesPerSecond       float64
	TotalPostsNormalized    int64
	Status                  ConnectionStatus
	LastCursor              int64
	ReconnectAttempts       int
	LastMessageAt           time.Time
}

type metricsState struct {
	mu sync.Mutex

	totalReceived int64
	postsNormalized int64
	lastMessageAt time.Time

	windowStart time.Time
	windowCount int64
	rate        float64
}

func newMetricsState() *metricsState {
	return &metricsState{windowStart: time.Now()}
}

func (m *metricsState) recordReceived() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalReceived++
	m.lastMessageAt = time.Now()

	m.windowCount++
	elapsed := time.Since(m.windowStart)
	if elapsed >= metricsWindow {
		m.rate = float64(m.windowCount) / elapsed.Seconds()
		m.windowCount = 0
		m.windowStart = time.Now()
	}
}

func (m *metricsState) recordPostNormalized() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.postsNormalized++
}

func (m *metricsState) snapshot() (totalReceived, postsNormalized int64, rate float64, lastMessageAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rate = m.rate
	if elapsed := time.Since(m.windowStart); elapsed > 0 && m.windowCount > 0 {
		// Provide a live estimate mid-window rather than only at window
		// rollover.
		rate = float64(m.windowCount) / elapsed.Seconds()
	}
	return m.totalReceived, m.postsNormalized, rate, m.lastMessageAt
}
