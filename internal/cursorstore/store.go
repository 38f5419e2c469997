// Package cursorstore durably remembers the latest firehose cursor so a
// restarted process can resume without replay loss beyond the upstream
// firehose's own retention.
package cursorstore

import (
	"log"
	"sync"
	"time"
)

// Store batches writes to a pluggable backend: at most one backend write
// occurs between two flushes, and only if the pending cursor changed.
type Store struct {
	backend backend

	mu          sync.Mutex
	pending     int64
	pendingSet  bool
	lastSaved   int64
	writeErrors int64

	autoSaveMu     sync.Mutex
	autoSaveTicker *time.Ticker
	autoSaveDone   chan struct{}
	autoSaveRunning bool
}

// Options configures a Store.
type Options struct {
	Backend  string // memory, file, remote-kv
	FilePath string
}

// NewStore constructs a Store with the named backend. remote-kv returns
// ErrBackendNotImplemented immediately rather than silently behaving like
// memory.
func NewStore(opts Options) (*Store, error) {
	b, err := newBackend(opts.Backend, opts.FilePath)
	if err != nil {
		return nil, err
	}
	return &Store{backend: b}, nil
}

// SaveCursor records c as pending; it does not immediately write.
func (s *Store) SaveCursor(c int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// The pending slot holds only the latest value: never overwrite a
	// newer pending cursor with an older one.
	if s.pendingSet && c < s.pending {
		return
	}
	s.pending = c
	s.pendingSet = true
}

// SaveCursorImmediate records c and flushes synchronously.
func (s *Store) SaveCursorImmediate(c int64) error {
	s.SaveCursor(c)
	return s.Flush()
}

// LoadCursor returns the most recently persisted cursor, if any.
func (s *Store) LoadCursor() (int64, bool, error) {
	rec, err := s.backend.read()
	if err != nil {
		return 0, false, err
	}
	if rec == nil {
		return 0, false, nil
	}
	return rec.Cursor, true, nil
}

// ClearCursor removes persisted state.
func (s *Store) ClearCursor() error {
	s.mu.Lock()
	s.pending = 0
	s.pendingSet = false
	s.lastSaved = 0
	s.mu.Unlock()
	return s.backend.clear()
}

// Flush writes the pending value if and only if it differs from the last
// saved value. Idempotent: calling it twice in a row with no intervening
// SaveCursor performs at most one write.
func (s *Store) Flush() error {
	s.mu.Lock()
	if !s.pendingSet || s.pending == s.lastSaved {
		s.mu.Unlock()
		return nil
	}
	cursor := s.pending
	s.mu.Unlock()

	rec := Record{Cursor: cursor, SavedAt: time.Now().UTC()}
	if err := s.backend.write(rec); err != nil {
		s.mu.Lock()
		s.writeErrors++
		s.mu.Unlock()
		log.Printf("[ERROR] cursorstore: flush failed, pending cursor retained: %v", err)
		return err
	}

	s.mu.Lock()
	s.lastSaved = cursor
	s.mu.Unlock()
	return nil
}

// StartAutoSave begins a periodic flush at the given interval. Calling it
// twice without an intervening StopAutoSave is a no-op.
func (s *Store) StartAutoSave(interval time.Duration) {
	s.autoSaveMu.Lock()
	defer s.autoSaveMu.Unlock()

	if s.autoSaveRunning {
		return
	}
	s.autoSaveTicker = time.NewTicker(interval)
	s.autoSaveDone = make(chan struct{})
	s.autoSaveRunning = true

	ticker := s.autoSaveTicker
	done := s.autoSaveDone

	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := s.Flush(); err != nil {
					log.Printf("[WARN] cursorstore: auto-save flush error: %v", err)
				}
			}
		}
	}()
}

// StopAutoSave stops the periodic flush started by StartAutoSave. A flush
// during shutdown is always attempted afterward by the caller.
func (s *Store) StopAutoSave() {
	s.autoSaveMu.Lock()
	defer s.autoSaveMu.Unlock()

	if !s.autoSaveRunning {
		return
	}
	s.autoSaveTicker.Stop()
	close(s.autoSaveDone)
	s.autoSaveRunning = false
}

// WriteErrors reports how many backend write attempts have failed.
func (s *Store) WriteErrors() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeErrors
}
