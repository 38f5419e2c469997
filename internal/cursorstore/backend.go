package cursorstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrBackendNotImplemented is returned by NewStore when remote-kv is
// selected: a deliberate fail-fast stub rather than a silent fallback to
// memory persistence.
var ErrBackendNotImplemented = errors.New("cursorstore: backend not implemented")

// Record is the persisted shape: a cursor plus when it was saved and
// optional implementation metadata.
type Record struct {
	Cursor   int64                  `json:"cursor,string"`
	SavedAt  time.Time              `json:"savedAt"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// backend is the storage contract a cursor persistence backend satisfies.
type backend interface {
	write(rec Record) error
	read() (*Record, error)
	clear() error
}

// memoryBackend keeps the record process-local only.
type memoryBackend struct {
	rec *Record
}

func newMemoryBackend() *memoryBackend { return &memoryBackend{} }

func (b *memoryBackend) write(rec Record) error {
	r := rec
	b.rec = &r
	return nil
}

func (b *memoryBackend) read() (*Record, error) {
	if b.rec == nil {
		return nil, nil
	}
	r := *b.rec
	return &r, nil
}

func (b *memoryBackend) clear() error {
	b.rec = nil
	return nil
}

// fileBackend stores a single JSON document, written atomically by writing
// to a temp file in the same directory and renaming over the target.
type fileBackend struct {
	path string
}

func newFileBackend(path string) *fileBackend { return &fileBackend{path: path} }

func (b *fileBackend) write(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal cursor record: %w", err)
	}

	dir := filepath.Dir(b.path)
	tmp, err := os.CreateTemp(dir, ".cursor-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp cursor file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp cursor file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp cursor file: %w", err)
	}

	if err := os.Rename(tmpPath, b.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename cursor file: %w", err)
	}
	return nil
}

func (b *fileBackend) read() (*Record, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read cursor file: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal cursor file: %w", err)
	}
	return &rec, nil
}

func (b *fileBackend) clear() error {
	err := os.Remove(b.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove cursor file: %w", err)
	}
	return nil
}

// newBackend constructs the backend named by kind. remote-kv is a
// deliberate, documented stub: it fails immediately instead of silently
// behaving like memory.
func newBackend(kind, filePath string) (backend, error) {
	switch kind {
	case "", "memory":
		return newMemoryBackend(), nil
	case "file":
		return newFileBackend(filePath), nil
	case "remote-kv":
		return nil, fmt.Errorf("%w: remote-kv cursor persistence is not built", ErrBackendNotImplemented)
	default:
		return nil, fmt.Errorf("cursorstore: unknown backend %q", kind)
	}
}
