package cursorstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreSaveThenFlushPersistsLatest(t *testing.T) {
	s, err := NewStore(Options{Backend: "memory"})
	require.NoError(t, err)

	s.SaveCursor(100)
	s.SaveCursor(200)
	require.NoError(t, s.Flush())

	cursor, ok, err := s.LoadCursor()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(200), cursor)
}

func TestFlushIsNoOpWhenUnchanged(t *testing.T) {
	s, err := NewStore(Options{Backend: "memory"})
	require.NoError(t, err)

	s.SaveCursor(50)
	require.NoError(t, s.Flush())
	require.NoError(t, s.Flush())

	cursor, ok, err := s.LoadCursor()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(50), cursor)
}

func TestSaveCursorNeverRegresses(t *testing.T) {
	s, err := NewStore(Options{Backend: "memory"})
	require.NoError(t, err)

	s.SaveCursor(300)
	s.SaveCursor(100) // older value must not overwrite the pending slot
	require.NoError(t, s.Flush())

	cursor, _, err := s.LoadCursor()
	require.NoError(t, err)
	assert.Equal(t, int64(300), cursor)
}

func TestFileBackendRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cursor.json")
	s, err := NewStore(Options{Backend: "file", FilePath: path})
	require.NoError(t, err)

	s.SaveCursor(1737000000000000)
	require.NoError(t, s.Flush())

	s2, err := NewStore(Options{Backend: "file", FilePath: path})
	require.NoError(t, err)
	cursor, ok, err := s2.LoadCursor()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1737000000000000), cursor)
}

func TestRemoteKVBackendFailsFast(t *testing.T) {
	_, err := NewStore(Options{Backend: "remote-kv"})
	assert.ErrorIs(t, err, ErrBackendNotImplemented)
}

func TestAutoSaveFlushesOnInterval(t *testing.T) {
	s, err := NewStore(Options{Backend: "memory"})
	require.NoError(t, err)

	s.SaveCursor(7)
	s.StartAutoSave(20 * time.Millisecond)
	defer s.StopAutoSave()

	require.Eventually(t, func() bool {
		cursor, ok, _ := s.LoadCursor()
		return ok && cursor == 7
	}, time.Second, 10*time.Millisecond)
}

func TestClearCursorRemovesPersistedState(t *testing.T) {
	s, err := NewStore(Options{Backend: "memory"})
	require.NoError(t, err)

	s.SaveCursor(9)
	require.NoError(t, s.Flush())
	require.NoError(t, s.ClearCursor())

	_, ok, err := s.LoadCursor()
	require.NoError(t, err)
	assert.False(t, ok)
}
