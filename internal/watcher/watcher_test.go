package watcher

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWatcher(t *testing.T) *Watcher {
	t.Helper()

	w, err := New(&Config{DebounceInterval: 50 * time.Millisecond})
	require.NoError(t, err)

	go func() { _ = w.Start() }()
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestDebouncedGroupCallback(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.graphql")
	b := filepath.Join(dir, "b.graphql")
	require.NoError(t, os.WriteFile(a, []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("b"), 0o644))

	w := newWatcher(t)
	var calls atomic.Int32
	require.NoError(t, w.WatchGroup("schema", []string{a, b}, func() { calls.Add(1) }))

	require.NoError(t, os.WriteFile(a, []byte("a2"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("b2"), 0o644))

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestUnrelatedFilesAreIgnored(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "gqutils.yaml")
	require.NoError(t, os.WriteFile(watched, []byte("name: x"), 0o644))

	w := newWatcher(t)
	var calls atomic.Int32
	require.NoError(t, w.Watch(watched, func() { calls.Add(1) }))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644))
	time.Sleep(200 * time.Millisecond)
	assert.Zero(t, calls.Load())
}

func TestWatchGroupReplacesFiles(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.graphql")
	cur := filepath.Join(dir, "new.graphql")
	require.NoError(t, os.WriteFile(old, []byte("old"), 0o644))
	require.NoError(t, os.WriteFile(cur, []byte("new"), 0o644))

	w := newWatcher(t)
	var calls atomic.Int32
	callback := func() { calls.Add(1) }

	require.NoError(t, w.WatchGroup("schema", []string{old}, callback))
	require.NoError(t, w.WatchGroup("schema", []string{cur}, callback))

	w.mu.Lock()
	_, oldWatched := w.files[old]
	_, curWatched := w.files[cur]
	w.mu.Unlock()
	assert.False(t, oldWatched)
	assert.True(t, curWatched)

	require.NoError(t, os.WriteFile(old, []byte("old2"), 0o644))
	time.Sleep(200 * time.Millisecond)
	assert.Zero(t, calls.Load())

	require.NoError(t, os.WriteFile(cur, []byte("new2"), 0o644))
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestCloseIsIdempotent(t *testing.T) {
	w, err := New(DefaultConfig())
	require.NoError(t, err)

	assert.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}
