package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu        sync.Mutex
	refreshed []string
	removed   []string
}

func (s *fakeStore) Refresh(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshed = append(s.refreshed, path)
	return nil
}

func (s *fakeStore) RemoveFile(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, path)
}

func (s *fakeStore) refreshCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.refreshed)
}

func (s *fakeStore) removeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.removed)
}

func (s *fakeStore) firstRefreshed() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.refreshed) == 0 {
		return ""
	}
	return s.refreshed[0]
}

func (s *fakeStore) firstRemoved() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.removed) == 0 {
		return ""
	}
	return s.removed[0]
}

// startWatcher runs a watcher over a fresh vault and returns its root.
func startWatcher(t *testing.T) (string, *fakeStore) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "efforts", "alpha"), 0o755))

	store := &fakeStore{}
	w, err := New(&Config{
		VaultRoot: root,
		Store:     store,
		Debounce:  50 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	t.Cleanup(func() {
		cancel()
		<-w.Done()
	})
	return root, store
}

func TestWatcherStartReturnsPromptly(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "efforts", "alpha"), 0o755))

	w, err := New(&Config{VaultRoot: root, Store: &fakeStore{}})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		<-w.Done()
	}()

	started := make(chan error, 1)
	go func() { started <- w.Start(ctx) }()
	select {
	case err := <-started:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return; the event loop must run in the background")
	}
}

func TestWatcherRefreshOnWrite(t *testing.T) {
	root, store := startWatcher(t)
	path := filepath.Join(root, "efforts", "alpha", "TASKS.md")

	require.NoError(t, os.WriteFile(path, []byte("## Active\n\n- [ ] One\n"), 0o644))
	waitFor(t, func() bool { return store.refreshCount() >= 1 })
	assert.Equal(t, path, store.firstRefreshed())
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	root, store := startWatcher(t)

	require.NoError(t, os.WriteFile(filepath.Join(root, "efforts", "alpha", "notes.md"),
		[]byte("scratch\n"), 0o644))
	time.Sleep(300 * time.Millisecond)
	assert.Zero(t, store.refreshCount())
}

func TestWatcherSkipsUnchangedContent(t *testing.T) {
	root, store := startWatcher(t)
	path := filepath.Join(root, "efforts", "alpha", "TASKS.md")
	content := []byte("## Active\n\n- [ ] One\n")

	require.NoError(t, os.WriteFile(path, content, 0o644))
	waitFor(t, func() bool { return store.refreshCount() == 1 })

	// Identical rewrite is filtered by the content hash.
	require.NoError(t, os.WriteFile(path, content, 0o644))
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, store.refreshCount())
}

func TestWatcherRemoveOnDelete(t *testing.T) {
	root, store := startWatcher(t)
	path := filepath.Join(root, "efforts", "alpha", "TASKS.md")

	require.NoError(t, os.WriteFile(path, []byte("## Active\n"), 0o644))
	waitFor(t, func() bool { return store.refreshCount() >= 1 })

	require.NoError(t, os.Remove(path))
	waitFor(t, func() bool { return store.removeCount() == 1 })
	assert.Equal(t, path, store.firstRemoved())
}

func TestWatcherAtomicSaveIsNotADelete(t *testing.T) {
	root, store := startWatcher(t)
	dir := filepath.Join(root, "efforts", "alpha")
	path := filepath.Join(dir, "TASKS.md")

	require.NoError(t, os.WriteFile(path, []byte("## Active\n"), 0o644))
	waitFor(t, func() bool { return store.refreshCount() >= 1 })

	// Atomic save: write a temp file, rename over the original.
	tmp := filepath.Join(dir, ".tmp-save")
	require.NoError(t, os.WriteFile(tmp, []byte("## Active\n\n- [ ] New\n"), 0o644))
	require.NoError(t, os.Rename(tmp, path))

	waitFor(t, func() bool { return store.refreshCount() >= 2 })
	time.Sleep(300 * time.Millisecond)
	assert.Zero(t, store.removeCount())
}

func TestWatcherPicksUpNewEffortDir(t *testing.T) {
	root, store := startWatcher(t)

	dir := filepath.Join(root, "efforts", "beta")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	time.Sleep(200 * time.Millisecond)

	path := filepath.Join(dir, "TASKS.md")
	require.NoError(t, os.WriteFile(path, []byte("## Active\n"), 0o644))
	waitFor(t, func() bool { return store.refreshCount() >= 1 })
}

func TestWatcherSkipsExcludedDirs(t *testing.T) {
	root, store := startWatcher(t)

	dir := filepath.Join(root, "efforts", "__ideas")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	time.Sleep(200 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "TASKS.md"), []byte("## Active\n"), 0o644))
	time.Sleep(300 * time.Millisecond)
	assert.Zero(t, store.refreshCount())
}

func TestPoller(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "efforts", "alpha")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, "TASKS.md")
	require.NoError(t, os.WriteFile(path, []byte("## Active\n"), 0o644))

	store := &fakeStore{}
	p := NewPoller(root, store, nil, 50*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Start(ctx))
	defer func() {
		cancel()
		<-p.Done()
	}()

	// The priming sweep must not refresh pre-existing files.
	time.Sleep(200 * time.Millisecond)
	assert.Zero(t, store.refreshCount())

	// A newer mtime triggers a refresh.
	require.NoError(t, os.WriteFile(path, []byte("## Active\n\n- [ ] One\n"), 0o644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))
	waitFor(t, func() bool { return store.refreshCount() >= 1 })

	// Deletion is noticed on the next sweep.
	require.NoError(t, os.Remove(path))
	waitFor(t, func() bool { return store.removeCount() == 1 })
}

func TestPollerStartReturnsPromptly(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "efforts", "alpha"), 0o755))

	p := NewPoller(root, &fakeStore{}, nil, 50*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		<-p.Done()
	}()

	started := make(chan error, 1)
	go func() { started <- p.Start(ctx) }()
	select {
	case err := <-started:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return; the poll loop must run in the background")
	}
}
