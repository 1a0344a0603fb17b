// Package watcher keeps the cache current with external edits to task
// files. The primary implementation rides fsnotify; a polling fallback
// covers filesystems without inotify support.
package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"vaultd/internal/effort"
	"vaultd/internal/taskfile"
)

// Store is the cache surface the watcher drives.
type Store interface {
	Refresh(path string) error
	RemoveFile(path string)
}

// Config configures a Watcher.
type Config struct {
	// VaultRoot is the vault directory; the watcher covers its efforts
	// tree.
	VaultRoot string
	// Store receives refresh and removal calls.
	Store Store
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Debounce is the quiet window before a change fires (default 300ms).
	Debounce time.Duration
	// SkipPatterns are doublestar globs for directory names to ignore, in
	// addition to the scanner's built-in exclusions.
	SkipPatterns []string
}

// Watcher monitors the efforts tree for task file changes.
type Watcher struct {
	effortsRoot  string
	store        Store
	logger       *slog.Logger
	skipPatterns []string

	fsWatcher *fsnotify.Watcher
	debouncer *Debouncer

	hashesMu sync.RWMutex
	hashes   map[string]string

	done chan struct{}
}

// New creates a watcher. Call Start to begin delivering events.
func New(cfg *Config) (*Watcher, error) {
	if cfg == nil || cfg.Store == nil {
		return nil, fmt.Errorf("watcher: store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	patterns := append([]string{}, effort.DefaultSkipPatterns...)
	patterns = append(patterns, cfg.SkipPatterns...)

	w := &Watcher{
		effortsRoot:  filepath.Join(cfg.VaultRoot, effort.EffortsDirName),
		store:        cfg.Store,
		logger:       logger,
		skipPatterns: patterns,
		fsWatcher:    fsWatcher,
		hashes:       make(map[string]string),
		done:         make(chan struct{}),
	}
	w.debouncer = NewDebouncer(debounce, w.handleChange)
	w.debouncer.SetDeleteCallback(w.handleDelete)
	return w, nil
}

// Start installs the filesystem watches and launches the event loop. It
// returns once watching is active; the loop runs until the context is
// cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	// Watch the vault root too, so an efforts directory created later is
	// picked up.
	if err := w.fsWatcher.Add(filepath.Dir(w.effortsRoot)); err != nil {
		w.logger.Warn("failed to watch vault root", "error", err)
	}
	if _, err := os.Stat(w.effortsRoot); err == nil {
		if err := w.addWatchRecursive(w.effortsRoot); err != nil {
			w.logger.Warn("failed to add initial watches", "error", err)
		}
	}
	w.logger.Info("file watcher started", "root", w.effortsRoot)

	go w.run(ctx)
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("fsnotify error", "error", err)
		}
	}
}

// Stop shuts the watcher down. Safe to call more than once.
func (w *Watcher) Stop() error {
	select {
	case <-w.done:
		return nil
	default:
		close(w.done)
	}
	w.debouncer.Stop()
	if err := w.fsWatcher.Close(); err != nil {
		return fmt.Errorf("close fsnotify watcher: %w", err)
	}
	w.logger.Info("file watcher stopped")
	return nil
}

// Done is closed when the watcher stops.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

func (w *Watcher) addWatchRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.skipped(path) {
			return filepath.SkipDir
		}
		if err := w.fsWatcher.Add(path); err != nil {
			w.logger.Debug("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

// skipped reports whether any path segment below the efforts root matches
// an exclusion pattern.
func (w *Watcher) skipped(path string) bool {
	rel, err := filepath.Rel(w.effortsRoot, path)
	if err != nil || rel == "." {
		return false
	}
	for _, segment := range strings.Split(filepath.ToSlash(rel), "/") {
		for _, pattern := range w.skipPatterns {
			if ok, err := doublestar.Match(pattern, segment); err == nil && ok {
				return true
			}
		}
	}
	return false
}

func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	path := event.Name

	if event.Has(fsnotify.Create) {
		if path == w.effortsRoot {
			w.logger.Info("efforts directory created, adding watches")
			if err := w.addWatchRecursive(path); err != nil {
				w.logger.Warn("failed to watch efforts directory", "error", err)
			}
			return
		}
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if strings.HasPrefix(path, w.effortsRoot) && !w.skipped(path) {
				if err := w.fsWatcher.Add(path); err != nil {
					w.logger.Debug("failed to watch new directory", "path", path, "error", err)
				}
			}
			return
		}
	}

	if !strings.HasPrefix(path, w.effortsRoot) || w.skipped(path) {
		return
	}
	if !taskfile.IsTaskFile(filepath.Base(path)) {
		return
	}

	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		w.removeHash(path)
		w.debouncer.TriggerDelete(path)
		return
	}
	if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
		// The file is back; a pending delete was a rename artifact.
		w.debouncer.CancelDelete(path)
		w.debouncer.Trigger(path)
	}
}

// handleChange runs after the debounce window. Content hashing filters
// touch-only events and editor noise.
func (w *Watcher) handleChange(path string) {
	changed, err := w.contentChanged(path)
	if err != nil {
		w.logger.Debug("failed to check content", "path", path, "error", err)
		return
	}
	if !changed {
		w.logger.Debug("content unchanged, skipping", "path", path)
		return
	}
	if err := w.store.Refresh(path); err != nil {
		w.logger.Warn("refresh failed", "path", path, "error", err)
	}
}

func (w *Watcher) handleDelete(path string) {
	w.store.RemoveFile(path)
}

func (w *Watcher) contentChanged(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return false, err
	}
	sum := hex.EncodeToString(h.Sum(nil))

	w.hashesMu.Lock()
	defer w.hashesMu.Unlock()
	if w.hashes[path] == sum {
		return false, nil
	}
	w.hashes[path] = sum
	return true, nil
}

func (w *Watcher) removeHash(path string) {
	w.hashesMu.Lock()
	defer w.hashesMu.Unlock()
	delete(w.hashes, path)
}
