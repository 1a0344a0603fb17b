package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"vaultd/internal/effort"
	"vaultd/internal/taskfile"
)

// Poller is the fallback watcher for filesystems where inotify does not
// work (NFS, some containers, network mounts). It walks the efforts tree
// on a fixed interval and diffs modification times.
type Poller struct {
	effortsRoot string
	store       Store
	logger      *slog.Logger
	interval    time.Duration

	mtimes map[string]time.Time
	done   chan struct{}
}

// NewPoller creates a poller with the given scan interval (default 2s).
func NewPoller(vaultRoot string, store Store, logger *slog.Logger, interval time.Duration) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Poller{
		effortsRoot: filepath.Join(vaultRoot, effort.EffortsDirName),
		store:       store,
		logger:      logger,
		interval:    interval,
		mtimes:      make(map[string]time.Time),
		done:        make(chan struct{}),
	}
}

// Start primes the mtime table and launches the poll loop. It returns once
// polling is active; the loop runs until the context is cancelled. The
// priming sweep fires no refreshes; the cache already loaded those files.
func (p *Poller) Start(ctx context.Context) error {
	p.sweep(true)
	p.logger.Info("poll watcher started", "root", p.effortsRoot, "interval", p.interval)

	go p.run(ctx)
	return nil
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poll watcher stopped")
			return
		case <-ticker.C:
			p.sweep(false)
		}
	}
}

// Done is closed when the poller stops.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

func (p *Poller) sweep(prime bool) {
	seen := make(map[string]time.Time)
	filepath.WalkDir(p.effortsRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || !taskfile.IsTaskFile(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		seen[path] = info.ModTime()
		return nil
	})

	for path, mtime := range seen {
		last, known := p.mtimes[path]
		if prime {
			continue
		}
		if !known || mtime.After(last) {
			if err := p.store.Refresh(path); err != nil {
				p.logger.Warn("refresh failed", "path", path, "error", err)
			}
		}
	}
	for path := range p.mtimes {
		if _, still := seen[path]; !still && !prime {
			p.store.RemoveFile(path)
		}
	}
	p.mtimes = seen
}
