package watcher

import (
	"os"
	"sync"
	"time"
)

// debounceEntry tracks one pending change event.
type debounceEntry struct {
	timer *time.Timer
}

// Debouncer coalesces rapid change events per path: editors fire several
// writes per save, and a task file write often arrives as a temp-write plus
// rename. The callback fires after a quiet period; deletes are verified
// after a shorter delay so rename sequences never surface as removals.
type Debouncer struct {
	mu             sync.Mutex
	pending        map[string]*debounceEntry
	pendingDeletes map[string]*debounceEntry
	interval       time.Duration
	deleteInterval time.Duration
	callback       func(path string)
	deleteCallback func(path string)
	stopped        bool
}

// NewDebouncer creates a debouncer with the given quiet interval.
func NewDebouncer(interval time.Duration, callback func(path string)) *Debouncer {
	return &Debouncer{
		pending:        make(map[string]*debounceEntry),
		pendingDeletes: make(map[string]*debounceEntry),
		interval:       interval,
		deleteInterval: 100 * time.Millisecond,
		callback:       callback,
	}
}

// SetDeleteCallback sets the callback for verified deletions.
func (d *Debouncer) SetDeleteCallback(callback func(path string)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deleteCallback = callback
}

// Trigger registers a change event. A pending event for the same path has
// its timer reset.
func (d *Debouncer) Trigger(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if entry, exists := d.pending[path]; exists {
		entry.timer.Stop()
	}
	d.pending[path] = &debounceEntry{
		timer: time.AfterFunc(d.interval, func() {
			d.fire(path)
		}),
	}
}

func (d *Debouncer) fire(path string) {
	d.mu.Lock()
	_, exists := d.pending[path]
	if !exists || d.stopped {
		d.mu.Unlock()
		return
	}
	delete(d.pending, path)
	callback := d.callback
	d.mu.Unlock()

	callback(path)
}

// TriggerDelete schedules a delete verification. The callback fires only
// if the file is still gone after the delay; atomic saves and git
// checkouts produce Remove+Create pairs that must not count.
func (d *Debouncer) TriggerDelete(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if entry, exists := d.pendingDeletes[path]; exists {
		entry.timer.Stop()
	}
	d.pendingDeletes[path] = &debounceEntry{
		timer: time.AfterFunc(d.deleteInterval, func() {
			d.fireDelete(path)
		}),
	}
}

// CancelDelete cancels a pending delete verification, called when the file
// reappears.
func (d *Debouncer) CancelDelete(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if entry, exists := d.pendingDeletes[path]; exists {
		entry.timer.Stop()
		delete(d.pendingDeletes, path)
	}
}

func (d *Debouncer) fireDelete(path string) {
	d.mu.Lock()
	_, exists := d.pendingDeletes[path]
	if !exists || d.stopped {
		d.mu.Unlock()
		return
	}
	delete(d.pendingDeletes, path)
	callback := d.deleteCallback
	d.mu.Unlock()

	if _, err := os.Stat(path); err == nil {
		// Still there: rename or atomic save, not a deletion.
		return
	}
	if callback != nil {
		callback(path)
	}
}

// Stop cancels all pending timers and rejects new events.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	for path, entry := range d.pending {
		entry.timer.Stop()
		delete(d.pending, path)
	}
	for path, entry := range d.pendingDeletes {
		entry.timer.Stop()
		delete(d.pendingDeletes, path)
	}
}

// PendingCount returns the number of pending change events.
func (d *Debouncer) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
