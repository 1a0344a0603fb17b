// Package cache holds the in-memory view of the vault: parsed task
// documents, a global id registry, and a SQLite secondary index for
// filtered queries. The markdown files stay the source of truth; the cache
// is rebuilt from them at startup and kept current by the watcher and the
// mutation engine.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"vaultd/internal/config"
	"vaultd/internal/effort"
	"vaultd/internal/errors"
	"vaultd/internal/events"
	"vaultd/internal/task"
	"vaultd/internal/taskfile"
)

// fileEntry is one tracked task file. doc is always the last successfully
// parsed document; parseErr records a later failure without discarding it.
type fileEntry struct {
	doc      *task.Document
	effort   string
	mtime    time.Time
	parsedAt time.Time
	parseErr string
}

// Cache is the vault cache. All exported methods are safe for concurrent
// use.
type Cache struct {
	cfg     *config.Config
	pub     events.Publisher
	log     *slog.Logger
	scanner *effort.Scanner

	mu       sync.RWMutex
	files    map[string]*fileEntry
	ids      map[string]string // task id -> file path
	efforts  map[string]*effort.Effort
	idx      *index
	focus    string
	loadedAt time.Time
}

// New creates an empty cache. Call Load to populate it.
func New(cfg *config.Config, pub events.Publisher, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if pub == nil {
		pub = events.NopPublisher{}
	}
	idx, err := openIndex()
	if err != nil {
		return nil, err
	}
	return &Cache{
		cfg:     cfg,
		pub:     pub,
		log:     logger,
		scanner: effort.NewScanner(cfg.VaultRoot, cfg.ExcludePatterns),
		files:   make(map[string]*fileEntry),
		ids:     make(map[string]string),
		efforts: make(map[string]*effort.Effort),
		idx:     idx,
	}, nil
}

// Close releases the secondary index.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.idx.Close()
}

// Load scans the vault and parses every effort's task file. Files are
// parsed in parallel; index updates are serialized under the cache lock. A
// single unreadable file is recorded, not fatal.
func (c *Cache) Load(ctx context.Context) error {
	efforts, err := c.scanner.Scan()
	if err != nil {
		return errors.Wrap(errors.CodeIOFailed, "scan efforts", err)
	}

	type parsed struct {
		path   string
		effort string
		doc    *task.Document
		mtime  time.Time
		err    error
	}

	var paths []struct{ path, effort string }
	for name, e := range efforts {
		if e.TasksFile != "" {
			paths = append(paths, struct{ path, effort string }{e.TasksFile, name})
		}
	}
	// Deterministic load order, so a cross-file id collision always blames
	// the same file.
	sort.Slice(paths, func(i, j int) bool { return paths[i].path < paths[j].path })

	results := make([]parsed, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, p := range paths {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			doc, mtime, err := parseWithMtime(p.path)
			results[i] = parsed{path: p.path, effort: p.effort, doc: doc, mtime: mtime, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	c.mu.Lock()
	c.efforts = efforts
	for _, r := range results {
		if r.err != nil {
			c.log.Warn("skipping unparseable task file", "path", r.path, "error", r.err)
			c.recordFileErrorLocked(r.path, r.effort, r.err)
			continue
		}
		if err := c.installLocked(r.path, r.effort, r.doc, r.mtime); err != nil {
			c.log.Warn("rejecting task file", "path", r.path, "error", err)
			c.recordFileErrorLocked(r.path, r.effort, err)
		}
	}
	c.loadedAt = time.Now()
	c.mu.Unlock()

	c.importLegacyFocus()

	c.log.Info("vault loaded",
		"efforts", len(efforts),
		"files", len(paths))
	return nil
}

// Rescan re-discovers efforts and reconciles the file store: files of
// vanished efforts are dropped, new efforts' files are loaded. This is the
// recovery path after manual directory moves.
func (c *Cache) Rescan() (*events.ScanResult, error) {
	efforts, err := c.scanner.Scan()
	if err != nil {
		return nil, errors.Wrap(errors.CodeIOFailed, "scan efforts", err)
	}

	tracked := make(map[string]string, len(efforts)) // path -> effort
	result := &events.ScanResult{Active: []string{}, Backlog: []string{}}
	for name, e := range efforts {
		if e.Status == effort.StatusBacklog {
			result.Backlog = append(result.Backlog, name)
		} else {
			result.Active = append(result.Active, name)
		}
		if e.TasksFile != "" {
			tracked[e.TasksFile] = name
		}
	}
	sort.Strings(result.Active)
	sort.Strings(result.Backlog)

	c.mu.Lock()
	c.efforts = efforts
	for path := range c.files {
		if _, ok := tracked[path]; !ok {
			c.dropLocked(path)
		}
	}
	var toLoad []struct{ path, effort string }
	for path, name := range tracked {
		if _, ok := c.files[path]; !ok {
			toLoad = append(toLoad, struct{ path, effort string }{path, name})
		}
	}
	c.mu.Unlock()
	sort.Slice(toLoad, func(i, j int) bool { return toLoad[i].path < toLoad[j].path })

	for _, p := range toLoad {
		if err := c.refreshPath(p.path, p.effort, true); err != nil {
			c.log.Warn("rescan refresh failed", "path", p.path, "error", err)
		}
	}

	c.pub.Publish(events.New(events.TypeEffortScanned, "", result))
	return result, nil
}

// Refresh re-parses one file after an external change. The watcher calls
// this; the engine's own writes are suppressed by the mtime check.
func (c *Cache) Refresh(path string) error {
	c.mu.RLock()
	entry, ok := c.files[path]
	var cachedMtime time.Time
	var effortName string
	if ok {
		cachedMtime = entry.mtime
		effortName = entry.effort
	}
	c.mu.RUnlock()

	if !ok {
		// A task file appearing in an untracked directory is picked up by
		// the next scan, not here.
		effortName = effort.NameFromTaskPath(path, c.cfg.VaultRoot)
		c.mu.RLock()
		_, known := c.efforts[effortName]
		c.mu.RUnlock()
		if !known {
			return errors.Newf(errors.CodeFileNotTracked, "file %s is not tracked", path)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrap(errors.CodeIOFailed, fmt.Sprintf("stat %s", path), err)
	}
	if ok && !info.ModTime().After(cachedMtime) {
		// Echo of our own atomic write, or nothing new on disk.
		return nil
	}

	return c.refreshPath(path, effortName, false)
}

func (c *Cache) refreshPath(path, effortName string, initial bool) error {
	doc, mtime, err := parseWithMtime(path)
	if err == nil {
		c.mu.Lock()
		err = c.installLocked(path, effortName, doc, mtime)
		c.mu.Unlock()
	}
	if err != nil {
		// Parse failure or cross-file id collision: keep the last good
		// version and surface the problem through cache_status.
		c.mu.Lock()
		c.recordFileErrorLocked(path, effortName, err)
		c.mu.Unlock()
		c.log.Warn("task file rejected, keeping last good version",
			"path", path, "error", err)
		c.pub.Publish(events.New(events.TypeFileBroken, effortName,
			events.FileChange{Path: path, Error: err.Error()}))
		return err
	}

	if !initial {
		c.pub.Publish(events.New(events.TypeFileChanged, effortName,
			events.FileChange{Path: path, TaskCount: len(doc.AllTasks())}))
	}
	return nil
}

// recordFileErrorLocked marks a path as failing without discarding its last
// good document. Caller holds c.mu.
func (c *Cache) recordFileErrorLocked(path, effortName string, err error) {
	if entry, ok := c.files[path]; ok {
		entry.parseErr = err.Error()
		return
	}
	c.files[path] = &fileEntry{
		doc:      taskfile.NewDocument(path, c.cfg.DefaultSection),
		effort:   effortName,
		parsedAt: time.Now(),
		parseErr: err.Error(),
	}
}

// RemoveFile drops a deleted file from the cache.
func (c *Cache) RemoveFile(path string) {
	c.mu.Lock()
	entry, ok := c.files[path]
	var effortName string
	if ok {
		effortName = entry.effort
		c.dropLocked(path)
	}
	c.mu.Unlock()

	if ok {
		c.pub.Publish(events.New(events.TypeFileRemoved, effortName,
			events.FileChange{Path: path}))
	}
}

// installLocked assigns ids to tasks that lack one, installs the document,
// and writes the file back when ids were assigned, so they survive the next
// restart. Caller holds c.mu.
func (c *Cache) installLocked(path, effortName string, doc *task.Document, mtime time.Time) error {
	assigned, err := c.assignMissingIDsLocked(doc)
	if err != nil {
		return err
	}
	if err := c.upsertLocked(path, effortName, doc, mtime); err != nil {
		return err
	}
	if assigned > 0 {
		if err := c.writeLocked(path, c.files[path]); err != nil {
			c.log.Error("id write-back failed", "path", path, "error", err)
			return err
		}
		c.log.Info("assigned task ids", "path", path, "count", assigned)
	}
	return nil
}

// assignMissingIDsLocked gives every id-less task in the document a fresh
// id, in memory only. Caller holds c.mu and is responsible for the
// write-back.
func (c *Cache) assignMissingIDsLocked(doc *task.Document) (int, error) {
	docIDs := make(map[string]bool)
	for _, t := range doc.AllTasks() {
		if t.ID != "" {
			docIDs[t.ID] = true
		}
	}
	taken := func(id string) bool {
		_, exists := c.ids[id]
		return exists || docIDs[id]
	}

	assigned := 0
	for _, t := range doc.AllTasks() {
		if t.ID != "" {
			continue
		}
		id, err := task.GenerateID(taken)
		if err != nil {
			return assigned, err
		}
		t.ID = id
		t.Tags.Set(task.TagID, id)
		docIDs[id] = true
		assigned++
	}
	return assigned, nil
}

// upsertLocked installs a parsed document. An id already owned by a
// different file is a hard error: the document is rejected whole and the
// previous version stays in place. Caller holds c.mu.
func (c *Cache) upsertLocked(path, effortName string, doc *task.Document, mtime time.Time) error {
	for _, t := range doc.AllTasks() {
		if t.ID == "" {
			continue
		}
		if owner, exists := c.ids[t.ID]; exists && owner != path {
			return errors.Newf(errors.CodeIDCollision,
				"task id %s in %s already belongs to %s", t.ID, path, owner).
				WithFix("assign a fresh id to one of the two tasks")
		}
	}

	// Release ids previously owned by this path, then register the
	// document's current set.
	for id, owner := range c.ids {
		if owner == path {
			delete(c.ids, id)
		}
	}
	for _, t := range doc.AllTasks() {
		if t.ID != "" {
			c.ids[t.ID] = path
		}
	}

	c.files[path] = &fileEntry{
		doc:      doc,
		effort:   effortName,
		mtime:    mtime,
		parsedAt: time.Now(),
	}
	if err := c.idx.replaceFile(path, effortName, doc); err != nil {
		c.log.Error("index update failed", "path", path, "error", err)
	}
	return nil
}

// dropLocked removes a file and its tasks. Caller holds c.mu.
func (c *Cache) dropLocked(path string) {
	for id, owner := range c.ids {
		if owner == path {
			delete(c.ids, id)
		}
	}
	delete(c.files, path)
	if err := c.idx.removeFile(path); err != nil {
		c.log.Error("index remove failed", "path", path, "error", err)
	}
}

// writeLocked formats the entry's document to disk and refreshes the id
// registry, index, and recorded mtime. Caller holds c.mu.
func (c *Cache) writeLocked(path string, entry *fileEntry) error {
	if err := taskfile.WriteFile(entry.doc); err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrap(errors.CodeIOFailed, fmt.Sprintf("stat %s after write", path), err)
	}
	entry.mtime = info.ModTime()
	entry.parsedAt = time.Now()
	entry.parseErr = ""
	return c.upsertLocked(path, entry.effort, entry.doc, entry.mtime)
}

func parseWithMtime(path string) (*task.Document, time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, time.Time{}, errors.Wrap(errors.CodeIOFailed, fmt.Sprintf("stat %s", path), err)
	}
	doc, err := taskfile.ParseFile(path)
	if err != nil {
		return nil, time.Time{}, err
	}
	return doc, info.ModTime(), nil
}

// FileError is a per-file problem surfaced by Stats.
type FileError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// Stats is the cache_status payload.
type Stats struct {
	VaultRoot string              `json:"vault_root"`
	Files     int                 `json:"files"`
	Tasks     int                 `json:"tasks"`
	Efforts   int                 `json:"efforts"`
	ByStatus  map[task.Status]int `json:"by_status"`
	Focused   string              `json:"focused_effort,omitempty"`
	LoadedAt  time.Time           `json:"loaded_at"`
	Errors    []FileError         `json:"errors,omitempty"`
}

// Stats reports cache health and aggregate counts.
func (c *Cache) Stats() (*Stats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	byStatus, err := c.idx.countByStatus("")
	if err != nil {
		return nil, err
	}
	total := 0
	for _, n := range byStatus {
		total += n
	}

	s := &Stats{
		VaultRoot: c.cfg.VaultRoot,
		Files:     len(c.files),
		Tasks:     total,
		Efforts:   len(c.efforts),
		ByStatus:  byStatus,
		Focused:   c.focus,
		LoadedAt:  c.loadedAt,
	}
	paths := make([]string, 0, len(c.files))
	for path := range c.files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		if msg := c.files[path].parseErr; msg != "" {
			s.Errors = append(s.Errors, FileError{Path: path, Error: msg})
		}
	}
	return s, nil
}
