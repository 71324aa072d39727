// Package watcher observes a skills root for filesystem changes and emits
// debounced, coalesced sync events: the Live-Wire Watcher.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/flexigpt/skillcore-go/spec"
)

// State is the watcher's explicit state machine position.
type State int

const (
	StateStopped State = iota
	StateRunning
	StateSyncing
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateSyncing:
		return "syncing"
	default:
		return "stopped"
	}
}

// Summary is delivered to every subscriber callback after a sync completes
// with at least one add/modify/delete.
type Summary struct {
	Added    int
	Modified int
	Deleted  int
	Total    int
}

// Stats accumulates lifetime counters across every event the watcher has
// observed, independent of how they were later batched into syncs.
type Stats struct {
	Created           int
	Modified          int
	Deleted           int
	ValidationRejected int
	SyncsRun          int
	SyncsFailed       int
}

// Syncer is the subset of the Sync Engine the watcher drives.
type Syncer interface {
	Sync(ctx context.Context, changeset []string) (spec.SyncResult, error)
}

// Validator pre-screens a changed file's syntax before a sync is queued.
// A failing file is logged and dropped: no sync, no crash.
type Validator interface {
	ValidateSyntax(path string) error
}

var scriptExts = map[string]bool{".sh": true, ".py": true, ".go": true, ".js": true, ".ts": true, ".md": true}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger overrides the watcher's logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce overrides the cooldown window between accepted events.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithValidator installs a pre-sync syntax validator.
func WithValidator(v Validator) Option {
	return func(w *Watcher) { w.validator = v }
}

// Watcher is one fsnotify-backed observer per skills root, singleton
// within a host process.
type Watcher struct {
	root     string
	sync     Syncer
	logger   *slog.Logger
	debounce time.Duration
	validator Validator

	mu           sync.Mutex
	state        State
	fsWatcher    *fsnotify.Watcher
	lastAccepted time.Time
	pendingPaths map[string]bool
	stats        Stats

	subsMu      sync.RWMutex
	subscribers []func(Summary)

	stopCh chan struct{}
	doneCh chan struct{}
}

// New builds a Watcher over root, driving syncer on qualifying events.
func New(root string, syncer Syncer, opts ...Option) *Watcher {
	w := &Watcher{
		root:         root,
		sync:         syncer,
		logger:       slog.Default(),
		debounce:     time.Second,
		pendingPaths: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Subscribe registers a callback invoked after each successful sync with
// at least one change. Callbacks must be side-effect-tolerant and fast;
// dispatch long work elsewhere.
func (w *Watcher) Subscribe(cb func(Summary)) {
	w.subsMu.Lock()
	defer w.subsMu.Unlock()
	w.subscribers = append(w.subscribers, cb)
}

// State returns the watcher's current state machine position.
func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Start begins watching the skills root. Non-blocking; the event loop runs
// in a goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.state != StateStopped {
		w.mu.Unlock()
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return spec.NewError(spec.KindInternal, "watcher.Start", err)
	}
	// fsnotify watches are not recursive, so every directory under the root
	// that exists at Start gets its own watch; directories created later are
	// not added.
	addErr := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.Add(path)
		}
		return nil
	})
	if addErr != nil {
		w.logger.Warn("watcher: initial add failed, directory may not exist yet", "root", w.root, "error", addErr)
	}

	w.fsWatcher = fw
	w.state = StateRunning
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	go w.run(ctx)
	return nil
}

// Stop halts the watcher and waits for its event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.state == StateStopped {
		w.mu.Unlock()
		return
	}
	stopCh, doneCh, fw := w.stopCh, w.doneCh, w.fsWatcher
	w.mu.Unlock()

	close(stopCh)
	<-doneCh

	if fw != nil {
		fw.Close()
	}

	w.mu.Lock()
	w.state = StateStopped
	w.mu.Unlock()
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	debounceTicker := time.NewTicker(w.debounce)
	defer debounceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher: fsnotify error", "error", err)
			w.mu.Lock()
			w.state = StateStopped
			w.mu.Unlock()
			return
		case <-debounceTicker.C:
			w.maybeSync(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !w.qualifies(event) {
		return
	}

	if w.validator != nil {
		if err := w.validator.ValidateSyntax(event.Name); err != nil {
			w.logger.Info("watcher: dropping event with invalid syntax", "path", event.Name, "error", err)
			w.mu.Lock()
			w.stats.ValidationRejected++
			w.mu.Unlock()
			return
		}
	}

	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		w.logger.Warn("watcher: could not relativize event path, dropping", "path", event.Name, "error", err)
		return
	}

	w.mu.Lock()
	w.lastAccepted = time.Now()
	w.pendingPaths[rel] = true
	switch {
	case event.Op&fsnotify.Create != 0:
		w.stats.Created++
	case event.Op&fsnotify.Remove != 0:
		w.stats.Deleted++
	default:
		w.stats.Modified++
	}
	w.mu.Unlock()
}

// Stats returns a snapshot of lifetime event and sync counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) qualifies(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, "_") || strings.HasPrefix(base, ".") {
		return false
	}
	ext := filepath.Ext(base)
	if base != "SKILL.md" && !scriptExts[ext] {
		return false
	}

	info, err := filepath.Abs(event.Name)
	if err != nil || info == "" {
		return false
	}
	// Directory events are ignored; fsnotify only reports the entry's own
	// path, so a directory create/remove on a skill folder itself (no
	// extension, no SKILL.md name) is filtered by the extension check
	// above.
	return true
}

// maybeSync drives the syncing -> running transition: it claims every
// path accumulated since the last accepted event once the debounce window
// has elapsed. An event observed while a sync is already in flight is left
// in pendingPaths (handleEvent never checks state), so the next debounce
// tick after the in-flight sync completes picks it up as exactly one
// follow-up sync rather than one sync per coalesced event.
func (w *Watcher) maybeSync(ctx context.Context) {
	w.mu.Lock()
	if w.state == StateSyncing {
		w.mu.Unlock()
		return
	}
	if len(w.pendingPaths) == 0 {
		w.mu.Unlock()
		return
	}
	if time.Since(w.lastAccepted) < w.debounce {
		w.mu.Unlock()
		return
	}

	paths := make([]string, 0, len(w.pendingPaths))
	for p := range w.pendingPaths {
		paths = append(paths, p)
	}
	w.pendingPaths = make(map[string]bool)
	w.state = StateSyncing
	w.mu.Unlock()

	w.runSync(ctx, paths)
}

func (w *Watcher) runSync(ctx context.Context, paths []string) {
	result, err := w.sync.Sync(ctx, paths)

	w.mu.Lock()
	w.state = StateRunning
	w.stats.SyncsRun++
	if err != nil {
		w.stats.SyncsFailed++
	}
	w.mu.Unlock()

	if err != nil {
		w.logger.Error("watcher: sync failed, retaining prior manifest", "error", err)
		return
	}
	if result.Added+result.Modified+result.Deleted > 0 {
		w.notify(Summary{Added: result.Added, Modified: result.Modified, Deleted: result.Deleted, Total: result.Total})
	}
}

func (w *Watcher) notify(s Summary) {
	w.subsMu.RLock()
	defer w.subsMu.RUnlock()
	for _, cb := range w.subscribers {
		cb(s)
	}
}
