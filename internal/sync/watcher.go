package sync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	stdsync "sync"
	"time"

	"github.com/rjeczalik/notify"
)

const (
	// DefaultDebounceWindow is how long raw OS events are coalesced
	// before a batch is delivered.
	DefaultDebounceWindow = 500 * time.Millisecond

	// DefaultIgnoreTimeout is how long an IgnoreOnce entry stays armed.
	DefaultIgnoreTimeout = time.Second

	cleanupInterval = 15 * time.Second
	rawBufferSize   = 512
	eventQueueSize  = 100
)

// FilterFunc returns true if events for the path should be dropped.
type FilterFunc func(path string) bool

// Watcher subscribes to OS-level change notifications for one root and
// emits a normalized, debounced event stream.
//
// Raw events are coalesced per path inside a debounce window and
// delivered once per window, in first-seen order. The delivery queue is
// bounded; when it fills the watcher blocks instead of dropping, so
// consumers see every change at the cost of backpressure.
type Watcher struct {
	rootDir   string
	window    time.Duration
	rawEvents chan notify.EventInfo
	events    chan Event
	done      chan struct{}
	wg        stdsync.WaitGroup

	// batch under construction, owned by the run goroutine
	pending map[string]EventKind
	order   []string

	ignore   map[string]time.Time
	ignoreMu stdsync.RWMutex

	filter   FilterFunc
	filterMu stdsync.RWMutex
}

func NewWatcher(rootDir string) *Watcher {
	return &Watcher{
		rootDir: rootDir,
		window:  DefaultDebounceWindow,
		done:    make(chan struct{}),
		pending: make(map[string]EventKind),
		ignore:  make(map[string]time.Time),
	}
}

// SetDebounceWindow overrides the coalescing window. Call before Start.
func (w *Watcher) SetDebounceWindow(window time.Duration) {
	if window > 0 {
		w.window = window
	}
}

// FilterPaths installs a callback that drops raw events before they
// enter the debounce batch.
func (w *Watcher) FilterPaths(fn FilterFunc) {
	w.filterMu.Lock()
	defer w.filterMu.Unlock()
	w.filter = fn
}

// Start registers the recursive watch and begins emitting events.
// Registration failure is fatal and returned to the caller.
func (w *Watcher) Start(ctx context.Context) error {
	slog.Info("watcher start", "dir", w.rootDir, "window", w.window)

	w.rawEvents = make(chan notify.EventInfo, rawBufferSize)
	w.events = make(chan Event, eventQueueSize)

	recursivePath := w.rootDir + "/..."
	if err := notify.Watch(recursivePath, w.rawEvents, notify.Create, notify.Write, notify.Remove, notify.Rename); err != nil {
		return fmt.Errorf("failed to register watch on %s: %w", w.rootDir, err)
	}

	w.wg.Add(1)
	go w.run(ctx)

	w.wg.Add(1)
	go w.cleanupExpiredIgnores(ctx)

	return nil
}

// Stop terminates the watch. The Events channel is closed once the
// debouncer drains, signalling end-of-stream to the consumer.
func (w *Watcher) Stop() {
	slog.Info("watcher stopping", "dir", w.rootDir)

	close(w.done)
	if w.rawEvents != nil {
		notify.Stop(w.rawEvents)
	}
	w.wg.Wait()

	slog.Info("watcher stopped", "dir", w.rootDir)
}

// Events returns the debounced event stream. The channel is closed when
// the watcher stops.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// IgnoreOnce suppresses the next event for path. Used to keep the
// engine's own writes from echoing back as changes.
func (w *Watcher) IgnoreOnce(path string) {
	w.IgnoreOnceWithTimeout(path, DefaultIgnoreTimeout)
}

func (w *Watcher) IgnoreOnceWithTimeout(path string, timeout time.Duration) {
	w.ignoreMu.Lock()
	defer w.ignoreMu.Unlock()
	w.ignore[path] = time.Now().Add(timeout)
}

// consumeIgnore checks and disarms an ignore entry for path.
func (w *Watcher) consumeIgnore(path string) bool {
	w.ignoreMu.Lock()
	defer w.ignoreMu.Unlock()

	expiry, exists := w.ignore[path]
	if !exists {
		return false
	}
	delete(w.ignore, path)
	return !time.Now().After(expiry)
}

func (w *Watcher) shouldFilter(path string) bool {
	w.filterMu.RLock()
	defer w.filterMu.RUnlock()
	return w.filter != nil && w.filter(path)
}

// run accumulates raw events and flushes one batch per window tick.
func (w *Watcher) run(ctx context.Context) {
	ticker := time.NewTicker(w.window)

	defer func() {
		ticker.Stop()
		if len(w.pending) > 0 {
			slog.Debug("watcher exiting with undelivered batch", "dir", w.rootDir, "count", len(w.pending))
		}
		close(w.events)
		w.wg.Done()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case raw, ok := <-w.rawEvents:
			if !ok {
				return
			}
			w.accumulate(raw)
		case <-ticker.C:
			if !w.flush(ctx) {
				return
			}
		}
	}
}

// accumulate folds one raw OS event into the current batch.
func (w *Watcher) accumulate(raw notify.EventInfo) {
	path := raw.Path()
	if w.shouldFilter(path) {
		return
	}

	var kind EventKind
	switch raw.Event() {
	case notify.Create:
		kind = EventCreated
	case notify.Write:
		kind = EventModified
	case notify.Remove, notify.Rename:
		// a renamed-away path is gone from this root's perspective
		kind = EventDeleted
	default:
		return
	}

	prev, exists := w.pending[path]
	if !exists {
		w.order = append(w.order, path)
	}
	w.pending[path] = mergeKinds(prev, kind)
}

// mergeKinds coalesces two kinds seen for the same path in one window.
// A create followed by writes is still a create to the consumer.
func mergeKinds(prev, next EventKind) EventKind {
	if prev == EventCreated && next == EventModified {
		return EventCreated
	}
	return next
}

// flush delivers the current batch in first-seen order. Sends block
// when the queue is full. Returns false if the watcher shut down
// mid-delivery.
func (w *Watcher) flush(ctx context.Context) bool {
	if len(w.pending) == 0 {
		return true
	}

	batch := make([]Event, 0, len(w.order))
	for _, path := range w.order {
		batch = append(batch, Event{Path: path, Kind: w.pending[path]})
	}
	w.pending = make(map[string]EventKind)
	w.order = w.order[:0]

	for _, ev := range batch {
		if w.consumeIgnore(ev.Path) {
			continue
		}

		if ev.Kind != EventDeleted {
			// only regular files sync, and the path may already be gone
			info, err := os.Lstat(ev.Path)
			if err != nil {
				slog.Debug("watcher skip", "path", ev.Path, "error", err)
				continue
			}
			if !info.Mode().IsRegular() {
				continue
			}
		}

		select {
		case w.events <- ev:
			slog.Debug("watcher event", "kind", ev.Kind, "path", ev.Path)
		case <-ctx.Done():
			return false
		case <-w.done:
			return false
		}
	}
	return true
}

// cleanupExpiredIgnores drops stale IgnoreOnce entries that never saw
// their event.
func (w *Watcher) cleanupExpiredIgnores(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-ticker.C:
			w.ignoreMu.Lock()
			now := time.Now()
			for path, expiry := range w.ignore {
				if now.After(expiry) {
					delete(w.ignore, path)
				}
			}
			w.ignoreMu.Unlock()
		}
	}
}
