package seed

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"codegarden/internal/logging"
	"codegarden/internal/pattern"
)

// =============================================================================
// SEED WATCHER - DROP A FILE, GROW A PATTERN
// =============================================================================

// Sink consumes a settled batch of seed drafts. The watcher calls it from a
// single goroutine, so runs never overlap; a slow sink simply delays the
// next batch.
type Sink func(ctx context.Context, seeds []pattern.Draft) error

// Watcher monitors a directory for seed manifests and feeds each settled
// batch through the sink. Rapid saves of the same file collapse into one
// run via the debounce window.
type Watcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	dir         string
	sink        Sink
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	stats WatcherStats
}

// WatcherStats tracks watcher activity.
type WatcherStats struct {
	FilesSeen     int
	SeedsLoaded   int
	RunsTriggered int
	Errors        int
	LastEventTime time.Time
	LastEventPath string
}

// NewWatcher creates a watcher over the given seed directory. Start must be
// called before any events flow.
func NewWatcher(dir string, sink Sink) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		watcher:     fsw,
		dir:         dir,
		sink:        sink,
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// SetDebounce adjusts the settle window. Call before Start; nonpositive
// values keep the current window.
func (w *Watcher) SetDebounce(d time.Duration) {
	if d <= 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounceDur = d
}

// Start begins watching. Non-blocking; the event loop runs in a goroutine
// until Stop or context cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		logging.SeedsWarn("Failed to create seed directory %s: %v (continuing anyway)", w.dir, err)
	}

	if err := w.watcher.Add(w.dir); err != nil {
		logging.SeedsWarn("Initial watch of %s failed: %v", w.dir, err)
	} else {
		logging.Seeds("Watching seed directory: %s", w.dir)
	}

	go w.run(ctx)
	return nil
}

// Stop halts the watcher and waits for the event loop to drain.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		logging.SeedsError("Error closing seed watcher: %v", err)
	}
	logging.Seeds("Seed watcher stopped")
}

// IsWatching reports whether the event loop is live.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	settleTicker := time.NewTicker(100 * time.Millisecond)
	defer settleTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Seeds("Seed watcher: context cancelled")
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.SeedsError("Seed watcher error: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-settleTicker.C:
			w.processSettled(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !IsManifest(event.Name) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		if _, seen := w.debounceMap[event.Name]; !seen {
			w.stats.FilesSeen++
		}
		w.debounceMap[event.Name] = time.Now()
		w.stats.LastEventTime = time.Now()
		w.stats.LastEventPath = event.Name
		logging.SeedsDebug("Manifest event: %s %s", event.Op, event.Name)

	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// A manifest that vanished before settling needs no run.
		delete(w.debounceMap, event.Name)
	}
}

// processSettled loads every manifest whose last event is older than the
// debounce window and feeds the batch through the sink.
func (w *Watcher) processSettled(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var settled []string
	for path, eventTime := range w.debounceMap {
		if now.Sub(eventTime) >= w.debounceDur {
			settled = append(settled, path)
			delete(w.debounceMap, path)
		}
	}
	w.mu.Unlock()

	if len(settled) == 0 {
		return
	}
	sort.Strings(settled)

	var drafts []pattern.Draft
	for _, path := range settled {
		batch, err := LoadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			logging.SeedsWarn("Skipping manifest %s: %v", path, err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
			continue
		}
		drafts = append(drafts, batch...)
	}

	if len(drafts) == 0 {
		return
	}
	w.dispatch(ctx, drafts)
}

// ScanExisting feeds manifests already sitting in the directory through the
// sink, so a watch session starts from the seeds on disk instead of waiting
// for the next drop.
func (w *Watcher) ScanExisting(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	var drafts []pattern.Draft
	for _, de := range entries {
		if de.IsDir() || !IsManifest(de.Name()) {
			continue
		}
		path := filepath.Join(w.dir, de.Name())
		batch, err := LoadFile(path)
		if err != nil {
			logging.SeedsWarn("Skipping manifest %s: %v", path, err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
			continue
		}
		w.mu.Lock()
		w.stats.FilesSeen++
		w.mu.Unlock()
		drafts = append(drafts, batch...)
	}

	if len(drafts) > 0 {
		w.dispatch(ctx, drafts)
	}
	return nil
}

func (w *Watcher) dispatch(ctx context.Context, drafts []pattern.Draft) {
	logging.Seeds("Dispatching %d settled seed(s)", len(drafts))
	if err := w.sink(ctx, drafts); err != nil {
		logging.SeedsWarn("Seed sink failed: %v", err)
		w.mu.Lock()
		w.stats.Errors++
		w.mu.Unlock()
		return
	}

	w.mu.Lock()
	w.stats.RunsTriggered++
	w.stats.SeedsLoaded += len(drafts)
	w.mu.Unlock()
}

// GetStats returns the current watcher statistics.
func (w *Watcher) GetStats() WatcherStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

// ResetStats clears the watcher statistics.
func (w *Watcher) ResetStats() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats = WatcherStats{}
}
