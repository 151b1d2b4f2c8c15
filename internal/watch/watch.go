// Package watch observes the record tree, filters editor noise, and
// coalesces change bursts into bounded-latency batches.
package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Flush policy: a pending batch drains when any of these trips. There
// is no quiet-period rule, so worst-case delivery latency stays under
// maxPendingAge even during continuous write pressure.
const (
	minFlushGap   = 30 * time.Millisecond
	maxPendingAge = 50 * time.Millisecond
	maxPendingLen = 25
)

// Relevant reports whether a filesystem event path should reach the
// cache. Editor swap/temp/backup artifacts are noise; JSON records and
// the SQLite backend artifacts are signal. Deletions always pass, the
// deleted name no longer tells us what it was.
func Relevant(path string, isRemove bool) bool {
	if isRemove {
		return true
	}
	base := filepath.Base(path)
	switch {
	case strings.HasSuffix(base, ".swp"),
		strings.HasSuffix(base, ".swo"),
		strings.HasSuffix(base, ".tmp"),
		strings.HasSuffix(base, "~"),
		base == "4913":
		return false
	}
	if strings.HasSuffix(base, ".json") {
		return true
	}
	return base == "opencode.db" || base == "opencode.db-wal"
}

// Watcher accumulates deduplicated change paths from recursive
// filesystem notifications. The consumer polls Flush; Wake signals
// that the pending list gained entries.
type Watcher struct {
	fsw  *fsnotify.Watcher
	wake chan struct{}
	done chan struct{}

	mu           sync.Mutex
	pending      []string
	seen         map[string]bool
	firstPending time.Time
	lastFlush    time.Time
}

// New starts watching root and every directory below it. Directories
// created later are added as they appear.
func New(root string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	w := &Watcher{
		fsw:       fsw,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		seen:      make(map[string]bool),
		lastFlush: time.Now(),
	}
	if err := w.addTree(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	go w.run()
	return w, nil
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // skip unreadable entries
		}
		if d.IsDir() {
			return w.fsw.Add(path)
		}
		return nil
	})
}

// Close stops event delivery. Pending paths stay drainable.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}

// Wake returns the channel signaled whenever new paths become pending.
func (w *Watcher) Wake() <-chan struct{} {
	return w.wake
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			// Watch errors are transient; the cache validity check
			// catches anything missed.
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
			_ = w.addTree(event.Name)
		}
	}
	if !Relevant(event.Name, event.Has(fsnotify.Remove)) {
		return
	}
	w.Enqueue(event.Name)
}

// Enqueue appends a path to the pending list, deduplicated, and wakes
// the consumer.
func (w *Watcher) Enqueue(path string) {
	w.mu.Lock()
	if w.seen[path] {
		w.mu.Unlock()
		return
	}
	if len(w.pending) == 0 {
		w.firstPending = time.Now()
	}
	w.seen[path] = true
	w.pending = append(w.pending, path)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Flush drains and returns the entire pending list when the policy
// says a batch is due, else nil. Draining resets both the last-flush
// and first-pending markers.
func (w *Watcher) Flush(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.pending) == 0 {
		return nil
	}
	due := now.Sub(w.lastFlush) >= minFlushGap ||
		now.Sub(w.firstPending) >= maxPendingAge ||
		len(w.pending) >= maxPendingLen

	if !due {
		return nil
	}
	batch := w.pending
	w.pending = nil
	w.seen = make(map[string]bool)
	w.lastFlush = now
	w.firstPending = now
	return batch
}

// PendingLen reports the current number of queued paths.
func (w *Watcher) PendingLen() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}
