// Package statscache owns the canonical in-memory aggregate behind a
// read-write lock, persists it as a versioned snapshot, and decides
// between full recompute and targeted patch when record files change.
package statscache

import (
	"bytes"
	"encoding/gob"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/theirongolddev/oburn/internal/record"
	"github.com/theirongolddev/oburn/internal/stats"
	"github.com/theirongolddev/oburn/internal/storage"
)

// FormatVersion is bumped whenever the snapshot layout changes; any
// mismatch discards the persisted file wholesale.
const FormatVersion uint64 = 3

const (
	maxSnapshotAge  = 120 * time.Second
	signatureSample = 20
	cacheFileName   = "stats.gob"
)

// snapshot is the single persisted unit.
type snapshot struct {
	Stats         *stats.Stats
	Version       uint64
	Signatures    map[string]int64
	FormatVersion uint64
	Side          stats.SideTables
	DiffMap       map[string][]stats.FileDiff
	DiffTotals    map[string]stats.Diffs
}

// Cache is the incremental statistics cache.
type Cache struct {
	backend *storage.Backend
	path    string

	mu    sync.RWMutex
	state snapshot
}

// New prepares a cache over the given backend. The snapshot lives in
// the platform cache directory.
func New(b *storage.Backend) *Cache {
	dir := storage.CacheDir()
	_ = os.MkdirAll(dir, 0o755)
	return &Cache{
		backend: b,
		path:    filepath.Join(dir, cacheFileName),
		state: snapshot{
			Stats:         stats.NewStats(),
			Signatures:    make(map[string]int64),
			FormatVersion: FormatVersion,
			Side:          stats.NewSideTables(),
			DiffMap:       make(map[string][]stats.FileDiff),
			DiffTotals:    make(map[string]stats.Diffs),
		},
	}
}

// Signature computes the cheap change-detection heuristic for a file.
// It cannot detect a same-second, same-length rewrite; validation
// tolerates that in exchange for never reading content.
func Signature(path string) (int64, bool) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, false
	}
	return fi.ModTime().Unix()*31 + fi.Size(), true
}

// Version returns the monotonic update counter.
func (c *Cache) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Version
}

// Snapshot returns a deep copy of the aggregate. The lock is released
// before the caller renders anything.
func (c *Cache) Snapshot() *stats.Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Stats.Clone()
}

// LoadOrCompute adopts a fresh, valid persisted snapshot, or falls
// back to a full recompute. Either way the returned aggregate is
// complete and the cache is primed for incremental updates.
func (c *Cache) LoadOrCompute() *stats.Stats {
	if loaded, ok := c.loadValid(); ok {
		c.mu.Lock()
		c.state = loaded
		c.mu.Unlock()
		return loaded.Stats.Clone()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.recomputeLocked()
	c.persistLocked()
	return c.state.Stats.Clone()
}

func (c *Cache) loadValid() (snapshot, bool) {
	fi, err := os.Stat(c.path)
	if err != nil || time.Since(fi.ModTime()) > maxSnapshotAge {
		return snapshot{}, false
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		return snapshot{}, false
	}
	var snap snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return snapshot{}, false
	}
	if snap.FormatVersion != FormatVersion || snap.Stats == nil {
		return snapshot{}, false
	}
	if len(c.backend.ListMessageFiles()) != len(snap.Stats.Processed) {
		return snapshot{}, false
	}
	if len(storage.ListAllTracked(c.backend.Root())) != len(snap.Signatures) {
		return snapshot{}, false
	}
	checked := 0
	for path, want := range snap.Signatures {
		got, ok := Signature(path)
		if !ok || got != want {
			return snapshot{}, false
		}
		checked++
		if checked >= signatureSample {
			break
		}
	}
	return snap, true
}

// recomputeLocked rebuilds the entire state from the record tree.
// Callers hold the write lock.
func (c *Cache) recomputeLocked() {
	c.state.Stats = stats.Collect(c.backend)
	c.state.Side = stats.BuildSideTables(c.backend)
	c.state.DiffMap = stats.LoadSessionDiffMap(c.backend)
	c.state.DiffTotals = make(map[string]stats.Diffs, len(c.state.DiffMap))
	for id, diffs := range c.state.DiffMap {
		c.state.DiffTotals[id] = stats.DiffTotals(diffs)
	}
	c.state.Version++
	c.state.FormatVersion = FormatVersion

	c.state.Signatures = make(map[string]int64)
	for _, path := range storage.ListAllTracked(c.backend.Root()) {
		if sig, ok := Signature(path); ok {
			c.state.Signatures[path] = sig
		}
	}
}

// persistLocked writes the snapshot to disk. Failures are swallowed;
// the next cold start simply recomputes.
func (c *Cache) persistLocked() {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&c.state); err != nil {
		return
	}
	_ = os.WriteFile(c.path, buf.Bytes(), 0o644)
}

// needsFullRecompute classifies a change batch. Session metadata,
// session diff, and message store writes all invalidate more state
// than a targeted patch can repair, as do deletions and writes to the
// SQLite backend artifacts.
func (c *Cache) needsFullRecompute(paths []string) bool {
	for _, p := range paths {
		if strings.HasPrefix(p, storage.DBMessagePrefix) {
			return true
		}
		base := filepath.Base(p)
		if base == "opencode.db" || base == "opencode.db-wal" {
			return true
		}
		switch recordDir(p) {
		case storage.SessionDir, storage.SessionDiffDir, storage.MessageDir:
			return true
		}
		if _, err := os.Stat(p); err != nil {
			return true
		}
	}
	return false
}

// recordDir returns which record directory a path belongs to, or "".
func recordDir(path string) string {
	norm := filepath.ToSlash(path)
	for _, dir := range storage.RecordDirs {
		if strings.Contains(norm, "/"+dir+"/") {
			return dir
		}
	}
	return ""
}

// UpdateFiles applies a change batch: a full recompute when the batch
// touches stores the patch path cannot repair, otherwise a bounded
// per-path merge. Returns the set of affected session ids.
func (c *Cache) UpdateFiles(paths []string) map[string]bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	affected := make(map[string]bool)

	if c.needsFullRecompute(paths) {
		c.recomputeLocked()
		for _, dayStat := range c.state.Stats.Days {
			for id := range dayStat.Sessions {
				affected[id] = true
			}
		}
	} else {
		for _, p := range paths {
			switch recordDir(p) {
			case storage.MessageDir:
				// Unreachable under the current classification; kept so
				// part-free merge semantics stay exercised and tested.
				if msg, ok := c.backend.LoadMessage(p); ok {
					id := stats.ApplyMessage(c.state.Stats, &c.state.Side, c.state.DiffMap, c.state.DiffTotals, &msg, p)
					if id != "" {
						affected[id] = true
					}
				}
			case storage.PartDir:
				data, err := os.ReadFile(p)
				if err != nil {
					continue
				}
				if part, ok := record.DecodePart(data); ok {
					stats.ApplyPart(c.state.Stats, &part)
				}
			}
		}
		sort.SliceStable(c.state.Stats.Models, func(i, j int) bool {
			return c.state.Stats.Models[i].Tokens.Total() > c.state.Stats.Models[j].Tokens.Total()
		})
		c.state.Version++
	}

	for _, p := range paths {
		if sig, ok := Signature(p); ok {
			c.state.Signatures[p] = sig
		} else {
			delete(c.state.Signatures, p)
		}
	}
	c.persistLocked()
	return affected
}
