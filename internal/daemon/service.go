// Package daemon provides the long-running background stats service:
// it watches the record tree, keeps the cache current, and serves the
// aggregate over HTTP.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/theirongolddev/oburn/internal/stats"
	"github.com/theirongolddev/oburn/internal/statscache"
	"github.com/theirongolddev/oburn/internal/watch"
)

// flushPoll is how often the pending watcher batch is re-evaluated
// against the flush policy.
const flushPoll = 10 * time.Millisecond

// Config controls the daemon runtime behavior.
type Config struct {
	Addr         string
	Interval     time.Duration
	EventsBuffer int
}

// Snapshot is a compact usage state for status/event payloads.
type Snapshot struct {
	At        time.Time `json:"at"`
	Version   uint64    `json:"version"`
	Sessions  uint64    `json:"sessions"`
	Messages  uint64    `json:"messages"`
	Prompts   uint64    `json:"prompts"`
	Tokens    uint64    `json:"tokens"`
	CostUSD   float64   `json:"cost_usd"`
	Additions uint64    `json:"additions"`
	Deletions uint64    `json:"deletions"`
}

// Delta captures snapshot deltas between updates.
type Delta struct {
	Sessions int64   `json:"sessions"`
	Messages int64   `json:"messages"`
	Prompts  int64   `json:"prompts"`
	Tokens   int64   `json:"tokens"`
	CostUSD  float64 `json:"cost_usd"`
}

func (d Delta) isZero() bool {
	return d.Sessions == 0 &&
		d.Messages == 0 &&
		d.Prompts == 0 &&
		d.Tokens == 0 &&
		d.CostUSD == 0
}

// Event is emitted whenever the aggregate changes.
type Event struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Snapshot  Snapshot  `json:"snapshot"`
	Delta     Delta     `json:"delta"`
	Affected  []string  `json:"affected_sessions,omitempty"`
}

// Status is served at /v1/status.
type Status struct {
	StartedAt       time.Time `json:"started_at"`
	LastUpdateAt    time.Time `json:"last_update_at"`
	RefreshSec      int       `json:"refresh_sec"`
	UpdateCount     int64     `json:"update_count"`
	Summary         Snapshot  `json:"summary"`
	LastError       string    `json:"last_error,omitempty"`
	EventCount      int       `json:"event_count"`
	SubscriberCount int       `json:"subscriber_count"`
}

// Service owns the stats cache and live watcher, and exposes the
// aggregate through the HTTP API.
type Service struct {
	cfg     Config
	cache   *statscache.Cache
	watcher *watch.Watcher

	mu          sync.RWMutex
	startedAt   time.Time
	lastPollAt  time.Time
	pollCount   int64
	lastError   string
	hasSnapshot bool
	snapshot    Snapshot
	nextEventID int64
	events      []Event

	nextSubID int
	subs      map[int]chan Event
}

// New returns a daemon service over the given cache and watcher.
func New(cfg Config, cache *statscache.Cache, watcher *watch.Watcher) *Service {
	if cfg.Interval < 2*time.Second {
		cfg.Interval = 30 * time.Second
	}
	if cfg.EventsBuffer < 1 {
		cfg.EventsBuffer = 200
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8791"
	}

	return &Service{
		cfg:       cfg,
		cache:     cache,
		watcher:   watcher,
		startedAt: time.Now(),
		subs:      make(map[int]chan Event),
	}
}

// Run starts the HTTP endpoints and update loop until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/status", s.handleStatus)
	mux.HandleFunc("/v1/stats", s.handleStats)
	mux.HandleFunc("/v1/events", s.handleEvents)
	mux.HandleFunc("/v1/stream", s.handleStream)

	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Seed the initial snapshot so status is useful immediately.
	s.refresh()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("daemon http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		s.updateLoop(ctx)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// updateLoop drains watcher batches into the cache. The flush policy
// is evaluated on a short timer while changes are pending; a slower
// ticker revalidates the whole snapshot.
func (s *Service) updateLoop(ctx context.Context) {
	refresh := time.NewTicker(s.cfg.Interval)
	defer refresh.Stop()
	poll := time.NewTicker(flushPoll)
	poll.Stop()
	polling := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.watcher.Wake():
			if !polling {
				poll.Reset(flushPoll)
				polling = true
			}
		case <-poll.C:
			if batch := s.watcher.Flush(time.Now()); len(batch) > 0 {
				s.applyBatch(batch)
			}
			if s.watcher.PendingLen() == 0 {
				poll.Stop()
				polling = false
			}
		case <-refresh.C:
			s.refresh()
		}
	}
}

func (s *Service) applyBatch(batch []string) {
	affected := s.cache.UpdateFiles(batch)
	snap := s.buildSnapshot()

	ids := make([]string, 0, len(affected))
	for id := range affected {
		ids = append(ids, id)
	}
	s.record(snap, "usage_delta", ids)
}

// refresh revalidates the cache from scratch.
func (s *Service) refresh() {
	if st := s.cache.LoadOrCompute(); st == nil {
		s.mu.Lock()
		s.lastError = "stats recompute produced no snapshot"
		s.lastPollAt = time.Now()
		s.pollCount++
		s.mu.Unlock()
		log.Printf("oburn daemon refresh produced no snapshot")
		return
	}
	s.record(s.buildSnapshot(), "snapshot", nil)
}

func (s *Service) buildSnapshot() Snapshot {
	st := s.cache.Snapshot()
	if st == nil {
		st = stats.NewStats()
	}
	return Snapshot{
		At:        time.Now(),
		Version:   s.cache.Version(),
		Sessions:  uint64(len(st.Totals.Sessions)),
		Messages:  st.Totals.Messages,
		Prompts:   st.Totals.Prompts,
		Tokens:    st.Totals.Tokens.Total(),
		CostUSD:   st.Totals.Cost,
		Additions: st.Totals.Diffs.Additions,
		Deletions: st.Totals.Diffs.Deletions,
	}
}

func (s *Service) record(snap Snapshot, kind string, affected []string) {
	var (
		ev      Event
		publish bool
	)

	s.mu.Lock()
	prev := s.snapshot
	prevExists := s.hasSnapshot

	s.hasSnapshot = true
	s.snapshot = snap
	s.lastPollAt = snap.At
	s.pollCount++
	s.lastError = ""

	if !prevExists {
		s.nextEventID++
		ev = Event{
			ID:        s.nextEventID,
			Type:      "snapshot",
			Timestamp: snap.At,
			Snapshot:  snap,
		}
		publish = true
	} else if delta := diffSnapshots(prev, snap); !delta.isZero() {
		s.nextEventID++
		ev = Event{
			ID:        s.nextEventID,
			Type:      kind,
			Timestamp: snap.At,
			Snapshot:  snap,
			Delta:     delta,
			Affected:  affected,
		}
		publish = true
	}
	s.mu.Unlock()

	if publish {
		s.publishEvent(ev)
	}
}

func diffSnapshots(prev, curr Snapshot) Delta {
	return Delta{
		Sessions: int64(curr.Sessions) - int64(prev.Sessions),
		Messages: int64(curr.Messages) - int64(prev.Messages),
		Prompts:  int64(curr.Prompts) - int64(prev.Prompts),
		Tokens:   int64(curr.Tokens) - int64(prev.Tokens),
		CostUSD:  curr.CostUSD - prev.CostUSD,
	}
}

func (s *Service) publishEvent(ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	if len(s.events) > s.cfg.EventsBuffer {
		s.events = s.events[len(s.events)-s.cfg.EventsBuffer:]
	}

	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	s.mu.Unlock()
}

func (s *Service) snapshotStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Status{
		StartedAt:       s.startedAt,
		LastUpdateAt:    s.lastPollAt,
		RefreshSec:      int(s.cfg.Interval.Seconds()),
		UpdateCount:     s.pollCount,
		Summary:         s.snapshot,
		LastError:       s.lastError,
		EventCount:      len(s.events),
		SubscriberCount: len(s.subs),
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.snapshotStatus())
}

func (s *Service) handleStats(w http.ResponseWriter, _ *http.Request) {
	st := s.cache.Snapshot()
	if st == nil {
		st = stats.NewStats()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(st)
}

func (s *Service) handleEvents(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	events := make([]Event, len(s.events))
	copy(events, s.events)
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(events)
}

func (s *Service) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan Event, 16)
	id := s.addSubscriber(ch)
	defer s.removeSubscriber(id)

	// Send the current snapshot immediately.
	current := Event{
		Type:      "snapshot",
		Timestamp: time.Now(),
		Snapshot:  s.snapshotStatus().Summary,
	}
	writeSSE(w, current)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			writeSSE(w, ev)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", ev.Type)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
}

func (s *Service) addSubscriber(ch chan Event) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subs[id] = ch
	return id
}

func (s *Service) removeSubscriber(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}
