package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRelevant(t *testing.T) {
	cases := []struct {
		path     string
		isRemove bool
		want     bool
	}{
		{"/store/message/ses_1/msg_1.json", false, true},
		{"/store/session_diff/ses_1.json", false, true},
		{"/store/opencode.db", false, true},
		{"/store/opencode.db-wal", false, true},
		{"/store/message/.msg_1.json.swp", false, false},
		{"/store/message/.msg_1.json.swo", false, false},
		{"/store/message/msg_1.json.tmp", false, false},
		{"/store/message/msg_1.json~", false, false},
		{"/store/message/4913", false, false},
		{"/store/message/notes.txt", false, false},
		{"/store/message/notes.txt", true, true},
		{"/store/message/msg_1.json.tmp", true, true},
	}
	for _, tc := range cases {
		if got := Relevant(tc.path, tc.isRemove); got != tc.want {
			t.Errorf("Relevant(%q, %v) = %v, want %v", tc.path, tc.isRemove, got, tc.want)
		}
	}
}

func newIdle(t *testing.T) *Watcher {
	t.Helper()
	return &Watcher{
		wake: make(chan struct{}, 1),
		seen: make(map[string]bool),
	}
}

func TestFlushEmptyReturnsNil(t *testing.T) {
	w := newIdle(t)
	w.lastFlush = time.Now().Add(-time.Second)
	if got := w.Flush(time.Now()); got != nil {
		t.Fatalf("Flush on empty queue = %v, want nil", got)
	}
}

func TestBurstCoalescesIntoOneBatch(t *testing.T) {
	w := newIdle(t)
	base := time.Unix(0, 0)
	w.lastFlush = base

	for i := 0; i < 30; i++ {
		w.Enqueue("/store/part/msg_1/prt_1.json")
	}
	if n := w.PendingLen(); n != 1 {
		t.Fatalf("pending after 30 writes to one file = %d, want 1", n)
	}

	batch := w.Flush(base.Add(40 * time.Millisecond))
	if len(batch) != 1 || batch[0] != "/store/part/msg_1/prt_1.json" {
		t.Fatalf("batch = %v, want single path", batch)
	}
	if got := w.Flush(base.Add(80 * time.Millisecond)); got != nil {
		t.Fatalf("Flush after drain = %v, want nil", got)
	}
}

func TestFlushHonorsGapSinceLastFlush(t *testing.T) {
	w := newIdle(t)
	base := time.Unix(0, 0)
	w.lastFlush = base
	w.Enqueue("/store/message/ses_1/msg_1.json")
	w.mu.Lock()
	w.firstPending = base.Add(10 * time.Millisecond)
	w.mu.Unlock()

	if got := w.Flush(base.Add(20 * time.Millisecond)); got != nil {
		t.Fatalf("Flush before any threshold = %v, want nil", got)
	}
	if got := w.Flush(base.Add(31 * time.Millisecond)); len(got) != 1 {
		t.Fatalf("Flush after gap threshold = %v, want one path", got)
	}
}

func TestFlushHonorsPendingAge(t *testing.T) {
	w := newIdle(t)
	base := time.Unix(0, 0)
	w.Enqueue("/store/message/ses_1/msg_1.json")
	w.mu.Lock()
	w.firstPending = base
	w.lastFlush = base.Add(25 * time.Millisecond)
	w.mu.Unlock()

	// 24ms since last flush, 49ms since first pending: not due yet.
	if got := w.Flush(base.Add(49 * time.Millisecond)); got != nil {
		t.Fatalf("Flush before age threshold = %v, want nil", got)
	}
	w.mu.Lock()
	w.lastFlush = base.Add(30 * time.Millisecond)
	w.mu.Unlock()
	if got := w.Flush(base.Add(50 * time.Millisecond)); len(got) != 1 {
		t.Fatalf("Flush at age threshold = %v, want one path", got)
	}
}

func TestFlushHonorsBatchSize(t *testing.T) {
	w := newIdle(t)
	base := time.Unix(0, 0)
	w.mu.Lock()
	w.lastFlush = base
	w.mu.Unlock()

	for i := 0; i < maxPendingLen; i++ {
		w.Enqueue(filepath.Join("/store/part/msg_1", "prt_"+string(rune('a'+i))+".json"))
	}
	w.mu.Lock()
	w.firstPending = base
	w.mu.Unlock()

	if got := w.Flush(base.Add(1 * time.Millisecond)); len(got) != maxPendingLen {
		t.Fatalf("Flush at size threshold returned %d paths, want %d", len(got), maxPendingLen)
	}
}

func TestSpacedWritesFormSeparateBatches(t *testing.T) {
	w := newIdle(t)
	base := time.Unix(0, 0)
	w.mu.Lock()
	w.lastFlush = base
	w.mu.Unlock()

	w.Enqueue("/store/message/ses_1/msg_1.json")
	w.mu.Lock()
	w.firstPending = base.Add(5 * time.Millisecond)
	w.mu.Unlock()

	first := w.Flush(base.Add(40 * time.Millisecond))
	if len(first) != 1 {
		t.Fatalf("first batch = %v, want one path", first)
	}

	// A second write lands 60ms after the first.
	w.Enqueue("/store/message/ses_1/msg_2.json")
	w.mu.Lock()
	w.firstPending = base.Add(65 * time.Millisecond)
	w.mu.Unlock()

	second := w.Flush(base.Add(100 * time.Millisecond))
	if len(second) != 1 || second[0] != "/store/message/ses_1/msg_2.json" {
		t.Fatalf("second batch = %v, want msg_2 only", second)
	}
	// Each batch delivered within the pending-age bound of its first write.
	if age := 100 - 65; age > 50 {
		t.Fatalf("second batch age %dms exceeds bound", age)
	}
}

func TestFlushResetsMarkers(t *testing.T) {
	w := newIdle(t)
	base := time.Unix(0, 0)
	w.mu.Lock()
	w.lastFlush = base
	w.mu.Unlock()
	w.Enqueue("/a.json")
	w.mu.Lock()
	w.firstPending = base
	w.mu.Unlock()

	at := base.Add(60 * time.Millisecond)
	if got := w.Flush(at); len(got) != 1 {
		t.Fatalf("Flush = %v, want one path", got)
	}

	// Markers advanced: a fresh entry is not due again until the gap
	// from the new last-flush elapses.
	w.Enqueue("/b.json")
	w.mu.Lock()
	w.firstPending = at.Add(time.Millisecond)
	w.mu.Unlock()
	if got := w.Flush(at.Add(10 * time.Millisecond)); got != nil {
		t.Fatalf("Flush right after drain = %v, want nil", got)
	}
	if got := w.Flush(at.Add(31 * time.Millisecond)); len(got) != 1 {
		t.Fatalf("Flush after gap = %v, want one path", got)
	}
}

func TestEnqueueDedupAllowsRequeueAfterFlush(t *testing.T) {
	w := newIdle(t)
	base := time.Unix(0, 0)
	w.mu.Lock()
	w.lastFlush = base
	w.mu.Unlock()

	w.Enqueue("/a.json")
	w.Enqueue("/a.json")
	if n := w.PendingLen(); n != 1 {
		t.Fatalf("pending = %d, want 1", n)
	}
	if got := w.Flush(base.Add(60 * time.Millisecond)); len(got) != 1 {
		t.Fatalf("Flush = %v, want one path", got)
	}
	w.Enqueue("/a.json")
	if n := w.PendingLen(); n != 1 {
		t.Fatalf("pending after requeue = %d, want 1", n)
	}
}

func TestWatcherPicksUpNewDirectories(t *testing.T) {
	root := t.TempDir()
	w, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = w.Close() }()

	sub := filepath.Join(root, "message", "ses_1")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	// Give the watcher time to register the new directories.
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(sub, "msg_1.json")
	if err := os.WriteFile(path, []byte(`{"id":"msg_1"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-w.Wake():
		case <-deadline:
			t.Fatal("timed out waiting for change notification")
		}
		batch := w.Flush(time.Now().Add(time.Second))
		for _, p := range batch {
			if p == path {
				return
			}
		}
	}
}
