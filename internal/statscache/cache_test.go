package statscache

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/theirongolddev/oburn/internal/storage"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// seedTree writes one fully populated session so every aggregate map
// has content.
func seedTree(t *testing.T, root string) {
	t.Helper()
	writeFile(t, filepath.Join(root, "message", "s1", "msg_1.json"),
		`{"id":"msg_1","sessionID":"ses_1","role":"assistant","agent":"build",`+
			`"time":{"created":1000,"completed":2000},"tokens":{"input":3,"output":7,"reasoning":0},"cost":0.25}`)
	writeFile(t, filepath.Join(root, "part", "msg_1", "prt_1.json"), `{"type":"tool","tool":"bash"}`)
	writeFile(t, filepath.Join(root, "session", "sh", "ses_1.json"), `{"id":"ses_1","title":"demo"}`)
}

func newCache(t *testing.T, root string) *Cache {
	t.Helper()
	t.Setenv("OBURN_CACHE_DIR", filepath.Join(root, "..", "cache"))
	b := storage.Open(root)
	t.Cleanup(func() { _ = b.Close() })
	return New(b)
}

func TestLoadOrComputeRoundTrip(t *testing.T) {
	root := filepath.Join(t.TempDir(), "storage")
	seedTree(t, root)

	first := newCache(t, root)
	computed := first.LoadOrCompute()

	// A second cache over the same tree must adopt the persisted
	// snapshot, not recompute.
	second := newCache(t, root)
	loaded := second.LoadOrCompute()

	if !reflect.DeepEqual(computed.Totals, loaded.Totals) {
		t.Errorf("totals differ:\n%+v\n%+v", computed.Totals, loaded.Totals)
	}
	if !reflect.DeepEqual(computed.Days, loaded.Days) {
		t.Errorf("day buckets differ")
	}
	if !reflect.DeepEqual(computed.Models, loaded.Models) {
		t.Errorf("model usage differs")
	}
	if second.Version() != first.Version() {
		t.Errorf("version: got %d, want %d", second.Version(), first.Version())
	}
}

func TestLoadOrComputeRejectsFormatVersion(t *testing.T) {
	root := filepath.Join(t.TempDir(), "storage")
	seedTree(t, root)

	first := newCache(t, root)
	first.LoadOrCompute()

	// Rewrite the snapshot claiming an older format.
	data, err := os.ReadFile(first.path)
	if err != nil {
		t.Fatal(err)
	}
	var snap snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	snap.FormatVersion = FormatVersion - 1
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&snap); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(first.path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	second := newCache(t, root)
	s := second.LoadOrCompute()
	if s.Totals.Messages != 1 {
		t.Errorf("recomputed messages = %d, want 1", s.Totals.Messages)
	}

	// The stale file must have been rewritten with the current format.
	data, err = os.ReadFile(second.path)
	if err != nil {
		t.Fatal(err)
	}
	var rewritten snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rewritten); err != nil {
		t.Fatal(err)
	}
	if rewritten.FormatVersion != FormatVersion {
		t.Errorf("format version = %d, want %d", rewritten.FormatVersion, FormatVersion)
	}
}

func TestLoadOrComputeRejectsStaleSnapshot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "storage")
	seedTree(t, root)

	first := newCache(t, root)
	first.LoadOrCompute()

	old := time.Now().Add(-3 * time.Minute)
	if err := os.Chtimes(first.path, old, old); err != nil {
		t.Fatal(err)
	}

	second := newCache(t, root)
	second.LoadOrCompute()

	fi, err := os.Stat(second.path)
	if err != nil {
		t.Fatal(err)
	}
	if time.Since(fi.ModTime()) > time.Minute {
		t.Error("stale snapshot was not recomputed and rewritten")
	}
}

func TestLoadOrComputeRejectsChangedSignature(t *testing.T) {
	root := filepath.Join(t.TempDir(), "storage")
	seedTree(t, root)

	first := newCache(t, root)
	first.LoadOrCompute()

	// Rewrite an existing record with different content; the sampled
	// signature check must force a recompute that sees the new value.
	writeFile(t, filepath.Join(root, "message", "s1", "msg_1.json"),
		`{"id":"msg_1","sessionID":"ses_1","role":"assistant","agent":"build",`+
			`"time":{"created":1000,"completed":2000},"tokens":{"input":3,"output":700,"reasoning":0},"cost":0.25}`)

	second := newCache(t, root)
	s := second.LoadOrCompute()
	if s.Totals.Tokens.Output != 700 {
		t.Errorf("output tokens = %d, want 700 after recompute", s.Totals.Tokens.Output)
	}
}

func TestUpdateFilesPartBatchIsIncremental(t *testing.T) {
	root := filepath.Join(t.TempDir(), "storage")
	seedTree(t, root)

	c := newCache(t, root)
	c.LoadOrCompute()
	before := c.Version()

	partPath := filepath.Join(root, "part", "msg_1", "prt_2.json")
	writeFile(t, partPath, `{"type":"tool","tool":"edit","text":"+added line\n-removed line\n+another"}`)

	affected := c.UpdateFiles([]string{partPath})
	if len(affected) != 0 {
		t.Errorf("affected sessions = %v, want none for a part batch", affected)
	}

	s := c.Snapshot()
	if s.Totals.Tools["edit"] != 1 {
		t.Errorf("tool tally = %d, want 1", s.Totals.Tools["edit"])
	}
	// Coarse line counters only the patch path applies; a full
	// recompute would have derived zero diffs from this tree.
	if s.Totals.Diffs.Additions != 2 || s.Totals.Diffs.Deletions != 1 {
		t.Errorf("coarse diffs = %+v, want +2 -1", s.Totals.Diffs)
	}
	if c.Version() != before+1 {
		t.Errorf("version = %d, want %d", c.Version(), before+1)
	}
}

func TestUpdateFilesMessageBatchForcesRecompute(t *testing.T) {
	root := filepath.Join(t.TempDir(), "storage")
	seedTree(t, root)

	c := newCache(t, root)
	c.LoadOrCompute()

	// A part merge leaves coarse counters behind that only a full
	// recompute clears; pin that message paths trigger the recompute.
	partPath := filepath.Join(root, "part", "msg_1", "prt_2.json")
	writeFile(t, partPath, `{"type":"text","text":"+coarse"}`)
	c.UpdateFiles([]string{partPath})
	if s := c.Snapshot(); s.Totals.Diffs.Additions != 1 {
		t.Fatalf("setup: coarse additions = %d, want 1", s.Totals.Diffs.Additions)
	}

	msgPath := filepath.Join(root, "message", "s1", "msg_2.json")
	writeFile(t, msgPath,
		`{"id":"msg_2","sessionID":"ses_1","role":"assistant","time":{"created":5000},"tokens":{"input":0,"output":11,"reasoning":0}}`)

	affected := c.UpdateFiles([]string{msgPath})
	if !affected["ses_1"] {
		t.Errorf("affected = %v, want ses_1", affected)
	}
	s := c.Snapshot()
	if s.Totals.Messages != 2 {
		t.Errorf("messages = %d, want 2 after recompute", s.Totals.Messages)
	}
	if s.Totals.Diffs.Additions != 0 {
		t.Errorf("coarse diffs survived a full recompute: %+v", s.Totals.Diffs)
	}
}

func TestUpdateFilesSessionStoresForceRecompute(t *testing.T) {
	root := filepath.Join(t.TempDir(), "storage")
	seedTree(t, root)

	c := newCache(t, root)
	c.LoadOrCompute()

	diffPath := filepath.Join(root, "session_diff", "ses_1.json")
	writeFile(t, diffPath, `[{"file":"a.go","additions":4,"deletions":2,"status":"modified"}]`)

	affected := c.UpdateFiles([]string{diffPath})
	if !affected["ses_1"] {
		t.Errorf("affected = %v, want ses_1", affected)
	}
	s := c.Snapshot()
	if s.Totals.Diffs.Additions != 4 || s.Totals.Diffs.Deletions != 2 {
		t.Errorf("diff totals = %+v, want +4 -2", s.Totals.Diffs)
	}

	titlePath := filepath.Join(root, "session", "sh", "ses_1.json")
	writeFile(t, titlePath, `{"id":"ses_1","title":"renamed"}`)
	c.UpdateFiles([]string{titlePath})
	if got := c.Snapshot().SessionTitles["ses_1"]; got != "renamed" {
		t.Errorf("title = %q, want renamed", got)
	}
}

func TestUpdateFilesDeletionForcesRecompute(t *testing.T) {
	root := filepath.Join(t.TempDir(), "storage")
	seedTree(t, root)
	extra := filepath.Join(root, "part", "msg_1", "prt_9.json")
	writeFile(t, extra, `{"type":"tool","tool":"grep"}`)

	c := newCache(t, root)
	c.LoadOrCompute()
	if err := os.Remove(extra); err != nil {
		t.Fatal(err)
	}

	c.UpdateFiles([]string{extra})
	if got := c.Snapshot().Totals.Tools["grep"]; got != 0 {
		t.Errorf("deleted part still tallied: %d", got)
	}
}

func TestSignature(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.json")
	writeFile(t, path, "12345")

	sig, ok := Signature(path)
	if !ok {
		t.Fatal("signature failed for existing file")
	}
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := fi.ModTime().Unix()*31 + 5; sig != want {
		t.Errorf("signature = %d, want %d", sig, want)
	}
	if _, ok := Signature(filepath.Join(dir, "absent.json")); ok {
		t.Error("signature reported ok for missing file")
	}
}

func TestUpdateFilesManyParts(t *testing.T) {
	root := filepath.Join(t.TempDir(), "storage")
	seedTree(t, root)

	c := newCache(t, root)
	c.LoadOrCompute()

	var paths []string
	for i := 0; i < 5; i++ {
		p := filepath.Join(root, "part", "msg_1", fmt.Sprintf("prt_x%d.json", i))
		writeFile(t, p, `{"type":"tool","tool":"bash"}`)
		paths = append(paths, p)
	}
	c.UpdateFiles(paths)
	// seedTree already contributed one bash call.
	if got := c.Snapshot().Totals.Tools["bash"]; got != 6 {
		t.Errorf("bash tally = %d, want 6", got)
	}
}
