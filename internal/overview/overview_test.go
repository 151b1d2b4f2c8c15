package overview

import (
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/theirongolddev/oburn/internal/pricing"
	"github.com/theirongolddev/oburn/internal/stats"
)

func snapshot(t *testing.T) *stats.Stats {
	t.Helper()
	s := stats.NewStats()

	// 2024-06-03 is a Monday. Session starts 09:00 UTC.
	day1 := &stats.DayStat{
		Tokens:   stats.Tokens{Input: 100, Output: 900},
		Cost:     2,
		Sessions: map[string]*stats.SessionStat{},
	}
	day1.Sessions["ses_1"] = &stats.SessionStat{
		ID:            "ses_1",
		FirstActivity: 1717405200000, // 2024-06-03T09:00:00Z
		ActiveMS:      3_600_000,
		FileDiffs: []stats.FileDiff{
			{Path: "main.go", Additions: 90, Deletions: 0, Status: "modified"},
			{Path: "notes.md", Additions: 10, Deletions: 0, Status: "added"},
		},
	}

	day2 := &stats.DayStat{
		Tokens:   stats.Tokens{Input: 50, Output: 150},
		Cost:     1,
		Sessions: map[string]*stats.SessionStat{},
	}
	day2.Sessions["ses_2"] = &stats.SessionStat{
		ID:            "ses_2",
		FirstActivity: 1717497000000, // 2024-06-04T10:30:00Z
		ActiveMS:      600_000,
	}

	s.Days["2024-06-03"] = day1
	s.Days["2024-06-04"] = day2
	s.Totals.Cost = 3
	s.Models = []stats.ModelUsage{
		{Name: "anthropic/claude-sonnet-4", ShortName: "claude-sonnet-4",
			Tokens: stats.Tokens{Input: 150, Output: 1050}},
	}
	return s
}

func TestComputeEmpty(t *testing.T) {
	o := Compute(stats.NewStats(), nil)
	if o.ActiveDays != 0 || o.Chronotype != "Unknown" || o.PeakDay != "" {
		t.Errorf("empty overview = %+v", o)
	}
}

func TestComputeBasics(t *testing.T) {
	o := Compute(snapshot(t), nil)

	if o.PeakDay != "2024-06-03" {
		t.Errorf("PeakDay = %q, want 2024-06-03", o.PeakDay)
	}
	if o.StartDay != "2024-06-03" {
		t.Errorf("StartDay = %q", o.StartDay)
	}
	if o.ActiveDays != 2 {
		t.Errorf("ActiveDays = %d, want 2", o.ActiveDays)
	}
	if o.LongestSessionMS != 3_600_000 {
		t.Errorf("LongestSessionMS = %d", o.LongestSessionMS)
	}
	if o.TotalActiveMS != 4_200_000 {
		t.Errorf("TotalActiveMS = %d", o.TotalActiveMS)
	}
	if o.AvgSessions != 1 {
		t.Errorf("AvgSessions = %v, want 1", o.AvgSessions)
	}
	if o.AvgCost != 1.5 {
		t.Errorf("AvgCost = %v, want 1.5", o.AvgCost)
	}
	if o.AvgTokens != 600 {
		t.Errorf("AvgTokens = %v, want 600", o.AvgTokens)
	}
	if o.TotalModels != 1 {
		t.Errorf("TotalModels = %d, want 1", o.TotalModels)
	}
}

func TestComputeChronotype(t *testing.T) {
	// Both sessions start in the 6-11 UTC window.
	o := Compute(snapshot(t), nil)
	if o.Chronotype != "Morning" {
		t.Errorf("Chronotype = %q, want Morning", o.Chronotype)
	}
}

func TestComputeChronotypeIgnoresSessionsWithoutTimestamps(t *testing.T) {
	s := stats.NewStats()
	day := &stats.DayStat{Sessions: map[string]*stats.SessionStat{}}
	day.Sessions["ses_1"] = &stats.SessionStat{
		ID:            "ses_1",
		FirstActivity: 1717527600000, // 2024-06-04T19:00:00Z
	}
	// Sessions that never saw a created time keep the sentinel and
	// must not vote for a period; the lone timestamped session decides.
	for _, id := range []string{"ses_2", "ses_3", "ses_4"} {
		day.Sessions[id] = &stats.SessionStat{
			ID:            id,
			FirstActivity: math.MaxInt64,
		}
	}
	s.Days["2024-06-04"] = day

	o := Compute(s, nil)
	if o.Chronotype != "Evening" {
		t.Errorf("Chronotype = %q, want Evening", o.Chronotype)
	}
}

func TestComputeFavoriteWeekday(t *testing.T) {
	s := snapshot(t)
	// Tip the balance toward Tuesday with a second session.
	s.Days["2024-06-04"].Sessions["ses_3"] = &stats.SessionStat{
		ID:            "ses_3",
		FirstActivity: 1717497000000,
	}
	o := Compute(s, nil)
	if o.FavoriteWeekday != "Tuesdays" {
		t.Errorf("FavoriteWeekday = %q, want Tuesdays", o.FavoriteWeekday)
	}
}

func TestComputeTopLanguages(t *testing.T) {
	o := Compute(snapshot(t), nil)
	if len(o.TopLanguages) != 2 || o.HasMoreLangs {
		t.Fatalf("TopLanguages = %+v, more=%v", o.TopLanguages, o.HasMoreLangs)
	}
	if o.TopLanguages[0].Name != "Go" || math.Abs(o.TopLanguages[0].Pct-90) > 1e-9 {
		t.Errorf("top language = %+v, want Go at 90%%", o.TopLanguages[0])
	}
	if o.TopLanguages[1].Name != "Markdown" {
		t.Errorf("second language = %+v, want Markdown", o.TopLanguages[1])
	}
}

func TestTopLanguagesZeroLineDiffCountsOnce(t *testing.T) {
	s := snapshot(t)
	s.Days["2024-06-04"].Sessions["ses_2"].FileDiffs = []stats.FileDiff{
		{Path: "empty.py", Status: "added"},
	}
	o := Compute(s, nil)
	found := false
	for _, l := range o.TopLanguages {
		if l.Name == "Python" {
			found = true
		}
	}
	if !found {
		t.Errorf("zero-line diff should still register its language: %+v", o.TopLanguages)
	}
}

func TestTopLanguagesOverflow(t *testing.T) {
	counts := map[string]uint64{
		"Go": 60, "Rust": 20, "Python": 10, "Ruby": 5, "Lua": 3, "Zig": 2,
	}
	top, more := topLanguages(counts)
	if !more {
		t.Fatal("expected overflow with six languages")
	}
	if len(top) != 4 || top[0].Name != "Go" || top[3].Name != "Ruby" {
		t.Errorf("top = %+v", top)
	}
}

func TestComputeSavings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":"anthropic/claude-sonnet-4",
			"pricing":{"prompt":"0.01","completion":"0.01"}}]}`))
	}))
	t.Cleanup(srv.Close)
	r := pricing.NewResolverWith(srv.URL, filepath.Join(t.TempDir(), "pricing.json"))

	o := Compute(snapshot(t), r)
	// 1200 tokens at 0.01 each = 12.00 estimated, 3.00 recorded.
	if math.Abs(o.Savings-9) > 1e-9 {
		t.Errorf("Savings = %v, want 9", o.Savings)
	}
}
