// Package stats folds the opencode record tree into the aggregate
// data model consumed by the dashboard and CLI.
package stats

import "math"

// Tokens holds the additive token counters of a message or rollup.
type Tokens struct {
	Input      uint64
	Output     uint64
	Reasoning  uint64
	CacheRead  uint64
	CacheWrite uint64
}

// Total returns the sum across all counters.
func (t Tokens) Total() uint64 {
	return t.Input + t.Output + t.Reasoning + t.CacheRead + t.CacheWrite
}

// Add accumulates another token block.
func (t *Tokens) Add(o Tokens) {
	t.Input += o.Input
	t.Output += o.Output
	t.Reasoning += o.Reasoning
	t.CacheRead += o.CacheRead
	t.CacheWrite += o.CacheWrite
}

// Sub removes a previously added token block, saturating at zero.
func (t *Tokens) Sub(o Tokens) {
	t.Input = satSub(t.Input, o.Input)
	t.Output = satSub(t.Output, o.Output)
	t.Reasoning = satSub(t.Reasoning, o.Reasoning)
	t.CacheRead = satSub(t.CacheRead, o.CacheRead)
	t.CacheWrite = satSub(t.CacheWrite, o.CacheWrite)
}

func satSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// Diffs holds additive line-change counters.
type Diffs struct {
	Additions uint64
	Deletions uint64
}

// FileDiff is one deduplicated per-file change entry of a session.
type FileDiff struct {
	Path      string
	Additions uint64
	Deletions uint64
	Status    string
}

// AgentInfo aggregates one agent's activity within a session-day.
type AgentInfo struct {
	Name          string
	IsMain        bool
	Models        map[string]bool
	Messages      uint64
	Tokens        Tokens
	FirstActivity int64
	LastActivity  int64
	ActiveMS      int64
}

// SessionStat aggregates one session's activity within a single day
// bucket. Sessions spanning multiple days get one instance per day,
// with continuation days carrying incremental diffs only.
type SessionStat struct {
	ID             string
	Messages       uint64
	Prompts        uint64
	Cost           float64
	Tokens         Tokens
	Diffs          Diffs
	Models         map[string]bool
	Tools          map[string]uint64
	FirstActivity  int64
	LastActivity   int64
	PathCwd        string
	PathRoot       string
	FileDiffs      []FileDiff
	FirstSeenDay   string
	IsContinuation bool
	Agents         []AgentInfo
	ActiveMS       int64
}

// DayStat is one UTC calendar-day bucket.
type DayStat struct {
	Messages uint64
	Prompts  uint64
	Tokens   Tokens
	Diffs    Diffs
	Sessions map[string]*SessionStat
	Cost     float64
}

// ModelUsage aggregates usage of one model identity across the corpus.
type ModelUsage struct {
	Name          string
	ShortName     string
	Provider      string
	DisplayName   string
	Messages      uint64
	Sessions      map[string]bool
	Tokens        Tokens
	Tools         map[string]uint64
	Agents        map[string]uint64
	DailyTokens   map[string]uint64
	DailyLastHour map[string]uint8
	Cost          float64
}

// Totals is the global rollup.
type Totals struct {
	Sessions map[string]bool
	Messages uint64
	Prompts  uint64
	Tokens   Tokens
	Diffs    Diffs
	Tools    map[string]uint64
	Cost     float64
}

// Stats is the aggregate root.
type Stats struct {
	Totals        Totals
	Days          map[string]*DayStat
	SessionTitles map[string]string
	Models        []ModelUsage
	SessionFiles  map[string]map[string]bool
	Processed     map[string]bool
	Parents       map[string]string
	Children      map[string][]string
}

// NewStats returns an empty aggregate with all maps allocated.
func NewStats() *Stats {
	return &Stats{
		Totals: Totals{
			Sessions: make(map[string]bool),
			Tools:    make(map[string]uint64),
		},
		Days:          make(map[string]*DayStat),
		SessionTitles: make(map[string]string),
		SessionFiles:  make(map[string]map[string]bool),
		Processed:     make(map[string]bool),
		Parents:       make(map[string]string),
		Children:      make(map[string][]string),
	}
}

func newDayStat() *DayStat {
	return &DayStat{Sessions: make(map[string]*SessionStat)}
}

func newSessionStat(id string) *SessionStat {
	return &SessionStat{
		ID:            id,
		Models:        make(map[string]bool),
		Tools:         make(map[string]uint64),
		FirstActivity: math.MaxInt64,
	}
}
