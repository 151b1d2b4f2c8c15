package stats

import (
	"sort"

	"github.com/theirongolddev/oburn/internal/record"
	"github.com/theirongolddev/oburn/internal/storage"
)

// Contribution records what one message added to the aggregate, so an
// updated record can be subtracted before re-adding.
type Contribution struct {
	Cost       float64
	Tokens     Tokens
	DurationMS int64
}

// SideTables carries the per-session scratch state the incremental
// update path needs between batches.
type SideTables struct {
	// SessionDayDiffs is the per-file diff union per "session|day" key.
	SessionDayDiffs map[string]map[string]FileDiff
	// SessionDays lists the sorted days each session was active.
	SessionDays map[string][]string
	// Contributions maps message identity to its folded contribution.
	Contributions map[string]Contribution
}

// NewSideTables returns empty tables with all maps allocated.
func NewSideTables() SideTables {
	return SideTables{
		SessionDayDiffs: make(map[string]map[string]FileDiff),
		SessionDays:     make(map[string][]string),
		Contributions:   make(map[string]Contribution),
	}
}

// LoadSessionDiffMap reads the authoritative diff store into sorted
// per-session FileDiff lists.
func LoadSessionDiffMap(b *storage.Backend) map[string][]FileDiff {
	return loadSessionDiffMap(b)
}

// BuildSideTables scans the message store and derives the incremental
// bookkeeping tables from scratch, mirroring the full fold's dedup and
// ordering rules.
func BuildSideTables(b *storage.Backend) SideTables {
	st := NewSideTables()
	msgs := loadMessages(b)
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].created < msgs[j].created })

	processed := make(map[string]bool, len(msgs))
	for i := range msgs {
		data := &msgs[i]
		if processed[data.identity] {
			continue
		}
		processed[data.identity] = true

		sessionID := string(data.msg.SessionID)
		if sessionID == "" {
			continue
		}
		day := record.Day(data.created, data.hasCreated)
		st.RecordSessionDay(sessionID, day)
		st.Contributions[data.identity] = messageContribution(&data.msg)

		if len(data.inlineDiffs) == 0 {
			continue
		}
		key := sessDayKey(sessionID, day)
		byPath := st.SessionDayDiffs[key]
		if byPath == nil {
			byPath = make(map[string]FileDiff, len(data.inlineDiffs))
			st.SessionDayDiffs[key] = byPath
		}
		for _, d := range data.inlineDiffs {
			MergeFileDiff(byPath, d)
		}
	}
	return st
}

// RecordSessionDay notes that a session was active on a day, keeping
// the per-session day list sorted.
func (st *SideTables) RecordSessionDay(sessionID, day string) {
	days := st.SessionDays[sessionID]
	for _, d := range days {
		if d == day {
			return
		}
	}
	days = append(days, day)
	sort.Strings(days)
	st.SessionDays[sessionID] = days
}

// messageContribution extracts the subtractable portion of one message:
// its cost, raw reported tokens, and assistant turn duration.
func messageContribution(msg *record.Message) Contribution {
	c := Contribution{Cost: float64(msg.Cost)}
	if t := msg.Tokens; t != nil {
		c.Tokens = Tokens{
			Input:     uint64(t.Input),
			Output:    uint64(t.Output),
			Reasoning: uint64(t.Reasoning),
		}
		if t.Cache != nil {
			c.Tokens.CacheRead = uint64(t.Cache.Read)
			c.Tokens.CacheWrite = uint64(t.Cache.Write)
		}
	}
	if string(msg.Role) == "assistant" && msg.Time != nil {
		if created, ok := msg.CreatedMillis(); ok {
			if completed, ok := msg.CompletedMillis(); ok && completed > created {
				c.DurationMS = completed - created
			}
		}
	}
	return c
}
