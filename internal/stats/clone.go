package stats

import "maps"

// Clone returns a deep copy of the aggregate. Snapshot readers clone
// under a read lock so rendering never holds a live reference.
func (s *Stats) Clone() *Stats {
	if s == nil {
		return nil
	}
	out := &Stats{
		Totals: Totals{
			Sessions: maps.Clone(s.Totals.Sessions),
			Messages: s.Totals.Messages,
			Prompts:  s.Totals.Prompts,
			Tokens:   s.Totals.Tokens,
			Diffs:    s.Totals.Diffs,
			Tools:    maps.Clone(s.Totals.Tools),
			Cost:     s.Totals.Cost,
		},
		Days:          make(map[string]*DayStat, len(s.Days)),
		SessionTitles: maps.Clone(s.SessionTitles),
		Models:        make([]ModelUsage, len(s.Models)),
		SessionFiles:  make(map[string]map[string]bool, len(s.SessionFiles)),
		Processed:     maps.Clone(s.Processed),
		Parents:       maps.Clone(s.Parents),
		Children:      make(map[string][]string, len(s.Children)),
	}
	for day, d := range s.Days {
		out.Days[day] = d.clone()
	}
	for i, mu := range s.Models {
		out.Models[i] = mu.clone()
	}
	for id, files := range s.SessionFiles {
		out.SessionFiles[id] = maps.Clone(files)
	}
	for parent, children := range s.Children {
		out.Children[parent] = append([]string(nil), children...)
	}
	return out
}

func (d *DayStat) clone() *DayStat {
	out := &DayStat{
		Messages: d.Messages,
		Prompts:  d.Prompts,
		Tokens:   d.Tokens,
		Diffs:    d.Diffs,
		Sessions: make(map[string]*SessionStat, len(d.Sessions)),
		Cost:     d.Cost,
	}
	for id, sess := range d.Sessions {
		out.Sessions[id] = sess.clone()
	}
	return out
}

func (s *SessionStat) clone() *SessionStat {
	out := *s
	out.Models = maps.Clone(s.Models)
	out.Tools = maps.Clone(s.Tools)
	out.FileDiffs = append([]FileDiff(nil), s.FileDiffs...)
	out.Agents = make([]AgentInfo, len(s.Agents))
	for i, a := range s.Agents {
		a.Models = maps.Clone(a.Models)
		out.Agents[i] = a
	}
	return &out
}

func (m ModelUsage) clone() ModelUsage {
	out := m
	out.Sessions = maps.Clone(m.Sessions)
	out.Tools = maps.Clone(m.Tools)
	out.Agents = maps.Clone(m.Agents)
	out.DailyTokens = maps.Clone(m.DailyTokens)
	out.DailyLastHour = maps.Clone(m.DailyLastHour)
	return out
}
