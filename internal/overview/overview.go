// Package overview derives headline figures from aggregated stats:
// peak day, activity averages, chronotype, language mix, and the
// savings versus catalog pricing.
package overview

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/theirongolddev/oburn/internal/pricing"
	"github.com/theirongolddev/oburn/internal/stats"
)

// LangShare is one language's share of changed lines, in percent.
type LangShare struct {
	Name string
	Pct  float64
}

// Overview holds derived headline figures. Day fields carry the
// "2006-01-02" bucket key; durations are milliseconds.
type Overview struct {
	PeakDay          string
	StartDay         string
	ActiveDays       int
	LongestSessionMS int64
	TotalActiveMS    int64
	Savings          float64
	AvgSessions      float64
	AvgCost          float64
	AvgTokens        float64
	Chronotype       string
	FavoriteWeekday  string
	TotalModels      int
	TopLanguages     []LangShare
	HasMoreLangs     bool
}

var chronotypes = [4]string{"Night", "Morning", "Afternoon", "Evening"}

var weekdays = [7]string{
	"Mondays", "Tuesdays", "Wednesdays", "Thursdays",
	"Fridays", "Saturdays", "Sundays",
}

// Compute derives the overview from a stats snapshot. The resolver
// prices each model's recorded tokens; savings is that estimate minus
// the recorded spend. A nil resolver skips the estimate.
func Compute(s *stats.Stats, r *pricing.Resolver) Overview {
	o := Overview{Chronotype: "Unknown", TotalModels: len(s.Models)}
	if len(s.Days) == 0 {
		return o
	}

	days := len(s.Days)
	var (
		peakTokens   uint64
		sessions     int
		costSum      float64
		tokens       uint64
		periodBucket [4]uint64
		dayBucket    [7]uint64
		langCounts   = map[string]uint64{}
	)

	for dayKey, day := range s.Days {
		dayTokens := day.Tokens.Total()
		if dayTokens > peakTokens || o.PeakDay == "" {
			peakTokens = dayTokens
			o.PeakDay = dayKey
		}
		if o.StartDay == "" || dayKey < o.StartDay {
			o.StartDay = dayKey
		}

		sessions += len(day.Sessions)
		costSum += day.Cost
		tokens += dayTokens

		for _, sess := range day.Sessions {
			if sess.ActiveMS > o.LongestSessionMS {
				o.LongestSessionMS = sess.ActiveMS
			}
			o.TotalActiveMS += sess.ActiveMS

			// Sessions that never saw a created timestamp keep the
			// MaxInt64 sentinel and say nothing about chronotype.
			if sess.FirstActivity != math.MaxInt64 {
				hour := secondOfDay(sess.FirstActivity) / 3600
				periodBucket[periodIndex(hour)]++
			}

			for _, d := range sess.FileDiffs {
				ext := pathExt(d.Path)
				if name, ok := languages[ext]; ok {
					langCounts[name] += max(d.Additions+d.Deletions, 1)
				}
			}
		}

		if t, err := time.Parse("2006-01-02", dayKey); err == nil {
			// time.Weekday starts at Sunday; the bucket table at Monday.
			idx := (int(t.Weekday()) + 6) % 7
			dayBucket[idx] += uint64(len(day.Sessions))
		}
	}

	o.ActiveDays = days
	o.AvgSessions = float64(sessions) / float64(days)
	o.AvgCost = costSum / float64(days)
	o.AvgTokens = float64(tokens) / float64(days)
	o.Chronotype = chronotypes[maxIndex(periodBucket[:])]
	o.FavoriteWeekday = weekdays[maxIndex(dayBucket[:])]
	o.TopLanguages, o.HasMoreLangs = topLanguages(langCounts)

	if r != nil {
		est := lo.SumBy(s.Models, func(m stats.ModelUsage) float64 {
			cost, _ := r.EstimateCost(m.ShortName, m.Tokens)
			return cost
		})
		o.Savings = est - s.Totals.Cost
	}
	return o
}

func periodIndex(hour int64) int {
	switch {
	case hour >= 6 && hour <= 11:
		return 1
	case hour >= 12 && hour <= 17:
		return 2
	case hour >= 18 && hour <= 23:
		return 3
	default:
		return 0
	}
}

// secondOfDay maps an epoch-millisecond timestamp onto [0, 86400).
func secondOfDay(ms int64) int64 {
	secs := ms / 1000
	s := secs % 86400
	if s < 0 {
		s += 86400
	}
	return s
}

func maxIndex(buckets []uint64) int {
	best := 0
	for i, v := range buckets {
		if v > buckets[best] {
			best = i
		}
	}
	return best
}

func pathExt(path string) string {
	i := strings.LastIndexByte(path, '.')
	if i < 0 || i == len(path)-1 {
		return ""
	}
	return path[i+1:]
}

// topLanguages returns at most five entries as percentages of all
// counted lines. With more than five languages present, the fifth slot
// is left to the caller's "other" rendering.
func topLanguages(counts map[string]uint64) ([]LangShare, bool) {
	if len(counts) == 0 {
		return nil, false
	}
	total := lo.Sum(lo.Values(counts))
	names := lo.Keys(counts)
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})

	hasMore := len(names) > 5
	keep := 5
	if hasMore {
		keep = 4
	}
	if len(names) < keep {
		keep = len(names)
	}
	out := lo.Map(names[:keep], func(name string, _ int) LangShare {
		return LangShare{Name: name, Pct: float64(counts[name]) / float64(total) * 100}
	})
	return out, hasMore
}

var languages = map[string]string{
	"rs":     "Rust",
	"py":     "Python",
	"js":     "JavaScript",
	"ts":     "TypeScript",
	"tsx":    "TypeScript",
	"go":     "Go",
	"java":   "Java",
	"c":      "C",
	"h":      "C",
	"cpp":    "C++",
	"cc":     "C++",
	"cxx":    "C++",
	"hpp":    "C++",
	"rb":     "Ruby",
	"swift":  "Swift",
	"kt":     "Kotlin",
	"lua":    "Lua",
	"sh":     "Shell",
	"bash":   "Shell",
	"zsh":    "Shell",
	"css":    "CSS",
	"scss":   "CSS",
	"sass":   "CSS",
	"html":   "HTML",
	"htm":    "HTML",
	"json":   "JSON",
	"yaml":   "YAML",
	"yml":    "YAML",
	"toml":   "TOML",
	"md":     "Markdown",
	"mdx":    "Markdown",
	"sql":    "SQL",
	"svelte": "Svelte",
	"vue":    "Vue",
	"dart":   "Dart",
	"zig":    "Zig",
	"ex":     "Elixir",
	"exs":    "Elixir",
	"jl":     "Julia",
}
