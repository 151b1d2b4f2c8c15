package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/oburn/internal/cli"
	"github.com/theirongolddev/oburn/internal/stats"
)

var flagSessionsLimit int

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Recent sessions with per-session detail",
	RunE:  runSessions,
}

func init() {
	sessionsCmd.Flags().IntVarP(&flagSessionsLimit, "limit", "n", 20, "Sessions to show (most recent first)")
	rootCmd.AddCommand(sessionsCmd)
}

type sessionRow struct {
	day  string
	stat *stats.SessionStat
}

// sessionTableRows flattens the day buckets into table rows, most
// recent first. Continuations and spawned subagents show as muted
// suffixes on the title.
func sessionTableRows(s *stats.Stats, limit int) [][]string {
	var all []sessionRow
	for day, d := range s.Days {
		for _, sess := range d.Sessions {
			all = append(all, sessionRow{day: day, stat: sess})
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].stat.LastActivity != all[j].stat.LastActivity {
			return all[i].stat.LastActivity > all[j].stat.LastActivity
		}
		return all[i].stat.ID < all[j].stat.ID
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}

	rows := make([][]string, 0, len(all))
	for _, row := range all {
		title := s.SessionTitles[row.stat.ID]
		if title == "" {
			title = row.stat.ID
		}
		if r := []rune(title); len(r) > 40 {
			title = string(r[:39]) + "…"
		}
		if row.stat.IsContinuation {
			title += " " + cli.Muted("(cont.)")
		}
		if kids := len(s.Children[row.stat.ID]); kids > 0 {
			label := "agents"
			if kids == 1 {
				label = "agent"
			}
			title += " " + cli.Muted(fmt.Sprintf("+%d %s", kids, label))
		}
		rows = append(rows, []string{
			title,
			cli.FormatDate(row.day),
			cli.FormatNumber(row.stat.Prompts),
			cli.FormatTokens(row.stat.Tokens.Total()),
			cli.FormatActiveDuration(row.stat.ActiveMS),
			cli.FormatDiffs(row.stat.Diffs.Additions, row.stat.Diffs.Deletions),
			cli.FormatCost(row.stat.Cost),
		})
	}
	return rows
}

func runSessions(_ *cobra.Command, _ []string) error {
	s, err := loadStats()
	if err != nil {
		return err
	}

	rows := sessionTableRows(s, flagSessionsLimit)
	if len(rows) == 0 {
		fmt.Println("\n  No opencode sessions found.")
		return nil
	}

	fmt.Println()
	fmt.Println(cli.RenderTable(cli.Table{
		Title:   "Sessions",
		Headers: []string{"Session", "Day", "Prompts", "Tokens", "Active", "Lines", "Cost"},
		Rows:    rows,
	}))
	return nil
}
