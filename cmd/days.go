package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/oburn/internal/cli"
)

var flagDaysLimit int

var daysCmd = &cobra.Command{
	Use:   "days",
	Short: "Per-day usage breakdown",
	RunE:  runDays,
}

func init() {
	daysCmd.Flags().IntVarP(&flagDaysLimit, "limit", "n", 30, "Days to show (most recent first)")
	rootCmd.AddCommand(daysCmd)
}

func runDays(_ *cobra.Command, _ []string) error {
	s, err := loadStats()
	if err != nil {
		return err
	}
	if len(s.Days) == 0 {
		fmt.Println("\n  No opencode sessions found.")
		return nil
	}

	keys := make([]string, 0, len(s.Days))
	for day := range s.Days {
		keys = append(keys, day)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	if flagDaysLimit > 0 && len(keys) > flagDaysLimit {
		keys = keys[:flagDaysLimit]
	}

	rows := make([][]string, 0, len(keys))
	// Sparkline runs oldest to newest.
	series := make([]float64, len(keys))
	for i, day := range keys {
		d := s.Days[day]
		rows = append(rows, []string{
			cli.FormatDate(day),
			cli.FormatNumber(uint64(len(d.Sessions))),
			cli.FormatNumber(d.Prompts),
			cli.FormatTokens(d.Tokens.Total()),
			cli.FormatDiffs(d.Diffs.Additions, d.Diffs.Deletions),
			cli.FormatCost(d.Cost),
		})
		series[len(keys)-1-i] = float64(d.Tokens.Total())
	}

	fmt.Println()
	fmt.Println(cli.RenderTable(cli.Table{
		Title:   "Days",
		Headers: []string{"Day", "Sessions", "Prompts", "Tokens", "Lines", "Cost"},
		Rows:    rows,
	}))
	fmt.Printf("  %s %s\n\n", cli.Muted("tokens"), cli.RenderSparkline(series))
	return nil
}
