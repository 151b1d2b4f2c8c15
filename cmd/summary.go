package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/oburn/internal/cli"
	"github.com/theirongolddev/oburn/internal/config"
	"github.com/theirongolddev/oburn/internal/overview"
	"github.com/theirongolddev/oburn/internal/pricing"
	"github.com/theirongolddev/oburn/internal/stats"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Detailed usage summary with costs",
	RunE:  runSummary,
}

func init() {
	rootCmd.AddCommand(summaryCmd)
}

func newResolver(cfg config.Config) *pricing.Resolver {
	if cfg.Pricing.CatalogURL != "" {
		return pricing.NewResolverWith(cfg.Pricing.CatalogURL,
			filepath.Join(cfg.CacheDir(), "pricing.json"))
	}
	return pricing.NewResolver()
}

func totalsRows(s *stats.Stats, o overview.Overview) [][]string {
	return [][]string{
		{"Sessions", cli.FormatNumber(uint64(len(s.Totals.Sessions)))},
		{"Messages", cli.FormatNumber(s.Totals.Messages)},
		{"Prompts", cli.FormatNumber(s.Totals.Prompts)},
		{"Active Time", cli.FormatActiveDuration(o.TotalActiveMS)},
		{"---"},
		{"Input Tokens", cli.FormatTokens(s.Totals.Tokens.Input)},
		{"Output Tokens", cli.FormatTokens(s.Totals.Tokens.Output)},
		{"Reasoning Tokens", cli.FormatTokens(s.Totals.Tokens.Reasoning)},
		{"Cache Read", cli.FormatTokens(s.Totals.Tokens.CacheRead)},
		{"Cache Write", cli.FormatTokens(s.Totals.Tokens.CacheWrite)},
		{"---"},
		{"Lines Changed", cli.FormatDiffs(s.Totals.Diffs.Additions, s.Totals.Diffs.Deletions)},
		{"Cost", cli.FormatCost(s.Totals.Cost)},
		{"Est. Savings", cli.FormatCost(o.Savings)},
	}
}

func runSummary(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := loadStats()
	if err != nil {
		return err
	}

	if len(s.Days) == 0 {
		fmt.Println("\n  No opencode sessions found.")
		fmt.Println("  Use opencode first, then come back!")
		return nil
	}

	o := overview.Compute(s, newResolver(cfg))

	fmt.Println()
	fmt.Println(cli.RenderTitle("OPENCODE USAGE"))
	fmt.Println()

	fmt.Println(cli.RenderTable(cli.Table{Title: "Totals", Rows: totalsRows(s, o)}))

	habits := [][]string{
		{"Start Day", cli.FormatDate(o.StartDay)},
		{"Peak Day", cli.FormatDate(o.PeakDay)},
		{"Active Days", fmt.Sprintf("%d", o.ActiveDays)},
		{"Avg Sessions", fmt.Sprintf("%.1f/day", o.AvgSessions)},
		{"Avg Cost", cli.FormatCost(o.AvgCost) + "/day"},
		{"Avg Tokens", cli.FormatTokens(uint64(o.AvgTokens)) + "/day"},
		{"Longest Session", cli.FormatActiveDuration(o.LongestSessionMS)},
		{"Chronotype", o.Chronotype},
		{"Favorite Day", o.FavoriteWeekday},
		{"Models Used", fmt.Sprintf("%d", o.TotalModels)},
	}
	fmt.Println(cli.RenderTable(cli.Table{Title: "Habits", Rows: habits}))

	if len(o.TopLanguages) > 0 {
		langRows := make([][]string, 0, len(o.TopLanguages)+1)
		for _, l := range o.TopLanguages {
			langRows = append(langRows, []string{l.Name, cli.FormatPercent(l.Pct)})
		}
		if o.HasMoreLangs {
			langRows = append(langRows, []string{"…", ""})
		}
		fmt.Println(cli.RenderTable(cli.Table{Title: "Languages", Rows: langRows}))
	}

	return nil
}
