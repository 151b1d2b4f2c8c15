package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/oburn/internal/cli"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Usage by model",
	RunE:  runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

func runModels(_ *cobra.Command, _ []string) error {
	s, err := loadStats()
	if err != nil {
		return err
	}
	if len(s.Models) == 0 {
		fmt.Println("\n  No opencode sessions found.")
		return nil
	}

	var peak uint64
	for _, m := range s.Models {
		if total := m.Tokens.Total(); total > peak {
			peak = total
		}
	}

	rows := make([][]string, 0, len(s.Models))
	for _, m := range s.Models {
		name := m.DisplayName
		if name == "" {
			name = m.ShortName
		}
		rows = append(rows, []string{
			name,
			m.Provider,
			cli.FormatNumber(m.Messages),
			cli.FormatNumber(uint64(len(m.Sessions))),
			cli.FormatTokens(m.Tokens.Total()),
			cli.FormatCost(m.Cost),
			cli.RenderBar(float64(m.Tokens.Total()), float64(peak), 12),
		})
	}

	fmt.Println()
	fmt.Println(cli.RenderTable(cli.Table{
		Title:   "Models",
		Headers: []string{"Model", "Provider", "Msgs", "Sessions", "Tokens", "Cost", ""},
		Rows:    rows,
	}))
	return nil
}
