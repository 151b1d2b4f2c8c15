package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/oburn/internal/config"
	"github.com/theirongolddev/oburn/internal/stats"
	"github.com/theirongolddev/oburn/internal/statscache"
	"github.com/theirongolddev/oburn/internal/storage"
)

var (
	flagDataDir string
	flagNoCache bool
)

var rootCmd = &cobra.Command{
	Use:   "oburn",
	Short: "opencode usage metrics CLI",
	Long:  "Aggregate opencode usage: tokens, costs, sessions, and line diffs.",
	RunE:  runSummary,
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagDataDir, "data-dir", "d", "", "opencode storage directory")
	rootCmd.PersistentFlags().BoolVar(&flagNoCache, "no-cache", false, "Skip the stats cache, recompute from records")
}

// loadConfig resolves the config file plus the --data-dir override.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	if flagDataDir != "" {
		cfg.General.DataDir = flagDataDir
	}
	return cfg, nil
}

// loadStats is the shared data loading path used by all commands.
func loadStats() (*stats.Stats, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	backend := storage.Open(cfg.DataDir())
	defer func() { _ = backend.Close() }()

	if flagNoCache {
		return stats.Collect(backend), nil
	}
	return statscache.New(backend).LoadOrCompute(), nil
}
