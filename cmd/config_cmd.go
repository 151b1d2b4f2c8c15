// Package cmd implements the oburn CLI commands.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/oburn/internal/config"
)

var flagConfigInit bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	RunE:  runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&flagConfigInit, "init", false, "Write a default config file")
	rootCmd.AddCommand(configCmd)
}

func runConfig(_ *cobra.Command, _ []string) error {
	if flagConfigInit && !config.Exists() {
		if err := config.Save(config.DefaultConfig()); err != nil {
			return err
		}
		fmt.Printf("  Wrote %s\n", config.ConfigPath())
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Printf("  Config file: %s\n", config.ConfigPath())
	if config.Exists() {
		fmt.Println("  Status: loaded")
	} else {
		fmt.Println("  Status: using defaults (no config file)")
	}
	fmt.Println()

	fmt.Println("  [General]")
	fmt.Printf("    Data directory:  %s\n", cfg.DataDir())
	fmt.Printf("    Cache directory: %s\n", cfg.CacheDir())
	fmt.Println()

	fmt.Println("  [Daemon]")
	fmt.Printf("    Address:  %s\n", cfg.Daemon.Addr)
	fmt.Printf("    Interval: %s\n", cfg.Interval())
	fmt.Println()

	fmt.Println("  [Pricing]")
	if cfg.Pricing.CatalogURL != "" {
		fmt.Printf("    Catalog URL: %s\n", cfg.Pricing.CatalogURL)
	} else {
		fmt.Println("    Catalog URL: default (openrouter.ai)")
	}
	return nil
}
