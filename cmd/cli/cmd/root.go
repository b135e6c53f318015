// Package cmd provides the CLI commands for arealloc.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"arealloc/adapters/storage"
	"arealloc/core/engine"
	"arealloc/core/share"
	"arealloc/internal/config"
	"arealloc/internal/logging"
)

var (
	cfgFile      string
	verbose      bool
	outputFormat string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "arealloc",
	Short: "Reallocate quantities across geographic partitions",
	Long: `arealloc redistributes a quantity known at one geographic or
categorical partition onto another partition, preserving totals.

It supports count and magnitude shares, dominant-zone and proportional
membership, and strict disaggregation of projected totals down to the
unit level.

Examples:
  arealloc allocate plan.hcl
  arealloc compare plan.hcl
  arealloc project --plan york_durham plans.hcl
  arealloc runs --plan york_durham`,
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.arealloc.json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "", "output format (table, json, csv)")

	// Add subcommands
	rootCmd.AddCommand(allocateCmd)
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(versionCmd)
}

// initConfig reads the config file and wires the logger
func initConfig() {
	path := cfgFile
	if path == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, ".arealloc.json")
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to load config %s: %v\n", path, err)
		cfg = config.Default()
	}
	config.Set(cfg)

	if d, err := decimal.NewFromString(cfg.Tolerance.ShareRelative); err == nil && d.IsPositive() {
		share.ShareDriftTolerance = d
	}

	logCfg := cfg.Logging
	if verbose {
		logCfg.Level = "debug"
	}
	if err := logging.Initialize(logCfg); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to initialize logging: %v\n", err)
	}
}

// newEngine builds the engine over the global logger
func newEngine() *engine.Engine {
	return engine.New(logging.Logger)
}

// openStore opens the configured run store
func openStore() (storage.Store, error) {
	cfg := config.Get()
	return storage.New(storage.Backend(cfg.Store.Backend), cfg.Store.Path)
}
