package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vishalSecmark/tradewebx-sub002/internal/app"
	"github.com/vishalSecmark/tradewebx-sub002/internal/config"
)

var (
	cfgFile string
	verbose bool
	rootCmd = &cobra.Command{
		Use:   "tradeimport",
		Short: "Chunked, resumable bulk file import",
		Long: `TradeImport uploads CSV, TXT and Excel files to the trading back office
in ordered chunks.

Features:
  • Automatic matching of files to import targets
  • Background queue that survives restarts
  • Per-chunk retries with a consecutive-failure breaker
  • Pause, resume and retry of individual files
  • Reconciliation reports with CSV and Excel export`,
		Version:       "0.3.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is $TRADEIMPORT_HOME/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"verbose output")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = false
}

func initConfig() {
	if _, err := config.Load(cfgFile); err != nil {
		cobra.CheckErr(err)
	}
}

// newApp builds an initialized application from the loaded configuration.
func newApp() (*app.App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Log.Level = "debug"
	}

	a, err := app.New()
	if err != nil {
		return nil, err
	}
	if err := a.InitializeWithConfig(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}
	return a, nil
}

// parseFilters turns key=value pairs into a filter map.
func parseFilters(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	filters := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid filter %q, expected key=value", p)
		}
		filters[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return filters, nil
}
