package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/tabkeeper"
	"github.com/aretw0/tabkeeper/internal/config"
	"github.com/aretw0/tabkeeper/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tabkeeper",
	Short: "tabkeeper keeps the tab for conversational ordering agents",
	Long: `tabkeeper is the session-state core of an ordering and payment agent.
It serves the ordering tools over HTTP or MCP and keeps every session's order,
tab, tip and payment consistent under concurrent access.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("log-level", "", "Override log.level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "Override log.format (text, json)")
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	if f, _ := cmd.Flags().GetString("log-format"); f != "" {
		cfg.Log.Format = f
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	// stdout belongs to command output and the MCP stdio transport
	return logging.NewWithOptions(logging.Options{Level: level, Format: format, Output: os.Stderr}), nil
}

// buildApp wires the application from flags and config.
func buildApp(cmd *cobra.Command, reg prometheus.Registerer) (*tabkeeper.App, *slog.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	opts := []tabkeeper.Option{tabkeeper.WithLogger(logger)}
	if reg != nil {
		opts = append(opts, tabkeeper.WithRegisterer(reg))
	}
	app, err := tabkeeper.New(cfg, opts...)
	if err != nil {
		return nil, nil, err
	}
	return app, logger, nil
}
