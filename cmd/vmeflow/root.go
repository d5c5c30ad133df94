package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/c360/vmeflow/config"
)

// rootOptions holds the global flags shared by all subcommands.
type rootOptions struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "vmeflow - real-time VME readout analysis",
		Long: `vmeflow processes VME detector readout in real time: raw module words
become calibrated parameters, aggregates, filtered subsets, histograms
and export streams, updated event by event while a run is taking data.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c",
		getEnv("VMEFLOW_CONFIG", ""),
		"path to configuration file (env: VMEFLOW_CONFIG)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level",
		getEnv("VMEFLOW_LOG_LEVEL", ""),
		"log level: debug, info, warn, error (env: VMEFLOW_LOG_LEVEL)")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format",
		getEnv("VMEFLOW_LOG_FORMAT", ""),
		"log format: json, text (env: VMEFLOW_LOG_FORMAT)")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newBenchCommand(opts))
	cmd.AddCommand(newDecodeCommand(opts))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build %s)\n", appName, Version, BuildTime)
		},
	}
}

// loadConfig builds the runtime configuration: defaults, then the optional
// config file layer, then environment overrides, then CLI flags.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	loader := config.NewLoader()
	if o.ConfigPath != "" {
		loader.AddLayer(o.ConfigPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}
	if o.LogFormat != "" {
		cfg.Logging.Format = o.LogFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
