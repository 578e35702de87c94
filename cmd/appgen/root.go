package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/suPer8Hu/appgen/internal/config"
)

var (
	// cfg is loaded once before any subcommand runs.
	cfg config.Config
	// verbose forces debug logging.
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "appgen",
	Short: "appgen turns a prompt into a runnable single-file app.",
	Long: `appgen runs the LLM app generator: an HTTP API that plans and seeds a
conversation from a prompt, then streams code generation turns from the
configured model backend.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
		if verbose {
			cfg.LogLevel = "debug"
		}
		setupLogging(cfg.LogLevel, cfg.LogFormat)
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func setupLogging(level, format string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}
