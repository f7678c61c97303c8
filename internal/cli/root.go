package cli

import (
	"github.com/spf13/cobra"

	"github.com/mindlog-lab/mindlog/internal/config"
)

var (
	cfg = config.Load()

	dbPath    string
	logLevel  string
	logFormat string
	rulesPath string
)

var rootCmd = &cobra.Command{
	Use:   "mindlog",
	Short: "Mindlog - sentiment triage with a response A/B experiment",
	Long: `Mindlog classifies chat messages for sentiment and crisis risk, assigns
each session to a clinical or empathetic response arm, logs every turn and
reports whether the empathetic arm converts better.

Crisis sessions always get the crisis resources and never enter the experiment.

Running without a subcommand starts the server (same as 'mindlog serve').`,
	SilenceUsage: true,
	RunE:         runServe, // Default action is to start server
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", cfg.DBPath, "database path (\":memory:\" for an in-memory store)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", cfg.LogFormat, "log format (json or console)")
	rootCmd.PersistentFlags().StringVar(&rulesPath, "rules", cfg.RulesPath, "YAML triage rules overriding the defaults")

	rootCmd.Flags().IntVarP(&port, "port", "p", cfg.Port, "port to listen on")
}
