// Package cli defines the tariffwise command tree: serve runs the API
// server, analyze previews the offline pipeline stages, sync rebuilds the
// search indexes, and migrate manages the catalog schema.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/turtacn/tariffwise/internal/config"
	"github.com/turtacn/tariffwise/internal/infrastructure/monitoring/logging"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:     "tariffwise",
		Short:   "Conversational tariff-code classification service",
		Version: fmt.Sprintf("%s (%s)", Version, GitCommit),
		Long: `tariffwise classifies free-text product descriptions into tariff codes
through retrieval, scoring, and clarifying-question dialogue.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to configuration file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (debug|info|warn|error)")

	root.AddCommand(
		newServeCommand(opts),
		newClassifyCommand(opts),
		newAnalyzeCommand(opts),
		newSyncCommand(opts),
		newMigrateCommand(opts),
	)
	return root
}

// Execute runs the CLI and exits nonzero on error.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig resolves configuration for a command run: file when given,
// environment and defaults otherwise, with the log-level flag on top.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.Load(o.configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	return cfg, nil
}

func (o *rootOptions) buildLogger(cfg *config.Config) (logging.Logger, error) {
	return logging.NewLogger(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
}
