package cli

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/tariffwise/internal/app"
)

func newSyncCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Rebuild the search indexes from the catalog database",
		Long: `sync streams the tariff catalog out of Postgres, reindexes every entry
into the lexical index, embeds descriptions, and writes the vectors to the
vector store. Safe to re-run; entries are keyed by code.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			logger, err := opts.buildLogger(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			syncer, err := app.NewSyncer(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer syncer.Close()

			stats, err := syncer.Run(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("synced %d catalog rows: %d indexed, %d embedded in %s\n",
				stats.CatalogRows, stats.Indexed, stats.Embedded, stats.Elapsed.Round(time.Millisecond))
			return nil
		},
	}
}
