package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/tariffwise/internal/config"
	"github.com/turtacn/tariffwise/internal/infrastructure/database/postgres"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the catalog database schema",
	}
	cmd.AddCommand(
		newMigrateUpCommand(opts),
		newMigrateDownCommand(opts),
		newMigrateVersionCommand(opts),
	)
	return cmd
}

func newMigrateUpCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(*cobra.Command, []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			url, path, err := migrationTarget(cfg)
			if err != nil {
				return err
			}
			if err := postgres.RunMigrations(url, path); err != nil {
				return err
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
}

func newMigrateDownCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "down <steps>",
		Short: "Roll back the given number of migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			steps, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid step count %q: %w", args[0], err)
			}
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			url, path, err := migrationTarget(cfg)
			if err != nil {
				return err
			}
			if err := postgres.RollbackMigrations(url, path, steps); err != nil {
				return err
			}
			fmt.Printf("rolled back %d migration(s)\n", steps)
			return nil
		},
	}
}

func newMigrateVersionCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(*cobra.Command, []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			url, path, err := migrationTarget(cfg)
			if err != nil {
				return err
			}
			version, dirty, err := postgres.MigrationVersion(url, path)
			if err != nil {
				return err
			}
			if version == 0 {
				fmt.Println("no migrations applied")
				return nil
			}
			fmt.Printf("version %d (dirty: %t)\n", version, dirty)
			return nil
		},
	}
}

func migrationTarget(cfg *config.Config) (dbURL, path string, err error) {
	if cfg.Database.MigrationPath == "" {
		return "", "", fmt.Errorf("database.migration_path is not configured")
	}
	return postgres.DSN(cfg.Database), cfg.Database.MigrationPath, nil
}
