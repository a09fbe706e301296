// API server entry point for tariffwise. Equivalent to `tariffwise serve`
// but with a flag surface suited to container images.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/turtacn/tariffwise/internal/app"
	"github.com/turtacn/tariffwise/internal/config"
	"github.com/turtacn/tariffwise/internal/infrastructure/database/postgres"
	"github.com/turtacn/tariffwise/internal/infrastructure/monitoring/logging"
)

const defaultShutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "path to configuration file (env-only when empty)")
	httpPort := flag.Int("http-port", 0, "HTTP listen port (overrides config)")
	skipMigrations := flag.Bool("skip-migrations", false, "do not run schema migrations on startup")
	flag.Parse()

	if err := run(*configPath, *httpPort, *skipMigrations); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(configPath string, httpPort int, skipMigrations bool) error {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		return err
	}
	if httpPort > 0 {
		cfg.Server.Port = httpPort
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return err
	}

	if !skipMigrations && cfg.Database.MigrationPath != "" {
		if err := postgres.RunMigrations(postgres.DSN(cfg.Database), cfg.Database.MigrationPath); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- a.Server.Start() }()

	logger.Info("apiserver started",
		logging.String("addr", fmt.Sprintf(":%d", cfg.Server.Port)))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := a.Server.Stop(shutdownCtx); err != nil {
		logger.Error("shutdown incomplete", logging.Err(err))
		return err
	}
	logger.Info("apiserver stopped")
	return nil
}
