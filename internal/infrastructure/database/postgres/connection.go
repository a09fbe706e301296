// Package postgres owns the tariff catalog's system of record: the
// connection pool, schema migrations, and the catalog repository the sync
// command reads from.
package postgres

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turtacn/tariffwise/internal/config"
	"github.com/turtacn/tariffwise/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/tariffwise/pkg/errors"
)

// Pool wraps the pgx connection pool with config-driven construction.
type Pool struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// NewPool builds, configures, and pings a connection pool.
func NewPool(ctx context.Context, cfg config.DatabaseConfig, logger logging.Logger) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(DSN(cfg))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "postgres: invalid connection config")
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "postgres: failed to create pool")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "postgres: ping failed")
	}

	logger.Named("postgres").Info("connected",
		logging.String("host", cfg.Host),
		logging.String("database", cfg.DBName))
	return &Pool{pool: pool, logger: logger.Named("postgres")}, nil
}

// Ping verifies the pool is still serviceable.
func (p *Pool) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Raw exposes the underlying pgx pool.
func (p *Pool) Raw() *pgxpool.Pool {
	return p.pool
}

// Close drains the pool.
func (p *Pool) Close() {
	p.pool.Close()
	p.logger.Info("connection pool closed")
}

// DSN renders the postgres connection URL for cfg. The password is URL
// escaped; sslmode defaults to disable.
func DSN(cfg config.DatabaseConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(cfg.User),
		url.QueryEscape(cfg.Password),
		cfg.Host, cfg.Port, cfg.DBName, sslMode)
}
