// Package postgres implements the Persistent Store contract
// (repository.Repository) against PostgreSQL via pgx.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolConfig configures the pgxpool.Pool backing the Persistent Store.
// MaxConns defaults to 5 per spec §5 ("connection pool default capacity 5").
type PoolConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	HealthCheckPeriod time.Duration
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.MaxConns == 0 {
		c.MaxConns = 5
	}
	if c.MaxConnLifetime == 0 {
		c.MaxConnLifetime = time.Hour
	}
	if c.MaxConnIdleTime == 0 {
		c.MaxConnIdleTime = 30 * time.Minute
	}
	if c.HealthCheckPeriod == 0 {
		c.HealthCheckPeriod = time.Minute
	}
	return c
}

// Pool wraps a pgxpool.Pool with the connect/close lifecycle the server
// binary drives, plus a cheap liveness flag for the health endpoint.
type Pool struct {
	*pgxpool.Pool
	logger   *slog.Logger
	isClosed atomic.Bool
}

// Connect opens a pool against cfg.DSN and verifies connectivity with a ping.
func Connect(ctx context.Context, cfg PoolConfig, logger *slog.Logger) (*Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	pgxPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	if err := pgxPool.Ping(ctx); err != nil {
		pgxPool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	logger.Info("postgres pool connected", "max_conns", cfg.MaxConns)
	return &Pool{Pool: pgxPool, logger: logger}, nil
}

// Close releases all pooled connections. Safe to call more than once.
func (p *Pool) Close() {
	if p.isClosed.CompareAndSwap(false, true) {
		p.Pool.Close()
		p.logger.Info("postgres pool closed")
	}
}

// Healthy reports whether the pool still answers a ping.
func (p *Pool) Healthy(ctx context.Context) bool {
	if p.isClosed.Load() {
		return false
	}
	return p.Pool.Ping(ctx) == nil
}
