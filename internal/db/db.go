package db

import (
    "context"
    "errors"
    "fmt"
    "time"

    "github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoDatabase is returned when no connection string was configured.
var ErrNoDatabase = errors.New("DATABASE_URL is not set")

// NewPool opens the quote log pool and pings it once. The quote log is
// write-mostly and low volume, so the pool stays small and statements are
// cut short before they can stall an estimate.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
    if databaseURL == "" {
        return nil, ErrNoDatabase
    }
    cfg, err := pgxpool.ParseConfig(databaseURL)
    if err != nil {
        return nil, fmt.Errorf("parse database url: %w", err)
    }
    cfg.MaxConns = 4
    cfg.MinConns = 0
    cfg.MaxConnLifetime = 30 * time.Minute
    cfg.MaxConnIdleTime = 5 * time.Minute
    cfg.HealthCheckPeriod = time.Minute
    params := cfg.ConnConfig.RuntimeParams
    params["application_name"] = "shipestimate-api"
    params["timezone"] = "UTC"
    params["statement_timeout"] = "2000"                   // ms
    params["idle_in_transaction_session_timeout"] = "5000" // ms

    pool, err := pgxpool.NewWithConfig(ctx, cfg)
    if err != nil {
        return nil, fmt.Errorf("open pool: %w", err)
    }
    if err := pool.Ping(ctx); err != nil {
        pool.Close()
        return nil, fmt.Errorf("ping database: %w", err)
    }
    return pool, nil
}
