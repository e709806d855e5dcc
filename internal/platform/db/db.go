package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"paycore/internal/platform/config"
)

// Connect opens the pool. Each run worker holds at most one connection while
// committing, so the pool is sized to the run worker count.
func Connect(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConns = int32(max(cfg.RunWorkers+2, 10))
	poolCfg.MinConns = 2
	return pgxpool.NewWithConfig(ctx, poolCfg)
}
