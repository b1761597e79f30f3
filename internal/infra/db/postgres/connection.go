package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"donation-subscription-bot/internal/infra/metrics"
)

// NewPgxPool parses url, caps the pool at maxConns and waits up to 5s for a
// first connection.
func NewPgxPool(ctx context.Context, url string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MinConns = 1
	cfg.MaxConnIdleTime = 5 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.Connect failed: %w", err)
	}
	return pool, nil
}

// PoolStats adapts a pool to the gauge worker.
type PoolStats struct {
	Pool *pgxpool.Pool
}

func (p PoolStats) Snapshot() metrics.PoolSnapshot {
	s := p.Pool.Stat()
	return metrics.PoolSnapshot{
		Total:         s.TotalConns(),
		Idle:          s.IdleConns(),
		InUse:         s.AcquiredConns(),
		Max:           s.MaxConns(),
		EmptyAcquires: s.EmptyAcquireCount(),
	}
}
