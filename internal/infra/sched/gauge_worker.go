package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"donation-subscription-bot/internal/infra/metrics"
	"donation-subscription-bot/internal/usecase"
)

// PoolStater reports connection pool usage.
type PoolStater interface {
	Snapshot() metrics.PoolSnapshot
}

// GaugeWorker refreshes the subscription and pool gauges.
type GaugeWorker struct {
	interval time.Duration
	statsUC  usecase.StatsUseCase
	pool     PoolStater
	log      *zerolog.Logger
}

// NewGaugeWorker builds the worker. pool may be nil.
func NewGaugeWorker(interval time.Duration, statsUC usecase.StatsUseCase, pool PoolStater, logger *zerolog.Logger) *GaugeWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	compLog := logger.With().Str("component", "GaugeWorker").Logger()
	return &GaugeWorker{
		interval: interval,
		statsUC:  statsUC,
		pool:     pool,
		log:      &compLog,
	}
}

func (w *GaugeWorker) Run(ctx context.Context) error {
	return every(ctx, w.interval, w.refresh)
}

func (w *GaugeWorker) refresh(ctx context.Context) {
	if w.pool != nil {
		metrics.SetDBPool(w.pool.Snapshot())
	}
	st, err := w.statsUC.Summary(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Warn().Err(err).Msg("failed to refresh subscription gauges")
		}
		return
	}
	metrics.SetSubscriptionsTotal(st)
}
