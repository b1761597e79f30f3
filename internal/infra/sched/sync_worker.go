package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"donation-subscription-bot/internal/domain/model"
	"donation-subscription-bot/internal/infra/scheduler"
	"donation-subscription-bot/internal/usecase"
)

// SyncWorker pulls new donations into the ledger on a fixed interval.
type SyncWorker struct {
	interval time.Duration
	timeout  time.Duration
	syncUC   usecase.SyncUseCase
	log      *zerolog.Logger
}

func NewSyncWorker(interval, timeout time.Duration, syncUC usecase.SyncUseCase, logger *zerolog.Logger) *SyncWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	compLog := logger.With().Str("component", "SyncWorker").Logger()
	return &SyncWorker{
		interval: interval,
		timeout:  timeout,
		syncUC:   syncUC,
		log:      &compLog,
	}
}

func (w *SyncWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting sync worker")
	err := every(ctx, w.interval, w.tick)
	w.log.Info().Msg("Stopping sync worker")
	return err
}

func (w *SyncWorker) tick(ctx context.Context) {
	var rep *model.SyncReport
	err := scheduler.Run(ctx, w.log, "sync", w.timeout, func(ctx context.Context) error {
		var err error
		rep, err = w.syncUC.Sync(ctx)
		return err
	})
	if err != nil || rep == nil {
		return
	}
	w.log.Info().
		Str("run_id", rep.RunID).
		Int("inserted", rep.Stats.Inserted).
		Int("updated", rep.Stats.Updated).
		Int("duplicates", rep.Stats.Duplicates).
		Int("failed", rep.Stats.Failed).
		Bool("partial", rep.Partial).
		Msg("scheduled sync done")
}
