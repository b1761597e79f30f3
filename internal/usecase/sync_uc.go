package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"donation-subscription-bot/internal/domain/model"
	"donation-subscription-bot/internal/domain/ports/adapter"
	"donation-subscription-bot/internal/domain/ports/repository"
	"donation-subscription-bot/internal/infra/logging"

	"github.com/rs/zerolog"
)

const (
	syncLockKey = "lock:sync"
	runLockTTL  = 30 * time.Minute
)

var _ SyncUseCase = (*syncUC)(nil)

// SyncUseCase pulls new donations from the feed into the ledger.
type SyncUseCase interface {
	// Sync fetches from the stored watermark (minus an overlap) up to now.
	Sync(ctx context.Context) (*model.SyncReport, error)
	// SyncRange refetches an explicit window and leaves the watermark alone.
	SyncRange(ctx context.Context, start, end time.Time) (*model.SyncReport, error)
}

type SyncOptions struct {
	Overlap         time.Duration
	InitialLookback time.Duration
}

type syncUC struct {
	feed   adapter.DonationFeed
	ledger LedgerUseCase
	cursor repository.SyncCursor
	locker repository.Locker
	opts   SyncOptions
	log    *zerolog.Logger
	now    func() time.Time
}

// NewSyncUseCase builds the sync flow. locker may be nil.
func NewSyncUseCase(feed adapter.DonationFeed, ledger LedgerUseCase, cursor repository.SyncCursor, locker repository.Locker, opts SyncOptions, logger *zerolog.Logger) *syncUC {
	compLog := logger.With().Str("component", "SyncUC").Logger()
	return &syncUC{
		feed:   feed,
		ledger: ledger,
		cursor: cursor,
		locker: locker,
		opts:   opts,
		log:    &compLog,
		now:    time.Now,
	}
}

func (u *syncUC) WithClock(now func() time.Time) *syncUC {
	u.now = now
	return u
}

func (u *syncUC) Sync(ctx context.Context) (*model.SyncReport, error) {
	defer logging.TraceDuration(u.log, "SyncUC.Sync")()
	end := u.now()
	start := end.Add(-u.opts.InitialLookback)
	if mark, ok, err := u.cursor.Load(ctx); err != nil {
		u.log.Warn().Err(err).Msg("could not load sync watermark, using initial lookback")
	} else if ok {
		start = mark.Add(-u.opts.Overlap)
	}
	return u.run(ctx, start, end, true)
}

func (u *syncUC) SyncRange(ctx context.Context, start, end time.Time) (*model.SyncReport, error) {
	defer logging.TraceDuration(u.log, "SyncUC.SyncRange")()
	return u.run(ctx, start, end, false)
}

func (u *syncUC) run(ctx context.Context, start, end time.Time, advance bool) (*model.SyncReport, error) {
	runID := logging.NewRunID()
	ctx = logging.WithRunID(ctx, runID)
	log := logging.With(ctx, u.log)

	if u.locker != nil {
		token, err := u.locker.TryLock(ctx, syncLockKey, runLockTTL)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := u.locker.Unlock(context.WithoutCancel(ctx), syncLockKey, token); err != nil {
				log.Warn().Err(err).Msg("failed to release sync lock")
			}
		}()
	}

	log.Info().Time("from", start).Time("to", end).Msg("donation sync started")
	res, err := u.feed.FetchRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("fetch donations: %w", err)
	}

	// the feed is newest first; merges must follow donation order
	events := append([]model.DonationEvent(nil), res.Events...)
	sort.SliceStable(events, func(i, j int) bool { return events[i].OccurredAt.Before(events[j].OccurredAt) })

	report := &model.SyncReport{
		RunID:   runID,
		From:    start,
		To:      end,
		Pages:   res.Pages,
		Partial: res.Partial,
		Stats:   u.ledger.UpsertBatch(ctx, events),
	}

	switch newest, ok := res.Newest(); {
	case res.Partial:
		log.Warn().Int("pages", res.Pages).Msg("donation feed returned a partial result, watermark kept")
	case advance && ok:
		if retry := report.Stats.RetryFrom; retry != nil && retry.Before(newest) {
			log.Warn().Time("retry_from", *retry).Int("failed", report.Stats.Failed).Msg("donations failed to apply, watermark held back")
			newest = *retry
		}
		if err := u.cursor.Store(ctx, newest); err != nil {
			log.Warn().Err(err).Msg("failed to store sync watermark")
		}
	}

	log.Info().
		Int("pages", report.Pages).
		Int("events", len(events)).
		Bool("partial", report.Partial).
		Msg("donation sync finished")
	return report, nil
}
