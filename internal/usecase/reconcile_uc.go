package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"donation-subscription-bot/internal/domain"
	"donation-subscription-bot/internal/domain/identity"
	"donation-subscription-bot/internal/domain/model"
	"donation-subscription-bot/internal/domain/ports/adapter"
	"donation-subscription-bot/internal/domain/ports/repository"
	"donation-subscription-bot/internal/infra/logging"
	"donation-subscription-bot/internal/infra/metrics"

	"github.com/rs/zerolog"
)

const reconcileLockKey = "lock:reconcile"

var _ ReconcileUseCase = (*reconcileUC)(nil)

// ReconcileUseCase removes channel members whose subscription has lapsed.
type ReconcileUseCase interface {
	Run(ctx context.Context, channel string) (*model.ReconcileReport, error)
}

type reconcileUC struct {
	ledger  LedgerUseCase
	gateway adapter.ChannelGateway
	locker  repository.Locker
	delay   time.Duration
	log     *zerolog.Logger
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewReconcileUseCase builds the engine. delay throttles the per-user
// membership calls; locker may be nil.
func NewReconcileUseCase(ledger LedgerUseCase, gateway adapter.ChannelGateway, locker repository.Locker, delay time.Duration, logger *zerolog.Logger) *reconcileUC {
	compLog := logger.With().Str("component", "ReconcileUC").Logger()
	return &reconcileUC{
		ledger:  ledger,
		gateway: gateway,
		locker:  locker,
		delay:   delay,
		log:     &compLog,
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

func (u *reconcileUC) WithClock(now func() time.Time) *reconcileUC {
	u.now = now
	return u
}

func (u *reconcileUC) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *reconcileUC {
	u.sleep = sleep
	return u
}

// Run checks every expired entry once. Per-user failures are counted in the
// report; only a failed ledger query or cancellation ends the run early.
func (u *reconcileUC) Run(ctx context.Context, channel string) (*model.ReconcileReport, error) {
	defer logging.TraceDuration(u.log, "ReconcileUC.Run")()
	runID := logging.NewRunID()
	ctx = logging.WithRunID(ctx, runID)
	log := logging.With(ctx, u.log)

	if u.locker != nil {
		token, err := u.locker.TryLock(ctx, reconcileLockKey, runLockTTL)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := u.locker.Unlock(context.WithoutCancel(ctx), reconcileLockKey, token); err != nil {
				log.Warn().Err(err).Msg("failed to release reconcile lock")
			}
		}()
	}

	report := &model.ReconcileReport{RunID: runID, StartedAt: u.now()}
	expired, err := u.ledger.QueryExpired(ctx, report.StartedAt)
	if err != nil {
		return nil, err
	}
	log.Info().Int("expired", len(expired)).Str("channel", channel).Msg("reconciliation started")

	seen := make(map[string]struct{}, len(expired))
	var runErr error
	for _, e := range expired {
		report.Checked++
		handle, ok := identity.Extract(e.AttributionKey)
		if !ok {
			report.Errors++
			log.Error().Str("entry_id", e.ID).Msg("no telegram handle in donation message")
			continue
		}
		lower := strings.ToLower(handle)
		if _, dup := seen[lower]; dup {
			report.Skipped++
			continue
		}
		seen[lower] = struct{}{}

		if u.stillActive(ctx, log, handle) {
			report.Skipped++
			continue
		}

		u.revoke(ctx, log, channel, handle, report)
		if err := u.sleep(ctx, u.delay); err != nil {
			runErr = err
			break
		}
	}

	report.FinishedAt = u.now()
	metrics.ObserveReconcile(report)
	log.Info().
		Int("checked", report.Checked).
		Int("removed", report.Removed).
		Int("not_member", report.NotMember).
		Int("skipped", report.Skipped).
		Int("errors", report.Errors).
		Dur("took", report.FinishedAt.Sub(report.StartedAt)).
		Msg("reconciliation finished")
	return report, runErr
}

// stillActive reports whether handle holds another entry that has not
// lapsed. A lookup failure counts as inactive.
func (u *reconcileUC) stillActive(ctx context.Context, log *zerolog.Logger, handle string) bool {
	entries, err := u.ledger.QueryByHandle(ctx, handle)
	if err != nil {
		log.Warn().Err(err).Str("handle", handle).Msg("could not check other entries of handle")
		return false
	}
	now := u.now()
	for _, e := range entries {
		if e.IsActive(now) {
			return true
		}
	}
	return false
}

func (u *reconcileUC) revoke(ctx context.Context, log *zerolog.Logger, channel, handle string, report *model.ReconcileReport) {
	member, err := u.gateway.LookupMember(ctx, channel, handle)
	switch {
	case errors.Is(err, domain.ErrMemberNotFound):
		report.NotMember++
		log.Info().Str("handle", handle).Msg("user is not in the channel, nothing to revoke")
		return
	case errors.Is(err, domain.ErrInsufficientRights):
		report.Errors++
		log.Error().Err(err).Str("handle", handle).Msg("bot may not inspect channel members")
		return
	case err != nil:
		report.Errors++
		log.Error().Err(err).Str("handle", handle).Msg("membership lookup failed")
		return
	}
	if member.IsPrivileged() {
		report.Skipped++
		log.Warn().Str("handle", handle).Str("status", member.Status).Msg("not revoking a channel administrator")
		return
	}
	if err := u.gateway.Revoke(ctx, channel, member.UserID); err != nil {
		report.Errors++
		log.Error().Err(err).Str("handle", handle).Int64("user_id", member.UserID).Msg("failed to revoke access")
		return
	}
	report.Removed++
	log.Info().Str("handle", handle).Int64("user_id", member.UserID).Msg("access revoked")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
