package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	"donation-subscription-bot/internal/domain"
	"donation-subscription-bot/internal/domain/model"
	"donation-subscription-bot/internal/domain/ports/adapter"
	"donation-subscription-bot/internal/infra/logging"
	"donation-subscription-bot/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Telegram caps invite link names at 32 characters.
const inviteNameLimit = 32

var _ AccessUseCase = (*accessUC)(nil)

// AccessUseCase answers "am I subscribed" and hands out channel invites.
type AccessUseCase interface {
	Status(ctx context.Context, handle string) (*model.AccessStatus, error)
	Grant(ctx context.Context, channel string, tgID int64, handle string) (string, error)
}

type accessUC struct {
	ledger    LedgerUseCase
	gateway   adapter.ChannelGateway
	inviteTTL time.Duration
	log       *zerolog.Logger
	now       func() time.Time
}

func NewAccessUseCase(ledger LedgerUseCase, gateway adapter.ChannelGateway, inviteTTL time.Duration, logger *zerolog.Logger) *accessUC {
	return &accessUC{
		ledger:    ledger,
		gateway:   gateway,
		inviteTTL: inviteTTL,
		log:       logger,
		now:       time.Now,
	}
}

func (u *accessUC) WithClock(now func() time.Time) *accessUC {
	u.now = now
	return u
}

// Status picks the entry of handle with the latest expiry. It returns
// domain.ErrNotFound when no donation names the handle.
func (u *accessUC) Status(ctx context.Context, handle string) (*model.AccessStatus, error) {
	defer logging.TraceDuration(u.log, "AccessUC.Status")()
	handle = model.NormalizeHandle(handle)
	entries, err := u.ledger.QueryByHandle(ctx, handle)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, domain.ErrNotFound
	}

	best := entries[0]
	for _, e := range entries[1:] {
		if later(e.SubscriptionExpiry, best.SubscriptionExpiry) {
			best = e
		}
	}
	now := u.now()
	st := &model.AccessStatus{Handle: handle, Entry: best, Active: best.IsActive(now)}
	if st.Active {
		st.DaysLeft = int(math.Ceil(best.SubscriptionExpiry.Sub(now).Hours() / 24))
	}
	return st, nil
}

func later(a, b *time.Time) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	}
	return a.After(*b)
}

// Grant returns a single-use invite link for an active subscriber, lifting
// an earlier ban first.
func (u *accessUC) Grant(ctx context.Context, channel string, tgID int64, handle string) (string, error) {
	defer logging.TraceDuration(u.log, "AccessUC.Grant")()
	handle = model.NormalizeHandle(handle)
	if handle == "" {
		return "", fmt.Errorf("%w: telegram username required", domain.ErrInvalidArgument)
	}
	st, err := u.Status(ctx, handle)
	if err != nil {
		return "", err
	}
	if !st.Active {
		return "", domain.ErrNoActiveSubscription
	}

	if err := u.gateway.Unban(ctx, channel, tgID); err != nil {
		u.log.Warn().Err(err).Int64("tg_id", tgID).Msg("could not lift channel ban")
	}

	expireAt := u.now().Add(u.inviteTTL)
	if st.Entry.SubscriptionExpiry.Before(expireAt) {
		expireAt = *st.Entry.SubscriptionExpiry
	}
	name := "sub-" + handle
	if len(name) > inviteNameLimit {
		name = name[:inviteNameLimit]
	}
	link, err := u.gateway.CreateInviteLink(ctx, channel, name, expireAt)
	if err != nil {
		return "", err
	}
	metrics.IncInviteLink()
	u.log.Info().Int64("tg_id", tgID).Str("handle", handle).Time("expires", expireAt).Msg("invite link issued")
	return link, nil
}
