package usecase

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"donation-subscription-bot/internal/domain"
	"donation-subscription-bot/internal/domain/identity"
	"donation-subscription-bot/internal/domain/model"
	"donation-subscription-bot/internal/domain/ports/adapter"
	"donation-subscription-bot/internal/domain/ports/repository"
	"donation-subscription-bot/internal/infra/i18n"
	"donation-subscription-bot/internal/infra/logging"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ NotificationUseCase = (*notificationUC)(nil)

type NotificationUseCase interface {
	// SendExpiryReminders messages subscribers whose access ends within one
	// of the reminder thresholds and returns how many were sent.
	SendExpiryReminders(ctx context.Context) (int, error)
}

type notificationUC struct {
	ledger     repository.LedgerRepository
	members    repository.MemberRepository
	reminders  repository.ReminderLogRepository
	bot        adapter.MessageSender
	translator *i18n.Translator
	thresholds []int
	loc        *time.Location
	log        *zerolog.Logger
	now        func() time.Time
}

func NewNotificationUseCase(
	ledger repository.LedgerRepository,
	members repository.MemberRepository,
	reminders repository.ReminderLogRepository,
	bot adapter.MessageSender,
	translator *i18n.Translator,
	thresholdDays []int,
	loc *time.Location,
	logger *zerolog.Logger,
) *notificationUC {
	th := append([]int(nil), thresholdDays...)
	sort.Ints(th)
	if loc == nil {
		loc = time.UTC
	}
	return &notificationUC{
		ledger:     ledger,
		members:    members,
		reminders:  reminders,
		bot:        bot,
		translator: translator,
		thresholds: th,
		loc:        loc,
		log:        logger,
		now:        time.Now,
	}
}

func (n *notificationUC) WithClock(now func() time.Time) *notificationUC {
	n.now = now
	return n
}

func (n *notificationUC) SendExpiryReminders(ctx context.Context) (int, error) {
	defer logging.TraceDuration(n.log, "NotificationUC.SendExpiryReminders")()
	if len(n.thresholds) == 0 {
		return 0, nil
	}
	now := n.now()
	horizon := now.AddDate(0, 0, n.thresholds[len(n.thresholds)-1])
	entries, err := n.ledger.ListExpiring(ctx, repository.NoTX, now, horizon)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		if n.remind(ctx, e, now) {
			sent++
		}
	}
	return sent, nil
}

// remind sends at most one message per entry, for the tightest threshold the
// expiry falls into.
func (n *notificationUC) remind(ctx context.Context, e *model.LedgerEntry, now time.Time) bool {
	left := e.SubscriptionExpiry.Sub(now)
	threshold := -1
	for _, d := range n.thresholds {
		if left <= time.Duration(d)*24*time.Hour {
			threshold = d
			break
		}
	}
	if threshold < 0 {
		return false
	}

	done, err := n.reminders.Exists(ctx, repository.NoTX, e.ID, *e.SubscriptionExpiry, threshold)
	if err != nil {
		n.log.Warn().Err(err).Str("entry_id", e.ID).Msg("reminder log lookup failed")
		return false
	}
	if done {
		return false
	}

	handle, ok := identity.Extract(e.AttributionKey)
	if !ok {
		return false
	}
	member, err := n.members.FindByUsername(ctx, repository.NoTX, handle)
	if errors.Is(err, domain.ErrNotFound) {
		n.log.Debug().Str("handle", handle).Msg("no chat with subscriber, reminder skipped")
		return false
	}
	if err != nil {
		n.log.Warn().Err(err).Str("handle", handle).Msg("member lookup failed")
		return false
	}

	days := int(math.Ceil(left.Hours() / 24))
	text := n.translator.T("reminder.expiring", n.translator.Date(e.SubscriptionExpiry.In(n.loc)), days)
	if err := n.bot.SendMessage(ctx, member.TelegramID, text); err != nil {
		n.log.Warn().Err(err).Int64("tg_id", member.TelegramID).Msg("failed to send expiry reminder")
		return false
	}
	if err := n.reminders.Save(ctx, repository.NoTX, e.ID, *e.SubscriptionExpiry, threshold, member.TelegramID); err != nil {
		n.log.Warn().Err(err).Str("entry_id", e.ID).Msg("failed to record expiry reminder")
	}
	return true
}
