package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"donation-subscription-bot/internal/domain"
	"donation-subscription-bot/internal/domain/identity"
	"donation-subscription-bot/internal/domain/model"
	"donation-subscription-bot/internal/domain/ports/repository"
	"donation-subscription-bot/internal/infra/logging"
	"donation-subscription-bot/internal/infra/metrics"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	maxLookupLength = 100
	searchLimit     = 50
)

// Compile-time check
var _ LedgerUseCase = (*ledgerUC)(nil)

// LedgerUseCase owns the subscription ledger: folding donations into entries
// and the lookups the bot, the API and reconciliation run against it.
type LedgerUseCase interface {
	Upsert(ctx context.Context, key string, amount decimal.Decimal, observedAt time.Time) (*model.UpsertResult, error)
	// Apply is Upsert keyed by the event message that also records the event
	// id, so a redelivered donation is reported as a duplicate.
	Apply(ctx context.Context, ev model.DonationEvent) (*model.UpsertResult, error)
	UpsertBatch(ctx context.Context, events []model.DonationEvent) model.BatchStats
	QueryByAttribution(ctx context.Context, substring string) ([]*model.LedgerEntry, error)
	QueryByHandle(ctx context.Context, handle string) ([]*model.LedgerEntry, error)
	QueryExpired(ctx context.Context, asOf time.Time) ([]*model.LedgerEntry, error)
	Get(ctx context.Context, id string) (*model.LedgerEntry, error)
	List(ctx context.Context) ([]*model.LedgerEntry, error)
}

// errDuplicateDonation rolls back a transaction whose event id was already applied.
var errDuplicateDonation = errors.New("donation already applied")

type ledgerUC struct {
	ledger repository.LedgerRepository
	tm     repository.TransactionManager
	log    *zerolog.Logger
	now    func() time.Time
}

func NewLedgerUseCase(ledger repository.LedgerRepository, tm repository.TransactionManager, logger *zerolog.Logger) *ledgerUC {
	return &ledgerUC{
		ledger: ledger,
		tm:     tm,
		log:    logger,
		now:    time.Now,
	}
}

// WithClock replaces the wall clock used as "now" for expiry extension.
func (u *ledgerUC) WithClock(now func() time.Time) *ledgerUC {
	u.now = now
	return u
}

func (u *ledgerUC) Upsert(ctx context.Context, key string, amount decimal.Decimal, observedAt time.Time) (*model.UpsertResult, error) {
	defer logging.TraceDuration(u.log, "LedgerUC.Upsert")()
	if err := validateDonation(key, amount); err != nil {
		return nil, err
	}
	return u.upsert(ctx, key, amount, observedAt, "")
}

func (u *ledgerUC) Apply(ctx context.Context, ev model.DonationEvent) (*model.UpsertResult, error) {
	defer logging.TraceDuration(u.log, "LedgerUC.Apply")()
	if err := validateDonation(ev.AttributionText, ev.Amount); err != nil {
		return nil, err
	}
	return u.upsert(ctx, ev.AttributionText, ev.Amount, ev.OccurredAt, ev.ExternalID)
}

func validateDonation(key string, amount decimal.Decimal) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: empty donation message", domain.ErrInvalidArgument)
	}
	if amount.IsNegative() {
		return fmt.Errorf("%w: negative amount %s", domain.ErrInvalidArgument, amount)
	}
	return nil
}

// upsert runs the merge in one transaction. An insert that loses the race for
// a new key fails on the unique index and is retried once as a merge.
func (u *ledgerUC) upsert(ctx context.Context, key string, amount decimal.Decimal, observedAt time.Time, externalID string) (*model.UpsertResult, error) {
	txOpts := pgx.TxOptions{IsoLevel: pgx.ReadCommitted}
	for attempt := 0; attempt < 2; attempt++ {
		var res *model.UpsertResult
		err := u.tm.WithTx(ctx, txOpts, func(ctx context.Context, tx repository.Tx) error {
			r, err := u.upsertTx(ctx, tx, key, amount, observedAt, externalID)
			res = r
			return err
		})
		switch {
		case errors.Is(err, domain.ErrAlreadyExists):
			u.log.Debug().Int("attempt", attempt).Msg("ledger insert lost a race, retrying as merge")
			continue
		case errors.Is(err, errDuplicateDonation):
			return &model.UpsertResult{Outcome: model.UpsertDuplicate}, nil
		case err != nil:
			return nil, err
		}
		return res, nil
	}
	return nil, fmt.Errorf("%w: attribution key contention", domain.ErrOperationFailed)
}

func (u *ledgerUC) upsertTx(ctx context.Context, tx repository.Tx, key string, amount decimal.Decimal, observedAt time.Time, externalID string) (*model.UpsertResult, error) {
	now := u.now()
	if externalID != "" {
		done, err := u.ledger.IsProcessed(ctx, tx, externalID)
		if err != nil {
			return nil, err
		}
		if done {
			return nil, errDuplicateDonation
		}
	}

	outcome := model.UpsertUpdated
	entry, err := u.ledger.FindByKeyForUpdate(ctx, tx, key)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		entry, err = model.NewLedgerEntry("", key, amount, observedAt, now)
		if err != nil {
			return nil, err
		}
		if err := u.ledger.Insert(ctx, tx, entry); err != nil {
			return nil, err
		}
		outcome = model.UpsertInserted
	case err != nil:
		return nil, err
	default:
		if err := entry.Merge(amount, observedAt, now); err != nil {
			return nil, err
		}
		if err := u.ledger.Update(ctx, tx, entry); err != nil {
			return nil, err
		}
	}

	if externalID != "" {
		fresh, err := u.ledger.MarkProcessed(ctx, tx, externalID, entry.ID, now)
		if err != nil {
			return nil, err
		}
		if !fresh {
			return nil, errDuplicateDonation
		}
	}
	return &model.UpsertResult{Outcome: outcome, EntryID: entry.ID}, nil
}

// UpsertBatch applies events in the given order, each in its own
// transaction. A bad event is counted as failed and the batch moves on;
// failures other than a rejected donation set RetryFrom.
func (u *ledgerUC) UpsertBatch(ctx context.Context, events []model.DonationEvent) model.BatchStats {
	defer logging.TraceDuration(u.log, "LedgerUC.UpsertBatch")()
	log := logging.With(ctx, u.log)

	var stats model.BatchStats
	for _, ev := range events {
		stats.Total++
		res, err := u.Apply(ctx, ev)
		if err != nil {
			retryable := !errors.Is(err, domain.ErrInvalidArgument)
			stats.Fail(ev.OccurredAt, retryable)
			log.Warn().Err(err).Str("donation_id", ev.ExternalID).Bool("retryable", retryable).Msg("failed to apply donation")
			continue
		}
		stats.Add(res.Outcome)
	}
	metrics.ObserveBatch(stats)
	log.Info().
		Int("total", stats.Total).
		Int("inserted", stats.Inserted).
		Int("updated", stats.Updated).
		Int("duplicates", stats.Duplicates).
		Int("failed", stats.Failed).
		Msg("donation batch applied")
	return stats
}

// ValidateLookup rejects lookup input that is empty, longer than 100
// characters or contains NUL.
func ValidateLookup(s string) error {
	switch {
	case strings.TrimSpace(s) == "":
		return fmt.Errorf("%w: empty lookup", domain.ErrValidation)
	case utf8.RuneCountInString(s) > maxLookupLength:
		return fmt.Errorf("%w: lookup longer than %d characters", domain.ErrValidation, maxLookupLength)
	case strings.ContainsRune(s, 0):
		return fmt.Errorf("%w: lookup contains NUL", domain.ErrValidation)
	}
	return nil
}

// QueryByAttribution returns entries whose message contains substring. Invalid
// input yields an empty result.
func (u *ledgerUC) QueryByAttribution(ctx context.Context, substring string) ([]*model.LedgerEntry, error) {
	defer logging.TraceDuration(u.log, "LedgerUC.QueryByAttribution")()
	if err := ValidateLookup(substring); err != nil {
		u.log.Warn().Err(err).Msg("rejected ledger lookup")
		return []*model.LedgerEntry{}, nil
	}
	return u.ledger.SearchByKey(ctx, repository.NoTX, strings.TrimSpace(substring), searchLimit)
}

// QueryByHandle returns the entries that belong to handle: the message is the
// handle itself, or the handle is what extraction picks from the message.
func (u *ledgerUC) QueryByHandle(ctx context.Context, handle string) ([]*model.LedgerEntry, error) {
	defer logging.TraceDuration(u.log, "LedgerUC.QueryByHandle")()
	handle = model.NormalizeHandle(handle)
	if err := ValidateLookup(handle); err != nil {
		u.log.Warn().Err(err).Msg("rejected handle lookup")
		return []*model.LedgerEntry{}, nil
	}
	candidates, err := u.ledger.FindByHandle(ctx, repository.NoTX, handle)
	if err != nil {
		return nil, err
	}
	out := make([]*model.LedgerEntry, 0, len(candidates))
	for _, e := range candidates {
		if strings.EqualFold(strings.TrimSpace(e.AttributionKey), handle) {
			out = append(out, e)
			continue
		}
		if got, ok := identity.Extract(e.AttributionKey); ok && strings.EqualFold(got, handle) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (u *ledgerUC) QueryExpired(ctx context.Context, asOf time.Time) ([]*model.LedgerEntry, error) {
	defer logging.TraceDuration(u.log, "LedgerUC.QueryExpired")()
	return u.ledger.ListExpired(ctx, repository.NoTX, asOf)
}

func (u *ledgerUC) Get(ctx context.Context, id string) (*model.LedgerEntry, error) {
	return u.ledger.FindByID(ctx, repository.NoTX, id)
}

func (u *ledgerUC) List(ctx context.Context) ([]*model.LedgerEntry, error) {
	return u.ledger.ListAll(ctx, repository.NoTX)
}
