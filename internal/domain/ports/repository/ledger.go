package repository

import (
	"context"
	"time"

	"donation-subscription-bot/internal/domain/model"
)

// LedgerRepository persists ledger entries and the ids of donations already
// folded into them.
type LedgerRepository interface {
	// Insert stores a new entry. A concurrent insert of the same key returns
	// domain.ErrAlreadyExists.
	Insert(ctx context.Context, tx Tx, e *model.LedgerEntry) error
	// Update writes amount, expiry and timestamps of an existing entry.
	Update(ctx context.Context, tx Tx, e *model.LedgerEntry) error
	// FindByKeyForUpdate locks and returns the entry for key, or
	// domain.ErrNotFound.
	FindByKeyForUpdate(ctx context.Context, tx Tx, key string) (*model.LedgerEntry, error)
	FindByID(ctx context.Context, tx Tx, id string) (*model.LedgerEntry, error)
	// SearchByKey matches entries whose key contains substring, case-insensitively.
	SearchByKey(ctx context.Context, tx Tx, substring string, limit int) ([]*model.LedgerEntry, error)
	// FindByHandle matches entries whose key is exactly the handle or mentions @handle.
	FindByHandle(ctx context.Context, tx Tx, handle string) ([]*model.LedgerEntry, error)
	ListExpired(ctx context.Context, tx Tx, asOf time.Time) ([]*model.LedgerEntry, error)
	// ListExpiring returns entries whose expiry falls in (from, to].
	ListExpiring(ctx context.Context, tx Tx, from, to time.Time) ([]*model.LedgerEntry, error)
	ListAll(ctx context.Context, tx Tx) ([]*model.LedgerEntry, error)
	Stats(ctx context.Context, tx Tx, asOf time.Time) (*model.LedgerStats, error)

	// MarkProcessed records a donation id against an entry. It returns false
	// when the id was already recorded.
	MarkProcessed(ctx context.Context, tx Tx, externalID, entryID string, at time.Time) (bool, error)
	IsProcessed(ctx context.Context, tx Tx, externalID string) (bool, error)
}
