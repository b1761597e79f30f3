package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"donation-subscription-bot/internal/domain"
	"donation-subscription-bot/internal/domain/model"
	"donation-subscription-bot/internal/domain/ports/repository"
)

var _ repository.LedgerRepository = (*PostgresLedgerRepo)(nil)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Amounts travel as text so NUMERIC precision survives the round trip.
var ledgerColumns = []string{
	"id", "attribution_key", "cumulative_amount::text", "last_donation_at",
	"subscription_expiry", "created_at", "updated_at",
}

type PostgresLedgerRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresLedgerRepo(pool *pgxpool.Pool) *PostgresLedgerRepo {
	return &PostgresLedgerRepo{pool: pool}
}

func (r *PostgresLedgerRepo) Insert(ctx context.Context, tx repository.Tx, e *model.LedgerEntry) error {
	const q = `
INSERT INTO ledger_entries (
  id, attribution_key, cumulative_amount, last_donation_at, subscription_expiry, created_at, updated_at
) VALUES ($1,$2,$3::numeric,$4,$5,$6,$7);`
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	_, err = exec.Exec(ctx, q, e.ID, e.AttributionKey, e.CumulativeAmount.String(),
		e.LastDonationAt, e.SubscriptionExpiry, e.CreatedAt, e.UpdatedAt)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

func (r *PostgresLedgerRepo) Update(ctx context.Context, tx repository.Tx, e *model.LedgerEntry) error {
	const q = `
UPDATE ledger_entries
   SET cumulative_amount=$2::numeric, last_donation_at=$3, subscription_expiry=$4, updated_at=$5
 WHERE id=$1;`
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	tag, err := exec.Exec(ctx, q, e.ID, e.CumulativeAmount.String(), e.LastDonationAt, e.SubscriptionExpiry, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update ledger entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresLedgerRepo) FindByKeyForUpdate(ctx context.Context, tx repository.Tx, key string) (*model.LedgerEntry, error) {
	q, args, err := psql.Select(ledgerColumns...).From("ledger_entries").
		Where(sq.Eq{"attribution_key": key}).Suffix("FOR UPDATE").ToSql()
	if err != nil {
		return nil, err
	}
	return r.one(ctx, tx, q, args...)
}

func (r *PostgresLedgerRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.LedgerEntry, error) {
	q, args, err := psql.Select(ledgerColumns...).From("ledger_entries").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	return r.one(ctx, tx, q, args...)
}

func (r *PostgresLedgerRepo) SearchByKey(ctx context.Context, tx repository.Tx, substring string, limit int) ([]*model.LedgerEntry, error) {
	b := psql.Select(ledgerColumns...).From("ledger_entries").
		Where(sq.Expr(`attribution_key ILIKE ? ESCAPE '\'`, "%"+escapeLike(substring)+"%")).
		OrderBy("last_donation_at DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	return r.list(ctx, tx, b)
}

func (r *PostgresLedgerRepo) FindByHandle(ctx context.Context, tx repository.Tx, handle string) ([]*model.LedgerEntry, error) {
	handle = model.NormalizeHandle(handle)
	if handle == "" {
		return nil, nil
	}
	b := psql.Select(ledgerColumns...).From("ledger_entries").
		Where(sq.Or{
			sq.Expr("lower(attribution_key) = lower(?)", handle),
			sq.Expr(`attribution_key ILIKE ? ESCAPE '\'`, "%@"+escapeLike(handle)+"%"),
		}).
		OrderBy("last_donation_at DESC")
	return r.list(ctx, tx, b)
}

func (r *PostgresLedgerRepo) ListExpired(ctx context.Context, tx repository.Tx, asOf time.Time) ([]*model.LedgerEntry, error) {
	b := psql.Select(ledgerColumns...).From("ledger_entries").
		Where(sq.NotEq{"subscription_expiry": nil}).
		Where(sq.Lt{"subscription_expiry": asOf}).
		OrderBy("subscription_expiry ASC")
	return r.list(ctx, tx, b)
}

func (r *PostgresLedgerRepo) ListExpiring(ctx context.Context, tx repository.Tx, from, to time.Time) ([]*model.LedgerEntry, error) {
	b := psql.Select(ledgerColumns...).From("ledger_entries").
		Where(sq.Gt{"subscription_expiry": from}).
		Where(sq.LtOrEq{"subscription_expiry": to}).
		OrderBy("subscription_expiry ASC")
	return r.list(ctx, tx, b)
}

func (r *PostgresLedgerRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.LedgerEntry, error) {
	return r.list(ctx, tx, psql.Select(ledgerColumns...).From("ledger_entries").OrderBy("created_at ASC", "id ASC"))
}

func (r *PostgresLedgerRepo) Stats(ctx context.Context, tx repository.Tx, asOf time.Time) (*model.LedgerStats, error) {
	const q = `
SELECT COUNT(*),
       COALESCE(SUM(cumulative_amount), 0)::text,
       COUNT(*) FILTER (WHERE subscription_expiry >= $1),
       COUNT(*) FILTER (WHERE subscription_expiry < $1),
       COALESCE(AVG(cumulative_amount), 0)::text
  FROM ledger_entries;`
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	var (
		s          model.LedgerStats
		total, avg string
	)
	if err := exec.QueryRow(ctx, q, asOf).Scan(&s.TotalEntries, &total, &s.Active, &s.Expired, &avg); err != nil {
		return nil, fmt.Errorf("ledger stats: %w", err)
	}
	if s.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("%w: total amount %q", domain.ErrReadDatabaseRow, total)
	}
	if s.Average, err = decimal.NewFromString(avg); err != nil {
		return nil, fmt.Errorf("%w: average %q", domain.ErrReadDatabaseRow, avg)
	}
	s.Average = s.Average.Round(2)
	return &s, nil
}

func (r *PostgresLedgerRepo) MarkProcessed(ctx context.Context, tx repository.Tx, externalID, entryID string, at time.Time) (bool, error) {
	const q = `
INSERT INTO processed_donations (external_id, entry_id, processed_at)
VALUES ($1,$2,$3)
ON CONFLICT (external_id) DO NOTHING;`
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return false, err
	}
	tag, err := exec.Exec(ctx, q, externalID, entryID, at)
	if err != nil {
		return false, fmt.Errorf("mark processed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresLedgerRepo) IsProcessed(ctx context.Context, tx repository.Tx, externalID string) (bool, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return false, err
	}
	var ok bool
	err = exec.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM processed_donations WHERE external_id=$1);`, externalID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("is processed: %w", err)
	}
	return ok, nil
}

func (r *PostgresLedgerRepo) one(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.LedgerEntry, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	e, err := scanLedgerEntry(exec.QueryRow(ctx, q, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return e, err
}

func (r *PostgresLedgerRepo) list(ctx context.Context, tx repository.Tx, b sq.SelectBuilder) ([]*model.LedgerEntry, error) {
	q, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	rows, err := exec.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	defer rows.Close()

	var out []*model.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanLedgerEntry(row pgx.Row) (*model.LedgerEntry, error) {
	var (
		e      model.LedgerEntry
		amount string
	)
	if err := row.Scan(&e.ID, &e.AttributionKey, &amount, &e.LastDonationAt,
		&e.SubscriptionExpiry, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("%w: amount %q", domain.ErrReadDatabaseRow, amount)
	}
	e.CumulativeAmount = d
	return &e, nil
}

// escapeLike makes % _ and \ literal inside an ILIKE pattern.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
