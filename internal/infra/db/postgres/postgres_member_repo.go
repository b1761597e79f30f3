package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"donation-subscription-bot/internal/domain"
	"donation-subscription-bot/internal/domain/model"
	"donation-subscription-bot/internal/domain/ports/repository"
)

var _ repository.MemberRepository = (*PostgresMemberRepo)(nil)

type PostgresMemberRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresMemberRepo(pool *pgxpool.Pool) *PostgresMemberRepo {
	return &PostgresMemberRepo{pool: pool}
}

// Save upserts on telegram_id; a returning user keeps the original id and
// registration time.
func (r *PostgresMemberRepo) Save(ctx context.Context, tx repository.Tx, m *model.Member) error {
	const q = `
INSERT INTO members (id, telegram_id, username, registered_at, last_active_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (telegram_id) DO UPDATE SET
  username=EXCLUDED.username, last_active_at=EXCLUDED.last_active_at;`
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	if _, err := exec.Exec(ctx, q, m.ID, m.TelegramID, m.Username, m.RegisteredAt, m.LastActiveAt); err != nil {
		return fmt.Errorf("save member: %w", err)
	}
	return nil
}

func (r *PostgresMemberRepo) FindByTelegramID(ctx context.Context, tx repository.Tx, tgID int64) (*model.Member, error) {
	const q = `
SELECT id, telegram_id, username, registered_at, last_active_at
  FROM members WHERE telegram_id=$1;`
	return r.one(ctx, tx, q, tgID)
}

func (r *PostgresMemberRepo) FindByUsername(ctx context.Context, tx repository.Tx, username string) (*model.Member, error) {
	const q = `
SELECT id, telegram_id, username, registered_at, last_active_at
  FROM members WHERE lower(username)=lower($1)
 ORDER BY last_active_at DESC
 LIMIT 1;`
	username = model.NormalizeHandle(username)
	if username == "" {
		return nil, domain.ErrNotFound
	}
	return r.one(ctx, tx, q, username)
}

func (r *PostgresMemberRepo) Count(ctx context.Context, tx repository.Tx) (int, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return 0, err
	}
	var n int
	if err := exec.QueryRow(ctx, `SELECT COUNT(*) FROM members;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count members: %w", err)
	}
	return n, nil
}

func (r *PostgresMemberRepo) one(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.Member, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	var m model.Member
	err = exec.QueryRow(ctx, q, args...).Scan(&m.ID, &m.TelegramID, &m.Username, &m.RegisteredAt, &m.LastActiveAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
