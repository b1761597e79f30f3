package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"donation-subscription-bot/internal/domain"
	"donation-subscription-bot/internal/domain/ports/repository"
)

var _ repository.ReminderLogRepository = (*reminderLogRepo)(nil)

type reminderLogRepo struct {
	pool *pgxpool.Pool
}

func NewReminderLogRepo(pool *pgxpool.Pool) repository.ReminderLogRepository {
	return &reminderLogRepo{pool: pool}
}

// Save relies on the primary key; a reminder recorded twice is not an error.
func (r *reminderLogRepo) Save(ctx context.Context, tx repository.Tx, entryID string, expiresAt time.Time, thresholdDays int, telegramID int64) error {
	const q = `
INSERT INTO reminder_log (entry_id, expires_at, threshold_days, telegram_id)
VALUES ($1, $2, $3, $4)
ON CONFLICT DO NOTHING;`
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	_, err = exec.Exec(ctx, q, entryID, expiresAt, thresholdDays, telegramID)
	return err
}

func (r *reminderLogRepo) Exists(ctx context.Context, tx repository.Tx, entryID string, expiresAt time.Time, thresholdDays int) (bool, error) {
	const q = `
SELECT EXISTS(
    SELECT 1 FROM reminder_log
    WHERE entry_id = $1 AND expires_at = $2 AND threshold_days = $3
);`
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return false, err
	}
	var exists bool
	if err := exec.QueryRow(ctx, q, entryID, expiresAt, thresholdDays).Scan(&exists); err != nil {
		return false, domain.ErrReadDatabaseRow
	}
	return exists, nil
}
