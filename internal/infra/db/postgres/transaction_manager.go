package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"donation-subscription-bot/internal/domain"
	"donation-subscription-bot/internal/domain/ports/repository"
)

var _ repository.TransactionManager = (*TxManager)(nil)

const (
	txAttempts    = 3
	txRetryPause  = 50 * time.Millisecond
	sqlDeadlock   = "40P01"
	sqlSerialize  = "40001"
	sqlUniqueViol = "23505"
)

// TxManager runs callbacks in pgx transactions. A callback that loses a
// deadlock or serialization conflict is run again in a fresh transaction, so
// fn must not have side effects outside tx.
type TxManager struct {
	pool     *pgxpool.Pool
	attempts int
}

func NewTxManager(pool *pgxpool.Pool) *TxManager {
	return &TxManager{pool: pool, attempts: txAttempts}
}

func (m *TxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	var err error
	for attempt := 1; attempt <= m.attempts; attempt++ {
		err = m.once(ctx, txOpt, fn)
		if err == nil || !isRetryableTx(err) || attempt == m.attempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * txRetryPause):
		}
	}
	return err
}

func (m *TxManager) once(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) (err error) {
	tx, err := m.pool.BeginTx(ctx, txOpt)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if err = fn(ctx, tx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type executor interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// getExecutor picks tx when one is open and the pool for NoTX.
func getExecutor(pool *pgxpool.Pool, tx repository.Tx) (executor, error) {
	switch v := tx.(type) {
	case pgx.Tx:
		return v, nil
	case *pgxpool.Conn:
		return v, nil
	case nil:
		if pool == nil {
			return nil, domain.ErrInvalidArgument
		}
		return pool, nil
	default:
		return nil, fmt.Errorf("%w: %T", domain.ErrInvalidExecContext, tx)
	}
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool { return pgCode(err) == sqlUniqueViol }

func isRetryableTx(err error) bool {
	switch pgCode(err) {
	case sqlDeadlock, sqlSerialize:
		return true
	}
	return false
}
