package repository

import (
	"context"
	"time"
)

// ReminderLogRepository records which expiry reminders were already sent.
// A renewed subscription has a new expiry and is reminded again.
type ReminderLogRepository interface {
	Save(ctx context.Context, tx Tx, entryID string, expiresAt time.Time, thresholdDays int, telegramID int64) error
	Exists(ctx context.Context, tx Tx, entryID string, expiresAt time.Time, thresholdDays int) (bool, error)
}
