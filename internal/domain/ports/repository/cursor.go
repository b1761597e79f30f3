package repository

import (
	"context"
	"time"
)

// SyncCursor remembers the newest donation time a completed sync has seen.
type SyncCursor interface {
	// Load returns false when no sync has completed yet.
	Load(ctx context.Context) (time.Time, bool, error)
	Store(ctx context.Context, t time.Time) error
}

// Locker serialises runs that must not overlap across processes.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}
