package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"donation-subscription-bot/internal/domain/ports/repository"
)

var _ repository.SyncCursor = (*Watermark)(nil)

const watermarkKey = "sync:watermark"

// Watermark stores the sync cursor as RFC3339Nano with no expiry.
type Watermark struct {
	cli RedisClient
	key string
}

func NewWatermark(c RedisClient) *Watermark {
	return &Watermark{cli: c, key: watermarkKey}
}

func (w *Watermark) Load(ctx context.Context) (time.Time, bool, error) {
	v, err := w.cli.Get(ctx, w.key)
	if errors.Is(err, Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("corrupt watermark %q: %w", v, err)
	}
	return t, true, nil
}

func (w *Watermark) Store(ctx context.Context, t time.Time) error {
	return w.cli.Set(ctx, w.key, t.UTC().Format(time.RFC3339Nano), 0)
}
