// Package sched holds the interval workers: donation sync, expiry reminders
// and the ledger gauges.
package sched

import (
	"context"
	"time"
)

// every calls tick at once and then on each interval until ctx is done.
func every(ctx context.Context, interval time.Duration, tick func(ctx context.Context)) error {
	tick(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			tick(ctx)
		}
	}
}
