package adapter

import (
	"context"
	"time"

	"donation-subscription-bot/internal/domain/model"
)

// DonationFeed lists donations from the alert service, newest first.
type DonationFeed interface {
	FetchRange(ctx context.Context, start, end time.Time) (*model.FetchResult, error)
}
