package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DonationEvent is one donation as reported by the feed. Only its external id
// outlives the ledger update it causes.
type DonationEvent struct {
	ExternalID      string
	Donor           string
	AttributionText string
	Amount          decimal.Decimal
	Currency        string
	OccurredAt      time.Time
	ShownAt         *time.Time
}

// FetchResult is what a ranged feed fetch produced. Partial is set when the
// fetch stopped after too many consecutive page failures.
type FetchResult struct {
	Events  []DonationEvent
	Pages   int
	Partial bool
}

// Newest returns the latest occurrence time among the events.
func (r *FetchResult) Newest() (time.Time, bool) {
	var newest time.Time
	for _, e := range r.Events {
		if e.OccurredAt.After(newest) {
			newest = e.OccurredAt
		}
	}
	return newest, !newest.IsZero()
}
