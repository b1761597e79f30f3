package model

import (
	"strings"
	"time"

	"donation-subscription-bot/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MonthlyPrice is the donation amount that buys one month of access.
var MonthlyPrice = decimal.NewFromInt(200)

// LedgerEntry aggregates every donation that carried the same raw message.
// The raw message is the account identifier; the Telegram handle inside it
// is only derived when access has to be granted or revoked.
type LedgerEntry struct {
	ID                 string
	AttributionKey     string
	CumulativeAmount   decimal.Decimal
	LastDonationAt     time.Time
	SubscriptionExpiry *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NewLedgerEntry opens an entry for a novel attribution key. The expiry is
// extended from now.
func NewLedgerEntry(id, key string, amount decimal.Decimal, observedAt, now time.Time) (*LedgerEntry, error) {
	if strings.TrimSpace(key) == "" {
		return nil, domain.ErrInvalidArgument
	}
	if amount.IsNegative() {
		return nil, domain.ErrInvalidArgument
	}
	if id == "" {
		id = uuid.NewString()
	}
	expiry := Extend(now, amount)
	return &LedgerEntry{
		ID:                 id,
		AttributionKey:     key,
		CumulativeAmount:   amount,
		LastDonationAt:     observedAt,
		SubscriptionExpiry: &expiry,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// Merge folds another donation into the entry.
func (e *LedgerEntry) Merge(amount decimal.Decimal, observedAt, now time.Time) error {
	if amount.IsNegative() {
		return domain.ErrInvalidArgument
	}
	expiry := Extend(ExtensionBase(e.SubscriptionExpiry, now), amount)
	e.CumulativeAmount = e.CumulativeAmount.Add(amount)
	e.SubscriptionExpiry = &expiry
	e.LastDonationAt = observedAt
	e.UpdatedAt = now
	return nil
}

// IsActive reports whether the subscription is still running at t.
func (e *LedgerEntry) IsActive(t time.Time) bool {
	return e.SubscriptionExpiry != nil && !e.SubscriptionExpiry.Before(t)
}

// IsExpired mirrors the expired-entries query: a null expiry is never expired.
func (e *LedgerEntry) IsExpired(asOf time.Time) bool {
	return e.SubscriptionExpiry != nil && e.SubscriptionExpiry.Before(asOf)
}

// MonthsForAmount converts a donation into whole months. The remainder is
// dropped.
func MonthsForAmount(amount decimal.Decimal) int {
	if amount.IsNegative() {
		return 0
	}
	return int(amount.Div(MonthlyPrice).Floor().IntPart())
}

// Extend advances base by the months the amount buys.
func Extend(base time.Time, amount decimal.Decimal) time.Time {
	return AddMonths(base, MonthsForAmount(amount))
}

// ExtensionBase is the stored expiry while it is still in the future, and
// now otherwise. A lapsed subscription restarts from now.
func ExtensionBase(expiry *time.Time, now time.Time) time.Time {
	if expiry != nil && expiry.After(now) {
		return *expiry
	}
	return now
}

// AddMonths adds n calendar months to t and clamps the day to the last day
// of the target month, so Jan 31 + 1 month is Feb 28 (or 29).
func AddMonths(t time.Time, n int) time.Time {
	if n == 0 {
		return t
	}
	y, m, d := t.Date()
	total := int(m) - 1 + n
	y += total / 12
	total %= 12
	if total < 0 {
		total += 12
		y--
	}
	month := time.Month(total + 1)
	if last := daysIn(y, month); d > last {
		d = last
	}
	hh, mm, ss := t.Clock()
	return time.Date(y, month, d, hh, mm, ss, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	// day 0 of the next month is the last day of this one
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
