package donationalerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"donation-subscription-bot/internal/domain"
	"donation-subscription-bot/internal/domain/model"

	"github.com/shopspring/decimal"
)

// donationsResponse is the body of GET /alerts/donations.
type donationsResponse struct {
	Data  []json.RawMessage `json:"data"`
	Links struct {
		Next *string `json:"next"`
	} `json:"links"`
}

type donationDTO struct {
	ID        flexID           `json:"id"`
	Username  string           `json:"username"`
	Amount    *decimal.Decimal `json:"amount"`
	Currency  string           `json:"currency"`
	Message   string           `json:"message"`
	CreatedAt string           `json:"created_at"`
	ShownAt   *string          `json:"shown_at"`
}

// flexID accepts ids sent either as numbers or as strings.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	*f = flexID(strings.Trim(string(b), `"`))
	return nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// parseTimestamp reads the feed's timestamps. Values without a zone are UTC.
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: bad timestamp %q", domain.ErrFeedParse, s)
}

func (d donationDTO) toEvent() (model.DonationEvent, error) {
	if d.ID == "" {
		return model.DonationEvent{}, fmt.Errorf("%w: missing id", domain.ErrFeedParse)
	}
	if d.Amount == nil {
		return model.DonationEvent{}, fmt.Errorf("%w: donation %s has no amount", domain.ErrFeedParse, d.ID)
	}
	if d.Amount.IsNegative() {
		return model.DonationEvent{}, fmt.Errorf("%w: donation %s has a negative amount", domain.ErrFeedParse, d.ID)
	}
	occurred, err := parseTimestamp(d.CreatedAt)
	if err != nil {
		return model.DonationEvent{}, err
	}
	ev := model.DonationEvent{
		ExternalID:      string(d.ID),
		Donor:           d.Username,
		AttributionText: d.Message,
		Amount:          *d.Amount,
		Currency:        d.Currency,
		OccurredAt:      occurred,
	}
	if d.ShownAt != nil && strings.TrimSpace(*d.ShownAt) != "" {
		if shown, err := parseTimestamp(*d.ShownAt); err == nil {
			ev.ShownAt = &shown
		}
	}
	return ev, nil
}
