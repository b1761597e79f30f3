package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type UpsertOutcome string

const (
	UpsertInserted  UpsertOutcome = "inserted"
	UpsertUpdated   UpsertOutcome = "updated"
	UpsertDuplicate UpsertOutcome = "duplicate"
)

type UpsertResult struct {
	Outcome UpsertOutcome
	EntryID string
}

// BatchStats summarises a batch upsert. Inserted+Updated+Duplicates+Failed
// always equals Total. RetryFrom is the earliest donation time among failures
// worth fetching again; nil when every failure was a rejected donation.
type BatchStats struct {
	Inserted   int        `json:"inserted"`
	Updated    int        `json:"updated"`
	Duplicates int        `json:"duplicates"`
	Failed     int        `json:"failed"`
	Total      int        `json:"total"`
	RetryFrom  *time.Time `json:"retry_from,omitempty"`
}

func (s *BatchStats) Add(outcome UpsertOutcome) {
	switch outcome {
	case UpsertInserted:
		s.Inserted++
	case UpsertUpdated:
		s.Updated++
	case UpsertDuplicate:
		s.Duplicates++
	}
}

// Fail counts a failed donation. A retryable failure pulls RetryFrom back to
// the donation's time.
func (s *BatchStats) Fail(occurredAt time.Time, retryable bool) {
	s.Failed++
	if !retryable {
		return
	}
	if s.RetryFrom == nil || occurredAt.Before(*s.RetryFrom) {
		at := occurredAt
		s.RetryFrom = &at
	}
}

type SyncReport struct {
	RunID   string     `json:"run_id"`
	From    time.Time  `json:"from"`
	To      time.Time  `json:"to"`
	Pages   int        `json:"pages"`
	Partial bool       `json:"partial"`
	Stats   BatchStats `json:"stats"`
}

type ReconcileReport struct {
	RunID      string    `json:"run_id"`
	Checked    int       `json:"checked"`
	Removed    int       `json:"removed"`
	NotMember  int       `json:"not_member"`
	Skipped    int       `json:"skipped"`
	Errors     int       `json:"errors"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

type LedgerStats struct {
	TotalEntries int             `json:"total_entries"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Active       int             `json:"active"`
	Expired      int             `json:"expired"`
	Average      decimal.Decimal `json:"average"`
	Members      int             `json:"members"`
}

// AccessStatus is what a user sees when asking about their own subscription.
type AccessStatus struct {
	Handle   string
	Entry    *LedgerEntry
	Active   bool
	DaysLeft int
}

// ChannelMember is the live view of a user in the gated channel.
type ChannelMember struct {
	UserID   int64
	Username string
	Status   string
}

func (m *ChannelMember) IsPrivileged() bool {
	return m.Status == "creator" || m.Status == "administrator"
}
