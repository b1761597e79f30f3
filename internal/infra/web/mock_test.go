//go:build !integration

package web

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"donation-subscription-bot/internal/domain"
	"donation-subscription-bot/internal/domain/model"
)

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// MockLedgerUseCase serves entries from a fixed slice.
type MockLedgerUseCase struct {
	entries []*model.LedgerEntry

	QueryByAttributionFunc func(ctx context.Context, substring string) ([]*model.LedgerEntry, error)
	lastAsOf               time.Time
}

func (m *MockLedgerUseCase) Upsert(context.Context, string, decimal.Decimal, time.Time) (*model.UpsertResult, error) {
	return nil, domain.ErrOperationFailed
}

func (m *MockLedgerUseCase) Apply(context.Context, model.DonationEvent) (*model.UpsertResult, error) {
	return nil, domain.ErrOperationFailed
}

func (m *MockLedgerUseCase) UpsertBatch(context.Context, []model.DonationEvent) model.BatchStats {
	return model.BatchStats{}
}

func (m *MockLedgerUseCase) QueryByAttribution(ctx context.Context, substring string) ([]*model.LedgerEntry, error) {
	if m.QueryByAttributionFunc != nil {
		return m.QueryByAttributionFunc(ctx, substring)
	}
	return m.entries, nil
}

func (m *MockLedgerUseCase) QueryByHandle(context.Context, string) ([]*model.LedgerEntry, error) {
	return m.entries[:1], nil
}

func (m *MockLedgerUseCase) QueryExpired(_ context.Context, asOf time.Time) ([]*model.LedgerEntry, error) {
	m.lastAsOf = asOf
	return nil, nil
}

func (m *MockLedgerUseCase) Get(_ context.Context, id string) (*model.LedgerEntry, error) {
	for _, e := range m.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockLedgerUseCase) List(context.Context) ([]*model.LedgerEntry, error) {
	return m.entries, nil
}

type MockStatsUseCase struct{}

func (MockStatsUseCase) Summary(context.Context) (*model.LedgerStats, error) {
	return &model.LedgerStats{TotalEntries: 2, Active: 1, Expired: 1}, nil
}

type MockExportUseCase struct{}

func (MockExportUseCase) LedgerJSON(context.Context) ([]byte, int, error) {
	return []byte(`[]`), 0, nil
}

type MockSyncUseCase struct {
	SyncFunc   func(ctx context.Context) (*model.SyncReport, error)
	rangeCalls [][2]time.Time
}

func (m *MockSyncUseCase) Sync(ctx context.Context) (*model.SyncReport, error) {
	if m.SyncFunc != nil {
		return m.SyncFunc(ctx)
	}
	return &model.SyncReport{RunID: "sync-1"}, nil
}

func (m *MockSyncUseCase) SyncRange(_ context.Context, start, end time.Time) (*model.SyncReport, error) {
	m.rangeCalls = append(m.rangeCalls, [2]time.Time{start, end})
	return &model.SyncReport{RunID: "range-1", From: start, To: end}, nil
}

type MockReconcileUseCase struct {
	channels []string
}

func (m *MockReconcileUseCase) Run(_ context.Context, channel string) (*model.ReconcileReport, error) {
	m.channels = append(m.channels, channel)
	return &model.ReconcileReport{RunID: "rec-1", Checked: 2, Removed: 1}, nil
}
