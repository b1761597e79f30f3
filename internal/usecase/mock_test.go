//go:build !integration

package usecase_test

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"donation-subscription-bot/internal/domain"
	"donation-subscription-bot/internal/domain/model"
	"donation-subscription-bot/internal/domain/ports/adapter"
	"donation-subscription-bot/internal/domain/ports/repository"
	"donation-subscription-bot/internal/usecase"
)

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func tp(t time.Time) *time.Time { return &t }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// =============================
// Repositories
// =============================

// ---- In-memory LedgerRepository ----

// MockLedgerRepo stores copies of entries in memory. A non-nil Func field
// replaces the default behaviour of that method.
type MockLedgerRepo struct {
	mu        sync.Mutex
	byID      map[string]*model.LedgerEntry
	processed map[string]string

	InsertFunc       func(ctx context.Context, tx repository.Tx, e *model.LedgerEntry) error
	UpdateFunc       func(ctx context.Context, tx repository.Tx, e *model.LedgerEntry) error
	SearchByKeyFunc  func(ctx context.Context, tx repository.Tx, substring string, limit int) ([]*model.LedgerEntry, error)
	ListExpiredFunc  func(ctx context.Context, tx repository.Tx, asOf time.Time) ([]*model.LedgerEntry, error)
	ListExpiringFunc func(ctx context.Context, tx repository.Tx, from, to time.Time) ([]*model.LedgerEntry, error)
}

var _ repository.LedgerRepository = (*MockLedgerRepo)(nil)

func NewMockLedgerRepo() *MockLedgerRepo {
	return &MockLedgerRepo{byID: map[string]*model.LedgerEntry{}, processed: map[string]string{}}
}

func clone(e *model.LedgerEntry) *model.LedgerEntry {
	c := *e
	if e.SubscriptionExpiry != nil {
		c.SubscriptionExpiry = tp(*e.SubscriptionExpiry)
	}
	return &c
}

// Put stores e directly, bypassing Insert.
func (m *MockLedgerRepo) Put(e *model.LedgerEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[e.ID] = clone(e)
}

func (m *MockLedgerRepo) ByKey(key string) *model.LedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.byID {
		if e.AttributionKey == key {
			return clone(e)
		}
	}
	return nil
}

func (m *MockLedgerRepo) Insert(ctx context.Context, tx repository.Tx, e *model.LedgerEntry) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, tx, e)
	}
	if m.ByKey(e.AttributionKey) != nil {
		return domain.ErrAlreadyExists
	}
	m.Put(e)
	return nil
}

func (m *MockLedgerRepo) Update(ctx context.Context, tx repository.Tx, e *model.LedgerEntry) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, tx, e)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[e.ID]; !ok {
		return domain.ErrNotFound
	}
	m.byID[e.ID] = clone(e)
	return nil
}

func (m *MockLedgerRepo) FindByKeyForUpdate(ctx context.Context, tx repository.Tx, key string) (*model.LedgerEntry, error) {
	if e := m.ByKey(key); e != nil {
		return e, nil
	}
	return nil, domain.ErrNotFound
}

func (m *MockLedgerRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.byID[id]; ok {
		return clone(e), nil
	}
	return nil, domain.ErrNotFound
}

func (m *MockLedgerRepo) filter(keep func(e *model.LedgerEntry) bool) []*model.LedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.LedgerEntry
	for _, e := range m.byID {
		if keep(e) {
			out = append(out, clone(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttributionKey < out[j].AttributionKey })
	return out
}

func (m *MockLedgerRepo) SearchByKey(ctx context.Context, tx repository.Tx, substring string, limit int) ([]*model.LedgerEntry, error) {
	if m.SearchByKeyFunc != nil {
		return m.SearchByKeyFunc(ctx, tx, substring, limit)
	}
	sub := strings.ToLower(substring)
	return m.filter(func(e *model.LedgerEntry) bool {
		return strings.Contains(strings.ToLower(e.AttributionKey), sub)
	}), nil
}

func (m *MockLedgerRepo) FindByHandle(ctx context.Context, tx repository.Tx, handle string) ([]*model.LedgerEntry, error) {
	h := strings.ToLower(handle)
	return m.filter(func(e *model.LedgerEntry) bool {
		k := strings.ToLower(e.AttributionKey)
		return k == h || strings.Contains(k, "@"+h)
	}), nil
}

func (m *MockLedgerRepo) ListExpired(ctx context.Context, tx repository.Tx, asOf time.Time) ([]*model.LedgerEntry, error) {
	if m.ListExpiredFunc != nil {
		return m.ListExpiredFunc(ctx, tx, asOf)
	}
	return m.filter(func(e *model.LedgerEntry) bool {
		return e.SubscriptionExpiry != nil && e.SubscriptionExpiry.Before(asOf)
	}), nil
}

func (m *MockLedgerRepo) ListExpiring(ctx context.Context, tx repository.Tx, from, to time.Time) ([]*model.LedgerEntry, error) {
	if m.ListExpiringFunc != nil {
		return m.ListExpiringFunc(ctx, tx, from, to)
	}
	return m.filter(func(e *model.LedgerEntry) bool {
		return e.SubscriptionExpiry != nil && e.SubscriptionExpiry.After(from) && !e.SubscriptionExpiry.After(to)
	}), nil
}

func (m *MockLedgerRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.LedgerEntry, error) {
	return m.filter(func(*model.LedgerEntry) bool { return true }), nil
}

func (m *MockLedgerRepo) Stats(ctx context.Context, tx repository.Tx, asOf time.Time) (*model.LedgerStats, error) {
	st := &model.LedgerStats{}
	for _, e := range m.filter(func(*model.LedgerEntry) bool { return true }) {
		st.TotalEntries++
		st.TotalAmount = st.TotalAmount.Add(e.CumulativeAmount)
		switch {
		case e.SubscriptionExpiry == nil:
		case e.SubscriptionExpiry.Before(asOf):
			st.Expired++
		default:
			st.Active++
		}
	}
	if st.TotalEntries > 0 {
		st.Average = st.TotalAmount.Div(decimal.NewFromInt(int64(st.TotalEntries))).Round(2)
	}
	return st, nil
}

func (m *MockLedgerRepo) MarkProcessed(ctx context.Context, tx repository.Tx, externalID, entryID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.processed[externalID]; ok {
		return false, nil
	}
	m.processed[externalID] = entryID
	return true, nil
}

func (m *MockLedgerRepo) IsProcessed(ctx context.Context, tx repository.Tx, externalID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.processed[externalID]
	return ok, nil
}

// ---- In-memory MemberRepository ----

type MockMemberRepo struct {
	mu    sync.Mutex
	byTg  map[int64]*model.Member
	Saved int
}

var _ repository.MemberRepository = (*MockMemberRepo)(nil)

func NewMockMemberRepo(members ...*model.Member) *MockMemberRepo {
	r := &MockMemberRepo{byTg: map[int64]*model.Member{}}
	for _, m := range members {
		c := *m
		r.byTg[m.TelegramID] = &c
	}
	return r
}

func (r *MockMemberRepo) Save(ctx context.Context, tx repository.Tx, m *model.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *m
	if prev, ok := r.byTg[m.TelegramID]; ok {
		c.ID = prev.ID
		c.RegisteredAt = prev.RegisteredAt
	}
	r.byTg[m.TelegramID] = &c
	r.Saved++
	return nil
}

func (r *MockMemberRepo) FindByTelegramID(ctx context.Context, tx repository.Tx, tgID int64) (*model.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.byTg[tgID]; ok {
		c := *m
		return &c, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockMemberRepo) FindByUsername(ctx context.Context, tx repository.Tx, username string) (*model.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.byTg {
		if strings.EqualFold(m.Username, model.NormalizeHandle(username)) {
			c := *m
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockMemberRepo) Count(ctx context.Context, tx repository.Tx) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byTg), nil
}

// ---- In-memory ReminderLogRepository ----

type MockReminderLog struct {
	mu   sync.Mutex
	sent map[string]int64
}

func NewMockReminderLog() *MockReminderLog { return &MockReminderLog{sent: map[string]int64{}} }

func reminderKey(entryID string, at time.Time, days int) string {
	return fmt.Sprintf("%s|%s|%d", entryID, at.UTC().Format(time.RFC3339Nano), days)
}

func (r *MockReminderLog) Save(ctx context.Context, tx repository.Tx, entryID string, expiresAt time.Time, thresholdDays int, telegramID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent[reminderKey(entryID, expiresAt, thresholdDays)] = telegramID
	return nil
}

func (r *MockReminderLog) Exists(ctx context.Context, tx repository.Tx, entryID string, expiresAt time.Time, thresholdDays int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sent[reminderKey(entryID, expiresAt, thresholdDays)]
	return ok, nil
}

// ---- TransactionManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn immediately with NoTX unless WithTxFunc is set.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// ---- In-memory Locker ----

type MockLocker struct {
	mu   sync.Mutex
	held map[string]string
}

func NewMockLocker() *MockLocker {
	return &MockLocker{held: map[string]string{}}
}

func (l *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return "", domain.ErrRunInProgress
	}
	l.held[key] = "token-" + key
	return l.held[key], nil
}

func (l *MockLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

func (l *MockLocker) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[key]
	return ok
}

// ---- SyncCursor ----

type MockCursor struct {
	mu     sync.Mutex
	mark   *time.Time
	Stores int
}

func (c *MockCursor) Load(ctx context.Context) (time.Time, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mark == nil {
		return time.Time{}, false, nil
	}
	return *c.mark, true, nil
}

func (c *MockCursor) Store(ctx context.Context, t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mark = tp(t)
	c.Stores++
	return nil
}

// =============================
// Adapters
// =============================

type MockFeed struct {
	FetchRangeFunc func(ctx context.Context, start, end time.Time) (*model.FetchResult, error)
}

var _ adapter.DonationFeed = (*MockFeed)(nil)

func (f *MockFeed) FetchRange(ctx context.Context, start, end time.Time) (*model.FetchResult, error) {
	return f.FetchRangeFunc(ctx, start, end)
}

// MockGateway records every call and answers through the Func fields.
type MockGateway struct {
	mu      sync.Mutex
	Lookups []string
	Revoked []int64
	Unbans  []int64
	Invites []string

	LookupMemberFunc     func(ctx context.Context, channel, handle string) (*model.ChannelMember, error)
	RevokeFunc           func(ctx context.Context, channel string, userID int64) error
	CreateInviteLinkFunc func(ctx context.Context, channel, name string, expireAt time.Time) (string, error)
}

var _ adapter.ChannelGateway = (*MockGateway)(nil)

func (g *MockGateway) LookupMember(ctx context.Context, channel, handle string) (*model.ChannelMember, error) {
	g.mu.Lock()
	g.Lookups = append(g.Lookups, handle)
	g.mu.Unlock()
	if g.LookupMemberFunc != nil {
		return g.LookupMemberFunc(ctx, channel, handle)
	}
	return nil, domain.ErrMemberNotFound
}

func (g *MockGateway) MemberStatus(ctx context.Context, channel string, userID int64) (*model.ChannelMember, error) {
	return &model.ChannelMember{UserID: userID, Status: "member"}, nil
}

func (g *MockGateway) Revoke(ctx context.Context, channel string, userID int64) error {
	g.mu.Lock()
	g.Revoked = append(g.Revoked, userID)
	g.mu.Unlock()
	if g.RevokeFunc != nil {
		return g.RevokeFunc(ctx, channel, userID)
	}
	return nil
}

func (g *MockGateway) Unban(ctx context.Context, channel string, userID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Unbans = append(g.Unbans, userID)
	return nil
}

func (g *MockGateway) CreateInviteLink(ctx context.Context, channel, name string, expireAt time.Time) (string, error) {
	g.mu.Lock()
	g.Invites = append(g.Invites, name)
	g.mu.Unlock()
	if g.CreateInviteLinkFunc != nil {
		return g.CreateInviteLinkFunc(ctx, channel, name, expireAt)
	}
	return "https://t.me/+invite", nil
}

type sentMessage struct {
	ChatID int64
	Text   string
}

type MockTelegramBot struct {
	mu   sync.Mutex
	Sent []sentMessage
}

var _ adapter.TelegramBotAdapter = (*MockTelegramBot)(nil)

func (b *MockTelegramBot) SendMessage(ctx context.Context, telegramID int64, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Sent = append(b.Sent, sentMessage{ChatID: telegramID, Text: text})
	return nil
}

func (b *MockTelegramBot) SendButtons(ctx context.Context, telegramID int64, text string, rows [][]adapter.InlineButton) error {
	return b.SendMessage(ctx, telegramID, text)
}

func (b *MockTelegramBot) SendDocument(ctx context.Context, telegramID int64, filename string, data []byte, caption string) error {
	return b.SendMessage(ctx, telegramID, caption)
}

// =============================
// Use cases
// =============================

// MockLedgerUseCase lets engine tests script the ledger without storage.
type MockLedgerUseCase struct {
	mu      sync.Mutex
	Batches [][]model.DonationEvent

	QueryExpiredFunc  func(ctx context.Context, asOf time.Time) ([]*model.LedgerEntry, error)
	QueryByHandleFunc func(ctx context.Context, handle string) ([]*model.LedgerEntry, error)
	UpsertBatchFunc   func(ctx context.Context, events []model.DonationEvent) model.BatchStats
}

var _ usecase.LedgerUseCase = (*MockLedgerUseCase)(nil)

func (m *MockLedgerUseCase) Upsert(ctx context.Context, key string, amount decimal.Decimal, observedAt time.Time) (*model.UpsertResult, error) {
	return &model.UpsertResult{Outcome: model.UpsertInserted}, nil
}

func (m *MockLedgerUseCase) Apply(ctx context.Context, ev model.DonationEvent) (*model.UpsertResult, error) {
	return &model.UpsertResult{Outcome: model.UpsertInserted}, nil
}

func (m *MockLedgerUseCase) UpsertBatch(ctx context.Context, events []model.DonationEvent) model.BatchStats {
	m.mu.Lock()
	m.Batches = append(m.Batches, events)
	m.mu.Unlock()
	if m.UpsertBatchFunc != nil {
		return m.UpsertBatchFunc(ctx, events)
	}
	return model.BatchStats{Inserted: len(events), Total: len(events)}
}

func (m *MockLedgerUseCase) QueryByAttribution(ctx context.Context, substring string) ([]*model.LedgerEntry, error) {
	return nil, nil
}

func (m *MockLedgerUseCase) QueryByHandle(ctx context.Context, handle string) ([]*model.LedgerEntry, error) {
	if m.QueryByHandleFunc != nil {
		return m.QueryByHandleFunc(ctx, handle)
	}
	return nil, nil
}

func (m *MockLedgerUseCase) QueryExpired(ctx context.Context, asOf time.Time) ([]*model.LedgerEntry, error) {
	if m.QueryExpiredFunc != nil {
		return m.QueryExpiredFunc(ctx, asOf)
	}
	return nil, nil
}

func (m *MockLedgerUseCase) Get(ctx context.Context, id string) (*model.LedgerEntry, error) {
	return nil, domain.ErrNotFound
}

func (m *MockLedgerUseCase) List(ctx context.Context) ([]*model.LedgerEntry, error) {
	return nil, nil
}
