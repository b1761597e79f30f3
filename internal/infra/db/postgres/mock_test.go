//go:build !integration

package postgres

import (
	"context"
	"time"

	"donation-subscription-bot/internal/domain/model"
	"donation-subscription-bot/internal/domain/ports/repository"
	red "donation-subscription-bot/internal/infra/redis"
)

// mockInnerMemberRepo mocks the database repository that the member decorator wraps.
type mockInnerMemberRepo struct {
	SaveFunc             func(ctx context.Context, tx repository.Tx, m *model.Member) error
	FindByTelegramIDFunc func(ctx context.Context, tx repository.Tx, tgID int64) (*model.Member, error)
	FindByUsernameFunc   func(ctx context.Context, tx repository.Tx, username string) (*model.Member, error)
	CountFunc            func(ctx context.Context, tx repository.Tx) (int, error)
}

func (m *mockInnerMemberRepo) Save(ctx context.Context, tx repository.Tx, mem *model.Member) error {
	return m.SaveFunc(ctx, tx, mem)
}
func (m *mockInnerMemberRepo) FindByTelegramID(ctx context.Context, tx repository.Tx, tgID int64) (*model.Member, error) {
	return m.FindByTelegramIDFunc(ctx, tx, tgID)
}
func (m *mockInnerMemberRepo) FindByUsername(ctx context.Context, tx repository.Tx, username string) (*model.Member, error) {
	return m.FindByUsernameFunc(ctx, tx, username)
}
func (m *mockInnerMemberRepo) Count(ctx context.Context, tx repository.Tx) (int, error) {
	return m.CountFunc(ctx, tx)
}

// mockRedisClient implements the red.RedisClient interface for testing.
type mockRedisClient struct {
	GetFunc func(ctx context.Context, key string) (string, error)
	SetFunc func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc func(ctx context.Context, keys ...string) error
}

var _ red.RedisClient = (*mockRedisClient)(nil)

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	return "", red.Nil
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value, expiration)
	}
	return nil
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	if m.DelFunc != nil {
		return m.DelFunc(ctx, keys...)
	}
	return nil
}
func (m *mockRedisClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return true, nil
}
func (m *mockRedisClient) DelIfEqual(ctx context.Context, key, value string) (bool, error) {
	return true, nil
}
func (m *mockRedisClient) Ping(ctx context.Context) error { return nil }
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	return 1, nil
}
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return nil
}
func (m *mockRedisClient) Close() error { return nil }
