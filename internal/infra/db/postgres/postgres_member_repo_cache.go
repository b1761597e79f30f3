package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"donation-subscription-bot/internal/domain/model"
	"donation-subscription-bot/internal/domain/ports/repository"
	"donation-subscription-bot/internal/infra/metrics"
	red "donation-subscription-bot/internal/infra/redis"
)

var _ repository.MemberRepository = (*memberRepoCacheDecorator)(nil)

// memberRepoCacheDecorator keeps member lookups in redis. Reconciliation
// resolves one handle per expired entry, so the username key gets most hits.
type memberRepoCacheDecorator struct {
	inner repository.MemberRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewMemberRepoCacheDecorator(inner repository.MemberRepository, cache red.RedisClient) repository.MemberRepository {
	return &memberRepoCacheDecorator{
		inner: inner,
		cache: cache,
		ttl:   1 * time.Hour,
	}
}

func tgIDKey(tgID int64) string { return fmt.Sprintf("member:tgid:%d", tgID) }

func usernameKey(name string) string {
	return "member:username:" + strings.ToLower(model.NormalizeHandle(name))
}

// Save drops the keys for the stored username as well as the new one, so a
// renamed user stops resolving under the old handle.
func (d *memberRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, m *model.Member) error {
	keys := []string{tgIDKey(m.TelegramID)}
	if m.Username != "" {
		keys = append(keys, usernameKey(m.Username))
	}
	if prev, err := d.get(ctx, tgIDKey(m.TelegramID)); err == nil && prev.Username != "" {
		keys = append(keys, usernameKey(prev.Username))
	}
	_ = d.cache.Del(ctx, keys...)
	return d.inner.Save(ctx, tx, m)
}

func (d *memberRepoCacheDecorator) FindByTelegramID(ctx context.Context, tx repository.Tx, tgID int64) (*model.Member, error) {
	if m, err := d.get(ctx, tgIDKey(tgID)); err == nil {
		metrics.ObserveMemberCache("tg_id", true)
		return m, nil
	}
	metrics.ObserveMemberCache("tg_id", false)
	m, err := d.inner.FindByTelegramID(ctx, tx, tgID)
	if err != nil {
		return nil, err
	}
	d.warm(ctx, m)
	return m, nil
}

func (d *memberRepoCacheDecorator) FindByUsername(ctx context.Context, tx repository.Tx, username string) (*model.Member, error) {
	key := usernameKey(username)
	if m, err := d.get(ctx, key); err == nil {
		metrics.ObserveMemberCache("username", true)
		return m, nil
	}
	metrics.ObserveMemberCache("username", false)
	m, err := d.inner.FindByUsername(ctx, tx, username)
	if err != nil {
		return nil, err
	}
	d.warm(ctx, m)
	return m, nil
}

func (d *memberRepoCacheDecorator) Count(ctx context.Context, tx repository.Tx) (int, error) {
	return d.inner.Count(ctx, tx)
}

func (d *memberRepoCacheDecorator) get(ctx context.Context, key string) (*model.Member, error) {
	val, err := d.cache.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var m model.Member
	if err := json.Unmarshal([]byte(val), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (d *memberRepoCacheDecorator) warm(ctx context.Context, m *model.Member) {
	if m == nil {
		return
	}
	b, err := json.Marshal(m)
	if err != nil {
		return
	}
	_ = d.cache.Set(ctx, tgIDKey(m.TelegramID), b, d.ttl)
	if m.Username != "" {
		_ = d.cache.Set(ctx, usernameKey(m.Username), b, d.ttl)
	}
}
