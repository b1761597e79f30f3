//go:build !integration

package redis

import (
	"context"
	"sync"
	"time"
)

// memClient is an in-memory RedisClient good enough for the helpers here.
// Expirations are recorded but never enforced.
type memClient struct {
	mu       sync.Mutex
	data     map[string]string
	ttl      map[string]time.Duration
	failSet  error
	failIncr error
}

func newMemClient() *memClient {
	return &memClient{data: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (m *memClient) Ping(ctx context.Context) error { return nil }

func (m *memClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.failSet != nil {
		return m.failSet
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = toString(value)
	m.ttl[key] = expiration
	return nil
}

func (m *memClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = toString(value)
	m.ttl[key] = expiration
	return true, nil
}

func (m *memClient) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", Nil
	}
	return v, nil
}

func (m *memClient) Incr(ctx context.Context, key string) (int64, error) {
	if m.failIncr != nil {
		return 0, m.failIncr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, c := range m.data[key] {
		n = n*10 + int64(c-'0')
	}
	n++
	m.data[key] = itoa(n)
	return n, nil
}

func (m *memClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ttl[key] = expiration
	return nil
}

func (m *memClient) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memClient) DelIfEqual(ctx context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[key] != value {
		return false, nil
	}
	delete(m.data, key)
	return true, nil
}

func (m *memClient) Close() error { return nil }

func toString(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	}
	return ""
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	return string(b)
}
