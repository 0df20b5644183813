package redis

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"
)

// memClient is an in-memory RedisClient honoring expirations.
type memClient struct {
	mu      sync.Mutex
	now     func() time.Time
	values  map[string]string
	expires map[string]time.Time

	failGet  error
	failIncr bool
}

func newMemClient() *memClient {
	return &memClient{
		now:     time.Now,
		values:  map[string]string{},
		expires: map[string]time.Time{},
	}
}

func (m *memClient) expired(key string) bool {
	exp, ok := m.expires[key]
	return ok && !m.now().Before(exp)
}

func (m *memClient) Ping(ctx context.Context) error { return nil }

func (m *memClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch v := value.(type) {
	case string:
		m.values[key] = v
	case []byte:
		m.values[key] = string(v)
	default:
		return errors.New("unsupported value type")
	}
	if expiration > 0 {
		m.expires[key] = m.now().Add(expiration)
	} else {
		delete(m.expires, key)
	}
	return nil
}

func (m *memClient) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet != nil {
		return "", m.failGet
	}
	v, ok := m.values[key]
	if !ok || m.expired(key) {
		return "", ErrNil
	}
	return v, nil
}

func (m *memClient) Incr(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failIncr {
		return 0, errors.New("connection refused")
	}
	if m.expired(key) {
		delete(m.values, key)
		delete(m.expires, key)
	}
	n, _ := strconv.ParseInt(m.values[key], 10, 64)
	n++
	m.values[key] = strconv.FormatInt(n, 10)
	return n, nil
}

func (m *memClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expires[key] = m.now().Add(expiration)
	return nil
}

func (m *memClient) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
		delete(m.expires, k)
	}
	return nil
}

func (m *memClient) Close() error { return nil }
