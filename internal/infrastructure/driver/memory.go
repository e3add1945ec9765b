package driver

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value    string
	expireAt time.Time
}

// MemoryKV in-process KeyValueDB, nothing survives a restart
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string]memoryEntry
	now  func() time.Time
}

var _ KeyValueDB = &MemoryKV{}

// NewMemoryKV create an empty MemoryKV
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{
		data: make(map[string]memoryEntry),
		now:  time.Now,
	}
}

func (m *MemoryKV) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.data[key]
	if !ok || m.expired(e) {
		return "", ErrKeyNotFound
	}
	return e.value, nil
}

func (m *MemoryKV) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := memoryEntry{value: value}
	if expiration > 0 {
		e.expireAt = m.now().Add(expiration)
	}
	m.data[key] = e
	return nil
}

func (m *MemoryKV) Del(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

func (m *MemoryKV) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.data[key]
	return ok && !m.expired(e), nil
}

func (m *MemoryKV) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryKV) expired(e memoryEntry) bool {
	return !e.expireAt.IsZero() && !m.now().Before(e.expireAt)
}
