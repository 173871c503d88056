package cache

import (
	"sync"
	"time"
)

type memoryItem[V any] struct {
	value    V
	expireAt time.Time
	lastUsed time.Time
}

// Memory is a size-bounded in-process cache with a fixed TTL. Expired
// entries are dropped lazily; the least recently used entry is evicted when
// full.
type Memory[V any] struct {
	mu      sync.Mutex
	data    map[string]*memoryItem[V]
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

func NewMemory[V any](opts ...MemoryOption) *Memory[V] {
	cfg := &MemoryConfig{MaxSize: 256, TTL: time.Minute, Now: time.Now}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.MaxSize < 1 {
		cfg.MaxSize = 1
	}
	return &Memory[V]{
		data:    make(map[string]*memoryItem[V]),
		maxSize: cfg.MaxSize,
		ttl:     cfg.TTL,
		now:     cfg.Now,
	}
}

func (m *Memory[V]) Get(key string) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	item, ok := m.data[key]
	if !ok || !now.Before(item.expireAt) {
		if ok {
			delete(m.data, key)
		}
		var zero V
		return zero, false
	}
	item.lastUsed = now
	return item.value, true
}

func (m *Memory[V]) Set(key string, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if _, exists := m.data[key]; !exists && len(m.data) >= m.maxSize {
		m.evictLocked(now)
	}
	m.data[key] = &memoryItem[V]{value: value, expireAt: now.Add(m.ttl), lastUsed: now}
}

func (m *Memory[V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

func (m *Memory[V]) evictLocked(now time.Time) {
	var oldestKey string
	var oldest time.Time
	for k, item := range m.data {
		if !now.Before(item.expireAt) {
			delete(m.data, k)
			continue
		}
		if oldestKey == "" || item.lastUsed.Before(oldest) {
			oldestKey, oldest = k, item.lastUsed
		}
	}
	if len(m.data) >= m.maxSize && oldestKey != "" {
		delete(m.data, oldestKey)
	}
}
