package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Memory is a process-local Store for single-instance deployments.
// Expired entries are swept on writes at most once per ttl.
type Memory struct {
	mu        sync.Mutex
	ttl       time.Duration
	now       func() time.Time
	entries   map[string]entry
	gens      map[string]uint64
	nextSweep time.Time
}

type entry struct {
	value   []byte
	expires time.Time
}

var _ Store = &Memory{}

// NewMemory returns an empty Memory cache whose entries live for ttl.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:     ttl,
		now:     time.Now,
		entries: map[string]entry{},
		gens:    map[string]uint64{},
	}
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (m *Memory) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if !now.Before(m.nextSweep) {
		m.sweep(now)
		m.nextSweep = now.Add(m.ttl)
	}
	m.entries[key] = entry{value: value, expires: now.Add(m.ttl)}
	return nil
}

// sweep drops the expired entries. m.mu must be held.
func (m *Memory) sweep(now time.Time) {
	for k, e := range m.entries {
		if !now.Before(e.expires) {
			delete(m.entries, k)
		}
	}
}

func (m *Memory) Generation(ctx context.Context, prefix string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gens[prefix], nil
}

func (m *Memory) Invalidate(ctx context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gens[prefix]++
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			delete(m.entries, k)
		}
	}
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
