// Package store provides in-memory EventStore and Cache implementations
// for testing and development.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/warp/credit-engine/reward"
)

// Compile-time interface checks.
var (
	_ reward.EventStore = (*Memory)(nil)
	_ reward.Cache      = (*MemoryCache)(nil)
)

// =============================================================================
// MEMORY EVENT STORE
// =============================================================================

// Memory is an in-memory append-only event store. Versions per logical
// key are held in insertion order; arrival order across keys is the order
// of first append.
type Memory struct {
	mu      sync.RWMutex
	events  map[string][]reward.RewardEvent // key hash -> versions, ascending
	arrival []string                        // key hashes in first-append order
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		events: make(map[string][]reward.RewardEvent),
		now:    time.Now,
	}
}

// NewMemoryWithClock pins the insertion clock. Tests use it.
func NewMemoryWithClock(now func() time.Time) *Memory {
	m := NewMemory()
	m.now = now
	return m
}

// Append inserts a new version. The store assigns the version and keeps
// the first version's timestamp on later versions.
func (m *Memory) Append(_ context.Context, ev *reward.RewardEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	hash := ev.Hash()
	versions := m.events[hash]
	if len(versions) == 0 {
		m.arrival = append(m.arrival, hash)
		if ev.Time.IsZero() {
			ev.Time = m.now()
		}
	} else {
		ev.Time = versions[0].Time
	}
	ev.Version = len(versions) + 1
	m.events[hash] = append(versions, *ev)
	return nil
}

// Latest returns the newest version of each matching logical event in
// arrival order.
func (m *Memory) Latest(_ context.Context, f reward.Filter) ([]reward.RewardEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []reward.RewardEvent
	for _, hash := range m.arrival {
		versions := m.events[hash]
		ev := versions[len(versions)-1]
		if !matchesType(ev.Type, f.Types) {
			continue
		}
		if f.Status != "" && ev.Status != f.Status {
			continue
		}
		if f.ToUserID != "" && ev.ToUserID != f.ToUserID {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// SumAwarded sums AwardAmount over awarded latest versions matching the
// query.
func (m *Memory) SumAwarded(_ context.Context, q reward.AggregateQuery) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var sum int64
	for _, hash := range m.arrival {
		versions := m.events[hash]
		ev := versions[len(versions)-1]
		if ev.Status != reward.StatusAwarded {
			continue
		}
		if !matchesType(ev.Type, q.Types) {
			continue
		}
		if q.ToUserID != "" && ev.ToUserID != q.ToUserID {
			continue
		}
		if q.ByUserID != "" && ev.ByUserID != q.ByUserID {
			continue
		}
		if q.ForID != "" && ev.ForID != q.ForID {
			continue
		}
		if q.Window != nil && !q.Window.Contains(ev.Time) {
			continue
		}
		sum += ev.AwardAmount
	}
	return sum, nil
}

// Versions returns every stored version for a key, oldest first.
// Test helper; not part of the EventStore contract.
func (m *Memory) Versions(key reward.EventKey) []reward.RewardEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]reward.RewardEvent, len(m.events[key.Hash()]))
	copy(out, m.events[key.Hash()])
	return out
}

func matchesType(tag string, types []string) bool {
	for _, t := range types {
		if t == tag {
			return true
		}
	}
	return false
}

// =============================================================================
// MEMORY IDEMPOTENCY CACHE
// =============================================================================

// MemoryCache is an in-memory idempotency cache. Add is atomic under one
// mutex, so concurrent applications of the same key cannot both observe
// the old count.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[cacheKey]map[string]time.Time
}

type cacheKey struct {
	ToUserID   string
	RewardType string
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[cacheKey]map[string]time.Time)}
}

func (c *MemoryCache) Add(_ context.Context, toUserID, rewardType, hash string, at time.Time) (bool, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := cacheKey{ToUserID: toUserID, RewardType: rewardType}
	hashes := c.entries[k]
	if hashes == nil {
		hashes = make(map[string]time.Time)
		c.entries[k] = hashes
	}
	if _, ok := hashes[hash]; ok {
		return false, len(hashes), nil
	}
	prior := len(hashes)
	hashes[hash] = at
	return true, prior, nil
}

func (c *MemoryCache) Count(_ context.Context, toUserID, rewardType string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries[cacheKey{ToUserID: toUserID, RewardType: rewardType}]), nil
}
