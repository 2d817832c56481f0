package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-memory entry store. It backs tests and serves as the
// reference implementation of the rank-window contract the reorder
// engine persists through.
type Memory struct {
	mu      sync.Mutex
	entries map[string]Entry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry), now: time.Now}
}

func (m *Memory) Put(e Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.Key] = e
}

func (m *Memory) FetchByKey(ctx context.Context, key string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (m *Memory) FetchRankWindow(ctx context.Context, low, high float64, includeLow, includeHigh bool) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for _, e := range m.entries {
		if e.Rank < low || (e.Rank == low && !includeLow) {
			continue
		}
		if e.Rank > high || (e.Rank == high && !includeHigh) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank < out[j].Rank
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

func (m *Memory) UpdateRank(ctx context.Context, key string, rank float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return ErrNotFound
	}
	e.Rank = rank
	e.UpdatedAt = m.now()
	m.entries[key] = e
	return nil
}

func (m *Memory) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

// All returns every entry sorted by rank. Helper for tests.
func (m *Memory) All() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank < out[j].Rank
		}
		return out[i].Key < out[j].Key
	})
	return out
}
