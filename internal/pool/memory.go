package pool

import (
	"context"
	"sync"
	"time"

	"github.com/oriys/satchel/internal/domain"
)

// MemoryIndex is an in-process Index used by unit tests for the allocator
// and eviction integration, and as a dependency-free backend for local
// development. It preserves the same atomicity contract as RedisIndex
// (enqueue + metadata update under one lock) without requiring Redis.
type MemoryIndex struct {
	mu    sync.Mutex
	pools map[string][]string
	seen  map[string]map[string]struct{}
	meta  map[string]domain.CategoryMeta
}

// NewMemoryIndex returns an empty MemoryIndex.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		pools: map[string][]string{},
		seen:  map[string]map[string]struct{}{},
		meta:  map[string]domain.CategoryMeta{},
	}
}

func (m *MemoryIndex) Enqueue(_ context.Context, categoryID string, setIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.seen[categoryID] == nil {
		m.seen[categoryID] = map[string]struct{}{}
	}
	added := 0
	for _, id := range setIDs {
		if _, ok := m.seen[categoryID][id]; ok {
			continue
		}
		m.pools[categoryID] = append(m.pools[categoryID], id)
		m.seen[categoryID][id] = struct{}{}
		added++
	}
	if added > 0 {
		meta := m.meta[categoryID]
		meta.CategoryID = categoryID
		meta.TotalAvailable = len(m.pools[categoryID])
		meta.LastUpdated = time.Now()
		meta.LastBatchSize = added
		m.meta[categoryID] = meta
	}
	return nil
}

func (m *MemoryIndex) PeekAll(_ context.Context, categoryID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.pools[categoryID]))
	copy(out, m.pools[categoryID])
	return out, nil
}

func (m *MemoryIndex) DequeueOne(_ context.Context, categoryID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.pools[categoryID]
	if len(q) == 0 {
		return "", false, nil
	}
	id := q[0]
	m.pools[categoryID] = q[1:]
	delete(m.seen[categoryID], id)
	meta := m.meta[categoryID]
	meta.TotalAvailable = len(m.pools[categoryID])
	meta.LastUpdated = time.Now()
	m.meta[categoryID] = meta
	return id, true, nil
}

func (m *MemoryIndex) Drop(_ context.Context, categoryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pools[categoryID] = nil
	m.seen[categoryID] = map[string]struct{}{}
	m.meta[categoryID] = domain.CategoryMeta{CategoryID: categoryID, LastUpdated: time.Now()}
	return nil
}

func (m *MemoryIndex) Metadata(_ context.Context, categoryID string) (domain.CategoryMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta, ok := m.meta[categoryID]
	if !ok {
		return domain.CategoryMeta{CategoryID: categoryID}, nil
	}
	return meta, nil
}
