package store

import (
	"context"
	"sort"
	"sync"

	"github.com/oriys/satchel/internal/domain"
)

// Memory is an in-process ContentStore + SetCatalog used by builder unit
// tests and local development without Postgres.
type Memory struct {
	mu    sync.Mutex
	items map[string]domain.Item          // id -> item
	hash  map[string]map[string]struct{}  // categoryID -> hash -> present
	sets  map[string]domain.Set           // setID -> set
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		items: map[string]domain.Item{},
		hash:  map[string]map[string]struct{}{},
		sets:  map[string]domain.Set{},
	}
}

func (m *Memory) PutBatch(_ context.Context, items []domain.Item) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, skipped := 0, 0
	for _, item := range items {
		if m.hash[item.CategoryID] == nil {
			m.hash[item.CategoryID] = map[string]struct{}{}
		}
		if _, dup := m.hash[item.CategoryID][item.Hash]; dup {
			skipped++
			continue
		}
		item.Payload = domain.NormalizePayload(item.Payload)
		m.hash[item.CategoryID][item.Hash] = struct{}{}
		m.items[item.ID] = item
		stored++
	}
	return stored, skipped, nil
}

func (m *Memory) GetBatch(_ context.Context, refs []domain.ItemRef) ([]domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Item
	for _, r := range refs {
		if item, ok := m.items[r.ID]; ok && item.Hash == r.Hash {
			out = append(out, item)
		}
	}
	return out, nil
}

func (m *Memory) QueryByCategory(_ context.Context, categoryID, afterID string) ([]domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Item
	for _, item := range m.items {
		if item.CategoryID != categoryID {
			continue
		}
		if afterID != "" && item.ID <= afterID {
			continue
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) QueryByHash(_ context.Context, hash string) ([]domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Item
	for _, item := range m.items {
		if item.Hash == hash {
			out = append(out, item)
		}
	}
	return out, nil
}

func (m *Memory) Put(_ context.Context, set domain.Set) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets[set.SetID] = set
	return nil
}

func (m *Memory) GetLatestWatermark(_ context.Context, categoryID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest string
	found := false
	for _, set := range m.sets {
		if set.CategoryID != categoryID {
			continue
		}
		if !found || set.Watermark > latest {
			latest = set.Watermark
			found = true
		}
	}
	return latest, found, nil
}

func (m *Memory) Get(_ context.Context, setID string) (domain.Set, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.sets[setID]
	return set, ok, nil
}

func (m *Memory) GetSets(_ context.Context, setIDs []string) ([]domain.Set, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Set
	for _, id := range setIDs {
		if set, ok := m.sets[id]; ok {
			out = append(out, set)
		}
	}
	return out, nil
}

func (m *Memory) GetByWatermark(_ context.Context, categoryID, watermark string) ([]domain.Set, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Set
	for _, set := range m.sets {
		if set.CategoryID == categoryID && set.Watermark == watermark {
			out = append(out, set)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SetID < out[j].SetID })
	return out, nil
}
