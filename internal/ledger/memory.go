package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oriys/satchel/internal/domain"
)

// MemoryStore is an in-process Store used by allocator/eviction unit tests
// and local development. Per-user serialization is a plain mutex here since
// there is no distributed CAS to model — the contract it exposes to callers
// is identical to RedisLedger's.
type MemoryStore struct {
	mu    sync.Mutex
	users map[string]map[string]domain.UserCategoryState // userID -> categoryID -> state
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: map[string]map[string]domain.UserCategoryState{}}
}

func (m *MemoryStore) Load(_ context.Context, userID, categoryID string) (domain.UserCategoryState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cats, ok := m.users[userID]; ok {
		if state, ok := cats[categoryID]; ok {
			return state.Clone(), nil
		}
	}
	return domain.EmptyUserCategoryState(userID, categoryID), nil
}

func (m *MemoryStore) Append(_ context.Context, userID, categoryID, setID string, assignedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cats := m.users[userID]
	if cats == nil {
		cats = map[string]domain.UserCategoryState{}
		m.users[userID] = cats
	}
	state, ok := cats[categoryID]
	if !ok {
		state = domain.EmptyUserCategoryState(userID, categoryID)
	}
	if state.Has(setID) {
		return fmt.Errorf("%w: set %s already allocated to %s/%s", domain.ErrInvariantViolation, setID, userID, categoryID)
	}

	state.SetIDs = append(state.SetIDs, setID)
	state.AssignedAt[setID] = assignedAt
	state.Count = len(state.SetIDs)
	state.LastAssigned = setID
	state.LastUpdated = assignedAt
	state.LastUpdatedPerCategory = assignedAt
	cats[categoryID] = state
	return nil
}

func (m *MemoryStore) Drop(_ context.Context, userID, categoryID string, setIDs []string, now time.Time) error {
	if len(setIDs) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cats := m.users[userID]
	if cats == nil {
		return nil
	}
	state, ok := cats[categoryID]
	if !ok {
		return nil
	}

	drop := make(map[string]struct{}, len(setIDs))
	for _, id := range setIDs {
		drop[id] = struct{}{}
	}

	kept := make([]string, 0, len(state.SetIDs))
	removed := 0
	for _, id := range state.SetIDs {
		if _, ok := drop[id]; ok {
			delete(state.AssignedAt, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	state.SetIDs = kept
	state.Count = len(kept)
	state.EvictedCount += removed
	state.EvictedAt = now

	if len(kept) == 0 {
		delete(cats, categoryID)
	} else {
		cats[categoryID] = state
	}
	return nil
}

func (m *MemoryStore) ResetUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, userID)
	return nil
}

func (m *MemoryStore) Categories(_ context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cats := m.users[userID]
	out := make([]string, 0, len(cats))
	for c := range cats {
		out = append(out, c)
	}
	return out, nil
}
