package tracking

import (
	"context"
	"slices"
	"sync"
	"time"
)

type pairKey struct {
	sessionKey string
	address    string
}

// MemoryStore is a concurrency-safe in-process Repository and PolicyStore.
// It enforces the (session key, address) uniqueness the SQL stores get from
// a unique index.
type MemoryStore struct {
	mu       sync.RWMutex
	visitors map[string]*Visitor
	pairs    map[pairKey]string
	bans     map[string]struct{}
	agents   []string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		visitors: make(map[string]*Visitor),
		pairs:    make(map[pairKey]string),
		bans:     make(map[string]struct{}),
	}
}

func (m *MemoryStore) FindByID(ctx context.Context, id string) (*Visitor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.visitors[id]
	if !ok {
		return nil, ErrVisitorNotFound
	}
	c := *v
	return &c, nil
}

func (m *MemoryStore) FindBySession(ctx context.Context, sessionKey, address string) (*Visitor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.pairs[pairKey{sessionKey, address}]
	if !ok {
		return nil, ErrVisitorNotFound
	}
	c := *m.visitors[id]
	return &c, nil
}

func (m *MemoryStore) Create(ctx context.Context, v *Visitor) error {
	if v == nil || v.ID == "" || v.SessionKey == "" {
		return ErrInvalidVisitor
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := pairKey{v.SessionKey, v.Address}
	if _, ok := m.visitors[v.ID]; ok {
		return ErrDuplicateVisitor
	}
	if _, ok := m.pairs[key]; ok {
		return ErrDuplicateVisitor
	}

	c := *v
	m.visitors[v.ID] = &c
	m.pairs[key] = v.ID
	return nil
}

func (m *MemoryStore) Save(ctx context.Context, v *Visitor) error {
	if v == nil || v.ID == "" || v.SessionKey == "" {
		return ErrInvalidVisitor
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.visitors[v.ID]
	if !ok {
		return ErrVisitorNotFound
	}

	key := pairKey{v.SessionKey, v.Address}
	if owner, taken := m.pairs[key]; taken && owner != v.ID {
		return ErrDuplicateVisitor
	}

	delete(m.pairs, pairKey{old.SessionKey, old.Address})
	c := *v
	m.visitors[v.ID] = &c
	m.pairs[key] = v.ID
	return nil
}

func (m *MemoryStore) DeleteInactive(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, v := range m.visitors {
		if v.LastActivity.Before(cutoff) {
			delete(m.visitors, id)
			delete(m.pairs, pairKey{v.SessionKey, v.Address})
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored visitors.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.visitors)
}

func (m *MemoryStore) ListBannedAddresses(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.bans))
	for addr := range m.bans {
		out = append(out, addr)
	}
	slices.Sort(out)
	return out, nil
}

func (m *MemoryStore) ListExcludedAgents(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.agents), nil
}

func (m *MemoryStore) BanAddress(ctx context.Context, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bans[address] = struct{}{}
	return nil
}

func (m *MemoryStore) UnbanAddress(ctx context.Context, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bans, address)
	return nil
}

func (m *MemoryStore) ExcludeAgent(ctx context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !slices.Contains(m.agents, pattern) {
		m.agents = append(m.agents, pattern)
	}
	return nil
}

func (m *MemoryStore) IncludeAgent(ctx context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agents = slices.DeleteFunc(m.agents, func(p string) bool { return p == pattern })
	return nil
}
