package tracking_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrymomot/visitrack/pkg/tracking"
)

var errStoreDown = errors.New("store down")

// policySource counts list calls and can be switched to fail.
type policySource struct {
	mu        sync.Mutex
	bans      []string
	agents    []string
	fail      bool
	banLoads  int
	agentLoad int
}

func (p *policySource) ListBannedAddresses(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.banLoads++
	if p.fail {
		return nil, errStoreDown
	}
	return append([]string(nil), p.bans...), nil
}

func (p *policySource) ListExcludedAgents(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.agentLoad++
	if p.fail {
		return nil, errStoreDown
	}
	return append([]string(nil), p.agents...), nil
}

func (p *policySource) set(bans, agents []string, fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bans, p.agents, p.fail = bans, agents, fail
}

func (p *policySource) loads() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.banLoads, p.agentLoad
}

// faultyStore wraps a MemoryStore and fails selected visitor operations.
type faultyStore struct {
	*tracking.MemoryStore
	failFind   bool
	failWrite  bool
	failDelete bool
}

func (f *faultyStore) FindByID(ctx context.Context, id string) (*tracking.Visitor, error) {
	if f.failFind {
		return nil, errStoreDown
	}
	return f.MemoryStore.FindByID(ctx, id)
}

func (f *faultyStore) FindBySession(ctx context.Context, key, address string) (*tracking.Visitor, error) {
	if f.failFind {
		return nil, errStoreDown
	}
	return f.MemoryStore.FindBySession(ctx, key, address)
}

func (f *faultyStore) Create(ctx context.Context, v *tracking.Visitor) error {
	if f.failWrite {
		return errStoreDown
	}
	return f.MemoryStore.Create(ctx, v)
}

func (f *faultyStore) Save(ctx context.Context, v *tracking.Visitor) error {
	if f.failWrite {
		return errStoreDown
	}
	return f.MemoryStore.Save(ctx, v)
}

func (f *faultyStore) DeleteInactive(ctx context.Context, cutoff time.Time) (int64, error) {
	if f.failDelete {
		return 0, errStoreDown
	}
	return f.MemoryStore.DeleteInactive(ctx, cutoff)
}

// staticSessions hands out a fixed session and records bindings.
type staticSessions struct {
	info  tracking.SessionInfo
	err   error
	bound map[string]string
}

func (s *staticSessions) Session(ctx context.Context, w http.ResponseWriter, r *http.Request) (tracking.SessionInfo, error) {
	if s.err != nil {
		return tracking.SessionInfo{}, s.err
	}
	return s.info, nil
}

func (s *staticSessions) Bind(ctx context.Context, info tracking.SessionInfo, visitorID string) error {
	if s.bound == nil {
		s.bound = make(map[string]string)
	}
	s.bound[info.Key] = visitorID
	return nil
}
