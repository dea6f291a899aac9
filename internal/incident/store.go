package incident

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ortelius/storefront-guard/internal/secerr"
	"github.com/ortelius/storefront-guard/model"
)

// Store persists incidents. Update must apply fn atomically with respect to
// other updates of the same incident so concurrent note appends are never lost.
type Store interface {
	Create(ctx context.Context, incident *model.SecurityIncident) error
	Get(ctx context.Context, id string) (*model.SecurityIncident, error)
	Update(ctx context.Context, id string, fn func(*model.SecurityIncident) error) (*model.SecurityIncident, error)
	ListBetween(ctx context.Context, from, to time.Time) ([]*model.SecurityIncident, error)
}

// MemoryStore is a mutex-guarded Store for tests and single-node deployments
type MemoryStore struct {
	mu        sync.Mutex
	incidents map[string]*model.SecurityIncident
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{incidents: make(map[string]*model.SecurityIncident)}
}

// Create stores a copy of incident
func (s *MemoryStore) Create(_ context.Context, incident *model.SecurityIncident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.incidents[incident.Key]; exists {
		return secerr.ErrConflict
	}
	s.incidents[incident.Key] = clone(incident)
	return nil
}

// Get returns a copy of the incident
func (s *MemoryStore) Get(_ context.Context, id string) (*model.SecurityIncident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inc, ok := s.incidents[id]
	if !ok {
		return nil, secerr.ErrNotFound
	}
	return clone(inc), nil
}

// Update runs fn on a copy under the store lock and commits it only if fn succeeds
func (s *MemoryStore) Update(_ context.Context, id string, fn func(*model.SecurityIncident) error) (*model.SecurityIncident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inc, ok := s.incidents[id]
	if !ok {
		return nil, secerr.ErrNotFound
	}
	working := clone(inc)
	if err := fn(working); err != nil {
		return nil, err
	}
	s.incidents[id] = working
	return clone(working), nil
}

// ListBetween returns incidents reported in [from, to], oldest first
func (s *MemoryStore) ListBetween(_ context.Context, from, to time.Time) ([]*model.SecurityIncident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.SecurityIncident
	for _, inc := range s.incidents {
		if inc.ReportedAt.Before(from) || inc.ReportedAt.After(to) {
			continue
		}
		out = append(out, clone(inc))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ReportedAt.Before(out[j].ReportedAt)
	})
	return out, nil
}

func clone(in *model.SecurityIncident) *model.SecurityIncident {
	out := *in
	out.AffectedSystems = make([]string, len(in.AffectedSystems))
	copy(out.AffectedSystems, in.AffectedSystems)
	if in.ResolvedAt != nil {
		t := *in.ResolvedAt
		out.ResolvedAt = &t
	}
	if in.ResponseNotes != nil {
		n := *in.ResponseNotes
		out.ResponseNotes = &n
	}
	return &out
}
