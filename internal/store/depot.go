package store

import (
	"context"
	"errors"
	"sync"

	"github.com/efreitasn/depotbroker/internal/domain"
)

// ErrDepotExists is returned when registering a depot id twice.
var ErrDepotExists = errors.New("depot_already_exists")

// DepotStore is a thread-safe in-memory store for depots, keyed by depot_id.
// It answers depot-ownership lookups for authorization.
type DepotStore struct {
	mu     sync.RWMutex
	depots map[string]*domain.Depot
}

// NewDepotStore creates an empty DepotStore.
func NewDepotStore() *DepotStore {
	return &DepotStore{
		depots: make(map[string]*domain.Depot),
	}
}

// Create adds a depot to the store.
func (s *DepotStore) Create(d *domain.Depot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.depots[d.DepotID]; exists {
		return ErrDepotExists
	}
	c := *d
	s.depots[d.DepotID] = &c
	return nil
}

// Get retrieves a depot by ID. It returns domain.ErrDepotNotFound if the
// depot does not exist.
func (s *DepotStore) Get(_ context.Context, id string) (*domain.Depot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.depots[id]
	if !ok {
		return nil, domain.ErrDepotNotFound
	}
	c := *d
	return &c, nil
}
