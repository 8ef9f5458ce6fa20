package store

import (
	"context"
	"sort"
	"sync"

	"github.com/efreitasn/depotbroker/internal/domain"
)

// PositionStore is a thread-safe in-memory store of depot positions.
// Index: depot_id → share_id → position.
type PositionStore struct {
	mu        sync.RWMutex
	positions map[string]map[string]domain.DepotPosition
}

// NewPositionStore creates an empty PositionStore.
func NewPositionStore() *PositionStore {
	return &PositionStore{
		positions: make(map[string]map[string]domain.DepotPosition),
	}
}

// Get returns the depot's position in a share.
func (s *PositionStore) Get(_ context.Context, depotID, shareID string) (domain.DepotPosition, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[depotID][shareID]
	return p, ok, nil
}

// Put inserts or replaces a position.
func (s *PositionStore) Put(_ context.Context, depotID string, p domain.DepotPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byShare, ok := s.positions[depotID]
	if !ok {
		byShare = make(map[string]domain.DepotPosition)
		s.positions[depotID] = byShare
	}
	byShare[p.ShareID] = p
	return nil
}

// Remove deletes a position. Removing an absent position is not an error.
func (s *PositionStore) Remove(_ context.Context, depotID, shareID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byShare, ok := s.positions[depotID]
	if !ok {
		return nil
	}
	delete(byShare, shareID)
	if len(byShare) == 0 {
		delete(s.positions, depotID)
	}
	return nil
}

// ListByDepot returns the depot's positions sorted by share id.
func (s *PositionStore) ListByDepot(_ context.Context, depotID string) ([]domain.DepotPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byShare := s.positions[depotID]
	result := make([]domain.DepotPosition, 0, len(byShare))
	for _, p := range byShare {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ShareID < result[j].ShareID
	})
	return result, nil
}
