package store

import (
	"context"
	"sync"

	"github.com/efreitasn/depotbroker/internal/domain"
	"github.com/shopspring/decimal"
)

// PriceStore keeps the latest known price per share in memory.
type PriceStore struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

// NewPriceStore creates an empty PriceStore.
func NewPriceStore() *PriceStore {
	return &PriceStore{
		prices: make(map[string]decimal.Decimal),
	}
}

// SetPrice records the latest price for a share.
func (s *PriceStore) SetPrice(_ context.Context, shareID string, price decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[shareID] = price
	return nil
}

// Price returns the latest price or domain.ErrShareNotFound.
func (s *PriceStore) Price(_ context.Context, shareID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.prices[shareID]
	if !ok {
		return decimal.Zero, domain.ErrShareNotFound
	}
	return p, nil
}
