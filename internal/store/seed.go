package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/efreitasn/depotbroker/internal/domain"
	"github.com/shopspring/decimal"
)

// PriceSetter records share prices.
type PriceSetter interface {
	SetPrice(ctx context.Context, shareID string, price decimal.Decimal) error
}

// Seed is the JSON document loaded at startup. Depots, sessions and prices
// are owned by external services; the seed stands in for them.
type Seed struct {
	Depots []struct {
		DepotID    string `json:"depotId"`
		CustomerID string `json:"customerId"`
		Name       string `json:"name"`
	} `json:"depots"`
	Sessions []struct {
		SessionID  string    `json:"sessionId"`
		CustomerID string    `json:"customerId"`
		Expiry     time.Time `json:"expiry"`
	} `json:"sessions"`
	Prices map[string]decimal.Decimal `json:"prices"`
}

// LoadSeed reads a Seed from r into the given stores.
func LoadSeed(ctx context.Context, r io.Reader, depots *DepotStore, sessions *SessionStore, prices PriceSetter) error {
	var seed Seed
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&seed); err != nil {
		return fmt.Errorf("decoding seed: %w", err)
	}

	now := time.Now()
	for _, d := range seed.Depots {
		if d.DepotID == "" || d.CustomerID == "" {
			return fmt.Errorf("seed depot needs depotId and customerId")
		}
		if err := depots.Create(&domain.Depot{
			DepotID:    d.DepotID,
			CustomerID: d.CustomerID,
			Name:       d.Name,
			CreatedAt:  now,
		}); err != nil {
			return fmt.Errorf("seeding depot %s: %w", d.DepotID, err)
		}
	}
	for _, s := range seed.Sessions {
		sessions.Put(domain.CustomerSession{
			SessionID:  s.SessionID,
			CustomerID: s.CustomerID,
			Expiry:     s.Expiry,
		})
	}
	for shareID, price := range seed.Prices {
		if !price.IsPositive() {
			return fmt.Errorf("seed price for %s must be greater than 0", shareID)
		}
		if err := prices.SetPrice(ctx, shareID, price); err != nil {
			return fmt.Errorf("seeding price %s: %w", shareID, err)
		}
	}
	return nil
}
