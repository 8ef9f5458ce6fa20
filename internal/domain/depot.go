package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Depot is a customer's portfolio container.
type Depot struct {
	DepotID    string
	CustomerID string
	Name       string
	CreatedAt  time.Time
}

// CustomerSession is an externally issued authorization token.
type CustomerSession struct {
	SessionID  string
	CustomerID string
	Expiry     time.Time
}

// Expired reports whether the session is no longer valid at now.
func (s *CustomerSession) Expired(now time.Time) bool {
	return !s.Expiry.After(now)
}

// DepotPosition is a depot's holding in one share.
type DepotPosition struct {
	ShareID          string
	Amount           int64
	CostValue        decimal.Decimal
	CurrentValue     decimal.Decimal
	PercentageChange decimal.Decimal
	UpdatedAt        time.Time
}

// Revalue recomputes CurrentValue and PercentageChange from a share price.
func (p *DepotPosition) Revalue(price decimal.Decimal) {
	p.CurrentValue = price.Mul(decimal.NewFromInt(p.Amount))
	p.PercentageChange = PercentageChange(p.CostValue, p.CurrentValue)
}

// DepotSummary aggregates all positions of a depot.
type DepotSummary struct {
	TotalValue       decimal.Decimal
	CostValue        decimal.Decimal
	PercentageChange decimal.Decimal
}

// DepotSnapshot is the read model returned to customers.
type DepotSnapshot struct {
	DepotID   string
	Positions []DepotPosition
	Summary   DepotSummary
}

// PercentageChange returns (current - cost) / cost, or zero without cost.
func PercentageChange(cost, current decimal.Decimal) decimal.Decimal {
	if cost.IsZero() {
		return decimal.Zero
	}
	return current.Sub(cost).Div(cost)
}
