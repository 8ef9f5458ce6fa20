package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/efreitasn/depotbroker/internal/domain"
	"github.com/shopspring/decimal"
)

// DepotAggregator maintains depot positions from completed fills. Positions
// use average-cost accounting: buys add cost, sells remove the sold share
// of the accumulated cost.
type DepotAggregator struct {
	positions PositionStore
	prices    PriceSource
	locks     *KeyedMutex
	logger    *slog.Logger
	now       func() time.Time
}

// NewDepotAggregator creates a DepotAggregator.
func NewDepotAggregator(positions PositionStore, prices PriceSource, logger *slog.Logger) *DepotAggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &DepotAggregator{
		positions: positions,
		prices:    prices,
		locks:     NewKeyedMutex(),
		logger:    logger,
		now:       time.Now,
	}
}

// ApplyFill books amount units of shareID at price into the depot and
// returns the resulting position. A sell that empties the position removes
// it; the returned position then has Amount 0.
func (a *DepotAggregator) ApplyFill(ctx context.Context, depotID, shareID string, side domain.OrderSide, amount int64, price decimal.Decimal) (domain.DepotPosition, error) {
	unlock := a.locks.Lock(depotID)
	defer unlock()

	pos, ok, err := a.positions.Get(ctx, depotID, shareID)
	if err != nil {
		return domain.DepotPosition{}, fmt.Errorf("loading position %s/%s: %w", depotID, shareID, err)
	}
	if !ok {
		pos = domain.DepotPosition{
			ShareID:      shareID,
			CostValue:    decimal.Zero,
			CurrentValue: decimal.Zero,
		}
	}

	units := decimal.NewFromInt(amount)
	switch side {
	case domain.OrderSideBuy:
		pos.Amount += amount
		pos.CostValue = pos.CostValue.Add(units.Mul(price))
	case domain.OrderSideSell:
		if amount >= pos.Amount {
			if amount > pos.Amount {
				a.logger.Warn("sell exceeds position, clamping to zero",
					"depot_id", depotID,
					"share_id", shareID,
					"held", pos.Amount,
					"sold", amount,
				)
			}
			if err := a.positions.Remove(ctx, depotID, shareID); err != nil {
				return domain.DepotPosition{}, fmt.Errorf("removing position %s/%s: %w", depotID, shareID, err)
			}
			return domain.DepotPosition{
				ShareID:      shareID,
				CostValue:    decimal.Zero,
				CurrentValue: decimal.Zero,
				UpdatedAt:    a.now(),
			}, nil
		}
		sold := pos.CostValue.Mul(units).Div(decimal.NewFromInt(pos.Amount))
		pos.Amount -= amount
		pos.CostValue = pos.CostValue.Sub(sold)
	}

	latest, err := a.prices.Price(ctx, shareID)
	if err != nil {
		latest = price
	}
	pos.Revalue(latest)
	pos.UpdatedAt = a.now()
	if err := a.positions.Put(ctx, depotID, pos); err != nil {
		return domain.DepotPosition{}, fmt.Errorf("storing position %s/%s: %w", depotID, shareID, err)
	}
	return pos, nil
}

// Held returns the number of units the depot holds of shareID.
func (a *DepotAggregator) Held(ctx context.Context, depotID, shareID string) (int64, error) {
	pos, ok, err := a.positions.Get(ctx, depotID, shareID)
	if err != nil || !ok {
		return 0, err
	}
	return pos.Amount, nil
}

// Snapshot revalues every position of the depot at the latest price and
// folds them into a summary. Positions whose price cannot be looked up keep
// their last stored value.
func (a *DepotAggregator) Snapshot(ctx context.Context, depotID string) (domain.DepotSnapshot, error) {
	unlock := a.locks.Lock(depotID)
	positions, err := a.positions.ListByDepot(ctx, depotID)
	unlock()
	if err != nil {
		return domain.DepotSnapshot{}, fmt.Errorf("listing positions of %s: %w", depotID, err)
	}

	for i := range positions {
		price, err := a.prices.Price(ctx, positions[i].ShareID)
		if err != nil {
			a.logger.Debug("keeping stored value, price lookup failed",
				"depot_id", depotID,
				"share_id", positions[i].ShareID,
				"error", err,
			)
			continue
		}
		positions[i].Revalue(price)
	}

	return domain.DepotSnapshot{
		DepotID:   depotID,
		Positions: positions,
		Summary:   Summarize(positions),
	}, nil
}

// Summarize folds positions into a DepotSummary. The percentage change is
// weighted by cost: (Σcurrent - Σcost) / Σcost.
func Summarize(positions []domain.DepotPosition) domain.DepotSummary {
	total := decimal.Zero
	cost := decimal.Zero
	for _, p := range positions {
		total = total.Add(p.CurrentValue)
		cost = cost.Add(p.CostValue)
	}
	return domain.DepotSummary{
		TotalValue:       total,
		CostValue:        cost,
		PercentageChange: domain.PercentageChange(cost, total),
	}
}
