package engine

import (
	"github.com/efreitasn/depotbroker/internal/domain"
	"github.com/shopspring/decimal"
)

// OrderSplitter breaks orders whose notional value exceeds a threshold into
// sub-orders whose value stays near a batch ceiling. It holds no state and
// is safe for concurrent use.
type OrderSplitter struct {
	threshold decimal.Decimal
	ceiling   decimal.Decimal
}

// NewOrderSplitter creates an OrderSplitter. Orders worth more than
// threshold are split into batches worth at most ceiling plus one unit.
func NewOrderSplitter(threshold, ceiling decimal.Decimal) *OrderSplitter {
	return &OrderSplitter{threshold: threshold, ceiling: ceiling}
}

// Split returns the sub-orders for order valued at referencePrice per unit.
// Every sub-order copies the parent, including its OrderID; only Amount
// differs. Batch sizes differ by at most one and never increase in emission
// order: leftover units go to the first batches, so children[0] is always
// the largest.
func (s *OrderSplitter) Split(order domain.Order, referencePrice decimal.Decimal) ([]domain.Order, error) {
	if order.Amount <= 0 {
		return nil, &domain.ValidationError{Message: "amount must be greater than 0"}
	}
	if !referencePrice.IsPositive() {
		return nil, &domain.ValidationError{Message: "reference price must be greater than 0"}
	}
	if !s.ceiling.IsPositive() {
		return nil, &domain.ValidationError{Message: "batch value ceiling must be greater than 0"}
	}

	amount := decimal.NewFromInt(order.Amount)
	value := referencePrice.Mul(amount)
	if value.LessThanOrEqual(s.threshold) {
		return []domain.Order{order}, nil
	}

	numBatches := BatchCount(value, s.ceiling)
	// A single unit may be worth more than the ceiling; never emit empty batches.
	if numBatches > order.Amount {
		numBatches = order.Amount
	}

	base := order.Amount / numBatches
	remainder := order.Amount - base*numBatches

	batches := make([]domain.Order, numBatches)
	for i := range batches {
		child := order
		child.Amount = base
		if int64(i) < remainder {
			child.Amount++
		}
		batches[i] = child
	}
	return batches, nil
}

// BatchCount returns ceil(value / ceiling).
func BatchCount(value, ceiling decimal.Decimal) int64 {
	q, r := value.QuoRem(ceiling, 0)
	n := q.IntPart()
	if r.Sign() > 0 {
		n++
	}
	return n
}
