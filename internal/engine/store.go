package engine

import (
	"context"
	"time"

	"github.com/efreitasn/depotbroker/internal/domain"
	"github.com/shopspring/decimal"
)

// JobStore persists jobs and resolves them by job id, exchange order id,
// depot and order. Implementations return copies; callers write changes
// back with Update.
type JobStore interface {
	Create(ctx context.Context, j *domain.Job) error
	Get(ctx context.Context, jobID string) (*domain.Job, error)
	GetByExchangeID(ctx context.Context, exchangeOrderID string) (*domain.Job, error)
	Update(ctx context.Context, j *domain.Job) error
	Delete(ctx context.Context, jobID string) error
	Finish(ctx context.Context, jobID string, state domain.JobState, at time.Time) error
	ListByDepot(ctx context.Context, depotID string) ([]*domain.Job, error)
	ListByOrder(ctx context.Context, orderID string) ([]*domain.Job, error)
	ListExpired(ctx context.Context, now time.Time) ([]*domain.Job, error)
	PruneTombstones(ctx context.Context, before time.Time) (int, error)
}

// PriceSource returns the latest known price of a share.
type PriceSource interface {
	Price(ctx context.Context, shareID string) (decimal.Decimal, error)
}

// PositionStore holds depot positions keyed by (depot, share).
// Get reports false with a nil error when the depot holds no units.
type PositionStore interface {
	Get(ctx context.Context, depotID, shareID string) (domain.DepotPosition, bool, error)
	Put(ctx context.Context, depotID string, p domain.DepotPosition) error
	Remove(ctx context.Context, depotID, shareID string) error
	ListByDepot(ctx context.Context, depotID string) ([]domain.DepotPosition, error)
}
