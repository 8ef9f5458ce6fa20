package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/efreitasn/depotbroker/internal/domain"
	"github.com/efreitasn/depotbroker/internal/engine"
)

// BrokerageService is the customer-facing side of the broker: it places and
// cancels orders and reports pending jobs and depot positions. Every call is
// authorized against the depot it touches.
type BrokerageService struct {
	guard       *AuthorizationGuard
	jobs        engine.JobStore
	lifecycle   *engine.JobLifecycle
	splitter    *engine.OrderSplitter
	aggregator  *engine.DepotAggregator
	prices      engine.PriceSource
	locks       *engine.KeyedMutex
	concurrency int
	logger      *slog.Logger
	now         func() time.Time
}

// NewBrokerageService creates a BrokerageService. concurrency bounds the
// number of simultaneous placement calls for one split order.
func NewBrokerageService(
	guard *AuthorizationGuard,
	jobs engine.JobStore,
	lifecycle *engine.JobLifecycle,
	splitter *engine.OrderSplitter,
	aggregator *engine.DepotAggregator,
	prices engine.PriceSource,
	concurrency int,
	logger *slog.Logger,
) *BrokerageService {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BrokerageService{
		guard:       guard,
		jobs:        jobs,
		lifecycle:   lifecycle,
		splitter:    splitter,
		aggregator:  aggregator,
		prices:      prices,
		locks:       engine.NewKeyedMutex(),
		concurrency: concurrency,
		logger:      logger,
		now:         time.Now,
	}
}

// PlaceOrder validates the order, splits it if its value is above the
// threshold and places one job per sub-order. All jobs are recorded before
// the first placement call. Sub-orders that reached the exchange are kept
// when others fail; the caller gets them along with a
// *domain.PartialPlacementError.
func (s *BrokerageService) PlaceOrder(ctx context.Context, depotID string, session *domain.CustomerSession, order domain.Order) ([]*domain.Job, error) {
	if _, err := s.guard.Authorize(ctx, depotID, session); err != nil {
		return nil, err
	}
	if order.DepotID != "" && order.DepotID != depotID {
		return nil, &domain.ValidationError{Message: "depotId does not match the depot in the path"}
	}
	order.DepotID = depotID

	now := s.now()
	if err := order.Validate(now); err != nil {
		return nil, err
	}

	jobs, err := s.register(ctx, order, now)
	if err != nil {
		return nil, err
	}

	return s.placeAll(ctx, jobs)
}

// register turns the order into AwaitingPlacement jobs. Order ids are unique
// across depots: the order lock makes the duplicate check atomic with the
// insert, and the depot lock keeps the coverage check consistent with
// concurrent sells. Locks are always taken in that order.
func (s *BrokerageService) register(ctx context.Context, order domain.Order, now time.Time) ([]*domain.Job, error) {
	unlockOrder := s.locks.Lock("order:" + order.OrderID)
	defer unlockOrder()
	unlockDepot := s.locks.Lock("depot:" + order.DepotID)
	defer unlockDepot()

	existing, err := s.jobs.ListByOrder(ctx, order.OrderID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, fmt.Errorf("order %s: %w", order.OrderID, domain.ErrDuplicateOrder)
	}

	if order.Side == domain.OrderSideSell {
		if err := s.checkCoverage(ctx, order); err != nil {
			return nil, err
		}
	}

	price, err := s.referencePrice(ctx, order)
	if err != nil {
		return nil, err
	}
	children, err := s.splitter.Split(order, price)
	if err != nil {
		return nil, err
	}

	jobs := make([]*domain.Job, len(children))
	for i, child := range children {
		jobs[i] = &domain.Job{
			JobID:   uuid.NewString(),
			DepotID: order.DepotID,
			Order:   child,
			// Keeps listing order equal to emission order.
			CreatedAt: now.Add(time.Duration(i)),
		}
	}
	if err := s.lifecycle.Register(ctx, jobs); err != nil {
		return nil, err
	}

	if len(jobs) > 1 {
		s.logger.Info("order split",
			"order_id", order.OrderID,
			"depot_id", order.DepotID,
			"amount", order.Amount,
			"batches", len(jobs),
			"reference_price", price.String(),
		)
	}
	return jobs, nil
}

// checkCoverage rejects sells for more units than the depot holds minus
// units committed to live sell jobs. A live job commits its whole amount:
// matched units stay in the position until the job completes.
func (s *BrokerageService) checkCoverage(ctx context.Context, order domain.Order) error {
	held, err := s.aggregator.Held(ctx, order.DepotID, order.ShareID)
	if err != nil {
		return err
	}

	pending, err := s.jobs.ListByDepot(ctx, order.DepotID)
	if err != nil {
		return err
	}
	var committed int64
	for _, j := range pending {
		if j.Order.Side == domain.OrderSideSell && j.Order.ShareID == order.ShareID {
			committed += j.Order.Amount
		}
	}

	if order.Amount > held-committed {
		return fmt.Errorf("selling %d of %s with %d available: %w",
			order.Amount, order.ShareID, max(held-committed, 0), domain.ErrInsufficientHoldings)
	}
	return nil
}

// referencePrice values the order for splitting: the latest share price, or
// the limit when no price is known.
func (s *BrokerageService) referencePrice(ctx context.Context, order domain.Order) (decimal.Decimal, error) {
	price, err := s.prices.Price(ctx, order.ShareID)
	if err == nil {
		return price, nil
	}
	if order.Limit != nil && errors.Is(err, domain.ErrShareNotFound) {
		return *order.Limit, nil
	}
	return price, fmt.Errorf("pricing %s: %w", order.ShareID, err)
}

// placeAll sends every job to the exchange with bounded concurrency. A
// failed placement does not stop its siblings.
func (s *BrokerageService) placeAll(ctx context.Context, jobs []*domain.Job) ([]*domain.Job, error) {
	// Placement outlives the caller: the rows are already recorded.
	ctx = context.WithoutCancel(ctx)

	placed := make([]*domain.Job, len(jobs))
	errs := make([]error, len(jobs))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, j := range jobs {
		g.Go(func() error {
			placed[i], errs[i] = s.lifecycle.Place(ctx, j)
			return nil
		})
	}
	_ = g.Wait()

	var ok []*domain.Job
	var failures []error
	for i := range jobs {
		if errs[i] != nil {
			failures = append(failures, errs[i])
			continue
		}
		ok = append(ok, placed[i])
	}

	switch {
	case len(failures) == 0:
		return ok, nil
	case len(ok) == 0:
		return nil, errors.Join(failures...)
	}

	s.logger.Warn("split order partially placed",
		"order_id", jobs[0].Order.OrderID,
		"placed", len(ok),
		"failed", len(failures),
	)
	return ok, &domain.PartialPlacementError{
		Placed: ok,
		Failed: len(failures),
		Err:    errors.Join(failures...),
	}
}

// CancelOrder asks the exchange to delete every live sub-order of orderID
// in depots the session's customer owns. Jobs still awaiting placement are
// cancelled once their exchange id is known. An order with no sub-orders
// the customer owns is reported as domain.ErrOrderNotFound, whether or not
// it exists elsewhere.
func (s *BrokerageService) CancelOrder(ctx context.Context, orderID string, session *domain.CustomerSession) error {
	if session == nil {
		return domain.ErrSessionNotFound
	}
	jobs, err := s.jobs.ListByOrder(ctx, orderID)
	if err != nil {
		return err
	}

	owned := make([]*domain.Job, 0, len(jobs))
	allowed := make(map[string]bool)
	for _, j := range jobs {
		ok, seen := allowed[j.DepotID]
		if !seen {
			if ok, err = s.owns(ctx, j.DepotID, session); err != nil {
				return err
			}
			allowed[j.DepotID] = ok
		}
		if ok {
			owned = append(owned, j)
		}
	}
	if len(owned) == 0 {
		return fmt.Errorf("order %s: %w", orderID, domain.ErrOrderNotFound)
	}

	var errs []error
	for _, j := range owned {
		if err := s.lifecycle.RequestCancel(ctx, j.JobID); err != nil {
			// A callback may have finished the job since it was listed.
			if errors.Is(err, domain.ErrJobTerminated) || errors.Is(err, domain.ErrJobNotFound) {
				continue
			}
			errs = append(errs, fmt.Errorf("job %s: %w", j.JobID, err))
		}
	}
	return errors.Join(errs...)
}

// owns reports whether the session's customer owns depotID. A depot that
// no longer exists is owned by nobody.
func (s *BrokerageService) owns(ctx context.Context, depotID string, session *domain.CustomerSession) (bool, error) {
	_, err := s.guard.Authorize(ctx, depotID, session)
	var denied *domain.NotAuthorizedError
	switch {
	case err == nil:
		return true, nil
	case errors.As(err, &denied), errors.Is(err, domain.ErrDepotNotFound):
		return false, nil
	}
	return false, err
}

// ListPendingJobs returns the depot's live jobs, oldest first.
func (s *BrokerageService) ListPendingJobs(ctx context.Context, depotID string, session *domain.CustomerSession) ([]*domain.Job, error) {
	if _, err := s.guard.Authorize(ctx, depotID, session); err != nil {
		return nil, err
	}
	return s.jobs.ListByDepot(ctx, depotID)
}

// GetDepotSnapshot returns the depot's positions valued at the latest prices
// and their summary.
func (s *BrokerageService) GetDepotSnapshot(ctx context.Context, depotID string, session *domain.CustomerSession) (domain.DepotSnapshot, error) {
	if _, err := s.guard.Authorize(ctx, depotID, session); err != nil {
		return domain.DepotSnapshot{}, err
	}
	return s.aggregator.Snapshot(ctx, depotID)
}
