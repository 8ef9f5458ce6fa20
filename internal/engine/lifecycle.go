package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/efreitasn/depotbroker/internal/domain"
	"github.com/efreitasn/depotbroker/internal/exchange"
	"github.com/efreitasn/depotbroker/internal/metrics"
	"github.com/shopspring/decimal"
)

// Callback kinds used as metric labels.
const (
	KindPlace    = "place"
	KindMatch    = "match"
	KindComplete = "complete"
	KindDelete   = "delete"
)

// JobLifecycle drives jobs from placement to their terminal callback.
//
// State machine:
//
//	AwaitingPlacement → Placed → Matched* → Completed
//	AwaitingPlacement / Placed / Matched → Deleted
//
// All mutations of one job run under that job's lock, so callbacks for the
// same job apply in arrival order while different jobs proceed in parallel.
// Calls to the exchange are made without holding the lock.
type JobLifecycle struct {
	jobs       JobStore
	venue      exchange.Client
	aggregator *DepotAggregator
	prices     PriceSource
	locks      *KeyedMutex
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// NewJobLifecycle creates a JobLifecycle. m may be nil.
func NewJobLifecycle(
	jobs JobStore,
	venue exchange.Client,
	aggregator *DepotAggregator,
	prices PriceSource,
	m *metrics.Metrics,
	logger *slog.Logger,
) *JobLifecycle {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobLifecycle{
		jobs:       jobs,
		venue:      venue,
		aggregator: aggregator,
		prices:     prices,
		locks:      NewKeyedMutex(),
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}
}

// Register stores jobs in AwaitingPlacement. Either all jobs are stored or,
// on error, none are.
func (l *JobLifecycle) Register(ctx context.Context, jobs []*domain.Job) error {
	now := l.now()
	for i, j := range jobs {
		j.State = domain.JobStateAwaitingPlacement
		j.ExchangeOrderID = ""
		if j.CreatedAt.IsZero() {
			j.CreatedAt = now
		}
		j.UpdatedAt = j.CreatedAt
		if err := l.jobs.Create(ctx, j); err != nil {
			for _, created := range jobs[:i] {
				if derr := l.jobs.Delete(ctx, created.JobID); derr != nil {
					l.logger.Error("rollback of registered job failed", "job_id", created.JobID, "error", derr)
				}
			}
			return fmt.Errorf("registering job %s: %w", j.JobID, err)
		}
	}
	l.metrics.JobsAdded(len(jobs))
	return nil
}

// Place sends a registered job to the exchange. On success the returned
// job is Placed. On failure the job row is removed unless a placement
// callback already attached an exchange id, and an *domain.UpstreamError
// is returned.
func (l *JobLifecycle) Place(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	call, err := exchange.Describe(job.Order)
	if err != nil {
		l.abandon(ctx, job.JobID)
		l.metrics.Placement(metrics.OutcomeInvalid)
		return nil, err
	}

	exchangeOrderID, err := l.venue.PlaceOrder(ctx, job.JobID, call)
	if err != nil {
		l.abandon(ctx, job.JobID)
		l.metrics.Placement(metrics.OutcomeError)
		return nil, &domain.UpstreamError{Op: "place", Err: err}
	}
	l.metrics.Placement(metrics.OutcomeOK)

	return l.attach(ctx, job.JobID, exchangeOrderID)
}

// abandon removes a job the exchange never accepted.
func (l *JobLifecycle) abandon(ctx context.Context, jobID string) {
	unlock := l.locks.Lock(jobID)
	defer unlock()

	j, err := l.jobs.Get(ctx, jobID)
	if err != nil || j.State != domain.JobStateAwaitingPlacement {
		return
	}
	if err := l.jobs.Delete(ctx, jobID); err != nil {
		l.logger.Error("removing unplaced job failed", "job_id", jobID, "error", err)
		return
	}
	l.metrics.JobsRemoved(1)
}

// OnPlace handles the venue's placement confirmation.
func (l *JobLifecycle) OnPlace(ctx context.Context, jobID, exchangeOrderID string) error {
	if exchangeOrderID == "" {
		err := &domain.ValidationError{Message: "id is required"}
		l.record(KindPlace, err)
		return err
	}
	_, err := l.attach(ctx, jobID, exchangeOrderID)
	l.record(KindPlace, err)
	return err
}

// attach links a job to its exchange order id. Attaching the same id twice
// is a no-op; attaching a different id is a conflict. A cancel requested
// while the job awaited placement is sent once the id is known.
func (l *JobLifecycle) attach(ctx context.Context, jobID, exchangeOrderID string) (*domain.Job, error) {
	unlock := l.locks.Lock(jobID)

	j, err := l.jobs.Get(ctx, jobID)
	if err != nil {
		unlock()
		return nil, err
	}

	switch j.State {
	case domain.JobStateAwaitingPlacement:
		j.ExchangeOrderID = exchangeOrderID
		j.State = domain.JobStatePlaced
		j.UpdatedAt = l.now()
		if err := l.jobs.Update(ctx, j); err != nil {
			unlock()
			return nil, err
		}
	default:
		unlock()
		if j.ExchangeOrderID != exchangeOrderID {
			return nil, fmt.Errorf("job %s already placed as %s: %w", jobID, j.ExchangeOrderID, domain.ErrJobConflict)
		}
		return j, nil
	}
	unlock()

	if j.CancelRequested {
		if err := l.cancelAtVenue(ctx, j); err != nil {
			l.logger.Warn("deferred cancel failed",
				"job_id", j.JobID,
				"exchange_order_id", j.ExchangeOrderID,
				"error", err,
			)
		}
	}
	return j, nil
}

// OnMatch records a partial fill.
func (l *JobLifecycle) OnMatch(ctx context.Context, exchangeOrderID string, amount int64, price decimal.Decimal, at time.Time) error {
	err := l.onMatch(ctx, exchangeOrderID, amount, price, at)
	l.record(KindMatch, err)
	return err
}

func (l *JobLifecycle) onMatch(ctx context.Context, exchangeOrderID string, amount int64, price decimal.Decimal, at time.Time) error {
	if amount <= 0 {
		return &domain.ValidationError{Message: "amount must be greater than 0"}
	}
	if !price.IsPositive() {
		return &domain.ValidationError{Message: "price must be greater than 0"}
	}

	j, unlock, err := l.lockByExchangeID(ctx, exchangeOrderID)
	if err != nil {
		return err
	}
	defer unlock()

	if j.FilledAmount()+amount > j.Order.Amount {
		return &domain.ValidationError{Message: fmt.Sprintf(
			"match of %d exceeds open amount %d of job %s", amount, j.OpenAmount(), j.JobID)}
	}

	j.Fills = append(j.Fills, domain.Fill{Amount: amount, Price: price, At: at})
	j.State = domain.JobStateMatched
	j.UpdatedAt = l.now()
	return l.jobs.Update(ctx, j)
}

// OnComplete books the job's fills into the depot and removes the job. Units
// no match reported are booked at the latest share price.
func (l *JobLifecycle) OnComplete(ctx context.Context, exchangeOrderID string, at time.Time) error {
	err := l.onComplete(ctx, exchangeOrderID, at)
	l.record(KindComplete, err)
	return err
}

func (l *JobLifecycle) onComplete(ctx context.Context, exchangeOrderID string, at time.Time) error {
	j, unlock, err := l.lockByExchangeID(ctx, exchangeOrderID)
	if err != nil {
		return err
	}
	defer unlock()

	fills := j.Fills
	if open := j.OpenAmount(); open > 0 {
		price, err := l.remainderPrice(ctx, j)
		if err != nil {
			return err
		}
		fills = append(fills, domain.Fill{Amount: open, Price: price, At: at})
	}

	if err := l.jobs.Finish(ctx, j.JobID, domain.JobStateCompleted, at); err != nil {
		return err
	}
	l.metrics.JobsRemoved(1)

	// The job is already tombstoned: a failed booking is logged with enough
	// detail to replay it by hand.
	var errs []error
	for _, f := range fills {
		if _, err := l.aggregator.ApplyFill(ctx, j.DepotID, j.Order.ShareID, j.Order.Side, f.Amount, f.Price); err != nil {
			l.logger.Error("booking fill failed",
				"job_id", j.JobID,
				"depot_id", j.DepotID,
				"share_id", j.Order.ShareID,
				"side", j.Order.Side,
				"amount", f.Amount,
				"price", f.Price.String(),
				"error", err,
			)
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("completing job %s: %w", j.JobID, err)
	}
	l.logger.Info("job completed",
		"job_id", j.JobID,
		"exchange_order_id", exchangeOrderID,
		"depot_id", j.DepotID,
		"amount", j.Order.Amount,
	)
	return nil
}

// remainderPrice prices units completed without a match report: the latest
// share price, else the last fill, else the order's limit.
func (l *JobLifecycle) remainderPrice(ctx context.Context, j *domain.Job) (decimal.Decimal, error) {
	price, err := l.prices.Price(ctx, j.Order.ShareID)
	if err == nil {
		return price, nil
	}
	if n := len(j.Fills); n > 0 {
		return j.Fills[n-1].Price, nil
	}
	if j.Order.Limit != nil {
		return *j.Order.Limit, nil
	}
	return decimal.Zero, fmt.Errorf("pricing unmatched units of job %s: %w", j.JobID, err)
}

// OnDelete removes a job the venue cancelled or expired. Nothing is booked.
func (l *JobLifecycle) OnDelete(ctx context.Context, exchangeOrderID string, at time.Time, remaining int64) error {
	err := l.onDelete(ctx, exchangeOrderID, at, remaining)
	l.record(KindDelete, err)
	return err
}

func (l *JobLifecycle) onDelete(ctx context.Context, exchangeOrderID string, at time.Time, remaining int64) error {
	j, unlock, err := l.lockByExchangeID(ctx, exchangeOrderID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := l.jobs.Finish(ctx, j.JobID, domain.JobStateDeleted, at); err != nil {
		return err
	}
	l.metrics.JobsRemoved(1)

	l.logger.Info("job deleted",
		"job_id", j.JobID,
		"exchange_order_id", exchangeOrderID,
		"matched", j.FilledAmount(),
		"remaining", remaining,
	)
	return nil
}

// RequestCancel asks the venue to delete the job's order. A job without an
// exchange id yet is flagged and cancelled once placement is confirmed.
func (l *JobLifecycle) RequestCancel(ctx context.Context, jobID string) error {
	unlock := l.locks.Lock(jobID)
	j, err := l.jobs.Get(ctx, jobID)
	if err != nil {
		unlock()
		return err
	}
	if j.ExchangeOrderID == "" {
		j.CancelRequested = true
		j.UpdatedAt = l.now()
		err := l.jobs.Update(ctx, j)
		unlock()
		return err
	}
	unlock()

	return l.cancelAtVenue(ctx, j)
}

func (l *JobLifecycle) cancelAtVenue(ctx context.Context, j *domain.Job) error {
	ok, err := l.venue.CancelOrder(ctx, j.ExchangeOrderID)
	if err != nil {
		return &domain.UpstreamError{Op: "cancel", Err: err}
	}
	if !ok {
		return fmt.Errorf("exchange order %s: %w", j.ExchangeOrderID, domain.ErrOrderNotCancellable)
	}
	return nil
}

// lockByExchangeID resolves a job by exchange id, takes its lock and reads
// it again so the caller sees the state left by the previous holder.
func (l *JobLifecycle) lockByExchangeID(ctx context.Context, exchangeOrderID string) (*domain.Job, func(), error) {
	j, err := l.jobs.GetByExchangeID(ctx, exchangeOrderID)
	if err != nil {
		return nil, nil, err
	}

	unlock := l.locks.Lock(j.JobID)
	j, err = l.jobs.GetByExchangeID(ctx, exchangeOrderID)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	return j, unlock, nil
}

func (l *JobLifecycle) record(kind string, err error) {
	l.metrics.Callback(kind, Outcome(err))
}

// Outcome classifies err for metric labels.
func Outcome(err error) string {
	var verr *domain.ValidationError
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case domain.IsNotFound(err):
		return metrics.OutcomeNotFound
	case domain.IsConflict(err):
		return metrics.OutcomeConflict
	case errors.As(err, &verr):
		return metrics.OutcomeInvalid
	}
	return metrics.OutcomeError
}
