package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/efreitasn/depotbroker/internal/domain"
	"github.com/efreitasn/depotbroker/internal/exchange"
	"github.com/efreitasn/depotbroker/internal/metrics"
)

// TimeoutReaper periodically asks the venue to cancel jobs whose validity has
// passed. It never changes job rows: the venue's delete callback does that.
// It also forgets tombstones older than the retention window.
type TimeoutReaper struct {
	interval   time.Duration
	retryAfter time.Duration
	retention  time.Duration
	jobs       JobStore
	venue      exchange.Client
	metrics    *metrics.Metrics
	logger     *slog.Logger

	mu     sync.Mutex
	nudged map[string]time.Time // job_id → last cancel attempt
}

// NewTimeoutReaper creates a TimeoutReaper. A job is nudged again only after
// retryAfter has passed since the previous attempt.
func NewTimeoutReaper(
	interval, retryAfter, retention time.Duration,
	jobs JobStore,
	venue exchange.Client,
	m *metrics.Metrics,
	logger *slog.Logger,
) *TimeoutReaper {
	if logger == nil {
		logger = slog.Default()
	}
	return &TimeoutReaper{
		interval:   interval,
		retryAfter: retryAfter,
		retention:  retention,
		jobs:       jobs,
		venue:      venue,
		metrics:    m,
		logger:     logger,
		nudged:     make(map[string]time.Time),
	}
}

// Start launches a background goroutine that sweeps at the configured
// interval. It stops when ctx is cancelled.
func (r *TimeoutReaper) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				r.Sweep(ctx, t)
			}
		}
	}()
}

// Sweep runs one pass at now and returns how many cancel requests the venue
// accepted. Cancel failures are logged and skipped.
func (r *TimeoutReaper) Sweep(ctx context.Context, now time.Time) int {
	expired, err := r.jobs.ListExpired(ctx, now)
	if err != nil {
		r.logger.Error("listing expired jobs failed", "error", err)
		return 0
	}

	seen := make(map[string]struct{}, len(expired))
	cancelled := 0
	for _, j := range expired {
		seen[j.JobID] = struct{}{}
		if !j.State.OpenAtExchange() || j.ExchangeOrderID == "" {
			continue
		}
		if !r.due(j.JobID, now) {
			continue
		}
		if r.nudge(ctx, j) {
			cancelled++
		}
	}
	r.forget(seen)

	if r.retention > 0 {
		n, err := r.jobs.PruneTombstones(ctx, now.Add(-r.retention))
		if err != nil {
			r.logger.Error("pruning tombstones failed", "error", err)
		} else if n > 0 {
			r.logger.Debug("pruned tombstones", "count", n)
		}
	}
	return cancelled
}

func (r *TimeoutReaper) nudge(ctx context.Context, j *domain.Job) bool {
	ok, err := r.venue.CancelOrder(ctx, j.ExchangeOrderID)
	switch {
	case err != nil:
		r.metrics.ReaperCancel(metrics.OutcomeError)
		r.logger.Warn("cancel of expired job failed",
			"job_id", j.JobID,
			"exchange_order_id", j.ExchangeOrderID,
			"error", err,
		)
		return false
	case !ok:
		r.metrics.ReaperCancel(metrics.OutcomeNotFound)
		r.logger.Warn("venue refused cancel of expired job",
			"job_id", j.JobID,
			"exchange_order_id", j.ExchangeOrderID,
		)
		return false
	}
	r.metrics.ReaperCancel(metrics.OutcomeOK)
	r.logger.Info("requested cancel of expired job",
		"job_id", j.JobID,
		"exchange_order_id", j.ExchangeOrderID,
	)
	return true
}

// due records an attempt for jobID at now unless one happened within
// retryAfter.
func (r *TimeoutReaper) due(jobID string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if last, ok := r.nudged[jobID]; ok && now.Sub(last) < r.retryAfter {
		return false
	}
	r.nudged[jobID] = now
	return true
}

// forget drops attempt records for jobs that are no longer expired and live.
func (r *TimeoutReaper) forget(live map[string]struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id := range r.nudged {
		if _, ok := live[id]; !ok {
			delete(r.nudged, id)
		}
	}
}
