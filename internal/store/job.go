package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/efreitasn/depotbroker/internal/domain"
	"github.com/google/btree"
)

// validityEntry orders jobs by validity for the timeout sweep.
type validityEntry struct {
	Validity time.Time
	JobID    string
}

func validityLess(a, b validityEntry) bool {
	if !a.Validity.Equal(b.Validity) {
		return a.Validity.Before(b.Validity)
	}
	return a.JobID < b.JobID
}

// JobStore is a thread-safe in-memory store for jobs.
// Primary index: job_id → job.
// Secondary indexes: exchange_order_id, depot_id, order_id and a B-tree of
// jobs with a validity, sorted by validity ASC.
// Jobs removed by a terminal callback leave a tombstone behind.
type JobStore struct {
	mu         sync.RWMutex
	jobs       map[string]*domain.Job
	byExchange map[string]string              // exchange_order_id → job_id
	byDepot    map[string]map[string]struct{} // depot_id → job_ids
	byOrder    map[string]map[string]struct{} // order_id → job_ids
	validity   *btree.BTreeG[validityEntry]
	tombstones map[string]domain.Tombstone // job_id → tombstone
	tombByExch map[string]string           // exchange_order_id → job_id
}

// NewJobStore creates an empty JobStore.
func NewJobStore() *JobStore {
	const degree = 32
	return &JobStore{
		jobs:       make(map[string]*domain.Job),
		byExchange: make(map[string]string),
		byDepot:    make(map[string]map[string]struct{}),
		byOrder:    make(map[string]map[string]struct{}),
		validity:   btree.NewG[validityEntry](degree, validityLess),
		tombstones: make(map[string]domain.Tombstone),
		tombByExch: make(map[string]string),
	}
}

// Create adds a job. It returns domain.ErrJobConflict if the job id or its
// exchange order id is already known.
func (s *JobStore) Create(_ context.Context, j *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[j.JobID]; exists {
		return domain.ErrJobConflict
	}
	if _, exists := s.tombstones[j.JobID]; exists {
		return domain.ErrJobConflict
	}
	if j.ExchangeOrderID != "" {
		if _, exists := s.byExchange[j.ExchangeOrderID]; exists {
			return domain.ErrJobConflict
		}
	}

	c := j.Clone()
	s.jobs[c.JobID] = c
	s.index(c)
	return nil
}

// Get retrieves a job by id. It returns domain.ErrJobTerminated for jobs
// removed by a terminal callback and domain.ErrJobNotFound otherwise.
func (s *JobStore) Get(_ context.Context, jobID string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if j, ok := s.jobs[jobID]; ok {
		return j.Clone(), nil
	}
	if _, ok := s.tombstones[jobID]; ok {
		return nil, domain.ErrJobTerminated
	}
	return nil, domain.ErrJobNotFound
}

// GetByExchangeID retrieves a job by its exchange order id.
func (s *JobStore) GetByExchangeID(_ context.Context, exchangeOrderID string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id, ok := s.byExchange[exchangeOrderID]; ok {
		return s.jobs[id].Clone(), nil
	}
	if _, ok := s.tombByExch[exchangeOrderID]; ok {
		return nil, domain.ErrJobTerminated
	}
	return nil, domain.ErrJobNotFound
}

// Update replaces a stored job. The exchange order id may go from empty to
// set; it may not change once set.
func (s *JobStore) Update(_ context.Context, j *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.jobs[j.JobID]
	if !ok {
		if _, gone := s.tombstones[j.JobID]; gone {
			return domain.ErrJobTerminated
		}
		return domain.ErrJobNotFound
	}
	if old.ExchangeOrderID != j.ExchangeOrderID {
		if old.ExchangeOrderID != "" {
			return domain.ErrJobConflict
		}
		if owner, taken := s.byExchange[j.ExchangeOrderID]; taken && owner != j.JobID {
			return domain.ErrJobConflict
		}
	}

	s.unindex(old)
	c := j.Clone()
	s.jobs[c.JobID] = c
	s.index(c)
	return nil
}

// Delete removes a job without leaving a tombstone. Used when the exchange
// never accepted the order.
func (s *JobStore) Delete(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrJobNotFound
	}
	s.unindex(j)
	delete(s.jobs, jobID)
	return nil
}

// Finish removes a job after a terminal callback and records a tombstone.
func (s *JobStore) Finish(_ context.Context, jobID string, state domain.JobState, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		if _, gone := s.tombstones[jobID]; gone {
			return domain.ErrJobTerminated
		}
		return domain.ErrJobNotFound
	}
	s.unindex(j)
	delete(s.jobs, jobID)

	s.tombstones[jobID] = domain.Tombstone{
		JobID:           jobID,
		ExchangeOrderID: j.ExchangeOrderID,
		State:           state,
		At:              at,
	}
	if j.ExchangeOrderID != "" {
		s.tombByExch[j.ExchangeOrderID] = jobID
	}
	return nil
}

// ListByDepot returns the depot's live jobs, oldest first.
func (s *JobStore) ListByDepot(_ context.Context, depotID string) ([]*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byDepot[depotID]), nil
}

// ListByOrder returns the live jobs sharing a caller-assigned order id,
// oldest first.
func (s *JobStore) ListByOrder(_ context.Context, orderID string) ([]*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byOrder[orderID]), nil
}

// ListExpired returns live jobs whose validity is at or before now, in
// validity order.
func (s *JobStore) ListExpired(_ context.Context, now time.Time) ([]*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Job
	s.validity.Ascend(func(e validityEntry) bool {
		if e.Validity.After(now) {
			return false
		}
		result = append(result, s.jobs[e.JobID].Clone())
		return true
	})
	return result, nil
}

// PruneTombstones forgets tombstones recorded before the cutoff and returns
// how many were dropped.
func (s *JobStore) PruneTombstones(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, ts := range s.tombstones {
		if ts.At.Before(before) {
			delete(s.tombstones, id)
			if ts.ExchangeOrderID != "" {
				delete(s.tombByExch, ts.ExchangeOrderID)
			}
			n++
		}
	}
	return n, nil
}

// Count returns the number of live jobs.
func (s *JobStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

func (s *JobStore) index(j *domain.Job) {
	if j.ExchangeOrderID != "" {
		s.byExchange[j.ExchangeOrderID] = j.JobID
	}
	addToSet(s.byDepot, j.DepotID, j.JobID)
	addToSet(s.byOrder, j.Order.OrderID, j.JobID)
	if j.Order.Validity != nil {
		s.validity.ReplaceOrInsert(validityEntry{Validity: *j.Order.Validity, JobID: j.JobID})
	}
}

func (s *JobStore) unindex(j *domain.Job) {
	if j.ExchangeOrderID != "" {
		delete(s.byExchange, j.ExchangeOrderID)
	}
	removeFromSet(s.byDepot, j.DepotID, j.JobID)
	removeFromSet(s.byOrder, j.Order.OrderID, j.JobID)
	if j.Order.Validity != nil {
		s.validity.Delete(validityEntry{Validity: *j.Order.Validity, JobID: j.JobID})
	}
}

func (s *JobStore) collect(ids map[string]struct{}) []*domain.Job {
	result := make([]*domain.Job, 0, len(ids))
	for id := range ids {
		result = append(result, s.jobs[id].Clone())
	}
	SortJobs(result)
	return result
}

// SortJobs orders jobs by creation time, then job id.
func SortJobs(jobs []*domain.Job) {
	sort.Slice(jobs, func(i, k int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[k].CreatedAt) {
			return jobs[i].CreatedAt.Before(jobs[k].CreatedAt)
		}
		return jobs[i].JobID < jobs[k].JobID
	})
}

func addToSet(m map[string]map[string]struct{}, key, id string) {
	set, ok := m[key]
	if !ok {
		set = make(map[string]struct{})
		m[key] = set
	}
	set[id] = struct{}{}
}

func removeFromSet(m map[string]map[string]struct{}, key, id string) {
	set, ok := m[key]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(m, key)
	}
}
