package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// JobState is the lifecycle state of a job.
type JobState string

const (
	JobStateAwaitingPlacement JobState = "awaiting_placement"
	JobStatePlaced            JobState = "placed"
	JobStateMatched           JobState = "matched"
	JobStateCompleted         JobState = "completed"
	JobStateDeleted           JobState = "deleted"
)

// Terminal reports whether no further callbacks may change the job.
func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateDeleted
}

// OpenAtExchange reports whether the exchange holds a live order for the job.
func (s JobState) OpenAtExchange() bool {
	return s == JobStatePlaced || s == JobStateMatched
}

// Fill is a partial execution reported by a match callback.
type Fill struct {
	Amount int64
	Price  decimal.Decimal
	At     time.Time
}

// Job tracks one exchange order from the placement request until its
// completion or deletion callback.
type Job struct {
	JobID           string
	DepotID         string
	Order           Order
	ExchangeOrderID string // empty until the exchange confirms placement
	State           JobState
	Fills           []Fill
	CancelRequested bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// FilledAmount returns the number of units matched so far.
func (j *Job) FilledAmount() int64 {
	var total int64
	for _, f := range j.Fills {
		total += f.Amount
	}
	return total
}

// OpenAmount returns the units that are neither matched nor cancelled.
func (j *Job) OpenAmount() int64 {
	return j.Order.Amount - j.FilledAmount()
}

// Clone returns a deep copy so stores never hand out shared state.
func (j *Job) Clone() *Job {
	c := *j
	if j.Fills != nil {
		c.Fills = make([]Fill, len(j.Fills))
		copy(c.Fills, j.Fills)
	}
	return &c
}

// Tombstone remembers a job removed by a terminal callback so that late or
// duplicate callbacks can be told apart from unknown ids.
type Tombstone struct {
	JobID           string
	ExchangeOrderID string
	State           JobState
	At              time.Time
}
