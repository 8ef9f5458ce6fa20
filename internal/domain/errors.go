package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrJobNotFound          = errors.New("job_not_found")
	ErrOrderNotFound        = errors.New("order_not_found")
	ErrDepotNotFound        = errors.New("depot_not_found")
	ErrShareNotFound        = errors.New("share_not_found")
	ErrSessionNotFound      = errors.New("session_not_found")
	ErrSessionExpired       = errors.New("session_expired")
	ErrJobTerminated        = errors.New("job_terminated")
	ErrJobConflict          = errors.New("job_conflict")
	ErrDuplicateOrder       = errors.New("duplicate_order")
	ErrOrderNotCancellable  = errors.New("order_not_cancellable")
	ErrInsufficientHoldings = errors.New("insufficient_holdings")
)

// ValidationError represents a caller error such as a bad amount or price.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NotAuthorizedError is returned when a session does not own the depot
// it is acting on.
type NotAuthorizedError struct {
	CustomerID string
	DepotID    string
}

func (e *NotAuthorizedError) Error() string {
	return fmt.Sprintf("Customer with id %s is not allowed to access depot with id %s", e.CustomerID, e.DepotID)
}

// UpstreamError wraps a failed call to the exchange.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("exchange %s failed: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// PartialPlacementError reports a split order where some sub-orders reached
// the exchange and others did not. Placed sub-orders are not rolled back.
type PartialPlacementError struct {
	Placed []*Job
	Failed int
	Err    error
}

func (e *PartialPlacementError) Error() string {
	return fmt.Sprintf("%d of %d sub-orders failed: %v", e.Failed, e.Failed+len(e.Placed), e.Err)
}

func (e *PartialPlacementError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err names an unknown job, order, depot, share
// or session.
func IsNotFound(err error) bool {
	switch {
	case errors.Is(err, ErrJobNotFound),
		errors.Is(err, ErrOrderNotFound),
		errors.Is(err, ErrDepotNotFound),
		errors.Is(err, ErrShareNotFound),
		errors.Is(err, ErrSessionNotFound):
		return true
	}
	return false
}

// IsConflict reports whether err signals a state conflict, e.g. a callback
// for a job that already reached a terminal state.
func IsConflict(err error) bool {
	switch {
	case errors.Is(err, ErrJobTerminated),
		errors.Is(err, ErrJobConflict),
		errors.Is(err, ErrDuplicateOrder),
		errors.Is(err, ErrOrderNotCancellable),
		errors.Is(err, ErrInsufficientHoldings):
		return true
	}
	return false
}
