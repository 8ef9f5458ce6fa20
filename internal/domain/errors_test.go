package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Message: "amount must be a positive integer"}
	if err.Error() != "amount must be a positive integer" {
		t.Errorf("Error() = %q, want %q", err.Error(), "amount must be a positive integer")
	}
}

func TestNotAuthorizedError_Message(t *testing.T) {
	err := &NotAuthorizedError{CustomerID: "c-7", DepotID: "d-42"}
	want := "Customer with id c-7 is not allowed to access depot with id d-42"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestUpstreamError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("place job: %w", &UpstreamError{Op: "placeOrder", Err: cause})

	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatal("expected errors.As to find UpstreamError")
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to reach the cause")
	}
}

func TestPartialPlacementError(t *testing.T) {
	cause := &UpstreamError{Op: "placeOrder", Err: errors.New("503")}
	err := &PartialPlacementError{Placed: []*Job{{JobID: "j1"}, {JobID: "j2"}}, Failed: 1, Err: cause}

	if err.Error() != "1 of 3 sub-orders failed: exchange placeOrder failed: 503" {
		t.Errorf("Error() = %q", err.Error())
	}
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Error("expected PartialPlacementError to unwrap to UpstreamError")
	}
}

func TestSentinelErrors_AreDistinct(t *testing.T) {
	errs := []error{
		ErrJobNotFound,
		ErrOrderNotFound,
		ErrDepotNotFound,
		ErrShareNotFound,
		ErrSessionNotFound,
		ErrSessionExpired,
		ErrJobTerminated,
		ErrJobConflict,
		ErrDuplicateOrder,
		ErrOrderNotCancellable,
		ErrInsufficientHoldings,
	}
	for i := 0; i < len(errs); i++ {
		for j := i + 1; j < len(errs); j++ {
			if errors.Is(errs[i], errs[j]) {
				t.Errorf("sentinel errors %d and %d should be distinct", i, j)
			}
		}
	}
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantNotFound bool
		wantConflict bool
	}{
		{"job not found", ErrJobNotFound, true, false},
		{"wrapped depot not found", fmt.Errorf("authorize: %w", ErrDepotNotFound), true, false},
		{"terminated", ErrJobTerminated, false, true},
		{"duplicate order", ErrDuplicateOrder, false, true},
		{"validation", &ValidationError{Message: "x"}, false, false},
		{"session expired", ErrSessionExpired, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotFound(tt.err); got != tt.wantNotFound {
				t.Errorf("IsNotFound() = %v, want %v", got, tt.wantNotFound)
			}
			if got := IsConflict(tt.err); got != tt.wantConflict {
				t.Errorf("IsConflict() = %v, want %v", got, tt.wantConflict)
			}
		})
	}
}
