package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestJobState_Terminal(t *testing.T) {
	tests := []struct {
		state    JobState
		terminal bool
		open     bool
	}{
		{JobStateAwaitingPlacement, false, false},
		{JobStatePlaced, false, true},
		{JobStateMatched, false, true},
		{JobStateCompleted, true, false},
		{JobStateDeleted, true, false},
	}
	for _, tt := range tests {
		if got := tt.state.Terminal(); got != tt.terminal {
			t.Errorf("%s.Terminal() = %v, want %v", tt.state, got, tt.terminal)
		}
		if got := tt.state.OpenAtExchange(); got != tt.open {
			t.Errorf("%s.OpenAtExchange() = %v, want %v", tt.state, got, tt.open)
		}
	}
}

func TestJob_FilledAndOpenAmount(t *testing.T) {
	j := &Job{
		Order: Order{Amount: 100},
		Fills: []Fill{
			{Amount: 30, Price: decimal.NewFromInt(10), At: time.Now()},
			{Amount: 20, Price: decimal.NewFromInt(11), At: time.Now()},
		},
	}
	if got := j.FilledAmount(); got != 50 {
		t.Errorf("FilledAmount() = %d, want 50", got)
	}
	if got := j.OpenAmount(); got != 50 {
		t.Errorf("OpenAmount() = %d, want 50", got)
	}
}

func TestJob_CloneDoesNotShareFills(t *testing.T) {
	j := &Job{JobID: "j1", Fills: []Fill{{Amount: 1, Price: decimal.NewFromInt(1)}}}
	c := j.Clone()
	c.Fills[0].Amount = 99
	c.Fills = append(c.Fills, Fill{Amount: 2})

	if j.Fills[0].Amount != 1 {
		t.Error("mutating clone fills changed original")
	}
	if len(j.Fills) != 1 {
		t.Errorf("original fills length = %d, want 1", len(j.Fills))
	}
}
