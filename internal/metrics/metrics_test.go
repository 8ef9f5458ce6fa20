package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Callback("complete", OutcomeOK)
	m.Callback("complete", OutcomeOK)
	m.Callback("complete", OutcomeNotFound)
	m.Placement(OutcomeError)
	m.ReaperCancel(OutcomeOK)
	m.JobsAdded(3)
	m.JobsRemoved(1)

	if got := testutil.ToFloat64(m.Callbacks.WithLabelValues("complete", OutcomeOK)); got != 2 {
		t.Errorf("complete/ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Callbacks.WithLabelValues("complete", OutcomeNotFound)); got != 1 {
		t.Errorf("complete/not_found = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Placements.WithLabelValues(OutcomeError)); got != 1 {
		t.Errorf("placements/error = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ReaperCancels.WithLabelValues(OutcomeOK)); got != 1 {
		t.Errorf("reaper/ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.LiveJobs); got != 2 {
		t.Errorf("live jobs = %v, want 2", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.Callback("place", OutcomeOK)
	m.Placement(OutcomeOK)
	m.ReaperCancel(OutcomeError)
	m.JobsAdded(1)
	m.JobsRemoved(1)
}
