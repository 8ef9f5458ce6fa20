package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/efreitasn/depotbroker/internal/domain"
)

func newTestJob(id, depotID, orderID string, createdAt time.Time) *domain.Job {
	return &domain.Job{
		JobID:   id,
		DepotID: depotID,
		Order: domain.Order{
			OrderID: orderID,
			DepotID: depotID,
			ShareID: "ACME",
			Amount:  10,
			Side:    domain.OrderSideBuy,
			Detail:  domain.OrderDetailMarket,
		},
		State:     domain.JobStateAwaitingPlacement,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestJobStore_CreateAndGet(t *testing.T) {
	s := NewJobStore()
	ctx := context.Background()

	if err := s.Create(ctx, newTestJob("j1", "d1", "o1", time.Now())); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := s.Get(ctx, "j1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.DepotID != "d1" {
		t.Errorf("expected d1, got %s", got.DepotID)
	}

	if err := s.Create(ctx, newTestJob("j1", "d1", "o1", time.Now())); !errors.Is(err, domain.ErrJobConflict) {
		t.Errorf("expected conflict on duplicate id, got %v", err)
	}
	if _, err := s.Get(ctx, "nope"); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestJobStore_ReturnsCopies(t *testing.T) {
	s := NewJobStore()
	ctx := context.Background()
	_ = s.Create(ctx, newTestJob("j1", "d1", "o1", time.Now()))

	got, _ := s.Get(ctx, "j1")
	got.State = domain.JobStateMatched
	got.Fills = append(got.Fills, domain.Fill{Amount: 1})

	again, _ := s.Get(ctx, "j1")
	if again.State != domain.JobStateAwaitingPlacement || len(again.Fills) != 0 {
		t.Errorf("stored job was mutated through a returned copy: %+v", again)
	}
}

func TestJobStore_ExchangeIDIndex(t *testing.T) {
	s := NewJobStore()
	ctx := context.Background()
	_ = s.Create(ctx, newTestJob("j1", "d1", "o1", time.Now()))
	_ = s.Create(ctx, newTestJob("j2", "d1", "o1", time.Now()))

	j, _ := s.Get(ctx, "j1")
	j.ExchangeOrderID = "ex-1"
	j.State = domain.JobStatePlaced
	if err := s.Update(ctx, j); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.GetByExchangeID(ctx, "ex-1")
	if err != nil || got.JobID != "j1" {
		t.Fatalf("expected j1 by exchange id, got %v, %v", got, err)
	}

	// The exchange id cannot move to another job.
	j2, _ := s.Get(ctx, "j2")
	j2.ExchangeOrderID = "ex-1"
	if err := s.Update(ctx, j2); !errors.Is(err, domain.ErrJobConflict) {
		t.Errorf("expected conflict, got %v", err)
	}
	// Nor change once set.
	j.ExchangeOrderID = "ex-2"
	if err := s.Update(ctx, j); !errors.Is(err, domain.ErrJobConflict) {
		t.Errorf("expected conflict, got %v", err)
	}
}

func TestJobStore_FinishLeavesTombstone(t *testing.T) {
	s := NewJobStore()
	ctx := context.Background()
	_ = s.Create(ctx, newTestJob("j1", "d1", "o1", time.Now()))
	j, _ := s.Get(ctx, "j1")
	j.ExchangeOrderID = "ex-1"
	_ = s.Update(ctx, j)

	at := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	if err := s.Finish(ctx, "j1", domain.JobStateCompleted, at); err != nil {
		t.Fatalf("finish: %v", err)
	}

	if _, err := s.Get(ctx, "j1"); !errors.Is(err, domain.ErrJobTerminated) {
		t.Errorf("expected terminated by job id, got %v", err)
	}
	if _, err := s.GetByExchangeID(ctx, "ex-1"); !errors.Is(err, domain.ErrJobTerminated) {
		t.Errorf("expected terminated by exchange id, got %v", err)
	}
	if err := s.Finish(ctx, "j1", domain.JobStateDeleted, at); !errors.Is(err, domain.ErrJobTerminated) {
		t.Errorf("expected second finish to fail, got %v", err)
	}
	if jobs, _ := s.ListByDepot(ctx, "d1"); len(jobs) != 0 {
		t.Errorf("expected no live jobs, got %d", len(jobs))
	}

	n, _ := s.PruneTombstones(ctx, at.Add(time.Second))
	if n != 1 {
		t.Fatalf("expected 1 pruned tombstone, got %d", n)
	}
	if _, err := s.GetByExchangeID(ctx, "ex-1"); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("expected not found after pruning, got %v", err)
	}
}

func TestJobStore_DeleteLeavesNoTombstone(t *testing.T) {
	s := NewJobStore()
	ctx := context.Background()
	_ = s.Create(ctx, newTestJob("j1", "d1", "o1", time.Now()))

	if err := s.Delete(ctx, "j1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "j1"); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if err := s.Delete(ctx, "j1"); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("expected not found on second delete, got %v", err)
	}
}

func TestJobStore_ListByDepotAndOrder(t *testing.T) {
	s := NewJobStore()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 4; i >= 0; i-- {
		_ = s.Create(ctx, newTestJob(fmt.Sprintf("j%d", i), "d1", fmt.Sprintf("o%d", i%2), base.Add(time.Duration(i)*time.Minute)))
	}
	_ = s.Create(ctx, newTestJob("other", "d2", "o9", base))

	jobs, _ := s.ListByDepot(ctx, "d1")
	if len(jobs) != 5 {
		t.Fatalf("expected 5 jobs, got %d", len(jobs))
	}
	for i := 0; i < len(jobs)-1; i++ {
		if jobs[i].CreatedAt.After(jobs[i+1].CreatedAt) {
			t.Fatalf("jobs not oldest first at index %d", i)
		}
	}

	byOrder, _ := s.ListByOrder(ctx, "o0")
	if len(byOrder) != 3 {
		t.Errorf("expected 3 jobs for o0, got %d", len(byOrder))
	}
}

func TestJobStore_ListExpired(t *testing.T) {
	s := NewJobStore()
	ctx := context.Background()
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

	add := func(id string, validity *time.Time) {
		j := newTestJob(id, "d1", "o-"+id, now)
		j.Order.Validity = validity
		_ = s.Create(ctx, j)
	}
	past1 := now.Add(-2 * time.Minute)
	past2 := now.Add(-time.Minute)
	future := now.Add(time.Minute)
	add("late", &past2)
	add("early", &past1)
	add("future", &future)
	add("gtc", nil)
	add("exact", &now)

	expired, _ := s.ListExpired(ctx, now)
	var ids []string
	for _, j := range expired {
		ids = append(ids, j.JobID)
	}
	want := []string{"early", "late", "exact"}
	if fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}

	_ = s.Finish(ctx, "early", domain.JobStateDeleted, now)
	expired, _ = s.ListExpired(ctx, now)
	if len(expired) != 2 {
		t.Errorf("expected finished job to leave the validity index, got %d", len(expired))
	}
}

func TestJobStore_ConcurrentAccess(t *testing.T) {
	s := NewJobStore()
	ctx := context.Background()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("j%d", i)
			_ = s.Create(ctx, newTestJob(id, fmt.Sprintf("d%d", i%5), "o", time.Now()))
			j, err := s.Get(ctx, id)
			if err != nil {
				t.Errorf("get %s: %v", id, err)
				return
			}
			j.ExchangeOrderID = "ex-" + id
			_ = s.Update(ctx, j)
			_, _ = s.ListByDepot(ctx, j.DepotID)
		}(i)
	}
	wg.Wait()

	if s.Count() != 100 {
		t.Fatalf("expected 100 jobs, got %d", s.Count())
	}
	for i := 0; i < 100; i++ {
		if _, err := s.GetByExchangeID(ctx, fmt.Sprintf("ex-j%d", i)); err != nil {
			t.Fatalf("missing ex-j%d: %v", i, err)
		}
	}
}
