package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/efreitasn/depotbroker/internal/domain"
	"github.com/efreitasn/depotbroker/internal/store"
)

func newTestGuard(t *testing.T) *AuthorizationGuard {
	t.Helper()
	depots := store.NewDepotStore()
	sessions := store.NewSessionStore()
	if err := depots.Create(&domain.Depot{DepotID: "depot-1", CustomerID: "cust-1"}); err != nil {
		t.Fatalf("create depot: %v", err)
	}
	now := time.Now()
	sessions.Put(domain.CustomerSession{SessionID: "sess-1", CustomerID: "cust-1", Expiry: now.Add(time.Hour)})
	sessions.Put(domain.CustomerSession{SessionID: "sess-2", CustomerID: "cust-2", Expiry: now.Add(time.Hour)})
	sessions.Put(domain.CustomerSession{SessionID: "sess-old", CustomerID: "cust-1", Expiry: now.Add(-time.Hour)})
	return NewAuthorizationGuard(depots, sessions)
}

func TestAuthorizationGuard_Session(t *testing.T) {
	g := newTestGuard(t)
	ctx := context.Background()

	tests := []struct {
		id      string
		wantErr error
	}{
		{"sess-1", nil},
		{"", domain.ErrSessionNotFound},
		{"nope", domain.ErrSessionNotFound},
		{"sess-old", domain.ErrSessionExpired},
	}
	for _, tt := range tests {
		_, err := g.Session(ctx, tt.id)
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("Session(%q): expected %v, got %v", tt.id, tt.wantErr, err)
		}
	}
}

func TestAuthorizationGuard_Authorize(t *testing.T) {
	g := newTestGuard(t)
	ctx := context.Background()

	owner, _ := g.Session(ctx, "sess-1")
	depot, err := g.Authorize(ctx, "depot-1", owner)
	if err != nil {
		t.Fatalf("expected owner to pass, got %v", err)
	}
	if depot.DepotID != "depot-1" {
		t.Errorf("expected depot-1, got %s", depot.DepotID)
	}

	stranger, _ := g.Session(ctx, "sess-2")
	_, err = g.Authorize(ctx, "depot-1", stranger)
	var nerr *domain.NotAuthorizedError
	if !errors.As(err, &nerr) {
		t.Fatalf("expected NotAuthorizedError, got %v", err)
	}
	want := "Customer with id cust-2 is not allowed to access depot with id depot-1"
	if err.Error() != want {
		t.Errorf("expected message %q, got %q", want, err.Error())
	}

	if _, err := g.Authorize(ctx, "depot-9", owner); !errors.Is(err, domain.ErrDepotNotFound) {
		t.Errorf("expected depot not found, got %v", err)
	}
	if _, err := g.Authorize(ctx, "depot-1", nil); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("expected session not found for nil session, got %v", err)
	}
}
