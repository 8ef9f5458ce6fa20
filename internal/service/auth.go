package service

import (
	"context"
	"time"

	"github.com/efreitasn/depotbroker/internal/domain"
)

// DepotLookup resolves a depot to its owner.
type DepotLookup interface {
	Get(ctx context.Context, depotID string) (*domain.Depot, error)
}

// SessionLookup resolves an externally issued session id.
type SessionLookup interface {
	Get(ctx context.Context, sessionID string) (*domain.CustomerSession, error)
}

// AuthorizationGuard checks that a session's customer owns the depot a
// request acts on.
type AuthorizationGuard struct {
	depots   DepotLookup
	sessions SessionLookup
	now      func() time.Time
}

// NewAuthorizationGuard creates an AuthorizationGuard.
func NewAuthorizationGuard(depots DepotLookup, sessions SessionLookup) *AuthorizationGuard {
	return &AuthorizationGuard{
		depots:   depots,
		sessions: sessions,
		now:      time.Now,
	}
}

// Session resolves a session id. It returns domain.ErrSessionNotFound for
// unknown ids and domain.ErrSessionExpired once the session has lapsed.
func (g *AuthorizationGuard) Session(ctx context.Context, sessionID string) (*domain.CustomerSession, error) {
	if sessionID == "" {
		return nil, domain.ErrSessionNotFound
	}
	sess, err := g.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Expired(g.now()) {
		return nil, domain.ErrSessionExpired
	}
	return sess, nil
}

// Authorize returns the depot if the session's customer owns it, and a
// *domain.NotAuthorizedError otherwise.
func (g *AuthorizationGuard) Authorize(ctx context.Context, depotID string, session *domain.CustomerSession) (*domain.Depot, error) {
	if session == nil {
		return nil, domain.ErrSessionNotFound
	}
	depot, err := g.depots.Get(ctx, depotID)
	if err != nil {
		return nil, err
	}
	if depot.CustomerID != session.CustomerID {
		return nil, &domain.NotAuthorizedError{CustomerID: session.CustomerID, DepotID: depotID}
	}
	return depot, nil
}
