package handler

import (
	"context"
	"net/http"

	"github.com/efreitasn/depotbroker/internal/domain"
	"github.com/efreitasn/depotbroker/internal/service"
)

// SessionHeader carries the customer session id.
const SessionHeader = "X-Session-Id"

type sessionKey struct{}

// requireSession resolves the session named by SessionHeader and stores it
// in the request context. Requests without a valid session get 401.
func requireSession(guard *service.AuthorizationGuard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := guard.Session(r.Context(), r.Header.Get(SessionHeader))
			if err != nil {
				writeServiceError(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), sessionKey{}, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// sessionFrom returns the session stored by requireSession.
func sessionFrom(ctx context.Context) *domain.CustomerSession {
	sess, _ := ctx.Value(sessionKey{}).(*domain.CustomerSession)
	return sess
}
