package httpapi

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aadithya-v/warden"
)

// unexported, collision-proof context key
type sessionContextKey struct{}

// SessionFromContext returns the session attached by RequireSession.
func SessionFromContext(ctx context.Context) (*warden.Session, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(*warden.Session)
	return s, ok
}

// RequireSession validates the bearer token of each request and attaches the
// session to the request context. Requests without a valid session get 401.
func RequireSession(manager *warden.Manager, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, msgUnauthorized)
				return
			}

			session, err := manager.ValidateSession(r.Context(), token)
			if err != nil {
				writeManagerError(w, logger, err)
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey{}, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken reads the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func (a *api) requireInternalKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(InternalKeyHeader)
		if a.internalKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(a.internalKey)) != 1 {
			writeError(w, http.StatusUnauthorized, msgUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
