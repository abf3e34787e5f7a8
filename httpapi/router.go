// Package httpapi exposes a warden.Manager over HTTP.
//
// Session routes authenticate with "Authorization: Bearer <token>". Session
// creation and admin routes are meant for trusted callers such as the login
// service and authenticate with the X-Internal-Key header.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aadithya-v/warden"
)

// InternalKeyHeader carries the shared key for internal and admin routes.
const InternalKeyHeader = "X-Internal-Key"

// DefaultForceLogoutReason is logged when a force-logout request gives none.
const DefaultForceLogoutReason = "admin forced logout"

// Options configures the HTTP surface.
type Options struct {
	// Manager handles every request. Required.
	Manager *warden.Manager

	// InternalKey authenticates internal and admin routes.
	// If empty, those routes reject every request.
	InternalKey string

	// Logger receives request failures.
	// Default: slog.Default().
	Logger *slog.Logger
}

type api struct {
	manager     *warden.Manager
	internalKey string
	logger      *slog.Logger
}

// New returns a router serving the session API.
func New(opts Options) http.Handler {
	a := &api{
		manager:     opts.Manager,
		internalKey: opts.InternalKey,
		logger:      opts.Logger,
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/v1", func(r chi.Router) {
		r.With(a.requireInternalKey).Post("/sessions", a.createSession)
		r.Get("/session", a.currentSession)

		r.Group(func(r chi.Router) {
			r.Use(RequireSession(a.manager, a.logger))
			r.Delete("/session", a.logout)
			r.Get("/me/sessions", a.mySessions)
			r.Delete("/me/sessions", a.logoutAll)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(a.requireInternalKey)
			r.Get("/sessions/stats", a.stats)
			r.Post("/sessions/cleanup", a.cleanup)
			r.Get("/users/{userID}/sessions", a.userSessions)
			r.Post("/users/{userID}/force-logout", a.forceLogout)
		})
	})

	return r
}
