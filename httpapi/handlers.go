package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aadithya-v/warden"
)

const (
	msgUnauthorized = "invalid or expired session"
	msgNotFound     = "not found"
	msgInternal     = "internal error"
)

type createSessionRequest struct {
	UserID int64 `json:"user_id"`
}

type createSessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Evicted   int       `json:"evicted"`
}

type forceLogoutRequest struct {
	Reason string `json:"reason"`
}

// createSession issues a session for a user the caller has already authenticated.
// Client details are taken from the forwarded request.
func (a *api) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	client := a.manager.ExtractClientInfo(r)
	result, err := a.manager.CreateSessionWithClient(r.Context(), req.UserID, client)
	if err != nil {
		writeManagerError(w, a.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, createSessionResponse{
		Token:     result.Session.Token,
		ExpiresAt: result.Session.ExpiresAt,
		Evicted:   result.Evicted,
	})
}

func (a *api) currentSession(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	info, err := a.manager.SessionInfo(r.Context(), token)
	if err != nil {
		writeManagerError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (a *api) logout(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())

	if err := a.manager.LogoutSession(r.Context(), session.Token); err != nil {
		writeManagerError(w, a.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) mySessions(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())

	sessions, err := a.manager.GetUserSessions(r.Context(), session.UserID)
	if err != nil {
		writeManagerError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
	})
}

func (a *api) logoutAll(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())

	n, err := a.manager.LogoutAllUserSessions(r.Context(), session.UserID)
	if err != nil {
		writeManagerError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions_logged_out": n,
	})
}

func (a *api) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.manager.GetSessionStatistics(r.Context())
	if err != nil {
		writeManagerError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *api) cleanup(w http.ResponseWriter, r *http.Request) {
	result, err := a.manager.CleanupExpiredSessions(r.Context())
	if err != nil {
		writeManagerError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *api) userSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	sessions, err := a.manager.GetUserSessions(r.Context(), userID)
	if err != nil {
		writeManagerError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":  userID,
		"sessions": sessions,
	})
}

func (a *api) forceLogout(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	// body is optional
	var req forceLogoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Reason == "" {
		req.Reason = DefaultForceLogoutReason
	}

	n, err := a.manager.ForceExpireUserSessions(r.Context(), userID, req.Reason)
	if err != nil {
		writeManagerError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":          userID,
		"sessions_expired": n,
	})
}

func userIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid user ID")
		return 0, false
	}
	return userID, true
}

// writeManagerError maps manager errors to responses. Invalid and expired
// tokens share one response so callers cannot tell them apart.
func writeManagerError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, warden.ErrInvalidToken), errors.Is(err, warden.ErrExpiredToken):
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
	case errors.Is(err, warden.ErrNotFound):
		writeError(w, http.StatusNotFound, msgNotFound)
	default:
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, msgInternal)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
