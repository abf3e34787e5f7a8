package store

import (
	"context"
	"errors"
	"time"
)

// ErrDuplicateToken is returned by Insert when the token is already stored.
var ErrDuplicateToken = errors.New("store: duplicate session token")

// Session is a persisted session record.
// This is a copy of the main Session type to avoid circular imports.
type Session struct {
	ID        int64
	UserID    int64
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time

	// Client metadata captured at login. Informational only.
	ClientIP   string
	UserAgent  string
	Browser    string
	OS         string
	DeviceType string
	City       string
	Country    string
}

// IsExpired reports whether the session is no longer valid at now.
// A session without an expiry is always expired.
func (s *Session) IsExpired(now time.Time) bool {
	return s.ExpiresAt.IsZero() || !now.Before(s.ExpiresAt)
}

// clone returns a copy safe to hand out of a store.
func (s *Session) clone() *Session {
	c := *s
	return &c
}

// SessionStore defines the interface for session storage backends.
// Implementations must be safe for concurrent use.
type SessionStore interface {
	// Insert persists a new session and returns it with ID assigned.
	// CreatedAt is set by the store when zero.
	Insert(ctx context.Context, session *Session) (*Session, error)

	// FindByToken returns the session for token, or nil, nil if none exists.
	// Expired sessions are returned; callers decide what expiry means.
	FindByToken(ctx context.Context, token string) (*Session, error)

	// FindByUser returns every session of a user, expired ones included.
	// Sessions are ordered by CreatedAt descending, then ID descending.
	FindByUser(ctx context.Context, userID int64) ([]*Session, error)

	// ExtendExpiry moves ExpiresAt forward to expiresAt. It never moves it
	// backwards. Returns the stored session, or nil, nil if it no longer exists.
	ExtendExpiry(ctx context.Context, id int64, expiresAt time.Time) (*Session, error)

	// ExpireUser sets ExpiresAt to at for every session of the user.
	ExpireUser(ctx context.Context, userID int64, at time.Time) (int64, error)

	DeleteByID(ctx context.Context, id int64) (int64, error)
	DeleteByToken(ctx context.Context, token string) (int64, error)
	DeleteByUser(ctx context.Context, userID int64) (int64, error)

	// DeleteExpired removes every session with ExpiresAt before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	// CountActiveByUser counts the user's sessions with ExpiresAt after now.
	CountActiveByUser(ctx context.Context, userID int64, now time.Time) (int64, error)

	CountAll(ctx context.Context) (int64, error)

	// CountActive counts sessions with ExpiresAt after now.
	CountActive(ctx context.Context, now time.Time) (int64, error)

	// Close releases any resources held by the store.
	Close() error
}
