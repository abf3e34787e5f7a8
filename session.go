package warden

import (
	"time"

	"github.com/aadithya-v/warden/store"
)

// Session represents one authenticated login.
type Session struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	Token     string     `json:"token"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	Client    ClientInfo `json:"client"`
}

// IsExpired reports whether the session is no longer valid at now.
func (s *Session) IsExpired(now time.Time) bool {
	return s.ExpiresAt.IsZero() || !now.Before(s.ExpiresAt)
}

// Info describes the session as seen at now.
func (s *Session) Info(now time.Time) SessionInfo {
	info := SessionInfo{
		ID:        s.ID,
		UserID:    s.UserID,
		Token:     s.Token,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
		IsExpired: s.IsExpired(now),
		Client:    s.Client,
	}
	if !info.IsExpired {
		remaining := s.ExpiresAt.Sub(now)
		info.TimeRemaining = &remaining
	}
	return info
}

// SessionInfo is a read-only view of a session at a point in time.
type SessionInfo struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	IsExpired bool      `json:"is_expired"`

	// TimeRemaining is nil once the session has expired.
	TimeRemaining *time.Duration `json:"time_remaining,omitempty"`

	Client ClientInfo `json:"client"`
}

// ClientInfo contains device and location details captured at login.
type ClientInfo struct {
	IP         string `json:"ip"`
	UserAgent  string `json:"user_agent"`
	Browser    string `json:"browser"`
	OS         string `json:"os"`
	DeviceType string `json:"device_type"` // mobile, desktop, tablet, bot
	City       string `json:"city,omitempty"`
	Country    string `json:"country,omitempty"`
}

// CreateResult is returned from CreateSession.
type CreateResult struct {
	// Session is the newly created session.
	Session *Session `json:"session"`

	// Evicted is how many of the user's older sessions were deleted
	// to stay within MaxSessionsPerUser.
	Evicted int `json:"evicted"`
}

// CleanupResult reports one sweep of expired sessions.
type CleanupResult struct {
	TotalBefore     int64     `json:"total_before"`
	ActiveRemaining int64     `json:"active_remaining"`
	ExpiredDeleted  int64     `json:"expired_deleted"`
	CleanupAt       time.Time `json:"cleanup_at"`
}

// Stats is an aggregate view of the session store.
type Stats struct {
	TotalSessions  int64 `json:"total_sessions"`
	ActiveSessions int64 `json:"active_sessions"`

	// LastCleanup is the time of the most recent sweep by this manager,
	// zero if none has run.
	LastCleanup time.Time `json:"last_cleanup"`

	// Counters since the manager was created.
	ExpiredCleaned int64 `json:"expired_cleaned"`
	Evicted        int64 `json:"evicted"`
	Refreshed      int64 `json:"refreshed"`
}

// fromStore converts a store.Session to a public Session.
func fromStore(s *store.Session) *Session {
	return &Session{
		ID:        s.ID,
		UserID:    s.UserID,
		Token:     s.Token,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
		Client: ClientInfo{
			IP:         s.ClientIP,
			UserAgent:  s.UserAgent,
			Browser:    s.Browser,
			OS:         s.OS,
			DeviceType: s.DeviceType,
			City:       s.City,
			Country:    s.Country,
		},
	}
}
