package warden

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aadithya-v/warden/store"
)

// Policy controls session durations, limits and thresholds.
// It is fixed when the Manager is created.
type Policy struct {
	// SessionDuration is how long a session lives after creation or refresh.
	// Default: 24 hours.
	SessionDuration time.Duration

	// CleanupInterval is the period of the background sweep.
	// Default: 15 minutes.
	CleanupInterval time.Duration

	// CleanupBackoff is how long the background sweep waits after a failed run
	// before resuming its schedule.
	// Default: 60 seconds.
	CleanupBackoff time.Duration

	// MaxSessionsPerUser caps live sessions per user. Creating a session
	// beyond the cap evicts the user's oldest sessions.
	// Default: 5.
	MaxSessionsPerUser int

	// DisableRefresh turns off sliding expiry on validation.
	// Refresh is enabled by default.
	DisableRefresh bool

	// RefreshThreshold is the remaining lifetime below which validation
	// extends a session.
	// Default: 60 minutes.
	RefreshThreshold time.Duration
}

// DefaultPolicy returns a Policy with sensible defaults.
func DefaultPolicy() Policy {
	return Policy{
		SessionDuration:    24 * time.Hour,
		CleanupInterval:    15 * time.Minute,
		CleanupBackoff:     60 * time.Second,
		MaxSessionsPerUser: 5,
		RefreshThreshold:   60 * time.Minute,
	}
}

// RefreshEnabled reports whether validation extends sessions near expiry.
func (p Policy) RefreshEnabled() bool {
	return !p.DisableRefresh
}

// applyDefaults fills in default values for zero-value fields.
func (p *Policy) applyDefaults() {
	defaults := DefaultPolicy()

	if p.SessionDuration == 0 {
		p.SessionDuration = defaults.SessionDuration
	}
	if p.CleanupInterval == 0 {
		p.CleanupInterval = defaults.CleanupInterval
	}
	if p.CleanupBackoff == 0 {
		p.CleanupBackoff = defaults.CleanupBackoff
	}
	if p.MaxSessionsPerUser == 0 {
		p.MaxSessionsPerUser = defaults.MaxSessionsPerUser
	}
	if p.RefreshThreshold == 0 {
		p.RefreshThreshold = defaults.RefreshThreshold
	}
}

func (p Policy) validate() error {
	switch {
	case p.SessionDuration < 0:
		return fmt.Errorf("%w: negative session duration", ErrInvalidPolicy)
	case p.CleanupInterval < 0:
		return fmt.Errorf("%w: negative cleanup interval", ErrInvalidPolicy)
	case p.CleanupBackoff < 0:
		return fmt.Errorf("%w: negative cleanup backoff", ErrInvalidPolicy)
	case p.MaxSessionsPerUser < 0:
		return fmt.Errorf("%w: negative session limit", ErrInvalidPolicy)
	case p.RefreshThreshold < 0:
		return fmt.Errorf("%w: negative refresh threshold", ErrInvalidPolicy)
	}
	return nil
}

// UserDirectory answers whether a user account exists.
// The SQL and Redis stores implement it against their own users table or set.
type UserDirectory interface {
	UserExists(ctx context.Context, userID int64) (bool, error)
}

// UserDirectoryFunc adapts a function to UserDirectory.
type UserDirectoryFunc func(ctx context.Context, userID int64) (bool, error)

// UserExists calls f.
func (f UserDirectoryFunc) UserExists(ctx context.Context, userID int64) (bool, error) {
	return f(ctx, userID)
}

// Config contains configuration options for the Manager.
type Config struct {
	// Policy holds durations and limits. Zero fields take their defaults.
	Policy Policy

	// Store is the storage backend for sessions. Required.
	Store store.SessionStore

	// Users resolves session owners. Required.
	Users UserDirectory

	// Logger receives lifecycle events.
	// Default: slog.Default().
	Logger *slog.Logger

	// Now is the clock used for every expiry decision.
	// Default: time.Now.
	Now func() time.Time

	// GeoIPDatabasePath is the path to MaxMind GeoLite2-City.mmdb file.
	// Optional; enables city and country in ExtractClientInfo.
	// Download from: https://dev.maxmind.com/geoip/geolite2-free-geolocation-data
	GeoIPDatabasePath string
}

// applyDefaults fills in default values for zero-value fields.
func (c *Config) applyDefaults() {
	c.Policy.applyDefaults()

	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}
