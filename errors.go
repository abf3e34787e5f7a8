package warden

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a referenced user or session does not exist.
	ErrNotFound = errors.New("warden: not found")

	// ErrInvalidToken is returned when a token matches no usable session.
	ErrInvalidToken = errors.New("warden: invalid session token")

	// ErrExpiredToken is returned when a token matches a session whose expiry has passed.
	// The session is deleted before the error is returned.
	ErrExpiredToken = errors.New("warden: session token expired")

	// ErrStore is matched by every error that originates in the session store
	// or the user directory. Use errors.Is(err, ErrStore).
	ErrStore = errors.New("warden: store failure")

	// ErrCleanupRunning is returned when the background cleanup is started twice.
	ErrCleanupRunning = errors.New("warden: background cleanup already running")

	// ErrInvalidPolicy is returned when a policy contains negative values.
	ErrInvalidPolicy = errors.New("warden: invalid session policy")

	// ErrMissingStore is returned by New when Config.Store is nil.
	ErrMissingStore = errors.New("warden: session store is required")

	// ErrMissingUsers is returned by New when Config.Users is nil.
	ErrMissingUsers = errors.New("warden: user directory is required")

	// ErrGeoIPDatabaseNotConfigured is returned when GeoIP lookup is attempted
	// without configuring the GeoIP database path.
	ErrGeoIPDatabaseNotConfigured = errors.New("warden: GeoIP database path not configured")

	// ErrGeoIPLookupFailed is returned when IP geolocation lookup fails.
	ErrGeoIPLookupFailed = errors.New("warden: GeoIP lookup failed")

	// ErrInvalidIP is returned when an invalid IP address is provided.
	ErrInvalidIP = errors.New("warden: invalid IP address")
)

// StoreError wraps a failure of the session store or user directory.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("warden: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is reports ErrStore as a match so callers can test the error kind.
func (e *StoreError) Is(target error) bool {
	return target == ErrStore
}

func storeErr(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}
