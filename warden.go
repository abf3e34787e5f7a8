package warden

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/aadithya-v/warden/store"
)

// tokenAttempts bounds retries when a generated token collides with a stored one.
const tokenAttempts = 3

// Manager implements the session lifecycle on top of a SessionStore.
//
// A Manager is safe for concurrent use. It holds no session state of its own;
// the store is the only shared mutable resource. Concurrent operations on the
// same token are ordered only by the store: a refresh racing a logout resolves
// as whichever store write lands last.
type Manager struct {
	policy   Policy
	sessions store.SessionStore
	users    UserDirectory
	logger   *slog.Logger
	clock    func() time.Time
	geoip    *GeoIPReader

	mu      sync.Mutex
	janitor *Janitor

	lastCleanup    atomic.Pointer[time.Time]
	expiredCleaned atomic.Int64
	evicted        atomic.Int64
	refreshed      atomic.Int64
}

// New creates a new Manager with the given configuration.
func New(cfg Config) (*Manager, error) {
	cfg.applyDefaults()

	if err := cfg.Policy.validate(); err != nil {
		return nil, err
	}
	if cfg.Store == nil {
		return nil, ErrMissingStore
	}
	if cfg.Users == nil {
		return nil, ErrMissingUsers
	}

	m := &Manager{
		policy:   cfg.Policy,
		sessions: cfg.Store,
		users:    cfg.Users,
		logger:   cfg.Logger,
		clock:    cfg.Now,
	}

	// Initialize GeoIP reader if path is provided
	if cfg.GeoIPDatabasePath != "" {
		geoip, err := NewGeoIPReader(cfg.GeoIPDatabasePath)
		if err != nil {
			return nil, fmt.Errorf("warden: failed to initialize GeoIP: %w", err)
		}
		m.geoip = geoip
	}

	return m, nil
}

// Policy returns the policy the manager was created with.
func (m *Manager) Policy() Policy {
	return m.policy
}

// Close stops the background cleanup if it is running and releases all
// resources held by the manager, including the store.
func (m *Manager) Close() error {
	m.mu.Lock()
	janitor := m.janitor
	m.mu.Unlock()

	if janitor != nil {
		janitor.Stop()
	}

	var errs []error

	if err := m.sessions.Close(); err != nil {
		errs = append(errs, err)
	}

	if m.geoip != nil {
		if err := m.geoip.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("warden: errors during close: %w", errors.Join(errs...))
	}
	return nil
}

// now reads the clock at the precision every backend can store.
func (m *Manager) now() time.Time {
	return m.clock().UTC().Truncate(time.Microsecond)
}

// ExtractClientInfo extracts device and location information from an HTTP request.
// If GeoIP is not configured, or the lookup fails, city and country stay empty.
func (m *Manager) ExtractClientInfo(r *http.Request) ClientInfo {
	client := ExtractDeviceInfo(r)

	if m.geoip != nil {
		if loc, err := m.geoip.Lookup(client.IP); err == nil {
			client.City = loc.City
			client.Country = loc.Country
		}
	}

	return client
}

// CreateSession creates a new session for the user.
// See CreateSessionWithClient.
func (m *Manager) CreateSession(ctx context.Context, userID int64) (*CreateResult, error) {
	return m.CreateSessionWithClient(ctx, userID, ClientInfo{})
}

// CreateSessionWithClient creates a new session for the user and records
// the client it was issued to.
//
// Fails with ErrNotFound if the user does not exist. If the user already holds
// MaxSessionsPerUser live sessions, the oldest are deleted first so that the
// new session brings the user back to exactly the limit; the number deleted
// is reported in CreateResult.Evicted.
func (m *Manager) CreateSessionWithClient(ctx context.Context, userID int64, client ClientInfo) (*CreateResult, error) {
	exists, err := m.users.UserExists(ctx, userID)
	if err != nil {
		return nil, storeErr("look up user", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: user %d", ErrNotFound, userID)
	}

	now := m.now()

	evicted, err := m.evictExcess(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	record := &store.Session{
		UserID:     userID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(m.policy.SessionDuration),
		ClientIP:   client.IP,
		UserAgent:  client.UserAgent,
		Browser:    client.Browser,
		OS:         client.OS,
		DeviceType: client.DeviceType,
		City:       client.City,
		Country:    client.Country,
	}

	var stored *store.Session
	for attempt := 1; ; attempt++ {
		record.Token = uuid.NewString()
		stored, err = m.sessions.Insert(ctx, record)
		if errors.Is(err, store.ErrDuplicateToken) && attempt < tokenAttempts {
			continue
		}
		if err != nil {
			return nil, storeErr("insert session", err)
		}
		break
	}

	m.logger.Info("session created",
		"user_id", userID,
		"session_id", stored.ID,
		"expires_at", stored.ExpiresAt,
	)

	return &CreateResult{
		Session: fromStore(stored),
		Evicted: evicted,
	}, nil
}

// evictExcess deletes the user's oldest live sessions so that at most
// MaxSessionsPerUser-1 remain. Expired sessions are left for the sweep.
func (m *Manager) evictExcess(ctx context.Context, userID int64, now time.Time) (int, error) {
	limit := m.policy.MaxSessionsPerUser

	count, err := m.sessions.CountActiveByUser(ctx, userID, now)
	if err != nil {
		return 0, storeErr("count user sessions", err)
	}
	if count < int64(limit) {
		return 0, nil
	}

	records, err := m.sessions.FindByUser(ctx, userID)
	if err != nil {
		return 0, storeErr("list user sessions", err)
	}
	store.SortNewestFirst(records)

	keep := limit - 1
	live := 0
	evicted := 0
	for _, record := range records {
		if record.IsExpired(now) {
			continue
		}
		live++
		if live <= keep {
			continue
		}
		n, err := m.sessions.DeleteByID(ctx, record.ID)
		if err != nil {
			return evicted, storeErr("evict session", err)
		}
		evicted += int(n)
	}

	if evicted > 0 {
		m.evicted.Add(int64(evicted))
		m.logger.Info("evicted old sessions to stay within limit",
			"user_id", userID,
			"evicted", evicted,
			"limit", limit,
		)
	}
	return evicted, nil
}

// ValidateSession resolves a token to its session.
//
// Fails with ErrInvalidToken if no usable session matches, and with
// ErrExpiredToken if the session has expired, in which case it is deleted.
// When refresh is enabled and less than RefreshThreshold remains, the expiry
// is extended to SessionDuration from now and the updated session returned.
func (m *Manager) ValidateSession(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	record, err := m.sessions.FindByToken(ctx, token)
	if err != nil {
		return nil, storeErr("find session", err)
	}
	if record == nil || record.UserID <= 0 {
		return nil, ErrInvalidToken
	}

	now := m.now()

	if record.IsExpired(now) {
		if _, err := m.sessions.DeleteByID(ctx, record.ID); err != nil {
			m.logger.Warn("failed to delete expired session",
				"session_id", record.ID,
				"error", err,
			)
		}
		return nil, ErrExpiredToken
	}

	if m.policy.RefreshEnabled() && record.ExpiresAt.Sub(now) < m.policy.RefreshThreshold {
		updated, err := m.sessions.ExtendExpiry(ctx, record.ID, now.Add(m.policy.SessionDuration))
		if err != nil {
			return nil, storeErr("refresh session", err)
		}
		if updated == nil {
			// deleted since it was read
			return nil, ErrInvalidToken
		}
		m.refreshed.Add(1)
		m.logger.Debug("session refreshed",
			"session_id", updated.ID,
			"expires_at", updated.ExpiresAt,
		)
		return fromStore(updated), nil
	}

	return fromStore(record), nil
}

// SessionInfo validates the token and describes the resulting session.
func (m *Manager) SessionInfo(ctx context.Context, token string) (*SessionInfo, error) {
	session, err := m.ValidateSession(ctx, token)
	if err != nil {
		return nil, err
	}
	info := session.Info(m.now())
	return &info, nil
}

// GetUserSessions returns the user's live sessions, newest first.
// Expired sessions are omitted but not deleted.
func (m *Manager) GetUserSessions(ctx context.Context, userID int64) ([]SessionInfo, error) {
	records, err := m.sessions.FindByUser(ctx, userID)
	if err != nil {
		return nil, storeErr("list user sessions", err)
	}
	store.SortNewestFirst(records)

	now := m.now()
	infos := make([]SessionInfo, 0, len(records))
	for _, record := range records {
		if record.IsExpired(now) {
			continue
		}
		infos = append(infos, fromStore(record).Info(now))
	}
	return infos, nil
}

// LogoutSession deletes the session for token.
// Returns ErrNotFound if there was none.
func (m *Manager) LogoutSession(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("%w: session", ErrNotFound)
	}

	n, err := m.sessions.DeleteByToken(ctx, token)
	if err != nil {
		return storeErr("delete session", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: session", ErrNotFound)
	}

	m.logger.Info("session logged out")
	return nil
}

// LogoutAllUserSessions deletes every session of the user and returns how many there were.
func (m *Manager) LogoutAllUserSessions(ctx context.Context, userID int64) (int64, error) {
	n, err := m.sessions.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, storeErr("delete user sessions", err)
	}

	m.logger.Info("logged out user sessions",
		"user_id", userID,
		"count", n,
	)
	return n, nil
}

// ForceExpireUserSessions expires every session of the user immediately.
// Sessions are kept so that later validations fail with ErrExpiredToken.
// reason is recorded in the log only.
func (m *Manager) ForceExpireUserSessions(ctx context.Context, userID int64, reason string) (int64, error) {
	n, err := m.sessions.ExpireUser(ctx, userID, m.now())
	if err != nil {
		return 0, storeErr("expire user sessions", err)
	}

	m.logger.Warn("force expired user sessions",
		"user_id", userID,
		"count", n,
		"reason", reason,
	)
	return n, nil
}

// CleanupExpiredSessions deletes every session that expired before now.
// It is safe to run concurrently with the background cleanup.
func (m *Manager) CleanupExpiredSessions(ctx context.Context) (*CleanupResult, error) {
	now := m.now()

	total, err := m.sessions.CountAll(ctx)
	if err != nil {
		return nil, storeErr("count sessions", err)
	}

	deleted, err := m.sessions.DeleteExpired(ctx, now)
	if err != nil {
		return nil, storeErr("delete expired sessions", err)
	}

	active, err := m.sessions.CountActive(ctx, now)
	if err != nil {
		return nil, storeErr("count active sessions", err)
	}

	m.lastCleanup.Store(&now)
	m.expiredCleaned.Add(deleted)

	if deleted > 0 {
		m.logger.Info("session cleanup",
			"expired_deleted", deleted,
			"active_remaining", active,
		)
	}

	return &CleanupResult{
		TotalBefore:     total,
		ActiveRemaining: active,
		ExpiredDeleted:  deleted,
		CleanupAt:       now,
	}, nil
}

// GetSessionStatistics returns aggregate counts without modifying anything.
func (m *Manager) GetSessionStatistics(ctx context.Context) (*Stats, error) {
	now := m.now()

	total, err := m.sessions.CountAll(ctx)
	if err != nil {
		return nil, storeErr("count sessions", err)
	}

	active, err := m.sessions.CountActive(ctx, now)
	if err != nil {
		return nil, storeErr("count active sessions", err)
	}

	stats := &Stats{
		TotalSessions:  total,
		ActiveSessions: active,
		ExpiredCleaned: m.expiredCleaned.Load(),
		Evicted:        m.evicted.Load(),
		Refreshed:      m.refreshed.Load(),
	}
	if last := m.lastCleanup.Load(); last != nil {
		stats.LastCleanup = *last
	}
	return stats, nil
}
