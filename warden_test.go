package warden

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aadithya-v/warden/store"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var errUnavailable = errors.New("store unavailable")

// flakyStore fails every call while down, and the next failures calls to CountAll.
type flakyStore struct {
	store.SessionStore
	down     atomic.Bool
	failures atomic.Int64
	sweeps   atomic.Int64
}

func (s *flakyStore) Insert(ctx context.Context, session *store.Session) (*store.Session, error) {
	if s.down.Load() {
		return nil, errUnavailable
	}
	return s.SessionStore.Insert(ctx, session)
}

func (s *flakyStore) FindByToken(ctx context.Context, token string) (*store.Session, error) {
	if s.down.Load() {
		return nil, errUnavailable
	}
	return s.SessionStore.FindByToken(ctx, token)
}

func (s *flakyStore) FindByUser(ctx context.Context, userID int64) ([]*store.Session, error) {
	if s.down.Load() {
		return nil, errUnavailable
	}
	return s.SessionStore.FindByUser(ctx, userID)
}

func (s *flakyStore) CountAll(ctx context.Context) (int64, error) {
	s.sweeps.Add(1)
	if s.down.Load() {
		return 0, errUnavailable
	}
	if s.failures.Load() > 0 {
		s.failures.Add(-1)
		return 0, errUnavailable
	}
	return s.SessionStore.CountAll(ctx)
}

type testEnv struct {
	manager  *Manager
	sessions *store.MemorySessionStore
	users    *store.MemoryUsers
	clock    *fakeClock
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T, policy Policy) *testEnv {
	t.Helper()

	env := &testEnv{
		sessions: store.NewMemorySessionStore(),
		users:    store.NewMemoryUsers(7, 9, 11),
		clock:    newFakeClock(),
	}

	m, err := New(Config{
		Policy: policy,
		Store:  env.sessions,
		Users:  env.users,
		Logger: discardLogger(),
		Now:    env.clock.Now,
	})
	if err != nil {
		t.Fatalf("Failed to create Manager: %v", err)
	}
	t.Cleanup(func() { m.Close() })

	env.manager = m
	return env
}

func (e *testEnv) create(t *testing.T, userID int64) *CreateResult {
	t.Helper()
	result, err := e.manager.CreateSession(context.Background(), userID)
	if err != nil {
		t.Fatalf("Failed to create session for user %d: %v", userID, err)
	}
	return result
}

func TestNewRejectsBadConfig(t *testing.T) {
	sessions := store.NewMemorySessionStore()
	users := store.NewMemoryUsers()

	tests := []struct {
		name string
		cfg  Config
		want error
	}{
		{"missing store", Config{Users: users}, ErrMissingStore},
		{"missing users", Config{Store: sessions}, ErrMissingUsers},
		{"negative duration", Config{Store: sessions, Users: users, Policy: Policy{SessionDuration: -time.Hour}}, ErrInvalidPolicy},
		{"negative limit", Config{Store: sessions, Users: users, Policy: Policy{MaxSessionsPerUser: -1}}, ErrInvalidPolicy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestDefaultPolicyApplied(t *testing.T) {
	env := newTestEnv(t, Policy{})
	got := env.manager.Policy()

	if got != DefaultPolicy() {
		t.Errorf("Expected default policy %+v, got %+v", DefaultPolicy(), got)
	}
	if !got.RefreshEnabled() {
		t.Error("Refresh should be enabled by default")
	}
}

func TestCreateSession(t *testing.T) {
	env := newTestEnv(t, Policy{SessionDuration: time.Hour})
	now := env.clock.Now()

	result := env.create(t, 7)

	if result.Evicted != 0 {
		t.Errorf("Expected no evictions, got %d", result.Evicted)
	}
	s := result.Session
	if s.UserID != 7 {
		t.Errorf("Expected user 7, got %d", s.UserID)
	}
	if len(s.Token) < 32 {
		t.Errorf("Token too short: %q", s.Token)
	}
	if !s.CreatedAt.Equal(now) || !s.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Errorf("Unexpected times: created %v expires %v", s.CreatedAt, s.ExpiresAt)
	}

	other := env.create(t, 7)
	if other.Session.Token == s.Token {
		t.Error("Tokens must be unique")
	}
}

func TestCreateSessionUnknownUser(t *testing.T) {
	env := newTestEnv(t, Policy{})

	_, err := env.manager.CreateSession(context.Background(), 404)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	total, _ := env.sessions.CountAll(context.Background())
	if total != 0 {
		t.Errorf("Expected no sessions stored, got %d", total)
	}
}

func TestCreateSessionEvictsOldest(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Policy{MaxSessionsPerUser: 2, SessionDuration: time.Hour})

	first := env.create(t, 7)
	env.clock.Advance(time.Second)
	second := env.create(t, 7)
	env.clock.Advance(time.Second)
	third := env.create(t, 7)

	if third.Evicted != 1 {
		t.Errorf("Expected 1 eviction, got %d", third.Evicted)
	}

	remaining, _ := env.sessions.FindByUser(ctx, 7)
	if len(remaining) != 2 {
		t.Fatalf("Expected 2 sessions for user 7, got %d", len(remaining))
	}

	for _, token := range []string{second.Session.Token, third.Session.Token} {
		if _, err := env.manager.ValidateSession(ctx, token); err != nil {
			t.Errorf("Expected newer session to validate, got %v", err)
		}
	}
	if _, err := env.manager.ValidateSession(ctx, first.Session.Token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken for evicted session, got %v", err)
	}

	stats, err := env.manager.GetSessionStatistics(ctx)
	if err != nil {
		t.Fatalf("Failed to get statistics: %v", err)
	}
	if stats.Evicted != 1 {
		t.Errorf("Expected evicted counter 1, got %d", stats.Evicted)
	}
}

func TestCapacityInvariant(t *testing.T) {
	ctx := context.Background()

	for _, limit := range []int{1, 2, 5} {
		env := newTestEnv(t, Policy{MaxSessionsPerUser: limit})

		for i := 0; i < 12; i++ {
			// every other session shares a timestamp with the previous one
			if i%2 == 0 {
				env.clock.Advance(time.Second)
			}
			created := env.create(t, 9)

			n, err := env.sessions.CountActiveByUser(ctx, 9, env.clock.Now())
			if err != nil {
				t.Fatalf("Failed to count: %v", err)
			}
			if n > int64(limit) {
				t.Fatalf("Limit %d: user holds %d live sessions after create %d", limit, n, i)
			}
			if _, err := env.manager.ValidateSession(ctx, created.Session.Token); err != nil {
				t.Fatalf("Limit %d: newest session evicted: %v", limit, err)
			}
		}
	}
}

func TestEvictionSkipsExpiredSessions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Policy{MaxSessionsPerUser: 2, SessionDuration: time.Hour})

	env.create(t, 7)
	env.clock.Advance(2 * time.Hour)
	env.create(t, 7)
	result := env.create(t, 7)

	if result.Evicted != 0 {
		t.Errorf("Expected no evictions while only one live session existed, got %d", result.Evicted)
	}

	all, _ := env.sessions.FindByUser(ctx, 7)
	if len(all) != 3 {
		t.Errorf("Expected expired session to be left for the sweep, got %d records", len(all))
	}
}

func TestValidateSessionRefresh(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Policy{RefreshThreshold: 60 * time.Minute, SessionDuration: 24 * time.Hour})

	created := env.create(t, 7)

	// 30 minutes left
	env.clock.Advance(23*time.Hour + 30*time.Minute)
	now := env.clock.Now()

	s, err := env.manager.ValidateSession(ctx, created.Session.Token)
	if err != nil {
		t.Fatalf("Failed to validate: %v", err)
	}
	if !s.ExpiresAt.Equal(now.Add(24 * time.Hour)) {
		t.Errorf("Expected expiry %v, got %v", now.Add(24*time.Hour), s.ExpiresAt)
	}

	stored, _ := env.sessions.FindByToken(ctx, created.Session.Token)
	if !stored.ExpiresAt.Equal(s.ExpiresAt) {
		t.Errorf("Refresh not persisted: %v", stored.ExpiresAt)
	}

	stats, _ := env.manager.GetSessionStatistics(ctx)
	if stats.Refreshed != 1 {
		t.Errorf("Expected refreshed counter 1, got %d", stats.Refreshed)
	}
}

func TestValidateSessionNoRefreshAboveThreshold(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Policy{RefreshThreshold: time.Hour, SessionDuration: 24 * time.Hour})

	created := env.create(t, 7)
	env.clock.Advance(time.Hour)

	s, err := env.manager.ValidateSession(ctx, created.Session.Token)
	if err != nil {
		t.Fatalf("Failed to validate: %v", err)
	}
	if !s.ExpiresAt.Equal(created.Session.ExpiresAt) {
		t.Errorf("Expected unchanged expiry %v, got %v", created.Session.ExpiresAt, s.ExpiresAt)
	}
}

func TestValidateSessionRefreshDisabled(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Policy{DisableRefresh: true, SessionDuration: time.Hour})

	created := env.create(t, 7)
	env.clock.Advance(59 * time.Minute)

	s, err := env.manager.ValidateSession(ctx, created.Session.Token)
	if err != nil {
		t.Fatalf("Failed to validate: %v", err)
	}
	if !s.ExpiresAt.Equal(created.Session.ExpiresAt) {
		t.Errorf("Expected unchanged expiry with refresh disabled, got %v", s.ExpiresAt)
	}
}

func TestRefreshMonotonic(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Policy{
		SessionDuration:  2 * time.Hour,
		RefreshThreshold: 3 * time.Hour, // every validation refreshes
	})

	created := env.create(t, 7)
	last := created.Session.ExpiresAt

	for i := 0; i < 20; i++ {
		env.clock.Advance(time.Duration(i%4) * time.Minute)
		s, err := env.manager.ValidateSession(ctx, created.Session.Token)
		if err != nil {
			t.Fatalf("Validation %d failed: %v", i, err)
		}
		if s.ExpiresAt.Before(last) {
			t.Fatalf("Validation %d moved expiry back from %v to %v", i, last, s.ExpiresAt)
		}
		last = s.ExpiresAt
	}
}

func TestConcurrentValidateSession(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Policy{SessionDuration: 24 * time.Hour, RefreshThreshold: time.Hour})

	created := env.create(t, 7)
	env.clock.Advance(23*time.Hour + 30*time.Minute)
	want := env.clock.Now().Add(24 * time.Hour)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.manager.ValidateSession(ctx, created.Session.Token); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Concurrent validation failed: %v", err)
	}

	stored, _ := env.sessions.FindByToken(ctx, created.Session.Token)
	if !stored.ExpiresAt.Equal(want) {
		t.Errorf("Expected expiry %v, got %v", want, stored.ExpiresAt)
	}
}

func TestValidateSessionExpired(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Policy{SessionDuration: time.Hour})

	created := env.create(t, 7)
	env.clock.Advance(time.Hour + time.Second)

	_, err := env.manager.ValidateSession(ctx, created.Session.Token)
	if !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("Expected ErrExpiredToken, got %v", err)
	}

	found, err := env.sessions.FindByToken(ctx, created.Session.Token)
	if err != nil {
		t.Fatalf("Failed to look up token: %v", err)
	}
	if found != nil {
		t.Error("Expired session should have been deleted")
	}

	// gone now, so it reads as never existing
	_, err = env.manager.ValidateSession(ctx, created.Session.Token)
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken on second validation, got %v", err)
	}
}

func TestValidateSessionExpiresAtBoundary(t *testing.T) {
	env := newTestEnv(t, Policy{SessionDuration: time.Hour})

	created := env.create(t, 7)
	env.clock.Advance(time.Hour)

	_, err := env.manager.ValidateSession(context.Background(), created.Session.Token)
	if !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Expected ErrExpiredToken when expiry equals now, got %v", err)
	}
}

func TestValidateSessionInvalid(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Policy{})

	// no resolvable owner
	if _, err := env.sessions.Insert(ctx, &store.Session{
		Token:     "orphan",
		CreatedAt: env.clock.Now(),
		ExpiresAt: env.clock.Now().Add(time.Hour),
	}); err != nil {
		t.Fatalf("Failed to seed session: %v", err)
	}

	for _, token := range []string{"", "does-not-exist", "orphan"} {
		_, err := env.manager.ValidateSession(ctx, token)
		if !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Token %q: expected ErrInvalidToken, got %v", token, err)
		}
	}
}

func TestSessionInfo(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Policy{SessionDuration: 24 * time.Hour})

	created := env.create(t, 7)
	env.clock.Advance(4 * time.Hour)

	info, err := env.manager.SessionInfo(ctx, created.Session.Token)
	if err != nil {
		t.Fatalf("Failed to get session info: %v", err)
	}
	if info.IsExpired {
		t.Error("Session should not be expired")
	}
	if info.TimeRemaining == nil || *info.TimeRemaining != 20*time.Hour {
		t.Errorf("Expected 20h remaining, got %v", info.TimeRemaining)
	}
}

func TestGetUserSessions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Policy{SessionDuration: time.Hour})

	old := env.create(t, 7)
	env.clock.Advance(30 * time.Minute)
	mid := env.create(t, 7)
	env.clock.Advance(time.Second)
	newest := env.create(t, 7)
	env.create(t, 9)

	// old expires
	env.clock.Advance(30 * time.Minute)

	sessions, err := env.manager.GetUserSessions(ctx, 7)
	if err != nil {
		t.Fatalf("Failed to get user sessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("Expected 2 live sessions, got %d", len(sessions))
	}
	if sessions[0].ID != newest.Session.ID || sessions[1].ID != mid.Session.ID {
		t.Errorf("Expected newest first, got IDs %d, %d", sessions[0].ID, sessions[1].ID)
	}

	// filtered, not deleted
	if found, _ := env.sessions.FindByToken(ctx, old.Session.Token); found == nil {
		t.Error("Listing should not delete expired sessions")
	}

	empty, err := env.manager.GetUserSessions(ctx, 11)
	if err != nil {
		t.Fatalf("Failed to get user sessions: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("Expected empty non-nil slice, got %v", empty)
	}
}

func TestLogoutSessionIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Policy{})

	created := env.create(t, 7)

	if err := env.manager.LogoutSession(ctx, created.Session.Token); err != nil {
		t.Fatalf("First logout failed: %v", err)
	}
	if err := env.manager.LogoutSession(ctx, created.Session.Token); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second logout, got %v", err)
	}
	if _, err := env.manager.ValidateSession(ctx, created.Session.Token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken after logout, got %v", err)
	}
}

func TestLogoutAllUserSessions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Policy{})

	for i := 0; i < 3; i++ {
		env.create(t, 9)
	}
	keep := env.create(t, 7)

	n, err := env.manager.LogoutAllUserSessions(ctx, 9)
	if err != nil {
		t.Fatalf("Failed to log out user: %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3 sessions logged out, got %d", n)
	}

	sessions, _ := env.manager.GetUserSessions(ctx, 9)
	if len(sessions) != 0 {
		t.Errorf("Expected no sessions, got %d", len(sessions))
	}

	n, err = env.manager.LogoutAllUserSessions(ctx, 9)
	if err != nil || n != 0 {
		t.Errorf("Expected 0 and no error for user without sessions, got %d, %v", n, err)
	}

	if _, err := env.manager.ValidateSession(ctx, keep.Session.Token); err != nil {
		t.Errorf("Other user's session should survive, got %v", err)
	}
}

func TestForceExpireUserSessions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Policy{})

	a := env.create(t, 7)
	b := env.create(t, 7)
	other := env.create(t, 9)

	n, err := env.manager.ForceExpireUserSessions(ctx, 7, "compromised account")
	if err != nil {
		t.Fatalf("Failed to force expire: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 sessions expired, got %d", n)
	}

	// records are kept until validated or swept
	total, _ := env.sessions.CountAll(ctx)
	if total != 3 {
		t.Errorf("Expected 3 records kept, got %d", total)
	}

	for _, token := range []string{a.Session.Token, b.Session.Token} {
		if _, err := env.manager.ValidateSession(ctx, token); !errors.Is(err, ErrExpiredToken) {
			t.Errorf("Expected ErrExpiredToken, got %v", err)
		}
	}
	if _, err := env.manager.ValidateSession(ctx, other.Session.Token); err != nil {
		t.Errorf("Other user's session should survive, got %v", err)
	}
}

func TestCleanupExpiredSessions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Policy{SessionDuration: time.Hour})
	now := env.clock.Now()

	seed := []time.Duration{-time.Hour, -time.Second, time.Second, time.Hour, 2 * time.Hour}
	for i, offset := range seed {
		if _, err := env.sessions.Insert(ctx, &store.Session{
			UserID:    7,
			Token:     string(rune('a' + i)),
			CreatedAt: now.Add(-3 * time.Hour),
			ExpiresAt: now.Add(offset),
		}); err != nil {
			t.Fatalf("Failed to seed session: %v", err)
		}
	}

	result, err := env.manager.CleanupExpiredSessions(ctx)
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}

	if result.TotalBefore != 5 {
		t.Errorf("Expected 5 sessions before, got %d", result.TotalBefore)
	}
	if result.ExpiredDeleted != 2 {
		t.Errorf("Expected 2 deleted, got %d", result.ExpiredDeleted)
	}
	if result.ActiveRemaining != 3 {
		t.Errorf("Expected 3 remaining, got %d", result.ActiveRemaining)
	}
	if !result.CleanupAt.Equal(now) {
		t.Errorf("Expected cleanup time %v, got %v", now, result.CleanupAt)
	}

	remaining, _ := env.sessions.FindByUser(ctx, 7)
	for _, s := range remaining {
		if s.ExpiresAt.Before(now) {
			t.Errorf("Expired session %d survived the sweep", s.ID)
		}
	}

	again, err := env.manager.CleanupExpiredSessions(ctx)
	if err != nil {
		t.Fatalf("Second cleanup failed: %v", err)
	}
	if again.ExpiredDeleted != 0 {
		t.Errorf("Expected idempotent cleanup, got %d deleted", again.ExpiredDeleted)
	}
}

func TestGetSessionStatistics(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Policy{SessionDuration: time.Hour})

	stats, err := env.manager.GetSessionStatistics(ctx)
	if err != nil {
		t.Fatalf("Failed to get statistics: %v", err)
	}
	if !stats.LastCleanup.IsZero() {
		t.Errorf("Expected zero last cleanup before any sweep, got %v", stats.LastCleanup)
	}

	env.create(t, 7)
	env.clock.Advance(2 * time.Hour)
	env.create(t, 9)

	stats, _ = env.manager.GetSessionStatistics(ctx)
	if stats.TotalSessions != 2 || stats.ActiveSessions != 1 {
		t.Errorf("Expected 2 total 1 active, got %d total %d active", stats.TotalSessions, stats.ActiveSessions)
	}

	// read-only
	if total, _ := env.sessions.CountAll(ctx); total != 2 {
		t.Errorf("Statistics modified the store: %d sessions", total)
	}

	env.manager.CleanupExpiredSessions(ctx)
	stats, _ = env.manager.GetSessionStatistics(ctx)
	if !stats.LastCleanup.Equal(env.clock.Now()) {
		t.Errorf("Expected last cleanup %v, got %v", env.clock.Now(), stats.LastCleanup)
	}
	if stats.ExpiredCleaned != 1 {
		t.Errorf("Expected expired cleaned counter 1, got %d", stats.ExpiredCleaned)
	}
}

func TestStoreErrorsAreWrapped(t *testing.T) {
	ctx := context.Background()
	users := store.NewMemoryUsers(7)
	flaky := &flakyStore{SessionStore: store.NewMemorySessionStore()}

	m, err := New(Config{Store: flaky, Users: users, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("Failed to create Manager: %v", err)
	}
	defer m.Close()

	flaky.down.Store(true)

	calls := map[string]func() error{
		"create": func() error {
			_, err := m.CreateSession(ctx, 7)
			return err
		},
		"validate": func() error {
			_, err := m.ValidateSession(ctx, "token")
			return err
		},
		"list": func() error {
			_, err := m.GetUserSessions(ctx, 7)
			return err
		},
		"cleanup": func() error {
			_, err := m.CleanupExpiredSessions(ctx)
			return err
		},
		"stats": func() error {
			_, err := m.GetSessionStatistics(ctx)
			return err
		},
	}

	for name, call := range calls {
		err := call()
		if !errors.Is(err, ErrStore) {
			t.Errorf("%s: expected ErrStore, got %v", name, err)
		}
		if !errors.Is(err, errUnavailable) {
			t.Errorf("%s: expected cause to be preserved, got %v", name, err)
		}
		var se *StoreError
		if !errors.As(err, &se) || se.Op == "" {
			t.Errorf("%s: expected *StoreError with op, got %v", name, err)
		}
	}
}

func TestUserDirectoryErrors(t *testing.T) {
	users := UserDirectoryFunc(func(context.Context, int64) (bool, error) {
		return false, errUnavailable
	})

	m, err := New(Config{Store: store.NewMemorySessionStore(), Users: users, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("Failed to create Manager: %v", err)
	}
	defer m.Close()

	_, err = m.CreateSession(context.Background(), 7)
	if !errors.Is(err, ErrStore) {
		t.Errorf("Expected ErrStore, got %v", err)
	}
}
