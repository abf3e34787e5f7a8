package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryUsers is an in-memory user directory.
// This is useful for testing and for deployments where the user table lives elsewhere.
type MemoryUsers struct {
	mu    sync.RWMutex
	users map[int64]bool
}

// NewMemoryUsers creates a directory containing the given user IDs.
func NewMemoryUsers(userIDs ...int64) *MemoryUsers {
	u := &MemoryUsers{users: make(map[int64]bool, len(userIDs))}
	for _, id := range userIDs {
		u.users[id] = true
	}
	return u
}

// Add registers user IDs.
func (u *MemoryUsers) Add(userIDs ...int64) {
	u.mu.Lock()
	defer u.mu.Unlock()

	for _, id := range userIDs {
		u.users[id] = true
	}
}

// Remove forgets a user ID.
func (u *MemoryUsers) Remove(userID int64) {
	u.mu.Lock()
	defer u.mu.Unlock()

	delete(u.users, userID)
}

// UserExists reports whether the user ID is registered.
func (u *MemoryUsers) UserExists(_ context.Context, userID int64) (bool, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	return u.users[userID], nil
}

// MemorySessionStore implements SessionStore using in-memory maps.
// This is useful for testing but not recommended for production.
type MemorySessionStore struct {
	mu      sync.RWMutex
	nextID  int64
	byID    map[int64]*Session
	byToken map[string]int64         // token -> id
	byUser  map[int64]map[int64]bool // userID -> set of ids
}

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		byID:    make(map[int64]*Session),
		byToken: make(map[string]int64),
		byUser:  make(map[int64]map[int64]bool),
	}
}

// Insert persists a new session.
func (s *MemorySessionStore) Insert(_ context.Context, session *Session) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byToken[session.Token]; exists {
		return nil, ErrDuplicateToken
	}

	s.nextID++
	stored := session.clone()
	stored.ID = s.nextID
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	s.byID[stored.ID] = stored
	s.byToken[stored.Token] = stored.ID

	// Index by user
	if s.byUser[stored.UserID] == nil {
		s.byUser[stored.UserID] = make(map[int64]bool)
	}
	s.byUser[stored.UserID][stored.ID] = true

	return stored.clone(), nil
}

// FindByToken returns the session for token.
func (s *MemorySessionStore) FindByToken(_ context.Context, token string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.byToken[token]
	if !exists {
		return nil, nil
	}
	return s.byID[id].clone(), nil
}

// FindByUser returns all sessions for a user, newest first.
func (s *MemorySessionStore) FindByUser(_ context.Context, userID int64) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byUser[userID]
	sessions := make([]*Session, 0, len(ids))
	for id := range ids {
		sessions = append(sessions, s.byID[id].clone())
	}

	SortNewestFirst(sessions)
	return sessions, nil
}

// ExtendExpiry moves a session's expiry forward.
func (s *MemorySessionStore) ExtendExpiry(_ context.Context, id int64, expiresAt time.Time) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.byID[id]
	if !exists {
		return nil, nil
	}
	if session.ExpiresAt.Before(expiresAt) {
		session.ExpiresAt = expiresAt
	}
	return session.clone(), nil
}

// ExpireUser sets the expiry of every session of the user.
func (s *MemorySessionStore) ExpireUser(_ context.Context, userID int64, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id := range s.byUser[userID] {
		s.byID[id].ExpiresAt = at
		n++
	}
	return n, nil
}

// DeleteByID removes a session by its ID.
func (s *MemorySessionStore) DeleteByID(_ context.Context, id int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deleteLocked(id), nil
}

// DeleteByToken removes a session by its token.
func (s *MemorySessionStore) DeleteByToken(_ context.Context, token string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, exists := s.byToken[token]
	if !exists {
		return 0, nil
	}
	return s.deleteLocked(id), nil
}

// DeleteByUser removes every session of a user.
func (s *MemorySessionStore) DeleteByUser(_ context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id := range s.byUser[userID] {
		n += s.deleteLocked(id)
	}
	return n, nil
}

// DeleteExpired removes all sessions that expired before now.
// todo: do in batches to avoid locking the maps for too long
func (s *MemorySessionStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, session := range s.byID {
		if session.ExpiresAt.Before(now) {
			n += s.deleteLocked(id)
		}
	}
	return n, nil
}

// CountActiveByUser counts the user's unexpired sessions.
func (s *MemorySessionStore) CountActiveByUser(_ context.Context, userID int64, now time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for id := range s.byUser[userID] {
		if s.byID[id].ExpiresAt.After(now) {
			n++
		}
	}
	return n, nil
}

// CountAll counts every stored session.
func (s *MemorySessionStore) CountAll(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.byID)), nil
}

// CountActive counts unexpired sessions.
func (s *MemorySessionStore) CountActive(_ context.Context, now time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, session := range s.byID {
		if session.ExpiresAt.After(now) {
			n++
		}
	}
	return n, nil
}

// Close is a no-op for the memory store.
func (s *MemorySessionStore) Close() error {
	return nil
}

func (s *MemorySessionStore) deleteLocked(id int64) int64 {
	session, exists := s.byID[id]
	if !exists {
		return 0
	}

	// Remove from user index
	if userSessions, ok := s.byUser[session.UserID]; ok {
		delete(userSessions, id)
		if len(userSessions) == 0 {
			delete(s.byUser, session.UserID)
		}
	}

	delete(s.byToken, session.Token)
	delete(s.byID, id)
	return 1
}

// SortNewestFirst orders sessions by CreatedAt descending, breaking ties by ID.
func SortNewestFirst(sessions []*Session) {
	slices.SortFunc(sessions, func(a, b *Session) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
}
