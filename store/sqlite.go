package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements SessionStore using SQLite.
// It uses the pure Go modernc.org/sqlite driver.
// Timestamps are stored as Unix nanoseconds so range comparisons are exact.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite session store.
// The database file is created if it doesn't exist.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	dsn := dbPath
	if !strings.Contains(dsn, "?") {
		// busy_timeout is per connection, so it has to ride on the DSN
		dsn += "?_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to enable WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id      INTEGER NOT NULL,
		token        TEXT NOT NULL UNIQUE,
		created_at   INTEGER NOT NULL,
		expires_at   INTEGER NOT NULL,
		client_ip    TEXT NOT NULL DEFAULT '',
		user_agent   TEXT NOT NULL DEFAULT '',
		browser      TEXT NOT NULL DEFAULT '',
		os           TEXT NOT NULL DEFAULT '',
		device_type  TEXT NOT NULL DEFAULT '',
		city         TEXT NOT NULL DEFAULT '',
		country      TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_user_expires
		ON sessions (user_id, expires_at);

	CREATE INDEX IF NOT EXISTS idx_sessions_expires
		ON sessions (expires_at);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("sqlite: failed to create schema: %w", err)
	}
	return nil
}

const sqliteColumns = `id, user_id, token, created_at, expires_at,
	client_ip, user_agent, browser, os, device_type, city, country`

// UserExists checks the users table of the same database.
func (s *SQLiteStore) UserExists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)", userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sqlite: failed to look up user: %w", err)
	}
	return exists, nil
}

// AddUser registers a user ID in the users table.
func (s *SQLiteStore) AddUser(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx, "INSERT OR IGNORE INTO users (id) VALUES (?)", userID); err != nil {
		return fmt.Errorf("sqlite: failed to add user: %w", err)
	}
	return nil
}

// Insert persists a new session.
func (s *SQLiteStore) Insert(ctx context.Context, session *Session) (*Session, error) {
	stored := session.clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	query := `
	INSERT INTO sessions (
		user_id, token, created_at, expires_at,
		client_ip, user_agent, browser, os, device_type, city, country
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := s.db.ExecContext(ctx, query,
		stored.UserID,
		stored.Token,
		stored.CreatedAt.UnixNano(),
		stored.ExpiresAt.UnixNano(),
		stored.ClientIP,
		stored.UserAgent,
		stored.Browser,
		stored.OS,
		stored.DeviceType,
		stored.City,
		stored.Country,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrDuplicateToken
		}
		return nil, fmt.Errorf("sqlite: failed to insert session: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to read session id: %w", err)
	}
	stored.ID = id
	return stored, nil
}

// FindByToken returns the session for token, or nil if none exists.
func (s *SQLiteStore) FindByToken(ctx context.Context, token string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+sqliteColumns+" FROM sessions WHERE token = ?", token)

	session, err := scanSQLiteSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return session, err
}

// FindByUser returns all sessions for a user, newest first.
func (s *SQLiteStore) FindByUser(ctx context.Context, userID int64) ([]*Session, error) {
	query := "SELECT " + sqliteColumns + `
	FROM sessions
	WHERE user_id = ?
	ORDER BY created_at DESC, id DESC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		session, err := scanSQLiteSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: error iterating sessions: %w", err)
	}

	return sessions, nil
}

// ExtendExpiry moves a session's expiry forward, never backwards.
func (s *SQLiteStore) ExtendExpiry(ctx context.Context, id int64, expiresAt time.Time) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		"UPDATE sessions SET expires_at = MAX(expires_at, ?) WHERE id = ? RETURNING "+sqliteColumns,
		expiresAt.UnixNano(), id,
	)

	session, err := scanSQLiteSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return session, err
}

// ExpireUser sets the expiry of every session of the user.
func (s *SQLiteStore) ExpireUser(ctx context.Context, userID int64, at time.Time) (int64, error) {
	return s.exec(ctx, "expire user sessions",
		"UPDATE sessions SET expires_at = ? WHERE user_id = ?", at.UnixNano(), userID)
}

// DeleteByID removes a session by its ID.
func (s *SQLiteStore) DeleteByID(ctx context.Context, id int64) (int64, error) {
	return s.exec(ctx, "delete session", "DELETE FROM sessions WHERE id = ?", id)
}

// DeleteByToken removes a session by its token.
func (s *SQLiteStore) DeleteByToken(ctx context.Context, token string) (int64, error) {
	return s.exec(ctx, "delete session", "DELETE FROM sessions WHERE token = ?", token)
}

// DeleteByUser removes every session of a user.
func (s *SQLiteStore) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	return s.exec(ctx, "delete user sessions", "DELETE FROM sessions WHERE user_id = ?", userID)
}

// DeleteExpired removes all sessions that expired before now.
func (s *SQLiteStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return s.exec(ctx, "delete expired sessions",
		"DELETE FROM sessions WHERE expires_at < ?", now.UnixNano())
}

// CountActiveByUser counts the user's unexpired sessions.
func (s *SQLiteStore) CountActiveByUser(ctx context.Context, userID int64, now time.Time) (int64, error) {
	return s.count(ctx,
		"SELECT COUNT(*) FROM sessions WHERE user_id = ? AND expires_at > ?", userID, now.UnixNano())
}

// CountAll counts every stored session.
func (s *SQLiteStore) CountAll(ctx context.Context) (int64, error) {
	return s.count(ctx, "SELECT COUNT(*) FROM sessions")
}

// CountActive counts unexpired sessions.
func (s *SQLiteStore) CountActive(ctx context.Context, now time.Time) (int64, error) {
	return s.count(ctx, "SELECT COUNT(*) FROM sessions WHERE expires_at > ?", now.UnixNano())
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) exec(ctx context.Context, op, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to %s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to %s: %w", op, err)
	}
	return n, nil
}

func (s *SQLiteStore) count(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: failed to count sessions: %w", err)
	}
	return n, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanSQLiteSession scans a session stored with nanosecond timestamps.
func scanSQLiteSession(row rowScanner) (*Session, error) {
	var (
		session   Session
		createdAt int64
		expiresAt int64
	)
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.Token,
		&createdAt,
		&expiresAt,
		&session.ClientIP,
		&session.UserAgent,
		&session.Browser,
		&session.OS,
		&session.DeviceType,
		&session.City,
		&session.Country,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to scan session: %w", err)
	}
	session.CreatedAt = time.Unix(0, createdAt).UTC()
	session.ExpiresAt = time.Unix(0, expiresAt).UTC()
	return &session, nil
}
