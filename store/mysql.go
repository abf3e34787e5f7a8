package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// MySQLStore implements SessionStore using MySQL.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQL creates a new MySQL session store on an open database handle.
// The handle must be opened with parseTime=true, loc=UTC and clientFoundRows=true.
func NewMySQL(db *sql.DB) (*MySQLStore, error) {

	// Create schema
	if err := createMySQLSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &MySQLStore{db: db}, nil
}

// NewMySQLFromDSN creates a new MySQL session store from a DSN.
// The DSN format is: user:password@tcp(host:port)/database
func NewMySQLFromDSN(dsn string) (*MySQLStore, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql: invalid dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	// report matched rows so ExpireUser counts sessions already at the target time
	cfg.ClientFoundRows = true

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql: failed to open database: %w", err)
	}
	db := sql.OpenDB(connector)

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysql: failed to connect: %w", err)
	}

	return NewMySQL(db)
}

func createMySQLSchema(db *sql.DB) error {
	// The users table belongs to the host application and is only read here.
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id          BIGINT AUTO_INCREMENT PRIMARY KEY,
		user_id     BIGINT NOT NULL,
		token       VARCHAR(64) NOT NULL,
		created_at  DATETIME(6) NOT NULL,
		expires_at  DATETIME(6) NOT NULL,
		client_ip   VARCHAR(45) NOT NULL DEFAULT '',
		user_agent  TEXT,
		browser     VARCHAR(100) NOT NULL DEFAULT '',
		os          VARCHAR(100) NOT NULL DEFAULT '',
		device_type VARCHAR(20) NOT NULL DEFAULT '',
		city        VARCHAR(100) NOT NULL DEFAULT '',
		country     VARCHAR(100) NOT NULL DEFAULT '',

		UNIQUE KEY uq_sessions_token (token),
		INDEX idx_sessions_user_expires (user_id, expires_at),
		INDEX idx_sessions_expires (expires_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("mysql: failed to create schema: %w", err)
	}
	return nil
}

const mysqlColumns = `id, user_id, token, created_at, expires_at,
	client_ip, COALESCE(user_agent, ''), browser, os, device_type, city, country`

// UserExists checks the host application's users table.
func (s *MySQLStore) UserExists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)", userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("mysql: failed to look up user: %w", err)
	}
	return exists, nil
}

// Insert persists a new session.
func (s *MySQLStore) Insert(ctx context.Context, session *Session) (*Session, error) {
	stored := session.clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
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
		stored.CreatedAt.UTC(),
		stored.ExpiresAt.UTC(),
		stored.ClientIP,
		stored.UserAgent,
		stored.Browser,
		stored.OS,
		stored.DeviceType,
		stored.City,
		stored.Country,
	)
	if err != nil {
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == 1062 {
			return nil, ErrDuplicateToken
		}
		return nil, fmt.Errorf("mysql: failed to insert session: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("mysql: failed to read session id: %w", err)
	}
	stored.ID = id
	return stored, nil
}

// FindByToken returns the session for token, or nil if none exists.
func (s *MySQLStore) FindByToken(ctx context.Context, token string) (*Session, error) {
	return s.findOne(ctx, "token = ?", token)
}

// FindByUser returns all sessions for a user, newest first.
func (s *MySQLStore) FindByUser(ctx context.Context, userID int64) ([]*Session, error) {
	query := "SELECT " + mysqlColumns + `
	FROM sessions
	WHERE user_id = ?
	ORDER BY created_at DESC, id DESC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("mysql: failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		session, err := scanMySQLSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mysql: error iterating sessions: %w", err)
	}

	return sessions, nil
}

// ExtendExpiry moves a session's expiry forward, never backwards.
// MySQL has no RETURNING, so the row is re-read after the update.
func (s *MySQLStore) ExtendExpiry(ctx context.Context, id int64, expiresAt time.Time) (*Session, error) {
	if _, err := s.exec(ctx, "extend session",
		"UPDATE sessions SET expires_at = GREATEST(expires_at, ?) WHERE id = ?",
		expiresAt.UTC(), id,
	); err != nil {
		return nil, err
	}
	return s.findOne(ctx, "id = ?", id)
}

// ExpireUser sets the expiry of every session of the user.
func (s *MySQLStore) ExpireUser(ctx context.Context, userID int64, at time.Time) (int64, error) {
	return s.exec(ctx, "expire user sessions",
		"UPDATE sessions SET expires_at = ? WHERE user_id = ?", at.UTC(), userID)
}

// DeleteByID removes a session by its ID.
func (s *MySQLStore) DeleteByID(ctx context.Context, id int64) (int64, error) {
	return s.exec(ctx, "delete session", "DELETE FROM sessions WHERE id = ?", id)
}

// DeleteByToken removes a session by its token.
func (s *MySQLStore) DeleteByToken(ctx context.Context, token string) (int64, error) {
	return s.exec(ctx, "delete session", "DELETE FROM sessions WHERE token = ?", token)
}

// DeleteByUser removes every session of a user.
func (s *MySQLStore) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	return s.exec(ctx, "delete user sessions", "DELETE FROM sessions WHERE user_id = ?", userID)
}

// DeleteExpired removes all sessions that expired before now.
func (s *MySQLStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return s.exec(ctx, "delete expired sessions",
		"DELETE FROM sessions WHERE expires_at < ?", now.UTC())
}

// CountActiveByUser counts the user's unexpired sessions.
func (s *MySQLStore) CountActiveByUser(ctx context.Context, userID int64, now time.Time) (int64, error) {
	return s.count(ctx,
		"SELECT COUNT(*) FROM sessions WHERE user_id = ? AND expires_at > ?", userID, now.UTC())
}

// CountAll counts every stored session.
func (s *MySQLStore) CountAll(ctx context.Context) (int64, error) {
	return s.count(ctx, "SELECT COUNT(*) FROM sessions")
}

// CountActive counts unexpired sessions.
func (s *MySQLStore) CountActive(ctx context.Context, now time.Time) (int64, error) {
	return s.count(ctx, "SELECT COUNT(*) FROM sessions WHERE expires_at > ?", now.UTC())
}

// Close closes the database connection.
func (s *MySQLStore) Close() error {
	return s.db.Close()
}

func (s *MySQLStore) findOne(ctx context.Context, where string, arg any) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+mysqlColumns+" FROM sessions WHERE "+where, arg)

	session, err := scanMySQLSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return session, err
}

func (s *MySQLStore) exec(ctx context.Context, op, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("mysql: failed to %s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mysql: failed to %s: %w", op, err)
	}
	return n, nil
}

func (s *MySQLStore) count(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("mysql: failed to count sessions: %w", err)
	}
	return n, nil
}

func scanMySQLSession(row rowScanner) (*Session, error) {
	var session Session
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.Token,
		&session.CreatedAt,
		&session.ExpiresAt,
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
		return nil, fmt.Errorf("mysql: failed to scan session: %w", err)
	}
	session.CreatedAt = session.CreatedAt.UTC()
	session.ExpiresAt = session.ExpiresAt.UTC()
	return &session, nil
}
