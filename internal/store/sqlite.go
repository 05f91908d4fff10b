package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/maumtalk/counseling-server/internal/domain"
	"github.com/maumtalk/counseling-server/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		nickname TEXT NOT NULL,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS counselors (
		counselor_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		base_prompt TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		counselor_id TEXT NOT NULL,
		title TEXT,
		is_bookmarked INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		closed_at INTEGER,
		last_message_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id, last_message_at);

	CREATE TABLE IF NOT EXISTS messages (
		message_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		sender_type TEXT NOT NULL,
		content TEXT NOT NULL,
		phase TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		seq INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, nickname, last_seen_at, created_at, updated_at
		FROM users WHERE user_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID)

	var user domain.User
	var lastSeen, createdAt, updatedAt int64

	err := row.Scan(&user.UserID, &user.Nickname, &lastSeen, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.LastSeenAt = time.Unix(lastSeen, 0)
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)

	return &user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, nickname, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		nickname = excluded.nickname,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		user.UserID, user.Nickname,
		user.LastSeenAt.Unix(), user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// UpdateLastSeen updates the last_seen_at timestamp for a user.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	query := `UPDATE users SET last_seen_at = ?, updated_at = ? WHERE user_id = ?`
	result, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "user_id", userID)
	}

	return nil
}

// GetCounselor retrieves an active counselor persona by ID.
func (s *SQLiteStore) GetCounselor(ctx context.Context, counselorID string) (*domain.Counselor, error) {
	query := `
		SELECT counselor_id, name, title, description, base_prompt, is_active, created_at
		FROM counselors WHERE counselor_id = ? AND is_active = 1`

	row := s.db.QueryRowContext(ctx, query, counselorID)

	c, err := scanCounselor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan counselor row: %w", err)
	}
	return c, nil
}

// ListCounselors returns all active counselor personas.
func (s *SQLiteStore) ListCounselors(ctx context.Context) ([]*domain.Counselor, error) {
	query := `
		SELECT counselor_id, name, title, description, base_prompt, is_active, created_at
		FROM counselors WHERE is_active = 1 ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query counselors: %w", err)
	}
	defer closeRows(rows, "counselors")

	var counselors []*domain.Counselor
	for rows.Next() {
		c, err := scanCounselor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan counselor row: %w", err)
		}
		counselors = append(counselors, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counselors: %w", err)
	}
	return counselors, nil
}

// SeedCounselors inserts the given counselors if the table is empty.
func (s *SQLiteStore) SeedCounselors(ctx context.Context, counselors []*domain.Counselor) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM counselors`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count counselors: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin seed transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var inserted int64
	for _, c := range counselors {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = time.Now()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO counselors (counselor_id, name, title, description, base_prompt, is_active, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.Name, c.Title, c.Description, c.BasePrompt, c.IsActive, c.CreatedAt.Unix(),
		)
		if err != nil {
			return 0, fmt.Errorf("seed counselor %q: %w", c.Name, err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit seed transaction: %w", err)
	}
	return inserted, nil
}

// CreateSession persists a new session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.LastMessageAt.IsZero() {
		session.LastMessageAt = session.CreatedAt
	}

	query := `
	INSERT INTO sessions (session_id, user_id, counselor_id, title, is_bookmarked, created_at, closed_at, last_message_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		session.ID, session.UserID, session.CounselorID,
		nullString(session.Title), session.IsBookmarked,
		session.CreatedAt.Unix(), nullTime(session.ClosedAt), session.LastMessageAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID, enforcing ownership.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID, userID string) (*domain.Session, error) {
	query := `
		SELECT session_id, user_id, counselor_id, title, is_bookmarked, created_at, closed_at, last_message_at
		FROM sessions WHERE session_id = ? AND user_id = ?`

	row := s.db.QueryRowContext(ctx, query, sessionID, userID)

	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	return session, nil
}

// SaveSession updates mutable session fields.
func (s *SQLiteStore) SaveSession(ctx context.Context, session *domain.Session) error {
	query := `
	UPDATE sessions
	SET title = ?, is_bookmarked = ?, closed_at = ?, last_message_at = ?
	WHERE session_id = ?`

	result, err := s.execWithBusyRetry(ctx, query,
		nullString(session.Title), session.IsBookmarked,
		nullTime(session.ClosedAt), session.LastMessageAt.Unix(), session.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListSessions returns a user's sessions, most recently active first.
func (s *SQLiteStore) ListSessions(ctx context.Context, userID string, bookmarkedOnly bool) ([]*domain.Session, error) {
	query := `
		SELECT session_id, user_id, counselor_id, title, is_bookmarked, created_at, closed_at, last_message_at
		FROM sessions WHERE user_id = ?`
	args := []interface{}{userID}
	if bookmarkedOnly {
		query += ` AND is_bookmarked = 1`
	}
	query += ` ORDER BY last_message_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer closeRows(rows, "sessions")

	var sessions []*domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// SaveMessage persists a message, assigning its ID and timestamp.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *domain.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	// seq keeps conversation order stable even when two turns land within
	// the same unix second.
	query := `
	INSERT INTO messages (message_id, session_id, sender_type, content, phase, created_at, seq)
	VALUES (?, ?, ?, ?, ?, ?,
		COALESCE((SELECT MAX(seq) FROM messages WHERE session_id = ?), 0) + 1)`

	_, err := s.execWithBusyRetry(ctx, query,
		msg.ID, msg.SessionID, string(msg.SenderType), msg.Content,
		msg.Phase.String(), msg.CreatedAt.Unix(), msg.SessionID,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// CountMessages returns the number of messages stored for a session.
func (s *SQLiteStore) CountMessages(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE session_id = ?`, sessionID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

// ListMessages returns all messages of a session, oldest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string) ([]*domain.Message, error) {
	query := `
		SELECT message_id, session_id, sender_type, content, phase, created_at
		FROM messages WHERE session_id = ? ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer closeRows(rows, "messages")

	var messages []*domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// FindMostRecentAIMessage returns the latest AI message of a session.
func (s *SQLiteStore) FindMostRecentAIMessage(ctx context.Context, sessionID string) (*domain.Message, error) {
	query := `
		SELECT message_id, session_id, sender_type, content, phase, created_at
		FROM messages WHERE session_id = ? AND sender_type = ?
		ORDER BY seq DESC LIMIT 1`

	row := s.db.QueryRowContext(ctx, query, sessionID, string(domain.SenderAI))

	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan message row: %w", err)
	}
	return msg, nil
}

// execWithBusyRetry retries writes that fail with SQLITE_BUSY, with
// exponential backoff (100ms, 200ms, 400ms).
func (s *SQLiteStore) execWithBusyRetry(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	const maxRetries = 3
	baseDelay := 100 * time.Millisecond

	var result sql.Result
	var err error
	for i := 0; i < maxRetries; i++ {
		result, err = s.db.ExecContext(ctx, query, args...)
		if err == nil {
			return result, nil
		}
		if !shared.IsSQLiteConflictError(err) || i == maxRetries-1 {
			return nil, err
		}
		delay := baseDelay * time.Duration(1<<i)
		slog.Debug("write failed with SQLITE_BUSY, retrying", "attempt", i+1, "delay", delay)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCounselor(row rowScanner) (*domain.Counselor, error) {
	var c domain.Counselor
	var createdAt int64
	if err := row.Scan(&c.ID, &c.Name, &c.Title, &c.Description, &c.BasePrompt, &c.IsActive, &createdAt); err != nil {
		return nil, err
	}
	c.CreatedAt = time.Unix(createdAt, 0)
	return &c, nil
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var session domain.Session
	var title sql.NullString
	var closedAt sql.NullInt64
	var createdAt, lastMessageAt int64

	err := row.Scan(
		&session.ID, &session.UserID, &session.CounselorID, &title,
		&session.IsBookmarked, &createdAt, &closedAt, &lastMessageAt,
	)
	if err != nil {
		return nil, err
	}

	session.Title = title.String
	session.CreatedAt = time.Unix(createdAt, 0)
	session.LastMessageAt = time.Unix(lastMessageAt, 0)
	if closedAt.Valid {
		ts := time.Unix(closedAt.Int64, 0)
		session.ClosedAt = &ts
	}
	return &session, nil
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	var msg domain.Message
	var senderType, phase string
	var createdAt int64

	err := row.Scan(&msg.ID, &msg.SessionID, &senderType, &msg.Content, &phase, &createdAt)
	if err != nil {
		return nil, err
	}

	msg.SenderType = domain.SenderType(senderType)
	msg.CreatedAt = time.Unix(createdAt, 0)
	if p, ok := domain.ParsePhase(phase); ok {
		msg.Phase = p
	} else {
		slog.Warn("unknown phase in storage, defaulting to initial", "message_id", msg.ID, "phase", phase)
		msg.Phase = domain.InitialPhase
	}
	return &msg, nil
}

func closeRows(rows *sql.Rows, what string) {
	if err := rows.Close(); err != nil {
		slog.Warn("failed to close rows", "query", what, "error", err)
	}
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}
