// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/maumtalk/counseling-server/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist or is not
// visible to the requesting user.
var ErrNotFound = errors.New("record not found")

// Repository defines the interface for persisting counseling data.
type Repository interface {
	// GetUser retrieves a user by their user ID. Returns nil if absent.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// GetCounselor retrieves an active counselor persona by ID.
	// Returns ErrNotFound if absent or inactive.
	GetCounselor(ctx context.Context, counselorID string) (*domain.Counselor, error)

	// ListCounselors returns all active counselor personas.
	ListCounselors(ctx context.Context) ([]*domain.Counselor, error)

	// SeedCounselors inserts the given counselors if the table is empty.
	SeedCounselors(ctx context.Context, counselors []*domain.Counselor) (int64, error)

	// CreateSession persists a new session.
	CreateSession(ctx context.Context, session *domain.Session) error

	// GetSession retrieves a session by ID, enforcing ownership.
	// Returns ErrNotFound when the session does not exist or belongs to
	// another user.
	GetSession(ctx context.Context, sessionID, userID string) (*domain.Session, error)

	// SaveSession updates mutable session fields (title, bookmark,
	// closed_at, last_message_at).
	SaveSession(ctx context.Context, session *domain.Session) error

	// ListSessions returns a user's sessions, most recently active first.
	// When bookmarkedOnly is true only bookmarked sessions are returned.
	ListSessions(ctx context.Context, userID string, bookmarkedOnly bool) ([]*domain.Session, error)

	// SaveMessage persists a message, assigning its ID and timestamp.
	SaveMessage(ctx context.Context, msg *domain.Message) error

	// CountMessages returns the number of messages stored for a session.
	CountMessages(ctx context.Context, sessionID string) (int, error)

	// ListMessages returns all messages of a session, oldest first.
	ListMessages(ctx context.Context, sessionID string) ([]*domain.Message, error)

	// FindMostRecentAIMessage returns the latest AI-sent message of a
	// session, or nil if none exists yet.
	FindMostRecentAIMessage(ctx context.Context, sessionID string) (*domain.Message, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
