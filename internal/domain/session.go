// Package domain contains core domain types for the counseling server.
package domain

import (
	"time"
)

// Session represents one counseling conversation between a user and a
// counselor persona. A session with ClosedAt set is terminal and accepts no
// further messages.
type Session struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	CounselorID   string     `json:"counselor_id"`
	Title         string     `json:"title,omitempty"`
	IsBookmarked  bool       `json:"is_bookmarked"`
	CreatedAt     time.Time  `json:"created_at"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`
	LastMessageAt time.Time  `json:"last_message_at"`
}

// IsClosed reports whether the session has been terminated.
func (s *Session) IsClosed() bool {
	return s.ClosedAt != nil
}

// HasTitle reports whether a title has already been assigned. Titles are
// first-write-wins: once set by the first exchange they are only changed by
// an explicit rename.
func (s *Session) HasTitle() bool {
	return s.Title != ""
}
