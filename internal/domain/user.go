package domain

import (
	"time"
)

// User represents an anonymous per-device user of the counseling service.
type User struct {
	UserID     string    `json:"user_id"`
	Nickname   string    `json:"nickname"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
