package domain

import (
	"time"
)

// Counselor is an immutable persona the language model impersonates for a
// session: a display name/title plus the behavioral base prompt.
type Counselor struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	BasePrompt  string    `json:"-"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}
