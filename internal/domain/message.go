package domain

import (
	"time"
)

// SenderType identifies who produced a message turn.
type SenderType string

const (
	SenderUser SenderType = "USER"
	SenderAI   SenderType = "AI"
)

// Message is a single turn in a session's conversation history.
//
// Phase semantics: on a USER message the phase is inherited from the most
// recent AI message (or the initial phase on the first turn). On an AI
// message it is the policy-validated phase, never the raw model claim.
type Message struct {
	ID         string          `json:"id"`
	SessionID  string          `json:"session_id"`
	SenderType SenderType      `json:"sender_type"`
	Content    string          `json:"content"`
	Phase      CounselingPhase `json:"-"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Role returns the chat-completions role for this turn.
func (m *Message) Role() string {
	if m.SenderType == SenderUser {
		return "user"
	}
	return "assistant"
}
