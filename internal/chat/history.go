package chat

import (
	"context"
	"fmt"

	"github.com/maumtalk/counseling-server/internal/openrouter"
	"github.com/maumtalk/counseling-server/internal/store"
)

// HistoryBuilder assembles the bounded conversation context sent to the
// gateway. Read-only; it never mutates message storage.
type HistoryBuilder struct {
	repo     store.Repository
	maxTurns int
}

// NewHistoryBuilder creates a history builder returning at most maxTurns
// prior turns.
func NewHistoryBuilder(repo store.Repository, maxTurns int) *HistoryBuilder {
	return &HistoryBuilder{repo: repo, maxTurns: maxTurns}
}

// Build returns the session's prior turns oldest first, excluding the most
// recently persisted message (the user message of the in-flight exchange),
// truncated to the most recent maxTurns. Each turn is annotated with the
// phase it was recorded under so the model can see the progression.
func (b *HistoryBuilder) Build(ctx context.Context, sessionID string) ([]openrouter.ChatMessage, error) {
	messages, err := b.repo.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session history: %w", err)
	}

	if len(messages) > 0 {
		messages = messages[:len(messages)-1]
	}
	if len(messages) > b.maxTurns {
		messages = messages[len(messages)-b.maxTurns:]
	}

	history := make([]openrouter.ChatMessage, 0, len(messages))
	for _, msg := range messages {
		history = append(history, openrouter.ChatMessage{
			Role:    msg.Role(),
			Content: fmt.Sprintf("%s [단계: %s]", msg.Content, msg.Phase.KoreanName()),
		})
	}
	return history, nil
}
