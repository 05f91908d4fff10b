// Package chat implements the AI-response orchestration core: the message
// exchange flow, conversation history assembly, model-output parsing, and
// the phase-progression policy.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maumtalk/counseling-server/internal/config"
	"github.com/maumtalk/counseling-server/internal/domain"
	"github.com/maumtalk/counseling-server/internal/openrouter"
	"github.com/maumtalk/counseling-server/internal/store"
)

// GatewayErrorContent is stored as the AI turn when the gateway fails hard.
// The user's message is kept and the conversation stays resumable.
const GatewayErrorContent = "죄송합니다. 일시적인 문제로 답변을 드리지 못했어요. 잠시 후 다시 말씀해 주시겠어요?"

// DefaultSessionTitle is used when neither the model nor the user text
// yields a usable title.
const DefaultSessionTitle = "새로운 상담"

var (
	// ErrEmptyMessage is returned when the user message is blank.
	ErrEmptyMessage = errors.New("message content is empty")
	// ErrSessionClosed is returned when the target session is terminal.
	ErrSessionClosed = errors.New("session already closed")
)

// Gateway is the language-model gateway consumed by the orchestrator.
type Gateway interface {
	Send(ctx context.Context, userMessage, systemPrompt string, history []openrouter.ChatMessage) (string, error)
}

// ExchangeEvent is pushed to stream subscribers after each exchange.
type ExchangeEvent struct {
	SessionID    string          `json:"session_id"`
	UserMessage  *domain.Message `json:"user_message"`
	AIMessage    *domain.Message `json:"ai_message"`
	CurrentPhase string          `json:"current_phase"`
	SessionTitle string          `json:"session_title,omitempty"`
}

// Publisher delivers exchange events to live subscribers.
type Publisher interface {
	PublishExchange(userID string, event ExchangeEvent)
}

// Result is the outcome of one message exchange.
type Result struct {
	UserMessage  *domain.Message
	AIMessage    *domain.Message
	SessionTitle string
	CurrentPhase domain.CounselingPhase
}

// Service orchestrates one message exchange per call: persist the user turn,
// build context, call the gateway, parse and validate, persist the AI turn.
type Service struct {
	repo       store.Repository
	gateway    Gateway
	parser     *Parser
	history    *HistoryBuilder
	cfg        config.ChatConfig
	transcript *Transcript
	publisher  Publisher
	logger     *slog.Logger
}

// NewService creates the message-exchange orchestrator. transcript and
// publisher may be nil.
func NewService(repo store.Repository, gateway Gateway, cfg config.ChatConfig, transcript *Transcript, publisher Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:       repo,
		gateway:    gateway,
		parser:     NewParser(cfg.TitleMaxLength, logger),
		history:    NewHistoryBuilder(repo, cfg.MaxHistoryTurns),
		cfg:        cfg,
		transcript: transcript,
		publisher:  publisher,
		logger:     logger,
	}
}

// SendMessage runs one exchange. Preconditions (non-blank text, session
// exists and is owned by userID, session open) are checked before any write.
// Once the user message is persisted, a gateway hard failure degrades to a
// stored fallback AI message instead of an error: the caller always receives
// a valid (user, AI) message pair.
func (s *Service) SendMessage(ctx context.Context, sessionID, userID, content string) (*Result, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}

	session, err := s.repo.GetSession(ctx, sessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	if session.IsClosed() {
		return nil, ErrSessionClosed
	}

	counselor, err := s.repo.GetCounselor(ctx, session.CounselorID)
	if err != nil {
		return nil, fmt.Errorf("resolve counselor: %w", err)
	}

	priorCount, err := s.repo.CountMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}
	isFirst := priorCount == 0

	priorPhase, err := s.inheritedPhase(ctx, sessionID, isFirst)
	if err != nil {
		return nil, err
	}

	userMsg := &domain.Message{
		SessionID:  sessionID,
		SenderType: domain.SenderUser,
		Content:    content,
		Phase:      priorPhase,
	}
	if err := s.repo.SaveMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("save user message: %w", err)
	}

	history, err := s.history.Build(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	messageCount := priorCount + 1
	prompt := BuildSystemPrompt(counselor, AvailablePhases(priorPhase, messageCount), isFirst)

	raw, err := s.gateway.Send(ctx, content, prompt, history)
	if err != nil {
		s.logger.Error("gateway hard failure, storing fallback reply",
			"session_id", sessionID, "error", err)
		return s.completeExchange(ctx, session, userMsg, &domain.Message{
			SessionID:  sessionID,
			SenderType: domain.SenderAI,
			Content:    GatewayErrorContent,
			Phase:      priorPhase,
		}, "", isFirst)
	}

	reply := s.parser.Parse(raw, isFirst)
	validated := ValidatePhase(priorPhase, messageCount, reply.Phase)

	s.logger.Info("exchange parsed",
		"session_id", sessionID,
		"claimed_phase", reply.Phase.String(),
		"validated_phase", validated.String(),
		"fallback", reply.Fallback)

	return s.completeExchange(ctx, session, userMsg, &domain.Message{
		SessionID:  sessionID,
		SenderType: domain.SenderAI,
		Content:    reply.Content,
		Phase:      validated,
	}, reply.Title, isFirst)
}

// inheritedPhase returns the phase a new user message is recorded under:
// the most recent AI message's phase, or the initial phase on first turn.
func (s *Service) inheritedPhase(ctx context.Context, sessionID string, isFirst bool) (domain.CounselingPhase, error) {
	if isFirst {
		return domain.InitialPhase, nil
	}
	last, err := s.repo.FindMostRecentAIMessage(ctx, sessionID)
	if err != nil {
		return domain.InitialPhase, fmt.Errorf("find last AI message: %w", err)
	}
	if last == nil {
		return domain.InitialPhase, nil
	}
	return last.Phase, nil
}

// completeExchange persists the AI turn and session metadata, then notifies
// the transcript log and live subscribers.
func (s *Service) completeExchange(ctx context.Context, session *domain.Session, userMsg, aiMsg *domain.Message, parsedTitle string, isFirst bool) (*Result, error) {
	if err := s.repo.SaveMessage(ctx, aiMsg); err != nil {
		return nil, fmt.Errorf("save AI message: %w", err)
	}

	if isFirst && !session.HasTitle() {
		session.Title = s.deriveTitle(parsedTitle, userMsg.Content)
	}
	session.LastMessageAt = time.Now()
	if err := s.repo.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}

	s.logExchange(session, userMsg, aiMsg)

	if s.publisher != nil {
		s.publisher.PublishExchange(session.UserID, ExchangeEvent{
			SessionID:    session.ID,
			UserMessage:  userMsg,
			AIMessage:    aiMsg,
			CurrentPhase: aiMsg.Phase.KoreanName(),
			SessionTitle: session.Title,
		})
	}

	return &Result{
		UserMessage:  userMsg,
		AIMessage:    aiMsg,
		SessionTitle: session.Title,
		CurrentPhase: aiMsg.Phase,
	}, nil
}

// deriveTitle picks the first-turn session title: the model's parsed title,
// else the truncated user text, else the default.
func (s *Service) deriveTitle(parsedTitle, userContent string) string {
	if parsedTitle != "" {
		return parsedTitle
	}
	trimmed := strings.TrimSpace(userContent)
	runes := []rune(trimmed)
	if len(runes) > s.cfg.TitleMaxLength {
		trimmed = string(runes[:s.cfg.TitleMaxLength])
	}
	if trimmed == "" {
		return DefaultSessionTitle
	}
	return trimmed
}

func (s *Service) logExchange(session *domain.Session, userMsg, aiMsg *domain.Message) {
	if s.transcript == nil {
		return
	}
	s.transcript.Log(TranscriptEntry{
		UserID:    session.UserID,
		SessionID: session.ID,
		Sender:    string(userMsg.SenderType),
		Phase:     userMsg.Phase.String(),
		Content:   userMsg.Content,
	})
	s.transcript.Log(TranscriptEntry{
		UserID:    session.UserID,
		SessionID: session.ID,
		Sender:    string(aiMsg.SenderType),
		Phase:     aiMsg.Phase.String(),
		Content:   aiMsg.Content,
	})
}
