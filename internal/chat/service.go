// Package chat runs the message exchange: store the incoming message, ask the
// model for a reply using the full conversation history, store the reply.
package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/RichardoC/convostore/internal/db"
	"github.com/RichardoC/convostore/internal/llm"
	"github.com/RichardoC/convostore/internal/models"
	"go.uber.org/zap"
)

// FallbackReply is stored as the assistant's answer when generation fails.
const FallbackReply = "Sorry, I had an error generating a response."

// ErrNotFound is returned when the target conversation does not exist.
var ErrNotFound = errors.New("conversation not found")

// Store is the part of the database the exchange needs.
type Store interface {
	GetConversation(ctx context.Context, id int64) (*models.Conversation, error)
	CreateMessage(ctx context.Context, conversationID int64, role, content string) (*models.Message, error)
	ListMessages(ctx context.Context, conversationID int64) ([]models.Message, error)
}

type Service struct {
	store  Store
	llm    llm.Generator
	logger *zap.Logger
}

func NewService(store Store, generator llm.Generator, logger *zap.Logger) *Service {
	return &Service{store: store, llm: generator, logger: logger}
}

// Exchange appends a message to the conversation and returns the stored
// assistant reply. The incoming message is committed before the model is
// called. A failed generation is logged and answered with FallbackReply.
func (s *Service) Exchange(ctx context.Context, conversationID int64, role, content string) (*models.Message, error) {
	if role == "" {
		role = models.RoleUser
	}
	log := s.logger.With(zap.Int64("conversationID", conversationID))

	if _, err := s.store.GetConversation(ctx, conversationID); err != nil {
		return nil, translate(err)
	}

	userMsg, err := s.store.CreateMessage(ctx, conversationID, role, content)
	if err != nil {
		return nil, translate(fmt.Errorf("save %s message: %w", role, err))
	}

	history, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, translate(fmt.Errorf("load history: %w", err))
	}

	res := s.llm.Generate(ctx, turns(history))
	text := res.Text
	if res.Failed() {
		log.Error("LLM generation failed, storing fallback reply",
			zap.Int64("messageID", userMsg.ID),
			zap.Int("historyLength", len(history)),
			zap.Error(res.Err))
		text = FallbackReply
	}

	reply, err := s.store.CreateMessage(ctx, conversationID, models.RoleAssistant, text)
	if err != nil {
		return nil, translate(fmt.Errorf("save assistant message: %w", err))
	}

	log.Debug("exchange complete",
		zap.Int64("userMessageID", userMsg.ID),
		zap.Int64("assistantMessageID", reply.ID),
		zap.Bool("fallback", res.Failed()))
	return reply, nil
}

func turns(history []models.Message) []llm.Turn {
	out := make([]llm.Turn, 0, len(history))
	for _, m := range history {
		out = append(out, llm.Turn{Role: m.Role, Content: m.Content})
	}
	return out
}

// translate keeps "not found" recognisable to callers and passes everything else through.
func translate(err error) error {
	if errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}
