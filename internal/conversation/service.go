package conversation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mindease/backend/internal/model/chat"
)

var ErrConversationNotFound = errors.New("conversation not found")

// Service is the in-memory conversation and transcript store.
type Service struct {
	mu            sync.RWMutex
	conversations map[string]chat.Conversation
	transcripts   map[string][]chat.Message
}

// NewService bootstraps the store; conversations live for the process
// lifetime only, durable persistence is deliberately absent.
func NewService() *Service {
	return &Service{
		conversations: make(map[string]chat.Conversation),
		transcripts:   make(map[string][]chat.Message),
	}
}

// Create provisions an anonymous conversation.
func (s *Service) Create(_ context.Context) (chat.Conversation, error) {
	conv := chat.Conversation{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.conversations[conv.ID] = conv
	s.transcripts[conv.ID] = make([]chat.Message, 0, 16)
	s.mu.Unlock()

	return conv, nil
}

// Get retrieves a conversation by identifier.
func (s *Service) Get(_ context.Context, conversationID string) (chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return chat.Conversation{}, ErrConversationNotFound
	}
	return conv, nil
}

// Append adds a message to the transcript and returns the stored copy.
func (s *Service) Append(_ context.Context, message chat.Message) (chat.Message, error) {
	if message.ConversationID == "" {
		return chat.Message{}, ErrConversationNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[message.ConversationID]; !ok {
		return chat.Message{}, ErrConversationNotFound
	}

	message.ID = uuid.NewString()
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now().UTC()
	}

	s.transcripts[message.ConversationID] = append(s.transcripts[message.ConversationID], message)
	return message, nil
}

// Transcript returns a copy of the stored messages, oldest first.
func (s *Service) Transcript(_ context.Context, conversationID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, ok := s.transcripts[conversationID]
	if !ok {
		return nil, ErrConversationNotFound
	}

	copied := make([]chat.Message, len(messages))
	copy(copied, messages)
	return copied, nil
}

// Recent returns up to limit messages, newest first. Mirrors the mood
// history view of the reply service.
func (s *Service) Recent(ctx context.Context, conversationID string, limit int) ([]chat.Message, error) {
	messages, err := s.Transcript(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if limit <= 0 || limit > len(messages) {
		limit = len(messages)
	}

	recent := make([]chat.Message, 0, limit)
	for i := len(messages) - 1; i >= len(messages)-limit; i-- {
		recent = append(recent, messages[i])
	}
	return recent, nil
}
