package dispatch

import (
	"context"
	"sync"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONVERSATION STATE
// ══════════════════════════════════════════════════════════════════════════════

// ConversationStore tracks which multi-step flow a chat is currently
// in. The registry consults it before fan-out: an open conversation
// claims the update exclusively within its handler group.
//
// An empty state string means the chat has no open conversation.
type ConversationStore interface {
	// Get returns the current state and flow data for a chat.
	Get(ctx context.Context, chatID int64) (string, map[string]string, error)

	// Set stores the state and flow data for a chat.
	Set(ctx context.Context, chatID int64, state string, data map[string]string) error

	// Clear closes the conversation for a chat.
	Clear(ctx context.Context, chatID int64) error
}

// ─────────────────────────────────────────────────────────────────────────────
// In-memory implementation
// ─────────────────────────────────────────────────────────────────────────────

type memoryConversation struct {
	state string
	data  map[string]string
}

// MemoryConversationStore keeps conversation state in process memory.
// Suitable for single-instance deployments; multi-instance deployments
// should use the Redis-backed store instead.
type MemoryConversationStore struct {
	mu    sync.RWMutex
	chats map[int64]memoryConversation
}

// NewMemoryConversationStore creates an empty in-memory store.
func NewMemoryConversationStore() *MemoryConversationStore {
	return &MemoryConversationStore{chats: make(map[int64]memoryConversation)}
}

// Get returns the current state and flow data for a chat.
func (s *MemoryConversationStore) Get(_ context.Context, chatID int64) (string, map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chats[chatID]
	if !ok {
		return "", nil, nil
	}

	data := make(map[string]string, len(c.data))
	for k, v := range c.data {
		data[k] = v
	}
	return c.state, data, nil
}

// Set stores the state and flow data for a chat.
func (s *MemoryConversationStore) Set(_ context.Context, chatID int64, state string, data map[string]string) error {
	copied := make(map[string]string, len(data))
	for k, v := range data {
		copied[k] = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.chats[chatID] = memoryConversation{state: state, data: copied}
	return nil
}

// Clear closes the conversation for a chat.
func (s *MemoryConversationStore) Clear(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.chats, chatID)
	return nil
}
