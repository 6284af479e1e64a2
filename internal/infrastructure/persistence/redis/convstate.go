// Package redis implements the Redis-backed conversation-state store.
// Conversation state maps a chat to the multi-step flow it is currently
// in; backing it with Redis lets several bot instances share the state.
// The bot falls back to an in-memory store when Redis is disabled.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds Redis connection configuration.
type Config struct {
	// Host is the Redis server hostname.
	Host string

	// Port is the Redis server port.
	Port int

	// Password is the Redis authentication password (empty if no auth).
	Password string

	// DB is the Redis database number (0-15).
	DB int

	// PoolSize is the maximum number of socket connections.
	PoolSize int

	// MinIdleConns is the minimum number of idle connections.
	MinIdleConns int

	// DialTimeout is the timeout for establishing new connections.
	DialTimeout time.Duration

	// ReadTimeout is the timeout for socket reads.
	ReadTimeout time.Duration

	// WriteTimeout is the timeout for socket writes.
	WriteTimeout time.Duration
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         6379,
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Addr returns the Redis address in "host:port" format.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrConnectionFailed is returned when the Redis connection fails.
	ErrConnectionFailed = errors.New("convstate: connection failed")

	// ErrSerialization is returned when state (de)serialization fails.
	ErrSerialization = errors.New("convstate: serialization failed")
)

// convStatePrefix namespaces conversation-state keys.
const convStatePrefix = "convstate:"

// convStateTTL bounds how long an abandoned conversation survives.
const convStateTTL = 24 * time.Hour

// ══════════════════════════════════════════════════════════════════════════════
// CONVERSATION STATE STORE
// ══════════════════════════════════════════════════════════════════════════════

// conversationState is the wire form of a stored conversation.
type conversationState struct {
	State string            `json:"state"`
	Data  map[string]string `json:"data,omitempty"`
}

// ConversationStore keeps per-chat conversation state in Redis.
type ConversationStore struct {
	client *redis.Client
}

// NewConversationStore creates a store and verifies connectivity.
func NewConversationStore(ctx context.Context, cfg Config) (*ConversationStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	return &ConversationStore{client: client}, nil
}

// Close closes the underlying Redis client.
func (s *ConversationStore) Close() error {
	return s.client.Close()
}

func convStateKey(chatID int64) string {
	return fmt.Sprintf("%s%d", convStatePrefix, chatID)
}

// Get returns the conversation state and data for a chat.
// A chat with no open conversation returns an empty state.
func (s *ConversationStore) Get(ctx context.Context, chatID int64) (string, map[string]string, error) {
	raw, err := s.client.Get(ctx, convStateKey(chatID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("convstate: get failed: %w", err)
	}

	var cs conversationState
	if err := json.Unmarshal(raw, &cs); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}

	return cs.State, cs.Data, nil
}

// Set stores the conversation state and data for a chat.
func (s *ConversationStore) Set(ctx context.Context, chatID int64, state string, data map[string]string) error {
	raw, err := json.Marshal(conversationState{State: state, Data: data})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}

	if err := s.client.Set(ctx, convStateKey(chatID), raw, convStateTTL).Err(); err != nil {
		return fmt.Errorf("convstate: set failed: %w", err)
	}

	return nil
}

// Clear removes the conversation state for a chat.
func (s *ConversationStore) Clear(ctx context.Context, chatID int64) error {
	if err := s.client.Del(ctx, convStateKey(chatID)).Err(); err != nil {
		return fmt.Errorf("convstate: clear failed: %w", err)
	}
	return nil
}
