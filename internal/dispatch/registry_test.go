package dispatch

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/session-hub/session-webhook-bot/internal/infrastructure/external/telegram"
)

func textUpdate(chatID int64, text string) *telegram.Update {
	return &telegram.Update{
		UpdateID: 1,
		Message: &telegram.Message{
			MessageID: 1,
			Chat:      &telegram.Chat{ID: chatID, Type: "private"},
			Text:      text,
		},
	}
}

func matchPrefix(prefix string) Predicate {
	return func(u *telegram.Update) bool {
		return u.Message != nil && strings.HasPrefix(u.Message.Text, prefix)
	}
}

func noopAction(_ context.Context, _ *telegram.Update) error { return nil }

func TestRegistry_ResolveGroupOrder(t *testing.T) {
	r := NewRegistry(nil, nil)

	// Register out of order; resolution must still be ascending.
	r.Register(Handler{Name: "late", Group: 2, Match: matchPrefix("hello"), Run: noopAction})
	r.Register(Handler{Name: "early", Group: 0, Match: matchPrefix("hello"), Run: noopAction})

	resolved := r.Resolve(context.Background(), textUpdate(1, "hello"))

	require.Len(t, resolved, 2)
	assert.Equal(t, "early", resolved[0].Name)
	assert.Equal(t, "late", resolved[1].Name)
}

func TestRegistry_ResolveSingleMatch(t *testing.T) {
	r := NewRegistry(nil, nil)

	r.Register(Handler{Name: "admin", Group: 0, Match: matchPrefix("/admin"), Run: noopAction})
	r.Register(Handler{Name: "start", Group: 2, Match: matchPrefix("/start"), Run: noopAction})

	resolved := r.Resolve(context.Background(), textUpdate(1, "/admin"))

	require.Len(t, resolved, 1)
	assert.Equal(t, "admin", resolved[0].Name)
}

func TestRegistry_ConversationExclusivity(t *testing.T) {
	conversations := NewMemoryConversationStore()
	require.NoError(t, conversations.Set(context.Background(), 42, "awaiting_amount", nil))

	r := NewRegistry(conversations, nil)
	r.Register(Handler{Name: "text", Group: 2, Match: matchPrefix(""), Run: noopAction})
	r.Register(Handler{
		Name:         "flow",
		Group:        2,
		Conversation: true,
		Match:        matchPrefix(""),
		Run:          noopAction,
	})

	// Open conversation: the conversation handler fires alone.
	resolved := r.Resolve(context.Background(), textUpdate(42, "150"))
	require.Len(t, resolved, 1)
	assert.Equal(t, "flow", resolved[0].Name)

	// No conversation for another chat: both fire.
	resolved = r.Resolve(context.Background(), textUpdate(7, "150"))
	assert.Len(t, resolved, 2)
}

func TestRegistry_ConversationSuppressesLowerPriorityGroups(t *testing.T) {
	conversations := NewMemoryConversationStore()
	require.NoError(t, conversations.Set(context.Background(), 42, "awaiting_amount", nil))

	r := NewRegistry(conversations, nil)
	r.Register(Handler{
		Name:         "flow",
		Group:        0,
		Conversation: true,
		Match:        matchPrefix(""),
		Run:          noopAction,
	})
	r.Register(Handler{Name: "fallback", Group: 2, Match: matchPrefix(""), Run: noopAction})

	resolved := r.Resolve(context.Background(), textUpdate(42, "anything"))

	require.Len(t, resolved, 1)
	assert.Equal(t, "flow", resolved[0].Name)
}

func TestRegistry_PanickingPredicateIsNonMatching(t *testing.T) {
	r := NewRegistry(nil, nil)

	r.Register(Handler{
		Name:  "broken",
		Group: 0,
		Match: func(_ *telegram.Update) bool { panic("boom") },
		Run:   noopAction,
	})
	r.Register(Handler{Name: "healthy", Group: 0, Match: matchPrefix(""), Run: noopAction})

	resolved := r.Resolve(context.Background(), textUpdate(1, "hi"))

	require.Len(t, resolved, 1)
	assert.Equal(t, "healthy", resolved[0].Name)
}
