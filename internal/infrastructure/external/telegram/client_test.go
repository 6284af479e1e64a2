package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func commandMessage(text string) *Message {
	cmdLen := len(text)
	if sp := indexByte(text, ' '); sp >= 0 {
		cmdLen = sp
	}
	return &Message{
		Text:     text,
		Chat:     &Chat{ID: 1, Type: "private"},
		Entities: []MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}},
	}
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func TestExtractCommand(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"/start", "start"},
		{"/start arg1 arg2", "start"},
		{"/cap@my_test_bot", "cap"},
		{"/cap@my_test_bot US", "cap"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractCommand(commandMessage(tt.text)), "text: %q", tt.text)
	}

	// Plain text has no command.
	assert.Equal(t, "", ExtractCommand(&Message{Text: "hello"}))
	assert.Equal(t, "", ExtractCommand(nil))
}

func TestExtractCommand_HostileEntityBounds(t *testing.T) {
	for _, length := range []int{0, 1, 100} {
		msg := &Message{
			Text:     "/start",
			Entities: []MessageEntity{{Type: "bot_command", Offset: 0, Length: length}},
		}
		assert.Equal(t, "", ExtractCommand(msg), "length: %d", length)
	}
}

func TestExtractCommandArgs(t *testing.T) {
	assert.Equal(t, "arg1 arg2", ExtractCommandArgs(commandMessage("/start arg1 arg2")))
	assert.Equal(t, "", ExtractCommandArgs(commandMessage("/start")))
}

func TestMessagePredicates(t *testing.T) {
	private := &Message{Chat: &Chat{ID: 1, Type: "private"}}
	group := &Message{Chat: &Chat{ID: -100, Type: "supergroup"}}

	assert.True(t, IsPrivateChat(private))
	assert.False(t, IsPrivateChat(group))
	assert.False(t, IsPrivateChat(nil))

	assert.False(t, IsReply(private))
	assert.True(t, IsReply(&Message{ReplyToMessage: private}))
}

func TestUpdateChatAndFromID(t *testing.T) {
	u := &Update{
		CallbackQuery: &CallbackQuery{
			ID:      "cb1",
			From:    &User{ID: 7},
			Message: &Message{Chat: &Chat{ID: 42}},
		},
	}

	assert.Equal(t, int64(42), u.ChatID())
	assert.Equal(t, int64(7), u.FromID())

	empty := &Update{}
	assert.Equal(t, int64(0), empty.ChatID())
	assert.Equal(t, int64(0), empty.FromID())
}

func TestUserFullName(t *testing.T) {
	assert.Equal(t, "Ada Lovelace", (&User{FirstName: "Ada", LastName: "Lovelace"}).FullName())
	assert.Equal(t, "Ada", (&User{FirstName: "Ada"}).FullName())
}

// ─────────────────────────────────────────────────────────────────────────────
// API calls
// ─────────────────────────────────────────────────────────────────────────────

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultClientConfig("test-token")
	cfg.BaseURL = srv.URL
	cfg.RetryAttempts = 0
	cfg.Timeout = 2 * time.Second

	return NewClient(cfg), srv
}

func TestSetWebhook_SendsDropPending(t *testing.T) {
	var got map[string]interface{}

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/bottest-token/setWebhook", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	})

	err := client.SetWebhook(context.Background(), "https://bot.example.com/", AllUpdateTypes, true)
	require.NoError(t, err)

	assert.Equal(t, "https://bot.example.com/", got["url"])
	assert.Equal(t, true, got["drop_pending_updates"])
	assert.NotEmpty(t, got["allowed_updates"])
}

func TestSendMessage_ReturnsMessage(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottest-token/sendMessage", r.URL.Path)
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":99,"chat":{"id":42,"type":"private"},"text":"hi"}}`))
	})

	msg, err := client.SendText(context.Background(), 42, "hi")
	require.NoError(t, err)
	assert.Equal(t, int64(99), msg.MessageID)
}

func TestAPIError_NotRetried(t *testing.T) {
	var calls int

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	})
	client.config.RetryAttempts = 3

	_, err := client.SendText(context.Background(), 42, "hi")

	require.Error(t, err)
	assert.True(t, IsChatNotFound(err))
	assert.Equal(t, 1, calls, "client errors must not be retried")
}

func TestDeleteWebhook(t *testing.T) {
	var called bool

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = r.URL.Path == "/bottest-token/deleteWebhook"
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	})

	require.NoError(t, client.DeleteWebhook(context.Background()))
	assert.True(t, called)
}
