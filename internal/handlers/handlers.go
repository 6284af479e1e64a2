// Package handlers wires the command, callback, and proxy handlers
// into the dispatch registry. Group 0 carries the admin surface,
// group 1 the support reply proxy, group 2 the user surface with its
// withdrawal conversation.
package handlers

import (
	"log/slog"
	"strconv"

	"github.com/session-hub/session-webhook-bot/internal/dispatch"
	"github.com/session-hub/session-webhook-bot/internal/domain/settings"
	"github.com/session-hub/session-webhook-bot/internal/infrastructure/external/telegram"
	"github.com/session-hub/session-webhook-bot/internal/lifecycle"
)

// Handler groups, ascending priority.
const (
	GroupAdmin   = 0
	GroupSupport = 1
	GroupUser    = 2
)

// Deps carries everything the handlers need.
type Deps struct {
	Client        *telegram.Client
	Store         settings.Store
	BotData       *dispatch.BotData
	Conversations dispatch.ConversationStore
	Logger        *slog.Logger
}

// RegisterAll registers every handler into the registry.
//
// The support reply proxy is only registered when a numeric support_id
// setting exists; without a support chat there is nothing to proxy.
func RegisterAll(registry *dispatch.Registry, deps Deps) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	registerAdminHandlers(registry, deps)

	if supportID, ok := supportChatID(deps.BotData); ok {
		registerSupportProxy(registry, deps, supportID)
	} else {
		deps.Logger.Info("support_id not configured, reply proxy disabled")
	}

	registerUserHandlers(registry, deps)
}

// supportChatID returns the configured support chat, if any.
func supportChatID(botData *dispatch.BotData) (int64, bool) {
	raw, ok := botData.Setting(lifecycle.SettingSupportID)
	if !ok {
		return 0, false
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// isCommand matches a specific /command in a private chat.
func isCommand(name string) dispatch.Predicate {
	return func(u *telegram.Update) bool {
		return u.Message != nil &&
			telegram.IsPrivateChat(u.Message) &&
			telegram.ExtractCommand(u.Message) == name
	}
}
