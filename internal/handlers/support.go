package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/session-hub/session-webhook-bot/internal/dispatch"
	"github.com/session-hub/session-webhook-bot/internal/infrastructure/external/telegram"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUPPORT REPLY PROXY (GROUP 1)
// ══════════════════════════════════════════════════════════════════════════════

// userTagPrefix marks the proxied user id inside forwarded messages so
// a support reply can be routed back.
const userTagPrefix = "#u"

// registerSupportProxy wires the support account's outbound surface:
// replying to a proxied message relays the reply to the user tagged in
// it, and "/reply <id> <text>" relays without the original message.
func registerSupportProxy(registry *dispatch.Registry, deps Deps, supportID int64) {
	registry.Register(dispatch.Handler{
		Name:  "support.reply_proxy",
		Group: GroupSupport,
		Match: supportReplyPredicate(supportID),
		Run:   replyProxyHandler(deps),
	})

	registry.Register(dispatch.Handler{
		Name:  "support.reply_command",
		Group: GroupSupport,
		Match: func(u *telegram.Update) bool {
			return u.Message != nil &&
				u.Message.From != nil &&
				u.Message.From.ID == supportID &&
				telegram.ExtractCommand(u.Message) == "reply"
		},
		Run: replyCommandHandler(deps),
	})
}

// supportReplyPredicate matches non-command reply messages sent by the
// support account.
func supportReplyPredicate(supportID int64) dispatch.Predicate {
	return func(u *telegram.Update) bool {
		return u.Message != nil &&
			u.Message.From != nil &&
			u.Message.From.ID == supportID &&
			telegram.IsReply(u.Message) &&
			!telegram.IsCommand(u.Message) &&
			u.Message.Text != ""
	}
}

func replyProxyHandler(deps Deps) dispatch.Action {
	return func(ctx context.Context, u *telegram.Update) error {
		userID, ok := taggedUserID(u.Message.ReplyToMessage.Text)
		if !ok {
			deps.Logger.Debug("support reply without user tag ignored",
				"message_id", u.Message.MessageID)
			return nil
		}

		return relaySupportText(ctx, deps, userID, u.Message.Text)
	}
}

// replyCommandHandler relays "/reply <user_id> <text>" to the given
// user without needing the original forwarded message.
func replyCommandHandler(deps Deps) dispatch.Action {
	return func(ctx context.Context, u *telegram.Update) error {
		userID, text, ok := parseReplyArgs(telegram.ExtractCommandArgs(u.Message))
		if !ok {
			_, err := deps.Client.SendText(ctx, u.ChatID(), "Usage: /reply <user_id> <text>")
			return err
		}

		return relaySupportText(ctx, deps, userID, text)
	}
}

// relaySupportText delivers a support message to a user. Unreachable
// users are logged and swallowed so the support chat is not spammed
// with delivery errors.
func relaySupportText(ctx context.Context, deps Deps, userID int64, text string) error {
	if _, err := deps.Client.SendText(ctx, userID, fmt.Sprintf("Support: %s", text)); err != nil {
		if telegram.IsUserBlocked(err) || telegram.IsChatNotFound(err) {
			deps.Logger.Warn("support reply undeliverable", "user_id", userID)
			return nil
		}
		return err
	}

	return nil
}

// parseReplyArgs splits "/reply" arguments into the target user and
// the text to relay.
func parseReplyArgs(args string) (int64, string, bool) {
	fields := strings.SplitN(strings.TrimSpace(args), " ", 2)
	if len(fields) < 2 {
		return 0, "", false
	}

	id, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || id == 0 {
		return 0, "", false
	}

	text := strings.TrimSpace(fields[1])
	if text == "" {
		return 0, "", false
	}

	return id, text, true
}

// taggedUserID extracts the user id from a "#u<id>" tag anywhere in
// the forwarded message text.
func taggedUserID(text string) (int64, bool) {
	idx := strings.Index(text, userTagPrefix)
	if idx < 0 {
		return 0, false
	}

	rest := text[idx+len(userTagPrefix):]
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}

	id, err := strconv.ParseInt(rest[:end], 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}
