// Package telegram implements a Telegram Bot API client.
// This package provides the wire types for webhook updates plus the
// outbound calls the bot needs: sending messages, publishing command
// menus, and managing the webhook registration itself.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the Telegram client.
type ClientConfig struct {
	// Token is the Telegram Bot API token
	Token string

	// BaseURL is the Telegram Bot API base URL (default: https://api.telegram.org)
	BaseURL string

	// Timeout is the HTTP request timeout
	Timeout time.Duration

	// RetryAttempts is the number of retry attempts for failed requests
	RetryAttempts int

	// RetryDelay is the initial delay between retries
	RetryDelay time.Duration

	// Logger for structured logging
	Logger *slog.Logger

	// Debug enables debug logging
	Debug bool
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(token string) ClientConfig {
	return ClientConfig{
		Token:         token,
		BaseURL:       "https://api.telegram.org",
		Timeout:       30 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    1 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// TELEGRAM API TYPES
// ══════════════════════════════════════════════════════════════════════════════

// Update represents a Telegram update delivered to the webhook.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	EditedMessage *Message       `json:"edited_message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

// ChatID returns the chat the update originated from, or 0.
func (u *Update) ChatID() int64 {
	switch {
	case u.Message != nil && u.Message.Chat != nil:
		return u.Message.Chat.ID
	case u.EditedMessage != nil && u.EditedMessage.Chat != nil:
		return u.EditedMessage.Chat.ID
	case u.CallbackQuery != nil && u.CallbackQuery.Message != nil && u.CallbackQuery.Message.Chat != nil:
		return u.CallbackQuery.Message.Chat.ID
	}
	return 0
}

// FromID returns the sender's user ID, or 0.
func (u *Update) FromID() int64 {
	switch {
	case u.Message != nil && u.Message.From != nil:
		return u.Message.From.ID
	case u.EditedMessage != nil && u.EditedMessage.From != nil:
		return u.EditedMessage.From.ID
	case u.CallbackQuery != nil && u.CallbackQuery.From != nil:
		return u.CallbackQuery.From.ID
	}
	return 0
}

// Message represents a Telegram message.
type Message struct {
	MessageID int64           `json:"message_id"`
	From      *User           `json:"from,omitempty"`
	Chat      *Chat           `json:"chat"`
	Date      int64           `json:"date"`
	Text      string          `json:"text,omitempty"`
	Entities  []MessageEntity `json:"entities,omitempty"`

	// Reply information
	ReplyToMessage *Message `json:"reply_to_message,omitempty"`
}

// User represents a Telegram user.
type User struct {
	ID           int64  `json:"id"`
	IsBot        bool   `json:"is_bot"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
}

// FullName returns the user's full name.
func (u *User) FullName() string {
	if u.LastName != "" {
		return u.FirstName + " " + u.LastName
	}
	return u.FirstName
}

// Chat represents a Telegram chat.
type Chat struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"`
	Title     string `json:"title,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// MessageEntity represents a message entity (command, mention, etc.).
type MessageEntity struct {
	Type   string `json:"type"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
	User   *User  `json:"user,omitempty"`
}

// CallbackQuery represents a callback query from an inline keyboard.
type CallbackQuery struct {
	ID              string   `json:"id"`
	From            *User    `json:"from"`
	Message         *Message `json:"message,omitempty"`
	InlineMessageID string   `json:"inline_message_id,omitempty"`
	Data            string   `json:"data,omitempty"`
}

// InlineKeyboardMarkup represents an inline keyboard.
type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

// InlineKeyboardButton represents a button in an inline keyboard.
type InlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
	URL          string `json:"url,omitempty"`
}

// BotCommand represents one entry of a bot command menu.
type BotCommand struct {
	Command     string `json:"command"`
	Description string `json:"description"`
}

// BotCommandScope selects which chats a command menu applies to.
type BotCommandScope struct {
	Type   string `json:"type"`
	ChatID int64  `json:"chat_id,omitempty"`
}

// ScopeDefault returns the default (all users) command scope.
func ScopeDefault() BotCommandScope {
	return BotCommandScope{Type: "default"}
}

// ScopeChat returns a command scope targeting a single chat.
func ScopeChat(chatID int64) BotCommandScope {
	return BotCommandScope{Type: "chat", ChatID: chatID}
}

// WebhookInfo describes the current webhook registration.
type WebhookInfo struct {
	URL                  string `json:"url"`
	HasCustomCertificate bool   `json:"has_custom_certificate"`
	PendingUpdateCount   int    `json:"pending_update_count"`
	LastErrorDate        int64  `json:"last_error_date,omitempty"`
	LastErrorMessage     string `json:"last_error_message,omitempty"`
}

// AllUpdateTypes lists every update type the Bot API can deliver.
// Passing it to SetWebhook requests delivery of all of them.
var AllUpdateTypes = []string{
	"message", "edited_message", "channel_post", "edited_channel_post",
	"inline_query", "chosen_inline_result", "callback_query",
	"shipping_query", "pre_checkout_query", "poll", "poll_answer",
	"my_chat_member", "chat_member", "chat_join_request",
}

// APIResponse represents a Telegram API response envelope.
type APIResponse struct {
	OK          bool                `json:"ok"`
	Result      json.RawMessage     `json:"result,omitempty"`
	Description string              `json:"description,omitempty"`
	ErrorCode   int                 `json:"error_code,omitempty"`
	Parameters  *ResponseParameters `json:"parameters,omitempty"`
}

// ResponseParameters contains additional error parameters.
type ResponseParameters struct {
	MigrateToChatID int64 `json:"migrate_to_chat_id,omitempty"`
	RetryAfter      int   `json:"retry_after,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is the Telegram Bot API client.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new Telegram client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.telegram.org"
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: config.Logger,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SENDING MESSAGES
// ══════════════════════════════════════════════════════════════════════════════

// SendMessageParams contains parameters for sending a message.
type SendMessageParams struct {
	ChatID              int64
	Text                string
	ParseMode           string // "HTML", "Markdown", "MarkdownV2"
	DisableNotification bool
	DisableWebPreview   bool
	ReplyToMessageID    int64
	ReplyMarkup         *InlineKeyboardMarkup
}

// SendMessage sends a text message.
func (c *Client) SendMessage(ctx context.Context, params SendMessageParams) (*Message, error) {
	body := map[string]interface{}{
		"chat_id": params.ChatID,
		"text":    params.Text,
	}

	if params.ParseMode != "" {
		body["parse_mode"] = params.ParseMode
	}
	if params.DisableNotification {
		body["disable_notification"] = true
	}
	if params.DisableWebPreview {
		body["disable_web_page_preview"] = true
	}
	if params.ReplyToMessageID > 0 {
		body["reply_to_message_id"] = params.ReplyToMessageID
	}
	if params.ReplyMarkup != nil {
		body["reply_markup"] = params.ReplyMarkup
	}

	var message Message
	if err := c.callAPI(ctx, "sendMessage", body, &message); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}

	return &message, nil
}

// SendText is a convenience method for sending plain text.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) (*Message, error) {
	return c.SendMessage(ctx, SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
}

// SendHTML sends an HTML-formatted message.
func (c *Client) SendHTML(ctx context.Context, chatID int64, html string) (*Message, error) {
	return c.SendMessage(ctx, SendMessageParams{
		ChatID:    chatID,
		Text:      html,
		ParseMode: "HTML",
	})
}

// SendWithKeyboard sends a message with an inline keyboard.
func (c *Client) SendWithKeyboard(ctx context.Context, chatID int64, text string, keyboard [][]InlineKeyboardButton) (*Message, error) {
	return c.SendMessage(ctx, SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
		ReplyMarkup: &InlineKeyboardMarkup{
			InlineKeyboard: keyboard,
		},
	})
}

// EditMessageText edits the text of a message.
func (c *Client) EditMessageText(ctx context.Context, chatID int64, messageID int64, text string, parseMode string, keyboard *InlineKeyboardMarkup) (*Message, error) {
	body := map[string]interface{}{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
	}

	if parseMode != "" {
		body["parse_mode"] = parseMode
	}
	if keyboard != nil {
		body["reply_markup"] = keyboard
	}

	var message Message
	if err := c.callAPI(ctx, "editMessageText", body, &message); err != nil {
		return nil, fmt.Errorf("edit message text: %w", err)
	}

	return &message, nil
}

// AnswerCallbackQuery answers a callback query.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackQueryID string, text string, showAlert bool) error {
	body := map[string]interface{}{
		"callback_query_id": callbackQueryID,
	}

	if text != "" {
		body["text"] = text
		body["show_alert"] = showAlert
	}

	var result bool
	if err := c.callAPI(ctx, "answerCallbackQuery", body, &result); err != nil {
		return fmt.Errorf("answer callback query: %w", err)
	}

	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// COMMAND MENUS
// ══════════════════════════════════════════════════════════════════════════════

// SetMyCommands publishes a command menu for the given scope.
func (c *Client) SetMyCommands(ctx context.Context, commands []BotCommand, scope BotCommandScope) error {
	body := map[string]interface{}{
		"commands": commands,
		"scope":    scope,
	}

	var result bool
	if err := c.callAPI(ctx, "setMyCommands", body, &result); err != nil {
		return fmt.Errorf("set my commands: %w", err)
	}

	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// WEBHOOK MANAGEMENT
// ══════════════════════════════════════════════════════════════════════════════

// SetWebhook registers the webhook URL with the platform. When
// dropPending is true, updates queued before this call are discarded
// so a redeploy never replays a stale backlog.
func (c *Client) SetWebhook(ctx context.Context, url string, allowedUpdates []string, dropPending bool) error {
	body := map[string]interface{}{
		"url":                  url,
		"drop_pending_updates": dropPending,
	}

	if len(allowedUpdates) > 0 {
		body["allowed_updates"] = allowedUpdates
	}

	var result bool
	if err := c.callAPI(ctx, "setWebhook", body, &result); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}

	return nil
}

// DeleteWebhook removes the webhook registration.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	var result bool
	if err := c.callAPI(ctx, "deleteWebhook", map[string]interface{}{}, &result); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}

	return nil
}

// GetWebhookInfo returns the current webhook registration.
func (c *Client) GetWebhookInfo(ctx context.Context) (*WebhookInfo, error) {
	var info WebhookInfo
	if err := c.callAPI(ctx, "getWebhookInfo", nil, &info); err != nil {
		return nil, fmt.Errorf("get webhook info: %w", err)
	}

	return &info, nil
}

// GetMe returns information about the bot.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var user User
	if err := c.callAPI(ctx, "getMe", nil, &user); err != nil {
		return nil, fmt.Errorf("get me: %w", err)
	}

	return &user, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// API CALL HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// callAPI makes a call to the Telegram Bot API with retries.
func (c *Client) callAPI(ctx context.Context, method string, body map[string]interface{}, result interface{}) error {
	var lastErr error

	for attempt := 0; attempt <= c.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			delay := c.config.RetryDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := c.doAPICall(ctx, method, body, result)
		if err == nil {
			return nil
		}

		lastErr = err

		// Don't retry on non-retryable errors
		if !c.isRetryableError(err) {
			return err
		}

		// Handle rate limiting
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(apiErr.RetryAfter) * time.Second):
			}
		}
	}

	return fmt.Errorf("api call failed after %d retries: %w", c.config.RetryAttempts, lastErr)
}

// doAPICall performs a single API call.
func (c *Client) doAPICall(ctx context.Context, method string, body map[string]interface{}, result interface{}) error {
	url := fmt.Sprintf("%s/bot%s/%s", c.config.BaseURL, c.config.Token, method)

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if c.config.Debug {
		c.logger.Debug("telegram api call", "method", method)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var apiResp APIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	if !apiResp.OK {
		apiErr := &APIError{
			Code:        apiResp.ErrorCode,
			Description: apiResp.Description,
		}
		if apiResp.Parameters != nil {
			apiErr.RetryAfter = apiResp.Parameters.RetryAfter
		}
		return apiErr
	}

	if result != nil && len(apiResp.Result) > 0 {
		if err := json.Unmarshal(apiResp.Result, result); err != nil {
			return fmt.Errorf("unmarshal result: %w", err)
		}
	}

	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// APIError represents a Telegram API error.
type APIError struct {
	Code        int
	Description string
	RetryAfter  int
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("telegram api error %d: %s", e.Code, e.Description)
}

// isRetryableError checks if an error is retryable.
func (c *Client) isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		// Rate limited - retryable
		if apiErr.Code == 429 {
			return true
		}
		// Server errors - retryable
		if apiErr.Code >= 500 {
			return true
		}
		// Client errors - generally not retryable
		if apiErr.Code >= 400 && apiErr.Code < 500 {
			return false
		}
	}

	// Network errors are retryable
	errStr := err.Error()
	return containsAny(errStr, []string{"timeout", "connection refused", "temporary", "reset"})
}

// IsChatNotFound checks if the error indicates chat not found.
func IsChatNotFound(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == 400 && containsAny(apiErr.Description, []string{
			"chat not found",
			"CHAT_NOT_FOUND",
		})
	}
	return false
}

// IsUserBlocked checks if the error indicates the user blocked the bot.
func IsUserBlocked(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == 403 || containsAny(apiErr.Description, []string{
			"bot was blocked",
			"user is deactivated",
			"BLOCKED_BY_USER",
		})
	}
	return false
}

// containsAny checks if s contains any of the substrings.
func containsAny(s string, substrings []string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// UTILITY METHODS
// ══════════════════════════════════════════════════════════════════════════════

// ExtractCommand extracts the command from a message (without the /).
func ExtractCommand(msg *Message) string {
	if msg == nil || msg.Text == "" {
		return ""
	}

	for _, entity := range msg.Entities {
		if entity.Type == "bot_command" && entity.Offset == 0 {
			// Entity offsets come from the wire; never trust them.
			if entity.Length <= 1 || entity.Length > len(msg.Text) {
				return ""
			}
			cmd := msg.Text[1:entity.Length] // Skip the /
			// Remove bot username if present (@botname)
			if at := strings.IndexByte(cmd, '@'); at >= 0 {
				return cmd[:at]
			}
			return cmd
		}
	}

	return ""
}

// ExtractCommandArgs extracts arguments after the command.
func ExtractCommandArgs(msg *Message) string {
	if msg == nil || msg.Text == "" {
		return ""
	}

	for _, entity := range msg.Entities {
		if entity.Type == "bot_command" && entity.Offset == 0 {
			if entity.Length < len(msg.Text) {
				return strings.TrimPrefix(msg.Text[entity.Length:], " ")
			}
		}
	}

	return ""
}

// IsCommand reports whether the message is a bot command.
func IsCommand(msg *Message) bool {
	return ExtractCommand(msg) != ""
}

// IsPrivateChat checks if the message is from a private chat.
func IsPrivateChat(msg *Message) bool {
	return msg != nil && msg.Chat != nil && msg.Chat.Type == "private"
}

// IsReply checks if the message replies to another message.
func IsReply(msg *Message) bool {
	return msg != nil && msg.ReplyToMessage != nil
}
