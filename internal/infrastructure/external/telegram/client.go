// Package telegram implements a Telegram Bot API client: message sending,
// editing, moderation, and webhook installation. Every bot the factory
// creates (the primary bot and every tenant bot) talks to Telegram through
// one of these clients, configured with that bot's own token.
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
	"time"

	"github.com/botforge/telegram-bot-factory/pkg/circuitbreaker"
	"github.com/botforge/telegram-bot-factory/pkg/retry"
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

	// Timeout is the HTTP request timeout (§5: 10s for ordinary API calls)
	Timeout time.Duration

	// RetryAttempts is the number of retry attempts for failed requests
	RetryAttempts int

	// RetryDelay is the initial delay between retries
	RetryDelay time.Duration

	// WebhookRetrySchedule is the delay before each webhook install retry
	// (§4.5: 2s, 4s, 8s).
	WebhookRetrySchedule []time.Duration

	// WebhookInstallTimeouts is the per-attempt request timeout for each
	// webhook install try (§4.5/§5: 30s, 45s, 60s).
	WebhookInstallTimeouts []time.Duration

	// Logger for structured logging
	Logger *slog.Logger

	// Debug enables debug logging
	Debug bool
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(token string) ClientConfig {
	return ClientConfig{
		Token:                  token,
		BaseURL:                "https://api.telegram.org",
		Timeout:                10 * time.Second,
		RetryAttempts:          3,
		RetryDelay:             1 * time.Second,
		WebhookRetrySchedule:   []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second},
		WebhookInstallTimeouts: []time.Duration{30 * time.Second, 45 * time.Second, 60 * time.Second},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// WIRE TYPES
// ══════════════════════════════════════════════════════════════════════════════

// Update represents a Telegram update.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

// Message represents a Telegram message.
type Message struct {
	MessageID int64           `json:"message_id"`
	From      *User           `json:"from,omitempty"`
	Chat      *Chat           `json:"chat"`
	Text      string          `json:"text,omitempty"`
	Entities  []MessageEntity `json:"entities,omitempty"`
	Date      int64           `json:"date"`
}

// User represents a Telegram user.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// FullName returns the user's display name.
func (u *User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Chat represents a Telegram chat.
type Chat struct {
	ID    int64  `json:"id"`
	Type  string `json:"type"` // private | group | supergroup | channel
	Title string `json:"title,omitempty"`
}

// MessageEntity represents a parsed entity in a message (e.g. a bot command).
type MessageEntity struct {
	Type   string `json:"type"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
}

// CallbackQuery represents a callback query from an inline keyboard button.
type CallbackQuery struct {
	ID      string   `json:"id"`
	From    *User    `json:"from"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data,omitempty"`
}

// InlineKeyboardMarkup represents an inline keyboard.
type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

// InlineKeyboardButton represents a single inline keyboard button.
type InlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
	URL          string `json:"url,omitempty"`
}

// APIResponse is the generic Telegram Bot API envelope.
type APIResponse struct {
	OK          bool                `json:"ok"`
	Result      json.RawMessage     `json:"result,omitempty"`
	ErrorCode   int                 `json:"error_code,omitempty"`
	Description string              `json:"description,omitempty"`
	Parameters  *ResponseParameters `json:"parameters,omitempty"`
}

// ResponseParameters carries extra error context, notably rate-limit retry hints.
type ResponseParameters struct {
	RetryAfter int `json:"retry_after,omitempty"`
}

// ChatMember is the result of getChatMember, used by IsAdmin.
type ChatMember struct {
	Status string `json:"status"` // creator | administrator | member | restricted | left | kicked
	User   *User  `json:"user"`
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is the Telegram Bot API client for a single bot token.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
	breaker    *circuitbreaker.CircuitBreaker
}

// NewClient creates a new Telegram client bound to one bot token.
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
		breaker: circuitbreaker.New("telegram",
			circuitbreaker.WithFailureThreshold(5),
			circuitbreaker.WithTimeout(30*time.Second),
			circuitbreaker.WithIsFailure(func(err error) bool {
				var apiErr *APIError
				if errors.As(err, &apiErr) {
					return apiErr.Code >= 500
				}
				return err != nil
			}),
		),
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

// ══════════════════════════════════════════════════════════════════════════════
// EDITING MESSAGES
// ══════════════════════════════════════════════════════════════════════════════

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

// DeleteMessage deletes a message. Implements one leg of handler.Runtime.
func (c *Client) DeleteMessage(ctx context.Context, chatID int64, messageID int64) error {
	body := map[string]interface{}{
		"chat_id":    chatID,
		"message_id": messageID,
	}

	var result bool
	if err := c.callAPI(ctx, "deleteMessage", body, &result); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}

	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CALLBACK QUERIES
// ══════════════════════════════════════════════════════════════════════════════

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
// MODERATION (handler.Runtime)
// ══════════════════════════════════════════════════════════════════════════════

// BanUser bans a user from the chat until untilUnix (0 = permanent).
func (c *Client) BanUser(ctx context.Context, chatID, userID int64, untilUnix int64) error {
	body := map[string]interface{}{
		"chat_id": chatID,
		"user_id": userID,
	}
	if untilUnix > 0 {
		body["until_date"] = untilUnix
	}

	var result bool
	if err := c.callAPI(ctx, "banChatMember", body, &result); err != nil {
		return fmt.Errorf("ban chat member: %w", err)
	}
	return nil
}

// KickUser removes a user from the chat without banning them permanently: it
// bans then immediately unbans, Telegram's documented idiom for a plain kick.
func (c *Client) KickUser(ctx context.Context, chatID, userID int64) error {
	if err := c.BanUser(ctx, chatID, userID, 0); err != nil {
		return err
	}
	return c.UnbanUser(ctx, chatID, userID)
}

// UnbanUser lifts a ban, allowing the user to rejoin.
func (c *Client) UnbanUser(ctx context.Context, chatID, userID int64) error {
	body := map[string]interface{}{
		"chat_id":        chatID,
		"user_id":        userID,
		"only_if_banned": true,
	}

	var result bool
	if err := c.callAPI(ctx, "unbanChatMember", body, &result); err != nil {
		return fmt.Errorf("unban chat member: %w", err)
	}
	return nil
}

// MuteUser strips a user's permission to send messages until untilUnix.
func (c *Client) MuteUser(ctx context.Context, chatID, userID int64, untilUnix int64) error {
	body := map[string]interface{}{
		"chat_id": chatID,
		"user_id": userID,
		"permissions": map[string]bool{
			"can_send_messages":   false,
			"can_send_media":      false,
			"can_send_polls":      false,
			"can_send_other_messages": false,
		},
	}
	if untilUnix > 0 {
		body["until_date"] = untilUnix
	}

	var result bool
	if err := c.callAPI(ctx, "restrictChatMember", body, &result); err != nil {
		return fmt.Errorf("restrict chat member: %w", err)
	}
	return nil
}

// UnmuteUser restores a muted user's default send permissions.
func (c *Client) UnmuteUser(ctx context.Context, chatID, userID int64) error {
	body := map[string]interface{}{
		"chat_id": chatID,
		"user_id": userID,
		"permissions": map[string]bool{
			"can_send_messages":       true,
			"can_send_media":          true,
			"can_send_polls":          true,
			"can_send_other_messages": true,
		},
	}

	var result bool
	if err := c.callAPI(ctx, "restrictChatMember", body, &result); err != nil {
		return fmt.Errorf("restrict chat member: %w", err)
	}
	return nil
}

// IsAdmin reports whether userID is an administrator or creator of chatID.
func (c *Client) IsAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	body := map[string]interface{}{
		"chat_id": chatID,
		"user_id": userID,
	}

	var member ChatMember
	if err := c.callAPI(ctx, "getChatMember", body, &member); err != nil {
		return false, fmt.Errorf("get chat member: %w", err)
	}
	return member.Status == "creator" || member.Status == "administrator", nil
}

// ══════════════════════════════════════════════════════════════════════════════
// WEBHOOK MANAGEMENT
// ══════════════════════════════════════════════════════════════════════════════

// InstallWebhook points this bot's updates at url, retrying across the
// configured WebhookRetrySchedule/WebhookInstallTimeouts. With the defaults
// that is three attempts with 30/45/60s per-attempt timeouts, waiting 2s
// before the second and 4s before the third; the schedule's 8s entry is only
// reached when more install timeouts than delays are configured.
func (c *Client) InstallWebhook(ctx context.Context, url string, allowedUpdates []string) error {
	body := map[string]interface{}{"url": url}
	if len(allowedUpdates) > 0 {
		body["allowed_updates"] = allowedUpdates
	}

	attempts := len(c.config.WebhookInstallTimeouts)
	if attempts == 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := c.retryDelayFor(attempt - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		timeout := c.config.Timeout
		if attempt < len(c.config.WebhookInstallTimeouts) {
			timeout = c.config.WebhookInstallTimeouts[attempt]
		}
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)

		var result bool
		err := c.breaker.Execute(attemptCtx, func(ctx context.Context) error {
			return c.doAPICall(ctx, "setWebhook", body, &result)
		})
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if !c.isRetryableError(err) {
			return fmt.Errorf("install webhook: %w", err)
		}
	}

	return fmt.Errorf("install webhook: exhausted %d attempts: %w", attempts, lastErr)
}

func (c *Client) retryDelayFor(attempt int) time.Duration {
	if attempt < len(c.config.WebhookRetrySchedule) {
		return c.config.WebhookRetrySchedule[attempt]
	}
	if len(c.config.WebhookRetrySchedule) > 0 {
		return c.config.WebhookRetrySchedule[len(c.config.WebhookRetrySchedule)-1]
	}
	return c.config.RetryDelay
}

// DeleteWebhook removes the webhook.
func (c *Client) DeleteWebhook(ctx context.Context, dropPendingUpdates bool) error {
	body := map[string]interface{}{
		"drop_pending_updates": dropPendingUpdates,
	}

	var result bool
	if err := c.callAPI(ctx, "deleteWebhook", body, &result); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}

	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// BOT INFO
// ══════════════════════════════════════════════════════════════════════════════

// GetMe returns information about the bot, used as a cheap token-validity probe.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var user User
	if err := c.callAPI(ctx, "getMe", nil, &user); err != nil {
		return nil, fmt.Errorf("get me: %w", err)
	}

	return &user, nil
}

// GetChat returns information about a chat.
func (c *Client) GetChat(ctx context.Context, chatID int64) (*Chat, error) {
	body := map[string]interface{}{
		"chat_id": chatID,
	}

	var chat Chat
	if err := c.callAPI(ctx, "getChat", body, &chat); err != nil {
		return nil, fmt.Errorf("get chat: %w", err)
	}

	return &chat, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// KEYBOARD BUILDER
// ══════════════════════════════════════════════════════════════════════════════

// KeyboardBuilder helps build inline keyboards fluently.
type KeyboardBuilder struct {
	rows [][]InlineKeyboardButton
}

// NewKeyboard creates a new keyboard builder.
func NewKeyboard() *KeyboardBuilder {
	return &KeyboardBuilder{
		rows: make([][]InlineKeyboardButton, 0),
	}
}

// Row adds a new row of buttons.
func (kb *KeyboardBuilder) Row(buttons ...InlineKeyboardButton) *KeyboardBuilder {
	kb.rows = append(kb.rows, buttons)
	return kb
}

// Button creates a callback button.
func Button(text, callbackData string) InlineKeyboardButton {
	return InlineKeyboardButton{
		Text:         text,
		CallbackData: callbackData,
	}
}

// URLButton creates a URL button.
func URLButton(text, url string) InlineKeyboardButton {
	return InlineKeyboardButton{
		Text: text,
		URL:  url,
	}
}

// Build returns the inline keyboard markup.
func (kb *KeyboardBuilder) Build() *InlineKeyboardMarkup {
	return &InlineKeyboardMarkup{InlineKeyboard: kb.rows}
}

// ══════════════════════════════════════════════════════════════════════════════
// API CALL HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// callAPI makes a call to the Telegram Bot API, retrying transient failures
// through the circuit breaker and honouring Telegram's retry_after hint.
func (c *Client) callAPI(ctx context.Context, method string, body map[string]interface{}, result interface{}) error {
	retrier := retry.New(
		retry.WithMaxAttempts(c.config.RetryAttempts+1),
		retry.WithInitialDelay(c.config.RetryDelay),
		retry.WithRetryIf(c.isRetryableError),
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			if c.config.Debug {
				c.logger.Debug("retrying telegram api call", "method", method, "attempt", attempt, "error", err)
			}
		}),
	)

	return retrier.Do(ctx, func(ctx context.Context) error {
		err := c.breaker.Execute(ctx, func(ctx context.Context) error {
			return c.doAPICall(ctx, method, body, result)
		})
		if err == nil {
			return nil
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(apiErr.RetryAfter) * time.Second):
			}
		}

		if !c.isRetryableError(err) {
			return retry.Permanent(err)
		}
		return retry.Retryable(err)
	})
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
		if apiErr.Code == 429 {
			return true
		}
		if apiErr.Code >= 500 {
			return true
		}
		if apiErr.Code >= 400 && apiErr.Code < 500 {
			return false
		}
	}

	errStr := err.Error()
	return containsAny(errStr, []string{"timeout", "connection refused", "temporary", "reset"})
}

// containsAny checks if s contains any of the substrings.
func containsAny(s string, substrings []string) bool {
	for _, sub := range substrings {
		if containsStr(s, sub) {
			return true
		}
	}
	return false
}

// containsStr checks if s contains substr.
func containsStr(s, substr string) bool {
	return len(s) >= len(substr) && findStr(s, substr) >= 0
}

// findStr finds substr in s.
func findStr(s, substr string) int {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

// ══════════════════════════════════════════════════════════════════════════════
// UTILITY FUNCTIONS
// ══════════════════════════════════════════════════════════════════════════════

// ExtractCommand extracts the command from a message (without the /).
func ExtractCommand(msg *Message) string {
	if msg == nil || msg.Text == "" {
		return ""
	}

	for _, entity := range msg.Entities {
		if entity.Type == "bot_command" && entity.Offset == 0 {
			cmd := msg.Text[1:entity.Length]
			for i, r := range cmd {
				if r == '@' {
					return cmd[:i]
				}
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
				args := msg.Text[entity.Length:]
				if len(args) > 0 && args[0] == ' ' {
					return args[1:]
				}
				return args
			}
		}
	}

	return ""
}

// IsPrivateChat checks if the message is from a private chat.
func IsPrivateChat(msg *Message) bool {
	return msg != nil && msg.Chat != nil && msg.Chat.Type == "private"
}

// IsGroupChat checks if the message is from a group chat.
func IsGroupChat(msg *Message) bool {
	if msg == nil || msg.Chat == nil {
		return false
	}
	return msg.Chat.Type == "group" || msg.Chat.Type == "supergroup"
}
