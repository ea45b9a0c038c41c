// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// TelegramUserID represents a unique Telegram user or chat identifier.
type TelegramUserID int64

// IsValid checks if the Telegram ID is valid (positive number).
func (t TelegramUserID) IsValid() bool {
	return t > 0
}

// Int64 returns the underlying int64 value.
func (t TelegramUserID) Int64() int64 {
	return int64(t)
}

// String returns the string representation.
func (t TelegramUserID) String() string {
	return fmt.Sprintf("%d", t)
}

// NewTelegramUserID creates a new TelegramUserID with validation.
func NewTelegramUserID(id int64) (TelegramUserID, error) {
	if id <= 0 {
		return 0, NewDomainError("shared", "NewTelegramUserID", ErrInvalidID, "telegram user id must be positive")
	}
	return TelegramUserID(id), nil
}

// BotToken is a Telegram Bot API token as supplied by a creator during the
// creation flow. Validation follows §4.7.1: the token must contain a colon
// and be at least 20 characters long.
type BotToken string

// IsValid reports whether the token passes the minimal structural check the
// creation flow uses before ever calling the Telegram API with it.
func (t BotToken) IsValid() bool {
	s := string(t)
	return strings.Contains(s, ":") && len(s) >= 20
}

// BotTokenID derives the stable identifier used to key bot_registry/bot_flows:
// the prefix before the first colon, or the first 10 characters if no colon
// is present.
func (t BotToken) BotTokenID() string {
	s := string(t)
	if idx := strings.IndexByte(s, ':'); idx != -1 {
		return s[:idx]
	}
	if len(s) > 10 {
		return s[:10]
	}
	return s
}

// String returns the raw token. Callers must not log this value.
func (t BotToken) String() string {
	return string(t)
}

// NewBotToken validates and constructs a BotToken.
func NewBotToken(raw string) (BotToken, error) {
	t := BotToken(strings.TrimSpace(raw))
	if !t.IsValid() {
		return "", ErrInvalidBotToken
	}
	return t, nil
}

// HandlerName identifies a loaded handler within the registry
// (handler_name = "bot_" + bot_token_id per §4.7.3).
type HandlerName string

var handlerNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IsValid checks the handler name is a legal identifier-shaped string.
func (h HandlerName) IsValid() bool {
	return handlerNameRegex.MatchString(string(h))
}

// String returns the string representation.
func (h HandlerName) String() string {
	return string(h)
}

// NewHandlerName builds the canonical handler name for a bot_token_id.
func NewHandlerName(botTokenID string) HandlerName {
	return HandlerName("bot_" + botTokenID)
}

// IdempotencyKey is a caller-supplied or derived key used to de-duplicate
// writes (funnel events use "{kind}_{flow_id}", activation probes use
// "activation_{flow_id}").
type IdempotencyKey string

// String returns the string representation.
func (k IdempotencyKey) String() string {
	return string(k)
}

// NewEventIdempotencyKey builds the "{kind}_{flow_id}" key from §4.7.5.
func NewEventIdempotencyKey(kind, flowID string) IdempotencyKey {
	return IdempotencyKey(kind + "_" + flowID)
}

// NewActivationIdempotencyKey builds the "activation_{flow_id}" key from §4.7.4.
func NewActivationIdempotencyKey(flowID string) IdempotencyKey {
	return IdempotencyKey("activation_" + flowID)
}

// ═══════════════════════════════════════════════════════════════════════════
// TimeRange Value Object
// ═══════════════════════════════════════════════════════════════════════════

// TimeRange represents a time period, used by C8's funnel analytics queries.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// IsValid checks if the time range is valid.
func (t TimeRange) IsValid() bool {
	return !t.From.IsZero() && !t.To.IsZero() && !t.From.After(t.To)
}

// Duration returns the duration of the time range.
func (t TimeRange) Duration() time.Duration {
	return t.To.Sub(t.From)
}

// Contains checks if a time is within the range.
func (t TimeRange) Contains(tm time.Time) bool {
	return (tm.Equal(t.From) || tm.After(t.From)) && (tm.Equal(t.To) || tm.Before(t.To))
}

// NewTimeRange creates a new TimeRange with validation.
func NewTimeRange(from, to time.Time) (TimeRange, error) {
	tr := TimeRange{From: from, To: to}
	if !tr.IsValid() {
		return TimeRange{}, NewDomainError("shared", "NewTimeRange", ErrInvalidInput, "'from' must be before 'to'")
	}
	return tr, nil
}

// LastNDays returns a TimeRange for the last N days, used by the funnel
// conversion-rate query's default window.
func LastNDays(n int) TimeRange {
	now := time.Now().UTC()
	return TimeRange{
		From: now.AddDate(0, 0, -n),
		To:   now,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Pagination Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Pagination represents pagination parameters.
type Pagination struct {
	Page     int
	PageSize int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Offset returns the offset for database queries.
func (p Pagination) Offset() int {
	if p.Page <= 0 {
		return 0
	}
	return (p.Page - 1) * p.Limit()
}

// Limit returns the limit for database queries.
func (p Pagination) Limit() int {
	if p.PageSize <= 0 {
		return DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		return MaxPageSize
	}
	return p.PageSize
}

// NewPagination creates a new Pagination with defaults.
func NewPagination(page, pageSize int) Pagination {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return Pagination{Page: page, PageSize: pageSize}
}

// DefaultPagination returns default pagination.
func DefaultPagination() Pagination {
	return NewPagination(1, DefaultPageSize)
}
