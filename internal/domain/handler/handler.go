// Package handler defines the Handler capability contract (§6), the
// MessageContext passed into every invocation, and the Reply sum type a
// handler may return. Both LLM-generated handlers (interpreted by
// handlerruntime.DeclarativeHandler through a HandlerDescriptor) and
// built-in Go handlers (the creation flow itself, per SPEC_FULL.md §4.4)
// implement this same interface.
package handler

import "context"

// Widget is the optional dashboard descriptor a handler may expose.
type Widget struct {
	Title  string `json:"title"`
	Value  string `json:"value"`
	Label  string `json:"label,omitempty"`
	Status string `json:"status,omitempty"` // success | warning | danger | info
	Icon   string `json:"icon,omitempty"`
}

// Reply is the sum type a handler invocation may return: nil (no reply),
// a plain string, or a structured reply with parse mode / keyboard.
type Reply struct {
	Text        string
	ParseMode   string
	ReplyMarkup interface{} // an inline keyboard markup value, opaque to this package
}

// IsEmpty reports whether the reply carries no text and should be treated
// as "no reply" by the dispatcher.
func (r *Reply) IsEmpty() bool {
	return r == nil || r.Text == ""
}

// TextReply builds a plain-text Reply.
func TextReply(text string) *Reply {
	if text == "" {
		return nil
	}
	return &Reply{Text: text}
}

// MessageContext is the read-only context passed to handle_message when its
// richest accepted signature (text, user_id, context) is used, plus the
// callable capabilities listed in §6 bound to the invoking bot/chat.
type MessageContext struct {
	BotToken      string
	ChatID        int64
	ChatType      string
	ChatTitle     string
	MessageID     int64
	UserID        int64
	Username      string
	FirstName     string
	LastName      string
	IsGroup       bool
	IsPrivate     bool
	SenderIsAdmin bool

	Runtime Runtime
}

// Runtime exposes the callable capabilities of §6's MessageContext
// (moderation helpers plus reply) and the SPEC_FULL.md §4.2 exported
// state-store API, bound to the current bot/chat/user. A concrete
// implementation is provided by internal/infrastructure/handlerruntime and
// wraps the Telegram client plus the bot_states-backed StateStore; handlers
// never talk to Telegram or persistence directly.
type Runtime interface {
	DeleteMessage(ctx context.Context, messageID int64) error
	BanUser(ctx context.Context, userID int64, untilUnix int64) error
	KickUser(ctx context.Context, userID int64) error
	MuteUser(ctx context.Context, userID int64, untilUnix int64) error
	UnmuteUser(ctx context.Context, userID int64) error
	IsAdmin(ctx context.Context, userID int64) (bool, error)
	Reply(ctx context.Context, text string) error

	LoadState(ctx context.Context, key string) (string, bool, error)
	SaveState(ctx context.Context, key, value string) error
}

// Handler is the capability contract every loaded bot implements. All three
// methods are optional in spirit: an implementation backed by a descriptor
// with no matching command returns a nil Reply rather than an error.
type Handler interface {
	// GetWidget returns the dashboard descriptor, or nil if unsupported.
	GetWidget(ctx context.Context) (*Widget, error)
	// HandleMessage handles an inbound text message.
	HandleMessage(ctx context.Context, text string, msgCtx *MessageContext) (*Reply, error)
	// HandleCallback handles an inbound callback query.
	HandleCallback(ctx context.Context, data string, msgCtx *MessageContext) (*Reply, error)
}
