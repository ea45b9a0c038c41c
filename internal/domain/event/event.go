// Package event contains the FunnelEvent and UserAction entities: the
// immutable telemetry C7 writes during the creation flow and C6 writes on
// every dispatched update, and the repository ports C8's analytics queries
// read from.
package event

import (
	"context"
	"time"
)

// Kind enumerates the funnel event types named in §4.7.5 and §4.8.
type Kind string

const (
	KindFlowStarted           Kind = "flow_started"
	KindTokenAccepted         Kind = "token_accepted"
	KindTokenAlreadyUsed      Kind = "token_already_used"
	KindDescriptionSubmitted  Kind = "description_submitted"
	KindBotCreated            Kind = "bot_created"
	KindBotCreatedWebhookPending Kind = "bot_created_webhook_pending"
	KindBotActivatedByCreator Kind = "bot_activated_by_creator"
	KindFlowCancelled         Kind = "flow_cancelled"
	KindCreationFailed        Kind = "creation_failed"
)

// FunnelEvent is an immutable record of something that happened in a flow.
type FunnelEvent struct {
	EventID    string // explicit idempotency key, e.g. "{kind}_{flow_id}"
	UserID     int64
	EventType  Kind
	FlowID     string
	BotTokenID string
	Metadata   map[string]interface{}
	Timestamp  time.Time
}

// ActionType enumerates UserAction.action_type values.
type ActionType string

const (
	ActionMessage  ActionType = "message"
	ActionCommand  ActionType = "command"
	ActionCallback ActionType = "callback"
)

// UserAction is non-funnel telemetry: one record per inbound message/callback.
// Details is empty for ordinary traffic and a short error classification
// (stored as error_kind) when the dispatched handler invocation failed; it
// must never carry raw chat text.
type UserAction struct {
	UserID     int64
	ActionType ActionType
	BotID      string // token prefix (bot_token_id)
	Details    string
	Timestamp  time.Time
}

// Repository is the persistence port for funnel_events.
type Repository interface {
	// LogIfAbsent upserts an event keyed by EventID, no-op if already present
	// (the at-most-once idempotency guarantee of §4.7.5).
	LogIfAbsent(ctx context.Context, e *FunnelEvent) error
	CountByTypeSince(ctx context.Context, kind Kind, since time.Time) (int, error)
	TopErrorsSince(ctx context.Context, since time.Time, limit int) ([]ErrorCount, error)
	// DeleteOlderThan removes events past the 90-day retention window; used
	// by the scheduled cleanup job that approximates the TTL index invariant
	// of a document store on a relational table (see DESIGN.md O2).
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ErrorCount is one row of the /funnel/errors aggregation.
type ErrorCount struct {
	Error string
	Count int
}

// ActionRepository is the persistence port for user_actions.
type ActionRepository interface {
	Record(ctx context.Context, a *UserAction) error
}
