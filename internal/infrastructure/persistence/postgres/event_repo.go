package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/botforge/telegram-bot-factory/internal/domain/event"
	"github.com/botforge/telegram-bot-factory/internal/domain/shared"
)

// EventRepository implements event.Repository against funnel_events.
type EventRepository struct {
	conn *Connection
}

// NewEventRepository builds an EventRepository.
func NewEventRepository(conn *Connection) *EventRepository {
	return &EventRepository{conn: conn}
}

// LogIfAbsent relies on the idempotency_key unique index: a conflicting
// insert is silently dropped, giving the at-most-once guarantee of §4.7.5
// without a read-then-write race.
func (r *EventRepository) LogIfAbsent(ctx context.Context, e *event.FunnelEvent) error {
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return shared.WrapError("event", "LogIfAbsent", shared.ErrInvalidInput, "marshal event metadata", err)
	}

	var flowID interface{}
	if e.FlowID != "" {
		flowID = e.FlowID
	}
	var botTokenID interface{}
	if e.BotTokenID != "" {
		botTokenID = e.BotTokenID
	}

	const q = `
		INSERT INTO funnel_events (idempotency_key, kind, user_id, flow_id, bot_token_id, metadata, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (idempotency_key) DO NOTHING`

	_, err = r.conn.Exec(ctx, q, e.EventID, string(e.EventType), e.UserID, flowID, botTokenID, metadata, e.Timestamp)
	if err != nil {
		return shared.WrapError("event", "LogIfAbsent", shared.ErrExternalService, "insert funnel_events row", err)
	}
	return nil
}

func (r *EventRepository) CountByTypeSince(ctx context.Context, kind event.Kind, since time.Time) (int, error) {
	var n int
	err := r.conn.QueryRow(ctx,
		`SELECT COUNT(*) FROM funnel_events WHERE kind = $1 AND occurred_at >= $2`, string(kind), since).Scan(&n)
	if err != nil {
		return 0, shared.WrapError("event", "CountByTypeSince", shared.ErrExternalService, "count funnel_events", err)
	}
	return n, nil
}

// TopErrorsSince implements §4.8's /funnel/errors query: the top distinct
// metadata.error values over creation_failed events, the reasons
// creation.Service's fail() closure records via logEvent.
func (r *EventRepository) TopErrorsSince(ctx context.Context, since time.Time, limit int) ([]event.ErrorCount, error) {
	const q = `
		SELECT metadata->>'error' AS error, COUNT(*) AS n
		FROM funnel_events
		WHERE kind = $1 AND occurred_at >= $2 AND metadata->>'error' IS NOT NULL
		GROUP BY metadata->>'error'
		ORDER BY n DESC
		LIMIT $3`

	rows, err := r.conn.Query(ctx, q, string(event.KindCreationFailed), since, limit)
	if err != nil {
		return nil, shared.WrapError("event", "TopErrorsSince", shared.ErrExternalService, "query funnel_events errors", err)
	}
	defer rows.Close()

	var out []event.ErrorCount
	for rows.Next() {
		var ec event.ErrorCount
		if err := rows.Scan(&ec.Error, &ec.Count); err != nil {
			return nil, shared.WrapError("event", "TopErrorsSince", shared.ErrExternalService, "scan error count row", err)
		}
		out = append(out, ec)
	}
	return out, rows.Err()
}

func (r *EventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.conn.Exec(ctx, `DELETE FROM funnel_events WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, shared.WrapError("event", "DeleteOlderThan", shared.ErrExternalService, "delete stale funnel_events", err)
	}
	return tag.RowsAffected(), nil
}

// ActionRepository implements event.ActionRepository against user_actions.
type ActionRepository struct {
	conn *Connection
}

// NewActionRepository builds an ActionRepository.
func NewActionRepository(conn *Connection) *ActionRepository {
	return &ActionRepository{conn: conn}
}

// Record inserts one best-effort action row. Details, when present, is a
// short error classification stored as error_kind (never raw chat text);
// ordinary message/callback actions leave Details empty.
func (r *ActionRepository) Record(ctx context.Context, a *event.UserAction) error {
	const q = `
		INSERT INTO user_actions (bot_token_id, user_id, action_type, error_kind, occurred_at)
		VALUES ($1, $2, $3, $4, $5)`

	var errorKind interface{}
	if a.Details != "" {
		errorKind = a.Details
	}

	_, err := r.conn.Exec(ctx, q, a.BotID, a.UserID, string(a.ActionType), errorKind, a.Timestamp)
	if err != nil {
		return shared.WrapError("event", "Record", shared.ErrExternalService, "insert user_actions row", err)
	}
	return nil
}
