// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import "context"

// EventLogger is the small injected collaborator §9 calls for to break the
// cycle between the creation flow handler and the persistence gateway: the
// handler constructor takes an EventLogger instead of reaching back into a
// package that would import it. internal/application/creation implements
// the flow against this interface; internal/infrastructure/persistence/postgres
// provides the concrete implementation backed by the funnel_events collection.
//
// This replaces the teacher's general-purpose EventBus/EventPublisher/
// EventSubscriber pub-sub machinery: FunnelEvent rows are written directly by
// the component that observes them, never published to subscribers, so a
// full bus is unneeded ceremony for this domain (see DESIGN.md).
type EventLogger interface {
	// LogEvent persists a funnel event, honoring the idempotency key so a
	// retried call is a no-op rather than a duplicate row.
	LogEvent(ctx context.Context, idempotencyKey, kind, flowID string, metadata map[string]interface{}) error
}
