// Package conversation holds the ConversationState shape for the creation
// flow's per-user in-memory state, backed by the Redis-TTL'd cache in
// internal/infrastructure/persistence/redis.
package conversation

import (
	"context"
	"time"

	"github.com/botforge/telegram-bot-factory/internal/domain/flow"
)

// TTL is the 10-minute inactivity window after which a conversation state
// entry is considered stale (§3, §5).
const TTL = 10 * time.Minute

// State is the in-memory per-user state for the creation flow.
type State struct {
	UserID    int64
	Status    flow.Status
	Token     string // held only between stage 2 and the end of stage 3
	FlowID    string
	LastTouch time.Time
}

// Touch refreshes LastTouch, extending the TTL.
func (s *State) Touch() {
	s.LastTouch = time.Now().UTC()
}

// Store is the cache port backing ConversationState.
type Store interface {
	Get(ctx context.Context, userID int64) (*State, bool, error)
	Save(ctx context.Context, s *State) error
	Delete(ctx context.Context, userID int64) error
}
