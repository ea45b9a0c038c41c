package redis

import (
	"context"
	"errors"
	"time"

	"github.com/botforge/telegram-bot-factory/internal/domain/conversation"
	"github.com/botforge/telegram-bot-factory/internal/domain/flow"
)

// ConversationStore implements conversation.Store on top of the shared Cache.
type ConversationStore struct {
	cache *Cache
}

// NewConversationStore builds a ConversationStore.
func NewConversationStore(cache *Cache) *ConversationStore {
	return &ConversationStore{cache: cache}
}

type conversationRecord struct {
	UserID    int64       `json:"user_id"`
	Status    flow.Status `json:"status"`
	Token     string      `json:"token,omitempty"`
	FlowID    string      `json:"flow_id,omitempty"`
	LastTouch time.Time   `json:"last_touch"`
}

// Get returns the conversation state for a user, if present and unexpired.
func (s *ConversationStore) Get(ctx context.Context, userID int64) (*conversation.State, bool, error) {
	var rec conversationRecord
	err := s.cache.Get(ctx, ConversationKey(userID), &rec)
	if errors.Is(err, ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	return &conversation.State{
		UserID:    rec.UserID,
		Status:    rec.Status,
		Token:     rec.Token,
		FlowID:    rec.FlowID,
		LastTouch: rec.LastTouch,
	}, true, nil
}

// Save stores the conversation state, refreshing its TTL.
func (s *ConversationStore) Save(ctx context.Context, st *conversation.State) error {
	rec := conversationRecord{
		UserID:    st.UserID,
		Status:    st.Status,
		Token:     st.Token,
		FlowID:    st.FlowID,
		LastTouch: st.LastTouch,
	}
	return s.cache.Set(ctx, ConversationKey(st.UserID), rec, TTLConversationState)
}

// Delete removes the conversation state, used on cancel/completion.
func (s *ConversationStore) Delete(ctx context.Context, userID int64) error {
	return s.cache.Delete(ctx, ConversationKey(userID))
}
