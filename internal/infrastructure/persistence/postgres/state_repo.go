package postgres

import (
	"context"

	"github.com/botforge/telegram-bot-factory/internal/domain/shared"
)

// StateRepository backs handlerruntime's bot_states key-value store: the
// per-bot state a declarative or built-in handler persists across messages
// via MessageContext.Runtime.LoadState/SaveState.
type StateRepository struct {
	conn *Connection
}

// NewStateRepository builds a StateRepository.
func NewStateRepository(conn *Connection) *StateRepository {
	return &StateRepository{conn: conn}
}

func (r *StateRepository) Load(ctx context.Context, botTokenID, key string) (string, bool, error) {
	var value string
	err := r.conn.QueryRow(ctx,
		`SELECT state_value FROM bot_states WHERE bot_token_id = $1 AND state_key = $2`,
		botTokenID, key).Scan(&value)
	if IsNoRows(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, shared.WrapError("handlerstate", "Load", shared.ErrExternalService, "query bot_states", err)
	}
	return value, true, nil
}

func (r *StateRepository) Save(ctx context.Context, botTokenID, key, value string) error {
	const q = `
		INSERT INTO bot_states (bot_token_id, state_key, state_value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (bot_token_id, state_key) DO UPDATE SET state_value = $3, updated_at = NOW()`

	_, err := r.conn.Exec(ctx, q, botTokenID, key, value)
	if err != nil {
		return shared.WrapError("handlerstate", "Save", shared.ErrExternalService, "upsert bot_states row", err)
	}
	return nil
}
