package postgres

import (
	"context"
	"time"

	"github.com/botforge/telegram-bot-factory/internal/domain/registry"
	"github.com/botforge/telegram-bot-factory/internal/domain/shared"
	"github.com/google/uuid"
)

// RegistryRepository implements registry.Repository against bot_registry.
type RegistryRepository struct {
	conn *Connection
}

// NewRegistryRepository builds a RegistryRepository.
func NewRegistryRepository(conn *Connection) *RegistryRepository {
	return &RegistryRepository{conn: conn}
}

func (r *RegistryRepository) Create(ctx context.Context, e *registry.Entry) error {
	const q = `
		INSERT INTO bot_registry (id, bot_token, bot_token_id, handler_name, creator_user_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	if e.ID == "" {
		e.ID = uuid.New().String()
	}

	_, err := r.conn.Exec(ctx, q,
		e.ID, string(e.Token), e.BotTokenID, string(e.HandlerName), int64(e.OwnerTelegramID), string(e.Status), e.CreatedAt, e.UpdatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrBotTokenExists
		}
		return shared.WrapError("registry", "Create", shared.ErrExternalService, "insert bot_registry row", err)
	}
	return nil
}

const registryColumns = `id, bot_token, bot_token_id, handler_name, creator_user_id, status, quarantine_reason, created_at, updated_at`

func scanRegistryEntry(row interface{ Scan(...interface{}) error }) (*registry.Entry, error) {
	var e registry.Entry
	var token, handlerName, status string
	var ownerID int64
	var quarantineCause *string

	err := row.Scan(&e.ID, &token, &e.BotTokenID, &handlerName, &ownerID,
		&status, &quarantineCause, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrBotNotFound
		}
		return nil, shared.WrapError("registry", "Scan", shared.ErrExternalService, "scan bot_registry row", err)
	}

	e.Token = shared.BotToken(token)
	e.HandlerName = shared.HandlerName(handlerName)
	e.OwnerTelegramID = shared.TelegramUserID(ownerID)
	e.Status = registry.Status(status)
	if quarantineCause != nil {
		e.QuarantineCause = *quarantineCause
		if e.Status == registry.StatusQuarantined {
			e.QuarantineUntil = &e.UpdatedAt
		}
	}
	return &e, nil
}

func (r *RegistryRepository) GetByToken(ctx context.Context, token shared.BotToken) (*registry.Entry, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+registryColumns+` FROM bot_registry WHERE bot_token = $1`, string(token))
	return scanRegistryEntry(row)
}

func (r *RegistryRepository) GetByHandlerName(ctx context.Context, name shared.HandlerName) (*registry.Entry, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+registryColumns+` FROM bot_registry WHERE handler_name = $1`, string(name))
	return scanRegistryEntry(row)
}

func (r *RegistryRepository) GetByBotTokenID(ctx context.Context, botTokenID string) (*registry.Entry, error) {
	row := r.conn.QueryRow(ctx,
		`SELECT `+registryColumns+` FROM bot_registry WHERE bot_token_id = $1 AND status = 'active'`, botTokenID)
	return scanRegistryEntry(row)
}

func (r *RegistryRepository) Update(ctx context.Context, e *registry.Entry) error {
	const q = `
		UPDATE bot_registry
		SET status = $2, quarantine_reason = $3, updated_at = $4
		WHERE id = $1`

	var quarantineCause interface{}
	if e.QuarantineCause != "" {
		quarantineCause = e.QuarantineCause
	}

	tag, err := r.conn.Exec(ctx, q, e.ID, string(e.Status), quarantineCause, e.UpdatedAt)
	if err != nil {
		return shared.WrapError("registry", "Update", shared.ErrExternalService, "update bot_registry row", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrBotNotFound
	}
	return nil
}

func (r *RegistryRepository) ListActive(ctx context.Context) ([]*registry.Entry, error) {
	rows, err := r.conn.Query(ctx, `SELECT `+registryColumns+` FROM bot_registry WHERE status = 'active' ORDER BY created_at`)
	if err != nil {
		return nil, shared.WrapError("registry", "ListActive", shared.ErrExternalService, "query bot_registry", err)
	}
	defer rows.Close()

	var out []*registry.Entry
	for rows.Next() {
		e, err := scanRegistryEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *RegistryRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM bot_registry WHERE status = 'active'`).Scan(&n)
	if err != nil {
		return 0, shared.WrapError("registry", "Count", shared.ErrExternalService, "count bot_registry", err)
	}
	return n, nil
}

func (r *RegistryRepository) CountByCreatorSince(ctx context.Context, ownerID shared.TelegramUserID, since time.Time) (int, error) {
	var n int
	err := r.conn.QueryRow(ctx,
		`SELECT COUNT(*) FROM bot_registry WHERE creator_user_id = $1 AND created_at >= $2`,
		int64(ownerID), since).Scan(&n)
	if err != nil {
		return 0, shared.WrapError("registry", "CountByCreatorSince", shared.ErrExternalService, "count bot_registry", err)
	}
	return n, nil
}
