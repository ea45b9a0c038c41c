package postgres

import (
	"context"
	"time"

	"github.com/botforge/telegram-bot-factory/internal/domain/flow"
	"github.com/botforge/telegram-bot-factory/internal/domain/shared"
	"github.com/google/uuid"
)

// FlowRepository implements flow.Repository against bot_flows.
type FlowRepository struct {
	conn *Connection
}

// NewFlowRepository builds a FlowRepository.
func NewFlowRepository(conn *Connection) *FlowRepository {
	return &FlowRepository{conn: conn}
}

const flowColumns = `flow_id, user_id, status, final_status, stage, bot_token_id, failure_reason, created_at, updated_at`

func (r *FlowRepository) Create(ctx context.Context, f *flow.Flow) error {
	const q = `
		INSERT INTO bot_flows (flow_id, user_id, status, stage, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	if f.FlowID == "" {
		f.FlowID = uuid.New().String()
	}

	_, err := r.conn.Exec(ctx, q, f.FlowID, int64(f.UserID), string(f.Status), f.CurrentStage, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrFlowAlreadyExists
		}
		return shared.WrapError("flow", "Create", shared.ErrExternalService, "insert bot_flows row", err)
	}
	return nil
}

func scanFlow(row interface{ Scan(...interface{}) error }) (*flow.Flow, error) {
	var f flow.Flow
	var userID int64
	var status string
	var finalStatus, botTokenID, failureReason *string

	err := row.Scan(&f.FlowID, &userID, &status, &finalStatus, &f.CurrentStage,
		&botTokenID, &failureReason, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrFlowNotFound
		}
		return nil, shared.WrapError("flow", "Scan", shared.ErrExternalService, "scan bot_flows row", err)
	}

	f.UserID = shared.TelegramUserID(userID)
	f.CreatorID = f.UserID
	f.Status = flow.Status(status)
	if finalStatus != nil {
		fs := flow.FinalStatus(*finalStatus)
		f.FinalStatus = &fs
	}
	f.BotTokenID = botTokenID
	return &f, nil
}

func (r *FlowRepository) GetByFlowID(ctx context.Context, flowID string) (*flow.Flow, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+flowColumns+` FROM bot_flows WHERE flow_id = $1`, flowID)
	return scanFlow(row)
}

func (r *FlowRepository) GetOpenByUser(ctx context.Context, userID shared.TelegramUserID) (*flow.Flow, error) {
	row := r.conn.QueryRow(ctx,
		`SELECT `+flowColumns+` FROM bot_flows
		 WHERE user_id = $1 AND status NOT IN ('failed', 'cancelled', 'activated')
		 ORDER BY created_at DESC LIMIT 1`, int64(userID))
	return scanFlow(row)
}

func (r *FlowRepository) GetByBotTokenID(ctx context.Context, botTokenID string) (*flow.Flow, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+flowColumns+` FROM bot_flows WHERE bot_token_id = $1`, botTokenID)
	return scanFlow(row)
}

func (r *FlowRepository) Update(ctx context.Context, f *flow.Flow) error {
	const q = `
		UPDATE bot_flows
		SET status = $2, final_status = $3, stage = $4, bot_token_id = $5, failure_reason = $6, updated_at = $7
		WHERE flow_id = $1`

	var finalStatus, botTokenID, failureReason interface{}
	if f.FinalStatus != nil {
		finalStatus = string(*f.FinalStatus)
	}
	if f.BotTokenID != nil {
		botTokenID = *f.BotTokenID
	}

	tag, err := r.conn.Exec(ctx, q, f.FlowID, string(f.Status), finalStatus, f.CurrentStage, botTokenID, failureReason, f.UpdatedAt)
	if err != nil {
		return shared.WrapError("flow", "Update", shared.ErrExternalService, "update bot_flows row", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrFlowNotFound
	}
	return nil
}

func (r *FlowRepository) ForAnalytics(ctx context.Context, since time.Time, window string) ([]*flow.Flow, error) {
	column := "created_at"
	if window == "updated" {
		column = "updated_at"
	}

	rows, err := r.conn.Query(ctx, `SELECT `+flowColumns+` FROM bot_flows WHERE `+column+` >= $1 ORDER BY `+column, since)
	if err != nil {
		return nil, shared.WrapError("flow", "ForAnalytics", shared.ErrExternalService, "query bot_flows", err)
	}
	defer rows.Close()

	var out []*flow.Flow
	for rows.Next() {
		f, err := scanFlow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
