// Package flow contains the BotFlow aggregate and the §4.7 Creation Flow
// State Machine's stage/status vocabulary. The state machine logic itself
// (C7) lives in internal/application/creation; this package owns the data
// shape, the Stage Guardrail invariant, and the transition vocabulary so
// both the application layer and the postgres repository share one source
// of truth for what a legal BotFlow looks like.
package flow

import (
	"context"
	"time"

	"github.com/botforge/telegram-bot-factory/internal/domain/shared"
)

// Status is one of the BotFlow lifecycle states in §4.7's state diagram.
type Status string

const (
	StatusStarted                Status = "started"
	StatusWaitingToken           Status = "waiting_token"
	StatusWaitingDescription     Status = "waiting_description"
	StatusCreating               Status = "creating"
	StatusCreated                Status = "created"
	StatusCreatedWebhookPending  Status = "created_webhook_pending"
	StatusActivated              Status = "activated"
	StatusFailed                 Status = "failed"
	StatusCancelled              Status = "cancelled"
)

// FinalStatus is the terminal outcome recorded once a flow stops being
// in-flight; it is a strict subset of Status.
type FinalStatus string

const (
	FinalActivated FinalStatus = FinalStatus(StatusActivated)
	FinalFailed    FinalStatus = FinalStatus(StatusFailed)
	FinalCancelled FinalStatus = FinalStatus(StatusCancelled)
)

// Stage numbers per §4.7: 1 on flow start, 2 on token accepted, 3 on
// description submitted, 4 on creation success (or webhook-pending), 5 on
// activation.
const (
	StageStarted             = 1
	StageTokenAccepted       = 2
	StageDescriptionSubmitted = 3
	StageCreated             = 4
	StageActivated           = 5
)

// Flow is the BotFlow entity.
type Flow struct {
	FlowID      string
	UserID      shared.TelegramUserID
	CreatorID   shared.TelegramUserID
	Status      Status
	CurrentStage int
	BotTokenID  *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
	FinalStatus *FinalStatus
	StageTimes  map[int]time.Time
}

// New constructs a freshly started flow at stage 1.
func New(flowID string, userID shared.TelegramUserID) *Flow {
	now := time.Now().UTC()
	return &Flow{
		FlowID:       flowID,
		UserID:       userID,
		CreatorID:    userID,
		Status:       StatusStarted,
		CurrentStage: StageStarted,
		CreatedAt:    now,
		UpdatedAt:    now,
		StageTimes:   map[int]time.Time{StageStarted: now},
	}
}

// AdvanceStage applies the Stage Guardrail (§4.7): current_stage only moves
// forward. Setting a terminal failed/cancelled status bypasses the
// guardrail and may carry any stage.
func (f *Flow) AdvanceStage(status Status, stage int) {
	now := time.Now().UTC()
	terminal := status == StatusFailed || status == StatusCancelled
	if terminal || stage > f.CurrentStage {
		f.CurrentStage = stage
		if _, seen := f.StageTimes[stage]; !seen {
			if f.StageTimes == nil {
				f.StageTimes = make(map[int]time.Time)
			}
			f.StageTimes[stage] = now
		}
	}
	f.Status = status
	f.UpdatedAt = now
}

// Finish sets final_status and completed_at; idempotent if already finished
// with the same outcome.
func (f *Flow) Finish(outcome FinalStatus) {
	if f.FinalStatus != nil && *f.FinalStatus == outcome {
		return
	}
	now := time.Now().UTC()
	f.FinalStatus = &outcome
	f.CompletedAt = &now
	f.UpdatedAt = now
}

// IsInFlight reports whether the flow has not yet reached a final status.
func (f *Flow) IsInFlight() bool {
	return f.FinalStatus == nil
}

// BindToken records the accepted token's derived bot_token_id. Must only be
// called once the token has passed §4.7.1 validation.
func (f *Flow) BindToken(botTokenID string) {
	f.BotTokenID = &botTokenID
}

// Repository is the persistence port for bot_flows.
type Repository interface {
	Create(ctx context.Context, f *Flow) error
	GetByFlowID(ctx context.Context, flowID string) (*Flow, error)
	GetOpenByUser(ctx context.Context, userID shared.TelegramUserID) (*Flow, error)
	GetByBotTokenID(ctx context.Context, botTokenID string) (*Flow, error)
	Update(ctx context.Context, f *Flow) error
	// ForAnalytics returns flows whose created_at or updated_at (depending on
	// window) falls within the window for C8's aggregations.
	ForAnalytics(ctx context.Context, since time.Time, window string) ([]*Flow, error)
}
