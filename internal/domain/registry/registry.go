// Package registry contains the BotRegistryEntry aggregate: the durable
// token -> handler_name mapping C3 (Handler Registry & Cache) keeps in
// Persistence Gateway, independent of whatever is currently loaded in memory.
package registry

import (
	"context"
	"time"

	"github.com/botforge/telegram-bot-factory/internal/domain/shared"
)

// Status describes the lifecycle of a registered bot.
type Status string

const (
	StatusActive      Status = "active"
	StatusQuarantined Status = "quarantined"
	StatusDisabled    Status = "disabled"
)

// IsValid reports whether s is one of the known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusQuarantined, StatusDisabled:
		return true
	}
	return false
}

// Entry is the BotRegistryEntry entity: the durable record that a Telegram
// bot token is owned by this factory and routes to a named handler.
type Entry struct {
	ID              string
	Token           shared.BotToken
	BotTokenID      string
	HandlerName     shared.HandlerName
	OwnerTelegramID shared.TelegramUserID
	Status          Status
	QuarantineUntil *time.Time
	QuarantineCause string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewEntry constructs a new active registry entry for a freshly created bot.
func NewEntry(id string, token shared.BotToken, owner shared.TelegramUserID) (*Entry, error) {
	if !token.IsValid() {
		return nil, shared.ErrInvalidBotToken
	}
	if !owner.IsValid() {
		return nil, shared.NewDomainError("registry", "NewEntry", shared.ErrInvalidInput, "owner telegram id required")
	}
	now := time.Now().UTC()
	botTokenID := token.BotTokenID()
	return &Entry{
		ID:              id,
		Token:           token,
		BotTokenID:      botTokenID,
		HandlerName:     shared.NewHandlerName(botTokenID),
		OwnerTelegramID: owner,
		Status:          StatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Quarantine marks the entry quarantined for the given duration and cause.
// While the status is quarantined, C3 refuses to (re)load the handler and
// the dispatcher drops the update without sending a reply.
func (e *Entry) Quarantine(cause string, until time.Time) {
	e.Status = StatusQuarantined
	e.QuarantineCause = cause
	e.QuarantineUntil = &until
	e.UpdatedAt = time.Now().UTC()
}

// ClearQuarantine restores the entry to active status, used once a
// redeployed artifact has been successfully reloaded.
func (e *Entry) ClearQuarantine() {
	e.Status = StatusActive
	e.QuarantineUntil = nil
	e.QuarantineCause = ""
	e.UpdatedAt = time.Now().UTC()
}

// IsQuarantined reports whether the entry is currently under quarantine.
func (e *Entry) IsQuarantined() bool {
	if e.Status != StatusQuarantined {
		return false
	}
	if e.QuarantineUntil == nil {
		return true
	}
	return time.Now().UTC().Before(*e.QuarantineUntil)
}

// Repository is the persistence port for bot_registry, implemented by
// internal/infrastructure/persistence/postgres.
type Repository interface {
	Create(ctx context.Context, entry *Entry) error
	GetByToken(ctx context.Context, token shared.BotToken) (*Entry, error)
	GetByHandlerName(ctx context.Context, name shared.HandlerName) (*Entry, error)
	GetByBotTokenID(ctx context.Context, botTokenID string) (*Entry, error)
	Update(ctx context.Context, entry *Entry) error
	ListActive(ctx context.Context) ([]*Entry, error)
	Count(ctx context.Context) (int, error)
	// CountByCreatorSince counts registry rows owned by ownerID created at
	// or after since, for the §4.7.2 per-user creation rate limit: it counts
	// registrations, not activations, so a token that is never messaged
	// still counts against the creator who registered it.
	CountByCreatorSince(ctx context.Context, ownerID shared.TelegramUserID, since time.Time) (int, error)
}
