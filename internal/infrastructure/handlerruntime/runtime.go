package handlerruntime

import (
	"context"

	"github.com/botforge/telegram-bot-factory/internal/domain/shared"
	"github.com/botforge/telegram-bot-factory/internal/infrastructure/external/telegram"
)

// StateStore is the persistence port backing LoadState/SaveState, satisfied
// by internal/infrastructure/persistence/postgres.StateRepository.
type StateStore interface {
	Load(ctx context.Context, botTokenID, key string) (string, bool, error)
	Save(ctx context.Context, botTokenID, key, value string) error
}

// TelegramRuntime implements handler.Runtime for one invocation: it binds a
// Telegram client and bot_states row to the chat/bot the inbound update
// arrived on, so a loaded handler never talks to Telegram or Postgres
// directly (§6's MessageContext.Runtime capability contract).
type TelegramRuntime struct {
	tg         *telegram.Client
	state      StateStore
	botTokenID string
	chatID     int64
}

// NewTelegramRuntime builds a Runtime bound to one chat of one bot.
func NewTelegramRuntime(tg *telegram.Client, state StateStore, botTokenID string, chatID int64) *TelegramRuntime {
	return &TelegramRuntime{tg: tg, state: state, botTokenID: botTokenID, chatID: chatID}
}

func (r *TelegramRuntime) DeleteMessage(ctx context.Context, messageID int64) error {
	if err := r.tg.DeleteMessage(ctx, r.chatID, messageID); err != nil {
		return shared.WrapError("handlerruntime", "DeleteMessage", shared.ErrExternalService, "delete message", err)
	}
	return nil
}

func (r *TelegramRuntime) BanUser(ctx context.Context, userID int64, untilUnix int64) error {
	if err := r.tg.BanUser(ctx, r.chatID, userID, untilUnix); err != nil {
		return shared.WrapError("handlerruntime", "BanUser", shared.ErrExternalService, "ban user", err)
	}
	return nil
}

func (r *TelegramRuntime) KickUser(ctx context.Context, userID int64) error {
	if err := r.tg.KickUser(ctx, r.chatID, userID); err != nil {
		return shared.WrapError("handlerruntime", "KickUser", shared.ErrExternalService, "kick user", err)
	}
	return nil
}

func (r *TelegramRuntime) MuteUser(ctx context.Context, userID int64, untilUnix int64) error {
	if err := r.tg.MuteUser(ctx, r.chatID, userID, untilUnix); err != nil {
		return shared.WrapError("handlerruntime", "MuteUser", shared.ErrExternalService, "mute user", err)
	}
	return nil
}

func (r *TelegramRuntime) UnmuteUser(ctx context.Context, userID int64) error {
	if err := r.tg.UnmuteUser(ctx, r.chatID, userID); err != nil {
		return shared.WrapError("handlerruntime", "UnmuteUser", shared.ErrExternalService, "unmute user", err)
	}
	return nil
}

func (r *TelegramRuntime) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	isAdmin, err := r.tg.IsAdmin(ctx, r.chatID, userID)
	if err != nil {
		return false, shared.WrapError("handlerruntime", "IsAdmin", shared.ErrExternalService, "check admin status", err)
	}
	return isAdmin, nil
}

func (r *TelegramRuntime) Reply(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	if _, err := r.tg.SendText(ctx, r.chatID, text); err != nil {
		return shared.WrapError("handlerruntime", "Reply", shared.ErrExternalService, "send reply", err)
	}
	return nil
}

func (r *TelegramRuntime) LoadState(ctx context.Context, key string) (string, bool, error) {
	value, ok, err := r.state.Load(ctx, r.botTokenID, key)
	if err != nil {
		return "", false, shared.WrapError("handlerruntime", "LoadState", shared.ErrExternalService, "load handler state", err)
	}
	return value, ok, nil
}

func (r *TelegramRuntime) SaveState(ctx context.Context, key, value string) error {
	if err := r.state.Save(ctx, r.botTokenID, key, value); err != nil {
		return shared.WrapError("handlerruntime", "SaveState", shared.ErrExternalService, "save handler state", err)
	}
	return nil
}
