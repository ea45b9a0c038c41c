package handlers

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/botforge/telegram-bot-factory/internal/domain/event"
	"github.com/botforge/telegram-bot-factory/internal/domain/handler"
	"github.com/botforge/telegram-bot-factory/internal/domain/registry"
	"github.com/botforge/telegram-bot-factory/internal/domain/shared"
	"github.com/botforge/telegram-bot-factory/internal/infrastructure/external/telegram"
	"github.com/botforge/telegram-bot-factory/internal/infrastructure/handlerruntime"
	"github.com/botforge/telegram-bot-factory/internal/interface/telegram/presenter"
	"github.com/botforge/telegram-bot-factory/pkg/logger"
)

// apologyText is the fixed user-facing reply sent when a loaded handler's
// invocation raises (§4.6 step 6).
const apologyText = "Sorry, something went wrong handling your message. Please try again."

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCHER DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// HandlerSource is C3's load/lookup port, satisfied by handlercache.Cache.
type HandlerSource interface {
	Load(ctx context.Context, handlerName string) (handler.Handler, error)
	Names() []string
}

// RegistryLookup is the subset of registry.Repository the dispatcher needs
// to resolve a secondary token to its handler.
type RegistryLookup interface {
	GetByToken(ctx context.Context, token shared.BotToken) (*registry.Entry, error)
}

// ActivationProber runs §4.7.4's activation probe side-effect.
type ActivationProber interface {
	ActivationProbe(ctx context.Context, botTokenID string, senderID int64) error
}

// ActionRecorder is C1's UserAction write port.
type ActionRecorder interface {
	Record(ctx context.Context, a *event.UserAction) error
}

// ClientFactory builds a Telegram client scoped to one bot token. The
// primary bot's client is reused; tenant bots get a throwaway client per
// request, mirroring telegram.Messenger.InstallWebhook's approach.
type ClientFactory func(token string) *telegram.Client

// Dispatcher implements C6, the single `POST /{bot_token}` webhook route.
type Dispatcher struct {
	primaryToken  string
	handlers      HandlerSource
	registry      RegistryLookup
	activation    ActivationProber
	actions       ActionRecorder
	state         handlerruntime.StateStore
	newClient     ClientFactory
	primaryClient *telegram.Client
	log           *logger.Logger
}

// DispatcherDeps bundles Dispatcher's constructor arguments.
type DispatcherDeps struct {
	PrimaryToken  string
	Handlers      HandlerSource
	Registry      RegistryLookup
	Activation    ActivationProber
	Actions       ActionRecorder
	State         handlerruntime.StateStore
	PrimaryClient *telegram.Client
	Log           *logger.Logger
}

// NewDispatcher builds a Dispatcher.
func NewDispatcher(d DispatcherDeps) *Dispatcher {
	log := d.Log
	if log == nil {
		log = logger.Default()
	}
	return &Dispatcher{
		primaryToken:  d.PrimaryToken,
		handlers:      d.Handlers,
		registry:      d.Registry,
		activation:    d.Activation,
		actions:       d.Actions,
		state:         d.State,
		primaryClient: d.PrimaryClient,
		newClient: func(token string) *telegram.Client {
			return telegram.NewClient(telegram.DefaultClientConfig(token))
		},
		log: log,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCH
// ══════════════════════════════════════════════════════════════════════════════

// HandleTelegramUpdate implements handlers.WebhookHandler. Decoding failures
// and update shapes §4.6 classifies as "Other" are both swallowed: the
// caller always acknowledges with {ok: true}.
func (d *Dispatcher) HandleTelegramUpdate(ctx context.Context, botToken string, payload []byte) error {
	var update telegram.Update
	if err := json.Unmarshal(payload, &update); err != nil {
		d.log.Warn("failed to decode telegram update", logger.Err(err))
		return nil
	}

	switch {
	case update.CallbackQuery != nil:
		d.dispatchCallback(ctx, botToken, update.CallbackQuery)
	case update.Message != nil && update.Message.Text != "":
		d.dispatchMessage(ctx, botToken, update.Message)
	}
	return nil
}

func (d *Dispatcher) dispatchMessage(ctx context.Context, botToken string, msg *telegram.Message) {
	senderID, chatID := senderAndChat(msg.From, msg.Chat)

	if botToken == d.primaryToken {
		msgCtx := d.buildContext(botToken, "primary", chatID, senderID, msg.From)
		reply := d.invokeAllLoaded(ctx, func(h handler.Handler) (*handler.Reply, error) {
			return h.HandleMessage(ctx, msg.Text, msgCtx)
		})
		d.sendReply(ctx, d.primaryClient, chatID, reply)
		d.recordAction(ctx, senderID, event.ActionMessage, "primary", "")
		return
	}

	entry, err := d.registry.GetByToken(ctx, shared.BotToken(botToken))
	if err != nil {
		d.log.Info("webhook for unregistered token", logger.Err(err))
		return
	}

	if err := d.activation.ActivationProbe(ctx, entry.BotTokenID, senderID); err != nil {
		d.log.Warn("activation probe failed", logger.String("bot_token_id", entry.BotTokenID), logger.Err(err))
	}

	h, err := d.handlers.Load(ctx, string(entry.HandlerName))
	if err != nil {
		d.log.Warn("failed to load handler for webhook", logger.String("handler_name", string(entry.HandlerName)), logger.Err(err))
		return
	}

	client := d.newClient(botToken)
	msgCtx := d.buildContextWithRuntime(botToken, entry.BotTokenID, chatID, senderID, msg.From, client)

	reply, err := h.HandleMessage(ctx, msg.Text, msgCtx)
	details := ""
	if err != nil {
		d.log.Error("handler invocation failed", logger.String("handler_name", string(entry.HandlerName)), logger.Err(err))
		d.sendReply(ctx, client, chatID, handler.TextReply(apologyText))
		details = "handler_fault"
	} else {
		d.sendReply(ctx, client, chatID, reply)
	}

	d.recordAction(ctx, senderID, event.ActionMessage, entry.BotTokenID, details)
}

func (d *Dispatcher) dispatchCallback(ctx context.Context, botToken string, cb *telegram.CallbackQuery) {
	var senderID int64
	if cb.From != nil {
		senderID = cb.From.ID
	}
	var chatID int64
	if cb.Message != nil && cb.Message.Chat != nil {
		chatID = cb.Message.Chat.ID
	}

	if botToken == d.primaryToken {
		msgCtx := d.buildContext(botToken, "primary", chatID, senderID, cb.From)
		reply := d.invokeAllLoaded(ctx, func(h handler.Handler) (*handler.Reply, error) {
			return h.HandleCallback(ctx, cb.Data, msgCtx)
		})
		d.sendReply(ctx, d.primaryClient, chatID, reply)
		d.recordAction(ctx, senderID, event.ActionCallback, "primary", "")
		return
	}

	entry, err := d.registry.GetByToken(ctx, shared.BotToken(botToken))
	if err != nil {
		d.log.Info("callback webhook for unregistered token", logger.Err(err))
		return
	}

	if err := d.activation.ActivationProbe(ctx, entry.BotTokenID, senderID); err != nil {
		d.log.Warn("activation probe failed", logger.String("bot_token_id", entry.BotTokenID), logger.Err(err))
	}

	h, err := d.handlers.Load(ctx, string(entry.HandlerName))
	if err != nil {
		d.log.Warn("failed to load handler for callback webhook", logger.String("handler_name", string(entry.HandlerName)), logger.Err(err))
		return
	}

	client := d.newClient(botToken)
	msgCtx := d.buildContextWithRuntime(botToken, entry.BotTokenID, chatID, senderID, cb.From, client)

	reply, err := h.HandleCallback(ctx, cb.Data, msgCtx)
	details := ""
	if err != nil {
		d.log.Error("callback invocation failed", logger.String("handler_name", string(entry.HandlerName)), logger.Err(err))
		d.sendReply(ctx, client, chatID, handler.TextReply(apologyText))
		details = "handler_fault"
	} else {
		d.sendReply(ctx, client, chatID, reply)
	}

	d.recordAction(ctx, senderID, event.ActionCallback, entry.BotTokenID, details)
}

// invokeAllLoaded implements the primary-token resolution rule: every
// locally loaded handler is tried, in sorted name order, and the first
// non-empty reply wins. An erroring handler is logged and skipped rather
// than aborting the loop, since several built-in plugins may coexist.
func (d *Dispatcher) invokeAllLoaded(ctx context.Context, invoke func(handler.Handler) (*handler.Reply, error)) *handler.Reply {
	names := append([]string(nil), d.handlers.Names()...)
	sort.Strings(names)

	for _, name := range names {
		h, err := d.handlers.Load(ctx, name)
		if err != nil {
			continue
		}
		reply, err := invoke(h)
		if err != nil {
			d.log.Warn("built-in handler returned an error", logger.String("handler_name", name), logger.Err(err))
			continue
		}
		if !reply.IsEmpty() {
			return reply
		}
	}
	return nil
}

func (d *Dispatcher) buildContext(botToken, botTokenID string, chatID, userID int64, from *telegram.User) *handler.MessageContext {
	return &handler.MessageContext{
		BotToken: botToken,
		ChatID:   chatID,
		UserID:   userID,
		Username: usernameOf(from),
	}
}

func (d *Dispatcher) buildContextWithRuntime(botToken, botTokenID string, chatID, userID int64, from *telegram.User, client *telegram.Client) *handler.MessageContext {
	msgCtx := d.buildContext(botToken, botTokenID, chatID, userID, from)
	msgCtx.Runtime = handlerruntime.NewTelegramRuntime(client, d.state, botTokenID, chatID)
	return msgCtx
}

func (d *Dispatcher) sendReply(ctx context.Context, client *telegram.Client, chatID int64, reply *handler.Reply) {
	if reply.IsEmpty() || client == nil {
		return
	}
	if _, err := client.SendMessage(ctx, telegram.SendMessageParams{
		ChatID:      chatID,
		Text:        reply.Text,
		ParseMode:   reply.ParseMode,
		ReplyMarkup: keyboardMarkup(reply.ReplyMarkup),
	}); err != nil {
		d.log.Warn("failed to send webhook reply", logger.Err(err))
	}
}

// keyboardMarkup translates handler.Reply's opaque ReplyMarkup into the
// Telegram client's wire shape. Handlers that build their own keyboard via
// presenter.KeyboardBuilder never need to import the telegram package.
func keyboardMarkup(markup interface{}) *telegram.InlineKeyboardMarkup {
	kb, ok := markup.(*presenter.InlineKeyboard)
	if !ok || kb == nil {
		return nil
	}
	rows := kb.Build()
	out := make([][]telegram.InlineKeyboardButton, len(rows))
	for i, row := range rows {
		wireRow := make([]telegram.InlineKeyboardButton, len(row))
		for j, btn := range row {
			wireRow[j] = telegram.InlineKeyboardButton{Text: btn.Text, CallbackData: btn.CallbackData, URL: btn.URL}
		}
		out[i] = wireRow
	}
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: out}
}

// recordAction records one best-effort action row. details must be empty or
// a short error classification (e.g. "handler_fault"); it is stored as
// error_kind and must never carry raw chat text (§6).
func (d *Dispatcher) recordAction(ctx context.Context, userID int64, actionType event.ActionType, botTokenID, details string) {
	if d.actions == nil {
		return
	}
	if err := d.actions.Record(ctx, &event.UserAction{
		UserID:     userID,
		ActionType: actionType,
		BotID:      botTokenID,
		Details:    details,
	}); err != nil {
		d.log.Warn("failed to record user action", logger.Err(err))
	}
}

func senderAndChat(from *telegram.User, chat *telegram.Chat) (senderID, chatID int64) {
	if from != nil {
		senderID = from.ID
	}
	if chat != nil {
		chatID = chat.ID
	}
	return
}

func usernameOf(u *telegram.User) string {
	if u == nil {
		return ""
	}
	return u.Username
}
