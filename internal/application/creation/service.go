// Package creation implements C7, the Creation Flow State Machine: the
// primary bot's conversational procedure for turning a Telegram bot token
// and a natural-language specification into a newly registered, webhook-
// installed bot. It is grounded on the teacher's saga package (the same
// Input/State/step-method shape as OnboardingSaga.Execute), generalized
// from a single linear Execute call into a set of entry points driven by
// whichever input the conversation is currently waiting on.
package creation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/botforge/telegram-bot-factory/internal/domain/conversation"
	"github.com/botforge/telegram-bot-factory/internal/domain/event"
	"github.com/botforge/telegram-bot-factory/internal/domain/flow"
	"github.com/botforge/telegram-bot-factory/internal/domain/handler"
	"github.com/botforge/telegram-bot-factory/internal/domain/registry"
	"github.com/botforge/telegram-bot-factory/internal/domain/shared"
	"github.com/botforge/telegram-bot-factory/pkg/logger"
)

// rateLimitWindow and maxRegistrationsPerWindow implement §4.7.2.
const (
	rateLimitWindow          = 24 * time.Hour
	maxRegistrationsPerWindow = 2
	minTokenLength           = 20
)

// Messenger is the subset of C5 (the Telegram client) this flow needs:
// replying to the creator and installing the freshly created bot's webhook.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string) error
	InstallWebhook(ctx context.Context, botToken, webhookURL string) error
}

// InProgressMarker implements §4.7.3 step 3's 180s double-submit guard.
type InProgressMarker interface {
	TryMark(ctx context.Context, handlerName string) (bool, error)
	Release(ctx context.Context, handlerName string) error
}

// Deps bundles every collaborator the creation flow depends on.
type Deps struct {
	Flows         flow.Repository
	Registry      registry.Repository
	Events        event.Repository
	Conversations conversation.Store
	InProgress    InProgressMarker
	Synthesiser   handler.Synthesiser
	Artifacts     handler.Store
	Messenger     Messenger
	AdminChatID   int64
	WebhookBaseURL string
	Log           *logger.Logger
}

// Service drives the §4.7 state machine for the primary bot.
type Service struct {
	flows         flow.Repository
	registry      registry.Repository
	events        event.Repository
	conversations conversation.Store
	inProgress    InProgressMarker
	synthesiser   handler.Synthesiser
	artifacts     handler.Store
	messenger     Messenger
	adminChatID   int64
	webhookBase   string
	log           *logger.Logger
}

// New builds a Service from its dependencies.
func New(d Deps) *Service {
	log := d.Log
	if log == nil {
		log = logger.Default()
	}
	return &Service{
		flows:         d.Flows,
		registry:      d.Registry,
		events:        d.Events,
		conversations: d.Conversations,
		inProgress:    d.InProgress,
		synthesiser:   d.Synthesiser,
		artifacts:     d.Artifacts,
		messenger:     d.Messenger,
		adminChatID:   d.AdminChatID,
		webhookBase:   strings.TrimRight(d.WebhookBaseURL, "/"),
		log:           log,
	}
}

func (s *Service) isAdmin(userID int64) bool {
	return s.adminChatID != 0 && userID == s.adminChatID
}

// HandleStart implements /start: reset the conversation and show the intro
// with a "Create" callback button, rendered by the caller from the returned
// reply's text (the inline keyboard itself is attached by the botplugins
// wrapper, which knows about Telegram wire types; this package stays
// transport-agnostic).
func (s *Service) HandleStart(ctx context.Context, userID int64) (*handler.Reply, error) {
	if err := s.conversations.Delete(ctx, userID); err != nil {
		s.log.Warn("failed to reset conversation on /start", logger.Int64("user_id", userID), logger.Err(err))
	}
	return handler.TextReply(
		"Welcome to the bot factory. Send /create_bot (or tap Create) to register a new Telegram bot here.",
	), nil
}

// HandleCancel implements /cancel: always resets the conversation; if a flow
// is open it is transitioned to cancelled and a flow_cancelled event logged.
func (s *Service) HandleCancel(ctx context.Context, userID int64) (*handler.Reply, error) {
	st, ok, err := s.conversations.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.conversations.Delete(ctx, userID); err != nil {
		s.log.Warn("failed to clear conversation on /cancel", logger.Int64("user_id", userID), logger.Err(err))
	}
	if !ok || st.FlowID == "" {
		return handler.TextReply("Nothing to cancel."), nil
	}

	f, err := s.flows.GetByFlowID(ctx, st.FlowID)
	if err != nil {
		if shared.IsNotFound(err) {
			return handler.TextReply("Nothing to cancel."), nil
		}
		return nil, err
	}
	if !f.IsInFlight() {
		return handler.TextReply("Nothing to cancel."), nil
	}

	f.AdvanceStage(flow.StatusCancelled, f.CurrentStage)
	f.Finish(flow.FinalCancelled)
	if err := s.flows.Update(ctx, f); err != nil {
		return nil, err
	}
	s.logEvent(ctx, event.KindFlowCancelled, f, userID, nil)

	return handler.TextReply("Creation cancelled."), nil
}

// HandleStats implements the admin-only /stats command.
func (s *Service) HandleStats(ctx context.Context, userID int64) (*handler.Reply, error) {
	if !s.isAdmin(userID) {
		return handler.TextReply("This command is admin-only."), nil
	}
	active, err := s.registry.Count(ctx)
	if err != nil {
		return nil, err
	}
	return handler.TextReply(fmt.Sprintf("Active bots: %d", active)), nil
}

// HandleCreateCommand implements /create_bot and the "Create" callback:
// enforces the §4.7.2 rate limit, opens a flow row, and transitions the
// conversation to waiting_token.
func (s *Service) HandleCreateCommand(ctx context.Context, userID int64) (*handler.Reply, error) {
	if !s.isAdmin(userID) {
		since := time.Now().UTC().Add(-rateLimitWindow)
		count, err := s.registry.CountByCreatorSince(ctx, shared.TelegramUserID(userID), since)
		if err != nil {
			return nil, err
		}
		if count >= maxRegistrationsPerWindow {
			return handler.TextReply("You've reached the limit of 2 new bots per 24 hours. Try again later."), nil
		}
	}

	f := flow.New("", shared.TelegramUserID(userID))
	if err := s.flows.Create(ctx, f); err != nil {
		return nil, err
	}

	f.AdvanceStage(flow.StatusWaitingToken, flow.StageTokenAccepted-1)
	if err := s.flows.Update(ctx, f); err != nil {
		return nil, err
	}
	s.logEvent(ctx, event.KindFlowStarted, f, userID, nil)

	if err := s.conversations.Save(ctx, &conversation.State{
		UserID:    userID,
		Status:    flow.StatusWaitingToken,
		FlowID:    f.FlowID,
		LastTouch: time.Now().UTC(),
	}); err != nil {
		return nil, err
	}

	return handler.TextReply("Send me the bot token you got from @BotFather."), nil
}

// HandleText routes free text according to the open conversation's status
// (§4.7: waiting_token validates the token, waiting_description begins
// creation). Text arriving with no open conversation is ignored (nil reply).
func (s *Service) HandleText(ctx context.Context, userID int64, text string) (*handler.Reply, error) {
	st, ok, err := s.conversations.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	switch st.Status {
	case flow.StatusWaitingToken:
		return s.handleToken(ctx, st, text)
	case flow.StatusWaitingDescription:
		return s.handleDescription(ctx, st, text)
	default:
		return nil, nil
	}
}

// handleToken implements §4.7.1.
func (s *Service) handleToken(ctx context.Context, st *conversation.State, raw string) (*handler.Reply, error) {
	token := strings.TrimSpace(raw)
	botTokenID, ok := validateTokenShape(token)
	if !ok {
		return handler.TextReply("That doesn't look like a bot token. Send the token exactly as @BotFather gave it to you, or /cancel."), nil
	}

	f, err := s.flows.GetByFlowID(ctx, st.FlowID)
	if err != nil {
		return nil, err
	}

	if existing, err := s.flows.GetByBotTokenID(ctx, botTokenID); err == nil && existing.FlowID != f.FlowID {
		f.AdvanceStage(flow.StatusFailed, f.CurrentStage)
		f.Finish(flow.FinalFailed)
		_ = s.flows.Update(ctx, f)
		s.logEvent(ctx, event.KindTokenAlreadyUsed, f, int64(f.UserID), nil)
		_ = s.conversations.Delete(ctx, int64(st.UserID))
		return handler.TextReply("That token is already registered to a bot here."), nil
	} else if err != nil && !shared.IsNotFound(err) {
		return nil, err
	}

	f.BindToken(botTokenID)
	f.AdvanceStage(flow.StatusWaitingDescription, flow.StageDescriptionSubmitted-1)
	if err := s.flows.Update(ctx, f); err != nil {
		if shared.IsConflict(err) {
			f.AdvanceStage(flow.StatusFailed, f.CurrentStage)
			f.Finish(flow.FinalFailed)
			_ = s.flows.Update(ctx, f)
			s.logEvent(ctx, event.KindTokenAlreadyUsed, f, int64(f.UserID), nil)
			_ = s.conversations.Delete(ctx, int64(st.UserID))
			return handler.TextReply("That token is already registered to a bot here."), nil
		}
		return nil, err
	}
	s.logEvent(ctx, event.KindTokenAccepted, f, int64(f.UserID), nil)

	st.Token = token
	st.Status = flow.StatusWaitingDescription
	st.Touch()
	if err := s.conversations.Save(ctx, st); err != nil {
		return nil, err
	}

	return handler.TextReply("Got it. Now describe what this bot should do."), nil
}

// validateTokenShape implements the §4.7.1 structural check.
func validateTokenShape(token string) (botTokenID string, ok bool) {
	if len(token) < minTokenLength {
		return "", false
	}
	if idx := strings.IndexByte(token, ':'); idx >= 0 {
		if idx == 0 {
			return "", false
		}
		return token[:idx], true
	}
	return "", false
}

// handleDescription treats the text as the specification and runs §4.7.3.
func (s *Service) handleDescription(ctx context.Context, st *conversation.State, text string) (*handler.Reply, error) {
	spec := strings.TrimSpace(text)
	if spec == "" {
		return handler.TextReply("Please describe what the bot should do."), nil
	}

	f, err := s.flows.GetByFlowID(ctx, st.FlowID)
	if err != nil {
		return nil, err
	}
	s.logEvent(ctx, event.KindDescriptionSubmitted, f, int64(f.UserID), nil)

	f.AdvanceStage(flow.StatusCreating, flow.StageDescriptionSubmitted)
	if err := s.flows.Update(ctx, f); err != nil {
		return nil, err
	}

	reply := s.create(ctx, f, st.Token, spec)

	_ = s.conversations.Delete(ctx, int64(st.UserID))
	return reply, nil
}

// create runs the §4.7.3 creation procedure. rawToken is the raw bot token
// the creator supplied, held only in the conversation's transient state
// (the flow row only ever persists the derived bot_token_id). Every exit
// path has already persisted the flow's terminal (or webhook-pending)
// state before returning the user-facing reply.
func (s *Service) create(ctx context.Context, f *flow.Flow, rawToken, specification string) *handler.Reply {
	botTokenID := ""
	if f.BotTokenID != nil {
		botTokenID = *f.BotTokenID
	}
	handlerName := shared.NewHandlerName(botTokenID)

	// fail marks the flow terminally failed and records the reason. adminKind,
	// when non-empty, also sends an admin notification (§4.4's provider-error
	// table, §7): it is only ever set for quota/billing/auth/5xx faults out
	// of C4, never for the creator's own mistakes or internal errors.
	fail := func(reason, adminKind string) *handler.Reply {
		f.AdvanceStage(flow.StatusFailed, f.CurrentStage)
		f.Finish(flow.FinalFailed)
		if err := s.flows.Update(ctx, f); err != nil {
			s.log.Warn("failed to persist failed flow", logger.String("flow_id", f.FlowID), logger.Err(err))
		}
		s.logEvent(ctx, event.KindCreationFailed, f, int64(f.UserID), map[string]interface{}{"error": reason})
		if adminKind != "" {
			s.notifyAdmin(ctx, adminKind, fmt.Sprintf("bot creation failed for flow %s: %s", f.FlowID, reason))
		}
		return handler.TextReply("Sorry, I couldn't create that bot: " + reason)
	}

	// Step 2: no existing registry entry or artifact for this handler name.
	if _, err := s.registry.GetByHandlerName(ctx, handlerName); err == nil {
		return fail("a bot is already registered for this token", "")
	} else if !shared.IsNotFound(err) {
		return fail("internal error checking the registry", "")
	}
	if exists, err := s.artifacts.Exists(ctx, string(handlerName)); err != nil {
		return fail("internal error checking the artifact store", "")
	} else if exists {
		return fail("a handler already exists for this token", "")
	}

	// Step 3: squash double submission.
	marked, err := s.inProgress.TryMark(ctx, string(handlerName))
	if err != nil {
		return fail("internal error", "")
	}
	if !marked {
		return handler.TextReply("This bot is already being created, hang on.")
	}
	defer func() {
		if err := s.inProgress.Release(ctx, string(handlerName)); err != nil {
			s.log.Warn("failed to release in-progress mark", logger.String("handler_name", string(handlerName)), logger.Err(err))
		}
	}()

	// Step 4: synthesise source via C4.
	source, err := s.synthesiser.Synthesise(ctx, string(handlerName), specification)
	if err != nil {
		return fail(classifySynthesisFailure(err))
	}

	// Step 5: write the source to the artifact store via C2.
	if _, err := s.artifacts.Create(ctx, string(handlerName), source); err != nil {
		return fail("could not store the generated handler", "")
	}

	// Step 6: register the token via C3.
	entry, err := registry.NewEntry("", shared.BotToken(rawToken), f.UserID)
	if err != nil {
		return fail("invalid token", "")
	}
	if err := s.registry.Create(ctx, entry); err != nil {
		return fail("could not register the bot", "")
	}

	// Step 7: install the webhook via C5.
	webhookURL := fmt.Sprintf("%s/%s", s.webhookBase, rawToken)
	if err := s.messenger.InstallWebhook(ctx, rawToken, webhookURL); err != nil {
		f.AdvanceStage(flow.StatusCreatedWebhookPending, flow.StageCreated)
		if uErr := s.flows.Update(ctx, f); uErr != nil {
			s.log.Warn("failed to persist webhook-pending flow", logger.String("flow_id", f.FlowID), logger.Err(uErr))
		}
		s.logEvent(ctx, event.KindBotCreatedWebhookPending, f, int64(f.UserID), nil)
		return handler.TextReply("Your bot is created. Webhook installation will be retried on the next deployment restart.")
	}

	// Step 8: full success.
	f.AdvanceStage(flow.StatusCreated, flow.StageCreated)
	if err := s.flows.Update(ctx, f); err != nil {
		s.log.Warn("failed to persist created flow", logger.String("flow_id", f.FlowID), logger.Err(err))
	}
	s.logEvent(ctx, event.KindBotCreated, f, int64(f.UserID), nil)

	return handler.TextReply("Your bot is live! Send it a message to finish activating it.")
}

// classifySynthesisFailure maps a C4 error onto a short user-facing reason
// and, for provider-side faults, the admin-notification kind §4.4's table
// assigns it. adminKind is empty for failures that are not the provider's
// fault (policy rejection, malformed output, internal errors).
func classifySynthesisFailure(err error) (reason, adminKind string) {
	switch {
	case shared.IsAuthFailure(err):
		return "the bot builder hit an auth error talking to its provider", "api_error"
	case shared.IsQuotaExceeded(err):
		return "the bot builder is over capacity right now, try again later", "quota"
	case errors.Is(err, shared.ErrSynthesisMalformed):
		return "the bot builder's provider returned no usable code", ""
	case shared.IsPolicyRejection(err):
		return "the generated handler failed a safety check", ""
	case shared.IsExternalService(err):
		return "the bot builder is temporarily unavailable", "api_error"
	default:
		return "the bot builder failed", ""
	}
}

// notifyAdmin sends a provider-fault alert to the configured admin chat
// (§7); a no-op when ADMIN_CHAT_ID is unset.
func (s *Service) notifyAdmin(ctx context.Context, kind, detail string) {
	if s.adminChatID == 0 {
		return
	}
	text := fmt.Sprintf("[alert kind=%s] %s", kind, detail)
	if err := s.messenger.SendText(ctx, s.adminChatID, text); err != nil {
		s.log.Warn("failed to send admin notification", logger.String("kind", kind), logger.Err(err))
	}
}

// ActivationProbe implements §4.7.4: the first update on a secondary token
// from its creator flips the flow to activated.
func (s *Service) ActivationProbe(ctx context.Context, botTokenID string, senderID int64) error {
	f, err := s.flows.GetByBotTokenID(ctx, botTokenID)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil
		}
		return err
	}
	if int64(f.CreatorID) != senderID {
		return nil
	}
	if f.Status == flow.StatusActivated {
		return nil
	}

	f.AdvanceStage(flow.StatusActivated, flow.StageActivated)
	if err := s.flows.Update(ctx, f); err != nil {
		return err
	}
	s.logEvent(ctx, event.KindBotActivatedByCreator, f, senderID, nil)
	return nil
}

// logEvent writes a FunnelEvent with the §4.7.5 idempotency key, logging
// (not propagating) a failure: telemetry must never block the conversation.
func (s *Service) logEvent(ctx context.Context, kind event.Kind, f *flow.Flow, userID int64, metadata map[string]interface{}) {
	botTokenID := ""
	if f.BotTokenID != nil {
		botTokenID = *f.BotTokenID
	}
	idempotencyKey := fmt.Sprintf("%s_%s", kind, f.FlowID)
	if kind == event.KindBotActivatedByCreator {
		idempotencyKey = fmt.Sprintf("activation_%s", f.FlowID)
	}

	e := &event.FunnelEvent{
		EventID:    idempotencyKey,
		UserID:     userID,
		EventType:  kind,
		FlowID:     f.FlowID,
		BotTokenID: botTokenID,
		Metadata:   metadata,
		Timestamp:  time.Now().UTC(),
	}
	if err := s.events.LogIfAbsent(ctx, e); err != nil {
		s.log.Warn("failed to log funnel event", logger.String("kind", string(kind)), logger.String("flow_id", f.FlowID), logger.Err(err))
	}
}
