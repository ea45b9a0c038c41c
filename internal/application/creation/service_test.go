package creation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botforge/telegram-bot-factory/internal/domain/conversation"
	"github.com/botforge/telegram-bot-factory/internal/domain/event"
	"github.com/botforge/telegram-bot-factory/internal/domain/flow"
	"github.com/botforge/telegram-bot-factory/internal/domain/handler"
	"github.com/botforge/telegram-bot-factory/internal/domain/registry"
	"github.com/botforge/telegram-bot-factory/internal/domain/shared"
)

// --- in-memory fakes ---

type fakeFlows struct {
	byID map[string]*flow.Flow
}

func newFakeFlows() *fakeFlows { return &fakeFlows{byID: map[string]*flow.Flow{}} }

func (f *fakeFlows) Create(ctx context.Context, fl *flow.Flow) error {
	if fl.FlowID == "" {
		fl.FlowID = "flow-1"
	}
	f.byID[fl.FlowID] = fl
	return nil
}
func (f *fakeFlows) GetByFlowID(ctx context.Context, flowID string) (*flow.Flow, error) {
	fl, ok := f.byID[flowID]
	if !ok {
		return nil, shared.ErrFlowNotFound
	}
	return fl, nil
}
func (f *fakeFlows) GetOpenByUser(ctx context.Context, userID shared.TelegramUserID) (*flow.Flow, error) {
	for _, fl := range f.byID {
		if fl.UserID == userID && fl.IsInFlight() {
			return fl, nil
		}
	}
	return nil, shared.ErrFlowNotFound
}
func (f *fakeFlows) GetByBotTokenID(ctx context.Context, botTokenID string) (*flow.Flow, error) {
	for _, fl := range f.byID {
		if fl.BotTokenID != nil && *fl.BotTokenID == botTokenID {
			return fl, nil
		}
	}
	return nil, shared.ErrFlowNotFound
}
func (f *fakeFlows) Update(ctx context.Context, fl *flow.Flow) error {
	f.byID[fl.FlowID] = fl
	return nil
}
func (f *fakeFlows) ForAnalytics(ctx context.Context, since time.Time, window string) ([]*flow.Flow, error) {
	return nil, nil
}

type fakeRegistry struct {
	byHandlerName     map[shared.HandlerName]*registry.Entry
	creatorCountSince int
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{byHandlerName: map[shared.HandlerName]*registry.Entry{}}
}
func (r *fakeRegistry) Create(ctx context.Context, e *registry.Entry) error {
	r.byHandlerName[e.HandlerName] = e
	return nil
}
func (r *fakeRegistry) GetByToken(ctx context.Context, token shared.BotToken) (*registry.Entry, error) {
	for _, e := range r.byHandlerName {
		if e.Token == token {
			return e, nil
		}
	}
	return nil, shared.ErrBotNotFound
}
func (r *fakeRegistry) GetByHandlerName(ctx context.Context, name shared.HandlerName) (*registry.Entry, error) {
	e, ok := r.byHandlerName[name]
	if !ok {
		return nil, shared.ErrBotNotFound
	}
	return e, nil
}
func (r *fakeRegistry) GetByBotTokenID(ctx context.Context, botTokenID string) (*registry.Entry, error) {
	for _, e := range r.byHandlerName {
		if e.BotTokenID == botTokenID {
			return e, nil
		}
	}
	return nil, shared.ErrBotNotFound
}
func (r *fakeRegistry) Update(ctx context.Context, e *registry.Entry) error {
	r.byHandlerName[e.HandlerName] = e
	return nil
}
func (r *fakeRegistry) ListActive(ctx context.Context) ([]*registry.Entry, error) { return nil, nil }
func (r *fakeRegistry) Count(ctx context.Context) (int, error)                    { return len(r.byHandlerName), nil }
func (r *fakeRegistry) CountByCreatorSince(ctx context.Context, ownerID shared.TelegramUserID, since time.Time) (int, error) {
	return r.creatorCountSince, nil
}

type fakeEvents struct {
	logged map[string]*event.FunnelEvent
}

func newFakeEvents() *fakeEvents { return &fakeEvents{logged: map[string]*event.FunnelEvent{}} }
func (e *fakeEvents) LogIfAbsent(ctx context.Context, ev *event.FunnelEvent) error {
	if _, ok := e.logged[ev.EventID]; ok {
		return nil
	}
	e.logged[ev.EventID] = ev
	return nil
}
func (e *fakeEvents) CountByTypeSince(ctx context.Context, kind event.Kind, since time.Time) (int, error) {
	return 0, nil
}
func (e *fakeEvents) TopErrorsSince(ctx context.Context, since time.Time, limit int) ([]event.ErrorCount, error) {
	return nil, nil
}
func (e *fakeEvents) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

type fakeConversations struct {
	byUser map[int64]*conversation.State
}

func newFakeConversations() *fakeConversations {
	return &fakeConversations{byUser: map[int64]*conversation.State{}}
}
func (c *fakeConversations) Get(ctx context.Context, userID int64) (*conversation.State, bool, error) {
	st, ok := c.byUser[userID]
	return st, ok, nil
}
func (c *fakeConversations) Save(ctx context.Context, st *conversation.State) error {
	c.byUser[st.UserID] = st
	return nil
}
func (c *fakeConversations) Delete(ctx context.Context, userID int64) error {
	delete(c.byUser, userID)
	return nil
}

type fakeMarker struct{ marked map[string]bool }

func newFakeMarker() *fakeMarker { return &fakeMarker{marked: map[string]bool{}} }
func (m *fakeMarker) TryMark(ctx context.Context, handlerName string) (bool, error) {
	if m.marked[handlerName] {
		return false, nil
	}
	m.marked[handlerName] = true
	return true, nil
}
func (m *fakeMarker) Release(ctx context.Context, handlerName string) error {
	delete(m.marked, handlerName)
	return nil
}

type fakeSynthesiser struct {
	source string
	err    error
}

func (s *fakeSynthesiser) Synthesise(ctx context.Context, handlerName, specification string) (string, error) {
	return s.source, s.err
}

type fakeArtifactStore struct {
	byName map[string]string
}

func newFakeArtifactStore() *fakeArtifactStore { return &fakeArtifactStore{byName: map[string]string{}} }
func (a *fakeArtifactStore) Exists(ctx context.Context, handlerName string) (bool, error) {
	_, ok := a.byName[handlerName]
	return ok, nil
}
func (a *fakeArtifactStore) Get(ctx context.Context, handlerName string) (*handler.Artifact, error) {
	source, ok := a.byName[handlerName]
	if !ok {
		return nil, shared.ErrArtifactNotFound
	}
	return &handler.Artifact{HandlerName: handlerName, Source: source}, nil
}
func (a *fakeArtifactStore) Create(ctx context.Context, handlerName, source string) (*handler.Artifact, error) {
	a.byName[handlerName] = source
	return &handler.Artifact{HandlerName: handlerName, Source: source}, nil
}
func (a *fakeArtifactStore) Update(ctx context.Context, handlerName, source, expectedVersion string) (*handler.Artifact, error) {
	a.byName[handlerName] = source
	return &handler.Artifact{HandlerName: handlerName, Source: source}, nil
}

type fakeMessenger struct {
	webhookErr error
	installed  []string
	sentTo     []int64
	sentText   []string
}

func (m *fakeMessenger) SendText(ctx context.Context, chatID int64, text string) error {
	m.sentTo = append(m.sentTo, chatID)
	m.sentText = append(m.sentText, text)
	return nil
}
func (m *fakeMessenger) InstallWebhook(ctx context.Context, botToken, webhookURL string) error {
	m.installed = append(m.installed, botToken)
	return m.webhookErr
}

func newService(t *testing.T) (*Service, *fakeFlows, *fakeRegistry, *fakeConversations, *fakeArtifactStore) {
	t.Helper()
	flows := newFakeFlows()
	reg := newFakeRegistry()
	events := newFakeEvents()
	conv := newFakeConversations()
	marker := newFakeMarker()
	synth := &fakeSynthesiser{source: "package main\n// handler-descriptor-start\n{}\n// handler-descriptor-end\n"}
	artifacts := newFakeArtifactStore()
	msgr := &fakeMessenger{}

	svc := New(Deps{
		Flows:          flows,
		Registry:       reg,
		Events:         events,
		Conversations:  conv,
		InProgress:     marker,
		Synthesiser:    synth,
		Artifacts:      artifacts,
		Messenger:      msgr,
		AdminChatID:    999,
		WebhookBaseURL: "https://example.test",
	})
	return svc, flows, reg, conv, artifacts
}

func TestHandleCreateCommand_OpensWaitingToken(t *testing.T) {
	svc, flows, _, conv, _ := newService(t)
	ctx := context.Background()

	reply, err := svc.HandleCreateCommand(ctx, 42)
	require.NoError(t, err)
	assert.NotNil(t, reply)
	assert.Len(t, flows.byID, 1)

	st, ok, err := conv.Get(ctx, 42)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, flow.StatusWaitingToken, st.Status)
}

func TestHandleCreateCommand_RateLimited(t *testing.T) {
	svc, _, reg, _, _ := newService(t)
	reg.creatorCountSince = maxRegistrationsPerWindow

	reply, err := svc.HandleCreateCommand(context.Background(), 42)
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Contains(t, reply.Text, "limit")
}

func TestHandleCreateCommand_AdminExemptFromRateLimit(t *testing.T) {
	svc, _, reg, _, _ := newService(t)
	reg.creatorCountSince = maxRegistrationsPerWindow

	reply, err := svc.HandleCreateCommand(context.Background(), 999)
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.NotContains(t, reply.Text, "limit")
}

func TestHandleCreateCommand_RateLimitCountsRegistrationsNotActivations(t *testing.T) {
	// A creator who registers bots but never messages any of them (never
	// activates) must still be rate-limited: the guard is keyed off
	// registry rows, not bot_flows.status = 'activated'.
	svc, _, reg, _, _ := newService(t)
	reg.creatorCountSince = maxRegistrationsPerWindow

	reply, err := svc.HandleCreateCommand(context.Background(), 42)
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Contains(t, reply.Text, "limit")
}

func TestValidateTokenShape(t *testing.T) {
	id, ok := validateTokenShape("123456789:AAabcDEFghiJKLmnoPQRstuVWXyz0123")
	assert.True(t, ok)
	assert.Equal(t, "123456789", id)

	_, ok = validateTokenShape("too-short")
	assert.False(t, ok)
}

func TestFullCreationFlow_Success(t *testing.T) {
	svc, flows, reg, conv, _ := newService(t)
	ctx := context.Background()

	_, err := svc.HandleCreateCommand(ctx, 42)
	require.NoError(t, err)
	st, _, _ := conv.Get(ctx, 42)

	_, err = svc.handleToken(ctx, st, "123456789:AAabcDEFghiJKLmnoPQRstuVWXyz0123")
	require.NoError(t, err)
	st, _, _ = conv.Get(ctx, 42)
	require.Equal(t, flow.StatusWaitingDescription, st.Status)

	reply, err := svc.handleDescription(ctx, st, "a bot that greets people")
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Contains(t, reply.Text, "live")

	f, err := flows.GetByFlowID(ctx, st.FlowID)
	require.NoError(t, err)
	assert.Equal(t, flow.StatusCreated, f.Status)
	assert.Equal(t, flow.StageCreated, f.CurrentStage)

	entry, err := reg.GetByHandlerName(ctx, shared.NewHandlerName("123456789"))
	require.NoError(t, err)
	assert.Equal(t, shared.TelegramUserID(42), entry.OwnerTelegramID)
}

func TestFullCreationFlow_WebhookPendingStillSucceeds(t *testing.T) {
	svc, flows, _, conv, _ := newService(t)
	svc.messenger.(*fakeMessenger).webhookErr = assert.AnError
	ctx := context.Background()

	_, err := svc.HandleCreateCommand(ctx, 43)
	require.NoError(t, err)
	st, _, _ := conv.Get(ctx, 43)

	_, err = svc.handleToken(ctx, st, "987654321:AAabcDEFghiJKLmnoPQRstuVWXyz9876")
	require.NoError(t, err)
	st, _, _ = conv.Get(ctx, 43)

	reply, err := svc.handleDescription(ctx, st, "a bot that counts votes")
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "retried")

	f, err := flows.GetByFlowID(ctx, st.FlowID)
	require.NoError(t, err)
	assert.Equal(t, flow.StatusCreatedWebhookPending, f.Status)
}

func TestHandleCancel_NoOpenFlow(t *testing.T) {
	svc, _, _, _, _ := newService(t)
	reply, err := svc.HandleCancel(context.Background(), 7)
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "Nothing to cancel")
}

func TestClassifySynthesisFailure_MapsProviderFaultsToAdminKinds(t *testing.T) {
	reason, kind := classifySynthesisFailure(shared.ErrUnauthorized)
	assert.Equal(t, "api_error", kind)
	assert.NotEmpty(t, reason)

	_, kind = classifySynthesisFailure(shared.ErrQuotaExceeded)
	assert.Equal(t, "quota", kind)

	_, kind = classifySynthesisFailure(shared.ErrBillingIssue)
	assert.Equal(t, "quota", kind)

	_, kind = classifySynthesisFailure(shared.ErrServiceUnavailable)
	assert.Equal(t, "api_error", kind)

	_, kind = classifySynthesisFailure(shared.ErrPolicyRejection)
	assert.Empty(t, kind)

	_, kind = classifySynthesisFailure(shared.ErrSynthesisMalformed)
	assert.Empty(t, kind)
}

func TestCreate_SynthesisQuotaFailure_NotifiesAdmin(t *testing.T) {
	flows, reg, conv := newFakeFlows(), newFakeRegistry(), newFakeConversations()
	msgr := &fakeMessenger{}
	svc := New(Deps{
		Flows:          flows,
		Registry:       reg,
		Events:         newFakeEvents(),
		Conversations:  conv,
		InProgress:     newFakeMarker(),
		Synthesiser:    &fakeSynthesiser{err: shared.ErrQuotaExceeded},
		Artifacts:      newFakeArtifactStore(),
		Messenger:      msgr,
		AdminChatID:    999,
		WebhookBaseURL: "https://example.test",
	})
	ctx := context.Background()

	_, err := svc.HandleCreateCommand(ctx, 42)
	require.NoError(t, err)
	st, _, _ := conv.Get(ctx, 42)
	_, err = svc.handleToken(ctx, st, "123456789:AAabcDEFghiJKLmnoPQRstuVWXyz0123")
	require.NoError(t, err)
	st, _, _ = conv.Get(ctx, 42)

	reply, err := svc.handleDescription(ctx, st, "a bot that greets people")
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "over capacity")

	require.Len(t, msgr.sentTo, 1)
	assert.Equal(t, int64(999), msgr.sentTo[0])
	assert.Contains(t, msgr.sentText[0], "quota")
}

func TestCreate_PolicyRejection_DoesNotNotifyAdmin(t *testing.T) {
	flows, reg, conv := newFakeFlows(), newFakeRegistry(), newFakeConversations()
	msgr := &fakeMessenger{}
	svc := New(Deps{
		Flows:          flows,
		Registry:       reg,
		Events:         newFakeEvents(),
		Conversations:  conv,
		InProgress:     newFakeMarker(),
		Synthesiser:    &fakeSynthesiser{err: shared.ErrPolicyRejection},
		Artifacts:      newFakeArtifactStore(),
		Messenger:      msgr,
		AdminChatID:    999,
		WebhookBaseURL: "https://example.test",
	})
	ctx := context.Background()

	_, err := svc.HandleCreateCommand(ctx, 42)
	require.NoError(t, err)
	st, _, _ := conv.Get(ctx, 42)
	_, err = svc.handleToken(ctx, st, "123456789:AAabcDEFghiJKLmnoPQRstuVWXyz0123")
	require.NoError(t, err)
	st, _, _ = conv.Get(ctx, 42)

	reply, err := svc.handleDescription(ctx, st, "a bot that greets people")
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "safety check")
	assert.Empty(t, msgr.sentTo)
}

func TestActivationProbe_IgnoresNonCreator(t *testing.T) {
	svc, flows, _, _, _ := newService(t)
	ctx := context.Background()

	f := flow.New("", shared.TelegramUserID(42))
	f.BindToken("123456789")
	require.NoError(t, flows.Create(ctx, f))

	require.NoError(t, svc.ActivationProbe(ctx, "123456789", 9999))
	got, err := flows.GetByFlowID(ctx, f.FlowID)
	require.NoError(t, err)
	assert.NotEqual(t, flow.StatusActivated, got.Status)
}

func TestActivationProbe_ActivatesForCreator(t *testing.T) {
	svc, flows, _, _, _ := newService(t)
	ctx := context.Background()

	f := flow.New("", shared.TelegramUserID(42))
	f.BindToken("123456789")
	require.NoError(t, flows.Create(ctx, f))

	require.NoError(t, svc.ActivationProbe(ctx, "123456789", 42))
	got, err := flows.GetByFlowID(ctx, f.FlowID)
	require.NoError(t, err)
	assert.Equal(t, flow.StatusActivated, got.Status)
	assert.Equal(t, flow.StageActivated, got.CurrentStage)
}
