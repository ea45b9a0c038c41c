package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botforge/telegram-bot-factory/internal/domain/event"
	"github.com/botforge/telegram-bot-factory/internal/domain/handler"
	"github.com/botforge/telegram-bot-factory/internal/domain/registry"
	"github.com/botforge/telegram-bot-factory/internal/domain/shared"
	"github.com/botforge/telegram-bot-factory/internal/infrastructure/external/telegram"
)

// --- fakes ---

type fakeHandler struct {
	reply *handler.Reply
	err   error
}

func (f *fakeHandler) GetWidget(ctx context.Context) (*handler.Widget, error) { return nil, nil }
func (f *fakeHandler) HandleMessage(ctx context.Context, text string, msgCtx *handler.MessageContext) (*handler.Reply, error) {
	return f.reply, f.err
}
func (f *fakeHandler) HandleCallback(ctx context.Context, data string, msgCtx *handler.MessageContext) (*handler.Reply, error) {
	return f.reply, f.err
}

type fakeHandlerSource struct {
	byName map[string]handler.Handler
}

func (s *fakeHandlerSource) Load(ctx context.Context, name string) (handler.Handler, error) {
	h, ok := s.byName[name]
	if !ok {
		return nil, shared.ErrHandlerNotLoaded
	}
	return h, nil
}
func (s *fakeHandlerSource) Names() []string {
	names := make([]string, 0, len(s.byName))
	for n := range s.byName {
		names = append(names, n)
	}
	return names
}

type fakeRegistry struct {
	byToken map[shared.BotToken]*registry.Entry
}

func (r *fakeRegistry) GetByToken(ctx context.Context, token shared.BotToken) (*registry.Entry, error) {
	e, ok := r.byToken[token]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return e, nil
}

type fakeActivationProber struct {
	calls int
	err   error
}

func (p *fakeActivationProber) ActivationProbe(ctx context.Context, botTokenID string, senderID int64) error {
	p.calls++
	return p.err
}

type fakeActionRecorder struct {
	recorded []*event.UserAction
}

func (r *fakeActionRecorder) Record(ctx context.Context, a *event.UserAction) error {
	r.recorded = append(r.recorded, a)
	return nil
}

type fakeStateStore struct {
	values map[string]string
}

func (s *fakeStateStore) Load(ctx context.Context, botTokenID, key string) (string, bool, error) {
	v, ok := s.values[botTokenID+":"+key]
	return v, ok, nil
}
func (s *fakeStateStore) Save(ctx context.Context, botTokenID, key, value string) error {
	if s.values == nil {
		s.values = map[string]string{}
	}
	s.values[botTokenID+":"+key] = value
	return nil
}

// newTestClient builds a *telegram.Client whose API calls hit a local
// httptest server instead of the real Telegram API, recording every
// sendMessage body it receives.
func newTestClient(t *testing.T, seen *[]map[string]interface{}) *telegram.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		*seen = append(*seen, body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":1}}}`))
	}))
	t.Cleanup(srv.Close)

	cfg := telegram.DefaultClientConfig("test-token")
	cfg.BaseURL = srv.URL
	cfg.RetryAttempts = 0
	return telegram.NewClient(cfg)
}

func updatePayload(t *testing.T, u telegram.Update) []byte {
	t.Helper()
	b, err := json.Marshal(u)
	require.NoError(t, err)
	return b
}

func TestDispatcher_PrimaryToken_InvokesFirstNonEmptyHandlerInSortedOrder(t *testing.T) {
	var sent []map[string]interface{}
	client := newTestClient(t, &sent)

	empty := &fakeHandler{reply: nil}
	winner := &fakeHandler{reply: handler.TextReply("hello from b_handler")}
	sources := &fakeHandlerSource{byName: map[string]handler.Handler{
		"a_handler": empty,
		"b_handler": winner,
	}}
	actions := &fakeActionRecorder{}

	d := NewDispatcher(DispatcherDeps{
		PrimaryToken:  "primary-token",
		Handlers:      sources,
		Registry:      &fakeRegistry{byToken: map[shared.BotToken]*registry.Entry{}},
		Activation:    &fakeActivationProber{},
		Actions:       actions,
		State:         &fakeStateStore{},
		PrimaryClient: client,
	})

	update := telegram.Update{
		Message: &telegram.Message{
			Text: "/start",
			From: &telegram.User{ID: 42, Username: "alice"},
			Chat: &telegram.Chat{ID: 100},
		},
	}

	err := d.HandleTelegramUpdate(context.Background(), "primary-token", updatePayload(t, update))
	require.NoError(t, err)

	require.Len(t, sent, 1)
	assert.Equal(t, "hello from b_handler", sent[0]["text"])
	assert.Len(t, actions.recorded, 1)
	assert.Equal(t, event.ActionMessage, actions.recorded[0].ActionType)
	assert.Equal(t, int64(42), actions.recorded[0].UserID)
	assert.Empty(t, actions.recorded[0].Details, "ordinary traffic must not record chat text as Details")
}

func TestDispatcher_PrimaryToken_NoHandlerReplies_SendsNothing(t *testing.T) {
	var sent []map[string]interface{}
	client := newTestClient(t, &sent)

	sources := &fakeHandlerSource{byName: map[string]handler.Handler{
		"only": &fakeHandler{reply: nil},
	}}

	d := NewDispatcher(DispatcherDeps{
		PrimaryToken:  "primary-token",
		Handlers:      sources,
		Registry:      &fakeRegistry{byToken: map[shared.BotToken]*registry.Entry{}},
		Activation:    &fakeActivationProber{},
		Actions:       &fakeActionRecorder{},
		State:         &fakeStateStore{},
		PrimaryClient: client,
	})

	update := telegram.Update{
		Message: &telegram.Message{
			Text: "anything",
			From: &telegram.User{ID: 1},
			Chat: &telegram.Chat{ID: 1},
		},
	}

	err := d.HandleTelegramUpdate(context.Background(), "primary-token", updatePayload(t, update))
	require.NoError(t, err)
	assert.Empty(t, sent)
}

func TestDispatcher_SecondaryToken_UnregisteredToken_NoPanic(t *testing.T) {
	var sent []map[string]interface{}
	client := newTestClient(t, &sent)

	d := NewDispatcher(DispatcherDeps{
		PrimaryToken:  "primary-token",
		Handlers:      &fakeHandlerSource{byName: map[string]handler.Handler{}},
		Registry:      &fakeRegistry{byToken: map[shared.BotToken]*registry.Entry{}},
		Activation:    &fakeActivationProber{},
		Actions:       &fakeActionRecorder{},
		State:         &fakeStateStore{},
		PrimaryClient: client,
	})

	update := telegram.Update{
		Message: &telegram.Message{
			Text: "hi",
			From: &telegram.User{ID: 7},
			Chat: &telegram.Chat{ID: 7},
		},
	}

	err := d.HandleTelegramUpdate(context.Background(), "some-other-token", updatePayload(t, update))
	require.NoError(t, err)
	assert.Empty(t, sent)
}

func TestDispatcher_SecondaryToken_HandlerError_SendsApology(t *testing.T) {
	var sent []map[string]interface{}
	client := newTestClient(t, &sent)

	entry, err := registry.NewEntry("entry-1", shared.BotToken("123456:secondary-bot-token-value"), shared.TelegramUserID(9))
	require.NoError(t, err)

	erroring := &fakeHandler{err: assert.AnError}
	actions := &fakeActionRecorder{}
	d := NewDispatcher(DispatcherDeps{
		PrimaryToken: "primary-token",
		Handlers: &fakeHandlerSource{byName: map[string]handler.Handler{
			string(entry.HandlerName): erroring,
		}},
		Registry: &fakeRegistry{byToken: map[shared.BotToken]*registry.Entry{
			entry.Token: entry,
		}},
		Activation:    &fakeActivationProber{},
		Actions:       actions,
		State:         &fakeStateStore{},
		PrimaryClient: client,
	})

	update := telegram.Update{
		Message: &telegram.Message{
			Text: "hi",
			From: &telegram.User{ID: 9},
			Chat: &telegram.Chat{ID: 55},
		},
	}

	err = d.HandleTelegramUpdate(context.Background(), string(entry.Token), updatePayload(t, update))
	require.NoError(t, err)

	require.Len(t, sent, 1)
	assert.Equal(t, apologyText, sent[0]["text"])

	require.Len(t, actions.recorded, 1)
	assert.Equal(t, "handler_fault", actions.recorded[0].Details, "a failed invocation records a classification, never raw chat text")
}

func TestDispatcher_MalformedPayload_IsSwallowed(t *testing.T) {
	var sent []map[string]interface{}
	client := newTestClient(t, &sent)

	d := NewDispatcher(DispatcherDeps{
		PrimaryToken:  "primary-token",
		Handlers:      &fakeHandlerSource{byName: map[string]handler.Handler{}},
		Registry:      &fakeRegistry{byToken: map[shared.BotToken]*registry.Entry{}},
		Activation:    &fakeActivationProber{},
		Actions:       &fakeActionRecorder{},
		State:         &fakeStateStore{},
		PrimaryClient: client,
	})

	err := d.HandleTelegramUpdate(context.Background(), "primary-token", []byte("not json"))
	assert.NoError(t, err)
	assert.Empty(t, sent)
}
