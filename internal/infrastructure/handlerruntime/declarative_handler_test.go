package handlerruntime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botforge/telegram-bot-factory/internal/domain/handler"
)

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

func TestDeclarativeHandler_HandleMessage_MatchesExactRule(t *testing.T) {
	descriptor := &handler.HandlerDescriptor{
		Commands: []handler.CommandRule{
			{Match: "/start", Reply: handler.ReplyTemplate{Text: "welcome"}},
		},
	}
	h := NewDeclarativeHandler("bot-1", descriptor, &fakeStateStore{})

	reply, err := h.HandleMessage(context.Background(), "/start", nil)
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, "welcome", reply.Text)
}

func TestDeclarativeHandler_HandleMessage_FallsBackToWildcardRule(t *testing.T) {
	descriptor := &handler.HandlerDescriptor{
		Commands: []handler.CommandRule{
			{Match: "/start", Reply: handler.ReplyTemplate{Text: "welcome"}},
			{Match: "*", Reply: handler.ReplyTemplate{Text: "catch-all"}},
		},
	}
	h := NewDeclarativeHandler("bot-1", descriptor, &fakeStateStore{})

	reply, err := h.HandleMessage(context.Background(), "/unknown", nil)
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, "catch-all", reply.Text)
}

func TestDeclarativeHandler_HandleMessage_NoMatchNoFallback_ReturnsNil(t *testing.T) {
	descriptor := &handler.HandlerDescriptor{
		Commands: []handler.CommandRule{
			{Match: "/start", Reply: handler.ReplyTemplate{Text: "welcome"}},
		},
	}
	h := NewDeclarativeHandler("bot-1", descriptor, &fakeStateStore{})

	reply, err := h.HandleMessage(context.Background(), "/unknown", nil)
	require.NoError(t, err)
	assert.Nil(t, reply)
}

func TestDeclarativeHandler_HandleMessage_UsesDescriptorFallback(t *testing.T) {
	descriptor := &handler.HandlerDescriptor{
		Commands: []handler.CommandRule{
			{Match: "/start", Reply: handler.ReplyTemplate{Text: "welcome"}},
		},
		Fallback: &handler.ReplyTemplate{Text: "i don't understand"},
	}
	h := NewDeclarativeHandler("bot-1", descriptor, &fakeStateStore{})

	reply, err := h.HandleMessage(context.Background(), "/unknown", nil)
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, "i don't understand", reply.Text)
}

func TestDeclarativeHandler_Render_SplicesPersistedStateViaRuntime(t *testing.T) {
	descriptor := &handler.HandlerDescriptor{
		Commands: []handler.CommandRule{
			{Match: "/counter", Reply: handler.ReplyTemplate{Text: "count: {{state}}", UseState: true}},
		},
	}
	states := &fakeStateStore{}
	h := NewDeclarativeHandler("bot-1", descriptor, states)

	runtime := NewTelegramRuntime(nil, states, "bot-1", 42)
	require.NoError(t, runtime.SaveState(context.Background(), "value", "7"))

	msgCtx := &handler.MessageContext{Runtime: runtime}
	reply, err := h.HandleMessage(context.Background(), "/counter", msgCtx)
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, "count: 7", reply.Text)
}

func TestDeclarativeHandler_HandleCallback_MatchesByData(t *testing.T) {
	descriptor := &handler.HandlerDescriptor{
		Commands: []handler.CommandRule{
			{Match: "creation:confirm", Reply: handler.ReplyTemplate{Text: "confirmed"}},
		},
	}
	h := NewDeclarativeHandler("bot-1", descriptor, &fakeStateStore{})

	reply, err := h.HandleCallback(context.Background(), "creation:confirm", nil)
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, "confirmed", reply.Text)
}

func TestDeclarativeHandler_GetWidget_NilDescriptor_ReturnsNil(t *testing.T) {
	descriptor := &handler.HandlerDescriptor{}
	h := NewDeclarativeHandler("bot-1", descriptor, &fakeStateStore{})

	w, err := h.GetWidget(context.Background())
	require.NoError(t, err)
	assert.Nil(t, w)
}

func TestDeclarativeHandler_GetWidget_SplicesStoredValue(t *testing.T) {
	descriptor := &handler.HandlerDescriptor{
		Widget: &handler.WidgetDescriptor{Title: "Counter", Value: "{{state}}", Label: "taps"},
	}
	states := &fakeStateStore{values: map[string]string{"bot-1:value": "3"}}
	h := NewDeclarativeHandler("bot-1", descriptor, states)

	w, err := h.GetWidget(context.Background())
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, "3", w.Value)
	assert.Equal(t, "Counter", w.Title)
}
