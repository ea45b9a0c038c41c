package handlerruntime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botforge/telegram-bot-factory/internal/infrastructure/external/telegram"
)

func newTestTelegramClient(t *testing.T, handler http.HandlerFunc) *telegram.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := telegram.DefaultClientConfig("test-token")
	cfg.BaseURL = srv.URL
	cfg.RetryAttempts = 0
	return telegram.NewClient(cfg)
}

func TestTelegramRuntime_Reply_SendsTextToBoundChat(t *testing.T) {
	var path string
	client := newTestTelegramClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"chat":{"id":42}}}`))
	})

	runtime := NewTelegramRuntime(client, &fakeStateStore{}, "bot-1", 42)
	err := runtime.Reply(context.Background(), "hi there")
	require.NoError(t, err)
	assert.Equal(t, "/bottest-token/sendMessage", path)
}

func TestTelegramRuntime_Reply_EmptyText_SkipsCall(t *testing.T) {
	called := false
	client := newTestTelegramClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	runtime := NewTelegramRuntime(client, &fakeStateStore{}, "bot-1", 42)
	err := runtime.Reply(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, called)
}

func TestTelegramRuntime_IsAdmin_WrapsExternalServiceError(t *testing.T) {
	client := newTestTelegramClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"bad request"}`))
	})

	runtime := NewTelegramRuntime(client, &fakeStateStore{}, "bot-1", 42)
	_, err := runtime.IsAdmin(context.Background(), 7)
	require.Error(t, err)
}

func TestTelegramRuntime_LoadSaveState_RoundTrips(t *testing.T) {
	states := &fakeStateStore{}
	runtime := NewTelegramRuntime(nil, states, "bot-1", 42)

	_, ok, err := runtime.LoadState(context.Background(), "value")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, runtime.SaveState(context.Background(), "value", "42"))

	v, ok, err := runtime.LoadState(context.Background(), "value")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "42", v)
}
