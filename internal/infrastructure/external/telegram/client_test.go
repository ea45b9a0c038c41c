package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultClientConfig("test-token")
	cfg.BaseURL = srv.URL
	cfg.RetryAttempts = 0
	return NewClient(cfg)
}

func TestClient_SendMessage_PostsExpectedBody(t *testing.T) {
	var seen map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/bottest-token/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&seen))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":5,"chat":{"id":1}}}`))
	})

	msg, err := client.SendMessage(context.Background(), SendMessageParams{
		ChatID:    1,
		Text:      "hi",
		ParseMode: "HTML",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), msg.MessageID)
	assert.Equal(t, "hi", seen["text"])
	assert.Equal(t, "HTML", seen["parse_mode"])
}

func TestClient_SendMessage_APIError_NonRetryable_ReturnsImmediately(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	})

	_, err := client.SendMessage(context.Background(), SendMessageParams{ChatID: 1, Text: "hi"})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestClient_GetMe_ParsesUser(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/bottest-token/getMe", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"id":99,"is_bot":true,"first_name":"Bot"}}`))
	})

	me, err := client.GetMe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(99), me.ID)
	assert.True(t, me.IsBot)
}

func TestClient_IsAdmin_TrueForAdministrator(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"status":"administrator"}}`))
	})

	ok, err := client.IsAdmin(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClient_IsAdmin_FalseForMember(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"status":"member"}}`))
	})

	ok, err := client.IsAdmin(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExtractCommand_ParsesLeadingBotCommand(t *testing.T) {
	msg := &Message{
		Text:     "/start@mybot hello",
		Entities: []MessageEntity{{Type: "bot_command", Offset: 0, Length: 10}},
	}
	assert.Equal(t, "start", ExtractCommand(msg))
}

func TestExtractCommand_NoEntities_ReturnsEmpty(t *testing.T) {
	assert.Equal(t, "", ExtractCommand(&Message{Text: "hello"}))
}

func TestExtractCommandArgs_StripsLeadingSpace(t *testing.T) {
	msg := &Message{
		Text:     "/create_bot token123",
		Entities: []MessageEntity{{Type: "bot_command", Offset: 0, Length: 11}},
	}
	assert.Equal(t, "token123", ExtractCommandArgs(msg))
}

func TestIsPrivateChat(t *testing.T) {
	assert.True(t, IsPrivateChat(&Message{Chat: &Chat{Type: "private"}}))
	assert.False(t, IsPrivateChat(&Message{Chat: &Chat{Type: "group"}}))
}

func TestIsGroupChat(t *testing.T) {
	assert.True(t, IsGroupChat(&Message{Chat: &Chat{Type: "supergroup"}}))
	assert.False(t, IsGroupChat(&Message{Chat: &Chat{Type: "private"}}))
}

func TestKeyboardBuilder_BuildsRows(t *testing.T) {
	kb := NewKeyboard().
		Row(Button("A", "cb:a")).
		Row(Button("B", "cb:b"), URLButton("C", "https://example.com"))

	markup := kb.Build()
	require.Len(t, markup.InlineKeyboard, 2)
	assert.Equal(t, "cb:a", markup.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "https://example.com", markup.InlineKeyboard[1][1].URL)
}
