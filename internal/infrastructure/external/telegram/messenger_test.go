package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessenger_SendText_DelegatesToPrimaryClient(t *testing.T) {
	var seen map[string]interface{}
	primary := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&seen))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"chat":{"id":1}}}`))
	})

	m := NewMessenger(primary)
	err := m.SendText(context.Background(), 42, "bot created")
	require.NoError(t, err)
	assert.Equal(t, float64(42), seen["chat_id"])
	assert.Equal(t, "bot created", seen["text"])
}

func TestMessenger_InstallWebhook_BuildsClientScopedToNewToken(t *testing.T) {
	var calledPath string
	m := NewMessenger(nil)
	m.newClient = func(token string) *Client {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calledPath = r.URL.Path
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
		})
		c.config.Token = token
		return c
	}

	err := m.InstallWebhook(context.Background(), "fresh-token", "https://bots.example.com/hook/fresh-token")
	require.NoError(t, err)
	assert.Equal(t, "/botfresh-token/setWebhook", calledPath)
}
