package creation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botforge/telegram-bot-factory/internal/application/creation"
	"github.com/botforge/telegram-bot-factory/internal/domain/conversation"
	"github.com/botforge/telegram-bot-factory/internal/domain/handler"
	"github.com/botforge/telegram-bot-factory/internal/interface/telegram/presenter"
)

type fakeConversations struct {
	deleted []int64
}

func (f *fakeConversations) Get(ctx context.Context, userID int64) (*conversation.State, bool, error) {
	return nil, false, nil
}
func (f *fakeConversations) Save(ctx context.Context, s *conversation.State) error { return nil }
func (f *fakeConversations) Delete(ctx context.Context, userID int64) error {
	f.deleted = append(f.deleted, userID)
	return nil
}

func newTestPlugin() *Plugin {
	svc := creation.New(creation.Deps{Conversations: &fakeConversations{}})
	return New(svc)
}

func TestPlugin_HandleMessage_Start_AttachesCreateKeyboard(t *testing.T) {
	p := newTestPlugin()

	reply, err := p.HandleMessage(context.Background(), cmdStart, &handler.MessageContext{UserID: 1})
	require.NoError(t, err)
	require.NotNil(t, reply)

	kb, ok := reply.ReplyMarkup.(*presenter.InlineKeyboard)
	require.True(t, ok, "expected a *presenter.InlineKeyboard, got %T", reply.ReplyMarkup)
	require.Len(t, kb.Rows, 1)
	require.Len(t, kb.Rows[0], 1)
	assert.Equal(t, "creation:create", kb.Rows[0][0].CallbackData)
}

func TestPlugin_HandleMessage_NilContext_ReturnsNil(t *testing.T) {
	p := newTestPlugin()

	reply, err := p.HandleMessage(context.Background(), cmdStart, nil)
	assert.NoError(t, err)
	assert.Nil(t, reply)
}

func TestPlugin_HandleCallback_UnknownData_ReturnsNil(t *testing.T) {
	p := newTestPlugin()

	reply, err := p.HandleCallback(context.Background(), "something:else", &handler.MessageContext{UserID: 1})
	assert.NoError(t, err)
	assert.Nil(t, reply)
}

func TestPlugin_GetWidget_ReturnsNil(t *testing.T) {
	p := newTestPlugin()
	w, err := p.GetWidget(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, w)
}
