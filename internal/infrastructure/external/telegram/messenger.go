package telegram

import "context"

// Messenger adapts the Client to the creation package's Messenger port: text
// replies always go out over the primary bot (the chat the creation flow
// runs in), while installing a webhook requires a throwaway client scoped to
// the newly issued token, since the primary bot's token can't speak for it.
type Messenger struct {
	primary    *Client
	newClient  func(token string) *Client
}

// NewMessenger builds a Messenger bound to the primary bot's client.
func NewMessenger(primary *Client) *Messenger {
	return &Messenger{
		primary: primary,
		newClient: func(token string) *Client {
			return NewClient(DefaultClientConfig(token))
		},
	}
}

// SendText implements creation.Messenger.
func (m *Messenger) SendText(ctx context.Context, chatID int64, text string) error {
	_, err := m.primary.SendText(ctx, chatID, text)
	return err
}

// InstallWebhook implements creation.Messenger: it builds a short-lived
// client for the freshly created bot's own token and points Telegram's
// updates for that bot at webhookURL.
func (m *Messenger) InstallWebhook(ctx context.Context, botToken, webhookURL string) error {
	client := m.newClient(botToken)
	return client.InstallWebhook(ctx, webhookURL, []string{"message", "callback_query"})
}
