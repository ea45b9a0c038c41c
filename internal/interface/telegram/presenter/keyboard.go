// Package presenter formats data for Telegram display: inline keyboards kept
// library-agnostic so the bot-facing layer never imports a concrete Telegram
// SDK type.
package presenter

// InlineKeyboard represents an inline keyboard.
type InlineKeyboard struct {
	Rows [][]InlineButton
}

// InlineButton represents a single inline button.
type InlineButton struct {
	// Text is the button text.
	Text string

	// CallbackData is the callback data (for callback buttons).
	CallbackData string

	// URL is the URL to open (for URL buttons).
	URL string
}

// NewInlineKeyboard creates a new empty inline keyboard.
func NewInlineKeyboard() *InlineKeyboard {
	return &InlineKeyboard{
		Rows: make([][]InlineButton, 0),
	}
}

// AddRow adds a row of buttons.
func (k *InlineKeyboard) AddRow(buttons ...InlineButton) *InlineKeyboard {
	k.Rows = append(k.Rows, buttons)
	return k
}

// CallbackButton creates a callback button.
func CallbackButton(text, callbackData string) InlineButton {
	return InlineButton{
		Text:         text,
		CallbackData: callbackData,
	}
}

// URLButton creates a URL button.
func URLButton(text, url string) InlineButton {
	return InlineButton{
		Text: text,
		URL:  url,
	}
}

// KeyboardBuilder builds the creation flow's inline keyboards.
type KeyboardBuilder struct{}

// NewKeyboardBuilder creates a new KeyboardBuilder.
func NewKeyboardBuilder() *KeyboardBuilder {
	return &KeyboardBuilder{}
}

// CancelFlowKeyboard offers a /cancel shortcut while a creation flow is
// waiting on the next user message (token or description).
func (b *KeyboardBuilder) CancelFlowKeyboard() *InlineKeyboard {
	return NewInlineKeyboard().
		AddRow(CallbackButton("✖ Cancel", "creation:cancel"))
}

// CreateFlowKeyboard is attached to the /start welcome reply, offering a
// one-tap shortcut into the creation flow instead of typing /create_bot.
func (b *KeyboardBuilder) CreateFlowKeyboard() *InlineKeyboard {
	return NewInlineKeyboard().
		AddRow(CallbackButton("+ Create a bot", "creation:create"))
}

// BotReadyKeyboard is attached to the reply sent once a bot has gone live,
// linking the creator straight to their new bot.
func (b *KeyboardBuilder) BotReadyKeyboard(botUsername string) *InlineKeyboard {
	if botUsername == "" {
		return nil
	}
	return NewInlineKeyboard().
		AddRow(URLButton("Open your bot", "https://t.me/"+botUsername))
}

// Build converts the library-agnostic keyboard to the wire shape the
// Telegram client's SendMessage accepts.
func (k *InlineKeyboard) Build() [][]WireButton {
	rows := make([][]WireButton, len(k.Rows))
	for i, row := range k.Rows {
		wireRow := make([]WireButton, len(row))
		for j, btn := range row {
			wireRow[j] = WireButton{Text: btn.Text, CallbackData: btn.CallbackData, URL: btn.URL}
		}
		rows[i] = wireRow
	}
	return rows
}

// WireButton mirrors telegram.InlineKeyboardButton without importing the
// client package, keeping this presenter dependency-free.
type WireButton struct {
	Text         string
	CallbackData string
	URL          string
}
