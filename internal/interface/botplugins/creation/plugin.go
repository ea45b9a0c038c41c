// Package creation wires C7's creation flow service into the primary bot's
// handler surface. It is a built-in Go handler.Handler, not an LLM-synthesised
// descriptor: §4.4 routes the primary token's updates through every locally
// loaded handler, and this plugin is always one of them.
package creation

import (
	"context"

	"github.com/botforge/telegram-bot-factory/internal/application/creation"
	"github.com/botforge/telegram-bot-factory/internal/domain/handler"
	"github.com/botforge/telegram-bot-factory/internal/interface/telegram/presenter"
)

var keyboards = presenter.NewKeyboardBuilder()

const (
	cmdStart     = "/start"
	cmdCreateBot = "/create_bot"
	cmdCancel    = "/cancel"
	cmdStats     = "/stats"

	callbackCreate = "creation:create"
	callbackCancel = "creation:cancel"
)

// Plugin adapts creation.Service to handler.Handler so the webhook dispatcher
// can invoke it like any other loaded handler on the primary token.
type Plugin struct {
	service *creation.Service
}

// New builds the creation flow plugin.
func New(service *creation.Service) *Plugin {
	return &Plugin{service: service}
}

// GetWidget: the creation flow has no dashboard widget.
func (p *Plugin) GetWidget(ctx context.Context) (*handler.Widget, error) {
	return nil, nil
}

// HandleMessage dispatches /start, /create_bot, /cancel, /stats, and free
// text (token or description, depending on conversation state) per §4.7.
func (p *Plugin) HandleMessage(ctx context.Context, text string, msgCtx *handler.MessageContext) (*handler.Reply, error) {
	if msgCtx == nil {
		return nil, nil
	}
	switch text {
	case cmdStart:
		reply, err := p.service.HandleStart(ctx, msgCtx.UserID)
		if err == nil && !reply.IsEmpty() {
			reply.ReplyMarkup = keyboards.CreateFlowKeyboard()
		}
		return reply, err
	case cmdCreateBot:
		return p.service.HandleCreateCommand(ctx, msgCtx.UserID)
	case cmdCancel:
		return p.service.HandleCancel(ctx, msgCtx.UserID)
	case cmdStats:
		return p.service.HandleStats(ctx, msgCtx.UserID)
	default:
		return p.service.HandleText(ctx, msgCtx.UserID, text)
	}
}

// HandleCallback handles the "Create" and "Cancel" inline-keyboard buttons.
func (p *Plugin) HandleCallback(ctx context.Context, data string, msgCtx *handler.MessageContext) (*handler.Reply, error) {
	if msgCtx == nil {
		return nil, nil
	}
	switch data {
	case callbackCreate:
		return p.service.HandleCreateCommand(ctx, msgCtx.UserID)
	case callbackCancel:
		return p.service.HandleCancel(ctx, msgCtx.UserID)
	default:
		return nil, nil
	}
}
