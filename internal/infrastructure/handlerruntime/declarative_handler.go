package handlerruntime

import (
	"context"
	"strings"

	"github.com/botforge/telegram-bot-factory/internal/domain/handler"
)

// statePlaceholder is the token a ReplyTemplate or WidgetDescriptor may
// embed to splice in the handler's single persisted state value.
const statePlaceholder = "{{state}}"

// DeclarativeHandler implements handler.Handler by interpreting a
// handler.HandlerDescriptor (§4.3/O1) instead of compiling or executing the
// generated source text around it. It is the single statically compiled
// handler every LLM-synthesised artifact runs through.
type DeclarativeHandler struct {
	botTokenID string
	descriptor *handler.HandlerDescriptor
	state      StateStore
}

// NewDeclarativeHandler builds a DeclarativeHandler for one loaded artifact.
func NewDeclarativeHandler(botTokenID string, descriptor *handler.HandlerDescriptor, state StateStore) *DeclarativeHandler {
	return &DeclarativeHandler{botTokenID: botTokenID, descriptor: descriptor, state: state}
}

// GetWidget renders the descriptor's optional dashboard widget, splicing in
// the handler's persisted state value if the widget references it.
func (h *DeclarativeHandler) GetWidget(ctx context.Context) (*handler.Widget, error) {
	if h.descriptor.Widget == nil {
		return nil, nil
	}
	w := h.descriptor.Widget

	value := w.Value
	if strings.Contains(value, statePlaceholder) {
		stored, ok, err := h.state.Load(ctx, h.botTokenID, "value")
		if err != nil {
			return nil, err
		}
		if ok {
			value = strings.ReplaceAll(value, statePlaceholder, stored)
		}
	}

	return &handler.Widget{
		Title:  w.Title,
		Value:  value,
		Label:  w.Label,
		Status: w.Status,
		Icon:   w.Icon,
	}, nil
}

// HandleMessage matches text against the descriptor's command rules in
// order, falling back to Fallback when nothing matches and no rule claims "*".
func (h *DeclarativeHandler) HandleMessage(ctx context.Context, text string, msgCtx *handler.MessageContext) (*handler.Reply, error) {
	rule := h.matchRule(text)
	if rule == nil {
		return h.renderFallback(ctx, msgCtx)
	}
	return h.render(ctx, msgCtx, rule.Reply)
}

// HandleCallback matches callback data the same way HandleMessage matches text.
func (h *DeclarativeHandler) HandleCallback(ctx context.Context, data string, msgCtx *handler.MessageContext) (*handler.Reply, error) {
	rule := h.matchRule(data)
	if rule == nil {
		return h.renderFallback(ctx, msgCtx)
	}
	return h.render(ctx, msgCtx, rule.Reply)
}

func (h *DeclarativeHandler) matchRule(text string) *handler.CommandRule {
	var wildcard *handler.CommandRule
	for i := range h.descriptor.Commands {
		rule := &h.descriptor.Commands[i]
		if rule.Match == "*" {
			wildcard = rule
			continue
		}
		if rule.Match == text {
			return rule
		}
	}
	return wildcard
}

func (h *DeclarativeHandler) renderFallback(ctx context.Context, msgCtx *handler.MessageContext) (*handler.Reply, error) {
	if h.descriptor.Fallback == nil {
		return nil, nil
	}
	return h.render(ctx, msgCtx, *h.descriptor.Fallback)
}

func (h *DeclarativeHandler) render(ctx context.Context, msgCtx *handler.MessageContext, tmpl handler.ReplyTemplate) (*handler.Reply, error) {
	text := tmpl.Text
	if tmpl.UseState && strings.Contains(text, statePlaceholder) {
		var stored string
		var ok bool
		var err error
		if msgCtx != nil && msgCtx.Runtime != nil {
			stored, ok, err = msgCtx.Runtime.LoadState(ctx, "value")
		} else {
			stored, ok, err = h.state.Load(ctx, h.botTokenID, "value")
		}
		if err != nil {
			return nil, err
		}
		if ok {
			text = strings.ReplaceAll(text, statePlaceholder, stored)
		}
	}

	if text == "" {
		return nil, nil
	}
	return &handler.Reply{Text: text, ParseMode: tmpl.ParseMode}, nil
}
