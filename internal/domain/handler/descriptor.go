package handler

import (
	"encoding/json"
	"strings"

	"github.com/botforge/telegram-bot-factory/internal/domain/shared"
)

// Sentinel markers delimiting the capability descriptor block inside a
// generated artifact's source text (SPEC_FULL.md §4.3), modelled directly on
// original_source/engine/plugin_security.py's STATE_HELPER_END_MARKER idiom.
const (
	DescriptorStartMarker = "// === handler-descriptor ==="
	DescriptorEndMarker   = "// === end handler-descriptor ==="
)

// HandlerDescriptor is the JSON block every LLM-synthesised artifact must
// carry so handlerruntime.DeclarativeHandler can interpret it without ever
// compiling or executing the surrounding source text.
type HandlerDescriptor struct {
	Widget   *WidgetDescriptor `json:"widget,omitempty"`
	Commands []CommandRule     `json:"commands"`
	Fallback *ReplyTemplate    `json:"fallback,omitempty"`
}

// WidgetDescriptor mirrors Widget but allows the text fields to reference
// state placeholders the same way ReplyTemplate does.
type WidgetDescriptor struct {
	Title  string `json:"title"`
	Value  string `json:"value"`
	Label  string `json:"label,omitempty"`
	Status string `json:"status,omitempty"`
	Icon   string `json:"icon,omitempty"`
}

// CommandRule binds one exact command (or "*" for any text) to a reply.
type CommandRule struct {
	Match string        `json:"match"`
	Reply ReplyTemplate `json:"reply"`
}

// ReplyTemplate is the declarative reply a DeclarativeHandler renders.
type ReplyTemplate struct {
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
	UseState  bool   `json:"use_state,omitempty"`
}

// ExtractDescriptor pulls the sentinel-delimited JSON block out of generated
// source text and parses it. Returns shared.ErrSynthesisMalformed if the
// markers are absent or the contained JSON does not parse.
func ExtractDescriptor(source string) (*HandlerDescriptor, error) {
	start := strings.Index(source, DescriptorStartMarker)
	if start == -1 {
		return nil, shared.ErrSynthesisMalformed
	}
	start += len(DescriptorStartMarker)
	end := strings.Index(source[start:], DescriptorEndMarker)
	if end == -1 {
		return nil, shared.ErrSynthesisMalformed
	}
	block := strings.TrimSpace(source[start : start+end])
	block = strings.TrimPrefix(block, "/*")
	block = strings.TrimSuffix(block, "*/")
	block = strings.TrimSpace(block)

	var d HandlerDescriptor
	if err := json.Unmarshal([]byte(block), &d); err != nil {
		return nil, shared.WrapError("synthesis", "ExtractDescriptor", shared.ErrSynthesisMalformed, "malformed handler descriptor JSON", err)
	}
	if len(d.Commands) == 0 && d.Fallback == nil {
		return nil, shared.ErrSynthesisMalformed
	}
	return &d, nil
}

// RenderDescriptorBlock serialises a descriptor back into its sentinel-delimited
// form, used by C4 when assembling the final validated source text.
func RenderDescriptorBlock(d *HandlerDescriptor) (string, error) {
	body, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(DescriptorStartMarker)
	b.WriteByte('\n')
	b.Write(body)
	b.WriteByte('\n')
	b.WriteString(DescriptorEndMarker)
	return b.String(), nil
}
