// Package llm implements C4, the handler code synthesiser, against the
// Anthropic Messages API: it turns a natural-language specification into
// handler source carrying a sentinel-delimited HandlerDescriptor, then runs
// the result through a handler.SecurityGate before handing it back.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/botforge/telegram-bot-factory/internal/domain/handler"
	"github.com/botforge/telegram-bot-factory/internal/domain/shared"
	"github.com/botforge/telegram-bot-factory/pkg/circuitbreaker"
	"github.com/botforge/telegram-bot-factory/pkg/retry"
)

// Config holds the Anthropic provider's settings.
type Config struct {
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// Client implements handler.Synthesiser against the Anthropic Messages API.
type Client struct {
	anthropic anthropic.Client
	gate      handler.SecurityGate
	cfg       Config
	breaker   *circuitbreaker.CircuitBreaker
}

// NewClient builds a Client. gate is consulted on every synthesis result
// before it is ever handed to the artifact store or handler cache (O4).
func NewClient(cfg Config, gate handler.SecurityGate) *Client {
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-sonnet-20241022"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}

	return &Client{
		anthropic: anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		gate:      gate,
		cfg:       cfg,
		breaker: circuitbreaker.New("llm-synthesiser",
			circuitbreaker.WithFailureThreshold(3),
			circuitbreaker.WithTimeout(60*time.Second),
		),
	}
}

const systemPrompt = `You generate Go handler source for a Telegram bot factory.
The source you return is never compiled: it is a textual artifact that must
contain, verbatim, one JSON block delimited by the lines
"// === handler-descriptor ===" and "// === end handler-descriptor ===",
describing the handler's commands and fallback reply as the declarative
runtime interprets it. Do not reference network access, the filesystem, or
operating-system processes anywhere in the source.`

// Synthesise generates handler source for handlerName from specification,
// validates it carries a well-formed descriptor, and runs it through the
// security gate before returning.
func (c *Client) Synthesise(ctx context.Context, handlerName, specification string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	prompt := fmt.Sprintf("Handler name: %s\nSpecification:\n%s\n", handlerName, specification)

	var message *anthropic.Message
	err := c.withResilience(ctx, func(ctx context.Context) error {
		var err error
		message, err = c.anthropic.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(c.cfg.Model),
			MaxTokens: 4096,
			System: []anthropic.TextBlockParam{
				{Text: systemPrompt},
			},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		return err
	})
	if err != nil {
		return "", classifyProviderError(err)
	}

	source := extractText(message)
	if source == "" {
		return "", shared.ErrSynthesisMalformed
	}

	if _, err := handler.ExtractDescriptor(source); err != nil {
		return "", err
	}

	if ok, reason := c.gate.Validate(source); !ok {
		return "", shared.WrapError("synthesis", "Generate", shared.ErrPolicyRejection, reason, shared.ErrSynthesisRejected)
	}

	return source, nil
}

func extractText(message *anthropic.Message) string {
	if message == nil {
		return ""
	}
	var out string
	for _, block := range message.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			out += text.Text
		}
	}
	return out
}

func (c *Client) withResilience(ctx context.Context, fn func(ctx context.Context) error) error {
	retrier := retry.New(
		retry.WithMaxAttempts(c.cfg.MaxRetries+1),
		retry.WithInitialDelay(500*time.Millisecond),
		retry.WithRetryIf(isRetryableProviderError),
	)
	return retrier.Do(ctx, func(ctx context.Context) error {
		err := c.breaker.Execute(ctx, fn)
		if err == nil {
			return nil
		}
		if isRetryableProviderError(err) {
			return retry.Retryable(err)
		}
		return retry.Permanent(err)
	})
}

// isRetryableProviderError treats rate limiting and server-side failures as
// transient; everything else (bad request, auth, billing) is permanent.
func isRetryableProviderError(err error) bool {
	var apiErr *anthropic.Error
	if err == nil {
		return false
	}
	if ok := asAnthropicError(err, &apiErr); ok {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}

func asAnthropicError(err error, target **anthropic.Error) bool {
	if apiErr, ok := err.(*anthropic.Error); ok {
		*target = apiErr
		return true
	}
	return false
}

// hasBillingHint reports whether apiErr's body mentions a billing problem,
// the only way Anthropic distinguishes a billing-caused 400 from an
// ordinary malformed request.
func hasBillingHint(apiErr *anthropic.Error) bool {
	return strings.Contains(strings.ToLower(apiErr.Error()), "billing")
}

// classifyProviderError maps an Anthropic API failure onto §4.4's
// provider-error table: quota, auth, and billing are distinguished from
// plain unavailability so the caller can pick the right user message and
// admin-notification kind.
func classifyProviderError(err error) error {
	var apiErr *anthropic.Error
	if asAnthropicError(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return shared.WrapError("synthesis", "Generate", shared.ErrQuotaExceeded, "LLM provider rate limit exceeded", err)
		case apiErr.StatusCode == 401:
			return shared.WrapError("synthesis", "Generate", shared.ErrUnauthorized, "LLM provider authentication failed", err)
		case apiErr.StatusCode == 400 && hasBillingHint(apiErr):
			return shared.WrapError("synthesis", "Generate", shared.ErrBillingIssue, "LLM provider billing issue", err)
		case apiErr.StatusCode >= 500:
			return shared.WrapError("synthesis", "Generate", shared.ErrServiceUnavailable, "LLM provider unavailable", err)
		}
	}
	return shared.WrapError("synthesis", "Generate", shared.ErrServiceUnavailable, "LLM provider unavailable", err)
}
