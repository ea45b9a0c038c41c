package llm

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botforge/telegram-bot-factory/internal/domain/shared"
)

type passGate struct{}

func (passGate) Validate(source string) (bool, string) { return true, "" }

func TestNewClient_AppliesDefaults(t *testing.T) {
	c := NewClient(Config{APIKey: "sk-test"}, passGate{})
	assert.Equal(t, "claude-3-5-sonnet-20241022", c.cfg.Model)
	assert.Equal(t, 60*time.Second, c.cfg.Timeout)
	assert.Equal(t, 2, c.cfg.MaxRetries)
}

func TestNewClient_RespectsExplicitConfig(t *testing.T) {
	c := NewClient(Config{APIKey: "sk-test", Model: "claude-3-opus-20240229", Timeout: 5 * time.Second, MaxRetries: 5}, passGate{})
	assert.Equal(t, "claude-3-opus-20240229", c.cfg.Model)
	assert.Equal(t, 5*time.Second, c.cfg.Timeout)
	assert.Equal(t, 5, c.cfg.MaxRetries)
}

func TestIsRetryableProviderError_NonAnthropicError_IsNotRetryable(t *testing.T) {
	assert.False(t, isRetryableProviderError(errors.New("plain network failure")))
}

func TestIsRetryableProviderError_Nil_IsNotRetryable(t *testing.T) {
	assert.False(t, isRetryableProviderError(nil))
}

func TestClassifyProviderError_NonAnthropicError_FallsBackToServiceUnavailable(t *testing.T) {
	err := classifyProviderError(errors.New("connection reset"))
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
}

func TestExtractText_NilMessage_ReturnsEmpty(t *testing.T) {
	assert.Equal(t, "", extractText(nil))
}
