// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
// These map 1:1 onto the error taxonomy every component reports through:
// transient transport, invalid input, constraint violation, quota/auth/billing,
// handler fault, and policy rejection.
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors (invalid input)
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrFutureTimestamp = errors.New("timestamp cannot be in the future")
	ErrInvalidFormat   = errors.New("invalid format")

	// State errors
	ErrInvalidState     = errors.New("invalid state")
	ErrStateTransition  = errors.New("invalid state transition")
	ErrAlreadyProcessed = errors.New("already processed")
	ErrExpired          = errors.New("expired")

	// Constraint violation (unique index, FK, partial index)
	ErrConstraintViolation = errors.New("constraint violation")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Quota / billing
	ErrQuotaExceeded = errors.New("quota exceeded")
	ErrBillingIssue  = errors.New("billing issue")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrOptimisticLock         = errors.New("optimistic lock failure")

	// External service / transient transport errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")

	// Handler fault: a loaded handler panicked, returned an error, or its
	// descriptor could not be interpreted.
	ErrHandlerFault = errors.New("handler fault")

	// Policy rejection: the plugin security gate refused the generated source.
	ErrPolicyRejection = errors.New("policy rejection")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "registry", "flow", "event", "telegram"
	Op      string // Operation that failed, e.g., "Create", "Update"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Registry domain errors (C3 Handler Registry & Cache, C1 bot_registry collection)
var (
	ErrBotNotFound       = NewDomainError("registry", "Find", ErrNotFound, "bot registry entry not found")
	ErrBotTokenExists    = NewDomainError("registry", "Create", ErrConstraintViolation, "token already registered")
	ErrInvalidBotToken   = NewDomainError("registry", "Validate", ErrInvalidInput, "bot token fails validation")
	ErrHandlerQuarantined = NewDomainError("registry", "Load", ErrHandlerFault, "handler is quarantined")
	ErrHandlerNotLoaded  = NewDomainError("registry", "Invoke", ErrNotFound, "handler not loaded")
)

// Flow domain errors (C7 Creation Flow State Machine, bot_flows collection)
var (
	ErrFlowNotFound        = NewDomainError("flow", "Find", ErrNotFound, "creation flow not found")
	ErrFlowAlreadyExists   = NewDomainError("flow", "Create", ErrConstraintViolation, "a flow for this bot_token_id already exists")
	ErrFlowInvalidStage    = NewDomainError("flow", "Transition", ErrStateTransition, "invalid stage transition")
	ErrFlowRateLimited     = NewDomainError("flow", "Start", ErrRateLimited, "creation rate limit exceeded for this user")
	ErrFlowInProgress      = NewDomainError("flow", "Start", ErrAlreadyProcessed, "a creation is already in progress for this user")
	ErrFlowTokenTaken      = NewDomainError("flow", "Validate", ErrConstraintViolation, "bot token is already registered")
)

// Event domain errors (C8 Funnel Analytics, funnel_events/user_actions collections)
var (
	ErrEventAlreadyLogged = NewDomainError("event", "Log", ErrAlreadyProcessed, "event already logged for this idempotency key")
	ErrAnalyticsForbidden = NewDomainError("analytics", "Query", ErrForbidden, "admin authentication required")
)

// Conversation domain errors (conversation_state cache)
var (
	ErrConversationNotFound = NewDomainError("conversation", "Load", ErrNotFound, "no conversation state")
)

// Handler artifact / synthesiser domain errors (C2 Artifact Store, C4 LLM Code Synthesiser)
var (
	ErrArtifactNotFound     = NewDomainError("artifact", "Get", ErrNotFound, "handler artifact not found")
	ErrArtifactConflict     = NewDomainError("artifact", "Update", ErrOptimisticLock, "artifact version mismatch")
	ErrSynthesisRejected    = NewDomainError("synthesis", "Generate", ErrPolicyRejection, "generated source rejected by plugin security gate")
	ErrSynthesisMalformed   = NewDomainError("synthesis", "Generate", ErrInvalidFormat, "generated source missing or malformed handler descriptor")
	ErrProviderUnavailable  = NewDomainError("synthesis", "Generate", ErrServiceUnavailable, "LLM provider unavailable")
	ErrProviderQuota        = NewDomainError("synthesis", "Generate", ErrQuotaExceeded, "LLM provider quota exceeded")
	ErrProviderBilling      = NewDomainError("synthesis", "Generate", ErrBillingIssue, "LLM provider billing issue")
	ErrProviderAuth         = NewDomainError("synthesis", "Generate", ErrUnauthorized, "LLM provider authentication failed")
)

// External service errors (C5 Telegram client, C2 artifact store client)
var (
	ErrTelegramAPIFailed  = NewDomainError("telegram", "Send", ErrExternalService, "Telegram API request failed")
	ErrTelegramRateLimited = NewDomainError("telegram", "Send", ErrRateLimited, "Telegram API rate limit exceeded")
	ErrArtifactStoreFailed = NewDomainError("artifactstore", "Request", ErrExternalService, "artifact store request failed")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsConflict checks if the error is a constraint violation or optimistic lock failure.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConstraintViolation) ||
		errors.Is(err, ErrOptimisticLock) ||
		errors.Is(err, ErrConcurrentModification)
}

// IsValidation checks if the error is a validation (invalid input) error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsQuotaExceeded checks if the error is a quota or billing error.
func IsQuotaExceeded(err error) bool {
	return errors.Is(err, ErrQuotaExceeded) || errors.Is(err, ErrBillingIssue)
}

// IsAuthFailure checks if the error is an authentication/authorization
// rejection from an external provider.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsExternalService checks if the error is from an external service (transient transport).
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}

// IsHandlerFault reports whether err originated from a loaded handler.
func IsHandlerFault(err error) bool {
	return errors.Is(err, ErrHandlerFault)
}

// IsPolicyRejection reports whether err is a plugin security rejection.
func IsPolicyRejection(err error) bool {
	return errors.Is(err, ErrPolicyRejection)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConcurrentModification)
}
