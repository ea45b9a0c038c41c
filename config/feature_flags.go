package config

import (
	"sync"
)

// FeatureFlags manages the small set of runtime toggles this service needs.
// Unlike a multi-tenant rollout system, there is no per-user cohort here:
// a bot-factory instance either has a flag on or off for all requests.
type FeatureFlags struct {
	mu sync.RWMutex

	// DevOpenAdmin disables the X-Admin-Token check entirely when true.
	// Per DESIGN.md O3 this must default to false even in development: an
	// admin token must be explicitly configured, or admin routes answer 403.
	DevOpenAdmin bool

	// PrimaryBotPluginOrder is carried on the flags but no component reads
	// it: neither handlercache nor the webhook dispatcher consults it when
	// ordering handlers, and LoadFeatureFlags never sets it.
	PrimaryBotPluginOrder []string
}

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		DevOpenAdmin: getEnvBool("FEATURE_DEV_OPEN_ADMIN", false),
	}
	return ff
}

// IsDevOpenAdmin reports whether admin-gated routes should skip auth.
func (ff *FeatureFlags) IsDevOpenAdmin() bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()
	return ff.DevOpenAdmin
}

// SetDevOpenAdmin allows tests to flip the flag without env vars.
func (ff *FeatureFlags) SetDevOpenAdmin(enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	ff.DevOpenAdmin = enabled
}
