// Package timeutil provides UTC time helpers used across the bot factory:
// TTL expiry arithmetic, rolling-window bounds for rate limiting and
// retention, and a couple of standard formats for logs and API responses.
// No external dependencies - uses only standard library.
package timeutil

import "time"

// Now returns the current time in UTC. All stored timestamps use this;
// there is no tenant-local timezone in this service.
func Now() time.Time {
	return time.Now().UTC()
}

// ToUTC converts a time to UTC.
func ToUTC(t time.Time) time.Time {
	return t.UTC()
}

// ExpiresAt returns the UTC instant `ttl` from now, used for TTL-stamped
// cache rows (conversation state, creation-in-progress marks).
func ExpiresAt(ttl time.Duration) time.Time {
	return Now().Add(ttl)
}

// IsExpired reports whether the given expiry instant has passed.
func IsExpired(expiresAt time.Time) bool {
	return Now().After(expiresAt)
}

// StartOfDay returns the start of the UTC day containing t.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// NDaysAgo returns the UTC instant n days before now, the lower bound used
// by rolling-window queries (§4.7.2's 24h registration limit, the 90-day
// funnel-event retention window).
func NDaysAgo(n int) time.Time {
	return Now().AddDate(0, 0, -n)
}

// DaysSince calculates the number of whole days since the given time.
func DaysSince(t time.Time) int {
	now := StartOfDay(Now())
	then := StartOfDay(t)
	return int(now.Sub(then).Hours() / 24)
}

// Common date/time formats used in logs and JSON responses.
const (
	FormatDate            = "2006-01-02"
	FormatDateTime        = "2006-01-02 15:04"
	FormatDateTimeSeconds = time.RFC3339
)

// FormatDateStr formats a time as a UTC date string (YYYY-MM-DD).
func FormatDateStr(t time.Time) string {
	return t.UTC().Format(FormatDate)
}
