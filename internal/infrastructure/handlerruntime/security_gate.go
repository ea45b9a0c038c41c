package handlerruntime

import "strings"

// StaticSecurityGate is O4's conservative stand-in for the out-of-scope
// plugin security collaborator (§1, §6, SPEC_FULL.md O4): a token scan for
// the same policy the Python original enforces with an AST walk
// (original_source/engine/plugin_security.py), reimplemented here as a
// substring scan because generated Go source is never parsed or compiled by
// this process. It is deliberately partial, not a sandbox.
type StaticSecurityGate struct{}

// NewStaticSecurityGate builds the default handler.SecurityGate.
func NewStaticSecurityGate() *StaticSecurityGate {
	return &StaticSecurityGate{}
}

// forbiddenTokens mirrors plugin_security.py's FORBIDDEN_IMPORT_ROOTS /
// FORBIDDEN_BUILTIN_CALLS / FORBIDDEN_OS_CALL_ATTRS tables, translated to
// the Go standard library packages and calls with the same capability.
var forbiddenTokens = []string{
	"os/exec",
	"syscall",
	"plugin\"", // Go's plugin package: dynamic code loading
	"os.Getenv",
	"os.Environ",
	"unsafe\"",
	"net.Dial",
	"net/http",
	"io/ioutil.ReadFile",
	"os.Open",
	"os.Create",
	"os.Remove",
}

// Validate scans source for tokens the creation flow's generated handlers
// must never contain. It never executes or compiles source.
func (g *StaticSecurityGate) Validate(source string) (ok bool, reason string) {
	for _, token := range forbiddenTokens {
		if strings.Contains(source, token) {
			return false, "forbidden_token: " + strings.TrimSuffix(token, "\"")
		}
	}
	return true, ""
}
