package handler

import (
	"context"
	"time"
)

// Artifact is the HandlerArtifact entity: a unit of handler source code
// persisted in the artifact store and loaded into the process.
type Artifact struct {
	HandlerName string
	Source      string
	Version     string // optimistic-concurrency token (blob SHA on GitHub)
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Store is C2's port: create/read/update files in the remote content-addressed
// repository used to persist generated handler source.
type Store interface {
	Exists(ctx context.Context, handlerName string) (bool, error)
	Get(ctx context.Context, handlerName string) (*Artifact, error)
	Create(ctx context.Context, handlerName, source string) (*Artifact, error)
	Update(ctx context.Context, handlerName, source, expectedVersion string) (*Artifact, error)
}

// SecurityGate is the external plugin-security collaborator's port: a
// best-effort static guardrail, not a sandbox (§6, SPEC_FULL.md §3/O4).
// Implementations return (ok, reason) mirroring the Python original.
type SecurityGate interface {
	Validate(source string) (ok bool, reason string)
}

// Synthesiser is C4's port: turn (handler-name, natural-language spec) into
// validated handler source.
type Synthesiser interface {
	Synthesise(ctx context.Context, handlerName, specification string) (source string, err error)
}

// LocalCache is C3's in-memory load/loaded-handler cache port, kept separate
// from Store (the remote artifact repository) and from Registry (the durable
// token mapping): it holds the statically compiled Handler built from each
// loaded artifact, memoised by handler name. Quarantine state is kept on the
// registry entry, not here.
type LocalCache interface {
	Get(handlerName string) (Handler, bool)
	Put(handlerName string, h Handler)
	Invalidate(handlerName string)
}
