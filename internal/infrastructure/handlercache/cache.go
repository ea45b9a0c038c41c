// Package handlercache implements C3, the Handler Registry & Cache: the
// durable token -> handler-name mapping plus the memoised handler-name ->
// loaded Handler lookup, including the §4.3 quarantine procedure.
package handlercache

import (
	"context"
	"time"

	"github.com/botforge/telegram-bot-factory/internal/domain/handler"
	"github.com/botforge/telegram-bot-factory/internal/domain/registry"
	"github.com/botforge/telegram-bot-factory/internal/domain/shared"
	"github.com/botforge/telegram-bot-factory/internal/infrastructure/artifactstore"
	"github.com/botforge/telegram-bot-factory/internal/infrastructure/handlerruntime"
	"github.com/botforge/telegram-bot-factory/pkg/logger"
)

// quarantinePeriod is the QuarantineUntil horizon recorded on a registry
// entry whose artifact fails to load. Load refuses any entry whose status is
// quarantined and does not consult this horizon.
const quarantinePeriod = 24 * time.Hour

// Cache wires C3's two tables together: registry.Repository (durable,
// token -> handler_name) and an in-memory handler.LocalCache (handler_name
// -> loaded Handler), fed from the local artifact mirror with a remote
// fallback for names the mirror hasn't synced yet.
type Cache struct {
	registry registry.Repository
	mirror   *artifactstore.LocalMirror
	remote   handler.Store
	gate     handler.SecurityGate
	state    handlerruntime.StateStore
	local    handler.LocalCache
	log      *logger.Logger
}

// New builds a Cache.
func New(reg registry.Repository, mirror *artifactstore.LocalMirror, remote handler.Store, gate handler.SecurityGate, state handlerruntime.StateStore, local handler.LocalCache, log *logger.Logger) *Cache {
	if log == nil {
		log = logger.Default()
	}
	return &Cache{registry: reg, mirror: mirror, remote: remote, gate: gate, state: state, local: local, log: log}
}

// Load returns the memoised Handler for handlerName, populating the local
// mirror and in-memory cache on a miss. A load failure quarantines the
// artifact per §4.3: the mirrored file and in-memory entry are removed and
// the registry entry is marked quarantined (best-effort; failures here are
// logged, not propagated, since the caller must still return {ok: true}).
func (c *Cache) Load(ctx context.Context, handlerName string) (handler.Handler, error) {
	if h, ok := c.local.Get(handlerName); ok {
		return h, nil
	}

	if entry, err := c.registry.GetByHandlerName(ctx, shared.HandlerName(handlerName)); err == nil && entry.Status == registry.StatusQuarantined {
		return nil, shared.ErrHandlerQuarantined
	}

	source, ok, err := c.mirror.Read(handlerName)
	if err != nil {
		return nil, err
	}
	if !ok {
		source, err = c.fetchAndMirror(ctx, handlerName)
		if err != nil {
			return nil, err
		}
	}

	h, err := c.build(handlerName, source)
	if err != nil {
		c.quarantine(ctx, handlerName, err.Error())
		return nil, shared.ErrHandlerQuarantined
	}

	c.local.Put(handlerName, h)
	return h, nil
}

func (c *Cache) fetchAndMirror(ctx context.Context, handlerName string) (string, error) {
	artifact, err := c.remote.Get(ctx, handlerName)
	if err != nil {
		return "", err
	}
	if err := c.mirror.Write(handlerName, artifact.Source); err != nil {
		c.log.Warn("failed to mirror fetched artifact", logger.String("handler_name", handlerName), logger.Err(err))
	}
	return artifact.Source, nil
}

func (c *Cache) build(handlerName, source string) (handler.Handler, error) {
	if ok, reason := c.gate.Validate(source); !ok {
		return nil, shared.WrapError("handlercache", "Load", shared.ErrPolicyRejection, reason, shared.ErrSynthesisRejected)
	}

	descriptor, err := handler.ExtractDescriptor(source)
	if err != nil {
		return nil, err
	}

	return handlerruntime.NewDeclarativeHandler(handlerName, descriptor, c.state), nil
}

// quarantine removes the artifact from the mirror and in-memory cache and
// marks the registry entry quarantined. Best-effort: every step is
// attempted even if an earlier one fails, and failures are only logged.
func (c *Cache) quarantine(ctx context.Context, handlerName, reason string) {
	c.log.Warn("quarantining handler", logger.String("handler_name", handlerName), logger.String("reason", reason))

	c.local.Invalidate(handlerName)

	if err := c.mirror.Delete(handlerName); err != nil {
		c.log.Warn("failed to delete mirrored artifact during quarantine", logger.String("handler_name", handlerName), logger.Err(err))
	}

	entry, err := c.registry.GetByHandlerName(ctx, shared.HandlerName(handlerName))
	if err != nil {
		c.log.Warn("failed to load registry entry during quarantine", logger.String("handler_name", handlerName), logger.Err(err))
		return
	}
	entry.Quarantine(reason, time.Now().UTC().Add(quarantinePeriod))
	if err := c.registry.Update(ctx, entry); err != nil {
		c.log.Warn("failed to persist quarantine", logger.String("handler_name", handlerName), logger.Err(err))
	}
}

// Register installs a statically compiled handler (a built-in Go plugin, not
// an LLM-synthesised artifact) directly into the in-memory cache, bypassing
// the mirror/remote load path entirely. Used at startup to make the creation
// flow plugin available to the primary-token dispatch loop.
func (c *Cache) Register(handlerName string, h handler.Handler) {
	c.local.Put(handlerName, h)
}

// Names returns the handler names currently loaded in memory, in no
// particular order; callers that need determinism (the primary-token
// dispatch loop) must sort the result themselves.
func (c *Cache) Names() []string {
	if namer, ok := c.local.(interface{ Names() []string }); ok {
		return namer.Names()
	}
	return nil
}

// Invalidate drops handlerName from the in-memory cache without touching the
// registry or mirror, so the next Load re-reads the mirrored source. Nothing
// in this repository subscribes to the Redis plugin-invalidation channel or
// calls Invalidate in response to it.
func (c *Cache) Invalidate(handlerName string) {
	c.local.Invalidate(handlerName)
}

// SyncDirectory implements §4.3's periodic synchronisation: entries whose
// backing mirror file has disappeared are evicted from the in-memory cache,
// and files discovered on disk but not yet cached are eagerly loaded in
// sorted order (LocalMirror.List already returns them sorted).
func (c *Cache) SyncDirectory(ctx context.Context) error {
	names, err := c.mirror.List()
	if err != nil {
		return err
	}

	onDisk := make(map[string]struct{}, len(names))
	for _, name := range names {
		onDisk[name] = struct{}{}
	}

	if namer, ok := c.local.(interface{ Names() []string }); ok {
		for _, cached := range namer.Names() {
			if _, onDiskOK := onDisk[cached]; !onDiskOK {
				c.local.Invalidate(cached)
			}
		}
	}

	for _, name := range names {
		if _, ok := c.local.Get(name); ok {
			continue
		}
		if _, err := c.Load(ctx, name); err != nil {
			c.log.Warn("failed to eagerly load artifact during sync", logger.String("handler_name", name), logger.Err(err))
		}
	}
	return nil
}
