package handlercache

import (
	"sync"

	"github.com/botforge/telegram-bot-factory/internal/domain/handler"
)

// InMemoryCache implements handler.LocalCache: the memoised handler-name ->
// loaded Handler map C3 keeps on top of the durable registry.
type InMemoryCache struct {
	mu       sync.RWMutex
	handlers map[string]handler.Handler
}

// NewInMemoryCache builds an empty InMemoryCache.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{handlers: make(map[string]handler.Handler)}
}

func (c *InMemoryCache) Get(handlerName string) (handler.Handler, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.handlers[handlerName]
	return h, ok
}

func (c *InMemoryCache) Put(handlerName string, h handler.Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[handlerName] = h
}

func (c *InMemoryCache) Invalidate(handlerName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, handlerName)
}

// Names returns the handler names currently memoised, used by the periodic
// directory sync to detect entries whose backing file has disappeared.
func (c *InMemoryCache) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.handlers))
	for name := range c.handlers {
		names = append(names, name)
	}
	return names
}
