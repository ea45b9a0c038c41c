package redis

import "context"

// InProgressMarker implements the 180s creation-in-progress mark used by
// §4.7.3 step 2 to stop two concurrent registrations racing on the same
// handler_name while artifact synthesis and persistence are in flight.
type InProgressMarker struct {
	cache *Cache
}

// NewInProgressMarker builds an InProgressMarker.
func NewInProgressMarker(cache *Cache) *InProgressMarker {
	return &InProgressMarker{cache: cache}
}

// TryMark atomically marks handlerName in-progress, returning false if it
// is already marked by another flow.
func (m *InProgressMarker) TryMark(ctx context.Context, handlerName string) (bool, error) {
	return m.cache.SetNX(ctx, InProgressKey(handlerName), "1", TTLCreationInProgress)
}

// Release clears the in-progress mark once the creation procedure finishes,
// successfully or not (§4.7.3 step 9).
func (m *InProgressMarker) Release(ctx context.Context, handlerName string) error {
	return m.cache.Delete(ctx, InProgressKey(handlerName))
}

// IsMarked reports whether handlerName currently has an in-progress mark.
func (m *InProgressMarker) IsMarked(ctx context.Context, handlerName string) (bool, error) {
	return m.cache.Exists(ctx, InProgressKey(handlerName))
}
