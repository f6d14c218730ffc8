package counter

import (
	"context"
	"time"
)

// CacheWindow is how long a persisted request may answer identical requests.
const CacheWindow = 5 * time.Minute

// Cache answers repeat (URL, element) requests from recent request history.
type Cache struct {
	history History
	clock   Clock
	window  time.Duration
}

// NewCache builds a Cache over history using the fixed CacheWindow.
func NewCache(history History, clock Clock) *Cache {
	return &Cache{history: history, clock: clock, window: CacheWindow}
}

// Lookup returns the newest request for (fullURL, element) written within the
// window. The boolean is false on a miss.
func (c *Cache) Lookup(ctx context.Context, fullURL, element string) (CachedRequest, bool, error) {
	since := c.clock.Now().Add(-c.window)
	return c.history.LatestRequest(ctx, fullURL, element, since)
}
