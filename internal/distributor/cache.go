// Package distributor drains the shared frame queue, encodes frames to JPEG,
// and fans them out to the latest-frame cache and any subscribed sinks.
package distributor

import (
	"sync"

	"github.com/google/uuid"
)

// Cache holds the most recent encoded JPEG per source. Streaming handlers
// poll it at their own cadence; a slow client never sees anything but the
// newest frame.
type Cache struct {
	mu     sync.RWMutex
	frames map[uuid.UUID][]byte
}

func NewCache() *Cache {
	return &Cache{frames: make(map[uuid.UUID][]byte)}
}

// Get returns the latest JPEG for a source. The slice is never mutated after
// Set, so callers may write it out directly.
func (c *Cache) Get(id uuid.UUID) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	jpg, ok := c.frames[id]
	return jpg, ok
}

func (c *Cache) Set(id uuid.UUID, jpg []byte) {
	c.mu.Lock()
	c.frames[id] = jpg
	c.mu.Unlock()
}

// Delete evicts a source, typically when it is stopped.
func (c *Cache) Delete(id uuid.UUID) {
	c.mu.Lock()
	delete(c.frames, id)
	c.mu.Unlock()
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.frames)
}
