// Package memory implements an in-process cache driver.
package memory

import (
	"context"
	"sync"

	"github.com/docmesh/sharekit/internal/access"
	"github.com/docmesh/sharekit/internal/cache"
)

func init() {
	cache.Register("memory", func(_ map[string]any) (cache.Cache, error) {
		return New(), nil
	})
}

// Cache is a map-backed cache. Safe for concurrent use.
type Cache struct {
	mu    sync.RWMutex
	snaps map[string]cache.Snapshot
}

// New creates an empty in-memory cache.
func New() *Cache {
	return &Cache{snaps: make(map[string]cache.Snapshot)}
}

func (c *Cache) Get(_ context.Context, resource string) (cache.Snapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap, ok := c.snaps[resource]
	if !ok {
		return cache.Snapshot{}, cache.ErrNotFound
	}
	// Copy the slice so callers cannot mutate the cached state.
	out := snap
	out.Principals = append([]access.PrincipalRef(nil), snap.Principals...)
	return out, nil
}

func (c *Cache) Put(_ context.Context, snap cache.Snapshot) error {
	stored := snap
	stored.Principals = append([]access.PrincipalRef(nil), snap.Principals...)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps[snap.Resource] = stored
	return nil
}

func (c *Cache) Delete(_ context.Context, resource string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snaps, resource)
	return nil
}

func (c *Cache) Close() error {
	return nil
}
