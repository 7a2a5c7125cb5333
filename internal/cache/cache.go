// Package cache provides driver-based storage for principal-list snapshots,
// so a share sheet can render the last known state before the network answers.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/docmesh/sharekit/internal/access"
)

var ErrNotFound = errors.New("resource not cached")

// Snapshot is a cached principal list for one resource, in display order.
type Snapshot struct {
	Resource   string
	Principals []access.PrincipalRef
	FetchedAt  time.Time
}

// Cache stores per-resource principal snapshots.
type Cache interface {
	// Get retrieves the snapshot for a resource. Returns ErrNotFound if
	// the resource has never been cached.
	Get(ctx context.Context, resource string) (Snapshot, error)

	// Put replaces the snapshot for a resource.
	Put(ctx context.Context, snap Snapshot) error

	// Delete removes the snapshot for a resource.
	Delete(ctx context.Context, resource string) error

	// Close releases resources.
	Close() error
}

// DriverFactory creates a cache instance from driver-specific settings.
type DriverFactory func(settings map[string]any) (Cache, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]DriverFactory)
)

// Register registers a driver factory by name.
// This is typically called from init() in driver packages.
func Register(name string, factory DriverFactory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = factory
}

// New creates a cache instance for the named driver.
func New(name string, settings map[string]any) (Cache, error) {
	driversMu.RLock()
	factory, ok := drivers[name]
	driversMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown cache driver: %s", name)
	}

	return factory(settings)
}

// AvailableDrivers returns the list of registered driver names.
func AvailableDrivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()

	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	return names
}
