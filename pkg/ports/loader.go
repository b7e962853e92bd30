package ports

import "context"

// ChartLoader reads chart sources. Locations are whatever the loader
// understands: file paths for the filesystem loader, keys for the memory loader.
type ChartLoader interface {
	// Load returns the raw bytes of the chart or fragment at location.
	Load(location string) ([]byte, error)

	// Resolve joins a location relative to the location of the including document.
	Resolve(base, location string) string
}

// Watchable defines an interface for loaders that can notify about backend changes.
// This is typically used for hot-reload.
type Watchable interface {
	// Watch returns a channel that is signaled when any watched source changes.
	Watch(ctx context.Context, locations ...string) (<-chan struct{}, error)
}
