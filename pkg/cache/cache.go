// Package cache provides pluggable byte caches for converted output data.
//
// The conversion engine keeps an in-memory cache on each datum; this package
// adds the optional persistent layer beneath it, so that expensive
// conversions (SVG rasterization, sixel encoding of large images) survive
// across processes. Entries are keyed on the content hash of the source data
// plus the conversion parameters, so a key never needs invalidating: new
// content means a new key.
//
// Three backends are provided:
//   - FileCache: hash-sharded files under a directory (the default)
//   - RedisCache: shared cache for multi-machine setups
//   - NullCache: disables persistence entirely
package cache

import (
	"context"
	"time"
)

// Cache stores and retrieves byte values by key.
//
// Implementations must be safe for concurrent use. A miss is reported via
// the bool return, not an error; errors are reserved for backend failures.
type Cache interface {
	// Get retrieves a value. The second return is false on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value with an optional TTL (0 means no expiry).
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes a value. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any backend resources.
	Close() error
}
