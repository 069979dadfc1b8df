// Package ephemeral provides the TTL-capable key/value store backing
// rate-limit counters and typing-indicator flags. The store's per-key
// expiry is the only cross-call coordination primitive used here; it is
// intentionally not linearizable, and brief overcounts under concurrent
// increments are acceptable.
package ephemeral

import (
	"context"
	"time"
)

// Store is the minimal TTL key/value surface the relay needs.
type Store interface {
	// Incr atomically increments a counter key and returns the new value.
	// Missing keys start at zero.
	Incr(ctx context.Context, key string) (int64, error)
	// Expire sets a key's time to live.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// SetJSON stores a JSON-encoded value with a TTL.
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	// GetJSON loads a JSON value into dest. Returns false when the key
	// is missing or expired.
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	// Del removes keys. Deleting a missing key is not an error.
	Del(ctx context.Context, keys ...string) error
	// Keys lists keys matching a glob pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)
	// Close releases the underlying client.
	Close() error
}
