package store

import "context"

// DurableStore is a small key-value abstraction over the durable storage
// backing the trigger gate and rate limiter. Uniqueness across processes is
// not guaranteed by callers; implementations must tolerate last-writer-wins
// races.
type DurableStore interface {
	// GetString returns the value for key and whether it exists.
	GetString(ctx context.Context, key string) (string, bool, error)
	// SetString stores the value for key, overwriting any previous value.
	SetString(ctx context.Context, key, value string) error
	// Remove deletes the key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
	// Close releases any underlying connections.
	Close() error
}
