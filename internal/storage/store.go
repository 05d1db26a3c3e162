// Package storage is the key-value persistence port behind the decision
// log and learning patterns. Absence or corruption of stored data is
// treated as empty state by every consumer, never as a fatal condition.
package storage

import "context"

// Store is the persistence port: get/set/list-by-prefix, swappable with
// the in-memory fake for tests.
type Store interface {
	// Get returns the value for key; found=false when absent.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	// Set writes the value for key, overwriting.
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key; deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// ListPrefix returns all key/value pairs whose key starts with prefix.
	ListPrefix(ctx context.Context, prefix string) (map[string][]byte, error)
	// Close releases underlying resources.
	Close() error
}
