// Package storage provides the key-value collaborator used for session and
// job state. Implementations only promise single-key atomicity.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get for absent keys.
var ErrNotFound = errors.New("key not found")

// Store is a byte-valued key-value store with prefix scans.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// GetPattern returns every entry whose key starts with prefix.
	GetPattern(ctx context.Context, prefix string) (map[string][]byte, error)
	// DeletePattern removes every entry whose key starts with prefix.
	DeletePattern(ctx context.Context, prefix string) error
	Close() error
}

// Open returns a store for driver ("memory" or "sqlite").
func Open(driver, path string) (Store, error) {
	switch driver {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
