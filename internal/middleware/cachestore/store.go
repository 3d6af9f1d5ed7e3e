// Package cachestore provides the stores behind the cache middleware.
package cachestore

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("cache store closed")

// Store holds cached dispatch results.
type Store interface {
	// Get returns the value for key. ok is false on a miss.
	Get(ctx context.Context, key string) (value any, ok bool, err error)

	// Set stores value under key. A ttl of zero means no expiry.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// Delete removes key.
	Delete(ctx context.Context, key string) error

	// Close releases resources held by the store.
	Close() error
}
