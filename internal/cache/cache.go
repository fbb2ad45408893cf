// Package cache stores short-lived string values such as the canned response.
package cache

import (
	"context"
	"time"
)

// Store is a key/value cache with per-entry expiry.
type Store interface {
	// Get returns the value and true when present and unexpired.
	Get(ctx context.Context, key string) (string, bool, error)
	// Put writes value under key, expiring after ttl.
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	Ping(ctx context.Context) error
	Close() error
}
