// Package db defines the storage contracts shared by the Postgres and Redis stores.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KVStore is the byte-oriented cache the embedding cache writes through.
// Get returns ErrKeyNotFound for a missing key; a non-positive ttl stores without expiry.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Lifecycle is implemented by every store owned by the process entry point.
type Lifecycle interface {
	Pinger
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// WaitForReady pings p immediately and then with exponential backoff until it
// answers or timeout elapses. name labels the error ("database", "cache").
func WaitForReady(ctx context.Context, p Pinger, timeout time.Duration, name string) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 0

	if err := backoff.Retry(func() error { return p.Ping(ctx) }, backoff.WithContext(b, ctx)); err != nil {
		return fmt.Errorf("timeout waiting for %s: %w", name, err)
	}
	return nil
}
