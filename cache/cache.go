// Package cache stores rendered pages for a short time.
package cache

import (
	"context"
	"time"
)

// DefaultTTL is how long a cached page is served.
const DefaultTTL = 20 * time.Second

// Store is a page cache. Get reports a miss with ok == false.
//
// Every prefix has a generation that Invalidate bumps. Readers put the generation
// they saw before rendering into the key, so a page rendered before an
// invalidation can't be stored under a key later readers use.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	// Generation returns the current generation of prefix, 0 if it was never invalidated.
	Generation(ctx context.Context, prefix string) (uint64, error)
	// Invalidate bumps the generation of prefix and drops every entry whose key starts with it.
	Invalidate(ctx context.Context, prefix string) error
}

// Nop caches nothing.
type Nop struct{}

var _ Store = Nop{}

func (Nop) Get(ctx context.Context, key string) ([]byte, bool, error) { return nil, false, nil }

func (Nop) Set(ctx context.Context, key string, value []byte) error { return nil }

func (Nop) Generation(ctx context.Context, prefix string) (uint64, error) { return 0, nil }

func (Nop) Invalidate(ctx context.Context, prefix string) error { return nil }
