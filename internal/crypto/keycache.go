package crypto

import (
	"context"
	"sync"
)

// Resolver produces the plaintext private key, typically by decrypting the
// wallet file or querying the OS keychain.
type Resolver func(ctx context.Context) ([]byte, error)

// KeyCache holds the resolved plaintext private key in memory so repeated
// payments do not re-run the slow PBKDF2 derivation or keychain round-trip.
//
// Resolution is single-flight: concurrent callers against an unresolved cache
// share one in-flight resolver call instead of triggering N decryptions.
//
// The cache is explicitly owned state, not a hidden singleton. The owning
// process must call Clear before exiting so the buffer is overwritten;
// like Wipe this is best-effort in a garbage-collected runtime.
type KeyCache struct {
	mu       sync.Mutex
	key      []byte
	inflight *inflightResolve
}

type inflightResolve struct {
	done chan struct{}
	key  []byte
	err  error
}

func NewKeyCache() *KeyCache {
	return &KeyCache{}
}

// GetOrResolve returns the cached key, or invokes resolver exactly once even
// under concurrent callers and caches its result. The returned buffer is
// owned by the cache; callers must not modify or wipe it.
func (c *KeyCache) GetOrResolve(ctx context.Context, resolver Resolver) ([]byte, error) {
	c.mu.Lock()

	if c.key != nil {
		key := c.key
		c.mu.Unlock()
		return key, nil
	}

	if c.inflight != nil {
		// Another caller is already resolving; wait for its result.
		call := c.inflight
		c.mu.Unlock()

		select {
		case <-call.done:
			return call.key, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	call := &inflightResolve{done: make(chan struct{})}
	c.inflight = call
	c.mu.Unlock()

	call.key, call.err = resolver(ctx)
	close(call.done)

	c.mu.Lock()
	if call.err == nil {
		c.key = call.key
	}
	c.inflight = nil
	c.mu.Unlock()

	return call.key, call.err
}

// Clear wipes and drops the cached key. Call after any wallet mutation
// (import, migration) and at process shutdown.
func (c *KeyCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.key != nil {
		Wipe(c.key)
		c.key = nil
	}
}

// Cached reports whether a key is currently held, without resolving.
func (c *KeyCache) Cached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.key != nil
}
