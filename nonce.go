package acmeclient

import (
	"context"
	"fmt"
	"sync"
)

// NonceStore holds the single most recent Replay-Nonce observed, per
// spec.md §4.3 and the "Implicit shared mutable lastResponse" design note
// in §9: rather than caching a pool of nonces, the only piece of state that
// must persist across calls gets its own small, explicit owner.
//
// Invariant (spec.md §3): a nonce is used at most once. next() consumes the
// cached value; the caller is required to replenish it from the following
// response's Replay-Nonce header via Set.
type NonceStore struct {
	// refresh is called when the store is empty and a nonce is needed. It
	// must call Set at least once before returning nil, or the caller will
	// receive a NonceError.
	refresh func(ctx context.Context) error

	mu      sync.Mutex
	current string
}

// NewNonceStore builds a NonceStore whose refresh function is called
// whenever the store is exhausted.
func NewNonceStore(refresh func(ctx context.Context) error) *NonceStore {
	return &NonceStore{refresh: refresh}
}

// Set caches a freshly observed Replay-Nonce value.
func (ns *NonceStore) Set(nonce string) {
	if nonce == "" {
		return
	}

	ns.mu.Lock()
	ns.current = nonce
	ns.mu.Unlock()
}

// Next returns a nonce to sign the next request with, consuming the cached
// value. If none is cached, it synchronously refreshes first (spec.md §4.3:
// "failure to obtain a nonce is fatal for the current request").
func (ns *NonceStore) Next(ctx context.Context) (string, error) {
	if n := ns.take(); n != "" {
		return n, nil
	}

	if ns.refresh == nil {
		return "", &NonceError{Err: fmt.Errorf("no refresh source configured")}
	}

	if err := ns.refresh(ctx); err != nil {
		return "", &NonceError{Err: err}
	}

	if n := ns.take(); n != "" {
		return n, nil
	}

	return "", &NonceError{Err: fmt.Errorf("refresh did not yield a nonce")}
}

func (ns *NonceStore) take() string {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	n := ns.current
	ns.current = ""
	return n
}

// nonceSourceAdapter adapts NonceStore to go-jose's jose.NonceSource
// interface (a single no-argument Nonce() method), while keeping the
// context threaded through from the call site, in the style of the
// teacher's nonceSourceWithCtx.
type nonceSourceAdapter struct {
	store *NonceStore
	ctx   context.Context
}

func (a *nonceSourceAdapter) Nonce() (string, error) {
	return a.store.Next(a.ctx)
}
