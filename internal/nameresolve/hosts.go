// Package nameresolve maps a virtual IPv6 address to a hidden-service
// hostname, either via a hosts-file style cache or by deterministic
// encoding.
//
// Reading and watching the backing hosts file is someone else's job;
// HostsStore is just the cache half: something external populates it
// via Put, and Check refreshes it before a lookup consults it if it has
// been marked stale.
package nameresolve

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// HostsStore caches virtual-address -> hostname mappings with the same
// TTL-expiry shape rufengx-xproxy's socks5.Server uses for its
// TCP/UDP-associate cache: entries go stale and a refresh call
// repopulates what's missing.
type HostsStore struct {
	mu    sync.Mutex
	c     *cache.Cache
	stale bool

	// Refresh is called by Check when the store is stale. It is the
	// external hosts-file reader's entry point; nil means there is
	// nothing to refresh (hosts lookup effectively always misses).
	Refresh func(put func(addr [16]byte, name string, ttl time.Duration))
}

// NewHostsStore creates a store whose entries expire after ttl unless
// refreshed again before then.
func NewHostsStore(ttl time.Duration) *HostsStore {
	return &HostsStore{
		c: cache.New(ttl, ttl/2),
	}
}

// Put inserts or refreshes a mapping with an explicit per-entry TTL.
func (h *HostsStore) Put(addr [16]byte, name string, ttl time.Duration) {
	h.c.Set(keyOf(addr), name, ttl)
}

// MarkStale flags the store for refresh on the next Check, e.g. because
// the backing hosts file's mtime changed.
func (h *HostsStore) MarkStale() {
	h.mu.Lock()
	h.stale = true
	h.mu.Unlock()
}

// Check refreshes the store if it has been marked stale.
func (h *HostsStore) Check() {
	h.mu.Lock()
	stale := h.stale
	h.stale = false
	h.mu.Unlock()

	if stale && h.Refresh != nil {
		h.Refresh(h.Put)
	}
}

// Get returns the cached hostname for addr, if any.
func (h *HostsStore) Get(addr [16]byte) (string, bool) {
	v, ok := h.c.Get(keyOf(addr))
	if !ok {
		return "", false
	}
	return v.(string), true
}

func keyOf(addr [16]byte) string {
	return string(addr[:])
}
