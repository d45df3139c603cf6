// Package profile caches identity profile metadata published on the medium.
// The cache is explicit: Get never touches the network, Refresh is the only
// operation that does. Writes are last-write-wins by identity.
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/provshare/provshare/pkg/event"
	"github.com/provshare/provshare/pkg/keys"
	"github.com/provshare/provshare/pkg/relay"
	"github.com/provshare/provshare/pkg/storage"
)

// Profile is the plaintext metadata an identity publishes about itself.
type Profile struct {
	Name      string `json:"name"`
	About     string `json:"about,omitempty"`
	Picture   string `json:"picture,omitempty"`
	UpdatedAt int64  `json:"-"`
}

// Cache holds profiles in memory with optional badger-backed persistence.
type Cache struct {
	medium relay.Medium
	local  *storage.LocalStore
	log    *slog.Logger

	mu      sync.RWMutex
	entries map[keys.PublicKey]Profile
}

// NewCache builds an empty cache. local may be nil for memory-only caching.
func NewCache(medium relay.Medium, local *storage.LocalStore, log *slog.Logger) *Cache {
	return &Cache{
		medium:  medium,
		local:   local,
		log:     log,
		entries: make(map[keys.PublicKey]Profile),
	}
}

// Get returns the cached profile for an identity. It never performs network
// access; a miss falls through to the local store, then reports absent.
func (c *Cache) Get(pk keys.PublicKey) (Profile, bool) {
	c.mu.RLock()
	p, ok := c.entries[pk]
	c.mu.RUnlock()
	if ok {
		return p, true
	}

	if c.local != nil {
		raw, err := c.local.Get(profileKey(pk))
		if err == nil {
			var stored Profile
			if err := json.Unmarshal(raw, &stored); err == nil {
				c.put(pk, stored)
				return stored, true
			}
		}
	}
	return Profile{}, false
}

// Refresh fetches the newest profile record for an identity from the medium
// and stores it. A missing profile is not an error; the cache entry is
// simply left absent.
func (c *Cache) Refresh(ctx context.Context, pk keys.PublicKey) error {
	filter := event.NewFilter().
		ByAuthor(pk).
		ByKind(event.KindProfile).
		WithLimit(1)

	ev, err := c.medium.QuerySingle(ctx, filter)
	if err != nil {
		return fmt.Errorf("query profile: %w", err)
	}
	if ev == nil {
		return nil
	}

	var p Profile
	if err := json.Unmarshal([]byte(ev.Content), &p); err != nil {
		return fmt.Errorf("decode profile: %w", err)
	}
	p.UpdatedAt = ev.CreatedAt

	c.mu.RLock()
	prev, exists := c.entries[pk]
	c.mu.RUnlock()
	if exists && prev.UpdatedAt > p.UpdatedAt {
		return nil
	}

	c.put(pk, p)
	if c.local != nil {
		raw, err := json.Marshal(p)
		if err == nil {
			if err := c.local.Put(profileKey(pk), raw); err != nil {
				// Persistence is best-effort; the in-memory entry stands.
				c.log.Warn("persist profile failed", "identity", pk.String(), "error", err)
			}
		}
	}
	return nil
}

// Prefetch refreshes a set of identities, logging and continuing on
// failures. Used opportunistically; absence of a profile never blocks an
// operation.
func (c *Cache) Prefetch(ctx context.Context, pks []keys.PublicKey) {
	for _, pk := range pks {
		if err := c.Refresh(ctx, pk); err != nil {
			c.log.Debug("profile prefetch failed", "identity", pk.String(), "error", err)
		}
	}
}

func (c *Cache) put(pk keys.PublicKey, p Profile) {
	c.mu.Lock()
	c.entries[pk] = p
	c.mu.Unlock()
}

func profileKey(pk keys.PublicKey) []byte {
	return []byte("profile/" + pk.String())
}
