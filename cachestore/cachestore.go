// Package cachestore provides the resolution cache: a persisted
// key-value memo of adapter results with per-resource TTLs and explicit
// invalidation. A cache hit must be indistinguishable from a fresh adapter
// call returning identical data, so entries round-trip exactly through
// their persisted JSON representation.
//
// Two implementations ship with the engine: an in-process TTL store for
// single-instance use and tests, and a Redis-backed store whose persisted
// table other processes may inspect for diagnostics.
package cachestore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/c360/idresolve/errors"
	"github.com/c360/idresolve/types"
)

// KeySeparator joins the key fields in the persisted representation.
const KeySeparator = "|"

// Key identifies one cached lookup: which resource answered, for which
// ontology pair, for which source identifier.
type Key struct {
	Resource string
	Source   types.Ontology
	Target   types.Ontology
	SourceID string
}

// String returns the persisted key form "resource|sourceOnt|targetOnt|id".
func (k Key) String() string {
	return strings.Join([]string{k.Resource, string(k.Source), string(k.Target), k.SourceID}, KeySeparator)
}

// Validate checks that no key field is empty or contains the separator.
func (k Key) Validate() error {
	fields := []string{k.Resource, string(k.Source), string(k.Target), k.SourceID}
	for _, f := range fields {
		if f == "" {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "cachestore", "Validate", "empty key field")
		}
		if strings.Contains(f, KeySeparator) {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "cachestore", "Validate",
				fmt.Sprintf("key field %q contains separator", f))
		}
	}
	return nil
}

// Entry is the persisted cache value. Field names match the on-disk JSON
// representation consumed by external diagnostics and must not change.
type Entry struct {
	TargetIDs  []string  `json:"targetIds"`
	Confidence float64   `json:"confidence"`
	ResolvedAt time.Time `json:"resolvedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Negative reports whether the entry memoizes a no-match result.
func (e Entry) Negative() bool { return len(e.TargetIDs) == 0 }

// Expired reports whether the entry has passed its expiry.
func (e Entry) Expired(now time.Time) bool { return now.After(e.ExpiresAt) }

// Store is the cache contract consumed by the executor. Reads never block
// writes to other keys; concurrent writes to the same key resolve
// last-write-wins on later expiry.
type Store interface {
	// Get retrieves an entry. The boolean is false on miss or expiry.
	Get(ctx context.Context, key Key) (Entry, bool, error)

	// Put stores an entry with the given TTL, stamping ExpiresAt.
	Put(ctx context.Context, key Key, entry Entry, ttl time.Duration) error

	// Invalidate removes an entry. Removing an absent key is not an error.
	Invalidate(ctx context.Context, key Key) error

	// Close releases store resources.
	Close() error
}

// TTLPolicy selects the TTL for an entry: per-resource positive TTLs and a
// short, distinct negative TTL so a since-added mapping is never hidden
// indefinitely.
type TTLPolicy struct {
	Default     time.Duration
	Negative    time.Duration
	PerResource map[string]time.Duration
}

// DefaultTTLPolicy returns the engine defaults: 24h positive, 15m negative.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		Default:  24 * time.Hour,
		Negative: 15 * time.Minute,
	}
}

// For returns the TTL for an entry from the named resource.
func (p TTLPolicy) For(resource string, entry Entry) time.Duration {
	if entry.Negative() {
		if p.Negative > 0 {
			return p.Negative
		}
		return DefaultTTLPolicy().Negative
	}
	if ttl, ok := p.PerResource[resource]; ok && ttl > 0 {
		return ttl
	}
	if p.Default > 0 {
		return p.Default
	}
	return DefaultTTLPolicy().Default
}
