package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/noticeboardhq/noticeboard/pkg/metrics"
)

// Store is the shared cache used across request workers and the maintenance
// job. Keys are logical names ("post:7", "recent-posts"); implementations
// derive their physical key from the logical one and must treat expired or
// unreadable entries as absent on every read path.
type Store interface {
	// Get returns the payload for key, or found=false when the key was never
	// set, has expired, or cannot be read. Read failures are never surfaced.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Set stores value under key with the supplied TTL, atomically replacing
	// any previous entry. Callers may ignore the error; a failed write simply
	// means a miss on the next read.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes the supplied keys and reports how many were present.
	// Deleting an absent key is not an error.
	Delete(ctx context.Context, keys ...string) (int, error)

	// Has reports whether key currently resolves to a live entry.
	Has(ctx context.Context, key string) (bool, error)

	// Keys lists the logical names of all live entries.
	Keys(ctx context.Context) ([]string, error)

	// Clear removes every entry unconditionally and returns the count removed.
	Clear(ctx context.Context) (int, error)

	// Cleanup removes only expired or unreadable entries and returns the
	// count removed. Safe to run concurrently with request traffic.
	Cleanup(ctx context.Context) (int, error)

	// Stats scans the store and returns a snapshot.
	Stats(ctx context.Context) (Stats, error)
}

// Stats is a point-in-time snapshot of store contents. Unreadable entries are
// counted as expired, so ValidEntries+ExpiredEntries == TotalEntries always
// holds.
type Stats struct {
	TotalEntries   int   `json:"total_entries"`
	ValidEntries   int   `json:"valid_entries"`
	ExpiredEntries int   `json:"expired_entries"`
	TotalSizeBytes int64 `json:"total_size_bytes"`
}

// Remember is the compute-if-absent access path for read-mostly data: return
// the cached value when present, otherwise invoke produce, store the result
// with the given TTL and return it. Two racing misses may both invoke produce
// and both write; last write wins. Values round-trip through JSON.
func Remember[T any](ctx context.Context, s Store, key string, ttl time.Duration, produce func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if raw, found, err := s.Get(ctx, key); err == nil && found {
		var cached T
		if json.Unmarshal(raw, &cached) == nil {
			metrics.CacheOperations.WithLabelValues("hit").Inc()
			return cached, nil
		}
		// Undecodable payload: treat as a miss and recompute.
	}
	metrics.CacheOperations.WithLabelValues("miss").Inc()

	value, err := produce(ctx)
	if err != nil {
		return zero, err
	}

	if raw, err := json.Marshal(value); err == nil {
		if err := s.Set(ctx, key, raw, ttl); err != nil {
			metrics.CacheWrites.WithLabelValues("error").Inc()
		} else {
			metrics.CacheWrites.WithLabelValues("ok").Inc()
		}
	}

	return value, nil
}

// DeriveKey maps a logical cache name to a fixed-length collision-resistant
// physical key. SHA-256 rather than a truncated or legacy hash: filenames
// share a flat namespace, so collisions would serve one key's payload for
// another.
func DeriveKey(logical string) string {
	sum := sha256.Sum256([]byte(logical))
	return hex.EncodeToString(sum[:])
}
