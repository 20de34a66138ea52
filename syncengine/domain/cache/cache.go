package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// Kind identifies the resource family a cache entry belongs to. TTLs are
// defined per kind, never per entry.
type Kind string

const (
	KindMedia         Kind = "media"
	KindComments      Kind = "comments"
	KindLikes         Kind = "likes"
	KindProfiles      Kind = "profiles"
	KindNotifications Kind = "notifications"
)

// Entry is a cached value with the time it was stored. Entries are replaced
// wholesale by Set; there is no partial merge.
type Entry struct {
	Value    any       `json:"value"`
	StoredAt time.Time `json:"stored_at"`
}

// Fresh reports whether the entry is still valid for the given ttl at now.
func (e Entry) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.StoredAt) < ttl
}

type Stats struct {
	Entries   int    `json:"entries"`
	TotalSize int64  `json:"total_size"`
	HumanSize string `json:"human_size"`
}

// Store is the key -> (value, storedAt) map every component consults before
// going to the network. Expired entries are treated as misses but are only
// replaced by the next Set.
type Store interface {
	// Get returns a hit only if now - StoredAt < ttl.
	Get(ctx context.Context, key string, ttl time.Duration) (Entry, bool)

	// Set stores value under key, replacing any previous entry.
	Set(ctx context.Context, key string, value any) error

	// Clear removes the given keys, or every entry when called without keys.
	Clear(ctx context.Context, keys ...string) error

	Stats(ctx context.Context) (Stats, error)
}

// Key builds the opaque cache key for a resource kind inside a scope,
// e.g. Key(KindMedia, "g1") -> "media_g1".
func Key(kind Kind, scopeID string, extra ...string) string {
	parts := append([]string{string(kind), scopeID}, extra...)
	return strings.Join(parts, "_")
}

// Get reads a typed value. Values held in memory are returned as is; values
// coming from a remote backend arrive as json.RawMessage and are decoded.
func Get[T any](ctx context.Context, s Store, key string, ttl time.Duration) (T, bool) {
	var zero T
	entry, ok := s.Get(ctx, key, ttl)
	if !ok {
		return zero, false
	}
	return As[T](entry.Value)
}

// As converts a cached value (or a live delivery) into T.
func As[T any](value any) (T, bool) {
	var zero T
	switch v := value.(type) {
	case T:
		return v, true
	case json.RawMessage:
		var out T
		if err := json.Unmarshal(v, &out); err != nil {
			return zero, false
		}
		return out, true
	case []byte:
		var out T
		if err := json.Unmarshal(v, &out); err != nil {
			return zero, false
		}
		return out, true
	}
	return zero, false
}
