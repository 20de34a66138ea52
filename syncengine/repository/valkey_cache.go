package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/AzielCF/az-gallery/infrastructure/valkey"
	"github.com/AzielCF/az-gallery/syncengine/domain/cache"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	valkeygo "github.com/valkey-io/valkey-go"
)

// valkeyEntryRetention bounds how long an entry may live server side. The
// freshness check itself stays client side because TTLs are per kind.
const valkeyEntryRetention = 24 * time.Hour

type valkeyEntry struct {
	Value    json.RawMessage `json:"value"`
	StoredAt time.Time       `json:"stored_at"`
}

// ValkeyCacheStore implements cache.Store on Valkey so several nodes share
// one warm cache. Values come back as json.RawMessage; use cache.Get[T].
type ValkeyCacheStore struct {
	client *valkey.Client
	prefix string
	now    func() time.Time
}

func NewValkeyCacheStore(client *valkey.Client) *ValkeyCacheStore {
	return &ValkeyCacheStore{
		client: client,
		prefix: client.Key("cache") + ":",
		now:    time.Now,
	}
}

func (s *ValkeyCacheStore) fullKey(key string) string {
	return s.prefix + key
}

func (s *ValkeyCacheStore) Get(ctx context.Context, key string, ttl time.Duration) (cache.Entry, bool) {
	cmd := s.client.Inner().B().Get().Key(s.fullKey(key)).Build()
	data, err := s.client.Inner().Do(ctx, cmd).AsBytes()
	if err != nil {
		if !valkey.IsNil(err) {
			logrus.WithError(err).Warnf("[CACHE] valkey get %s failed, treating as miss", key)
		}
		return cache.Entry{}, false
	}

	entry, err := decodeEntry(data)
	if err != nil {
		logrus.WithError(err).Warnf("[CACHE] corrupt entry for %s, treating as miss", key)
		return cache.Entry{}, false
	}
	if !entry.Fresh(s.now(), ttl) {
		return cache.Entry{}, false
	}
	return entry, true
}

func (s *ValkeyCacheStore) Set(ctx context.Context, key string, value any) error {
	data, err := encodeEntry(value, s.now())
	if err != nil {
		return err
	}

	cmd := s.client.Inner().B().Set().
		Key(s.fullKey(key)).
		Value(string(data)).
		Ex(valkeyEntryRetention).
		Build()
	if err := s.client.Inner().Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to save cache entry to valkey: %w", err)
	}
	return nil
}

func (s *ValkeyCacheStore) Clear(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		all, err := s.scan(ctx)
		if err != nil {
			return err
		}
		return s.del(ctx, all)
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.fullKey(k)
	}
	return s.del(ctx, full)
}

func (s *ValkeyCacheStore) Stats(ctx context.Context) (cache.Stats, error) {
	keys, err := s.scan(ctx)
	if err != nil {
		return cache.Stats{}, err
	}

	var total int64
	if len(keys) > 0 {
		// MGet groups keys by slot, so this also works on a cluster
		values, err := valkeygo.MGet(s.client.Inner(), ctx, keys)
		if err != nil {
			return cache.Stats{}, fmt.Errorf("failed to mget cache entries: %w", err)
		}
		// entries expired between SCAN and MGET come back nil
		for _, v := range values {
			if str, err := v.ToString(); err == nil {
				total += int64(len(str))
			}
		}
	}

	return cache.Stats{
		Entries:   len(keys),
		TotalSize: total,
		HumanSize: humanize.Bytes(uint64(total)),
	}, nil
}

// encodeEntry wraps value with its store time. Values are read back as
// json.RawMessage, which cache.As decodes into the caller's type.
func encodeEntry(value any, storedAt time.Time) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cache value: %w", err)
	}
	data, err := json.Marshal(valkeyEntry{Value: raw, StoredAt: storedAt})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	return data, nil
}

func decodeEntry(data []byte) (cache.Entry, error) {
	var stored valkeyEntry
	if err := json.Unmarshal(data, &stored); err != nil {
		return cache.Entry{}, err
	}
	return cache.Entry{Value: stored.Value, StoredAt: stored.StoredAt}, nil
}

func (s *ValkeyCacheStore) del(ctx context.Context, fullKeys []string) error {
	if len(fullKeys) == 0 {
		return nil
	}
	// one DEL per key keeps every command inside a single slot
	cmds := make(valkeygo.Commands, 0, len(fullKeys))
	for _, k := range fullKeys {
		cmds = append(cmds, s.client.Inner().B().Del().Key(k).Build())
	}
	for _, res := range s.client.Inner().DoMulti(ctx, cmds...) {
		if err := res.Error(); err != nil {
			return fmt.Errorf("failed to clear cache entries: %w", err)
		}
	}
	return nil
}

func (s *ValkeyCacheStore) scan(ctx context.Context) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		cmd := s.client.Inner().B().Scan().Cursor(cursor).Match(s.prefix + "*").Count(100).Build()
		result, err := s.client.Inner().Do(ctx, cmd).AsScanEntry()
		if err != nil {
			return nil, fmt.Errorf("failed to scan cache keys: %w", err)
		}
		keys = append(keys, result.Elements...)
		cursor = result.Cursor
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}
