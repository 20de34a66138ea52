package domain

import "context"

// Setting is a tunable persisted in the database. It overrides the
// environment value of the same name.
type Setting struct {
	Key   string
	Value string
}

type ISettingsRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]Setting, error)

	InitSchema(ctx context.Context) error
}

const (
	KeyCacheTTLMediaMs    = "cache_ttl_media_ms"
	KeyCacheTTLCommentsMs = "cache_ttl_comments_ms"
	KeyCacheTTLLikesMs    = "cache_ttl_likes_ms"
	KeyCacheTTLProfilesMs = "cache_ttl_profiles_ms"
	KeySyncPageSize       = "sync_page_size"
	KeySyncStaggerMs      = "sync_stagger_ms"
)
