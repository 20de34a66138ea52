package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/AzielCF/az-gallery/syncengine/domain/cache"
)

// GetAllSettings returns a map of the tunables currently loaded in memory.
func GetAllSettings() map[string]any {
	if Global == nil {
		return map[string]any{}
	}
	return map[string]any{
		"cache_driver":               Global.Cache.Driver,
		"cache_ttl_media_ms":         Global.Cache.MediaTTLMs,
		"cache_ttl_comments_ms":      Global.Cache.CommentsTTLMs,
		"cache_ttl_likes_ms":         Global.Cache.LikesTTLMs,
		"cache_ttl_profiles_ms":      Global.Cache.ProfilesTTLMs,
		"cache_ttl_notifications_ms": Global.Cache.NotificationsMs,
		"docstore_driver":            Global.DocStore.Driver,
		"sync_subscribe_debounce_ms": Global.Sync.SubscribeDebounceMs,
		"sync_stagger_ms":            Global.Sync.StaggerMs,
		"sync_page_size":             Global.Sync.PageSize,
		"notify_batch_size":          Global.Notifications.BatchSize,
		"notify_batch_delay_ms":      Global.Notifications.BatchDelayMs,
		"notify_max_retries":         Global.Notifications.MaxRetries,
		"app_debug":                  Global.App.Debug,
		"app_version":                Global.App.Version,
	}
}

// TTLs converts the configured milliseconds into cache TTLs.
func (c CacheConfig) TTLs() cache.TTLs {
	return cache.TTLs{
		cache.KindMedia:         ms(c.MediaTTLMs),
		cache.KindComments:      ms(c.CommentsTTLMs),
		cache.KindLikes:         ms(c.LikesTTLMs),
		cache.KindProfiles:      ms(c.ProfilesTTLMs),
		cache.KindNotifications: ms(c.NotificationsMs),
	}
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// Helpers
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		vLower := strings.ToLower(v)
		return vLower == "1" || vLower == "true" || vLower == "yes" || vLower == "on"
	}
	return fallback
}
