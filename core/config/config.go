package config

import (
	"os"
	"path/filepath"
	"strings"
)

// Config holds all application configuration in a structured way.
type Config struct {
	App           AppConfig
	Paths         PathsConfig
	Database      DatabaseConfig
	Cache         CacheConfig
	DocStore      DocStoreConfig
	Sync          SyncConfig
	Notifications NotificationsConfig
	Delivery      DeliveryConfig
}

type AppConfig struct {
	Version            string
	Port               string
	Debug              bool
	Environment        string
	BasicAuth          []string
	BasePath           string
	TrustedProxies     []string
	CorsAllowedOrigins []string
	ServerID           string
}

type PathsConfig struct {
	BaseDir  string
	Storages string
}

type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	User            string
	Password        string
	Name            string // File path for SQLite, DB Name for Postgres
	ValkeyEnabled   bool
	ValkeyAddress   string
	ValkeyPassword  string
	ValkeyDB        int
	ValkeyKeyPrefix string
}

// CacheConfig selects the cache backend and the per-kind TTLs.
type CacheConfig struct {
	Driver          string // memory | valkey
	MediaTTLMs      int
	CommentsTTLMs   int
	LikesTTLMs      int
	ProfilesTTLMs   int
	NotificationsMs int
}

type DocStoreConfig struct {
	Driver string // memory | gorm
}

type SyncConfig struct {
	SubscribeDebounceMs int
	StaggerMs           int
	PageSize            int
}

type NotificationsConfig struct {
	BatchSize    int
	BatchDelayMs int
	MaxRetries   int
	LiveLimit    int
	ReadChunk    int
}

type DeliveryConfig struct {
	Workers   int
	QueueSize int
}

// Global provides access to the loaded configuration globally
var Global *Config

// LoadConfig loads configuration from Environment Variables or defaults.
func LoadConfig() (*Config, error) {
	baseDir := getEnv("APP_BASE_DIR", "storages")

	debug := false
	if v := os.Getenv("APP_DEBUG"); v == "true" || v == "1" || v == "on" {
		debug = true
	} else if v := os.Getenv("DEBUG"); v == "true" || v == "1" {
		debug = true
	}

	var basicAuth []string
	if v := os.Getenv("APP_BASIC_AUTH"); v != "" {
		basicAuth = strings.Split(v, ",")
	}

	corsOrigins := []string{"http://localhost:3000", "http://localhost:5173"}
	if v := os.Getenv("APP_CORS_ALLOWED_ORIGINS"); v != "" {
		corsOrigins = strings.Split(v, ",")
	}

	appCfg := AppConfig{
		Version:            "v0.4.0",
		Port:               getEnv("APP_PORT", "3000"),
		Debug:              debug,
		Environment:        getEnv("APP_ENV", "development"),
		BasicAuth:          basicAuth,
		BasePath:           getEnv("APP_BASE_PATH", ""),
		CorsAllowedOrigins: corsOrigins,
		ServerID:           getEnv("SERVER_ID", ""),
	}
	if v := os.Getenv("APP_TRUSTED_PROXIES"); v != "" {
		appCfg.TrustedProxies = strings.Split(v, ",")
	}

	pathsCfg := PathsConfig{
		BaseDir:  baseDir,
		Storages: baseDir,
	}

	dbCfg := DatabaseConfig{
		Driver:          getEnv("DB_DRIVER", "sqlite"),
		Name:            getEnv("DB_NAME", filepath.Join(pathsCfg.Storages, "gallery.db")),
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "postgres"),
		Password:        getEnv("DB_PASSWORD", ""),
		ValkeyEnabled:   getEnvBool("VALKEY_ENABLED", false),
		ValkeyAddress:   getEnv("VALKEY_ADDRESS", "localhost:6379"),
		ValkeyPassword:  getEnv("VALKEY_PASSWORD", ""),
		ValkeyDB:        getEnvInt("VALKEY_DB", 0),
		ValkeyKeyPrefix: getEnv("VALKEY_KEY_PREFIX", "azgallery:"),
	}

	cacheCfg := CacheConfig{
		Driver:          getEnv("CACHE_DRIVER", "memory"),
		MediaTTLMs:      getEnvInt("CACHE_TTL_MEDIA_MS", 5*60*1000),
		CommentsTTLMs:   getEnvInt("CACHE_TTL_COMMENTS_MS", 2*60*1000),
		LikesTTLMs:      getEnvInt("CACHE_TTL_LIKES_MS", 60*1000),
		ProfilesTTLMs:   getEnvInt("CACHE_TTL_PROFILES_MS", 10*60*1000),
		NotificationsMs: getEnvInt("CACHE_TTL_NOTIFICATIONS_MS", 60*1000),
	}

	cfg := &Config{
		App:      appCfg,
		Paths:    pathsCfg,
		Database: dbCfg,
		Cache:    cacheCfg,
		DocStore: DocStoreConfig{Driver: getEnv("DOCSTORE_DRIVER", "gorm")},
		Sync: SyncConfig{
			SubscribeDebounceMs: getEnvInt("SYNC_SUBSCRIBE_DEBOUNCE_MS", 500),
			StaggerMs:           getEnvInt("SYNC_STAGGER_MS", 100),
			PageSize:            getEnvInt("SYNC_PAGE_SIZE", 20),
		},
		Notifications: NotificationsConfig{
			BatchSize:    getEnvInt("NOTIFY_BATCH_SIZE", 10),
			BatchDelayMs: getEnvInt("NOTIFY_BATCH_DELAY_MS", 300),
			MaxRetries:   getEnvInt("NOTIFY_MAX_RETRIES", 2),
			LiveLimit:    getEnvInt("NOTIFY_LIVE_LIMIT", 50),
			ReadChunk:    getEnvInt("NOTIFY_READ_CHUNK", 10),
		},
		Delivery: DeliveryConfig{
			Workers:   getEnvInt("DELIVERY_WORKERS", 8),
			QueueSize: getEnvInt("DELIVERY_QUEUE_SIZE", 1000),
		},
	}

	Global = cfg
	return cfg, nil
}
