package application

import (
	"context"
	"strconv"

	"github.com/AzielCF/az-gallery/core/config"
	"github.com/AzielCF/az-gallery/core/settings/domain"
	"github.com/AzielCF/az-gallery/core/settings/infrastructure"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type SettingsService struct {
	repo domain.ISettingsRepository
}

func NewSettingsService(db *gorm.DB) *SettingsService {
	return &SettingsService{
		repo: infrastructure.NewSettingsGormRepository(db),
	}
}

// EngineSettings are the overrides stored in the database. Nil fields fall
// back to the environment.
type EngineSettings struct {
	MediaTTLMs    *int `json:"cache_ttl_media_ms,omitempty"`
	CommentsTTLMs *int `json:"cache_ttl_comments_ms,omitempty"`
	LikesTTLMs    *int `json:"cache_ttl_likes_ms,omitempty"`
	ProfilesTTLMs *int `json:"cache_ttl_profiles_ms,omitempty"`
	PageSize      *int `json:"sync_page_size,omitempty"`
	StaggerMs     *int `json:"sync_stagger_ms,omitempty"`
}

func settingFields(es *EngineSettings) map[string]**int {
	return map[string]**int{
		domain.KeyCacheTTLMediaMs:    &es.MediaTTLMs,
		domain.KeyCacheTTLCommentsMs: &es.CommentsTTLMs,
		domain.KeyCacheTTLLikesMs:    &es.LikesTTLMs,
		domain.KeyCacheTTLProfilesMs: &es.ProfilesTTLMs,
		domain.KeySyncPageSize:       &es.PageSize,
		domain.KeySyncStaggerMs:      &es.StaggerMs,
	}
}

func (s *SettingsService) Init(ctx context.Context) error {
	return s.repo.InitSchema(ctx)
}

func (s *SettingsService) Load(ctx context.Context) (*EngineSettings, error) {
	es := &EngineSettings{}
	for key, field := range settingFields(es) {
		val, err := s.repo.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if val == "" {
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil || n < 0 {
			logrus.Warnf("[SETTINGS] Ignoring invalid value %q for %s", val, key)
			continue
		}
		*field = &n
	}
	return es, nil
}

// Save persists the non-nil fields of es.
func (s *SettingsService) Save(ctx context.Context, es EngineSettings) error {
	for key, field := range settingFields(&es) {
		if *field == nil {
			continue
		}
		if err := s.repo.Set(ctx, key, strconv.Itoa(**field)); err != nil {
			return err
		}
	}
	return nil
}

// Reset drops every stored override.
func (s *SettingsService) Reset(ctx context.Context) error {
	list, err := s.repo.List(ctx)
	if err != nil {
		return err
	}
	for _, st := range list {
		if err := s.repo.Delete(ctx, st.Key); err != nil {
			return err
		}
	}
	return nil
}

// Apply overlays es on cfg.
func Apply(cfg *config.Config, es *EngineSettings) {
	if es == nil {
		return
	}
	set := func(dst *int, v *int) {
		if v != nil {
			*dst = *v
		}
	}
	set(&cfg.Cache.MediaTTLMs, es.MediaTTLMs)
	set(&cfg.Cache.CommentsTTLMs, es.CommentsTTLMs)
	set(&cfg.Cache.LikesTTLMs, es.LikesTTLMs)
	set(&cfg.Cache.ProfilesTTLMs, es.ProfilesTTLMs)
	set(&cfg.Sync.PageSize, es.PageSize)
	set(&cfg.Sync.StaggerMs, es.StaggerMs)
}

// Effective reports the values currently in force for the stored keys.
func Effective(cfg *config.Config) map[string]any {
	return map[string]any{
		domain.KeyCacheTTLMediaMs:    cfg.Cache.MediaTTLMs,
		domain.KeyCacheTTLCommentsMs: cfg.Cache.CommentsTTLMs,
		domain.KeyCacheTTLLikesMs:    cfg.Cache.LikesTTLMs,
		domain.KeyCacheTTLProfilesMs: cfg.Cache.ProfilesTTLMs,
		domain.KeySyncPageSize:       cfg.Sync.PageSize,
		domain.KeySyncStaggerMs:      cfg.Sync.StaggerMs,
	}
}
