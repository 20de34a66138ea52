package application

import (
	"context"
	"testing"

	"github.com/AzielCF/az-gallery/core/config"
	"github.com/AzielCF/az-gallery/core/settings/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestService(t *testing.T) *SettingsService {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	svc := NewSettingsService(db)
	require.NoError(t, svc.Init(context.Background()))
	return svc
}

func intPtr(n int) *int { return &n }

func TestSettingsService_SaveAndLoad(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	es, err := svc.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, es.MediaTTLMs)

	require.NoError(t, svc.Save(ctx, EngineSettings{MediaTTLMs: intPtr(1000), PageSize: intPtr(12)}))
	es, err = svc.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, es.MediaTTLMs)
	assert.Equal(t, 1000, *es.MediaTTLMs)
	assert.Equal(t, 12, *es.PageSize)
	assert.Nil(t, es.StaggerMs)

	// later saves only touch the given fields
	require.NoError(t, svc.Save(ctx, EngineSettings{PageSize: intPtr(30)}))
	es, err = svc.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1000, *es.MediaTTLMs)
	assert.Equal(t, 30, *es.PageSize)
}

func TestSettingsService_InvalidValuesAreIgnored(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.repo.Set(ctx, domain.KeySyncStaggerMs, "soon"))
	require.NoError(t, svc.repo.Set(ctx, domain.KeySyncPageSize, "-3"))

	es, err := svc.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, es.StaggerMs)
	assert.Nil(t, es.PageSize)
}

func TestSettingsService_Reset(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.Save(ctx, EngineSettings{LikesTTLMs: intPtr(5)}))
	require.NoError(t, svc.Reset(ctx))

	es, err := svc.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, es.LikesTTLMs)
}

func TestApply(t *testing.T) {
	cfg := &config.Config{}
	cfg.Cache.MediaTTLMs = 300000
	cfg.Sync.PageSize = 20

	Apply(cfg, &EngineSettings{PageSize: intPtr(50)})
	assert.Equal(t, 50, cfg.Sync.PageSize)
	assert.Equal(t, 300000, cfg.Cache.MediaTTLMs)

	Apply(cfg, nil)
	assert.Equal(t, 50, Effective(cfg)[domain.KeySyncPageSize])
}
