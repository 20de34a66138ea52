package rest

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/AzielCF/az-gallery/core/config"
	settingsApp "github.com/AzielCF/az-gallery/core/settings/application"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestSettings_Update(t *testing.T) {
	app, engine := newTestApp(t)

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	svc := settingsApp.NewSettingsService(db)
	require.NoError(t, svc.Init(context.Background()))

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	InitRestSettings(app.Group("/api"), svc, cfg, engine)

	var res mapResponse
	require.Equal(t, http.StatusOK, doJSON(t, app, http.MethodGet, "/api/settings", nil, &res))
	assert.EqualValues(t, 20, res.Results["sync_page_size"])

	require.Equal(t, http.StatusOK, doJSON(t, app, http.MethodPut, "/api/settings", map[string]any{
		"sync_page_size":     7,
		"cache_ttl_likes_ms": 2000,
	}, &res))
	assert.EqualValues(t, 7, res.Results["sync_page_size"])
	assert.Equal(t, 7, engine.SessionConfig().PageSize)
	assert.Equal(t, 2*time.Second, engine.SessionConfig().TTLs.For("likes"))

	stored, err := svc.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, stored.PageSize)
	assert.Equal(t, 7, *stored.PageSize)

	assert.Equal(t, http.StatusBadRequest, doJSON(t, app, http.MethodPut, "/api/settings", map[string]any{"sync_page_size": 0}, nil))
}
