package syncengine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/AzielCF/az-gallery/pkg/deliverypool"
	"github.com/AzielCF/az-gallery/syncengine/domain/common"
	"github.com/AzielCF/az-gallery/syncengine/domain/docstore"
	"github.com/AzielCF/az-gallery/syncengine/domain/gallery"
	"github.com/AzielCF/az-gallery/syncengine/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SubscribeDebounce = 0
	cfg.Session.Stagger = 0
	cfg.Notifications.BatchDelay = time.Hour
	return cfg
}

func newTestManager(t *testing.T, pool *deliverypool.Pool) *Manager {
	t.Helper()
	m := NewManager(context.Background(), testConfig(), repository.NewMemoryDocStore(pool), repository.NewMemoryCacheStore(), pool)
	t.Cleanup(func() { _ = m.Stop(context.Background()) })
	return m
}

func seed(t *testing.T, m *Manager, galleryID string, n int) {
	t.Helper()
	base := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		doc, err := docstore.Encode(gallery.MediaItem{
			ID:         fmt.Sprintf("m%03d", i),
			GalleryID:  galleryID,
			OwnerID:    "u1",
			URL:        "https://cdn.example.com/" + fmt.Sprint(i),
			UploadedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
		_, err = m.Store().WriteOne(context.Background(), gallery.MediaCollection(galleryID), doc)
		require.NoError(t, err)
	}
}

func TestManager_AcquireSharesSession(t *testing.T) {
	m := newTestManager(t, nil)
	seed(t, m, "g1", 5)
	ctx := context.Background()

	a, err := m.Acquire(ctx, "g1")
	require.NoError(t, err)
	b, err := m.Acquire(ctx, "g1")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, gallery.StatusReady, a.Snapshot().Status)
	assert.Len(t, a.Snapshot().Items, 5)

	m.Release("g1")
	_, ok := m.Session("g1")
	assert.True(t, ok, "one reference is still held")

	m.Release("g1")
	_, ok = m.Session("g1")
	assert.False(t, ok)

	// releasing an unknown gallery is harmless
	m.Release("g1")
}

func TestManager_SessionsAreIndependent(t *testing.T) {
	m := newTestManager(t, nil)
	seed(t, m, "g1", 3)
	seed(t, m, "g2", 7)
	ctx := context.Background()

	g1, err := m.Acquire(ctx, "g1")
	require.NoError(t, err)
	g2, err := m.Acquire(ctx, "g2")
	require.NoError(t, err)

	assert.Len(t, g1.Snapshot().Items, 3)
	assert.Len(t, g2.Snapshot().Items, 7)

	m.Release("g1")
	assert.Len(t, g2.Snapshot().Items, 7)
	assert.Equal(t, gallery.StatusReady, g2.Snapshot().Status)
}

func TestManager_Stats(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := deliverypool.NewPool(2, 16)
	pool.Start(ctx)
	t.Cleanup(func() {
		cancel()
		pool.Stop()
	})

	m := newTestManager(t, pool)
	_, err := m.Acquire(ctx, "g1")
	require.NoError(t, err)

	st := m.Stats(ctx)
	assert.Equal(t, 1, st.Sessions)
	// media, comments, likes and profiles
	assert.Equal(t, 4, st.Subscriptions)
	require.NotNil(t, st.Delivery)
	assert.Equal(t, 2, st.Delivery.NumWorkers)
}

func TestManager_StopClosesEverything(t *testing.T) {
	m := newTestManager(t, nil)
	seed(t, m, "g1", 2)
	ctx := context.Background()

	s, err := m.Acquire(ctx, "g1")
	require.NoError(t, err)

	require.NoError(t, m.Stop(ctx))
	assert.Equal(t, 0, m.Registry().Active())
	assert.ErrorIs(t, s.LoadMore(ctx), common.ErrSessionClosed)

	_, err = m.Acquire(ctx, "g1")
	assert.ErrorIs(t, err, common.ErrSessionClosed)

	// second Stop is a no-op
	assert.NoError(t, m.Stop(ctx))
}

func TestManager_SetSessionConfigAppliesToNewSessions(t *testing.T) {
	m := newTestManager(t, nil)
	seed(t, m, "g1", 8)
	seed(t, m, "g2", 8)
	ctx := context.Background()

	g1, err := m.Acquire(ctx, "g1")
	require.NoError(t, err)
	assert.Len(t, g1.Snapshot().Items, 8)

	cfg := m.SessionConfig()
	cfg.PageSize = 5
	m.SetSessionConfig(cfg)

	g2, err := m.Acquire(ctx, "g2")
	require.NoError(t, err)
	assert.Len(t, g2.Snapshot().Items, 5)
	assert.True(t, g2.Snapshot().HasMore)

	// already open sessions keep their page size
	assert.Len(t, g1.Snapshot().Items, 8)
}
