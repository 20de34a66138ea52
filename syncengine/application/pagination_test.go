package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AzielCF/az-gallery/syncengine/domain/cache"
	"github.com/AzielCF/az-gallery/syncengine/domain/common"
	"github.com/AzielCF/az-gallery/syncengine/domain/docstore"
	"github.com/AzielCF/az-gallery/syncengine/domain/gallery"
	"github.com/AzielCF/az-gallery/syncengine/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMediaPaginator(store *flakyStore, galleryID string, pageSize int) (*Paginator[gallery.MediaItem], *Registry) {
	reg := NewRegistry(context.Background(), repository.NewMemoryCacheStore(), 0)
	p := NewPaginator[gallery.MediaItem](PaginatorConfig{
		Key:        cache.Key(cache.KindMedia, galleryID),
		Collection: gallery.MediaCollection(galleryID),
		OrderBy:    "uploaded_at",
		Descending: true,
		PageSize:   pageSize,
		TTL:        time.Minute,
	}, store, reg)
	return p, reg
}

func TestPaginator_LoadsPagesMonotonically(t *testing.T) {
	store := newFlakyStore()
	seedMedia(t, store, "g1", 45)
	p, reg := newMediaPaginator(store, "g1", 20)
	defer reg.UnsubscribeAll()

	var first []gallery.MediaItem
	p.Initial(func(items []gallery.MediaItem) { first = items }, nil)
	require.Len(t, first, 20)
	assert.Equal(t, "m044", first[0].ID, "newest first")
	assert.True(t, p.HasMore())

	page, err := p.LoadMore(context.Background())
	require.NoError(t, err)
	assert.True(t, page.Loaded)
	assert.Len(t, page.Items, 20)
	assert.True(t, page.HasMore)
	assert.Equal(t, 40, p.Len())

	page, err = p.LoadMore(context.Background())
	require.NoError(t, err)
	assert.Len(t, page.Items, 5)
	assert.False(t, page.HasMore)

	items := p.Items()
	require.Len(t, items, 45)
	seen := map[string]bool{}
	for i, it := range items {
		assert.False(t, seen[it.ID], "duplicate %s", it.ID)
		seen[it.ID] = true
		if i > 0 {
			assert.True(t, items[i-1].UploadedAt.After(it.UploadedAt))
		}
	}

	calls := atomic.LoadInt32(&store.pagedCalls)
	page, err = p.LoadMore(context.Background())
	require.NoError(t, err)
	assert.False(t, page.Loaded)
	assert.Equal(t, calls, atomic.LoadInt32(&store.pagedCalls), "no query once hasMore is false")
}

func TestPaginator_ExactMultipleEndsWithEmptyPage(t *testing.T) {
	store := newFlakyStore()
	seedMedia(t, store, "g1", 40)
	p, reg := newMediaPaginator(store, "g1", 20)
	defer reg.UnsubscribeAll()
	p.Initial(nil, nil)

	page, err := p.LoadMore(context.Background())
	require.NoError(t, err)
	assert.True(t, page.HasMore)

	page, err = p.LoadMore(context.Background())
	require.NoError(t, err)
	assert.True(t, page.Loaded)
	assert.Empty(t, page.Items)
	assert.False(t, page.HasMore)
	assert.Equal(t, 40, p.Len())
}

func TestPaginator_NoCursorIsNoop(t *testing.T) {
	store := newFlakyStore()
	p, reg := newMediaPaginator(store, "g1", 20)
	defer reg.UnsubscribeAll()

	page, err := p.LoadMore(context.Background())
	require.NoError(t, err)
	assert.False(t, page.Loaded)
	assert.Nil(t, page.Cursor)
	assert.Zero(t, atomic.LoadInt32(&store.pagedCalls))
}

func TestPaginator_ShortFirstPageHasNoMore(t *testing.T) {
	store := newFlakyStore()
	seedMedia(t, store, "g1", 3)
	p, reg := newMediaPaginator(store, "g1", 20)
	defer reg.UnsubscribeAll()

	p.Initial(nil, nil)
	assert.False(t, p.HasMore())
	page, err := p.LoadMore(context.Background())
	require.NoError(t, err)
	assert.False(t, page.Loaded)
}

func TestPaginator_FailureKeepsHasMore(t *testing.T) {
	store := newFlakyStore()
	seedMedia(t, store, "g1", 30)
	p, reg := newMediaPaginator(store, "g1", 20)
	defer reg.UnsubscribeAll()
	p.Initial(nil, nil)

	boom := errors.New("unavailable")
	store.setFailPaged(boom)
	_, err := p.LoadMore(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	var fetchErr *common.TransientFetchError
	assert.ErrorAs(t, err, &fetchErr)
	assert.True(t, p.HasMore())
	assert.False(t, p.LoadingMore())
	assert.Equal(t, 20, p.Len())

	store.setFailPaged(nil)
	page, err := p.LoadMore(context.Background())
	require.NoError(t, err)
	assert.Len(t, page.Items, 10)
}

func TestPaginator_InFlightLoadMoreIsSingle(t *testing.T) {
	store := newFlakyStore()
	seedMedia(t, store, "g1", 30)
	p, reg := newMediaPaginator(store, "g1", 20)
	defer reg.UnsubscribeAll()
	p.Initial(nil, nil)

	hold := make(chan struct{})
	store.setHoldPaged(hold)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = p.LoadMore(context.Background())
	}()
	require.Eventually(t, p.LoadingMore, time.Second, 5*time.Millisecond)

	page, err := p.LoadMore(context.Background())
	require.NoError(t, err)
	assert.False(t, page.Loaded)

	close(hold)
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&store.pagedCalls))
}

func TestPaginator_ResponseAfterResetIsStale(t *testing.T) {
	store := newFlakyStore()
	seedMedia(t, store, "g1", 30)
	p, reg := newMediaPaginator(store, "g1", 20)
	defer reg.UnsubscribeAll()
	p.Initial(nil, nil)

	hold := make(chan struct{})
	store.setHoldPaged(hold)

	errCh := make(chan error, 1)
	go func() {
		_, err := p.LoadMore(context.Background())
		errCh <- err
	}()
	require.Eventually(t, p.LoadingMore, time.Second, 5*time.Millisecond)

	p.Reset()
	close(hold)

	assert.ErrorIs(t, <-errCh, common.ErrStaleResponse)
	assert.Equal(t, 0, p.Len())
	assert.Nil(t, p.Cursor())
}

func TestPaginator_LiveChangesKeepLoadedPages(t *testing.T) {
	store := newFlakyStore()
	seedMedia(t, store, "g1", 25)
	p, reg := newMediaPaginator(store, "g1", 20)
	defer reg.UnsubscribeAll()

	var latest []gallery.MediaItem
	p.Initial(func(items []gallery.MediaItem) { latest = items }, nil)
	_, err := p.LoadMore(context.Background())
	require.NoError(t, err)
	require.Equal(t, 25, p.Len())

	// a new upload shifts the live window; the oldest live item moves into
	// the already loaded range and must not be duplicated
	_, err = store.WriteOne(context.Background(), gallery.MediaCollection("g1"), mustEncode(t, gallery.MediaItem{
		ID: "new", GalleryID: "g1", UploadedAt: seedBase.Add(time.Hour),
	}))
	require.NoError(t, err)

	require.NotEmpty(t, latest)
	assert.Equal(t, "new", latest[0].ID)
	ids := mediaIDs(latest)
	seen := map[string]int{}
	for _, id := range ids {
		seen[id]++
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, "duplicate %s", id)
	}

	// m005 left the live window but stays in the sequence
	require.Len(t, latest, 26)
	assert.Equal(t, 26, p.Len())
	for i := 0; i < 25; i++ {
		assert.Contains(t, ids, fmt.Sprintf("m%03d", i))
	}
	for i := 1; i < len(latest); i++ {
		assert.True(t, latest[i-1].UploadedAt.After(latest[i].UploadedAt), "order broken at %s", latest[i].ID)
	}

	// the cursor still points at the oldest loaded item
	assert.Equal(t, "m000", p.Cursor().ID)
}

func TestPaginator_LiveWindowWithoutLoadedPagesKeepsDisplaced(t *testing.T) {
	store := newFlakyStore()
	seedMedia(t, store, "g1", 20)
	p, reg := newMediaPaginator(store, "g1", 20)
	defer reg.UnsubscribeAll()

	var latest []gallery.MediaItem
	p.Initial(func(items []gallery.MediaItem) { latest = items }, nil)
	require.Len(t, latest, 20)

	_, err := store.WriteOne(context.Background(), gallery.MediaCollection("g1"), mustEncode(t, gallery.MediaItem{
		ID: "new", GalleryID: "g1", UploadedAt: seedBase.Add(time.Hour),
	}))
	require.NoError(t, err)

	require.Len(t, latest, 21)
	assert.Equal(t, "m000", latest[20].ID)
}

func TestPaginator_LiveUpdateDoesNotReopenExhaustedSequence(t *testing.T) {
	store := newFlakyStore()
	seedMedia(t, store, "g1", 20)
	p, reg := newMediaPaginator(store, "g1", 20)
	defer reg.UnsubscribeAll()
	p.Initial(nil, nil)
	require.True(t, p.HasMore())

	page, err := p.LoadMore(context.Background())
	require.NoError(t, err)
	require.True(t, page.Loaded)
	require.False(t, page.HasMore)

	err = store.UpdateOne(context.Background(), gallery.MediaCollection("g1"), "m010", map[string]any{"tags": []string{"u1"}})
	require.NoError(t, err)
	assert.False(t, p.HasMore())

	calls := atomic.LoadInt32(&store.pagedCalls)
	page, err = p.LoadMore(context.Background())
	require.NoError(t, err)
	assert.False(t, page.Loaded)
	assert.Equal(t, calls, atomic.LoadInt32(&store.pagedCalls))
}

func TestPaginator_BulkUploadKeepsShortWindowItems(t *testing.T) {
	store := newFlakyStore()
	seedMedia(t, store, "g1", 5)
	p, reg := newMediaPaginator(store, "g1", 20)
	defer reg.UnsubscribeAll()
	p.Initial(nil, nil)
	require.False(t, p.HasMore())

	docs := make([]docstore.Document, 0, 16)
	for i := 0; i < 16; i++ {
		docs = append(docs, mustEncode(t, gallery.MediaItem{
			ID:         fmt.Sprintf("n%03d", i),
			GalleryID:  "g1",
			UploadedAt: seedBase.Add(time.Hour + time.Duration(i)*time.Minute),
		}))
	}
	_, err := store.WriteMany(context.Background(), gallery.MediaCollection("g1"), docs)
	require.NoError(t, err)

	// m000 fell out of the live window but was already shown
	items := p.Items()
	require.Len(t, items, 21)
	assert.Equal(t, "n015", items[0].ID)
	assert.Equal(t, "m000", items[20].ID)
	assert.False(t, p.HasMore())

	calls := atomic.LoadInt32(&store.pagedCalls)
	page, err := p.LoadMore(context.Background())
	require.NoError(t, err)
	assert.False(t, page.Loaded)
	assert.Equal(t, calls, atomic.LoadInt32(&store.pagedCalls))
}
