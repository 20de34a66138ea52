package application

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AzielCF/az-gallery/syncengine/domain/docstore"
	"github.com/AzielCF/az-gallery/syncengine/domain/gallery"
	"github.com/AzielCF/az-gallery/syncengine/repository"
	"github.com/stretchr/testify/require"
)

// flakyStore wraps the in-memory store so tests can count, fail or hold
// individual operations.
type flakyStore struct {
	*repository.MemoryDocStore

	pagedCalls int32
	writeCalls int32

	mu        sync.Mutex
	failPaged error
	failWrite error
	holdPaged chan struct{}
}

func newFlakyStore() *flakyStore {
	return &flakyStore{MemoryDocStore: repository.NewMemoryDocStore(nil)}
}

func (f *flakyStore) PagedQuery(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	atomic.AddInt32(&f.pagedCalls, 1)
	f.mu.Lock()
	fail, hold := f.failPaged, f.holdPaged
	f.mu.Unlock()
	if hold != nil {
		<-hold
	}
	if fail != nil {
		return nil, fail
	}
	return f.MemoryDocStore.PagedQuery(ctx, q)
}

func (f *flakyStore) WriteMany(ctx context.Context, collection string, docs []docstore.Document) ([]string, error) {
	atomic.AddInt32(&f.writeCalls, 1)
	f.mu.Lock()
	fail := f.failWrite
	f.mu.Unlock()
	if fail != nil {
		return nil, fail
	}
	return f.MemoryDocStore.WriteMany(ctx, collection, docs)
}

func (f *flakyStore) setFailPaged(err error) {
	f.mu.Lock()
	f.failPaged = err
	f.mu.Unlock()
}

func (f *flakyStore) setFailWrite(err error) {
	f.mu.Lock()
	f.failWrite = err
	f.mu.Unlock()
}

func (f *flakyStore) setHoldPaged(ch chan struct{}) {
	f.mu.Lock()
	f.holdPaged = ch
	f.mu.Unlock()
}

var seedBase = time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)

// seedMedia writes n media items; item i is i minutes newer than item 0.
func seedMedia(t *testing.T, store docstore.Store, galleryID string, n int) {
	t.Helper()
	docs := make([]docstore.Document, 0, n)
	for i := 0; i < n; i++ {
		d, err := docstore.Encode(gallery.MediaItem{
			ID:         fmt.Sprintf("m%03d", i),
			GalleryID:  galleryID,
			OwnerID:    "owner",
			URL:        fmt.Sprintf("https://cdn.example.com/%s/%d.jpg", galleryID, i),
			UploadedAt: seedBase.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
		docs = append(docs, d)
	}
	_, err := store.WriteMany(context.Background(), gallery.MediaCollection(galleryID), docs)
	require.NoError(t, err)
}

func mediaIDs(items []gallery.MediaItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func mustEncode(t *testing.T, v any) docstore.Document {
	t.Helper()
	d, err := docstore.Encode(v)
	require.NoError(t, err)
	return d
}
