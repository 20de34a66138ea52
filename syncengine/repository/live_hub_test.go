package repository

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AzielCF/az-gallery/pkg/deliverypool"
	"github.com/AzielCF/az-gallery/syncengine/domain/docstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockFeed records what the hub publishes to other nodes
type MockFeed struct {
	mock.Mock
}

func (m *MockFeed) Publish(ctx context.Context, collection string) error {
	args := m.Called(ctx, collection)
	return args.Error(0)
}

func (m *MockFeed) Listen(fn func(collection string)) {
	m.Called(fn)
}

func TestLiveHub_LocalChangesArePublished(t *testing.T) {
	feed := new(MockFeed)
	feed.On("Listen", mock.Anything).Return()
	feed.On("Publish", mock.Anything, "media_g1").Return(nil).Once()
	feed.On("Publish", mock.Anything, "likes_g1").Return(errors.New("valkey down")).Once()

	hub := NewLiveHub(func(ctx context.Context, q docstore.Query) ([]docstore.Document, error) { return nil, nil }, nil)
	hub.AttachFeed(feed)

	hub.Changed(context.Background(), "media_g1")
	// a failed publish is logged, local listeners are unaffected
	hub.Changed(context.Background(), "likes_g1")

	feed.AssertExpectations(t)
	feed.AssertNumberOfCalls(t, "Publish", 2)
}

func TestLiveHub_RemoteSignalsAreCoalesced(t *testing.T) {
	pool := deliverypool.NewPool(1, 1)
	pool.Start(context.Background())
	defer pool.Stop()

	var runs int32
	hub := NewLiveHub(func(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
		atomic.AddInt32(&runs, 1)
		return nil, nil
	}, pool)
	feed := NewLocalFeed()
	hub.AttachFeed(feed)

	_, err := hub.Register(context.Background(), docstore.Query{Collection: "media_g1"}, func([]docstore.Document) {}, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) == 1 }, time.Second, 5*time.Millisecond)

	// occupy the only worker so remote signals pile up
	started := make(chan struct{})
	release := make(chan struct{})
	require.True(t, pool.Dispatch(context.Background(), deliverypool.Job{Key: "busy", Deliver: func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}}))
	<-started

	for i := 0; i < 5; i++ {
		require.NoError(t, feed.Publish(context.Background(), "media_g1"))
	}
	close(release)

	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) == 2 }, time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool { return atomic.LoadInt32(&runs) > 2 }, 100*time.Millisecond, 10*time.Millisecond)

	// once delivered, the next signal schedules again
	require.NoError(t, feed.Publish(context.Background(), "media_g1"))
	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) == 3 }, time.Second, 5*time.Millisecond)
}
