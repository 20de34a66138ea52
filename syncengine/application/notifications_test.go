package application

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AzielCF/az-gallery/syncengine/domain/docstore"
	"github.com/AzielCF/az-gallery/syncengine/domain/notification"
	"github.com/AzielCF/az-gallery/syncengine/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notifyEnv struct {
	store    *flakyStore
	cache    *repository.MemoryCacheStore
	registry *Registry
	pipeline *NotificationPipeline
}

func newNotifyEnv(t *testing.T, debounce time.Duration) *notifyEnv {
	t.Helper()
	ctx := context.Background()
	env := &notifyEnv{store: newFlakyStore(), cache: repository.NewMemoryCacheStore()}
	env.registry = NewRegistry(ctx, env.cache, debounce)
	cfg := DefaultNotificationConfig()
	cfg.BatchDelay = time.Hour
	cfg.ReadChunk = 2
	env.pipeline = NewNotificationPipeline(cfg, env.store, env.cache, env.registry)
	env.pipeline.Start(ctx)
	t.Cleanup(func() {
		_ = env.pipeline.Stop(context.Background())
		env.registry.UnsubscribeAll()
	})
	return env
}

func (e *notifyEnv) all(t *testing.T, scope string) []notification.Notification {
	t.Helper()
	docs, err := e.store.MemoryDocStore.PagedQuery(context.Background(), docstore.Query{Collection: notification.Collection(scope)})
	require.NoError(t, err)
	list, err := docstore.DecodeAll[notification.Notification](docs)
	require.NoError(t, err)
	return list
}

func TestNotificationPipeline_GroupsWritesByScope(t *testing.T) {
	env := newNotifyEnv(t, 0)
	for i := 0; i < 3; i++ {
		env.pipeline.Create(notification.Notification{ScopeID: "g1", RecipientID: "u1", Kind: notification.KindLike, Message: "liked"})
	}
	for i := 0; i < 2; i++ {
		env.pipeline.Create(notification.Notification{ScopeID: "g2", RecipientID: "u2", Kind: notification.KindTag, Message: "tagged"})
	}
	assert.Zero(t, atomic.LoadInt32(&env.store.writeCalls), "Create never writes directly")

	require.NoError(t, env.pipeline.Flush(context.Background()))
	assert.Equal(t, int32(2), atomic.LoadInt32(&env.store.writeCalls))

	g1 := env.all(t, "g1")
	require.Len(t, g1, 3)
	for _, n := range g1 {
		assert.NotEmpty(t, n.ID)
		assert.False(t, n.Read)
		assert.False(t, n.Timestamp.IsZero())
	}
	assert.Len(t, env.all(t, "g2"), 2)
}

func TestNotificationPipeline_DropsIncompleteNotifications(t *testing.T) {
	env := newNotifyEnv(t, 0)
	env.pipeline.Create(notification.Notification{RecipientID: "u1"})
	env.pipeline.Create(notification.Notification{ScopeID: "g1"})
	require.NoError(t, env.pipeline.Flush(context.Background()))
	assert.Zero(t, atomic.LoadInt32(&env.store.writeCalls))
}

func TestNotificationPipeline_FailedScopeIsRetried(t *testing.T) {
	env := newNotifyEnv(t, 0)
	boom := errors.New("quota exceeded")
	env.store.setFailWrite(boom)

	env.pipeline.Create(notification.Notification{ScopeID: "g1", RecipientID: "u1", Kind: notification.KindComment})
	err := env.pipeline.Flush(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, env.all(t, "g1"))

	env.store.setFailWrite(nil)
	require.NoError(t, env.pipeline.Flush(context.Background()))
	assert.Len(t, env.all(t, "g1"), 1)
}

func TestNotificationPipeline_SubscribeDeliversRecipientList(t *testing.T) {
	env := newNotifyEnv(t, 0)

	var mu sync.Mutex
	var latest []notification.Notification
	unsub := env.pipeline.Subscribe("g1", "u1", func(list []notification.Notification) {
		mu.Lock()
		latest = list
		mu.Unlock()
	})
	defer unsub()

	base := time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC)
	env.pipeline.Create(notification.Notification{ID: "old", ScopeID: "g1", RecipientID: "u1", Timestamp: base})
	env.pipeline.Create(notification.Notification{ID: "new", ScopeID: "g1", RecipientID: "u1", Timestamp: base.Add(time.Minute)})
	env.pipeline.Create(notification.Notification{ID: "other", ScopeID: "g1", RecipientID: "u2", Timestamp: base})
	require.NoError(t, env.pipeline.Flush(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, latest, 2)
	assert.Equal(t, "new", latest[0].ID)
	assert.Equal(t, "old", latest[1].ID)
}

func TestNotificationPipeline_CachedListServedFirst(t *testing.T) {
	env := newNotifyEnv(t, time.Hour)
	cached := []notification.Notification{{ID: "n1", ScopeID: "g1", RecipientID: "u1"}}
	require.NoError(t, env.cache.Set(context.Background(), notificationKey("g1", "u1"), cached))

	var got []notification.Notification
	unsub := env.pipeline.Subscribe("g1", "u1", func(list []notification.Notification) { got = list })
	defer unsub()

	assert.Equal(t, cached, got)
	assert.Equal(t, 0, env.registry.Active())
}

func TestNotificationPipeline_ConsumersShareOneListener(t *testing.T) {
	env := newNotifyEnv(t, 0)

	var a, b int32
	unsubA := env.pipeline.Subscribe("g1", "u1", func([]notification.Notification) { atomic.AddInt32(&a, 1) })
	unsubB := env.pipeline.Subscribe("g1", "u1", func([]notification.Notification) { atomic.AddInt32(&b, 1) })
	assert.Equal(t, 1, env.registry.Active())
	assert.Equal(t, int32(1), atomic.LoadInt32(&b), "late consumer gets the latest list")

	unsubA()
	unsubA()
	assert.Equal(t, 1, env.registry.Active())

	env.pipeline.Create(notification.Notification{ScopeID: "g1", RecipientID: "u1"})
	require.NoError(t, env.pipeline.Flush(context.Background()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&a))
	assert.Equal(t, int32(2), atomic.LoadInt32(&b))

	unsubB()
	assert.Equal(t, 0, env.registry.Active())
}

func TestNotificationPipeline_MarkReadAndUnreadCount(t *testing.T) {
	env := newNotifyEnv(t, 0)
	ids := []string{"a", "b", "c", "d", "e"}
	for _, id := range ids {
		env.pipeline.Create(notification.Notification{ID: id, ScopeID: "g1", RecipientID: "u1"})
	}
	require.NoError(t, env.pipeline.Flush(context.Background()))
	ctx := context.Background()
	assert.Equal(t, 5, env.pipeline.UnreadCount(ctx, "g1", "u1"))

	require.NoError(t, env.pipeline.MarkRead(ctx, "g1", []string{"a", "b", "c", "a"}))
	assert.Equal(t, 2, env.pipeline.UnreadCount(ctx, "g1", "u1"))

	// already read stays read
	require.NoError(t, env.pipeline.MarkRead(ctx, "g1", []string{"a"}))
	assert.Equal(t, 2, env.pipeline.UnreadCount(ctx, "g1", "u1"))

	require.NoError(t, env.pipeline.MarkRead(ctx, "g1", nil))

	require.NoError(t, env.pipeline.MarkAllRead(ctx, "g1", "u1"))
	assert.Equal(t, 0, env.pipeline.UnreadCount(ctx, "g1", "u1"))
	for _, n := range env.all(t, "g1") {
		assert.True(t, n.Read, n.ID)
	}
}

func TestNotificationPipeline_MarkReadUnknownIDFails(t *testing.T) {
	env := newNotifyEnv(t, 0)
	err := env.pipeline.MarkRead(context.Background(), "g1", []string{"missing"})
	assert.Error(t, err)
}

func TestNotificationPipeline_HelpersSkipSelf(t *testing.T) {
	env := newNotifyEnv(t, 0)

	env.pipeline.NotifyTagged("g1", "m1", "u1", "Ana", []string{"u1", "u2", "u2", "u3"})
	env.pipeline.NotifyComment("g1", "m1", "u1", "u1", "Ana", "my own photo")
	env.pipeline.NotifyLike("g1", "m1", "u1", "u4", "")
	require.NoError(t, env.pipeline.Flush(context.Background()))

	list := env.all(t, "g1")
	require.Len(t, list, 3)
	recipients := map[string]notification.Kind{}
	for _, n := range list {
		recipients[n.RecipientID] = n.Kind
	}
	assert.Equal(t, map[string]notification.Kind{
		"u2": notification.KindTag,
		"u3": notification.KindTag,
		"u1": notification.KindLike,
	}, recipients)
	for _, n := range list {
		if n.Kind == notification.KindLike {
			assert.Equal(t, "Someone liked your photo", n.Message)
		}
	}
}
