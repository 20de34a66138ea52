package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/AzielCF/az-gallery/syncengine/domain/cache"
	"github.com/AzielCF/az-gallery/syncengine/domain/common"
	"github.com/AzielCF/az-gallery/syncengine/domain/docstore"
	"github.com/AzielCF/az-gallery/syncengine/domain/gallery"
	"github.com/sirupsen/logrus"
)

type SessionConfig struct {
	PageSize int
	// Stagger delays secondary resources behind the media subscription.
	Stagger time.Duration
	TTLs    cache.TTLs
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		PageSize: 20,
		Stagger:  100 * time.Millisecond,
		TTLs:     cache.DefaultTTLs(),
	}
}

// GallerySession owns the synchronized state of one gallery view. The whole
// state is rebuilt when the gallery changes; every asynchronous result
// carries the epoch it was issued under and is dropped once that epoch is
// gone.
type GallerySession struct {
	cfg      SessionConfig
	store    docstore.Store
	cache    cache.Store
	registry *Registry
	notify   *NotificationPipeline

	mu        sync.Mutex
	galleryID string
	epoch     uint64
	closed    bool
	status    gallery.Status
	err       error
	media     *Paginator[gallery.MediaItem]
	items     []gallery.MediaItem
	hasMore   bool
	comments  map[string][]gallery.Comment
	likes     map[string][]gallery.Like
	profiles  map[string]gallery.Profile
	stagger   *time.Timer

	watchMu  sync.Mutex
	watchSeq uint64
	watchers map[uint64]func(gallery.View)
}

func NewGallerySession(galleryID string, cfg SessionConfig, store docstore.Store, cacheStore cache.Store, registry *Registry, notify *NotificationPipeline) *GallerySession {
	def := DefaultSessionConfig()
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.TTLs == nil {
		cfg.TTLs = def.TTLs
	}
	s := &GallerySession{
		cfg:       cfg,
		store:     store,
		cache:     cacheStore,
		registry:  registry,
		notify:    notify,
		galleryID: galleryID,
		watchers:  make(map[uint64]func(gallery.View)),
	}
	s.resetLocked()
	return s
}

func (s *GallerySession) GalleryID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.galleryID
}

// keysLocked lists the registry and cache keys owned by the current scope.
func (s *GallerySession) keysLocked() []string {
	return []string{
		cache.Key(cache.KindMedia, s.galleryID),
		cache.Key(cache.KindComments, s.galleryID),
		cache.Key(cache.KindLikes, s.galleryID),
		cache.Key(cache.KindProfiles, s.galleryID),
	}
}

func (s *GallerySession) resetLocked() {
	s.status = gallery.StatusIdle
	s.err = nil
	s.items = nil
	s.hasMore = true
	s.comments = make(map[string][]gallery.Comment)
	s.likes = make(map[string][]gallery.Like)
	s.profiles = make(map[string]gallery.Profile)
	s.media = NewPaginator[gallery.MediaItem](PaginatorConfig{
		Key:        cache.Key(cache.KindMedia, s.galleryID),
		Collection: gallery.MediaCollection(s.galleryID),
		OrderBy:    "uploaded_at",
		Descending: true,
		PageSize:   s.cfg.PageSize,
		TTL:        s.cfg.TTLs.For(cache.KindMedia),
	}, s.store, s.registry)
}

// Open moves Idle -> Loading and starts synchronization. A fresh cached
// first page is applied synchronously, so the session may already be Ready
// when Open returns; the live subscription still attaches in the background.
func (s *GallerySession) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return common.ErrSessionClosed
	}
	if s.status != gallery.StatusIdle {
		s.mu.Unlock()
		return nil
	}
	s.status = gallery.StatusLoading
	epoch := s.epoch
	media := s.media
	galleryID := s.galleryID
	s.mu.Unlock()

	logrus.Debugf("[GALLERY] Opening session for %s (epoch %d)", galleryID, epoch)
	s.emit()

	served := media.Initial(
		func(items []gallery.MediaItem) { s.onMedia(epoch, items) },
		func(err error) { s.onError(epoch, err) },
	)
	if served {
		logrus.Debugf("[GALLERY] Served %s from cache", galleryID)
	}

	if s.cfg.Stagger <= 0 {
		s.openSecondary(epoch)
		return nil
	}
	s.mu.Lock()
	if s.epoch == epoch {
		s.stagger = time.AfterFunc(s.cfg.Stagger, func() { s.openSecondary(epoch) })
	}
	s.mu.Unlock()
	return nil
}

func (s *GallerySession) openSecondary(epoch uint64) {
	s.mu.Lock()
	if s.epoch != epoch || s.closed {
		s.mu.Unlock()
		return
	}
	s.stagger = nil
	galleryID := s.galleryID
	s.mu.Unlock()

	subscribeCollection(s, epoch, cache.KindComments, docstore.Query{
		Collection: gallery.CommentCollection(galleryID),
		OrderBy:    "created_at",
	}, func(list []gallery.Comment) {
		idx := make(map[string][]gallery.Comment)
		for _, c := range list {
			idx[c.MediaID] = append(idx[c.MediaID], c)
		}
		s.comments = idx
	})

	subscribeCollection(s, epoch, cache.KindLikes, docstore.Query{
		Collection: gallery.LikeCollection(galleryID),
		Filters:    []docstore.Filter{{Field: "removed", Op: docstore.OpNotEqual, Value: true}},
		OrderBy:    "created_at",
	}, func(list []gallery.Like) {
		idx := make(map[string][]gallery.Like)
		for _, l := range list {
			idx[l.MediaID] = append(idx[l.MediaID], l)
		}
		s.likes = idx
	})

	subscribeCollection(s, epoch, cache.KindProfiles, docstore.Query{
		Collection: gallery.ProfileCollection(galleryID),
	}, func(list []gallery.Profile) {
		idx := make(map[string]gallery.Profile, len(list))
		for _, p := range list {
			idx[p.ID] = p
		}
		s.profiles = idx
	})
}

// subscribeCollection opens a secondary live resource. apply runs under the
// session lock and only for the epoch the subscription was issued under.
func subscribeCollection[T any](s *GallerySession, epoch uint64, kind cache.Kind, q docstore.Query, apply func([]T)) {
	s.mu.Lock()
	key := cache.Key(kind, s.galleryID)
	s.mu.Unlock()

	s.registry.Subscribe(key, Listener{
		TTL: s.cfg.TTLs.For(kind),
		Open: func(ctx context.Context, emit func(any), fail func(error)) (func(), error) {
			unsub, err := s.store.LiveQuery(ctx, q, func(docs []docstore.Document) {
				emit(docs)
			}, fail)
			if err != nil {
				return nil, &common.TransientFetchError{Op: "live query", Key: key, Err: err}
			}
			return unsub, nil
		},
		OnData: func(value any) {
			docs, ok := cache.As[[]docstore.Document](value)
			if !ok {
				return
			}
			list, err := docstore.DecodeAll[T](docs)
			if err != nil {
				logrus.WithError(err).Warnf("[GALLERY] Skipped undecodable documents in %s", key)
			}
			s.mu.Lock()
			if s.epoch != epoch {
				s.mu.Unlock()
				return
			}
			apply(list)
			s.mu.Unlock()
			s.emit()
		},
		OnError: func(err error) {
			// secondary failures surface but never block Ready
			s.onError(epoch, err)
		},
	})
}

func (s *GallerySession) onMedia(epoch uint64, items []gallery.MediaItem) {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		logrus.Debugf("[GALLERY] Ignoring stale media delivery (epoch %d)", epoch)
		return
	}
	s.items = items
	s.hasMore = s.media.HasMore()
	switch s.status {
	case gallery.StatusLoading, gallery.StatusError:
		s.status = gallery.StatusReady
		s.err = nil
	}
	s.mu.Unlock()
	s.emit()
}

func (s *GallerySession) onError(epoch uint64, err error) {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	s.err = err
	if s.status == gallery.StatusLoading || s.status == gallery.StatusLoadingMore {
		s.status = gallery.StatusError
	}
	s.mu.Unlock()
	s.emit()
}

// LoadMore runs Ready -> LoadingMore -> Ready. It is a no-op while already
// loading more, when there is nothing more, or before the first page.
func (s *GallerySession) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return common.ErrSessionClosed
	}
	if s.status == gallery.StatusLoadingMore || !s.hasMore || s.media.Cursor() == nil {
		s.mu.Unlock()
		return nil
	}
	prev := s.status
	s.status = gallery.StatusLoadingMore
	epoch := s.epoch
	media := s.media
	s.mu.Unlock()
	s.emit()

	page, err := media.LoadMore(ctx)

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return nil
	}
	switch {
	case errors.Is(err, common.ErrStaleResponse):
		s.mu.Unlock()
		return nil
	case err != nil:
		logrus.WithError(err).Warnf("[GALLERY] Load more failed for %s", s.galleryID)
		s.err = err
		s.status = gallery.StatusError
	case !page.Loaded:
		s.status = prev
	default:
		s.items = media.Items()
		s.hasMore = page.HasMore
		s.err = nil
		s.status = gallery.StatusReady
	}
	s.mu.Unlock()
	s.emit()
	return err
}

// Refresh is a cold restart of the current scope: cache cleared, listeners
// torn down, pagination reset, back to Loading.
func (s *GallerySession) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return common.ErrSessionClosed
	}
	keys := s.teardownLocked()
	s.resetLocked()
	s.mu.Unlock()

	if err := s.cache.Clear(ctx, keys...); err != nil {
		logrus.WithError(err).Warnf("[GALLERY] Failed to clear cache during refresh")
	}
	s.registry.Unsubscribe(keys...)
	return s.Open(ctx)
}

// SwitchGallery replaces the scope. Listeners of the previous gallery are torn
// down; its cache is kept so returning within the TTL is instant.
func (s *GallerySession) SwitchGallery(ctx context.Context, galleryID string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return common.ErrSessionClosed
	}
	if galleryID == s.galleryID && s.status != gallery.StatusIdle {
		s.mu.Unlock()
		return nil
	}
	keys := s.teardownLocked()
	s.galleryID = galleryID
	s.resetLocked()
	s.mu.Unlock()

	s.registry.Unsubscribe(keys...)
	return s.Open(ctx)
}

// Close tears the session down. Safe to call more than once.
func (s *GallerySession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	keys := s.teardownLocked()
	s.mu.Unlock()

	s.registry.Unsubscribe(keys...)

	s.watchMu.Lock()
	s.watchers = make(map[uint64]func(gallery.View))
	s.watchMu.Unlock()
	logrus.Debugf("[GALLERY] Session closed")
}

// teardownLocked invalidates in-flight work of the current epoch and returns
// the keys whose listeners must be released.
func (s *GallerySession) teardownLocked() []string {
	s.epoch++
	if s.stagger != nil {
		s.stagger.Stop()
		s.stagger = nil
	}
	s.media.Reset()
	return s.keysLocked()
}

func (s *GallerySession) Snapshot() gallery.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *GallerySession) viewLocked() gallery.View {
	v := gallery.View{
		GalleryID:     s.galleryID,
		Status:        s.status,
		Items:         append([]gallery.MediaItem(nil), s.items...),
		Comments:      make(map[string][]gallery.Comment, len(s.comments)),
		Likes:         make(map[string][]gallery.Like, len(s.likes)),
		Profiles:      make(map[string]gallery.Profile, len(s.profiles)),
		HasMore:       s.hasMore,
		IsLoading:     s.status == gallery.StatusLoading,
		IsLoadingMore: s.status == gallery.StatusLoadingMore,
	}
	if v.Items == nil {
		v.Items = []gallery.MediaItem{}
	}
	for k, c := range s.comments {
		v.Comments[k] = append([]gallery.Comment(nil), c...)
	}
	for k, l := range s.likes {
		v.Likes[k] = append([]gallery.Like(nil), l...)
	}
	for k, p := range s.profiles {
		v.Profiles[k] = p
	}
	if s.err != nil {
		v.Error = s.err.Error()
	}
	return v
}

// Watch registers fn for every state change and returns its cancel func.
func (s *GallerySession) Watch(fn func(gallery.View)) func() {
	s.watchMu.Lock()
	s.watchSeq++
	id := s.watchSeq
	s.watchers[id] = fn
	s.watchMu.Unlock()

	return func() {
		s.watchMu.Lock()
		delete(s.watchers, id)
		s.watchMu.Unlock()
	}
}

func (s *GallerySession) emit() {
	view := s.Snapshot()
	s.watchMu.Lock()
	targets := make([]func(gallery.View), 0, len(s.watchers))
	for _, fn := range s.watchers {
		targets = append(targets, fn)
	}
	s.watchMu.Unlock()
	for _, fn := range targets {
		fn(view)
	}
}
