package syncengine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/AzielCF/az-gallery/pkg/deliverypool"
	"github.com/AzielCF/az-gallery/syncengine/application"
	"github.com/AzielCF/az-gallery/syncengine/domain/cache"
	"github.com/AzielCF/az-gallery/syncengine/domain/common"
	"github.com/AzielCF/az-gallery/syncengine/domain/docstore"
	"github.com/sirupsen/logrus"
)

type Config struct {
	SubscribeDebounce time.Duration
	Session           application.SessionConfig
	Notifications     application.NotificationConfig
}

func DefaultConfig() Config {
	return Config{
		SubscribeDebounce: 500 * time.Millisecond,
		Session:           application.DefaultSessionConfig(),
		Notifications:     application.DefaultNotificationConfig(),
	}
}

type sessionRef struct {
	session *application.GallerySession
	refs    int
}

type Stats struct {
	Sessions      int                     `json:"sessions"`
	Subscriptions int                     `json:"subscriptions"`
	Notifications application.BatchStats  `json:"notifications"`
	Cache         cache.Stats             `json:"cache"`
	Delivery      *deliverypool.PoolStats `json:"delivery,omitempty"`
}

// Manager wires the engine together: one cache, one registry and one
// notification pipeline per process, and at most one session per gallery.
type Manager struct {
	cfg           Config
	store         docstore.Store
	cache         cache.Store
	pool          *deliverypool.Pool
	registry      *application.Registry
	notifications *application.NotificationPipeline

	mu       sync.Mutex
	sessions map[string]*sessionRef
	stopped  bool
}

// NewManager builds the engine. pool may be nil when the store delivers
// inline.
func NewManager(ctx context.Context, cfg Config, store docstore.Store, cacheStore cache.Store, pool *deliverypool.Pool) *Manager {
	m := &Manager{
		cfg:      cfg,
		store:    store,
		cache:    cacheStore,
		pool:     pool,
		sessions: make(map[string]*sessionRef),
	}

	// 1. Registry shared by sessions and notifications
	m.registry = application.NewRegistry(ctx, cacheStore, cfg.SubscribeDebounce)

	// 2. Notification pipeline
	m.notifications = application.NewNotificationPipeline(cfg.Notifications, store, cacheStore, m.registry)
	m.notifications.Start(ctx)

	return m
}

func (m *Manager) Registry() *application.Registry { return m.registry }

func (m *Manager) Notifications() *application.NotificationPipeline { return m.notifications }

func (m *Manager) Cache() cache.Store { return m.cache }

func (m *Manager) Store() docstore.Store { return m.store }

// Acquire returns the session of galleryID, opening it on first use. Every
// Acquire must be paired with a Release.
func (m *Manager) Acquire(ctx context.Context, galleryID string) (*application.GallerySession, error) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil, common.ErrSessionClosed
	}
	if ref, ok := m.sessions[galleryID]; ok {
		ref.refs++
		m.mu.Unlock()
		return ref.session, nil
	}
	s := application.NewGallerySession(galleryID, m.cfg.Session, m.store, m.cache, m.registry, m.notifications)
	m.sessions[galleryID] = &sessionRef{session: s, refs: 1}
	m.mu.Unlock()

	logrus.Infof("[ENGINE] Opening gallery %s", galleryID)
	if err := s.Open(ctx); err != nil {
		m.mu.Lock()
		delete(m.sessions, galleryID)
		m.mu.Unlock()
		s.Close()
		return nil, err
	}
	return s, nil
}

// Release drops one reference; the last one closes the session.
func (m *Manager) Release(galleryID string) {
	m.mu.Lock()
	ref, ok := m.sessions[galleryID]
	if !ok {
		m.mu.Unlock()
		return
	}
	ref.refs--
	if ref.refs > 0 {
		m.mu.Unlock()
		return
	}
	delete(m.sessions, galleryID)
	m.mu.Unlock()

	ref.session.Close()
	logrus.Infof("[ENGINE] Closed gallery %s", galleryID)
}

// SetSessionConfig changes the configuration of sessions opened from now on.
func (m *Manager) SetSessionConfig(cfg application.SessionConfig) {
	m.mu.Lock()
	m.cfg.Session = cfg
	m.mu.Unlock()
}

func (m *Manager) SessionConfig() application.SessionConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.Session
}

// Session returns an already open session without taking a reference.
func (m *Manager) Session(galleryID string) (*application.GallerySession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref, ok := m.sessions[galleryID]
	if !ok {
		return nil, false
	}
	return ref.session, true
}

func (m *Manager) Stats(ctx context.Context) Stats {
	m.mu.Lock()
	n := len(m.sessions)
	m.mu.Unlock()

	st := Stats{
		Sessions:      n,
		Subscriptions: m.registry.Active(),
		Notifications: m.notifications.Stats(),
	}
	if cs, err := m.cache.Stats(ctx); err == nil {
		st.Cache = cs
	}
	if m.pool != nil {
		ps := m.pool.GetStats()
		st.Delivery = &ps
	}
	return st
}

// Stop closes every session, flushes pending notifications and tears down
// all listeners.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	refs := make([]*sessionRef, 0, len(m.sessions))
	for _, ref := range m.sessions {
		refs = append(refs, ref)
	}
	m.sessions = make(map[string]*sessionRef)
	m.mu.Unlock()

	for _, ref := range refs {
		ref.session.Close()
	}

	var errs []error
	if err := m.notifications.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	m.registry.UnsubscribeAll()
	logrus.Info("[ENGINE] Stopped")
	return errors.Join(errs...)
}
