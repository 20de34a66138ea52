package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/AzielCF/az-gallery/syncengine/domain/cache"
	"github.com/AzielCF/az-gallery/syncengine/domain/common"
	"github.com/AzielCF/az-gallery/syncengine/domain/docstore"
	"github.com/AzielCF/az-gallery/syncengine/domain/notification"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type NotificationConfig struct {
	BatchSize  int
	BatchDelay time.Duration
	// MaxRetries re-enqueues a failed scope group this many times.
	MaxRetries int
	LiveLimit  int
	ReadChunk  int
	TTL        time.Duration
}

func DefaultNotificationConfig() NotificationConfig {
	return NotificationConfig{
		BatchSize:  10,
		BatchDelay: 300 * time.Millisecond,
		MaxRetries: 2,
		LiveLimit:  50,
		ReadChunk:  10,
		TTL:        time.Minute,
	}
}

type pendingNotification struct {
	n        notification.Notification
	attempts int
}

// NotificationPipeline batches notification writes per scope and serves
// per-recipient live lists through the shared registry.
type NotificationPipeline struct {
	cfg      NotificationConfig
	store    docstore.Store
	cache    cache.Store
	registry *Registry
	batch    *BatchProcessor[pendingNotification]
	now      func() time.Time

	mu        sync.Mutex
	consumers map[string]map[uint64]func([]notification.Notification)
	latest    map[string][]notification.Notification
	seq       uint64
}

func NewNotificationPipeline(cfg NotificationConfig, store docstore.Store, cacheStore cache.Store, registry *Registry) *NotificationPipeline {
	def := DefaultNotificationConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.BatchDelay <= 0 {
		cfg.BatchDelay = def.BatchDelay
	}
	if cfg.LiveLimit <= 0 {
		cfg.LiveLimit = def.LiveLimit
	}
	if cfg.ReadChunk <= 0 {
		cfg.ReadChunk = def.ReadChunk
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}

	p := &NotificationPipeline{
		cfg:       cfg,
		store:     store,
		cache:     cacheStore,
		registry:  registry,
		now:       time.Now,
		consumers: make(map[string]map[uint64]func([]notification.Notification)),
		latest:    make(map[string][]notification.Notification),
	}
	p.batch = NewBatchProcessor(BatchConfig{
		Name:      "notifications",
		BatchSize: cfg.BatchSize,
		Delay:     cfg.BatchDelay,
	}, p.processBatch)
	return p
}

func (p *NotificationPipeline) Start(ctx context.Context) {
	p.batch.Start(ctx)
}

func (p *NotificationPipeline) Stop(ctx context.Context) error {
	return p.batch.Stop(ctx)
}

func (p *NotificationPipeline) Stats() BatchStats {
	return p.batch.Stats()
}

// Create enqueues n. It never writes directly.
func (p *NotificationPipeline) Create(n notification.Notification) {
	if n.ScopeID == "" || n.RecipientID == "" {
		logrus.Warnf("[NOTIFY] Dropping notification without scope or recipient (kind=%s)", n.Kind)
		return
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = p.now().UTC()
	}
	n.Read = false
	p.batch.Add(pendingNotification{n: n})
}

// Flush pushes pending notifications out immediately.
func (p *NotificationPipeline) Flush(ctx context.Context) error {
	return p.batch.Flush(ctx)
}

func (p *NotificationPipeline) processBatch(ctx context.Context, items []pendingNotification) error {
	byScope := make(map[string][]pendingNotification)
	var order []string
	for _, it := range items {
		if _, ok := byScope[it.n.ScopeID]; !ok {
			order = append(order, it.n.ScopeID)
		}
		byScope[it.n.ScopeID] = append(byScope[it.n.ScopeID], it)
	}

	var mu sync.Mutex
	var failed []error
	g, gctx := errgroup.WithContext(ctx)
	for _, scope := range order {
		scope, group := scope, byScope[scope]
		g.Go(func() error {
			docs := make([]docstore.Document, 0, len(group))
			for _, it := range group {
				doc, err := docstore.Encode(it.n)
				if err != nil {
					return err
				}
				docs = append(docs, doc)
			}
			if _, err := p.store.WriteMany(gctx, notification.Collection(scope), docs); err != nil {
				mu.Lock()
				failed = append(failed, fmt.Errorf("scope %s: %w", scope, err))
				mu.Unlock()
				p.retry(scope, group)
				return nil
			}
			logrus.Debugf("[NOTIFY] Wrote %d notifications for scope %s", len(docs), scope)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if len(failed) > 0 {
		return errors.Join(failed...)
	}
	return nil
}

func (p *NotificationPipeline) retry(scope string, group []pendingNotification) {
	for _, it := range group {
		if it.attempts >= p.cfg.MaxRetries {
			logrus.Errorf("[NOTIFY] Giving up on notification %s for scope %s after %d attempts", it.n.ID, scope, it.attempts+1)
			continue
		}
		it.attempts++
		// retries run on the flusher goroutine; a full queue drops instead of
		// waiting on the loop that waits on us
		if !p.batch.TryAdd(it) {
			logrus.Errorf("[NOTIFY] Retry queue full, dropping notification %s for scope %s", it.n.ID, scope)
		}
	}
}

func notificationKey(scopeID, recipientID string) string {
	return cache.Key(cache.KindNotifications, scopeID, recipientID)
}

// Subscribe delivers the recipient's latest notifications (most recent first,
// bounded by LiveLimit). A cached list is delivered synchronously before the
// debounced live listener attaches. Several consumers of the same recipient
// share one registry listener.
func (p *NotificationPipeline) Subscribe(scopeID, recipientID string, cb func([]notification.Notification)) notification.Unsubscribe {
	key := notificationKey(scopeID, recipientID)

	p.mu.Lock()
	p.seq++
	id := p.seq
	first := len(p.consumers[key]) == 0
	if first {
		p.consumers[key] = make(map[uint64]func([]notification.Notification))
	}
	p.consumers[key][id] = cb
	latest, hasLatest := p.latest[key]
	p.mu.Unlock()

	if first {
		p.registry.Subscribe(key, Listener{
			TTL: p.cfg.TTL,
			Open: func(ctx context.Context, emit func(any), fail func(error)) (func(), error) {
				return p.store.LiveQuery(ctx, docstore.Query{
					Collection: notification.Collection(scopeID),
					Filters:    []docstore.Filter{{Field: "recipient_id", Op: docstore.OpEqual, Value: recipientID}},
					OrderBy:    "timestamp",
					Descending: true,
					Limit:      p.cfg.LiveLimit,
				}, func(docs []docstore.Document) {
					list, err := docstore.DecodeAll[notification.Notification](docs)
					if err != nil {
						logrus.WithError(err).Warnf("[NOTIFY] Skipped undecodable notifications for %s", key)
					}
					emit(list)
				}, fail)
			},
			OnData: func(value any) {
				list, ok := cache.As[[]notification.Notification](value)
				if !ok {
					return
				}
				p.publish(key, list)
			},
			OnError: func(err error) {
				logrus.WithError(err).Warnf("[NOTIFY] Live notifications failed for %s", key)
			},
		})
	} else if hasLatest && cb != nil {
		cb(latest)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.consumers[key], id)
			last := len(p.consumers[key]) == 0
			if last {
				delete(p.consumers, key)
				delete(p.latest, key)
			}
			p.mu.Unlock()
			if last {
				p.registry.Unsubscribe(key)
			}
		})
	}
}

func (p *NotificationPipeline) publish(key string, list []notification.Notification) {
	p.mu.Lock()
	p.latest[key] = list
	targets := make([]func([]notification.Notification), 0, len(p.consumers[key]))
	for _, cb := range p.consumers[key] {
		if cb != nil {
			targets = append(targets, cb)
		}
	}
	p.mu.Unlock()

	for _, cb := range targets {
		cb(list)
	}
}

// MarkRead flips read=true on ids in chunks of ReadChunk, chunks running
// concurrently. Marking an already-read notification is a no-op.
func (p *NotificationPipeline) MarkRead(ctx context.Context, scopeID string, ids []string) error {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil
	}
	collection := notification.Collection(scopeID)

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(ids); start += p.cfg.ReadChunk {
		end := start + p.cfg.ReadChunk
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]
		g.Go(func() error {
			for _, id := range chunk {
				if err := p.store.UpdateOne(gctx, collection, id, map[string]any{"read": true}); err != nil {
					return fmt.Errorf("mark %s read: %w", id, err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logrus.WithError(err).Errorf("[NOTIFY] MarkRead failed for scope %s", scopeID)
		return err
	}
	return nil
}

// MarkAllRead marks every unread notification visible to the recipient.
func (p *NotificationPipeline) MarkAllRead(ctx context.Context, scopeID, recipientID string) error {
	docs, err := p.store.PagedQuery(ctx, docstore.Query{
		Collection: notification.Collection(scopeID),
		Filters: []docstore.Filter{
			{Field: "recipient_id", Op: docstore.OpEqual, Value: recipientID},
			{Field: "read", Op: docstore.OpEqual, Value: false},
		},
		OrderBy:    "timestamp",
		Descending: true,
		Limit:      p.cfg.LiveLimit,
	})
	if err != nil {
		return &common.TransientFetchError{Op: "mark all read", Key: notificationKey(scopeID, recipientID), Err: err}
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return p.MarkRead(ctx, scopeID, ids)
}

// UnreadCount counts unread items in the recipient's visible window, using
// the cache when fresh.
func (p *NotificationPipeline) UnreadCount(ctx context.Context, scopeID, recipientID string) int {
	key := notificationKey(scopeID, recipientID)
	list, ok := cache.Get[[]notification.Notification](ctx, p.cache, key, p.cfg.TTL)
	if !ok {
		docs, err := p.store.PagedQuery(ctx, docstore.Query{
			Collection: notification.Collection(scopeID),
			Filters:    []docstore.Filter{{Field: "recipient_id", Op: docstore.OpEqual, Value: recipientID}},
			OrderBy:    "timestamp",
			Descending: true,
			Limit:      p.cfg.LiveLimit,
		})
		if err != nil {
			logrus.WithError(err).Warnf("[NOTIFY] Unread count failed for %s", key)
			return 0
		}
		list, _ = docstore.DecodeAll[notification.Notification](docs)
	}
	n := 0
	for _, item := range list {
		if !item.Read {
			n++
		}
	}
	return n
}

// NotifyTagged fans a tag notification out to every tagged user except the
// sender.
func (p *NotificationPipeline) NotifyTagged(scopeID, mediaID, senderID, senderName string, recipients []string) {
	for _, r := range uniqueIDs(recipients) {
		if r == senderID {
			continue
		}
		p.Create(notification.Notification{
			ScopeID:     scopeID,
			RecipientID: r,
			Kind:        notification.KindTag,
			Message:     fmt.Sprintf("%s tagged you in a photo", displayName(senderName)),
			SenderID:    senderID,
			MediaID:     mediaID,
		})
	}
}

func (p *NotificationPipeline) NotifyComment(scopeID, mediaID, ownerID, senderID, senderName, text string) {
	if ownerID == "" || ownerID == senderID {
		return
	}
	p.Create(notification.Notification{
		ScopeID:     scopeID,
		RecipientID: ownerID,
		Kind:        notification.KindComment,
		Message:     fmt.Sprintf("%s commented: %s", displayName(senderName), truncate(text, 80)),
		SenderID:    senderID,
		MediaID:     mediaID,
	})
}

func (p *NotificationPipeline) NotifyLike(scopeID, mediaID, ownerID, senderID, senderName string) {
	if ownerID == "" || ownerID == senderID {
		return
	}
	p.Create(notification.Notification{
		ScopeID:     scopeID,
		RecipientID: ownerID,
		Kind:        notification.KindLike,
		Message:     fmt.Sprintf("%s liked your photo", displayName(senderName)),
		SenderID:    senderID,
		MediaID:     mediaID,
	})
}

func displayName(name string) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	return "Someone"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
