package application

import (
	"context"
	"sync"
	"time"

	"github.com/AzielCF/az-gallery/syncengine/domain/cache"
	"github.com/AzielCF/az-gallery/syncengine/domain/common"
	"github.com/AzielCF/az-gallery/syncengine/domain/docstore"
	"github.com/sirupsen/logrus"
)

type PaginatorConfig struct {
	// Key is the registry and cache key of the first-page live query.
	Key        string
	Collection string
	Filters    []docstore.Filter
	OrderBy    string
	Descending bool
	PageSize   int
	TTL        time.Duration
}

// Page is the outcome of LoadMore. Loaded is false when the call was a
// guarded no-op.
type Page[T any] struct {
	Items   []T
	Cursor  *docstore.Cursor
	HasMore bool
	Loaded  bool
}

// Paginator pairs a bounded live subscription for the first page with
// cursor-based LoadMore for older pages.
type Paginator[T any] struct {
	cfg      PaginatorConfig
	store    docstore.Store
	registry *Registry

	mu          sync.Mutex
	live        []docstore.Document
	more        []docstore.Document
	hasMore     bool
	exhausted   bool
	loadingMore bool
	ready       bool
	epoch       uint64
}

func NewPaginator[T any](cfg PaginatorConfig, store docstore.Store, registry *Registry) *Paginator[T] {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	return &Paginator[T]{
		cfg:      cfg,
		store:    store,
		registry: registry,
		hasMore:  true,
	}
}

// Initial opens the bounded live query through the registry. onData gets
// the accumulated items after every change; onError gets listener errors.
// It reports whether a cached first page was served synchronously.
func (p *Paginator[T]) Initial(onData func([]T), onError func(error)) bool {
	p.mu.Lock()
	epoch := p.epoch
	p.mu.Unlock()

	q := docstore.Query{
		Collection: p.cfg.Collection,
		Filters:    p.cfg.Filters,
		OrderBy:    p.cfg.OrderBy,
		Descending: p.cfg.Descending,
		Limit:      p.cfg.PageSize,
	}

	return p.registry.Subscribe(p.cfg.Key, Listener{
		TTL: p.cfg.TTL,
		Open: func(ctx context.Context, emit func(any), fail func(error)) (func(), error) {
			unsub, err := p.store.LiveQuery(ctx, q, func(docs []docstore.Document) {
				emit(docs)
			}, fail)
			if err != nil {
				return nil, &common.TransientFetchError{Op: "live query", Key: p.cfg.Key, Err: err}
			}
			return unsub, nil
		},
		OnData: func(value any) {
			docs, ok := cache.As[[]docstore.Document](value)
			if !ok {
				logrus.Warnf("[PAGINATOR] Unexpected first page payload for %s", p.cfg.Key)
				return
			}
			items, applied := p.applyLive(epoch, docs)
			if applied && onData != nil {
				onData(items)
			}
		},
		OnError: onError,
	})
}

func (p *Paginator[T]) applyLive(epoch uint64, docs []docstore.Document) ([]T, bool) {
	p.mu.Lock()
	if epoch != p.epoch {
		p.mu.Unlock()
		return nil, false
	}
	if p.ready {
		p.keepDisplacedLocked(docs)
	}
	// a sequence LoadMore found exhausted is never reopened by live changes
	if len(p.more) == 0 && !p.exhausted {
		p.hasMore = len(docs) >= p.cfg.PageSize
	}
	p.live = docs
	p.ready = true
	merged := p.mergedLocked()
	p.mu.Unlock()

	items, err := docstore.DecodeAll[T](merged)
	if err != nil {
		logrus.WithError(err).Warnf("[PAGINATOR] Skipped undecodable documents in %s", p.cfg.Key)
	}
	return items, true
}

// keepDisplacedLocked moves documents that newer ones pushed out of a full
// live window to the front of the loaded pages, so nothing already shown
// drops out of the sequence. Documents that left the window for any other
// reason sort before its tail and are dropped.
func (p *Paginator[T]) keepDisplacedLocked(window []docstore.Document) {
	if len(window) < p.cfg.PageSize || len(p.live) == 0 {
		return
	}

	present := make(map[string]struct{}, len(window)+len(p.more))
	for _, d := range window {
		present[d.ID] = struct{}{}
	}
	for _, d := range p.more {
		present[d.ID] = struct{}{}
	}

	order := docstore.Query{OrderBy: p.cfg.OrderBy, Descending: p.cfg.Descending}
	tail := window[len(window)-1]
	var displaced []docstore.Document
	for _, d := range p.live {
		if _, ok := present[d.ID]; ok {
			continue
		}
		if docstore.Less(order, tail, d) {
			displaced = append(displaced, d)
		}
	}
	if len(displaced) > 0 {
		p.more = append(displaced, p.more...)
	}
}

// LoadMore fetches the page after the cursor. It is a no-op while a load is
// in flight, before the first page arrived, or once hasMore is false.
func (p *Paginator[T]) LoadMore(ctx context.Context) (Page[T], error) {
	p.mu.Lock()
	cursor := p.cursorLocked()
	if p.loadingMore || !p.hasMore || cursor == nil {
		page := Page[T]{Cursor: cursor, HasMore: p.hasMore}
		p.mu.Unlock()
		return page, nil
	}
	p.loadingMore = true
	epoch := p.epoch
	p.mu.Unlock()

	docs, err := p.store.PagedQuery(ctx, docstore.Query{
		Collection: p.cfg.Collection,
		Filters:    p.cfg.Filters,
		OrderBy:    p.cfg.OrderBy,
		Descending: p.cfg.Descending,
		Limit:      p.cfg.PageSize,
		StartAfter: cursor,
	})

	p.mu.Lock()
	if epoch != p.epoch {
		p.mu.Unlock()
		logrus.Debugf("[PAGINATOR] Ignoring stale page for %s", p.cfg.Key)
		return Page[T]{}, common.ErrStaleResponse
	}
	p.loadingMore = false
	if err != nil {
		p.mu.Unlock()
		return Page[T]{}, &common.TransientFetchError{Op: "load more", Key: p.cfg.Key, Err: err}
	}

	seen := make(map[string]struct{}, len(p.live)+len(p.more))
	for _, d := range p.live {
		seen[d.ID] = struct{}{}
	}
	for _, d := range p.more {
		seen[d.ID] = struct{}{}
	}
	for _, d := range docs {
		if _, dup := seen[d.ID]; !dup {
			p.more = append(p.more, d)
		}
	}
	if len(docs) < p.cfg.PageSize {
		p.hasMore = false
		p.exhausted = true
	}
	page := Page[T]{Cursor: p.cursorLocked(), HasMore: p.hasMore, Loaded: true}
	p.mu.Unlock()

	items, derr := docstore.DecodeAll[T](docs)
	if derr != nil {
		logrus.WithError(derr).Warnf("[PAGINATOR] Skipped undecodable documents in %s", p.cfg.Key)
	}
	page.Items = items
	return page, nil
}

// Reset drops all progress. Responses issued before the reset are ignored.
func (p *Paginator[T]) Reset() {
	p.mu.Lock()
	p.epoch++
	p.live = nil
	p.more = nil
	p.hasMore = true
	p.exhausted = false
	p.loadingMore = false
	p.ready = false
	p.mu.Unlock()
}

// Items returns the accumulated sequence: live first page, then loaded pages.
func (p *Paginator[T]) Items() []T {
	p.mu.Lock()
	merged := p.mergedLocked()
	p.mu.Unlock()
	items, _ := docstore.DecodeAll[T](merged)
	return items
}

func (p *Paginator[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.mergedLocked())
}

func (p *Paginator[T]) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasMore
}

func (p *Paginator[T]) LoadingMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loadingMore
}

func (p *Paginator[T]) Cursor() *docstore.Cursor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursorLocked()
}

func (p *Paginator[T]) Key() string {
	return p.cfg.Key
}

func (p *Paginator[T]) cursorLocked() *docstore.Cursor {
	if !p.ready {
		return nil
	}
	if len(p.more) > 0 {
		return docstore.CursorAfter(p.more, p.cfg.OrderBy)
	}
	return docstore.CursorAfter(p.live, p.cfg.OrderBy)
}

func (p *Paginator[T]) mergedLocked() []docstore.Document {
	out := make([]docstore.Document, 0, len(p.live)+len(p.more))
	inLive := make(map[string]struct{}, len(p.live))
	for _, d := range p.live {
		inLive[d.ID] = struct{}{}
		out = append(out, d)
	}
	for _, d := range p.more {
		if _, dup := inLive[d.ID]; !dup {
			out = append(out, d)
		}
	}
	return out
}
