package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/AzielCF/az-gallery/pkg/deliverypool"
	"github.com/AzielCF/az-gallery/syncengine/domain/docstore"
	"github.com/sirupsen/logrus"
)

// QueryRunner evaluates a query against the backing storage.
type QueryRunner func(ctx context.Context, q docstore.Query) ([]docstore.Document, error)

// ChangeFeed carries "collection changed" signals between nodes sharing one
// database.
type ChangeFeed interface {
	Publish(ctx context.Context, collection string) error
	Listen(fn func(collection string))
}

type liveListener struct {
	id       uint64
	key      string
	query    docstore.Query
	onData   func([]docstore.Document)
	onError  func(error)
	closed   int32
	queued   int32
	mu       sync.Mutex
	lastHash uint64
	hasLast  bool
}

// LiveHub turns a plain query runner into live queries: every registered
// query is re-run when its collection changes and the result is pushed to the
// listener if it differs from the last delivery.
type LiveHub struct {
	mu           sync.Mutex
	seq          uint64
	byCollection map[string]map[uint64]*liveListener

	run  QueryRunner
	pool *deliverypool.Pool
	feed ChangeFeed
}

// NewLiveHub creates a hub. With a nil pool deliveries run inline on the
// caller's goroutine, which keeps in-memory tests deterministic.
func NewLiveHub(run QueryRunner, pool *deliverypool.Pool) *LiveHub {
	return &LiveHub{
		byCollection: make(map[string]map[uint64]*liveListener),
		run:          run,
		pool:         pool,
	}
}

// AttachFeed wires a cross-node change feed. Remote signals re-evaluate local
// listeners; local changes are published to the feed.
func (h *LiveHub) AttachFeed(feed ChangeFeed) {
	h.mu.Lock()
	h.feed = feed
	h.mu.Unlock()
	feed.Listen(h.remoteChanged)
}

func (h *LiveHub) Register(ctx context.Context, q docstore.Query, onData func([]docstore.Document), onError func(error)) (docstore.Unsubscribe, error) {
	if q.Collection == "" {
		return nil, fmt.Errorf("live query requires a collection")
	}
	if onData == nil {
		return nil, fmt.Errorf("live query requires a data callback")
	}

	h.mu.Lock()
	h.seq++
	l := &liveListener{
		id:      h.seq,
		key:     fmt.Sprintf("live:%s:%d", q.Collection, h.seq),
		query:   q,
		onData:  onData,
		onError: onError,
	}
	if h.byCollection[q.Collection] == nil {
		h.byCollection[q.Collection] = make(map[uint64]*liveListener)
	}
	h.byCollection[q.Collection][l.id] = l
	h.mu.Unlock()

	logrus.Debugf("[LIVE_HUB] Listener %d registered on %s", l.id, q.Collection)
	h.schedule(ctx, l)

	var once sync.Once
	return func() {
		once.Do(func() {
			atomic.StoreInt32(&l.closed, 1)
			h.mu.Lock()
			if set, ok := h.byCollection[q.Collection]; ok {
				delete(set, l.id)
				if len(set) == 0 {
					delete(h.byCollection, q.Collection)
				}
			}
			h.mu.Unlock()
			logrus.Debugf("[LIVE_HUB] Listener %d removed from %s", l.id, q.Collection)
		})
	}, nil
}

// Changed signals a local write on collection.
func (h *LiveHub) Changed(ctx context.Context, collection string) {
	h.reevaluate(ctx, collection)

	h.mu.Lock()
	feed := h.feed
	h.mu.Unlock()
	if feed != nil {
		if err := feed.Publish(ctx, collection); err != nil {
			logrus.WithError(err).Warnf("[LIVE_HUB] Failed to publish change for %s", collection)
		}
	}
}

// Listeners returns the number of live listeners, for stats.
func (h *LiveHub) Listeners() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, set := range h.byCollection {
		n += len(set)
	}
	return n
}

func (h *LiveHub) reevaluate(ctx context.Context, collection string) {
	h.mu.Lock()
	set := h.byCollection[collection]
	targets := make([]*liveListener, 0, len(set))
	for _, l := range set {
		targets = append(targets, l)
	}
	h.mu.Unlock()

	for _, l := range targets {
		h.schedule(ctx, l)
	}
}

// remoteChanged re-evaluates listeners of collection after a write on
// another node. Signals are coalesced per listener: while a delivery is
// queued, it already covers later signals because it queries at run time.
func (h *LiveHub) remoteChanged(collection string) {
	h.mu.Lock()
	set := h.byCollection[collection]
	targets := make([]*liveListener, 0, len(set))
	for _, l := range set {
		targets = append(targets, l)
	}
	h.mu.Unlock()

	for _, l := range targets {
		h.scheduleCoalesced(l)
	}
}

func (h *LiveHub) scheduleCoalesced(l *liveListener) {
	if h.pool == nil {
		h.deliver(context.Background(), l)
		return
	}
	if !atomic.CompareAndSwapInt32(&l.queued, 0, 1) {
		return
	}
	job := deliverypool.Job{
		Key: l.key,
		Deliver: func(workerCtx context.Context) error {
			atomic.StoreInt32(&l.queued, 0)
			h.deliver(workerCtx, l)
			return nil
		},
	}
	if h.pool.TryDispatch(job) {
		return
	}
	// full queue: wait off the feed goroutine so other collections keep flowing
	go func() {
		if !h.pool.Dispatch(context.Background(), job) {
			atomic.StoreInt32(&l.queued, 0)
		}
	}()
}

func (h *LiveHub) schedule(ctx context.Context, l *liveListener) {
	if h.pool == nil {
		h.deliver(ctx, l)
		return
	}
	h.pool.Dispatch(ctx, deliverypool.Job{
		Key: l.key,
		Deliver: func(workerCtx context.Context) error {
			h.deliver(workerCtx, l)
			return nil
		},
	})
}

func (h *LiveHub) deliver(ctx context.Context, l *liveListener) {
	if atomic.LoadInt32(&l.closed) == 1 {
		return
	}

	docs, err := h.run(ctx, l.query)
	if atomic.LoadInt32(&l.closed) == 1 {
		return
	}
	if err != nil {
		logrus.WithError(err).Warnf("[LIVE_HUB] Query on %s failed for listener %d", l.query.Collection, l.id)
		if l.onError != nil {
			l.onError(err)
		}
		return
	}

	sum := hashDocuments(docs)
	l.mu.Lock()
	if l.hasLast && l.lastHash == sum {
		l.mu.Unlock()
		return
	}
	l.lastHash, l.hasLast = sum, true
	l.mu.Unlock()

	l.onData(docs)
}

func hashDocuments(docs []docstore.Document) uint64 {
	h := fnv.New64a()
	raw, err := json.Marshal(docs)
	if err != nil {
		return 0
	}
	h.Write(raw)
	return h.Sum64()
}
