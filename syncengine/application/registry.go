package application

import (
	"context"
	"sync"
	"time"

	"github.com/AzielCF/az-gallery/syncengine/domain/cache"
	"github.com/sirupsen/logrus"
)

// SubscriptionState is the lifecycle of one registry key.
type SubscriptionState string

const (
	StateIdle             SubscriptionState = "idle"
	StatePendingSubscribe SubscriptionState = "pending_subscribe"
	StateSubscribed       SubscriptionState = "subscribed"
)

// OpenFunc attaches a live listener. emit forwards remote updates, fail
// reports listener-level errors. The returned teardown detaches it.
type OpenFunc func(ctx context.Context, emit func(value any), fail func(err error)) (teardown func(), err error)

// Listener describes one subscription request.
type Listener struct {
	Open OpenFunc

	// OnData receives cached and live values, unmodified.
	OnData func(value any)
	// OnError receives open and listener errors.
	OnError func(err error)

	// TTL enables the synchronous cache hit on Subscribe. Zero skips it.
	TTL time.Duration
}

type registryEntry struct {
	state    SubscriptionState
	epoch    uint64
	pending  *Listener
	timer    *time.Timer
	teardown func()
}

// Registry owns every live listener, keyed by logical resource identity.
// At most one listener is live per key; each teardown runs exactly once.
type Registry struct {
	mu       sync.Mutex
	entries  map[string]*registryEntry
	epoch    uint64
	cache    cache.Store
	debounce time.Duration
	ctx      context.Context
}

func NewRegistry(ctx context.Context, store cache.Store, debounce time.Duration) *Registry {
	return &Registry{
		entries:  make(map[string]*registryEntry),
		cache:    store,
		debounce: debounce,
		ctx:      ctx,
	}
}

// Subscribe requests a live listener for key. If the cache holds a fresh
// value it is delivered synchronously first and Subscribe returns true.
// Repeated calls for the same key inside the debounce window collapse into
// one attach using the latest listener.
func (r *Registry) Subscribe(key string, l Listener) bool {
	served := false
	if l.TTL > 0 && r.cache != nil && l.OnData != nil {
		if entry, ok := r.cache.Get(r.ctx, key, l.TTL); ok {
			l.OnData(entry.Value)
			served = true
		}
	}

	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		e = &registryEntry{state: StateIdle}
		r.entries[key] = e
	}
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	r.epoch++
	e.epoch = r.epoch
	epoch := e.epoch
	listener := l
	e.pending = &listener
	if e.state != StateSubscribed {
		e.state = StatePendingSubscribe
	}

	if r.debounce <= 0 {
		r.mu.Unlock()
		r.attach(key, epoch)
		return served
	}
	e.timer = time.AfterFunc(r.debounce, func() {
		r.attach(key, epoch)
	})
	r.mu.Unlock()

	logrus.Debugf("[REGISTRY] Subscribe %s scheduled (epoch %d, cached=%v)", key, epoch, served)
	return served
}

func (r *Registry) attach(key string, epoch uint64) {
	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok || e.epoch != epoch || e.pending == nil {
		r.mu.Unlock()
		logrus.Debugf("[REGISTRY] Dropping stale subscribe for %s (epoch %d)", key, epoch)
		return
	}
	l := e.pending
	e.pending = nil
	e.timer = nil
	prev := e.teardown
	e.teardown = nil
	e.state = StatePendingSubscribe
	r.mu.Unlock()

	if prev != nil {
		prev()
	}

	emit := func(value any) {
		if !r.current(key, epoch) {
			return
		}
		if r.cache != nil {
			if err := r.cache.Set(r.ctx, key, value); err != nil {
				logrus.WithError(err).Warnf("[REGISTRY] Failed to cache update for %s", key)
			}
		}
		if l.OnData != nil {
			l.OnData(value)
		}
	}
	fail := func(err error) {
		if !r.current(key, epoch) {
			return
		}
		logrus.WithError(err).Errorf("[REGISTRY] Listener error on %s", key)
		if l.OnError != nil {
			l.OnError(err)
		}
	}

	teardown, err := l.Open(r.ctx, emit, fail)
	if err != nil {
		logrus.WithError(err).Errorf("[REGISTRY] Failed to open listener for %s", key)
		if teardown != nil {
			teardown()
		}
		if r.current(key, epoch) && l.OnError != nil {
			l.OnError(err)
		}
		return
	}

	r.mu.Lock()
	e, ok = r.entries[key]
	if !ok || e.epoch != epoch {
		// superseded while opening
		r.mu.Unlock()
		if teardown != nil {
			teardown()
		}
		return
	}
	e.teardown = teardown
	e.state = StateSubscribed
	r.mu.Unlock()

	logrus.Debugf("[REGISTRY] Listener attached for %s (epoch %d)", key, epoch)
}

func (r *Registry) current(key string, epoch uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	return ok && e.epoch == epoch
}

// Unsubscribe tears down the listed keys. Unknown keys are ignored.
func (r *Registry) Unsubscribe(keys ...string) {
	var teardowns []func()
	r.mu.Lock()
	for _, key := range keys {
		e, ok := r.entries[key]
		if !ok {
			continue
		}
		if e.timer != nil {
			e.timer.Stop()
		}
		if e.teardown != nil {
			teardowns = append(teardowns, e.teardown)
		}
		delete(r.entries, key)
	}
	r.mu.Unlock()

	for _, fn := range teardowns {
		fn()
	}
}

// UnsubscribeAll tears down every listener and clears the registry. Safe to
// call repeatedly.
func (r *Registry) UnsubscribeAll() {
	r.mu.Lock()
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	r.mu.Unlock()

	r.Unsubscribe(keys...)
	if len(keys) > 0 {
		logrus.Debugf("[REGISTRY] Tore down %d subscriptions", len(keys))
	}
}

func (r *Registry) State(key string) SubscriptionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok {
		return e.state
	}
	return StateIdle
}

// Active counts keys with an attached listener.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.state == StateSubscribed {
			n++
		}
	}
	return n
}

func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	return keys
}
