package repository

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/AzielCF/az-gallery/infrastructure/valkey"
	"github.com/sirupsen/logrus"
)

const changeFeedChannel = "docstore_changes"

// LocalFeed fans change signals out to every listener in the process.
type LocalFeed struct {
	mu        sync.RWMutex
	listeners []func(collection string)
}

func NewLocalFeed() *LocalFeed {
	return &LocalFeed{}
}

func (f *LocalFeed) Publish(ctx context.Context, collection string) error {
	f.mu.RLock()
	listeners := append([]func(string){}, f.listeners...)
	f.mu.RUnlock()
	for _, fn := range listeners {
		fn(collection)
	}
	return nil
}

func (f *LocalFeed) Listen(fn func(collection string)) {
	f.mu.Lock()
	f.listeners = append(f.listeners, fn)
	f.mu.Unlock()
}

type changeMessage struct {
	Collection string `json:"collection"`
	SenderID   string `json:"sender_id"`
}

// ValkeyFeed propagates change signals between nodes over Valkey pub/sub.
// Messages published by this node are ignored on receipt to avoid loops.
type ValkeyFeed struct {
	client *valkey.Client
	nodeID string
	local  *LocalFeed
}

func NewValkeyFeed(client *valkey.Client, nodeID string) *ValkeyFeed {
	return &ValkeyFeed{
		client: client,
		nodeID: nodeID,
		local:  NewLocalFeed(),
	}
}

func (f *ValkeyFeed) Publish(ctx context.Context, collection string) error {
	data, err := json.Marshal(changeMessage{Collection: collection, SenderID: f.nodeID})
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, changeFeedChannel, string(data))
}

func (f *ValkeyFeed) Listen(fn func(collection string)) {
	f.local.Listen(fn)
}

const (
	feedRetryMin = 500 * time.Millisecond
	feedRetryMax = 30 * time.Second
)

// Run receives remote change signals until ctx is cancelled. A dropped
// subscription is re-established with exponential backoff.
func (f *ValkeyFeed) Run(ctx context.Context) {
	logrus.Info("[CHANGE_FEED] Starting Valkey subscriber for document changes")
	go f.subscribeLoop(ctx, func(ctx context.Context, fn func(string)) error {
		return f.client.Subscribe(ctx, changeFeedChannel, fn)
	}, feedRetryMin)
}

func (f *ValkeyFeed) subscribeLoop(ctx context.Context, subscribe func(context.Context, func(string)) error, retryMin time.Duration) {
	delay := retryMin
	for {
		start := time.Now()
		err := subscribe(ctx, f.receive)
		if ctx.Err() != nil {
			return
		}
		// a subscription that held for a while earns a fresh backoff
		if time.Since(start) > feedRetryMax {
			delay = retryMin
		}
		logrus.Errorf("[CHANGE_FEED] Valkey subscriber stopped: %v, retrying in %s", err, delay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > feedRetryMax {
			delay = feedRetryMax
		}
	}
}

func (f *ValkeyFeed) receive(message string) {
	collection, ok := decodeChange(f.nodeID, message)
	if !ok {
		return
	}
	_ = f.local.Publish(context.Background(), collection)
}

// decodeChange returns the collection named by a feed message. Malformed
// messages and messages sent by nodeID itself are rejected.
func decodeChange(nodeID, message string) (string, bool) {
	var msg changeMessage
	if err := json.Unmarshal([]byte(message), &msg); err != nil {
		logrus.WithError(err).Warn("[CHANGE_FEED] Ignoring malformed change message")
		return "", false
	}
	if msg.SenderID == nodeID || msg.Collection == "" {
		return "", false
	}
	return msg.Collection, true
}
