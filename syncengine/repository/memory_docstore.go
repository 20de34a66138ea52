package repository

import (
	"context"
	"sync"

	"github.com/AzielCF/az-gallery/pkg/deliverypool"
	"github.com/AzielCF/az-gallery/syncengine/domain/common"
	"github.com/AzielCF/az-gallery/syncengine/domain/docstore"
	"github.com/google/uuid"
)

// MemoryDocStore implements docstore.Store in memory with live queries.
type MemoryDocStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]docstore.Document
	hub         *LiveHub
}

func NewMemoryDocStore(pool *deliverypool.Pool) *MemoryDocStore {
	m := &MemoryDocStore{
		collections: make(map[string]map[string]docstore.Document),
	}
	m.hub = NewLiveHub(m.query, pool)
	return m
}

// Hub exposes the live-query hub, e.g. to attach a change feed.
func (m *MemoryDocStore) Hub() *LiveHub {
	return m.hub
}

func (m *MemoryDocStore) LiveQuery(ctx context.Context, q docstore.Query, onData func([]docstore.Document), onError func(error)) (docstore.Unsubscribe, error) {
	return m.hub.Register(ctx, q, onData, onError)
}

func (m *MemoryDocStore) PagedQuery(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	return m.query(ctx, q)
}

func (m *MemoryDocStore) WriteOne(ctx context.Context, collection string, doc docstore.Document) (string, error) {
	id := m.put(collection, doc)
	m.hub.Changed(ctx, collection)
	return id, nil
}

func (m *MemoryDocStore) WriteMany(ctx context.Context, collection string, docs []docstore.Document) ([]string, error) {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = m.put(collection, d)
	}
	m.hub.Changed(ctx, collection)
	return ids, nil
}

func (m *MemoryDocStore) UpdateOne(ctx context.Context, collection, id string, patch map[string]any) error {
	m.mu.Lock()
	doc, ok := m.collections[collection][id]
	if !ok {
		m.mu.Unlock()
		return common.ErrNotFound
	}
	fields := copyFields(doc.Fields)
	for k, v := range patch {
		fields[k] = v
	}
	m.collections[collection][id] = docstore.Document{ID: id, Fields: fields}
	m.mu.Unlock()

	m.hub.Changed(ctx, collection)
	return nil
}

// Delete removes a document. Not part of the engine contract; used by
// scope teardown and tests.
func (m *MemoryDocStore) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	delete(m.collections[collection], id)
	m.mu.Unlock()
	m.hub.Changed(ctx, collection)
	return nil
}

func (m *MemoryDocStore) put(collection string, doc docstore.Document) string {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.collections[collection] == nil {
		m.collections[collection] = make(map[string]docstore.Document)
	}
	m.collections[collection][doc.ID] = docstore.Document{ID: doc.ID, Fields: copyFields(doc.Fields)}
	return doc.ID
}

func (m *MemoryDocStore) query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	m.mu.RLock()
	set := m.collections[q.Collection]
	docs := make([]docstore.Document, 0, len(set))
	for _, d := range set {
		docs = append(docs, docstore.Document{ID: d.ID, Fields: copyFields(d.Fields)})
	}
	m.mu.RUnlock()
	return docstore.Apply(q, docs), nil
}

func copyFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
