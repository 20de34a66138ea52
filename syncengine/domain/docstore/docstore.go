package docstore

import (
	"context"
	"encoding/json"
	"fmt"
)

// Document is a schemaless record inside a collection.
type Document struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// Cursor is the forward-only pagination token: the ordering value of the last
// seen document plus its id as a tie breaker.
type Cursor struct {
	Value any    `json:"value"`
	ID    string `json:"id"`
}

type FilterOp string

const (
	OpEqual         FilterOp = "=="
	OpNotEqual      FilterOp = "!="
	OpIn            FilterOp = "in"
	OpArrayContains FilterOp = "array-contains"
)

type Filter struct {
	Field string
	Op    FilterOp
	Value any
}

// Query describes an ordered, optionally bounded read of one collection.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int
	StartAfter *Cursor
}

// Unsubscribe stops a live query. Calling it more than once is safe.
type Unsubscribe func()

// Store is the real-time document store the engine synchronizes with.
// Timeouts and backoff are the implementation's concern.
type Store interface {
	// LiveQuery delivers the current result of q and every subsequent change
	// until the returned Unsubscribe is called.
	LiveQuery(ctx context.Context, q Query, onData func([]Document), onError func(error)) (Unsubscribe, error)

	// PagedQuery runs q once, starting after q.StartAfter when set.
	PagedQuery(ctx context.Context, q Query) ([]Document, error)

	WriteOne(ctx context.Context, collection string, doc Document) (string, error)
	WriteMany(ctx context.Context, collection string, docs []Document) ([]string, error)
	UpdateOne(ctx context.Context, collection, id string, patch map[string]any) error
}

// Encode converts a struct into a document through its json tags. The "id"
// field, if present, becomes the document id and is removed from Fields.
func Encode(v any) (Document, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Document{}, fmt.Errorf("failed to encode document: %w", err)
	}
	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Document{}, fmt.Errorf("failed to encode document: %w", err)
	}
	doc := Document{Fields: fields}
	if id, ok := fields["id"].(string); ok {
		doc.ID = id
		delete(fields, "id")
	}
	return doc, nil
}

// Decode converts a document into T, exposing the document id as "id".
func Decode[T any](doc Document) (T, error) {
	var out T
	fields := make(map[string]any, len(doc.Fields)+1)
	for k, v := range doc.Fields {
		fields[k] = v
	}
	fields["id"] = doc.ID
	raw, err := json.Marshal(fields)
	if err != nil {
		return out, fmt.Errorf("failed to decode document %s: %w", doc.ID, err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("failed to decode document %s: %w", doc.ID, err)
	}
	return out, nil
}

// DecodeAll decodes docs, skipping (and reporting) the ones that do not fit T.
func DecodeAll[T any](docs []Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	var firstErr error
	for _, d := range docs {
		v, err := Decode[T](d)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		out = append(out, v)
	}
	return out, firstErr
}

// CursorAfter returns the cursor pointing after the last document of docs.
func CursorAfter(docs []Document, orderBy string) *Cursor {
	if len(docs) == 0 {
		return nil
	}
	last := docs[len(docs)-1]
	return &Cursor{Value: last.Fields[orderBy], ID: last.ID}
}
