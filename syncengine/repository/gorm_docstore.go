package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AzielCF/az-gallery/pkg/deliverypool"
	"github.com/AzielCF/az-gallery/syncengine/domain/common"
	"github.com/AzielCF/az-gallery/syncengine/domain/docstore"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// --- Persistence Models ---

type documentModel struct {
	Collection string    `gorm:"primaryKey;column:collection;size:255"`
	ID         string    `gorm:"primaryKey;column:id;size:64"`
	Data       string    `gorm:"column:data;type:text;not null"` // JSON
	CreatedAt  time.Time `gorm:"column:created_at;not null"`
	UpdatedAt  time.Time `gorm:"column:updated_at;not null;index"`
}

func (documentModel) TableName() string { return "documents" }

// --- Repository Implementation ---

// GormDocStore implements docstore.Store on a relational database. Rows are
// schemaless JSON documents; filtering, ordering and cursors are evaluated
// with docstore.Apply after loading the collection.
type GormDocStore struct {
	db  *gorm.DB
	hub *LiveHub
}

func NewGormDocStore(db *gorm.DB, pool *deliverypool.Pool) *GormDocStore {
	s := &GormDocStore{db: db}
	s.hub = NewLiveHub(s.query, pool)
	return s
}

func (s *GormDocStore) Init(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&documentModel{})
}

func (s *GormDocStore) Hub() *LiveHub {
	return s.hub
}

func (s *GormDocStore) LiveQuery(ctx context.Context, q docstore.Query, onData func([]docstore.Document), onError func(error)) (docstore.Unsubscribe, error) {
	return s.hub.Register(ctx, q, onData, onError)
}

func (s *GormDocStore) PagedQuery(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	return s.query(ctx, q)
}

func (s *GormDocStore) WriteOne(ctx context.Context, collection string, doc docstore.Document) (string, error) {
	model, err := toDocumentModel(collection, doc)
	if err != nil {
		return "", err
	}
	if err := s.upsert(s.db.WithContext(ctx), &model); err != nil {
		return "", fmt.Errorf("failed to write document: %w", err)
	}
	s.hub.Changed(ctx, collection)
	return model.ID, nil
}

func (s *GormDocStore) WriteMany(ctx context.Context, collection string, docs []docstore.Document) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	models := make([]documentModel, len(docs))
	ids := make([]string, len(docs))
	for i, d := range docs {
		m, err := toDocumentModel(collection, d)
		if err != nil {
			return nil, err
		}
		models[i] = m
		ids[i] = m.ID
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range models {
			if err := s.upsert(tx, &models[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to write %d documents: %w", len(docs), err)
	}
	s.hub.Changed(ctx, collection)
	return ids, nil
}

func (s *GormDocStore) UpdateOne(ctx context.Context, collection, id string, patch map[string]any) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m documentModel
		if err := tx.First(&m, "collection = ? AND id = ?", collection, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.ErrNotFound
			}
			return err
		}
		doc, err := fromDocumentModel(m)
		if err != nil {
			return err
		}
		for k, v := range patch {
			doc.Fields[k] = v
		}
		data, err := json.Marshal(doc.Fields)
		if err != nil {
			return fmt.Errorf("failed to marshal document: %w", err)
		}
		return tx.Model(&documentModel{}).
			Where("collection = ? AND id = ?", collection, id).
			Updates(map[string]any{"data": string(data), "updated_at": time.Now().UTC()}).Error
	})
	if err != nil {
		return err
	}
	s.hub.Changed(ctx, collection)
	return nil
}

func (s *GormDocStore) upsert(tx *gorm.DB, m *documentModel) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(m).Error
}

func (s *GormDocStore) query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	var models []documentModel
	if err := s.db.WithContext(ctx).Where("collection = ?", q.Collection).Find(&models).Error; err != nil {
		return nil, &common.TransientFetchError{Op: "query", Key: q.Collection, Err: err}
	}
	docs := make([]docstore.Document, 0, len(models))
	for _, m := range models {
		d, err := fromDocumentModel(m)
		if err != nil {
			continue
		}
		docs = append(docs, d)
	}
	return docstore.Apply(q, docs), nil
}

func toDocumentModel(collection string, doc docstore.Document) (documentModel, error) {
	id := doc.ID
	if id == "" {
		id = uuid.NewString()
	}
	fields := doc.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return documentModel{}, fmt.Errorf("failed to marshal document: %w", err)
	}
	now := time.Now().UTC()
	return documentModel{
		Collection: collection,
		ID:         id,
		Data:       string(data),
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func fromDocumentModel(m documentModel) (docstore.Document, error) {
	fields := map[string]any{}
	if err := json.Unmarshal([]byte(m.Data), &fields); err != nil {
		return docstore.Document{}, fmt.Errorf("corrupt document %s/%s: %w", m.Collection, m.ID, err)
	}
	return docstore.Document{ID: m.ID, Fields: fields}, nil
}
