package repository

import (
	"testing"
	"time"

	"github.com/AzielCF/az-gallery/syncengine/domain/cache"
	"github.com/AzielCF/az-gallery/syncengine/domain/docstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValkeyEntry_DocumentsRoundTrip(t *testing.T) {
	storedAt := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	docs := []docstore.Document{
		{ID: "m1", Fields: map[string]any{"url": "https://cdn.example.com/1.jpg", "tags": []string{"u1"}}},
		{ID: "m2", Fields: map[string]any{"url": "https://cdn.example.com/2.jpg"}},
	}

	data, err := encodeEntry(docs, storedAt)
	require.NoError(t, err)

	entry, err := decodeEntry(data)
	require.NoError(t, err)
	assert.True(t, entry.StoredAt.Equal(storedAt))
	assert.True(t, entry.Fresh(storedAt.Add(time.Second), time.Minute))
	assert.False(t, entry.Fresh(storedAt.Add(2*time.Minute), time.Minute))

	got, ok := cache.As[[]docstore.Document](entry.Value)
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, "m1", got[0].ID)
	assert.Equal(t, "https://cdn.example.com/1.jpg", got[0].Fields["url"])
	assert.Equal(t, []any{"u1"}, got[0].Fields["tags"])
}

func TestValkeyEntry_CorruptData(t *testing.T) {
	_, err := decodeEntry([]byte("{broken"))
	assert.Error(t, err)
}
