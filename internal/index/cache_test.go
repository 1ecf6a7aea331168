package index_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewpilot/reviewpilot/internal/domain"
	"github.com/reviewpilot/reviewpilot/internal/index"
)

func TestCache_RoundTrip(t *testing.T) {
	cache, err := index.OpenCache(t.TempDir())
	require.NoError(t, err)
	defer cache.Close()

	chunks := []*domain.IndexedChunk{
		{Path: "app.py", StartLine: 1, EndLine: 40, Text: "def main(): pass", Vector: []float32{0.5, 0.25, 0.125}, Language: "python"},
		{Path: "app.py", StartLine: 31, EndLine: 60, Text: "def helper(): pass", Vector: []float32{1, 0, 0}, Language: "python"},
	}
	require.NoError(t, cache.Store("app.py", "hash-1", chunks))

	loaded, ok, err := cache.Lookup("app.py", "hash-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, loaded, 2)

	assert.Equal(t, chunks[0].Text, loaded[0].Text)
	assert.Equal(t, chunks[0].Vector, loaded[0].Vector)
	assert.Equal(t, 31, loaded[1].StartLine)
	assert.Equal(t, "python", loaded[1].Language)
}

func TestCache_MissOnDifferentHash(t *testing.T) {
	cache, err := index.OpenCache(t.TempDir())
	require.NoError(t, err)
	defer cache.Close()

	require.NoError(t, cache.Store("app.py", "hash-1", []*domain.IndexedChunk{
		{Path: "app.py", StartLine: 1, EndLine: 10, Text: "x", Language: "python"},
	}))

	_, ok, err := cache.Lookup("app.py", "hash-2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_StoreKeepsOtherRevisions(t *testing.T) {
	cache, err := index.OpenCache(t.TempDir())
	require.NoError(t, err)
	defer cache.Close()

	require.NoError(t, cache.Store("app.py", "hash-1", []*domain.IndexedChunk{
		{Path: "app.py", StartLine: 1, EndLine: 10, Text: "old", Language: "python"},
	}))
	require.NoError(t, cache.Store("app.py", "hash-2", []*domain.IndexedChunk{
		{Path: "app.py", StartLine: 1, EndLine: 10, Text: "new", Language: "python"},
	}))

	// Concurrent runs on different revisions share the cache; storing one
	// revision must not evict the other.
	loaded, ok, err := cache.Lookup("app.py", "hash-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "old", loaded[0].Text)

	loaded, ok, err = cache.Lookup("app.py", "hash-2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "new", loaded[0].Text)
}

func TestCache_StoreRestoresSameHash(t *testing.T) {
	cache, err := index.OpenCache(t.TempDir())
	require.NoError(t, err)
	defer cache.Close()

	require.NoError(t, cache.Store("app.py", "hash-1", []*domain.IndexedChunk{
		{Path: "app.py", StartLine: 1, EndLine: 10, Text: "first", Language: "python"},
	}))
	require.NoError(t, cache.Store("app.py", "hash-1", []*domain.IndexedChunk{
		{Path: "app.py", StartLine: 1, EndLine: 10, Text: "second", Language: "python"},
	}))

	loaded, ok, err := cache.Lookup("app.py", "hash-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, loaded, 1)
	assert.Equal(t, "second", loaded[0].Text)
}

func TestCache_StorePrunesOldestRevisions(t *testing.T) {
	cache, err := index.OpenCache(t.TempDir())
	require.NoError(t, err)
	defer cache.Close()

	for i := 0; i < 6; i++ {
		require.NoError(t, cache.Store("app.py", fmt.Sprintf("hash-%d", i), []*domain.IndexedChunk{
			{Path: "app.py", StartLine: 1, EndLine: 10, Text: "x", Language: "python"},
		}))
	}

	_, ok, err := cache.Lookup("app.py", "hash-0")
	require.NoError(t, err)
	assert.False(t, ok, "oldest revision beyond the retention bound must be pruned")

	for i := 2; i < 6; i++ {
		_, ok, err := cache.Lookup("app.py", fmt.Sprintf("hash-%d", i))
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestFileIndex_ReusesCachedVectors(t *testing.T) {
	dir := t.TempDir()
	content := "def main():\n    return compute()"

	cache, err := index.OpenCache(dir)
	require.NoError(t, err)

	emb := &countingEmbedder{inner: index.NewHashingEmbedder(64)}
	ix := index.New(emb, index.Options{Window: 10, Stride: 10, Cache: cache})
	ix.Upsert(context.Background(), "app.py", content)
	require.Positive(t, emb.calls.Load())
	require.NoError(t, cache.Close())

	// A fresh index backed by the same cache directory must not re-embed.
	cache2, err := index.OpenCache(dir)
	require.NoError(t, err)
	defer cache2.Close()

	emb2 := &countingEmbedder{inner: index.NewHashingEmbedder(64)}
	ix2 := index.New(emb2, index.Options{Window: 10, Stride: 10, Cache: cache2})
	ix2.Upsert(context.Background(), "app.py", content)

	assert.Zero(t, emb2.calls.Load(), "cached vectors must be reused")
	assert.Equal(t, ix.Len(), ix2.Len())
}
