package chromemdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Akphawee/accessible-library/internal/index"
)

func entries(book string, texts ...string) []index.Entry {
	out := make([]index.Entry, len(texts))
	for i, t := range texts {
		v := []float32{0.1, 0.1, 0.1}
		v[i%3] = 1
		out[i] = index.Entry{BookID: book, Ordinal: i, Text: t, Vector: v}
	}
	return out
}

func TestVectorDBManager(t *testing.T) {
	ctx := context.Background()
	m, err := NewVectorDBManager("", "books", false, "")
	require.NoError(t, err)

	t.Run("query on empty collection", func(t *testing.T) {
		got, err := m.Query(ctx, "a", []float32{1, 0, 0}, 15)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	require.NoError(t, m.UpsertForBook(ctx, "a", entries("a", "a0", "a1", "a2")))
	require.NoError(t, m.UpsertForBook(ctx, "b", entries("b", "b0", "b1")))
	assert.Equal(t, 5, m.Count())

	t.Run("re-ingest replaces entries", func(t *testing.T) {
		require.NoError(t, m.UpsertForBook(ctx, "a", entries("a", "new0", "new1")))
		assert.Equal(t, 4, m.Count())

		got, err := m.Query(ctx, "a", []float32{1, 0, 0}, 15)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"new0", "new1"}, got)
		assert.Equal(t, "new0", got[0])
	})

	t.Run("query filters by book", func(t *testing.T) {
		got, err := m.Query(ctx, "b", []float32{0, 1, 0}, 1)
		require.NoError(t, err)
		assert.Equal(t, []string{"b1"}, got)
	})

	t.Run("delete removes only that book", func(t *testing.T) {
		require.NoError(t, m.DeleteForBook(ctx, "a"))
		got, err := m.Query(ctx, "a", []float32{1, 0, 0}, 15)
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.Equal(t, 2, m.Count())

		// deleting a book with no entries is fine
		require.NoError(t, m.DeleteForBook(ctx, "a"))
	})

	t.Run("empty query vector", func(t *testing.T) {
		_, err := m.Query(ctx, "b", nil, 5)
		assert.Error(t, err)
	})
}

func TestVectorDBManagerPersistentExportImport(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	m, err := NewVectorDBManager(filepath.Join(dir, "db"), "books", false, "")
	require.NoError(t, err)
	require.NoError(t, m.UpsertForBook(ctx, "a", entries("a", "a0", "a1")))

	backup := filepath.Join(dir, "books.chromem")
	require.NoError(t, m.Export(backup))

	restored, err := NewVectorDBManager("", "books", false, "")
	require.NoError(t, err)
	require.NoError(t, restored.Import(backup))
	assert.Equal(t, 2, restored.Count())

	got, err := restored.Query(ctx, "a", []float32{0, 1, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, got)

	// a reopened persistent db keeps its entries
	reopened, err := NewVectorDBManager(filepath.Join(dir, "db"), "books", false, "")
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Count())
}
