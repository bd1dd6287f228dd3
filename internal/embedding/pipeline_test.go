package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Akphawee/accessible-library/internal/models"
	"github.com/Akphawee/accessible-library/internal/testutil"
)

func TestEmbedChunks(t *testing.T) {
	ctx := context.Background()

	t.Run("all chunks embedded", func(t *testing.T) {
		emb := &testutil.MockEmbedder{}
		p := NewPipeline(emb, 2)

		entries := p.EmbedChunks(ctx, "book", []string{"a", "b", "c", "d", "e"})
		require.Len(t, entries, 5)
		assert.Equal(t, 3, emb.Calls(), "one call per batch")
		assert.True(t, emb.UsedMode(models.EmbedDocument))
		assert.False(t, emb.UsedMode(models.EmbedQuery))
		for i, e := range entries {
			assert.Equal(t, i, e.Ordinal)
			assert.Equal(t, "book", e.BookID)
			assert.NotEmpty(t, e.Vector)
		}
	})

	t.Run("failed batch drops only its chunks", func(t *testing.T) {
		emb := &testutil.MockEmbedder{FailOn: "bad"}
		p := NewPipeline(emb, 2)

		entries := p.EmbedChunks(ctx, "book", []string{"c0", "c1", "bad", "c3", "c4"})
		var ordinals []int
		for _, e := range entries {
			ordinals = append(ordinals, e.Ordinal)
		}
		assert.Equal(t, []int{0, 1, 4}, ordinals)
		assert.Equal(t, "c4", entries[2].Text)
	})

	t.Run("nil vectors are excluded", func(t *testing.T) {
		emb := &testutil.MockEmbedder{NilOn: "skip"}
		p := NewPipeline(emb, 10)

		entries := p.EmbedChunks(ctx, "book", []string{"keep0", "skip1", "keep2"})
		require.Len(t, entries, 2)
		assert.Equal(t, 0, entries[0].Ordinal)
		assert.Equal(t, 2, entries[1].Ordinal)
		assert.Equal(t, "keep2", entries[1].Text)
	})

	t.Run("total failure yields nothing", func(t *testing.T) {
		emb := &testutil.MockEmbedder{Err: testutil.ErrMock}
		p := NewPipeline(emb, 0)

		assert.Empty(t, p.EmbedChunks(ctx, "book", []string{"a", "b"}))
		assert.Equal(t, 1, emb.Calls())
	})

	t.Run("no chunks", func(t *testing.T) {
		emb := &testutil.MockEmbedder{}
		assert.Empty(t, NewPipeline(emb, 5).EmbedChunks(ctx, "book", nil))
		assert.Zero(t, emb.Calls())
	})
}
