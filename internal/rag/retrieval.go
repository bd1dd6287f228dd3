package rag

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/Akphawee/accessible-library/internal/embedding"
	"github.com/Akphawee/accessible-library/internal/index"
	"github.com/Akphawee/accessible-library/internal/models"
)

const DefaultTopN = 15

// Retriever finds the chunks of a book most relevant to a query.
type Retriever struct {
	embedder embedding.Embedder
	index    index.VectorIndex
	topN     int
}

func NewRetriever(embedder embedding.Embedder, idx index.VectorIndex, topN int) *Retriever {
	if topN <= 0 {
		topN = DefaultTopN
	}
	return &Retriever{embedder: embedder, index: idx, topN: topN}
}

// Retrieve returns up to topN chunk texts of bookID, nearest first. Any
// failure is logged and yields no chunks.
func (r *Retriever) Retrieve(ctx context.Context, bookID, query string) []string {
	logger := log.With().Str("book_id", bookID).Logger()

	vectors, err := r.embedder.Embed(ctx, []string{query}, models.EmbedQuery)
	if err != nil {
		logger.Error().Err(err).Msg("Error embedding query")
		return nil
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		logger.Error().Msg("Query produced no embedding")
		return nil
	}

	chunks, err := r.index.Query(ctx, bookID, vectors[0], r.topN)
	if err != nil {
		logger.Error().Err(err).Msg("Error retrieving chunks")
		return nil
	}
	logger.Debug().Int("chunks", len(chunks)).Msg("Retrieved chunks")
	return chunks
}
