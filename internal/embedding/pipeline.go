package embedding

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/Akphawee/accessible-library/internal/index"
	"github.com/Akphawee/accessible-library/internal/models"
)

var ErrNoEmbeddings = errors.New("no chunk could be embedded")

const defaultBatchSize = 100

// Pipeline embeds a book's chunks in batches, tolerating partial failure.
type Pipeline struct {
	embedder  Embedder
	batchSize int
}

func NewPipeline(embedder Embedder, batchSize int) *Pipeline {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Pipeline{embedder: embedder, batchSize: batchSize}
}

// EmbedChunks returns index entries for every chunk that produced a vector.
// A failed batch loses all of its chunks; the rest still go through.
// Entries keep the ordinal of their chunk.
func (p *Pipeline) EmbedChunks(ctx context.Context, bookID string, chunks []string) []index.Entry {
	var entries []index.Entry
	for start := 0; start < len(chunks); start += p.batchSize {
		end := min(start+p.batchSize, len(chunks))
		batch := chunks[start:end]

		vectors, err := p.embedder.Embed(ctx, batch, models.EmbedDocument)
		if err != nil {
			log.Warn().Err(err).Str("book_id", bookID).Int("from", start).Int("to", end).Msg("Embedding batch failed")
			continue
		}
		if len(vectors) != len(batch) {
			log.Warn().Str("book_id", bookID).Int("expected", len(batch)).Int("got", len(vectors)).Msg("Embedding batch size mismatch")
			continue
		}
		for i, v := range vectors {
			if len(v) == 0 {
				log.Debug().Str("book_id", bookID).Int("chunk", start+i).Msg("Chunk has no embedding")
				continue
			}
			entries = append(entries, index.Entry{
				BookID:  bookID,
				Ordinal: start + i,
				Text:    batch[i],
				Vector:  v,
			})
		}
	}

	log.Info().Str("book_id", bookID).Int("chunks", len(chunks)).Int("embedded", len(entries)).Msg("Embedded chunks")
	return entries
}
