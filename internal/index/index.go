// Package index defines the per-book vector index of chunk embeddings.
package index

import (
	"context"
	"fmt"
)

// Entry is one embedded chunk of a book.
type Entry struct {
	BookID  string
	Ordinal int
	Text    string
	Vector  []float32
}

// ID is the stable identifier of an entry within the index.
func (e Entry) ID() string {
	return fmt.Sprintf("%s_chunk_%d", e.BookID, e.Ordinal)
}

// VectorIndex stores chunk embeddings scoped by book id.
type VectorIndex interface {
	// UpsertForBook replaces every entry of bookID with entries.
	UpsertForBook(ctx context.Context, bookID string, entries []Entry) error
	// Query returns the texts of the topN entries of bookID nearest to vector.
	Query(ctx context.Context, bookID string, vector []float32, topN int) ([]string, error)
	DeleteForBook(ctx context.Context, bookID string) error
}
