package chromemdb

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"github.com/Akphawee/accessible-library/internal/index"
)

const (
	metaBookID   = "book_id"
	metaChunkNum = "chunk_num"
)

// VectorDBManager is a VectorIndex backed by one chromem-go collection.
// Entries carry the book id in their metadata and every query filters on it.
type VectorDBManager struct {
	db            *chromem.DB
	collection    *chromem.Collection
	dbPath        string
	compress      bool
	encryptionKey string
}

// NewVectorDBManager opens (or creates) the collection. An empty dbPath keeps
// everything in memory.
func NewVectorDBManager(dbPath, collectionName string, compress bool, encryptionKey string) (*VectorDBManager, error) {
	var db *chromem.DB
	var err error
	if dbPath == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(dbPath, compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	// vectors are always supplied, so the collection never embeds on its own
	c, err := db.GetOrCreateCollection(collectionName, nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	log.Debug().Str("path", dbPath).Str("collection", collectionName).Int("documents", c.Count()).Msg("Opened vector collection")

	return &VectorDBManager{
		db:            db,
		collection:    c,
		dbPath:        dbPath,
		compress:      compress,
		encryptionKey: encryptionKey,
	}, nil
}

func noEmbedding(_ context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("no embedding supplied for %d characters of text", len(text))
}

// UpsertForBook deletes the book's entries, then adds the new ones.
func (m *VectorDBManager) UpsertForBook(ctx context.Context, bookID string, entries []index.Entry) error {
	if err := m.DeleteForBook(ctx, bookID); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	docs := make([]chromem.Document, 0, len(entries))
	for _, e := range entries {
		e.BookID = bookID
		docs = append(docs, chromem.Document{
			ID:      e.ID(),
			Content: e.Text,
			Metadata: map[string]string{
				metaBookID:   bookID,
				metaChunkNum: strconv.Itoa(e.Ordinal),
			},
			Embedding: e.Vector,
		})
	}
	if err := m.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	log.Debug().Str("book_id", bookID).Int("documents", len(docs)).Msg("Indexed chunks")
	return nil
}

// Query returns the texts of the book's entries nearest to vector.
func (m *VectorDBManager) Query(ctx context.Context, bookID string, vector []float32, topN int) ([]string, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("query embedding must be provided")
	}
	// chromem rejects nResults above the collection size
	n := min(topN, m.collection.Count())
	if n <= 0 {
		return nil, nil
	}

	results, err := m.collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: vector,
		NResults:       n,
		Where:          map[string]string{metaBookID: bookID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	texts := make([]string, 0, len(results))
	for _, r := range results {
		texts = append(texts, r.Content)
	}
	return texts, nil
}

func (m *VectorDBManager) DeleteForBook(ctx context.Context, bookID string) error {
	if err := m.collection.Delete(ctx, map[string]string{metaBookID: bookID}, nil); err != nil {
		return fmt.Errorf("failed to delete entries of %s: %w", bookID, err)
	}
	return nil
}

// Count returns the number of entries across all books.
func (m *VectorDBManager) Count() int {
	return m.collection.Count()
}

// Export writes the collection to a (optionally encrypted) backup file.
func (m *VectorDBManager) Export(filePath string) error {
	if filePath == "" {
		filePath = filepath.Join(m.dbPath, m.collection.Name+".chromem")
	}
	log.Debug().Str("file", filePath).Bool("compress", m.compress).Msg("Exporting collection")
	if err := m.db.ExportToFile(filePath, m.compress, m.encryptionKey, m.collection.Name); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

// Import restores the collection from a backup written by Export.
func (m *VectorDBManager) Import(filePath string) error {
	if err := m.db.ImportFromFile(filePath, m.encryptionKey, m.collection.Name); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	c := m.db.GetCollection(m.collection.Name, noEmbedding)
	if c == nil {
		return fmt.Errorf("collection %s missing after import", m.collection.Name)
	}
	m.collection = c
	return nil
}

var _ index.VectorIndex = (*VectorDBManager)(nil)
