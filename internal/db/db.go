package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"github.com/Akphawee/accessible-library/internal/config"
	"github.com/Akphawee/accessible-library/internal/index"
)

// Chunk is one embedded chunk row.
type Chunk struct {
	bun.BaseModel `bun:"table:book_chunks,alias:c"`
	ID            int64           `bun:"id,pk,autoincrement"`
	BookID        string          `bun:"book_id,notnull"`
	Ordinal       int             `bun:"ordinal,notnull"`
	Content       string          `bun:"content,notnull"`
	Embedding     pgvector.Vector `bun:"embedding,notnull,type:vector"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens the database with the configured driver: pgdriver (default) or pq.
func ConnectDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case "pq":
		return sql.Open("postgres", cfg.URL)
	case "pgdriver", "":
		opts := []pgdriver.Option{pgdriver.WithDSN(cfg.URL)}
		if cfg.Password != "" {
			opts = append(opts, pgdriver.WithPassword(cfg.Password))
		}
		return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// WaitForDB pings until the database answers or wait runs out.
func WaitForDB(ctx context.Context, db *bun.DB, wait time.Duration) error {
	return retry.Do(
		func() error { return db.PingContext(ctx) },
		retry.Context(ctx),
		retry.Attempts(max(uint(wait.Seconds()), 1)),
		retry.Delay(time.Second),
		retry.DelayType(retry.FixedDelay),
		retry.OnRetry(func(n uint, err error) {
			log.Debug().Err(err).Uint("attempt", n+1).Msg("Waiting for database")
		}),
	)
}

func InitDB(ctx context.Context, db *bun.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to enable pgvector: %w", err)
	}
	if _, err := db.NewCreateTable().Model((*Chunk)(nil)).IfNotExists().Exec(ctx); err != nil {
		return err
	}
	_, err := db.NewCreateIndex().
		Model((*Chunk)(nil)).
		Index("book_chunks_book_id_idx").
		IfNotExists().
		Column("book_id").
		Exec(ctx)
	return err
}

func DropChunks(ctx context.Context, db *bun.DB) error {
	_, err := db.NewDropTable().Model((*Chunk)(nil)).IfExists().Exec(ctx)
	return err
}

// PGVectorIndex is a VectorIndex on a pgvector table. Replacing a book's
// entries happens in one transaction.
type PGVectorIndex struct {
	db         *bun.DB
	dimensions int
}

func NewPGVectorIndex(db *bun.DB, dimensions int) *PGVectorIndex {
	return &PGVectorIndex{db: db, dimensions: dimensions}
}

// Open connects, waits for the server and prepares the schema.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*PGVectorIndex, error) {
	sqldb, err := ConnectDB(cfg)
	if err != nil {
		return nil, err
	}
	db := NewDB(sqldb, cfg.Debug)
	if err := WaitForDB(ctx, db, cfg.Wait); err != nil {
		db.Close()
		return nil, fmt.Errorf("database not reachable: %w", err)
	}
	if err := InitDB(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	return NewPGVectorIndex(db, cfg.Dimensions), nil
}

func (p *PGVectorIndex) Close() error {
	return p.db.Close()
}

func rowsFor(bookID string, entries []index.Entry, dimensions int) ([]Chunk, error) {
	rows := make([]Chunk, 0, len(entries))
	for _, e := range entries {
		if dimensions > 0 && len(e.Vector) != dimensions {
			return nil, fmt.Errorf("chunk %d has %d dimensions, want %d", e.Ordinal, len(e.Vector), dimensions)
		}
		rows = append(rows, Chunk{
			BookID:    bookID,
			Ordinal:   e.Ordinal,
			Content:   e.Text,
			Embedding: pgvector.NewVector(e.Vector),
		})
	}
	return rows, nil
}

func (p *PGVectorIndex) UpsertForBook(ctx context.Context, bookID string, entries []index.Entry) error {
	rows, err := rowsFor(bookID, entries, p.dimensions)
	if err != nil {
		return err
	}
	return p.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*Chunk)(nil)).Where("book_id = ?", bookID).Exec(ctx); err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		_, err := tx.NewInsert().Model(&rows).Exec(ctx)
		return err
	})
}

func (p *PGVectorIndex) Query(ctx context.Context, bookID string, vector []float32, topN int) ([]string, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("query embedding must be provided")
	}
	var rows []Chunk
	err := p.db.NewSelect().
		Model(&rows).
		Column("content").
		Where("book_id = ?", bookID).
		OrderExpr("embedding <=> ?", pgvector.NewVector(vector)).
		Limit(topN).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(rows))
	for i, r := range rows {
		texts[i] = r.Content
	}
	return texts, nil
}

func (p *PGVectorIndex) DeleteForBook(ctx context.Context, bookID string) error {
	_, err := p.db.NewDelete().Model((*Chunk)(nil)).Where("book_id = ?", bookID).Exec(ctx)
	return err
}

var _ index.VectorIndex = (*PGVectorIndex)(nil)
