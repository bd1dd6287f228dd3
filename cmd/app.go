package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Akphawee/accessible-library/internal/cache"
	"github.com/Akphawee/accessible-library/internal/chromemdb"
	"github.com/Akphawee/accessible-library/internal/config"
	"github.com/Akphawee/accessible-library/internal/db"
	"github.com/Akphawee/accessible-library/internal/embedding"
	"github.com/Akphawee/accessible-library/internal/extract"
	"github.com/Akphawee/accessible-library/internal/helper"
	"github.com/Akphawee/accessible-library/internal/index"
	"github.com/Akphawee/accessible-library/internal/jobs"
	"github.com/Akphawee/accessible-library/internal/library"
	"github.com/Akphawee/accessible-library/internal/llmservice"
	"github.com/Akphawee/accessible-library/internal/ocr"
	"github.com/Akphawee/accessible-library/internal/parser"
	"github.com/Akphawee/accessible-library/internal/quiz"
	"github.com/Akphawee/accessible-library/internal/rag"
	"github.com/Akphawee/accessible-library/internal/ratelimit"
	"github.com/Akphawee/accessible-library/internal/speech"
	"github.com/Akphawee/accessible-library/internal/summary"
)

const redisWait = 10 * time.Second

// app is the wired library plus everything that must be closed on exit.
type app struct {
	svc     *library.Service
	vectors *chromemdb.VectorDBManager
	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	dir := func(name string) string { return filepath.Join(cfg.DataDir, name) }
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}

	catalog, err := library.OpenCatalog(dir("catalog"))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, catalog.Close)

	idx, err := a.openIndex(ctx, cfg)
	if err != nil {
		return nil, err
	}

	answers, err := a.openAnswerCache(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}

	embedder, err := embedding.New(cfg.EmbedLLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	generator, err := llmservice.New(cfg.InferenceLLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}

	var recognizer extract.OCR
	if cfg.OCR.Key != "" {
		recognizer = ocr.NewMistralClient(ocr.MistralConfig{
			APIKey:     cfg.OCR.Key,
			BaseURL:    cfg.OCR.BaseURL,
			Model:      cfg.OCR.Model,
			Timeout:    cfg.OCR.Timeout,
			RetryDelay: cfg.OCR.Interval,
		})
	} else {
		log.Warn().Msg("No OCR key configured, corrupted pages will stay empty")
	}

	pages := cache.NewPageCache(dir("pages"))
	documents := cache.NewDocumentCache(dir("documents"))
	summaries := cache.NewSummaryCache(dir("summaries"))
	banks := cache.NewQuestionBankCache(dir("question_banks"))

	engine := summary.NewEngine(generator, parser.Profile{
		Size:    cfg.RAG.SummaryChunkSize,
		Overlap: cfg.RAG.SummaryChunkOverlap,
	}, cfg.RAG.SummarySafeSize)

	a.svc = library.NewService(library.Options{
		UploadDir:  dir("uploads"),
		Catalog:    catalog,
		Jobs:       jobs.NewOrchestrator(),
		Extractor:  extract.NewOrchestrator(recognizer, ratelimit.Interval(cfg.OCR.Interval), pages),
		Chunker:    parser.NewChunker(parser.Profile{Size: cfg.RAG.ChunkSize, Overlap: cfg.RAG.ChunkOverlap}),
		Pipeline:   embedding.NewPipeline(embedder, cfg.RAG.EmbedBatchSize),
		Index:      idx,
		Pages:      pages,
		Documents:  documents,
		Summaries:  summaries,
		Banks:      banks,
		Answers:    answers,
		Composer:   rag.NewComposer(rag.NewRetriever(embedder, idx, cfg.RAG.TopN), generator, answers),
		Summarizer: summary.NewService(engine, generator, documents, summaries),
		Quiz:       quiz.NewGenerator(engine, generator, documents, banks),
	})
	return a, nil
}

func (a *app) openIndex(ctx context.Context, cfg *config.Config) (index.VectorIndex, error) {
	switch cfg.Vector.Backend {
	case "chromem":
		m, err := chromemdb.NewVectorDBManager(filepath.Join(cfg.DataDir, "vectors"), cfg.Vector.Collection, cfg.Vector.Compress, cfg.Vector.EncryptionKey)
		if err != nil {
			return nil, err
		}
		a.vectors = m
		return m, nil
	case "pgvector":
		p, err := db.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, p.Close)
		return p, nil
	case "memory":
		return index.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.Vector.Backend)
	}
}

func (a *app) openAnswerCache(ctx context.Context, cfg config.CacheConfig) (cache.AnswerCache, error) {
	if cfg.RedisURL == "" {
		return cache.NewMemoryAnswerCache(), nil
	}
	c, err := cache.NewRedisAnswerCache(ctx, cfg.RedisURL, cfg.TTL, redisWait)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, c.Close)
	return c, nil
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func newSynthesizer(cfg *config.Config) speech.Synthesizer {
	return speech.NewOpenAISynthesizer(cfg.TTS)
}

// withApp wires the library for one command and closes it afterwards.
func withApp(ctx context.Context, fn func(a *app) error) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing library")
		}
	}()
	return fn(a)
}

// waitJob blocks until a job started by the command has finished and
// prints its final state.
func waitJob(ctx context.Context, job *jobs.Job) error {
	log.Info().Str("job_id", job.ID).Str("kind", string(job.Kind)).Str("book_id", job.BookID).Msg("Job submitted")
	err := job.Wait(ctx)
	helper.PrettyPrint(job.Snapshot())
	return err
}
