// Package library ties the catalog, caches, index and background jobs
// together into the operations offered to users.
package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Akphawee/accessible-library/internal/cache"
	"github.com/Akphawee/accessible-library/internal/embedding"
	"github.com/Akphawee/accessible-library/internal/extract"
	"github.com/Akphawee/accessible-library/internal/index"
	"github.com/Akphawee/accessible-library/internal/jobs"
	"github.com/Akphawee/accessible-library/internal/models"
	"github.com/Akphawee/accessible-library/internal/parser"
	"github.com/Akphawee/accessible-library/internal/quiz"
	"github.com/Akphawee/accessible-library/internal/rag"
	"github.com/Akphawee/accessible-library/internal/summary"
)

// Options holds the collaborators of a Service. OpenDocument defaults to
// parser.Open.
type Options struct {
	UploadDir string

	Catalog    *Catalog
	Jobs       *jobs.Orchestrator
	Extractor  *extract.Orchestrator
	Chunker    *parser.Chunker
	Pipeline   *embedding.Pipeline
	Index      index.VectorIndex
	Pages      *cache.PageCache
	Documents  *cache.DocumentCache
	Summaries  *cache.SummaryCache
	Banks      *cache.QuestionBankCache
	Answers    cache.AnswerCache
	Composer   *rag.Composer
	Summarizer *summary.Service
	Quiz       *quiz.Generator

	OpenDocument func(path string) (parser.Document, error)
}

type Service struct {
	Options
}

func NewService(opts Options) *Service {
	if opts.OpenDocument == nil {
		opts.OpenDocument = parser.Open
	}
	if opts.Jobs == nil {
		opts.Jobs = jobs.NewOrchestrator()
	}
	if opts.Answers == nil {
		opts.Answers = cache.NewMemoryAnswerCache()
	}
	return &Service{Options: opts}
}

// IngestRequest describes a new source document to add to the library.
type IngestRequest struct {
	SourcePath  string
	CategoryID  string
	DisplayName string
}

func (s *Service) sourcePath(bookID string) string {
	return filepath.Join(s.UploadDir, bookID)
}

// HasSource reports whether the uploaded source of a book is still on disk.
func (s *Service) HasSource(bookID string) bool {
	_, err := os.Stat(s.sourcePath(bookID))
	return err == nil
}

// Ingest copies the source into the upload directory and starts the ingest
// job. The book id is the source file name.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (*jobs.Job, error) {
	bookID := filepath.Base(req.SourcePath)
	if err := cache.CheckKey(bookID); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidBookID, bookID)
	}
	if !parser.Supported(bookID) {
		return nil, fmt.Errorf("%w: %s", parser.ErrUnsupportedFormat, bookID)
	}
	if _, err := s.Catalog.GetBook(bookID); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrBookExists, bookID)
	} else if !errors.Is(err, ErrBookNotFound) {
		return nil, err
	}
	if s.HasSource(bookID) {
		return nil, fmt.Errorf("%w: %s is already being ingested", ErrBookExists, bookID)
	}

	if err := copyFile(req.SourcePath, s.sourcePath(bookID)); err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}
	log.Info().Str("book_id", bookID).Msg("Upload stored")

	job, err := s.Jobs.Submit(ctx, jobs.KindIngest, bookID, func(ctx context.Context) error {
		return s.runIngest(ctx, bookID, req)
	})
	if err != nil {
		os.Remove(s.sourcePath(bookID))
		return nil, err
	}
	return job, nil
}

func (s *Service) runIngest(ctx context.Context, bookID string, req IngestRequest) (err error) {
	defer func() {
		// an unregistered upload would block a retry
		if err != nil {
			if rmErr := os.Remove(s.sourcePath(bookID)); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				log.Warn().Err(rmErr).Str("book_id", bookID).Msg("Failed to remove upload")
			}
		}
	}()

	result, err := s.extract(ctx, bookID, extract.ModeIngest)
	if err != nil {
		return err
	}
	text := result.Text()
	if err := s.Documents.Write(bookID, text); err != nil {
		return fmt.Errorf("failed to cache document: %w", err)
	}
	if err := s.reindex(ctx, bookID, text); err != nil {
		return err
	}

	displayName := strings.TrimSpace(req.DisplayName)
	book, err := s.Catalog.AddBook(models.Book{
		ID:          bookID,
		DisplayName: displayName,
		Category:    req.CategoryID,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to register book: %w", err)
	}
	log.Info().Str("book_id", bookID).Str("category", book.Category).Int("pages", len(result.Pages)).Msg("Book ingested")
	return nil
}

// Scan re-extracts every page of a PDF book with OCR. Only one scan runs
// at a time; a second request fails with jobs.ErrBusy.
func (s *Service) Scan(ctx context.Context, bookID string) (*jobs.Job, error) {
	if _, err := s.Catalog.GetBook(bookID); err != nil {
		return nil, err
	}
	if !s.HasSource(bookID) {
		return nil, fmt.Errorf("%w: %s", ErrSourceMissing, bookID)
	}
	if !parser.IsPDF(bookID) {
		return nil, fmt.Errorf("%w: %s", ErrNotScannable, bookID)
	}
	return s.Jobs.SubmitExclusive(ctx, jobs.KindFullScan, bookID, func(ctx context.Context) error {
		return s.runScan(ctx, bookID)
	})
}

func (s *Service) runScan(ctx context.Context, bookID string) error {
	logger := log.With().Str("book_id", bookID).Logger()

	result, err := s.extract(ctx, bookID, extract.ModeFullScan)
	if err != nil {
		return err
	}
	if err := s.Documents.Write(bookID, result.Text()); err != nil {
		return fmt.Errorf("failed to cache document: %w", err)
	}
	s.invalidateDerived(ctx, bookID)

	if err := s.reindex(ctx, bookID, result.Text()); err != nil {
		return err
	}
	// questions asked while reindexing were answered from the old vectors
	if err := s.Answers.DeleteBook(ctx, bookID); err != nil {
		logger.Warn().Err(err).Msg("Failed to invalidate answers")
	}

	if result.OCRFailures > 0 {
		logger.Warn().Int("ocr_failures", result.OCRFailures).Msg("Keeping source after incomplete scan")
		return nil
	}
	if err := os.Remove(s.sourcePath(bookID)); err != nil {
		logger.Warn().Err(err).Msg("Failed to remove scanned source")
		return nil
	}
	logger.Info().Msg("Scan complete, source removed")
	return nil
}

// Reindex re-embeds a book from its cached pages without extracting the
// source again, e.g. after switching embedding models or vector backends.
// It shares the scan lock, since a running scan rewrites the same pages.
func (s *Service) Reindex(ctx context.Context, bookID string) (*jobs.Job, error) {
	if _, err := s.Catalog.GetBook(bookID); err != nil {
		return nil, err
	}
	return s.Jobs.SubmitExclusive(ctx, jobs.KindReindex, bookID, func(ctx context.Context) error {
		pages, err := s.Pages.ReadAll(bookID)
		if err != nil {
			return fmt.Errorf("no cached pages for %s: %w", bookID, err)
		}
		text := cache.JoinPages(pages)
		if err := s.Documents.Write(bookID, text); err != nil {
			return fmt.Errorf("failed to cache document: %w", err)
		}
		if err := s.reindex(ctx, bookID, text); err != nil {
			return err
		}
		if err := s.Answers.DeleteBook(ctx, bookID); err != nil {
			log.Warn().Err(err).Str("book_id", bookID).Msg("Failed to invalidate answers")
		}
		return nil
	})
}

func (s *Service) extract(ctx context.Context, bookID string, mode extract.Mode) (*extract.Result, error) {
	doc, err := s.OpenDocument(s.sourcePath(bookID))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", bookID, err)
	}
	defer doc.Close()
	return s.Extractor.Extract(ctx, doc, bookID, mode)
}

// reindex replaces the book's vectors with embeddings of text. Text with no
// chunks clears the index; chunks that all fail to embed fail the job.
func (s *Service) reindex(ctx context.Context, bookID, text string) error {
	chunks := s.Chunker.Split(text)
	if len(chunks) == 0 {
		log.Warn().Str("book_id", bookID).Msg("No text to index")
		return s.Index.DeleteForBook(ctx, bookID)
	}

	entries := s.Pipeline.EmbedChunks(ctx, bookID, chunks)
	if len(entries) == 0 {
		return fmt.Errorf("%s: %w", bookID, embedding.ErrNoEmbeddings)
	}
	if err := s.Index.UpsertForBook(ctx, bookID, entries); err != nil {
		return fmt.Errorf("failed to index %s: %w", bookID, err)
	}
	return nil
}

// invalidateDerived drops everything generated from the previous text.
func (s *Service) invalidateDerived(ctx context.Context, bookID string) {
	logger := log.With().Str("book_id", bookID).Logger()
	if err := s.Summaries.DeleteBook(bookID); err != nil {
		logger.Warn().Err(err).Msg("Failed to invalidate summaries")
	}
	if err := s.Banks.DeleteBook(bookID); err != nil {
		logger.Warn().Err(err).Msg("Failed to invalidate question banks")
	}
	if err := s.Answers.DeleteBook(ctx, bookID); err != nil {
		logger.Warn().Err(err).Msg("Failed to invalidate answers")
	}
}

// Ask answers a question about a book. On failure the returned answer is
// the user-facing error message in the requested language.
func (s *Service) Ask(ctx context.Context, bookID, query, lang string) (models.Answer, error) {
	if _, err := s.Catalog.GetBook(bookID); err != nil {
		return models.ErrorAnswer(lang), err
	}
	answer, err := s.Composer.Answer(ctx, rag.Question{BookID: bookID, Query: query, Lang: lang})
	if err != nil {
		log.Error().Err(err).Str("book_id", bookID).Msg("Failed to answer question")
		return models.ErrorAnswer(lang), err
	}
	return answer, nil
}

// Summary returns a previously generated summary, or cache.ErrNotFound.
func (s *Service) Summary(bookID, lang string) (string, error) {
	return s.Summarizer.Cached(bookID, lang)
}

// Summarize starts a job generating the book's summary in lang.
func (s *Service) Summarize(ctx context.Context, bookID, lang string) (*jobs.Job, error) {
	if _, err := s.Catalog.GetBook(bookID); err != nil {
		return nil, err
	}
	return s.Jobs.Submit(ctx, jobs.KindSummarize, bookID, func(ctx context.Context) error {
		_, err := s.Summarizer.Summary(ctx, bookID, lang)
		return err
	})
}

// GenerateQuestionBank starts a job building the question bank. When the
// bank already exists no job is started and alreadyExists is true.
func (s *Service) GenerateQuestionBank(ctx context.Context, bookID, lang string) (job *jobs.Job, alreadyExists bool, err error) {
	if _, err := s.Catalog.GetBook(bookID); err != nil {
		return nil, false, err
	}
	if s.Quiz.Exists(bookID, lang) {
		return nil, true, nil
	}
	job, err = s.Jobs.Submit(ctx, jobs.KindQuestionBank, bookID, func(ctx context.Context) error {
		_, err := s.Quiz.Generate(ctx, bookID, lang)
		return err
	})
	return job, false, err
}

func (s *Service) QuestionBank(bookID, lang string) ([]models.Question, error) {
	return s.Quiz.Load(bookID, lang)
}

// Page returns the cached text of one page and the book's page count.
func (s *Service) Page(bookID string, page int) (string, int, error) {
	return s.Pages.Page(bookID, page)
}

// Library lists every book with its scan state and every category.
func (s *Service) Library() ([]models.Book, []models.Category, error) {
	books, err := s.Catalog.ListBooks()
	if err != nil {
		return nil, nil, err
	}
	for i := range books {
		books[i].Scanned = !s.HasSource(books[i].ID)
	}
	categories, err := s.Catalog.ListCategories()
	if err != nil {
		return nil, nil, err
	}
	return books, categories, nil
}

func (s *Service) AddCategory(name string) (models.Category, error) {
	return s.Catalog.AddCategory(name)
}

func (s *Service) DeleteCategory(id string) (int, error) {
	return s.Catalog.DeleteCategory(id)
}

func (s *Service) RenameBook(bookID, displayName string) (models.Book, error) {
	return s.Catalog.RenameBook(bookID, displayName)
}

func (s *Service) MoveBook(bookID, categoryID string) (models.Book, error) {
	return s.Catalog.SetBookCategory(bookID, categoryID)
}

// Delete removes a book and everything derived from it. Every step runs
// even if an earlier one fails; the failures are returned joined.
func (s *Service) Delete(ctx context.Context, bookID string) error {
	if err := cache.CheckKey(bookID); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidBookID, bookID)
	}
	logger := log.With().Str("book_id", bookID).Logger()

	_, catalogErr := s.Catalog.GetBook(bookID)
	if errors.Is(catalogErr, ErrBookNotFound) && !s.HasSource(bookID) && !s.Documents.Exists(bookID) {
		return catalogErr
	}

	var errs []error
	step := func(name string, err error) {
		if err != nil && !errors.Is(err, ErrBookNotFound) && !errors.Is(err, os.ErrNotExist) {
			logger.Error().Err(err).Str("step", name).Msg("Delete step failed")
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	step("catalog", s.Catalog.DeleteBook(bookID))
	step("index", s.Index.DeleteForBook(ctx, bookID))
	step("pages", s.Pages.DeleteBook(bookID))
	step("document", s.Documents.Delete(bookID))
	step("summaries", s.Summaries.DeleteBook(bookID))
	step("question banks", s.Banks.DeleteBook(bookID))
	step("answers", s.Answers.DeleteBook(ctx, bookID))
	step("source", os.Remove(s.sourcePath(bookID)))

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	logger.Info().Msg("Book deleted")
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
