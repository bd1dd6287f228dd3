package library

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Akphawee/accessible-library/internal/cache"
	"github.com/Akphawee/accessible-library/internal/embedding"
	"github.com/Akphawee/accessible-library/internal/extract"
	"github.com/Akphawee/accessible-library/internal/index"
	"github.com/Akphawee/accessible-library/internal/jobs"
	"github.com/Akphawee/accessible-library/internal/models"
	"github.com/Akphawee/accessible-library/internal/parser"
	"github.com/Akphawee/accessible-library/internal/quiz"
	"github.com/Akphawee/accessible-library/internal/rag"
	"github.com/Akphawee/accessible-library/internal/ratelimit"
	"github.com/Akphawee/accessible-library/internal/summary"
	"github.com/Akphawee/accessible-library/internal/testutil"
)

const (
	answerJSON = `{"structured": "## The ferryman\n**Stones**", "speech": "The ferryman counts stones."}`
	bankJSON   = `[{"question": "Who counts stones?", "options": ["ferryman", "miller", "baker", "smith"], "correctAnswerIndex": 0, "difficulty": "easy"}]`
)

type env struct {
	svc *Service

	srcDir    string
	generator *testutil.MockGenerator
	embedder  *testutil.MockEmbedder
	ocr       *testutil.MockOCR
	idx       *index.Memory
	answers   *cache.MemoryAnswerCache
	summaries *cache.SummaryCache
	banks     *cache.QuestionBankCache

	// documents served instead of parsing the stored upload, by book id
	docs map[string]*testutil.MockDocument
}

func newEnv(t *testing.T, limiter ratelimit.Limiter) *env {
	t.Helper()
	dir := t.TempDir()

	catalog, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { catalog.Close() })

	e := &env{
		srcDir:    t.TempDir(),
		generator: &testutil.MockGenerator{Respond: reply},
		embedder:  &testutil.MockEmbedder{},
		ocr:       &testutil.MockOCR{},
		idx:       index.NewMemory(),
		answers:   cache.NewMemoryAnswerCache(),
		summaries: cache.NewSummaryCache(filepath.Join(dir, "summaries")),
		banks:     cache.NewQuestionBankCache(filepath.Join(dir, "question_banks")),
		docs:      map[string]*testutil.MockDocument{},
	}
	pages := cache.NewPageCache(filepath.Join(dir, "pages"))
	documents := cache.NewDocumentCache(filepath.Join(dir, "documents"))
	engine := summary.NewEngine(e.generator, parser.SummarizationProfile, 0)

	e.svc = NewService(Options{
		UploadDir:  filepath.Join(dir, "uploads"),
		Catalog:    catalog,
		Jobs:       jobs.NewOrchestrator(),
		Extractor:  extract.NewOrchestrator(e.ocr, limiter, pages),
		Chunker:    parser.NewChunker(parser.IndexingProfile),
		Pipeline:   embedding.NewPipeline(e.embedder, 0),
		Index:      e.idx,
		Pages:      pages,
		Documents:  documents,
		Summaries:  e.summaries,
		Banks:      e.banks,
		Answers:    e.answers,
		Composer:   rag.NewComposer(rag.NewRetriever(e.embedder, e.idx, 0), e.generator, e.answers),
		Summarizer: summary.NewService(engine, e.generator, documents, e.summaries),
		Quiz:       quiz.NewGenerator(engine, e.generator, documents, e.banks),
		OpenDocument: func(path string) (parser.Document, error) {
			if doc, ok := e.docs[filepath.Base(path)]; ok {
				doc.FilePath = path
				return doc, nil
			}
			return parser.Open(path)
		},
	})
	return e
}

func reply(prompt string) (string, error) {
	switch {
	case strings.HasPrefix(prompt, "You are an expert curriculum designer"):
		return bankJSON, nil
	case strings.Contains(prompt, "CONTEXT:"):
		return answerJSON, nil
	default:
		return "A ferryman counts river stones.", nil
	}
}

func (e *env) source(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.srcDir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func wait(t *testing.T, job *jobs.Job) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return job.Wait(ctx)
}

func (e *env) ingest(t *testing.T, name, content string) string {
	t.Helper()
	job, err := e.svc.Ingest(context.Background(), IngestRequest{SourcePath: e.source(t, name, content)})
	require.NoError(t, err)
	require.NoError(t, wait(t, job))
	return name
}

// ingestPDF registers a PDF whose pages come from a mock document.
func (e *env) ingestPDF(t *testing.T, name string, pages ...string) string {
	t.Helper()
	e.docs[name] = &testutil.MockDocument{Pages: pages}
	return e.ingest(t, name, "%PDF-1.7")
}

func TestIngest(t *testing.T) {
	e := newEnv(t, ratelimit.Unlimited())
	ctx := context.Background()

	job, err := e.svc.Ingest(ctx, IngestRequest{
		SourcePath:  e.source(t, "river.txt", "The ferryman counts stones by the river.\fAt dusk the ferry rests."),
		CategoryID:  "missing-category",
		DisplayName: " The River ",
	})
	require.NoError(t, err)
	assert.Equal(t, jobs.KindIngest, job.Kind)
	require.NoError(t, wait(t, job))

	book, err := e.svc.Catalog.GetBook("river.txt")
	require.NoError(t, err)
	assert.Equal(t, "The River", book.DisplayName)
	assert.Equal(t, models.DefaultCategoryID, book.Category)

	text, err := e.svc.Documents.Read("river.txt")
	require.NoError(t, err)
	assert.Equal(t, "The ferryman counts stones by the river.\n\nAt dusk the ferry rests.", text)
	assert.Equal(t, 1, e.idx.Len("river.txt"))
	assert.Empty(t, e.ocr.Calls(), "clean native text needs no OCR")

	page, total, err := e.svc.Page("river.txt", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, "At dusk the ferry rests.", page)

	books, categories, err := e.svc.Library()
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.False(t, books[0].Scanned)
	assert.Len(t, categories, 1)
}

func TestIngestRejections(t *testing.T) {
	e := newEnv(t, ratelimit.Unlimited())
	ctx := context.Background()
	e.ingest(t, "river.txt", "The ferryman counts stones.")

	_, err := e.svc.Ingest(ctx, IngestRequest{SourcePath: filepath.Join(e.srcDir, "river.txt")})
	assert.ErrorIs(t, err, ErrBookExists)

	_, err = e.svc.Ingest(ctx, IngestRequest{SourcePath: e.source(t, "notes.md", "# notes")})
	assert.ErrorIs(t, err, parser.ErrUnsupportedFormat)
}

func TestIngestFailureAllowsRetry(t *testing.T) {
	e := newEnv(t, ratelimit.Unlimited())
	ctx := context.Background()
	path := e.source(t, "river.txt", "The ferryman counts stones.")

	e.embedder.Err = testutil.ErrMock
	job, err := e.svc.Ingest(ctx, IngestRequest{SourcePath: path})
	require.NoError(t, err)
	assert.ErrorIs(t, wait(t, job), embedding.ErrNoEmbeddings)
	assert.Equal(t, jobs.StatusFailed, job.Snapshot().Status)

	_, err = e.svc.Catalog.GetBook("river.txt")
	assert.ErrorIs(t, err, ErrBookNotFound)
	assert.False(t, e.svc.HasSource("river.txt"))

	e.embedder.Err = nil
	job, err = e.svc.Ingest(ctx, IngestRequest{SourcePath: path})
	require.NoError(t, err)
	require.NoError(t, wait(t, job))
}

func TestIngestEmptyTextRegistersBook(t *testing.T) {
	e := newEnv(t, ratelimit.Unlimited())
	e.ocr.Fail = map[int]bool{1: true}
	// a corrupted page falls back to OCR, which fails, leaving no text
	e.ingestPDF(t, "blank.pdf", strings.Repeat("\x01", 30))

	_, err := e.svc.Catalog.GetBook("blank.pdf")
	require.NoError(t, err)
	assert.Zero(t, e.idx.Len("blank.pdf"))
	assert.Equal(t, []int{1}, e.ocr.Calls())
}

func TestAsk(t *testing.T) {
	e := newEnv(t, ratelimit.Unlimited())
	ctx := context.Background()
	e.ingest(t, "river.txt", "The ferryman counts stones by the river.")

	answer, err := e.svc.Ask(ctx, "river.txt", "What does the ferryman count?", "en-US")
	require.NoError(t, err)
	assert.Equal(t, "The ferryman counts stones.", answer.Speech)

	answer, err = e.svc.Ask(ctx, "missing.txt", "anything", "th-TH")
	assert.ErrorIs(t, err, ErrBookNotFound)
	assert.Equal(t, models.ErrorAnswer("th-TH"), answer)

	e.generator.Respond = func(string) (string, error) { return "not json", nil }
	answer, err = e.svc.Ask(ctx, "river.txt", "A different question?", "en-US")
	require.Error(t, err)
	assert.Equal(t, models.ErrorAnswer("en-US"), answer)
}

func TestSummarizeAndQuestionBank(t *testing.T) {
	e := newEnv(t, ratelimit.Unlimited())
	ctx := context.Background()
	e.ingest(t, "river.txt", "The ferryman counts stones by the river.")

	_, err := e.svc.Summary("river.txt", "en-US")
	assert.ErrorIs(t, err, cache.ErrNotFound)

	job, err := e.svc.Summarize(ctx, "river.txt", "en-US")
	require.NoError(t, err)
	require.NoError(t, wait(t, job))
	text, err := e.svc.Summary("river.txt", "en-US")
	require.NoError(t, err)
	assert.Equal(t, "A ferryman counts river stones.", text)

	job, exists, err := e.svc.GenerateQuestionBank(ctx, "river.txt", "en-US")
	require.NoError(t, err)
	require.False(t, exists)
	require.NoError(t, wait(t, job))

	questions, err := e.svc.QuestionBank("river.txt", "en-US")
	require.NoError(t, err)
	require.Len(t, questions, 1)
	assert.Equal(t, "ferryman", questions[0].Options[0])

	job, exists, err = e.svc.GenerateQuestionBank(ctx, "river.txt", "en-US")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Nil(t, job)

	_, err = e.svc.Summarize(ctx, "missing.txt", "en-US")
	assert.ErrorIs(t, err, ErrBookNotFound)
}

func TestScan(t *testing.T) {
	e := newEnv(t, ratelimit.Unlimited())
	ctx := context.Background()
	e.ingestPDF(t, "atlas.pdf", "Native text of the first page.", "Native text of the second page.")

	_, err := e.svc.Ask(ctx, "atlas.pdf", "What is on the first page?", "en-US")
	require.NoError(t, err)
	require.NoError(t, e.summaries.Put("atlas.pdf", "en-US", "old summary"))
	require.NoError(t, e.banks.Save("atlas.pdf", "en-US", []models.Question{{Question: "old?"}}))

	job, err := e.svc.Scan(ctx, "atlas.pdf")
	require.NoError(t, err)
	assert.Equal(t, jobs.KindFullScan, job.Kind)
	require.NoError(t, wait(t, job))

	assert.Equal(t, []int{1, 2}, e.ocr.Calls())
	text, err := e.svc.Documents.Read("atlas.pdf")
	require.NoError(t, err)
	assert.Equal(t, "ocr text of page 1\n\nocr text of page 2", text)

	_, err = e.summaries.Get("atlas.pdf", "en-US")
	assert.ErrorIs(t, err, cache.ErrNotFound)
	assert.False(t, e.banks.Exists("atlas.pdf", "en-US"))
	_, ok, err := e.answers.Get(ctx, "en-US", "atlas.pdf", "What is on the first page?")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.False(t, e.svc.HasSource("atlas.pdf"))
	books, _, err := e.svc.Library()
	require.NoError(t, err)
	assert.True(t, books[0].Scanned)

	_, err = e.svc.Scan(ctx, "atlas.pdf")
	assert.ErrorIs(t, err, ErrSourceMissing)
}

func TestScanDropsAnswersCachedDuringReindex(t *testing.T) {
	e := newEnv(t, ratelimit.Unlimited())
	ctx := context.Background()
	e.ingestPDF(t, "atlas.pdf", "Native text of the first page.", "Native text of the second page.")

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	e.embedder.OnDocument = func() {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
	}

	job, err := e.svc.Scan(ctx, "atlas.pdf")
	require.NoError(t, err)
	<-entered

	// the old vectors are still served while the scan embeds
	const query = "What is on the first page?"
	_, err = e.svc.Ask(ctx, "atlas.pdf", query, "en-US")
	require.NoError(t, err)
	_, ok, err := e.answers.Get(ctx, "en-US", "atlas.pdf", query)
	require.NoError(t, err)
	require.True(t, ok)

	close(release)
	require.NoError(t, wait(t, job))

	_, ok, err = e.answers.Get(ctx, "en-US", "atlas.pdf", query)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReindexFromCachedPages(t *testing.T) {
	e := newEnv(t, ratelimit.Unlimited())
	ctx := context.Background()
	e.ingest(t, "river.txt", "The ferryman counts stones by the river.\fAt dusk the ferry rests.")

	_, err := e.svc.Ask(ctx, "river.txt", "What does the ferryman count?", "en-US")
	require.NoError(t, err)
	require.NoError(t, e.idx.DeleteForBook(ctx, "river.txt"))
	require.NoError(t, e.svc.Documents.Delete("river.txt"))
	require.NoError(t, os.Remove(filepath.Join(e.svc.UploadDir, "river.txt")))

	job, err := e.svc.Reindex(ctx, "river.txt")
	require.NoError(t, err)
	assert.Equal(t, jobs.KindReindex, job.Kind)
	require.NoError(t, wait(t, job))

	assert.Equal(t, 1, e.idx.Len("river.txt"))
	text, err := e.svc.Documents.Read("river.txt")
	require.NoError(t, err)
	assert.Equal(t, "The ferryman counts stones by the river.\n\nAt dusk the ferry rests.", text)
	_, ok, err := e.answers.Get(ctx, "en-US", "river.txt", "What does the ferryman count?")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = e.svc.Reindex(ctx, "missing.txt")
	assert.ErrorIs(t, err, ErrBookNotFound)
}

func TestScanKeepsSourceAfterOCRFailure(t *testing.T) {
	e := newEnv(t, ratelimit.Unlimited())
	e.ingestPDF(t, "atlas.pdf", "Native text of the first page.", "Native text of the second page.")
	e.ocr.Fail = map[int]bool{2: true}

	job, err := e.svc.Scan(context.Background(), "atlas.pdf")
	require.NoError(t, err)
	require.NoError(t, wait(t, job))

	assert.True(t, e.svc.HasSource("atlas.pdf"))
	page, _, err := e.svc.Page("atlas.pdf", 2)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestScanRejections(t *testing.T) {
	e := newEnv(t, ratelimit.Unlimited())
	ctx := context.Background()
	e.ingest(t, "river.txt", "The ferryman counts stones.")

	_, err := e.svc.Scan(ctx, "river.txt")
	assert.ErrorIs(t, err, ErrNotScannable)
	_, err = e.svc.Scan(ctx, "missing.pdf")
	assert.ErrorIs(t, err, ErrBookNotFound)
}

type gateLimiter struct {
	entered chan struct{}
	release chan struct{}
}

func (l *gateLimiter) Wait(ctx context.Context) error {
	select {
	case l.entered <- struct{}{}:
	default:
	}
	select {
	case <-l.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestScanIsExclusive(t *testing.T) {
	gate := &gateLimiter{entered: make(chan struct{}, 1), release: make(chan struct{})}
	e := newEnv(t, gate)
	ctx := context.Background()
	e.ingestPDF(t, "a.pdf", "Native text of book a.")
	e.ingestPDF(t, "b.pdf", "Native text of book b.")

	first, err := e.svc.Scan(ctx, "a.pdf")
	require.NoError(t, err)
	<-gate.entered

	_, err = e.svc.Scan(ctx, "b.pdf")
	assert.ErrorIs(t, err, jobs.ErrBusy)

	close(gate.release)
	require.NoError(t, wait(t, first))
	require.Eventually(t, func() bool { return !e.svc.Jobs.Busy() }, time.Second, time.Millisecond)

	second, err := e.svc.Scan(ctx, "b.pdf")
	require.NoError(t, err)
	require.NoError(t, wait(t, second))
}

func TestDeleteCascades(t *testing.T) {
	e := newEnv(t, ratelimit.Unlimited())
	ctx := context.Background()
	e.ingest(t, "river.txt", "The ferryman counts stones by the river.\fAt dusk the ferry rests.")
	e.ingest(t, "other.txt", "A different book about mountains.")

	_, err := e.svc.Ask(ctx, "river.txt", "What does the ferryman count?", "en-US")
	require.NoError(t, err)
	require.NoError(t, e.summaries.Put("river.txt", "th-TH", "summary"))
	require.NoError(t, e.banks.Save("river.txt", "en-US", []models.Question{{Question: "q?"}}))

	require.NoError(t, e.svc.Delete(ctx, "river.txt"))

	_, err = e.svc.Catalog.GetBook("river.txt")
	assert.ErrorIs(t, err, ErrBookNotFound)
	assert.Zero(t, e.idx.Len("river.txt"))
	_, _, err = e.svc.Page("river.txt", 1)
	assert.ErrorIs(t, err, cache.ErrNotFound)
	assert.False(t, e.svc.Documents.Exists("river.txt"))
	_, err = e.summaries.Get("river.txt", "th-TH")
	assert.ErrorIs(t, err, cache.ErrNotFound)
	assert.False(t, e.banks.Exists("river.txt", "en-US"))
	_, ok, err := e.answers.Get(ctx, "en-US", "river.txt", "What does the ferryman count?")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, e.svc.HasSource("river.txt"))

	// other books are untouched
	assert.Equal(t, 1, e.idx.Len("other.txt"))
	assert.True(t, e.svc.Documents.Exists("other.txt"))

	assert.ErrorIs(t, e.svc.Delete(ctx, "river.txt"), ErrBookNotFound)
	assert.ErrorIs(t, e.svc.Delete(ctx, "../etc"), ErrInvalidBookID)
}

func TestCategoryOperations(t *testing.T) {
	e := newEnv(t, ratelimit.Unlimited())
	e.ingest(t, "river.txt", "The ferryman counts stones.")

	category, err := e.svc.AddCategory("Folk Tales")
	require.NoError(t, err)
	book, err := e.svc.MoveBook("river.txt", category.ID)
	require.NoError(t, err)
	assert.Equal(t, "folk-tales", book.Category)

	book, err = e.svc.RenameBook("river.txt", "River Tales")
	require.NoError(t, err)
	assert.Equal(t, "River Tales", book.DisplayName)

	moved, err := e.svc.DeleteCategory(category.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	books, categories, err := e.svc.Library()
	require.NoError(t, err)
	assert.Equal(t, models.DefaultCategoryID, books[0].Category)
	assert.Len(t, categories, 1)
}
