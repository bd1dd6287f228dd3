package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Akphawee/accessible-library/internal/cache"
	"github.com/Akphawee/accessible-library/internal/testutil"
)

var garbled = strings.Repeat("\x01\x02abc", 10)

func TestExtractIngestMode(t *testing.T) {
	pages := cache.NewPageCache(t.TempDir())
	ocr := &testutil.MockOCR{Texts: map[int]string{2: "recovered page two"}}
	limiter := &testutil.CountingLimiter{}
	o := NewOrchestrator(ocr, limiter, pages)

	doc := &testutil.MockDocument{
		FilePath: "book.pdf",
		Pages:    []string{"A perfectly readable first page of text.", garbled, "short", ""},
	}

	result, err := o.Extract(context.Background(), doc, "book.pdf", ModeIngest)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"A perfectly readable first page of text.",
		"recovered page two",
		"short",
		"",
	}, result.Pages)
	assert.Equal(t, []int{2}, ocr.Calls(), "only the corrupted page is OCRed")
	assert.Equal(t, 1, result.OCRCalls)
	assert.Equal(t, 0, result.OCRFailures)
	assert.Equal(t, 1, limiter.Waits(), "pages without OCR are not paced")

	cached, err := pages.ReadAll("book.pdf")
	require.NoError(t, err)
	assert.Equal(t, result.Pages, cached)
	assert.Equal(t, "A perfectly readable first page of text.\n\nrecovered page two\n\nshort\n\n", result.Text())
}

func TestExtractOCRFailureLeavesPageEmpty(t *testing.T) {
	pages := cache.NewPageCache(t.TempDir())
	ocr := &testutil.MockOCR{Fail: map[int]bool{1: true}}
	o := NewOrchestrator(ocr, &testutil.CountingLimiter{}, pages)

	doc := &testutil.MockDocument{FilePath: "b.pdf", Pages: []string{garbled, "fine page text here"}}
	result, err := o.Extract(context.Background(), doc, "b", ModeIngest)
	require.NoError(t, err)

	assert.Equal(t, []string{"", "fine page text here"}, result.Pages)
	assert.Equal(t, 1, result.OCRFailures)

	text, err := pages.Read("b", 1)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestExtractNativeErrorFallsBackToOCR(t *testing.T) {
	ocr := &testutil.MockOCR{}
	o := NewOrchestrator(ocr, nil, cache.NewPageCache(t.TempDir()))

	doc := &testutil.MockDocument{FilePath: "b.pdf", Pages: []string{"x", "y"}, Broken: map[int]bool{2: true}}
	result, err := o.Extract(context.Background(), doc, "b", ModeIngest)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "ocr text of page 2"}, result.Pages)
}

func TestExtractFullScan(t *testing.T) {
	pages := cache.NewPageCache(t.TempDir())
	ocr := &testutil.MockOCR{}
	limiter := &testutil.CountingLimiter{}
	o := NewOrchestrator(ocr, limiter, pages)

	// stale pages from an earlier, longer extraction
	for i := 1; i <= 5; i++ {
		require.NoError(t, pages.Write("b", i, "old"))
	}

	doc := &testutil.MockDocument{FilePath: "b.pdf", Pages: []string{"clean one", "clean two", "clean three"}}
	result, err := o.Extract(context.Background(), doc, "b", ModeFullScan)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3}, ocr.Calls(), "every page is OCRed in order")
	assert.Equal(t, 3, limiter.Waits())
	assert.Equal(t, 3, result.OCRCalls)

	n, err := pages.Count("b")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	cached, err := pages.ReadAll("b")
	require.NoError(t, err)
	assert.Equal(t, []string{"ocr text of page 1", "ocr text of page 2", "ocr text of page 3"}, cached)
}

func TestExtractWithoutOCRProvider(t *testing.T) {
	o := NewOrchestrator(nil, nil, cache.NewPageCache(t.TempDir()))
	doc := &testutil.MockDocument{FilePath: "b.pdf", Pages: []string{garbled}}

	result, err := o.Extract(context.Background(), doc, "b", ModeIngest)
	require.NoError(t, err)
	assert.Equal(t, []string{""}, result.Pages)
	assert.Equal(t, 1, result.OCRFailures)
}

type failingStore struct{}

func (failingStore) Write(string, int, string) error { return errors.New("disk full") }
func (failingStore) Truncate(string, int) error      { return nil }

func TestExtractCacheWriteIsFatal(t *testing.T) {
	o := NewOrchestrator(&testutil.MockOCR{}, nil, failingStore{})
	doc := &testutil.MockDocument{FilePath: "b.pdf", Pages: []string{"page"}}

	_, err := o.Extract(context.Background(), doc, "b", ModeIngest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestExtractStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o := NewOrchestrator(&testutil.MockOCR{}, nil, cache.NewPageCache(t.TempDir()))
	doc := &testutil.MockDocument{FilePath: "b.pdf", Pages: []string{"page"}}

	_, err := o.Extract(ctx, doc, "b", ModeIngest)
	assert.ErrorIs(t, err, context.Canceled)
}
