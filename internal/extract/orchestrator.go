package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/Akphawee/accessible-library/internal/cache"
	"github.com/Akphawee/accessible-library/internal/parser"
	"github.com/Akphawee/accessible-library/internal/ratelimit"
)

// Mode selects how page text is resolved.
type Mode int

const (
	// ModeIngest uses native text, falling back to OCR for corrupted pages.
	ModeIngest Mode = iota
	// ModeFullScan OCRs every page.
	ModeFullScan
)

func (m Mode) String() string {
	if m == ModeFullScan {
		return "full-scan"
	}
	return "ingest"
}

// OCR recognizes the text of one page of a source document.
type OCR interface {
	Recognize(ctx context.Context, path string, page int) (string, error)
}

// PageStore receives each resolved page as soon as it is known.
type PageStore interface {
	Write(bookID string, page int, text string) error
	Truncate(bookID string, n int) error
}

var errNoOCR = errors.New("no OCR provider configured")

// Result is the outcome of extracting a whole document.
type Result struct {
	Pages       []string
	OCRCalls    int
	OCRFailures int
}

// Text joins the resolved pages into the document's full text.
func (r *Result) Text() string {
	return cache.JoinPages(r.Pages)
}

// Orchestrator resolves the text of every page of a document in order.
type Orchestrator struct {
	ocr     OCR
	limiter ratelimit.Limiter
	pages   PageStore
}

func NewOrchestrator(ocr OCR, limiter ratelimit.Limiter, pages PageStore) *Orchestrator {
	if limiter == nil {
		limiter = ratelimit.Unlimited()
	}
	return &Orchestrator{ocr: ocr, limiter: limiter, pages: pages}
}

// Extract resolves each page and writes it to the page store before moving
// on. A failed OCR call leaves that page empty; a failed page write aborts.
func (o *Orchestrator) Extract(ctx context.Context, doc parser.Document, bookID string, mode Mode) (*Result, error) {
	total := doc.NumPages()
	logger := log.With().Str("book_id", bookID).Str("mode", mode.String()).Logger()
	logger.Info().Int("pages", total).Msg("Extracting pages")

	result := &Result{Pages: make([]string, 0, total)}
	for page := 1; page <= total; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var text string
		if mode == ModeFullScan {
			text = o.recognize(ctx, doc.Path(), bookID, page, result)
		} else {
			native, err := doc.PageText(page)
			switch {
			case err != nil:
				logger.Warn().Err(err).Int("page", page).Msg("Native text unavailable, using OCR")
				text = o.recognize(ctx, doc.Path(), bookID, page, result)
			case IsCorrupted(native):
				logger.Debug().Int("page", page).Msg("Native text corrupted, using OCR")
				text = o.recognize(ctx, doc.Path(), bookID, page, result)
			default:
				text = native
			}
		}

		if err := o.pages.Write(bookID, page, text); err != nil {
			return nil, fmt.Errorf("failed to cache page %d: %w", page, err)
		}
		result.Pages = append(result.Pages, text)
	}

	// a re-ingested document may have fewer pages than before
	if err := o.pages.Truncate(bookID, total); err != nil {
		return nil, fmt.Errorf("failed to trim page cache: %w", err)
	}

	logger.Info().
		Int("pages", total).
		Int("ocr_calls", result.OCRCalls).
		Int("ocr_failures", result.OCRFailures).
		Msg("Extraction complete")
	return result, nil
}

// recognize OCRs one page. Failures are logged and resolve to empty text.
func (o *Orchestrator) recognize(ctx context.Context, path, bookID string, page int, result *Result) string {
	if err := o.limiter.Wait(ctx); err != nil {
		result.OCRFailures++
		log.Warn().Err(err).Str("book_id", bookID).Int("page", page).Msg("OCR skipped")
		return ""
	}
	result.OCRCalls++

	if o.ocr == nil {
		result.OCRFailures++
		log.Warn().Err(errNoOCR).Str("book_id", bookID).Int("page", page).Msg("OCR failed")
		return ""
	}
	text, err := o.ocr.Recognize(ctx, path, page)
	if err != nil {
		result.OCRFailures++
		log.Warn().Err(err).Str("book_id", bookID).Int("page", page).Msg("OCR failed")
		return ""
	}
	return text
}
