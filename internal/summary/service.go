package summary

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/Akphawee/accessible-library/internal/cache"
	"github.com/Akphawee/accessible-library/internal/llmservice"
	"github.com/Akphawee/accessible-library/internal/models"
)

// Service produces and caches a short summary of a book per language.
type Service struct {
	engine    *Engine
	generator llmservice.Generator
	documents *cache.DocumentCache
	summaries *cache.SummaryCache
}

func NewService(engine *Engine, generator llmservice.Generator, documents *cache.DocumentCache, summaries *cache.SummaryCache) *Service {
	return &Service{engine: engine, generator: generator, documents: documents, summaries: summaries}
}

// Cached returns a previously generated summary, or cache.ErrNotFound.
func (s *Service) Cached(bookID, lang string) (string, error) {
	return s.summaries.Get(bookID, models.NormalizeLanguage(lang))
}

// Summary returns the cached summary or generates one from the book's full text.
func (s *Service) Summary(ctx context.Context, bookID, lang string) (string, error) {
	lang = models.NormalizeLanguage(lang)
	logger := log.With().Str("book_id", bookID).Str("lang", lang).Logger()

	cached, err := s.summaries.Get(bookID, lang)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		return "", err
	}

	text, err := s.documents.Read(bookID)
	if err != nil {
		return "", fmt.Errorf("no text for %s: %w", bookID, err)
	}

	condensed := s.engine.Condense(ctx, text, lang)
	final, err := s.generator.Generate(ctx, fmt.Sprintf(models.FinalSummaryPromptTemplate, models.LanguageInstruction(lang), condensed))
	if err != nil {
		return "", fmt.Errorf("failed to generate summary: %w", err)
	}

	if err := s.summaries.Put(bookID, lang, final); err != nil {
		return "", fmt.Errorf("failed to cache summary: %w", err)
	}
	logger.Info().Int("chars", len(final)).Msg("Summary generated")
	return final, nil
}
