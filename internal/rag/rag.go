package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/Akphawee/accessible-library/internal/cache"
	"github.com/Akphawee/accessible-library/internal/llmservice"
	"github.com/Akphawee/accessible-library/internal/models"
)

var answerSchema = llmservice.MustCompileSchema("answer.json", `{
  "type": "object",
  "required": ["structured", "speech"],
  "additionalProperties": false,
  "properties": {
    "structured": {"type": "string", "minLength": 1},
    "speech": {"type": "string", "minLength": 1}
  }
}`)

// Question is a user's question about one book.
type Question struct {
	BookID string
	Query  string
	Lang   string
}

// Composer answers questions from retrieved book context.
type Composer struct {
	retriever *Retriever
	generator llmservice.Generator
	answers   cache.AnswerCache
}

func NewComposer(retriever *Retriever, generator llmservice.Generator, answers cache.AnswerCache) *Composer {
	if answers == nil {
		answers = cache.NewMemoryAnswerCache()
	}
	return &Composer{retriever: retriever, generator: generator, answers: answers}
}

// Answer returns a cached answer when one exists. With no retrievable
// context it returns the fixed fallback answer without calling the model.
// Otherwise it generates, validates and caches a new answer.
func (c *Composer) Answer(ctx context.Context, q Question) (models.Answer, error) {
	q.Lang = models.NormalizeLanguage(q.Lang)
	logger := log.With().Str("book_id", q.BookID).Str("lang", q.Lang).Logger()

	cached, ok, err := c.answers.Get(ctx, q.Lang, q.BookID, q.Query)
	if err != nil {
		logger.Warn().Err(err).Msg("Answer cache lookup failed")
	} else if ok {
		logger.Debug().Msg("Answer cache hit")
		return cached, nil
	}

	chunks := c.retriever.Retrieve(ctx, q.BookID, q.Query)
	if len(chunks) == 0 {
		logger.Info().Msg("No context found, using fallback answer")
		return models.FallbackAnswer(q.Lang), nil
	}

	raw, err := c.generator.Generate(ctx, BuildPrompt(q.Query, chunks, q.Lang))
	if err != nil {
		return models.Answer{}, fmt.Errorf("failed to generate answer: %w", err)
	}

	var answer models.Answer
	if err := llmservice.DecodeJSON(raw, answerSchema, &answer); err != nil {
		logger.Error().Err(err).Str("raw", raw).Msg("Invalid answer from model")
		return models.Answer{}, err
	}

	if err := c.answers.Set(ctx, q.Lang, q.BookID, q.Query, answer); err != nil {
		logger.Warn().Err(err).Msg("Failed to cache answer")
	}
	return answer, nil
}

// BuildPrompt renders the answer prompt for the chunks in retrieval order.
func BuildPrompt(query string, chunks []string, lang string) string {
	excerpts := strings.Join(chunks, models.ContextSeparator)
	if models.IsThai(lang) {
		return fmt.Sprintf(models.ThaiAnswerPromptTemplate, excerpts, query)
	}
	return fmt.Sprintf(models.AnswerPromptTemplate, models.LanguageInstruction(lang), excerpts, query)
}
