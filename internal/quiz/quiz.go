// Package quiz builds multiple-choice question banks for books.
package quiz

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/Akphawee/accessible-library/internal/cache"
	"github.com/Akphawee/accessible-library/internal/llmservice"
	"github.com/Akphawee/accessible-library/internal/models"
	"github.com/Akphawee/accessible-library/internal/summary"
)

const (
	easyCount   = 20
	mediumCount = 20
	hardCount   = 10
)

var questionBankSchema = llmservice.MustCompileSchema("question_bank.json", `{
  "type": "array",
  "minItems": 1,
  "items": {
    "type": "object",
    "required": ["question", "options", "correctAnswerIndex", "difficulty"],
    "properties": {
      "question": {"type": "string", "minLength": 1},
      "options": {
        "type": "array",
        "minItems": 4,
        "maxItems": 4,
        "items": {"type": "string"}
      },
      "correctAnswerIndex": {"type": "integer", "minimum": 0, "maximum": 3},
      "difficulty": {"type": "string", "minLength": 1}
    }
  }
}`)

// Generator creates one question bank per (book, language).
type Generator struct {
	engine    *summary.Engine
	generator llmservice.Generator
	documents *cache.DocumentCache
	banks     *cache.QuestionBankCache
}

func NewGenerator(engine *summary.Engine, generator llmservice.Generator, documents *cache.DocumentCache, banks *cache.QuestionBankCache) *Generator {
	return &Generator{engine: engine, generator: generator, documents: documents, banks: banks}
}

// Exists reports whether a bank is already stored.
func (g *Generator) Exists(bookID, lang string) bool {
	return g.banks.Exists(bookID, models.NormalizeLanguage(lang))
}

// Generate builds and stores the question bank unless one already exists.
// It reports whether a new bank was written. A response that is not a valid
// question array writes nothing.
func (g *Generator) Generate(ctx context.Context, bookID, lang string) (bool, error) {
	lang = models.NormalizeLanguage(lang)
	logger := log.With().Str("book_id", bookID).Str("lang", lang).Logger()

	if g.banks.Exists(bookID, lang) {
		logger.Info().Msg("Question bank already exists")
		return false, nil
	}

	text, err := g.documents.Read(bookID)
	if err != nil {
		return false, fmt.Errorf("no text for %s: %w", bookID, err)
	}

	condensed := g.engine.Condense(ctx, text, lang)
	logger.Info().Int("chars", len([]rune(condensed))).Msg("Generating question bank")

	raw, err := g.generator.Generate(ctx, Prompt(condensed, lang))
	if err != nil {
		return false, fmt.Errorf("failed to generate question bank: %w", err)
	}

	var questions []models.Question
	if err := llmservice.DecodeJSON(raw, questionBankSchema, &questions); err != nil {
		logger.Error().Err(err).Msg("Invalid question bank from model")
		return false, err
	}
	if len(questions) != models.QuestionBankSize {
		logger.Warn().Int("questions", len(questions)).Msg("Question bank size differs from request")
	}

	if err := g.banks.Save(bookID, lang, questions); err != nil {
		return false, fmt.Errorf("failed to store question bank: %w", err)
	}
	logger.Info().Int("questions", len(questions)).Msg("Question bank saved")
	return true, nil
}

// Load returns a stored question bank.
func (g *Generator) Load(bookID, lang string) ([]models.Question, error) {
	return g.banks.Load(bookID, models.NormalizeLanguage(lang))
}

// Prompt renders the question bank request for a condensed book.
func Prompt(condensed, lang string) string {
	var instruction string
	if models.IsThai(lang) {
		instruction = "The questions, options and difficulty labels must be in Thai (ภาษาไทย)."
	} else {
		instruction = fmt.Sprintf("The questions, options and difficulty labels must be in %s.", models.LanguageName(lang))
	}
	return fmt.Sprintf(models.QuestionBankPromptTemplate,
		models.QuestionBankSize, easyCount, mediumCount, hardCount, instruction, condensed)
}
