// Package summary condenses whole books with the generation model.
package summary

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/Akphawee/accessible-library/internal/llmservice"
	"github.com/Akphawee/accessible-library/internal/models"
	"github.com/Akphawee/accessible-library/internal/parser"
)

const DefaultSafeSize = 200000

// Engine condenses text of any length into something that fits one prompt.
type Engine struct {
	generator llmservice.Generator
	chunker   *parser.Chunker
	safeSize  int
}

func NewEngine(generator llmservice.Generator, profile parser.Profile, safeSize int) *Engine {
	if safeSize <= 0 {
		safeSize = DefaultSafeSize
	}
	return &Engine{
		generator: generator,
		chunker:   parser.NewChunker(profile),
		safeSize:  safeSize,
	}
}

// Condense summarizes text. Text under the safe size is summarized with a
// single call. Longer text is summarized chunk by chunk, skipping chunks
// whose call fails, and the joined chunk summaries get at most one further
// reduction pass if they are still too long. When nothing could be
// summarized the raw text, truncated to the safe size, is returned.
func (e *Engine) Condense(ctx context.Context, text, lang string) string {
	lang = models.NormalizeLanguage(lang)
	instruction := models.LanguageInstruction(lang)

	if runeLen(text) < e.safeSize {
		out, err := e.generator.Generate(ctx, fmt.Sprintf(models.ChunkSummaryPromptTemplate, instruction, text))
		if err != nil {
			log.Warn().Err(err).Msg("Direct summary failed, using raw text")
			return truncate(text, e.safeSize)
		}
		return out
	}

	chunks := e.chunker.Split(text)
	log.Info().Int("chunks", len(chunks)).Msg("Summarizing oversized text in chunks")

	var summaries []string
	for i, chunk := range chunks {
		out, err := e.generator.Generate(ctx, fmt.Sprintf(models.ChunkSummaryPromptTemplate, instruction, chunk))
		if err != nil {
			log.Warn().Err(err).Int("chunk", i).Msg("Chunk summary failed, skipping")
			continue
		}
		summaries = append(summaries, out)
	}
	if len(summaries) == 0 {
		log.Warn().Msg("No chunk summaries, using truncated raw text")
		return truncate(text, e.safeSize)
	}

	combined := strings.Join(summaries, "\n\n")
	if runeLen(combined) <= e.safeSize {
		return combined
	}

	reduced, err := e.generator.Generate(ctx, fmt.Sprintf(models.ReducePromptTemplate, instruction, combined))
	if err != nil {
		log.Warn().Err(err).Msg("Reduction pass failed, using joined chunk summaries")
		return combined
	}
	return reduced
}

func runeLen(s string) int {
	return len([]rune(s))
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
