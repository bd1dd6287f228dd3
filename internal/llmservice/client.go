package llmservice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/Akphawee/accessible-library/internal/config"
)

var ErrEmptyResponse = errors.New("model returned no content")

// Generator turns a prompt into text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// New creates a generator for the configured provider.
func New(cfg config.LLMConfig) (Generator, error) {
	log.Debug().Str("provider", cfg.Provider).Str("model", cfg.Model).Msg("Creating generator")
	switch cfg.Provider {
	case "anthropic":
		return NewAnthropicGenerator(cfg), nil
	case "openai", "ollama", "":
		llm, err := newLangchainModel(cfg)
		if err != nil {
			return nil, err
		}
		return &LangchainGenerator{llm: llm}, nil
	default:
		return nil, fmt.Errorf("unknown inference provider %q", cfg.Provider)
	}
}

func newLangchainModel(cfg config.LLMConfig) (llms.Model, error) {
	if cfg.Provider == "ollama" {
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		return ollama.New(opts...)
	}

	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	return openai.New(opts...)
}

// LangchainGenerator generates with any langchaingo chat model.
type LangchainGenerator struct {
	llm llms.Model
}

func NewLangchainGenerator(llm llms.Model) *LangchainGenerator {
	return &LangchainGenerator{llm: llm}
}

func (g *LangchainGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	msgContent := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextContent{Text: prompt}},
		},
	}

	res, err := g.llm.GenerateContent(ctx, msgContent)
	if err != nil {
		return "", err
	}
	if len(res.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return StripThinking(res.Choices[0].Content), nil
}

var _ Generator = (*LangchainGenerator)(nil)
