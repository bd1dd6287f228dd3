package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/Akphawee/accessible-library/internal/config"
	"github.com/Akphawee/accessible-library/internal/models"
)

// Embedder turns texts into vectors. A nil vector marks a text that could not
// be embedded.
type Embedder interface {
	Embed(ctx context.Context, texts []string, mode models.EmbeddingMode) ([][]float32, error)
}

// LangchainEmbedder adapts a langchaingo embedder.
type LangchainEmbedder struct {
	impl embeddings.Embedder
}

// New creates an embedder for the configured provider (openai or ollama).
func New(cfg config.LLMConfig) (*LangchainEmbedder, error) {
	log.Debug().Interface("config", map[string]string{
		"provider":        cfg.Provider,
		"base_url":        cfg.BaseURL,
		"embedding_model": cfg.Model,
	}).Msg("Loaded embedder config")

	var client embeddings.EmbedderClient
	switch cfg.Provider {
	case "openai":
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithEmbeddingModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("error initializing openai embedder: %w", err)
		}
		client = llm
	case "ollama", "":
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		llm, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("error initializing ollama embedder: %w", err)
		}
		client = llm
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	embedder, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("error creating embedder: %w", err)
	}
	return &LangchainEmbedder{impl: embedder}, nil
}

// Embed embeds passages in one request in document mode, and each query
// separately in query mode.
func (e *LangchainEmbedder) Embed(ctx context.Context, texts []string, mode models.EmbeddingMode) ([][]float32, error) {
	if mode == models.EmbedDocument {
		return e.impl.EmbedDocuments(ctx, texts)
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.impl.EmbedQuery(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}
	return vectors, nil
}

var _ Embedder = (*LangchainEmbedder)(nil)
