package llmservice

import (
	"context"
	"strings"

	anthropicclient "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"

	"github.com/Akphawee/accessible-library/internal/config"
)

const (
	defaultAnthropicModel = "claude-haiku-4-5-20251001"
	anthropicMaxTokens    = 16000
)

// AnthropicGenerator generates with the Anthropic Messages API.
type AnthropicGenerator struct {
	client anthropicclient.Client
	model  string
}

func NewAnthropicGenerator(cfg config.LLMConfig) *AnthropicGenerator {
	opts := []anthropicoption.RequestOption{
		anthropicoption.WithAPIKey(cfg.Key),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anthropicoption.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")))
	}
	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	return &AnthropicGenerator{
		client: anthropicclient.NewClient(opts...),
		model:  model,
	}
}

func (g *AnthropicGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	msg, err := g.client.Messages.New(ctx, anthropicclient.MessageNewParams{
		Model:     anthropicclient.Model(g.model),
		MaxTokens: anthropicMaxTokens,
		Messages: []anthropicclient.MessageParam{
			anthropicclient.NewUserMessage(anthropicclient.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", err
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return text.String(), nil
}

var _ Generator = (*AnthropicGenerator)(nil)
