// Package speech turns answers into audio.
package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/rs/zerolog/log"

	"github.com/Akphawee/accessible-library/internal/config"
	"github.com/Akphawee/accessible-library/internal/models"
)

var ErrEmptyText = errors.New("nothing to synthesize")

const (
	defaultModel   = "tts-1"
	defaultVoice   = "nova"
	defaultTimeout = 120 * time.Second
)

// Synthesizer renders text as audio in the given language.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, languageCode string) ([]byte, error)
}

// OpenAISynthesizer produces mp3 audio with the OpenAI speech endpoint.
type OpenAISynthesizer struct {
	client openai.Client
	model  string
	voice  string
}

func NewOpenAISynthesizer(cfg config.TTSConfig) *OpenAISynthesizer {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Voice == "" {
		cfg.Voice = defaultVoice
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.Key),
		option.WithHTTPClient(&http.Client{Timeout: defaultTimeout}),
		option.WithMaxRetries(2),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAISynthesizer{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		voice:  cfg.Voice,
	}
}

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text, languageCode string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}

	params := openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(s.model),
		Voice:          openai.AudioSpeechNewParamsVoice(s.voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	}
	// only the instruction-following models accept a language hint
	if strings.HasPrefix(strings.ToLower(s.model), "gpt-4o-mini-tts") {
		params.Instructions = openai.String(fmt.Sprintf("Speak naturally in %s.", models.LanguageName(languageCode)))
	}

	resp, err := s.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("speech request failed: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed reading speech response: %w", err)
	}
	log.Debug().Str("lang", languageCode).Int("chars", len(text)).Int("bytes", len(audio)).Msg("Speech synthesized")
	return audio, nil
}

var _ Synthesizer = (*OpenAISynthesizer)(nil)
