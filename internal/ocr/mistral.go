package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog/log"
)

const (
	MistralBaseURL = "https://api.mistral.ai/v1"
	MistralModel   = "mistral-ocr-latest"
)

type MistralConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	RetryDelay time.Duration
}

// MistralClient recognizes the text of single PDF pages with the Mistral OCR API.
type MistralClient struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client

	attempts   uint
	retryDelay time.Duration

	extractPage func(path string, page int) ([]byte, error)
}

func NewMistralClient(cfg MistralConfig) *MistralClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = MistralBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = MistralModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 3100 * time.Millisecond
	}
	return &MistralClient{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.Timeout},

		attempts:   3,
		retryDelay: cfg.RetryDelay,

		extractPage: ExtractPage,
	}
}

// Recognize uploads one page of the PDF at path and returns its text.
// Rate limiting and server errors are retried; other API errors are not.
func (c *MistralClient) Recognize(ctx context.Context, path string, page int) (string, error) {
	pdfPage, err := c.extractPage(path, page)
	if err != nil {
		return "", err
	}
	document := "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(pdfPage)

	text, err := retry.DoWithData(
		func() (string, error) { return c.recognize(ctx, document) },
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.RetryIf(isTemporary),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Debug().Err(err).Str("path", path).Int("page", page).Uint("attempt", n+1).Msg("Retrying OCR")
		}),
	)
	if err != nil {
		return "", err
	}
	log.Debug().Str("path", path).Int("page", page).Int("chars", len(text)).Msg("OCR page recognized")
	return text, nil
}

// recognize sends one OCR request and joins the markdown of the returned pages.
func (c *MistralClient) recognize(ctx context.Context, document string) (string, error) {
	body, err := json.Marshal(mistralOCRRequest{
		Model:    c.model,
		Document: mistralDocument{Type: "document_url", DocumentURL: document},
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ocr", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("mistral OCR request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", newAPIError(resp)
	}

	var out mistralOCRResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("mistral OCR response: %w", err)
	}
	if len(out.Pages) == 0 {
		return "", errNoPages
	}
	texts := make([]string, len(out.Pages))
	for i, p := range out.Pages {
		texts[i] = p.Markdown
	}
	return strings.Join(texts, "\n\n"), nil
}

var errNoPages = errors.New("no pages in OCR response")

// APIError is a non-200 answer from the OCR API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mistral OCR error (status %d): %s", e.StatusCode, e.Message)
}

func newAPIError(resp *http.Response) *APIError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	var body mistralErrorResponse
	if json.Unmarshal(raw, &body) == nil && body.Error.Message != "" {
		apiErr.Message = body.Error.Message
	}
	return apiErr
}

func isTemporary(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
}

// ExtractPage returns a standalone single-page PDF holding page of the file at path.
func ExtractPage(path string, page int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	var buf bytes.Buffer
	if err := api.Trim(f, &buf, []string{strconv.Itoa(page)}, conf); err != nil {
		return nil, fmt.Errorf("failed to extract page %d: %w", page, err)
	}
	return buf.Bytes(), nil
}

type mistralOCRRequest struct {
	Model    string          `json:"model"`
	Document mistralDocument `json:"document"`
	Pages    []int           `json:"pages,omitempty"`
}

type mistralDocument struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url,omitempty"`
}

type mistralOCRResponse struct {
	Model string           `json:"model"`
	Pages []mistralOCRPage `json:"pages"`
}

type mistralOCRPage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

type mistralErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}
