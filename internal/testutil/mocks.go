// Package testutil provides configurable fakes of the external capabilities
// for package tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Akphawee/accessible-library/internal/models"
)

var ErrMock = errors.New("mock failure")

// MockDocument is an in-memory source document. Pages listed in Broken
// return an error from PageText.
type MockDocument struct {
	FilePath string
	Pages    []string
	Broken   map[int]bool
}

func (d *MockDocument) Path() string  { return d.FilePath }
func (d *MockDocument) NumPages() int { return len(d.Pages) }
func (d *MockDocument) Close() error  { return nil }

func (d *MockDocument) PageText(page int) (string, error) {
	if page < 1 || page > len(d.Pages) {
		return "", fmt.Errorf("page %d out of range", page)
	}
	if d.Broken[page] {
		return "", ErrMock
	}
	return d.Pages[page-1], nil
}

// MockOCR returns Texts[page] for each page, or an error for pages in Fail.
type MockOCR struct {
	Texts map[int]string
	Fail  map[int]bool

	mu    sync.Mutex
	calls []int
}

func (o *MockOCR) Recognize(ctx context.Context, path string, page int) (string, error) {
	o.mu.Lock()
	o.calls = append(o.calls, page)
	o.mu.Unlock()

	if o.Fail[page] {
		return "", ErrMock
	}
	if text, ok := o.Texts[page]; ok {
		return text, nil
	}
	return fmt.Sprintf("ocr text of page %d", page), nil
}

// Calls returns the pages recognized so far, in call order.
func (o *MockOCR) Calls() []int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]int(nil), o.calls...)
}

// MockGenerator answers prompts with Respond, or with Response when Respond is nil.
type MockGenerator struct {
	Respond  func(prompt string) (string, error)
	Response string

	mu      sync.Mutex
	prompts []string
}

func (g *MockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()

	if g.Respond != nil {
		return g.Respond(prompt)
	}
	return g.Response, nil
}

func (g *MockGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

func (g *MockGenerator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}

// MockEmbedder maps text to a deterministic vector. A batch containing any
// text with FailOn as a substring fails as a whole; texts containing
// NilOn get a nil vector. OnDocument, when set, runs before every
// document-mode call.
type MockEmbedder struct {
	Dimensions int
	FailOn     string
	NilOn      string
	Err        error
	OnDocument func()

	calls atomic.Int64
	modes sync.Map
}

func (e *MockEmbedder) Embed(ctx context.Context, texts []string, mode models.EmbeddingMode) ([][]float32, error) {
	e.calls.Add(1)
	e.modes.Store(mode, true)
	if mode == models.EmbedDocument && e.OnDocument != nil {
		e.OnDocument()
	}

	if e.Err != nil {
		return nil, e.Err
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if e.FailOn != "" && strings.Contains(text, e.FailOn) {
			return nil, ErrMock
		}
		if e.NilOn != "" && strings.Contains(text, e.NilOn) {
			continue
		}
		vectors[i] = Vector(text, e.dims())
	}
	return vectors, nil
}

func (e *MockEmbedder) dims() int {
	if e.Dimensions <= 0 {
		return 8
	}
	return e.Dimensions
}

func (e *MockEmbedder) Calls() int { return int(e.calls.Load()) }

// UsedMode reports whether Embed was called with mode.
func (e *MockEmbedder) UsedMode(mode models.EmbeddingMode) bool {
	_, ok := e.modes.Load(mode)
	return ok
}

// Vector builds a bag-of-letters vector, so texts sharing words end up close.
func Vector(text string, dims int) []float32 {
	v := make([]float32, dims)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			v[int(r-'a')%dims]++
		}
	}
	v[dims-1] += 0.5
	return v
}

// CountingLimiter never blocks and counts waits.
type CountingLimiter struct {
	waits atomic.Int64
}

func (l *CountingLimiter) Wait(ctx context.Context) error {
	l.waits.Add(1)
	return ctx.Err()
}

func (l *CountingLimiter) Waits() int { return int(l.waits.Load()) }
