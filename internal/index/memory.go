package index

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
)

// Memory is a process-local VectorIndex ranking by cosine similarity.
type Memory struct {
	mu    sync.RWMutex
	books map[string][]Entry
}

func NewMemory() *Memory {
	return &Memory{books: make(map[string][]Entry)}
}

func (m *Memory) UpsertForBook(_ context.Context, bookID string, entries []Entry) error {
	stored := make([]Entry, 0, len(entries))
	for _, e := range entries {
		e.BookID = bookID
		e.Vector = append([]float32(nil), e.Vector...)
		stored = append(stored, e)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(stored) == 0 {
		delete(m.books, bookID)
		return nil
	}
	m.books[bookID] = stored
	return nil
}

func (m *Memory) Query(_ context.Context, bookID string, vector []float32, topN int) ([]string, error) {
	if len(vector) == 0 {
		return nil, errors.New("empty query vector")
	}
	if topN <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	entries := m.books[bookID]
	type scored struct {
		text  string
		score float64
	}
	results := make([]scored, 0, len(entries))
	for _, e := range entries {
		results = append(results, scored{text: e.Text, score: cosine(vector, e.Vector)})
	}
	m.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool { return results[i].score > results[j].score })
	if len(results) > topN {
		results = results[:topN]
	}
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.text
	}
	return texts, nil
}

func (m *Memory) DeleteForBook(_ context.Context, bookID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.books, bookID)
	return nil
}

// Len returns the number of entries stored for bookID.
func (m *Memory) Len(bookID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.books[bookID])
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return -1
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

var _ VectorIndex = (*Memory)(nil)
