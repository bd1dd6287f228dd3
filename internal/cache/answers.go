package cache

import (
	"context"
	"sync"

	"github.com/Akphawee/accessible-library/internal/models"
)

// AnswerCache remembers generated answers keyed by (language, book, query).
type AnswerCache interface {
	Get(ctx context.Context, lang, bookID, query string) (models.Answer, bool, error)
	Set(ctx context.Context, lang, bookID, query string, answer models.Answer) error
	DeleteBook(ctx context.Context, bookID string) error
}

// answerField is the per-book key of a cached answer.
func answerField(lang, query string) string {
	return lang + "::" + query
}

// MemoryAnswerCache is a process-local AnswerCache.
type MemoryAnswerCache struct {
	mu    sync.RWMutex
	books map[string]map[string]models.Answer
}

func NewMemoryAnswerCache() *MemoryAnswerCache {
	return &MemoryAnswerCache{books: make(map[string]map[string]models.Answer)}
}

func (c *MemoryAnswerCache) Get(_ context.Context, lang, bookID, query string) (models.Answer, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.books[bookID][answerField(lang, query)]
	return a, ok, nil
}

func (c *MemoryAnswerCache) Set(_ context.Context, lang, bookID, query string, answer models.Answer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	book, ok := c.books[bookID]
	if !ok {
		book = make(map[string]models.Answer)
		c.books[bookID] = book
	}
	book[answerField(lang, query)] = answer
	return nil
}

func (c *MemoryAnswerCache) DeleteBook(_ context.Context, bookID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.books, bookID)
	return nil
}

var _ AnswerCache = (*MemoryAnswerCache)(nil)
