package cache

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/Akphawee/accessible-library/internal/models"
)

// langStore keeps one file per (book, language) under <root>/<book>/.
type langStore struct {
	root string
	ext  string
}

func (s langStore) path(bookID, lang string) (string, error) {
	if err := CheckKey(bookID); err != nil {
		return "", err
	}
	if err := CheckKey(lang); err != nil {
		return "", err
	}
	return filepath.Join(s.root, bookID, lang+s.ext), nil
}

func (s langStore) read(bookID, lang string) ([]byte, error) {
	p, err := s.path(bookID, lang)
	if err != nil {
		return nil, err
	}
	return readFile(p)
}

func (s langStore) write(bookID, lang string, data []byte) error {
	p, err := s.path(bookID, lang)
	if err != nil {
		return err
	}
	return writeFileAtomic(p, data)
}

func (s langStore) exists(bookID, lang string) bool {
	p, err := s.path(bookID, lang)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

func (s langStore) deleteBook(bookID string) error {
	if err := CheckKey(bookID); err != nil {
		return err
	}
	return removeAll(filepath.Join(s.root, bookID))
}

// SummaryCache stores generated summaries per book and language.
type SummaryCache struct {
	store langStore
}

func NewSummaryCache(root string) *SummaryCache {
	return &SummaryCache{store: langStore{root: root, ext: ".txt"}}
}

func (c *SummaryCache) Get(bookID, lang string) (string, error) {
	data, err := c.store.read(bookID, lang)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (c *SummaryCache) Put(bookID, lang, summary string) error {
	return c.store.write(bookID, lang, []byte(summary))
}

// DeleteBook drops the summaries of every language.
func (c *SummaryCache) DeleteBook(bookID string) error {
	return c.store.deleteBook(bookID)
}

// QuestionBankCache stores generated question banks per book and language.
type QuestionBankCache struct {
	store langStore
}

func NewQuestionBankCache(root string) *QuestionBankCache {
	return &QuestionBankCache{store: langStore{root: root, ext: ".json"}}
}

func (c *QuestionBankCache) Exists(bookID, lang string) bool {
	return c.store.exists(bookID, lang)
}

func (c *QuestionBankCache) Load(bookID, lang string) ([]models.Question, error) {
	data, err := c.store.read(bookID, lang)
	if err != nil {
		return nil, err
	}
	var questions []models.Question
	if err := json.Unmarshal(data, &questions); err != nil {
		return nil, err
	}
	return questions, nil
}

func (c *QuestionBankCache) Save(bookID, lang string, questions []models.Question) error {
	data, err := marshalIndent(questions)
	if err != nil {
		return err
	}
	return c.store.write(bookID, lang, data)
}

func (c *QuestionBankCache) DeleteBook(bookID string) error {
	return c.store.deleteBook(bookID)
}

func marshalIndent(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
