package cache

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/Akphawee/accessible-library/internal/models"
)

// DocumentCache stores the full text of each book at <root>/<book>.txt.
type DocumentCache struct {
	root string
}

func NewDocumentCache(root string) *DocumentCache {
	return &DocumentCache{root: root}
}

// JoinPages builds a book's full text from its pages.
func JoinPages(pages []string) string {
	return strings.Join(pages, models.PageSeparator)
}

func (c *DocumentCache) path(bookID string) string {
	return filepath.Join(c.root, bookID+".txt")
}

func (c *DocumentCache) Write(bookID, text string) error {
	if err := CheckKey(bookID); err != nil {
		return err
	}
	return writeFileAtomic(c.path(bookID), []byte(text))
}

func (c *DocumentCache) Read(bookID string) (string, error) {
	if err := CheckKey(bookID); err != nil {
		return "", err
	}
	data, err := readFile(c.path(bookID))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (c *DocumentCache) Exists(bookID string) bool {
	if CheckKey(bookID) != nil {
		return false
	}
	_, err := os.Stat(c.path(bookID))
	return err == nil
}

func (c *DocumentCache) Delete(bookID string) error {
	if err := CheckKey(bookID); err != nil {
		return err
	}
	return removeAll(c.path(bookID))
}
