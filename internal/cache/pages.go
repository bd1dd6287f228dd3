package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// PageCache stores the resolved text of each page at <root>/<book>/page_<n>.txt.
type PageCache struct {
	root string
}

func NewPageCache(root string) *PageCache {
	return &PageCache{root: root}
}

func (c *PageCache) pagePath(bookID string, page int) string {
	return filepath.Join(c.root, bookID, fmt.Sprintf("page_%d.txt", page))
}

// Write stores the text of a 1-based page, replacing any previous text.
func (c *PageCache) Write(bookID string, page int, text string) error {
	if err := CheckKey(bookID); err != nil {
		return err
	}
	if page < 1 {
		return fmt.Errorf("invalid page %d", page)
	}
	return writeFileAtomic(c.pagePath(bookID, page), []byte(text))
}

func (c *PageCache) Read(bookID string, page int) (string, error) {
	if err := CheckKey(bookID); err != nil {
		return "", err
	}
	data, err := readFile(c.pagePath(bookID, page))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// pages lists the cached page numbers of a book in ascending order.
func (c *PageCache) pages(bookID string) ([]int, error) {
	if err := CheckKey(bookID); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(c.root, bookID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var nums []int
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "page_") || !strings.HasSuffix(name, ".txt") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "page_"), ".txt"))
		if err != nil || n < 1 {
			continue
		}
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums, nil
}

// Count returns the number of cached pages.
func (c *PageCache) Count(bookID string) (int, error) {
	nums, err := c.pages(bookID)
	return len(nums), err
}

// Truncate removes every page after n.
func (c *PageCache) Truncate(bookID string, n int) error {
	nums, err := c.pages(bookID)
	if err != nil {
		return err
	}
	for _, p := range nums {
		if p <= n {
			continue
		}
		if err := os.Remove(c.pagePath(bookID, p)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// ReadAll returns every cached page in order.
func (c *PageCache) ReadAll(bookID string) ([]string, error) {
	nums, err := c.pages(bookID)
	if err != nil {
		return nil, err
	}
	if len(nums) == 0 {
		return nil, ErrNotFound
	}
	pages := make([]string, 0, len(nums))
	for _, p := range nums {
		text, err := c.Read(bookID, p)
		if err != nil {
			return nil, err
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// Page returns the text of one page along with the total page count, for
// reading a book page by page.
func (c *PageCache) Page(bookID string, page int) (string, int, error) {
	total, err := c.Count(bookID)
	if err != nil {
		return "", 0, err
	}
	if total == 0 {
		return "", 0, ErrNotFound
	}
	if page < 1 || page > total {
		return "", total, fmt.Errorf("page %d of %d: %w", page, total, ErrNotFound)
	}
	text, err := c.Read(bookID, page)
	return text, total, err
}

func (c *PageCache) DeleteBook(bookID string) error {
	if err := CheckKey(bookID); err != nil {
		return err
	}
	return removeAll(filepath.Join(c.root, bookID))
}
