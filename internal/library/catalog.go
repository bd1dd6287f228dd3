package library

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/dgraph-io/badger/v4"

	"github.com/Akphawee/accessible-library/internal/models"
)

const (
	bookPrefix     = "book:"
	categoryPrefix = "category:"
)

// Catalog stores books and categories. Every read-modify-write runs in a
// single badger transaction.
type Catalog struct {
	db *badger.DB
}

// OpenCatalog opens or creates the catalog under dir and makes sure the
// default category exists.
func OpenCatalog(dir string) (*Catalog, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	return openCatalog(opts)
}

// OpenInMemory opens a catalog that lives only as long as the process.
func OpenInMemory() (*Catalog, error) {
	return openCatalog(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
}

func openCatalog(opts badger.Options) (*Catalog, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	c := &Catalog{db: db}
	if err := c.EnsureDefault(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

// update retries transactions that lost a write conflict.
func (c *Catalog) update(fn func(txn *badger.Txn) error) error {
	return retry.Do(
		func() error { return c.db.Update(fn) },
		retry.Attempts(5),
		retry.Delay(5*time.Millisecond),
		retry.RetryIf(func(err error) bool { return errors.Is(err, badger.ErrConflict) }),
		retry.LastErrorOnly(true),
	)
}

// NormalizeCategoryID derives a category id from its display name.
func NormalizeCategoryID(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "-")
}

func bookKey(id string) []byte     { return []byte(bookPrefix + id) }
func categoryKey(id string) []byte { return []byte(categoryPrefix + id) }

func get(txn *badger.Txn, key []byte, out any) (bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

func put(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

// scan decodes every value under prefix.
func scan[T any](txn *badger.Txn, prefix string) ([]T, error) {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	var out []T
	p := []byte(prefix)
	for it.Seek(p); it.ValidForPrefix(p); it.Next() {
		var v T
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &v)
		}); err != nil {
			return nil, fmt.Errorf("corrupt catalog entry %s: %w", it.Item().Key(), err)
		}
		out = append(out, v)
	}
	return out, nil
}

// EnsureDefault creates the reserved default category if it is missing.
func (c *Catalog) EnsureDefault() error {
	return c.update(func(txn *badger.Txn) error {
		var existing models.Category
		found, err := get(txn, categoryKey(models.DefaultCategoryID), &existing)
		if err != nil || found {
			return err
		}
		return put(txn, categoryKey(models.DefaultCategoryID), models.Category{
			ID:   models.DefaultCategoryID,
			Name: models.DefaultCategoryName,
		})
	})
}

// AddBook registers a new book. A category that does not exist is replaced
// by the default category.
func (c *Catalog) AddBook(book models.Book) (models.Book, error) {
	if book.Category == "" {
		book.Category = models.DefaultCategoryID
	}
	if book.DisplayName == "" {
		book.DisplayName = book.ID
	}
	if book.CreatedAt.IsZero() {
		book.CreatedAt = time.Now().UTC()
	}
	book.Scanned = false

	err := c.update(func(txn *badger.Txn) error {
		var existing models.Book
		found, err := get(txn, bookKey(book.ID), &existing)
		if err != nil {
			return err
		}
		if found {
			return fmt.Errorf("%w: %s", ErrBookExists, book.ID)
		}
		var category models.Category
		found, err = get(txn, categoryKey(book.Category), &category)
		if err != nil {
			return err
		}
		if !found {
			book.Category = models.DefaultCategoryID
		}
		return put(txn, bookKey(book.ID), book)
	})
	return book, err
}

func (c *Catalog) GetBook(id string) (models.Book, error) {
	var book models.Book
	err := c.db.View(func(txn *badger.Txn) error {
		found, err := get(txn, bookKey(id), &book)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: %s", ErrBookNotFound, id)
		}
		return nil
	})
	return book, err
}

// ListBooks returns every book, oldest first.
func (c *Catalog) ListBooks() ([]models.Book, error) {
	var books []models.Book
	err := c.db.View(func(txn *badger.Txn) error {
		var err error
		books, err = scan[models.Book](txn, bookPrefix)
		return err
	})
	sort.SliceStable(books, func(i, j int) bool {
		if books[i].CreatedAt.Equal(books[j].CreatedAt) {
			return books[i].ID < books[j].ID
		}
		return books[i].CreatedAt.Before(books[j].CreatedAt)
	})
	return books, err
}

func (c *Catalog) DeleteBook(id string) error {
	return c.update(func(txn *badger.Txn) error {
		var book models.Book
		found, err := get(txn, bookKey(id), &book)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: %s", ErrBookNotFound, id)
		}
		return txn.Delete(bookKey(id))
	})
}

// modifyBook applies fn to a stored book inside one transaction.
func (c *Catalog) modifyBook(id string, fn func(txn *badger.Txn, book *models.Book) error) (models.Book, error) {
	var book models.Book
	err := c.update(func(txn *badger.Txn) error {
		found, err := get(txn, bookKey(id), &book)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: %s", ErrBookNotFound, id)
		}
		if err := fn(txn, &book); err != nil {
			return err
		}
		return put(txn, bookKey(id), book)
	})
	return book, err
}

func (c *Catalog) RenameBook(id, displayName string) (models.Book, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return models.Book{}, fmt.Errorf("%w: empty display name", ErrInvalidBookID)
	}
	return c.modifyBook(id, func(_ *badger.Txn, book *models.Book) error {
		book.DisplayName = displayName
		return nil
	})
}

// SetBookCategory moves a book to an existing category.
func (c *Catalog) SetBookCategory(id, categoryID string) (models.Book, error) {
	return c.modifyBook(id, func(txn *badger.Txn, book *models.Book) error {
		var category models.Category
		found, err := get(txn, categoryKey(categoryID), &category)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: %s", ErrCategoryNotFound, categoryID)
		}
		book.Category = categoryID
		return nil
	})
}

// AddCategory creates a category whose id is derived from name.
func (c *Catalog) AddCategory(name string) (models.Category, error) {
	name = strings.TrimSpace(name)
	category := models.Category{ID: NormalizeCategoryID(name), Name: name}
	if category.ID == "" {
		return models.Category{}, ErrInvalidCategory
	}

	err := c.update(func(txn *badger.Txn) error {
		var existing models.Category
		found, err := get(txn, categoryKey(category.ID), &existing)
		if err != nil {
			return err
		}
		if found {
			return fmt.Errorf("%w: %s", ErrCategoryExists, category.ID)
		}
		return put(txn, categoryKey(category.ID), category)
	})
	return category, err
}

// DeleteCategory removes a category and moves its books to the default
// category in the same transaction. It returns the number of moved books.
func (c *Catalog) DeleteCategory(id string) (int, error) {
	if id == models.DefaultCategoryID {
		return 0, ErrDefaultCategory
	}

	var moved int
	err := c.update(func(txn *badger.Txn) error {
		moved = 0
		var category models.Category
		found, err := get(txn, categoryKey(id), &category)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: %s", ErrCategoryNotFound, id)
		}

		books, err := scan[models.Book](txn, bookPrefix)
		if err != nil {
			return err
		}
		for _, book := range books {
			if book.Category != id {
				continue
			}
			book.Category = models.DefaultCategoryID
			if err := put(txn, bookKey(book.ID), book); err != nil {
				return err
			}
			moved++
		}
		return txn.Delete(categoryKey(id))
	})
	return moved, err
}

// ListCategories returns the default category first, then the rest by name.
func (c *Catalog) ListCategories() ([]models.Category, error) {
	var categories []models.Category
	err := c.db.View(func(txn *badger.Txn) error {
		var err error
		categories, err = scan[models.Category](txn, categoryPrefix)
		return err
	})
	sort.SliceStable(categories, func(i, j int) bool {
		if categories[i].ID == models.DefaultCategoryID {
			return categories[j].ID != models.DefaultCategoryID
		}
		if categories[j].ID == models.DefaultCategoryID {
			return false
		}
		return categories[i].Name < categories[j].Name
	})
	return categories, err
}
