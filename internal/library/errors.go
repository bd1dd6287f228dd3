package library

import "errors"

var (
	ErrBookExists       = errors.New("book already exists")
	ErrBookNotFound     = errors.New("book not found")
	ErrSourceMissing    = errors.New("source file for book is missing")
	ErrNotScannable     = errors.New("only PDF sources can be scanned")
	ErrInvalidBookID    = errors.New("invalid book id")
	ErrCategoryExists   = errors.New("category already exists")
	ErrCategoryNotFound = errors.New("category not found")
	ErrInvalidCategory  = errors.New("invalid category name")
	ErrDefaultCategory  = errors.New("the default category cannot be deleted")
)
