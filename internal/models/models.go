package models

import "time"

// DefaultCategoryID is the reserved category every book falls back to.
const (
	DefaultCategoryID   = "uncategorized"
	DefaultCategoryName = "Uncategorized"
)

// Book is a catalog entry. Scanned is derived at read time from the absence
// of the uploaded source file and is never persisted.
type Book struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Category    string    `json:"category"`
	CreatedAt   time.Time `json:"created_at"`
	Scanned     bool      `json:"is_scanned"`
}

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Answer is the dual-rendering response to a question.
type Answer struct {
	Structured string `json:"structured"`
	Speech     string `json:"speech"`
}

// Question is one multiple-choice item of a question bank.
type Question struct {
	Question           string   `json:"question"`
	Options            []string `json:"options"`
	CorrectAnswerIndex int      `json:"correctAnswerIndex"`
	Difficulty         string   `json:"difficulty"`
}

// EmbeddingMode tells an embedding model whether it embeds stored passages or a search query.
type EmbeddingMode int

const (
	EmbedDocument EmbeddingMode = iota
	EmbedQuery
)

func (m EmbeddingMode) String() string {
	if m == EmbedQuery {
		return "query"
	}
	return "document"
}
