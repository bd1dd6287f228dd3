package parser

import (
	"strings"
	"unicode"
)

// Profile sets the window size and overlap of a Chunker, both in characters.
type Profile struct {
	Size    int
	Overlap int
}

var (
	IndexingProfile      = Profile{Size: 1000, Overlap: 100}
	SummarizationProfile = Profile{Size: 200000, Overlap: 5000}
)

// Chunker splits text into overlapping windows. Windows prefer to end on a
// paragraph break, then a line break, then a sentence end, then whitespace.
// Consecutive chunks share exactly Overlap characters, so Reassemble
// rebuilds the input.
type Chunker struct {
	size     int
	overlap  int
	lookBack int
}

func NewChunker(p Profile) *Chunker {
	size := p.Size
	if size <= 0 {
		size = IndexingProfile.Size
	}
	overlap := p.Overlap
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 2
	}
	// the break search must never pull a window end back into the overlap
	lookBack := min(size/10, size-overlap-1)
	if lookBack < 0 {
		lookBack = 0
	}
	return &Chunker{size: size, overlap: overlap, lookBack: lookBack}
}

func (c *Chunker) Overlap() int { return c.overlap }

// Split returns the chunk texts of content in order.
func (c *Chunker) Split(content string) []string {
	if content == "" {
		return nil
	}
	runes := []rune(content)
	n := len(runes)
	if n <= c.size {
		return []string{content}
	}

	var chunks []string
	start := 0
	for {
		end := min(start+c.size, n)
		if end < n {
			end = c.breakPoint(runes, start, end)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end >= n {
			break
		}
		start = end - c.overlap
	}
	return chunks
}

// breakPoint finds the best window end in (end-lookBack, end].
func (c *Chunker) breakPoint(runes []rune, start, end int) int {
	floor := max(end-c.lookBack, start+c.overlap+1)

	// paragraph break
	for i := end - 1; i >= floor; i-- {
		if runes[i] == '\n' && runes[i-1] == '\n' {
			return i + 1
		}
	}
	// line break
	for i := end - 1; i >= floor; i-- {
		if runes[i] == '\n' {
			return i + 1
		}
	}
	// sentence end followed by whitespace, or a full-width stop on its own
	for i := end - 1; i >= floor; i-- {
		if isFullWidthStop(runes[i]) {
			return i + 1
		}
		if unicode.IsSpace(runes[i]) && isSentenceEnd(runes[i-1]) {
			return i + 1
		}
	}
	for i := end - 1; i >= floor; i-- {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}
	return end
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?':
		return true
	}
	return isFullWidthStop(r)
}

// CJK text puts no space after these.
func isFullWidthStop(r rune) bool {
	switch r {
	case '\u3002', '\uff01', '\uff1f':
		return true
	}
	return false
}

// Reassemble rebuilds the original content from chunks that share overlap
// characters with their predecessor.
func Reassemble(chunks []string, overlap int) string {
	var content strings.Builder
	for i, chunk := range chunks {
		if i > 0 {
			runes := []rune(chunk)
			chunk = string(runes[min(overlap, len(runes)):])
		}
		content.WriteString(chunk)
	}
	return content.String()
}
