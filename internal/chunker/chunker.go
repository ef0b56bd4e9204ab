package chunker

import "fmt"

const (
	// DefaultSize is the window length in characters.
	DefaultSize = 1000
	// DefaultOverlap is how many characters consecutive windows share.
	DefaultOverlap = 200
)

// Chunker splits extracted document text into overlapping fixed-size
// character windows. Windows may split words; retrieval quality is traded
// for predictable chunk counts and zero parsing cost.
type Chunker struct {
	size    int
	overlap int
}

// New creates a Chunker with the given window size and overlap.
// overlap must be smaller than size, otherwise the window would never
// advance.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("overlap must be non-negative, got %d", overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("overlap %d must be smaller than size %d", overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Default returns a Chunker with the standard 1000/200 window.
func Default() *Chunker {
	c, err := New(DefaultSize, DefaultOverlap)
	if err != nil {
		panic(err) // unreachable: constants satisfy the invariant
	}
	return c
}

// Chunk slices text into windows of c.size characters, each starting
// size-overlap after the previous one. Empty text yields no chunks.
// Chunking is a pure function: the same text always produces the same
// windows.
func (c *Chunker) Chunk(text string) []string {
	if len(text) == 0 {
		return nil
	}

	step := c.size - c.overlap
	var chunks []string
	for start := 0; start < len(text); start += step {
		end := start + c.size
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[start:end])
	}
	return chunks
}
