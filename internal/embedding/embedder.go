package embedding

// Embedder turns text into fixed-dimension vectors for similarity search.
// Implementations must be deterministic: the same text always maps to the
// same vector, across calls and across process restarts, so persisted
// vectors stay comparable with fresh query embeddings.
type Embedder interface {
	// Dimension returns the length of vectors produced by Embed.
	Dimension() int

	// Embed returns the vector for a single text. The result is
	// unit-normalized, or all zeros when the text carries no tokens.
	Embed(text string) ([]float32, error)

	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(texts []string) ([][]float32, error)
}
