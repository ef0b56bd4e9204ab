package embedding

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"
)

// DefaultDimension matches the 384-wide vectors the store persists.
const DefaultDimension = 384

// HashEmbedder produces embeddings by hashed random projection: every token
// is mapped to a pseudo-random unit direction derived from its SHA-256
// digest, token directions are summed weighted by term frequency, and the
// sum is L2-normalized. The embedder carries no corpus state, so vectors
// are reproducible across restarts without refitting.
//
// Embedding quality is deliberately modest; determinism, fixed dimension
// and unit norm are the properties retrieval depends on.
type HashEmbedder struct {
	dim          int
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// NewHashEmbedder creates a HashEmbedder with the given dimension.
// A dimension <= 0 selects DefaultDimension.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &HashEmbedder{
		dim:          dim,
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`),
		stopwords:    defaultStopwords(),
	}
}

// Dimension returns the vector length.
func (e *HashEmbedder) Dimension() int { return e.dim }

// Embed returns the unit-normalized vector for text, or the all-zero
// vector when tokenization yields nothing.
func (e *HashEmbedder) Embed(text string) ([]float32, error) {
	vec := make([]float64, e.dim)

	tf := make(map[string]int)
	for _, tok := range e.tokenize(text) {
		tf[tok]++
	}
	if len(tf) == 0 {
		return make([]float32, e.dim), nil
	}

	for tok, count := range tf {
		// Dampen high-frequency terms so one repeated word cannot
		// dominate the direction.
		weight := 1 + math.Log(float64(count))
		addTokenDirection(vec, tok, weight)
	}

	return normalize(vec), nil
}

// EmbedBatch embeds texts concurrently, preserving input order.
// Returns nil for empty input.
func (e *HashEmbedder) EmbedBatch(texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	results := make([][]float32, len(texts))
	var g errgroup.Group
	g.SetLimit(4) // Bound concurrency; embedding is CPU-only.

	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			vec, err := e.Embed(text)
			if err != nil {
				return err
			}
			results[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *HashEmbedder) tokenize(text string) []string {
	lower := strings.ToLower(text)
	raw := e.tokenPattern.FindAllString(lower, -1)
	if len(raw) == 0 {
		return nil
	}
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := e.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

// addTokenDirection accumulates the token's pseudo-random direction into
// vec. Components come from SHA-256(token || blockIndex), eight float32s
// per digest, mapped uniformly into [-1, 1).
func addTokenDirection(vec []float64, token string, weight float64) {
	dim := len(vec)
	seed := sha256.Sum256([]byte(token))

	var block [sha256.Size + 4]byte
	copy(block[:], seed[:])

	for i := 0; i < dim; {
		binary.LittleEndian.PutUint32(block[sha256.Size:], uint32(i/8))
		digest := sha256.Sum256(block[:])
		for j := 0; j+4 <= len(digest) && i < dim; j += 4 {
			u := binary.LittleEndian.Uint32(digest[j:])
			component := float64(u)/float64(math.MaxUint32)*2 - 1
			vec[i] += weight * component
			i++
		}
	}
}

func normalize(vec []float64) []float32 {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	norm := math.Sqrt(sum)

	out := make([]float32, len(vec))
	if norm == 0 {
		return out
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for",
		"to", "of", "in", "on", "at", "by", "with", "as", "is", "are",
		"was", "were", "be", "been", "being", "it", "this", "that",
		"these", "those", "from", "up", "down", "over", "under", "again",
		"further", "than", "so", "such", "into", "about", "between",
		"through", "during", "before", "after", "above", "below", "out",
		"off", "own", "same", "too", "very", "can", "will", "just",
		"should", "now",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
