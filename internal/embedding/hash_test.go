package embedding

import (
	"math"
	"testing"
)

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

func TestEmbed_Deterministic(t *testing.T) {
	e := NewHashEmbedder(0)
	a, err := e.Embed("the quick brown fox jumps over the lazy dog")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	b, err := e.Embed("the quick brown fox jumps over the lazy dog")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	// Fresh embedder instance must agree too (no hidden corpus state).
	c, err := NewHashEmbedder(0).Embed("the quick brown fox jumps over the lazy dog")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("component %d differs between calls: %v vs %v", i, a[i], b[i])
		}
		if a[i] != c[i] {
			t.Fatalf("component %d differs between instances: %v vs %v", i, a[i], c[i])
		}
	}
}

func TestEmbed_UnitNorm(t *testing.T) {
	e := NewHashEmbedder(0)
	texts := []string{
		"hello world",
		"Go is a compiled language designed at Google",
		"x",
		"repeated repeated repeated repeated words words",
	}
	for _, text := range texts {
		vec, err := e.Embed(text)
		if err != nil {
			t.Fatalf("Embed(%q): %v", text, err)
		}
		if n := vectorNorm(vec); math.Abs(n-1.0) > 1e-6 {
			t.Errorf("Embed(%q): norm = %v, want 1.0", text, n)
		}
	}
}

func TestEmbed_ZeroFallback(t *testing.T) {
	e := NewHashEmbedder(0)
	for _, text := range []string{"", "   ", "!!! ... ???", "the and of"} {
		vec, err := e.Embed(text)
		if err != nil {
			t.Fatalf("Embed(%q): %v", text, err)
		}
		if len(vec) != DefaultDimension {
			t.Fatalf("Embed(%q): dimension %d, want %d", text, len(vec), DefaultDimension)
		}
		if n := vectorNorm(vec); n != 0 {
			t.Errorf("Embed(%q): norm = %v, want 0 (zero-vector fallback)", text, n)
		}
	}
}

func TestEmbed_FixedDimension(t *testing.T) {
	e := NewHashEmbedder(64)
	if e.Dimension() != 64 {
		t.Fatalf("Dimension() = %d, want 64", e.Dimension())
	}
	vec, err := e.Embed("dimension check")
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != 64 {
		t.Errorf("len = %d, want 64", len(vec))
	}
}

func TestEmbed_SimilarTextsScoreHigher(t *testing.T) {
	e := NewHashEmbedder(0)
	base, _ := e.Embed("database index performance tuning")
	near, _ := e.Embed("tuning database index performance")
	far, _ := e.Embed("grilled cheese sandwich recipe")

	if cosine(base, near) <= cosine(base, far) {
		t.Errorf("similar text scored %v, unrelated %v; want similar > unrelated",
			cosine(base, near), cosine(base, far))
	}
}

func TestEmbedBatch_OrderAndAgreement(t *testing.T) {
	e := NewHashEmbedder(0)
	texts := []string{"first text", "second text", "third text"}
	batch, err := e.EmbedBatch(texts)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(batch) != len(texts) {
		t.Fatalf("got %d vectors, want %d", len(batch), len(texts))
	}
	for i, text := range texts {
		single, _ := e.Embed(text)
		for j := range single {
			if batch[i][j] != single[j] {
				t.Fatalf("batch vector %d disagrees with single Embed at component %d", i, j)
			}
		}
	}
}

func TestEmbedBatch_Empty(t *testing.T) {
	e := NewHashEmbedder(0)
	got, err := e.EmbedBatch(nil)
	if err != nil {
		t.Fatalf("EmbedBatch(nil): %v", err)
	}
	if got != nil {
		t.Errorf("EmbedBatch(nil) = %v, want nil", got)
	}
}

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}
