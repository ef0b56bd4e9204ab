package vectorstore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/flowrag/flowrag/internal/embedding"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", embedding.NewHashEmbedder(64))
	if err != nil {
		t.Fatalf("Open(:memory:): %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// addTexts embeds and stores texts, returning the generated ids.
func addTexts(t *testing.T, s *Store, workspaceID string, texts ...string) []string {
	t.Helper()
	vectors, err := s.embedder.EmbedBatch(texts)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	ids, err := s.AddDocuments(workspaceID, texts, vectors, nil)
	if err != nil {
		t.Fatalf("AddDocuments: %v", err)
	}
	return ids
}

func TestAddDocuments_ReturnsOrderedUniqueIDs(t *testing.T) {
	s := openTestStore(t)
	texts := []string{"alpha entry", "beta entry", "gamma entry"}
	ids := addTexts(t, s, "ws1", texts...)

	if len(ids) != len(texts) {
		t.Fatalf("got %d ids, want %d", len(ids), len(texts))
	}
	seen := make(map[string]bool)
	for _, id := range ids {
		if id == "" {
			t.Error("empty id generated")
		}
		if seen[id] {
			t.Errorf("duplicate id %s", id)
		}
		seen[id] = true
	}

	entries, err := s.GetAll("ws1")
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(entries) != len(texts) {
		t.Fatalf("stored %d entries, want %d", len(entries), len(texts))
	}
}

func TestAddDocuments_LengthMismatch(t *testing.T) {
	s := openTestStore(t)
	vec, _ := s.embedder.Embed("only one vector")

	if _, err := s.AddDocuments("ws1", []string{"a", "b"}, [][]float32{vec}, nil); err == nil {
		t.Error("expected error for texts/vectors mismatch")
	}
	if _, err := s.AddDocuments("ws1", []string{"a"}, [][]float32{vec}, []map[string]string{{}, {}}); err == nil {
		t.Error("expected error for texts/metadata mismatch")
	}
}

func TestAddDocuments_DefaultMetadata(t *testing.T) {
	s := openTestStore(t)
	addTexts(t, s, "ws1", "tagged with workspace by default")

	entries, err := s.GetAll("ws1")
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if got := entries[0].Metadata["workspace_id"]; got != "ws1" {
		t.Errorf("metadata workspace_id = %q, want %q", got, "ws1")
	}
}

func TestSearch_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	addTexts(t, s, "ws1",
		"Go is a statically typed compiled language",
		"Paris is the capital of France",
		"SQLite is an embedded relational database",
	)

	results, err := s.Search("ws1", "Go is a statically typed compiled language", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Text != "Go is a statically typed compiled language" {
		t.Errorf("closest text = %q, want the exact stored text", results[0].Text)
	}
	if results[0].Distance > 1e-5 {
		t.Errorf("distance to identical text = %v, want ~0", results[0].Distance)
	}
}

func TestSearch_OrderedByDistance(t *testing.T) {
	s := openTestStore(t)
	addTexts(t, s, "ws1",
		"database indexes speed up queries",
		"query planning in relational databases",
		"a poem about the ocean at dusk",
	)

	results, err := s.Search("ws1", "relational database query", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Distance < results[i-1].Distance {
			t.Errorf("results not ordered by increasing distance: %v then %v",
				results[i-1].Distance, results[i].Distance)
		}
	}
}

func TestSearch_EmptyCollection(t *testing.T) {
	s := openTestStore(t)
	results, err := s.Search("fresh-workspace", "anything", 5)
	if err != nil {
		t.Fatalf("Search on empty collection: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results from empty collection, want 0", len(results))
	}
}

func TestSearch_DegenerateQuery(t *testing.T) {
	s := openTestStore(t)
	addTexts(t, s, "ws1", "some stored content")

	// Stopword-only query embeds to the zero vector.
	results, err := s.Search("ws1", "the and of", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results for degenerate query, want 0", len(results))
	}
}

func TestWorkspaceIsolation(t *testing.T) {
	s := openTestStore(t)
	addTexts(t, s, "wsA", "confidential report for workspace A")
	addTexts(t, s, "wsB", "grocery list for workspace B")

	results, err := s.Search("wsB", "confidential report workspace", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, r := range results {
		if r.Text == "confidential report for workspace A" {
			t.Error("search in wsB returned an entry stored in wsA")
		}
	}
}

func TestDeleteCollection(t *testing.T) {
	s := openTestStore(t)
	addTexts(t, s, "wsA", "entry in A")
	addTexts(t, s, "wsB", "entry in B")

	if err := s.DeleteCollection("wsA"); err != nil {
		t.Fatalf("DeleteCollection: %v", err)
	}

	countA, err := s.Count("wsA")
	if err != nil {
		t.Fatalf("Count(wsA): %v", err)
	}
	if countA != 0 {
		t.Errorf("wsA has %d entries after delete, want 0", countA)
	}

	countB, err := s.Count("wsB")
	if err != nil {
		t.Fatalf("Count(wsB): %v", err)
	}
	if countB != 1 {
		t.Errorf("wsB has %d entries, want 1 (must be untouched)", countB)
	}
}

func TestDeleteCollection_NeverCreated(t *testing.T) {
	s := openTestStore(t)
	if err := s.DeleteCollection("never-existed"); err != nil {
		t.Errorf("DeleteCollection on missing collection: %v", err)
	}
}

func TestClearCollection(t *testing.T) {
	s := openTestStore(t)
	addTexts(t, s, "ws1", "first", "second")

	if err := s.ClearCollection("ws1"); err != nil {
		t.Fatalf("ClearCollection: %v", err)
	}

	count, err := s.Count("ws1")
	if err != nil {
		t.Fatalf("Count after clear: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d after clear, want 0", count)
	}

	// Collection still usable after clearing.
	addTexts(t, s, "ws1", "fresh entry")
	count, _ = s.Count("ws1")
	if count != 1 {
		t.Errorf("count = %d after re-adding, want 1", count)
	}
}

func TestGetOrCreateCollection_Idempotent(t *testing.T) {
	s := openTestStore(t)
	first, err := s.GetOrCreateCollection("ws1")
	if err != nil {
		t.Fatalf("GetOrCreateCollection: %v", err)
	}
	second, err := s.GetOrCreateCollection("ws1")
	if err != nil {
		t.Fatalf("GetOrCreateCollection (second call): %v", err)
	}
	if first != second {
		t.Errorf("table names differ across calls: %q vs %q", first, second)
	}

	var registered int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM collections WHERE workspace_id = 'ws1'`).Scan(&registered); err != nil {
		t.Fatal(err)
	}
	if registered != 1 {
		t.Errorf("registry has %d rows for ws1, want 1", registered)
	}
}

func TestSchemaCorruption_ResetAndRetry(t *testing.T) {
	s := openTestStore(t)
	addTexts(t, s, "ws1", "entry that will be lost in the reset")

	// Replace the collection table with an incompatible shape to simulate
	// a legacy on-disk schema.
	table := collectionTable("ws1")
	if _, err := s.db.Exec(fmt.Sprintf(`DROP TABLE %s`, table)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.Exec(fmt.Sprintf(`CREATE TABLE %s (id TEXT PRIMARY KEY)`, table)); err != nil {
		t.Fatal(err)
	}

	// The add hits "no such column", the store resets once, and the retry
	// succeeds against the freshly created schema.
	ids := addTexts(t, s, "ws1", "entry written after recovery")
	if len(ids) != 1 {
		t.Fatalf("got %d ids, want 1", len(ids))
	}

	entries, err := s.GetAll("ws1")
	if err != nil {
		t.Fatalf("GetAll after recovery: %v", err)
	}
	if len(entries) != 1 || entries[0].Text != "entry written after recovery" {
		t.Errorf("unexpected entries after recovery: %+v", entries)
	}
}

func TestSchemaCorruption_ResetDropsAllWorkspaces(t *testing.T) {
	s := openTestStore(t)
	addTexts(t, s, "wsA", "entry in A")
	addTexts(t, s, "wsB", "entry in B")

	table := collectionTable("wsA")
	if _, err := s.db.Exec(fmt.Sprintf(`DROP TABLE %s`, table)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.Exec(fmt.Sprintf(`CREATE TABLE %s (id TEXT PRIMARY KEY)`, table)); err != nil {
		t.Fatal(err)
	}

	addTexts(t, s, "wsA", "rewritten after reset")

	// The reset is store-wide: wsB's data is gone too.
	countB, err := s.Count("wsB")
	if err != nil {
		t.Fatalf("Count(wsB): %v", err)
	}
	if countB != 0 {
		t.Errorf("wsB has %d entries after reset, want 0", countB)
	}
}

func TestIsSchemaError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("SQL logic error: no such column: text_chunk"), true},
		{errors.New("table vec_bc937ad7 has no column named text_chunk (1)"), true},
		{errors.New("no such table: vec_bc937ad7"), true},
		{errors.New("database disk image is malformed"), true},
		{errors.New("database is locked"), false},
		{errors.New("UNIQUE constraint failed: collections.workspace_id"), false},
	}
	for _, tc := range cases {
		if got := isSchemaError(tc.err); got != tc.want {
			t.Errorf("isSchemaError(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestOpen_UnavailableDirectory(t *testing.T) {
	_, err := Open("/proc/definitely/not/writable", embedding.NewHashEmbedder(16))
	if err == nil {
		t.Fatal("expected error opening store in unwritable location")
	}
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("error = %v, want ErrStorageUnavailable", err)
	}
}
