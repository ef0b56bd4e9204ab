package vectorstore

import (
	"container/heap"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/flowrag/flowrag/internal/embedding"
)

// DefaultTopK is the number of neighbors Search returns when the caller
// does not specify one.
const DefaultTopK = 5

// Entry is one stored (id, text, vector, metadata) tuple.
type Entry struct {
	ID        string
	Text      string
	Vector    []float32
	Metadata  map[string]string
	CreatedAt time.Time
}

// Result is one nearest-neighbor hit. Distance is cosine distance
// (1 - cosine similarity); smaller means closer.
type Result struct {
	Text     string
	Metadata map[string]string
	Distance float32
}

// Store holds one vector collection per workspace inside a single SQLite
// database. Collections are namespaced by table name derived from the
// workspace id, so dropping or clearing one workspace cannot touch
// another's rows.
//
// An incompatible persisted schema is the one expected fatal-but-recoverable
// condition: the store detects structural read/write errors, drops every
// collection once, and retries the failing operation. The reset is
// destructive across all workspaces in this store instance and is logged
// as such.
type Store struct {
	db       *sql.DB
	embedder embedding.Embedder
	logger   *slog.Logger

	mu     sync.Mutex
	tables map[string]string // workspace id -> collection table name
}

// Open opens (or creates) the vector database in dataDir and ensures the
// collection registry exists. Pass ":memory:" as dataDir for an in-memory
// database (used by tests). Open failures wrap ErrStorageUnavailable.
func Open(dataDir string, embedder embedding.Embedder) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: creating data directory: %v", ErrStorageUnavailable, err)
		}
		dsn = filepath.Join(dataDir, "vectors.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %v", ErrStorageUnavailable, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: pinging database: %v", ErrStorageUnavailable, err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: setting busy timeout: %v", ErrStorageUnavailable, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: setting journal mode: %v", ErrStorageUnavailable, err)
	}

	s := &Store{
		db:       db,
		embedder: embedder,
		logger:   slog.Default(),
		tables:   make(map[string]string),
	}
	if err := s.ensureRegistry(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: creating collection registry: %v", ErrStorageUnavailable, err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureRegistry() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS collections (
		workspace_id TEXT PRIMARY KEY,
		table_name TEXT NOT NULL UNIQUE,
		created_at TEXT NOT NULL
	)`)
	return err
}

// collectionTable derives the deterministic table name for a workspace id.
// Hashing keeps arbitrary workspace ids out of SQL identifiers.
func collectionTable(workspaceID string) string {
	sum := sha256.Sum256([]byte(workspaceID))
	return "vec_" + hex.EncodeToString(sum[:8])
}

// GetOrCreateCollection ensures the workspace's collection exists and
// returns its table name. Idempotent and safe to call redundantly from
// concurrent first accesses: the table is created with IF NOT EXISTS and
// the registry insert is an upsert, so racing callers converge on the
// same collection.
func (s *Store) GetOrCreateCollection(workspaceID string) (string, error) {
	s.mu.Lock()
	if table, ok := s.tables[workspaceID]; ok {
		s.mu.Unlock()
		return table, nil
	}
	s.mu.Unlock()

	table := collectionTable(workspaceID)
	err := s.withRecovery("create collection", func() error {
		return s.createCollection(workspaceID, table)
	})
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.tables[workspaceID] = table
	s.mu.Unlock()
	return table, nil
}

func (s *Store) createCollection(workspaceID, table string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning collection transaction: %w", err)
	}
	defer tx.Rollback()

	createSQL := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		text_chunk TEXT NOT NULL,
		embedding BLOB NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL
	)`, table)
	if _, err := tx.Exec(createSQL); err != nil {
		return fmt.Errorf("creating collection table: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO collections (workspace_id, table_name, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(workspace_id) DO NOTHING`,
		workspaceID, table, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("registering collection: %w", err)
	}

	return tx.Commit()
}

// AddDocuments writes one entry per text in a single transaction and
// returns the generated ids in input order. vectors must align with texts;
// metadata may be nil, in which case every entry is tagged with the
// workspace id only.
func (s *Store) AddDocuments(workspaceID string, texts []string, vectors [][]float32, metadata []map[string]string) ([]string, error) {
	if len(texts) != len(vectors) {
		return nil, fmt.Errorf("texts (%d) and vectors (%d) length mismatch", len(texts), len(vectors))
	}
	if metadata != nil && len(metadata) != len(texts) {
		return nil, fmt.Errorf("texts (%d) and metadata (%d) length mismatch", len(texts), len(metadata))
	}

	ids := make([]string, len(texts))
	for i := range ids {
		ids[i] = uuid.New().String()
	}

	err := s.withRecovery("add documents", func() error {
		table, err := s.GetOrCreateCollection(workspaceID)
		if err != nil {
			return err
		}
		return s.insertEntries(table, workspaceID, ids, texts, vectors, metadata)
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) insertEntries(table, workspaceID string, ids, texts []string, vectors [][]float32, metadata []map[string]string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning insert transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(fmt.Sprintf(
		`INSERT INTO %s (id, text_chunk, embedding, metadata, created_at) VALUES (?, ?, ?, ?, ?)`, table))
	if err != nil {
		return fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for i := range texts {
		meta := map[string]string{"workspace_id": workspaceID}
		if metadata != nil {
			meta = metadata[i]
		}
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("encoding metadata for entry %d: %w", i, err)
		}
		blob := encodeFloat32s(vectors[i])
		if _, err := stmt.Exec(ids[i], texts[i], blob, string(metaJSON), now); err != nil {
			return fmt.Errorf("inserting entry %s: %w", ids[i], err)
		}
	}

	return tx.Commit()
}

// Search embeds queryText with the store's embedder and returns up to k
// entries ordered by increasing cosine distance. An empty collection, a
// collection with no token overlap, or a degenerate query all yield an
// empty result set, never an error.
func (s *Store) Search(workspaceID, queryText string, k int) ([]Result, error) {
	if k <= 0 {
		k = DefaultTopK
	}

	queryVec, err := s.embedder.Embed(queryText)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if vectorNorm(queryVec) == 0 {
		return nil, nil
	}

	var results []Result
	err = s.withRecovery("search", func() error {
		table, err := s.GetOrCreateCollection(workspaceID)
		if err != nil {
			return err
		}
		results, err = s.searchTable(table, queryVec, k)
		return err
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// searchTable runs brute-force cosine similarity over the collection,
// keeping the top-k candidates in a min-heap during the scan.
func (s *Store) searchTable(table string, queryVec []float32, k int) ([]Result, error) {
	rows, err := s.db.Query(fmt.Sprintf(`SELECT text_chunk, embedding, metadata FROM %s`, table))
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	queryNorm := vectorNorm(queryVec)

	h := &resultHeap{}
	heap.Init(h)

	// Reusable buffer for decoding embeddings to avoid per-row allocations.
	var buf []float32

	for rows.Next() {
		var text, metaJSON string
		var blob []byte
		if err := rows.Scan(&text, &blob, &metaJSON); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding: %w", err)
		}

		score := cosineSimilarity(queryVec, buf, queryNorm)
		cand := scoredRow{Text: text, MetaJSON: metaJSON, Score: score}
		if h.Len() < k {
			heap.Push(h, cand)
		} else if score > (*h)[0].Score {
			(*h)[0] = cand
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	// Pop ascending, fill results from the far end so the closest entry
	// comes first.
	results := make([]Result, h.Len())
	for i := len(results) - 1; i >= 0; i-- {
		row := heap.Pop(h).(scoredRow)
		meta, err := decodeMetadata(row.MetaJSON)
		if err != nil {
			return nil, err
		}
		results[i] = Result{Text: row.Text, Metadata: meta, Distance: 1 - row.Score}
	}
	return results, nil
}

// GetAll returns every entry in the workspace's collection, without
// vectors. Used by the execution engine's full-collection context scan.
func (s *Store) GetAll(workspaceID string) ([]Entry, error) {
	var entries []Entry
	err := s.withRecovery("get all", func() error {
		table, err := s.GetOrCreateCollection(workspaceID)
		if err != nil {
			return err
		}

		rows, err := s.db.Query(fmt.Sprintf(
			`SELECT id, text_chunk, metadata, created_at FROM %s ORDER BY created_at ASC, id ASC`, table))
		if err != nil {
			return fmt.Errorf("querying entries: %w", err)
		}
		defer rows.Close()

		entries = nil
		for rows.Next() {
			var e Entry
			var metaJSON, createdAt string
			if err := rows.Scan(&e.ID, &e.Text, &metaJSON, &createdAt); err != nil {
				return fmt.Errorf("scanning entry: %w", err)
			}
			meta, err := decodeMetadata(metaJSON)
			if err != nil {
				return err
			}
			e.Metadata = meta
			if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
				e.CreatedAt = t
			}
			entries = append(entries, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Count returns the number of entries stored for the workspace.
func (s *Store) Count(workspaceID string) (int, error) {
	var count int
	err := s.withRecovery("count", func() error {
		table, err := s.GetOrCreateCollection(workspaceID)
		if err != nil {
			return err
		}
		return s.db.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&count)
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteCollection drops the workspace's collection entirely. Other
// workspaces are unaffected. Deleting a collection that never existed is
// a no-op.
func (s *Store) DeleteCollection(workspaceID string) error {
	table := collectionTable(workspaceID)
	err := s.withRecovery("delete collection", func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning delete transaction: %w", err)
		}
		defer tx.Rollback()

		if _, err := tx.Exec(fmt.Sprintf(`DROP TABLE IF EXISTS %s`, table)); err != nil {
			return fmt.Errorf("dropping collection table: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM collections WHERE workspace_id = ?`, workspaceID); err != nil {
			return fmt.Errorf("unregistering collection: %w", err)
		}
		return tx.Commit()
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.tables, workspaceID)
	s.mu.Unlock()
	return nil
}

// ClearCollection removes all entries for the workspace but keeps the
// (now empty) collection.
func (s *Store) ClearCollection(workspaceID string) error {
	return s.withRecovery("clear collection", func() error {
		table, err := s.GetOrCreateCollection(workspaceID)
		if err != nil {
			return err
		}
		_, err = s.db.Exec(fmt.Sprintf(`DELETE FROM %s`, table))
		return err
	})
}

// withRecovery runs op, and if it fails with a structural schema error,
// resets the store once and retries. The recovery path is entered at most
// once per operation: Normal -> DetectedCorruption -> Reset -> Retry ->
// {Normal | ErrStorageCorrupt}.
func (s *Store) withRecovery(opName string, op func() error) error {
	err := op()
	if err == nil || !isSchemaError(err) {
		return err
	}

	s.logger.Warn("incompatible vector store schema detected, resetting all collections",
		"operation", opName, "error", err)

	if resetErr := s.reset(); resetErr != nil {
		return fmt.Errorf("%w: reset after %s failed: %v (original: %v)", ErrStorageCorrupt, opName, resetErr, err)
	}

	if retryErr := op(); retryErr != nil {
		return fmt.Errorf("%w: %s failed after reset: %v", ErrStorageCorrupt, opName, retryErr)
	}
	return nil
}

// reset drops every collection table and the registry, then recreates the
// registry. Destructive across all workspaces in this store instance;
// last-resort recovery only.
func (s *Store) reset() error {
	rows, err := s.db.Query(`SELECT table_name FROM collections`)
	var tables []string
	if err == nil {
		for rows.Next() {
			var t string
			if err := rows.Scan(&t); err == nil {
				tables = append(tables, t)
			}
		}
		rows.Close()
	}

	for _, t := range tables {
		if _, err := s.db.Exec(fmt.Sprintf(`DROP TABLE IF EXISTS %s`, t)); err != nil {
			return fmt.Errorf("dropping table %s: %w", t, err)
		}
	}
	if _, err := s.db.Exec(`DROP TABLE IF EXISTS collections`); err != nil {
		return fmt.Errorf("dropping registry: %w", err)
	}
	if err := s.ensureRegistry(); err != nil {
		return fmt.Errorf("recreating registry: %w", err)
	}

	s.mu.Lock()
	s.tables = make(map[string]string)
	s.mu.Unlock()
	return nil
}

// isSchemaError reports whether err looks like an incompatible or corrupt
// persisted schema rather than a normal failure.
func isSchemaError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"no such column",
		"has no column named",
		"no such table",
		"malformed",
		"not a multiple of 4",
		"file is not a database",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func decodeMetadata(metaJSON string) (map[string]string, error) {
	meta := make(map[string]string)
	if metaJSON == "" {
		return meta, nil
	}
	if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}
	return meta, nil
}

// scoredRow holds a candidate during the scan phase of Search.
type scoredRow struct {
	Text     string
	MetaJSON string
	Score    float32
}

// resultHeap is a min-heap of scoredRow ordered by Score, used to track
// top-k candidates while scanning.
type resultHeap []scoredRow

func (h resultHeap) Len() int            { return len(h) }
func (h resultHeap) Less(i, j int) bool  { return h[i].Score < h[j].Score }
func (h resultHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *resultHeap) Push(x interface{}) { *h = append(*h, x.(scoredRow)) }
func (h *resultHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
