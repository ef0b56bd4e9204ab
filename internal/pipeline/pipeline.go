package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/flowrag/flowrag/internal/chunker"
	"github.com/flowrag/flowrag/internal/embedding"
)

// VectorWriter is the slice of the vector store the pipeline needs.
type VectorWriter interface {
	AddDocuments(workspaceID string, texts []string, vectors [][]float32, metadata []map[string]string) ([]string, error)
}

// Pipeline turns one document's extracted text into stored, searchable
// chunks: chunk, embed, write. Extraction happens before the pipeline
// (see ExtractText); persistence of document metadata happens after it.
type Pipeline struct {
	chunker  *chunker.Chunker
	embedder embedding.Embedder
	store    VectorWriter
	logger   *slog.Logger
}

// New creates a Pipeline. A nil chunker selects the default 1000/200
// window.
func New(c *chunker.Chunker, embedder embedding.Embedder, store VectorWriter) *Pipeline {
	if c == nil {
		c = chunker.Default()
	}
	return &Pipeline{
		chunker:  c,
		embedder: embedder,
		store:    store,
		logger:   slog.Default(),
	}
}

// IngestResult reports what one ingest call stored.
type IngestResult struct {
	ChunkCount int
	IDs        []string
}

// Ingest chunks rawText, embeds every chunk, and writes them to the
// workspace's collection tagged with the workspace id and source label.
//
// Empty rawText is not an error: extraction legitimately produces zero
// characters for some documents, and the caller decides whether an empty
// result matters. Any embed or store failure aborts the whole ingest;
// the store's transactional add keeps partial chunk sets invisible.
func (p *Pipeline) Ingest(rawText, workspaceID, sourceLabel string) (IngestResult, error) {
	chunks := p.chunker.Chunk(rawText)
	if len(chunks) == 0 {
		p.logger.Info("ingest produced no chunks", "workspace_id", workspaceID, "source", sourceLabel)
		return IngestResult{}, nil
	}

	vectors, err := p.embedder.EmbedBatch(chunks)
	if err != nil {
		return IngestResult{}, fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}

	metadata := make([]map[string]string, len(chunks))
	for i := range metadata {
		metadata[i] = map[string]string{
			"workspace_id": workspaceID,
			"filename":     sourceLabel,
		}
	}

	ids, err := p.store.AddDocuments(workspaceID, chunks, vectors, metadata)
	if err != nil {
		return IngestResult{}, fmt.Errorf("storing chunks for %s: %w", sourceLabel, err)
	}

	p.logger.Info("document ingested",
		"workspace_id", workspaceID, "source", sourceLabel, "chunks", len(ids))
	return IngestResult{ChunkCount: len(ids), IDs: ids}, nil
}
