package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/flowrag/flowrag/internal/engine"
	"github.com/flowrag/flowrag/internal/graph"
	"github.com/flowrag/flowrag/internal/pipeline"
	"github.com/flowrag/flowrag/internal/storage"
)

const maxUploadSize = 10 << 20 // 10MB

// DocumentIngester chunks and indexes extracted text into a workspace
// collection.
type DocumentIngester interface {
	Ingest(rawText, workspaceID, sourceLabel string) (pipeline.IngestResult, error)
}

// WorkflowExecutor runs a parsed workflow graph against a workspace.
type WorkflowExecutor interface {
	Execute(ctx context.Context, g graph.Graph, workspaceID, query string) engine.Result
}

// VectorManager is the slice of the vector store the API needs for
// collection lifecycle.
type VectorManager interface {
	DeleteCollection(workspaceID string) error
	ClearCollection(workspaceID string) error
	Count(workspaceID string) (int, error)
}

type AppDeps struct {
	Store    *storage.Store
	Vectors  VectorManager
	Ingester DocumentIngester
	Executor WorkflowExecutor
	// Token enables bearer auth when non-empty.
	Token string
}

func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth())

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}

		r.Post("/workspaces", handleCreateWorkspace(deps))
		r.Get("/workspaces", handleListWorkspaces(deps))
		r.Get("/workspaces/{id}", handleGetWorkspace(deps))
		r.Put("/workspaces/{id}", handleUpdateWorkspace(deps))
		r.Delete("/workspaces/{id}", handleDeleteWorkspace(deps))

		r.Post("/workspaces/{id}/documents", handleUploadDocument(deps))
		r.Get("/workspaces/{id}/documents", handleListDocuments(deps))
		r.Delete("/workspaces/{id}/documents", handleClearDocuments(deps))
		r.Delete("/workspaces/{id}/documents/{docID}", handleDeleteDocument(deps))

		r.Post("/workspaces/{id}/execute", handleExecute(deps))
		r.Get("/workspaces/{id}/conversations", handleListConversations(deps))
	})

	return r
}

func handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
