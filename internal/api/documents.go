package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/flowrag/flowrag/internal/pipeline"
	"github.com/flowrag/flowrag/internal/storage"
)

func handleUploadDocument(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		workspaceID := chi.URLParam(r, "id")

		if _, err := deps.Store.GetWorkspace(workspaceID); errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "workspace not found")
			return
		} else if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get workspace: %v", err)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		file, header, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "missing file field: %v", err)
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "failed to read file: %v", err)
			return
		}

		contentType := header.Header.Get("Content-Type")
		text, err := pipeline.ExtractText(data, header.Filename, contentType)
		if err != nil {
			httpError(w, http.StatusUnprocessableEntity, "invalid_request_error", "failed to extract text from %s: %v", header.Filename, err)
			return
		}

		ingested, err := deps.Ingester.Ingest(text, workspaceID, header.Filename)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to index document: %v", err)
			return
		}

		doc := storage.Document{
			ID:          uuid.New().String(),
			WorkspaceID: workspaceID,
			Filename:    header.Filename,
			ContentType: contentType,
			SizeBytes:   int64(len(data)),
			ChunkCount:  ingested.ChunkCount,
			CreatedAt:   time.Now().UTC(),
		}
		if err := deps.Store.SaveDocument(doc); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save document: %v", err)
			return
		}

		writeJSON(w, http.StatusCreated, doc)
	}
}

func handleListDocuments(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		workspaceID := chi.URLParam(r, "id")

		docs, err := deps.Store.ListDocuments(workspaceID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list documents: %v", err)
			return
		}
		if docs == nil {
			docs = []storage.Document{}
		}
		writeJSON(w, http.StatusOK, docs)
	}
}

// handleDeleteDocument removes the document's metadata row only. Its
// chunks stay in the workspace collection but stop matching in the
// generation path, which gates on registered document names; a full
// clear removes them.
func handleDeleteDocument(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docID := chi.URLParam(r, "docID")

		err := deps.Store.DeleteDocument(docID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete document: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleClearDocuments(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		workspaceID := chi.URLParam(r, "id")

		if deps.Vectors != nil {
			if err := deps.Vectors.ClearCollection(workspaceID); err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to clear workspace vectors: %v", err)
				return
			}
		}

		deleted, err := deps.Store.ClearDocuments(workspaceID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to clear documents: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "cleared",
			"deleted": deleted,
		})
	}
}
