package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/flowrag/flowrag/internal/graph"
	"github.com/flowrag/flowrag/internal/storage"
)

type executeRequest struct {
	Query string `json:"query"`
	// Components, when present, runs in place of the workspace's
	// stored graph without persisting it.
	Components json.RawMessage `json:"components"`
}

func handleExecute(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		workspaceID := chi.URLParam(r, "id")

		ws, err := deps.Store.GetWorkspace(workspaceID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "workspace not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get workspace: %v", err)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req executeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
			return
		}

		components := []byte(ws.Components)
		if len(req.Components) > 0 {
			components = req.Components
		}
		g, err := graph.Parse(components)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid components: %v", err)
			return
		}

		result := deps.Executor.Execute(r.Context(), g, workspaceID, req.Query)

		if result.Success {
			conv := storage.Conversation{
				ID:          uuid.New().String(),
				WorkspaceID: workspaceID,
				Query:       req.Query,
				Response:    result.Response,
				Provider:    result.Provider,
				CreatedAt:   time.Now().UTC(),
			}
			if err := deps.Store.SaveConversation(conv); err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to save conversation: %v", err)
				return
			}
		}

		writeJSON(w, http.StatusOK, result)
	}
}
