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

const maxRequestBodySize = 1 << 20 // 1MB

type workspaceRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Components  json.RawMessage `json:"components"`
}

// resolveComponents validates the optional graph JSON and returns the
// string to persist. Absent components default to an empty graph.
func resolveComponents(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return `{"nodes":[],"edges":[]}`, nil
	}
	if _, err := graph.Parse(raw); err != nil {
		return "", err
	}
	return string(raw), nil
}

func handleCreateWorkspace(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req workspaceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Name == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "name is required")
			return
		}

		components, err := resolveComponents(req.Components)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid components: %v", err)
			return
		}

		now := time.Now().UTC()
		ws := storage.Workspace{
			ID:          uuid.New().String(),
			Name:        req.Name,
			Description: req.Description,
			Components:  components,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := deps.Store.SaveWorkspace(ws); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save workspace: %v", err)
			return
		}

		writeJSON(w, http.StatusCreated, ws)
	}
}

func handleListWorkspaces(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		workspaces, err := deps.Store.ListWorkspaces()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list workspaces: %v", err)
			return
		}
		if workspaces == nil {
			workspaces = []storage.Workspace{}
		}
		writeJSON(w, http.StatusOK, workspaces)
	}
}

func handleGetWorkspace(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		ws, err := deps.Store.GetWorkspace(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "workspace not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get workspace: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, ws)
	}
}

func handleUpdateWorkspace(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		ws, err := deps.Store.GetWorkspace(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "workspace not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get workspace: %v", err)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req workspaceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		if req.Name != "" {
			ws.Name = req.Name
		}
		if req.Description != "" {
			ws.Description = req.Description
		}
		if len(req.Components) > 0 {
			components, err := resolveComponents(req.Components)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid components: %v", err)
				return
			}
			ws.Components = components
		}
		ws.UpdatedAt = time.Now().UTC()

		if err := deps.Store.UpdateWorkspace(ws); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to update workspace: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, ws)
	}
}

func handleDeleteWorkspace(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		// Drop the vector collection first; the metadata rows reference it.
		if deps.Vectors != nil {
			if err := deps.Vectors.DeleteCollection(id); err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to delete workspace vectors: %v", err)
				return
			}
		}

		err := deps.Store.DeleteWorkspace(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "workspace not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete workspace: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleListConversations(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		limit := parseIntParam(r, "limit", 50, 200)

		conversations, err := deps.Store.ListConversations(id, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list conversations: %v", err)
			return
		}
		if conversations == nil {
			conversations = []storage.Conversation{}
		}
		writeJSON(w, http.StatusOK, conversations)
	}
}
