package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/flowrag/flowrag/internal/engine"
	"github.com/flowrag/flowrag/internal/graph"
	"github.com/flowrag/flowrag/internal/pipeline"
	"github.com/flowrag/flowrag/internal/storage"
)

const testToken = "test-token-12345"

type fakeIngester struct {
	lastText      string
	lastWorkspace string
	lastLabel     string
	chunkCount    int
	err           error
}

func (f *fakeIngester) Ingest(rawText, workspaceID, sourceLabel string) (pipeline.IngestResult, error) {
	f.lastText, f.lastWorkspace, f.lastLabel = rawText, workspaceID, sourceLabel
	if f.err != nil {
		return pipeline.IngestResult{}, f.err
	}
	return pipeline.IngestResult{ChunkCount: f.chunkCount}, nil
}

type fakeExecutor struct {
	result engine.Result
	lastG  graph.Graph
	lastQ  string
}

func (f *fakeExecutor) Execute(ctx context.Context, g graph.Graph, workspaceID, query string) engine.Result {
	f.lastG, f.lastQ = g, query
	return f.result
}

type fakeVectors struct {
	deleted []string
	cleared []string
}

func (f *fakeVectors) DeleteCollection(workspaceID string) error {
	f.deleted = append(f.deleted, workspaceID)
	return nil
}

func (f *fakeVectors) ClearCollection(workspaceID string) error {
	f.cleared = append(f.cleared, workspaceID)
	return nil
}

func (f *fakeVectors) Count(workspaceID string) (int, error) { return 0, nil }

type testApp struct {
	handler  http.Handler
	store    *storage.Store
	ingester *fakeIngester
	executor *fakeExecutor
	vectors  *fakeVectors
}

func setupApp(t *testing.T, token string) *testApp {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	app := &testApp{
		store:    store,
		ingester: &fakeIngester{chunkCount: 3},
		executor: &fakeExecutor{result: engine.Result{Success: true, Response: "ok", ContextUsed: []string{}}},
		vectors:  &fakeVectors{},
	}
	app.handler = NewAppHandler(AppDeps{
		Store:    store,
		Vectors:  app.vectors,
		Ingester: app.ingester,
		Executor: app.executor,
		Token:    token,
	})
	return app
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func seedWorkspace(t *testing.T, store *storage.Store, components string) storage.Workspace {
	t.Helper()
	if components == "" {
		components = `{"nodes":[],"edges":[]}`
	}
	now := time.Now().UTC()
	ws := storage.Workspace{
		ID:         "ws-test",
		Name:       "test workspace",
		Components: components,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := store.SaveWorkspace(ws); err != nil {
		t.Fatalf("SaveWorkspace failed: %v", err)
	}
	return ws
}

func TestBearerAuth(t *testing.T) {
	app := setupApp(t, testToken)

	rr := httptest.NewRecorder()
	app.handler.ServeHTTP(rr, authReq(http.MethodGet, "/workspaces", "", ""))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rr.Code)
	}

	rr = httptest.NewRecorder()
	app.handler.ServeHTTP(rr, authReq(http.MethodGet, "/workspaces", "", "wrong"))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want 401", rr.Code)
	}

	rr = httptest.NewRecorder()
	app.handler.ServeHTTP(rr, authReq(http.MethodGet, "/workspaces", "", testToken))
	if rr.Code != http.StatusOK {
		t.Errorf("valid token: status = %d, want 200", rr.Code)
	}

	// Health stays open.
	rr = httptest.NewRecorder()
	app.handler.ServeHTTP(rr, authReq(http.MethodGet, "/health", "", ""))
	if rr.Code != http.StatusOK {
		t.Errorf("health: status = %d, want 200", rr.Code)
	}
}

func TestAuthDisabledWithoutToken(t *testing.T) {
	app := setupApp(t, "")

	rr := httptest.NewRecorder()
	app.handler.ServeHTTP(rr, authReq(http.MethodGet, "/workspaces", "", ""))
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with auth disabled", rr.Code)
	}
}

func TestCreateWorkspace(t *testing.T) {
	app := setupApp(t, "")

	body := `{"name":"research","description":"papers","components":{"nodes":[],"edges":[]}}`
	rr := httptest.NewRecorder()
	app.handler.ServeHTTP(rr, authReq(http.MethodPost, "/workspaces", body, ""))

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body = %s", rr.Code, rr.Body.String())
	}

	var ws storage.Workspace
	json.NewDecoder(rr.Body).Decode(&ws)
	if ws.ID == "" {
		t.Fatal("response missing id")
	}
	if ws.Name != "research" {
		t.Errorf("name = %q", ws.Name)
	}

	stored, err := app.store.GetWorkspace(ws.ID)
	if err != nil {
		t.Fatalf("GetWorkspace(%q) failed: %v", ws.ID, err)
	}
	if stored.Description != "papers" {
		t.Errorf("description = %q", stored.Description)
	}
}

func TestCreateWorkspace_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing name", `{"description":"x"}`},
		{"bad json", `{not json`},
		{"bad components", `{"name":"x","components":{"nodes":"nope"}}`},
	}
	app := setupApp(t, "")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			app.handler.ServeHTTP(rr, authReq(http.MethodPost, "/workspaces", tt.body, ""))
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400; body = %s", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestGetWorkspace_NotFound(t *testing.T) {
	app := setupApp(t, "")
	rr := httptest.NewRecorder()
	app.handler.ServeHTTP(rr, authReq(http.MethodGet, "/workspaces/nope", "", ""))
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestUpdateWorkspace(t *testing.T) {
	app := setupApp(t, "")
	ws := seedWorkspace(t, app.store, "")

	body := `{"name":"renamed","components":{"nodes":[{"id":"o1","type":"output"}],"edges":[]}}`
	rr := httptest.NewRecorder()
	app.handler.ServeHTTP(rr, authReq(http.MethodPut, "/workspaces/"+ws.ID, body, ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}

	updated, err := app.store.GetWorkspace(ws.ID)
	if err != nil {
		t.Fatalf("GetWorkspace failed: %v", err)
	}
	if updated.Name != "renamed" {
		t.Errorf("name = %q", updated.Name)
	}
	if !strings.Contains(updated.Components, `"o1"`) {
		t.Errorf("components = %q, graph not persisted", updated.Components)
	}
}

func TestDeleteWorkspace_DropsVectors(t *testing.T) {
	app := setupApp(t, "")
	ws := seedWorkspace(t, app.store, "")

	rr := httptest.NewRecorder()
	app.handler.ServeHTTP(rr, authReq(http.MethodDelete, "/workspaces/"+ws.ID, "", ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}

	if len(app.vectors.deleted) != 1 || app.vectors.deleted[0] != ws.ID {
		t.Errorf("deleted collections = %v, want [%s]", app.vectors.deleted, ws.ID)
	}
	if _, err := app.store.GetWorkspace(ws.ID); err == nil {
		t.Error("workspace still present after delete")
	}
}

func uploadReq(t *testing.T, url, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile failed: %v", err)
	}
	fw.Write([]byte(content))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, url, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadDocument(t *testing.T) {
	app := setupApp(t, "")
	ws := seedWorkspace(t, app.store, "")

	rr := httptest.NewRecorder()
	app.handler.ServeHTTP(rr, uploadReq(t, "/workspaces/"+ws.ID+"/documents", "notes.txt", "hello vector world"))
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}

	var doc storage.Document
	json.NewDecoder(rr.Body).Decode(&doc)
	if doc.Filename != "notes.txt" {
		t.Errorf("filename = %q", doc.Filename)
	}
	if doc.ChunkCount != 3 {
		t.Errorf("chunk count = %d, want ingester's 3", doc.ChunkCount)
	}

	if app.ingester.lastText != "hello vector world" {
		t.Errorf("ingested text = %q", app.ingester.lastText)
	}
	if app.ingester.lastWorkspace != ws.ID || app.ingester.lastLabel != "notes.txt" {
		t.Errorf("ingest args = (%q, %q)", app.ingester.lastWorkspace, app.ingester.lastLabel)
	}

	docs, err := app.store.ListDocuments(ws.ID)
	if err != nil || len(docs) != 1 {
		t.Fatalf("ListDocuments = %v, %v", docs, err)
	}
}

func TestUploadDocument_WorkspaceMissing(t *testing.T) {
	app := setupApp(t, "")
	rr := httptest.NewRecorder()
	app.handler.ServeHTTP(rr, uploadReq(t, "/workspaces/nope/documents", "f.txt", "x"))
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestClearDocuments(t *testing.T) {
	app := setupApp(t, "")
	ws := seedWorkspace(t, app.store, "")
	if err := app.store.SaveDocument(storage.Document{
		ID: "d1", WorkspaceID: ws.ID, Filename: "a.txt", CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("SaveDocument failed: %v", err)
	}

	rr := httptest.NewRecorder()
	app.handler.ServeHTTP(rr, authReq(http.MethodDelete, "/workspaces/"+ws.ID+"/documents", "", ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}

	if len(app.vectors.cleared) != 1 || app.vectors.cleared[0] != ws.ID {
		t.Errorf("cleared collections = %v", app.vectors.cleared)
	}
	docs, _ := app.store.ListDocuments(ws.ID)
	if len(docs) != 0 {
		t.Errorf("documents remain after clear: %v", docs)
	}
}

func TestExecute(t *testing.T) {
	app := setupApp(t, "")
	components := `{"nodes":[{"id":"u1","type":"userQuery"},{"id":"o1","type":"output"}],"edges":[{"source":"u1","target":"o1"}]}`
	ws := seedWorkspace(t, app.store, components)
	app.executor.result = engine.Result{Success: true, Response: "echoed", Provider: "user", ContextUsed: []string{}}

	rr := httptest.NewRecorder()
	app.handler.ServeHTTP(rr, authReq(http.MethodPost, "/workspaces/"+ws.ID+"/execute", `{"query":"hi"}`, ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}

	var result engine.Result
	json.NewDecoder(rr.Body).Decode(&result)
	if !result.Success || result.Response != "echoed" {
		t.Errorf("result = %+v", result)
	}
	if app.executor.lastQ != "hi" {
		t.Errorf("query passed = %q", app.executor.lastQ)
	}
	if len(app.executor.lastG.Nodes) != 2 {
		t.Errorf("graph nodes = %d, stored components not parsed", len(app.executor.lastG.Nodes))
	}

	convs, err := app.store.ListConversations(ws.ID, 10)
	if err != nil || len(convs) != 1 {
		t.Fatalf("ListConversations = %v, %v", convs, err)
	}
	if convs[0].Response != "echoed" || convs[0].Provider != "user" {
		t.Errorf("conversation = %+v", convs[0])
	}
}

func TestExecute_FailureNotRecorded(t *testing.T) {
	app := setupApp(t, "")
	ws := seedWorkspace(t, app.store, "")
	app.executor.result = engine.Result{Success: false, Error: "no output node", ContextUsed: []string{}}

	rr := httptest.NewRecorder()
	app.handler.ServeHTTP(rr, authReq(http.MethodPost, "/workspaces/"+ws.ID+"/execute", `{"query":"hi"}`, ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}

	var result engine.Result
	json.NewDecoder(rr.Body).Decode(&result)
	if result.Success {
		t.Error("expected failure result")
	}

	convs, _ := app.store.ListConversations(ws.ID, 10)
	if len(convs) != 0 {
		t.Errorf("failed execution recorded in history: %v", convs)
	}
}

func TestExecute_ComponentsOverride(t *testing.T) {
	app := setupApp(t, "")
	ws := seedWorkspace(t, app.store, "")

	body := `{"query":"hi","components":{"nodes":[{"id":"k1","type":"knowledgeBase"},{"id":"o1","type":"output"}],"edges":[{"source":"k1","target":"o1"}]}}`
	rr := httptest.NewRecorder()
	app.handler.ServeHTTP(rr, authReq(http.MethodPost, "/workspaces/"+ws.ID+"/execute", body, ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}

	if len(app.executor.lastG.Nodes) != 2 || app.executor.lastG.Nodes[0].Type != graph.NodeKnowledgeBase {
		t.Errorf("override graph not used: %+v", app.executor.lastG)
	}
}

func TestExecute_MissingQuery(t *testing.T) {
	app := setupApp(t, "")
	ws := seedWorkspace(t, app.store, "")

	rr := httptest.NewRecorder()
	app.handler.ServeHTTP(rr, authReq(http.MethodPost, "/workspaces/"+ws.ID+"/execute", `{}`, ""))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}
