package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/flowrag/flowrag/internal/graph"
	"github.com/flowrag/flowrag/internal/storage"
	"github.com/flowrag/flowrag/internal/vectorstore"
)

// MCPSearcher abstracts semantic search for the MCP layer.
type MCPSearcher interface {
	Search(workspaceID, queryText string, k int) ([]vectorstore.Result, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store    *storage.Store
	Searcher MCPSearcher
	Ingester DocumentIngester
	Executor WorkflowExecutor
}

// NewMCPServer creates an MCP server exposing workspace ingestion,
// search, and workflow execution as tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"flowrag",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("flowrag — workspace-scoped retrieval and workflow execution over local document collections."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ingest_document",
			mcp.WithDescription("Index a text document into a workspace's knowledge base."),
			mcp.WithString("workspace_id", mcp.Description("Target workspace id"), mcp.Required()),
			mcp.WithString("filename", mcp.Description("Name to register the document under"), mcp.Required()),
			mcp.WithString("content", mcp.Description("Plain text content to index"), mcp.Required()),
		),
		mcpIngestDocument(deps),
	)

	s.AddTool(
		mcp.NewTool("search_workspace",
			mcp.WithDescription("Semantically search a workspace's knowledge base and return the nearest chunks."),
			mcp.WithString("workspace_id", mcp.Description("Workspace to search"), mcp.Required()),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpSearchWorkspace(deps),
	)

	s.AddTool(
		mcp.NewTool("run_workflow",
			mcp.WithDescription("Execute a workspace's stored workflow graph against a query."),
			mcp.WithString("workspace_id", mcp.Description("Workspace whose workflow to run"), mcp.Required()),
			mcp.WithString("query", mcp.Description("User query to feed the workflow"), mcp.Required()),
		),
		mcpRunWorkflow(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"flowrag://workspaces",
			"Workspaces",
			mcp.WithResourceDescription("All workspaces with their document counts"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceWorkspaces(deps),
	)

	return s
}

func mcpIngestDocument(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		workspaceID, err := req.RequireString("workspace_id")
		if err != nil {
			return mcpError("workspace_id is required"), nil
		}
		filename, err := req.RequireString("filename")
		if err != nil {
			return mcpError("filename is required"), nil
		}
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}

		if _, err := deps.Store.GetWorkspace(workspaceID); errors.Is(err, storage.ErrNotFound) {
			return mcpError("workspace not found"), nil
		} else if err != nil {
			return mcpError(fmt.Sprintf("failed to get workspace: %v", err)), nil
		}

		ingested, err := deps.Ingester.Ingest(content, workspaceID, filename)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to index document: %v", err)), nil
		}

		doc := storage.Document{
			ID:          uuid.New().String(),
			WorkspaceID: workspaceID,
			Filename:    filename,
			ContentType: "text/plain",
			SizeBytes:   int64(len(content)),
			ChunkCount:  ingested.ChunkCount,
			CreatedAt:   time.Now().UTC(),
		}
		if err := deps.Store.SaveDocument(doc); err != nil {
			return mcpError(fmt.Sprintf("indexed but failed to register document: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Indexed %s as %d chunks (document %s)", filename, ingested.ChunkCount, doc.ID)), nil
	}
}

func mcpSearchWorkspace(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		workspaceID, err := req.RequireString("workspace_id")
		if err != nil {
			return mcpError("workspace_id is required"), nil
		}
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", vectorstore.DefaultTopK)
		if limit <= 0 {
			limit = vectorstore.DefaultTopK
		}
		if limit > 50 {
			limit = 50
		}

		hits, err := deps.Searcher.Search(workspaceID, query, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(hits) == 0 {
			return mcpText("[]"), nil
		}

		type hitResult struct {
			Text     string            `json:"text"`
			Metadata map[string]string `json:"metadata,omitempty"`
			Distance float32           `json:"distance"`
		}
		results := make([]hitResult, len(hits))
		for i, h := range hits {
			results[i] = hitResult{Text: h.Text, Metadata: h.Metadata, Distance: h.Distance}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpRunWorkflow(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		workspaceID, err := req.RequireString("workspace_id")
		if err != nil {
			return mcpError("workspace_id is required"), nil
		}
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		ws, err := deps.Store.GetWorkspace(workspaceID)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError("workspace not found"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get workspace: %v", err)), nil
		}

		g, err := graph.Parse([]byte(ws.Components))
		if err != nil {
			return mcpError(fmt.Sprintf("invalid workflow graph: %v", err)), nil
		}

		result := deps.Executor.Execute(ctx, g, workspaceID, query)
		if !result.Success {
			return mcpError(result.Error), nil
		}

		b, err := json.Marshal(result)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceWorkspaces(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		workspaces, err := deps.Store.ListWorkspaces()
		if err != nil {
			return nil, fmt.Errorf("failed to list workspaces: %w", err)
		}

		type workspaceSummary struct {
			ID            string `json:"id"`
			Name          string `json:"name"`
			DocumentCount int    `json:"document_count"`
		}
		summaries := make([]workspaceSummary, len(workspaces))
		for i, ws := range workspaces {
			docs, err := deps.Store.ListDocuments(ws.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to list documents for %s: %w", ws.ID, err)
			}
			summaries[i] = workspaceSummary{ID: ws.ID, Name: ws.Name, DocumentCount: len(docs)}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal workspaces: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
