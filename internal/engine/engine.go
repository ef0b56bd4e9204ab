package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/flowrag/flowrag/internal/graph"
	"github.com/flowrag/flowrag/internal/provider"
	"github.com/flowrag/flowrag/internal/vectorstore"
)

// NoContextSentinel is returned as the response body of a retrieve-only
// execution that found nothing. It is a normal outcome, not an error.
const NoContextSentinel = "No matching context found."

const topK = 5

// UnsupportedSourceTypeError reports a node type the engine cannot drive
// execution from.
type UnsupportedSourceTypeError struct {
	Type graph.NodeType
}

func (e *UnsupportedSourceTypeError) Error() string {
	return fmt.Sprintf("unsupported source %q connected to output", string(e.Type))
}

// VectorReader is the slice of the vector store the engine needs.
type VectorReader interface {
	Search(workspaceID, queryText string, k int) ([]vectorstore.Result, error)
	GetAll(workspaceID string) ([]vectorstore.Entry, error)
}

// DocumentLister names the documents belonging to a workspace. Satisfied
// by the relational metadata store.
type DocumentLister interface {
	ListDocumentNames(ctx context.Context, workspaceID string) ([]string, error)
}

// Result is the structured outcome of one execution call.
type Result struct {
	Success        bool     `json:"success"`
	Response       string   `json:"response,omitempty"`
	Error          string   `json:"error,omitempty"`
	ContextUsed    []string `json:"context_used"`
	Provider       string   `json:"provider,omitempty"`
	Model          string   `json:"llm_used,omitempty"`
	WebSearchUsed  bool     `json:"web_search_used,omitempty"`
	ProcessingTime float64  `json:"processing_time"`
}

// Engine executes a resolved workflow path: echo, retrieve-only, or
// retrieve-and-generate, depending on the node feeding the output.
type Engine struct {
	vectors   VectorReader
	docs      DocumentLister
	providers *provider.Registry
	web       provider.WebSearcher
	logger    *slog.Logger
}

// New creates an Engine. web may be nil when web search is not deployed;
// llmEngine nodes requesting it then simply get zero results.
func New(vectors VectorReader, docs DocumentLister, providers *provider.Registry, web provider.WebSearcher) *Engine {
	return &Engine{
		vectors:   vectors,
		docs:      docs,
		providers: providers,
		web:       web,
		logger:    slog.Default(),
	}
}

// Execute resolves g's active path and performs the corresponding action
// against the workspace. It never returns an error: every failure,
// including graph misconfiguration and internal panics, becomes a Result
// with Success=false, a message, and zero processing time. Callers map
// failures to their own status codes.
func (e *Engine) Execute(ctx context.Context, g graph.Graph, workspaceID, query string) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("execution panicked", "workspace_id", workspaceID, "panic", r)
			result = failure(fmt.Errorf("internal error: %v", r))
		}
	}()

	path, err := graph.Resolve(g)
	if err != nil {
		return failure(err)
	}

	start := time.Now()

	switch path.Upstream.Type {
	case graph.NodeUserQuery:
		return e.echo(query, start)
	case graph.NodeKnowledgeBase:
		return e.retrieveOnly(workspaceID, query, start)
	case graph.NodeLLMEngine:
		return e.retrieveAndGenerate(ctx, path, workspaceID, query, start)
	default:
		return failure(&UnsupportedSourceTypeError{Type: path.Upstream.Type})
	}
}

// echo forwards the query to the output untouched.
func (e *Engine) echo(query string, start time.Time) Result {
	return Result{
		Success:        true,
		Response:       query,
		ContextUsed:    []string{},
		Provider:       "user",
		Model:          "user-query",
		ProcessingTime: time.Since(start).Seconds(),
	}
}

// retrieveOnly answers with the top-k nearest chunks joined together.
func (e *Engine) retrieveOnly(workspaceID, query string, start time.Time) Result {
	hits, err := e.vectors.Search(workspaceID, query, topK)
	if err != nil {
		return failure(fmt.Errorf("searching knowledge base: %w", err))
	}

	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
	}

	response := NoContextSentinel
	if len(texts) > 0 {
		response = strings.Join(texts, "\n---\n")
	}

	return Result{
		Success:        true,
		Response:       response,
		ContextUsed:    texts,
		Provider:       "knowledge-base",
		Model:          "kb-search",
		ProcessingTime: time.Since(start).Seconds(),
	}
}

// retrieveAndGenerate gathers knowledge-base context from the llmEngine
// node's feeders, optionally augments it with web results, and dispatches
// the assembled prompt to the configured generation provider.
func (e *Engine) retrieveAndGenerate(ctx context.Context, path graph.ResolvedPath, workspaceID, query string, start time.Time) Result {
	var contextTexts []string
	for _, feeder := range path.Feeders {
		if feeder.Type != graph.NodeKnowledgeBase {
			continue
		}
		texts, err := e.gatherWorkspaceContext(ctx, workspaceID)
		if err != nil {
			// Context gathering is best-effort: log and generate
			// without it rather than failing the execution.
			e.logger.Warn("gathering knowledge base context failed",
				"workspace_id", workspaceID, "error", err)
			continue
		}
		contextTexts = append(contextTexts, texts...)
	}

	data := path.Upstream.Data
	providerName := data.Provider
	if providerName == "" {
		providerName = "openai"
	}
	model := provider.ResolveModel(providerName, data.Model)

	var webResults []provider.WebResult
	if data.UseWebSearch && data.SerpAPIKey != "" && e.web != nil {
		results, err := e.web.Search(ctx, query, data.SerpAPIKey, topK)
		if err != nil {
			// Web search failures degrade to zero results, never to an
			// execution failure.
			e.logger.Warn("web search failed", "error", err)
		} else {
			webResults = results
		}
	}

	prompt := BuildPrompt(contextTexts, webResults, data.Instructions, query)

	var response string
	if data.APIKey == "" {
		response = mockResponse(query, len(contextTexts), len(webResults), providerName)
	} else {
		generated, err := e.providers.ForName(providerName).Generate(ctx, prompt, model, data.APIKey)
		if err != nil {
			// Degrade provider errors into a labeled response; the
			// execution itself still completed.
			e.logger.Warn("generation call failed", "provider", providerName, "error", err)
			response = fmt.Sprintf("Error calling %s API: %v", providerName, err)
		} else {
			response = generated
		}
	}

	if contextTexts == nil {
		contextTexts = []string{}
	}
	return Result{
		Success:        true,
		Response:       response,
		ContextUsed:    contextTexts,
		Provider:       providerName,
		Model:          model,
		WebSearchUsed:  len(webResults) > 0,
		ProcessingTime: time.Since(start).Seconds(),
	}
}

// mockResponse is the placeholder produced when the llmEngine node
// carries no API key, keeping the pipeline testable without credentials.
func mockResponse(query string, contextCount, webCount int, providerName string) string {
	return fmt.Sprintf(
		"This is a mock response to: %s\n\nContext provided: %d documents\n\nWeb search results: %d results\n\n(No API key provided - using %s mock mode)",
		query, contextCount, webCount, providerName)
}

func failure(err error) Result {
	return Result{
		Success:        false,
		Error:          err.Error(),
		ContextUsed:    []string{},
		ProcessingTime: 0,
	}
}
