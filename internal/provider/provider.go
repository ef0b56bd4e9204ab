// Package provider holds the narrow outbound interfaces the execution
// engine calls: text generation against a hosted LLM API, and bounded web
// search. Each provider is a small HTTP client; keys are supplied per call
// because they belong to the workflow's llmEngine node, not to this
// process.
package provider

import "context"

// Generator produces a completion for a fully assembled prompt.
type Generator interface {
	Generate(ctx context.Context, prompt, model, apiKey string) (string, error)
}

// WebResult is one external search hit.
type WebResult struct {
	Title   string
	Snippet string
	URL     string
}

// WebSearcher fetches a bounded number of external search results.
type WebSearcher interface {
	Search(ctx context.Context, query, apiKey string, maxResults int) ([]WebResult, error)
}

// Registry maps provider names to Generator implementations. Unknown
// names fall back to the mock echo provider so execution never fails on
// an unrecognized provider string.
type Registry struct {
	generators map[string]Generator
	fallback   Generator
}

// NewRegistry creates a Registry with the standard hosted providers
// registered and the mock provider as fallback.
func NewRegistry() *Registry {
	return &Registry{
		generators: map[string]Generator{
			"openai":    NewOpenAI(""),
			"anthropic": NewAnthropic(""),
			"gemini":    NewGemini(""),
		},
		fallback: NewMock(),
	}
}

// Register overrides or adds a provider by name. Used by tests to point
// a provider at a fake server.
func (r *Registry) Register(name string, g Generator) {
	r.generators[name] = g
}

// ForName returns the Generator for name, or the mock fallback.
func (r *Registry) ForName(name string) Generator {
	if g, ok := r.generators[name]; ok {
		return g
	}
	return r.fallback
}
