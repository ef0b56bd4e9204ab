package engine

import (
	"fmt"
	"strings"

	"github.com/flowrag/flowrag/internal/provider"
)

// BuildPrompt assembles the generation prompt: knowledge-base context
// first, then web results, then the node's custom instructions, then the
// literal question. Empty sections are omitted entirely.
func BuildPrompt(contextTexts []string, webResults []provider.WebResult, instructions, question string) string {
	var sb strings.Builder

	if len(contextTexts) > 0 {
		sb.WriteString("Context from Knowledge Base:\n")
		sb.WriteString(strings.Join(contextTexts, "\n"))
		sb.WriteString("\n\n")
	}

	if len(webResults) > 0 {
		sb.WriteString("Web Search Results:\n")
		for _, r := range webResults {
			fmt.Fprintf(&sb, "Title: %s\nSnippet: %s\nURL: %s\n", r.Title, r.Snippet, r.URL)
		}
		sb.WriteString("\n")
	}

	if instructions != "" {
		sb.WriteString("Instructions:\n")
		sb.WriteString(instructions)
		sb.WriteString("\n\n")
	}

	fmt.Fprintf(&sb, "Question: %s\n\nAnswer:", question)
	return sb.String()
}
