package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/flowrag/flowrag/internal/vectorstore"
)

// gatherWorkspaceContext fetches every entry stored for the workspace and
// keeps the ones that belong to it, matched by an ordered list of
// strategies. The full-collection scan (rather than top-k search) is
// intentional: the llmEngine path feeds the provider everything the
// workspace knows and lets the model select.
func (e *Engine) gatherWorkspaceContext(ctx context.Context, workspaceID string) ([]string, error) {
	docNames, err := e.docs.ListDocumentNames(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("listing workspace documents: %w", err)
	}
	if len(docNames) == 0 {
		return nil, nil
	}

	entries, err := e.vectors.GetAll(workspaceID)
	if err != nil {
		return nil, fmt.Errorf("reading workspace collection: %w", err)
	}

	var matched []string
	for _, entry := range entries {
		if entryBelongsToWorkspace(entry, workspaceID, docNames) {
			matched = append(matched, entry.Text)
		}
	}
	return matched, nil
}

// entryBelongsToWorkspace evaluates matching strategies in priority
// order, stopping at the first hit; an entry no strategy claims is not
// included.
//
// The content-substring fallback is a documented heuristic, not reliable
// provenance: a filename that happens to appear inside another document's
// body produces a false positive. Metadata matching, being first, shields
// every entry written by this codebase; the fallback only fires for
// entries ingested without metadata.
func entryBelongsToWorkspace(entry vectorstore.Entry, workspaceID string, docNames []string) bool {
	strategies := []func() bool{
		// Workspace id recorded in metadata: most reliable.
		func() bool {
			return entry.Metadata["workspace_id"] == workspaceID
		},
		// Filename recorded in metadata matches a known document.
		func() bool {
			filename := entry.Metadata["filename"]
			if filename == "" {
				return false
			}
			for _, name := range docNames {
				if name == filename {
					return true
				}
			}
			return false
		},
		// Known filename (with or without extension) appears in the text.
		func() bool {
			for _, name := range docNames {
				if name == "" {
					continue
				}
				if strings.Contains(entry.Text, name) {
					return true
				}
				if bare := strings.TrimSuffix(strings.TrimSuffix(name, ".pdf"), ".PDF"); bare != name && strings.Contains(entry.Text, bare) {
					return true
				}
			}
			return false
		},
	}

	for _, match := range strategies {
		if match() {
			return true
		}
	}
	return false
}
