package graph

import (
	"encoding/json"
	"fmt"
)

// NodeType is the closed set of node kinds the executor understands.
// Unknown strings parse into an untyped value so dispatch can reject them
// explicitly instead of failing at decode time.
type NodeType string

const (
	NodeUserQuery     NodeType = "userQuery"
	NodeKnowledgeBase NodeType = "knowledgeBase"
	NodeLLMEngine     NodeType = "llmEngine"
	NodeOutput        NodeType = "output"
)

// NodeData carries per-node configuration. Only llmEngine nodes use it.
type NodeData struct {
	Provider     string `json:"provider,omitempty"`
	Model        string `json:"model,omitempty"`
	APIKey       string `json:"api_key,omitempty"`
	UseWebSearch bool   `json:"use_web_search,omitempty"`
	SerpAPIKey   string `json:"serp_api_key,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

// Node is one vertex of a workflow graph.
type Node struct {
	ID   string   `json:"id"`
	Type NodeType `json:"type"`
	Data NodeData `json:"data,omitempty"`
}

// Edge is a directed connection between two nodes by id.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Graph is the node/edge description a workspace stores and the resolver
// interprets.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Parse decodes a components JSON document into a Graph. An empty or null
// document yields an empty graph.
func Parse(components []byte) (Graph, error) {
	if len(components) == 0 {
		return Graph{}, nil
	}
	var g Graph
	if err := json.Unmarshal(components, &g); err != nil {
		return Graph{}, fmt.Errorf("parsing workflow components: %w", err)
	}
	return g, nil
}
