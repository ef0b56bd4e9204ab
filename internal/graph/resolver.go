package graph

import "errors"

// ErrNoOutputNode means the graph has no output node to deliver a result.
var ErrNoOutputNode = errors.New("no output node found; connect an output node to run")

// ErrDisconnectedOutput means the output node has no incoming edge.
var ErrDisconnectedOutput = errors.New("output node is not connected to any source")

// ResolvedPath identifies the single node that will drive execution: the
// first upstream source of the first output node. When the upstream node
// is an llmEngine, Feeders holds the nodes with edges into it, in edge
// order, so the executor can discover attached knowledge bases.
type ResolvedPath struct {
	Output   Node
	Upstream Node
	Feeders  []Node
}

// Resolve locates the active execution path of a graph.
//
// The graph model supports one live output path per execution: when
// several output nodes or several incoming edges exist, the first in
// insertion order wins and the rest are ignored. The tie-break is
// deterministic but arbitrary; true fan-in semantics are out of scope.
func Resolve(g Graph) (ResolvedPath, error) {
	byID := make(map[string]Node, len(g.Nodes))
	for _, n := range g.Nodes {
		byID[n.ID] = n
	}

	var output Node
	found := false
	for _, n := range g.Nodes {
		if n.Type == NodeOutput {
			output = n
			found = true
			break
		}
	}
	if !found {
		return ResolvedPath{}, ErrNoOutputNode
	}

	sources := incomingSources(g, byID, output.ID)
	if len(sources) == 0 {
		return ResolvedPath{}, ErrDisconnectedOutput
	}

	upstream := sources[0]
	path := ResolvedPath{Output: output, Upstream: upstream}
	if upstream.Type == NodeLLMEngine {
		path.Feeders = incomingSources(g, byID, upstream.ID)
	}
	return path, nil
}

// incomingSources returns the nodes with an edge into targetID, in edge
// list order. Edges referencing unknown source ids are skipped.
func incomingSources(g Graph, byID map[string]Node, targetID string) []Node {
	var sources []Node
	for _, e := range g.Edges {
		if e.Target != targetID {
			continue
		}
		if n, ok := byID[e.Source]; ok {
			sources = append(sources, n)
		}
	}
	return sources
}
