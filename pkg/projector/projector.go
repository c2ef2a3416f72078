// Package projector derives the render-ready subgraph from the canonical
// graph. Project is a pure function: same graph and filter in, same
// projection out, no hidden state.
package projector

import "github.com/valuegraph/engine/pkg/model"

// StageAll matches every stage.
const StageAll model.Stage = "all"

// Filter selects the visible subgraph. The zero value shows everything.
type Filter struct {
	// Stage restricts nodes to one lifecycle stage. Empty or StageAll
	// matches all stages.
	Stage model.Stage
	// Kinds restricts nodes to a set of kinds. Empty matches all kinds.
	Kinds map[model.NodeKind]bool
	// Search keeps only nodes whose label contains the text,
	// case-insensitively.
	Search string
}

// Matches reports whether a node passes the filter.
func (f Filter) Matches(n *model.GraphNode) bool {
	if f.Stage != "" && f.Stage != StageAll && n.Stage != f.Stage {
		return false
	}
	if len(f.Kinds) > 0 && !f.Kinds[n.Kind] {
		return false
	}
	return n.MatchesSearch(f.Search)
}

// Projection is the filtered subgraph handed to layout and rendering.
// Nodes and Edges are sorted by ID.
type Projection struct {
	Nodes []*model.GraphNode
	Edges []*model.GraphEdge
}

// NodeIDs returns the set of visible node IDs.
func (p Projection) NodeIDs() map[string]bool {
	ids := make(map[string]bool, len(p.Nodes))
	for _, n := range p.Nodes {
		ids[n.ID] = true
	}
	return ids
}

// Project computes the visible subgraph. An edge is visible only when both
// of its endpoints are visible; a dangling edge is never shown.
func Project(g *model.Graph, f Filter) Projection {
	var p Projection
	visible := make(map[string]bool, len(g.Nodes))
	for _, id := range g.NodeIDs() {
		n := g.Nodes[id]
		if f.Matches(n) {
			visible[id] = true
			p.Nodes = append(p.Nodes, n)
		}
	}
	for _, id := range g.EdgeIDs() {
		e := g.Edges[id]
		if visible[e.SourceID] && visible[e.TargetID] {
			p.Edges = append(p.Edges, e)
		}
	}
	return p
}
