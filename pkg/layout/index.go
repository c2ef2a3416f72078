package layout

import (
	"sort"

	"gonum.org/v1/gonum/graph/simple"

	"github.com/valuegraph/engine/pkg/model"
)

// adjacency indexes the visible subgraph as an undirected gonum graph so the
// engine can answer neighbor queries during warm-start placement. Node IDs
// are strings in the data model; gonum works on int64, so the index keeps
// the mapping both ways.
type adjacency struct {
	graph  *simple.UndirectedGraph
	ids    map[string]int64
	byID   map[int64]string
	nextID int64
}

func newAdjacency() *adjacency {
	return &adjacency{
		graph: simple.NewUndirectedGraph(),
		ids:   make(map[string]int64),
		byID:  make(map[int64]string),
	}
}

func (a *adjacency) addNode(id string) {
	if _, exists := a.ids[id]; exists {
		return
	}
	a.ids[id] = a.nextID
	a.byID[a.nextID] = id
	a.graph.AddNode(simple.Node(a.nextID))
	a.nextID++
}

func (a *adjacency) addEdge(e *model.GraphEdge) {
	a.addNode(e.SourceID)
	a.addNode(e.TargetID)
	s, t := a.ids[e.SourceID], a.ids[e.TargetID]
	if s == t {
		return
	}
	if !a.graph.HasEdgeBetween(s, t) {
		a.graph.SetEdge(a.graph.NewEdge(simple.Node(s), simple.Node(t)))
	}
}

// neighbors returns the IDs adjacent to id, sorted so that callers iterate
// deterministically.
func (a *adjacency) neighbors(id string) []string {
	gid, ok := a.ids[id]
	if !ok {
		return nil
	}
	var out []string
	it := a.graph.From(gid)
	for it.Next() {
		out = append(out, a.byID[it.Node().ID()])
	}
	sort.Strings(out)
	return out
}

func buildAdjacency(nodes []*model.GraphNode, edges []*model.GraphEdge) *adjacency {
	a := newAdjacency()
	for _, n := range nodes {
		a.addNode(n.ID)
	}
	for _, e := range edges {
		a.addEdge(e)
	}
	return a
}
