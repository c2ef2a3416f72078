// Package analysis derives structural insights from the value graph that
// the visualization surfaces as warnings: causal loops and disconnected
// nodes.
package analysis

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/graph/simple"

	"github.com/valuegraph/engine/pkg/model"
)

// Issue flags a structural problem in the graph.
type Issue struct {
	Kind     string   `json:"kind"`     // "causal_cycle" or "isolated_node"
	NodeIDs  []string `json:"nodeIds"`  // Nodes involved
	Severity string   `json:"severity"` // "warning" or "info"
	Message  string   `json:"message"`
}

// Analyze runs all structural checks. Output order is deterministic.
func Analyze(g *model.Graph) []Issue {
	var issues []Issue

	for _, cycle := range FindCausalCycles(g) {
		issues = append(issues, Issue{
			Kind:     "causal_cycle",
			NodeIDs:  cycle,
			Severity: "warning",
			Message:  fmt.Sprintf("causal loop through %d nodes: value attribution is circular", len(cycle)),
		})
	}

	connected := make(map[string]bool)
	for _, e := range g.Edges {
		connected[e.SourceID] = true
		connected[e.TargetID] = true
	}
	for _, id := range g.NodeIDs() {
		if !connected[id] {
			issues = append(issues, Issue{
				Kind:     "isolated_node",
				NodeIDs:  []string{id},
				Severity: "info",
				Message:  fmt.Sprintf("node %q has no edges", id),
			})
		}
	}

	return issues
}

// FindCausalCycles returns every cycle formed by causal edges, each as a
// sorted list of node IDs. A hypothesis that causes an outcome that causes
// the hypothesis back is circular value attribution, which the methodology
// forbids.
func FindCausalCycles(g *model.Graph) [][]string {
	dg := simple.NewDirectedGraph()
	ids := make(map[string]int64, len(g.Nodes))
	byID := make(map[int64]string, len(g.Nodes))
	var next int64
	for _, id := range g.NodeIDs() {
		ids[id] = next
		byID[next] = id
		dg.AddNode(simple.Node(next))
		next++
	}
	for _, eid := range g.EdgeIDs() {
		e := g.Edges[eid]
		if e.Kind != model.EdgeCausal {
			continue
		}
		s, t := ids[e.SourceID], ids[e.TargetID]
		if s == t || dg.HasEdgeFromTo(s, t) {
			continue
		}
		dg.SetEdge(dg.NewEdge(simple.Node(s), simple.Node(t)))
	}

	sccs := newTarjanSCC(dg).findSCCs()
	cycles := make([][]string, 0, len(sccs))
	for _, scc := range sccs {
		cycle := make([]string, 0, len(scc))
		for _, gid := range scc {
			cycle = append(cycle, byID[gid])
		}
		sort.Strings(cycle)
		cycles = append(cycles, cycle)
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i][0] < cycles[j][0] })
	return cycles
}
