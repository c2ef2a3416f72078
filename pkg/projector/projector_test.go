package projector

import (
	"testing"

	"github.com/valuegraph/engine/pkg/model"
)

func testGraph(t *testing.T) *model.Graph {
	t.Helper()
	g, err := model.FromSnapshot(model.Snapshot{
		Nodes: []*model.GraphNode{
			{ID: "d1", Kind: model.KindDriver, Label: "Market demand", Status: model.StatusActive, Stage: model.StageCommitment},
			{ID: "o1", Kind: model.KindOutcome, Label: "Revenue growth", Status: model.StatusActive, Stage: model.StageCommitment},
			{ID: "o2", Kind: model.KindOutcome, Label: "Churn reduction", Status: model.StatusActive, Stage: model.StageHypothesis},
			{ID: "m1", Kind: model.KindKPI, Label: "Monthly revenue", Status: model.StatusActive, Stage: model.StageRealization},
		},
		Edges: []*model.GraphEdge{
			{ID: "e1", SourceID: "d1", TargetID: "o1", Kind: model.EdgeCausal, Strength: 0.8},
			{ID: "e2", SourceID: "o1", TargetID: "m1", Kind: model.EdgeAttribution, Strength: 0.5},
			{ID: "e3", SourceID: "d1", TargetID: "o2", Kind: model.EdgeCausal, Strength: 0.4},
		},
	})
	if err != nil {
		t.Fatalf("building graph: %v", err)
	}
	return g
}

func nodeIDs(p Projection) []string {
	ids := make([]string, len(p.Nodes))
	for i, n := range p.Nodes {
		ids[i] = n.ID
	}
	return ids
}

func edgeIDs(p Projection) []string {
	ids := make([]string, len(p.Edges))
	for i, e := range p.Edges {
		ids[i] = e.ID
	}
	return ids
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestProject(t *testing.T) {
	g := testGraph(t)

	tests := []struct {
		name      string
		filter    Filter
		wantNodes []string
		wantEdges []string
	}{
		{
			name:      "zero filter shows everything",
			filter:    Filter{},
			wantNodes: []string{"d1", "m1", "o1", "o2"},
			wantEdges: []string{"e1", "e2", "e3"},
		},
		{
			name:      "stage all is the same as no stage",
			filter:    Filter{Stage: StageAll},
			wantNodes: []string{"d1", "m1", "o1", "o2"},
			wantEdges: []string{"e1", "e2", "e3"},
		},
		{
			name:      "stage filter hides edges with hidden endpoints",
			filter:    Filter{Stage: model.StageCommitment},
			wantNodes: []string{"d1", "o1"},
			wantEdges: []string{"e1"},
		},
		{
			name:      "kind filter",
			filter:    Filter{Kinds: map[model.NodeKind]bool{model.KindOutcome: true}},
			wantNodes: []string{"o1", "o2"},
			wantEdges: nil,
		},
		{
			name:      "search is case insensitive substring",
			filter:    Filter{Search: "REVENUE"},
			wantNodes: []string{"m1", "o1"},
			wantEdges: []string{"e2"},
		},
		{
			name:      "filters compose",
			filter:    Filter{Stage: model.StageCommitment, Search: "revenue"},
			wantNodes: []string{"o1"},
			wantEdges: nil,
		},
		{
			name:      "no match",
			filter:    Filter{Search: "no such label"},
			wantNodes: nil,
			wantEdges: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Project(g, tt.filter)
			if got := nodeIDs(p); !equalStrings(got, tt.wantNodes) {
				t.Errorf("nodes = %v, want %v", got, tt.wantNodes)
			}
			if got := edgeIDs(p); !equalStrings(got, tt.wantEdges) {
				t.Errorf("edges = %v, want %v", got, tt.wantEdges)
			}
		})
	}
}

// TestProjectionIsSubset checks that every filtered projection is contained
// in the unfiltered one.
func TestProjectionIsSubset(t *testing.T) {
	g := testGraph(t)
	all := Project(g, Filter{}).NodeIDs()

	filters := []Filter{
		{Stage: model.StageHypothesis},
		{Kinds: map[model.NodeKind]bool{model.KindDriver: true, model.KindKPI: true}},
		{Search: "re"},
	}
	for _, f := range filters {
		p := Project(g, f)
		for id := range p.NodeIDs() {
			if !all[id] {
				t.Errorf("filter %+v produced node %q outside the full projection", f, id)
			}
		}
		visible := p.NodeIDs()
		for _, e := range p.Edges {
			if !visible[e.SourceID] || !visible[e.TargetID] {
				t.Errorf("filter %+v kept edge %q with a hidden endpoint", f, e.ID)
			}
		}
	}
}

func TestProjectDoesNotAliasMutations(t *testing.T) {
	g := testGraph(t)
	p := Project(g, Filter{})
	if len(p.Nodes) == 0 {
		t.Fatal("empty projection")
	}
	// Projection shares node pointers with the graph; the contract is that
	// callers treat both as read-only. Verify identity so a future copy does
	// not silently double the allocation cost.
	if p.Nodes[0] != g.Nodes[p.Nodes[0].ID] {
		t.Error("projection copied nodes instead of sharing them")
	}
}
