package layout

import (
	"math"
	"testing"

	"github.com/valuegraph/engine/pkg/model"
)

func chain(n int) ([]*model.GraphNode, []*model.GraphEdge) {
	nodes := make([]*model.GraphNode, n)
	for i := range nodes {
		nodes[i] = &model.GraphNode{
			ID:     string(rune('a' + i)),
			Kind:   model.KindDriver,
			Label:  "node",
			Status: model.StatusActive,
			Stage:  model.StageCommitment,
		}
	}
	edges := make([]*model.GraphEdge, 0, n-1)
	for i := 0; i < n-1; i++ {
		edges = append(edges, &model.GraphEdge{
			ID:       "e" + nodes[i].ID,
			SourceID: nodes[i].ID,
			TargetID: nodes[i+1].ID,
			Kind:     model.EdgeCausal,
			Strength: 0.6,
		})
	}
	return nodes, edges
}

func runToSettled(t *testing.T, e *Engine) {
	t.Helper()
	for i := 0; i < 200 && !e.Settled(); i++ {
		e.Step(10)
	}
	if !e.Settled() {
		t.Fatal("simulation did not settle within the iteration cap")
	}
}

func TestDeterminism(t *testing.T) {
	nodes, edges := chain(6)

	run := func() map[string]model.Position {
		e := New(DefaultConfig())
		e.SetGraph(nodes, edges)
		runToSettled(t, e)
		return e.Positions()
	}

	a, b := run(), run()
	if len(a) != len(b) {
		t.Fatalf("runs produced %d and %d positions", len(a), len(b))
	}
	for id, pa := range a {
		pb := b[id]
		if pa != pb {
			t.Errorf("node %s diverged: %+v vs %+v", id, pa, pb)
		}
	}
}

func TestSeedChangesLayout(t *testing.T) {
	nodes, edges := chain(6)

	run := func(seed int64) map[string]model.Position {
		cfg := DefaultConfig()
		cfg.Seed = seed
		e := New(cfg)
		e.SetGraph(nodes, edges)
		runToSettled(t, e)
		return e.Positions()
	}

	a, b := run(1), run(2)
	same := true
	for id, pa := range a {
		if pa != b[id] {
			same = false
		}
	}
	if same {
		t.Error("different seeds produced identical layouts")
	}
}

func TestStepRespectsBudget(t *testing.T) {
	nodes, edges := chain(8)
	e := New(DefaultConfig())
	e.SetGraph(nodes, edges)

	res := e.Step(3)
	if res.Iterations > 3 {
		t.Errorf("Step(3) ran %d iterations", res.Iterations)
	}
	if res.Settled {
		t.Error("cold run settled after 3 iterations")
	}
}

func TestWarmStartKeepsRetainedNodes(t *testing.T) {
	nodes, edges := chain(5)
	e := New(DefaultConfig())
	e.SetGraph(nodes, edges)
	runToSettled(t, e)
	before := e.Positions()

	// Add a sixth node attached to the tail; the first five must not jump.
	extra := &model.GraphNode{
		ID: "z", Kind: model.KindKPI, Label: "node",
		Status: model.StatusActive, Stage: model.StageCommitment,
	}
	nodes = append(nodes, extra)
	edges = append(edges, &model.GraphEdge{
		ID: "ez", SourceID: "e", TargetID: "z", Kind: model.EdgeCausal, Strength: 0.6,
	})
	e.SetGraph(nodes, edges)

	after := e.Positions()
	for _, n := range nodes[:5] {
		if before[n.ID] != after[n.ID] {
			t.Errorf("retained node %s moved on SetGraph: %+v -> %+v", n.ID, before[n.ID], after[n.ID])
		}
	}
	if e.Settled() {
		t.Error("engine stayed settled after the graph changed")
	}

	// The new node starts near its only placed neighbor.
	zp, ok := e.Position("z")
	if !ok {
		t.Fatal("new node has no position")
	}
	np := after["e"]
	if d := math.Hypot(zp.X-np.X, zp.Y-np.Y); d > DefaultConfig().BaseDistance {
		t.Errorf("new node placed %v away from its neighbor", d)
	}
}

func TestStoredPositionIsAdopted(t *testing.T) {
	nodes, edges := chain(2)
	nodes[0].Position = model.Position{X: 321, Y: 123}

	e := New(DefaultConfig())
	e.SetGraph(nodes, edges)
	p, _ := e.Position(nodes[0].ID)
	if p.X != 321 || p.Y != 123 {
		t.Errorf("stored position ignored, got %+v", p)
	}
}

func TestPinnedNodeStaysPut(t *testing.T) {
	nodes, edges := chain(4)
	nodes[1].Pinned = true
	nodes[1].Position = model.Position{X: 400, Y: 400}

	e := New(DefaultConfig())
	e.SetGraph(nodes, edges)
	runToSettled(t, e)

	p, _ := e.Position(nodes[1].ID)
	if p.X != 400 || p.Y != 400 {
		t.Errorf("pinned node moved to %+v", p)
	}
}

func TestRepositionRestartsRun(t *testing.T) {
	nodes, edges := chain(4)
	e := New(DefaultConfig())
	e.SetGraph(nodes, edges)
	runToSettled(t, e)

	e.Reposition("a", model.Position{X: 50, Y: 50}, true)
	if e.Settled() {
		t.Error("run still settled after Reposition")
	}
	p, _ := e.Position("a")
	if p.X != 50 || p.Y != 50 {
		t.Errorf("Reposition put the node at %+v", p)
	}

	runToSettled(t, e)
	p, _ = e.Position("a")
	if p.X != 50 || p.Y != 50 {
		t.Errorf("pinned node drifted to %+v after resettling", p)
	}
}

func TestCollisionSeparation(t *testing.T) {
	nodes, edges := chain(5)
	e := New(DefaultConfig())
	e.SetGraph(nodes, edges)
	runToSettled(t, e)

	pos := e.Positions()
	for i := 0; i < len(nodes); i++ {
		for j := i + 1; j < len(nodes); j++ {
			a, b := pos[nodes[i].ID], pos[nodes[j].ID]
			minDist := collisionRadius(nodes[i].Kind) + collisionRadius(nodes[j].Kind)
			if d := math.Hypot(a.X-b.X, a.Y-b.Y); d < minDist-1 {
				t.Errorf("nodes %s and %s overlap: %.1f < %.1f", nodes[i].ID, nodes[j].ID, d, minDist)
			}
		}
	}
}

func TestEmptyGraphIsSettled(t *testing.T) {
	e := New(DefaultConfig())
	e.SetGraph(nil, nil)
	if !e.Settled() {
		t.Error("empty graph should be settled immediately")
	}
	if res := e.Step(5); res.Iterations != 0 {
		t.Errorf("Step on an empty graph ran %d iterations", res.Iterations)
	}
}

func TestHideThenUnhideKeepsVisibleNodesStill(t *testing.T) {
	nodes, edges := chain(8)
	e := New(DefaultConfig())
	e.SetGraph(nodes, edges)
	runToSettled(t, e)
	settled := e.Positions()

	// Hiding the tail half of the chain must not move the survivors.
	e.SetGraph(nodes[:4], edges[:3])
	for _, n := range nodes[:4] {
		if got := e.Positions()[n.ID]; got != settled[n.ID] {
			t.Errorf("node %s moved when others were hidden: %+v vs %+v",
				n.ID, got, settled[n.ID])
		}
	}

	// Bringing the hidden nodes back must not move them either, even
	// though the narrowed run had started over.
	e.SetGraph(nodes, edges)
	for _, n := range nodes[:4] {
		if got := e.Positions()[n.ID]; got != settled[n.ID] {
			t.Errorf("node %s moved when hidden nodes returned: %+v vs %+v",
				n.ID, got, settled[n.ID])
		}
	}
	for _, n := range nodes[4:] {
		if _, ok := e.Positions()[n.ID]; !ok {
			t.Errorf("returning node %s was not placed", n.ID)
		}
	}
}
