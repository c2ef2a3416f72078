package interaction

import (
	"testing"

	"github.com/valuegraph/engine/pkg/model"
)

type recorder struct {
	deltas   []model.Delta
	selected []string
}

func newRecordedHandler(g *model.Graph) (*Handler, *recorder) {
	rec := &recorder{}
	h := NewHandler(g)
	h.Emit = func(d model.Delta) { rec.deltas = append(rec.deltas, d) }
	h.Select = func(id string) { rec.selected = append(rec.selected, id) }
	return h, rec
}

func emptyGraph() *model.Graph { return model.NewGraph() }

func TestClickSelectsWithoutDelta(t *testing.T) {
	h, rec := newRecordedHandler(emptyGraph())

	h.PointerDown("n1", model.Position{X: 100, Y: 100})
	h.PointerMove(model.Position{X: 101, Y: 101})
	h.PointerMove(model.Position{X: 100, Y: 100})
	h.PointerUp(false)

	if len(rec.deltas) != 0 {
		t.Errorf("click emitted %d deltas", len(rec.deltas))
	}
	if len(rec.selected) != 1 || rec.selected[0] != "n1" {
		t.Errorf("selected = %v, want [n1]", rec.selected)
	}
}

func TestDragEmitsSingleDelta(t *testing.T) {
	h, rec := newRecordedHandler(emptyGraph())

	h.PointerDown("n1", model.Position{X: 100, Y: 100})
	for x := 101.0; x <= 150; x++ {
		h.PointerMove(model.Position{X: x, Y: 100})
	}
	h.PointerUp(false)

	if len(rec.selected) != 0 {
		t.Errorf("drag selected %v", rec.selected)
	}
	if len(rec.deltas) != 1 {
		t.Fatalf("drag emitted %d deltas, want exactly 1", len(rec.deltas))
	}
	d := rec.deltas[0]
	if d.Op != model.OpUpdateNode {
		t.Fatalf("op = %s, want update_node", d.Op)
	}
	u := d.NodeUpdate
	if u.ID != "n1" || u.Position == nil || u.Position.X != 150 || u.Position.Y != 100 {
		t.Errorf("unexpected update %+v", u)
	}
	if u.Pinned == nil || *u.Pinned {
		t.Errorf("release without modifier should unpin, got %v", u.Pinned)
	}
}

func TestDragWithModifierPins(t *testing.T) {
	h, rec := newRecordedHandler(emptyGraph())

	h.PointerDown("n1", model.Position{X: 0, Y: 0})
	h.PointerMove(model.Position{X: 40, Y: 0})
	h.PointerUp(true)

	if len(rec.deltas) != 1 {
		t.Fatalf("emitted %d deltas", len(rec.deltas))
	}
	u := rec.deltas[0].NodeUpdate
	if u.Pinned == nil || !*u.Pinned {
		t.Error("modifier release did not pin the node")
	}
	if h.StateOf("n1") != Pinned {
		t.Errorf("state after pin = %s", h.StateOf("n1"))
	}
}

func TestPinnedNodeCanBeReDragged(t *testing.T) {
	g := emptyGraph()
	g.Nodes["n1"] = &model.GraphNode{
		ID: "n1", Kind: model.KindDriver, Label: "n",
		Status: model.StatusActive, Stage: model.StageCommitment, Pinned: true,
	}
	h, rec := newRecordedHandler(g)

	if h.StateOf("n1") != Pinned {
		t.Fatalf("seed state = %s, want pinned", h.StateOf("n1"))
	}

	h.PointerDown("n1", model.Position{X: 0, Y: 0})
	if h.StateOf("n1") != Dragging {
		t.Errorf("state during drag = %s", h.StateOf("n1"))
	}
	h.PointerMove(model.Position{X: 30, Y: 30})
	h.PointerUp(false)

	if h.StateOf("n1") != Free {
		t.Errorf("release without modifier left state %s", h.StateOf("n1"))
	}
	if len(rec.deltas) != 1 {
		t.Fatalf("emitted %d deltas", len(rec.deltas))
	}
	if u := rec.deltas[0].NodeUpdate; u.Pinned == nil || *u.Pinned {
		t.Error("re-drag release should clear the pin")
	}
}

func TestCumulativeTravelCountsAsDrag(t *testing.T) {
	h, rec := newRecordedHandler(emptyGraph())

	// Back-and-forth wiggle: net displacement 0, cumulative travel 6.
	h.PointerDown("n1", model.Position{X: 0, Y: 0})
	h.PointerMove(model.Position{X: 3, Y: 0})
	h.PointerMove(model.Position{X: 0, Y: 0})
	h.PointerUp(false)

	if len(rec.selected) != 0 {
		t.Error("wiggle past the threshold still selected")
	}
	if len(rec.deltas) != 1 {
		t.Errorf("wiggle emitted %d deltas", len(rec.deltas))
	}
}

func TestVisualPositionTracksPointer(t *testing.T) {
	h, _ := newRecordedHandler(emptyGraph())

	if _, ok := h.VisualPosition("n1"); ok {
		t.Error("idle handler reported a visual override")
	}

	h.PointerDown("n1", model.Position{X: 10, Y: 10})
	h.PointerMove(model.Position{X: 55, Y: 60})

	pos, ok := h.VisualPosition("n1")
	if !ok || pos.X != 55 || pos.Y != 60 {
		t.Errorf("visual position = %+v ok=%v", pos, ok)
	}
	if _, ok := h.VisualPosition("n2"); ok {
		t.Error("non-dragged node reported a visual override")
	}
	if id, ok := h.Dragging(); !ok || id != "n1" {
		t.Errorf("Dragging() = %q, %v", id, ok)
	}

	h.PointerUp(false)
	if _, ok := h.VisualPosition("n1"); ok {
		t.Error("visual override survived release")
	}
}

func TestObservePin(t *testing.T) {
	h, _ := newRecordedHandler(emptyGraph())

	h.ObservePin("n1", true)
	if h.StateOf("n1") != Pinned {
		t.Errorf("state = %s after remote pin", h.StateOf("n1"))
	}
	h.ObservePin("n1", false)
	if h.StateOf("n1") != Free {
		t.Errorf("state = %s after remote unpin", h.StateOf("n1"))
	}
}

func TestMoveAndUpWithoutDownAreNoOps(t *testing.T) {
	h, rec := newRecordedHandler(emptyGraph())

	h.PointerMove(model.Position{X: 10, Y: 10})
	h.PointerUp(false)

	if len(rec.deltas) != 0 || len(rec.selected) != 0 {
		t.Errorf("stray events produced output: %v %v", rec.deltas, rec.selected)
	}
}
