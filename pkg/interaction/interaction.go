// Package interaction translates pointer events on nodes into graph deltas.
// Position updates during a drag stay local and visual; a single
// update_node delta is committed only when the pointer is released, so the
// sync coordinator never sees per-frame traffic.
package interaction

import (
	"math"

	"github.com/valuegraph/engine/pkg/model"
)

// State is the per-node interaction state.
type State int

const (
	Free State = iota
	Dragging
	Pinned
)

func (s State) String() string {
	switch s {
	case Dragging:
		return "dragging"
	case Pinned:
		return "pinned"
	default:
		return "free"
	}
}

// ClickThreshold is the cumulative pointer travel, in pixels, under which a
// press-and-release counts as a click rather than a drag.
const ClickThreshold = 4.0

// Handler runs the drag/pin/select state machine for all nodes of one
// viewer. Emit receives the committed delta on drag release; Select
// receives clicked node IDs. Selection is local UI state and is never
// synchronized.
type Handler struct {
	Emit   func(model.Delta)
	Select func(nodeID string)

	pinned map[string]bool

	active   string
	state    State
	current  model.Position
	traveled float64
}

// NewHandler builds a handler seeded with the pin states of the given graph.
func NewHandler(g *model.Graph) *Handler {
	h := &Handler{pinned: make(map[string]bool)}
	for id, n := range g.Nodes {
		if n.Pinned {
			h.pinned[id] = true
		}
	}
	return h
}

// StateOf returns a node's current interaction state.
func (h *Handler) StateOf(nodeID string) State {
	if h.active == nodeID && h.state == Dragging {
		return Dragging
	}
	if h.pinned[nodeID] {
		return Pinned
	}
	return Free
}

// ObservePin records a pin state that arrived from a remote delta, keeping
// the state machine consistent with the canonical graph.
func (h *Handler) ObservePin(nodeID string, pinned bool) {
	if pinned {
		h.pinned[nodeID] = true
	} else {
		delete(h.pinned, nodeID)
	}
}

// PointerDown starts a potential drag on a node. Dragging a pinned node is
// allowed; its pin state is re-evaluated on release.
func (h *Handler) PointerDown(nodeID string, pos model.Position) {
	h.active = nodeID
	h.state = Dragging
	h.current = pos
	h.traveled = 0
}

// PointerMove updates the local visual position of the dragged node. No
// delta is emitted here.
func (h *Handler) PointerMove(pos model.Position) {
	if h.state != Dragging {
		return
	}
	h.traveled += math.Hypot(pos.X-h.current.X, pos.Y-h.current.Y)
	h.current = pos
}

// PointerUp finishes the interaction. Under the click threshold it is a
// selection; otherwise it commits exactly one update_node delta carrying
// the final position, pinned when the modifier key was held on release.
func (h *Handler) PointerUp(pinModifier bool) {
	if h.state != Dragging {
		return
	}
	nodeID := h.active
	h.active = ""
	h.state = Free

	if h.traveled < ClickThreshold {
		if h.Select != nil {
			h.Select(nodeID)
		}
		return
	}

	h.ObservePin(nodeID, pinModifier)
	if h.Emit != nil {
		pos := h.current
		pinned := pinModifier
		h.Emit(model.UpdateNode(&model.NodeUpdate{
			ID:       nodeID,
			Position: &pos,
			Pinned:   &pinned,
		}))
	}
}

// VisualPosition returns the local drag override for a node, if it is the
// one being dragged. Rendering prefers this over the layout position so the
// node tracks the pointer.
func (h *Handler) VisualPosition(nodeID string) (model.Position, bool) {
	if h.state == Dragging && h.active == nodeID {
		return h.current, true
	}
	return model.Position{}, false
}

// Dragging reports whether any node is currently being dragged, and which.
func (h *Handler) Dragging() (string, bool) {
	if h.state == Dragging {
		return h.active, true
	}
	return "", false
}
