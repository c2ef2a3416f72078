// Package viewer is the client-side runtime: one goroutine that multiplexes
// inbound sync messages, layout ticks, pointer events, and filter changes.
// Layout advances a bounded number of iterations per tick so socket and
// pointer handling are never starved, and an in-flight layout run is
// abandoned the moment the visible subgraph changes.
package viewer

import (
	"context"
	"sync"
	"time"

	"github.com/valuegraph/engine/pkg/graphsync"
	"github.com/valuegraph/engine/pkg/interaction"
	"github.com/valuegraph/engine/pkg/layout"
	"github.com/valuegraph/engine/pkg/logging"
	"github.com/valuegraph/engine/pkg/model"
	"github.com/valuegraph/engine/pkg/projector"
)

// Config tunes the viewer loop.
type Config struct {
	// FrameInterval is the layout tick period.
	FrameInterval time.Duration
	// StepBudget caps layout iterations per tick.
	StepBudget int
	Layout     layout.Config
}

// DefaultConfig runs layout at roughly 60 ticks per second.
func DefaultConfig() Config {
	return Config{
		FrameInterval: 16 * time.Millisecond,
		StepBudget:    3,
		Layout:        layout.DefaultConfig(),
	}
}

type pointerKind int

const (
	pointerDown pointerKind = iota
	pointerMove
	pointerUp
)

type pointerEvent struct {
	kind        pointerKind
	nodeID      string
	pos         model.Position
	pinModifier bool
}

// Rejection is surfaced to whoever issued the failing mutation.
type Rejection struct {
	Reason graphsync.RejectReason
	Detail string
}

// Viewer owns a local projection of the canonical graph and keeps it laid
// out and in sync. All interior state is confined to the Run goroutine;
// the exported mutators communicate with it over channels, and the render
// snapshot is published under a lock.
type Viewer struct {
	cfg     Config
	client  *graphsync.Client
	state   *graphsync.ViewerState
	engine  *layout.Engine
	handler *interaction.Handler
	filter  projector.Filter

	pointerCh chan pointerEvent
	filterCh  chan projector.Filter

	// OnRejected, when set, hears about rejected submissions.
	OnRejected func(Rejection)
	// OnFatal, when set, hears about unrecoverable sync state: a snapshot
	// payload the viewer cannot adopt. The UI should prompt for a reload
	// rather than retry.
	OnFatal func(error)
	// OnSelect, when set, hears about node selection (local UI state only).
	OnSelect func(nodeID string)

	renderMu  sync.RWMutex
	render    Frame
	selection string
}

// Frame is the read-only render state published after every loop turn.
type Frame struct {
	Nodes     []*model.GraphNode
	Edges     []*model.GraphEdge
	Positions map[string]model.Position
	Revision  int64
	Settled   bool
}

// New wires a viewer to a sync client. Run must be started alongside
// client.Run.
func New(cfg Config, client *graphsync.Client) *Viewer {
	v := &Viewer{
		cfg:       cfg,
		client:    client,
		state:     graphsync.NewViewerState(),
		engine:    layout.New(cfg.Layout),
		pointerCh: make(chan pointerEvent, 64),
		filterCh:  make(chan projector.Filter, 4),
	}
	v.handler = interaction.NewHandler(v.state.Graph())
	v.handler.Emit = func(d model.Delta) {
		client.Submit(d, v.state.Revision())
	}
	v.handler.Select = func(nodeID string) {
		v.renderMu.Lock()
		v.selection = nodeID
		v.renderMu.Unlock()
		if v.OnSelect != nil {
			v.OnSelect(nodeID)
		}
	}
	return v
}

// PointerDown forwards a press on a node into the loop.
func (v *Viewer) PointerDown(nodeID string, pos model.Position) {
	v.pointerCh <- pointerEvent{kind: pointerDown, nodeID: nodeID, pos: pos}
}

// PointerMove forwards pointer motion into the loop.
func (v *Viewer) PointerMove(pos model.Position) {
	v.pointerCh <- pointerEvent{kind: pointerMove, pos: pos}
}

// PointerUp forwards a release into the loop.
func (v *Viewer) PointerUp(pinModifier bool) {
	v.pointerCh <- pointerEvent{kind: pointerUp, pinModifier: pinModifier}
}

// SetFilter swaps the projection filter. The current layout run is
// abandoned and a warm-started run begins over the new visible set.
func (v *Viewer) SetFilter(f projector.Filter) {
	v.filterCh <- f
}

// Submit sends a delta to the authority parented at the local revision.
func (v *Viewer) Submit(d model.Delta) {
	v.client.Submit(d, v.state.Revision())
}

// Render returns the last published frame.
func (v *Viewer) Render() Frame {
	v.renderMu.RLock()
	defer v.renderMu.RUnlock()
	return v.render
}

// Selection returns the locally selected node, if any.
func (v *Viewer) Selection() (string, bool) {
	v.renderMu.RLock()
	defer v.renderMu.RUnlock()
	return v.selection, v.selection != ""
}

// Run drives the viewer until ctx is cancelled.
func (v *Viewer) Run(ctx context.Context) {
	ticker := time.NewTicker(v.cfg.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case env := <-v.client.Messages():
			v.handleMessage(env)
		case <-ticker.C:
			if !v.engine.Settled() {
				v.engine.Step(v.cfg.StepBudget)
			}
		case ev := <-v.pointerCh:
			v.handlePointer(ev)
		case f := <-v.filterCh:
			v.filter = f
			v.reproject()
		}
		v.publish()
	}
}

func (v *Viewer) handleMessage(env graphsync.Envelope) {
	switch env.Type {
	case graphsync.MsgSnapshot:
		if env.Graph == nil {
			logging.Error("snapshot message without graph payload")
			return
		}
		if err := v.state.HandleSnapshot(*env.Graph); err != nil {
			// Corrupt payload: surface loudly, never retry silently.
			logging.Error("fatal: snapshot unusable", "error", err)
			if v.OnFatal != nil {
				v.OnFatal(err)
			}
			return
		}
		v.handler = v.rebuildHandler()
		v.reproject()

	case graphsync.MsgDelta:
		if env.Delta == nil {
			return
		}
		applied, err := v.state.HandleDelta(*env.Delta, env.ParentRevision, env.Revision)
		if err != nil {
			logging.Warn("local apply diverged, resyncing", "error", err)
			v.client.RequestSnapshot()
			return
		}
		if !applied {
			logging.Debug("revision gap, resyncing",
				"local", v.state.Revision(), "parent", env.ParentRevision)
			v.client.RequestSnapshot()
			return
		}
		v.absorbDelta(*env.Delta)

	case graphsync.MsgRejected:
		if env.Reason == graphsync.RejectConflict {
			// Stale parent: refresh so a retry parents off current state.
			v.client.RequestSnapshot()
		}
		if v.OnRejected != nil {
			v.OnRejected(Rejection{Reason: env.Reason, Detail: env.Detail})
		}
	}
}

// absorbDelta folds an applied delta into layout and interaction state.
// A position carried by an update_node delta is adopted verbatim; other
// structural changes reproject and warm-start.
func (v *Viewer) absorbDelta(d model.Delta) {
	if d.Op == model.OpUpdateNode && d.NodeUpdate != nil {
		u := d.NodeUpdate
		if u.Pinned != nil {
			v.handler.ObservePin(u.ID, *u.Pinned)
		}
		if u.Position != nil {
			pinned := u.Pinned != nil && *u.Pinned
			v.engine.Reposition(u.ID, *u.Position, pinned)
		} else if u.Pinned != nil {
			v.engine.SetPinned(u.ID, *u.Pinned)
		}
		if u.Stage == nil && u.Kind == nil && u.Label == nil {
			// Value/confidence/status edits do not move anything.
			return
		}
		// A stage, kind or label change can move the node in or out of
		// the visible set, so the projection must be recomputed even
		// when the same delta carried a position.
	}
	v.reproject()
}

func (v *Viewer) handlePointer(ev pointerEvent) {
	switch ev.kind {
	case pointerDown:
		v.handler.PointerDown(ev.nodeID, ev.pos)
	case pointerMove:
		v.handler.PointerMove(ev.pos)
	case pointerUp:
		v.handler.PointerUp(ev.pinModifier)
	}
}

func (v *Viewer) rebuildHandler() *interaction.Handler {
	h := interaction.NewHandler(v.state.Graph())
	h.Emit = v.handler.Emit
	h.Select = v.handler.Select
	return h
}

// reproject recomputes the visible subgraph and hands it to the layout
// engine, which keeps positions for nodes that stayed visible.
func (v *Viewer) reproject() {
	proj := projector.Project(v.state.Graph(), v.filter)
	v.engine.SetGraph(proj.Nodes, proj.Edges)
}

// publish copies the current render state out for consumers on other
// goroutines.
func (v *Viewer) publish() {
	proj := projector.Project(v.state.Graph(), v.filter)
	positions := v.engine.Positions()
	if id, ok := v.handler.Dragging(); ok {
		if pos, ok := v.handler.VisualPosition(id); ok {
			positions[id] = pos
		}
	}
	v.renderMu.Lock()
	v.render = Frame{
		Nodes:     proj.Nodes,
		Edges:     proj.Edges,
		Positions: positions,
		Revision:  v.state.Revision(),
		Settled:   v.engine.Settled(),
	}
	v.renderMu.Unlock()
}
