package graphsync

import (
	"fmt"

	"github.com/valuegraph/engine/pkg/model"
)

// ViewerState is the transport-free core of a viewer session: a local copy
// of the graph plus the revision it reflects. It decides, per incoming
// message, whether the local copy advances or has to be rebuilt from a
// fresh snapshot. It is driven from a single goroutine.
type ViewerState struct {
	graph    *model.Graph
	revision int64
	synced   bool
}

// NewViewerState starts empty and unsynced; the first snapshot initializes it.
func NewViewerState() *ViewerState {
	return &ViewerState{graph: model.NewGraph()}
}

// Graph returns the local graph. Read-only: the viewer renders from it but
// all mutation goes through the authority.
func (v *ViewerState) Graph() *model.Graph { return v.graph }

// Revision returns the local revision.
func (v *ViewerState) Revision() int64 { return v.revision }

// Synced reports whether a snapshot has been applied since the last gap or
// (re)connect.
func (v *ViewerState) Synced() bool { return v.synced }

// HandleSnapshot replaces the local state wholesale. A snapshot that cannot
// be applied is a fatal payload error, not a sync gap.
func (v *ViewerState) HandleSnapshot(snap model.Snapshot) error {
	g, err := model.FromSnapshot(snap)
	if err != nil {
		return fmt.Errorf("unusable snapshot at revision %d: %w", snap.Revision, err)
	}
	v.graph = g
	v.revision = snap.Revision
	v.synced = true
	return nil
}

// HandleDelta applies a broadcast delta if and only if it parents directly
// off the local revision. It returns true when the delta was applied. A
// false return means the viewer missed an earlier delta (reconnect race,
// dropped message); the caller must request a fresh snapshot, which
// HandleDelta signals by marking the state unsynced.
func (v *ViewerState) HandleDelta(delta model.Delta, parentRevision, revision int64) (bool, error) {
	if !v.synced || parentRevision != v.revision {
		v.synced = false
		return false, nil
	}
	next, err := model.Apply(v.graph, delta)
	if err != nil {
		// The authority validated this delta, so local failure means the
		// local copy has diverged. Resync rather than guess.
		v.synced = false
		return false, fmt.Errorf("broadcast delta failed locally: %w", err)
	}
	next.Revision = revision
	v.graph = next
	v.revision = revision
	return true, nil
}
