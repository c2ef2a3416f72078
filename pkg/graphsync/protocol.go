// Package graphsync keeps one authoritative graph store and any number of
// connected viewers consistent. The authority serializes delta application;
// viewers apply broadcast deltas in revision order and fall back to a full
// snapshot whenever they detect a gap.
package graphsync

import "github.com/valuegraph/engine/pkg/model"

// MessageType discriminates protocol envelopes.
type MessageType string

const (
	// MsgSnapshotRequest asks the authority for the full current state.
	MsgSnapshotRequest MessageType = "graph_snapshot_request"
	// MsgSnapshot carries the full graph plus its revision.
	MsgSnapshot MessageType = "graph_snapshot"
	// MsgDelta is broadcast by the authority after a successful apply,
	// to every connected viewer including the originator.
	MsgDelta MessageType = "graph_delta"
	// MsgSubmit carries a viewer's proposed delta to the authority.
	MsgSubmit MessageType = "submit_delta"
	// MsgRejected tells the originating viewer its delta did not apply.
	MsgRejected MessageType = "delta_rejected"
)

// RejectReason classifies a rejection per the protocol.
type RejectReason string

const (
	// RejectConflict: stale parentRevision; resnapshot and retry.
	RejectConflict RejectReason = "conflict"
	// RejectValidation: the delta itself is invalid; never retried as-is.
	RejectValidation RejectReason = "validation"
)

// Envelope is the single wire message shape. Type selects which fields are
// meaningful. Revision fields carry no omitempty: revision 0 is a valid
// parent for the first delta on an empty graph.
type Envelope struct {
	Type MessageType `json:"type"`

	// MsgSnapshot
	Graph *model.Snapshot `json:"graph,omitempty"`

	// MsgSubmit, MsgDelta
	Delta          *model.Delta `json:"delta,omitempty"`
	ParentRevision int64        `json:"parentRevision"`

	// MsgSnapshot, MsgDelta
	Revision int64 `json:"revision"`

	// MsgRejected
	Reason RejectReason `json:"reason,omitempty"`
	Detail string       `json:"detail,omitempty"`
}
