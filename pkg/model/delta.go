package model

import (
	"encoding/json"
	"fmt"
)

// Op identifies the kind of mutation a delta carries.
type Op string

const (
	OpAddNode    Op = "add_node"
	OpUpdateNode Op = "update_node"
	OpRemoveNode Op = "remove_node"
	OpAddEdge    Op = "add_edge"
	OpUpdateEdge Op = "update_edge"
	OpRemoveEdge Op = "remove_edge"
)

// NodeUpdate is the sparse payload of an update_node delta. Nil fields are
// left unchanged, so a position-only update does not clobber the label that
// another producer set earlier.
type NodeUpdate struct {
	ID         string      `json:"id"`
	Kind       *NodeKind   `json:"kind,omitempty"`
	Label      *string     `json:"label,omitempty"`
	Value      *float64    `json:"value,omitempty"`
	Confidence *float64    `json:"confidence,omitempty"`
	Status     *NodeStatus `json:"status,omitempty"`
	Stage      *Stage      `json:"stage,omitempty"`
	Position   *Position   `json:"position,omitempty"`
	Pinned     *bool       `json:"pinned,omitempty"`
}

// EdgeUpdate is the sparse payload of an update_edge delta. Endpoints are
// immutable; rewiring an edge is a remove followed by an add.
type EdgeUpdate struct {
	ID       string    `json:"id"`
	Kind     *EdgeKind `json:"kind,omitempty"`
	Strength *float64  `json:"strength,omitempty"`
	Label    *string   `json:"label,omitempty"`
}

// removal is the payload of remove_node and remove_edge deltas.
type removal struct {
	ID string `json:"id"`
}

// Delta is a single atomic proposed mutation to the graph. Exactly one
// payload field is set, matching Op.
type Delta struct {
	Op         Op
	Node       *GraphNode  // add_node
	NodeUpdate *NodeUpdate // update_node
	Edge       *GraphEdge  // add_edge
	EdgeUpdate *EdgeUpdate // update_edge
	TargetID   string      // remove_node, remove_edge
}

// AddNode builds an add_node delta.
func AddNode(n *GraphNode) Delta { return Delta{Op: OpAddNode, Node: n} }

// UpdateNode builds an update_node delta.
func UpdateNode(u *NodeUpdate) Delta { return Delta{Op: OpUpdateNode, NodeUpdate: u} }

// RemoveNode builds a remove_node delta.
func RemoveNode(id string) Delta { return Delta{Op: OpRemoveNode, TargetID: id} }

// AddEdge builds an add_edge delta.
func AddEdge(e *GraphEdge) Delta { return Delta{Op: OpAddEdge, Edge: e} }

// UpdateEdge builds an update_edge delta.
func UpdateEdge(u *EdgeUpdate) Delta { return Delta{Op: OpUpdateEdge, EdgeUpdate: u} }

// RemoveEdge builds a remove_edge delta.
func RemoveEdge(id string) Delta { return Delta{Op: OpRemoveEdge, TargetID: id} }

// Validate checks that the delta is structurally well formed: a known op
// with the matching payload present. Range and referential checks happen
// against graph state in Apply.
func (d Delta) Validate() error {
	switch d.Op {
	case OpAddNode:
		if d.Node == nil {
			return &ValidationError{Op: d.Op, Reason: "missing node payload"}
		}
	case OpUpdateNode:
		if d.NodeUpdate == nil || d.NodeUpdate.ID == "" {
			return &ValidationError{Op: d.Op, Reason: "missing node update payload"}
		}
	case OpAddEdge:
		if d.Edge == nil {
			return &ValidationError{Op: d.Op, Reason: "missing edge payload"}
		}
	case OpUpdateEdge:
		if d.EdgeUpdate == nil || d.EdgeUpdate.ID == "" {
			return &ValidationError{Op: d.Op, Reason: "missing edge update payload"}
		}
	case OpRemoveNode, OpRemoveEdge:
		if d.TargetID == "" {
			return &ValidationError{Op: d.Op, Reason: "missing id payload"}
		}
	default:
		return &ValidationError{Op: d.Op, Reason: "unknown op"}
	}
	return nil
}

// wireDelta is the JSON envelope: {op, payload}.
type wireDelta struct {
	Op      Op              `json:"op"`
	Payload json.RawMessage `json:"payload"`
}

// MarshalJSON encodes the delta in its wire form.
func (d Delta) MarshalJSON() ([]byte, error) {
	var payload any
	switch d.Op {
	case OpAddNode:
		payload = d.Node
	case OpUpdateNode:
		payload = d.NodeUpdate
	case OpAddEdge:
		payload = d.Edge
	case OpUpdateEdge:
		payload = d.EdgeUpdate
	case OpRemoveNode, OpRemoveEdge:
		payload = removal{ID: d.TargetID}
	default:
		return nil, fmt.Errorf("cannot marshal delta with unknown op %q", d.Op)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireDelta{Op: d.Op, Payload: raw})
}

// UnmarshalJSON decodes the wire form into the matching payload field.
func (d *Delta) UnmarshalJSON(data []byte) error {
	var w wireDelta
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*d = Delta{Op: w.Op}
	switch w.Op {
	case OpAddNode:
		d.Node = &GraphNode{}
		return json.Unmarshal(w.Payload, d.Node)
	case OpUpdateNode:
		d.NodeUpdate = &NodeUpdate{}
		return json.Unmarshal(w.Payload, d.NodeUpdate)
	case OpAddEdge:
		d.Edge = &GraphEdge{}
		return json.Unmarshal(w.Payload, d.Edge)
	case OpUpdateEdge:
		d.EdgeUpdate = &EdgeUpdate{}
		return json.Unmarshal(w.Payload, d.EdgeUpdate)
	case OpRemoveNode, OpRemoveEdge:
		var r removal
		if err := json.Unmarshal(w.Payload, &r); err != nil {
			return err
		}
		d.TargetID = r.ID
		return nil
	default:
		return fmt.Errorf("cannot unmarshal delta with unknown op %q", w.Op)
	}
}
