package model

import "fmt"

// Apply validates a delta against g and returns a new graph with the delta
// applied. g is never mutated, so a graph that has been handed out as a
// snapshot stays stable. Revision bookkeeping belongs to the caller (the
// store on the authority side, the viewer state on the client side).
//
// remove_node cascades: all edges referencing the removed node go with it,
// as a single atomic effect of the one delta.
func Apply(g *Graph, d Delta) (*Graph, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	switch d.Op {
	case OpAddNode:
		if err := d.Node.Validate(); err != nil {
			return nil, &ValidationError{Op: d.Op, Reason: err.Error()}
		}
		if _, exists := g.Nodes[d.Node.ID]; exists {
			return nil, &ValidationError{Op: d.Op, Reason: fmt.Sprintf("node %q already exists", d.Node.ID)}
		}
		next := g.Clone()
		next.Nodes[d.Node.ID] = d.Node.Clone()
		return next, nil

	case OpUpdateNode:
		u := d.NodeUpdate
		existing, ok := g.Nodes[u.ID]
		if !ok {
			return nil, &ValidationError{Op: d.Op, Reason: fmt.Sprintf("node %q does not exist", u.ID)}
		}
		updated := existing.Clone()
		applyNodeUpdate(updated, u)
		if err := updated.Validate(); err != nil {
			return nil, &ValidationError{Op: d.Op, Reason: err.Error()}
		}
		next := g.Clone()
		next.Nodes[u.ID] = updated
		return next, nil

	case OpRemoveNode:
		if _, ok := g.Nodes[d.TargetID]; !ok {
			return nil, &ValidationError{Op: d.Op, Reason: fmt.Sprintf("node %q does not exist", d.TargetID)}
		}
		next := g.Clone()
		delete(next.Nodes, d.TargetID)
		for id, e := range next.Edges {
			if e.SourceID == d.TargetID || e.TargetID == d.TargetID {
				delete(next.Edges, id)
			}
		}
		return next, nil

	case OpAddEdge:
		e := d.Edge
		if err := e.Validate(); err != nil {
			return nil, &ValidationError{Op: d.Op, Reason: err.Error()}
		}
		if _, exists := g.Edges[e.ID]; exists {
			return nil, &ValidationError{Op: d.Op, Reason: fmt.Sprintf("edge %q already exists", e.ID)}
		}
		if _, ok := g.Nodes[e.SourceID]; !ok {
			return nil, &ValidationError{Op: d.Op, Reason: fmt.Sprintf("edge %q references missing node %q", e.ID, e.SourceID)}
		}
		if _, ok := g.Nodes[e.TargetID]; !ok {
			return nil, &ValidationError{Op: d.Op, Reason: fmt.Sprintf("edge %q references missing node %q", e.ID, e.TargetID)}
		}
		next := g.Clone()
		next.Edges[e.ID] = e.Clone()
		return next, nil

	case OpUpdateEdge:
		u := d.EdgeUpdate
		existing, ok := g.Edges[u.ID]
		if !ok {
			return nil, &ValidationError{Op: d.Op, Reason: fmt.Sprintf("edge %q does not exist", u.ID)}
		}
		updated := existing.Clone()
		if u.Kind != nil {
			updated.Kind = *u.Kind
		}
		if u.Strength != nil {
			updated.Strength = *u.Strength
		}
		if u.Label != nil {
			updated.Label = *u.Label
		}
		if err := updated.Validate(); err != nil {
			return nil, &ValidationError{Op: d.Op, Reason: err.Error()}
		}
		next := g.Clone()
		next.Edges[u.ID] = updated
		return next, nil

	case OpRemoveEdge:
		if _, ok := g.Edges[d.TargetID]; !ok {
			return nil, &ValidationError{Op: d.Op, Reason: fmt.Sprintf("edge %q does not exist", d.TargetID)}
		}
		next := g.Clone()
		delete(next.Edges, d.TargetID)
		return next, nil
	}

	return nil, &ValidationError{Op: d.Op, Reason: "unknown op"}
}

func applyNodeUpdate(n *GraphNode, u *NodeUpdate) {
	if u.Kind != nil {
		n.Kind = *u.Kind
	}
	if u.Label != nil {
		n.Label = *u.Label
	}
	if u.Value != nil {
		v := *u.Value
		n.Value = &v
	}
	if u.Confidence != nil {
		v := *u.Confidence
		n.Confidence = &v
	}
	if u.Status != nil {
		n.Status = *u.Status
	}
	if u.Stage != nil {
		n.Stage = *u.Stage
	}
	if u.Position != nil {
		n.Position = *u.Position
	}
	if u.Pinned != nil {
		n.Pinned = *u.Pinned
	}
}
