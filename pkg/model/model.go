package model

import (
	"fmt"
	"sort"
	"strings"
)

// NodeKind represents the type of a value graph node
type NodeKind string

const (
	KindHypothesis  NodeKind = "hypothesis"
	KindDriver      NodeKind = "driver"
	KindOutcome     NodeKind = "outcome"
	KindKPI         NodeKind = "kpi"
	KindRisk        NodeKind = "risk"
	KindStakeholder NodeKind = "stakeholder"
)

// NodeStatus represents the lifecycle status of a node
type NodeStatus string

const (
	StatusActive   NodeStatus = "active"
	StatusPending  NodeStatus = "pending"
	StatusAchieved NodeStatus = "achieved"
	StatusAtRisk   NodeStatus = "at-risk"
)

// Stage represents the lifecycle phase a node belongs to
type Stage string

const (
	StageHypothesis    Stage = "hypothesis"
	StageCommitment    Stage = "commitment"
	StageRealization   Stage = "realization"
	StageAmplification Stage = "amplification"
)

// EdgeKind represents the type of relationship an edge expresses
type EdgeKind string

const (
	EdgeCausal      EdgeKind = "causal"
	EdgeDependency  EdgeKind = "dependency"
	EdgeAttribution EdgeKind = "attribution"
)

var (
	nodeKinds = map[NodeKind]bool{
		KindHypothesis: true, KindDriver: true, KindOutcome: true,
		KindKPI: true, KindRisk: true, KindStakeholder: true,
	}
	nodeStatuses = map[NodeStatus]bool{
		StatusActive: true, StatusPending: true, StatusAchieved: true, StatusAtRisk: true,
	}
	stages = map[Stage]bool{
		StageHypothesis: true, StageCommitment: true,
		StageRealization: true, StageAmplification: true,
	}
	edgeKinds = map[EdgeKind]bool{
		EdgeCausal: true, EdgeDependency: true, EdgeAttribution: true,
	}
)

// Position is a 2D point in layout space
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// GraphNode represents a vertex in the value graph.
// Value and Confidence are pointers so that "absent" survives a JSON round trip.
type GraphNode struct {
	ID         string     `json:"id"`
	Kind       NodeKind   `json:"kind"`
	Label      string     `json:"label"`
	Value      *float64   `json:"value,omitempty"`
	Confidence *float64   `json:"confidence,omitempty"`
	Status     NodeStatus `json:"status"`
	Stage      Stage      `json:"stage"`
	Position   Position   `json:"position"`
	Pinned     bool       `json:"pinned"`
}

// Validate checks the node's fields against the data model constraints.
func (n *GraphNode) Validate() error {
	if n.ID == "" {
		return fmt.Errorf("node id must not be empty")
	}
	if !nodeKinds[n.Kind] {
		return fmt.Errorf("unknown node kind %q", n.Kind)
	}
	if !nodeStatuses[n.Status] {
		return fmt.Errorf("unknown node status %q", n.Status)
	}
	if !stages[n.Stage] {
		return fmt.Errorf("unknown stage %q", n.Stage)
	}
	if n.Confidence != nil && (*n.Confidence < 0 || *n.Confidence > 1) {
		return fmt.Errorf("confidence %v out of range [0,1]", *n.Confidence)
	}
	return nil
}

// Clone returns a deep copy of the node.
func (n *GraphNode) Clone() *GraphNode {
	c := *n
	if n.Value != nil {
		v := *n.Value
		c.Value = &v
	}
	if n.Confidence != nil {
		v := *n.Confidence
		c.Confidence = &v
	}
	return &c
}

// MatchesSearch reports whether the node's label contains the search text,
// case-insensitively. An empty search matches everything.
func (n *GraphNode) MatchesSearch(text string) bool {
	if text == "" {
		return true
	}
	return strings.Contains(strings.ToLower(n.Label), strings.ToLower(text))
}

// GraphEdge represents a directed, typed connection between two nodes.
type GraphEdge struct {
	ID       string   `json:"id"`
	SourceID string   `json:"sourceId"`
	TargetID string   `json:"targetId"`
	Kind     EdgeKind `json:"kind"`
	Strength float64  `json:"strength"`
	Label    string   `json:"label,omitempty"`
}

// Validate checks the edge's fields against the data model constraints.
// Referential checks against the node set happen at apply time.
func (e *GraphEdge) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("edge id must not be empty")
	}
	if e.SourceID == "" || e.TargetID == "" {
		return fmt.Errorf("edge %q must reference a source and a target node", e.ID)
	}
	if !edgeKinds[e.Kind] {
		return fmt.Errorf("unknown edge kind %q", e.Kind)
	}
	if e.Strength < 0 || e.Strength > 1 {
		return fmt.Errorf("strength %v out of range [0,1]", e.Strength)
	}
	return nil
}

// Clone returns a copy of the edge.
func (e *GraphEdge) Clone() *GraphEdge {
	c := *e
	return &c
}

// Graph is the aggregate graph state at a single revision.
// A Graph handed out by the store is immutable; mutation goes through Apply,
// which produces a new Graph value.
type Graph struct {
	Nodes    map[string]*GraphNode `json:"nodes"`
	Edges    map[string]*GraphEdge `json:"edges"`
	Revision int64                 `json:"revision"`
}

// NewGraph creates an empty graph at revision 0.
func NewGraph() *Graph {
	return &Graph{
		Nodes: make(map[string]*GraphNode),
		Edges: make(map[string]*GraphEdge),
	}
}

// Clone deep-copies the graph.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		Nodes:    make(map[string]*GraphNode, len(g.Nodes)),
		Edges:    make(map[string]*GraphEdge, len(g.Edges)),
		Revision: g.Revision,
	}
	for id, n := range g.Nodes {
		c.Nodes[id] = n.Clone()
	}
	for id, e := range g.Edges {
		c.Edges[id] = e.Clone()
	}
	return c
}

// NodeIDs returns all node IDs in sorted order.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// EdgeIDs returns all edge IDs in sorted order.
func (g *Graph) EdgeIDs() []string {
	ids := make([]string, 0, len(g.Edges))
	for id := range g.Edges {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot is the wire form of a graph: full state plus its revision.
// Nodes and edges are sorted by ID so that saved files and fixtures are stable.
type Snapshot struct {
	Nodes    []*GraphNode `json:"nodes"`
	Edges    []*GraphEdge `json:"edges"`
	Revision int64        `json:"revision"`
}

// ToSnapshot converts the graph to its wire form.
func (g *Graph) ToSnapshot() Snapshot {
	s := Snapshot{
		Nodes:    make([]*GraphNode, 0, len(g.Nodes)),
		Edges:    make([]*GraphEdge, 0, len(g.Edges)),
		Revision: g.Revision,
	}
	for _, id := range g.NodeIDs() {
		s.Nodes = append(s.Nodes, g.Nodes[id].Clone())
	}
	for _, id := range g.EdgeIDs() {
		s.Edges = append(s.Edges, g.Edges[id].Clone())
	}
	return s
}

// FromSnapshot builds a graph from its wire form, validating every entity
// and the referential integrity of the edge set.
func FromSnapshot(s Snapshot) (*Graph, error) {
	g := NewGraph()
	g.Revision = s.Revision
	for _, n := range s.Nodes {
		if err := n.Validate(); err != nil {
			return nil, fmt.Errorf("invalid node: %w", err)
		}
		if _, exists := g.Nodes[n.ID]; exists {
			return nil, fmt.Errorf("duplicate node id %q", n.ID)
		}
		g.Nodes[n.ID] = n.Clone()
	}
	for _, e := range s.Edges {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("invalid edge: %w", err)
		}
		if _, exists := g.Edges[e.ID]; exists {
			return nil, fmt.Errorf("duplicate edge id %q", e.ID)
		}
		if _, ok := g.Nodes[e.SourceID]; !ok {
			return nil, fmt.Errorf("edge %q references missing node %q", e.ID, e.SourceID)
		}
		if _, ok := g.Nodes[e.TargetID]; !ok {
			return nil, fmt.Errorf("edge %q references missing node %q", e.ID, e.TargetID)
		}
		g.Edges[e.ID] = e.Clone()
	}
	return g, nil
}
