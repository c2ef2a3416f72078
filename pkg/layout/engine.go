// Package layout computes 2D positions for the visible subgraph with a
// force-directed solver. The engine owns a mutable working copy of positions
// and velocities; the data model's nodes stay immutable value objects, and
// callers read back a merged view through Positions.
package layout

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/valuegraph/engine/pkg/model"
)

// Config tunes the force simulation. The zero value is not usable; start
// from DefaultConfig.
type Config struct {
	Width  float64
	Height float64

	// BaseDistance divided by an edge's strength gives the link's target
	// distance, so stronger edges pull their endpoints closer.
	BaseDistance   float64
	LinkStrength   float64
	ChargeStrength float64
	CenterStrength float64
	VelocityDecay  float64

	// SettleThreshold is the maximum per-node displacement below which a
	// run counts as settled.
	SettleThreshold float64
	// MaxIterations caps a run so CPU cost stays bounded and output is
	// deterministic for a fixed input and seed.
	MaxIterations int
	Seed          int64
}

// DefaultConfig returns the tuning used by the reference deployment.
func DefaultConfig() Config {
	return Config{
		Width:           1280,
		Height:          800,
		BaseDistance:    120,
		LinkStrength:    0.08,
		ChargeStrength:  900,
		CenterStrength:  0.012,
		VelocityDecay:   0.6,
		SettleThreshold: 0.15,
		MaxIterations:   300,
		Seed:            1,
	}
}

// collisionRadius returns the rendered radius per node kind. Hypothesis and
// outcome nodes are the big cards; kpi and risk badges are the small ones.
func collisionRadius(kind model.NodeKind) float64 {
	switch kind {
	case model.KindHypothesis, model.KindOutcome:
		return 36
	case model.KindDriver, model.KindStakeholder:
		return 28
	default:
		return 20
	}
}

// minStrength keeps BaseDistance/strength finite for degenerate edges.
const minStrength = 0.05

type particle struct {
	id     string
	kind   model.NodeKind
	pos    r2.Vec
	vel    r2.Vec
	pinned bool
}

type link struct {
	source, target int
	strength       float64
}

// StepResult reports the progress of a Step call.
type StepResult struct {
	Iterations      int
	MaxDisplacement float64
	Settled         bool
}

// Engine is a restartable force simulation over the visible subgraph.
// It is not safe for concurrent use; the viewer runtime drives it from a
// single goroutine.
type Engine struct {
	cfg   Config
	rng   *rand.Rand
	parts []*particle
	index map[string]int
	links []link
	adj   *adjacency

	iterations int
	settled    bool
}

// New creates an engine with no nodes. Call SetGraph before stepping.
func New(cfg Config) *Engine {
	return &Engine{
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
		index: make(map[string]int),
	}
}

// SetGraph replaces the visible subgraph and warm-starts a new run. Nodes
// that were already present keep their position and velocity; only new
// nodes get an initial placement, near an already-placed neighbor when one
// exists, else near the viewport center. Any in-progress run is abandoned.
func (e *Engine) SetGraph(nodes []*model.GraphNode, edges []*model.GraphEdge) {
	sorted := make([]*model.GraphNode, len(nodes))
	copy(sorted, nodes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	adj := buildAdjacency(sorted, edges)

	prev := e.parts
	prevIndex := e.index
	placed := make(map[string]r2.Vec, len(prev))
	for _, p := range prev {
		placed[p.id] = p.pos
	}

	parts := make([]*particle, 0, len(sorted))
	index := make(map[string]int, len(sorted))
	for _, n := range sorted {
		p := &particle{id: n.ID, kind: n.Kind, pinned: n.Pinned}
		if i, ok := prevIndex[n.ID]; ok {
			p.pos = prev[i].pos
			p.vel = prev[i].vel
		} else if n.Position.X != 0 || n.Position.Y != 0 {
			p.pos = r2.Vec{X: n.Position.X, Y: n.Position.Y}
		} else {
			p.pos = e.initialPlacement(n.ID, adj, placed)
		}
		placed[n.ID] = p.pos
		index[n.ID] = len(parts)
		parts = append(parts, p)
	}

	links := make([]link, 0, len(edges))
	sortedEdges := make([]*model.GraphEdge, len(edges))
	copy(sortedEdges, edges)
	sort.Slice(sortedEdges, func(i, j int) bool { return sortedEdges[i].ID < sortedEdges[j].ID })
	for _, ed := range sortedEdges {
		s, okS := index[ed.SourceID]
		t, okT := index[ed.TargetID]
		if !okS || !okT || s == t {
			continue
		}
		links = append(links, link{source: s, target: t, strength: math.Max(ed.Strength, minStrength)})
	}

	e.parts = parts
	e.index = index
	e.links = links
	e.adj = adj
	e.iterations = 0
	e.settled = len(parts) == 0
}

// initialPlacement puts a new node next to a neighbor that already has a
// position, with a seeded jitter, or near the center when it is isolated.
func (e *Engine) initialPlacement(id string, adj *adjacency, placed map[string]r2.Vec) r2.Vec {
	jitter := r2.Vec{
		X: (e.rng.Float64() - 0.5) * e.cfg.BaseDistance,
		Y: (e.rng.Float64() - 0.5) * e.cfg.BaseDistance,
	}
	for _, nb := range adj.neighbors(id) {
		if pos, ok := placed[nb]; ok {
			return r2.Add(pos, jitter)
		}
	}
	center := r2.Vec{X: e.cfg.Width / 2, Y: e.cfg.Height / 2}
	return r2.Add(center, jitter)
}

// Reposition moves a node to an externally decided position (a committed
// drag delta) and updates its pin state. The current run restarts so
// unpinned neighbors settle around the new location.
func (e *Engine) Reposition(id string, pos model.Position, pinned bool) {
	i, ok := e.index[id]
	if !ok {
		return
	}
	e.parts[i].pos = r2.Vec{X: pos.X, Y: pos.Y}
	e.parts[i].vel = r2.Vec{}
	e.parts[i].pinned = pinned
	e.iterations = 0
	e.settled = false
}

// SetPinned updates a node's pin state without moving it.
func (e *Engine) SetPinned(id string, pinned bool) {
	if i, ok := e.index[id]; ok {
		e.parts[i].pinned = pinned
		e.settled = false
	}
}

// Settled reports whether the current run has converged or hit the
// iteration cap.
func (e *Engine) Settled() bool { return e.settled }

// Step advances the simulation by at most budget iterations, stopping early
// when the run settles. Work per call is bounded so the caller's event loop
// is never starved.
func (e *Engine) Step(budget int) StepResult {
	res := StepResult{Settled: e.settled}
	for i := 0; i < budget && !e.settled; i++ {
		maxDisp := e.iterate()
		e.iterations++
		res.Iterations++
		res.MaxDisplacement = maxDisp
		if maxDisp < e.cfg.SettleThreshold || e.iterations >= e.cfg.MaxIterations {
			e.settled = true
		}
	}
	res.Settled = e.settled
	return res
}

// iterate runs one simulation tick and returns the maximum displacement.
// Pinned nodes take no link, charge, or center force; they only push others
// away during collision resolution.
func (e *Engine) iterate() float64 {
	cfg := e.cfg
	center := r2.Vec{X: cfg.Width / 2, Y: cfg.Height / 2}

	// Link attraction toward the per-edge target distance.
	for _, l := range e.links {
		s, t := e.parts[l.source], e.parts[l.target]
		d := r2.Sub(t.pos, s.pos)
		dist := r2.Norm(d)
		if dist == 0 {
			d = r2.Vec{X: 1e-6, Y: 1e-6}
			dist = r2.Norm(d)
		}
		target := cfg.BaseDistance / l.strength
		f := r2.Scale((dist-target)/dist*cfg.LinkStrength, d)
		if !s.pinned {
			s.vel = r2.Add(s.vel, r2.Scale(0.5, f))
		}
		if !t.pinned {
			t.vel = r2.Sub(t.vel, r2.Scale(0.5, f))
		}
	}

	// Many-body repulsion, pairwise in index (sorted ID) order.
	for i := 0; i < len(e.parts); i++ {
		for j := i + 1; j < len(e.parts); j++ {
			a, b := e.parts[i], e.parts[j]
			d := r2.Sub(b.pos, a.pos)
			dist := r2.Norm(d)
			if dist == 0 {
				d = r2.Vec{X: 1e-6 * float64(j-i), Y: -1e-6 * float64(j-i)}
				dist = r2.Norm(d)
			}
			f := r2.Scale(cfg.ChargeStrength/(dist*dist*dist), d)
			if !a.pinned {
				a.vel = r2.Sub(a.vel, f)
			}
			if !b.pinned {
				b.vel = r2.Add(b.vel, f)
			}
		}
	}

	// Weak centering keeps disconnected clusters on screen.
	for _, p := range e.parts {
		if p.pinned {
			continue
		}
		p.vel = r2.Add(p.vel, r2.Scale(cfg.CenterStrength, r2.Sub(center, p.pos)))
	}

	// Integrate.
	maxDisp := 0.0
	for _, p := range e.parts {
		if p.pinned {
			p.vel = r2.Vec{}
			continue
		}
		p.vel = r2.Scale(cfg.VelocityDecay, p.vel)
		p.pos = r2.Add(p.pos, p.vel)
		if n := r2.Norm(p.vel); n > maxDisp {
			maxDisp = n
		}
	}

	// Collision resolution by direct position correction. Pinned nodes are
	// immovable obstacles: the unpinned side absorbs the full correction.
	for i := 0; i < len(e.parts); i++ {
		for j := i + 1; j < len(e.parts); j++ {
			a, b := e.parts[i], e.parts[j]
			minDist := collisionRadius(a.kind) + collisionRadius(b.kind)
			d := r2.Sub(b.pos, a.pos)
			dist := r2.Norm(d)
			if dist >= minDist {
				continue
			}
			if dist == 0 {
				d = r2.Vec{X: 1e-6 * float64(j-i), Y: 1e-6}
				dist = r2.Norm(d)
			}
			overlap := minDist - dist
			correction := r2.Scale(overlap/dist, d)
			switch {
			case a.pinned && b.pinned:
				// Both immovable; leave them.
			case a.pinned:
				b.pos = r2.Add(b.pos, correction)
			case b.pinned:
				a.pos = r2.Sub(a.pos, correction)
			default:
				a.pos = r2.Sub(a.pos, r2.Scale(0.5, correction))
				b.pos = r2.Add(b.pos, r2.Scale(0.5, correction))
			}
			if overlap > maxDisp {
				maxDisp = overlap
			}
		}
	}

	return maxDisp
}

// Positions returns the current position of every node, keyed by ID.
func (e *Engine) Positions() map[string]model.Position {
	out := make(map[string]model.Position, len(e.parts))
	for _, p := range e.parts {
		out[p.id] = model.Position{X: p.pos.X, Y: p.pos.Y}
	}
	return out
}

// Position returns a single node's current position.
func (e *Engine) Position(id string) (model.Position, bool) {
	i, ok := e.index[id]
	if !ok {
		return model.Position{}, false
	}
	return model.Position{X: e.parts[i].pos.X, Y: e.parts[i].pos.Y}, true
}
