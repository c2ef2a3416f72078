// Package store holds the canonical, versioned graph state. It is the single
// writer of truth: every mutation enters through Apply, is checked against
// the current revision, and either commits atomically or is rejected.
package store

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/valuegraph/engine/pkg/logging"
	"github.com/valuegraph/engine/pkg/model"
)

// Subscriber is invoked with each successfully applied delta and the
// revision it produced. Callbacks run on the applying goroutine, in
// subscription order, serialized with Apply itself so every subscriber
// observes the same total order of deltas. A subscriber may read the store
// but must not call Apply from inside the callback.
type Subscriber func(delta model.Delta, revision int64)

// Store is the authoritative graph store.
type Store struct {
	// mu serializes Apply (and subscriber notification) per the
	// single-writer discipline. Reads go through the atomic pointer and
	// never block, so a subscriber callback may safely call Graph or
	// Snapshot.
	mu      sync.Mutex
	current atomic.Pointer[model.Graph]

	subMu   sync.Mutex
	subs    map[int64]Subscriber
	nextSub int64
}

// New creates a store holding an empty graph at revision 0.
func New() *Store {
	s := &Store{subs: make(map[int64]Subscriber)}
	s.current.Store(model.NewGraph())
	return s
}

// NewFromSnapshot creates a store seeded with the given snapshot.
func NewFromSnapshot(snap model.Snapshot) (*Store, error) {
	g, err := model.FromSnapshot(snap)
	if err != nil {
		return nil, err
	}
	s := &Store{subs: make(map[int64]Subscriber)}
	s.current.Store(g)
	return s, nil
}

// Graph returns the current immutable graph and its revision. O(1); the
// returned graph must not be mutated.
func (s *Store) Graph() (*model.Graph, int64) {
	g := s.current.Load()
	return g, g.Revision
}

// Snapshot returns the wire form of the current state.
func (s *Store) Snapshot() model.Snapshot {
	return s.current.Load().ToSnapshot()
}

// Revision returns the current revision.
func (s *Store) Revision() int64 {
	return s.current.Load().Revision
}

// Apply validates and applies a single delta. It returns the new revision on
// success. It fails with *model.ConflictError when parentRevision does not
// match the current revision at apply time, and with *model.ValidationError
// when the delta would violate an invariant. The apply is atomic: either the
// whole delta commits and the revision advances by exactly 1, or nothing
// changes.
func (s *Store) Apply(delta model.Delta, parentRevision int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g := s.current.Load()
	if parentRevision != g.Revision {
		return 0, &model.ConflictError{Expected: parentRevision, Actual: g.Revision}
	}

	next, err := model.Apply(g, delta)
	if err != nil {
		return 0, err
	}
	next.Revision = g.Revision + 1
	s.current.Store(next)

	logging.Debug("delta applied", "op", string(delta.Op), "revision", next.Revision)
	s.notify(delta, next.Revision)
	return next.Revision, nil
}

// Reset replaces the whole graph state, e.g. after the snapshot file changed
// on disk. The revision never moves backwards: if the incoming snapshot is
// older than the current state the revision advances by one instead, so
// connected viewers still detect the change.
func (s *Store) Reset(snap model.Snapshot) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := model.FromSnapshot(snap)
	if err != nil {
		return 0, err
	}
	cur := s.current.Load()
	if g.Revision <= cur.Revision {
		g.Revision = cur.Revision + 1
	}
	s.current.Store(g)
	logging.Info("store reset", "revision", g.Revision, "nodes", len(g.Nodes), "edges", len(g.Edges))
	return g.Revision, nil
}

// Subscribe registers a callback for applied deltas and returns an
// unsubscribe function. Unsubscribing twice is a no-op.
func (s *Store) Subscribe(fn Subscriber) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(delta model.Delta, revision int64) {
	s.subMu.Lock()
	ids := make([]int64, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	// Subscription order, not map order.
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	subs := make([]Subscriber, 0, len(ids))
	for _, id := range ids {
		subs = append(subs, s.subs[id])
	}
	s.subMu.Unlock()

	for _, fn := range subs {
		fn(delta, revision)
	}
}
