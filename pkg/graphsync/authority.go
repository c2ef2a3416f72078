package graphsync

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/valuegraph/engine/pkg/logging"
	"github.com/valuegraph/engine/pkg/metrics"
	"github.com/valuegraph/engine/pkg/model"
	"github.com/valuegraph/engine/pkg/store"
)

const (
	// sendBuffer bounds each viewer's outbound queue. A viewer that cannot
	// keep up loses deltas; it will notice the revision gap and resnapshot,
	// so dropping is safe for consistency if not for latency.
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
	readLimit    = 1 << 20
	pongWait     = 60 * time.Second
)

// Authority owns the canonical store and fans successful deltas out to every
// connected viewer over WebSocket. Deltas apply in arrival order; whichever
// of two conflicting deltas reaches the store first wins, and the loser is
// rejected back to its originator only.
type Authority struct {
	store    *store.Store
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*viewerConn]bool

	unsubscribe func()
}

type viewerConn struct {
	id   string
	ws   *websocket.Conn
	send chan Envelope
	done chan struct{}
	once sync.Once
}

// NewAuthority wires an authority to the given store. The store subscription
// is the broadcast path: confirmation to the originator is the same message
// every other viewer receives, so there is no separate ack.
func NewAuthority(st *store.Store) *Authority {
	a := &Authority{
		store: st,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[*viewerConn]bool),
	}
	a.unsubscribe = st.Subscribe(func(delta model.Delta, revision int64) {
		a.broadcast(Envelope{
			Type:           MsgDelta,
			Delta:          &delta,
			ParentRevision: revision - 1,
			Revision:       revision,
		})
		g, _ := st.Graph()
		metrics.Revision.Set(float64(revision))
		metrics.GraphNodes.Set(float64(len(g.Nodes)))
		metrics.GraphEdges.Set(float64(len(g.Edges)))
	})
	return a
}

// Close detaches from the store and closes every viewer connection.
func (a *Authority) Close() {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	a.mu.Lock()
	conns := make([]*viewerConn, 0, len(a.conns))
	for c := range a.conns {
		conns = append(conns, c)
	}
	a.mu.Unlock()
	for _, c := range conns {
		a.drop(c)
	}
}

// ViewerCount returns the number of connected viewers.
func (a *Authority) ViewerCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.conns)
}

// ServeHTTP upgrades the connection and runs the viewer session until the
// peer goes away.
func (a *Authority) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &viewerConn{
		id:   uuid.New().String(),
		ws:   ws,
		send: make(chan Envelope, sendBuffer),
		done: make(chan struct{}),
	}
	a.mu.Lock()
	a.conns[c] = true
	count := len(a.conns)
	a.mu.Unlock()
	metrics.ConnectedViewers.Set(float64(count))
	logging.Info("viewer connected", "viewer", c.id, "viewers", count)

	go a.writePump(c)
	a.readLoop(c)
}

func (a *Authority) readLoop(c *viewerConn) {
	defer a.drop(c)
	c.ws.SetReadLimit(readLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var env Envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Warn("viewer read failed", "viewer", c.id, "error", err)
			}
			return
		}

		switch env.Type {
		case MsgSnapshotRequest:
			a.sendSnapshot(c)
		case MsgSubmit:
			a.handleSubmit(c, env)
		default:
			logging.Debug("ignoring unexpected message", "viewer", c.id, "type", string(env.Type))
		}
	}
}

func (a *Authority) sendSnapshot(c *viewerConn) {
	snap := a.store.Snapshot()
	metrics.SnapshotsServed.Inc()
	a.enqueue(c, Envelope{Type: MsgSnapshot, Graph: &snap, Revision: snap.Revision})
}

func (a *Authority) handleSubmit(c *viewerConn, env Envelope) {
	if env.Delta == nil {
		a.enqueue(c, Envelope{Type: MsgRejected, Reason: RejectValidation, Detail: "submit without delta"})
		metrics.DeltasRejected.WithLabelValues(string(RejectValidation)).Inc()
		return
	}

	start := time.Now()
	_, err := a.store.Apply(*env.Delta, env.ParentRevision)
	metrics.ApplyDuration.Observe(float64(time.Since(start).Microseconds()) / 1000)
	if err == nil {
		metrics.DeltasApplied.WithLabelValues(string(env.Delta.Op)).Inc()
		return // the store subscription broadcasts to everyone, originator included
	}

	reason := RejectValidation
	var conflict *model.ConflictError
	if errors.As(err, &conflict) {
		reason = RejectConflict
	}
	metrics.DeltasRejected.WithLabelValues(string(reason)).Inc()
	logging.Debug("delta rejected", "viewer", c.id, "reason", string(reason), "error", err)
	a.enqueue(c, Envelope{Type: MsgRejected, Reason: reason, Detail: err.Error()})
}

func (a *Authority) broadcast(env Envelope) {
	a.mu.Lock()
	conns := make([]*viewerConn, 0, len(a.conns))
	for c := range a.conns {
		conns = append(conns, c)
	}
	a.mu.Unlock()
	for _, c := range conns {
		a.enqueue(c, env)
	}
}

// BroadcastSnapshot pushes the full current state to every viewer. Used
// after an out-of-band store reset, when per-delta catch-up is impossible.
func (a *Authority) BroadcastSnapshot() {
	snap := a.store.Snapshot()
	a.broadcast(Envelope{Type: MsgSnapshot, Graph: &snap, Revision: snap.Revision})
}

func (a *Authority) enqueue(c *viewerConn, env Envelope) {
	select {
	case <-c.done:
	case c.send <- env:
	default:
		metrics.BroadcastsDropped.Inc()
		logging.Warn("viewer send queue full, dropping message", "viewer", c.id, "type", string(env.Type))
	}
}

func (a *Authority) writePump(c *viewerConn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer a.drop(c)

	for {
		select {
		case <-c.done:
			return
		case env := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteJSON(env); err != nil {
				logging.Debug("viewer write failed", "viewer", c.id, "error", err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (a *Authority) drop(c *viewerConn) {
	c.once.Do(func() {
		a.mu.Lock()
		delete(a.conns, c)
		count := len(a.conns)
		a.mu.Unlock()
		close(c.done)
		_ = c.ws.Close()
		metrics.ConnectedViewers.Set(float64(count))
		logging.Info("viewer disconnected", "viewer", c.id, "viewers", count)
	})
}
