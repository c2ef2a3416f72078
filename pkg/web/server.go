// Package web is the authority's HTTP surface: REST access to snapshots and
// projections, the WebSocket sync endpoint, a status event stream for
// dashboards, Prometheus metrics, and the bundled viewer page.
package web

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/valuegraph/engine/pkg/analysis"
	"github.com/valuegraph/engine/pkg/graphsync"
	"github.com/valuegraph/engine/pkg/logging"
	"github.com/valuegraph/engine/pkg/model"
	"github.com/valuegraph/engine/pkg/persist"
	"github.com/valuegraph/engine/pkg/projector"
	"github.com/valuegraph/engine/pkg/pubsub"
	"github.com/valuegraph/engine/pkg/store"
)

//go:embed static/*
var staticFiles embed.FS

const statusTopic = "authority_status"

// SubmitRequest is the REST body for delta submission. REST producers (the
// agent layer, scripts) share the authority apply path with WebSocket
// viewers, so the same conflict semantics hold.
type SubmitRequest struct {
	Delta          model.Delta `json:"delta"`
	ParentRevision int64       `json:"parentRevision"`
}

// SubmitResponse confirms an applied delta.
type SubmitResponse struct {
	Revision int64 `json:"revision"`
}

// Server represents the web server
type Server struct {
	router      *mux.Router
	store       *store.Store
	authority   *graphsync.Authority
	publisher   *pubsub.SSEPublisher
	saver       *persist.AutoSaver
	unsubscribe func()
}

// NewServer wires the HTTP surface to the store and authority. saver may be
// nil when persistence is disabled.
func NewServer(st *store.Store, authority *graphsync.Authority, saver *persist.AutoSaver) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		store:     st,
		authority: authority,
		publisher: pubsub.NewSSEPublisher(),
		saver:     saver,
	}
	s.unsubscribe = st.Subscribe(func(_ model.Delta, _ int64) {
		s.publishStatus("revision_advanced")
	})
	s.setupRoutes()
	return s
}

func (s *Server) publishStatus(eventType string) {
	g, rev := s.store.Graph()
	status := pubsub.AuthorityStatus{
		Revision: rev,
		Nodes:    len(g.Nodes),
		Edges:    len(g.Edges),
		Viewers:  s.authority.ViewerCount(),
	}
	if err := s.publisher.Publish(statusTopic, eventType, status); err != nil {
		logging.Warn("failed to publish status", "error", err)
	}
}

func (s *Server) setupRoutes() {
	// SSE status stream for dashboards
	s.router.HandleFunc("/api/subscribe/status", s.handleSubscribeStatus).Methods("GET")

	// REST API - more specific routes must come first
	s.router.HandleFunc("/api/graph/projection", s.handleProjection).Methods("GET")
	s.router.HandleFunc("/api/graph/issues", s.handleIssues).Methods("GET")
	s.router.HandleFunc("/api/graph", s.handleGraph).Methods("GET")
	s.router.HandleFunc("/api/deltas", s.handleSubmitDelta).Methods("POST")
	s.router.HandleFunc("/api/save", s.handleSave).Methods("POST")
	s.router.HandleFunc("/api/status", s.handleStatus).Methods("GET")

	// Sync protocol
	s.router.Handle("/ws", s.authority)

	// Prometheus metrics
	s.router.Handle("/metrics", promhttp.Handler())

	// Serve the bundled viewer page
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		logging.Fatal("static files missing from binary", "error", err)
	}
	s.router.PathPrefix("/").Handler(http.FileServer(http.FS(staticFS)))
}

// Start runs the server on the given port, blocking until it fails.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	logging.Info("web server listening", "addr", addr)
	return http.ListenAndServe(addr, logging.RequestIDMiddleware(s.router))
}

// Handler exposes the routed handler for tests and custom servers.
func (s *Server) Handler() http.Handler {
	return logging.RequestIDMiddleware(s.router)
}

// Close detaches the server from the store and stops the status stream.
func (s *Server) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	_ = s.publisher.Close()
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.store.Snapshot())
}

// handleProjection filters the graph by stage, kinds (comma separated) and
// q (label search), mirroring the viewer-side projector.
func (s *Server) handleProjection(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	filter := projector.Filter{
		Stage:  model.Stage(r.URL.Query().Get("stage")),
		Search: r.URL.Query().Get("q"),
	}
	if kinds := r.URL.Query().Get("kinds"); kinds != "" {
		filter.Kinds = make(map[model.NodeKind]bool)
		for _, k := range strings.Split(kinds, ",") {
			filter.Kinds[model.NodeKind(strings.TrimSpace(k))] = true
		}
	}

	g, rev := s.store.Graph()
	proj := projector.Project(g, filter)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"nodes":    proj.Nodes,
		"edges":    proj.Edges,
		"revision": rev,
	})
}

func (s *Server) handleIssues(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	g, _ := s.store.Graph()
	issues := analysis.Analyze(g)
	if issues == nil {
		issues = []analysis.Issue{}
	}
	json.NewEncoder(w).Encode(issues)
}

func (s *Server) handleSubmitDelta(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("malformed request: %v", err), http.StatusBadRequest)
		return
	}

	revision, err := s.store.Apply(req.Delta, req.ParentRevision)
	if err != nil {
		var conflict *model.ConflictError
		if errors.As(err, &conflict) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	json.NewEncoder(w).Encode(SubmitResponse{Revision: revision})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if s.saver == nil {
		http.Error(w, "persistence disabled", http.StatusServiceUnavailable)
		return
	}
	if err := s.saver.Flush(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	g, rev := s.store.Graph()
	json.NewEncoder(w).Encode(pubsub.AuthorityStatus{
		Revision: rev,
		Nodes:    len(g.Nodes),
		Edges:    len(g.Edges),
		Viewers:  s.authority.ViewerCount(),
	})
}

func (s *Server) handleSubscribeStatus(w http.ResponseWriter, r *http.Request) {
	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	// Establish the stream before the first event (Safari compatibility)
	fmt.Fprintf(w, ": connected\n\n")
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	sub, err := s.publisher.Subscribe(r.Context(), statusTopic)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer sub.Close()

	for event := range sub.Events() {
		if err := pubsub.WriteSSE(w, event); err != nil {
			logging.Debug("status stream closed", "error", err)
			return
		}
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
	}
}
