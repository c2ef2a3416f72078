// vgctl is the operational companion to the valuegraph server: validate or
// inspect snapshot files, submit deltas over REST, or tail the live delta
// stream as a read-only viewer.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/valuegraph/engine/pkg/analysis"
	"github.com/valuegraph/engine/pkg/graphsync"
	"github.com/valuegraph/engine/pkg/model"
	"github.com/valuegraph/engine/pkg/output"
	"github.com/valuegraph/engine/pkg/persist"
	"github.com/valuegraph/engine/pkg/web"
)

func main() {
	validate := pflag.String("validate", "", "Validate a snapshot file and exit")
	inspect := pflag.String("inspect", "", "Print a report for a snapshot file")
	server := pflag.String("server", "http://localhost:8080", "Authority base URL")
	addNode := pflag.Bool("add-node", false, "Add a node via the REST API")
	label := pflag.String("label", "", "Node label for --add-node")
	kind := pflag.String("kind", "hypothesis", "Node kind for --add-node")
	stage := pflag.String("stage", "hypothesis", "Node stage for --add-node")
	watch := pflag.Bool("watch", false, "Connect as a viewer and log the delta stream")
	pflag.Parse()

	var err error
	switch {
	case *validate != "":
		err = runValidate(*validate)
	case *inspect != "":
		err = runInspect(*inspect)
	case *addNode:
		err = runAddNode(*server, *label, *kind, *stage)
	case *watch:
		err = runWatch(*server)
	default:
		pflag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runValidate(path string) error {
	if _, err := persist.NewFileStore(path).Load(); err != nil {
		return err
	}
	fmt.Printf("%s: ok\n", path)
	return nil
}

func runInspect(path string) error {
	snap, err := persist.NewFileStore(path).Load()
	if err != nil {
		return err
	}
	g, err := model.FromSnapshot(snap)
	if err != nil {
		return err
	}
	output.PrintGraphReport(path, snap, analysis.Analyze(g))
	return nil
}

func runAddNode(server, label, kind, stage string) error {
	if label == "" {
		return fmt.Errorf("--label is required")
	}

	// Fetch the current revision to parent the delta correctly.
	var snap model.Snapshot
	resp, err := http.Get(server + "/api/graph")
	if err != nil {
		return fmt.Errorf("fetching graph: %w", err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return fmt.Errorf("decoding graph: %w", err)
	}

	delta := model.AddNode(&model.GraphNode{
		ID:     uuid.New().String(),
		Kind:   model.NodeKind(kind),
		Label:  label,
		Status: model.StatusPending,
		Stage:  model.Stage(stage),
	})
	body, err := json.Marshal(web.SubmitRequest{Delta: delta, ParentRevision: snap.Revision})
	if err != nil {
		return err
	}

	post, err := http.Post(server+"/api/deltas", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("submitting delta: %w", err)
	}
	defer post.Body.Close()
	if post.StatusCode != http.StatusOK {
		return fmt.Errorf("delta rejected: %s", post.Status)
	}
	var result web.SubmitResponse
	if err := json.NewDecoder(post.Body).Decode(&result); err != nil {
		return err
	}
	fmt.Printf("node added at revision %d\n", result.Revision)
	return nil
}

func runWatch(server string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	url := wsURL(server) + "/ws"
	client := graphsync.NewClient(graphsync.DefaultClientConfig(url))
	state := graphsync.NewViewerState()

	go func() {
		if err := client.Run(ctx); err != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "connection error: %v\n", err)
			cancel()
		}
	}()

	fmt.Printf("watching %s\n", url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case env := <-client.Messages():
			switch env.Type {
			case graphsync.MsgSnapshot:
				if env.Graph == nil {
					continue
				}
				if err := state.HandleSnapshot(*env.Graph); err != nil {
					return err
				}
				fmt.Printf("snapshot: revision %d, %d nodes, %d edges\n",
					env.Revision, len(env.Graph.Nodes), len(env.Graph.Edges))
			case graphsync.MsgDelta:
				if env.Delta == nil {
					continue
				}
				applied, err := state.HandleDelta(*env.Delta, env.ParentRevision, env.Revision)
				if err != nil || !applied {
					client.RequestSnapshot()
					continue
				}
				raw, _ := json.Marshal(env.Delta)
				fmt.Printf("revision %d: %s\n", env.Revision, raw)
			}
		}
	}
}

// wsURL converts an http(s) base URL to its ws(s) form.
func wsURL(server string) string {
	switch {
	case len(server) > 7 && server[:7] == "http://":
		return "ws://" + server[7:]
	case len(server) > 8 && server[:8] == "https://":
		return "wss://" + server[8:]
	default:
		return server
	}
}
