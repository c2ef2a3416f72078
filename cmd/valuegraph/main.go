// The valuegraph server is the authority: it owns the canonical graph,
// serializes every delta, and keeps connected viewers in sync.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/valuegraph/engine/pkg/config"
	"github.com/valuegraph/engine/pkg/graphsync"
	"github.com/valuegraph/engine/pkg/logging"
	"github.com/valuegraph/engine/pkg/model"
	"github.com/valuegraph/engine/pkg/persist"
	"github.com/valuegraph/engine/pkg/store"
	"github.com/valuegraph/engine/pkg/web"
)

func main() {
	flags := pflag.NewFlagSet("valuegraph", pflag.ExitOnError)
	flags.Int("port", 8080, "Port for the web server")
	flags.String("snapshot", "valuegraph.json", "Path to the snapshot file")
	flags.Bool("watch", false, "Reload when the snapshot file changes on disk")
	flags.Bool("json-logs", false, "Log in JSON format")
	flags.CountP("verbose", "v", "Increase log verbosity")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	level := logging.LevelFromVerbosity(cfg.VerboseCnt)
	if cfg.JSONLogs {
		logging.SetJSONOutput(level)
	} else {
		logging.SetLevel(level)
	}

	if err := run(cfg); err != nil {
		logging.Fatal("server failed", "error", err)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fileStore := persist.NewFileStore(cfg.SnapshotPath)
	st, err := loadStore(fileStore)
	if err != nil {
		return err
	}
	g, rev := st.Graph()
	logging.Info("graph loaded", "revision", rev, "nodes", len(g.Nodes), "edges", len(g.Edges))

	authority := graphsync.NewAuthority(st)
	defer authority.Close()

	saver := persist.NewAutoSaver(st, fileStore,
		time.Duration(cfg.SaveQuietSec)*time.Second,
		time.Duration(cfg.SaveMaxSec)*time.Second)
	saver.Start(ctx)

	if cfg.Watch {
		watcher, err := persist.NewWatcher(fileStore,
			func(snap model.Snapshot) bool { return snap.Revision == st.Revision() },
			func(snap model.Snapshot) {
				if _, err := st.Reset(snap); err != nil {
					logging.Error("reload rejected", "error", err)
					return
				}
				authority.BroadcastSnapshot()
			})
		if err != nil {
			return fmt.Errorf("starting snapshot watcher: %w", err)
		}
		watcher.Start(ctx)
	}

	server := web.NewServer(st, authority, saver)
	defer server.Close()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.Port)
	}()

	select {
	case <-ctx.Done():
		logging.Info("shutting down")
		// AutoSaver flushes on context cancellation; give it a moment.
		time.Sleep(100 * time.Millisecond)
		return nil
	case err := <-errCh:
		return err
	}
}

// loadStore seeds the store from the snapshot file; a missing file means a
// fresh empty graph, a corrupt file is fatal.
func loadStore(fileStore *persist.FileStore) (*store.Store, error) {
	snap, err := fileStore.Load()
	switch {
	case err == nil:
		return store.NewFromSnapshot(snap)
	case errors.Is(err, fs.ErrNotExist):
		logging.Info("no snapshot file, starting empty", "path", fileStore.Path())
		return store.New(), nil
	default:
		return nil, err
	}
}
