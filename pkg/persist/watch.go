package persist

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/valuegraph/engine/pkg/logging"
	"github.com/valuegraph/engine/pkg/model"
)

// reloadQuiet batches the write+rename event pairs editors and backup tools
// produce into one reload.
const reloadQuiet = 500 * time.Millisecond

// Watcher reloads the snapshot when the file changes on disk, e.g. after a
// restore from backup or a manual edit. It watches the parent directory
// because atomic saves replace the file by rename.
type Watcher struct {
	file *FileStore
	// skip filters loads; it is given the loaded snapshot and returns true
	// when the change is our own save echoing back.
	skip     func(model.Snapshot) bool
	onReload func(model.Snapshot)
	watcher  *fsnotify.Watcher
}

// NewWatcher creates a watcher delivering externally changed snapshots to
// onReload. A fatal (corrupt) snapshot on disk is logged and skipped; the
// in-memory state stays live.
func NewWatcher(file *FileStore, skip func(model.Snapshot) bool, onReload func(model.Snapshot)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{file: file, skip: skip, onReload: onReload, watcher: fw}
	if err := fw.Add(filepath.Dir(file.Path())); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

// Start begins processing events until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	go w.run(ctx)
	logging.Info("watching snapshot file", "path", w.file.Path())
}

func (w *Watcher) run(ctx context.Context) {
	defer w.watcher.Close()

	var quiet *time.Timer
	quietC := func() <-chan time.Time {
		if quiet == nil {
			return nil
		}
		return quiet.C
	}

	base := filepath.Base(w.file.Path())
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Rename) {
				continue
			}
			if quiet == nil {
				quiet = time.NewTimer(reloadQuiet)
			} else {
				quiet.Reset(reloadQuiet)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Warn("snapshot watcher error", "error", err)
		case <-quietC():
			quiet = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	snap, err := w.file.Load()
	if err != nil {
		var fatal *FatalError
		if errors.As(err, &fatal) {
			logging.Error("snapshot on disk is unusable, keeping in-memory state", "error", err)
		} else {
			logging.Warn("snapshot reload failed", "error", err)
		}
		return
	}
	if w.skip != nil && w.skip(snap) {
		logging.Debug("ignoring own snapshot save", "revision", snap.Revision)
		return
	}
	logging.Info("snapshot changed on disk, reloading", "revision", snap.Revision)
	w.onReload(snap)
}
