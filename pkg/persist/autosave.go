package persist

import (
	"context"
	"time"

	"github.com/valuegraph/engine/pkg/logging"
	"github.com/valuegraph/engine/pkg/model"
	"github.com/valuegraph/engine/pkg/store"
)

// AutoSaver saves the store on a debounced cadence: a burst of deltas
// results in one write after a quiet period, and a steady stream still
// flushes at least every maxWait.
type AutoSaver struct {
	store   *store.Store
	file    *FileStore
	quiet   time.Duration
	maxWait time.Duration

	trigger     chan struct{}
	unsubscribe func()
}

// NewAutoSaver wires an autosaver between a store and a file store.
func NewAutoSaver(st *store.Store, file *FileStore, quiet, maxWait time.Duration) *AutoSaver {
	return &AutoSaver{
		store:   st,
		file:    file,
		quiet:   quiet,
		maxWait: maxWait,
		trigger: make(chan struct{}, 1),
	}
}

// Start subscribes to the store and begins the debounce loop. The callback
// only pokes the trigger channel, never the store. Cancelling ctx flushes
// any pending save before returning.
func (a *AutoSaver) Start(ctx context.Context) {
	a.unsubscribe = a.store.Subscribe(func(_ model.Delta, _ int64) {
		select {
		case a.trigger <- struct{}{}:
		default:
		}
	})
	go a.run(ctx)
}

// run applies the quiet-period/max-wait debounce and performs the saves.
func (a *AutoSaver) run(ctx context.Context) {
	var quietTimer, maxWaitTimer *time.Timer
	quietC := func() <-chan time.Time {
		if quietTimer == nil {
			return nil
		}
		return quietTimer.C
	}
	maxC := func() <-chan time.Time {
		if maxWaitTimer == nil {
			return nil
		}
		return maxWaitTimer.C
	}
	stopTimers := func() {
		if quietTimer != nil {
			quietTimer.Stop()
			quietTimer = nil
		}
		if maxWaitTimer != nil {
			maxWaitTimer.Stop()
			maxWaitTimer = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			stopTimers()
			if err := a.Flush(); err != nil {
				logging.Error("final snapshot save failed", "error", err)
			}
			return
		case <-a.trigger:
			if quietTimer == nil {
				quietTimer = time.NewTimer(a.quiet)
			} else {
				quietTimer.Reset(a.quiet)
			}
			if maxWaitTimer == nil {
				maxWaitTimer = time.NewTimer(a.maxWait)
			}
		case <-quietC():
			stopTimers()
			a.save()
		case <-maxC():
			stopTimers()
			a.save()
		}
	}
}

// Flush saves immediately.
func (a *AutoSaver) Flush() error {
	return a.file.Save(a.store.Snapshot())
}

func (a *AutoSaver) save() {
	snap := a.store.Snapshot()
	if err := a.file.Save(snap); err != nil {
		logging.Error("snapshot save failed", "path", a.file.Path(), "error", err)
		return
	}
	logging.Debug("snapshot saved", "path", a.file.Path(), "revision", snap.Revision)
}
