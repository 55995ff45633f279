package orchestrator

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/openmined/dirsync/internal/fsentry"
	"github.com/openmined/dirsync/internal/snapshot"
)

type resyncResult struct {
	dir     string
	changes *snapshot.Changes
	err     error
}

// ResyncAll re-sweeps every tracked directory and reports what changed since
// the last sweep. A pass already in flight makes this a no-op.
func (o *Orchestrator) ResyncAll() error {
	return o.call(func() error {
		o.resyncAll()
		return nil
	})
}

func (o *Orchestrator) resyncAll() {
	if o.resyncing {
		slog.Debug("resync already running")
		return
	}
	o.resyncing = true
	dirs := slices.Clone(o.trackedDirs)

	o.spawn(func(ctx context.Context) func() {
		tStart := time.Now()
		results := make([]resyncResult, 0, len(dirs))
		for _, dir := range dirs {
			if ctx.Err() != nil {
				break
			}
			changes, err := o.store.ResyncDir(ctx, dir)
			results = append(results, resyncResult{dir: dir, changes: changes, err: err})
		}
		slog.Debug("resync", "dirs", len(dirs), "elapsed", time.Since(tStart))

		return func() {
			o.resyncing = false
			o.applyResync(results)
		}
	})
}

func (o *Orchestrator) applyResync(results []resyncResult) {
	affected := false
	loc := o.history.Current()

	for _, r := range results {
		if r.err != nil {
			o.fail("Failed to resync %s: %v", r.dir, r.err)
			continue
		}
		if !r.changes.HasChanges() {
			continue
		}
		o.info("%s in %s", plural(r.changes.Len(), "change"), r.dir)
		if loc == nil || fsentry.IsWithin(r.dir, loc.Path) {
			affected = true
		}
	}

	if affected && !o.searching {
		o.recomputeFiles()
	}
}

// resyncLoop runs ResyncAll every resyncInterval until ctx is done. The timer
// is re-armed only after a pass has been handed to the actor.
func (o *Orchestrator) resyncLoop(ctx context.Context) {
	timer := time.NewTimer(o.resyncInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if err := o.ResyncAll(); err != nil {
				slog.Debug("resync loop", "error", err)
			}
			timer.Reset(o.resyncInterval)
		}
	}
}
