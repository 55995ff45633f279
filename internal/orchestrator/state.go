package orchestrator

import (
	"context"
	"log/slog"
	"path/filepath"
	"slices"
	"time"

	"github.com/openmined/dirsync/internal/fsentry"
)

// Filter drops hidden entries when hideHidden is set and keeps only entries
// of typeFilter when it is non-nil. The input is never modified.
func Filter(files []fsentry.DirEntry, hideHidden bool, typeFilter *fsentry.FileType) []fsentry.DirEntry {
	out := make([]fsentry.DirEntry, 0, len(files))
	for _, f := range files {
		if hideHidden && f.IsHidden() {
			continue
		}
		if typeFilter != nil && f.FileType != *typeFilter {
			continue
		}
		out = append(out, f)
	}
	return out
}

// rootOf resolves the tracked directory containing loc, the longest match
// winning. Locations outside every tracked dir are their own volume.
func (o *Orchestrator) rootOf(loc fsentry.DirEntry) (string, bool) {
	if loc.Path == "" {
		return "", false
	}

	best := ""
	for _, dir := range o.trackedDirs {
		if fsentry.IsWithin(dir, loc.Path) && len(dir) > len(best) {
			best = dir
		}
	}
	if best != "" {
		return best, true
	}
	if vol := filepath.VolumeName(loc.Path); vol != "" {
		return vol, true
	}
	return loc.Path, true
}

// setWorkingDir publishes the history's current location and re-derives the
// listing.
func (o *Orchestrator) setWorkingDir() {
	o.searching = false
	o.workingDir.Set(o.history.Current())
	o.recomputeFiles()
	o.recomputePaste()
}

func (o *Orchestrator) reloadTrackedDirs() {
	dirs := o.store.GetTrackedDirs().ToSlice()
	slices.Sort(dirs)
	o.trackedDirs = dirs
	o.tracked.Set(slices.Clone(dirs))
}

// refreshCurrentDir re-reads the tracked dirs and lists the current location
// again. It also leaves search mode.
func (o *Orchestrator) refreshCurrentDir() {
	o.reloadTrackedDirs()
	o.setWorkingDir()
}

// recomputeFiles lists the working directory in the background. Only the
// newest request is applied.
func (o *Orchestrator) recomputeFiles() {
	o.filesGen++
	gen := o.filesGen
	loc := o.history.Current()
	tracked := slices.Clone(o.trackedDirs)

	o.spawn(func(ctx context.Context) func() {
		tStart := time.Now()
		var files []fsentry.DirEntry
		if loc == nil {
			files = o.resolveTrackedDirs(tracked)
		} else {
			var err error
			files, err = o.gateway.List(loc.Path, false)
			if err != nil {
				slog.Warn("list working dir", "path", loc.Path, "error", err)
				files = []fsentry.DirEntry{}
			}
		}
		slog.Debug("list working dir", "gen", gen, "files", len(files), "elapsed", time.Since(tStart))

		return func() {
			if gen != o.filesGen {
				slog.Debug("list working dir stale", "gen", gen, "latest", o.filesGen)
				return
			}
			o.setCurrentFiles(files)
		}
	})
}

// resolveTrackedDirs builds the virtual root listing. A tracked dir that no
// longer exists still shows up as a folder so it can be untracked.
func (o *Orchestrator) resolveTrackedDirs(dirs []string) []fsentry.DirEntry {
	out := make([]fsentry.DirEntry, 0, len(dirs))
	for _, dir := range dirs {
		entry, err := o.gateway.Stat(dir)
		if err != nil || entry == nil {
			if err != nil {
				slog.Warn("stat tracked dir", "dir", dir, "error", err)
			}
			out = append(out, fsentry.New(filepath.Base(dir), dir, true, 0, time.UnixMilli(0), fsentry.FilePermissions{}))
			continue
		}
		out = append(out, *entry)
	}
	return out
}

func (o *Orchestrator) setCurrentFiles(files []fsentry.DirEntry) {
	o.current = files
	o.files.Set(slices.Clone(files))
	o.recomputeFiltered()
}

func (o *Orchestrator) recomputeFiltered() {
	o.filteredFiles.Set(Filter(o.current, o.hideHidden, o.typeFilter))
}

func (o *Orchestrator) recomputePaste() {
	ok := o.history.Current() != nil && !o.clipboard.Empty()
	o.okayToPaste.Set(ok)
}

func (o *Orchestrator) setClipboard(c Clipboard) {
	o.clipboard = c
	o.clip.Set(Clipboard{Files: slices.Clone(c.Files), Action: c.Action})
	o.recomputePaste()
}
