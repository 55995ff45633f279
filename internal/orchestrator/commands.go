package orchestrator

import (
	"context"
	"path/filepath"
	"slices"
	"strings"

	"github.com/openmined/dirsync/internal/fileops"
	"github.com/openmined/dirsync/internal/fsentry"
)

// SelectFileFilter shows only entries of ft. A nil ft shows everything.
func (o *Orchestrator) SelectFileFilter(ft *fsentry.FileType) error {
	if ft != nil {
		v := *ft
		ft = &v
	}
	return o.call(func() error {
		o.typeFilter = ft
		o.filter.Set(ft)
		o.recomputeFiltered()
		return nil
	})
}

func (o *Orchestrator) ToggleHiddenFiles() error {
	return o.call(func() error {
		o.hideHidden = !o.hideHidden
		o.hidden.Set(o.hideHidden)
		o.recomputeFiltered()
		return nil
	})
}

// TrackNewDir snapshots dir in the background and starts tracking it.
func (o *Orchestrator) TrackNewDir(dir string) error {
	dir = strings.TrimSpace(dir)
	return o.call(func() error {
		if dir == "" {
			return o.reject(ErrEmptyPath)
		}
		dir = filepath.Clean(dir)

		o.spawn(func(ctx context.Context) func() {
			added, err := o.store.TrackNewDir(ctx, dir)
			return func() {
				switch {
				case err != nil:
					o.fail("Failed to track %s: %v", dir, err)
				case !added:
					o.warn("%s is already tracked", dir)
				default:
					o.info("Tracking %s", dir)
					o.refreshCurrentDir()
				}
			}
		})
		return nil
	})
}

// RemoveTrackedDir stops tracking dir. Browsing inside dir falls back to the
// virtual root.
func (o *Orchestrator) RemoveTrackedDir(dir string) error {
	return o.call(func() error {
		if strings.TrimSpace(dir) == "" {
			return o.reject(ErrEmptyPath)
		}
		dir = filepath.Clean(dir)

		o.spawn(func(ctx context.Context) func() {
			_, err := o.store.RemoveTrackedDir(dir)
			return func() {
				if err != nil {
					o.fail("Failed to untrack %s: %v", dir, err)
					return
				}
				o.info("Stopped tracking %s", dir)
				if loc := o.history.Current(); loc != nil && fsentry.IsWithin(dir, loc.Path) {
					o.history.ChangeWorkingDir(nil)
				}
				o.history.Forget(dir)
				o.refreshCurrentDir()
			}
		})
		return nil
	})
}

// ChangeWorkingDir browses into dir. A nil dir is the virtual root.
func (o *Orchestrator) ChangeWorkingDir(dir *fsentry.DirEntry) error {
	return o.call(func() error {
		if dir != nil && !dir.IsDirectory {
			return o.reject(ErrNotDirectory)
		}
		if o.history.ChangeWorkingDir(dir) || o.searching {
			o.setWorkingDir()
		}
		return nil
	})
}

func (o *Orchestrator) GotoPreviousDir() error {
	return o.call(func() error {
		if _, ok := o.history.GoBack(); ok {
			o.setWorkingDir()
		}
		return nil
	})
}

func (o *Orchestrator) GotoNextDir() error {
	return o.call(func() error {
		if _, ok := o.history.GoForward(); ok {
			o.setWorkingDir()
		}
		return nil
	})
}

// CopyOrCut replaces the clipboard with files.
func (o *Orchestrator) CopyOrCut(files []fsentry.DirEntry, action fileops.ClipboardAction) error {
	if len(files) == 0 {
		return nil
	}
	files = slices.Clone(files)
	return o.call(func() error {
		o.setClipboard(Clipboard{Files: files, Action: action})
		switch action {
		case fileops.ActionCopy:
			o.info("Copied %s", plural(len(files), "file"))
		case fileops.ActionCut:
			o.info("Cut %s", plural(len(files), "file"))
		}
		return nil
	})
}

// Paste copies or moves the clipboard into the working directory. The
// clipboard is cleared whether or not every file made it.
func (o *Orchestrator) Paste() error {
	return o.call(func() error {
		if !o.okayToPaste.Get() {
			return o.reject(ErrNothingToPaste)
		}

		clip := o.clipboard
		dest := o.history.Current().Path
		overwrite := o.pasteOverwrite
		o.setClipboard(Clipboard{})

		o.spawn(func(ctx context.Context) func() {
			var errs []*fileops.FileError
			if clip.Action == fileops.ActionCut {
				errs = o.gateway.Move(clip.Files, dest, overwrite)
			} else {
				errs = o.gateway.Copy(clip.Files, dest, overwrite)
			}
			return func() {
				for _, fe := range errs {
					o.fail("Failed to paste %s: %v", fe.Entry.Name, fe.Err)
				}
				o.refreshCurrentDir()
			}
		})
		return nil
	})
}

func (o *Orchestrator) Delete(files []fsentry.DirEntry) error {
	if len(files) == 0 {
		return nil
	}
	files = slices.Clone(files)
	return o.call(func() error {
		o.spawn(func(ctx context.Context) func() {
			errs := o.gateway.Delete(files)
			return func() {
				for _, fe := range errs {
					o.fail("Failed to delete %s: %v", fe.Entry.Name, fe.Err)
				}
				if n := len(files) - len(errs); n > 0 {
					o.info("Deleted %s", plural(n, "file"))
				}
				o.refreshCurrentDir()
			}
		})
		return nil
	})
}

func (o *Orchestrator) Rename(file fsentry.DirEntry, newName string) error {
	return o.call(func() error {
		if strings.TrimSpace(newName) == "" {
			return o.reject(ErrEmptyName)
		}

		o.spawn(func(ctx context.Context) func() {
			err := o.gateway.Rename(file, newName)
			return func() {
				if err != nil {
					o.fail("Failed to rename %s: %v", file.Name, err)
					return
				}
				o.refreshCurrentDir()
			}
		})
		return nil
	})
}

// CreateNewFile creates "New Folder" or "New File" in the working directory,
// numbering the name if it is taken.
func (o *Orchestrator) CreateNewFile(isDirectory bool) error {
	return o.call(func() error {
		loc := o.history.Current()
		if loc == nil {
			return o.reject(ErrVirtualRoot)
		}

		name := DefaultNewFileName
		if isDirectory {
			name = DefaultNewFolderName
		}

		o.spawn(func(ctx context.Context) func() {
			created, err := o.gateway.CreateFile(name, loc.Path, isDirectory)
			return func() {
				if err != nil {
					o.fail("Failed to create %s: %v", name, err)
					return
				}
				if created != nil {
					o.info("Created %s", created.Name)
				}
				o.refreshCurrentDir()
			}
		})
		return nil
	})
}

// Open hands file to the system's default application.
func (o *Orchestrator) Open(file fsentry.DirEntry) error {
	return o.call(func() error {
		o.spawn(func(ctx context.Context) func() {
			err := o.gateway.Open(file)
			return func() {
				if err != nil {
					o.fail("Failed to open %s: %v", file.Name, err)
				}
			}
		})
		return nil
	})
}

// RefreshCurrentDir re-reads the tracked dirs and lists the working directory
// again, leaving search mode.
func (o *Orchestrator) RefreshCurrentDir() error {
	return o.call(func() error {
		o.refreshCurrentDir()
		return nil
	})
}
