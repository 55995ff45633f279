// Package fileops is the filesystem capability the orchestrator drives:
// listing, stat and bulk file operations. Bulk operations attempt every file
// and report failures per file.
package fileops

import (
	"errors"
	"fmt"

	"github.com/openmined/dirsync/internal/fsentry"
)

var (
	ErrDestNotDir     = errors.New("destination must be a directory")
	ErrSameFile       = errors.New("source and destination are the same file")
	ErrCopyIntoSelf   = errors.New("cannot copy a directory into itself")
	ErrExists         = errors.New("destination already exists")
	ErrEmptyName      = errors.New("file name is empty")
	ErrInvalidName    = errors.New("file name contains a path separator")
	ErrOpenNotSupport = errors.New("opening files is not supported on this platform")
)

// ClipboardAction selects what a paste does with the clipboard contents.
type ClipboardAction int

const (
	ActionNone ClipboardAction = iota
	ActionCopy
	ActionCut
)

func (a ClipboardAction) String() string {
	switch a {
	case ActionCopy:
		return "copy"
	case ActionCut:
		return "cut"
	default:
		return "none"
	}
}

// FileError is the failure of a single file within a bulk operation.
type FileError struct {
	Entry fsentry.DirEntry
	Err   error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Entry.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// Gateway is implemented once per platform. Paths are opaque to callers.
type Gateway interface {
	// List returns the immediate children of path. A missing path lists as
	// empty.
	List(path string, ignoreHidden bool) ([]fsentry.DirEntry, error)
	// Stat returns nil without error when path does not exist.
	Stat(path string) (*fsentry.DirEntry, error)
	ReadFile(path string) ([]byte, error)

	Copy(files []fsentry.DirEntry, destDir string, overwrite bool) []*FileError
	Move(files []fsentry.DirEntry, destDir string, overwrite bool) []*FileError
	Delete(files []fsentry.DirEntry) []*FileError

	Rename(file fsentry.DirEntry, newName string) error
	CreateFile(name, destDir string, isDirectory bool) (*fsentry.DirEntry, error)

	// Open hands the file to the platform's default viewer.
	Open(file fsentry.DirEntry) error
}
