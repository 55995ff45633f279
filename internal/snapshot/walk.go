package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/openmined/dirsync/internal/fsentry"
	"golang.org/x/sync/errgroup"
)

const (
	treeBufferSize = 64
)

// Lister lists the immediate children of a directory. A missing directory is
// an empty listing, not an error.
type Lister interface {
	List(path string, ignoreHidden bool) ([]fsentry.DirEntry, error)
}

// FileReader reads a whole file.
type FileReader interface {
	ReadFile(path string) ([]byte, error)
}

// Source is what a tracked directory is swept through: its listings plus the
// ignore file at its root.
type Source interface {
	Lister
	FileReader
}

type WalkOptions struct {
	IgnoreHidden bool
	Ignore       *IgnoreList
	// VisitDirs also passes directories to visit, before their children.
	VisitDirs bool
}

// DirError records a subdirectory that could not be listed. Its subtree is
// skipped; the rest of the walk continues.
type DirError struct {
	Path string
	Err  error
}

func (e *DirError) Error() string {
	return fmt.Sprintf("list %s: %v", e.Path, e.Err)
}

func (e *DirError) Unwrap() error {
	return e.Err
}

// Walk visits every file below root in depth-first order using an explicit
// work stack, so tree depth is bounded by memory and not by the call stack.
// Directories are expanded, and visited too only with VisitDirs. A failure to
// list root is returned as an error; failures below root are collected and
// returned alongside a nil error. A non-nil error from visit or a cancelled
// ctx stops the walk.
func Walk(ctx context.Context, lister Lister, root string, opts WalkOptions, visit func(fsentry.DirEntry) error) ([]*DirError, error) {
	children, err := lister.List(root, opts.IgnoreHidden)
	if err != nil {
		return nil, fmt.Errorf("list root %s: %w", root, err)
	}

	var skipped []*DirError
	stack := make([]fsentry.DirEntry, 0, len(children))
	push := func(entries []fsentry.DirEntry) {
		for _, e := range entries {
			if opts.Ignore.ShouldIgnore(relPath(root, e.Path), e.IsDirectory) {
				continue
			}
			stack = append(stack, e)
		}
	}
	push(children)

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return skipped, err
		}

		last := len(stack) - 1
		entry := stack[last]
		stack = stack[:last]

		if entry.IsDirectory {
			if opts.VisitDirs {
				if err := visit(entry); err != nil {
					return skipped, err
				}
			}
			children, err := lister.List(entry.Path, opts.IgnoreHidden)
			if err != nil {
				slog.Warn("snapshot skip dir", "path", entry.Path, "error", err)
				skipped = append(skipped, &DirError{Path: entry.Path, Err: err})
				continue
			}
			push(children)
			continue
		}

		if err := visit(entry); err != nil {
			return skipped, err
		}
	}

	return skipped, nil
}

// Result is a completed sweep of one root.
type Result struct {
	Root      string
	Snapshots []Snapshot
	Skipped   []*DirError
}

// SkippedErr joins the per-directory errors, or returns nil.
func (r *Result) SkippedErr() error {
	if len(r.Skipped) == 0 {
		return nil
	}
	errs := make([]error, len(r.Skipped))
	for i, e := range r.Skipped {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// Tree snapshots every file below root. The walk runs as a producer feeding a
// collector over a channel; both finish or both are cancelled before Tree
// returns, so a result is either complete or absent.
func Tree(ctx context.Context, lister Lister, root string, opts WalkOptions) (*Result, error) {
	tStart := time.Now()
	files := make(chan fsentry.DirEntry, treeBufferSize)
	eg, egCtx := errgroup.WithContext(ctx)

	var skipped []*DirError
	eg.Go(func() error {
		defer close(files)
		s, err := Walk(egCtx, lister, root, opts, func(e fsentry.DirEntry) error {
			select {
			case files <- e:
				return nil
			case <-egCtx.Done():
				return egCtx.Err()
			}
		})
		skipped = s
		return err
	})

	snapshots := make([]Snapshot, 0)
	var totalSize int64
	eg.Go(func() error {
		for e := range files {
			snapshots = append(snapshots, Of(e))
			totalSize += e.Size
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", root, err)
	}

	slog.Debug("snapshot tree",
		"root", root,
		"files", len(snapshots),
		"size", humanize.Bytes(uint64(totalSize)),
		"skipped", len(skipped),
		"elapsed", time.Since(tStart),
	)

	return &Result{
		Root:      root,
		Snapshots: snapshots,
		Skipped:   skipped,
	}, nil
}

func relPath(root, p string) string {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return p
	}
	return filepath.ToSlash(strings.TrimPrefix(rel, "./"))
}
