package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/openmined/dirsync/internal/fsentry"
	"github.com/openmined/dirsync/internal/snapshot"
	"golang.org/x/sync/errgroup"
)

const globMeta = "*?[{"

// Matcher reports whether a file name matches a search query.
type Matcher func(name string) bool

// NewMatcher matches names containing query, ignoring case. A query with glob
// metacharacters is matched as the pattern *query* instead.
func NewMatcher(query string) (Matcher, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, ErrEmptyQuery
	}

	if !strings.ContainsAny(q, globMeta) {
		return func(name string) bool {
			return strings.Contains(strings.ToLower(name), q)
		}, nil
	}

	pattern := "*" + q + "*"
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid search pattern %q", query)
	}
	return func(name string) bool {
		ok, _ := doublestar.Match(pattern, strings.ToLower(name))
		return ok
	}, nil
}

// Search lists every entry below the tracked directories whose name matches
// query, in place of the working directory listing. Browsing to any location
// or RefreshCurrentDir ends the search.
func (o *Orchestrator) Search(query string, ignoreHidden bool) error {
	return o.call(func() error {
		match, err := NewMatcher(query)
		if err != nil {
			return o.reject(err)
		}

		o.searching = true
		o.filesGen++
		gen := o.filesGen
		dirs := slices.Clone(o.trackedDirs)

		o.spawn(func(ctx context.Context) func() {
			found, err := o.searchDirs(ctx, dirs, match, ignoreHidden)
			return func() {
				if gen != o.filesGen {
					return
				}
				if err != nil {
					o.fail("Search failed: %v", err)
					found = []fsentry.DirEntry{}
				} else if len(found) == 0 {
					o.fail("No files matching %q", strings.TrimSpace(query))
				}
				o.setCurrentFiles(found)
			}
		})
		return nil
	})
}

// searchDirs walks each dir concurrently. Results keep the order of dirs.
func (o *Orchestrator) searchDirs(ctx context.Context, dirs []string, match Matcher, ignoreHidden bool) ([]fsentry.DirEntry, error) {
	tStart := time.Now()
	perDir := make([][]fsentry.DirEntry, len(dirs))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(o.searchConcurrency)

	for i, dir := range dirs {
		eg.Go(func() error {
			var hits []fsentry.DirEntry
			opts := snapshot.WalkOptions{IgnoreHidden: ignoreHidden, VisitDirs: true}
			_, err := snapshot.Walk(egCtx, o.gateway, dir, opts, func(e fsentry.DirEntry) error {
				if match(e.Name) {
					hits = append(hits, e)
				}
				return nil
			})
			if err != nil {
				if egCtx.Err() != nil {
					return egCtx.Err()
				}
				// a tracked dir that is gone has nothing to find
				slog.Warn("search skip dir", "dir", dir, "error", err)
			}
			perDir[i] = hits
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	found := make([]fsentry.DirEntry, 0)
	for _, hits := range perDir {
		found = append(found, hits...)
	}
	slog.Debug("search", "dirs", len(dirs), "found", len(found), "elapsed", time.Since(tStart))
	return found, nil
}
