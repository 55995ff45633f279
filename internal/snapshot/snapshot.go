// Package snapshot captures the (path, last-modified) identity of every file
// below a directory. Snapshots are used for change detection only; content is
// never compared.
package snapshot

import (
	"sort"

	"github.com/openmined/dirsync/internal/fsentry"
)

type Snapshot struct {
	Path         string `json:"path"`
	LastModified int64  `json:"lastModified"`
}

// Of captures the path and lastModified fields of an entry.
func Of(e fsentry.DirEntry) Snapshot {
	return Snapshot{
		Path:         e.Path,
		LastModified: e.LastModified,
	}
}

// Changes is the difference between two snapshot lists of the same root.
type Changes struct {
	Created  []Snapshot
	Modified []Snapshot
	Deleted  []Snapshot
}

func (c *Changes) Len() int {
	return len(c.Created) + len(c.Modified) + len(c.Deleted)
}

func (c *Changes) HasChanges() bool {
	return c.Len() > 0
}

// Diff compares a previous sweep against a newer one. Modified entries carry
// the newer timestamp, deleted entries the last known one.
func Diff(prev, next []Snapshot) *Changes {
	prevByPath := make(map[string]Snapshot, len(prev))
	for _, s := range prev {
		prevByPath[s.Path] = s
	}

	changes := &Changes{}
	seen := make(map[string]struct{}, len(next))
	for _, s := range next {
		seen[s.Path] = struct{}{}
		old, exists := prevByPath[s.Path]
		switch {
		case !exists:
			changes.Created = append(changes.Created, s)
		case old.LastModified != s.LastModified:
			changes.Modified = append(changes.Modified, s)
		}
	}

	for _, s := range prev {
		if _, ok := seen[s.Path]; !ok {
			changes.Deleted = append(changes.Deleted, s)
		}
	}

	sortByPath(changes.Created)
	sortByPath(changes.Modified)
	sortByPath(changes.Deleted)
	return changes
}

func sortByPath(s []Snapshot) {
	sort.Slice(s, func(i, j int) bool { return s[i].Path < s[j].Path })
}
