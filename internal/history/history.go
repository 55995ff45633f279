// Package history tracks back/forward navigation between working
// directories. A nil location is the virtual root that lists every tracked
// directory.
package history

import (
	"github.com/openmined/dirsync/internal/fsentry"
)

// RootFunc resolves the tracked root that contains a location. ok is false
// when no root can be determined.
type RootFunc func(loc fsentry.DirEntry) (root string, ok bool)

// History is not safe for concurrent use; it is owned by a single goroutine.
type History struct {
	current *fsentry.DirEntry
	back    Stack[*fsentry.DirEntry]
	forward Stack[*fsentry.DirEntry]
	rootOf  RootFunc
}

func New(rootOf RootFunc) *History {
	return &History{rootOf: rootOf}
}

// Current returns the working directory, or nil at the virtual root.
func (h *History) Current() *fsentry.DirEntry {
	return cloneLoc(h.current)
}

// ChangeWorkingDir moves to next, remembering the current location for
// GoBack. Forward history is dropped when next lives under a different root.
// Moving to the current location is a no-op and reports false.
func (h *History) ChangeWorkingDir(next *fsentry.DirEntry) bool {
	if sameLoc(h.current, next) {
		return false
	}

	if !h.sameRoot(h.current, next) {
		h.InvalidateForward()
	}
	h.back.Push(h.current)
	h.current = cloneLoc(next)
	return true
}

// GoBack returns to the previous location. ok is false when there is none.
func (h *History) GoBack() (*fsentry.DirEntry, bool) {
	prev, ok := h.back.Pop()
	if !ok {
		return h.Current(), false
	}
	h.forward.Push(h.current)
	h.current = prev
	return h.Current(), true
}

// GoForward undoes the last GoBack. ok is false when there is nothing to redo.
func (h *History) GoForward() (*fsentry.DirEntry, bool) {
	next, ok := h.forward.Pop()
	if !ok {
		return h.Current(), false
	}
	h.back.Push(h.current)
	h.current = next
	return h.Current(), true
}

// Forget drops every back and forward entry at or below root, e.g. after
// root stopped being tracked. The current location is left alone.
func (h *History) Forget(root string) {
	under := func(loc *fsentry.DirEntry) bool {
		return loc != nil && fsentry.IsWithin(root, loc.Path)
	}
	for _, s := range []*Stack[*fsentry.DirEntry]{&h.back, &h.forward} {
		s.DeleteFunc(under)
		s.Compact(sameLoc)
		for {
			top, ok := s.Peek()
			if !ok || !sameLoc(top, h.current) {
				break
			}
			s.Pop()
		}
	}
}

func (h *History) InvalidateForward() {
	h.forward.Clear()
}

func (h *History) CanGoBack() bool {
	return h.back.Len() > 0
}

func (h *History) CanGoForward() bool {
	return h.forward.Len() > 0
}

// sameRoot is false whenever either side is the virtual root, including when
// both are.
func (h *History) sameRoot(a, b *fsentry.DirEntry) bool {
	if a == nil || b == nil || h.rootOf == nil {
		return false
	}
	ra, okA := h.rootOf(*a)
	rb, okB := h.rootOf(*b)
	return okA && okB && ra == rb
}

func sameLoc(a, b *fsentry.DirEntry) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Path == b.Path
}

func cloneLoc(loc *fsentry.DirEntry) *fsentry.DirEntry {
	if loc == nil {
		return nil
	}
	c := *loc
	return &c
}
