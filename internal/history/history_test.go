package history

import (
	"math/rand"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/openmined/dirsync/internal/fsentry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var roots = []string{"/vol/a", "/vol/b"}

func rootOf(loc fsentry.DirEntry) (string, bool) {
	for _, r := range roots {
		if fsentry.IsWithin(r, loc.Path) {
			return r, true
		}
	}
	return "", false
}

func dir(p string) *fsentry.DirEntry {
	e := fsentry.New(filepath.Base(p), p, true, 0, time.Time{}, fsentry.FilePermissions{})
	return &e
}

func pathOf(loc *fsentry.DirEntry) string {
	if loc == nil {
		return "<root>"
	}
	return loc.Path
}

func TestStack(t *testing.T) {
	var s Stack[int]
	_, ok := s.Pop()
	assert.False(t, ok)

	s.Push(1)
	s.Push(2)
	top, _ := s.Peek()
	assert.Equal(t, 2, top)
	assert.Equal(t, 2, s.Len())

	v, ok := s.Pop()
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	s.Clear()
	assert.Equal(t, 0, s.Len())
}

func TestBackAndForward(t *testing.T) {
	h := New(rootOf)
	assert.Nil(t, h.Current())

	h.ChangeWorkingDir(dir("/vol/a"))
	h.ChangeWorkingDir(dir("/vol/a/x"))

	loc, ok := h.GoBack()
	require.True(t, ok)
	assert.Equal(t, "/vol/a", loc.Path)

	loc, ok = h.GoBack()
	require.True(t, ok)
	assert.Nil(t, loc)

	// empty back stack stays put
	loc, ok = h.GoBack()
	assert.False(t, ok)
	assert.Nil(t, loc)

	loc, ok = h.GoForward()
	require.True(t, ok)
	assert.Equal(t, "/vol/a", loc.Path)

	loc, ok = h.GoForward()
	require.True(t, ok)
	assert.Equal(t, "/vol/a/x", loc.Path)

	_, ok = h.GoForward()
	assert.False(t, ok)
	assert.Equal(t, "/vol/a/x", h.Current().Path)
}

func TestSameRootKeepsForward(t *testing.T) {
	h := New(rootOf)
	h.ChangeWorkingDir(dir("/vol/a"))
	h.ChangeWorkingDir(dir("/vol/a/x"))
	h.GoBack()
	require.True(t, h.CanGoForward())

	h.ChangeWorkingDir(dir("/vol/a/y"))
	assert.True(t, h.CanGoForward())
}

func TestCrossRootClearsForward(t *testing.T) {
	h := New(rootOf)
	h.ChangeWorkingDir(dir("/vol/a"))
	h.ChangeWorkingDir(dir("/vol/a/x"))
	h.GoBack()
	require.True(t, h.CanGoForward())

	h.ChangeWorkingDir(dir("/vol/b/z"))
	assert.False(t, h.CanGoForward())

	_, ok := h.GoForward()
	assert.False(t, ok)
	assert.Equal(t, "/vol/b/z", h.Current().Path)
}

func TestVirtualRootNeverSharesRoot(t *testing.T) {
	h := New(rootOf)
	h.ChangeWorkingDir(dir("/vol/a"))
	h.GoBack()
	require.True(t, h.CanGoForward())

	// leaving the virtual root always drops forward history
	h.ChangeWorkingDir(dir("/vol/b"))
	assert.False(t, h.CanGoForward())

	// entering it does too
	h.ChangeWorkingDir(dir("/vol/b/sub"))
	h.GoBack()
	require.True(t, h.CanGoForward())
	h.ChangeWorkingDir(nil)
	assert.False(t, h.CanGoForward())
}

func TestChangeToCurrentIsNoop(t *testing.T) {
	h := New(rootOf)
	assert.False(t, h.ChangeWorkingDir(nil))
	assert.False(t, h.CanGoBack())

	assert.True(t, h.ChangeWorkingDir(dir("/vol/a")))
	assert.False(t, h.ChangeWorkingDir(dir("/vol/a")))

	_, ok := h.GoBack()
	assert.True(t, ok)
	assert.False(t, h.CanGoBack())
}

func TestCurrentIsACopy(t *testing.T) {
	h := New(rootOf)
	h.ChangeWorkingDir(dir("/vol/a"))
	h.Current().Path = "/mutated"
	assert.Equal(t, "/vol/a", h.Current().Path)
}

// For any sequence of moves, GoBack immediately followed by GoForward
// restores the location.
func TestBackForwardRoundTrip(t *testing.T) {
	locations := []*fsentry.DirEntry{
		nil,
		dir("/vol/a"), dir("/vol/a/x"), dir("/vol/a/x/y"),
		dir("/vol/b"), dir("/vol/b/z"),
	}

	rng := rand.New(rand.NewSource(7))
	h := New(rootOf)
	var trace []string

	for step := 0; step < 2000; step++ {
		switch rng.Intn(3) {
		case 0:
			next := locations[rng.Intn(len(locations))]
			h.ChangeWorkingDir(next)
			trace = append(trace, "cd "+pathOf(next))
		case 1:
			h.GoBack()
			trace = append(trace, "back")
		case 2:
			h.GoForward()
			trace = append(trace, "fwd")
		}

		before := pathOf(h.Current())
		if _, ok := h.GoBack(); ok {
			_, fwd := h.GoForward()
			require.True(t, fwd, strings.Join(trace, ", "))
			require.Equal(t, before, pathOf(h.Current()), strings.Join(trace, ", "))
		}
	}
}

func TestForget(t *testing.T) {
	h := New(rootOf)
	h.ChangeWorkingDir(dir("/vol/b"))
	h.ChangeWorkingDir(nil)
	h.ChangeWorkingDir(dir("/vol/a"))
	h.ChangeWorkingDir(dir("/vol/a/sub"))
	h.ChangeWorkingDir(nil)

	h.Forget("/vol/a")
	assert.Nil(t, h.Current())

	// the root entry that duplicated the current location is gone too
	prev, ok := h.GoBack()
	require.True(t, ok)
	assert.Equal(t, "/vol/b", pathOf(prev))

	prev, ok = h.GoBack()
	require.True(t, ok)
	assert.Equal(t, "<root>", pathOf(prev))

	_, ok = h.GoBack()
	assert.False(t, ok)
}

func TestForgetForwardStack(t *testing.T) {
	h := New(rootOf)
	h.ChangeWorkingDir(dir("/vol/a"))
	h.ChangeWorkingDir(dir("/vol/a/x"))
	h.ChangeWorkingDir(dir("/vol/a/x/y"))
	h.GoBack()
	h.GoBack()
	require.Equal(t, "/vol/a", pathOf(h.Current()))

	h.Forget("/vol/a/x")
	assert.False(t, h.CanGoForward())
	assert.True(t, h.CanGoBack(), "entries outside the root survive")

	h.Forget("/vol/a")
	assert.Equal(t, "/vol/a", pathOf(h.Current()), "current location is kept")
}

func TestStackDeleteAndCompact(t *testing.T) {
	var s Stack[int]
	for _, v := range []int{1, 2, 2, 3, 2, 4} {
		s.Push(v)
	}
	s.DeleteFunc(func(v int) bool { return v == 3 })
	s.Compact(func(a, b int) bool { return a == b })
	assert.Equal(t, []int{1, 2, 4}, s.items)
}
