package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/openmined/dirsync/internal/fileops"
	"github.com/openmined/dirsync/internal/fsentry"
	"github.com/openmined/dirsync/internal/orchestrator"
	"github.com/openmined/dirsync/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBrowseModel(t *testing.T) (browseModel, *orchestrator.Orchestrator) {
	t.Helper()

	gw := fileops.NewOSLocal()
	st := store.New(filepath.Join(t.TempDir(), store.DefaultFileName), gw)
	require.NoError(t, st.Open())
	t.Cleanup(func() { st.Close() })

	o := orchestrator.New(st, gw)
	msgs := o.Messages()
	require.NoError(t, o.Start(context.Background()))
	t.Cleanup(o.Stop)
	o.Wait()

	return newBrowseModel(o, msgs), o
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m browseModel, msg tea.Msg) (browseModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	bm, ok := next.(browseModel)
	require.True(t, ok)
	return bm, cmd
}

func TestBrowseViewShowsFiles(t *testing.T) {
	m, _ := newTestBrowseModel(t)

	out := stripANSI(m.View())
	assert.Contains(t, out, txtVirtualRoot)
	assert.Contains(t, out, txtEmpty)

	m, cmd := update(t, m, filesMsg{
		fsentry.New("docs", "/vol/docs", true, 0, time.Now(), fsentry.FilePermissions{}),
		fsentry.New("a.txt", "/vol/a.txt", false, 2048, time.Now(), fsentry.FilePermissions{}),
	})
	require.NotNil(t, cmd, "listener must be re-armed")

	out = stripANSI(m.View())
	assert.Contains(t, out, "docs/")
	assert.Contains(t, out, "a.txt")
	assert.Contains(t, out, "2.0 KiB")
	assert.NotContains(t, out, txtEmpty)

	m, _ = update(t, m, workingDirMsg{dir: &fsentry.DirEntry{Path: "/vol"}})
	assert.Contains(t, stripANSI(m.View()), "/vol")
}

func TestBrowseCursorStaysInRange(t *testing.T) {
	m, _ := newTestBrowseModel(t)
	m, _ = update(t, m, filesMsg{
		fsentry.New("a", "/a", false, 0, time.Now(), fsentry.FilePermissions{}),
		fsentry.New("b", "/b", false, 0, time.Now(), fsentry.FilePermissions{}),
	})

	m, _ = update(t, m, key("k"))
	assert.Equal(t, 0, m.cursor)
	m, _ = update(t, m, key("j"))
	m, _ = update(t, m, key("j"))
	assert.Equal(t, 1, m.cursor)

	sel, ok := m.selected()
	require.True(t, ok)
	assert.Equal(t, "b", sel.Name)

	m, _ = update(t, m, filesMsg{})
	assert.Equal(t, 0, m.cursor)
	_, ok = m.selected()
	assert.False(t, ok)
}

func TestBrowseKeysDriveOrchestrator(t *testing.T) {
	m, o := newTestBrowseModel(t)

	m, cmd := update(t, m, key("."))
	require.NotNil(t, cmd)
	assert.True(t, m.busy)
	assert.Nil(t, cmd())
	o.Wait()
	assert.True(t, o.HidingHiddenFiles().Get())

	// paste with an empty clipboard comes back as an error
	_, cmd = update(t, m, key("v"))
	require.NotNil(t, cmd)
	msg := cmd()
	require.IsType(t, errMsg{}, msg)
	assert.ErrorIs(t, msg.(errMsg).err, orchestrator.ErrNothingToPaste)
}

func TestBrowseSearchInput(t *testing.T) {
	m, _ := newTestBrowseModel(t)

	m, _ = update(t, m, key("/"))
	require.True(t, m.search.Focused())

	m, _ = update(t, m, key("q"))
	assert.Equal(t, "q", m.search.Value(), "keys go to the input while searching")

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, m.search.Focused())
	assert.Empty(t, m.search.Value())
	assert.False(t, m.inResults)
}

func TestBrowseQuitsWhenStopped(t *testing.T) {
	m, o := newTestBrowseModel(t)
	o.Stop()

	_, cmd := update(t, m, errMsg{err: orchestrator.ErrNotRunning})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())

	_, cmd = update(t, m, key("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func drained[T any](t *testing.T, ch <-chan T) bool {
	t.Helper()
	timeout := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return true
			}
		case <-timeout:
			return false
		}
	}
}

func TestBrowseCloseEndsSubscriptions(t *testing.T) {
	m, _ := newTestBrowseModel(t)
	m.close()

	assert.True(t, drained(t, m.filesCh))
	assert.True(t, drained(t, m.wdCh))
	assert.True(t, drained(t, m.clipCh))
	assert.True(t, drained(t, m.msgs))

	// listeners on a closed subscription yield nothing
	assert.Nil(t, m.listenFiles()())
	assert.Nil(t, m.listenMessages()())
}
