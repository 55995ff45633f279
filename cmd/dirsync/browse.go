package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/openmined/dirsync/internal/config"
	"github.com/openmined/dirsync/internal/fileops"
	"github.com/openmined/dirsync/internal/fsentry"
	"github.com/openmined/dirsync/internal/logging"
	"github.com/openmined/dirsync/internal/orchestrator"
	"github.com/spf13/cobra"
)

// Strings
const (
	txtVirtualRoot   = "Tracked directories"
	txtSearchResults = "Search results"
	txtEmpty         = "(empty)"
	txtPlaceholder   = "file name or glob"
	txtHelp          = "enter open · ⌫ back · L forward · ~ root · . hidden · c copy · x cut · v paste · d delete · n/N new file/folder · / search · r refresh · q quit"
)

// Styles
var (
	titleStyle  = cyan.Bold(true)
	cursorStyle = green.Bold(true)
	dirStyle    = cyan
	helpStyle   = gray
	clipStyle   = amber
	errorStyle  = red
	warnStyle   = amber
	infoStyle   = green
)

// chrome is the number of lines View spends around the file rows.
const chrome = 6

func newBrowseCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Browse tracked directories interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			// console logs would tear the alt screen
			level, _ := config.ParseLevel(c.cfg.LogLevel)
			closeLog, err := logging.Setup(logging.Options{Level: level, Console: io.Discard, File: c.cfg.LogFile})
			if err != nil {
				return err
			}
			defer closeLog()

			s, err := c.openSession(cmd.Context(), cmd.OutOrStdout(),
				orchestrator.WithResyncInterval(c.cfg.ResyncInterval),
			)
			if err != nil {
				return err
			}
			defer s.Close()

			model := newBrowseModel(s.orch, s.msgs)
			defer model.close()

			p := tea.NewProgram(model,
				tea.WithContext(cmd.Context()),
				tea.WithAltScreen(),
				tea.WithOutput(cmd.OutOrStdout()),
			)
			if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return err
			}
			return nil
		},
	}
}

// --- Messages ---
type filesMsg []fsentry.DirEntry
type workingDirMsg struct{ dir *fsentry.DirEntry }
type clipboardMsg orchestrator.Clipboard
type uiMsg orchestrator.UIMessage
type errMsg struct{ err error }

type browseModel struct {
	orch *orchestrator.Orchestrator

	filesCh <-chan []fsentry.DirEntry
	wdCh    <-chan *fsentry.DirEntry
	clipCh  <-chan orchestrator.Clipboard
	msgs    <-chan orchestrator.UIMessage

	files  []fsentry.DirEntry
	wd     *fsentry.DirEntry
	clip   orchestrator.Clipboard
	cursor int

	search    textinput.Model
	inResults bool

	spinner spinner.Model
	busy    bool
	status  *orchestrator.UIMessage

	width  int
	height int
}

func newBrowseModel(o *orchestrator.Orchestrator, msgs <-chan orchestrator.UIMessage) browseModel {
	search := textinput.New()
	search.Prompt = "/ "
	search.Placeholder = txtPlaceholder
	search.CharLimit = 128
	search.PromptStyle = cursorStyle
	search.PlaceholderStyle = helpStyle

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = cyan

	return browseModel{
		orch:    o,
		filesCh: o.FilteredFiles().Subscribe(),
		wdCh:    o.WorkingDir().Subscribe(),
		clipCh:  o.Clipboard().Subscribe(),
		msgs:    msgs,
		search:  search,
		spinner: s,
		height:  24,
	}
}

// close ends every subscription of the model.
func (m browseModel) close() {
	m.orch.FilteredFiles().Unsubscribe(m.filesCh)
	m.orch.WorkingDir().Unsubscribe(m.wdCh)
	m.orch.Clipboard().Unsubscribe(m.clipCh)
	m.orch.UnsubscribeMessages(m.msgs)
}

// listen turns the next value on ch into a tea.Msg. A closed channel yields
// nothing.
func listen[T any](ch <-chan T, wrap func(T) tea.Msg) tea.Cmd {
	return func() tea.Msg {
		v, ok := <-ch
		if !ok {
			return nil
		}
		return wrap(v)
	}
}

func (m browseModel) listenFiles() tea.Cmd {
	return listen(m.filesCh, func(v []fsentry.DirEntry) tea.Msg { return filesMsg(v) })
}

func (m browseModel) listenWorkingDir() tea.Cmd {
	return listen(m.wdCh, func(v *fsentry.DirEntry) tea.Msg { return workingDirMsg{v} })
}

func (m browseModel) listenClipboard() tea.Cmd {
	return listen(m.clipCh, func(v orchestrator.Clipboard) tea.Msg { return clipboardMsg(v) })
}

func (m browseModel) listenMessages() tea.Cmd {
	return listen(m.msgs, func(v orchestrator.UIMessage) tea.Msg { return uiMsg(v) })
}

func (m browseModel) Init() tea.Cmd {
	return tea.Batch(
		m.listenFiles(),
		m.listenWorkingDir(),
		m.listenClipboard(),
		m.listenMessages(),
		m.spinner.Tick,
	)
}

func (m browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height

	case filesMsg:
		m.files = msg
		m.busy = false
		m.clampCursor()
		return m, m.listenFiles()

	case workingDirMsg:
		m.wd = msg.dir
		m.cursor = 0
		return m, m.listenWorkingDir()

	case clipboardMsg:
		m.clip = orchestrator.Clipboard(msg)
		return m, m.listenClipboard()

	case uiMsg:
		status := orchestrator.UIMessage(msg)
		m.status = &status
		m.busy = false
		return m, m.listenMessages()

	case errMsg:
		m.busy = false
		if errors.Is(msg.err, orchestrator.ErrNotRunning) {
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.search.Focused() {
			return m.updateSearch(msg)
		}
		return m.handleKey(msg)
	}

	return m, nil
}

func (m browseModel) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEsc:
		m.search.Blur()
		m.search.Reset()
		return m, nil
	case tea.KeyEnter:
		query := m.search.Value()
		m.search.Blur()
		m.search.Reset()
		m.inResults = true
		return m.run(func() error { return m.orch.Search(query, false) })
	}

	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	return m, cmd
}

func (m browseModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "up", "k":
		m.cursor--
		m.clampCursor()
	case "down", "j":
		m.cursor++
		m.clampCursor()

	case "enter", "l", "right":
		sel, ok := m.selected()
		if !ok {
			return m, nil
		}
		if !sel.IsDirectory {
			return m.run(func() error { return m.orch.Open(sel) })
		}
		m.inResults = false
		return m.run(func() error { return m.orch.ChangeWorkingDir(&sel) })

	case "backspace", "h", "left":
		m.inResults = false
		return m.run(m.orch.GotoPreviousDir)
	case "L":
		m.inResults = false
		return m.run(m.orch.GotoNextDir)
	case "~":
		m.inResults = false
		return m.run(func() error { return m.orch.ChangeWorkingDir(nil) })

	case ".":
		return m.run(m.orch.ToggleHiddenFiles)
	case "r", "esc":
		m.inResults = false
		return m.run(m.orch.RefreshCurrentDir)

	case "c", "x":
		sel, ok := m.selected()
		if !ok {
			return m, nil
		}
		action := fileops.ActionCopy
		if msg.String() == "x" {
			action = fileops.ActionCut
		}
		return m.run(func() error { return m.orch.CopyOrCut([]fsentry.DirEntry{sel}, action) })
	case "v":
		return m.run(m.orch.Paste)
	case "d":
		sel, ok := m.selected()
		if !ok {
			return m, nil
		}
		return m.run(func() error { return m.orch.Delete([]fsentry.DirEntry{sel}) })
	case "n":
		return m.run(func() error { return m.orch.CreateNewFile(false) })
	case "N":
		return m.run(func() error { return m.orch.CreateNewFile(true) })

	case "/":
		m.search.Focus()
		return m, textinput.Blink
	}

	return m, nil
}

// run dispatches fn off the UI loop. Results come back through the
// subscriptions, so only the error is reported here.
func (m browseModel) run(fn func() error) (tea.Model, tea.Cmd) {
	m.busy = true
	return m, func() tea.Msg {
		if err := fn(); err != nil {
			return errMsg{err}
		}
		return nil
	}
}

func (m browseModel) selected() (fsentry.DirEntry, bool) {
	if m.cursor < 0 || m.cursor >= len(m.files) {
		return fsentry.DirEntry{}, false
	}
	return m.files[m.cursor], true
}

func (m *browseModel) clampCursor() {
	if m.cursor >= len(m.files) {
		m.cursor = len(m.files) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m browseModel) View() string {
	var b strings.Builder

	title := txtVirtualRoot
	switch {
	case m.inResults:
		title = txtSearchResults
	case m.wd != nil:
		title = m.wd.Path
	}
	b.WriteString(titleStyle.Render(title))
	if m.busy {
		b.WriteString(" " + m.spinner.View())
	}
	b.WriteString("\n\n")

	rows := max(m.height-chrome, 1)
	start := 0
	if m.cursor >= rows {
		start = m.cursor - rows + 1
	}
	end := min(start+rows, len(m.files))

	if len(m.files) == 0 {
		b.WriteString(helpStyle.Render(txtEmpty) + "\n")
	}
	for i := start; i < end; i++ {
		b.WriteString(m.row(i) + "\n")
	}

	b.WriteString("\n")
	if !m.clip.Empty() {
		b.WriteString(clipStyle.Render(fmt.Sprintf("%s: %d file(s)", m.clip.Action, len(m.clip.Files))) + "  ")
	}
	if m.status != nil {
		b.WriteString(statusStyle(m.status.Level).Render(m.status.Text))
	}
	b.WriteString("\n")

	if m.search.Focused() {
		b.WriteString(m.search.View())
	} else {
		b.WriteString(helpStyle.Render(txtHelp))
	}
	return b.String()
}

func (m browseModel) row(i int) string {
	e := m.files[i]

	marker := "  "
	if i == m.cursor {
		marker = cursorStyle.Render("› ")
	}

	name := e.Name
	if m.inResults {
		name = e.Path
	}
	size := humanize.IBytes(uint64(e.Size))
	if e.IsDirectory {
		name = dirStyle.Render(name + "/")
		size = ""
	}
	return fmt.Sprintf("%s%-9s %s", marker, size, name)
}

func statusStyle(level orchestrator.Level) lipgloss.Style {
	switch level {
	case orchestrator.LevelError:
		return errorStyle
	case orchestrator.LevelWarn:
		return warnStyle
	default:
		return infoStyle
	}
}
