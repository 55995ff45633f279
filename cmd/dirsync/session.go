package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/openmined/dirsync/internal/discovery"
	"github.com/openmined/dirsync/internal/fileops"
	"github.com/openmined/dirsync/internal/fsentry"
	"github.com/openmined/dirsync/internal/orchestrator"
	"github.com/openmined/dirsync/internal/peer"
	"github.com/openmined/dirsync/internal/store"
	"github.com/openmined/dirsync/internal/utils"
)

var (
	red   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	green = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	cyan  = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	gray  = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	amber = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

var errOperationsFailed = errors.New("some operations failed")

// session is an open store with a running orchestrator on top.
type session struct {
	store   *store.Store
	gateway *fileops.Local
	orch    *orchestrator.Orchestrator
	msgs    <-chan orchestrator.UIMessage
	out     io.Writer
}

func (c *cli) openSession(ctx context.Context, out io.Writer, opts ...orchestrator.Option) (*session, error) {
	gw := fileops.NewOSLocal()
	st := store.New(c.cfg.StorePath, gw)
	if err := st.Open(); err != nil {
		if errors.Is(err, store.ErrStoreLocked) {
			return nil, fmt.Errorf("%w: is another dirsync running?", err)
		}
		return nil, err
	}

	opts = append([]orchestrator.Option{
		orchestrator.WithSearchConcurrency(c.cfg.SearchConcurrency),
	}, opts...)

	o := orchestrator.New(st, gw, opts...)
	msgs := o.Messages()
	if err := o.Start(ctx); err != nil {
		st.Close()
		return nil, err
	}
	o.Wait()

	return &session{store: st, gateway: gw, orch: o, msgs: msgs, out: out}, nil
}

func (c *cli) discoverer() *discovery.Discoverer {
	prober := discovery.TCPProber{Port: c.cfg.HandshakePort, Timeout: c.cfg.ProbeTimeout}
	client := peer.NewClient(c.cfg.HandshakePort, c.cfg.HandshakeTimeout)
	return discovery.New(prober, client, discovery.Options{ProbeConcurrency: c.cfg.ProbeConcurrency})
}

func (s *session) Close() error {
	s.orch.Stop()
	return s.store.Close()
}

// settle waits for background work and prints every message it produced.
// Any error message makes the command fail. The session stops reporting
// messages afterwards.
func (s *session) settle() error {
	s.orch.Wait()
	s.orch.UnsubscribeMessages(s.msgs)

	failed := 0
	for m := range s.msgs {
		printMessage(s.out, m)
		if m.Level == orchestrator.LevelError {
			failed++
		}
	}
	if failed > 0 {
		return errOperationsFailed
	}
	return nil
}

// entry stats a user supplied path.
func (s *session) entry(p string) (fsentry.DirEntry, error) {
	abs, err := utils.ResolvePath(p)
	if err != nil {
		return fsentry.DirEntry{}, err
	}
	e, err := s.gateway.Stat(abs)
	if err != nil {
		return fsentry.DirEntry{}, err
	}
	if e == nil {
		return fsentry.DirEntry{}, fmt.Errorf("%s: %w", abs, os.ErrNotExist)
	}
	return *e, nil
}

func (s *session) entries(paths []string) ([]fsentry.DirEntry, error) {
	out := make([]fsentry.DirEntry, 0, len(paths))
	for _, p := range paths {
		e, err := s.entry(p)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// cd moves the orchestrator to dir and waits for the listing.
func (s *session) cd(dir string) error {
	e, err := s.entry(dir)
	if err != nil {
		return err
	}
	if err := s.orch.ChangeWorkingDir(&e); err != nil {
		return err
	}
	s.orch.Wait()
	return nil
}

func printMessage(w io.Writer, m orchestrator.UIMessage) {
	switch m.Level {
	case orchestrator.LevelError:
		fmt.Fprintln(w, red.Render("✗"), m.Text)
	case orchestrator.LevelWarn:
		fmt.Fprintln(w, amber.Render("!"), m.Text)
	default:
		fmt.Fprintln(w, green.Render("✓"), m.Text)
	}
}

// printEntries writes one row per entry. With fullPath the path is shown
// instead of the name.
func printEntries(w io.Writer, entries []fsentry.DirEntry, fullPath bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, e := range entries {
		name := e.Name
		if fullPath {
			name = e.Path
		}
		size := humanize.IBytes(uint64(e.Size))
		if e.IsDirectory {
			name = cyan.Render(name + "/")
			size = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.Permissions,
			size,
			humanize.Time(e.ModTime()),
			strings.ToLower(string(e.FileType)),
			name,
		)
	}
	return tw.Flush()
}

func printDevices(w io.Writer, devices []peer.Device) {
	if len(devices) == 0 {
		fmt.Fprintln(w, gray.Render("no devices"))
		return
	}
	for _, d := range devices {
		fmt.Fprintf(w, "%s %s\n", cyan.Render(d.Name), gray.Render(fmt.Sprintf("(%d)", d.ID)))
	}
}
