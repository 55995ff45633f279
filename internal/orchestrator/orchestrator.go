// Package orchestrator coordinates browsing, filtering, clipboard operations
// and tracking over the store and the file gateway.
//
// All state is owned by a single actor goroutine. Commands run on the actor,
// validate synchronously and hand any I/O to a background goroutine whose
// result is applied back on the actor. Each derived value is recomputed from
// the latest upstream state, and a background result that has been
// superseded by a newer request is discarded.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/dirsync/internal/discovery"
	"github.com/openmined/dirsync/internal/fileops"
	"github.com/openmined/dirsync/internal/fsentry"
	"github.com/openmined/dirsync/internal/history"
	"github.com/openmined/dirsync/internal/peer"
	"github.com/openmined/dirsync/internal/reactive"
	"github.com/openmined/dirsync/internal/snapshot"
)

// PasteOverwrite is what paste passes as overwrite to the gateway. Same-named
// files at the destination are replaced without asking.
const PasteOverwrite = true

const (
	DefaultNewFolderName     = "New Folder"
	DefaultNewFileName       = "New File"
	DefaultSearchConcurrency = 8
)

var (
	ErrEmptyName      = errors.New("file name cannot be empty")
	ErrEmptyQuery     = errors.New("search query cannot be empty")
	ErrNothingToPaste = errors.New("nothing to paste here")
	ErrVirtualRoot    = errors.New("cannot create files at the root")
	ErrNotDirectory   = errors.New("not a directory")
	ErrEmptyPath      = errors.New("directory path cannot be empty")
	ErrNotRunning     = errors.New("orchestrator is not running")
	ErrNoDiscovery    = errors.New("device discovery is not available")
)

// Store is the persisted state the orchestrator drives.
type Store interface {
	TrackNewDir(ctx context.Context, dir string) (bool, error)
	ResyncDir(ctx context.Context, dir string) (*snapshot.Changes, error)
	RemoveTrackedDir(dir string) (bool, error)
	TrackNewDevice(device peer.Device) (bool, error)
	GetTrackedDirs() mapset.Set[string]
	GetTrackedDevices() mapset.Set[peer.Device]
}

type Discoverer interface {
	Discover(ctx context.Context) (*discovery.Result, error)
}

// Clipboard holds files pending a paste.
type Clipboard struct {
	Files  []fsentry.DirEntry
	Action fileops.ClipboardAction
}

func (c Clipboard) Empty() bool {
	return c.Action == fileops.ActionNone || len(c.Files) == 0
}

type Option func(*Orchestrator)

// WithPasteOverwrite replaces PasteOverwrite for this orchestrator.
func WithPasteOverwrite(overwrite bool) Option {
	return func(o *Orchestrator) {
		o.pasteOverwrite = overwrite
	}
}

// WithDiscoverer enables GetOnlineDevices.
func WithDiscoverer(d Discoverer) Option {
	return func(o *Orchestrator) {
		o.discoverer = d
	}
}

// WithResyncInterval re-sweeps every tracked directory periodically.
func WithResyncInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.resyncInterval = d
	}
}

func WithSearchConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.searchConcurrency = n
		}
	}
}

type Orchestrator struct {
	store      Store
	gateway    fileops.Gateway
	discoverer Discoverer

	pasteOverwrite    bool
	resyncInterval    time.Duration
	searchConcurrency int

	// actor
	cmds    chan func()
	stopped chan struct{}
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	work    *inflight
	wg      sync.WaitGroup

	// actor-owned state
	history     *history.History
	trackedDirs []string
	hideHidden  bool
	typeFilter  *fsentry.FileType
	clipboard   Clipboard
	current     []fsentry.DirEntry
	searching   bool
	filesGen    uint64
	resyncing   bool

	// observed by the UI
	workingDir    *reactive.Value[*fsentry.DirEntry]
	tracked       *reactive.Value[[]string]
	files         *reactive.Value[[]fsentry.DirEntry]
	filteredFiles *reactive.Value[[]fsentry.DirEntry]
	hidden        *reactive.Value[bool]
	filter        *reactive.Value[*fsentry.FileType]
	clip          *reactive.Value[Clipboard]
	okayToPaste   *reactive.Value[bool]
	onlineDevices *reactive.Value[[]peer.Device]
	pairedDevices *reactive.Value[[]peer.Device]
	messages      *messageBus
}

func New(store Store, gateway fileops.Gateway, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:             store,
		gateway:           gateway,
		pasteOverwrite:    PasteOverwrite,
		searchConcurrency: DefaultSearchConcurrency,

		cmds:    make(chan func()),
		stopped: make(chan struct{}),
		work:    newInflight(),

		trackedDirs: []string{},
		current:     []fsentry.DirEntry{},

		workingDir:    reactive.NewValue[*fsentry.DirEntry](nil),
		tracked:       reactive.NewValue([]string{}),
		files:         reactive.NewValue([]fsentry.DirEntry{}),
		filteredFiles: reactive.NewValue([]fsentry.DirEntry{}),
		hidden:        reactive.NewValue(false),
		filter:        reactive.NewValue[*fsentry.FileType](nil),
		clip:          reactive.NewValue(Clipboard{}),
		okayToPaste:   reactive.NewValue(false),
		onlineDevices: reactive.NewValue([]peer.Device{}),
		pairedDevices: reactive.NewValue([]peer.Device{}),
		messages:      newMessageBus(),
	}
	o.history = history.New(o.rootOf)

	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start launches the actor and loads the tracked directories. It returns once
// the actor accepts commands.
func (o *Orchestrator) Start(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		return errors.New("orchestrator already started")
	}

	o.ctx, o.cancel = context.WithCancel(ctx)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.loop()
	}()

	if o.resyncInterval > 0 {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			o.resyncLoop(o.ctx)
		}()
	}

	slog.Info("orchestrator start", "resyncInterval", o.resyncInterval, "pasteOverwrite", o.pasteOverwrite)
	return o.call(func() error {
		o.refreshCurrentDir()
		o.reloadDevices()
		return nil
	})
}

// Stop cancels background work and waits for the actor to exit.
func (o *Orchestrator) Stop() {
	if !o.running.Load() {
		return
	}
	o.cancel()
	o.wg.Wait()
	o.work.wait()
	o.messages.stop()
	slog.Info("orchestrator stop")
}

// Wait blocks until no background work is in flight, including work started
// by results of earlier work.
func (o *Orchestrator) Wait() {
	o.work.wait()
}

func (o *Orchestrator) loop() {
	defer close(o.stopped)
	for {
		select {
		case fn := <-o.cmds:
			fn()
		case <-o.ctx.Done():
			return
		}
	}
}

// call runs fn on the actor and returns its error.
func (o *Orchestrator) call(fn func() error) error {
	if !o.running.Load() {
		return ErrNotRunning
	}

	errCh := make(chan error, 1)
	select {
	case o.cmds <- func() { errCh <- fn() }:
	case <-o.stopped:
		return ErrNotRunning
	}

	select {
	case err := <-errCh:
		return err
	case <-o.stopped:
		return ErrNotRunning
	}
}

// spawn runs work off the actor. The func work returns, if any, is applied on
// the actor.
func (o *Orchestrator) spawn(work func(ctx context.Context) func()) {
	o.work.add()
	go func() {
		apply := work(o.ctx)
		select {
		case o.cmds <- func() {
			defer o.work.done()
			if apply != nil {
				apply()
			}
		}:
		case <-o.stopped:
			o.work.done()
		}
	}()
}

// observables

func (o *Orchestrator) WorkingDir() reactive.Observable[*fsentry.DirEntry] {
	return o.workingDir
}

func (o *Orchestrator) TrackedDirs() reactive.Observable[[]string] {
	return o.tracked
}

func (o *Orchestrator) Files() reactive.Observable[[]fsentry.DirEntry] {
	return o.files
}

func (o *Orchestrator) FilteredFiles() reactive.Observable[[]fsentry.DirEntry] {
	return o.filteredFiles
}

func (o *Orchestrator) HidingHiddenFiles() reactive.Observable[bool] {
	return o.hidden
}

func (o *Orchestrator) FileFilter() reactive.Observable[*fsentry.FileType] {
	return o.filter
}

func (o *Orchestrator) Clipboard() reactive.Observable[Clipboard] {
	return o.clip
}

func (o *Orchestrator) OkayToPaste() reactive.Observable[bool] {
	return o.okayToPaste
}

func (o *Orchestrator) OnlineDevices() reactive.Observable[[]peer.Device] {
	return o.onlineDevices
}

func (o *Orchestrator) PairedDevices() reactive.Observable[[]peer.Device] {
	return o.pairedDevices
}

// Messages subscribes to user-facing notifications.
func (o *Orchestrator) Messages() <-chan UIMessage {
	return o.messages.Subscribe()
}

// UnsubscribeMessages ends a subscription. Pending messages are delivered
// before ch is closed.
func (o *Orchestrator) UnsubscribeMessages(ch <-chan UIMessage) {
	o.messages.Unsubscribe(ch)
}
