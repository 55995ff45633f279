// Package store persists the tracked directories (with their last snapshot)
// and the paired devices as a single JSON document. The document is loaded
// once, held in memory, and rewritten in full after every mutation.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gofrs/flock"
	"github.com/goccy/go-json"
	"github.com/openmined/dirsync/internal/peer"
	"github.com/openmined/dirsync/internal/snapshot"
	"github.com/openmined/dirsync/internal/utils"
)

const (
	DefaultFileName = "synced_files.json"
	// SchemaVersion is written into every saved store file.
	SchemaVersion   = 1
	lockSuffix      = ".lock"
)

var (
	ErrStoreLocked  = errors.New("store locked by another process")
	ErrStoreOpen    = errors.New("store already open")
	ErrNotTracked   = errors.New("directory not tracked")
	ErrEmptyDirPath = errors.New("directory path is empty")
)

// Data is the persisted root object.
type Data struct {
	Version            int                            `json:"version"`
	TrackedDirectories map[string][]snapshot.Snapshot `json:"trackedDirectories"`
	TrackedDevices     []peer.Device                  `json:"trackedDevices"`
}

func newData() *Data {
	return &Data{
		Version:            SchemaVersion,
		TrackedDirectories: make(map[string][]snapshot.Snapshot),
		TrackedDevices:     make([]peer.Device, 0),
	}
}

func (d *Data) clone() *Data {
	c := &Data{
		Version:            d.Version,
		TrackedDirectories: make(map[string][]snapshot.Snapshot, len(d.TrackedDirectories)),
		TrackedDevices:     append(make([]peer.Device, 0, len(d.TrackedDevices)), d.TrackedDevices...),
	}
	for k, v := range d.TrackedDirectories {
		c.TrackedDirectories[k] = append(make([]snapshot.Snapshot, 0, len(v)), v...)
	}
	return c
}

func (d *Data) hasDevice(id int64) bool {
	for _, dev := range d.TrackedDevices {
		if dev.ID == id {
			return true
		}
	}
	return false
}

type Store struct {
	path   string
	source snapshot.Source
	flock  *flock.Flock
	data   *Data
	mu     sync.RWMutex

	// keys mirrors the tracked dirs and devices of data. Mutations publish it
	// after their write reached disk, so readers never wait on mu.
	keys keyView
}

type keyView struct {
	mu      sync.RWMutex
	loaded  bool
	dirs    mapset.Set[string]
	devices mapset.Set[peer.Device]
}

func (v *keyView) get() ([]string, []peer.Device, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if !v.loaded {
		return nil, nil, false
	}
	return v.dirs.ToSlice(), v.devices.ToSlice(), true
}

func (v *keyView) set(d *Data) {
	dirs := mapset.NewThreadUnsafeSetWithSize[string](len(d.TrackedDirectories))
	for dir := range d.TrackedDirectories {
		dirs.Add(dir)
	}
	devices := mapset.NewThreadUnsafeSet(d.TrackedDevices...)

	v.mu.Lock()
	v.loaded = true
	v.dirs = dirs
	v.devices = devices
	v.mu.Unlock()
}

// New creates a store backed by the file at path. Tracked directories are
// swept through source.
func New(path string, source snapshot.Source) *Store {
	return &Store{
		path:   path,
		source: source,
		flock:  flock.New(path + lockSuffix),
	}
}

func (s *Store) Path() string {
	return s.path
}

// Open takes an exclusive lock on the store file and loads it into memory.
func (s *Store) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data != nil {
		return ErrStoreOpen
	}

	if err := utils.EnsureParent(s.path); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	locked, err := s.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock store: %w", err)
	}
	if !locked {
		return ErrStoreLocked
	}

	if err := s.load(); err != nil {
		s.flock.Unlock()
		return err
	}

	slog.Info("store open", "path", s.path, "dirs", len(s.data.TrackedDirectories), "devices", len(s.data.TrackedDevices))
	return nil
}

// Close releases the file lock. The in-memory cache stays readable.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.flock.Locked() {
		return nil
	}
	if err := s.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock store: %w", err)
	}
	os.Remove(s.flock.Path())
	slog.Debug("store closed", "path", s.path)
	return nil
}

// Load returns a copy of the persisted document, reading the file only if the
// cache is not initialized yet.
func (s *Store) Load() (*Data, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	return s.data.clone(), nil
}

// Save replaces the document and rewrites the backing file.
func (s *Store) Save(data *Data) error {
	if data == nil {
		return fmt.Errorf("cannot save nil store data")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := data.clone()
	next.Version = SchemaVersion
	if err := s.writeFile(next); err != nil {
		return err
	}
	s.data = next
	s.keys.set(next)
	return nil
}

// TrackNewDir snapshots dir and records it. It returns false without doing
// any work if dir is already tracked. The store is only mutated after the
// sweep succeeded.
func (s *Store) TrackNewDir(ctx context.Context, dir string) (bool, error) {
	if dir == "" {
		return false, ErrEmptyDirPath
	}

	s.mu.Lock()
	if err := s.ensureLoaded(); err != nil {
		s.mu.Unlock()
		return false, err
	}
	_, exists := s.data.TrackedDirectories[dir]
	s.mu.Unlock()
	if exists {
		return false, nil
	}

	slog.Info("taking dir snapshot", "dir", dir)
	res, err := s.sweep(ctx, dir)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// tracked concurrently while we were sweeping
	if _, exists := s.data.TrackedDirectories[dir]; exists {
		return false, nil
	}

	s.data.TrackedDirectories[dir] = res.Snapshots
	if err := s.persist(); err != nil {
		delete(s.data.TrackedDirectories, dir)
		return false, err
	}

	slog.Info("tracking dir", "dir", dir, "files", len(res.Snapshots), "skipped", len(res.Skipped))
	return true, nil
}

// ResyncDir re-sweeps a tracked directory, replaces its snapshot list
// wholesale and reports what changed since the previous sweep.
func (s *Store) ResyncDir(ctx context.Context, dir string) (*snapshot.Changes, error) {
	s.mu.Lock()
	if err := s.ensureLoaded(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	_, exists := s.data.TrackedDirectories[dir]
	s.mu.Unlock()
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotTracked, dir)
	}

	res, err := s.sweep(ctx, dir)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.data.TrackedDirectories[dir]
	if !exists {
		// removed while we were sweeping
		return nil, fmt.Errorf("%w: %s", ErrNotTracked, dir)
	}

	changes := snapshot.Diff(prev, res.Snapshots)
	if !changes.HasChanges() {
		return changes, nil
	}

	s.data.TrackedDirectories[dir] = res.Snapshots
	if err := s.persist(); err != nil {
		s.data.TrackedDirectories[dir] = prev
		return nil, err
	}

	slog.Info("resync dir", "dir", dir, "created", len(changes.Created), "modified", len(changes.Modified), "deleted", len(changes.Deleted))
	return changes, nil
}

// RemoveTrackedDir forgets dir. Removing an untracked dir succeeds.
func (s *Store) RemoveTrackedDir(dir string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(); err != nil {
		return false, err
	}

	prev, existed := s.data.TrackedDirectories[dir]
	delete(s.data.TrackedDirectories, dir)
	if err := s.persist(); err != nil {
		if existed {
			s.data.TrackedDirectories[dir] = prev
		}
		return false, err
	}

	slog.Info("untracked dir", "dir", dir, "existed", existed)
	return true, nil
}

// TrackNewDevice pairs a device. It returns false if a device with the same
// id is already paired.
func (s *Store) TrackNewDevice(device peer.Device) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(); err != nil {
		return false, err
	}

	if s.data.hasDevice(device.ID) {
		return false, nil
	}

	s.data.TrackedDevices = append(s.data.TrackedDevices, device)
	if err := s.persist(); err != nil {
		s.data.TrackedDevices = s.data.TrackedDevices[:len(s.data.TrackedDevices)-1]
		return false, err
	}

	slog.Info("paired device", "device", device)
	return true, nil
}

// GetTrackedDirs returns the tracked directories. It does not wait for a
// write in progress.
func (s *Store) GetTrackedDirs() mapset.Set[string] {
	if dirs, _, ok := s.keys.get(); ok {
		return mapset.NewSet(dirs...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dirs := mapset.NewSet[string]()
	if err := s.ensureLoaded(); err != nil {
		slog.Error("store load", "error", err)
		return dirs
	}
	for dir := range s.data.TrackedDirectories {
		dirs.Add(dir)
	}
	return dirs
}

// GetTrackedDevices returns the paired devices. It does not wait for a write
// in progress.
func (s *Store) GetTrackedDevices() mapset.Set[peer.Device] {
	if _, devices, ok := s.keys.get(); ok {
		return mapset.NewSet(devices...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	devices := mapset.NewSet[peer.Device]()
	if err := s.ensureLoaded(); err != nil {
		slog.Error("store load", "error", err)
		return devices
	}
	for _, d := range s.data.TrackedDevices {
		devices.Add(d)
	}
	return devices
}

// GetSnapshots returns a copy of the last sweep of dir, sorted by path.
func (s *Store) GetSnapshots(dir string) ([]snapshot.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(); err != nil {
		return nil, false
	}

	snaps, ok := s.data.TrackedDirectories[dir]
	if !ok {
		return nil, false
	}
	out := append(make([]snapshot.Snapshot, 0, len(snaps)), snaps...)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, true
}

func (s *Store) sweep(ctx context.Context, dir string) (*snapshot.Result, error) {
	tStart := time.Now()
	res, err := snapshot.Tree(ctx, s.source, dir, snapshot.WalkOptions{
		Ignore: snapshot.LoadIgnoreList(s.source, dir),
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot dir %s: %w", dir, err)
	}
	if skippedErr := res.SkippedErr(); skippedErr != nil {
		slog.Warn("snapshot skipped unreadable dirs", "dir", dir, "count", len(res.Skipped), "error", skippedErr)
	}
	slog.Debug("dir snapshot done", "dir", dir, "files", len(res.Snapshots), "elapsed", time.Since(tStart))
	return res, nil
}

// ensureLoaded must be called with mu held.
func (s *Store) ensureLoaded() error {
	if s.data != nil {
		return nil
	}
	if err := utils.EnsureParent(s.path); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}
	return s.load()
}

// load must be called with mu held.
func (s *Store) load() error {
	raw, err := os.ReadFile(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to read store %s: %w", s.path, err)
	}

	if len(raw) == 0 {
		s.data = newData()
		return s.persist()
	}

	data := newData()
	if err := json.Unmarshal(raw, data); err != nil {
		backup := fmt.Sprintf("%s.%s.bak", s.path, time.Now().Format("20060102150405"))
		slog.Warn("store corrupted, starting empty", "path", s.path, "backup", backup, "error", err)
		if err := os.Rename(s.path, backup); err != nil {
			return fmt.Errorf("failed to back up corrupted store: %w", err)
		}
		s.data = newData()
		return s.persist()
	}

	if data.TrackedDirectories == nil {
		data.TrackedDirectories = make(map[string][]snapshot.Snapshot)
	}
	if data.TrackedDevices == nil {
		data.TrackedDevices = make([]peer.Device, 0)
	}
	s.data = data
	s.keys.set(s.data)
	return nil
}

// persist must be called with mu held.
func (s *Store) persist() error {
	if err := s.writeFile(s.data); err != nil {
		return err
	}
	s.keys.set(s.data)
	return nil
}

// writeFile serializes data to a temp file next to the store and renames it
// over the store file.
func (s *Store) writeFile(data *Data) error {
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode store: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to save store: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save store: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save store: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save store: %w", err)
	}
	return nil
}
