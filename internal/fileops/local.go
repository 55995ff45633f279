package fileops

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/openmined/dirsync/internal/fsentry"
	"github.com/spf13/afero"
)

const maxCreateAttempts = 100

// Local implements Gateway on top of an afero filesystem.
type Local struct {
	fs     afero.Fs
	opener func(path string) error
}

var _ Gateway = (*Local)(nil)

type LocalOption func(*Local)

// WithOpener replaces the function used to hand files to the OS viewer.
func WithOpener(opener func(path string) error) LocalOption {
	return func(l *Local) {
		l.opener = opener
	}
}

func NewLocal(fs afero.Fs, opts ...LocalOption) *Local {
	l := &Local{
		fs:     fs,
		opener: openWithSystem,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewOSLocal is a Local backed by the host filesystem.
func NewOSLocal() *Local {
	return NewLocal(afero.NewOsFs())
}

func (l *Local) List(path string, ignoreHidden bool) ([]fsentry.DirEntry, error) {
	infos, err := afero.ReadDir(l.fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []fsentry.DirEntry{}, nil
		}
		return nil, err
	}

	entries := make([]fsentry.DirEntry, 0, len(infos))
	for _, info := range infos {
		if ignoreHidden && fsentry.IsHidden(info.Name()) {
			continue
		}
		entries = append(entries, fsentry.FromFileInfo(filepath.Join(path, info.Name()), info))
	}
	return entries, nil
}

func (l *Local) ReadFile(path string) ([]byte, error) {
	return afero.ReadFile(l.fs, path)
}

// Stat returns the entry at path, or nil if nothing exists there. Regular
// files get their mime type sniffed from content when the extension is not
// conclusive.
func (l *Local) Stat(path string) (*fsentry.DirEntry, error) {
	info, err := l.fs.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	entry := fsentry.FromFileInfo(path, info)
	if entry.IsDirectory || entry.FileType != fsentry.FileTypeUnknown {
		return &entry, nil
	}

	f, err := l.fs.Open(path)
	if err != nil {
		return &entry, nil
	}
	defer f.Close()

	if mt, err := mimetype.DetectReader(f); err == nil {
		entry.Mime = mt.String()
	}
	return &entry, nil
}

func (l *Local) Copy(files []fsentry.DirEntry, destDir string, overwrite bool) []*FileError {
	if ferr := l.checkDestDir(destDir); ferr != nil {
		return []*FileError{ferr}
	}

	var errs []*FileError
	for _, file := range files {
		dst := filepath.Join(destDir, file.Name)
		if err := l.copyEntry(file.Path, dst, overwrite); err != nil {
			slog.Debug("copy failed", "src", file.Path, "dst", dst, "error", err)
			errs = append(errs, &FileError{Entry: file, Err: err})
		}
	}
	return errs
}

func (l *Local) Move(files []fsentry.DirEntry, destDir string, overwrite bool) []*FileError {
	if ferr := l.checkDestDir(destDir); ferr != nil {
		return []*FileError{ferr}
	}

	var errs []*FileError
	for _, file := range files {
		dst := filepath.Join(destDir, file.Name)
		if err := l.moveEntry(file.Path, dst, overwrite); err != nil {
			slog.Debug("move failed", "src", file.Path, "dst", dst, "error", err)
			errs = append(errs, &FileError{Entry: file, Err: err})
		}
	}
	return errs
}

func (l *Local) Delete(files []fsentry.DirEntry) []*FileError {
	var errs []*FileError
	for _, file := range files {
		if err := l.deleteEntry(file.Path); err != nil {
			slog.Debug("delete failed", "path", file.Path, "error", err)
			errs = append(errs, &FileError{Entry: file, Err: err})
		}
	}
	return errs
}

func (l *Local) Rename(file fsentry.DirEntry, newName string) error {
	if err := validateName(newName); err != nil {
		return err
	}

	dst := filepath.Join(filepath.Dir(file.Path), newName)
	if dst == file.Path {
		return nil
	}
	if exists, err := afero.Exists(l.fs, dst); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("%w: %s", ErrExists, dst)
	}
	return l.fs.Rename(file.Path, dst)
}

// CreateFile creates name in destDir. If name is taken, " (n)" is appended
// before the extension until a free name is found.
func (l *Local) CreateFile(name, destDir string, isDirectory bool) (*fsentry.DirEntry, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if ferr := l.checkDestDir(destDir); ferr != nil {
		return nil, ferr.Err
	}

	ext := filepath.Ext(name)
	if isDirectory {
		ext = ""
	}
	base := strings.TrimSuffix(name, ext)

	for i := 0; i < maxCreateAttempts; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", base, i, ext)
		}
		target := filepath.Join(destDir, candidate)

		exists, err := afero.Exists(l.fs, target)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}

		if isDirectory {
			if err := l.fs.Mkdir(target, 0o755); err != nil {
				return nil, err
			}
		} else {
			f, err := l.fs.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
			if err != nil {
				return nil, err
			}
			f.Close()
		}
		return l.Stat(target)
	}

	return nil, fmt.Errorf("%w: no free name for %s in %s", ErrExists, name, destDir)
}

func (l *Local) Open(file fsentry.DirEntry) error {
	if _, err := l.fs.Stat(file.Path); err != nil {
		return err
	}
	return l.opener(file.Path)
}

func (l *Local) checkDestDir(destDir string) *FileError {
	info, err := l.fs.Stat(destDir)
	if err != nil {
		return &FileError{Entry: fsentry.DirEntry{Name: filepath.Base(destDir), Path: destDir}, Err: err}
	}
	if !info.IsDir() {
		return &FileError{Entry: fsentry.FromFileInfo(destDir, info), Err: ErrDestNotDir}
	}
	return nil
}

func (l *Local) copyEntry(src, dst string, overwrite bool) error {
	if filepath.Clean(src) == filepath.Clean(dst) {
		return ErrSameFile
	}

	info, err := l.fs.Stat(src)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return l.copyFile(src, dst, info.Mode(), overwrite)
	}

	if fsentry.IsWithin(src, dst) {
		return ErrCopyIntoSelf
	}

	return afero.Walk(l.fs, src, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if fi.IsDir() {
			return l.fs.MkdirAll(target, fi.Mode().Perm()|0o700)
		}
		return l.copyFile(p, target, fi.Mode(), overwrite)
	})
}

func (l *Local) copyFile(src, dst string, mode os.FileMode, overwrite bool) error {
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if !overwrite {
		flags |= os.O_EXCL
	}

	in, err := l.fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := l.fs.OpenFile(dst, flags, mode.Perm())
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", ErrExists, dst)
		}
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (l *Local) moveEntry(src, dst string, overwrite bool) error {
	if filepath.Clean(src) == filepath.Clean(dst) {
		return ErrSameFile
	}
	if fsentry.IsWithin(src, dst) {
		return ErrCopyIntoSelf
	}

	exists, err := afero.Exists(l.fs, dst)
	if err != nil {
		return err
	}
	if exists {
		if !overwrite {
			return fmt.Errorf("%w: %s", ErrExists, dst)
		}
		if err := l.fs.RemoveAll(dst); err != nil {
			return err
		}
	}

	if err := l.fs.Rename(src, dst); err == nil {
		return nil
	}

	// rename fails across devices; fall back to copy + delete
	if err := l.copyEntry(src, dst, overwrite); err != nil {
		return err
	}
	return l.fs.RemoveAll(src)
}

func (l *Local) deleteEntry(p string) error {
	info, err := l.fs.Stat(p)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return l.fs.RemoveAll(p)
	}
	return l.fs.Remove(p)
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
