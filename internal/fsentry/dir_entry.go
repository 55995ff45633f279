// Package fsentry holds the directory listing record shared by every layer of
// dirsync. Entries are values: they are rebuilt on every listing and never
// mutated in place.
package fsentry

import (
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

type FilePermissions struct {
	Readable   bool `json:"readable"`
	Writable   bool `json:"writable"`
	Executable bool `json:"executable"`
}

func (p FilePermissions) String() string {
	b := []byte("---")
	if p.Readable {
		b[0] = 'r'
	}
	if p.Writable {
		b[1] = 'w'
	}
	if p.Executable {
		b[2] = 'x'
	}
	return string(b)
}

// PermissionsFromMode reads the owner bits of a file mode.
func PermissionsFromMode(mode fs.FileMode) FilePermissions {
	perm := mode.Perm()
	return FilePermissions{
		Readable:   perm&0o400 != 0,
		Writable:   perm&0o200 != 0,
		Executable: perm&0o100 != 0,
	}
}

// DirEntry is one record of a directory listing. Path is an opaque platform
// identifier: a filesystem path or a content-provider URI.
type DirEntry struct {
	Name         string          `json:"name"`
	Path         string          `json:"path"`
	IsDirectory  bool            `json:"isDirectory"`
	Size         int64           `json:"size"`
	LastModified int64           `json:"lastModified"` // epoch millis
	Permissions  FilePermissions `json:"permissions"`
	FileType     FileType        `json:"fileType"`
	Mime         string          `json:"mime"`
}

// New builds an entry whose FileType and Mime agree with isDirectory and the
// extension of name.
func New(name, entryPath string, isDirectory bool, size int64, modTime time.Time, perms FilePermissions) DirEntry {
	if size < 0 {
		size = 0
	}
	ft := FileTypeOf(isDirectory, path.Ext(name))
	return DirEntry{
		Name:         name,
		Path:         entryPath,
		IsDirectory:  isDirectory,
		Size:         size,
		LastModified: modTime.UnixMilli(),
		Permissions:  perms,
		FileType:     ft,
		Mime:         ft.Mime(),
	}
}

// FromFileInfo converts a stat result into an entry located at entryPath.
func FromFileInfo(entryPath string, info fs.FileInfo) DirEntry {
	return New(info.Name(), entryPath, info.IsDir(), info.Size(), info.ModTime(), PermissionsFromMode(info.Mode()))
}

func (e DirEntry) IsFile() bool {
	return !e.IsDirectory
}

func (e DirEntry) IsHidden() bool {
	return IsHidden(e.Name)
}

// Valid reports whether the directory flag and the file type agree.
func (e DirEntry) Valid() bool {
	return e.IsDirectory == (e.FileType == FileTypeFolder)
}

func (e DirEntry) ModTime() time.Time {
	return time.UnixMilli(e.LastModified)
}

func (e DirEntry) String() string {
	return fmt.Sprintf("DirEntry(name=%s, path=%s, size=%s, lastModified=%s, permissions=%s, fileType=%s)",
		e.Name, e.Path, humanize.IBytes(uint64(e.Size)), e.ModTime().Format(time.RFC3339), e.Permissions, e.FileType)
}

// IsHidden reports whether a file name is hidden, i.e. starts with a dot.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// IsWithin reports whether p equals root or lies below it.
func IsWithin(root, p string) bool {
	root = filepath.Clean(root)
	p = filepath.Clean(p)
	if root == p {
		return true
	}
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
