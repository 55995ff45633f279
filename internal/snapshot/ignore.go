package snapshot

import (
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFileName is looked up in the root of every tracked directory.
const IgnoreFileName = ".dirsyncignore"

// IgnoreList skips matching paths during a walk. A nil list ignores nothing.
type IgnoreList struct {
	rules  int
	ignore *gitignore.GitIgnore
}

func NewIgnoreList(lines ...string) *IgnoreList {
	var rules []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rules = append(rules, line)
	}
	return &IgnoreList{
		rules:  len(rules),
		ignore: gitignore.CompileIgnoreLines(rules...),
	}
}

// LoadIgnoreList reads <root>/.dirsyncignore through r. A missing or
// unreadable file yields an empty list.
func LoadIgnoreList(r FileReader, root string) *IgnoreList {
	ignorePath := filepath.Join(root, IgnoreFileName)

	data, err := r.ReadFile(ignorePath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("failed to read ignore file", "path", ignorePath, "error", err)
		}
		return NewIgnoreList()
	}

	list := NewIgnoreList(strings.Split(string(data), "\n")...)
	slog.Debug("loaded ignore file", "path", ignorePath, "rules", list.rules)
	return list
}

func (l *IgnoreList) Len() int {
	if l == nil {
		return 0
	}
	return l.rules
}

// ShouldIgnore matches a slash-separated path relative to the walk root.
func (l *IgnoreList) ShouldIgnore(rel string, isDir bool) bool {
	if l == nil || l.rules == 0 {
		return false
	}
	if isDir && !strings.HasSuffix(rel, "/") {
		rel += "/"
	}
	return l.ignore.MatchesPath(rel)
}
