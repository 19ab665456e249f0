package watch

import (
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// alwaysExcludedSuffixes are in-progress or scratch files that are never
// worth uploading.
var alwaysExcludedSuffixes = []string{
	".part", ".partial", ".tmp", ".swp", ".crdownload",
	".db", ".db-wal", ".db-shm",
}

// Filter decides which paths under the watched directory are skipped.
type Filter struct {
	gi *ignore.GitIgnore // nil when no patterns are configured
}

// NewFilter compiles gitignore-style patterns.
func NewFilter(patterns []string) *Filter {
	if len(patterns) == 0 {
		return &Filter{}
	}

	return &Filter{gi: ignore.CompileIgnoreLines(patterns...)}
}

// Excluded reports whether rel, a path relative to the watched directory,
// is skipped.
func (f *Filter) Excluded(rel string, isDir bool) bool {
	name := filepath.Base(rel)

	if !isDir && isAlwaysExcluded(name) {
		return true
	}

	if f.gi == nil {
		return false
	}

	// go-gitignore expects forward slashes and a trailing slash for dirs.
	matchPath := filepath.ToSlash(rel)
	if isDir {
		matchPath += "/"
	}

	return f.gi.MatchesPath(matchPath)
}

func isAlwaysExcluded(name string) bool {
	lower := strings.ToLower(name)

	for _, ext := range alwaysExcludedSuffixes {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}

	// Editor backups (~file) and LibreOffice locks (.~lock).
	return strings.HasPrefix(name, "~") || strings.HasPrefix(name, ".~")
}
