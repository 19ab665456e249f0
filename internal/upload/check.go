package upload

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Sentinel errors for rejected files. Use errors.Is to check.
var (
	ErrTooLarge       = errors.New("upload: file exceeds max_file_size")
	ErrTypeNotAllowed = errors.New("upload: file type not allowed")
)

// Checker rejects files before any token is requested for them.
type Checker struct {
	MaxSize int64    // 0 means unlimited
	Allowed []string // MIME types, "major/*" wildcards or ".ext"; empty allows all
}

// Check returns nil when f may be uploaded.
func (c *Checker) Check(f *File) error {
	if c.MaxSize > 0 && f.Size > c.MaxSize {
		return fmt.Errorf("%w: %s is %d bytes, limit %d", ErrTooLarge, f.Name, f.Size, c.MaxSize)
	}

	if len(c.Allowed) == 0 {
		return nil
	}

	for _, pattern := range c.Allowed {
		if matchFileType(pattern, f) {
			return nil
		}
	}

	return fmt.Errorf("%w: %s (%s)", ErrTypeNotAllowed, f.Name, f.Type)
}

func matchFileType(pattern string, f *File) bool {
	if strings.HasPrefix(pattern, ".") {
		return strings.EqualFold(filepath.Ext(f.Name), pattern)
	}

	pattern = strings.ToLower(pattern)
	actual := baseType(f.Type)

	if major, ok := strings.CutSuffix(pattern, "/*"); ok {
		return strings.HasPrefix(actual, major+"/")
	}

	return actual == pattern
}
