package fs

import (
	"fmt"
	"strings"
)

// Separator is the single path separator. Paths are absolute: they start
// with the separator and name each segment explicitly; there is no ".",
// "..", or escaping.
const Separator = "/"

// RootPath is the path of the tree root.
const RootPath = Separator

// Split breaks an absolute path into its segments. The root path yields an
// empty slice. Relative paths and paths with empty segments are rejected.
func Split(path string) ([]string, error) {
	if !strings.HasPrefix(path, Separator) {
		return nil, fmt.Errorf("path %q is not absolute: %w", path, ErrInvalidOperation)
	}
	trimmed := strings.Trim(path, Separator)
	if trimmed == "" {
		return nil, nil
	}
	segs := strings.Split(trimmed, Separator)
	for _, seg := range segs {
		if seg == "" {
			return nil, fmt.Errorf("path %q has an empty segment: %w", path, ErrInvalidOperation)
		}
	}
	return segs, nil
}

// SplitLast splits a path into its parent path and final segment.
// SplitLast("/a/b") = ("/a", "b"); SplitLast("/") = ("/", "").
func SplitLast(path string) (parent, name string) {
	trimmed := strings.TrimRight(path, Separator)
	idx := strings.LastIndex(trimmed, Separator)
	if idx < 0 {
		return RootPath, trimmed
	}
	parent = trimmed[:idx]
	if parent == "" {
		parent = RootPath
	}
	return parent, trimmed[idx+1:]
}

// Join appends a name to a directory path.
func Join(dir, name string) string {
	if dir == RootPath {
		return RootPath + name
	}
	return dir + Separator + name
}

// ValidateName checks a single node name: non-empty and free of separators.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("empty name: %w", ErrInvalidOperation)
	}
	if strings.Contains(name, Separator) {
		return fmt.Errorf("name %q contains %q: %w", name, Separator, ErrInvalidOperation)
	}
	return nil
}

// Normalize resolves a possibly-relative path against base. Paths starting
// with the separator are kept as-is; anything else is joined onto base.
func Normalize(base, path string) string {
	if strings.HasPrefix(path, Separator) {
		if path != RootPath {
			path = RootPath + strings.Trim(path, Separator)
		}
		return path
	}
	return Join(base, strings.Trim(path, Separator))
}
