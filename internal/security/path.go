// Package security guards filesystem paths assembled from configuration
// and job input before the daemon touches them.
package security

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// WithinDirectory reports whether path stays inside root once both are
// made absolute and symlinks in their existing ancestry are resolved. It
// rejects joins where an externally supplied name climbs out of its
// configured directory, whether by ".." segments or by a symlink.
// Existence of the final path is the caller's concern.
func WithinDirectory(path, root string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("security: resolve %s: %w", path, err)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("security: resolve %s: %w", root, err)
	}

	resolvedPath, err := resolveExisting(absPath)
	if err != nil {
		return fmt.Errorf("security: resolve %s: %w", path, err)
	}
	resolvedRoot, err := resolveExisting(absRoot)
	if err != nil {
		return fmt.Errorf("security: resolve %s: %w", root, err)
	}

	if resolvedPath != resolvedRoot && !strings.HasPrefix(resolvedPath, resolvedRoot+string(filepath.Separator)) {
		return fmt.Errorf("security: %s escapes %s", path, root)
	}
	return nil
}

// resolveExisting resolves symlinks in the deepest existing ancestor of
// an absolute path and reattaches the missing tail lexically.
func resolveExisting(path string) (string, error) {
	tail := ""
	for cur := path; ; {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			return filepath.Join(resolved, tail), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return filepath.Join(cur, tail), nil
		}
		tail = filepath.Join(filepath.Base(cur), tail)
		cur = parent
	}
}
