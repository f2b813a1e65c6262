// Package security guards the file paths the device accepts from flags and
// config (capture recordings, report directory, history database) and the
// names it builds for report files.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultDataDir is where the device keeps its database and reports.
const DefaultDataDir = "/var/lib/pulsemon"

// ErrOutsideDir is returned when a path resolves outside every allowed
// directory.
var ErrOutsideDir = errors.New("path escapes allowed directories")

// resolve returns the absolute, symlink-free form of path. For a path that
// does not exist yet, the nearest existing ancestor is resolved and the rest
// appended.
func resolve(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real, nil
	}

	for dir := filepath.Dir(abs); ; dir = filepath.Dir(dir) {
		if real, err := filepath.EvalSymlinks(dir); err == nil {
			rest, _ := filepath.Rel(dir, abs)
			return filepath.Join(real, rest), nil
		}
		if dir == filepath.Dir(dir) {
			return abs, nil
		}
	}
}

// WithinDir reports an error unless path resolves inside dir. Symlinks on
// either side are followed first.
func WithinDir(path, dir string) error {
	realPath, err := resolve(path)
	if err != nil {
		return err
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve directory: %w", err)
	}
	realDir, err := filepath.EvalSymlinks(absDir)
	if err != nil {
		return fmt.Errorf("failed to resolve directory symlinks: %w", err)
	}

	rel, err := filepath.Rel(realDir, realPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("%w: %s is outside %s", ErrOutsideDir, path, dir)
	}
	return nil
}

// WithinAnyDir accepts path if it is inside one of dirs.
func WithinAnyDir(path string, dirs []string) error {
	if len(dirs) == 0 {
		return fmt.Errorf("no allowed directories specified")
	}
	for _, dir := range dirs {
		if WithinDir(path, dir) == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %s must be within one of %v", ErrOutsideDir, path, dirs)
}

// DataDirs lists the directories device files may live in: the working
// directory, the temp directory and DefaultDataDir plus any extras that
// exist.
func DataDirs(extra ...string) []string {
	var dirs []string
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, wd)
	}
	dirs = append(dirs, os.TempDir())
	for _, d := range append([]string{DefaultDataDir}, extra...) {
		if _, err := os.Stat(d); err == nil {
			dirs = append(dirs, d)
		}
	}
	return dirs
}

// ValidateDataPath checks path against DataDirs.
func ValidateDataPath(path string, extra ...string) error {
	return WithinAnyDir(path, DataDirs(extra...))
}

// SanitizeFilename reduces s to ASCII letters, digits, dot, underscore and
// dash, collapsing other runs into one underscore. The result is at most 64
// bytes and never empty.
func SanitizeFilename(s string) string {
	const maxLen = 64
	var b strings.Builder
	pendingSep := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') ||
			r == '.' || r == '_' || r == '-'
		if !ok {
			pendingSep = b.Len() > 0
			continue
		}
		if pendingSep {
			b.WriteByte('_')
			pendingSep = false
		}
		b.WriteRune(r)
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
