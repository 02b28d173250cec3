// Package security guards the file paths the CLI writes to.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideAllowedDirs is returned when a path resolves outside every
// allowed directory.
var ErrOutsideAllowedDirs = errors.New("path is outside the allowed directories")

// WithinDir reports an error unless path resolves inside dir. Symlinks are
// resolved on both sides; for a path that does not exist yet the nearest
// existing parent is resolved instead, so a symlinked parent cannot
// redirect a new file elsewhere.
func WithinDir(path, dir string) error {
	target, err := canonical(path)
	if err != nil {
		return err
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", dir, err)
	}
	root, err := filepath.EvalSymlinks(absDir)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", dir, err)
	}

	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("%s escapes %s: %w", path, dir, ErrOutsideAllowedDirs)
	}
	return nil
}

// WithinAnyDir accepts path if it lies inside one of dirs.
func WithinAnyDir(path string, dirs []string) error {
	if len(dirs) == 0 {
		return errors.New("no allowed directories specified")
	}
	for _, dir := range dirs {
		if WithinDir(path, dir) == nil {
			return nil
		}
	}
	return fmt.Errorf("%s must be within one of %v: %w", path, dirs, ErrOutsideAllowedDirs)
}

// ValidateExportPath accepts paths under the working directory or the
// system temp directory.
func ValidateExportPath(path string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	return WithinAnyDir(path, []string{cwd, os.TempDir()})
}

func canonical(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	for dir := filepath.Dir(abs); ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			rel, _ := filepath.Rel(dir, abs)
			return filepath.Join(resolved, rel), nil
		}
		if dir == filepath.Dir(dir) {
			return abs, nil
		}
	}
}
