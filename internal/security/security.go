// Package security restricts workbook imports to allow-listed directories.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrNotAllowed           = errors.New("security: path not allowed")
	ErrUnsupportedExtension = errors.New("security: unsupported file extension")
	ErrNotFound             = errors.New("security: file not found")
	ErrNoAllowedDirs        = errors.New("security: no allowed directories configured")
)

// DefaultExtensions are the workbook formats the importer reads.
var DefaultExtensions = []string{".xlsx", ".xlsm"}

// Manager validates import paths against canonical allow-list roots.
type Manager struct {
	roots []string
	exts  map[string]struct{}
}

// NewManager resolves each directory to an absolute, symlink-free path.
// Blank entries are skipped; an empty list denies everything.
func NewManager(dirs, extensions []string) (*Manager, error) {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	exts := make(map[string]struct{}, len(extensions))
	for _, e := range extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if !strings.HasPrefix(e, ".") || len(e) < 2 {
			return nil, fmt.Errorf("security: invalid extension %q", e)
		}
		exts[e] = struct{}{}
	}

	roots := make([]string, 0, len(dirs))
	for _, d := range dirs {
		if d = strings.TrimSpace(d); d == "" {
			continue
		}
		root, err := canonical(d)
		if err != nil {
			return nil, fmt.Errorf("security: allowed dir %q: %w", d, err)
		}
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("security: allowed dir %q: %w", d, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("security: allowed dir %q is not a directory", d)
		}
		roots = append(roots, root)
	}
	return &Manager{roots: roots, exts: exts}, nil
}

// AllowedDirectories returns a copy of the canonical roots.
func (m *Manager) AllowedDirectories() []string {
	return append([]string(nil), m.roots...)
}

// ValidateConfig fails when no roots are configured, which disables imports.
func (m *Manager) ValidateConfig() error {
	if len(m.roots) == 0 {
		return ErrNoAllowedDirs
	}
	return nil
}

// ValidateOpenPath returns the canonical path of an existing workbook under
// one of the roots. Symlinks are resolved before the containment check.
func (m *Manager) ValidateOpenPath(input string) (string, error) {
	if strings.TrimSpace(input) == "" {
		return "", ErrNotAllowed
	}
	if _, ok := m.exts[strings.ToLower(filepath.Ext(input))]; !ok {
		return "", ErrUnsupportedExtension
	}
	real, err := canonical(input)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("security: resolve %q: %w", input, err)
	}
	info, err := os.Stat(real)
	if err != nil {
		return "", ErrNotFound
	}
	if info.IsDir() {
		return "", ErrNotAllowed
	}
	for _, root := range m.roots {
		if within(root, real) {
			return real, nil
		}
	}
	return "", ErrNotAllowed
}

func canonical(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	return filepath.Clean(real), nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
