// Package repository provides filesystem access rooted at a directory,
// used when reviewing a diff file against a plain checkout instead of a
// git revision.
package repository

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalRepository serves files relative to a root directory. Path
// traversal outside the root is rejected.
type LocalRepository struct {
	root string
}

// NewLocalRepository creates a repository rooted at the given directory.
func NewLocalRepository(root string) *LocalRepository {
	return &LocalRepository{root: root}
}

// ReadFile reads the file at path, resolved against the root.
func (r *LocalRepository) ReadFile(path string) ([]byte, error) {
	resolved, err := r.resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", path, err)
	}
	return os.ReadFile(resolved)
}

// ListFiles walks the root and returns every regular file as a relative
// path, sorted. Hidden directories such as .git are skipped.
func (r *LocalRepository) ListFiles() ([]string, error) {
	var paths []string
	err := filepath.Walk(r.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if name := filepath.Base(path); strings.HasPrefix(name, ".") && path != r.root {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(r.root, path)
		if err != nil {
			return nil
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", r.root, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// resolvePath joins path against the root and rejects anything that
// escapes it, following symlinks so a link cannot bypass the check.
func (r *LocalRepository) resolvePath(path string) (string, error) {
	resolved := path
	if !filepath.IsAbs(path) {
		resolved = filepath.Join(r.root, path)
	}
	resolved = filepath.Clean(resolved)

	realRoot, err := filepath.EvalSymlinks(r.root)
	if err != nil {
		realRoot = filepath.Clean(r.root)
	}

	realPath, err := filepath.EvalSymlinks(resolved)
	if err != nil {
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("resolving symlinks: %w", err)
		}
		rel, relErr := filepath.Rel(realRoot, resolved)
		if relErr != nil || strings.HasPrefix(rel, "..") {
			return "", fmt.Errorf("path traversal detected")
		}
		return resolved, nil
	}

	rel, err := filepath.Rel(realRoot, realPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path traversal detected")
	}
	return realPath, nil
}
