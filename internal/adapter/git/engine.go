// Package git reads diffs and file trees from a local repository via
// go-git, so reviews run without shelling out or touching the network.
package git

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Engine opens a repository once and serves diff text plus blob reads at
// a pinned head commit.
type Engine struct {
	repo *gogit.Repository
	head *object.Commit
}

// Open opens the repository at repoDir and pins head as the revision the
// index and diff are computed against.
func Open(repoDir, head string) (*Engine, error) {
	repo, err := gogit.PlainOpenWithOptions(repoDir, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	headCommit, err := resolveCommit(repo, head)
	if err != nil {
		return nil, fmt.Errorf("resolve head %q: %w", head, err)
	}
	return &Engine{repo: repo, head: headCommit}, nil
}

// Diff returns the unified diff text between base and the pinned head.
func (e *Engine) Diff(base string) (string, error) {
	baseCommit, err := resolveCommit(e.repo, base)
	if err != nil {
		return "", fmt.Errorf("resolve base %q: %w", base, err)
	}
	patch, err := baseCommit.Patch(e.head)
	if err != nil {
		return "", fmt.Errorf("compute patch: %w", err)
	}
	return patch.String(), nil
}

// ListFiles returns every file path in the head tree, sorted.
func (e *Engine) ListFiles() ([]string, error) {
	tree, err := e.head.Tree()
	if err != nil {
		return nil, fmt.Errorf("head tree: %w", err)
	}
	var paths []string
	err = tree.Files().ForEach(func(f *object.File) error {
		paths = append(paths, f.Name)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk tree: %w", err)
	}
	sort.Strings(paths)
	return paths, nil
}

// ReadFile returns the blob content of path at the pinned head. It
// satisfies the index source contract.
func (e *Engine) ReadFile(path string) ([]byte, error) {
	tree, err := e.head.Tree()
	if err != nil {
		return nil, fmt.Errorf("head tree: %w", err)
	}
	f, err := tree.File(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	reader, err := f.Blob.Reader()
	if err != nil {
		return nil, fmt.Errorf("open blob %s: %w", path, err)
	}
	defer reader.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return nil, fmt.Errorf("read blob %s: %w", path, err)
	}
	return buf.Bytes(), nil
}

// HeadHash returns the full hash of the pinned head commit.
func (e *Engine) HeadHash() string {
	return e.head.Hash.String()
}

func resolveCommit(repo *gogit.Repository, ref string) (*object.Commit, error) {
	candidates := []string{
		ref,
		fmt.Sprintf("refs/heads/%s", ref),
		fmt.Sprintf("refs/remotes/origin/%s", ref),
	}

	var lastErr error
	for _, candidate := range candidates {
		hash, err := repo.ResolveRevision(plumbing.Revision(candidate))
		if err != nil {
			lastErr = err
			continue
		}
		return repo.CommitObject(*hash)
	}
	return nil, lastErr
}
