package gitgrep

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/sha1n/mcp-repogrep-server/internal/domain"
)

// ErrRepositoryNotFound indicates a named repository is not under the search root.
var ErrRepositoryNotFound = errors.New("repository not found")

// Discoverer finds the git repositories directly under a root directory.
type Discoverer interface {
	// Discover returns a handle for every valid repository under root.
	// Directories that are not repositories are left out, not reported.
	Discover(ctx context.Context, root string) ([]domain.RepositoryHandle, error)

	// Lookup returns the repository called name under root.
	Lookup(ctx context.Context, root, name string) (domain.RepositoryHandle, error)
}

// DirDiscoverer treats every immediate subdirectory of the root that
// go-git can open as a repository. Both bare and non-bare repositories qualify.
type DirDiscoverer struct{}

// NewDirDiscoverer creates a DirDiscoverer.
func NewDirDiscoverer() *DirDiscoverer {
	return &DirDiscoverer{}
}

// Discover lists root's subdirectories in the order os.ReadDir yields them
// (sorted by name) and keeps the ones that are repositories.
func (d *DirDiscoverer) Discover(ctx context.Context, root string) ([]domain.RepositoryHandle, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read search root: %w", err)
	}

	var repos []domain.RepositoryHandle
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(root, entry.Name())
		if !isDirEntry(entry, path) {
			continue
		}
		if !IsRepository(path) {
			continue
		}
		repos = append(repos, domain.RepositoryHandle{Name: entry.Name(), Path: path})
	}

	return repos, nil
}

// Lookup resolves a repository by its directory name under root.
func (d *DirDiscoverer) Lookup(_ context.Context, root, name string) (domain.RepositoryHandle, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return domain.RepositoryHandle{}, fmt.Errorf("%w: %q", ErrRepositoryNotFound, name)
	}

	path := filepath.Join(root, name)
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() || !IsRepository(path) {
		return domain.RepositoryHandle{}, fmt.Errorf("%w: %q", ErrRepositoryNotFound, name)
	}

	return domain.RepositoryHandle{Name: name, Path: path}, nil
}

// IsRepository reports whether dir is the root of a git repository.
// Subdirectories of a repository do not count.
func IsRepository(dir string) bool {
	_, err := git.PlainOpen(dir)
	return err == nil
}

// isDirEntry reports whether entry is a directory, following a symlink to
// its target. Dangling links are skipped.
func isDirEntry(entry os.DirEntry, path string) bool {
	if entry.Type()&os.ModeSymlink == 0 {
		return entry.IsDir()
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
