package gitgrep

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/sha1n/mcp-repogrep-server/internal/domain"
)

var (
	// ErrBlobNotFound indicates the path does not exist at the requested object.
	ErrBlobNotFound = errors.New("file not found")

	// ErrBlobTooLarge indicates the blob exceeds the configured size limit.
	ErrBlobTooLarge = errors.New("file too large")

	// ErrBinaryBlob indicates the blob looks binary.
	ErrBinaryBlob = errors.New("binary file")

	// ErrInvalidPath indicates a path that escapes the repository or is empty.
	ErrInvalidPath = errors.New("invalid path")
)

// Blob is the content of a file at a given object.
type Blob struct {
	Route   domain.RouteDescriptor
	Size    int64
	Content string
}

// ReadBlob resolves a route descriptor to file content. An empty object
// means HEAD.
func (s *Service) ReadBlob(ctx context.Context, route domain.RouteDescriptor) (*Blob, error) {
	if route.Object == "" {
		route.Object = domain.ObjectHEAD
	}

	cleaned, err := cleanRepoPath(route.Path)
	if err != nil {
		return nil, err
	}
	route.Path = cleaned

	handle, err := s.discoverer.Lookup(ctx, s.settings.RootDir, route.Repository)
	if err != nil {
		return nil, err
	}

	repo, err := git.PlainOpen(handle.Path)
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}

	hash, err := repo.ResolveRevision(plumbing.Revision(route.Object))
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", route.Object, err)
	}

	commit, err := repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("load commit %s: %w", hash, err)
	}

	file, err := commit.File(route.Path)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, route.Path)
		}
		return nil, fmt.Errorf("read tree: %w", err)
	}

	if maxSize := s.settings.MaxBlobSize; maxSize > 0 && file.Size > maxSize {
		return nil, fmt.Errorf("%w (%.2f KB). Maximum allowed size is %.2f KB",
			ErrBlobTooLarge, float64(file.Size)/1024, float64(maxSize)/1024)
	}

	reader, err := file.Reader()
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	defer func() { _ = reader.Close() }()

	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	if IsBinary(content) {
		return nil, fmt.Errorf("%w: %s", ErrBinaryBlob, route.Path)
	}

	return &Blob{
		Route:   route,
		Size:    file.Size,
		Content: string(content),
	}, nil
}

// cleanRepoPath normalizes a repository-relative, slash-separated path and
// rejects anything that would leave the repository.
func cleanRepoPath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", fmt.Errorf("%w: path cannot be empty", ErrInvalidPath)
	}
	if strings.Contains(p, "\x00") {
		return "", fmt.Errorf("%w: path contains NUL", ErrInvalidPath)
	}

	p = strings.ReplaceAll(p, `\`, "/")
	for _, part := range strings.Split(p, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: path traversal detected", ErrInvalidPath)
		}
	}

	cleaned := path.Clean("/" + p)
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, p)
	}
	return cleaned, nil
}

// IsBinary checks if the content appears to be binary by looking for null bytes
// in the first 8000 bytes, the same window git uses.
func IsBinary(content []byte) bool {
	checkLen := min(len(content), 8000)
	for i := range checkLen {
		if content[i] == 0 {
			return true
		}
	}
	return false
}
