package gitgrep

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/sha1n/mcp-repogrep-server/internal/config"
	"github.com/sha1n/mcp-repogrep-server/internal/domain"
)

// initRepo creates a repository at dir and commits files to it.
// With no files the repository is left without commits.
func initRepo(t *testing.T, dir string, files map[string]string) {
	t.Helper()

	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("Failed to init repo: %v", err)
	}
	if len(files) == 0 {
		return
	}

	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Failed to open worktree: %v", err)
	}
	for path, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatalf("Failed to create dir: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write file: %v", err)
		}
		if _, err := wt.Add(path); err != nil {
			t.Fatalf("Failed to add %s: %v", path, err)
		}
	}
	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "Test", Email: "test@example.com", When: time.Now()},
	})
	if err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}
}

// newRoot creates a search root containing an empty repository per name.
func newRoot(t *testing.T, names ...string) (string, map[string]domain.RepositoryHandle) {
	t.Helper()
	root := t.TempDir()
	handles := make(map[string]domain.RepositoryHandle, len(names))
	for _, name := range names {
		path := filepath.Join(root, name)
		initRepo(t, path, nil)
		handles[name] = domain.RepositoryHandle{Name: name, Path: path}
	}
	return root, handles
}

// grepCmd is the full command line the default git client runs for term.
func grepCmd(term string) string {
	return "git " + strings.Join(NewGitClientWithExecutor(nil).GrepArgs(term), " ")
}

func noMatchErr() error {
	return &CommandError{Command: "git grep", ExitCode: 1}
}

func testSettings(root string) *config.SearchSettings {
	return &config.SearchSettings{
		RootDir:        root,
		ContextLines:   DefaultContextLines,
		MaxParallel:    2,
		CommandTimeout: 10 * time.Second,
		DefaultCount:   20,
		MaxCount:       100,
		MaxBlobSize:    1024,
	}
}

// newMockService builds a Service over root whose git invocations go to mock.
func newMockService(t *testing.T, root string, mock *MockExecutor) *Service {
	t.Helper()
	svc, err := NewService(testSettings(root), nil)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	svc.SetGitClient(NewGitClientWithExecutor(mock))
	return svc
}

func newQuery(terms ...string) domain.Query {
	return domain.Query{Terms: terms}
}
