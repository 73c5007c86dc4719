package gitgrep

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sha1n/mcp-repogrep-server/internal/domain"
)

const (
	// DefaultContextLines is the number of lines shown around each hit.
	DefaultContextLines = 3

	// grepNoMatchExitCode is what git grep exits with when nothing matched.
	grepNoMatchExitCode = 1
)

// GitClient executes git commands.
type GitClient struct {
	executor     CommandExecutor
	contextLines int
	timeout      time.Duration
}

// GitClientOption configures a GitClient.
type GitClientOption func(*GitClient)

// WithContextLines sets the number of context lines requested from git grep.
func WithContextLines(n int) GitClientOption {
	return func(g *GitClient) {
		if n >= 0 {
			g.contextLines = n
		}
	}
}

// WithCommandTimeout bounds every git invocation. Zero disables the bound.
func WithCommandTimeout(d time.Duration) GitClientOption {
	return func(g *GitClient) {
		g.timeout = d
	}
}

// NewGitClient creates a new GitClient with the default command executor.
func NewGitClient(opts ...GitClientOption) *GitClient {
	return NewGitClientWithExecutor(&DefaultExecutor{}, opts...)
}

// NewGitClientWithExecutor creates a GitClient with a custom executor (for testing).
func NewGitClientWithExecutor(executor CommandExecutor, opts ...GitClientOption) *GitClient {
	g := &GitClient{
		executor:     executor,
		contextLines: DefaultContextLines,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GrepArgs returns the git arguments used to search for term at HEAD.
// The term always follows -e so a leading dash is never read as an option.
func (g *GitClient) GrepArgs(term string) []string {
	return []string{
		"grep",
		"--line-number",
		"--fixed-strings",
		"--ignore-case",
		"--context", strconv.Itoa(g.contextLines),
		"--null",
		"-e", term,
		domain.ObjectHEAD,
	}
}

// Grep runs a literal, case-insensitive search for term over the committed
// tree of the repository at repoDir and returns the raw output.
// A clean no-match exit yields empty output and no error.
func (g *GitClient) Grep(ctx context.Context, repoDir, term string) ([]byte, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	output, err := g.executor.Run(ctx, repoDir, "git", g.GrepArgs(term)...)
	if err != nil {
		if isNoMatch(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("git grep failed: %w", err)
	}
	return output, nil
}

// isNoMatch reports whether err is git grep's "nothing found" exit.
// Exit code 1 together with stderr output means something else went wrong.
func isNoMatch(err error) bool {
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		return false
	}
	return cmdErr.ExitCode == grepNoMatchExitCode && cmdErr.Stderr == ""
}
