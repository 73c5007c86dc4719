package gitgrep

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

// MockExecutor records commands and returns configured responses.
// It is safe for concurrent use so it can back fan-out searches.
type MockExecutor struct {
	mu       sync.Mutex
	commands []MockCommand
	calls    []ExecutorCall
}

// MockCommand defines a mock response for a command prefix, optionally
// restricted to one working directory.
type MockCommand struct {
	Dir        string
	NamePrefix string
	Output     []byte
	Err        error
}

// ExecutorCall records a command invocation.
type ExecutorCall struct {
	Dir  string
	Name string
	Args []string
}

// NewMockExecutor creates a new mock executor.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{
		commands: make([]MockCommand, 0),
		calls:    make([]ExecutorCall, 0),
	}
}

// AddResponse adds a mock response for commands matching the given prefix in any directory.
func (m *MockExecutor) AddResponse(namePrefix string, output []byte, err error) {
	m.AddResponseInDir("", namePrefix, output, err)
}

// AddResponseInDir adds a mock response for commands run in dir matching the given prefix.
func (m *MockExecutor) AddResponseInDir(dir, namePrefix string, output []byte, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, MockCommand{
		Dir:        dir,
		NamePrefix: namePrefix,
		Output:     output,
		Err:        err,
	})
}

// Run executes a command and returns the configured mock response.
// Each response is used once.
func (m *MockExecutor) Run(_ context.Context, dir string, name string, args ...string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, ExecutorCall{Dir: dir, Name: name, Args: args})

	// Build full command string for matching
	fullCmd := name + " " + strings.Join(args, " ")

	for i, cmd := range m.commands {
		if cmd.Dir != "" && cmd.Dir != dir {
			continue
		}
		if strings.HasPrefix(fullCmd, cmd.NamePrefix) {
			m.commands = append(m.commands[:i], m.commands[i+1:]...)
			return cmd.Output, cmd.Err
		}
	}

	return nil, errors.New("no mock response configured for: " + fullCmd)
}

// GetCalls returns a copy of all recorded command calls.
func (m *MockExecutor) GetCalls() []ExecutorCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ExecutorCall(nil), m.calls...)
}

// MustGetLastCall returns the last recorded call, fails the test if no calls were made.
func (m *MockExecutor) MustGetLastCall(t *testing.T) ExecutorCall {
	t.Helper()
	calls := m.GetCalls()
	if len(calls) == 0 {
		t.Fatal("Expected at least one command call")
	}
	return calls[len(calls)-1]
}

// GrepOutput builds git grep --null output lines for a file at HEAD.
// Each line is "<number>\x00<text>".
func GrepOutput(path string, lines ...string) string {
	var sb strings.Builder
	for _, line := range lines {
		sb.WriteString("HEAD:")
		sb.WriteString(path)
		sb.WriteString("\x00")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}
