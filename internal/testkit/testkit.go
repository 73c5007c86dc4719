package testkit

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/mcp-repogrep-server/internal/app"
	"github.com/sha1n/mcp-repogrep-server/internal/config"
	"github.com/sha1n/mcp-repogrep-server/internal/metrics"
	"github.com/spf13/pflag"
)

// Property names published by the services in this package.
const (
	PropRootDir = "root_dir"
	PropBaseURL = "base_url"
)

// Service represents a test service that can be started and stopped
type Service interface {
	Start() (map[string]any, error)
	Stop() error
	GetName() string
}

// TestEnvContext provides access to properties collected during environment startup
type TestEnvContext interface {
	GetProperties() map[string]any
	GetProperty(name string) (any, bool)
}

// TestEnv manages the lifecycle of test services
type TestEnv interface {
	Start() (map[string]any, error)
	Stop() error
	GetContext() TestEnvContext
}

type testEnvContextImpl struct {
	properties map[string]any
}

func (c *testEnvContextImpl) GetProperties() map[string]any {
	return c.properties
}

func (c *testEnvContextImpl) GetProperty(name string) (any, bool) {
	val, ok := c.properties[name]
	return val, ok
}

type testEnvImpl struct {
	services []Service
	started  int
	context  *testEnvContextImpl
}

// NewTestEnv creates a new test environment with the given services.
// Services start in order and stop in reverse order.
func NewTestEnv(services ...Service) TestEnv {
	return &testEnvImpl{
		services: services,
		context:  &testEnvContextImpl{properties: make(map[string]any)},
	}
}

func (e *testEnvImpl) Start() (map[string]any, error) {
	for _, s := range e.services {
		props, err := s.Start()
		if err != nil {
			return nil, fmt.Errorf("start %s: %w", s.GetName(), err)
		}
		e.started++
		for k, v := range props {
			e.context.properties[k] = v
		}
	}
	return e.context.properties, nil
}

// Stop stops every service that was started, even if some fail.
func (e *testEnvImpl) Stop() error {
	var errs []error
	for i := e.started - 1; i >= 0; i-- {
		if err := e.services[i].Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", e.services[i].GetName(), err))
		}
	}
	e.started = 0
	return errors.Join(errs...)
}

func (e *testEnvImpl) GetContext() TestEnvContext {
	return e.context
}

// GetFreePort returns a free port from the kernel
func GetFreePort() (int, error) {
	return getFreePortWithAddr("localhost:0")
}

// MustGetFreePort returns a free port or fails the test
func MustGetFreePort(t testing.TB) int {
	t.Helper()
	port, err := GetFreePort()
	if err != nil {
		t.Fatalf("Failed to get free port: %v", err)
	}
	return port
}

func getFreePortWithAddr(addrStr string) (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", addrStr)
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer func() { _ = l.Close() }()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// FlagOptions configures NewTestFlags
type FlagOptions struct {
	Port           int    // Uses free port if 0
	Transport      string // Defaults to "sse"
	AuthType       string // Defaults to "none"
	Host           string // Defaults to "localhost"
	RootDir        string // Left unset if empty
	APIKeys        string // Comma-separated, for apikey auth
	MetricsEnabled bool
}

// NewTestFlags creates a configured pflag.FlagSet for testing
func NewTestFlags(t testing.TB, opts *FlagOptions) *pflag.FlagSet {
	t.Helper()

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	app.RegisterFlags(flags)

	o := FlagOptions{Transport: config.TransportSSE, AuthType: config.AuthTypeNone, Host: "localhost"}
	if opts != nil {
		if opts.Port != 0 {
			o.Port = opts.Port
		}
		if opts.Transport != "" {
			o.Transport = opts.Transport
		}
		if opts.AuthType != "" {
			o.AuthType = opts.AuthType
		}
		if opts.Host != "" {
			o.Host = opts.Host
		}
		o.RootDir = opts.RootDir
		o.APIKeys = opts.APIKeys
		o.MetricsEnabled = opts.MetricsEnabled
	}
	if o.Port == 0 {
		o.Port = MustGetFreePort(t)
	}

	set := func(name, value string) {
		if err := flags.Set(name, value); err != nil {
			t.Fatalf("Failed to set flag %s: %v", name, err)
		}
	}
	set("port", fmt.Sprintf("%d", o.Port))
	set("transport", o.Transport)
	set("auth-type", o.AuthType)
	set("host", o.Host)
	if o.RootDir != "" {
		set("root-dir", o.RootDir)
	}
	if o.APIKeys != "" {
		set("auth-api-keys", o.APIKeys)
	}
	if o.MetricsEnabled {
		set("metrics-enabled", "true")
	}

	return flags
}

// RepoRoot is a Service that lays out a search root with one committed
// repository per entry of Repos (repository name -> path -> content).
type RepoRoot struct {
	Repos map[string]map[string]string

	root string
}

func (r *RepoRoot) GetName() string { return "repo-root" }

func (r *RepoRoot) Start() (map[string]any, error) {
	root, err := os.MkdirTemp("", "repogrep-root-")
	if err != nil {
		return nil, err
	}
	r.root = root

	for name, files := range r.Repos {
		if err := CommitRepo(filepath.Join(root, name), files); err != nil {
			return nil, fmt.Errorf("repository %s: %w", name, err)
		}
	}
	return map[string]any{PropRootDir: root}, nil
}

func (r *RepoRoot) Stop() error {
	if r.root == "" {
		return nil
	}
	return os.RemoveAll(r.root)
}

// CommitRepo initializes a repository at dir and commits files in a single
// commit. An empty files map leaves the repository without commits.
func CommitRepo(dir string, files map[string]string) error {
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return nil
	}

	wt, err := repo.Worktree()
	if err != nil {
		return err
	}
	for path, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(full, []byte(content), 0644); err != nil {
			return err
		}
		if _, err := wt.Add(path); err != nil {
			return err
		}
	}
	_, err = wt.Commit("fixture", &git.CommitOptions{
		Author: &object.Signature{Name: "testkit", Email: "testkit@example.com", When: time.Now()},
	})
	return err
}

// SSEServer is a Service that runs the full application on the SSE transport
// in-process, configured from Flags.
type SSEServer struct {
	Flags *pflag.FlagSet

	srv  *http.Server
	done chan error
}

func (s *SSEServer) GetName() string { return "sse-server" }

func (s *SSEServer) Start() (map[string]any, error) {
	started := make(chan *http.Server, 1)
	params := app.DefaultRunParams()
	params.StartSSEServer = func(ms *mcp.Server, m *metrics.Metrics, settings *config.Settings) error {
		srv, err := app.NewSSEServer(ms, m, settings)
		if err != nil {
			return err
		}
		started <- srv
		return srv.ListenAndServe()
	}

	s.done = make(chan error, 1)
	go func() {
		s.done <- app.RunWithDeps(context.Background(), params, s.Flags, "test")
	}()

	select {
	case s.srv = <-started:
	case err := <-s.done:
		return nil, fmt.Errorf("server exited before listening: %w", err)
	case <-time.After(10 * time.Second):
		return nil, errors.New("timed out waiting for server")
	}

	baseURL := "http://" + s.srv.Addr
	if err := waitHealthy(baseURL+"/health", 5*time.Second); err != nil {
		_ = s.Stop()
		return nil, err
	}
	return map[string]any{PropBaseURL: baseURL}, nil
}

func (s *SSEServer) Stop() error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	// Open SSE streams never go idle
	err := s.srv.Shutdown(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		err = s.srv.Close()
	}
	s.srv = nil
	return err
}

func waitHealthy(url string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	return fmt.Errorf("server not healthy after %s", timeout)
}
