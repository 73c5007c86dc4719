package testkit

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
)

type mockService struct {
	name       string
	startProps map[string]any
	startErr   error
	stopErr    error
	log        *[]string
}

func (m *mockService) Start() (map[string]any, error) {
	if m.log != nil {
		*m.log = append(*m.log, "start "+m.name)
	}
	return m.startProps, m.startErr
}

func (m *mockService) Stop() error {
	if m.log != nil {
		*m.log = append(*m.log, "stop "+m.name)
	}
	return m.stopErr
}

func (m *mockService) GetName() string {
	return m.name
}

func TestTestEnv_StartMergesProperties(t *testing.T) {
	env := NewTestEnv(
		&mockService{name: "a", startProps: map[string]any{"x": 1, "shared": "a"}},
		&mockService{name: "b", startProps: map[string]any{"y": 2, "shared": "b"}},
	)

	props, err := env.Start()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if props["x"] != 1 || props["y"] != 2 {
		t.Errorf("Expected merged properties, got %v", props)
	}
	if props["shared"] != "b" {
		t.Errorf("Expected later service to win, got %v", props["shared"])
	}
	if v, ok := env.GetContext().GetProperty("y"); !ok || v != 2 {
		t.Errorf("GetProperty(y) = %v, %v", v, ok)
	}
}

func TestTestEnv_StopOrder(t *testing.T) {
	var log []string
	env := NewTestEnv(
		&mockService{name: "a", log: &log},
		&mockService{name: "b", log: &log},
	)

	if _, err := env.Start(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := env.Stop(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	want := []string{"start a", "start b", "stop b", "stop a"}
	if len(log) != len(want) {
		t.Fatalf("Expected %v, got %v", want, log)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Errorf("log[%d] = %q, want %q", i, log[i], want[i])
		}
	}
}

func TestTestEnv_StartFailureStopsOnlyStartedServices(t *testing.T) {
	var log []string
	startErr := errors.New("boom")
	env := NewTestEnv(
		&mockService{name: "a", log: &log},
		&mockService{name: "b", log: &log, startErr: startErr},
		&mockService{name: "c", log: &log},
	)

	if _, err := env.Start(); !errors.Is(err, startErr) {
		t.Fatalf("Expected start error, got %v", err)
	}
	_ = env.Stop()

	want := []string{"start a", "start b", "stop a"}
	if len(log) != len(want) {
		t.Fatalf("Expected %v, got %v", want, log)
	}
}

func TestTestEnv_StopJoinsErrors(t *testing.T) {
	errA, errB := errors.New("a failed"), errors.New("b failed")
	env := NewTestEnv(&mockService{name: "a", stopErr: errA}, &mockService{name: "b", stopErr: errB})

	if _, err := env.Start(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	err := env.Stop()
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("Expected both stop errors, got %v", err)
	}
}

func TestGetFreePort(t *testing.T) {
	port, err := GetFreePort()
	if err != nil {
		t.Fatalf("GetFreePort failed: %v", err)
	}
	if port <= 0 || port > 65535 {
		t.Errorf("Invalid port %d", port)
	}
}

func TestNewTestFlags(t *testing.T) {
	flags := NewTestFlags(t, &FlagOptions{Port: 9999, RootDir: "/srv/git", MetricsEnabled: true})

	checks := map[string]string{
		"port":            "9999",
		"transport":       "sse",
		"auth-type":       "none",
		"host":            "localhost",
		"root-dir":        "/srv/git",
		"metrics-enabled": "true",
	}
	for name, want := range checks {
		f := flags.Lookup(name)
		if f == nil {
			t.Errorf("Flag %q not registered", name)
			continue
		}
		if got := f.Value.String(); got != want {
			t.Errorf("Flag %q = %q, want %q", name, got, want)
		}
		if !f.Changed {
			t.Errorf("Flag %q should be marked as changed", name)
		}
	}
}

func TestNewTestFlags_Defaults(t *testing.T) {
	flags := NewTestFlags(t, nil)

	if port, _ := flags.GetInt("port"); port == 0 {
		t.Error("Expected a free port to be assigned")
	}
	if f := flags.Lookup("root-dir"); f.Changed {
		t.Error("Expected root-dir to be left unset")
	}
}

func TestRepoRoot(t *testing.T) {
	r := &RepoRoot{Repos: map[string]map[string]string{
		"alpha": {"a.txt": "hello\n", "sub/b.txt": "world\n"},
		"empty": nil,
	}}

	props, err := r.Start()
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	root, ok := props[PropRootDir].(string)
	if !ok || root == "" {
		t.Fatalf("Expected %s property, got %v", PropRootDir, props)
	}

	repo, err := git.PlainOpen(filepath.Join(root, "alpha"))
	if err != nil {
		t.Fatalf("Failed to open fixture repository: %v", err)
	}
	head, err := repo.Head()
	if err != nil {
		t.Fatalf("Expected a commit at HEAD: %v", err)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := commit.File("sub/b.txt"); err != nil {
		t.Errorf("Expected sub/b.txt to be committed: %v", err)
	}

	if _, err := git.PlainOpen(filepath.Join(root, "empty")); err != nil {
		t.Errorf("Expected empty repository to exist: %v", err)
	}

	if err := r.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if _, err := os.Stat(root); !os.IsNotExist(err) {
		t.Error("Expected root to be removed")
	}
}
