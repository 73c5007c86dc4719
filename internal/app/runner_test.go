package app

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sha1n/mcp-repogrep-server/internal/config"
	"github.com/sha1n/mcp-repogrep-server/internal/metrics"
	"github.com/spf13/pflag"
)

// noopValidate is a no-op validation function for tests
func noopValidate(*config.Settings) error {
	return nil
}

func TestRunWithDeps_ErrorCases(t *testing.T) {
	tests := []struct {
		name           string
		params         RunParams
		wantErrContain string
	}{
		{
			name: "LoadSettings error",
			params: RunParams{
				LoadSettings: func(*pflag.FlagSet) (*config.Settings, error) {
					return nil, errors.New("settings error")
				},
				ValidSettings: noopValidate,
			},
			wantErrContain: "failed to load settings",
		},
		{
			name: "ValidSettings error",
			params: RunParams{
				LoadSettings: func(*pflag.FlagSet) (*config.Settings, error) {
					return &config.Settings{Transport: "sse"}, nil
				},
				ValidSettings: func(*config.Settings) error {
					return errors.New("validation error")
				},
			},
			wantErrContain: "invalid configuration",
		},
		{
			name: "CreateServer error",
			params: RunParams{
				LoadSettings: func(*pflag.FlagSet) (*config.Settings, error) {
					return &config.Settings{Transport: "sse"}, nil
				},
				ValidSettings: noopValidate,
				CreateServer: func(*config.Settings) (*mcp.Server, *metrics.Metrics, error) {
					return nil, nil, errors.New("create server error")
				},
			},
			wantErrContain: "create server error",
		},
		{
			name: "StartSSEServer error",
			params: RunParams{
				LoadSettings: func(*pflag.FlagSet) (*config.Settings, error) {
					return &config.Settings{Transport: "sse"}, nil
				},
				ValidSettings: noopValidate,
				CreateServer: func(*config.Settings) (*mcp.Server, *metrics.Metrics, error) {
					return nil, nil, nil
				},
				StartSSEServer: func(*mcp.Server, *metrics.Metrics, *config.Settings) error {
					return errors.New("sse start error")
				},
			},
			wantErrContain: "sse start error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RunWithDeps(context.Background(), tt.params, nil, "test")
			if err == nil {
				t.Fatalf("Expected error containing %q, got nil", tt.wantErrContain)
			}
			if !strings.Contains(err.Error(), tt.wantErrContain) {
				t.Errorf("Expected error containing %q, got %q", tt.wantErrContain, err.Error())
			}
		})
	}
}

func TestRunWithDeps_PassesMetricsToSSEServer(t *testing.T) {
	want := metrics.NewWithRegistry(prometheus.NewRegistry())
	var got *metrics.Metrics
	params := RunParams{
		LoadSettings: func(*pflag.FlagSet) (*config.Settings, error) {
			return &config.Settings{Transport: "sse"}, nil
		},
		ValidSettings: noopValidate,
		CreateServer: func(*config.Settings) (*mcp.Server, *metrics.Metrics, error) {
			return nil, want, nil
		},
		StartSSEServer: func(_ *mcp.Server, m *metrics.Metrics, _ *config.Settings) error {
			got = m
			return nil
		},
	}

	if err := RunWithDeps(context.Background(), params, nil, "test"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != want {
		t.Error("Expected metrics to be passed to the SSE server")
	}
}

func TestDefaultRunParams(t *testing.T) {
	params := DefaultRunParams()

	if params.LoadSettings == nil {
		t.Error("LoadSettings is nil")
	}
	if params.ValidSettings == nil {
		t.Error("ValidSettings is nil")
	}
	if params.StartSSEServer == nil {
		t.Error("StartSSEServer is nil")
	}
	if params.CreateServer == nil {
		t.Error("CreateServer is nil")
	}
}

func TestRunWithDeps_StdioWithDefaultTransport(t *testing.T) {
	params := RunParams{
		LoadSettings: func(*pflag.FlagSet) (*config.Settings, error) {
			return &config.Settings{Transport: "stdio"}, nil
		},
		ValidSettings: noopValidate,
		CreateServer: func(*config.Settings) (*mcp.Server, *metrics.Metrics, error) {
			impl := &mcp.Implementation{Name: "test", Version: "1.0"}
			server := mcp.NewServer(impl, nil)
			return server, nil, nil
		},
		CustomIOTransport: nil,
	}

	// Use a cancelled context to avoid hanging on stdio
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RunWithDeps(ctx, params, nil, "test")

	// We expect an error because the context is cancelled
	if err == nil {
		t.Log("No error returned (unexpected)")
	}
}

func TestRunWithDeps_StdioWithCustomTransport(t *testing.T) {
	transportUsed := false
	customTransport := &mockTransport{
		connectCalled: &transportUsed,
	}

	params := RunParams{
		LoadSettings: func(*pflag.FlagSet) (*config.Settings, error) {
			return &config.Settings{Transport: "stdio"}, nil
		},
		ValidSettings: noopValidate,
		CreateServer: func(*config.Settings) (*mcp.Server, *metrics.Metrics, error) {
			impl := &mcp.Implementation{Name: "test", Version: "1.0"}
			server := mcp.NewServer(impl, nil)
			return server, nil, nil
		},
		CustomIOTransport: customTransport,
	}

	// Use a cancelled context to avoid hanging
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_ = RunWithDeps(ctx, params, nil, "test")

	if !transportUsed {
		t.Error("Custom transport Connect was not called")
	}
}

func TestCreateMCPServer(t *testing.T) {
	settings := testSettings(t, config.TransportStdio)

	server, m, err := CreateMCPServer(settings)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if server == nil {
		t.Error("Expected server to be created")
	}
	if m != nil {
		t.Error("Expected no metrics when disabled")
	}
}

func TestCreateMCPServer_Metrics(t *testing.T) {
	tests := []struct {
		name        string
		transport   string
		enabled     bool
		wantMetrics bool
	}{
		{name: "sse enabled", transport: config.TransportSSE, enabled: true, wantMetrics: true},
		{name: "sse disabled", transport: config.TransportSSE, enabled: false, wantMetrics: false},
		{name: "stdio enabled", transport: config.TransportStdio, enabled: true, wantMetrics: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := testSettings(t, tt.transport)
			settings.Metrics.Enabled = tt.enabled

			_, m, err := CreateMCPServer(settings)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if (m != nil) != tt.wantMetrics {
				t.Errorf("Expected metrics=%v, got %v", tt.wantMetrics, m != nil)
			}
		})
	}
}

func TestCreateMCPServer_InvalidRoot(t *testing.T) {
	settings := testSettings(t, config.TransportStdio)
	settings.Search.RootDir = filepath.Join(settings.Search.RootDir, "missing")

	_, _, err := CreateMCPServer(settings)
	if err == nil || !strings.Contains(err.Error(), "failed to create search service") {
		t.Errorf("Expected search service error, got %v", err)
	}
}

func testSettings(t *testing.T, transport string) *config.Settings {
	t.Helper()
	return &config.Settings{
		Transport: transport,
		Search: config.SearchSettings{
			RootDir:        t.TempDir(),
			ContextLines:   3,
			MaxParallel:    4,
			CommandTimeout: 30 * time.Second,
			DefaultCount:   20,
			MaxCount:       200,
			MaxBlobSize:    256 * 1024,
		},
	}
}

// mockTransport implements mcp.Transport for testing
type mockTransport struct {
	connectCalled *bool
}

func (m *mockTransport) Connect(ctx context.Context) (mcp.Connection, error) {
	if m.connectCalled != nil {
		*m.connectCalled = true
	}
	return nil, errors.New("mock transport - no real connection")
}
