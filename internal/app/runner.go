package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/mcp-repogrep-server/internal/config"
	"github.com/sha1n/mcp-repogrep-server/internal/gitgrep"
	"github.com/sha1n/mcp-repogrep-server/internal/metrics"
	mcputil "github.com/sha1n/mcp-repogrep-server/internal/mcp"
	"github.com/spf13/pflag"
)

// RunParams contains dependencies for the run function
type RunParams struct {
	LoadSettings      func(*pflag.FlagSet) (*config.Settings, error)
	ValidSettings     func(*config.Settings) error
	StartSSEServer    func(*mcp.Server, *metrics.Metrics, *config.Settings) error
	CreateServer      func(*config.Settings) (*mcp.Server, *metrics.Metrics, error)
	CustomIOTransport mcp.Transport // Optional: for testing with custom IO
}

// DefaultRunParams returns production dependencies
func DefaultRunParams() RunParams {
	return RunParams{
		LoadSettings:   config.LoadSettingsWithFlags,
		ValidSettings:  config.ValidateSettings,
		StartSSEServer: StartSSEServer,
		CreateServer:   CreateMCPServer,
	}
}

// RunWithDeps executes the server with the provided dependencies
func RunWithDeps(ctx context.Context, params RunParams, flags *pflag.FlagSet, version string) error {
	settings, err := params.LoadSettings(flags)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	if err := params.ValidSettings(settings); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Configure logging - always use stderr so stdio transport output stays clean
	handler := slog.NewTextHandler(os.Stderr, nil)
	slog.SetDefault(slog.New(handler))

	slog.Info("Starting repogrep MCP server", "version", version)
	config.Log(settings)

	mcpServer, m, err := params.CreateServer(settings)
	if err != nil {
		return err
	}

	if settings.Transport == config.TransportStdio {
		// Use custom transport if provided (for testing), otherwise use stdio
		transport := params.CustomIOTransport
		if transport == nil {
			transport = &mcp.StdioTransport{}
		}
		return mcpServer.Run(ctx, transport)
	}

	slog.Info("Starting SSE server", "host", settings.Host, "port", settings.Port)
	return params.StartSSEServer(mcpServer, m, settings)
}

// CreateMCPServer creates the MCP server with the search tools registered.
// Metrics are only collected when they can be served, i.e. on the SSE transport.
func CreateMCPServer(settings *config.Settings) (*mcp.Server, *metrics.Metrics, error) {
	var m *metrics.Metrics
	if settings.Metrics.Enabled && settings.Transport == config.TransportSSE {
		m = metrics.New()
	}

	svc, err := gitgrep.NewService(&settings.Search, m)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create search service: %w", err)
	}

	server := mcputil.CreateServer(mcputil.ServerConfig{
		Name:      "repogrep-mcp",
		Version:   "1.0.0",
		SearchSvc: svc,
	})

	return server, m, nil
}
