package mcp

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/mcp-repogrep-server/internal/config"
	"github.com/sha1n/mcp-repogrep-server/internal/gitgrep"
)

func newSearchService(t *testing.T) *gitgrep.Service {
	t.Helper()
	svc, err := gitgrep.NewService(&config.SearchSettings{
		RootDir:        t.TempDir(),
		ContextLines:   3,
		MaxParallel:    4,
		CommandTimeout: 30 * time.Second,
		DefaultCount:   20,
		MaxCount:       200,
		MaxBlobSize:    256 * 1024,
	}, nil)
	if err != nil {
		t.Fatalf("Failed to create search service: %v", err)
	}
	return svc
}

// connect opens an in-memory client session to server.
func connect(t *testing.T, server *mcp.Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	serverSession, err := server.Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("Failed to connect server: %v", err)
	}
	t.Cleanup(func() { _ = serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("Failed to connect client: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func toolNames(t *testing.T, session *mcp.ClientSession) []string {
	t.Helper()
	result, err := session.ListTools(context.Background(), &mcp.ListToolsParams{})
	if err != nil {
		t.Fatalf("ListTools failed: %v", err)
	}
	names := make([]string, 0, len(result.Tools))
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
	}
	slices.Sort(names)
	return names
}

func TestCreateServer(t *testing.T) {
	server := CreateServer(ServerConfig{Name: "test-server", Version: "1.0.0"})
	if server == nil {
		t.Fatal("Expected server to be created")
	}
}

func TestCreateServer_EmptyConfig(t *testing.T) {
	if server := CreateServer(ServerConfig{}); server == nil {
		t.Fatal("Expected server to be created even with empty config")
	}
}

func TestCreateServer_WithSearchService(t *testing.T) {
	server := CreateServer(ServerConfig{
		Name:      "repogrep-mcp",
		Version:   "1.0.0",
		SearchSvc: newSearchService(t),
	})

	names := toolNames(t, connect(t, server))
	want := []string{"search_code", "view_blob"}
	if !slices.Equal(names, want) {
		t.Errorf("Expected tools %v, got %v", want, names)
	}
}

func TestCreateServer_SearchEmptyRoot(t *testing.T) {
	server := CreateServer(ServerConfig{
		Name:      "repogrep-mcp",
		Version:   "1.0.0",
		SearchSvc: newSearchService(t),
	})
	session := connect(t, server)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "search_code",
		Arguments: map[string]any{"query": "anything"},
	})
	if err != nil {
		t.Fatalf("CallTool failed: %v", err)
	}
	if result.IsError {
		t.Fatal("Expected a successful result")
	}
	text, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("Expected text content, got %T", result.Content[0])
	}
	if text.Text != "No results found for query: anything" {
		t.Errorf("Unexpected output %q", text.Text)
	}
}
