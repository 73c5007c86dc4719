package mcp

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/mcp-repogrep-server/internal/gitgrep"
)

// ServerConfig contains configuration for creating an MCP server
type ServerConfig struct {
	Name      string
	Version   string
	SearchSvc *gitgrep.Service // nil registers no tools
}

// CreateServer creates the MCP server and registers the search tools
func CreateServer(cfg ServerConfig) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	if cfg.SearchSvc != nil {
		gitgrep.RegisterSearchTool(s, cfg.SearchSvc)
		gitgrep.RegisterViewBlobTool(s, cfg.SearchSvc)
	}

	return s
}
