package gitgrep

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/mcp-repogrep-server/internal/domain"
)

// ViewBlobArgument defines blob view parameters. The fields mirror the
// reference printed with every search result.
type ViewBlobArgument struct {
	Repository string `json:"repository" jsonschema:"Repository name as shown in search results"`
	Object     string `json:"object,omitempty" jsonschema:"Commit-ish to read from, defaults to HEAD"`
	Path       string `json:"path" jsonschema:"File path relative to the repository root"`
}

// ViewBlobHandler handles the view_blob MCP tool.
type ViewBlobHandler struct {
	service *Service
}

// NewViewBlobHandler creates a new view_blob handler.
func NewViewBlobHandler(service *Service) *ViewBlobHandler {
	return &ViewBlobHandler{
		service: service,
	}
}

// Handle reads a blob and returns its formatted content.
func (h *ViewBlobHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args ViewBlobArgument) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.Repository) == "" {
		return errorResult("Repository cannot be empty"), nil, nil
	}
	if strings.TrimSpace(args.Path) == "" {
		return errorResult("Path cannot be empty"), nil, nil
	}

	blob, err := h.service.ReadBlob(ctx, domain.RouteDescriptor{
		Repository: strings.TrimSpace(args.Repository),
		Object:     strings.TrimSpace(args.Object),
		Path:       args.Path,
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrRepositoryNotFound):
		return errorResult(fmt.Sprintf("Repository not found: %s", args.Repository)), nil, nil
	case errors.Is(err, ErrBlobNotFound):
		return errorResult(fmt.Sprintf("File not found: %s", args.Path)), nil, nil
	case errors.Is(err, ErrBinaryBlob):
		return errorResult("Cannot display binary file content"), nil, nil
	case errors.Is(err, ErrInvalidPath), errors.Is(err, ErrBlobTooLarge):
		return errorResult(err.Error()), nil, nil
	default:
		return errorResult(fmt.Sprintf("Error reading file: %s", err)), nil, nil
	}

	lang := extensionToLanguage(strings.TrimPrefix(path.Ext(blob.Route.Path), "."))
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("**File**: `%s`\n", blob.Route.Path))
	sb.WriteString(fmt.Sprintf("**Repository**: %s\n", blob.Route.Repository))
	sb.WriteString(fmt.Sprintf("**Object**: %s\n", blob.Route.Object))
	sb.WriteString(fmt.Sprintf("**Size**: %d bytes\n\n", blob.Size))
	sb.WriteString(fmt.Sprintf("```%s\n%s\n```", lang, blob.Content))

	return textResult(sb.String()), nil, nil
}

// extensionToLanguage maps a file extension to a code block language hint.
func extensionToLanguage(ext string) string {
	ext = strings.ToLower(ext)
	switch ext {
	case "py":
		return "python"
	case "js":
		return "javascript"
	case "ts":
		return "typescript"
	case "kt":
		return "kotlin"
	case "rs":
		return "rust"
	case "cc", "hpp":
		return "cpp"
	case "h":
		return "c"
	case "cs":
		return "csharp"
	case "rb":
		return "ruby"
	case "sh":
		return "bash"
	case "ps1":
		return "powershell"
	case "htm":
		return "html"
	case "yml":
		return "yaml"
	case "md":
		return "markdown"
	case "txt":
		return "text"
	case "proto":
		return "protobuf"
	case "gql":
		return "graphql"
	case "tf":
		return "terraform"
	}
	return ext
}

// GetToolDefinition returns the MCP tool definition.
func (h *ViewBlobHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "view_blob",
		Description: "Read a file from a repository at a commit (HEAD by default), using the reference printed with a search_code result",
	}
}

// RegisterViewBlobTool registers the view_blob tool with an MCP server.
func RegisterViewBlobTool(server *mcp.Server, service *Service) {
	handler := NewViewBlobHandler(service)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}
