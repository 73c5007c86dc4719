package gitgrep

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/mcp-repogrep-server/internal/domain"
)

// SearchArgument defines search parameters.
type SearchArgument struct {
	Query      string   `json:"query,omitempty" jsonschema:"Whitespace separated search terms. Each term is matched literally and case-insensitively"`
	Terms      []string `json:"terms,omitempty" jsonschema:"Search terms that may contain spaces but not line breaks. Appended after the terms of query"`
	Repository string   `json:"repository,omitempty" jsonschema:"Restrict the search to one repository (directory name under the search root)"`
	Skip       int      `json:"skip,omitempty" jsonschema:"Number of results to skip"`
	Count      int      `json:"count,omitempty" jsonschema:"Maximum number of results to return"`
}

// SearchHandler handles the search MCP tool.
type SearchHandler struct {
	service *Service
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(service *Service) *SearchHandler {
	return &SearchHandler{
		service: service,
	}
}

// Handle executes the search and returns formatted results.
func (h *SearchHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args SearchArgument) (*mcp.CallToolResult, any, error) {
	terms := append(strings.Fields(args.Query), args.Terms...)
	query, err := domain.NewQuery(terms...)
	if errors.Is(err, domain.ErrMultilineTerm) {
		return errorResult("Search terms cannot contain line breaks"), nil, nil
	}
	if err != nil {
		return errorResult("Query cannot be empty"), nil, nil
	}

	result, err := h.service.Search(ctx, Request{
		Query:      query,
		Repository: strings.TrimSpace(args.Repository),
		Skip:       max(args.Skip, 0),
		Count:      h.pageSize(args.Count),
	})
	if err != nil {
		if errors.Is(err, ErrRepositoryNotFound) {
			return errorResult(fmt.Sprintf("Repository not found: %s", args.Repository)), nil, nil
		}
		return errorResult(fmt.Sprintf("Search failed: %s", err)), nil, nil
	}

	return h.formatResults(result, query), nil, nil
}

// pageSize applies the configured default and upper bound to a requested count.
func (h *SearchHandler) pageSize(count int) int {
	settings := h.service.GetSettings()
	if count <= 0 {
		return settings.DefaultCount
	}
	if settings.MaxCount > 0 && count > settings.MaxCount {
		return settings.MaxCount
	}
	return count
}

// formatResults renders a result page for the MCP response.
func (h *SearchHandler) formatResults(result *Result, query domain.Query) *mcp.CallToolResult {
	queryStr := strings.Join(query.Terms, " ")
	if result.Total == 0 {
		return textResult(fmt.Sprintf("No results found for query: %s", queryStr))
	}
	if len(result.Records) == 0 {
		return textResult(fmt.Sprintf("Found %d results for '%s', none at skip=%d", result.Total, queryStr, result.Skip))
	}

	var sb strings.Builder
	first := result.Skip + 1
	last := result.Skip + len(result.Records)
	sb.WriteString(fmt.Sprintf("Found %d results for '%s' (showing %d-%d):\n\n", result.Total, queryStr, first, last))

	for i, record := range result.Records {
		sb.WriteString(fmt.Sprintf("### %d. %s\n", first+i, record.Label))
		sb.WriteString(fmt.Sprintf("**Ref**: %s/%s repository=%s object=%s path=%s\n\n",
			record.Controller, record.Action, record.Route.Repository, record.Route.Object, record.Route.Path))

		sb.WriteString("```\n")
		for _, line := range record.Lines {
			sb.WriteString(fmt.Sprintf("%d: %s\n", line.Number, line.Text))
		}
		sb.WriteString("```\n\n")
	}

	if remaining := result.Total - last; remaining > 0 {
		sb.WriteString(fmt.Sprintf("... and %d more results (use skip=%d)\n", remaining, last))
	}

	return textResult(sb.String())
}

// GetToolDefinition returns the MCP tool definition.
func (h *SearchHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "search_code",
		Description: "Search the committed (HEAD) state of git repositories for literal, case-insensitive terms. Returns matching lines with surrounding context, grouped by file",
	}
}

// RegisterSearchTool registers the search tool with an MCP server.
func RegisterSearchTool(server *mcp.Server, service *Service) {
	handler := NewSearchHandler(service)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func errorResult(text string) *mcp.CallToolResult {
	result := textResult(text)
	result.IsError = true
	return result
}
