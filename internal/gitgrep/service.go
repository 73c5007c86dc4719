package gitgrep

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sha1n/mcp-repogrep-server/internal/config"
	"github.com/sha1n/mcp-repogrep-server/internal/domain"
	"github.com/sha1n/mcp-repogrep-server/internal/metrics"
)

// Request describes one search operation.
type Request struct {
	Query domain.Query
	// Repository restricts the search to one repository under the root.
	// Empty means every repository under the root.
	Repository string
	Skip       int
	Count      int
}

// Result is a paginated search result.
type Result struct {
	Records []domain.SearchResultRecord
	// Total is the number of records before pagination.
	Total int
	Skip  int
}

// Service coordinates discovery, search, and pagination over a search root.
type Service struct {
	settings   *config.SearchSettings
	discoverer Discoverer
	searcher   *Searcher
	metrics    *metrics.Metrics
}

// NewService creates a search service rooted at settings.RootDir.
// m may be nil when metrics are disabled.
func NewService(settings *config.SearchSettings, m *metrics.Metrics) (*Service, error) {
	if settings == nil {
		return nil, fmt.Errorf("settings cannot be nil")
	}

	info, err := os.Stat(settings.RootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to access search root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("search root is not a directory: %s", settings.RootDir)
	}

	s := &Service{
		settings:   settings,
		discoverer: NewDirDiscoverer(),
		metrics:    m,
	}
	s.SetGitClient(NewGitClient(
		WithContextLines(settings.ContextLines),
		WithCommandTimeout(settings.CommandTimeout),
	))
	return s, nil
}

// SetGitClient allows injecting a custom git client for testing.
func (s *Service) SetGitClient(client *GitClient) {
	s.searcher = NewSearcher(client, s.discoverer, s.metrics, s.settings.MaxParallel)
}

// GetSettings returns the service settings.
func (s *Service) GetSettings() *config.SearchSettings {
	return s.settings
}

// Repositories lists the repositories under the search root.
func (s *Service) Repositories(ctx context.Context) ([]domain.RepositoryHandle, error) {
	return s.discoverer.Discover(ctx, s.settings.RootDir)
}

// Pending is the eventual outcome of a dispatched search.
type Pending struct {
	done   chan struct{}
	result *Result
	err    error
}

// Done is closed once the search has finished.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the search finishes or ctx is done.
func (p *Pending) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-p.done:
		return p.result, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Dispatch runs the search on its own goroutine and returns immediately.
// The search runs to completion before its result is published; there are
// no partial results.
func (s *Service) Dispatch(ctx context.Context, req Request) *Pending {
	p := &Pending{done: make(chan struct{})}
	go func() {
		defer close(p.done)
		p.result, p.err = s.run(ctx, req)
	}()
	return p
}

// Search runs a search and waits for its result.
func (s *Service) Search(ctx context.Context, req Request) (*Result, error) {
	return s.Dispatch(ctx, req).Wait(ctx)
}

func (s *Service) run(ctx context.Context, req Request) (*Result, error) {
	if len(req.Query.Terms) == 0 {
		return nil, domain.ErrEmptyQuery
	}

	opID := uuid.NewString()
	scope := metrics.ScopeRoot
	if req.Repository != "" {
		scope = metrics.ScopeRepository
	}
	logger := slog.With("search_id", opID, "scope", scope)
	logger.Info("Search started", "terms", len(req.Query.Terms), "repository", req.Repository)

	start := time.Now()
	records, err := s.searchAll(ctx, req)
	elapsed := time.Since(start)
	s.metrics.RecordSearch(scope, len(records), elapsed, err)

	if err != nil {
		logger.Error("Search failed", "error", err, "elapsed", elapsed)
		return nil, err
	}

	page := Paginate(records, req.Skip, req.Count)
	logger.Info("Search complete", "total", len(records), "returned", len(page), "elapsed", elapsed)

	return &Result{
		Records: page,
		Total:   len(records),
		Skip:    max(req.Skip, 0),
	}, nil
}

func (s *Service) searchAll(ctx context.Context, req Request) ([]domain.SearchResultRecord, error) {
	if req.Repository == "" {
		return s.searcher.SearchRoot(ctx, req.Query, s.settings.RootDir)
	}

	repo, err := s.discoverer.Lookup(ctx, s.settings.RootDir, req.Repository)
	if err != nil {
		return nil, err
	}
	return s.searcher.SearchRepository(ctx, req.Query, repo, LabelPath)
}
