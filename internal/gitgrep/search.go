package gitgrep

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sha1n/mcp-repogrep-server/internal/domain"
	"github.com/sha1n/mcp-repogrep-server/internal/metrics"
)

// DefaultMaxParallel is the default number of repositories searched at once.
const DefaultMaxParallel = 4

// LabelMode controls how result labels are built.
type LabelMode int

const (
	// LabelPath labels a result with "/<path>".
	LabelPath LabelMode = iota
	// LabelRepositoryPath labels a result with "<repository> /<path>".
	// Used when results from several repositories are mixed.
	LabelRepositoryPath
)

// Searcher runs git grep over repositories and assembles result records.
type Searcher struct {
	git         *GitClient
	discoverer  Discoverer
	metrics     *metrics.Metrics
	maxParallel int
}

// NewSearcher creates a Searcher. maxParallel below 1 means DefaultMaxParallel.
func NewSearcher(git *GitClient, discoverer Discoverer, m *metrics.Metrics, maxParallel int) *Searcher {
	if maxParallel < 1 {
		maxParallel = DefaultMaxParallel
	}
	return &Searcher{
		git:         git,
		discoverer:  discoverer,
		metrics:     m,
		maxParallel: maxParallel,
	}
}

// SearchRepository searches a single repository for every term of q, in
// term order. A file matched by two terms yields two records. A term that
// spans lines matches nothing and git is not run for it.
// The first failing git invocation aborts the search.
func (s *Searcher) SearchRepository(ctx context.Context, q domain.Query, repo domain.RepositoryHandle, mode LabelMode) ([]domain.SearchResultRecord, error) {
	var results []domain.SearchResultRecord
	for _, term := range q.Terms {
		// git grep treats each line of a pattern as a separate pattern
		if strings.ContainsAny(term, "\r\n") {
			continue
		}
		groups, err := s.grepTerm(ctx, repo, term)
		if err != nil {
			return nil, fmt.Errorf("search %s for %s: %w", repo.Name, QuoteArg(term), err)
		}
		for _, group := range groups {
			results = append(results, newRecord(repo, group, mode))
		}
	}
	return results, nil
}

// SearchRoot searches every repository directly under root and concatenates
// the results in discovery order, labelling each with its repository.
// Repositories are searched concurrently. Any failure fails the whole
// operation and no partial results are returned; this includes a repository
// without commits, where git grep cannot resolve HEAD.
func (s *Searcher) SearchRoot(ctx context.Context, q domain.Query, root string) ([]domain.SearchResultRecord, error) {
	repos, err := s.discoverer.Discover(ctx, root)
	if err != nil {
		return nil, err
	}
	if len(repos) == 0 {
		return []domain.SearchResultRecord{}, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Use semaphore to limit parallel searches
	sem := make(chan struct{}, s.maxParallel)
	var wg sync.WaitGroup
	perRepo := make([][]domain.SearchResultRecord, len(repos))

	var once sync.Once
	var firstErr error

	for i, repo := range repos {
		wg.Add(1)
		go func(i int, repo domain.RepositoryHandle) {
			defer wg.Done()
			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			if ctx.Err() != nil {
				return
			}

			records, err := s.SearchRepository(ctx, q, repo, LabelRepositoryPath)
			if err != nil {
				once.Do(func() {
					firstErr = err
					cancel()
				})
				return
			}
			perRepo[i] = records
		}(i, repo)
	}

	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	// Parent context canceled before any repository failed
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	total := 0
	for _, records := range perRepo {
		total += len(records)
	}
	results := make([]domain.SearchResultRecord, 0, total)
	for _, records := range perRepo {
		results = append(results, records...)
	}
	return results, nil
}

func (s *Searcher) grepTerm(ctx context.Context, repo domain.RepositoryHandle, term string) ([]domain.FileMatchGroup, error) {
	start := time.Now()
	output, err := s.git.Grep(ctx, repo.Path, term)
	elapsed := time.Since(start)

	if err != nil {
		s.metrics.RecordGrep(metrics.OutcomeError, elapsed)
		return nil, err
	}
	if len(output) == 0 {
		s.metrics.RecordGrep(metrics.OutcomeNoMatch, elapsed)
		return nil, nil
	}
	s.metrics.RecordGrep(metrics.OutcomeOK, elapsed)

	groups, err := ParseGrepOutput(term, output)
	if err != nil {
		return nil, err
	}
	slog.Debug("git grep finished", "repository", repo.Name, "term", term, "files", len(groups), "elapsed", elapsed)
	return groups, nil
}

func newRecord(repo domain.RepositoryHandle, group domain.FileMatchGroup, mode LabelMode) domain.SearchResultRecord {
	label := "/" + group.FilePath
	if mode == LabelRepositoryPath {
		label = repo.Name + " " + label
	}
	return domain.SearchResultRecord{
		Label:      label,
		Action:     domain.ActionViewBlob,
		Controller: domain.ControllerBrowse,
		Route: domain.RouteDescriptor{
			Repository: repo.Name,
			Object:     domain.ObjectHEAD,
			Path:       group.FilePath,
		},
		Lines: group.Lines,
	}
}
