package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyQuery is returned when a query has no usable search terms.
var ErrEmptyQuery = errors.New("query must contain at least one search term")

// ErrMultilineTerm is returned when a search term spans more than one line.
// Matching is line based, so such a term could never match.
var ErrMultilineTerm = errors.New("search term cannot contain a line break")

// Navigation constants used to build a link back to a matched file.
const (
	// ObjectHEAD is the object reference every search result points at.
	ObjectHEAD = "HEAD"

	ActionViewBlob   = "ViewBlob"
	ControllerBrowse = "Browse"
)

// Query is an ordered list of literal search terms.
// Term order determines the order of results within a repository.
type Query struct {
	Terms []string
}

// NewQuery builds a query from the given terms, dropping blank ones.
// Order is preserved and duplicates are kept.
func NewQuery(terms ...string) (Query, error) {
	kept := make([]string, 0, len(terms))
	for _, term := range terms {
		if strings.TrimSpace(term) == "" {
			continue
		}
		if strings.ContainsAny(term, "\r\n") {
			return Query{}, fmt.Errorf("%w: %q", ErrMultilineTerm, term)
		}
		kept = append(kept, term)
	}
	if len(kept) == 0 {
		return Query{}, ErrEmptyQuery
	}
	return Query{Terms: kept}, nil
}

// ParseQuery splits free text on whitespace into a query.
func ParseQuery(text string) (Query, error) {
	return NewQuery(strings.Fields(text)...)
}

// RepositoryHandle identifies a git working tree.
// Handles are only produced by repository discovery.
type RepositoryHandle struct {
	// Name is the display identifier, e.g. the directory name under the search root.
	Name string
	// Path is the absolute path to the working tree root.
	Path string
}

// MatchLine is one line of search tool output, either a hit or a context line.
type MatchLine struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// FileMatchGroup holds the lines of a single file matched by a single term,
// in the order the search tool emitted them.
type FileMatchGroup struct {
	Term     string
	FilePath string
	Lines    []MatchLine
}

// RouteDescriptor is what the link layer needs to navigate to a matched file.
type RouteDescriptor struct {
	Repository string `json:"repository"`
	Object     string `json:"object"`
	Path       string `json:"path"`
}

// SearchResultRecord is a single (term, file) result ready for rendering.
type SearchResultRecord struct {
	Label      string          `json:"label"`
	Action     string          `json:"action"`
	Controller string          `json:"controller"`
	Route      RouteDescriptor `json:"route"`
	Lines      []MatchLine     `json:"lines"`
}
