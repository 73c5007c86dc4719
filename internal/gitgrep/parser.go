package gitgrep

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sha1n/mcp-repogrep-server/internal/domain"
)

const (
	// groupSeparator is emitted by git grep between non-adjacent context blocks.
	groupSeparator = "--"

	// binaryFilePrefix starts the notice git grep prints for matching binary files.
	binaryFilePrefix = "Binary file"

	fieldSeparator = "\x00"
)

// ErrMalformedOutput is matched by every MalformedOutputError.
var ErrMalformedOutput = errors.New("malformed search output")

// MalformedOutputError reports a record that does not have the
// <file-spec>NUL<line-number>NUL<text> shape.
type MalformedOutputError struct {
	Record string
	Reason string
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("%s: %s: %q", ErrMalformedOutput, e.Reason, e.Record)
}

func (e *MalformedOutputError) Is(target error) bool {
	return target == ErrMalformedOutput
}

// ParseGrepOutput converts the output of one git grep invocation into
// file groups. Groups appear in the order their file was first seen, and
// lines keep the order git emitted them, context lines included.
//
// Lines equal to "--" and lines starting with "Binary file" are always
// skipped, even if they were real content.
func ParseGrepOutput(term string, output []byte) ([]domain.FileMatchGroup, error) {
	return parseGrepOutput(term, domain.ObjectHEAD, string(output))
}

func parseGrepOutput(term, revision, output string) ([]domain.FileMatchGroup, error) {
	var groups []domain.FileMatchGroup
	index := make(map[string]int)

	for _, record := range strings.Split(output, "\n") {
		if record == "" || record == groupSeparator || strings.HasPrefix(record, binaryFilePrefix) {
			continue
		}

		fields := strings.SplitN(record, fieldSeparator, 3)
		if len(fields) != 3 {
			return nil, &MalformedOutputError{Record: record, Reason: "expected 3 NUL-separated fields"}
		}

		filePath, ok := filePathFromSpec(fields[0], revision)
		if !ok {
			return nil, &MalformedOutputError{Record: record, Reason: "file spec has no path"}
		}

		number, err := strconv.Atoi(fields[1])
		if err != nil || number < 1 {
			return nil, &MalformedOutputError{Record: record, Reason: "line number is not a positive integer"}
		}

		line := domain.MatchLine{Number: number, Text: fields[2]}
		if i, seen := index[filePath]; seen {
			groups[i].Lines = append(groups[i].Lines, line)
			continue
		}
		index[filePath] = len(groups)
		groups = append(groups, domain.FileMatchGroup{
			Term:     term,
			FilePath: filePath,
			Lines:    []domain.MatchLine{line},
		})
	}

	return groups, nil
}

// filePathFromSpec extracts the path from a "<revision>:<path>" file spec.
// The searched revision is stripped from either end so paths containing
// colons survive; anything else falls back to the text after the first colon.
func filePathFromSpec(spec, revision string) (string, bool) {
	if path, ok := strings.CutPrefix(spec, revision+":"); ok && path != "" {
		return path, true
	}
	if path, ok := strings.CutSuffix(spec, ":"+revision); ok && path != "" {
		return path, true
	}
	_, path, ok := strings.Cut(spec, ":")
	if !ok || path == "" {
		return "", false
	}
	return path, true
}
