// Package diff segments a unified diff into addressable, line-numbered
// hunks per file.
package diff

import (
	"context"
	"strings"

	godiff "github.com/sourcegraph/go-diff/diff"

	"github.com/reviewpilot/reviewpilot/internal/domain"
	"github.com/reviewpilot/reviewpilot/internal/observability"
)

// Segmenter parses raw unified-diff text into domain.DiffHunk values.
// Malformed file segments are skipped with a warning; partial results are
// always preferred over an empty review.
type Segmenter struct {
	logger observability.Logger
}

// NewSegmenter constructs a Segmenter. A nil logger disables warnings.
func NewSegmenter(logger observability.Logger) *Segmenter {
	if logger == nil {
		logger = observability.NopLogger{}
	}
	return &Segmenter{logger: logger}
}

// Parse returns the ordered hunks of the diff. Binary file diffs come back
// as a single hunk with no added lines so they can still appear in the
// summary as "not reviewed".
func (s *Segmenter) Parse(ctx context.Context, raw string) []domain.DiffHunk {
	var hunks []domain.DiffHunk

	for _, segment := range splitFileSegments(raw) {
		path := segmentPath(segment)
		if isBinarySegment(segment) {
			hunks = append(hunks, domain.DiffHunk{Path: path, Binary: true})
			continue
		}

		fileDiff, err := godiff.ParseFileDiff([]byte(segment))
		if err != nil {
			s.logger.LogWarning(ctx, "skipping malformed diff segment", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
			continue
		}

		filePath := cleanDiffPath(fileDiff.NewName)
		if filePath == "" {
			filePath = cleanDiffPath(fileDiff.OrigName)
		}

		for _, h := range fileDiff.Hunks {
			hunks = append(hunks, segmentHunk(filePath, h))
		}
	}

	return hunks
}

// segmentHunk converts one go-diff hunk body into a DiffHunk, numbering
// added lines on the new side and removed lines on the old side.
func segmentHunk(path string, h *godiff.Hunk) domain.DiffHunk {
	hunk := domain.DiffHunk{
		Path:     path,
		OldRange: domain.LineRange{Start: int(h.OrigStartLine), Lines: int(h.OrigLines)},
		NewRange: domain.LineRange{Start: int(h.NewStartLine), Lines: int(h.NewLines)},
	}

	newLine := int(h.NewStartLine)
	oldLine := int(h.OrigStartLine)

	for _, line := range strings.Split(string(h.Body), "\n") {
		if line == "" {
			continue
		}
		switch line[0] {
		case '+':
			hunk.Added = append(hunk.Added, domain.DiffLine{Number: newLine, Text: line[1:]})
			newLine++
		case '-':
			hunk.Removed = append(hunk.Removed, domain.DiffLine{Number: oldLine, Text: line[1:]})
			oldLine++
		case '\\':
			// "\ No newline at end of file"
		default:
			newLine++
			oldLine++
		}
	}

	return hunk
}

// splitFileSegments splits a multi-file diff on "diff --git" boundaries.
// Input without the git header is treated as a single segment.
func splitFileSegments(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var segments []string
	var current []string
	for _, line := range strings.Split(raw, "\n") {
		if strings.HasPrefix(line, "diff --git ") && len(current) > 0 {
			segments = append(segments, strings.Join(current, "\n"))
			current = current[:0]
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		segments = append(segments, strings.Join(current, "\n"))
	}
	return segments
}

func isBinarySegment(segment string) bool {
	return strings.Contains(segment, "Binary files ") ||
		strings.Contains(segment, "GIT binary patch")
}

// segmentPath extracts a file path from the segment headers, preferring the
// new-side name.
func segmentPath(segment string) string {
	for _, line := range strings.Split(segment, "\n") {
		if strings.HasPrefix(line, "+++ ") {
			if p := cleanDiffPath(strings.TrimSpace(line[4:])); p != "" {
				return p
			}
		}
		if strings.HasPrefix(line, "--- ") {
			if p := cleanDiffPath(strings.TrimSpace(line[4:])); p != "" {
				return p
			}
		}
		if strings.HasPrefix(line, "diff --git ") {
			fields := strings.Fields(line)
			if len(fields) >= 4 {
				return cleanDiffPath(fields[3])
			}
		}
	}
	return ""
}

func cleanDiffPath(name string) string {
	name = strings.TrimPrefix(name, "a/")
	name = strings.TrimPrefix(name, "b/")
	if name == "/dev/null" {
		return ""
	}
	return name
}
