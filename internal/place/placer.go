// Package place anchors findings onto changed lines and builds the review
// summary. Findings that cannot be anchored inline are demoted, never lost.
package place

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/reviewpilot/reviewpilot/internal/domain"
	"github.com/reviewpilot/reviewpilot/internal/observability"
)

// Placer turns findings into inline comments anchored to lines the diff
// actually touched, plus a severity-ordered summary of everything else.
type Placer struct {
	touched map[string]map[int]bool
	logger  observability.Logger
}

// New builds a Placer from the parsed hunks. A finding may only anchor on
// an added line of one of these hunks.
func New(hunks []domain.DiffHunk, logger observability.Logger) *Placer {
	if logger == nil {
		logger = observability.NopLogger{}
	}
	touched := make(map[string]map[int]bool)
	for _, hunk := range hunks {
		lines, ok := touched[hunk.Path]
		if !ok {
			lines = make(map[int]bool)
			touched[hunk.Path] = lines
		}
		for _, line := range hunk.Added {
			lines[line.Number] = true
		}
	}
	return &Placer{touched: touched, logger: logger}
}

// Place splits findings into anchored inline comments and summary entries.
// Findings colliding on (path, line, normalized message) collapse to the
// most severe one, in the summary as well as inline, and the summary
// carries every distinct finding so nothing is dropped.
func (p *Placer) Place(ctx context.Context, findings []domain.Finding) ([]domain.InlineComment, []domain.Finding) {
	findings = dedupeFindings(findings)
	type anchored struct {
		comment domain.InlineComment
		finding domain.Finding
	}

	byKey := make(map[string]anchored)
	var order []string
	for _, finding := range findings {
		line, ok := p.anchor(finding)
		if !ok {
			p.logger.LogDebug(ctx, "finding has no anchor in the diff, summary only", map[string]interface{}{
				"id":     finding.ID,
				"source": finding.Source,
			})
			continue
		}
		key := dedupeKey(line.Path, line.Line, finding.Message)
		existing, seen := byKey[key]
		if seen && !domain.MoreSevere(finding.Severity, existing.finding.Severity) {
			continue
		}
		if !seen {
			order = append(order, key)
		}
		byKey[key] = anchored{
			comment: domain.InlineComment{
				Path: line.Path,
				Line: line.Line,
				Body: renderComment(finding),
			},
			finding: finding,
		}
	}

	comments := make([]domain.InlineComment, 0, len(byKey))
	for _, key := range order {
		comments = append(comments, byKey[key].comment)
	}
	sort.SliceStable(comments, func(i, j int) bool {
		if comments[i].Path != comments[j].Path {
			return comments[i].Path < comments[j].Path
		}
		return comments[i].Line < comments[j].Line
	})

	summary := sortSummary(findings)
	return comments, summary
}

// anchor returns the first citation of the finding that lands on a line
// the diff added.
func (p *Placer) anchor(finding domain.Finding) (domain.Citation, bool) {
	for _, citation := range finding.Citations {
		if p.touched[citation.Path][citation.Line] {
			return citation, true
		}
	}
	return domain.Citation{}, false
}

// dedupeFindings collapses findings that collide on the first citation and
// the normalized message, keeping the most severe and first-seen order.
func dedupeFindings(findings []domain.Finding) []domain.Finding {
	byKey := make(map[string]int)
	var out []domain.Finding
	for _, finding := range findings {
		path, line := firstCitation(finding)
		key := dedupeKey(path, line, finding.Message)
		if i, seen := byKey[key]; seen {
			if domain.MoreSevere(finding.Severity, out[i].Severity) {
				out[i] = finding
			}
			continue
		}
		byKey[key] = len(out)
		out = append(out, finding)
	}
	return out
}

// sortSummary orders findings by severity, then path, then line of the
// first citation, so output is stable across runs.
func sortSummary(findings []domain.Finding) []domain.Finding {
	summary := make([]domain.Finding, len(findings))
	copy(summary, findings)
	sort.SliceStable(summary, func(i, j int) bool {
		a, b := summary[i], summary[j]
		if a.Severity != b.Severity {
			return domain.MoreSevere(a.Severity, b.Severity)
		}
		ap, al := firstCitation(a)
		bp, bl := firstCitation(b)
		if ap != bp {
			return ap < bp
		}
		return al < bl
	})
	return summary
}

func firstCitation(f domain.Finding) (string, int) {
	if len(f.Citations) == 0 {
		return "", 0
	}
	return f.Citations[0].Path, f.Citations[0].Line
}

// dedupeKey normalizes the message with NFKC and case folding so that
// near-identical findings from different strategies collapse.
func dedupeKey(path string, line int, message string) string {
	folded := cases.Fold().String(norm.NFKC.String(strings.TrimSpace(message)))
	return fmt.Sprintf("%s:%d:%s", path, line, folded)
}

func renderComment(f domain.Finding) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("**[%s]** %s", f.Severity, f.Message))
	if len(f.Citations) > 1 {
		refs := make([]string, 0, len(f.Citations)-1)
		for _, c := range f.Citations[1:] {
			refs = append(refs, c.String())
		}
		sb.WriteString(fmt.Sprintf("\n\nRelated: %s", strings.Join(refs, ", ")))
	}
	return sb.String()
}
