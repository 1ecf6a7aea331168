// Package markdown renders a review result as a Markdown report suitable
// for pasting into a pull request.
package markdown

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/reviewpilot/reviewpilot/internal/domain"
)

// Writer renders review results into Markdown.
type Writer struct{}

// NewWriter constructs a Markdown writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Write renders the result to out.
func (w *Writer) Write(out io.Writer, result domain.ReviewResult) error {
	_, err := io.WriteString(out, Render(result))
	return err
}

// Render builds the full report text.
func Render(result domain.ReviewResult) string {
	var builder strings.Builder
	caser := cases.Title(language.English)

	builder.WriteString("# Review Report\n\n")
	builder.WriteString(fmt.Sprintf("- Run: %s\n", result.RunID))
	builder.WriteString(fmt.Sprintf("- Mode: %s\n\n", result.Mode))

	if len(result.Summary) == 0 {
		builder.WriteString("No findings.\n")
	} else {
		builder.WriteString("## Findings\n\n")
		builder.WriteString("| Severity | Location | Finding |\n")
		builder.WriteString("|---|---|---|\n")
		for _, finding := range result.Summary {
			builder.WriteString(fmt.Sprintf("| %s | %s | %s |\n",
				caser.String(finding.Severity),
				locationOf(finding),
				escapeCell(finding.Message),
			))
		}
		builder.WriteString("\n")
	}

	if len(result.InlineComments) > 0 {
		builder.WriteString("## Inline Comments\n\n")
		for _, comment := range result.InlineComments {
			builder.WriteString(fmt.Sprintf("### %s:%d\n\n", comment.Path, comment.Line))
			builder.WriteString(comment.Body)
			builder.WriteString("\n\n")
		}
	}

	if len(result.NotReviewed) > 0 {
		builder.WriteString("## Not Reviewed\n\n")
		for _, path := range result.NotReviewed {
			builder.WriteString(fmt.Sprintf("- %s\n", path))
		}
	}

	return builder.String()
}

func locationOf(finding domain.Finding) string {
	if len(finding.Citations) == 0 {
		return "-"
	}
	refs := make([]string, 0, len(finding.Citations))
	for _, c := range finding.Citations {
		refs = append(refs, fmt.Sprintf("`%s`", c.String()))
	}
	return strings.Join(refs, ", ")
}

func escapeCell(text string) string {
	text = strings.ReplaceAll(text, "|", "\\|")
	return strings.ReplaceAll(text, "\n", " ")
}
