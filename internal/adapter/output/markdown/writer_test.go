package markdown_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewpilot/reviewpilot/internal/adapter/output/markdown"
	"github.com/reviewpilot/reviewpilot/internal/domain"
)

func sampleResult() domain.ReviewResult {
	return domain.ReviewResult{
		RunID: "run-123",
		Mode:  domain.ModeFallback,
		InlineComments: []domain.InlineComment{
			{Path: "app.py", Line: 42, Body: "**[high]** swallowed exception"},
		},
		Summary: []domain.Finding{
			domain.NewFinding(domain.FindingInput{
				Source:    "rule/broad-exception-suppression",
				Severity:  domain.SeverityHigh,
				Message:   "swallowed exception | all errors",
				Citations: []domain.Citation{{Path: "app.py", Line: 42}},
			}),
		},
		NotReviewed: []string{"logo.png"},
	}
}

func TestRender_ContainsAllSections(t *testing.T) {
	report := markdown.Render(sampleResult())

	assert.Contains(t, report, "# Review Report")
	assert.Contains(t, report, "run-123")
	assert.Contains(t, report, "Mode: fallback")
	assert.Contains(t, report, "## Findings")
	assert.Contains(t, report, "`app.py:42`")
	assert.Contains(t, report, "## Inline Comments")
	assert.Contains(t, report, "### app.py:42")
	assert.Contains(t, report, "## Not Reviewed")
	assert.Contains(t, report, "- logo.png")
}

func TestRender_TitleCasesSeverity(t *testing.T) {
	report := markdown.Render(sampleResult())
	assert.Contains(t, report, "| High |")
}

func TestRender_EscapesTableCells(t *testing.T) {
	report := markdown.Render(sampleResult())
	assert.Contains(t, report, `swallowed exception \| all errors`)
}

func TestRender_EmptyResult(t *testing.T) {
	report := markdown.Render(domain.ReviewResult{RunID: "run-1", Mode: domain.ModeLLM})
	assert.Contains(t, report, "No findings.")
	assert.NotContains(t, report, "## Inline Comments")
}

func TestWriter_Write(t *testing.T) {
	var sb strings.Builder
	err := markdown.NewWriter().Write(&sb, sampleResult())
	require.NoError(t, err)
	assert.Contains(t, sb.String(), "# Review Report")
}
