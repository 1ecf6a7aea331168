package place_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewpilot/reviewpilot/internal/domain"
	"github.com/reviewpilot/reviewpilot/internal/place"
)

func touchedHunks() []domain.DiffHunk {
	return []domain.DiffHunk{
		{
			Path:     "app.py",
			NewRange: domain.LineRange{Start: 40, Lines: 5},
			Added: []domain.DiffLine{
				{Number: 42, Text: "except Exception: pass"},
				{Number: 43, Text: "return None"},
			},
		},
		{
			Path:     "util.py",
			NewRange: domain.LineRange{Start: 10, Lines: 2},
			Added: []domain.DiffLine{
				{Number: 10, Text: "import os"},
			},
		},
	}
}

func finding(source, severity, message string, citations ...domain.Citation) domain.Finding {
	return domain.NewFinding(domain.FindingInput{
		Source:    source,
		Severity:  severity,
		Message:   message,
		Citations: citations,
	})
}

func TestPlace_AnchorsOnAddedLine(t *testing.T) {
	placer := place.New(touchedHunks(), nil)
	findings := []domain.Finding{
		finding("rule/x", domain.SeverityHigh, "swallowed exception",
			domain.Citation{Path: "app.py", Line: 42}),
	}

	comments, summary := placer.Place(context.Background(), findings)

	require.Len(t, comments, 1)
	assert.Equal(t, "app.py", comments[0].Path)
	assert.Equal(t, 42, comments[0].Line)
	assert.Contains(t, comments[0].Body, "swallowed exception")
	assert.Contains(t, comments[0].Body, domain.SeverityHigh)
	assert.Len(t, summary, 1)
}

func TestPlace_UnanchoredGoesToSummaryOnly(t *testing.T) {
	placer := place.New(touchedHunks(), nil)
	findings := []domain.Finding{
		finding("model", domain.SeverityMedium, "stale helper in context",
			domain.Citation{Path: "legacy/helpers.py", Line: 7}),
	}

	comments, summary := placer.Place(context.Background(), findings)

	assert.Empty(t, comments)
	require.Len(t, summary, 1)
	assert.Equal(t, "stale helper in context", summary[0].Message)
}

func TestPlace_SkipsUntouchedLineFallsToLaterCitation(t *testing.T) {
	placer := place.New(touchedHunks(), nil)
	findings := []domain.Finding{
		finding("model", domain.SeverityLow, "shared concern",
			domain.Citation{Path: "app.py", Line: 99},
			domain.Citation{Path: "util.py", Line: 10}),
	}

	comments, _ := placer.Place(context.Background(), findings)

	require.Len(t, comments, 1)
	assert.Equal(t, "util.py", comments[0].Path)
	assert.Equal(t, 10, comments[0].Line)
}

func TestPlace_DedupesKeepingHigherSeverity(t *testing.T) {
	placer := place.New(touchedHunks(), nil)
	findings := []domain.Finding{
		finding("rule/x", domain.SeverityMedium, "Swallowed Exception",
			domain.Citation{Path: "app.py", Line: 42}),
		finding("model", domain.SeverityHigh, "swallowed exception",
			domain.Citation{Path: "app.py", Line: 42}),
	}

	comments, summary := placer.Place(context.Background(), findings)

	require.Len(t, comments, 1)
	assert.Contains(t, comments[0].Body, domain.SeverityHigh)
	require.Len(t, summary, 1)
	assert.Equal(t, domain.SeverityHigh, summary[0].Severity)
}

func TestPlace_SummaryDedupesAcrossStrategies(t *testing.T) {
	placer := place.New(touchedHunks(), nil)
	findings := []domain.Finding{
		finding("rule/x", domain.SeverityLow, "swallowed exception",
			domain.Citation{Path: "app.py", Line: 42}),
		finding("model", domain.SeverityHigh, "Swallowed Exception",
			domain.Citation{Path: "app.py", Line: 42}),
	}

	comments, summary := placer.Place(context.Background(), findings)

	assert.Len(t, comments, 1)
	require.Len(t, summary, 1)
	assert.Equal(t, domain.SeverityHigh, summary[0].Severity)
	assert.Equal(t, "Swallowed Exception", summary[0].Message)
}

func TestPlace_DistinctMessagesOnSameLineBothKept(t *testing.T) {
	placer := place.New(touchedHunks(), nil)
	findings := []domain.Finding{
		finding("rule/a", domain.SeverityHigh, "swallowed exception",
			domain.Citation{Path: "app.py", Line: 42}),
		finding("rule/b", domain.SeverityLow, "missing log statement",
			domain.Citation{Path: "app.py", Line: 42}),
	}

	comments, summary := placer.Place(context.Background(), findings)
	assert.Len(t, comments, 2)
	assert.Len(t, summary, 2)
}

func TestPlace_SummaryOrderedBySeverityThenPathThenLine(t *testing.T) {
	placer := place.New(touchedHunks(), nil)
	findings := []domain.Finding{
		finding("rule/a", domain.SeverityLow, "minor nit",
			domain.Citation{Path: "util.py", Line: 10}),
		finding("rule/b", domain.SeverityCritical, "leaked credential",
			domain.Citation{Path: "util.py", Line: 10}),
		finding("rule/c", domain.SeverityCritical, "another leak",
			domain.Citation{Path: "app.py", Line: 42}),
	}

	_, summary := placer.Place(context.Background(), findings)

	require.Len(t, summary, 3)
	assert.Equal(t, "another leak", summary[0].Message)
	assert.Equal(t, "leaked credential", summary[1].Message)
	assert.Equal(t, "minor nit", summary[2].Message)
}

func TestPlace_CommentsSortedByPathThenLine(t *testing.T) {
	placer := place.New(touchedHunks(), nil)
	findings := []domain.Finding{
		finding("rule/a", domain.SeverityLow, "nit in util",
			domain.Citation{Path: "util.py", Line: 10}),
		finding("rule/b", domain.SeverityLow, "nit in app later",
			domain.Citation{Path: "app.py", Line: 43}),
		finding("rule/c", domain.SeverityLow, "nit in app earlier",
			domain.Citation{Path: "app.py", Line: 42}),
	}

	comments, _ := placer.Place(context.Background(), findings)

	require.Len(t, comments, 3)
	assert.Equal(t, "app.py", comments[0].Path)
	assert.Equal(t, 42, comments[0].Line)
	assert.Equal(t, "app.py", comments[1].Path)
	assert.Equal(t, 43, comments[1].Line)
	assert.Equal(t, "util.py", comments[2].Path)
}
