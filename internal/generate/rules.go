package generate

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/reviewpilot/reviewpilot/internal/domain"
)

// lineRule flags a single added line. Each match emits one finding citing
// exactly the triggering line.
type lineRule struct {
	id       string
	severity string
	message  string
	match    func(line string) bool
}

var (
	broadExceptPattern    = regexp.MustCompile(`\bexcept\s*\(?\s*(Exception|BaseException)\b`)
	inlinePassPattern     = regexp.MustCompile(`\bexcept\b[^:]*:\s*pass\s*$`)
	bareExceptPattern     = regexp.MustCompile(`^\s*except\s*:`)
	hardcodedSecretPattern = regexp.MustCompile(`(?i)(password|passwd|secret|api_?key|auth_?token|access_?token)\s*[:=]\s*["'][^"']{4,}["']`)
	todoPattern            = regexp.MustCompile(`\b(TODO|FIXME|XXX)\b`)
	discardedErrorPattern  = regexp.MustCompile(`^\s*_\s*=\s*err\b`)
)

// maxLineLength is the overlong-line threshold.
const maxLineLength = 120

var lineRules = []lineRule{
	{
		id:       "rule/broad-exception-suppression",
		severity: domain.SeverityHigh,
		message:  "broad exception suppression: the handler swallows all errors",
		// Narrow handlers (`except ValueError:`) are fine; only a bare
		// except, a catch-all class, or an inline pass suppresses errors.
		match: func(line string) bool {
			trimmed := strings.TrimSpace(line)
			return bareExceptPattern.MatchString(trimmed) ||
				broadExceptPattern.MatchString(trimmed) ||
				inlinePassPattern.MatchString(trimmed)
		},
	},
	{
		id:       "rule/discarded-error",
		severity: domain.SeverityMedium,
		message:  "error value discarded without handling",
		match: func(line string) bool {
			return discardedErrorPattern.MatchString(line)
		},
	},
	{
		id:       "rule/hardcoded-secret",
		severity: domain.SeverityCritical,
		message:  "possible hardcoded secret in added line",
		match: func(line string) bool {
			return hardcodedSecretPattern.MatchString(line)
		},
	},
	{
		id:       "rule/todo-marker",
		severity: domain.SeverityLow,
		message:  "TODO/FIXME marker left in added code",
		match: func(line string) bool {
			return todoPattern.MatchString(line)
		},
	},
	{
		id:       "rule/long-line",
		severity: domain.SeverityInfo,
		message:  fmt.Sprintf("line exceeds %d characters", maxLineLength),
		match: func(line string) bool {
			return len(line) > maxLineLength
		},
	},
}

// largeChangeThreshold is the added-line count above which a source hunk
// without test changes gets a missing-test finding.
const largeChangeThreshold = 10

// RuleBasedFallback is the deterministic strategy: a fixed battery of
// checks over the hunk's added lines, no network dependency. It is the
// baseline correctness oracle for the pipeline.
type RuleBasedFallback struct{}

// NewRuleBasedFallback constructs the fallback strategy.
func NewRuleBasedFallback() *RuleBasedFallback {
	return &RuleBasedFallback{}
}

func (r *RuleBasedFallback) Name() string { return "rules" }

// Generate applies every rule to every added line, in fixed order, so
// output is identical for identical input.
func (r *RuleBasedFallback) Generate(ctx context.Context, bundle domain.EvidenceBundle) ([]domain.Finding, error) {
	hunk := bundle.Hunk
	var findings []domain.Finding

	for _, line := range hunk.Added {
		for _, rule := range lineRules {
			if !rule.match(line.Text) {
				continue
			}
			findings = append(findings, domain.NewFinding(domain.FindingInput{
				Source:    rule.id,
				Severity:  rule.severity,
				Message:   rule.message,
				Citations: []domain.Citation{{Path: hunk.Path, Line: line.Number}},
			}))
		}
	}

	if f, ok := missingTestFinding(hunk, bundle.ChangedPaths); ok {
		findings = append(findings, f)
	}

	return findings, nil
}

// missingTestFinding flags large source-file hunks when the diff touches
// no test file at all, citing the first added line.
func missingTestFinding(hunk domain.DiffHunk, changedPaths []string) (domain.Finding, bool) {
	if len(hunk.Added) < largeChangeThreshold || isTestPath(hunk.Path) || !isSourcePath(hunk.Path) {
		return domain.Finding{}, false
	}
	for _, path := range changedPaths {
		if isTestPath(path) {
			return domain.Finding{}, false
		}
	}
	return domain.NewFinding(domain.FindingInput{
		Source:    "rule/missing-test-coverage",
		Severity:  domain.SeverityLow,
		Message:   fmt.Sprintf("%d lines added to a source file with no accompanying test change", len(hunk.Added)),
		Citations: []domain.Citation{{Path: hunk.Path, Line: hunk.Added[0].Number}},
	}), true
}

func isTestPath(path string) bool {
	base := strings.ToLower(path)
	return strings.HasSuffix(base, "_test.go") ||
		strings.Contains(base, "test_") ||
		strings.Contains(base, "/tests/") ||
		strings.HasSuffix(base, ".spec.ts") ||
		strings.HasSuffix(base, ".spec.js")
}

func isSourcePath(path string) bool {
	for _, ext := range []string{".go", ".py", ".js", ".ts", ".java", ".c", ".rb", ".rs"} {
		if strings.HasSuffix(strings.ToLower(path), ext) {
			return true
		}
	}
	return false
}
