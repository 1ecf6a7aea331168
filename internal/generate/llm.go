package generate

import (
	"context"
	"fmt"
	"strconv"

	"github.com/reviewpilot/reviewpilot/internal/adapter/llm"
	"github.com/reviewpilot/reviewpilot/internal/determinism"
	"github.com/reviewpilot/reviewpilot/internal/domain"
	"github.com/reviewpilot/reviewpilot/internal/evidence"
	"github.com/reviewpilot/reviewpilot/internal/observability"
)

// LLMStrategy sends the assembled evidence to a provider client and
// validates every returned citation against the bundle. Findings whose
// citations do not resolve are dropped and logged, never retried.
type LLMStrategy struct {
	client    llm.Client
	modelID   string
	maxTokens int
	logger    observability.Logger
}

// NewLLMStrategy constructs the LLM-backed strategy.
func NewLLMStrategy(client llm.Client, modelID string, maxTokens int, logger observability.Logger) *LLMStrategy {
	if logger == nil {
		logger = observability.NopLogger{}
	}
	return &LLMStrategy{
		client:    client,
		modelID:   modelID,
		maxTokens: maxTokens,
		logger:    logger,
	}
}

func (s *LLMStrategy) Name() string { return "llm" }

// Generate sends the bundle as a bounded prompt with a seed derived from
// its content, then filters the response through citation validation.
func (s *LLMStrategy) Generate(ctx context.Context, bundle domain.EvidenceBundle) ([]domain.Finding, error) {
	prompt := evidence.RenderPrompt(bundle)
	seed := determinism.Seed(bundle.Hunk.Path, strconv.Itoa(bundle.Hunk.NewRange.Start), prompt)

	resp, err := s.client.Generate(ctx, llm.Request{
		Prompt:    prompt,
		Seed:      seed,
		MaxTokens: s.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("llm generate: %w", err)
	}

	valid := validCitationSet(bundle)
	var findings []domain.Finding
	for _, raw := range resp.Findings {
		citations, ok := resolveCitations(raw.Citations, valid)
		if !ok {
			s.logger.LogWarning(ctx, "dropping finding with unresolvable citation", map[string]interface{}{
				"path":    bundle.Hunk.Path,
				"model":   resp.Model,
				"message": raw.Message,
			})
			continue
		}
		severity := raw.Severity
		if domain.SeverityRank(severity) == domain.SeverityRank("") {
			severity = domain.SeverityInfo
		}
		findings = append(findings, domain.NewFinding(domain.FindingInput{
			Source:    s.modelID,
			Severity:  severity,
			Message:   raw.Message,
			Citations: citations,
		}))
	}

	return findings, nil
}

// validCitationSet collects every (path, line) a finding may legally cite:
// the hunk's added and removed lines plus every line of every retrieved
// context in the bundle.
func validCitationSet(bundle domain.EvidenceBundle) map[domain.Citation]struct{} {
	valid := make(map[domain.Citation]struct{})
	for _, line := range bundle.Hunk.Added {
		valid[domain.Citation{Path: bundle.Hunk.Path, Line: line.Number}] = struct{}{}
	}
	for _, line := range bundle.Hunk.Removed {
		valid[domain.Citation{Path: bundle.Hunk.Path, Line: line.Number}] = struct{}{}
	}
	for _, ctx := range bundle.Contexts {
		for line := ctx.Chunk.StartLine; line <= ctx.Chunk.EndLine; line++ {
			valid[domain.Citation{Path: ctx.Chunk.Path, Line: line}] = struct{}{}
		}
	}
	return valid
}

// resolveCitations maps raw citations onto the valid set. A finding with
// no citations, or any citation outside the set, fails resolution.
func resolveCitations(raw []llm.RawCitation, valid map[domain.Citation]struct{}) ([]domain.Citation, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	citations := make([]domain.Citation, 0, len(raw))
	for _, rc := range raw {
		c := domain.Citation{Path: rc.Path, Line: rc.Line}
		if _, ok := valid[c]; !ok {
			return nil, false
		}
		citations = append(citations, c)
	}
	return citations, true
}
