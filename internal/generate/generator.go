// Package generate turns evidence bundles into findings, via either the
// LLM strategy or the deterministic rule-based fallback.
package generate

import (
	"context"

	"github.com/reviewpilot/reviewpilot/internal/domain"
	"github.com/reviewpilot/reviewpilot/internal/observability"
)

// Generator is the shared contract for both strategies. Implementations
// are pure functions over the bundle: no state is carried between calls.
type Generator interface {
	Generate(ctx context.Context, bundle domain.EvidenceBundle) ([]domain.Finding, error)
	Name() string
}

// Selector picks the strategy per bundle: the LLM strategy when one is
// configured, with an automatic, silent fallback to rules on any transport
// error, timeout, or total validation failure. The user-visible result is
// never "no review" because the LLM failed.
type Selector struct {
	llm      Generator
	fallback Generator
	logger   observability.Logger
}

// NewSelector builds a Selector. llm may be nil (provider "none").
func NewSelector(llm, fallback Generator, logger observability.Logger) *Selector {
	if logger == nil {
		logger = observability.NopLogger{}
	}
	return &Selector{llm: llm, fallback: fallback, logger: logger}
}

// Generate returns findings for the bundle and the mode that produced them.
func (s *Selector) Generate(ctx context.Context, bundle domain.EvidenceBundle) ([]domain.Finding, domain.ReviewMode) {
	if s.llm != nil {
		findings, err := s.llm.Generate(ctx, bundle)
		switch {
		case err != nil:
			s.logger.LogWarning(ctx, "llm strategy failed, falling back to rules", map[string]interface{}{
				"path":  bundle.Hunk.Path,
				"error": err.Error(),
			})
		case len(findings) == 0:
			s.logger.LogWarning(ctx, "llm returned no valid findings, falling back to rules", map[string]interface{}{
				"path": bundle.Hunk.Path,
			})
		default:
			return findings, domain.ModeLLM
		}
	}

	findings, _ := s.fallback.Generate(ctx, bundle)
	return findings, domain.ModeFallback
}
