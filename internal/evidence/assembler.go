// Package evidence merges retrieved context and diff text under a byte
// budget, priority-ordered.
package evidence

import (
	"fmt"
	"strings"

	"github.com/reviewpilot/reviewpilot/internal/domain"
)

// Assemble enforces the evidence budget on a pre-truncation bundle.
// Priority order: the hunk's diff lines (never truncated), then retrieved
// contexts highest score first. Once the running byte estimate would exceed
// the budget, the remaining lower-priority items are dropped wholesale; no
// partial chunk is ever included. Output is byte-identical for identical
// input and budget.
func Assemble(bundle domain.EvidenceBundle, budgetBytes int) domain.EvidenceBundle {
	out := domain.EvidenceBundle{Hunk: bundle.Hunk, ChangedPaths: bundle.ChangedPaths}
	out.BytesUsed = len(renderHunk(bundle.Hunk))

	for i, ctx := range bundle.Contexts {
		cost := len(renderContext(ctx))
		if out.BytesUsed+cost > budgetBytes {
			out.Truncated = true
			break
		}
		out.BytesUsed += cost
		rescored := ctx
		rescored.Rank = i
		out.Contexts = append(out.Contexts, rescored)
	}

	return out
}

// RenderPrompt renders the assembled bundle as deterministic prompt text:
// the diff first, then each retrieved context in rank order.
func RenderPrompt(bundle domain.EvidenceBundle) string {
	var sb strings.Builder
	sb.WriteString(renderHunk(bundle.Hunk))
	for _, ctx := range bundle.Contexts {
		sb.WriteString(renderContext(ctx))
	}
	return sb.String()
}

// EstimateTokens reports the token estimate for the rendered bundle, used
// for metrics and for sizing LLM requests.
func EstimateTokens(bundle domain.EvidenceBundle) int {
	return estimateTextTokens(RenderPrompt(bundle))
}

func renderHunk(hunk domain.DiffHunk) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "### Diff: %s @@ -%d,%d +%d,%d @@\n",
		hunk.Path,
		hunk.OldRange.Start, hunk.OldRange.Lines,
		hunk.NewRange.Start, hunk.NewRange.Lines,
	)
	for _, line := range hunk.Removed {
		fmt.Fprintf(&sb, "-%d: %s\n", line.Number, line.Text)
	}
	for _, line := range hunk.Added {
		fmt.Fprintf(&sb, "+%d: %s\n", line.Number, line.Text)
	}
	return sb.String()
}

func renderContext(ctx domain.RetrievedContext) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "### Context: %s:%d-%d (%s)\n",
		ctx.Chunk.Path, ctx.Chunk.StartLine, ctx.Chunk.EndLine, ctx.Chunk.Language)
	sb.WriteString(ctx.Chunk.Text)
	sb.WriteString("\n")
	return sb.String()
}
