// Package retrieve finds nearest-context candidates for diff hunks and
// re-ranks them.
package retrieve

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/reviewpilot/reviewpilot/internal/config"
	"github.com/reviewpilot/reviewpilot/internal/domain"
	"github.com/reviewpilot/reviewpilot/internal/index"
)

// Retriever queries the file index for context relevant to a hunk and
// re-ranks candidates by a blend of vector similarity and path affinity,
// so semantic match dominates but structurally adjacent code wins ties.
type Retriever struct {
	index         *index.FileIndex
	topK          int
	minSimilarity float64
	alpha         float64
	beta          float64
}

// New constructs a Retriever over the given index.
func New(ix *index.FileIndex, cfg config.RetrievalConfig) *Retriever {
	topK := cfg.TopK
	if topK <= 0 {
		topK = 5
	}
	return &Retriever{
		index:         ix,
		topK:          topK,
		minSimilarity: cfg.MinSimilarity,
		alpha:         cfg.Alpha,
		beta:          cfg.Beta,
	}
}

// Retrieve returns the pre-truncation evidence bundle for a hunk. A hunk
// with no added lines (binary passthrough, pure deletions) or no candidate
// above the similarity threshold yields an empty bundle; the hunk is still
// reviewable by the rule-based strategy using only the diff text.
func (r *Retriever) Retrieve(hunk domain.DiffHunk) domain.EvidenceBundle {
	bundle := domain.EvidenceBundle{Hunk: hunk}
	if hunk.Binary || len(hunk.Added) == 0 {
		return bundle
	}

	// Over-fetch so self-citation exclusion cannot starve the result set.
	neighbors := r.index.Search(queryText(hunk), r.topK*2)

	type candidate struct {
		neighbor index.Neighbor
		blended  float64
	}
	candidates := make([]candidate, 0, len(neighbors))
	for _, n := range neighbors {
		if isSelfCitation(n.Chunk, hunk) {
			continue
		}
		if n.Similarity < r.minSimilarity {
			continue
		}
		candidates = append(candidates, candidate{
			neighbor: n,
			blended:  r.alpha*n.Similarity + r.beta*pathAffinity(n.Chunk.Path, hunk.Path),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.blended != b.blended {
			return a.blended > b.blended
		}
		if len(a.neighbor.Chunk.Path) != len(b.neighbor.Chunk.Path) {
			return len(a.neighbor.Chunk.Path) < len(b.neighbor.Chunk.Path)
		}
		if a.neighbor.Chunk.Path != b.neighbor.Chunk.Path {
			return a.neighbor.Chunk.Path < b.neighbor.Chunk.Path
		}
		return a.neighbor.Chunk.StartLine < b.neighbor.Chunk.StartLine
	})

	if len(candidates) > r.topK {
		candidates = candidates[:r.topK]
	}

	for rank, c := range candidates {
		bundle.Contexts = append(bundle.Contexts, domain.RetrievedContext{
			Chunk: c.neighbor.Chunk,
			Score: c.blended,
			Rank:  rank,
		})
	}
	return bundle
}

// queryText concatenates the hunk's added lines with the file path as weak
// context.
func queryText(hunk domain.DiffHunk) string {
	var sb strings.Builder
	sb.WriteString(hunk.Path)
	for _, line := range hunk.Added {
		sb.WriteString("\n")
		sb.WriteString(line.Text)
	}
	return sb.String()
}

// isSelfCitation reports whether a chunk's path and line range exactly
// match the hunk under review.
func isSelfCitation(chunk *domain.IndexedChunk, hunk domain.DiffHunk) bool {
	if chunk.Path != hunk.Path {
		return false
	}
	end := hunk.NewRange.Start + hunk.NewRange.Lines - 1
	return chunk.StartLine == hunk.NewRange.Start && chunk.EndLine == end
}

// pathAffinity rewards same-directory (1.0) or same top-level module (0.5)
// context.
func pathAffinity(candidatePath, hunkPath string) float64 {
	if filepath.Dir(candidatePath) == filepath.Dir(hunkPath) {
		return 1.0
	}
	if topLevel(candidatePath) == topLevel(hunkPath) {
		return 0.5
	}
	return 0
}

func topLevel(path string) string {
	path = filepath.ToSlash(path)
	if idx := strings.Index(path, "/"); idx >= 0 {
		return path[:idx]
	}
	return ""
}
