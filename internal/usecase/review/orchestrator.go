// Package review orchestrates the full pipeline: segment the diff,
// retrieve context, assemble evidence, generate findings, and place
// comments, inside one latency and token budget.
package review

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/reviewpilot/reviewpilot/internal/diff"
	"github.com/reviewpilot/reviewpilot/internal/domain"
	"github.com/reviewpilot/reviewpilot/internal/evidence"
	"github.com/reviewpilot/reviewpilot/internal/generate"
	"github.com/reviewpilot/reviewpilot/internal/index"
	"github.com/reviewpilot/reviewpilot/internal/observability"
	"github.com/reviewpilot/reviewpilot/internal/place"
	"github.com/reviewpilot/reviewpilot/internal/retrieve"
)

// Options bounds a single run.
type Options struct {
	Workers          int
	Latency          time.Duration
	TokenBudgetBytes int
	LLMTimeout       time.Duration
}

// Orchestrator wires the pipeline stages together. It owns no state
// between runs; each Run is independent.
type Orchestrator struct {
	segmenter *diff.Segmenter
	retriever *retrieve.Retriever
	selector  *generate.Selector
	fallback  generate.Generator
	opts      Options
	metrics   *observability.MetricsEmitter
	logger    observability.Logger
}

// New constructs an Orchestrator.
func New(
	segmenter *diff.Segmenter,
	retriever *retrieve.Retriever,
	selector *generate.Selector,
	fallback generate.Generator,
	opts Options,
	metrics *observability.MetricsEmitter,
	logger observability.Logger,
) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Latency <= 0 {
		opts.Latency = 90 * time.Second
	}
	if logger == nil {
		logger = observability.NopLogger{}
	}
	return &Orchestrator{
		segmenter: segmenter,
		retriever: retriever,
		selector:  selector,
		fallback:  fallback,
		opts:      opts,
		metrics:   metrics,
		logger:    logger,
	}
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

type hunkResult struct {
	findings []domain.Finding
	mode     domain.ReviewMode
	tokens   int
	hits     int
}

// Run reviews the given unified diff text and returns the terminal
// result. The run never fails once the diff parses; degraded stages fall
// back and report through the result's mode.
func (o *Orchestrator) Run(ctx context.Context, runID, diffText string) domain.ReviewResult {
	if runID == "" {
		runID = NewRunID()
	}

	ctx, cancel := context.WithTimeout(ctx, o.opts.Latency)
	defer cancel()
	deadline, _ := ctx.Deadline()

	segStart := time.Now()
	hunks := o.segmenter.Parse(ctx, diffText)
	o.record("segment", time.Since(segStart))

	reviewable, notReviewed := partition(hunks)
	result := domain.ReviewResult{
		RunID:         runID,
		Mode:          domain.ModeFallback,
		NotReviewed:   notReviewed,
		ReviewedHunks: len(reviewable),
	}
	if len(reviewable) == 0 {
		o.logger.LogInfo(ctx, "no supported files changed", map[string]interface{}{
			"run_id":       runID,
			"not_reviewed": len(notReviewed),
		})
		o.flush(ctx)
		return result
	}

	results := o.reviewHunks(ctx, deadline, reviewable, changedPaths(hunks))

	var findings []domain.Finding
	totalTokens, totalHits := 0, 0
	mode := domain.ModeLLM
	for _, r := range results {
		findings = append(findings, r.findings...)
		totalTokens += r.tokens
		totalHits += r.hits
		if r.mode == domain.ModeFallback {
			mode = domain.ModeFallback
		}
	}
	o.record("generate", time.Since(segStart),
		observability.WithTokensUsed(totalTokens),
		observability.WithMode(string(mode)),
	)
	o.record("retrieve", time.Since(segStart), observability.WithRetrievalHits(totalHits))

	placeStart := time.Now()
	placer := place.New(hunks, o.logger)
	comments, summary := placer.Place(ctx, findings)
	o.record("place", time.Since(placeStart))

	result.Mode = mode
	result.InlineComments = comments
	result.Summary = summary

	o.flush(ctx)
	return result
}

// reviewHunks fans the reviewable hunks out over the worker pool. Results
// come back in hunk order regardless of completion order.
func (o *Orchestrator) reviewHunks(ctx context.Context, deadline time.Time, hunks []domain.DiffHunk, changed []string) []hunkResult {
	results := make([]hunkResult, len(hunks))
	jobs := make(chan int)
	var started atomic.Int64

	var wg sync.WaitGroup
	for w := 0; w < o.opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				pending := int64(len(hunks)) - started.Add(1) + 1
				results[i] = o.reviewOne(ctx, deadline, pending, hunks[i], changed)
			}
		}()
	}

	for i := range hunks {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

// reviewOne runs retrieval, assembly, and generation for a single hunk.
// Past the run deadline the hunk goes straight to the deterministic
// fallback so the run always terminates with a complete result.
func (o *Orchestrator) reviewOne(ctx context.Context, deadline time.Time, pending int64, hunk domain.DiffHunk, changed []string) hunkResult {
	bundle := o.retriever.Retrieve(hunk)
	bundle.ChangedPaths = changed
	bundle = evidence.Assemble(bundle, o.opts.TokenBudgetBytes)

	res := hunkResult{
		tokens: evidence.EstimateTokens(bundle),
		hits:   len(bundle.Contexts),
	}

	remaining := time.Until(deadline)
	if remaining <= 0 {
		o.logger.LogWarning(ctx, "run deadline reached, reviewing remaining hunks with rules only", map[string]interface{}{
			"path": hunk.Path,
		})
		findings, _ := o.fallback.Generate(context.WithoutCancel(ctx), bundle)
		res.findings = findings
		res.mode = domain.ModeFallback
		return res
	}

	if pending < 1 {
		pending = 1
	}
	perHunk := remaining / time.Duration(pending)
	if o.opts.LLMTimeout > 0 && perHunk > o.opts.LLMTimeout {
		perHunk = o.opts.LLMTimeout
	}
	hunkCtx, cancel := context.WithTimeout(ctx, perHunk)
	defer cancel()

	findings, mode := o.selector.Generate(hunkCtx, bundle)
	res.findings = findings
	res.mode = mode
	return res
}

// partition splits hunks into reviewable ones and the not-reviewed path
// list shown in the summary. Binary diffs and unsupported file types are
// listed, never reviewed.
func partition(hunks []domain.DiffHunk) ([]domain.DiffHunk, []string) {
	var reviewable []domain.DiffHunk
	var notReviewed []string
	seen := make(map[string]bool)
	for _, hunk := range hunks {
		if hunk.Binary || !index.Indexable(hunk.Path) {
			if !seen[hunk.Path] {
				seen[hunk.Path] = true
				notReviewed = append(notReviewed, hunk.Path)
			}
			continue
		}
		reviewable = append(reviewable, hunk)
	}
	return reviewable, notReviewed
}

// changedPaths lists every path the diff touches, including binary and
// unsupported files, deduplicated in first-seen order.
func changedPaths(hunks []domain.DiffHunk) []string {
	seen := make(map[string]bool)
	var paths []string
	for _, hunk := range hunks {
		if !seen[hunk.Path] {
			seen[hunk.Path] = true
			paths = append(paths, hunk.Path)
		}
	}
	return paths
}

func (o *Orchestrator) record(stage string, elapsed time.Duration, opts ...observability.MetricOption) {
	if o.metrics != nil {
		o.metrics.Record(stage, elapsed, opts...)
	}
}

func (o *Orchestrator) flush(ctx context.Context) {
	if o.metrics != nil {
		o.metrics.Flush(ctx)
	}
}
