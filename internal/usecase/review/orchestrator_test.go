package review_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewpilot/reviewpilot/internal/adapter/llm"
	"github.com/reviewpilot/reviewpilot/internal/config"
	"github.com/reviewpilot/reviewpilot/internal/diff"
	"github.com/reviewpilot/reviewpilot/internal/domain"
	"github.com/reviewpilot/reviewpilot/internal/generate"
	"github.com/reviewpilot/reviewpilot/internal/index"
	"github.com/reviewpilot/reviewpilot/internal/retrieve"
	"github.com/reviewpilot/reviewpilot/internal/usecase/review"
)

const suppressionDiff = `diff --git a/app.py b/app.py
--- a/app.py
+++ b/app.py
@@ -40,3 +40,4 @@ def handler():
     try:
         do_work()
+    except Exception: pass
     return result
`

const binaryDiff = `diff --git a/logo.png b/logo.png
Binary files a/logo.png and b/logo.png differ
`

const unsupportedDiff = `diff --git a/data.bin b/data.bin
--- a/data.bin
+++ b/data.bin
@@ -1,1 +1,2 @@
 header
+payload
`

type stubClient struct {
	resp llm.Response
	err  error
}

func (c *stubClient) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	if c.err != nil {
		return llm.Response{}, c.err
	}
	return c.resp, nil
}

func newOrchestrator(t *testing.T, client llm.Client) *review.Orchestrator {
	t.Helper()
	ix := index.New(index.NewHashingEmbedder(64), index.Options{Window: 10, Stride: 10})
	retriever := retrieve.New(ix, config.RetrievalConfig{TopK: 5, Alpha: 0.8, Beta: 0.2})

	var llmStrategy generate.Generator
	if client != nil {
		llmStrategy = generate.NewLLMStrategy(client, "test-model", 512, nil)
	}
	fallback := generate.NewRuleBasedFallback()
	selector := generate.NewSelector(llmStrategy, fallback, nil)

	return review.New(
		diff.NewSegmenter(nil),
		retriever,
		selector,
		fallback,
		review.Options{Workers: 2, Latency: 30 * time.Second, TokenBudgetBytes: 2048},
		nil,
		nil,
	)
}

func TestRun_FallbackFindsBroadExceptionSuppression(t *testing.T) {
	orch := newOrchestrator(t, nil)

	result := orch.Run(context.Background(), "run-1", suppressionDiff)

	assert.Equal(t, "run-1", result.RunID)
	assert.Equal(t, domain.ModeFallback, result.Mode)
	assert.Equal(t, 1, result.ReviewedHunks)

	require.Len(t, result.InlineComments, 1)
	assert.Equal(t, "app.py", result.InlineComments[0].Path)
	assert.Equal(t, 42, result.InlineComments[0].Line)
	assert.Contains(t, result.InlineComments[0].Body, "broad exception suppression")

	require.Len(t, result.Summary, 1)
	assert.Equal(t, "rule/broad-exception-suppression", result.Summary[0].Source)
}

func TestRun_LLMModeWhenClientSucceeds(t *testing.T) {
	client := &stubClient{resp: llm.Response{
		Model: "test-model",
		Findings: []llm.RawFinding{
			{
				Severity:  domain.SeverityHigh,
				Message:   "exception swallowed silently",
				Citations: []llm.RawCitation{{Path: "app.py", Line: 42}},
			},
		},
	}}
	orch := newOrchestrator(t, client)

	result := orch.Run(context.Background(), "", suppressionDiff)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, domain.ModeLLM, result.Mode)
	require.Len(t, result.InlineComments, 1)
	assert.Contains(t, result.InlineComments[0].Body, "exception swallowed silently")
}

func TestRun_FallsBackWhenLLMErrors(t *testing.T) {
	client := &stubClient{err: context.DeadlineExceeded}
	orch := newOrchestrator(t, client)

	result := orch.Run(context.Background(), "run-1", suppressionDiff)

	assert.Equal(t, domain.ModeFallback, result.Mode)
	require.Len(t, result.InlineComments, 1)
	assert.Contains(t, result.InlineComments[0].Body, "broad exception suppression")
}

func TestRun_BinaryFileNotReviewed(t *testing.T) {
	orch := newOrchestrator(t, nil)

	result := orch.Run(context.Background(), "run-1", binaryDiff)

	assert.Zero(t, result.ReviewedHunks)
	assert.Empty(t, result.InlineComments)
	assert.Equal(t, []string{"logo.png"}, result.NotReviewed)
}

func TestRun_UnsupportedExtensionNotReviewed(t *testing.T) {
	orch := newOrchestrator(t, nil)

	result := orch.Run(context.Background(), "run-1", unsupportedDiff)

	assert.Zero(t, result.ReviewedHunks)
	assert.Equal(t, []string{"data.bin"}, result.NotReviewed)
}

func TestRun_EmptyDiff(t *testing.T) {
	orch := newOrchestrator(t, nil)

	result := orch.Run(context.Background(), "run-1", "")

	assert.Zero(t, result.ReviewedHunks)
	assert.Empty(t, result.InlineComments)
	assert.Empty(t, result.Summary)
}

func TestRun_Deterministic(t *testing.T) {
	orch := newOrchestrator(t, nil)

	first := orch.Run(context.Background(), "run-1", suppressionDiff)
	second := orch.Run(context.Background(), "run-1", suppressionDiff)

	assert.Equal(t, first, second)
}
