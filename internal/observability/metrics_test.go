package observability_test

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewpilot/reviewpilot/internal/observability"
)

func readMetricLines(t *testing.T, path string) []observability.StageMetric {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var records []observability.StageMetric
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var record observability.StageMetric
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &record))
		records = append(records, record)
	}
	require.NoError(t, scanner.Err())
	return records
}

func TestMetricsEmitter_WritesJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.jsonl")
	emitter := observability.NewMetricsEmitter(path, "run-1", nil)

	emitter.Record("segment", 12*time.Millisecond)
	emitter.Record("retrieve", 40*time.Millisecond, observability.WithRetrievalHits(5))
	emitter.Record("generate", 800*time.Millisecond,
		observability.WithTokensUsed(321),
		observability.WithMode("llm"),
	)
	emitter.Flush(context.Background())

	records := readMetricLines(t, path)
	require.Len(t, records, 3)

	assert.Equal(t, "segment", records[0].Stage)
	assert.Equal(t, int64(12), records[0].ElapsedMS)
	assert.Equal(t, "run-1", records[0].RunID)
	assert.Nil(t, records[0].RetrievalHits)

	require.NotNil(t, records[1].RetrievalHits)
	assert.Equal(t, 5, *records[1].RetrievalHits)

	require.NotNil(t, records[2].TokensUsed)
	assert.Equal(t, 321, *records[2].TokensUsed)
	assert.Equal(t, "llm", records[2].Mode)
}

func TestMetricsEmitter_FlushAppendsAcrossRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.jsonl")

	first := observability.NewMetricsEmitter(path, "run-1", nil)
	first.Record("segment", time.Millisecond)
	first.Flush(context.Background())

	second := observability.NewMetricsEmitter(path, "run-2", nil)
	second.Record("segment", time.Millisecond)
	second.Flush(context.Background())

	records := readMetricLines(t, path)
	require.Len(t, records, 2)
	assert.Equal(t, "run-1", records[0].RunID)
	assert.Equal(t, "run-2", records[1].RunID)
}

func TestMetricsEmitter_FlushClearsBuffer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.jsonl")
	emitter := observability.NewMetricsEmitter(path, "run-1", nil)

	emitter.Record("segment", time.Millisecond)
	emitter.Flush(context.Background())
	emitter.Flush(context.Background())

	records := readMetricLines(t, path)
	assert.Len(t, records, 1)
}

func TestMetricsEmitter_EmptyPathIsNoop(t *testing.T) {
	emitter := observability.NewMetricsEmitter("", "run-1", nil)
	emitter.Record("segment", time.Millisecond)
	emitter.Flush(context.Background())
}

func TestMetricsEmitter_UnwritablePathDoesNotFail(t *testing.T) {
	emitter := observability.NewMetricsEmitter("/proc/does-not-exist/metrics.jsonl", "run-1", nil)
	emitter.Record("segment", time.Millisecond)
	emitter.Flush(context.Background())
}
