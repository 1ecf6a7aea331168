package observability

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StageMetric is one JSONL record of the review run. Optional fields are
// omitted when a stage does not report them.
type StageMetric struct {
	Stage         string `json:"stage"`
	ElapsedMS     int64  `json:"elapsed_ms"`
	RetrievalHits *int   `json:"retrieval_hits,omitempty"`
	TokensUsed    *int   `json:"tokens_used,omitempty"`
	Mode          string `json:"mode,omitempty"`
	RunID         string `json:"run_id,omitempty"`
}

// MetricsEmitter buffers per-stage timings and flushes them as JSONL.
// Emission is best effort: a write failure is logged and swallowed so
// metrics can never fail a review.
type MetricsEmitter struct {
	mu      sync.Mutex
	path    string
	runID   string
	records []StageMetric
	logger  Logger
}

// NewMetricsEmitter creates an emitter writing to path. An empty path
// disables emission while keeping Record calls cheap no-ops at flush time.
func NewMetricsEmitter(path, runID string, logger Logger) *MetricsEmitter {
	if logger == nil {
		logger = NopLogger{}
	}
	return &MetricsEmitter{path: path, runID: runID, logger: logger}
}

// Record appends one stage measurement to the buffer.
func (m *MetricsEmitter) Record(stage string, elapsed time.Duration, opts ...MetricOption) {
	record := StageMetric{
		Stage:     stage,
		ElapsedMS: elapsed.Milliseconds(),
		RunID:     m.runID,
	}
	for _, opt := range opts {
		opt(&record)
	}
	m.mu.Lock()
	m.records = append(m.records, record)
	m.mu.Unlock()
}

// MetricOption attaches an optional field to a stage record.
type MetricOption func(*StageMetric)

func WithRetrievalHits(hits int) MetricOption {
	return func(r *StageMetric) { r.RetrievalHits = &hits }
}

func WithTokensUsed(tokens int) MetricOption {
	return func(r *StageMetric) { r.TokensUsed = &tokens }
}

func WithMode(mode string) MetricOption {
	return func(r *StageMetric) { r.Mode = mode }
}

// Flush appends the buffered records to the JSONL file and clears the
// buffer. Failures are logged, never returned.
func (m *MetricsEmitter) Flush(ctx context.Context) {
	m.mu.Lock()
	records := m.records
	m.records = nil
	path := m.path
	m.mu.Unlock()

	if path == "" || len(records) == 0 {
		return
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			m.logger.LogWarning(ctx, "metrics directory unavailable, dropping records", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
			return
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		m.logger.LogWarning(ctx, "metrics file unavailable, dropping records", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
		return
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, record := range records {
		if err := enc.Encode(record); err != nil {
			m.logger.LogWarning(ctx, "metrics write failed", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
			return
		}
	}
}
