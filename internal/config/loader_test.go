package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewpilot/reviewpilot/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(config.LoaderOptions{ConfigPaths: []string{t.TempDir()}})
	require.NoError(t, err)

	assert.Equal(t, "none", cfg.LLM.Provider)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.InDelta(t, 0.8, cfg.Retrieval.Alpha, 1e-9)
	assert.InDelta(t, 0.2, cfg.Retrieval.Beta, 1e-9)
	assert.Equal(t, 40, cfg.Index.Window)
	assert.Equal(t, 30, cfg.Index.Stride)
	assert.Equal(t, 512, cfg.Budget.MaxTokens)
	assert.Equal(t, "90s", cfg.Budget.Latency)
	assert.Equal(t, 4, cfg.Budget.Workers)
	assert.Equal(t, "auto", cfg.Observability.Logging.Format)
	assert.Equal(t, "review-metrics.jsonl", cfg.Observability.MetricsPath)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	content := `llm:
  provider: openrouter
  model: qwen/qwen-2.5-coder-32b-instruct
retrieval:
  topK: 8
budget:
  maxTokens: 256
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rp.yaml"), []byte(content), 0o600))

	cfg, err := config.Load(config.LoaderOptions{ConfigPaths: []string{dir}})
	require.NoError(t, err)

	assert.Equal(t, "openrouter", cfg.LLM.Provider)
	assert.Equal(t, "qwen/qwen-2.5-coder-32b-instruct", cfg.LLM.Model)
	assert.Equal(t, 8, cfg.Retrieval.TopK)
	assert.Equal(t, 256, cfg.Budget.MaxTokens)

	// Untouched keys keep their defaults.
	assert.InDelta(t, 0.1, cfg.Retrieval.MinSimilarity, 1e-9)
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	dir := t.TempDir()
	content := `llm:
  provider: openrouter
  apiKey: ${RP_TEST_API_KEY}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rp.yaml"), []byte(content), 0o600))
	t.Setenv("RP_TEST_API_KEY", "sk-or-test-1234")

	cfg, err := config.Load(config.LoaderOptions{ConfigPaths: []string{dir}})
	require.NoError(t, err)

	assert.Equal(t, "sk-or-test-1234", cfg.LLM.APIKey)
}

func TestLoad_MissingEnvVarKeptVerbatim(t *testing.T) {
	dir := t.TempDir()
	content := `llm:
  apiKey: ${RP_DEFINITELY_UNSET_KEY}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rp.yaml"), []byte(content), 0o600))

	cfg, err := config.Load(config.LoaderOptions{ConfigPaths: []string{dir}})
	require.NoError(t, err)

	assert.Equal(t, "${RP_DEFINITELY_UNSET_KEY}", cfg.LLM.APIKey)
}

func TestTokenBudgetBytes(t *testing.T) {
	b := config.BudgetConfig{MaxTokens: 512}
	assert.Equal(t, 2048, b.TokenBudgetBytes())
}
