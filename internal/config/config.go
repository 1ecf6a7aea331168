package config

// Config represents the full application configuration.
type Config struct {
	LLM           LLMConfig           `yaml:"llm"`
	Retrieval     RetrievalConfig     `yaml:"retrieval"`
	Index         IndexConfig         `yaml:"index"`
	Budget        BudgetConfig        `yaml:"budget"`
	Git           GitConfig           `yaml:"git"`
	Output        OutputConfig        `yaml:"output"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// LLMConfig selects and configures the external model collaborator.
// Provider "none" (the default) runs the deterministic fallback only;
// a missing API key is a fully supported state, not an error.
type LLMConfig struct {
	Provider string `yaml:"provider"` // none, openrouter, local
	Model    string `yaml:"model"`
	APIKey   string `yaml:"apiKey"`
	BaseURL  string `yaml:"baseURL"`
	Timeout  string `yaml:"timeout"`
}

// RetrievalConfig tunes nearest-context retrieval and re-ranking.
type RetrievalConfig struct {
	TopK          int     `yaml:"topK"`
	MinSimilarity float64 `yaml:"minSimilarity"`
	Alpha         float64 `yaml:"alpha"` // weight for vector similarity
	Beta          float64 `yaml:"beta"`  // weight for path affinity
}

// IndexConfig tunes file chunking and the embedding dimension.
type IndexConfig struct {
	Window    int    `yaml:"window"`
	Stride    int    `yaml:"stride"`
	Dimension int    `yaml:"dimension"`
	CacheDir  string `yaml:"cacheDir"`
}

// BudgetConfig bounds a single run in tokens, wall-clock time, and
// parallelism.
type BudgetConfig struct {
	MaxTokens int    `yaml:"maxTokens"`
	Latency   string `yaml:"latency"`
	Workers   int    `yaml:"workers"`
}

// TokenBudgetBytes derives the byte ceiling for evidence assembly from the
// token budget, using the same chars-per-token ratio as the tokenizer
// fallback so the two estimates agree.
func (b BudgetConfig) TokenBudgetBytes() int {
	return b.MaxTokens * 4
}

type GitConfig struct {
	RepositoryDir string `yaml:"repositoryDir"`
}

type OutputConfig struct {
	Directory string `yaml:"directory"`
}

// ObservabilityConfig configures logging and the metrics artifact.
type ObservabilityConfig struct {
	Logging     LoggingConfig `yaml:"logging"`
	MetricsPath string        `yaml:"metricsPath"`
}

// LoggingConfig configures the structured logger. Format "auto" picks
// human output on a terminal and JSON otherwise.
type LoggingConfig struct {
	Level         string `yaml:"level"`  // debug, info, error
	Format        string `yaml:"format"` // auto, json, human
	RedactAPIKeys bool   `yaml:"redactAPIKeys"`
}
