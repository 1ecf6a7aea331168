package review

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/reviewpilot/reviewpilot/internal/adapter/git"
	"github.com/reviewpilot/reviewpilot/internal/adapter/llm"
	"github.com/reviewpilot/reviewpilot/internal/adapter/llm/local"
	"github.com/reviewpilot/reviewpilot/internal/adapter/llm/openrouter"
	jsonwriter "github.com/reviewpilot/reviewpilot/internal/adapter/output/json"
	"github.com/reviewpilot/reviewpilot/internal/adapter/output/markdown"
	"github.com/reviewpilot/reviewpilot/internal/adapter/repository"
	"github.com/reviewpilot/reviewpilot/internal/config"
	"github.com/reviewpilot/reviewpilot/internal/diff"
	"github.com/reviewpilot/reviewpilot/internal/domain"
	"github.com/reviewpilot/reviewpilot/internal/generate"
	"github.com/reviewpilot/reviewpilot/internal/index"
	"github.com/reviewpilot/reviewpilot/internal/observability"
	"github.com/reviewpilot/reviewpilot/internal/retrieve"
)

// Request describes one review invocation from the CLI.
type Request struct {
	Base      string
	Head      string
	DiffFile  string
	RepoDir   string
	OutputDir string
}

// Result pairs the review outcome with the artifact paths written for it.
type Result struct {
	Review       domain.ReviewResult
	MarkdownPath string
	JSONPath     string
}

// Service builds the pipeline from configuration and runs reviews.
type Service struct {
	cfg    config.Config
	logger observability.Logger
}

// NewService constructs a Service.
func NewService(cfg config.Config, logger observability.Logger) *Service {
	if logger == nil {
		logger = observability.NopLogger{}
	}
	return &Service{cfg: cfg, logger: logger}
}

// indexSource is the repository view the index is built from.
type indexSource interface {
	index.Source
	ListFiles() ([]string, error)
}

// Review runs the full pipeline for one request. An unreadable diff file
// or, when no diff file was supplied, an unusable repository is fatal;
// everything downstream degrades instead of failing.
func (s *Service) Review(ctx context.Context, req Request) (Result, error) {
	repoDir := req.RepoDir
	if repoDir == "" {
		repoDir = s.cfg.Git.RepositoryDir
	}
	if repoDir == "" {
		repoDir = "."
	}

	diffText, source, err := s.resolveInputs(ctx, req, repoDir)
	if err != nil {
		return Result{}, err
	}

	ix, cache := s.buildIndex(ctx, source)
	if cache != nil {
		defer func() { _ = cache.Close() }()
	}
	retriever := retrieve.New(ix, s.cfg.Retrieval)
	selector := generate.NewSelector(s.buildLLMStrategy(ctx), generate.NewRuleBasedFallback(), s.logger)

	runID := NewRunID()
	metrics := observability.NewMetricsEmitter(s.cfg.Observability.MetricsPath, runID, s.logger)

	orchestrator := New(
		diff.NewSegmenter(s.logger),
		retriever,
		selector,
		generate.NewRuleBasedFallback(),
		Options{
			Workers:          s.cfg.Budget.Workers,
			Latency:          parseDuration(s.cfg.Budget.Latency, 90*time.Second),
			TokenBudgetBytes: s.cfg.Budget.TokenBudgetBytes(),
			LLMTimeout:       parseDuration(s.cfg.LLM.Timeout, 30*time.Second),
		},
		metrics,
		s.logger,
	)

	review := orchestrator.Run(ctx, runID, diffText)

	result := Result{Review: review}
	outputDir := req.OutputDir
	if outputDir == "" {
		outputDir = s.cfg.Output.Directory
	}
	if outputDir != "" {
		result.MarkdownPath, result.JSONPath = s.writeArtifacts(ctx, outputDir, review)
	}
	return result, nil
}

// resolveInputs produces the diff text and the file source the index is
// built from. A supplied diff file takes precedence over the repository.
func (s *Service) resolveInputs(ctx context.Context, req Request, repoDir string) (string, indexSource, error) {
	if req.DiffFile != "" {
		raw, err := os.ReadFile(req.DiffFile)
		if err != nil {
			return "", nil, fmt.Errorf("read diff file %s: %w", req.DiffFile, err)
		}
		return string(raw), repository.NewLocalRepository(repoDir), nil
	}

	head := req.Head
	if head == "" {
		head = "HEAD"
	}
	engine, err := git.Open(repoDir, head)
	if err != nil {
		return "", nil, fmt.Errorf("no diff supplied and repository unusable: %w", err)
	}
	base := req.Base
	if base == "" {
		base = "main"
	}
	diffText, err := engine.Diff(base)
	if err != nil {
		return "", nil, fmt.Errorf("compute diff %s..%s: %w", base, head, err)
	}
	return diffText, engine, nil
}

// buildIndex indexes every supported file visible in the source. Index
// trouble degrades retrieval, never the review. The returned cache handle,
// when non-nil, is owned by the caller and must be closed after the run.
func (s *Service) buildIndex(ctx context.Context, source indexSource) (*index.FileIndex, *index.Cache) {
	var cache *index.Cache
	if s.cfg.Index.CacheDir != "" {
		c, err := index.OpenCache(s.cfg.Index.CacheDir)
		if err != nil {
			s.logger.LogWarning(ctx, "index cache unavailable, continuing without it", map[string]interface{}{
				"dir":   s.cfg.Index.CacheDir,
				"error": err.Error(),
			})
		} else {
			cache = c
		}
	}

	ix := index.New(index.NewHashingEmbedder(s.cfg.Index.Dimension), index.Options{
		Window: s.cfg.Index.Window,
		Stride: s.cfg.Index.Stride,
		Cache:  cache,
		Logger: s.logger,
	})

	paths, err := source.ListFiles()
	if err != nil {
		s.logger.LogWarning(ctx, "repository listing failed, reviewing without context", map[string]interface{}{
			"error": err.Error(),
		})
		return ix, cache
	}
	if err := ix.Build(ctx, source, paths); err != nil {
		s.logger.LogWarning(ctx, "index build interrupted", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return ix, cache
}

// buildLLMStrategy returns the configured LLM strategy, or nil when the
// provider is "none" or unusable. A missing API key is a supported state.
func (s *Service) buildLLMStrategy(ctx context.Context) generate.Generator {
	cfg := s.cfg.LLM
	timeout := parseDuration(cfg.Timeout, 30*time.Second)

	var client llm.Client
	switch cfg.Provider {
	case "", "none":
		return nil
	case "openrouter":
		if cfg.APIKey == "" {
			s.logger.LogInfo(ctx, "no API key configured, running rule-based review only", map[string]interface{}{
				"provider": cfg.Provider,
			})
			return nil
		}
		c := openrouter.NewHTTPClient(cfg.APIKey, cfg.Model)
		if cfg.BaseURL != "" {
			c.SetBaseURL(cfg.BaseURL)
		}
		c.SetTimeout(timeout)
		client = c
	case "local":
		c := local.NewHTTPClient(cfg.BaseURL, cfg.Model)
		c.SetTimeout(timeout)
		client = c
	default:
		s.logger.LogWarning(ctx, "unknown llm provider, running rule-based review only", map[string]interface{}{
			"provider": cfg.Provider,
		})
		return nil
	}

	return generate.NewLLMStrategy(client, cfg.Model, s.cfg.Budget.MaxTokens, s.logger)
}

// writeArtifacts persists the Markdown and JSON artifacts. Failures are
// logged; the in-memory result is still returned to the caller.
func (s *Service) writeArtifacts(ctx context.Context, dir string, review domain.ReviewResult) (string, string) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.logger.LogWarning(ctx, "output directory unavailable, skipping artifacts", map[string]interface{}{
			"dir":   dir,
			"error": err.Error(),
		})
		return "", ""
	}

	mdPath := filepath.Join(dir, fmt.Sprintf("review-%s.md", review.RunID))
	jsonPath := filepath.Join(dir, fmt.Sprintf("review-%s.json", review.RunID))

	if err := writeTo(mdPath, func(f *os.File) error {
		return markdown.NewWriter().Write(f, review)
	}); err != nil {
		s.logger.LogWarning(ctx, "markdown artifact write failed", map[string]interface{}{
			"path":  mdPath,
			"error": err.Error(),
		})
		mdPath = ""
	}

	if err := writeTo(jsonPath, func(f *os.File) error {
		return jsonwriter.NewWriter().Write(f, review)
	}); err != nil {
		s.logger.LogWarning(ctx, "json artifact write failed", map[string]interface{}{
			"path":  jsonPath,
			"error": err.Error(),
		})
		jsonPath = ""
	}

	return mdPath, jsonPath
}

func writeTo(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
