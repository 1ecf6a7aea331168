package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// LoaderOptions describes how configuration should be discovered.
type LoaderOptions struct {
	ConfigPaths []string
	FileName    string
	EnvPrefix   string
}

// Load returns the merged configuration from files and environment variables.
func Load(opts LoaderOptions) (Config, error) {
	v := viper.New()

	name := opts.FileName
	if name == "" {
		name = "rp"
	}

	configFile := locateConfigFile(name, opts.ConfigPaths)
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(name)
	}

	prefix := opts.EnvPrefix
	if prefix == "" {
		prefix = "RP"
	}
	v.SetEnvPrefix(prefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AllowEmptyEnv(true)

	setDefaults(v)

	if configFile != "" {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	return expandEnvVars(cfg), nil
}

// expandEnvVars expands ${VAR} and $VAR syntax in configuration strings.
func expandEnvVars(cfg Config) Config {
	cfg.LLM.APIKey = expandEnvString(cfg.LLM.APIKey)
	cfg.LLM.Model = expandEnvString(cfg.LLM.Model)
	cfg.LLM.BaseURL = expandEnvString(cfg.LLM.BaseURL)
	cfg.Git.RepositoryDir = expandEnvString(cfg.Git.RepositoryDir)
	cfg.Index.CacheDir = expandEnvString(cfg.Index.CacheDir)
	cfg.Output.Directory = expandEnvString(cfg.Output.Directory)
	cfg.Observability.MetricsPath = expandEnvString(cfg.Observability.MetricsPath)
	cfg.Observability.Logging.Level = expandEnvString(cfg.Observability.Logging.Level)
	cfg.Observability.Logging.Format = expandEnvString(cfg.Observability.Logging.Format)
	return cfg
}

var (
	bracedVarPattern = regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`)
	bareVarPattern   = regexp.MustCompile(`\$([A-Z_][A-Z0-9_]*)`)
)

// expandEnvString replaces ${VAR} or $VAR with environment variable values.
func expandEnvString(s string) string {
	if s == "" {
		return s
	}

	s = bracedVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match // Keep original if not found
	})

	s = bareVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[1:]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})

	return s
}

func locateConfigFile(name string, paths []string) string {
	searchPaths := append([]string{}, paths...)
	searchPaths = append(searchPaths, ".")
	for _, dir := range searchPaths {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name+".yaml")
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "none")
	v.SetDefault("llm.timeout", "30s")

	v.SetDefault("retrieval.topK", 5)
	v.SetDefault("retrieval.minSimilarity", 0.1)
	v.SetDefault("retrieval.alpha", 0.8)
	v.SetDefault("retrieval.beta", 0.2)

	v.SetDefault("index.window", 40)
	v.SetDefault("index.stride", 30)
	v.SetDefault("index.dimension", 256)
	v.SetDefault("index.cacheDir", filepath.Join(".rp", "cache"))

	v.SetDefault("budget.maxTokens", 512)
	v.SetDefault("budget.latency", "90s")
	v.SetDefault("budget.workers", 4)

	v.SetDefault("git.repositoryDir", ".")
	v.SetDefault("output.directory", "review-output")

	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "auto")
	v.SetDefault("observability.logging.redactAPIKeys", true)
	v.SetDefault("observability.metricsPath", "review-metrics.jsonl")
}
