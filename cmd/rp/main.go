package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/term"

	"github.com/reviewpilot/reviewpilot/internal/adapter/cli"
	"github.com/reviewpilot/reviewpilot/internal/config"
	"github.com/reviewpilot/reviewpilot/internal/observability"
	"github.com/reviewpilot/reviewpilot/internal/usecase/review"
	"github.com/reviewpilot/reviewpilot/internal/version"
)

func main() {
	if err := run(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(config.LoaderOptions{
		ConfigPaths: defaultConfigPaths(),
		FileName:    "rp",
		EnvPrefix:   "RP",
	})
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	logger := buildLogger(cfg.Observability.Logging)
	service := review.NewService(cfg, logger)

	root := cli.NewRootCommand(cli.Dependencies{
		Reviewer:      service,
		DefaultOutput: cfg.Output.Directory,
		DefaultRepo:   cfg.Git.RepositoryDir,
		Version:       version.Value(),
	})

	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, cli.ErrVersionRequested) {
			return nil
		}
		return fmt.Errorf("command failed: %w", err)
	}
	return nil
}

// buildLogger resolves the configured format, using TTY detection for
// "auto": human lines on a terminal, JSON lines otherwise.
func buildLogger(cfg config.LoggingConfig) observability.Logger {
	format := cfg.Format
	if format == "" || format == "auto" {
		if term.IsTerminal(int(os.Stderr.Fd())) {
			format = "human"
		} else {
			format = "json"
		}
	}
	return observability.NewDefaultLogger(
		observability.ParseLevel(cfg.Level),
		observability.ParseFormat(format),
		cfg.RedactAPIKeys,
		os.Stderr,
	)
}

func defaultConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "rp"))
	}
	return paths
}
