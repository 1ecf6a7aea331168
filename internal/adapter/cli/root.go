// Package cli defines the rp command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/reviewpilot/reviewpilot/internal/usecase/review"
)

// ErrVersionRequested indicates the user requested the CLI version and no
// further work should be done.
var ErrVersionRequested = errors.New("version requested")

// Reviewer is the dependency required to run the review command.
type Reviewer interface {
	Review(ctx context.Context, req review.Request) (review.Result, error)
}

// Arguments encapsulates IO writers injected from the host process.
type Arguments struct {
	OutWriter io.Writer
	ErrWriter io.Writer
}

// Dependencies captures the collaborators for the CLI.
type Dependencies struct {
	Reviewer      Reviewer
	Args          Arguments
	DefaultOutput string
	DefaultRepo   string
	Version       string
}

// NewRootCommand constructs the root Cobra command.
func NewRootCommand(deps Dependencies) *cobra.Command {
	versionString := deps.Version
	if versionString == "" {
		versionString = "v0.0.0"
	}

	root := &cobra.Command{
		Use:   "rp",
		Short: "Retrieval-grounded pull request review CLI",
	}
	root.SilenceUsage = true
	root.SilenceErrors = true

	outWriter := deps.Args.OutWriter
	if outWriter == nil {
		outWriter = os.Stdout
	}
	errWriter := deps.Args.ErrWriter
	if errWriter == nil {
		errWriter = os.Stderr
	}
	root.SetOut(outWriter)
	root.SetErr(errWriter)

	root.AddCommand(reviewCommand(deps.Reviewer, deps.DefaultOutput, deps.DefaultRepo))

	var showVersion bool
	root.PersistentFlags().BoolVarP(&showVersion, "version", "v", false, "Show version and exit")
	versionHandler := func(cmd *cobra.Command, args []string) error {
		if showVersion {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), versionString)
			return ErrVersionRequested
		}
		return nil
	}
	root.PersistentPreRunE = versionHandler
	root.RunE = func(cmd *cobra.Command, args []string) error {
		if err := versionHandler(cmd, args); err != nil {
			return err
		}
		return cmd.Help()
	}

	return root
}

func reviewCommand(reviewer Reviewer, defaultOutput, defaultRepo string) *cobra.Command {
	var baseRef string
	var headRef string
	var diffFile string
	var repoDir string
	var outputDir string

	cmd := &cobra.Command{
		Use:   "review",
		Short: "Review the changes between two revisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := reviewer.Review(cmd.Context(), review.Request{
				Base:      baseRef,
				Head:      headRef,
				DiffFile:  diffFile,
				RepoDir:   repoDir,
				OutputDir: outputDir,
			})
			if err != nil {
				return err
			}
			printOutcome(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().StringVar(&baseRef, "base", "main", "Base revision to diff against")
	cmd.Flags().StringVar(&headRef, "head", "HEAD", "Head revision under review")
	cmd.Flags().StringVar(&diffFile, "diff", "", "Unified diff file to review instead of computing one")
	cmd.Flags().StringVar(&repoDir, "repo", defaultRepo, "Repository directory")
	cmd.Flags().StringVar(&outputDir, "output", defaultOutput, "Directory for review artifacts")

	return cmd
}

func printOutcome(out io.Writer, result review.Result) {
	r := result.Review
	if r.ReviewedHunks == 0 {
		fmt.Fprintln(out, "no supported files changed")
	} else {
		fmt.Fprintf(out, "reviewed %d hunk(s): %d finding(s), %d inline comment(s) [%s]\n",
			r.ReviewedHunks, len(r.Summary), len(r.InlineComments), r.Mode)
	}
	for _, path := range r.NotReviewed {
		fmt.Fprintf(out, "not reviewed: %s\n", path)
	}
	if result.MarkdownPath != "" {
		fmt.Fprintf(out, "markdown: %s\n", result.MarkdownPath)
	}
	if result.JSONPath != "" {
		fmt.Fprintf(out, "json: %s\n", result.JSONPath)
	}
}
