// Package llm defines the provider-neutral client contract shared by the
// LLM adapters.
package llm

import "context"

// Request is the payload sent to a provider for one evidence bundle.
type Request struct {
	Prompt    string
	Seed      uint64
	MaxTokens int
}

// RawCitation is a (path, line) claim made by the model, prior to
// validation against the evidence bundle.
type RawCitation struct {
	Path string `json:"path"`
	Line int    `json:"line"`
}

// RawFinding is a model-claimed finding before citation validation. The
// generate layer validates every citation and drops findings that fail.
type RawFinding struct {
	Severity  string        `json:"severity"`
	Message   string        `json:"message"`
	Citations []RawCitation `json:"citations"`
}

// Response is the standardized response from any provider client.
type Response struct {
	Model     string
	Findings  []RawFinding
	TokensIn  int
	TokensOut int
}

// Client is the transport-level contract implemented by the openrouter and
// local providers.
type Client interface {
	Generate(ctx context.Context, req Request) (Response, error)
}
