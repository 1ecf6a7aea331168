// Package local implements the LLM client for an Ollama-style local
// inference server. No API key is required; absence of one is a fully
// supported state.
package local

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/reviewpilot/reviewpilot/internal/adapter/llm"
	llmhttp "github.com/reviewpilot/reviewpilot/internal/adapter/llm/http"
	"github.com/reviewpilot/reviewpilot/internal/adapter/llm/openrouter"
)

const (
	defaultBaseURL = "http://localhost:11434"
	defaultTimeout = 120 * time.Second // local models can be slower
)

// GenerateRequest is the request body for the local generate endpoint.
type GenerateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	System  string                 `json:"system,omitempty"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

// GenerateResponse is the response body of a generate call.
type GenerateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// HTTPClient is an HTTP client for a local inference server.
type HTTPClient struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewHTTPClient creates a new local client. An empty baseURL uses the
// default Ollama address.
func NewHTTPClient(baseURL, model string) *HTTPClient {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &HTTPClient{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

// SetTimeout sets the HTTP timeout.
func (c *HTTPClient) SetTimeout(timeout time.Duration) {
	c.client.Timeout = timeout
}

// Generate sends the evidence prompt and parses the structured response.
// The local dialect shares the JSON findings contract with openrouter.
func (c *HTTPClient) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	reqBody := GenerateRequest{
		Model:  c.model,
		Prompt: req.Prompt,
		System: "Respond with a JSON object {\"findings\": [...]} citing only lines present in the input.",
		Stream: false,
		Options: map[string]interface{}{
			"temperature": 0.0,
			"seed":        float64(req.Seed),
			"num_predict": req.MaxTokens,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return llm.Response{}, fmt.Errorf("marshal request: %w", err)
	}

	url := c.baseURL + "/api/generate"

	var response llm.Response
	operation := func(ctx context.Context) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
		if err != nil {
			return &llmhttp.Error{Type: llmhttp.ErrTypeUnknown, Message: err.Error(), Provider: "local"}
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(httpReq)
		if err != nil {
			if strings.Contains(err.Error(), "connection refused") {
				return &llmhttp.Error{
					Type:     llmhttp.ErrTypeServiceUnavailable,
					Message:  "local inference server not reachable: " + err.Error(),
					Provider: "local",
				}
			}
			return llmhttp.NewTimeoutError("local", err.Error())
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return llmhttp.NewServiceUnavailableError("local", fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(body, 200)))
		}

		var genResp GenerateResponse
		if err := json.Unmarshal(body, &genResp); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}

		findings, err := openrouter.ParseFindings(genResp.Response)
		if err != nil {
			return llmhttp.NewInvalidRequestError("local", fmt.Sprintf("unparseable model output: %v", err))
		}

		response = llm.Response{
			Model:     genResp.Model,
			Findings:  findings,
			TokensIn:  genResp.PromptEvalCount,
			TokensOut: genResp.EvalCount,
		}
		return nil
	}

	if err := llmhttp.RetryWithBackoff(ctx, operation, llmhttp.DefaultRetryConfig()); err != nil {
		return llm.Response{}, err
	}
	return response, nil
}

func truncate(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n])
}
