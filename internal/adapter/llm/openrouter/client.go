// Package openrouter implements the LLM client for the OpenRouter API,
// which speaks the OpenAI chat-completions dialect.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/reviewpilot/reviewpilot/internal/adapter/llm"
	llmhttp "github.com/reviewpilot/reviewpilot/internal/adapter/llm/http"
)

const (
	defaultBaseURL = "https://openrouter.ai/api"
	defaultTimeout = 30 * time.Second
)

const systemPrompt = "You are a code review assistant. Respond with a JSON object " +
	`{"findings": [{"severity": "...", "message": "...", "citations": [{"path": "...", "line": N}]}]}. ` +
	"Every finding must cite lines shown in the diff or the provided context; do not invent locations."

// HTTPClient is an HTTP client for the OpenRouter API.
type HTTPClient struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a new OpenRouter client.
func NewHTTPClient(apiKey, model string) *HTTPClient {
	return &HTTPClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

// SetBaseURL overrides the endpoint (for testing).
func (c *HTTPClient) SetBaseURL(url string) {
	c.baseURL = url
}

// SetTimeout sets the HTTP timeout.
func (c *HTTPClient) SetTimeout(timeout time.Duration) {
	c.client.Timeout = timeout
}

// Generate sends the evidence prompt and parses the structured response.
func (c *HTTPClient) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	seed := req.Seed
	reqBody := ChatCompletionRequest{
		Model: c.model,
		Messages: []Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: req.Prompt},
		},
		Temperature: 0.0,
		Seed:        &seed,
		MaxTokens:   req.MaxTokens,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return llm.Response{}, fmt.Errorf("marshal request: %w", err)
	}

	url := c.baseURL + "/v1/chat/completions"

	var response llm.Response
	operation := func(ctx context.Context) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
		if err != nil {
			return &llmhttp.Error{Type: llmhttp.ErrTypeUnknown, Message: err.Error(), Provider: "openrouter"}
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.client.Do(httpReq)
		if err != nil {
			return llmhttp.NewTimeoutError("openrouter", err.Error())
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return handleErrorResponse(resp.StatusCode, body)
		}

		var chatResp ChatCompletionResponse
		if err := json.Unmarshal(body, &chatResp); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
		if len(chatResp.Choices) == 0 {
			return fmt.Errorf("no choices in response")
		}

		findings, err := ParseFindings(chatResp.Choices[0].Message.Content)
		if err != nil {
			return llmhttp.NewInvalidRequestError("openrouter", fmt.Sprintf("unparseable model output: %v", err))
		}

		response = llm.Response{
			Model:     chatResp.Model,
			Findings:  findings,
			TokensIn:  chatResp.Usage.PromptTokens,
			TokensOut: chatResp.Usage.CompletionTokens,
		}
		return nil
	}

	if err := llmhttp.RetryWithBackoff(ctx, operation, llmhttp.DefaultRetryConfig()); err != nil {
		return llm.Response{}, err
	}
	return response, nil
}

func handleErrorResponse(statusCode int, body []byte) error {
	message := fmt.Sprintf("HTTP %d", statusCode)

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	} else if len(body) > 0 && len(body) < 200 {
		message = string(body)
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return llmhttp.NewAuthenticationError("openrouter", message)
	case http.StatusTooManyRequests:
		return llmhttp.NewRateLimitError("openrouter", message)
	case http.StatusBadRequest:
		return llmhttp.NewInvalidRequestError("openrouter", message)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return llmhttp.NewServiceUnavailableError("openrouter", message)
	default:
		return &llmhttp.Error{
			Type:       llmhttp.ErrTypeUnknown,
			Message:    message,
			StatusCode: statusCode,
			Provider:   "openrouter",
		}
	}
}

var markdownJSONPattern = regexp.MustCompile("(?s)```(?:json)?\\s*({.*?})\\s*```")

// ParseFindings extracts the findings array from the model output,
// tolerating markdown code fences around the JSON body.
func ParseFindings(text string) ([]llm.RawFinding, error) {
	jsonText := text
	if matches := markdownJSONPattern.FindStringSubmatch(text); len(matches) > 1 {
		jsonText = matches[1]
	}

	var result struct {
		Findings []llm.RawFinding `json:"findings"`
	}
	if err := json.Unmarshal([]byte(jsonText), &result); err != nil {
		return nil, fmt.Errorf("parse findings JSON: %w", err)
	}
	return result.Findings, nil
}
