package evidence

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	defaultEncoder *tiktoken.Tiktoken
	encoderOnce    sync.Once
	encoderErr     error
)

// getEncoder returns the shared tiktoken encoder, initializing it lazily.
// cl100k_base is the GPT-4 encoding and a reasonable approximation for the
// OpenAI-compatible models reachable through OpenRouter or a local server.
func getEncoder() (*tiktoken.Tiktoken, error) {
	encoderOnce.Do(func() {
		defaultEncoder, encoderErr = tiktoken.GetEncoding("cl100k_base")
	})
	return defaultEncoder, encoderErr
}

// estimateTextTokens returns an estimated token count for the given text
// using the cl100k_base encoding. If the encoder cannot be initialized it
// falls back to a characters/4 estimate, which keeps budget math consistent
// with the byte ceiling derived from maxTokens*4.
func estimateTextTokens(text string) int {
	enc, err := getEncoder()
	if err != nil {
		return len(text) / 4
	}
	tokens := enc.Encode(text, nil, nil)
	return len(tokens)
}
