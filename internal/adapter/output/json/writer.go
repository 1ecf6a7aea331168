// Package json serializes a review result as a machine-readable artifact.
package json

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/reviewpilot/reviewpilot/internal/domain"
)

// Writer emits review results as indented JSON.
type Writer struct{}

// NewWriter creates a JSON writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Write encodes the result to out.
func (w *Writer) Write(out io.Writer, result domain.ReviewResult) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		return fmt.Errorf("encode review result: %w", err)
	}
	return nil
}
