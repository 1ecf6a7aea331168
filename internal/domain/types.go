package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// ReviewMode identifies which strategy produced a ReviewResult.
type ReviewMode string

const (
	ModeLLM      ReviewMode = "llm"
	ModeFallback ReviewMode = "fallback"
)

// IndexedChunk is a fixed-size line window of a repository file, the unit
// of indexing and retrieval. Chunks are owned by the FileIndex and are
// immutable once built; they are invalidated and rebuilt when the file's
// content hash changes.
type IndexedChunk struct {
	Path      string
	StartLine int
	EndLine   int
	Text      string
	Vector    []float32
	Language  string
}

// LineRange is a line span as it appears in a hunk header.
type LineRange struct {
	Start int
	Lines int
}

// Contains reports whether the given line number falls inside the range.
func (r LineRange) Contains(line int) bool {
	return line >= r.Start && line < r.Start+r.Lines
}

// DiffLine is a single added or removed line with its line number.
// Added lines are numbered on the new side, removed lines on the old side.
type DiffLine struct {
	Number int
	Text   string
}

// DiffHunk is one contiguous block of changes in a unified diff.
// Binary or non-indexable diffs pass through with empty Added so they can
// still appear in the summary as "not reviewed".
type DiffHunk struct {
	Path     string
	OldRange LineRange
	NewRange LineRange
	Added    []DiffLine
	Removed  []DiffLine
	Binary   bool
}

// RetrievedContext is one nearest-context candidate for a hunk.
// Within a result set, scores are non-increasing by rank.
type RetrievedContext struct {
	Chunk *IndexedChunk
	Score float64
	Rank  int
}

// EvidenceBundle is the diff hunk plus its retrieved context, sized to fit
// the token budget. Truncation drops the lowest-score contexts first and
// never the diff itself. ChangedPaths lists every path the diff touches,
// for heuristics that look across files.
type EvidenceBundle struct {
	Hunk         DiffHunk
	Contexts     []RetrievedContext
	ChangedPaths []string
	BytesUsed    int
	Truncated    bool
}

// Citation is a (path, line) pointer proving the evidentiary basis of a
// Finding.
type Citation struct {
	Path string `json:"path"`
	Line int    `json:"line"`
}

func (c Citation) String() string {
	return fmt.Sprintf("%s:%d", c.Path, c.Line)
}

// Finding is a single issue emitted by a generator strategy. Every citation
// must resolve to a line present in the diff or in a retrieved context of
// the bundle that produced it; findings failing validation are discarded.
type Finding struct {
	ID        string     `json:"id"`
	Source    string     `json:"source"` // rule ID or model ID that produced it
	Severity  string     `json:"severity"`
	Message   string     `json:"message"`
	Citations []Citation `json:"citations"`
}

// FindingInput captures the information required to create a Finding.
type FindingInput struct {
	Source    string
	Severity  string
	Message   string
	Citations []Citation
}

// NewFinding constructs a Finding with a deterministic ID derived from its
// content, so identical inputs yield identical findings across runs.
func NewFinding(input FindingInput) Finding {
	return Finding{
		ID:        hashFinding(input),
		Source:    input.Source,
		Severity:  input.Severity,
		Message:   input.Message,
		Citations: input.Citations,
	}
}

func hashFinding(input FindingInput) string {
	var sb strings.Builder
	sb.WriteString(input.Source)
	sb.WriteString("|")
	sb.WriteString(input.Severity)
	sb.WriteString("|")
	sb.WriteString(input.Message)
	for _, c := range input.Citations {
		sb.WriteString("|")
		sb.WriteString(c.String())
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// InlineComment is one review comment anchored to a changed line.
type InlineComment struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Body string `json:"body"`
}

// ReviewResult is the terminal artifact of one review run. A run with
// zero reviewed hunks is a valid outcome, not an error.
type ReviewResult struct {
	RunID          string          `json:"runId"`
	Mode           ReviewMode      `json:"mode"`
	InlineComments []InlineComment `json:"inlineComments"`
	Summary        []Finding       `json:"summary"`
	NotReviewed    []string        `json:"notReviewed,omitempty"`
	ReviewedHunks  int             `json:"reviewedHunks"`
}
