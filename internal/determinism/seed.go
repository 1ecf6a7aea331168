// Package determinism derives reproducible seeds for LLM calls so that
// identical inputs produce identical requests across runs.
package determinism

import (
	"crypto/sha256"
	"encoding/binary"
	"strings"
)

// Seed creates a deterministic uint64 seed from the given parts. The value
// is masked to fit in int64 for APIs that take signed seeds.
func Seed(parts ...string) uint64 {
	input := strings.Join(parts, "|")
	hash := sha256.Sum256([]byte(input))
	seed := binary.BigEndian.Uint64(hash[:8])
	return seed & 0x7FFFFFFFFFFFFFFF
}
