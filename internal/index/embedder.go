package index

import (
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Embedder turns text into a fixed-dimension vector. The production
// collaborator may be a remote model; the built-in default is a
// deterministic feature-hashing embedder that needs no network.
type Embedder interface {
	Embed(text string) ([]float32, error)
	Dimension() int
}

// HashingEmbedder embeds text as an L2-normalized term-frequency vector,
// hashing each token into a fixed number of buckets. Identical input always
// produces an identical vector.
type HashingEmbedder struct {
	dim int
}

// NewHashingEmbedder creates an embedder with the given dimension.
func NewHashingEmbedder(dim int) *HashingEmbedder {
	if dim <= 0 {
		dim = 256
	}
	return &HashingEmbedder{dim: dim}
}

func (e *HashingEmbedder) Dimension() int {
	return e.dim
}

func (e *HashingEmbedder) Embed(text string) ([]float32, error) {
	vec := make([]float32, e.dim)
	tokens := Tokenize(text)
	for _, tok := range tokens {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		vec[h.Sum32()%uint32(e.dim)]++
	}

	normalize(vec)
	return vec, nil
}

// Tokenize lowercases the input and splits it on non-alphanumeric runes.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Cosine returns the cosine similarity of two vectors of equal length.
// Vectors produced by the embedders here are already normalized, so this
// reduces to a dot product, but un-normalized inputs are handled too.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// TokenOverlap is the lexical fallback score: Jaccard similarity over the
// token sets of the two inputs.
func TokenOverlap(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range Tokenize(text) {
		set[tok] = struct{}{}
	}
	return set
}

func normalize(vec []float32) {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
}
