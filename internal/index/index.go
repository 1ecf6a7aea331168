// Package index builds and queries a compact vector representation of
// indexable repository files.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/reviewpilot/reviewpilot/internal/domain"
	"github.com/reviewpilot/reviewpilot/internal/observability"
)

// indexableExtensions is the fixed allow-list of file types that are
// chunked and embedded. Other changed files are still diffed and listed
// but never retrieved-from or cited-into.
var indexableExtensions = map[string]string{
	".go":   "go",
	".py":   "python",
	".js":   "javascript",
	".ts":   "typescript",
	".java": "java",
	".c":    "c",
	".h":    "c",
	".rb":   "ruby",
	".rs":   "rust",
	".md":   "markdown",
	".yaml": "yaml",
	".yml":  "yaml",
}

// Indexable reports whether a path's extension is on the allow-list.
func Indexable(path string) bool {
	_, ok := indexableExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

func languageTag(path string) string {
	return indexableExtensions[strings.ToLower(filepath.Ext(path))]
}

// Source provides file content for indexing.
type Source interface {
	ReadFile(path string) ([]byte, error)
}

// Neighbor is one query result: a chunk and its similarity to the query.
type Neighbor struct {
	Chunk      *domain.IndexedChunk
	Similarity float64
}

// Options configures chunking and caching.
type Options struct {
	Window int // lines per chunk
	Stride int // lines between chunk starts; < Window overlaps
	Cache  *Cache
	Logger observability.Logger
}

// FileIndex holds the indexed chunks of a repository snapshot. Reads are
// safe for concurrent use; Build, Upsert, and Remove take the write lock.
type FileIndex struct {
	mu       sync.RWMutex
	chunks   []*domain.IndexedChunk
	byPath   map[string][]*domain.IndexedChunk
	hashes   map[string]string
	embedder Embedder
	window   int
	stride   int
	cache    *Cache
	logger   observability.Logger
	degraded bool
}

// New constructs an empty FileIndex.
func New(embedder Embedder, opts Options) *FileIndex {
	window := opts.Window
	if window <= 0 {
		window = 40
	}
	stride := opts.Stride
	if stride <= 0 {
		stride = window
	}
	logger := opts.Logger
	if logger == nil {
		logger = observability.NopLogger{}
	}
	return &FileIndex{
		byPath:   make(map[string][]*domain.IndexedChunk),
		hashes:   make(map[string]string),
		embedder: embedder,
		window:   window,
		stride:   stride,
		cache:    opts.Cache,
		logger:   logger,
	}
}

// Degraded reports whether the index fell back to lexical scoring because
// the embedding collaborator was unavailable.
func (ix *FileIndex) Degraded() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.degraded
}

// Len returns the number of indexed chunks.
func (ix *FileIndex) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.chunks)
}

// Build indexes the given paths from the source. Unsupported extensions and
// unreadable files are skipped silently; a failing embedder degrades the
// index to lexical scoring instead of failing the run.
func (ix *FileIndex) Build(ctx context.Context, source Source, paths []string) error {
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !Indexable(path) {
			continue
		}
		content, err := source.ReadFile(path)
		if err != nil {
			ix.logger.LogWarning(ctx, "unreadable file skipped during indexing", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
			continue
		}
		ix.Upsert(ctx, path, string(content))
	}
	return nil
}

// Upsert replaces the chunks for one file. Unchanged content (by hash) is a
// no-op; on a hash change the cache is consulted before re-embedding.
func (ix *FileIndex) Upsert(ctx context.Context, path, content string) {
	hash := ContentHash(content)

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.hashes[path] == hash {
		return
	}

	if ix.cache != nil {
		if cached, ok, err := ix.cache.Lookup(path, hash); err == nil && ok {
			ix.replaceLocked(path, hash, cached)
			return
		}
	}

	chunks := ix.chunkFile(path, content)
	embedded := true
	for _, chunk := range chunks {
		vec, err := ix.embedder.Embed(chunk.Text)
		if err != nil {
			embedded = false
			if !ix.degraded {
				ix.degraded = true
				ix.logger.LogWarning(ctx, "embedding unavailable, index degraded to lexical scoring", map[string]interface{}{
					"path":  path,
					"error": err.Error(),
				})
			}
			continue
		}
		chunk.Vector = vec
	}

	ix.replaceLocked(path, hash, chunks)

	if ix.cache != nil && embedded {
		if err := ix.cache.Store(path, hash, chunks); err != nil {
			ix.logger.LogWarning(ctx, "index cache write failed", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
		}
	}
}

// Remove drops all chunks for a path.
func (ix *FileIndex) Remove(path string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.replaceLocked(path, "", nil)
	delete(ix.hashes, path)
}

func (ix *FileIndex) replaceLocked(path, hash string, chunks []*domain.IndexedChunk) {
	if len(ix.byPath[path]) > 0 {
		kept := ix.chunks[:0]
		for _, c := range ix.chunks {
			if c.Path != path {
				kept = append(kept, c)
			}
		}
		ix.chunks = kept
	}
	delete(ix.byPath, path)

	if len(chunks) > 0 {
		ix.chunks = append(ix.chunks, chunks...)
		ix.byPath[path] = chunks
	}
	if hash != "" {
		ix.hashes[path] = hash
	}
}

// chunkFile splits content into fixed-size line windows.
func (ix *FileIndex) chunkFile(path, content string) []*domain.IndexedChunk {
	lines := strings.Split(content, "\n")
	lang := languageTag(path)

	var chunks []*domain.IndexedChunk
	for start := 0; start < len(lines); start += ix.stride {
		end := start + ix.window
		if end > len(lines) {
			end = len(lines)
		}
		text := strings.Join(lines[start:end], "\n")
		if strings.TrimSpace(text) != "" {
			chunks = append(chunks, &domain.IndexedChunk{
				Path:      path,
				StartLine: start + 1,
				EndLine:   end,
				Text:      text,
				Language:  lang,
			})
		}
		if end == len(lines) {
			break
		}
	}
	return chunks
}

// Query returns the k nearest chunks to the query vector by cosine
// similarity. Ties are broken by shorter path, then lower start line, so
// results are deterministic across runs.
func (ix *FileIndex) Query(vector []float32, k int) []Neighbor {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	neighbors := make([]Neighbor, 0, len(ix.chunks))
	for _, chunk := range ix.chunks {
		if len(chunk.Vector) == 0 {
			continue
		}
		neighbors = append(neighbors, Neighbor{
			Chunk:      chunk,
			Similarity: Cosine(vector, chunk.Vector),
		})
	}
	return topK(neighbors, k)
}

// SearchLexical scores chunks by token overlap with the query text. This is
// the retrieval path when the embedding collaborator is unavailable.
func (ix *FileIndex) SearchLexical(query string, k int) []Neighbor {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	neighbors := make([]Neighbor, 0, len(ix.chunks))
	for _, chunk := range ix.chunks {
		neighbors = append(neighbors, Neighbor{
			Chunk:      chunk,
			Similarity: TokenOverlap(query, chunk.Text),
		})
	}
	return topK(neighbors, k)
}

// Search embeds the query and runs a vector query, falling back to lexical
// scoring if the index is degraded or the query cannot be embedded.
func (ix *FileIndex) Search(query string, k int) []Neighbor {
	if ix.Degraded() {
		return ix.SearchLexical(query, k)
	}
	vec, err := ix.embedder.Embed(query)
	if err != nil {
		return ix.SearchLexical(query, k)
	}
	return ix.Query(vec, k)
}

func topK(neighbors []Neighbor, k int) []Neighbor {
	sort.Slice(neighbors, func(i, j int) bool {
		a, b := neighbors[i], neighbors[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if len(a.Chunk.Path) != len(b.Chunk.Path) {
			return len(a.Chunk.Path) < len(b.Chunk.Path)
		}
		if a.Chunk.Path != b.Chunk.Path {
			return a.Chunk.Path < b.Chunk.Path
		}
		return a.Chunk.StartLine < b.Chunk.StartLine
	})
	if k > 0 && len(neighbors) > k {
		neighbors = neighbors[:k]
	}
	return neighbors
}

// ContentHash returns the hex SHA-256 of the content, the cache key for
// incremental updates.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
