package retrieve_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewpilot/reviewpilot/internal/config"
	"github.com/reviewpilot/reviewpilot/internal/domain"
	"github.com/reviewpilot/reviewpilot/internal/index"
	"github.com/reviewpilot/reviewpilot/internal/retrieve"
)

type mapSource map[string]string

func (m mapSource) ReadFile(path string) ([]byte, error) {
	return []byte(m[path]), nil
}

func defaultConfig() config.RetrievalConfig {
	return config.RetrievalConfig{TopK: 5, MinSimilarity: 0.01, Alpha: 0.8, Beta: 0.2}
}

func buildIndex(t *testing.T, files mapSource) *index.FileIndex {
	t.Helper()
	ix := index.New(index.NewHashingEmbedder(256), index.Options{Window: 10, Stride: 10})
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	require.NoError(t, ix.Build(context.Background(), files, paths))
	return ix
}

func addedHunk(path string, start int, lines ...string) domain.DiffHunk {
	hunk := domain.DiffHunk{
		Path:     path,
		NewRange: domain.LineRange{Start: start, Lines: len(lines)},
	}
	for i, text := range lines {
		hunk.Added = append(hunk.Added, domain.DiffLine{Number: start + i, Text: text})
	}
	return hunk
}

func TestRetriever_ScoresNonIncreasingByRank(t *testing.T) {
	ix := buildIndex(t, mapSource{
		"db/pool.go":      "open database connection pool with retry",
		"db/migrate.go":   "run database migration scripts",
		"web/handler.go":  "parse request body and render template",
		"web/template.go": "render html template with header",
	})
	r := retrieve.New(ix, defaultConfig())

	bundle := r.Retrieve(addedHunk("db/conn.go", 10, "reuse the database connection pool"))
	require.NotEmpty(t, bundle.Contexts)

	for i := 1; i < len(bundle.Contexts); i++ {
		assert.GreaterOrEqual(t, bundle.Contexts[i-1].Score, bundle.Contexts[i].Score)
		assert.Equal(t, i, bundle.Contexts[i].Rank)
	}
}

func TestRetriever_ExcludesSelfCitation(t *testing.T) {
	content := "alpha beta gamma delta\nepsilon zeta eta theta"
	ix := index.New(index.NewHashingEmbedder(256), index.Options{Window: 2, Stride: 2})
	ix.Upsert(context.Background(), "app.py", content)

	r := retrieve.New(ix, defaultConfig())

	// Hunk covering exactly lines 1-2 of app.py matches the only chunk.
	bundle := r.Retrieve(addedHunk("app.py", 1, "alpha beta gamma delta", "epsilon zeta eta theta"))
	assert.Empty(t, bundle.Contexts, "the chunk identical to the hunk must not cite itself")
}

func TestRetriever_EmptyBundleBelowThreshold(t *testing.T) {
	ix := buildIndex(t, mapSource{"web/handler.go": "render html template"})
	cfg := defaultConfig()
	cfg.MinSimilarity = 0.99
	r := retrieve.New(ix, cfg)

	bundle := r.Retrieve(addedHunk("db/conn.go", 1, "completely unrelated words entirely"))
	assert.Empty(t, bundle.Contexts)
}

func TestRetriever_BinaryAndDeletionOnlyHunks(t *testing.T) {
	ix := buildIndex(t, mapSource{"web/handler.go": "render html template"})
	r := retrieve.New(ix, defaultConfig())

	binary := r.Retrieve(domain.DiffHunk{Path: "logo.png", Binary: true})
	assert.Empty(t, binary.Contexts)

	deletion := r.Retrieve(domain.DiffHunk{
		Path:    "web/handler.go",
		Removed: []domain.DiffLine{{Number: 3, Text: "gone"}},
	})
	assert.Empty(t, deletion.Contexts)
}

func TestRetriever_PathAffinityBreaksSemanticTies(t *testing.T) {
	// Two files with identical content: one in the hunk's directory, one
	// elsewhere. Raw similarity ties; path affinity must favor the sibling.
	content := "shared helper used by the handler"
	ix := buildIndex(t, mapSource{
		"web/helper.go":   content,
		"other/helper.go": content,
	})
	r := retrieve.New(ix, defaultConfig())

	bundle := r.Retrieve(addedHunk("web/handler.go", 5, "call the shared helper"))
	require.GreaterOrEqual(t, len(bundle.Contexts), 2)
	assert.Equal(t, "web/helper.go", bundle.Contexts[0].Chunk.Path)
}

func TestRetriever_TopKLimit(t *testing.T) {
	files := mapSource{}
	for _, name := range []string{"a.go", "b.go", "c.go", "d.go", "e.go", "f.go", "g.go"} {
		files["pkg/"+name] = "common vocabulary shared by every file"
	}
	ix := buildIndex(t, files)

	cfg := defaultConfig()
	cfg.TopK = 3
	r := retrieve.New(ix, cfg)

	bundle := r.Retrieve(addedHunk("pkg/new.go", 1, "common vocabulary shared by every file"))
	assert.Len(t, bundle.Contexts, 3)
}
