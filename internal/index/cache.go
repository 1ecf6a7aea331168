package index

import (
	"bytes"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/reviewpilot/reviewpilot/internal/domain"
)

// Cache is the cross-run chunk cache, keyed by (path, content hash) so
// concurrent invocations on different revisions never see each other's
// entries. The handle has an explicit lifecycle and is passed through the
// pipeline rather than held as package state.
type Cache struct {
	db *sql.DB
}

// OpenCache opens (creating if needed) the cache database under cacheDir.
func OpenCache(cacheDir string) (*Cache, error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(cacheDir, "index.db"))
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	c := &Cache{db: db}
	if err := c.createSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create cache schema: %w", err)
	}
	return c, nil
}

// Close releases the database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		path TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		start_line INTEGER NOT NULL,
		end_line INTEGER NOT NULL,
		text TEXT NOT NULL,
		vector BLOB,
		language TEXT NOT NULL,
		PRIMARY KEY (path, content_hash, start_line)
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_path_hash ON chunks(path, content_hash);
	`

	_, err := c.db.Exec(schema)
	return err
}

// Lookup returns the cached chunks for a (path, content hash) pair.
// The second return value is false on a cache miss.
func (c *Cache) Lookup(path, contentHash string) ([]*domain.IndexedChunk, bool, error) {
	rows, err := c.db.Query(`
		SELECT start_line, end_line, text, vector, language
		FROM chunks
		WHERE path = ? AND content_hash = ?
		ORDER BY start_line`,
		path, contentHash,
	)
	if err != nil {
		return nil, false, fmt.Errorf("query cache: %w", err)
	}
	defer rows.Close()

	var chunks []*domain.IndexedChunk
	for rows.Next() {
		chunk := &domain.IndexedChunk{Path: path}
		var blob []byte
		if err := rows.Scan(&chunk.StartLine, &chunk.EndLine, &chunk.Text, &blob, &chunk.Language); err != nil {
			return nil, false, fmt.Errorf("scan cached chunk: %w", err)
		}
		chunk.Vector = decodeVector(blob)
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate cached chunks: %w", err)
	}

	return chunks, len(chunks) > 0, nil
}

// retainedHashesPerPath bounds how many revisions of a path the cache
// keeps. Concurrent invocations on different revisions must not evict each
// other, so eviction keeps the most recently stored hashes.
const retainedHashesPerPath = 4

// Store replaces the cached chunks for a (path, content hash) pair.
// Entries for other hashes of the same path survive, oldest-stored first
// to go once the per-path retention bound is exceeded.
func (c *Cache) Store(path, contentHash string, chunks []*domain.IndexedChunk) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("begin cache transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM chunks WHERE path = ? AND content_hash = ?`, path, contentHash); err != nil {
		return fmt.Errorf("evict stale chunks: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO chunks (path, content_hash, start_line, end_line, text, vector, language)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare cache insert: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		if _, err := stmt.Exec(path, contentHash, chunk.StartLine, chunk.EndLine, chunk.Text, encodeVector(chunk.Vector), chunk.Language); err != nil {
			return fmt.Errorf("insert cached chunk: %w", err)
		}
	}

	if _, err := tx.Exec(`
		DELETE FROM chunks WHERE path = ? AND content_hash NOT IN (
			SELECT content_hash FROM chunks WHERE path = ?
			GROUP BY content_hash ORDER BY MAX(rowid) DESC LIMIT ?)`,
		path, path, retainedHashesPerPath,
	); err != nil {
		return fmt.Errorf("prune old revisions: %w", err)
	}

	return tx.Commit()
}

// encodeVector serializes a vector as little-endian float32 bits.
func encodeVector(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := bytes.NewBuffer(make([]byte, 0, len(vec)*4))
	for _, v := range vec {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
		buf.Write(b[:])
	}
	return buf.Bytes()
}

func decodeVector(blob []byte) []float32 {
	if len(blob) < 4 {
		return nil
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec
}
