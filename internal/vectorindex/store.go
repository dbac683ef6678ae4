// Package vectorindex keeps one similarity-searchable index per session on
// local disk. Each session owns the directory <root>/<prefix><session_id>
// holding a single SQLite file with chunk texts and their embeddings.
//
// Replace writes the new index beside the live one and renames it into
// place, so a concurrent Search opens either the previous index or the new
// one, never a half-written file.
package vectorindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const indexFileName = "index.db"

var (
	ErrIndexMissing      = errors.New("vector index not found")
	ErrInvalidSessionID  = errors.New("invalid session id for index path")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrEmptyIndex        = errors.New("no entries to index")
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Entry is one chunk and its embedding.
type Entry struct {
	Text   string
	Vector []float32
}

// Hit is a search result; higher Score means more similar.
type Hit struct {
	Ord   int     `json:"ord"`
	Text  string  `json:"text"`
	Score float32 `json:"score"`
}

// Meta describes a stored index.
type Meta struct {
	Model      string
	Dimension  int
	ChunkCount int
	CreatedAt  time.Time
}

type Store struct {
	root   string
	prefix string
}

func NewStore(root, prefix string) *Store {
	return &Store{root: root, prefix: prefix}
}

// Dir is the session-namespaced directory of the index.
func (s *Store) Dir(sessionID string) (string, error) {
	if !sessionIDPattern.MatchString(sessionID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSessionID, sessionID)
	}
	return filepath.Join(s.root, s.prefix+sessionID), nil
}

func (s *Store) indexPath(sessionID string) (string, error) {
	dir, err := s.Dir(sessionID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, indexFileName), nil
}

// Exists reports whether a complete index file is present for the session.
func (s *Store) Exists(sessionID string) (bool, error) {
	path, err := s.indexPath(sessionID)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat index failed: %w", err)
	}
	return info.Mode().IsRegular(), nil
}

// Replace builds a new index for the session from entries and swaps it in
// for any existing one.
func (s *Store) Replace(ctx context.Context, sessionID, model string, entries []Entry) error {
	if len(entries) == 0 {
		return ErrEmptyIndex
	}
	dim := len(entries[0].Vector)
	if dim == 0 {
		return fmt.Errorf("%w: entry 0 has no vector", ErrDimensionMismatch)
	}
	for i, e := range entries {
		if len(e.Vector) != dim {
			return fmt.Errorf("%w: entry %d has %d, want %d", ErrDimensionMismatch, i, len(e.Vector), dim)
		}
	}

	dir, err := s.Dir(sessionID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create index dir failed: %w", err)
	}

	tmp, err := os.CreateTemp(dir, indexFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp index failed: %w", err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
			_ = os.Remove(tmpPath + "-journal")
		}
	}()

	if err := writeIndex(ctx, tmpPath, model, dim, entries); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, filepath.Join(dir, indexFileName)); err != nil {
		return fmt.Errorf("swap index failed: %w", err)
	}
	committed = true
	return nil
}

func writeIndex(ctx context.Context, path, model string, dim int, entries []Entry) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open index db failed: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	stmts := []string{
		`CREATE TABLE meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
		`CREATE TABLE chunks (ord INTEGER PRIMARY KEY, text TEXT NOT NULL, vector TEXT NOT NULL)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create index schema failed: %w", err)
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin index tx failed: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	meta := map[string]string{
		"model":       model,
		"dim":         strconv.Itoa(dim),
		"chunk_count": strconv.Itoa(len(entries)),
		"created_at":  time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT INTO meta(key, value) VALUES(?, ?)`, k, v); err != nil {
			return fmt.Errorf("write index meta failed: %w", err)
		}
	}

	insert, err := tx.PrepareContext(ctx, `INSERT INTO chunks(ord, text, vector) VALUES(?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare chunk insert failed: %w", err)
	}
	defer insert.Close()
	for i, e := range entries {
		vec, err := json.Marshal(e.Vector)
		if err != nil {
			return fmt.Errorf("marshal vector %d failed: %w", i, err)
		}
		if _, err := insert.ExecContext(ctx, i, e.Text, string(vec)); err != nil {
			return fmt.Errorf("insert chunk %d failed: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit index failed: %w", err)
	}
	return nil
}

func (s *Store) open(sessionID string) (*sql.DB, error) {
	ok, err := s.Exists(sessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrIndexMissing
	}
	path, _ := s.indexPath(sessionID)
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open index db failed: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// Info returns the metadata recorded when the index was written.
func (s *Store) Info(ctx context.Context, sessionID string) (Meta, error) {
	db, err := s.open(sessionID)
	if err != nil {
		return Meta{}, err
	}
	defer db.Close()
	return readMeta(ctx, db)
}

func readMeta(ctx context.Context, db *sql.DB) (Meta, error) {
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return Meta{}, fmt.Errorf("read index meta failed: %w", err)
	}
	defer rows.Close()

	var meta Meta
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return Meta{}, fmt.Errorf("scan index meta failed: %w", err)
		}
		switch k {
		case "model":
			meta.Model = v
		case "dim":
			meta.Dimension, _ = strconv.Atoi(v)
		case "chunk_count":
			meta.ChunkCount, _ = strconv.Atoi(v)
		case "created_at":
			meta.CreatedAt, _ = time.Parse(time.RFC3339, v)
		}
	}
	if err := rows.Err(); err != nil {
		return Meta{}, fmt.Errorf("read index meta failed: %w", err)
	}
	return meta, nil
}

// Search returns up to k entries most similar to query by cosine similarity,
// best first.
func (s *Store) Search(ctx context.Context, sessionID string, query []float32, k int) ([]Hit, error) {
	if k <= 0 || len(query) == 0 {
		return nil, nil
	}
	db, err := s.open(sessionID)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	meta, err := readMeta(ctx, db)
	if err != nil {
		return nil, err
	}
	if meta.Dimension != len(query) {
		return nil, fmt.Errorf("%w: index has %d, query has %d", ErrDimensionMismatch, meta.Dimension, len(query))
	}

	rows, err := db.QueryContext(ctx, `SELECT ord, text, vector FROM chunks`)
	if err != nil {
		return nil, fmt.Errorf("read index chunks failed: %w", err)
	}
	defer rows.Close()

	hits := make([]Hit, 0, meta.ChunkCount)
	for rows.Next() {
		var (
			h      Hit
			vecStr string
		)
		if err := rows.Scan(&h.Ord, &h.Text, &vecStr); err != nil {
			return nil, fmt.Errorf("scan index chunk failed: %w", err)
		}
		var vec []float32
		if err := json.Unmarshal([]byte(vecStr), &vec); err != nil {
			return nil, fmt.Errorf("decode vector of chunk %d failed: %w", h.Ord, err)
		}
		h.Score = cosineSimilarity(query, vec)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read index chunks failed: %w", err)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Ord < hits[j].Ord
	})
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// Remove deletes the session's index directory. It reports whether anything
// was there; a missing directory is not an error.
func (s *Store) Remove(sessionID string) (bool, error) {
	dir, err := s.Dir(sessionID)
	if err != nil {
		return false, err
	}
	if _, err := os.Lstat(dir); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return true, fmt.Errorf("remove index dir failed: %w", err)
	}
	return true, nil
}

// ListSessionIDs returns the session ids that have an index directory.
func (s *Store) ListSessionIDs() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list index root failed: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), s.prefix) {
			continue
		}
		id := strings.TrimPrefix(e.Name(), s.prefix)
		if sessionIDPattern.MatchString(id) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA <= 0 || normB <= 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
