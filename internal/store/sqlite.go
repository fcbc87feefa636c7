package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure Go, no CGO

	memexconfig "github.com/memexmcp/memex/internal/config"
	memexerrors "github.com/memexmcp/memex/internal/errors"
)

// ftsReservedChars are stripped from a query before it is tokenized into an
// FTS5 MATCH expression.
const ftsReservedChars = `"*():^{}~`

// SQLiteIndex implements Index against an embedded SQLite database: a row
// table, a synchronized FTS5 virtual table for BM25, and little-endian
// float32 blobs for vectors, scanned brute-force (no ANN).
type SQLiteIndex struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

var (
	_ WriteIndex = (*SQLiteIndex)(nil)
	_ ReadIndex  = (*SQLiteIndex)(nil)
)

// validateIntegrity mirrors the auto-recovery pattern used throughout this
// codebase for embedded indexes: a corrupt file is backed aside, not just
// deleted, so an operator can inspect what went wrong.
func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

// quarantine preserves a corrupt database file via config.BackupCorruptFile
// (the same backup-aside convention the config loader uses for a corrupt
// project config file), then removes the original and its WAL/SHM sidecars
// so NewSQLiteIndex can create a fresh store at path.
func quarantine(path string) error {
	if _, err := memexconfig.BackupCorruptFile(path); err != nil {
		return err
	}
	_ = os.Remove(path)
	_ = os.Remove(path + "-wal")
	_ = os.Remove(path + "-shm")
	return nil
}

// NewSQLiteIndex opens (creating if absent) the local store at path. An
// empty path opens an in-memory database, useful for tests.
func NewSQLiteIndex(path string) (*SQLiteIndex, error) {
	dsn := ":memory:"
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, memexerrors.Wrap(memexerrors.KindIOError, "create store directory", err)
		}

		if err := validateIntegrity(path); err != nil {
			slog.Warn("local store failed integrity check, quarantining", slog.String("path", path), slog.String("error", err.Error()))
			if qerr := quarantine(path); qerr != nil && !os.IsNotExist(qerr) {
				return nil, memexerrors.Wrap(memexerrors.KindIOError, "quarantine corrupt store", qerr)
			}
		}

		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, memexerrors.Wrap(memexerrors.KindIOError, "open local store", err)
	}

	// A single writer prevents lock contention; readers coexist via WAL.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, memexerrors.Wrap(memexerrors.KindStoreError, "set pragma "+p, err)
		}
	}

	return &SQLiteIndex{db: db, path: path}, nil
}

// EnsureIndex is idempotent DDL: safe to call on a populated store.
func (s *SQLiteIndex) EnsureIndex(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return memexerrors.New(memexerrors.KindStoreError, "store is closed")
	}

	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		id             TEXT PRIMARY KEY,
		content        TEXT NOT NULL,
		source_file    TEXT NOT NULL,
		heading_path   TEXT NOT NULL,
		domain         TEXT NOT NULL,
		tags           TEXT NOT NULL,
		related_files  TEXT NOT NULL,
		is_instruction INTEGER NOT NULL,
		embedding      BLOB,
		last_updated   TEXT NOT NULL,
		chunk_index    INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_source_file ON chunks(source_file);

	CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
		content, heading_path, domain, tags,
		content='chunks', content_rowid='rowid'
	);

	CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
		INSERT INTO chunks_fts(rowid, content, heading_path, domain, tags)
		VALUES (new.rowid, new.content, new.heading_path, new.domain, new.tags);
	END;

	CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
		INSERT INTO chunks_fts(chunks_fts, rowid, content, heading_path, domain, tags)
		VALUES ('delete', old.rowid, old.content, old.heading_path, old.domain, old.tags);
	END;

	CREATE TRIGGER IF NOT EXISTS chunks_au AFTER UPDATE ON chunks BEGIN
		INSERT INTO chunks_fts(chunks_fts, rowid, content, heading_path, domain, tags)
		VALUES ('delete', old.rowid, old.content, old.heading_path, old.domain, old.tags);
		INSERT INTO chunks_fts(rowid, content, heading_path, domain, tags)
		VALUES (new.rowid, new.content, new.heading_path, new.domain, new.tags);
	END;
	`
	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return memexerrors.Wrap(memexerrors.KindStoreError, "ensure schema", err)
	}
	return nil
}

// UpsertChunks writes all chunks in a single transaction. A failure in any
// row aborts and rolls back the whole batch.
func (s *SQLiteIndex) UpsertChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return memexerrors.New(memexerrors.KindStoreError, "store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return memexerrors.Wrap(memexerrors.KindStoreError, "begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO chunks
			(id, content, source_file, heading_path, domain, tags, related_files, is_instruction, embedding, last_updated, chunk_index)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return memexerrors.Wrap(memexerrors.KindStoreError, "prepare upsert", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		tagsJSON, err := json.Marshal(orEmpty(c.Tags))
		if err != nil {
			return memexerrors.Wrap(memexerrors.KindStoreError, "marshal tags", err)
		}
		relJSON, err := json.Marshal(orEmpty(c.RelatedFiles))
		if err != nil {
			return memexerrors.Wrap(memexerrors.KindStoreError, "marshal related files", err)
		}

		var embBlob []byte
		if len(c.Embedding) > 0 {
			embBlob = encodeVector(c.Embedding)
		}

		isInstruction := 0
		if c.IsInstruction {
			isInstruction = 1
		}

		if _, err := stmt.ExecContext(ctx,
			c.ID, c.Content, c.SourceFile, c.HeadingPath, c.Domain,
			string(tagsJSON), string(relJSON), isInstruction, embBlob,
			c.LastUpdated.UTC().Format(time.RFC3339), c.ChunkIndex,
		); err != nil {
			return memexerrors.Wrap(memexerrors.KindStoreError, "upsert chunk "+c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return memexerrors.Wrap(memexerrors.KindStoreError, "commit upsert", err)
	}
	return nil
}

// DeleteChunksForFile removes all rows for a normalized source path.
func (s *SQLiteIndex) DeleteChunksForFile(ctx context.Context, sourceFile string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return memexerrors.New(memexerrors.KindStoreError, "store is closed")
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE source_file = ?`, sourceFile); err != nil {
		return memexerrors.Wrap(memexerrors.KindStoreError, "delete chunks for "+sourceFile, err)
	}
	return nil
}

// Search runs the BM25 pass and the brute-force vector pass, then fuses them
// with Reciprocal Rank Fusion.
func (s *SQLiteIndex) Search(ctx context.Context, query string, queryVector []float32, topK int) ([]SearchHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, memexerrors.New(memexerrors.KindStoreError, "store is closed")
	}

	fetch := topK * overfetchMultiplier

	bm25Ranked, bm25Rows, err := s.searchBM25(ctx, query, fetch)
	if err != nil {
		return nil, err
	}
	vecRanked, vecRows, err := s.searchVector(ctx, queryVector, fetch)
	if err != nil {
		return nil, err
	}

	scores := fuseRRF(bm25Ranked, vecRanked)

	byID := make(map[string]Chunk, len(scores))
	for id, row := range bm25Rows {
		byID[id] = row
	}
	for id, row := range vecRows {
		byID[id] = row
	}

	hits := make([]SearchHit, 0, len(scores))
	for id, score := range scores {
		chunk, ok := byID[id]
		if !ok {
			continue
		}
		hits = append(hits, SearchHit{Chunk: chunk, Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Chunk.ID < hits[j].Chunk.ID
	})

	return hits, nil
}

// searchBM25 sanitizes and tokenizes query, runs the FTS5 MATCH, and falls
// back to a LIKE scan on FTS syntax error. Returns ranked ids best-first and
// the rows keyed by id for hydration.
func (s *SQLiteIndex) searchBM25(ctx context.Context, query string, limit int) ([]string, map[string]Chunk, error) {
	tokens := tokenizeForFTS(query)
	if len(tokens) == 0 {
		return nil, nil, nil
	}

	var clauses []string
	for _, t := range tokens {
		clauses = append(clauses, `"`+strings.ReplaceAll(t, `"`, `""`)+`"`)
	}
	ftsQuery := strings.Join(clauses, " OR ")

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.content, c.source_file, c.heading_path, c.domain, c.tags,
		       c.related_files, c.is_instruction, c.embedding, c.last_updated, c.chunk_index,
		       bm25(chunks_fts) AS rank
		FROM chunks_fts
		JOIN chunks c ON c.rowid = chunks_fts.rowid
		WHERE chunks_fts MATCH ?
		ORDER BY rank ASC
		LIMIT ?
	`, ftsQuery, limit)
	if err != nil {
		if isFTSSyntaxError(err) {
			return s.searchLike(ctx, query, limit)
		}
		return nil, nil, memexerrors.Wrap(memexerrors.KindQuerySyntaxError, "bm25 search", err)
	}
	defer rows.Close()

	return scanChunkRows(rows)
}

func (s *SQLiteIndex) searchLike(ctx context.Context, query string, limit int) ([]string, map[string]Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, source_file, heading_path, domain, tags,
		       related_files, is_instruction, embedding, last_updated, chunk_index
		FROM chunks
		WHERE content LIKE ?
		ORDER BY last_updated DESC
		LIMIT ?
	`, "%"+query+"%", limit)
	if err != nil {
		return nil, nil, memexerrors.Wrap(memexerrors.KindStoreError, "like fallback", err)
	}
	defer rows.Close()
	return scanChunkRows(rows)
}

func scanChunkRows(rows *sql.Rows) ([]string, map[string]Chunk, error) {
	var ranked []string
	byID := make(map[string]Chunk)

	for rows.Next() {
		var (
			c             Chunk
			tagsJSON      string
			relJSON       string
			isInstruction int
			lastUpdated   string
			emb           []byte
			rank          sql.NullFloat64
		)
		dest := []any{&c.ID, &c.Content, &c.SourceFile, &c.HeadingPath, &c.Domain, &tagsJSON, &relJSON, &isInstruction, &emb, &lastUpdated, &c.ChunkIndex}
		cols, err := rows.Columns()
		if err != nil {
			return nil, nil, memexerrors.Wrap(memexerrors.KindStoreError, "read columns", err)
		}
		if len(cols) == 12 {
			dest = append(dest, &rank)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, nil, memexerrors.Wrap(memexerrors.KindStoreError, "scan row", err)
		}

		_ = json.Unmarshal([]byte(tagsJSON), &c.Tags)
		_ = json.Unmarshal([]byte(relJSON), &c.RelatedFiles)
		c.IsInstruction = isInstruction != 0
		if t, err := time.Parse(time.RFC3339, lastUpdated); err == nil {
			c.LastUpdated = t
		}
		if len(emb) > 0 {
			c.Embedding = decodeVector(emb)
		}

		ranked = append(ranked, c.ID)
		byID[c.ID] = c
	}
	return ranked, byID, rows.Err()
}

// searchVector loads every embedded chunk, scores it by cosine similarity,
// and returns the top candidates. Brute-force by design: no approximate
// index, sized for corpora in the low tens of thousands of chunks.
func (s *SQLiteIndex) searchVector(ctx context.Context, queryVector []float32, limit int) ([]string, map[string]Chunk, error) {
	if len(queryVector) == 0 {
		return nil, nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, source_file, heading_path, domain, tags,
		       related_files, is_instruction, embedding, last_updated, chunk_index
		FROM chunks
		WHERE embedding IS NOT NULL
	`)
	if err != nil {
		return nil, nil, memexerrors.Wrap(memexerrors.KindStoreError, "vector scan", err)
	}
	defer rows.Close()

	_, byID, err := scanChunkRows(rows)
	if err != nil {
		return nil, nil, err
	}

	type scored struct {
		id    string
		score float64
	}
	scoredRows := make([]scored, 0, len(byID))
	for id, c := range byID {
		scoredRows = append(scoredRows, scored{id: id, score: cosineSimilarity(queryVector, c.Embedding)})
	}
	sort.Slice(scoredRows, func(i, j int) bool { return scoredRows[i].score > scoredRows[j].score })
	if len(scoredRows) > limit {
		scoredRows = scoredRows[:limit]
	}

	ranked := make([]string, len(scoredRows))
	for i, sr := range scoredRows {
		ranked[i] = sr.id
	}
	return ranked, byID, nil
}

// ChunkCount returns 0 on error rather than propagating it; callers treat
// an empty index and a failed count the same way.
func (s *SQLiteIndex) ChunkCount(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, nil
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, nil
	}
	return n, nil
}

func (s *SQLiteIndex) SourceFileCount(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, nil
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT source_file) FROM chunks`).Scan(&n); err != nil {
		return 0, nil
	}
	return n, nil
}

func (s *SQLiteIndex) LastIndexedTime(ctx context.Context) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, nil
	}
	var raw sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(last_updated) FROM chunks`).Scan(&raw); err != nil || !raw.Valid {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw.String)
	if err != nil {
		return nil, nil
	}
	return &t, nil
}

// Close checkpoints the WAL and closes the connection.
func (s *SQLiteIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func tokenizeForFTS(query string) []string {
	var b strings.Builder
	for _, r := range query {
		if strings.ContainsRune(ftsReservedChars, r) {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(r)
	}
	fields := strings.Fields(b.String())
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func isFTSSyntaxError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "fts5:") || strings.Contains(msg, "syntax error")
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	n := len(buf) / 4
	v := make([]float32, n)
	for i := 0; i < n; i++ {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}

// cosineSimilarity computes (a·b)/(‖a‖‖b‖), truncating to the shorter
// dimension if the two vectors disagree in length.
func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
