package store

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// StoreConfig configures the metadata store's SQLite connection.
type StoreConfig struct {
	// CacheSizeMB is the SQLite page cache size in megabytes (default: 64).
	CacheSizeMB int
}

// DefaultStoreConfig returns sensible defaults for the metadata store (DEBT-011).
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{CacheSizeMB: 64}
}

// SQLiteStore implements MetadataStore using SQLite in WAL mode.
// A single writer connection avoids lock contention (same pattern as SQLiteBM25Index).
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// Verify interface implementation at compile time
var _ MetadataStore = (*SQLiteStore)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

// validateMetadataStoreIntegrity checks if the metadata database is valid before opening.
// Mirrors validateSQLiteIntegrity's corruption-recovery pattern for the BM25 index.
func validateMetadataStoreIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // Database doesn't exist, will be created
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}

	var count int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master
                       WHERE type='table' AND name='projects'`).Scan(&count)
	if err != nil {
		return fmt.Errorf("cannot query schema: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("metadata table 'projects' missing")
	}

	return nil
}

// NewSQLiteStore opens (or creates) the metadata store with default configuration.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithConfig(path, DefaultStoreConfig())
}

// NewSQLiteStoreWithConfig opens (or creates) the metadata store with a configurable
// cache size (DEBT-011). A zero CacheSizeMB falls back to the default.
func NewSQLiteStoreWithConfig(path string, cfg StoreConfig) (*SQLiteStore, error) {
	if cfg.CacheSizeMB <= 0 {
		cfg.CacheSizeMB = DefaultStoreConfig().CacheSizeMB
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	if validErr := validateMetadataStoreIntegrity(path); validErr != nil {
		slog.Warn("metadata_store_corrupted",
			slog.String("path", path),
			slog.String("error", validErr.Error()))

		if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
			return nil, fmt.Errorf("metadata store corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
		}
		_ = os.Remove(path + "-wal")
		_ = os.Remove(path + "-shm")

		slog.Info("metadata_store_cleared",
			slog.String("path", path),
			slog.String("reason", "corruption detected, please reindex"))
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer to prevent lock contention (same as SQLiteBM25Index)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA cache_size = -%d", cfg.CacheSizeMB*1024),
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		root_path TEXT NOT NULL,
		project_type TEXT,
		chunk_count INTEGER NOT NULL DEFAULT 0,
		file_count INTEGER NOT NULL DEFAULT 0,
		indexed_at INTEGER NOT NULL DEFAULT 0,
		version TEXT
	);

	CREATE TABLE IF NOT EXISTS files (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		path TEXT NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		mod_time INTEGER NOT NULL DEFAULT 0,
		content_hash TEXT,
		language TEXT,
		content_type TEXT,
		indexed_at INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_files_project ON files(project_id);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_files_project_path ON files(project_id, path);
	CREATE INDEX IF NOT EXISTS idx_files_project_modtime ON files(project_id, mod_time);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		file_id TEXT NOT NULL,
		file_path TEXT,
		content TEXT,
		raw_content TEXT,
		context TEXT,
		content_type TEXT,
		language TEXT,
		start_line INTEGER,
		end_line INTEGER,
		metadata TEXT,
		embedding BLOB,
		embedding_model TEXT,
		created_at INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_file ON chunks(file_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON chunks(id) WHERE embedding IS NOT NULL;

	CREATE TABLE IF NOT EXISTS symbols (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chunk_id TEXT NOT NULL,
		name TEXT NOT NULL,
		type TEXT,
		start_line INTEGER,
		end_line INTEGER,
		signature TEXT,
		doc_comment TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_symbols_chunk ON symbols(chunk_id);
	CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);

	CREATE TABLE IF NOT EXISTS state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (2);
	`

	_, err := s.db.Exec(schema)
	return err
}

// DB exposes the underlying connection for callers that need direct access
// (e.g. health checks pinging the database).
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close closes the store. Forces a WAL checkpoint first, same as SQLiteBM25Index.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.db != nil {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return s.db.Close()
	}
	return nil
}

// --- Project operations ---

func (s *SQLiteStore) SaveProject(ctx context.Context, project *Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO projects (id, name, root_path, project_type, chunk_count, file_count, indexed_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, project.ID, project.Name, project.RootPath, project.ProjectType,
		project.ChunkCount, project.FileCount, timeToUnixNano(project.IndexedAt), project.Version)
	if err != nil {
		return fmt.Errorf("failed to save project: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, root_path, project_type, chunk_count, file_count, indexed_at, version
		FROM projects WHERE id = ?
	`, id)

	var p Project
	var indexedAt int64
	err := row.Scan(&p.ID, &p.Name, &p.RootPath, &p.ProjectType, &p.ChunkCount, &p.FileCount, &indexedAt, &p.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	p.IndexedAt = unixNanoToTime(indexedAt)
	return &p, nil
}

func (s *SQLiteStore) UpdateProjectStats(ctx context.Context, id string, fileCount, chunkCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	_, err := s.db.ExecContext(ctx, `UPDATE projects SET file_count = ?, chunk_count = ? WHERE id = ?`,
		fileCount, chunkCount, id)
	if err != nil {
		return fmt.Errorf("failed to update project stats: %w", err)
	}
	return nil
}

// RefreshProjectStats recalculates file/chunk counts straight from the tables,
// instead of trusting whatever was last reported via UpdateProjectStats.
func (s *SQLiteStore) RefreshProjectStats(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	var fileCount int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files WHERE project_id = ?`, id).Scan(&fileCount); err != nil {
		return fmt.Errorf("failed to count files: %w", err)
	}

	var chunkCount int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM chunks
		JOIN files ON chunks.file_id = files.id
		WHERE files.project_id = ?
	`, id).Scan(&chunkCount); err != nil {
		return fmt.Errorf("failed to count chunks: %w", err)
	}

	_, err := s.db.ExecContext(ctx, `UPDATE projects SET file_count = ?, chunk_count = ?, indexed_at = ? WHERE id = ?`,
		fileCount, chunkCount, timeToUnixNano(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to refresh project stats: %w", err)
	}
	return nil
}

// --- File operations ---

func scanFile(row rowScanner) (*File, error) {
	var f File
	var modTime, indexedAt int64
	err := row.Scan(&f.ID, &f.ProjectID, &f.Path, &f.Size, &modTime, &f.ContentHash, &f.Language, &f.ContentType, &indexedAt)
	if err != nil {
		return nil, err
	}
	f.ModTime = unixNanoToTime(modTime)
	f.IndexedAt = unixNanoToTime(indexedAt)
	return &f, nil
}

const fileColumns = `id, project_id, path, size, mod_time, content_hash, language, content_type, indexed_at`

func (s *SQLiteStore) SaveFiles(ctx context.Context, files []*File) error {
	if len(files) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO files (id, project_id, path, size, mod_time, content_hash, language, content_type, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare file insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range files {
		if _, err := stmt.ExecContext(ctx, f.ID, f.ProjectID, f.Path, f.Size,
			timeToUnixNano(f.ModTime), f.ContentHash, f.Language, f.ContentType, timeToUnixNano(f.IndexedAt)); err != nil {
			return fmt.Errorf("failed to save file %s: %w", f.Path, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) GetFileByPath(ctx context.Context, projectID, path string) (*File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE project_id = ? AND path = ?`, projectID, path)
	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return f, nil
}

func (s *SQLiteStore) GetChangedFiles(ctx context.Context, projectID string, since time.Time) ([]*File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+fileColumns+` FROM files WHERE project_id = ? AND mod_time > ? ORDER BY path
	`, projectID, timeToUnixNano(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query changed files: %w", err)
	}
	defer rows.Close()

	var files []*File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// ListFiles paginates via an opaque base64 "offset:N" cursor (F18 MCP resources).
func (s *SQLiteStore) ListFiles(ctx context.Context, projectID string, cursor string, limit int) ([]*File, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, "", fmt.Errorf("store is closed")
	}

	offset, err := decodeListCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+fileColumns+` FROM files WHERE project_id = ? ORDER BY path LIMIT ? OFFSET ?
	`, projectID, limit+1, offset)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	var files []*File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, "", fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	nextCursor := ""
	if len(files) > limit {
		files = files[:limit]
		nextCursor = encodeListCursor(offset + limit)
	}
	return files, nextCursor, nil
}

func (s *SQLiteStore) GetFilePathsByProject(ctx context.Context, projectID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT path FROM files WHERE project_id = ? ORDER BY path`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query file paths: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan path: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// GetFilesForReconciliation returns every tracked file keyed by path, used to
// detect files deleted on disk while the server wasn't watching (BUG-036).
func (s *SQLiteStore) GetFilesForReconciliation(ctx context.Context, projectID string) (map[string]*File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+fileColumns+` FROM files WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()

	result := make(map[string]*File)
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		result[f.Path] = f
	}
	return result, rows.Err()
}

// ListFilePathsUnder lists tracked paths within a directory subtree, used for
// per-directory gitignore re-evaluation (BUG-028).
func (s *SQLiteStore) ListFilePathsUnder(ctx context.Context, projectID, dirPrefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	prefix := strings.TrimSuffix(dirPrefix, "/")

	var rows *sql.Rows
	var err error
	if prefix == "" {
		rows, err = s.db.QueryContext(ctx, `SELECT path FROM files WHERE project_id = ? ORDER BY path`, projectID)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT path FROM files WHERE project_id = ? AND (path = ? OR path LIKE ?) ORDER BY path
		`, projectID, prefix, prefix+"/%")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list paths under %q: %w", dirPrefix, err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan path: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// DeleteFile removes a file and cascades to its chunks/symbols. Idempotent.
func (s *SQLiteStore) DeleteFile(ctx context.Context, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM symbols WHERE chunk_id IN (SELECT id FROM chunks WHERE file_id = ?)
	`, fileID); err != nil {
		return fmt.Errorf("failed to delete symbols: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE file_id = ?`, fileID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, fileID); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) DeleteFilesByProject(ctx context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM symbols WHERE chunk_id IN (
			SELECT chunks.id FROM chunks JOIN files ON chunks.file_id = files.id WHERE files.project_id = ?
		)
	`, projectID); err != nil {
		return fmt.Errorf("failed to delete symbols: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM chunks WHERE file_id IN (SELECT id FROM files WHERE project_id = ?)
	`, projectID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE project_id = ?`, projectID); err != nil {
		return fmt.Errorf("failed to delete files: %w", err)
	}

	return tx.Commit()
}

// --- Chunk operations ---

const chunkColumns = `id, file_id, file_path, content, raw_content, context, content_type, language, start_line, end_line, metadata, created_at, updated_at`

func scanChunk(row rowScanner) (*Chunk, error) {
	var c Chunk
	var contentType, metadataJSON string
	var created, updated int64
	err := row.Scan(&c.ID, &c.FileID, &c.FilePath, &c.Content, &c.RawContent, &c.Context,
		&contentType, &c.Language, &c.StartLine, &c.EndLine, &metadataJSON, &created, &updated)
	if err != nil {
		return nil, err
	}
	c.ContentType = ContentType(contentType)
	c.CreatedAt = unixNanoToTime(created)
	c.UpdatedAt = unixNanoToTime(updated)

	meta, err := unmarshalMetadata(metadataJSON)
	if err != nil {
		return nil, err
	}
	c.Metadata = meta
	return &c, nil
}

func (s *SQLiteStore) loadSymbols(ctx context.Context, chunkIDs []string) (map[string][]*Symbol, error) {
	result := make(map[string][]*Symbol)
	if len(chunkIDs) == 0 {
		return result, nil
	}

	placeholders := make([]string, len(chunkIDs))
	args := make([]any, len(chunkIDs))
	for i, id := range chunkIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(`
		SELECT chunk_id, name, type, start_line, end_line, signature, doc_comment
		FROM symbols WHERE chunk_id IN (%s) ORDER BY start_line
	`, strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var chunkID, symType string
		sym := &Symbol{}
		if err := rows.Scan(&chunkID, &sym.Name, &symType, &sym.StartLine, &sym.EndLine, &sym.Signature, &sym.DocComment); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		sym.Type = SymbolType(symType)
		result[chunkID] = append(result[chunkID], sym)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) SaveChunks(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	chunkStmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO chunks
		(id, file_id, file_path, content, raw_content, context, content_type, language, start_line, end_line, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer chunkStmt.Close()

	deleteSymStmt, err := tx.PrepareContext(ctx, `DELETE FROM symbols WHERE chunk_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare symbol delete: %w", err)
	}
	defer deleteSymStmt.Close()

	symStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO symbols (chunk_id, name, type, start_line, end_line, signature, doc_comment)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare symbol insert: %w", err)
	}
	defer symStmt.Close()

	for _, c := range chunks {
		metadataJSON, err := marshalMetadata(c.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata for chunk %s: %w", c.ID, err)
		}

		created := c.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		updated := c.UpdatedAt
		if updated.IsZero() {
			updated = created
		}

		if _, err := chunkStmt.ExecContext(ctx, c.ID, c.FileID, c.FilePath, c.Content, c.RawContent, c.Context,
			string(c.ContentType), c.Language, c.StartLine, c.EndLine, metadataJSON,
			timeToUnixNano(created), timeToUnixNano(updated)); err != nil {
			return fmt.Errorf("failed to save chunk %s: %w", c.ID, err)
		}

		if _, err := deleteSymStmt.ExecContext(ctx, c.ID); err != nil {
			return fmt.Errorf("failed to clear symbols for chunk %s: %w", c.ID, err)
		}
		for _, sym := range c.Symbols {
			if _, err := symStmt.ExecContext(ctx, c.ID, sym.Name, string(sym.Type), sym.StartLine, sym.EndLine, sym.Signature, sym.DocComment); err != nil {
				return fmt.Errorf("failed to save symbol %s for chunk %s: %w", sym.Name, c.ID, err)
			}
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE id = ?`, id)
	c, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chunk: %w", err)
	}

	symbols, err := s.loadSymbols(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	c.Symbols = symbols[id]
	return c, nil
}

func (s *SQLiteStore) GetChunks(ctx context.Context, ids []string) ([]*Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT `+chunkColumns+` FROM chunks WHERE id IN (%s)`, strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*Chunk
	var chunkIDs []string
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, c)
		chunkIDs = append(chunkIDs, c.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	symbolsByChunk, err := s.loadSymbols(ctx, chunkIDs)
	if err != nil {
		return nil, err
	}
	for _, c := range chunks {
		c.Symbols = symbolsByChunk[c.ID]
	}
	return chunks, nil
}

func (s *SQLiteStore) GetChunksByFile(ctx context.Context, fileID string) ([]*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE file_id = ? ORDER BY start_line`, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*Chunk
	var ids []string
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, c)
		ids = append(ids, c.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	symbolsByChunk, err := s.loadSymbols(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, c := range chunks {
		c.Symbols = symbolsByChunk[c.ID]
	}
	return chunks, nil
}

func (s *SQLiteStore) DeleteChunks(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	inClause := strings.Join(placeholders, ",")

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM symbols WHERE chunk_id IN (%s)`, inClause), args...); err != nil {
		return fmt.Errorf("failed to delete symbols: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM chunks WHERE id IN (%s)`, inClause), args...); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) DeleteChunksByFile(ctx context.Context, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM symbols WHERE chunk_id IN (SELECT id FROM chunks WHERE file_id = ?)`, fileID); err != nil {
		return fmt.Errorf("failed to delete symbols: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE file_id = ?`, fileID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}

	return tx.Commit()
}

// --- Symbol operations ---

func (s *SQLiteStore) SearchSymbols(ctx context.Context, name string, limit int) ([]*Symbol, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, type, start_line, end_line, signature, doc_comment
		FROM symbols WHERE name LIKE ? ORDER BY name LIMIT ?
	`, "%"+name+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search symbols: %w", err)
	}
	defer rows.Close()

	var symbols []*Symbol
	for rows.Next() {
		var symType string
		sym := &Symbol{}
		if err := rows.Scan(&sym.Name, &symType, &sym.StartLine, &sym.EndLine, &sym.Signature, &sym.DocComment); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		sym.Type = SymbolType(symType)
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

// --- State operations ---

func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", fmt.Errorf("store is closed")
	}

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get state %q: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteStore) SetState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO state (key, value) VALUES (?, ?)`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set state %q: %w", key, err)
	}
	return nil
}

// --- Embedding operations ---

func (s *SQLiteStore) SaveChunkEmbeddings(ctx context.Context, chunkIDs []string, embeddings [][]float32, model string) error {
	if len(chunkIDs) != len(embeddings) {
		return fmt.Errorf("chunkIDs and embeddings length mismatch: %d != %d", len(chunkIDs), len(embeddings))
	}
	if len(chunkIDs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `UPDATE chunks SET embedding = ?, embedding_model = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare embedding update: %w", err)
	}
	defer stmt.Close()

	for i, id := range chunkIDs {
		if _, err := stmt.ExecContext(ctx, embeddingToBytes(embeddings[i]), model, id); err != nil {
			return fmt.Errorf("failed to save embedding for chunk %s: %w", id, err)
		}
	}

	return tx.Commit()
}

// GetAllEmbeddings returns every chunk's embedding, skipping chunks that don't
// have one yet (used by the HNSW compaction path to rebuild the vector index).
func (s *SQLiteStore) GetAllEmbeddings(ctx context.Context) (map[string][]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM chunks WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]float32)
	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		result[id] = bytesToEmbedding(data)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) GetEmbeddingStats(ctx context.Context) (withEmbedding, withoutEmbedding int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, 0, fmt.Errorf("store is closed")
	}

	var embedded, total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE embedding IS NOT NULL`).Scan(&embedded); err != nil {
		return 0, 0, fmt.Errorf("failed to count embedded chunks: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&total); err != nil {
		return 0, 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return embedded, total - embedded, nil
}

// --- Checkpoint operations ---
//
// Checkpoints ride on the state table rather than a dedicated table; the
// state keys are declared once in types.go (StateKeyCheckpoint*) so the rest
// of the indexing pipeline and this store agree on their meaning.

func (s *SQLiteStore) SaveIndexCheckpoint(ctx context.Context, stage string, total, embeddedCount int, embedderModel string) error {
	if err := s.SetState(ctx, StateKeyCheckpointStage, stage); err != nil {
		return err
	}
	if err := s.SetState(ctx, StateKeyCheckpointTotal, strconv.Itoa(total)); err != nil {
		return err
	}
	if err := s.SetState(ctx, StateKeyCheckpointEmbedded, strconv.Itoa(embeddedCount)); err != nil {
		return err
	}
	if err := s.SetState(ctx, StateKeyCheckpointTimestamp, strconv.FormatInt(time.Now().UnixNano(), 10)); err != nil {
		return err
	}
	return s.SetState(ctx, StateKeyCheckpointEmbedderModel, embedderModel)
}

// LoadIndexCheckpoint returns nil when no checkpoint was ever saved, and also
// when the last saved stage is "complete" — a completed run has nothing to
// resume from.
func (s *SQLiteStore) LoadIndexCheckpoint(ctx context.Context) (*IndexCheckpoint, error) {
	stage, err := s.GetState(ctx, StateKeyCheckpointStage)
	if err != nil {
		return nil, err
	}
	if stage == "" || stage == "complete" {
		return nil, nil
	}

	totalStr, err := s.GetState(ctx, StateKeyCheckpointTotal)
	if err != nil {
		return nil, err
	}
	embeddedStr, err := s.GetState(ctx, StateKeyCheckpointEmbedded)
	if err != nil {
		return nil, err
	}
	tsStr, err := s.GetState(ctx, StateKeyCheckpointTimestamp)
	if err != nil {
		return nil, err
	}
	model, err := s.GetState(ctx, StateKeyCheckpointEmbedderModel)
	if err != nil {
		return nil, err
	}

	total, _ := strconv.Atoi(totalStr)
	embedded, _ := strconv.Atoi(embeddedStr)
	tsNano, _ := strconv.ParseInt(tsStr, 10, 64)

	return &IndexCheckpoint{
		Stage:         stage,
		Total:         total,
		EmbeddedCount: embedded,
		Timestamp:     unixNanoToTime(tsNano),
		EmbedderModel: model,
	}, nil
}

func (s *SQLiteStore) ClearIndexCheckpoint(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	_, err := s.db.ExecContext(ctx, `DELETE FROM state WHERE key IN (?, ?, ?, ?, ?)`,
		StateKeyCheckpointStage, StateKeyCheckpointTotal, StateKeyCheckpointEmbedded,
		StateKeyCheckpointTimestamp, StateKeyCheckpointEmbedderModel)
	if err != nil {
		return fmt.Errorf("failed to clear checkpoint: %w", err)
	}
	return nil
}

// --- helpers ---

func timeToUnixNano(t time.Time) int64 {
	return t.UnixNano()
}

func unixNanoToTime(n int64) time.Time {
	return time.Unix(0, n)
}

func marshalMetadata(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalMetadata(s string) (map[string]string, error) {
	if s == "" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	return m, nil
}

const listCursorPrefix = "offset:"

func encodeListCursor(offset int) string {
	return base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("%s%d", listCursorPrefix, offset)))
}

func decodeListCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return 0, fmt.Errorf("invalid cursor: %w", err)
	}
	s := string(decoded)
	if !strings.HasPrefix(s, listCursorPrefix) {
		return 0, fmt.Errorf("invalid cursor format: %q", s)
	}
	offset, err := strconv.Atoi(strings.TrimPrefix(s, listCursorPrefix))
	if err != nil {
		return 0, fmt.Errorf("invalid cursor offset: %w", err)
	}
	if offset < 0 {
		return 0, fmt.Errorf("cursor offset must be non-negative, got %d", offset)
	}
	return offset, nil
}

// embeddingToBytes packs a float32 embedding into a little-endian byte blob
// for storage in the chunks table.
func embeddingToBytes(embedding []float32) []byte {
	if len(embedding) == 0 {
		return []byte{}
	}
	buf := make([]byte, len(embedding)*4)
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func bytesToEmbedding(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	n := len(b) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
