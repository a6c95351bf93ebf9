package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// SQLiteMetadataStore implements MetadataStore over a SQLite database,
// following the same connection and pragma conventions as SQLiteBM25Index:
// WAL mode, a single writer connection, and a schema_version table.
type SQLiteMetadataStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

var _ MetadataStore = (*SQLiteMetadataStore)(nil)

// NewSQLiteMetadataStore opens (or creates) a metadata database at path.
// An empty path opens an in-memory database, for testing.
func NewSQLiteMetadataStore(path string) (*SQLiteMetadataStore, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &SQLiteMetadataStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteMetadataStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS documents (
		document_id         TEXT PRIMARY KEY,
		path                TEXT NOT NULL,
		filename            TEXT NOT NULL,
		file_type           TEXT,
		file_size           INTEGER,
		chunk_count         INTEGER,
		indexed_at          TEXT,
		content_hash        TEXT NOT NULL,
		extraction_method   TEXT,
		extraction_pages    INTEGER,
		embedding_model     TEXT,
		embedding_dimension INTEGER,
		title               TEXT,
		creator             TEXT,
		date                TEXT,
		subject             TEXT,
		tags                TEXT,
		project             TEXT,
		sensitivity         TEXT,
		schema_version      INTEGER
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_content_hash ON documents(content_hash);

	CREATE TABLE IF NOT EXISTS chunks (
		chunk_id     TEXT PRIMARY KEY,
		document_id  TEXT NOT NULL REFERENCES documents(document_id) ON DELETE CASCADE,
		text         TEXT NOT NULL,
		chunk_index  INTEGER,
		char_start   INTEGER,
		char_end     INTEGER,
		page_numbers TEXT,
		section      TEXT,
		context      TEXT,
		metadata     TEXT,
		created_at   TEXT,
		updated_at   TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON chunks(document_id);

	CREATE TABLE IF NOT EXISTS tag_assignments (
		document_id TEXT NOT NULL REFERENCES documents(document_id) ON DELETE CASCADE,
		tag         TEXT NOT NULL,
		provenance  TEXT,
		confidence  REAL,
		PRIMARY KEY (document_id, tag)
	);

	CREATE TABLE IF NOT EXISTS runtime_state (
		key   TEXT PRIMARY KEY,
		value TEXT
	);

	CREATE TABLE IF NOT EXISTS ingest_checkpoint (
		id             INTEGER PRIMARY KEY CHECK (id = 1),
		stage          TEXT,
		total          INTEGER,
		embedded_count INTEGER,
		timestamp      TEXT,
		embedder_model TEXT
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteMetadataStore) SaveDocument(ctx context.Context, doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("metadata store is closed")
	}

	tagsJSON, err := json.Marshal(doc.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (
			document_id, path, filename, file_type, file_size, chunk_count,
			indexed_at, content_hash, extraction_method, extraction_pages,
			embedding_model, embedding_dimension, title, creator, date, subject,
			tags, project, sensitivity, schema_version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			path = excluded.path,
			filename = excluded.filename,
			file_type = excluded.file_type,
			file_size = excluded.file_size,
			chunk_count = excluded.chunk_count,
			indexed_at = excluded.indexed_at,
			content_hash = excluded.content_hash,
			extraction_method = excluded.extraction_method,
			extraction_pages = excluded.extraction_pages,
			embedding_model = excluded.embedding_model,
			embedding_dimension = excluded.embedding_dimension,
			title = excluded.title,
			creator = excluded.creator,
			date = excluded.date,
			subject = excluded.subject,
			tags = excluded.tags,
			project = excluded.project,
			sensitivity = excluded.sensitivity,
			schema_version = excluded.schema_version
	`,
		doc.DocumentID, doc.Path, doc.Filename, doc.FileType, doc.FileSize, doc.ChunkCount,
		doc.IndexedAt.UTC().Format(time.RFC3339), doc.ContentHash, doc.ExtractionMethod, doc.ExtractionPages,
		doc.EmbeddingModel, doc.EmbeddingDimension, doc.Title, doc.Creator, doc.Date, doc.Subject,
		string(tagsJSON), doc.Project, string(doc.Sensitivity), doc.SchemaVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to save document %s: %w", doc.DocumentID, err)
	}
	return nil
}

func (s *SQLiteMetadataStore) scanDocument(row interface {
	Scan(dest ...any) error
}) (*Document, error) {
	var doc Document
	var indexedAt, tagsJSON, sensitivity string
	err := row.Scan(
		&doc.DocumentID, &doc.Path, &doc.Filename, &doc.FileType, &doc.FileSize, &doc.ChunkCount,
		&indexedAt, &doc.ContentHash, &doc.ExtractionMethod, &doc.ExtractionPages,
		&doc.EmbeddingModel, &doc.EmbeddingDimension, &doc.Title, &doc.Creator, &doc.Date, &doc.Subject,
		&tagsJSON, &doc.Project, &sensitivity, &doc.SchemaVersion,
	)
	if err != nil {
		return nil, err
	}
	if indexedAt != "" {
		doc.IndexedAt, _ = time.Parse(time.RFC3339, indexedAt)
	}
	doc.Sensitivity = Sensitivity(sensitivity)
	if tagsJSON != "" {
		_ = json.Unmarshal([]byte(tagsJSON), &doc.Tags)
	}
	return &doc, nil
}

const documentColumns = `document_id, path, filename, file_type, file_size, chunk_count,
	indexed_at, content_hash, extraction_method, extraction_pages,
	embedding_model, embedding_dimension, title, creator, date, subject,
	tags, project, sensitivity, schema_version`

func (s *SQLiteMetadataStore) GetDocument(ctx context.Context, documentID string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("metadata store is closed")
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE document_id = ?`, documentID)
	doc, err := s.scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound{Kind: "document", ID: documentID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", documentID, err)
	}
	return doc, nil
}

func (s *SQLiteMetadataStore) DocumentExistsByHash(ctx context.Context, contentHash string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", false, fmt.Errorf("metadata store is closed")
	}

	var documentID string
	err := s.db.QueryRowContext(ctx, `SELECT document_id FROM documents WHERE content_hash = ?`, contentHash).Scan(&documentID)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to check content hash: %w", err)
	}
	return documentID, true, nil
}

// ListDocuments returns documents matching filter, ordered by document_id,
// using document_id as an opaque pagination cursor (exclusive lower bound).
func (s *SQLiteMetadataStore) ListDocuments(ctx context.Context, filter Filter, cursor string, limit int) ([]*Document, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, "", fmt.Errorf("metadata store is closed")
	}
	if limit <= 0 {
		limit = 50
	}

	where, args, err := filterToSQL(filter, "")
	if err != nil {
		return nil, "", err
	}

	clauses := []string{}
	if where != "" {
		clauses = append(clauses, where)
	}
	if cursor != "" {
		clauses = append(clauses, "document_id > ?")
		args = append(args, cursor)
	}

	query := `SELECT ` + documentColumns + ` FROM documents`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY document_id LIMIT ?"
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := s.scanDocument(rows)
		if err != nil {
			return nil, "", fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	var nextCursor string
	if len(docs) > limit {
		nextCursor = docs[limit-1].DocumentID
		docs = docs[:limit]
	}
	return docs, nextCursor, nil
}

func (s *SQLiteMetadataStore) DeleteDocument(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("metadata store is closed")
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE document_id = ?`, documentID)
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", documentID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound{Kind: "document", ID: documentID}
	}
	return nil
}

func (s *SQLiteMetadataStore) UpdateDocumentChunkCount(ctx context.Context, documentID string, chunkCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("metadata store is closed")
	}

	res, err := s.db.ExecContext(ctx, `UPDATE documents SET chunk_count = ? WHERE document_id = ?`, chunkCount, documentID)
	if err != nil {
		return fmt.Errorf("failed to update chunk count for %s: %w", documentID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound{Kind: "document", ID: documentID}
	}
	return nil
}

func (s *SQLiteMetadataStore) SaveChunks(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("metadata store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (
			chunk_id, document_id, text, chunk_index, char_start, char_end,
			page_numbers, section, context, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			text = excluded.text,
			chunk_index = excluded.chunk_index,
			char_start = excluded.char_start,
			char_end = excluded.char_end,
			page_numbers = excluded.page_numbers,
			section = excluded.section,
			context = excluded.context,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, c := range chunks {
		pagesJSON, _ := json.Marshal(c.PageNumbers)
		metaJSON, _ := json.Marshal(c.Metadata)
		createdAt := now
		if !c.CreatedAt.IsZero() {
			createdAt = c.CreatedAt.UTC().Format(time.RFC3339)
		}
		if _, err := stmt.ExecContext(ctx,
			c.ChunkID, c.DocumentID, c.Text, c.ChunkIndex, c.CharStart, c.CharEnd,
			string(pagesJSON), c.Section, c.Context, string(metaJSON), createdAt, now,
		); err != nil {
			return fmt.Errorf("failed to save chunk %s: %w", c.ChunkID, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteMetadataStore) scanChunk(row interface {
	Scan(dest ...any) error
}) (*Chunk, error) {
	var c Chunk
	var pagesJSON, metaJSON, createdAt, updatedAt string
	err := row.Scan(
		&c.ChunkID, &c.DocumentID, &c.Text, &c.ChunkIndex, &c.CharStart, &c.CharEnd,
		&pagesJSON, &c.Section, &c.Context, &metaJSON, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if pagesJSON != "" {
		_ = json.Unmarshal([]byte(pagesJSON), &c.PageNumbers)
	}
	if metaJSON != "" {
		_ = json.Unmarshal([]byte(metaJSON), &c.Metadata)
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &c, nil
}

const chunkColumns = `chunk_id, document_id, text, chunk_index, char_start, char_end,
	page_numbers, section, context, metadata, created_at, updated_at`

func (s *SQLiteMetadataStore) GetChunk(ctx context.Context, chunkID string) (*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("metadata store is closed")
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE chunk_id = ?`, chunkID)
	c, err := s.scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound{Kind: "chunk", ID: chunkID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chunk %s: %w", chunkID, err)
	}
	return c, nil
}

func (s *SQLiteMetadataStore) GetChunks(ctx context.Context, chunkIDs []string) ([]*Chunk, error) {
	if len(chunkIDs) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("metadata store is closed")
	}

	placeholders := make([]string, len(chunkIDs))
	args := make([]any, len(chunkIDs))
	for i, id := range chunkIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	query := `SELECT ` + chunkColumns + ` FROM chunks WHERE chunk_id IN (` + strings.Join(placeholders, ",") + `)`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get chunks: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*Chunk, len(chunkIDs))
	for rows.Next() {
		c, err := s.scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		byID[c.ChunkID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Preserve caller's requested order, skipping IDs with no row.
	result := make([]*Chunk, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		if c, ok := byID[id]; ok {
			result = append(result, c)
		}
	}
	return result, nil
}

func (s *SQLiteMetadataStore) GetChunksByDocument(ctx context.Context, documentID string) ([]*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("metadata store is closed")
	}

	query := `SELECT ` + chunkColumns + ` FROM chunks WHERE document_id = ? ORDER BY chunk_index`
	rows, err := s.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get chunks for document %s: %w", documentID, err)
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		c, err := s.scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (s *SQLiteMetadataStore) DeleteChunksByDocument(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("metadata store is closed")
	}

	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID)
	if err != nil {
		return fmt.Errorf("failed to delete chunks for document %s: %w", documentID, err)
	}
	return nil
}

// CandidateChunkIDs resolves filter against document-level attributes and
// returns the chunk IDs of every matching document, for the two-stage
// filtered ANN search's candidate-narrowing step.
func (s *SQLiteMetadataStore) CandidateChunkIDs(ctx context.Context, filter Filter) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("metadata store is closed")
	}

	where, args, err := filterToSQL(filter, "d.")
	if err != nil {
		return nil, err
	}

	query := `SELECT c.chunk_id FROM chunks c JOIN documents d ON c.document_id = d.document_id`
	if where != "" {
		query += " WHERE " + where
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve filter candidates: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteMetadataStore) CountDocuments(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, fmt.Errorf("metadata store is closed")
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return count, nil
}

func (s *SQLiteMetadataStore) CountChunks(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, fmt.Errorf("metadata store is closed")
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}

func (s *SQLiteMetadataStore) AssignTag(ctx context.Context, assignment *TagAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("metadata store is closed")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tag_assignments (document_id, tag, provenance, confidence)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(document_id, tag) DO UPDATE SET
			provenance = excluded.provenance,
			confidence = excluded.confidence
	`, assignment.DocumentID, assignment.Tag, string(assignment.Provenance), assignment.Confidence)
	if err != nil {
		return fmt.Errorf("failed to assign tag %q to %s: %w", assignment.Tag, assignment.DocumentID, err)
	}
	return nil
}

func (s *SQLiteMetadataStore) TagsForDocument(ctx context.Context, documentID string) ([]*TagAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("metadata store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT document_id, tag, provenance, confidence FROM tag_assignments WHERE document_id = ?`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get tags for %s: %w", documentID, err)
	}
	defer rows.Close()

	var assignments []*TagAssignment
	for rows.Next() {
		var a TagAssignment
		var provenance string
		if err := rows.Scan(&a.DocumentID, &a.Tag, &provenance, &a.Confidence); err != nil {
			return nil, err
		}
		a.Provenance = TagProvenance(provenance)
		assignments = append(assignments, &a)
	}
	return assignments, rows.Err()
}

func (s *SQLiteMetadataStore) GetState(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", fmt.Errorf("metadata store is closed")
	}

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM runtime_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get state %q: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteMetadataStore) SetState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("metadata store is closed")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runtime_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set state %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteMetadataStore) SaveIngestCheckpoint(ctx context.Context, stage string, total, embeddedCount int, embedderModel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("metadata store is closed")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingest_checkpoint (id, stage, total, embedded_count, timestamp, embedder_model)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			stage = excluded.stage,
			total = excluded.total,
			embedded_count = excluded.embedded_count,
			timestamp = excluded.timestamp,
			embedder_model = excluded.embedder_model
	`, stage, total, embeddedCount, time.Now().UTC().Format(time.RFC3339), embedderModel)
	if err != nil {
		return fmt.Errorf("failed to save ingest checkpoint: %w", err)
	}
	return nil
}

func (s *SQLiteMetadataStore) LoadIngestCheckpoint(ctx context.Context) (*IngestCheckpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("metadata store is closed")
	}

	var cp IngestCheckpoint
	var timestamp string
	err := s.db.QueryRowContext(ctx, `SELECT stage, total, embedded_count, timestamp, embedder_model FROM ingest_checkpoint WHERE id = 1`).
		Scan(&cp.Stage, &cp.Total, &cp.EmbeddedCount, &timestamp, &cp.EmbedderModel)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ingest checkpoint: %w", err)
	}
	cp.Timestamp, _ = time.Parse(time.RFC3339, timestamp)
	return &cp, nil
}

func (s *SQLiteMetadataStore) ClearIngestCheckpoint(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("metadata store is closed")
	}

	_, err := s.db.ExecContext(ctx, `DELETE FROM ingest_checkpoint WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("failed to clear ingest checkpoint: %w", err)
	}
	return nil
}

func (s *SQLiteMetadataStore) Close() error {
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

// ErrNotFound indicates a missing document or chunk row, mapped onto the
// engine's NOT_FOUND error category by callers in internal/errors.
type ErrNotFound struct {
	Kind string // "document" or "chunk"
	ID   string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// documentFilterColumns maps Filter field names to SQL columns and whether
// the column is a JSON-encoded array (handled with a substring LIKE test
// rather than a proper join, since tags rarely number more than a handful
// per document).
var documentFilterColumns = map[string]struct {
	column    string
	isArray   bool
	isNumeric bool
}{
	"document_id":         {column: "document_id"},
	"path":                {column: "path"},
	"filename":            {column: "filename"},
	"file_type":           {column: "file_type"},
	"file_size":           {column: "file_size", isNumeric: true},
	"chunk_count":         {column: "chunk_count", isNumeric: true},
	"indexed_at":          {column: "indexed_at"},
	"content_hash":        {column: "content_hash"},
	"embedding_model":     {column: "embedding_model"},
	"embedding_dimension": {column: "embedding_dimension", isNumeric: true},
	"title":               {column: "title"},
	"creator":             {column: "creator"},
	"date":                {column: "date"},
	"subject":             {column: "subject"},
	"tags":                {column: "tags", isArray: true},
	"project":             {column: "project"},
	"sensitivity":         {column: "sensitivity"},
	"schema_version":      {column: "schema_version", isNumeric: true},
}

// filterToSQL renders a Filter to a parameterised SQL WHERE fragment (empty
// string if filter is nil) against documentFilterColumns, with columnPrefix
// (e.g. "d.") prepended to every column reference so it composes into joins.
func filterToSQL(filter Filter, columnPrefix string) (string, []any, error) {
	if filter == nil {
		return "", nil, nil
	}
	return filterNodeToSQL(filter, columnPrefix)
}

func filterNodeToSQL(f Filter, prefix string) (string, []any, error) {
	switch v := f.(type) {
	case FilterLeaf:
		return filterLeafToSQL(v, prefix)
	case FilterAnd:
		return joinFilterClauses(v.Clauses, "AND", prefix)
	case FilterOr:
		return joinFilterClauses(v.Clauses, "OR", prefix)
	default:
		return "", nil, fmt.Errorf("unsupported filter node type %T", f)
	}
}

func joinFilterClauses(clauses []Filter, op, prefix string) (string, []any, error) {
	parts := make([]string, 0, len(clauses))
	var args []any
	for _, c := range clauses {
		frag, fragArgs, err := filterNodeToSQL(c, prefix)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, "("+frag+")")
		args = append(args, fragArgs...)
	}
	return strings.Join(parts, " "+op+" "), args, nil
}

func filterLeafToSQL(leaf FilterLeaf, prefix string) (string, []any, error) {
	colInfo, ok := documentFilterColumns[leaf.Field]
	if !ok {
		return "", nil, fmt.Errorf("unsupported filter field %q", leaf.Field)
	}
	col := prefix + colInfo.column

	if colInfo.isArray {
		return filterArrayLeafToSQL(col, leaf)
	}

	switch leaf.Op {
	case FilterOpEq:
		return col + " = ?", []any{leaf.Value}, nil
	case FilterOpNe:
		return col + " != ?", []any{leaf.Value}, nil
	case FilterOpGt:
		return col + " > ?", []any{leaf.Value}, nil
	case FilterOpGte:
		return col + " >= ?", []any{leaf.Value}, nil
	case FilterOpLt:
		return col + " < ?", []any{leaf.Value}, nil
	case FilterOpLte:
		return col + " <= ?", []any{leaf.Value}, nil
	case FilterOpIn:
		values, ok := leaf.Value.([]any)
		if !ok {
			return "", nil, fmt.Errorf("%s expects a list of values", FilterOpIn)
		}
		placeholders := strings.TrimRight(strings.Repeat("?,", len(values)), ",")
		return col + " IN (" + placeholders + ")", values, nil
	case FilterOpNin:
		values, ok := leaf.Value.([]any)
		if !ok {
			return "", nil, fmt.Errorf("%s expects a list of values", FilterOpNin)
		}
		placeholders := strings.TrimRight(strings.Repeat("?,", len(values)), ",")
		return col + " NOT IN (" + placeholders + ")", values, nil
	default:
		return "", nil, fmt.Errorf("unsupported filter operator %q", leaf.Op)
	}
}

// filterArrayLeafToSQL handles the "tags" field, stored as a JSON array
// string, via substring containment tests against the quoted tag value.
func filterArrayLeafToSQL(col string, leaf FilterLeaf) (string, []any, error) {
	switch leaf.Op {
	case FilterOpEq:
		tag, ok := leaf.Value.(string)
		if !ok {
			return "", nil, fmt.Errorf("tags %s expects a string value", FilterOpEq)
		}
		return col + " LIKE ?", []any{"%\"" + tag + "\"%"}, nil
	case FilterOpNe:
		tag, ok := leaf.Value.(string)
		if !ok {
			return "", nil, fmt.Errorf("tags %s expects a string value", FilterOpNe)
		}
		return col + " NOT LIKE ?", []any{"%\"" + tag + "\"%"}, nil
	case FilterOpIn:
		values, ok := leaf.Value.([]any)
		if !ok {
			return "", nil, fmt.Errorf("tags %s expects a list of values", FilterOpIn)
		}
		parts := make([]string, 0, len(values))
		args := make([]any, 0, len(values))
		for _, v := range values {
			tag, ok := v.(string)
			if !ok {
				return "", nil, fmt.Errorf("tags %s expects string values", FilterOpIn)
			}
			parts = append(parts, col+" LIKE ?")
			args = append(args, "%\""+tag+"\"%")
		}
		return "(" + strings.Join(parts, " OR ") + ")", args, nil
	case FilterOpNin:
		values, ok := leaf.Value.([]any)
		if !ok {
			return "", nil, fmt.Errorf("tags %s expects a list of values", FilterOpNin)
		}
		parts := make([]string, 0, len(values))
		args := make([]any, 0, len(values))
		for _, v := range values {
			tag, ok := v.(string)
			if !ok {
				return "", nil, fmt.Errorf("tags %s expects string values", FilterOpNin)
			}
			parts = append(parts, col+" NOT LIKE ?")
			args = append(args, "%\""+tag+"\"%")
		}
		return "(" + strings.Join(parts, " AND ") + ")", args, nil
	default:
		return "", nil, fmt.Errorf("operator %q is not supported on the tags field", leaf.Op)
	}
}
