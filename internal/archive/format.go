// Package archive implements the portable export/import format: a single
// gzip-compressed tar containing a manifest, per-document and per-chunk
// JSON, embeddings, and a checksum manifest.
package archive

import "github.com/ragdhq/ragd/internal/store"

// CurrentVersion is the format version this package writes.
const CurrentVersion = "1.1"

// SupportedVersions lists every archive version Import will accept.
var SupportedVersions = map[string]bool{
	"1.0": true,
	"1.1": true,
}

// IsSupportedVersion reports whether v is an archive format this package
// can import.
func IsSupportedVersion(v string) bool {
	return SupportedVersions[v]
}

// Manifest is the archive's top-level manifest.json.
type Manifest struct {
	Version    string            `json:"version"`
	CreatedAt  string            `json:"created_at"`
	RagdVersion string           `json:"ragd_version"`
	Statistics Statistics        `json:"statistics"`
	Embeddings EmbeddingInfo     `json:"embeddings"`
	Compression string           `json:"compression"`
	Filters    Filters           `json:"filters"`
	Checksums  map[string]string `json:"checksums,omitempty"`
}

// Statistics summarises the archive's contents.
type Statistics struct {
	DocumentCount   int   `json:"document_count"`
	ChunkCount      int   `json:"chunk_count"`
	TotalSizeBytes  int64 `json:"total_size_bytes"`
}

// EmbeddingInfo describes whether and how embeddings were archived.
type EmbeddingInfo struct {
	Included   bool   `json:"included"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	Format     string `json:"format"` // "json" (this implementation never writes parquet)
}

// Filters records the selection criteria an export was narrowed by, so an
// operator inspecting an archive later can see what it does and doesn't
// contain.
type Filters struct {
	Tags     []string `json:"tags,omitempty"`
	Project  string   `json:"project,omitempty"`
	DateFrom string   `json:"date_from,omitempty"`
	DateTo   string   `json:"date_to,omitempty"`
}

// ArchivedDocument is one document's record under documents/metadata/{id}.json.
// It carries every field spec'd as must-round-trip regardless of whether a
// live metadata store sidecar is attached on import.
type ArchivedDocument struct {
	ID                 string   `json:"id"`
	Filename           string   `json:"filename"`
	Path               string   `json:"path"`
	FileType           string   `json:"file_type"`
	FileSize           int64    `json:"file_size"`
	ContentHash        string   `json:"content_hash"`
	IndexedAt          string   `json:"indexed_at"`
	ChunkCount         int      `json:"chunk_count"`
	ExtractionMethod   string   `json:"extraction_method,omitempty"`
	ExtractionPages    int      `json:"extraction_pages,omitempty"`
	EmbeddingModel     string   `json:"embedding_model"`
	EmbeddingDimension int      `json:"embedding_dimension"`
	Title              string   `json:"title,omitempty"`
	Creator            string   `json:"creator,omitempty"`
	Date               string   `json:"date,omitempty"`
	Subject            string   `json:"subject,omitempty"`
	Tags               []string `json:"tags,omitempty"`
	Project            string   `json:"project,omitempty"`
	Sensitivity        string   `json:"sensitivity"`
	SchemaVersion      int      `json:"schema_version"`
}

func documentToArchived(doc *store.Document) ArchivedDocument {
	return ArchivedDocument{
		ID:                 doc.DocumentID,
		Filename:            doc.Filename,
		Path:                doc.Path,
		FileType:            doc.FileType,
		FileSize:            doc.FileSize,
		ContentHash:         doc.ContentHash,
		IndexedAt:           doc.IndexedAt.UTC().Format("2006-01-02T15:04:05Z"),
		ChunkCount:          doc.ChunkCount,
		ExtractionMethod:    doc.ExtractionMethod,
		ExtractionPages:     doc.ExtractionPages,
		EmbeddingModel:      doc.EmbeddingModel,
		EmbeddingDimension:  doc.EmbeddingDimension,
		Title:               doc.Title,
		Creator:             doc.Creator,
		Date:                doc.Date,
		Subject:             doc.Subject,
		Tags:                doc.Tags,
		Project:             doc.Project,
		Sensitivity:         string(doc.Sensitivity),
		SchemaVersion:       doc.SchemaVersion,
	}
}

func (a ArchivedDocument) toDocument() *store.Document {
	return &store.Document{
		DocumentID:         a.ID,
		Filename:           a.Filename,
		Path:               a.Path,
		FileType:           a.FileType,
		FileSize:           a.FileSize,
		ContentHash:        a.ContentHash,
		ChunkCount:         a.ChunkCount,
		ExtractionMethod:   a.ExtractionMethod,
		ExtractionPages:    a.ExtractionPages,
		EmbeddingModel:     a.EmbeddingModel,
		EmbeddingDimension: a.EmbeddingDimension,
		Title:              a.Title,
		Creator:            a.Creator,
		Date:               a.Date,
		Subject:            a.Subject,
		Tags:               a.Tags,
		Project:            a.Project,
		Sensitivity:        store.Sensitivity(a.Sensitivity),
		SchemaVersion:      a.SchemaVersion,
	}
}

// ArchivedChunk is one chunk's record under chunks/data/{doc_id}/{chunk_id}.json.
type ArchivedChunk struct {
	ID          string            `json:"id"`
	DocumentID  string            `json:"document_id"`
	Text        string            `json:"text"`
	ChunkIndex  int               `json:"chunk_index"`
	CharStart   int               `json:"char_start"`
	CharEnd     int               `json:"char_end"`
	PageNumbers []int             `json:"page_numbers,omitempty"`
	Section     string            `json:"section,omitempty"`
	Context     string            `json:"context,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func chunkToArchived(c *store.Chunk) ArchivedChunk {
	return ArchivedChunk{
		ID:          c.ChunkID,
		DocumentID:  c.DocumentID,
		Text:        c.Text,
		ChunkIndex:  c.ChunkIndex,
		CharStart:   c.CharStart,
		CharEnd:     c.CharEnd,
		PageNumbers: c.PageNumbers,
		Section:     c.Section,
		Context:     c.Context,
		Metadata:    c.Metadata,
	}
}

func (a ArchivedChunk) toChunk() *store.Chunk {
	return &store.Chunk{
		ChunkID:     a.ID,
		DocumentID:  a.DocumentID,
		Text:        a.Text,
		ChunkIndex:  a.ChunkIndex,
		CharStart:   a.CharStart,
		CharEnd:     a.CharEnd,
		PageNumbers: a.PageNumbers,
		Section:     a.Section,
		Context:     a.Context,
		Metadata:    a.Metadata,
	}
}

// documentIndex is documents/index.json.
type documentIndex struct {
	DocumentIDs []string `json:"document_ids"`
}

// chunkIndexEntry is one row of chunks/index.json.
type chunkIndexEntry struct {
	ChunkID    string `json:"chunk_id"`
	DocumentID string `json:"document_id"`
}

type chunkIndex struct {
	Chunks []chunkIndexEntry `json:"chunks"`
}

// embeddingRecord is one row of embeddings/embeddings.json.
type embeddingRecord struct {
	ChunkID   string    `json:"chunk_id"`
	Embedding []float32 `json:"embedding"`
}
