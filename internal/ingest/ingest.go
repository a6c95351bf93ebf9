// Package ingest accepts pre-extracted, pre-chunked, pre-embedded documents
// from external extractors and commits them to the IndexStore atomically.
// It is the only component that writes to the IndexStore.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	ragderrors "github.com/ragdhq/ragd/internal/errors"
	"github.com/ragdhq/ragd/internal/store"
)

// FailureCategory classifies why a document could not be ingested.
// FailureNone means the document was (or will be) accepted.
type FailureCategory string

const (
	FailureNone       FailureCategory = ""
	FailureImageOnly  FailureCategory = "image_only"
	FailureEncrypted  FailureCategory = "encrypted"
	FailureMalformed  FailureCategory = "malformed"
	FailureJSRendered FailureCategory = "js_rendered"
	FailureEmpty      FailureCategory = "empty"
	FailureTooShort   FailureCategory = "too_short"
	FailureUnknown    FailureCategory = "unknown"
)

// DefaultMinTextLength is the floor below which normalised text is treated
// as too-short rather than a usable document.
const DefaultMinTextLength = 32

// ChunkInput is one chunk produced by an external chunker, paired by index
// with its embedding in Request.Embeddings and its metadata in
// Request.ChunkMetadata.
type ChunkInput struct {
	Text        string
	ChunkIndex  int
	CharStart   int
	CharEnd     int
	PageNumbers []int
	Section     string
	Context     string
}

// DocumentAttributes carries the descriptive fields an extractor attaches to
// a document, independent of its chunked content.
type DocumentAttributes struct {
	Title   string
	Creator string
	Date    string
	Subject string

	Tags        []string
	Project     string
	Sensitivity store.Sensitivity

	ExtractionMethod string
	ExtractionPages  int
	EmbeddingModel   string
}

// Request is one document's pre-extracted content, handed to the coordinator
// by an external extractor. Text extraction, normalisation, and chunking all
// happen upstream; the coordinator only validates and writes.
type Request struct {
	DocumentID     string
	Path           string
	Filename       string
	FileType       string
	FileSize       int64
	NormalizedText string
	ContentHash    string

	Chunks        []ChunkInput
	Embeddings    [][]float32
	ChunkMetadata []map[string]string

	Attributes DocumentAttributes

	// ExtractionNote is an optional hint from the extractor explaining why
	// it produced degenerate output (e.g. FailureEncrypted, FailureImageOnly,
	// FailureJSRendered). classifyFailure honours it before falling back to
	// automatic empty/too-short detection.
	ExtractionNote FailureCategory
}

// Result reports the outcome of one Ingest call.
type Result struct {
	DocumentID      string
	Success         bool
	ChunkCount      int
	FailureCategory FailureCategory
	// Remediation is a human-readable suggestion, set whenever Success is
	// false (including the benign duplicate-skip case).
	Remediation string
}

// Config configures a Coordinator.
type Config struct {
	// Dimension is the engine-wide embedding dimension every vector must match.
	Dimension int

	// SkipDuplicates treats a duplicate content_hash as a benign skip
	// (Success: false, no FailureCategory) rather than propagating the
	// store's duplicate error.
	SkipDuplicates bool

	// MinTextLength below which normalised text is classified too-short.
	MinTextLength int
}

// DefaultConfig returns sensible ingest defaults for the given dimension.
func DefaultConfig(dimension int) Config {
	return Config{
		Dimension:      dimension,
		SkipDuplicates: true,
		MinTextLength:  DefaultMinTextLength,
	}
}

// Coordinator validates incoming documents and issues one atomic
// IndexStore.AddDocument per document.
type Coordinator struct {
	store  *store.IndexStore
	config Config
	log    *slog.Logger
}

// NewCoordinator constructs a Coordinator backed by the given IndexStore.
func NewCoordinator(indexStore *store.IndexStore, config Config) *Coordinator {
	if config.MinTextLength <= 0 {
		config.MinTextLength = DefaultMinTextLength
	}
	return &Coordinator{
		store:  indexStore,
		config: config,
		log:    slog.With(slog.String("component", "ingest")),
	}
}

// Ingest validates req, classifying degenerate input before it ever reaches
// the store, then issues one atomic add. A classified failure (empty
// extraction, duplicate content, a backend rejection) returns a failed
// Result with a nil error; only caller cancellation returns a Go error.
func (c *Coordinator) Ingest(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if category, remediation := classifyFailure(req, c.config); category != FailureNone {
		c.log.Warn("ingest rejected",
			slog.String("document_id", req.DocumentID),
			slog.String("category", string(category)))
		return &Result{
			DocumentID:      req.DocumentID,
			Success:         false,
			FailureCategory: category,
			Remediation:     remediation,
		}, nil
	}

	doc := &store.Document{
		DocumentID:         req.DocumentID,
		Path:               req.Path,
		Filename:           req.Filename,
		FileType:           req.FileType,
		FileSize:           req.FileSize,
		ContentHash:        req.ContentHash,
		ExtractionMethod:   req.Attributes.ExtractionMethod,
		ExtractionPages:    req.Attributes.ExtractionPages,
		EmbeddingModel:     req.Attributes.EmbeddingModel,
		EmbeddingDimension: c.config.Dimension,
		Title:              req.Attributes.Title,
		Creator:            req.Attributes.Creator,
		Date:               req.Attributes.Date,
		Subject:            req.Attributes.Subject,
		Tags:               req.Attributes.Tags,
		Project:            req.Attributes.Project,
		Sensitivity:        req.Attributes.Sensitivity,
	}

	chunks := make([]*store.Chunk, len(req.Chunks))
	for i, ch := range req.Chunks {
		chunks[i] = &store.Chunk{
			ChunkID:     fmt.Sprintf("%s_chunk_%d", req.DocumentID, ch.ChunkIndex),
			DocumentID:  req.DocumentID,
			Text:        ch.Text,
			ChunkIndex:  ch.ChunkIndex,
			CharStart:   ch.CharStart,
			CharEnd:     ch.CharEnd,
			PageNumbers: ch.PageNumbers,
			Section:     ch.Section,
			Context:     ch.Context,
		}
	}

	err := c.store.AddDocument(ctx, doc, chunks, req.Embeddings, req.ChunkMetadata)
	if err == nil {
		return &Result{DocumentID: req.DocumentID, Success: true, ChunkCount: len(chunks)}, nil
	}

	if ragderrors.GetCode(err) == ragderrors.ErrCodeDuplicate {
		if c.config.SkipDuplicates {
			c.log.Info("skipped duplicate document", slog.String("document_id", req.DocumentID))
			return &Result{
				DocumentID:  req.DocumentID,
				Success:     false,
				Remediation: "document already indexed under this content hash, skipped",
			}, nil
		}
		return &Result{
			DocumentID:      req.DocumentID,
			Success:         false,
			FailureCategory: FailureMalformed,
			Remediation:     err.Error(),
		}, nil
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	c.log.Error("add_document failed",
		slog.String("document_id", req.DocumentID), slog.String("error", err.Error()))
	return &Result{
		DocumentID:      req.DocumentID,
		Success:         false,
		FailureCategory: FailureUnknown,
		Remediation:     "indexing backend rejected the document: " + err.Error(),
	}, nil
}

// classifyFailure inspects a request for degenerate input before it reaches
// the store. An extractor-supplied ExtractionNote takes priority; otherwise
// empty, too-short, and chunk/embedding-count mismatches are detected
// automatically.
func classifyFailure(req Request, config Config) (FailureCategory, string) {
	switch req.ExtractionNote {
	case FailureImageOnly:
		return FailureImageOnly, "document appears to contain only images; run OCR before ingesting"
	case FailureEncrypted:
		return FailureEncrypted, "document is encrypted or password-protected; remove protection before ingesting"
	case FailureJSRendered:
		return FailureJSRendered, "page content is rendered by client-side script; fetch the rendered DOM before ingesting"
	}

	if len(req.NormalizedText) == 0 {
		return FailureEmpty, "extracted text is empty; the source may be a scanned image or unsupported format"
	}
	if len(req.NormalizedText) < config.MinTextLength {
		return FailureTooShort, fmt.Sprintf("extracted text is only %d characters, below the %d-character floor", len(req.NormalizedText), config.MinTextLength)
	}
	if len(req.Chunks) == 0 {
		return FailureMalformed, "chunker produced no chunks from non-empty text"
	}
	if len(req.Chunks) != len(req.Embeddings) {
		return FailureMalformed, fmt.Sprintf("chunk count (%d) does not match embedding count (%d)", len(req.Chunks), len(req.Embeddings))
	}

	return FailureNone, ""
}
