package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"askpdf/internal/chunker"
	"askpdf/internal/lock"
	"askpdf/internal/pkg/pdfextract"
	"askpdf/internal/vectorindex"
)

const defaultEmbeddingBatchSize = 32

type IngestService struct {
	sessions  SessionStore
	indexes   IndexStore
	embedder  Embedder
	locker    Locker
	splitter  *chunker.Splitter
	batchSize int
	logger    *slog.Logger
}

func NewIngestService(
	sessions SessionStore,
	indexes IndexStore,
	embedder Embedder,
	locker Locker,
	splitter *chunker.Splitter,
	batchSize int,
	logger *slog.Logger,
) *IngestService {
	if batchSize <= 0 {
		batchSize = defaultEmbeddingBatchSize
	}
	return &IngestService{
		sessions:  sessions,
		indexes:   indexes,
		embedder:  embedder,
		locker:    locker,
		splitter:  splitter,
		batchSize: batchSize,
		logger:    logger,
	}
}

type IngestInput struct {
	SessionID string
	FileName  string
	Content   io.Reader
}

type IngestResult struct {
	SessionID string `json:"session_id"`
	FileName  string `json:"file_name"`
	Pages     int    `json:"pages"`
	Chunks    int    `json:"chunks"`
}

// Ingest extracts the PDF text, splits and embeds it, and replaces the
// session's index. The session is marked processed only after the new index
// is in place.
func (s *IngestService) Ingest(ctx context.Context, input IngestInput) (*IngestResult, error) {
	sessionID := strings.TrimSpace(input.SessionID)
	if sessionID == "" || input.Content == nil {
		return nil, ErrInvalidInput
	}

	session, err := s.sessions.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, processingFailed(err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	doc, err := pdfextract.Extract(input.Content)
	if err != nil {
		return nil, processingFailed(err)
	}
	if doc.IsEmpty() {
		return nil, ErrNoExtractableText
	}

	release, err := s.locker.Acquire(ctx, sessionID)
	if err != nil {
		if errors.Is(err, lock.ErrLockTimeout) {
			return nil, ErrSessionBusy
		}
		return nil, processingFailed(err)
	}
	defer release()

	chunks, err := s.splitter.Split(doc.Text)
	if err != nil {
		return nil, processingFailed(err)
	}
	if len(chunks) == 0 {
		return nil, ErrNoExtractableText
	}

	vectors, err := s.embedChunks(ctx, chunks)
	if err != nil {
		return nil, processingFailed(err)
	}

	entries := make([]vectorindex.Entry, len(chunks))
	for i := range chunks {
		entries[i] = vectorindex.Entry{Text: chunks[i], Vector: vectors[i]}
	}
	if err := s.indexes.Replace(ctx, sessionID, s.embedder.Model(), entries); err != nil {
		return nil, processingFailed(err)
	}

	marked, err := s.sessions.MarkProcessed(ctx, sessionID, input.FileName)
	if err != nil {
		return nil, processingFailed(err)
	}
	if !marked {
		// deleted while we were indexing
		if _, err := s.indexes.Remove(sessionID); err != nil {
			s.logger.Warn("remove index of vanished session failed", "session_id", sessionID, "error", err)
		}
		return nil, ErrSessionNotFound
	}

	s.logger.Info("pdf ingested",
		"session_id", sessionID,
		"file_name", input.FileName,
		"pages", doc.Pages,
		"chunks", len(chunks),
	)
	return &IngestResult{
		SessionID: sessionID,
		FileName:  input.FileName,
		Pages:     doc.Pages,
		Chunks:    len(chunks),
	}, nil
}

// embedChunks calls the embedder in batches to stay under provider limits.
func (s *IngestService) embedChunks(ctx context.Context, chunks []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	for i := 0; i < len(chunks); i += s.batchSize {
		end := i + s.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch, err := s.embedder.EmbedDocuments(ctx, chunks[i:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedding count mismatch: %d chunks, %d vectors", len(chunks), len(vectors))
	}
	return vectors, nil
}
