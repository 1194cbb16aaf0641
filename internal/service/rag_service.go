package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/arturoeanton/go-code-retriever/internal/chunker"
	"github.com/arturoeanton/go-code-retriever/internal/domain"
	"github.com/arturoeanton/go-code-retriever/internal/port"
)

// RAGOptions tune ingestion.
type RAGOptions struct {
	MaxChunkSize       int
	SplitOnBlocks      bool
	KeepRecentSessions int // evict older sessions after each index, 0 = never
}

// IndexResult reports what IndexFiles stored.
type IndexResult struct {
	SessionID string   `json:"session_id"`
	Files     int      `json:"files"`
	Chunks    int      `json:"chunks"`
	Evicted   []string `json:"evicted,omitempty"`

	// SessionEvicted is set when retention removed the session just written,
	// which happens when appending to one of the oldest sessions.
	SessionEvicted bool `json:"session_evicted,omitempty"`
}

// RAGService is the retrieval core used by the HTTP, MCP and CLI surfaces.
type RAGService struct {
	embedder  *EmbeddingService
	store     port.ChunkStore
	retriever *RetrievalService
	opts      RAGOptions
}

// NewRAGService creates a new RAG service.
func NewRAGService(embedder *EmbeddingService, store port.ChunkStore, retriever *RetrievalService, opts RAGOptions) *RAGService {
	if opts.MaxChunkSize <= 0 {
		opts.MaxChunkSize = chunker.DefaultMaxChunkSize
	}
	return &RAGService{embedder: embedder, store: store, retriever: retriever, opts: opts}
}

// ModelName returns the embedding model in use.
func (s *RAGService) ModelName() string {
	return s.embedder.ModelName()
}

// ProcessUploadedFiles decodes, filters, chunks and embeds uploaded files.
// Files that are not sources, fail to decode or are empty are skipped.
// Embedding runs once over all chunks and fails as a whole.
func (s *RAGService) ProcessUploadedFiles(ctx context.Context, files []domain.UploadedFile) ([]domain.Chunk, error) {
	var all []domain.Chunk
	for _, f := range files {
		if !chunker.IsSourceFile(f.Name) {
			slog.Debug("skipping non-source file", "filename", f.Name)
			continue
		}

		raw, err := base64.StdEncoding.DecodeString(f.Content)
		if err != nil {
			slog.Warn("failed to process file", "filename", f.Name, "error", err)
			continue
		}
		if !utf8.Valid(raw) {
			slog.Warn("failed to process file", "filename", f.Name, "error", "content is not valid UTF-8")
			continue
		}
		content := string(raw)
		if strings.TrimSpace(content) == "" {
			slog.Warn("skipping empty file", "filename", f.Name)
			continue
		}

		chunks := chunker.ChunkWithOptions(content, f.Name, chunker.Options{
			MaxChunkSize:  s.opts.MaxChunkSize,
			SplitOnBlocks: s.opts.SplitOnBlocks,
		})
		all = append(all, chunks...)
	}

	if len(all) == 0 {
		slog.Info("processed uploaded files", "files", len(files), "chunks", 0)
		return []domain.Chunk{}, nil
	}

	embedded, err := s.embedder.EmbedChunks(ctx, all)
	if err != nil {
		return nil, err
	}
	slog.Info("processed uploaded files", "files", len(files), "chunks", len(embedded))
	return embedded, nil
}

// StoreChunks persists embedded chunks and returns the session id.
func (s *RAGService) StoreChunks(ctx context.Context, chunks []domain.Chunk, sessionID string) (string, error) {
	return s.store.Store(ctx, chunks, sessionID)
}

// IndexFiles processes and stores files in one step, then applies the
// retention policy when one is configured.
func (s *RAGService) IndexFiles(ctx context.Context, files []domain.UploadedFile, sessionID string) (*IndexResult, error) {
	chunks, err := s.ProcessUploadedFiles(ctx, files)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no source files with content among %d uploaded", port.ErrNoChunks, len(files))
	}

	sid, err := s.store.Store(ctx, chunks, sessionID)
	if err != nil {
		return nil, err
	}

	result := &IndexResult{SessionID: sid, Files: countFiles(chunks), Chunks: len(chunks)}
	if s.opts.KeepRecentSessions > 0 {
		evicted, err := s.store.Evict(ctx, s.opts.KeepRecentSessions)
		if err != nil {
			slog.Warn("session cleanup failed", "error", err)
		}
		result.Evicted = evicted
		for _, id := range evicted {
			if id == sid {
				result.SessionEvicted = true
				slog.Warn("indexed session evicted by retention", "session_id", sid, "keep_recent", s.opts.KeepRecentSessions)
			}
		}
	}
	return result, nil
}

// RetrieveRelevantChunks ranks the session's chunks for q.
func (s *RAGService) RetrieveRelevantChunks(ctx context.Context, q, sessionID string, maxChunks int) ([]domain.RetrievedChunk, error) {
	return s.retriever.Retrieve(ctx, q, sessionID, maxChunks)
}

// FormatContextForAI renders retrieved chunks for a generation model.
func (s *RAGService) FormatContextForAI(chunks []domain.RetrievedChunk, q string) string {
	return s.retriever.FormatContext(chunks, q)
}

// ContextSummary summarises retrieved chunks.
func (s *RAGService) ContextSummary(chunks []domain.RetrievedChunk) domain.ContextSummary {
	return ContextSummary(chunks)
}

// GetSessionStats counts a session's chunks by type.
func (s *RAGService) GetSessionStats(ctx context.Context, sessionID string) (domain.SessionStats, error) {
	return s.store.Stats(ctx, sessionID)
}

// ListSessions returns every stored session, oldest first.
func (s *RAGService) ListSessions(ctx context.Context) ([]domain.Session, error) {
	return s.store.ListSessions(ctx)
}

// CleanupOldSessions keeps the keepRecent newest sessions and deletes the rest.
func (s *RAGService) CleanupOldSessions(ctx context.Context, keepRecent int) ([]string, error) {
	removed, err := s.store.Evict(ctx, keepRecent)
	if err != nil {
		return nil, err
	}
	for _, id := range removed {
		slog.Info("cleaned up old session", "session_id", id)
	}
	return removed, nil
}

// ResetDatabase drops all stored sessions and chunks.
func (s *RAGService) ResetDatabase(ctx context.Context) error {
	return s.store.Reset(ctx)
}

func countFiles(chunks []domain.Chunk) int {
	files := map[string]bool{}
	for _, c := range chunks {
		files[c.Filename] = true
	}
	return len(files)
}
