package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/arturoeanton/go-code-retriever/internal/domain"
	"github.com/arturoeanton/go-code-retriever/internal/port"
	"github.com/arturoeanton/go-code-retriever/internal/query"
)

// NoRelevantCode is the context emitted when retrieval finds nothing.
const NoRelevantCode = "No relevant code found."

// Retrieval defaults.
const (
	DefaultMaxChunks     = 8
	DefaultQueryVariants = 3
)

// RetrievalOptions tune the retrieval pipeline. Zero values select the defaults.
type RetrievalOptions struct {
	MaxChunks         int // results when the caller passes <= 0
	MaxQueryVariants  int // enhanced variants searched per query
	ContextCharBudget int // 0 = unbounded formatted context
}

// RetrievalService runs multi-query search over a session and ranks the merged results.
type RetrievalService struct {
	embedder *EmbeddingService
	store    port.ChunkStore
	opts     RetrievalOptions
}

// NewRetrievalService creates a new retrieval service.
func NewRetrievalService(embedder *EmbeddingService, store port.ChunkStore, opts RetrievalOptions) *RetrievalService {
	if opts.MaxChunks <= 0 {
		opts.MaxChunks = DefaultMaxChunks
	}
	if opts.MaxQueryVariants <= 0 {
		opts.MaxQueryVariants = DefaultQueryVariants
	}
	return &RetrievalService{embedder: embedder, store: store, opts: opts}
}

// Retrieve returns up to maxChunks chunks of sessionID ranked for q.
//
// The query is expanded, each variant is embedded and searched, results are
// deduplicated by (filename, start_line) with the first hit kept, scored
// against the original query and sorted by relevance then distance. A variant
// that fails to embed or search is logged and skipped; if all of them fail
// the result is empty rather than an error.
func (s *RetrievalService) Retrieve(ctx context.Context, q, sessionID string, maxChunks int) ([]domain.RetrievedChunk, error) {
	if maxChunks <= 0 {
		maxChunks = s.opts.MaxChunks
	}
	sid, err := domain.NormalizeSessionID(sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", port.ErrInvalidSession, sessionID)
	}
	if strings.TrimSpace(q) == "" {
		return []domain.RetrievedChunk{}, nil
	}

	variants := query.Enhance(q)
	if len(variants) > s.opts.MaxQueryVariants {
		variants = variants[:s.opts.MaxQueryVariants]
	}

	seen := make(map[domain.ChunkKey]bool)
	results := []domain.RetrievedChunk{}
	for _, variant := range variants {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		vec, err := s.embedder.EmbedQuery(ctx, variant)
		if err != nil {
			slog.Warn("query variant skipped", "variant", variant, "stage", "embed", "error", err)
			continue
		}
		found, err := s.store.Search(ctx, vec, sid, maxChunks)
		if err != nil {
			slog.Warn("query variant skipped", "variant", variant, "stage", "search", "error", err)
			continue
		}

		for _, c := range found {
			key := c.Key()
			if seen[key] {
				continue
			}
			seen[key] = true
			c.RelevanceScore = query.Relevance(q, c.Chunk)
			results = append(results, c)
		}
	}

	query.Rank(results)
	if len(results) > maxChunks {
		results = results[:maxChunks]
	}

	slog.Info("retrieved relevant chunks", "session_id", sid, "variants", len(variants), "chunks", len(results), "query", truncate(q, 50))
	return results, nil
}

// FormatContext renders chunks, in order, as the context block handed to a
// generation model.
func (s *RetrievalService) FormatContext(chunks []domain.RetrievedChunk, q string) string {
	return FormatContext(chunks, q, s.opts.ContextCharBudget)
}

// FormatContext renders chunks under a header naming the query. With a
// positive budget, sections stop before the one that would exceed it; the
// first section is always included.
func FormatContext(chunks []domain.RetrievedChunk, q string, budget int) string {
	if len(chunks) == 0 {
		return NoRelevantCode
	}

	parts := []string{fmt.Sprintf("## Relevant Code for Query: '%s'\n", q)}
	size := len(parts[0])
	for i, c := range chunks {
		section := []string{
			fmt.Sprintf("### %d. %s (lines %d-%d) - %s", i+1, c.Filename, c.StartLine, c.EndLine, c.Type),
			"```" + string(c.Language),
			strings.TrimSpace(c.Text),
			"```\n",
		}
		sectionSize := len(strings.Join(section, "\n")) + 1
		if budget > 0 && i > 0 && size+sectionSize > budget {
			break
		}
		parts = append(parts, section...)
		size += sectionSize
	}
	return strings.Join(parts, "\n")
}

// ContextSummary describes the files, chunk types and mean relevance of chunks.
func ContextSummary(chunks []domain.RetrievedChunk) domain.ContextSummary {
	summary := domain.ContextSummary{Files: []string{}, Types: []string{}}
	if len(chunks) == 0 {
		return summary
	}

	files := map[string]bool{}
	types := map[string]bool{}
	var total float64
	for _, c := range chunks {
		files[c.Filename] = true
		types[string(c.Type)] = true
		total += c.RelevanceScore
	}
	for f := range files {
		summary.Files = append(summary.Files, f)
	}
	for t := range types {
		summary.Types = append(summary.Types, t)
	}
	sort.Strings(summary.Files)
	sort.Strings(summary.Types)

	summary.TotalChunks = len(chunks)
	summary.AverageRelevance = total / float64(len(chunks))
	return summary
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
