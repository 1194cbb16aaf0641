package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/arturoeanton/go-code-retriever/internal/domain"
	"github.com/arturoeanton/go-code-retriever/internal/port"
)

// Store persists chunks and their vectors in one transaction.
func (s *PostgresStore) Store(ctx context.Context, chunks []domain.Chunk, sessionID string) (string, error) {
	sid, err := prepareStore(chunks, sessionID)
	if err != nil {
		return "", err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("%w: begin tx: %w", port.ErrStorage, err)
	}
	defer tx.Rollback()

	if err := insertVectors(ctx, tx, sid, chunks); err != nil {
		return "", fmt.Errorf("%w: postgres store: %w", port.ErrStorage, err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("%w: commit: %w", port.ErrStorage, err)
	}

	slog.Info("chunks stored", "backend", "postgres", "session_id", sid, "count", len(chunks))
	return sid, nil
}

func insertVectors(ctx context.Context, tx *sql.Tx, sid string, chunks []domain.Chunk) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO code_sessions (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, sid,
	); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	// Serializes concurrent appends to the same session.
	if _, err := tx.ExecContext(ctx, `SELECT 1 FROM code_sessions WHERE id = $1 FOR UPDATE`, sid); err != nil {
		return fmt.Errorf("lock session: %w", err)
	}

	var next int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(chunk_index) + 1, 0) FROM code_chunks WHERE session_id = $1`, sid,
	).Scan(&next); err != nil {
		return fmt.Errorf("next chunk index: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO code_chunks (id, session_id, chunk_index, filename, start_line, end_line, language, chunk_type, content, vector)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::vector)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i, c := range chunks {
		index := next + i
		if _, err := stmt.ExecContext(ctx,
			chunkID(sid, index), sid, index, c.Filename, c.StartLine, c.EndLine,
			string(c.Language), string(c.Type), c.Text, vectorToString(c.Embedding),
		); err != nil {
			return fmt.Errorf("insert chunk: %w", err)
		}
	}
	return nil
}

// Search performs a cosine distance search restricted to one session.
// Rows whose dimension differs from the query are skipped.
func (s *PostgresStore) Search(ctx context.Context, query []float32, sessionID string, topK int) ([]domain.RetrievedChunk, error) {
	if err := checkTopK(topK); err != nil {
		return nil, err
	}
	sid, err := normalizeSession(sessionID)
	if err != nil {
		return nil, err
	}

	vectorStr := vectorToString(query)
	q := `SELECT c.filename, c.start_line, c.end_line, c.language, c.chunk_type, c.content,
	             c.vector <=> $1::vector AS distance
	      FROM code_chunks c
	      WHERE c.session_id = $2 AND vector_dims(c.vector) = $3
	      ORDER BY c.vector <=> $1::vector, c.chunk_index
	      LIMIT $4`

	rows, err := s.db.QueryContext(ctx, q, vectorStr, sid, len(query), topK)
	if err != nil {
		return nil, fmt.Errorf("%w: postgres search: %w", port.ErrSearch, err)
	}
	defer rows.Close()

	var results []domain.RetrievedChunk
	for rows.Next() {
		var rc domain.RetrievedChunk
		if err := rows.Scan(
			&rc.Filename, &rc.StartLine, &rc.EndLine, &rc.Language, &rc.Type, &rc.Text, &rc.Distance,
		); err != nil {
			return nil, fmt.Errorf("%w: scan similar: %w", port.ErrSearch, err)
		}
		results = append(results, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: postgres search: %w", port.ErrSearch, err)
	}
	return results, nil
}

// vectorToString converts a float32 slice to pgvector string format: [0.1,0.2,0.3].
func vectorToString(v []float32) string {
	parts := make([]string, len(v))
	for i, val := range v {
		parts[i] = fmt.Sprintf("%g", val)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
