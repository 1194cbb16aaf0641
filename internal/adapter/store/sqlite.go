package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/arturoeanton/go-code-retriever/internal/domain"
	"github.com/arturoeanton/go-code-retriever/internal/port"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS code_sessions (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT    NOT NULL UNIQUE,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS code_chunks (
	id          TEXT    PRIMARY KEY,
	session_id  TEXT    NOT NULL,
	chunk_index INTEGER NOT NULL,
	filename    TEXT    NOT NULL,
	start_line  INTEGER NOT NULL,
	end_line    INTEGER NOT NULL,
	language    TEXT    NOT NULL,
	chunk_type  TEXT    NOT NULL,
	content     TEXT    NOT NULL,
	embedding   TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_code_chunks_session ON code_chunks(session_id, chunk_index);
`

// SQLiteStore keeps chunks in a single SQLite file with vectors as JSON
// arrays. Similarity is computed in process over the session's rows.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database at path and applies the schema.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}

	slog.Info("sqlite store opened", "path", path)
	return &SQLiteStore{db: db}, nil
}

// Store appends chunks to a session in one transaction.
func (s *SQLiteStore) Store(ctx context.Context, chunks []domain.Chunk, sessionID string) (string, error) {
	sid, err := prepareStore(chunks, sessionID)
	if err != nil {
		return "", err
	}
	if err := s.withTx(ctx, func(tx *sql.Tx) error {
		return s.insertChunks(ctx, tx, sid, chunks)
	}); err != nil {
		return "", fmt.Errorf("%w: sqlite store: %w", port.ErrStorage, err)
	}

	slog.Info("chunks stored", "backend", "sqlite", "session_id", sid, "count", len(chunks))
	return sid, nil
}

func (s *SQLiteStore) insertChunks(ctx context.Context, tx *sql.Tx, sid string, chunks []domain.Chunk) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO code_sessions (id, created_at) VALUES (?, ?)`,
		sid, time.Now().UTC().UnixNano(),
	); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	var next int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(chunk_index) + 1, 0) FROM code_chunks WHERE session_id = ?`, sid,
	).Scan(&next); err != nil {
		return fmt.Errorf("next chunk index: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO code_chunks (id, session_id, chunk_index, filename, start_line, end_line, language, chunk_type, content, embedding)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i, c := range chunks {
		vec, err := json.Marshal(c.Embedding)
		if err != nil {
			return err
		}
		index := next + i
		if _, err := stmt.ExecContext(ctx,
			chunkID(sid, index), sid, index, c.Filename, c.StartLine, c.EndLine,
			string(c.Language), string(c.Type), c.Text, string(vec),
		); err != nil {
			return fmt.Errorf("insert chunk: %w", err)
		}
	}
	return nil
}

// Search loads the session's rows and returns the topK nearest.
func (s *SQLiteStore) Search(ctx context.Context, query []float32, sessionID string, topK int) ([]domain.RetrievedChunk, error) {
	if err := checkTopK(topK); err != nil {
		return nil, err
	}
	sid, err := normalizeSession(sessionID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT filename, start_line, end_line, language, chunk_type, content, embedding
		 FROM code_chunks WHERE session_id = ? ORDER BY chunk_index`, sid)
	if err != nil {
		return nil, fmt.Errorf("%w: sqlite search: %w", port.ErrSearch, err)
	}
	defer rows.Close()

	var candidates []domain.RetrievedChunk
	for rows.Next() {
		var c domain.Chunk
		var vec string
		if err := rows.Scan(&c.Filename, &c.StartLine, &c.EndLine, &c.Language, &c.Type, &c.Text, &vec); err != nil {
			return nil, fmt.Errorf("%w: sqlite scan: %w", port.ErrSearch, err)
		}
		if err := json.Unmarshal([]byte(vec), &c.Embedding); err != nil {
			return nil, fmt.Errorf("%w: sqlite decode vector: %w", port.ErrSearch, err)
		}
		dist, ok := cosineDistance(query, c.Embedding)
		if !ok {
			continue
		}
		c.Embedding = nil
		candidates = append(candidates, domain.RetrievedChunk{Chunk: c, Distance: dist})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: sqlite rows: %w", port.ErrSearch, err)
	}
	return nearest(candidates, topK), nil
}

// Stats counts a session's chunks by type.
func (s *SQLiteStore) Stats(ctx context.Context, sessionID string) (domain.SessionStats, error) {
	sid, err := normalizeSession(sessionID)
	if err != nil {
		return domain.SessionStats{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_type, COUNT(*) FROM code_chunks WHERE session_id = ? GROUP BY chunk_type`, sid)
	if err != nil {
		return domain.SessionStats{}, fmt.Errorf("%w: sqlite stats: %w", port.ErrStorage, err)
	}
	defer rows.Close()

	stats := emptyStats(sid)
	for rows.Next() {
		var t domain.ChunkType
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return domain.SessionStats{}, fmt.Errorf("%w: sqlite stats scan: %w", port.ErrStorage, err)
		}
		stats.FileTypes[t] = n
		stats.TotalChunks += n
	}
	return stats, rows.Err()
}

// ListSessions returns every session, oldest first.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]domain.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.created_at, COUNT(c.id)
		 FROM code_sessions s LEFT JOIN code_chunks c ON c.session_id = s.id
		 GROUP BY s.seq, s.id, s.created_at
		 ORDER BY s.seq`)
	if err != nil {
		return nil, fmt.Errorf("%w: sqlite list sessions: %w", port.ErrStorage, err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var sess domain.Session
		var created int64
		if err := rows.Scan(&sess.ID, &created, &sess.ChunkCount); err != nil {
			return nil, fmt.Errorf("%w: sqlite scan session: %w", port.ErrStorage, err)
		}
		sess.CreatedAt = time.Unix(0, created).UTC()
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// Evict removes every session but the keepRecent newest.
func (s *SQLiteStore) Evict(ctx context.Context, keepRecent int) ([]string, error) {
	if keepRecent < 0 {
		return evictable(nil, keepRecent)
	}
	sessions, err := s.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	stale, err := evictable(sessions, keepRecent)
	if err != nil || len(stale) == 0 {
		return stale, err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		for _, id := range stale {
			if _, err := tx.ExecContext(ctx, `DELETE FROM code_chunks WHERE session_id = ?`, id); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM code_sessions WHERE id = ?`, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: sqlite evict: %w", port.ErrStorage, err)
	}

	slog.Info("sessions evicted", "backend", "sqlite", "removed", len(stale), "kept", keepRecent)
	return stale, nil
}

// Reset deletes every row.
func (s *SQLiteStore) Reset(ctx context.Context) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM code_chunks`); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM code_sessions`)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: sqlite reset: %w", port.ErrStorage, err)
	}
	slog.Warn("store reset", "backend", "sqlite")
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// withTx commits when fn returns nil and rolls back otherwise.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
