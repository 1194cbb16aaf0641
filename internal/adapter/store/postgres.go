package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"time"

	_ "github.com/lib/pq"

	"github.com/arturoeanton/go-code-retriever/internal/domain"
	"github.com/arturoeanton/go-code-retriever/internal/port"
)

const postgresSchema = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS code_sessions (
	seq        BIGSERIAL PRIMARY KEY,
	id         UUID        NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS code_chunks (
	id          TEXT   PRIMARY KEY,
	session_id  UUID   NOT NULL REFERENCES code_sessions(id) ON DELETE CASCADE,
	chunk_index INT    NOT NULL,
	filename    TEXT   NOT NULL,
	start_line  INT    NOT NULL,
	end_line    INT    NOT NULL,
	language    TEXT   NOT NULL,
	chunk_type  TEXT   NOT NULL,
	content     TEXT   NOT NULL,
	vector      vector NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_code_chunks_session ON code_chunks (session_id, chunk_index);
`

// PostgresStore is a ChunkStore on PostgreSQL with the pgvector extension.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection, applies the schema and returns a store instance.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	slog.Info("postgres store ready")
	return &PostgresStore{db: db}, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Stats counts a session's chunks by type.
func (s *PostgresStore) Stats(ctx context.Context, sessionID string) (domain.SessionStats, error) {
	sid, err := normalizeSession(sessionID)
	if err != nil {
		return domain.SessionStats{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_type, COUNT(*) FROM code_chunks WHERE session_id = $1 GROUP BY chunk_type`, sid)
	if err != nil {
		return domain.SessionStats{}, fmt.Errorf("%w: postgres stats: %w", port.ErrStorage, err)
	}
	defer rows.Close()

	stats := emptyStats(sid)
	for rows.Next() {
		var t domain.ChunkType
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return domain.SessionStats{}, fmt.Errorf("%w: scan stats: %w", port.ErrStorage, err)
		}
		stats.FileTypes[t] = n
		stats.TotalChunks += n
	}
	return stats, rows.Err()
}

// ListSessions returns every session ordered by creation.
func (s *PostgresStore) ListSessions(ctx context.Context) ([]domain.Session, error) {
	query := `SELECT s.id, s.created_at, COUNT(c.id)
	          FROM code_sessions s
	          LEFT JOIN code_chunks c ON c.session_id = s.id
	          GROUP BY s.seq, s.id, s.created_at
	          ORDER BY s.seq`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: list sessions: %w", port.ErrStorage, err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var sess domain.Session
		if err := rows.Scan(&sess.ID, &sess.CreatedAt, &sess.ChunkCount); err != nil {
			return nil, fmt.Errorf("%w: scan session: %w", port.ErrStorage, err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// Evict deletes all but the keepRecent newest sessions. Chunks follow
// through ON DELETE CASCADE.
func (s *PostgresStore) Evict(ctx context.Context, keepRecent int) ([]string, error) {
	if keepRecent < 0 {
		return evictable(nil, keepRecent)
	}

	query := `DELETE FROM code_sessions
	          WHERE seq NOT IN (SELECT seq FROM code_sessions ORDER BY seq DESC LIMIT $1)
	          RETURNING id, seq`

	rows, err := s.db.QueryContext(ctx, query, keepRecent)
	if err != nil {
		return nil, fmt.Errorf("%w: evict sessions: %w", port.ErrStorage, err)
	}
	defer rows.Close()

	type removed struct {
		id  string
		seq int64
	}
	var gone []removed
	for rows.Next() {
		var r removed
		if err := rows.Scan(&r.id, &r.seq); err != nil {
			return nil, fmt.Errorf("%w: scan evicted: %w", port.ErrStorage, err)
		}
		gone = append(gone, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: evict sessions: %w", port.ErrStorage, err)
	}

	// RETURNING order is unspecified.
	ids := make([]string, len(gone))
	sort.Slice(gone, func(i, j int) bool { return gone[i].seq < gone[j].seq })
	for i, r := range gone {
		ids[i] = r.id
	}

	slog.Info("sessions evicted", "backend", "postgres", "removed", len(ids), "kept", keepRecent)
	return ids, nil
}

// Reset truncates both tables.
func (s *PostgresStore) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `TRUNCATE code_chunks, code_sessions RESTART IDENTITY`); err != nil {
		return fmt.Errorf("%w: reset: %w", port.ErrStorage, err)
	}
	slog.Warn("store reset", "backend", "postgres")
	return nil
}
