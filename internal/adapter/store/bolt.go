package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/arturoeanton/go-code-retriever/internal/domain"
	"github.com/arturoeanton/go-code-retriever/internal/port"
)

var (
	bucketSessions = []byte("sessions")
	bucketChunks   = []byte("chunks")
)

// sessionRecord is the value stored under a session id in the sessions bucket.
type sessionRecord struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Seq       uint64    `json:"seq"`
}

// chunkRecord is one persisted chunk, vector included.
type chunkRecord struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	domain.Chunk
}

// BoltStore is the default, single-file ChunkStore. Each session owns a
// nested bucket under "chunks" keyed by the big-endian chunk index.
type BoltStore struct {
	db *bbolt.DB
}

// boltLockTimeout bounds the wait for the file lock bbolt holds exclusively
// while a database is open.
const boltLockTimeout = 5 * time.Second

// ErrStoreLocked means another process, typically a running server, holds
// the bolt file open.
var ErrStoreLocked = errors.New("bolt file is locked by another process")

// NewBoltStore opens (or creates) the database file at path. Only one
// process can hold the file at a time.
func NewBoltStore(path string) (*BoltStore, error) {
	return openBolt(path, boltLockTimeout)
}

func openBolt(path string, lockTimeout time.Duration) (*BoltStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create bolt dir: %w", err)
		}
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: lockTimeout})
	if errors.Is(err, bbolt.ErrTimeout) {
		return nil, fmt.Errorf("%w: %s (stop the server or use a separate BOLT_PATH): %w", ErrStoreLocked, path, err)
	}
	if err != nil {
		return nil, fmt.Errorf("open bolt: %w", err)
	}

	if err := db.Update(createBuckets); err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	slog.Info("bolt store opened", "path", path)
	return &BoltStore{db: db}, nil
}

func createBuckets(tx *bbolt.Tx) error {
	if _, err := tx.CreateBucketIfNotExists(bucketSessions); err != nil {
		return err
	}
	_, err := tx.CreateBucketIfNotExists(bucketChunks)
	return err
}

// Store appends chunks to a session in a single transaction.
func (s *BoltStore) Store(ctx context.Context, chunks []domain.Chunk, sessionID string) (string, error) {
	sid, err := prepareStore(chunks, sessionID)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		sessions := tx.Bucket(bucketSessions)
		if sessions.Get([]byte(sid)) == nil {
			seq, err := sessions.NextSequence()
			if err != nil {
				return err
			}
			data, err := json.Marshal(sessionRecord{ID: sid, CreatedAt: time.Now().UTC(), Seq: seq})
			if err != nil {
				return err
			}
			if err := sessions.Put([]byte(sid), data); err != nil {
				return err
			}
		}

		b, err := tx.Bucket(bucketChunks).CreateBucketIfNotExists([]byte(sid))
		if err != nil {
			return err
		}
		for _, c := range chunks {
			n, err := b.NextSequence()
			if err != nil {
				return err
			}
			index := n - 1
			data, err := json.Marshal(chunkRecord{ID: chunkID(sid, int(index)), SessionID: sid, Chunk: c})
			if err != nil {
				return err
			}
			if err := b.Put(indexKey(index), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: bolt store: %w", port.ErrStorage, err)
	}

	slog.Info("chunks stored", "backend", "bolt", "session_id", sid, "count", len(chunks))
	return sid, nil
}

// Search scans the session bucket and returns the topK nearest chunks.
func (s *BoltStore) Search(ctx context.Context, query []float32, sessionID string, topK int) ([]domain.RetrievedChunk, error) {
	if err := checkTopK(topK); err != nil {
		return nil, err
	}
	sid, err := normalizeSession(sessionID)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var candidates []domain.RetrievedChunk
	err = s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketChunks).Bucket([]byte(sid))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var rec chunkRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			dist, ok := cosineDistance(query, rec.Embedding)
			if !ok {
				return nil
			}
			rec.Embedding = nil
			candidates = append(candidates, domain.RetrievedChunk{Chunk: rec.Chunk, Distance: dist})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: bolt search: %w", port.ErrSearch, err)
	}
	return nearest(candidates, topK), nil
}

// Stats counts a session's chunks by type. Unknown sessions have zero chunks.
func (s *BoltStore) Stats(ctx context.Context, sessionID string) (domain.SessionStats, error) {
	sid, err := normalizeSession(sessionID)
	if err != nil {
		return domain.SessionStats{}, err
	}
	stats := emptyStats(sid)

	err = s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketChunks).Bucket([]byte(sid))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var rec struct {
				Type domain.ChunkType `json:"type"`
			}
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			stats.TotalChunks++
			stats.FileTypes[rec.Type]++
			return nil
		})
	})
	if err != nil {
		return domain.SessionStats{}, fmt.Errorf("%w: bolt stats: %w", port.ErrStorage, err)
	}
	return stats, nil
}

// ListSessions returns the session registry ordered by creation.
func (s *BoltStore) ListSessions(ctx context.Context) ([]domain.Session, error) {
	var records []sessionRecord
	counts := map[string]int{}

	err := s.db.View(func(tx *bbolt.Tx) error {
		chunks := tx.Bucket(bucketChunks)
		return tx.Bucket(bucketSessions).ForEach(func(k, v []byte) error {
			var rec sessionRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			records = append(records, rec)
			if b := chunks.Bucket(k); b != nil {
				counts[rec.ID] = b.Stats().KeyN
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: bolt list sessions: %w", port.ErrStorage, err)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Seq < records[j].Seq })
	sessions := make([]domain.Session, len(records))
	for i, r := range records {
		sessions[i] = domain.Session{ID: r.ID, CreatedAt: r.CreatedAt, ChunkCount: counts[r.ID]}
	}
	return sessions, nil
}

// Evict removes every session but the keepRecent most recently created.
func (s *BoltStore) Evict(ctx context.Context, keepRecent int) ([]string, error) {
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

	err = s.db.Update(func(tx *bbolt.Tx) error {
		registry := tx.Bucket(bucketSessions)
		chunks := tx.Bucket(bucketChunks)
		for _, id := range stale {
			if err := chunks.DeleteBucket([]byte(id)); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
				return err
			}
			if err := registry.Delete([]byte(id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: bolt evict: %w", port.ErrStorage, err)
	}

	slog.Info("sessions evicted", "backend", "bolt", "removed", len(stale), "kept", keepRecent)
	return stale, nil
}

// Reset drops and recreates both root buckets.
func (s *BoltStore) Reset(ctx context.Context) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketSessions, bucketChunks} {
			if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
				return err
			}
		}
		return createBuckets(tx)
	})
	if err != nil {
		return fmt.Errorf("%w: bolt reset: %w", port.ErrStorage, err)
	}
	slog.Warn("store reset", "backend", "bolt")
	return nil
}

// Close closes the database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func indexKey(i uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, i)
	return k
}
