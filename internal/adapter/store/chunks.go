package store

import (
	"fmt"
	"math"
	"sort"

	"github.com/arturoeanton/go-code-retriever/internal/domain"
	"github.com/arturoeanton/go-code-retriever/internal/port"
)

// chunkID builds the persisted id of the index-th chunk of a session.
func chunkID(sessionID string, index int) string {
	return fmt.Sprintf("%s_%d", sessionID, index)
}

// prepareStore validates a batch before anything is written and resolves
// the target session id, generating one when sessionID is empty.
func prepareStore(chunks []domain.Chunk, sessionID string) (string, error) {
	if len(chunks) == 0 {
		return "", port.ErrNoChunks
	}
	for i, c := range chunks {
		if !c.HasEmbedding() {
			return "", fmt.Errorf("%w: chunk %d (%s:%d)", port.ErrUnembeddedChunk, i, c.Filename, c.StartLine)
		}
	}
	if sessionID == "" {
		return domain.NewSessionID(), nil
	}
	return normalizeSession(sessionID)
}

func normalizeSession(sessionID string) (string, error) {
	sid, err := domain.NormalizeSessionID(sessionID)
	if err != nil {
		return "", fmt.Errorf("%w: %q", port.ErrInvalidSession, sessionID)
	}
	return sid, nil
}

// cosineDistance returns 1 - cos(a, b). ok is false when the dimensions
// differ. A zero vector is at distance 1 from everything.
func cosineDistance(a, b []float32) (dist float64, ok bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1, true
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb)), true
}

// nearest keeps the topK candidates with the smallest distance. Ties keep
// storage order.
func nearest(candidates []domain.RetrievedChunk, topK int) []domain.RetrievedChunk {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Distance < candidates[j].Distance
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates
}

func checkTopK(topK int) error {
	if topK <= 0 {
		return fmt.Errorf("%w: top_k must be positive, got %d", port.ErrInvalidArgument, topK)
	}
	return nil
}

// evictable returns the ids of every session but the keepRecent newest.
// sessions must be ordered oldest first.
func evictable(sessions []domain.Session, keepRecent int) ([]string, error) {
	if keepRecent < 0 {
		return nil, fmt.Errorf("%w: keep_recent must not be negative, got %d", port.ErrInvalidArgument, keepRecent)
	}
	if len(sessions) <= keepRecent {
		return nil, nil
	}
	stale := sessions[:len(sessions)-keepRecent]
	ids := make([]string, len(stale))
	for i, s := range stale {
		ids[i] = s.ID
	}
	return ids, nil
}

func emptyStats(sessionID string) domain.SessionStats {
	return domain.SessionStats{SessionID: sessionID, FileTypes: map[domain.ChunkType]int{}}
}
