package service

import (
	"context"
	"errors"
	"sync"

	"github.com/arturoeanton/go-code-retriever/internal/domain"
)

// fakeProvider maps texts to fixed vectors. Unknown texts embed to {0}.
type fakeProvider struct {
	mu         sync.Mutex
	vectors    map[string][]float32
	failing    map[string]bool
	batchErr   error
	short      bool // return one vector fewer than asked
	batchCalls int
	queryCalls int
	lastBatch  []string
}

func (f *fakeProvider) ModelName() string { return "fake-embed" }

func (f *fakeProvider) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryCalls++
	if f.failing[text] {
		return nil, errors.New("backend unavailable")
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0}, nil
}

func (f *fakeProvider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls++
	f.lastBatch = append([]string(nil), texts...)
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	n := len(texts)
	if f.short {
		n--
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = []float32{float32(i + 1)}
	}
	return out, nil
}

// fakeStore answers searches by the first component of the query vector.
type fakeStore struct {
	results   map[float32][]domain.RetrievedChunk
	searchErr map[float32]error
	searches  []int // topK of each search

	stored    [][]domain.Chunk
	storeErr  error
	evictKeep []int
	evicted   []string
	resets    int
}

func (f *fakeStore) Store(_ context.Context, chunks []domain.Chunk, sessionID string) (string, error) {
	if f.storeErr != nil {
		return "", f.storeErr
	}
	f.stored = append(f.stored, chunks)
	if sessionID == "" {
		sessionID = domain.NewSessionID()
	}
	return sessionID, nil
}

func (f *fakeStore) Search(_ context.Context, q []float32, _ string, topK int) ([]domain.RetrievedChunk, error) {
	f.searches = append(f.searches, topK)
	if err := f.searchErr[q[0]]; err != nil {
		return nil, err
	}
	// Copy so callers cannot mutate the canned results.
	return append([]domain.RetrievedChunk(nil), f.results[q[0]]...), nil
}

func (f *fakeStore) Stats(_ context.Context, sessionID string) (domain.SessionStats, error) {
	return domain.SessionStats{SessionID: sessionID, FileTypes: map[domain.ChunkType]int{}}, nil
}

func (f *fakeStore) ListSessions(context.Context) ([]domain.Session, error) { return nil, nil }

func (f *fakeStore) Evict(_ context.Context, keepRecent int) ([]string, error) {
	f.evictKeep = append(f.evictKeep, keepRecent)
	return f.evicted, nil
}

func (f *fakeStore) Reset(context.Context) error {
	f.resets++
	return nil
}

func (f *fakeStore) Close() error { return nil }

func retrieved(filename string, start int, text string, typ domain.ChunkType, dist float64) domain.RetrievedChunk {
	return domain.RetrievedChunk{
		Chunk: domain.Chunk{
			Text:      text,
			Filename:  filename,
			StartLine: start,
			EndLine:   start + 9,
			Language:  domain.LanguageJavaScript,
			Type:      typ,
		},
		Distance: dist,
	}
}
