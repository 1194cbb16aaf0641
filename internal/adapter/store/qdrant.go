package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	qdrantclient "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/arturoeanton/go-code-retriever/internal/domain"
	"github.com/arturoeanton/go-code-retriever/internal/port"
)

// Payload keys of a chunk point.
const (
	payloadSessionID  = "session_id"
	payloadChunkID    = "chunk_id"
	payloadIndex      = "chunk_index"
	payloadText       = "text"
	payloadFilename   = "filename"
	payloadStartLine  = "start_line"
	payloadEndLine    = "end_line"
	payloadLanguage   = "language"
	payloadType       = "type"
	payloadCreatedAt  = "created_at"
	qdrantScrollLimit = 256
)

// QdrantStore keeps chunks in a Qdrant collection filtered by a session_id
// payload field. Sessions are registered in a companion "<name>_sessions"
// collection holding one point per session.
type QdrantStore struct {
	conn        *grpc.ClientConn
	collections qdrantclient.CollectionsClient
	points      qdrantclient.PointsClient
	collection  string
	registry    string

	mu    sync.Mutex
	ready map[string]bool
}

// NewQdrantStore connects to Qdrant over gRPC. Collections are created on
// first write, sized to the first vector stored.
func NewQdrantStore(ctx context.Context, host string, grpcPort int, collection string) (*QdrantStore, error) {
	addr := fmt.Sprintf("%s:%d", host, grpcPort)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("connect qdrant: %w", err)
	}

	s := &QdrantStore{
		conn:        conn,
		collections: qdrantclient.NewCollectionsClient(conn),
		points:      qdrantclient.NewPointsClient(conn),
		collection:  collection,
		registry:    collection + "_sessions",
		ready:       map[string]bool{},
	}

	// Fail fast when the server is unreachable.
	if _, err := s.existing(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("list collections: %w", err)
	}

	slog.Info("qdrant store connected", "addr", addr, "collection", collection)
	return s, nil
}

func (s *QdrantStore) existing(ctx context.Context) (map[string]bool, error) {
	resp, err := s.collections.List(ctx, &qdrantclient.ListCollectionsRequest{})
	if err != nil {
		return nil, err
	}
	names := map[string]bool{}
	for _, c := range resp.GetCollections() {
		names[c.GetName()] = true
	}
	return names, nil
}

// ensureCollection creates name with cosine distance if it does not exist.
func (s *QdrantStore) ensureCollection(ctx context.Context, name string, size int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready[name] {
		return nil
	}

	names, err := s.existing(ctx)
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	if !names[name] {
		_, err := s.collections.Create(ctx, &qdrantclient.CreateCollection{
			CollectionName: name,
			VectorsConfig: &qdrantclient.VectorsConfig{
				Config: &qdrantclient.VectorsConfig_Params{
					Params: &qdrantclient.VectorParams{
						Size:     uint64(size),
						Distance: qdrantclient.Distance_Cosine,
					},
				},
			},
		})
		if err != nil {
			return fmt.Errorf("create collection %s: %w", name, err)
		}
		slog.Info("qdrant collection created", "collection", name, "size", size)
	}
	s.ready[name] = true
	return nil
}

// hasCollection reports whether name exists, without creating it.
func (s *QdrantStore) hasCollection(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	ok := s.ready[name]
	s.mu.Unlock()
	if ok {
		return true, nil
	}
	names, err := s.existing(ctx)
	if err != nil {
		return false, err
	}
	return names[name], nil
}

// Store upserts chunk points after registering the session.
func (s *QdrantStore) Store(ctx context.Context, chunks []domain.Chunk, sessionID string) (string, error) {
	sid, err := prepareStore(chunks, sessionID)
	if err != nil {
		return "", err
	}
	if err := s.store(ctx, chunks, sid); err != nil {
		return "", fmt.Errorf("%w: qdrant store: %w", port.ErrStorage, err)
	}
	slog.Info("chunks stored", "backend", "qdrant", "session_id", sid, "count", len(chunks))
	return sid, nil
}

func (s *QdrantStore) store(ctx context.Context, chunks []domain.Chunk, sid string) error {
	if err := s.ensureCollection(ctx, s.collection, len(chunks[0].Embedding)); err != nil {
		return err
	}
	if err := s.ensureCollection(ctx, s.registry, 1); err != nil {
		return err
	}
	if err := s.registerSession(ctx, sid); err != nil {
		return err
	}

	next, err := s.count(ctx, sid)
	if err != nil {
		return err
	}

	points := make([]*qdrantclient.PointStruct, len(chunks))
	for i, c := range chunks {
		index := next + i
		id := chunkID(sid, index)
		points[i] = &qdrantclient.PointStruct{
			Id: pointID(id),
			Vectors: &qdrantclient.Vectors{
				VectorsOptions: &qdrantclient.Vectors_Vector{
					Vector: &qdrantclient.Vector{Data: c.Embedding},
				},
			},
			Payload: map[string]*qdrantclient.Value{
				payloadSessionID: stringValue(sid),
				payloadChunkID:   stringValue(id),
				payloadIndex:     intValue(int64(index)),
				payloadText:      stringValue(c.Text),
				payloadFilename:  stringValue(c.Filename),
				payloadStartLine: intValue(int64(c.StartLine)),
				payloadEndLine:   intValue(int64(c.EndLine)),
				payloadLanguage:  stringValue(string(c.Language)),
				payloadType:      stringValue(string(c.Type)),
			},
		}
	}

	wait := true
	_, err = s.points.Upsert(ctx, &qdrantclient.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upsert points: %w", err)
	}
	return nil
}

// registerSession adds sid to the registry unless it is already there.
func (s *QdrantStore) registerSession(ctx context.Context, sid string) error {
	resp, err := s.points.Get(ctx, &qdrantclient.GetPoints{
		CollectionName: s.registry,
		Ids:            []*qdrantclient.PointId{pointID(sid)},
	})
	if err != nil {
		return fmt.Errorf("lookup session: %w", err)
	}
	if len(resp.GetResult()) > 0 {
		return nil
	}

	wait := true
	_, err = s.points.Upsert(ctx, &qdrantclient.UpsertPoints{
		CollectionName: s.registry,
		Wait:           &wait,
		Points: []*qdrantclient.PointStruct{{
			Id: pointID(sid),
			Vectors: &qdrantclient.Vectors{
				VectorsOptions: &qdrantclient.Vectors_Vector{
					Vector: &qdrantclient.Vector{Data: []float32{1}},
				},
			},
			Payload: map[string]*qdrantclient.Value{
				payloadSessionID: stringValue(sid),
				payloadCreatedAt: intValue(time.Now().UTC().UnixNano()),
			},
		}},
	})
	if err != nil {
		return fmt.Errorf("register session: %w", err)
	}
	return nil
}

func (s *QdrantStore) count(ctx context.Context, sid string) (int, error) {
	exact := true
	resp, err := s.points.Count(ctx, &qdrantclient.CountPoints{
		CollectionName: s.collection,
		Filter:         sessionFilter(sid),
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("count points: %w", err)
	}
	return int(resp.GetResult().GetCount()), nil
}

// Search asks Qdrant for the topK nearest points of the session.
func (s *QdrantStore) Search(ctx context.Context, query []float32, sessionID string, topK int) ([]domain.RetrievedChunk, error) {
	if err := checkTopK(topK); err != nil {
		return nil, err
	}
	sid, err := normalizeSession(sessionID)
	if err != nil {
		return nil, err
	}
	ok, err := s.hasCollection(ctx, s.collection)
	if err != nil {
		return nil, fmt.Errorf("%w: qdrant search: %w", port.ErrSearch, err)
	}
	if !ok {
		return nil, nil
	}

	resp, err := s.points.Search(ctx, &qdrantclient.SearchPoints{
		CollectionName: s.collection,
		Vector:         query,
		Filter:         sessionFilter(sid),
		Limit:          uint64(topK),
		WithPayload: &qdrantclient.WithPayloadSelector{
			SelectorOptions: &qdrantclient.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: qdrant search: %w", port.ErrSearch, err)
	}

	results := make([]domain.RetrievedChunk, 0, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		rc := domain.RetrievedChunk{
			Chunk:    chunkFromPayload(p.GetPayload()),
			Distance: 1 - float64(p.GetScore()),
		}
		results = append(results, rc)
	}
	return results, nil
}

// Stats scrolls the session's points and counts them by type.
func (s *QdrantStore) Stats(ctx context.Context, sessionID string) (domain.SessionStats, error) {
	sid, err := normalizeSession(sessionID)
	if err != nil {
		return domain.SessionStats{}, err
	}
	stats := emptyStats(sid)

	ok, err := s.hasCollection(ctx, s.collection)
	if err != nil {
		return domain.SessionStats{}, fmt.Errorf("%w: qdrant stats: %w", port.ErrStorage, err)
	}
	if !ok {
		return stats, nil
	}

	err = s.scroll(ctx, s.collection, sessionFilter(sid), []string{payloadType}, func(p *qdrantclient.RetrievedPoint) {
		stats.TotalChunks++
		stats.FileTypes[domain.ChunkType(p.GetPayload()[payloadType].GetStringValue())]++
	})
	if err != nil {
		return domain.SessionStats{}, fmt.Errorf("%w: qdrant stats: %w", port.ErrStorage, err)
	}
	return stats, nil
}

// ListSessions reads the registry and counts each session's points.
func (s *QdrantStore) ListSessions(ctx context.Context) ([]domain.Session, error) {
	sessions, err := s.listSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: qdrant list sessions: %w", port.ErrStorage, err)
	}
	return sessions, nil
}

func (s *QdrantStore) listSessions(ctx context.Context) ([]domain.Session, error) {
	ok, err := s.hasCollection(ctx, s.registry)
	if err != nil || !ok {
		return nil, err
	}

	var sessions []domain.Session
	err = s.scroll(ctx, s.registry, nil, []string{payloadSessionID, payloadCreatedAt}, func(p *qdrantclient.RetrievedPoint) {
		payload := p.GetPayload()
		sessions = append(sessions, domain.Session{
			ID:        payload[payloadSessionID].GetStringValue(),
			CreatedAt: time.Unix(0, payload[payloadCreatedAt].GetIntegerValue()).UTC(),
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	for i := range sessions {
		n, err := s.count(ctx, sessions[i].ID)
		if err != nil {
			return nil, err
		}
		sessions[i].ChunkCount = n
	}
	return sessions, nil
}

// Evict deletes the points and registry entries of stale sessions.
func (s *QdrantStore) Evict(ctx context.Context, keepRecent int) ([]string, error) {
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

	wait := true
	for _, id := range stale {
		_, err := s.points.Delete(ctx, &qdrantclient.DeletePoints{
			CollectionName: s.collection,
			Wait:           &wait,
			Points: &qdrantclient.PointsSelector{
				PointsSelectorOneOf: &qdrantclient.PointsSelector_Filter{Filter: sessionFilter(id)},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("%w: qdrant evict %s: %w", port.ErrStorage, id, err)
		}
		_, err = s.points.Delete(ctx, &qdrantclient.DeletePoints{
			CollectionName: s.registry,
			Wait:           &wait,
			Points: &qdrantclient.PointsSelector{
				PointsSelectorOneOf: &qdrantclient.PointsSelector_Points{
					Points: &qdrantclient.PointsIdsList{Ids: []*qdrantclient.PointId{pointID(id)}},
				},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("%w: qdrant unregister %s: %w", port.ErrStorage, id, err)
		}
	}

	slog.Info("sessions evicted", "backend", "qdrant", "removed", len(stale), "kept", keepRecent)
	return stale, nil
}

// Reset deletes both collections. They are recreated on the next write.
func (s *QdrantStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.existing(ctx)
	if err != nil {
		return fmt.Errorf("%w: qdrant reset: %w", port.ErrStorage, err)
	}
	for _, name := range []string{s.collection, s.registry} {
		if !names[name] {
			continue
		}
		if _, err := s.collections.Delete(ctx, &qdrantclient.DeleteCollection{CollectionName: name}); err != nil {
			return fmt.Errorf("%w: delete collection %s: %w", port.ErrStorage, name, err)
		}
	}
	s.ready = map[string]bool{}

	slog.Warn("store reset", "backend", "qdrant")
	return nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	return s.conn.Close()
}

// scroll pages through every point of collection matching filter.
func (s *QdrantStore) scroll(ctx context.Context, collection string, filter *qdrantclient.Filter, fields []string, fn func(*qdrantclient.RetrievedPoint)) error {
	limit := uint32(qdrantScrollLimit)
	var offset *qdrantclient.PointId
	for {
		resp, err := s.points.Scroll(ctx, &qdrantclient.ScrollPoints{
			CollectionName: collection,
			Filter:         filter,
			Offset:         offset,
			Limit:          &limit,
			WithPayload: &qdrantclient.WithPayloadSelector{
				SelectorOptions: &qdrantclient.WithPayloadSelector_Include{
					Include: &qdrantclient.PayloadIncludeSelector{Fields: fields},
				},
			},
		})
		if err != nil {
			return err
		}
		for _, p := range resp.GetResult() {
			fn(p)
		}
		offset = resp.GetNextPageOffset()
		if offset == nil {
			return nil
		}
	}
}

func sessionFilter(sid string) *qdrantclient.Filter {
	return &qdrantclient.Filter{
		Must: []*qdrantclient.Condition{{
			ConditionOneOf: &qdrantclient.Condition_Field{
				Field: &qdrantclient.FieldCondition{
					Key: payloadSessionID,
					Match: &qdrantclient.Match{
						MatchValue: &qdrantclient.Match_Keyword{Keyword: sid},
					},
				},
			},
		}},
	}
}

// pointID derives a stable UUID point id from a chunk or session id.
func pointID(id string) *qdrantclient.PointId {
	return &qdrantclient.PointId{
		PointIdOptions: &qdrantclient.PointId_Uuid{
			Uuid: uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String(),
		},
	}
}

func stringValue(s string) *qdrantclient.Value {
	return &qdrantclient.Value{Kind: &qdrantclient.Value_StringValue{StringValue: s}}
}

func intValue(n int64) *qdrantclient.Value {
	return &qdrantclient.Value{Kind: &qdrantclient.Value_IntegerValue{IntegerValue: n}}
}

func chunkFromPayload(p map[string]*qdrantclient.Value) domain.Chunk {
	return domain.Chunk{
		Text:      p[payloadText].GetStringValue(),
		Filename:  p[payloadFilename].GetStringValue(),
		StartLine: int(p[payloadStartLine].GetIntegerValue()),
		EndLine:   int(p[payloadEndLine].GetIntegerValue()),
		Language:  domain.Language(p[payloadLanguage].GetStringValue()),
		Type:      domain.ChunkType(p[payloadType].GetStringValue()),
	}
}
