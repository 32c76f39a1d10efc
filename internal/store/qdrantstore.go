package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantStore is Adapter C: a Store backed by a remote Qdrant instance over
// gRPC. Unlike LocalStore and PGStore, metadata lives entirely in each
// point's payload rather than a separate table — Qdrant's filterable
// payload index does double duty as both the metadata store and the
// keyword-match mechanism, so there's no SQLite/Postgres alongside it.
//
// Backend IDs are UUIDs the same way PGStore's are (qdrant.PointId only
// accepts a UUID or a numeric ID), so chunk/code-example natural keys are
// translated through chunkBackendID/codeExampleBackendID and kept in the
// payload under "natural_key" for reverse lookups.
type QdrantStore struct {
	client             *qdrant.Client
	chunksCollection   string
	examplesCollection string
	sourcesCollection  string
	dims               int
}

// QdrantStoreConfig configures a QdrantStore.
type QdrantStoreConfig struct {
	Host   string
	Port   int // gRPC port, default 6334
	APIKey string
	UseTLS bool

	// CollectionPrefix namespaces the three collections this adapter owns,
	// so one Qdrant instance can host more than one ragcrawl deployment.
	CollectionPrefix string
}

// NewQdrantStore dials a Qdrant instance. Collections are created lazily in
// Initialize once the embedding dimension is known.
func NewQdrantStore(cfg QdrantStoreConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	prefix := cfg.CollectionPrefix
	if prefix == "" {
		prefix = "ragcrawl"
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to qdrant at %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	return &QdrantStore{
		client:             client,
		chunksCollection:   prefix + "_chunks",
		examplesCollection: prefix + "_code_examples",
		sourcesCollection:  prefix + "_sources",
	}, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context, name string, dims int) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", name, err)
	}
	if exists {
		return nil
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dims),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	return nil
}

func (s *QdrantStore) Initialize(ctx context.Context, dimensions int) error {
	s.dims = dimensions
	if err := s.ensureCollection(ctx, s.chunksCollection, dimensions); err != nil {
		return err
	}
	if err := s.ensureCollection(ctx, s.examplesCollection, dimensions); err != nil {
		return err
	}
	// The sources registry has no embedding of its own; it rides on a
	// single-dimension placeholder vector since every Qdrant point needs one.
	return s.ensureCollection(ctx, s.sourcesCollection, 1)
}

func chunkPayload(c *SourceChunk) map[string]*qdrant.Value {
	metaJSON, _ := json.Marshal(c.Metadata)
	val := func(v any) *qdrant.Value {
		qv, _ := qdrant.NewValue(v)
		return qv
	}
	return map[string]*qdrant.Value{
		"natural_key": val(c.ID),
		"source_id":   val(c.SourceID),
		"url":         val(c.URL),
		"content":     val(c.Content),
		"header_path": val(c.HeaderPath),
		"chunk_index": val(int64(c.ChunkIndex)),
		"metadata":    val(string(metaJSON)),
		"created_at":  val(c.CreatedAt.Unix()),
	}
}

// id is the backend (UUID) point ID; the natural key lives in the payload
// under "natural_key" and is what callers actually key SourceChunk.ID by.
func chunkFromPayload(id string, payload map[string]*qdrant.Value) *SourceChunk {
	_ = id
	get := func(k string) string { return payload[k].GetStringValue() }
	var meta map[string]string
	_ = json.Unmarshal([]byte(get("metadata")), &meta)
	return &SourceChunk{
		ID:         get("natural_key"),
		SourceID:   get("source_id"),
		URL:        get("url"),
		Content:    get("content"),
		HeaderPath: get("header_path"),
		ChunkIndex: int(payload["chunk_index"].GetIntegerValue()),
		Metadata:   meta,
	}
}

func (s *QdrantStore) UpsertChunks(ctx context.Context, chunks []*SourceChunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d vs %d", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	for i, c := range chunks {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(chunkBackendID(c.ID)),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: chunkPayload(c),
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.chunksCollection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upsert chunk points: %w", err)
	}
	return nil
}

func (s *QdrantStore) DeleteByURL(ctx context.Context, url string) error {
	return s.deleteByField(ctx, s.chunksCollection, "url", url)
}

func (s *QdrantStore) deleteByField(ctx context.Context, collection, field, value string) error {
	val, _ := qdrant.NewValue(value)
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   field,
					Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: val.GetStringValue()}},
				},
			},
		}},
	}
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: filter},
		},
	})
	if err != nil {
		return fmt.Errorf("delete points from %s where %s=%s: %w", collection, field, value, err)
	}
	return nil
}

func (s *QdrantStore) searchFilter(q SearchQuery) *qdrant.Filter {
	if q.SourceID == "" && len(q.FilterMetadata) == 0 {
		return nil
	}
	var conditions []*qdrant.Condition
	if q.SourceID != "" {
		val, _ := qdrant.NewValue(q.SourceID)
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   "source_id",
					Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: val.GetStringValue()}},
				},
			},
		})
	}
	// q.FilterMetadata keys live inside the JSON-encoded "metadata" payload
	// field rather than as top-level payload keys, so they're applied as a
	// post-filter via matchesFilter instead of pushed down here.
	return &qdrant.Filter{Must: conditions}
}

func (s *QdrantStore) VectorSearch(ctx context.Context, q SearchQuery) ([]*ScoredChunk, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	result, err := s.client.GetPointsClient().Search(ctx, &qdrant.SearchPoints{
		CollectionName: s.chunksCollection,
		Vector:         q.QueryVector,
		Limit:          uint64(overfetch(limit)),
		Filter:         s.searchFilter(q),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("vector search chunks: %w", err)
	}

	out := make([]*ScoredChunk, 0, len(result.Result))
	for _, p := range result.Result {
		c := chunkFromPayload(pointIDString(p.Id), p.Payload)
		if !matchesFilter(c.SourceID, c.Metadata, q) {
			continue
		}
		out = append(out, &ScoredChunk{Chunk: c, Score: p.Score})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// KeywordSearch relies on Qdrant's payload full-text match rather than a
// separate BM25 engine: the "content" field must have a text index created
// on it, which Initialize does not currently set up automatically (payload
// indexes are created per-field via CreateFieldIndex, left as an
// operator-run migration step since it requires picking a tokenizer).
func (s *QdrantStore) KeywordSearch(ctx context.Context, q SearchQuery) ([]*ScoredChunk, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	filter := s.searchFilter(q)
	textCond := &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key:   "content",
				Match: &qdrant.Match{MatchValue: &qdrant.Match_Text{Text: q.QueryText}},
			},
		},
	}
	if filter == nil {
		filter = &qdrant.Filter{Must: []*qdrant.Condition{textCond}}
	} else {
		filter.Must = append(filter.Must, textCond)
	}

	points, err := s.client.GetPointsClient().Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.chunksCollection,
		Filter:         filter,
		Limit:          u32ptr(uint32(overfetch(limit))),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("keyword search chunks: %w", err)
	}

	out := make([]*ScoredChunk, 0, len(points))
	for _, p := range points {
		c := chunkFromPayload(pointIDString(p.Id), p.Payload)
		if !matchesFilter(c.SourceID, c.Metadata, q) {
			continue
		}
		out = append(out, &ScoredChunk{Chunk: c, Score: 1.0})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *QdrantStore) UpsertCodeExamples(ctx context.Context, examples []*CodeExample, vectors [][]float32) error {
	if len(examples) != len(vectors) {
		return fmt.Errorf("examples and vectors length mismatch: %d vs %d", len(examples), len(vectors))
	}
	if len(examples) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(examples))
	for i, e := range examples {
		val := func(v any) *qdrant.Value {
			qv, _ := qdrant.NewValue(v)
			return qv
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(codeExampleBackendID(e.ID)),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: map[string]*qdrant.Value{
				"natural_key": val(e.ID),
				"source_id":   val(e.SourceID),
				"url":         val(e.URL),
				"code":        val(e.Code),
				"language":    val(e.Language),
				"summary":     val(e.Summary),
				"created_at":  val(e.CreatedAt.Unix()),
			},
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.examplesCollection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upsert code example points: %w", err)
	}
	return nil
}

func (s *QdrantStore) DeleteCodeExamplesByURL(ctx context.Context, url string) error {
	return s.deleteByField(ctx, s.examplesCollection, "url", url)
}

func (s *QdrantStore) VectorSearchCodeExamples(ctx context.Context, q SearchQuery) ([]*ScoredCodeExample, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	result, err := s.client.GetPointsClient().Search(ctx, &qdrant.SearchPoints{
		CollectionName: s.examplesCollection,
		Vector:         q.QueryVector,
		Limit:          uint64(overfetch(limit)),
		Filter:         s.searchFilter(q),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("vector search code examples: %w", err)
	}

	out := make([]*ScoredCodeExample, 0, len(result.Result))
	for _, p := range result.Result {
		get := func(k string) string { return p.Payload[k].GetStringValue() }
		e := &CodeExample{
			ID:       get("natural_key"),
			SourceID: get("source_id"),
			URL:      get("url"),
			Code:     get("code"),
			Language: get("language"),
			Summary:  get("summary"),
		}
		if q.SourceID != "" && e.SourceID != q.SourceID {
			continue
		}
		out = append(out, &ScoredCodeExample{Example: e, Score: p.Score})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *QdrantStore) GetSources(ctx context.Context) ([]*Source, error) {
	points, err := s.client.GetPointsClient().Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.sourcesCollection,
		WithPayload:    qdrant.NewWithPayload(true),
		Limit:          u32ptr(uint32(10000)),
	})
	if err != nil {
		return nil, fmt.Errorf("scroll sources: %w", err)
	}

	out := make([]*Source, 0, len(points))
	for _, p := range points {
		get := func(k string) string { return p.Payload[k].GetStringValue() }
		words, _ := strconv.Atoi(get("total_words"))
		chunks, _ := strconv.Atoi(get("chunk_count"))
		out = append(out, &Source{
			SourceID:   get("source_id"),
			Summary:    get("summary"),
			TotalWords: words,
			ChunkCount: chunks,
		})
	}
	return out, nil
}

func (s *QdrantStore) UpsertSource(ctx context.Context, source *Source) error {
	val := func(v any) *qdrant.Value {
		qv, _ := qdrant.NewValue(v)
		return qv
	}
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.sourcesCollection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewID(sourceBackendID(source.SourceID)),
			Vectors: qdrant.NewVectors(float32(0)),
			Payload: map[string]*qdrant.Value{
				"source_id":   val(source.SourceID),
				"summary":     val(source.Summary),
				"total_words": val(strconv.Itoa(source.TotalWords)),
				"chunk_count": val(strconv.Itoa(source.ChunkCount)),
			},
		}},
	})
	if err != nil {
		return fmt.Errorf("upsert source %s: %w", source.SourceID, err)
	}
	return nil
}

func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func u32ptr(v uint32) *uint32 {
	return &v
}

func pointIDString(id *qdrant.PointId) string {
	if id == nil || id.PointIdOptions == nil {
		return ""
	}
	switch v := id.PointIdOptions.(type) {
	case *qdrant.PointId_Uuid:
		return v.Uuid
	case *qdrant.PointId_Num:
		return strconv.FormatUint(v.Num, 10)
	}
	return ""
}

var _ Store = (*QdrantStore)(nil)
