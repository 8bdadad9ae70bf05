package qdrant

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"pdfrag/internal/domain"
)

const (
	payloadID       = "chunk_id"
	payloadDocument = "document"
)

// api is the subset of *qdrant.Client the storage uses.
type api interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Count(ctx context.Context, request *qdrant.CountPoints) (uint64, error)
	Close() error
}

// Storage keeps collections in Qdrant over gRPC.
// It uses cosine distance and reports 1 - score as the hit distance.
type Storage struct {
	client api
}

type Config struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

func NewStorage(cfg Config) (*Storage, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant client: %w", err)
	}
	return &Storage{client: client}, nil
}

func (s *Storage) EnsureCollection(ctx context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return upstream(err)
	}
	if exists {
		return nil
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err == nil {
		return nil
	}
	// another writer may have created it in the meantime
	if exists, cerr := s.client.CollectionExists(ctx, name); cerr == nil && exists {
		return nil
	}
	return upstream(err)
}

func (s *Storage) Upsert(ctx context.Context, name string, entries []domain.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	points := make([]*qdrant.PointStruct, 0, len(entries))
	for _, e := range entries {
		payload, err := toPayload(e)
		if err != nil {
			return fmt.Errorf("payload for %s: %w", e.ID, err)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointID(e.ID)),
			Vectors: qdrant.NewVectorsDense(e.Vector),
			Payload: payload,
		})
	}
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: name,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return upstream(err)
	}
	return nil
}

func (s *Storage) Query(ctx context.Context, name string, vector []float32, k int) ([]domain.Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQueryDense(vector),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, upstream(err)
	}
	if len(points) > k {
		points = points[:k]
	}
	hits := make([]domain.Hit, 0, len(points))
	for _, p := range points {
		hits = append(hits, fromScoredPoint(p))
	}
	return hits, nil
}

func (s *Storage) Count(ctx context.Context, name string) (int, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: name,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, upstream(err)
	}
	return int(n), nil
}

func (s *Storage) Close() error { return s.client.Close() }

// PointID maps a chunk id onto the UUID Qdrant requires. The mapping is
// stable, so re-ingesting a chunk overwrites its point.
func PointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(chunkID)).String()
}

func toPayload(e domain.IndexEntry) (map[string]*qdrant.Value, error) {
	m := make(map[string]any, len(e.Metadata)+2)
	for k, v := range e.Metadata {
		m[k] = v
	}
	m[payloadID] = e.ID
	m[payloadDocument] = e.Document
	return qdrant.TryValueMap(m)
}

func fromScoredPoint(p *qdrant.ScoredPoint) domain.Hit {
	meta := make(map[string]any, len(p.GetPayload()))
	for k, v := range p.GetPayload() {
		if x, ok := scalar(v); ok {
			meta[k] = x
		}
	}
	hit := domain.Hit{Metadata: domain.MetadataFromMap(meta)}
	if id, ok := meta[payloadID].(string); ok {
		hit.ID = id
	}
	if doc, ok := meta[payloadDocument].(string); ok {
		hit.Text = doc
	}
	d := 1 - float64(p.GetScore())
	hit.Distance = &d
	return hit
}

func scalar(v *qdrant.Value) (any, bool) {
	switch v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return v.GetStringValue(), true
	case *qdrant.Value_IntegerValue:
		return v.GetIntegerValue(), true
	case *qdrant.Value_DoubleValue:
		return v.GetDoubleValue(), true
	case *qdrant.Value_BoolValue:
		return v.GetBoolValue(), true
	}
	return nil, false
}

func upstream(err error) error {
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%w: %v", domain.ErrCollectionNotFound, err)
	}
	return &domain.UpstreamError{Service: "qdrant", Err: err}
}
