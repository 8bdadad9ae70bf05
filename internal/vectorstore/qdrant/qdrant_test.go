package qdrant

import (
	"context"
	"errors"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"pdfrag/internal/domain"
)

type fakeAPI struct {
	exists    map[string]bool
	createErr error
	created   []*qdrant.CreateCollection
	upserts   []*qdrant.UpsertPoints
	queries   []*qdrant.QueryPoints
	points    []*qdrant.ScoredPoint
	queryErr  error
}

func (f *fakeAPI) CollectionExists(_ context.Context, name string) (bool, error) {
	return f.exists[name], nil
}

func (f *fakeAPI) CreateCollection(_ context.Context, req *qdrant.CreateCollection) error {
	f.created = append(f.created, req)
	if f.createErr != nil {
		return f.createErr
	}
	f.exists[req.GetCollectionName()] = true
	return nil
}

func (f *fakeAPI) Upsert(_ context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	f.upserts = append(f.upserts, req)
	return &qdrant.UpdateResult{}, nil
}

func (f *fakeAPI) Query(_ context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	f.queries = append(f.queries, req)
	return f.points, f.queryErr
}

func (f *fakeAPI) Count(context.Context, *qdrant.CountPoints) (uint64, error) {
	return uint64(len(f.points)), nil
}

func (f *fakeAPI) Close() error { return nil }

func TestStorage_EnsureCollectionIdempotent(t *testing.T) {
	f := &fakeAPI{exists: map[string]bool{}}
	s := &Storage{client: f}
	ctx := context.Background()

	require.NoError(t, s.EnsureCollection(ctx, "papers", 768))
	require.NoError(t, s.EnsureCollection(ctx, "papers", 768))
	require.Len(t, f.created, 1)
	params := f.created[0].GetVectorsConfig().GetParams()
	assert.Equal(t, uint64(768), params.GetSize())
	assert.Equal(t, qdrant.Distance_Cosine, params.GetDistance())
}

func TestStorage_EnsureCollectionLostRace(t *testing.T) {
	f := &fakeAPI{exists: map[string]bool{}, createErr: errors.New("already exists")}
	s := &Storage{client: f}

	err := s.EnsureCollection(context.Background(), "papers", 4)
	var ue *domain.UpstreamError
	require.ErrorAs(t, err, &ue)

	f.createErr = nil
	f.exists["other"] = true
	assert.NoError(t, s.EnsureCollection(context.Background(), "other", 4))
}

func TestStorage_UpsertPayload(t *testing.T) {
	f := &fakeAPI{exists: map[string]bool{}}
	s := &Storage{client: f}

	err := s.Upsert(context.Background(), "papers", []domain.IndexEntry{{
		ID:       "paper-text-0",
		Vector:   []float32{0.1, 0.2},
		Document: "hello",
		Metadata: domain.ChunkMetadata{Source: "paper", PageStart: 1, PageEnd: 2, Type: domain.ChunkText}.Map(),
	}})
	require.NoError(t, err)
	require.Len(t, f.upserts, 1)

	p := f.upserts[0].GetPoints()[0]
	assert.Equal(t, PointID("paper-text-0"), p.GetId().GetUuid())
	assert.Equal(t, "hello", p.GetPayload()["document"].GetStringValue())
	assert.Equal(t, "paper-text-0", p.GetPayload()["chunk_id"].GetStringValue())
	assert.Equal(t, int64(2), p.GetPayload()["page_end"].GetIntegerValue())
	assert.True(t, f.upserts[0].GetWait())
}

func TestStorage_QueryMapsHits(t *testing.T) {
	f := &fakeAPI{exists: map[string]bool{}, points: []*qdrant.ScoredPoint{
		{
			Score: 0.9,
			Payload: qdrant.NewValueMap(map[string]any{
				"chunk_id": "a", "document": "text a", "source": "paper",
				"page_start": 3, "page_end": 4, "type": "table", "section": "Results",
			}),
		},
		{Score: 0.5, Payload: map[string]*qdrant.Value{}},
	}}
	s := &Storage{client: f}

	hits, err := s.Query(context.Background(), "papers", []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, "a", hits[0].ID)
	assert.Equal(t, "text a", hits[0].Text)
	assert.Equal(t, domain.ChunkMetadata{Source: "paper", Section: "Results", PageStart: 3, PageEnd: 4, Type: domain.ChunkTable}, hits[0].Metadata)
	assert.InDelta(t, 0.1, *hits[0].Distance, 1e-6)

	assert.Equal(t, "", hits[1].Text)
	assert.Equal(t, domain.ChunkMetadata{}, hits[1].Metadata)
	assert.InDelta(t, 0.5, *hits[1].Distance, 1e-6)

	assert.Equal(t, uint64(5), f.queries[0].GetLimit())
}

func TestStorage_QueryMissingCollection(t *testing.T) {
	f := &fakeAPI{exists: map[string]bool{}, queryErr: status.Error(codes.NotFound, "Collection `x` doesn't exist")}
	s := &Storage{client: f}
	_, err := s.Query(context.Background(), "x", []float32{1}, 1)
	assert.ErrorIs(t, err, domain.ErrCollectionNotFound)
}

func TestPointID_Stable(t *testing.T) {
	assert.Equal(t, PointID("a-text-0"), PointID("a-text-0"))
	assert.NotEqual(t, PointID("a-text-0"), PointID("a-text-1"))
}
