package similarity

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig holds connection settings for the Qdrant gRPC API
type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
}

// QdrantIndex is a PointIndex backed by a Qdrant collection
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
}

// NewQdrantIndex connects to Qdrant. The connection is lazy; use Health to
// check reachability.
func NewQdrantIndex(cfg QdrantConfig) (*QdrantIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	return &QdrantIndex{client: client, collection: cfg.Collection}, nil
}

func (q *QdrantIndex) Health(ctx context.Context) error {
	_, err := q.client.HealthCheck(ctx)
	return err
}

func (q *QdrantIndex) CollectionExists(ctx context.Context) (bool, error) {
	return q.client.CollectionExists(ctx, q.collection)
}

func (q *QdrantIndex) CreateCollection(ctx context.Context, size int) error {
	return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(size),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

func (q *QdrantIndex) DeleteCollection(ctx context.Context) error {
	return q.client.DeleteCollection(ctx, q.collection)
}

func (q *QdrantIndex) CollectionDimension(ctx context.Context) (int, error) {
	info, err := q.client.GetCollectionInfo(ctx, q.collection)
	if err != nil {
		return 0, err
	}
	params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params == nil {
		return 0, fmt.Errorf("collection %s uses named vectors", q.collection)
	}
	return int(params.GetSize()), nil
}

func (q *QdrantIndex) Upsert(ctx context.Context, points []Point) error {
	structs := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		payload, err := qdrant.TryValueMap(p.Payload)
		if err != nil {
			return fmt.Errorf("failed to convert payload of point %s: %w", p.ID, err)
		}
		structs = append(structs, &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: payload,
		})
	}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         structs,
	})
	return err
}

func (q *QdrantIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewID(id))
	}
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	return err
}

func (q *QdrantIndex) Search(ctx context.Context, vector []float32, limit int, filter *Filter, threshold *float32) ([]ScoredPoint, error) {
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         toQdrantFilter(filter),
		Limit:          qdrant.PtrOf(uint64(limit)),
		ScoreThreshold: threshold,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}
	out := make([]ScoredPoint, 0, len(hits))
	for _, h := range hits {
		out = append(out, ScoredPoint{
			ID:      h.GetId().GetUuid(),
			Score:   h.GetScore(),
			Payload: fromQdrantPayload(h.GetPayload()),
		})
	}
	return out, nil
}

func (q *QdrantIndex) Scroll(ctx context.Context, filter *Filter, limit int) ([]Point, error) {
	points, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: q.collection,
		Filter:         toQdrantFilter(filter),
		Limit:          qdrant.PtrOf(uint32(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}
	out := make([]Point, 0, len(points))
	for _, p := range points {
		out = append(out, Point{
			ID:      p.GetId().GetUuid(),
			Payload: fromQdrantPayload(p.GetPayload()),
		})
	}
	return out, nil
}

func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

func toQdrantFilter(f *Filter) *qdrant.Filter {
	if f.IsEmpty() {
		return nil
	}
	var must []*qdrant.Condition
	if f.Type != "" {
		must = append(must, qdrant.NewMatch(FieldType, f.Type))
	}
	if f.Name != "" {
		must = append(must, qdrant.NewMatch(FieldName, f.Name))
	}
	if len(f.EntityTypes) > 0 {
		must = append(must, qdrant.NewMatchKeywords(FieldEntityType, f.EntityTypes...))
	}
	if len(f.Domains) > 0 {
		must = append(must, qdrant.NewMatchKeywords(FieldDomain, f.Domains...))
	}
	if len(f.Tags) > 0 {
		must = append(must, qdrant.NewMatchKeywords(FieldTags, f.Tags...))
	}
	if f.CreatedFrom != nil || f.CreatedTo != nil {
		must = append(must, qdrant.NewRange(FieldCreatedTS, &qdrant.Range{
			Gte: f.CreatedFrom,
			Lte: f.CreatedTo,
		}))
	}
	return &qdrant.Filter{Must: must}
}

func fromQdrantPayload(payload map[string]*qdrant.Value) map[string]interface{} {
	out := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		out[k] = fromQdrantValue(v)
	}
	return out
}

func fromQdrantValue(v *qdrant.Value) interface{} {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_NullValue:
		return nil
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_IntegerValue:
		return float64(kind.IntegerValue)
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_ListValue:
		items := kind.ListValue.GetValues()
		list := make([]interface{}, 0, len(items))
		for _, item := range items {
			list = append(list, fromQdrantValue(item))
		}
		return list
	case *qdrant.Value_StructValue:
		return fromQdrantPayload(kind.StructValue.GetFields())
	}
	return nil
}
