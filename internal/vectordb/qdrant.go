package vectordb

import (
	"context"
	"fmt"
	"strconv"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	defaultQdrantPort       = 6334
	defaultQdrantCollection = "advisor_chunks"
	qdrantSetupTimeout      = 30 * time.Second
)

// QdrantRepository 基于Qdrant的向量仓库
// 每个仓库实例使用独立的集合，关闭时删除，重建索引时新旧集合互不影响
type QdrantRepository struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	dimension   int
	distType    DistanceType
}

// NewQdrantRepository 连接Qdrant并创建集合
func NewQdrantRepository(config Config) (Repository, error) {
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive")
	}

	host := config.QdrantHost
	if host == "" {
		host = "localhost"
	}
	port := config.QdrantPort
	if port == 0 {
		port = defaultQdrantPort
	}
	prefix := config.Collection
	if prefix == "" {
		prefix = defaultQdrantCollection
	}

	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}

	repo := &QdrantRepository{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  prefix + "_" + strconv.FormatInt(time.Now().UnixNano(), 36),
		dimension:   config.Dimension,
		distType:    normalizeDistance(config.DistanceType),
	}

	ctx, cancel := context.WithTimeout(context.Background(), qdrantSetupTimeout)
	defer cancel()
	if err := repo.createCollection(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return repo, nil
}

func (r *QdrantRepository) createCollection(ctx context.Context) error {
	distance := pb.Distance_Cosine
	switch r.distType {
	case DotProduct:
		distance = pb.Distance_Dot
	case Euclidean:
		distance = pb.Distance_Euclid
	}

	_, err := r.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collection,
		VectorsConfig: &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{
			Params: &pb.VectorParams{Size: uint64(r.dimension), Distance: distance},
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant create collection %s: %w", r.collection, err)
	}
	return nil
}

// AddBatch 批量写入点，序号作为点ID
func (r *QdrantRepository) AddBatch(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(docs))
	for i, d := range docs {
		if err := ValidateVector(d.Vector, r.dimension); err != nil {
			return fmt.Errorf("invalid vector for document %s: %w", d.ID, err)
		}
		payload := map[string]*pb.Value{
			"id":      {Kind: &pb.Value_StringValue{StringValue: d.ID}},
			"text":    {Kind: &pb.Value_StringValue{StringValue: d.Text}},
			"ordinal": {Kind: &pb.Value_IntegerValue{IntegerValue: int64(d.Ordinal)}},
		}
		for k, v := range d.Metadata {
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
		}
		points[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: uint64(d.Ordinal)}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: d.Vector}}},
			Payload: payload,
		}
	}

	wait := true
	_, err := r.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

// Search 相似度搜索
func (r *QdrantRepository) Search(ctx context.Context, vector []float32, k int) ([]SearchResult, error) {
	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []SearchResult{}, nil
	}

	resp, err := r.points.Search(ctx, &pb.SearchPoints{
		CollectionName: r.collection,
		Vector:         vector,
		Limit:          uint64(k),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	results := make([]SearchResult, 0, len(resp.Result))
	for _, pt := range resp.Result {
		doc := Document{
			Ordinal:  int(pt.Id.GetNum()),
			Metadata: make(map[string]string),
		}
		for key, v := range pt.Payload {
			switch key {
			case "id":
				doc.ID = v.GetStringValue()
			case "text":
				doc.Text = v.GetStringValue()
			case "ordinal":
				doc.Ordinal = int(v.GetIntegerValue())
			default:
				doc.Metadata[key] = v.GetStringValue()
			}
		}
		results = append(results, SearchResult{Document: doc, Score: pt.Score})
	}
	SortSearchResults(results)
	return results, nil
}

// Count 获取集合中的点数
func (r *QdrantRepository) Count() (int, error) {
	exact := true
	resp, err := r.points.Count(context.Background(), &pb.CountPoints{
		CollectionName: r.collection,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant count: %w", err)
	}
	return int(resp.GetResult().GetCount()), nil
}

// GetDimension 返回向量维数
func (r *QdrantRepository) GetDimension() int {
	return r.dimension
}

// Close 删除集合并关闭连接
func (r *QdrantRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), qdrantSetupTimeout)
	defer cancel()

	_, err := r.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: r.collection})
	if cerr := r.conn.Close(); err == nil {
		err = cerr
	}
	return err
}

func init() {
	RegisterRepository("qdrant", NewQdrantRepository)
}
