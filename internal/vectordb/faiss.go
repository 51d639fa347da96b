package vectordb

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/DataIntelligenceCrew/go-faiss"
)

// FaissRepository 基于Faiss扁平索引的向量仓库
// 文档按加入顺序与Faiss内部位置一一对应
type FaissRepository struct {
	mu        sync.RWMutex
	index     faiss.Index
	documents []Document
	indexPath string
	metaPath  string
	dimension int
	distType  DistanceType
}

// NewFaissRepository 创建新的Faiss向量仓库
func NewFaissRepository(config Config) (Repository, error) {
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive")
	}

	distType := normalizeDistance(config.DistanceType)
	index, err := createFaissIndex(config.Dimension, distType)
	if err != nil {
		return nil, fmt.Errorf("failed to create Faiss index: %v", err)
	}

	repo := &FaissRepository{
		index:     index,
		indexPath: config.Path,
		dimension: config.Dimension,
		distType:  distType,
	}
	if config.Path != "" {
		repo.metaPath = config.Path + ".meta.json"
	}
	return repo, nil
}

// createFaissIndex 创建Faiss索引，余弦距离使用归一化向量上的内积
func createFaissIndex(dimension int, distType DistanceType) (faiss.Index, error) {
	metric := faiss.MetricL2
	if distType == Cosine || distType == DotProduct {
		metric = faiss.MetricInnerProduct
	}
	return faiss.NewIndexFlat(dimension, metric)
}

// AddBatch 批量添加文档到仓库
func (r *FaissRepository) AddBatch(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	flat := make([]float32, 0, len(docs)*r.dimension)
	prepared := make([]Document, len(docs))
	for i, doc := range docs {
		if err := ValidateVector(doc.Vector, r.dimension); err != nil {
			return fmt.Errorf("invalid vector for document %s: %w", doc.ID, err)
		}
		if r.distType == Cosine {
			doc.Vector = normalizeVector(doc.Vector)
		}
		flat = append(flat, doc.Vector...)
		prepared[i] = doc
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.index == nil {
		return fmt.Errorf("faiss index is closed")
	}
	if err := r.index.Add(flat); err != nil {
		return fmt.Errorf("failed to add vectors to index: %v", err)
	}
	r.documents = append(r.documents, prepared...)
	return nil
}

// Search 相似度搜索
func (r *FaissRepository) Search(ctx context.Context, vector []float32, k int) ([]SearchResult, error) {
	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}
	if r.distType == Cosine {
		vector = normalizeVector(vector)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.index == nil {
		return nil, fmt.Errorf("faiss index is closed")
	}
	total := int(r.index.Ntotal())
	if k > total {
		k = total
	}
	if k <= 0 {
		return []SearchResult{}, nil
	}

	distances, labels, err := r.index.Search(vector, int64(k))
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %v", err)
	}

	results := make([]SearchResult, 0, len(labels))
	for i, label := range labels {
		if label < 0 || int(label) >= len(r.documents) {
			continue
		}
		results = append(results, SearchResult{
			Document: r.documents[label],
			Score:    r.score(distances[i]),
		})
	}
	SortSearchResults(results)
	return results, nil
}

// score Faiss内积返回相似度本身，L2返回距离的平方
func (r *FaissRepository) score(d float32) float32 {
	if r.distType == Euclidean {
		return DistanceToScore(float32(math.Sqrt(float64(d))), Euclidean)
	}
	return d
}

// Count 获取文档总数
func (r *FaissRepository) Count() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.documents), nil
}

// GetDimension 返回向量维数
func (r *FaissRepository) GetDimension() int {
	return r.dimension
}

// Close 关闭仓库，配置了路径时先保存索引
func (r *FaissRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.index == nil {
		return nil
	}
	var err error
	if r.indexPath != "" {
		if saveErr := r.saveIndex(); saveErr != nil {
			err = fmt.Errorf("failed to save index on close: %v", saveErr)
		}
	}
	r.index.Delete()
	r.index = nil
	return err
}

// saveIndex 保存索引和文档数据到文件
func (r *FaissRepository) saveIndex() error {
	if err := os.MkdirAll(filepath.Dir(r.indexPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %v", err)
	}
	if err := faiss.WriteIndex(r.index, r.indexPath); err != nil {
		return fmt.Errorf("failed to write index to file: %v", err)
	}

	type meta struct {
		ID      string `json:"id"`
		Ordinal int    `json:"ordinal"`
		Text    string `json:"text"`
	}
	docs := make([]meta, len(r.documents))
	for i, d := range r.documents {
		docs[i] = meta{ID: d.ID, Ordinal: d.Ordinal, Text: d.Text}
	}
	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %v", err)
	}
	if err := os.WriteFile(r.metaPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %v", err)
	}
	return nil
}

func init() {
	RegisterRepository("faiss", NewFaissRepository)
}
