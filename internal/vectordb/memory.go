package vectordb

import (
	"context"
	"fmt"
	"sync"
)

// MemoryRepository 内存向量仓库实现
// 暴力计算全部文档的相似度，适合中小规模语料
type MemoryRepository struct {
	mu        sync.RWMutex
	dimension int
	distType  DistanceType
	documents []Document
}

// NewMemoryRepository 创建内存向量仓库
func NewMemoryRepository(config Config) (Repository, error) {
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive")
	}

	return &MemoryRepository{
		dimension: config.Dimension,
		distType:  normalizeDistance(config.DistanceType),
	}, nil
}

// AddBatch 批量添加文档到内存仓库
func (r *MemoryRepository) AddBatch(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	prepared := make([]Document, len(docs))
	for i, doc := range docs {
		if err := ValidateVector(doc.Vector, r.dimension); err != nil {
			return fmt.Errorf("invalid vector for document %s: %w", doc.ID, err)
		}
		// 对于余弦距离，先对向量进行归一化处理
		if r.distType == Cosine {
			doc.Vector = normalizeVector(doc.Vector)
		}
		prepared[i] = doc
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.documents = append(r.documents, prepared...)
	return nil
}

// Search 相似度搜索
func (r *MemoryRepository) Search(ctx context.Context, vector []float32, k int) ([]SearchResult, error) {
	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []SearchResult{}, nil
	}
	if r.distType == Cosine {
		vector = normalizeVector(vector)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make([]SearchResult, 0, len(r.documents))
	for _, doc := range r.documents {
		dist, err := ComputeDistance(vector, doc.Vector, r.distType)
		if err != nil {
			return nil, err
		}
		results = append(results, SearchResult{
			Document: doc,
			Score:    DistanceToScore(dist, r.distType),
		})
	}

	SortSearchResults(results)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Count 获取文档总数
func (r *MemoryRepository) Count() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.documents), nil
}

// GetDimension 返回向量维数
func (r *MemoryRepository) GetDimension() int {
	return r.dimension
}

// Close 关闭仓库
func (r *MemoryRepository) Close() error {
	return nil
}

func init() {
	RegisterRepository("memory", NewMemoryRepository)
}
