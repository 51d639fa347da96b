package vectordb

import (
	"context"
	"errors"
)

// 常用错误定义
var (
	ErrEmptyVector      = errors.New("empty vector")
	ErrInvalidDimension = errors.New("vector dimension mismatch")
	// ErrIndexEmpty 没有任何片段成功嵌入，无法提供检索
	ErrIndexEmpty = errors.New("index is empty: no chunk could be embedded")
	// ErrIndexNotReady 尚未构建或加载索引
	ErrIndexNotReady = errors.New("index is not ready")
	// ErrIndexClosed 索引已关闭
	ErrIndexClosed = errors.New("index is closed")
)

// Document 已嵌入的语料片段
type Document struct {
	ID       string            // 唯一标识符
	Ordinal  int               // 片段序号
	Text     string            // 原始文本内容
	Vector   []float32         // 向量表示
	Metadata map[string]string // 附加元数据
}

// DistanceType 向量距离计算方法
type DistanceType string

const (
	// Cosine 余弦相似度
	Cosine DistanceType = "cosine"
	// DotProduct 点积
	DotProduct DistanceType = "dot"
	// Euclidean 欧几里得距离
	Euclidean DistanceType = "l2"
)

// SearchResult 搜索结果
type SearchResult struct {
	Document Document // 文档对象
	Score    float32  // 相似度得分，越大越相似
}

// Repository 向量存储后端接口
type Repository interface {
	// AddBatch 批量添加文档
	AddBatch(ctx context.Context, docs []Document) error

	// Search 返回与向量最相似的至多k个文档
	Search(ctx context.Context, vector []float32, k int) ([]SearchResult, error)

	// Count 获取文档总数
	Count() (int, error)

	// GetDimension 返回向量维数
	GetDimension() int

	// Close 释放后端资源
	Close() error
}

// Config 向量数据库配置
type Config struct {
	Type         string       // 数据库类型："memory", "faiss", "qdrant"
	Path         string       // faiss索引文件路径，为空时仅在内存中
	Dimension    int          // 向量维度
	DistanceType DistanceType // 距离计算类型
	QdrantHost   string       // Qdrant gRPC主机
	QdrantPort   int          // Qdrant gRPC端口
	Collection   string       // Qdrant集合名前缀
}

// Factory 向量数据库工厂函数类型
type Factory func(config Config) (Repository, error)

// RepositoryRegistry 注册可用的向量数据库实现
var RepositoryRegistry = map[string]Factory{}

// RegisterRepository 注册向量数据库工厂函数
func RegisterRepository(name string, factory Factory) {
	RepositoryRegistry[name] = factory
}

// NewRepository 根据配置创建向量数据库实例
func NewRepository(config Config) (Repository, error) {
	factory, ok := RepositoryRegistry[config.Type]
	if !ok {
		// 默认使用内存实现
		factory = NewMemoryRepository
	}
	return factory(config)
}
