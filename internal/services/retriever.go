package services

import (
	"context"
	"strings"

	"github.com/fyerfyer/advisor-rag/internal/vectordb"
	"github.com/sirupsen/logrus"
)

// DefaultTopK 默认检索片段数
const DefaultTopK = 4

// ContextRetriever 为一次对话检索上下文
type ContextRetriever interface {
	Retrieve(ctx context.Context, query string) (string, []vectordb.Hit, error)
}

// Retriever 检索服务
// 从当前生效的索引中取出最相关的k个片段并拼接为上下文
type Retriever struct {
	holder    *vectordb.Holder
	k         int
	separator string
	logger    *logrus.Logger
}

// RetrieverOption 检索服务配置选项
type RetrieverOption func(*Retriever)

// WithTopK 设置检索片段数
func WithTopK(k int) RetrieverOption {
	return func(r *Retriever) {
		if k > 0 {
			r.k = k
		}
	}
}

// WithSeparator 设置片段之间的分隔符
func WithSeparator(sep string) RetrieverOption {
	return func(r *Retriever) {
		r.separator = sep
	}
}

// WithRetrieverLogger 设置日志记录器
func WithRetrieverLogger(logger *logrus.Logger) RetrieverOption {
	return func(r *Retriever) {
		r.logger = logger
	}
}

// NewRetriever 创建检索服务
func NewRetriever(holder *vectordb.Holder, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		holder:    holder,
		k:         DefaultTopK,
		separator: "\n",
		logger:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve 查询当前索引，按排名拼接片段文本
func (r *Retriever) Retrieve(ctx context.Context, query string) (string, []vectordb.Hit, error) {
	index := r.holder.Acquire()
	if index == nil {
		return "", nil, vectordb.ErrIndexNotReady
	}
	defer index.Release()

	hits, err := index.Query(ctx, query, r.k)
	if err != nil {
		return "", nil, err
	}

	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Chunk.Text
	}

	r.logger.WithFields(logrus.Fields{
		"k":    r.k,
		"hits": len(hits),
	}).Debug("Context retrieved")

	return strings.Join(texts, r.separator), hits, nil
}
