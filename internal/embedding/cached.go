package embedding

import (
	"context"
	"time"

	"github.com/fyerfyer/advisor-rag/internal/cache"
	"github.com/sirupsen/logrus"
)

// CachedClient 带缓存的嵌入客户端装饰器
// 缓存键包含模型名称，切换模型不会命中旧向量
type CachedClient struct {
	next   Client
	cache  cache.Cache
	ttl    time.Duration
	logger *logrus.Logger
}

// NewCachedClient 创建带缓存的嵌入客户端
func NewCachedClient(next Client, c cache.Cache, ttl time.Duration, logger *logrus.Logger) *CachedClient {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &CachedClient{next: next, cache: c, ttl: ttl, logger: logger}
}

// Name 返回被装饰客户端的模型名称
func (c *CachedClient) Name() string {
	return c.next.Name()
}

// Embed 优先读取缓存
func (c *CachedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.lookup(ctx, text); ok {
		return v, nil
	}

	v, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.store(ctx, text, v)
	return v, nil
}

// EmbedBatch 只为未命中缓存的文本调用下游
func (c *CachedClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	var (
		missTexts []string
		missIdx   []int
	)
	for i, text := range texts {
		if v, ok := c.lookup(ctx, text); ok {
			result[i] = v
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return result, nil
	}

	vectors, err := c.next.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missTexts) {
		return nil, NewEmbeddingError(ErrCodeServerError, "embedding count mismatch")
	}
	for j, idx := range missIdx {
		result[idx] = vectors[j]
		c.store(ctx, missTexts[j], vectors[j])
	}
	return result, nil
}

func (c *CachedClient) key(text string) string {
	return cache.Key("embed", c.next.Name(), text)
}

func (c *CachedClient) lookup(ctx context.Context, text string) ([]float32, bool) {
	data, found, err := c.cache.Get(ctx, c.key(text))
	if err != nil {
		c.logger.WithError(err).Warn("Embedding cache read failed")
		return nil, false
	}
	if !found {
		return nil, false
	}
	v, err := cache.DecodeVector(data)
	if err != nil || len(v) == 0 {
		return nil, false
	}
	return v, true
}

func (c *CachedClient) store(ctx context.Context, text string, v []float32) {
	if err := c.cache.Set(ctx, c.key(text), cache.EncodeVector(v), c.ttl); err != nil {
		c.logger.WithError(err).Warn("Embedding cache write failed")
	}
}
