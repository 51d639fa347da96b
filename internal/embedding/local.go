package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// defaultLocalDimensions 本地哈希嵌入的默认维度
const defaultLocalDimensions = 256

// LocalClient 基于特征哈希的本地嵌入客户端
// 不依赖外部服务，用于离线运行与测试，同一文本总是得到同一向量
type LocalClient struct {
	dimensions int
}

// NewLocalClient 创建本地嵌入客户端
func NewLocalClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	dim := cfg.Dimensions
	if dim <= 0 {
		dim = defaultLocalDimensions
	}
	return &LocalClient{dimensions: dim}, nil
}

// Name 返回模型名称
func (c *LocalClient) Name() string {
	return "local-hash"
}

// Embed 生成归一化的词袋哈希向量
func (c *LocalClient) Embed(ctx context.Context, text string) ([]float32, error) {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	if len(tokens) == 0 {
		return nil, NewEmbeddingError(ErrCodeEmptyInput, ErrMsgEmptyInput)
	}

	vec := make([]float32, c.dimensions)
	for _, tok := range tokens {
		h := fnv.New32a()
		h.Write([]byte(tok))
		sum := h.Sum32()
		sign := float32(1)
		if sum&(1<<31) != 0 {
			sign = -1
		}
		vec[int(sum%uint32(c.dimensions))] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		// 符号相互抵消，退化为第一个词的位置
		h := fnv.New32a()
		h.Write([]byte(tokens[0]))
		vec[int(h.Sum32()%uint32(c.dimensions))] = 1
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}

// EmbedBatch 逐条生成向量
func (c *LocalClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := c.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		result[i] = v
	}
	return result, nil
}

func init() {
	RegisterClient("local", NewLocalClient)
}
