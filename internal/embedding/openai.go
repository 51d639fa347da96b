package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultOpenAIModel 默认OpenAI嵌入模型
	DefaultOpenAIModel = "text-embedding-3-small"
	// maxOpenAIBatch OpenAI单次请求的最大文本数
	maxOpenAIBatch = 2048
)

// OpenAIClient OpenAI嵌入向量客户端，也可用于任何OpenAI兼容端点
type OpenAIClient struct {
	client     openai.Client
	model      string
	dimensions int
	logger     *logrus.Logger
}

// NewOpenAIClient 创建一个新的OpenAI嵌入客户端
func NewOpenAIClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	if cfg.APIKey == "" {
		return nil, NewEmbeddingError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &OpenAIClient{
		client:     openai.NewClient(reqOpts...),
		model:      model,
		dimensions: cfg.Dimensions,
		logger:     cfg.Logger,
	}, nil
}

// Name 返回模型名称
func (c *OpenAIClient) Name() string {
	return c.model
}

// Embed 对单个文本生成嵌入向量
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, NewEmbeddingError(ErrCodeEmptyInput, ErrMsgEmptyInput)
	}

	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch 批量生成嵌入向量，结果按输入顺序返回
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if len(texts) > maxOpenAIBatch {
		return nil, NewEmbeddingError(ErrCodeInvalidRequest,
			fmt.Sprintf("batch size %d exceeds maximum of %d", len(texts), maxOpenAIBatch))
	}
	for _, t := range texts {
		if t == "" {
			return nil, NewEmbeddingError(ErrCodeEmptyInput, ErrMsgEmptyInput)
		}
	}

	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(c.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	}
	if c.dimensions > 0 {
		params.Dimensions = openai.Int(int64(c.dimensions))
	}

	resp, err := c.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, mapOpenAIError(ctx, err)
	}

	result := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || int(data.Index) >= len(texts) {
			continue
		}
		vector := make([]float32, len(data.Embedding))
		for i, v := range data.Embedding {
			vector[i] = float32(v)
		}
		result[data.Index] = vector
	}
	for i, v := range result {
		if len(v) == 0 {
			return nil, NewEmbeddingError(ErrCodeServerError, fmt.Sprintf("no embedding returned for input %d", i))
		}
	}

	c.logger.WithFields(logrus.Fields{
		"model":  c.model,
		"count":  len(texts),
		"tokens": resp.Usage.TotalTokens,
	}).Debug("Embeddings generated")

	return result, nil
}

// mapOpenAIError 将SDK错误映射为 EmbeddingError
func mapOpenAIError(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return NewEmbeddingError(ErrCodeTimeout, fmt.Sprintf("%s: %v", ErrMsgTimeout, err))
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized:
			return NewEmbeddingError(ErrCodeInvalidAPIKey, apiErr.Error())
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return NewEmbeddingError(ErrCodeRateLimited, apiErr.Error())
		case apiErr.StatusCode >= 500:
			return NewEmbeddingError(ErrCodeServerError, apiErr.Error())
		default:
			return NewEmbeddingError(ErrCodeInvalidRequest, apiErr.Error())
		}
	}
	return NewEmbeddingError(ErrCodeNetworkError, fmt.Sprintf("%s: %v", ErrMsgNetworkError, err))
}

func init() {
	RegisterClient("openai", NewOpenAIClient)
}
