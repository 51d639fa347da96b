package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
)

const (
	// 默认API端点
	defaultDashScopeEndpoint = "https://dashscope.aliyuncs.com/api/v1/services/embeddings/text-embedding/text-embedding"
	dashScopeCompatibleURL   = "https://dashscope.aliyuncs.com/compatible-mode/v1"

	// 默认模型
	defaultTongyiModel = "text-embedding-v3"
)

// dashScopeRequest DashScope原生接口请求
type dashScopeRequest struct {
	Model      string               `json:"model"`
	Input      dashScopeInput       `json:"input"`
	Parameters *dashScopeParameters `json:"parameters,omitempty"`
}

type dashScopeInput struct {
	Texts []string `json:"texts"`
}

type dashScopeParameters struct {
	Dimension  int    `json:"dimension,omitempty"`
	OutputType string `json:"output_type,omitempty"`
}

// dashScopeResponse DashScope原生接口响应
type dashScopeResponse struct {
	RequestID string `json:"request_id"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
	Output    struct {
		Embeddings []struct {
			Embedding []float32 `json:"embedding"`
			TextIndex int       `json:"text_index"`
		} `json:"embeddings"`
	} `json:"output"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// TongyiClient 通义千问嵌入客户端，使用DashScope原生接口
type TongyiClient struct {
	apiKey     string
	endpoint   string
	model      string
	httpClient *http.Client
	maxRetries int
	dimensions int
	logger     *logrus.Logger
}

// NewTongyiClient 创建通义千问嵌入客户端
// BaseURL 为 "compatible" 时改用OpenAI兼容模式，由 OpenAIClient 处理
func NewTongyiClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	if cfg.APIKey == "" {
		return nil, NewEmbeddingError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	}

	model := cfg.Model
	if model == "" {
		model = defaultTongyiModel
	}

	if cfg.BaseURL == "compatible" || cfg.BaseURL == "openai" {
		return NewOpenAIClient(append(opts, WithBaseURL(dashScopeCompatibleURL), WithModel(model))...)
	}

	endpoint := cfg.BaseURL
	if endpoint == "" {
		endpoint = defaultDashScopeEndpoint
	}
	if cfg.Dimensions != 0 && !isValidDimension(cfg.Dimensions) {
		return nil, NewEmbeddingError(ErrCodeInvalidRequest, fmt.Sprintf("invalid dimension: %d", cfg.Dimensions))
	}

	return &TongyiClient{
		apiKey:     cfg.APIKey,
		endpoint:   endpoint,
		model:      model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		dimensions: cfg.Dimensions,
		logger:     cfg.Logger,
	}, nil
}

// Name 返回模型名称
func (c *TongyiClient) Name() string {
	return c.model
}

// Embed 生成单条文本的向量表示
func (c *TongyiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, NewEmbeddingError(ErrCodeEmptyInput, ErrMsgEmptyInput)
	}

	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch 批量生成文本的向量表示
func (c *TongyiClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if limit := c.batchLimit(); len(texts) > limit {
		return nil, NewEmbeddingError(ErrCodeInvalidRequest,
			fmt.Sprintf("%s supports maximum %d texts per batch", c.model, limit))
	}

	req := dashScopeRequest{
		Model: c.model,
		Input: dashScopeInput{Texts: texts},
	}
	if c.model == "text-embedding-v3" {
		req.Parameters = &dashScopeParameters{OutputType: "dense", Dimension: c.dimensions}
	}

	var resp dashScopeResponse
	if err := c.sendRequest(ctx, req, &resp); err != nil {
		return nil, err
	}
	if resp.Code != "" {
		return nil, NewEmbeddingError(ErrCodeServerError, fmt.Sprintf("API error: %s (%s)", resp.Message, resp.Code))
	}

	result := make([][]float32, len(texts))
	for _, emb := range resp.Output.Embeddings {
		if emb.TextIndex < 0 || emb.TextIndex >= len(texts) {
			continue
		}
		result[emb.TextIndex] = emb.Embedding
	}
	for i, v := range result {
		if len(v) == 0 {
			return nil, NewEmbeddingError(ErrCodeServerError, fmt.Sprintf("no embedding returned for input %d", i))
		}
	}

	c.logger.WithFields(logrus.Fields{
		"model":      c.model,
		"count":      len(texts),
		"tokens":     resp.Usage.TotalTokens,
		"request_id": resp.RequestID,
	}).Debug("Embeddings generated")

	return result, nil
}

// sendRequest 发送请求，网络错误、限流与5xx按指数退避重试
func (c *TongyiClient) sendRequest(ctx context.Context, reqData interface{}, respObj interface{}) error {
	payload, err := json.Marshal(reqData)
	if err != nil {
		return NewEmbeddingError(ErrCodeInvalidRequest, fmt.Sprintf("failed to marshal request: %v", err))
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.WithFields(logrus.Fields{
				"attempt": attempt,
				"model":   c.model,
			}).WithError(lastErr).Warn("Retrying embedding request")
			if err := sleepCtx(ctx, backoff(attempt)); err != nil {
				return NewEmbeddingError(ErrCodeTimeout, err.Error())
			}
		}

		lastErr = c.doRequest(ctx, payload, respObj)
		if lastErr == nil {
			return nil
		}
		var embErr EmbeddingError
		if !errors.As(lastErr, &embErr) || !embErr.Retryable() || ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}

func (c *TongyiClient) doRequest(ctx context.Context, payload []byte, respObj interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return NewEmbeddingError(ErrCodeInvalidRequest, fmt.Sprintf("failed to create request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return NewEmbeddingError(ErrCodeTimeout, fmt.Sprintf("%s: %v", ErrMsgTimeout, err))
		}
		return NewEmbeddingError(ErrCodeNetworkError, fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return NewEmbeddingError(ErrCodeNetworkError, fmt.Sprintf("failed to read response: %v", err))
	}

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		msg := string(body)
		if json.Unmarshal(body, &errResp) == nil && errResp.Message != "" {
			msg = fmt.Sprintf("%s (%s)", errResp.Message, errResp.Code)
		}
		return NewEmbeddingError(statusCode(resp.StatusCode), fmt.Sprintf("API error (status %d): %s", resp.StatusCode, msg))
	}

	if err := json.Unmarshal(body, respObj); err != nil {
		return NewEmbeddingError(ErrCodeServerError, fmt.Sprintf("failed to parse response: %v", err))
	}
	return nil
}

// statusCode HTTP状态码到错误码的映射
func statusCode(status int) int {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrCodeInvalidAPIKey
	case status == http.StatusTooManyRequests:
		return ErrCodeRateLimited
	case status >= 500:
		return ErrCodeServerError
	default:
		return ErrCodeInvalidRequest
	}
}

// batchLimit v3模型单批最多10条，其余25条
func (c *TongyiClient) batchLimit() int {
	if c.model == "text-embedding-v3" {
		return 10
	}
	return 25
}

// isValidDimension 检查维度是否有效 (仅对v3模型)
func isValidDimension(dim int) bool {
	switch dim {
	case 1024, 768, 512, 256, 128, 64:
		return true
	}
	return false
}

func init() {
	RegisterClient("tongyi", NewTongyiClient)
}
