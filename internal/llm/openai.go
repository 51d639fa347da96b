package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"github.com/sirupsen/logrus"
)

// OpenAIClient OpenAI对话客户端，也可用于任何OpenAI兼容端点
type OpenAIClient struct {
	client openai.Client
	model  string
	cfg    *Config
	logger *logrus.Logger
}

// NewOpenAIClient 创建一个新的OpenAI对话客户端
func NewOpenAIClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	if cfg.APIKey == "" {
		return nil, NewLLMError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	}

	model := cfg.Model
	if model == "" {
		model = ModelGPT4oMini
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
		client: openai.NewClient(reqOpts...),
		model:  model,
		cfg:    cfg,
		logger: cfg.Logger,
	}, nil
}

// Name 返回模型名称
func (c *OpenAIClient) Name() string {
	return c.model
}

// Chat 进行多轮对话
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message, options ...ChatOption) (*Response, error) {
	if len(messages) == 0 {
		return nil, NewLLMError(ErrCodeEmptyPrompt, ErrMsgEmptyPrompt)
	}

	opts := c.cfg.resolve(options)
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model),
		Messages: toOpenAIMessages(messages),
	}
	if opts.MaxTokens != nil {
		params.MaxTokens = openai.Int(int64(*opts.MaxTokens))
	}
	if opts.Temperature != nil {
		params.Temperature = openai.Float(float64(*opts.Temperature))
	}
	if opts.TopP != nil {
		params.TopP = openai.Float(float64(*opts.TopP))
	}
	if opts.JSONMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{
				Type: "json_object",
			},
		}
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, mapOpenAIError(ctx, err)
	}
	if len(completion.Choices) == 0 {
		return nil, NewLLMError(ErrCodeEmptyResponse, ErrMsgEmptyResponse)
	}

	choice := completion.Choices[0]
	if choice.FinishReason == "content_filter" {
		return nil, NewLLMError(ErrCodeContentFilter, ErrMsgContentFilter)
	}

	c.logger.WithFields(logrus.Fields{
		"model":  c.model,
		"tokens": completion.Usage.TotalTokens,
	}).Debug("Chat completion generated")

	return &Response{
		Text:       choice.Message.Content,
		TokenCount: int(completion.Usage.TotalTokens),
		ModelName:  c.model,
		FinishTime: time.Now(),
	}, nil
}

// toOpenAIMessages 转换为SDK消息格式
func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// mapOpenAIError 将SDK错误映射为 LLMError
func mapOpenAIError(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return NewLLMError(ErrCodeTimeout, fmt.Sprintf("%s: %v", ErrMsgTimeout, err))
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized:
			return NewLLMError(ErrCodeInvalidAPIKey, apiErr.Error())
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return NewLLMError(ErrCodeRateLimited, apiErr.Error())
		case apiErr.StatusCode == http.StatusServiceUnavailable:
			return NewLLMError(ErrCodeModelOverload, apiErr.Error())
		case apiErr.StatusCode >= 500:
			return NewLLMError(ErrCodeServerError, apiErr.Error())
		case apiErr.Code == "context_length_exceeded":
			return NewLLMError(ErrCodeContextTooLong, apiErr.Error())
		default:
			return NewLLMError(ErrCodeInvalidRequest, apiErr.Error())
		}
	}
	return NewLLMError(ErrCodeNetworkError, fmt.Sprintf("%s: %v", ErrMsgNetworkError, err))
}

func init() {
	RegisterClient("openai", NewOpenAIClient)
}
