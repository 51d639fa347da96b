package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fyerfyer/advisor-rag/internal/llm"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	// ErrConversationEnded 对话已结束，不能继续回复
	ErrConversationEnded = errors.New("conversation already ended")

	// ErrEmptyInput 用户输入为空
	ErrEmptyInput = errors.New("empty user input")
)

// DefaultWindow 提示词中默认保留的最近轮数
const DefaultWindow = 10

// DefaultCompletionTimeout 单次生成的默认超时
const DefaultCompletionTimeout = 60 * time.Second

// State 对话状态
type State int

const (
	// StateIdle 尚未产生任何轮次
	StateIdle State = iota
	// StateActive 至少完成一轮
	StateActive
	// StateEnded 已结束
	StateEnded
)

// String 状态名称
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Transcript 结束时交给归档的完整对话记录
type Transcript struct {
	ID        string
	StartedAt time.Time
	EndedAt   time.Time
	Turns     []llm.Message
}

// Text 以 "User: ..." / "Assistant: ..." 行格式返回对话文本
func (t Transcript) Text() string {
	return llm.FormatHistory(t.Turns)
}

// Conversation 单个客户的对话，不支持并发调用
type Conversation struct {
	id        string
	retriever ContextRetriever
	llm       llm.Client
	prompts   *llm.PromptBuilder
	extractor *ProfileExtractor
	tokens    *llm.TokenCounter
	window    int
	timeout   time.Duration
	logger    *logrus.Logger
	history   []llm.Message
	profile   Profile
	state     State
	startedAt time.Time
}

// ConversationOption 对话配置选项
type ConversationOption func(*Conversation)

// WithWindow 设置提示词中保留的最近轮数（一问一答为一轮）
func WithWindow(n int) ConversationOption {
	return func(c *Conversation) {
		if n > 0 {
			c.window = n
		}
	}
}

// WithCompletionTimeout 设置单次生成超时
func WithCompletionTimeout(d time.Duration) ConversationOption {
	return func(c *Conversation) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithPromptBuilder 设置提示词构建器
func WithPromptBuilder(b *llm.PromptBuilder) ConversationOption {
	return func(c *Conversation) {
		c.prompts = b
	}
}

// WithProfileExtractor 启用每轮之后的画像抽取
func WithProfileExtractor(e *ProfileExtractor) ConversationOption {
	return func(c *Conversation) {
		c.extractor = e
	}
}

// WithTokenCounter 设置token计数器，仅用于日志
func WithTokenCounter(t *llm.TokenCounter) ConversationOption {
	return func(c *Conversation) {
		c.tokens = t
	}
}

// WithConversationID 指定对话ID
func WithConversationID(id string) ConversationOption {
	return func(c *Conversation) {
		if id != "" {
			c.id = id
		}
	}
}

// WithConversationLogger 设置日志记录器
func WithConversationLogger(logger *logrus.Logger) ConversationOption {
	return func(c *Conversation) {
		c.logger = logger
	}
}

// NewConversation 创建新的对话
func NewConversation(retriever ContextRetriever, client llm.Client, opts ...ConversationOption) *Conversation {
	c := &Conversation{
		id:        uuid.New().String(),
		retriever: retriever,
		llm:       client,
		prompts:   llm.NewPromptBuilder(),
		window:    DefaultWindow,
		timeout:   DefaultCompletionTimeout,
		logger:    logrus.StandardLogger(),
		state:     StateIdle,
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ID 对话ID
func (c *Conversation) ID() string {
	return c.id
}

// State 当前状态
func (c *Conversation) State() State {
	return c.state
}

// StartedAt 对话开始时间
func (c *Conversation) StartedAt() time.Time {
	return c.startedAt
}

// Profile 当前累计的客户画像
func (c *Conversation) Profile() Profile {
	return c.profile
}

// History 返回全部轮次的副本
func (c *Conversation) History() []llm.Message {
	out := make([]llm.Message, len(c.history))
	copy(out, c.history)
	return out
}

// Window 返回进入提示词的最近轮次
func (c *Conversation) Window() []llm.Message {
	n := c.window * 2
	if len(c.history) <= n {
		return c.History()
	}
	out := make([]llm.Message, n)
	copy(out, c.history[len(c.history)-n:])
	return out
}

// Reply 处理一轮用户输入并返回助手回复
// 检索或生成失败时不返回错误，分别退化为空上下文和固定回复
func (c *Conversation) Reply(ctx context.Context, input string) (string, error) {
	if c.state == StateEnded {
		return "", ErrConversationEnded
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return "", ErrEmptyInput
	}

	log := c.logger.WithField("conversation_id", c.id)

	contextText, hits, err := c.retriever.Retrieve(ctx, input)
	if err != nil {
		log.WithError(err).Warn("Retrieval failed, continuing with empty context")
		contextText = ""
	}

	prompt, err := c.prompts.Build(llm.PromptData{
		Context: contextText,
		History: llm.FormatHistory(c.Window()),
		Input:   input,
	})
	if err != nil {
		return "", err
	}
	messages := prompt.Messages()

	reply := c.complete(ctx, messages, log)

	c.history = append(c.history,
		llm.Message{Role: llm.RoleUser, Content: input},
		llm.Message{Role: llm.RoleAssistant, Content: reply},
	)
	c.state = StateActive

	fields := logrus.Fields{
		"turn":  len(c.history) / 2,
		"hits":  len(hits),
		"reply": len(reply),
	}
	if c.tokens != nil {
		fields["prompt_tokens"] = c.tokens.CountMessages(messages)
	}
	log.WithFields(fields).Info("Turn completed")

	c.extractProfile(ctx, log)
	return reply, nil
}

// complete 调用模型，失败或空回复时返回固定回复
func (c *Conversation) complete(ctx context.Context, messages []llm.Message, log *logrus.Entry) string {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.llm.Chat(callCtx, messages)
	if err != nil {
		log.WithError(err).WithField("model", c.llm.Name()).Error("Completion failed, using fallback reply")
		return llm.FallbackReply
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		log.WithField("model", c.llm.Name()).Warn("Empty completion, using fallback reply")
		return llm.FallbackReply
	}
	return text
}

// extractProfile 抽取画像并合并非空字段，失败时保持原画像
func (c *Conversation) extractProfile(ctx context.Context, log *logrus.Entry) {
	if c.extractor == nil {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	extracted, err := c.extractor.Extract(callCtx, c.history)
	if err != nil {
		log.WithError(err).Warn("Profile extraction failed")
		return
	}
	c.profile = c.profile.Merge(extracted)
}

// End 结束对话并返回完整记录，重复结束返回错误
func (c *Conversation) End() (Transcript, error) {
	if c.state == StateEnded {
		return Transcript{}, ErrConversationEnded
	}
	c.state = StateEnded
	return c.transcript(time.Now()), nil
}

// transcript 生成当前记录的快照，不改变对话状态
func (c *Conversation) transcript(endedAt time.Time) Transcript {
	return Transcript{
		ID:        c.id,
		StartedAt: c.startedAt,
		EndedAt:   endedAt,
		Turns:     c.History(),
	}
}
