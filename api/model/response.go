package model

import (
	"time"

	"github.com/fyerfyer/advisor-rag/internal/llm"
	"github.com/fyerfyer/advisor-rag/internal/services"
	"github.com/fyerfyer/advisor-rag/internal/vectordb"
)

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`               // 响应状态码，0表示成功
	Message string      `json:"message"`            // 响应消息
	Data    interface{} `json:"data,omitempty"`     // 响应数据，可能为空
	TraceID string      `json:"trace_id,omitempty"` // 调用链追踪ID
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) *Response {
	return &Response{
		Code:    code,
		Message: message,
	}
}

// SessionCreateResponse 创建会话响应
type SessionCreateResponse struct {
	SessionID string `json:"session_id"` // 会话ID
}

// MessageResponse 单轮回复响应
type MessageResponse struct {
	SessionID string `json:"session_id"` // 会话ID
	Reply     string `json:"reply"`      // 助手回复
	ReplyHTML string `json:"reply_html"` // 渲染后的回复
}

// MessageInfo 对话中的一条消息
type MessageInfo struct {
	Role    string `json:"role"`    // user 或 assistant
	Content string `json:"content"` // 消息内容
}

// ProfileInfo 客户画像
type ProfileInfo struct {
	Name           string `json:"name"`
	Age            string `json:"age"`
	Gender         string `json:"gender"`
	Employment     string `json:"employment"`
	FinancialGoals string `json:"financial_goals"`
	Contact        string `json:"contact"`
	Recommendation string `json:"recommendation"`
}

// HistoryResponse 会话历史响应
type HistoryResponse struct {
	SessionID string        `json:"session_id"` // 会话ID
	Messages  []MessageInfo `json:"messages"`   // 全部消息，按时间顺序
	Profile   ProfileInfo   `json:"profile"`    // 当前画像
}

// SessionEndResponse 结束会话响应
type SessionEndResponse struct {
	SessionID string      `json:"session_id"` // 会话ID
	Messages  int         `json:"messages"`   // 消息条数
	Profile   ProfileInfo `json:"profile"`    // 最终画像
	EndedAt   time.Time   `json:"ended_at"`   // 结束时间
}

// IndexRebuildResponse 重建索引响应
type IndexRebuildResponse struct {
	TaskID    string     `json:"task_id,omitempty"`    // 队列任务ID，未启用队列时为空
	Mode      string     `json:"mode"`                 // queued, scheduled 或 background
	ProcessAt *time.Time `json:"process_at,omitempty"` // 延迟任务的计划执行时间
}

// IndexStatusResponse 索引状态响应
type IndexStatusResponse struct {
	State          string         `json:"state"`                // idle, building, ready, failed
	Ready          bool           `json:"ready"`                // 是否有可查询的索引
	Stats          vectordb.Stats `json:"stats"`                // 最近一次构建统计
	FromCheckpoint bool           `json:"from_checkpoint"`      // 是否从检查点恢复
	LastError      string         `json:"last_error,omitempty"` // 最近一次失败原因
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status     string `json:"status"`      // ok 或 degraded
	IndexReady bool   `json:"index_ready"` // 索引是否就绪
	Sessions   int    `json:"sessions"`    // 活跃会话数
}

// ConvertMessages 将对话消息转换为响应格式
func ConvertMessages(messages []llm.Message) []MessageInfo {
	out := make([]MessageInfo, len(messages))
	for i, m := range messages {
		out[i] = MessageInfo{Role: string(m.Role), Content: m.Content}
	}
	return out
}

// ConvertProfile 将画像转换为响应格式
func ConvertProfile(p services.Profile) ProfileInfo {
	return ProfileInfo{
		Name:           p.Name,
		Age:            p.Age,
		Gender:         p.Gender,
		Employment:     p.Employment,
		FinancialGoals: p.FinancialGoals,
		Contact:        p.Contact,
		Recommendation: p.Recommendation,
	}
}
