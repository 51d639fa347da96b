package llm

import "time"

// MessageRole 消息角色类型
type MessageRole string

const (
	// RoleSystem 系统角色
	RoleSystem MessageRole = "system"
	// RoleUser 用户角色
	RoleUser MessageRole = "user"
	// RoleAssistant 助手角色
	RoleAssistant MessageRole = "assistant"
)

// Message 对话消息结构
type Message struct {
	Role    MessageRole `json:"role"`    // 角色
	Content string      `json:"content"` // 内容
}

// Response 统一的响应结构
type Response struct {
	Text       string    // 生成的文本
	TokenCount int       // 使用的token数
	ModelName  string    // 使用的模型名称
	FinishTime time.Time // 完成时间
}

// 常用模型名称
const (
	ModelGPT4oMini = "gpt-4o-mini" // OpenAI默认对话模型
	ModelGPT4o     = "gpt-4o"
	ModelQwenTurbo = "qwen-turbo" // 通义千问-Turbo模型（较快，基础能力）
	ModelQwenPlus  = "qwen-plus"  // 通义千问-Plus模型（平衡速度和性能）
	ModelQwenMax   = "qwen-max"   // 通义千问-Max模型（高级能力，速度较慢）
)

// TongyiRequest 通义千问API请求结构
type TongyiRequest struct {
	Model      string              `json:"model"`                // 模型名称
	Input      *TongyiRequestInput `json:"input"`                // 输入内容
	Parameters *TongyiParameters   `json:"parameters,omitempty"` // 请求参数
}

// TongyiRequestInput 通义千问API请求输入
type TongyiRequestInput struct {
	Messages []Message `json:"messages"` // 消息列表
}

// TongyiParameters 通义千问API请求参数
type TongyiParameters struct {
	ResultFormat   string          `json:"result_format,omitempty"`   // 结果格式：text 或 message
	MaxTokens      *int            `json:"max_tokens,omitempty"`      // 最大生成Token数
	Temperature    *float32        `json:"temperature,omitempty"`     // 温度参数
	TopP           *float32        `json:"top_p,omitempty"`           // 核采样概率阈值
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"` // 输出格式
}

// ResponseFormat 输出格式约束
type ResponseFormat struct {
	Type string `json:"type"` // text 或 json_object
}

// TongyiResponse 通义千问API响应结构
type TongyiResponse struct {
	Output    TongyiOutput `json:"output"`            // 输出内容
	Usage     TongyiUsage  `json:"usage"`             // 使用统计
	RequestID string       `json:"request_id"`        // 请求ID
	Code      string       `json:"code,omitempty"`    // 错误码
	Message   string       `json:"message,omitempty"` // 错误信息
}

// TongyiOutput 通义千问API输出内容
type TongyiOutput struct {
	Text         *string        `json:"text,omitempty"`          // 文本格式输出
	FinishReason string         `json:"finish_reason,omitempty"` // 完成原因
	Choices      []TongyiChoice `json:"choices,omitempty"`       // 消息格式输出
}

// TongyiChoice 通义千问API选择结果
type TongyiChoice struct {
	FinishReason string  `json:"finish_reason"` // 完成原因
	Message      Message `json:"message"`       // 消息内容
}

// TongyiUsage 通义千问API使用统计
type TongyiUsage struct {
	InputTokens  int `json:"input_tokens"`  // 输入Token数
	OutputTokens int `json:"output_tokens"` // 输出Token数
	TotalTokens  int `json:"total_tokens"`  // 总Token数
}
