package taskqueue

import (
	"encoding/json"
	"time"
)

// TaskType 任务类型
type TaskType string

const (
	// TaskIndexRebuild 重建向量索引任务
	TaskIndexRebuild TaskType = "index:rebuild"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	// StatusPending 等待处理
	StatusPending TaskStatus = "pending"
	// StatusProcessing 处理中
	StatusProcessing TaskStatus = "processing"
	// StatusCompleted 已完成
	StatusCompleted TaskStatus = "completed"
	// StatusFailed 处理失败
	StatusFailed TaskStatus = "failed"
)

// Task 任务基础结构
type Task struct {
	ID          string          `json:"id"`                   // 任务唯一标识符
	Type        TaskType        `json:"type"`                 // 任务类型
	Status      TaskStatus      `json:"status"`               // 任务状态
	Payload     json.RawMessage `json:"payload"`              // 任务载荷数据
	Result      json.RawMessage `json:"result"`               // 任务结果数据
	Error       string          `json:"error"`                // 错误信息（如果处理失败）
	CreatedAt   time.Time       `json:"created_at"`           // 创建时间
	UpdatedAt   time.Time       `json:"updated_at"`           // 更新时间
	StartedAt   *time.Time      `json:"started_at"`           // 开始处理时间
	CompletedAt *time.Time      `json:"completed_at"`         // 完成时间
	MaxRetries  int             `json:"max_retries"`          // 最大重试次数
	ProcessAt   *time.Time      `json:"process_at,omitempty"` // 计划执行时间，仅延迟任务
}

// IndexRebuildPayload 重建索引任务载荷
type IndexRebuildPayload struct {
	Reason      string `json:"reason"`       // 触发原因，如 api、cli
	RequestedBy string `json:"requested_by"` // 请求方标识，如trace id
}

// IndexRebuildResult 重建索引任务结果
type IndexRebuildResult struct {
	Chunks    int    `json:"chunks"`    // 已索引片段数
	Failed    int    `json:"failed"`    // 嵌入失败被跳过的片段数
	Dimension int    `json:"dimension"` // 向量维度
	Model     string `json:"model"`     // 嵌入模型
	Backend   string `json:"backend"`   // 向量后端
}
