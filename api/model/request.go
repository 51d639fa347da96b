package model

// SessionURI 会话路径参数
type SessionURI struct {
	ID string `uri:"id" binding:"required,uuid"` // 会话ID
}

// TaskURI 任务路径参数
type TaskURI struct {
	ID string `uri:"id" binding:"required,uuid"` // 任务ID
}

// MessageRequest 发送消息请求
type MessageRequest struct {
	Message string `json:"message" binding:"required,max=4000"` // 用户输入
}

// IndexRebuildRequest 重建索引请求
type IndexRebuildRequest struct {
	Reason       string `json:"reason" binding:"omitempty,max=200"`                // 触发原因，记录在任务中
	DelaySeconds int    `json:"delay_seconds" binding:"omitempty,min=0,max=86400"` // 延迟执行秒数，需要启用任务队列
}
