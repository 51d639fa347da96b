package repository

import (
	"context"
	"time"

	"github.com/fyerfyer/advisor-rag/internal/models"
)

// ConversationRepository 会话归档仓储接口
// 负责已结束会话及其消息的存储和检索
type ConversationRepository interface {
	// Create 保存会话及其全部消息
	Create(conv *models.Conversation) error

	// GetByID 根据ID获取会话，消息按顺序预加载
	GetByID(id string) (*models.Conversation, error)

	// List 按结束时间升序列出会话，limit<=0 时返回全部
	List(offset, limit int) ([]*models.Conversation, int64, error)

	// ListSince 列出指定时间之后结束的会话
	ListSince(since time.Time) ([]*models.Conversation, error)

	// WithContext 创建带有上下文的仓储
	WithContext(ctx context.Context) ConversationRepository
}
