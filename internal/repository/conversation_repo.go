package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyerfyer/advisor-rag/internal/database"
	"github.com/fyerfyer/advisor-rag/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// conversationRepo 会话归档仓储实现
type conversationRepo struct {
	db *gorm.DB // 数据库连接
}

// NewConversationRepository 使用全局数据库连接创建仓储实例
func NewConversationRepository() ConversationRepository {
	return &conversationRepo{
		db: database.MustDB(),
	}
}

// NewConversationRepositoryWithDB 使用指定的数据库连接创建仓储实例
func NewConversationRepositoryWithDB(db *gorm.DB) ConversationRepository {
	if db == nil {
		db = database.MustDB()
	}
	return &conversationRepo{
		db: db,
	}
}

// WithContext 创建带有上下文的仓储
func (r *conversationRepo) WithContext(ctx context.Context) ConversationRepository {
	return &conversationRepo{
		db: r.db.WithContext(ctx),
	}
}

// Create 在一个事务中保存会话及其全部消息
func (r *conversationRepo) Create(conv *models.Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	for i := range conv.Turns {
		conv.Turns[i].ConversationID = conv.ID
		conv.Turns[i].Seq = i
	}
	conv.TurnCount = len(conv.Turns)

	return r.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Conversation{}).Where("id = ?", conv.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: %s", models.ErrConversationExists, conv.ID)
		}
		return tx.Create(conv).Error
	})
}

// GetByID 根据ID获取会话
func (r *conversationRepo) GetByID(id string) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.Preload("Turns", func(db *gorm.DB) *gorm.DB {
		return db.Order("seq ASC")
	}).Where("id = ?", id).First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrConversationNotFound, id)
		}
		return nil, err
	}
	return &conv, nil
}

// List 按结束时间升序列出会话
func (r *conversationRepo) List(offset, limit int) ([]*models.Conversation, int64, error) {
	var convs []*models.Conversation
	var total int64

	query := r.db.Model(&models.Conversation{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Order("ended_at ASC").Order("id ASC").Offset(offset)
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&convs).Error; err != nil {
		return nil, 0, err
	}
	return convs, total, nil
}

// ListSince 列出指定时间之后结束的会话
func (r *conversationRepo) ListSince(since time.Time) ([]*models.Conversation, error) {
	var convs []*models.Conversation
	err := r.db.Where("ended_at >= ?", since).
		Order("ended_at ASC").
		Order("id ASC").
		Find(&convs).Error
	return convs, err
}
