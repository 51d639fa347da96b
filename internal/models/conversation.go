package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MessageRole 消息角色类型
type MessageRole string

const (
	// RoleUser 用户角色
	RoleUser MessageRole = "user"
	// RoleAssistant 助手角色
	RoleAssistant MessageRole = "assistant"
)

// Conversation 已结束的咨询会话
// 客户画像字段与导出表格的列一一对应
type Conversation struct {
	ID             string             `gorm:"primaryKey"`         // 会话ID，主键
	StartedAt      time.Time          `gorm:"not null"`           // 开始时间
	EndedAt        time.Time          `gorm:"not null;index"`     // 结束时间
	TurnCount      int                `gorm:"not null;default:0"` // 消息条数
	Name           string             `gorm:"size:255"`           // 客户姓名
	Age            string             `gorm:"size:32"`            // 年龄
	Gender         string             `gorm:"size:32"`            // 性别
	Employment     string             `gorm:"size:255"`           // 就业类型
	FinancialGoals string             `gorm:"type:text"`          // 财务目标与优先级
	Contact        string             `gorm:"size:255"`           // 联系方式
	Recommendation string             `gorm:"type:text"`          // 推荐产品
	Transcript     string             `gorm:"type:text"`          // 完整对话文本
	Profile        datatypes.JSON     `gorm:"type:json"`          // 模型抽取的原始画像JSON
	Turns          []ConversationTurn `gorm:"foreignKey:ConversationID"`
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (c *Conversation) BeforeCreate(tx *gorm.DB) (err error) {
	now := time.Now()
	if c.EndedAt.IsZero() {
		c.EndedAt = now
	}
	if c.StartedAt.IsZero() {
		c.StartedAt = c.EndedAt
	}
	return nil
}

// TableName 明确指定表名
func (Conversation) TableName() string {
	return "conversations"
}

// ConversationTurn 会话中的单条消息
type ConversationTurn struct {
	ID             uint        `gorm:"primaryKey;autoIncrement"`  // 主键ID
	ConversationID string      `gorm:"not null;index"`            // 所属会话ID
	Seq            int         `gorm:"not null"`                  // 在会话中的顺序
	Role           MessageRole `gorm:"not null;type:varchar(20)"` // 消息角色
	Content        string      `gorm:"type:text;not null"`        // 消息内容
	CreatedAt      time.Time   `gorm:"not null"`                  // 创建时间
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (t *ConversationTurn) BeforeCreate(tx *gorm.DB) (err error) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	return nil
}

// TableName 明确指定表名
func (ConversationTurn) TableName() string {
	return "conversation_turns"
}
