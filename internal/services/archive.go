package services

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fyerfyer/advisor-rag/internal/llm"
	"github.com/fyerfyer/advisor-rag/internal/models"
	"github.com/fyerfyer/advisor-rag/internal/repository"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// ExportTimeFormat 导出表格中的时间格式
const ExportTimeFormat = "2006-01-02 15:04:05"

// ExportHeader 导出表格的列
var ExportHeader = []string{
	"Name",
	"Age",
	"Gender",
	"Employment Type",
	"Financial Goals and Priorities",
	"Contact Details",
	"Product Recommendation",
	"Conversation",
	"Timestamp",
}

// Archiver 已结束会话的归档服务
type Archiver struct {
	repo   repository.ConversationRepository
	logger *logrus.Logger
}

// NewArchiver 创建归档服务
func NewArchiver(repo repository.ConversationRepository, logger *logrus.Logger) *Archiver {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Archiver{repo: repo, logger: logger}
}

// Archive 保存对话记录与客户画像
func (a *Archiver) Archive(ctx context.Context, t Transcript, p Profile) (*models.Conversation, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal profile: %w", err)
	}

	turns := make([]models.ConversationTurn, 0, len(t.Turns))
	for _, m := range t.Turns {
		role := models.RoleUser
		if m.Role == llm.RoleAssistant {
			role = models.RoleAssistant
		}
		turns = append(turns, models.ConversationTurn{Role: role, Content: m.Content})
	}

	conv := &models.Conversation{
		ID:             t.ID,
		StartedAt:      t.StartedAt,
		EndedAt:        t.EndedAt,
		Name:           p.Name,
		Age:            p.Age,
		Gender:         p.Gender,
		Employment:     p.Employment,
		FinancialGoals: p.FinancialGoals,
		Contact:        p.Contact,
		Recommendation: p.Recommendation,
		Transcript:     t.Text(),
		Profile:        datatypes.JSON(raw),
		Turns:          turns,
	}

	if err := a.repo.WithContext(ctx).Create(conv); err != nil {
		return nil, fmt.Errorf("failed to archive conversation: %w", err)
	}

	a.logger.WithFields(logrus.Fields{
		"conversation_id": conv.ID,
		"messages":        conv.TurnCount,
	}).Info("Conversation archived")
	return conv, nil
}

// List 列出全部归档会话
func (a *Archiver) List(ctx context.Context) ([]*models.Conversation, error) {
	convs, _, err := a.repo.WithContext(ctx).List(0, 0)
	return convs, err
}

// ExportCSV 将会话写为表格，header为true时先写表头
func ExportCSV(w io.Writer, convs []*models.Conversation, header bool) error {
	cw := csv.NewWriter(w)
	if header {
		if err := cw.Write(ExportHeader); err != nil {
			return err
		}
	}
	for _, c := range convs {
		record := []string{
			c.Name,
			c.Age,
			c.Gender,
			c.Employment,
			c.FinancialGoals,
			c.Contact,
			c.Recommendation,
			c.Transcript,
			c.EndedAt.Format(ExportTimeFormat),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportFile 追加写入表格文件，文件不存在或为空时写表头
func ExportFile(path string, convs []*models.Conversation) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create export directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open export file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	return ExportCSV(f, convs, info.Size() == 0)
}
