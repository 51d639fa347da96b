package taskqueue

import (
	"context"
	"fmt"

	"github.com/fyerfyer/advisor-rag/internal/vectordb"
	"github.com/sirupsen/logrus"
)

// IndexRebuilder 执行索引重建的服务
type IndexRebuilder interface {
	Rebuild(ctx context.Context) (vectordb.Stats, error)
}

// IndexRebuildHandler 处理 index:rebuild 任务
type IndexRebuildHandler struct {
	rebuilder IndexRebuilder
	logger    *logrus.Logger
}

// NewIndexRebuildHandler 创建索引重建任务处理器
func NewIndexRebuildHandler(rebuilder IndexRebuilder, logger *logrus.Logger) *IndexRebuildHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &IndexRebuildHandler{rebuilder: rebuilder, logger: logger}
}

// ProcessTask 重建索引并返回统计信息
func (h *IndexRebuildHandler) ProcessTask(ctx context.Context, task *Task) (interface{}, error) {
	var payload IndexRebuildPayload
	if err := UnmarshalPayload(task.Payload, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	h.logger.WithFields(logrus.Fields{
		"task_id":      task.ID,
		"reason":       payload.Reason,
		"requested_by": payload.RequestedBy,
	}).Info("Processing index rebuild task")

	stats, err := h.rebuilder.Rebuild(ctx)
	if err != nil {
		return nil, fmt.Errorf("index rebuild failed: %w", err)
	}

	return &IndexRebuildResult{
		Chunks:    stats.Chunks,
		Failed:    stats.Failed,
		Dimension: stats.Dimension,
		Model:     stats.Model,
		Backend:   stats.Backend,
	}, nil
}

// GetTaskTypes 返回此处理器支持的任务类型
func (h *IndexRebuildHandler) GetTaskTypes() []TaskType {
	return []TaskType{TaskIndexRebuild}
}
