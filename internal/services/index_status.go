package services

import (
	"fmt"
	"sync"
	"time"

	"github.com/fyerfyer/advisor-rag/internal/vectordb"
	"github.com/sirupsen/logrus"
)

// IndexState 索引生命周期状态
type IndexState string

const (
	// IndexIdle 尚未构建
	IndexIdle IndexState = "idle"
	// IndexBuilding 正在构建
	IndexBuilding IndexState = "building"
	// IndexReady 已就绪可查询
	IndexReady IndexState = "ready"
	// IndexFailed 最近一次构建失败
	IndexFailed IndexState = "failed"
)

// IndexStatus 索引状态快照
type IndexStatus struct {
	State      IndexState     `json:"state"`
	Stats      vectordb.Stats `json:"stats"`
	FromCache  bool           `json:"from_checkpoint"`
	LastError  string         `json:"last_error,omitempty"`
	StartedAt  time.Time      `json:"started_at,omitempty"`
	FinishedAt time.Time      `json:"finished_at,omitempty"`
}

// IndexStatusManager 索引状态管理器
// 负责校验状态转换并记录最近一次构建结果
type IndexStatusManager struct {
	mu     sync.Mutex
	status IndexStatus
	logger *logrus.Logger
}

// NewIndexStatusManager 创建索引状态管理器
func NewIndexStatusManager(logger *logrus.Logger) *IndexStatusManager {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &IndexStatusManager{
		status: IndexStatus{State: IndexIdle},
		logger: logger,
	}
}

// ValidateStateTransition 验证状态转换是否有效
func ValidateStateTransition(current, next IndexState) error {
	valid := map[IndexState][]IndexState{
		IndexIdle:     {IndexBuilding},
		IndexBuilding: {IndexReady, IndexFailed},
		IndexReady:    {IndexBuilding},
		IndexFailed:   {IndexBuilding},
	}

	for _, s := range valid[current] {
		if s == next {
			return nil
		}
	}
	return fmt.Errorf("invalid index state transition: %s -> %s", current, next)
}

// transition 在锁内执行状态转换
func (m *IndexStatusManager) transition(next IndexState, update func(*IndexStatus)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ValidateStateTransition(m.status.State, next); err != nil {
		return err
	}
	m.status.State = next
	update(&m.status)
	return nil
}

// MarkBuilding 标记开始构建
func (m *IndexStatusManager) MarkBuilding() error {
	err := m.transition(IndexBuilding, func(s *IndexStatus) {
		s.StartedAt = time.Now()
		s.FinishedAt = time.Time{}
	})
	if err == nil {
		m.logger.Info("Index build started")
	}
	return err
}

// MarkReady 标记构建完成
func (m *IndexStatusManager) MarkReady(stats vectordb.Stats, fromCheckpoint bool) error {
	err := m.transition(IndexReady, func(s *IndexStatus) {
		s.Stats = stats
		s.FromCache = fromCheckpoint
		s.LastError = ""
		s.FinishedAt = time.Now()
	})
	if err == nil {
		m.logger.WithFields(logrus.Fields{
			"chunks":          stats.Chunks,
			"failed":          stats.Failed,
			"dimension":       stats.Dimension,
			"from_checkpoint": fromCheckpoint,
		}).Info("Index ready")
	}
	return err
}

// MarkFailed 标记构建失败，已有的索引保持可用
func (m *IndexStatusManager) MarkFailed(cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	err := m.transition(IndexFailed, func(s *IndexStatus) {
		s.LastError = msg
		s.FinishedAt = time.Now()
	})
	if err == nil {
		m.logger.WithField("error", msg).Error("Index build failed")
	}
	return err
}

// Status 返回当前状态快照
func (m *IndexStatusManager) Status() IndexStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}
