package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fyerfyer/advisor-rag/internal/llm"
	"github.com/sirupsen/logrus"
)

// ErrSessionNotFound 会话不存在或已结束
var ErrSessionNotFound = errors.New("session not found")

// session 带锁的对话，保证同一会话的请求顺序执行
type session struct {
	mu   sync.Mutex
	conv *Conversation
}

// SessionManager 管理HTTP前端的多个并发会话
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*session
	factory  func(opts ...ConversationOption) *Conversation
	archiver *Archiver
	logger   *logrus.Logger
}

// NewSessionManager 创建会话管理器
// factory 用于创建新对话，archiver 为空时结束的会话不归档
func NewSessionManager(factory func(opts ...ConversationOption) *Conversation, archiver *Archiver, logger *logrus.Logger) *SessionManager {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &SessionManager{
		sessions: make(map[string]*session),
		factory:  factory,
		archiver: archiver,
		logger:   logger,
	}
}

// Create 创建新会话，返回会话ID
func (m *SessionManager) Create() string {
	conv := m.factory()

	m.mu.Lock()
	m.sessions[conv.ID()] = &session{conv: conv}
	m.mu.Unlock()

	m.logger.WithField("conversation_id", conv.ID()).Info("Session created")
	return conv.ID()
}

func (m *SessionManager) get(id string) (*session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Reply 在指定会话中处理一轮输入
func (m *SessionManager) Reply(ctx context.Context, id, input string) (string, error) {
	s, err := m.get(id)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv.Reply(ctx, input)
}

// History 返回会话的全部轮次与当前画像
func (m *SessionManager) History(id string) ([]llm.Message, Profile, error) {
	s, err := m.get(id)
	if err != nil {
		return nil, Profile{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv.History(), s.conv.Profile(), nil
}

// End 归档并结束会话，成功后从管理器中移除
// 归档失败时会话保持打开，可以继续对话或再次结束
func (m *SessionManager) End(ctx context.Context, id string) (Transcript, Profile, error) {
	s, err := m.get(id)
	if err != nil {
		return Transcript{}, Profile{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// 并发的结束请求已经完成
	if s.conv.State() == StateEnded {
		return Transcript{}, Profile{}, ErrSessionNotFound
	}

	transcript := s.conv.transcript(time.Now())
	profile := s.conv.Profile()

	if m.archiver != nil {
		if _, err := m.archiver.Archive(ctx, transcript, profile); err != nil {
			m.logger.WithError(err).WithField("conversation_id", id).Error("Failed to archive session, keeping it open")
			return Transcript{}, Profile{}, err
		}
	}

	if _, err := s.conv.End(); err != nil {
		return Transcript{}, Profile{}, err
	}

	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()

	m.logger.WithField("conversation_id", id).Info("Session ended")
	return transcript, profile, nil
}

// Count 当前活跃会话数
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
