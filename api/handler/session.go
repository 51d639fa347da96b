package handler

import (
	"errors"
	"net/http"

	"github.com/fyerfyer/advisor-rag/api/middleware"
	"github.com/fyerfyer/advisor-rag/api/model"
	"github.com/fyerfyer/advisor-rag/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SessionHandler 处理咨询会话相关的API请求
type SessionHandler struct {
	sessions *services.SessionManager // 会话管理器
	logger   *logrus.Logger           // 日志记录器
}

// NewSessionHandler 创建新的会话处理器
func NewSessionHandler(sessions *services.SessionManager) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		logger:   middleware.GetLogger(),
	}
}

// CreateSession 创建会话
// POST /api/sessions
func (h *SessionHandler) CreateSession(c *gin.Context) {
	id := h.sessions.Create()
	c.JSON(http.StatusCreated, model.NewSuccessResponse(model.SessionCreateResponse{SessionID: id}))
}

// SendMessage 发送一条用户消息并返回回复
// POST /api/sessions/:id/messages
func (h *SessionHandler) SendMessage(c *gin.Context) {
	var uri model.SessionURI
	if err := c.ShouldBindUri(&uri); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid session id", err.Error()))
		return
	}

	var req model.MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid message request", err.Error()))
		return
	}

	reply, err := h.sessions.Reply(c.Request.Context(), uri.ID, req.Message)
	if err != nil {
		middleware.HandleError(c, sessionError(err))
		return
	}

	h.logger.WithFields(logrus.Fields{
		middleware.FieldSession: uri.ID,
		middleware.FieldTraceID: middleware.TraceID(c),
	}).Debug("Message handled")

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.MessageResponse{
		SessionID: uri.ID,
		Reply:     reply,
		ReplyHTML: model.RenderReply(reply),
	}))
}

// GetHistory 获取会话的全部消息与当前画像
// GET /api/sessions/:id/history
func (h *SessionHandler) GetHistory(c *gin.Context) {
	var uri model.SessionURI
	if err := c.ShouldBindUri(&uri); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid session id", err.Error()))
		return
	}

	history, profile, err := h.sessions.History(uri.ID)
	if err != nil {
		middleware.HandleError(c, sessionError(err))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.HistoryResponse{
		SessionID: uri.ID,
		Messages:  model.ConvertMessages(history),
		Profile:   model.ConvertProfile(profile),
	}))
}

// EndSession 结束并归档会话
// POST /api/sessions/:id/end
func (h *SessionHandler) EndSession(c *gin.Context) {
	var uri model.SessionURI
	if err := c.ShouldBindUri(&uri); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid session id", err.Error()))
		return
	}

	transcript, profile, err := h.sessions.End(c.Request.Context(), uri.ID)
	if err != nil {
		middleware.HandleError(c, sessionError(err))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.SessionEndResponse{
		SessionID: uri.ID,
		Messages:  len(transcript.Turns),
		Profile:   model.ConvertProfile(profile),
		EndedAt:   transcript.EndedAt,
	}))
}

// sessionError 将会话服务错误映射为应用错误
func sessionError(err error) error {
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		return middleware.NewNotFoundError("session not found")
	case errors.Is(err, services.ErrEmptyInput):
		return middleware.NewValidationError("message must not be empty")
	case errors.Is(err, services.ErrConversationEnded):
		return middleware.NewConflictError("session already ended")
	default:
		return err
	}
}
