package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fyerfyer/advisor-rag/api/middleware"
	"github.com/fyerfyer/advisor-rag/api/model"
	"github.com/fyerfyer/advisor-rag/internal/services"
	"github.com/fyerfyer/advisor-rag/pkg/taskqueue"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// IndexHandler 处理索引相关的API请求
type IndexHandler struct {
	indexer  *services.Indexer        // 索引服务
	queue    taskqueue.Queue          // 任务队列，可以为nil
	sessions *services.SessionManager // 会话管理器，用于健康检查
	logger   *logrus.Logger           // 日志记录器
}

// NewIndexHandler 创建新的索引处理器
// queue 为nil时重建在后台goroutine中执行
func NewIndexHandler(indexer *services.Indexer, queue taskqueue.Queue, sessions *services.SessionManager) *IndexHandler {
	return &IndexHandler{
		indexer:  indexer,
		queue:    queue,
		sessions: sessions,
		logger:   middleware.GetLogger(),
	}
}

// Rebuild 触发索引重建
// POST /api/index/rebuild
func (h *IndexHandler) Rebuild(c *gin.Context) {
	var req model.IndexRebuildRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.HandleError(c, middleware.NewValidationError("invalid rebuild request", err.Error()))
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "api"
	}

	if h.indexer.Status().State == services.IndexBuilding {
		middleware.HandleError(c, middleware.NewConflictError("index rebuild already in progress"))
		return
	}

	if req.DelaySeconds > 0 && h.queue == nil {
		middleware.HandleError(c, middleware.NewValidationError("delayed rebuild requires the task queue"))
		return
	}

	if h.queue != nil {
		h.enqueueRebuild(c, req)
		return
	}

	go func() {
		if _, err := h.indexer.Rebuild(context.Background()); err != nil {
			if errors.Is(err, services.ErrRebuildInProgress) {
				h.logger.Info("Index rebuild skipped, another rebuild is running")
				return
			}
			h.logger.WithError(err).Error("Background index rebuild failed")
		}
	}()

	c.JSON(http.StatusAccepted, model.NewSuccessResponse(model.IndexRebuildResponse{Mode: "background"}))
}

// enqueueRebuild 将重建任务放入队列，设置延迟时按计划执行
func (h *IndexHandler) enqueueRebuild(c *gin.Context, req model.IndexRebuildRequest) {
	payload := &taskqueue.IndexRebuildPayload{
		Reason:      req.Reason,
		RequestedBy: middleware.TraceID(c),
	}

	var (
		taskID string
		err    error
		mode   = "queued"
	)
	if req.DelaySeconds > 0 {
		mode = "scheduled"
		taskID, err = h.queue.EnqueueIn(c.Request.Context(), taskqueue.TaskIndexRebuild, payload,
			time.Duration(req.DelaySeconds)*time.Second)
	} else {
		taskID, err = h.queue.Enqueue(c.Request.Context(), taskqueue.TaskIndexRebuild, payload)
	}
	if err != nil {
		middleware.HandleError(c, middleware.NewInternalError("failed to enqueue rebuild", err.Error()))
		return
	}

	resp := model.IndexRebuildResponse{TaskID: taskID, Mode: mode}
	if task, err := h.queue.GetTask(c.Request.Context(), taskID); err == nil {
		resp.ProcessAt = task.ProcessAt
	}
	h.logger.WithFields(logrus.Fields{
		"task_id": taskID,
		"mode":    mode,
		"reason":  req.Reason,
	}).Info("Index rebuild requested")

	c.JSON(http.StatusAccepted, model.NewSuccessResponse(resp))
}

// GetTask 查询排队的重建任务
// GET /api/index/tasks/:id
func (h *IndexHandler) GetTask(c *gin.Context) {
	if h.queue == nil {
		middleware.HandleError(c, middleware.NewNotFoundError("task queue is disabled"))
		return
	}

	var uri model.TaskURI
	if err := c.ShouldBindUri(&uri); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid task id", err.Error()))
		return
	}

	task, err := h.queue.GetTask(c.Request.Context(), uri.ID)
	if err != nil {
		if errors.Is(err, taskqueue.ErrTaskNotFound) {
			middleware.HandleError(c, middleware.NewNotFoundError("task not found"))
			return
		}
		middleware.HandleError(c, middleware.NewInternalError("failed to get task", err.Error()))
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(taskqueue.NewTaskInfo(task)))
}

// GetStatus 获取索引状态
// GET /api/index/status
func (h *IndexHandler) GetStatus(c *gin.Context) {
	status := h.indexer.Status()
	c.JSON(http.StatusOK, model.NewSuccessResponse(model.IndexStatusResponse{
		State:          string(status.State),
		Ready:          h.indexer.Holder().Ready(),
		Stats:          status.Stats,
		FromCheckpoint: status.FromCache,
		LastError:      status.LastError,
	}))
}

// Health 健康检查，索引未就绪时返回 degraded
// GET /api/health
func (h *IndexHandler) Health(c *gin.Context) {
	ready := h.indexer.Holder().Ready()
	resp := model.HealthResponse{
		Status:     "ok",
		IndexReady: ready,
	}
	if h.sessions != nil {
		resp.Sessions = h.sessions.Count()
	}
	if !ready {
		resp.Status = "degraded"
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}
